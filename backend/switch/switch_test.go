package _switch

import (
	"testing"

	"github.com/adwski/ghostchat/backend/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newTestSwitch() *Switch {
	logger := zerolog.Nop()
	return NewSwitch(&logger)
}

func drain(ch chan model.Envelope) []model.Envelope {
	var out []model.Envelope
	for {
		select {
		case env := <-ch:
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestSwitchBroadcast(t *testing.T) {
	sw := newTestSwitch()

	a, b, c := make(chan model.Envelope, 4), make(chan model.Envelope, 4), make(chan model.Envelope, 4)
	sw.Connect("a", a)
	sw.Connect("b", b)
	sw.Connect("c", c)
	sw.Subscribe("room", "a")
	sw.Subscribe("room", "b")
	sw.Subscribe("other", "c")

	env := model.Envelope{Type: model.EventMessage}
	assert.Equal(t, 2, sw.Broadcast(env, "room"))
	assert.Equal(t, 1, sw.Broadcast(env, "room", "a"))
	assert.Zero(t, sw.Broadcast(env, "room", "a", "b"))

	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 2)
	assert.Empty(t, drain(c))
}

func TestSwitchBroadcastOrder(t *testing.T) {
	sw := newTestSwitch()

	a, b := make(chan model.Envelope, 16), make(chan model.Envelope, 16)
	sw.Connect("a", a)
	sw.Connect("b", b)
	sw.Subscribe("room", "a")
	sw.Subscribe("room", "b")

	for i := uint64(1); i <= 10; i++ {
		sw.Broadcast(model.Envelope{ID: i, Type: model.EventMessage}, "room")
	}
	for _, ch := range []chan model.Envelope{a, b} {
		got := drain(ch)
		if assert.Len(t, got, 10) {
			for i, env := range got {
				assert.Equal(t, uint64(i+1), env.ID)
			}
		}
	}
}

func TestSwitchSlowEndpointDoesNotBlockOthers(t *testing.T) {
	sw := newTestSwitch()

	slow := make(chan model.Envelope) // unbuffered, nobody reading
	fast := make(chan model.Envelope, 8)
	sw.Connect("slow", slow)
	sw.Connect("fast", fast)
	sw.Subscribe("room", "slow")
	sw.Subscribe("room", "fast")

	for i := 0; i < 5; i++ {
		assert.Equal(t, 1, sw.Broadcast(model.Envelope{Type: model.EventMessage}, "room"))
	}
	assert.Len(t, drain(fast), 5)
}

func TestSwitchDisconnectDropsSubscriptions(t *testing.T) {
	sw := newTestSwitch()

	a := make(chan model.Envelope, 4)
	sw.Connect("a", a)
	sw.Subscribe("room", "a")
	sw.Subscribe("lobby", "a")

	sw.Disconnect("a")
	assert.Zero(t, sw.Broadcast(model.Envelope{Type: model.EventMessage}, "room"))
	assert.Zero(t, sw.Broadcast(model.Envelope{Type: model.EventMessage}, "lobby"))
	assert.Empty(t, drain(a))
	assert.Empty(t, sw.groups)
	assert.Empty(t, sw.subs)
}

func TestSwitchUnsubscribe(t *testing.T) {
	sw := newTestSwitch()

	a := make(chan model.Envelope, 4)
	sw.Connect("a", a)
	sw.Subscribe("room", "a")
	sw.Unsubscribe("room", "a")
	sw.Unsubscribe("room", "a")

	assert.Zero(t, sw.Broadcast(model.Envelope{Type: model.EventMessage}, "room"))

	sw.Subscribe("room", "a")
	assert.Equal(t, 1, sw.Broadcast(model.Envelope{Type: model.EventMessage}, "room"))
}

func TestSwitchHoldRelease(t *testing.T) {
	sw := newTestSwitch()

	a, b := make(chan model.Envelope, 8), make(chan model.Envelope, 8)
	sw.Connect("a", a)
	sw.Connect("b", b)
	sw.Subscribe("room", "a")
	sw.Subscribe("room", "b")

	sw.Hold("b")
	assert.Equal(t, 2, sw.Broadcast(model.Envelope{ID: 1, Type: model.EventMessage}, "room"))
	assert.Equal(t, 2, sw.Broadcast(model.Envelope{ID: 2, Type: model.EventUsersUpdated}, "room"))
	assert.Len(t, drain(a), 2)
	assert.Empty(t, drain(b))

	b <- model.Envelope{ID: 7, Type: model.EventReply}
	sw.Release("b")
	sw.Broadcast(model.Envelope{ID: 3, Type: model.EventMessage}, "room")

	got := drain(b)
	if assert.Len(t, got, 4) {
		assert.Equal(t, model.EventReply, got[0].Type)
		assert.Equal(t, []uint64{7, 1, 2, 3}, []uint64{got[0].ID, got[1].ID, got[2].ID, got[3].ID})
	}

	// releasing again changes nothing
	sw.Release("b")
	assert.Empty(t, drain(b))
}

func TestSwitchHoldBacklogBound(t *testing.T) {
	sw := newTestSwitch()

	a := make(chan model.Envelope, 2)
	sw.Connect("a", a)
	sw.Subscribe("room", "a")
	sw.Hold("a")

	env := model.Envelope{Type: model.EventMessage}
	assert.Equal(t, 1, sw.Broadcast(env, "room"))
	assert.Equal(t, 1, sw.Broadcast(env, "room"))
	assert.Zero(t, sw.Broadcast(env, "room"))

	sw.Release("a")
	assert.Len(t, drain(a), 2)
}

func TestSwitchDisconnectDropsHold(t *testing.T) {
	sw := newTestSwitch()

	a := make(chan model.Envelope, 2)
	sw.Connect("a", a)
	sw.Subscribe("room", "a")
	sw.Hold("a")
	sw.Broadcast(model.Envelope{Type: model.EventMessage}, "room")
	sw.Disconnect("a")

	sw.Release("a")
	assert.Empty(t, drain(a))

	// unknown endpoints are never held
	sw.Hold("ghost")
	sw.Connect("ghost", a)
	sw.Subscribe("room", "ghost")
	assert.Equal(t, 1, sw.Broadcast(model.Envelope{Type: model.EventMessage}, "room"))
	assert.Len(t, drain(a), 1)
}
