package _switch

import (
	"sync"

	"github.com/adwski/ghostchat/backend/model"
	"github.com/rs/zerolog"
)

// Switch delivers envelopes to every endpoint subscribed to a group.
// Delivery never blocks: an endpoint whose queue is full loses the envelope.
type Switch struct {
	logger    zerolog.Logger
	mx        *sync.Mutex
	endpoints map[string]chan<- model.Envelope
	groups    map[string]map[string]struct{}
	// endpoint -> groups it is subscribed to
	subs map[string]map[string]struct{}
	// held endpoints keep group traffic aside until released
	held map[string][]model.Envelope
}

func NewSwitch(logger *zerolog.Logger) *Switch {
	return &Switch{
		logger:    logger.With().Str("component", "switch").Logger(),
		mx:        &sync.Mutex{},
		endpoints: make(map[string]chan<- model.Envelope),
		groups:    make(map[string]map[string]struct{}),
		subs:      make(map[string]map[string]struct{}),
		held:      make(map[string][]model.Envelope),
	}
}

func (sw *Switch) Connect(endpoint string, tx chan<- model.Envelope) {
	sw.mx.Lock()
	defer func() {
		sw.mx.Unlock()
		sw.logger.Debug().Str("endpoint", endpoint).Msg("endpoint connected")
	}()

	sw.endpoints[endpoint] = tx
}

// Disconnect forgets the endpoint together with all of its group subscriptions.
func (sw *Switch) Disconnect(endpoint string) {
	sw.mx.Lock()
	defer func() {
		sw.mx.Unlock()
		sw.logger.Debug().Str("endpoint", endpoint).Msg("endpoint disconnected")
	}()

	for group := range sw.subs[endpoint] {
		sw.unsubscribe(group, endpoint)
	}
	delete(sw.held, endpoint)
	delete(sw.endpoints, endpoint)
}

// Hold makes the endpoint accumulate group traffic instead of receiving it,
// so that whatever the owner enqueues before Release goes first.
func (sw *Switch) Hold(endpoint string) {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	if _, ok := sw.endpoints[endpoint]; !ok {
		return
	}
	if _, ok := sw.held[endpoint]; !ok {
		sw.held[endpoint] = nil
	}
}

// Release forwards envelopes accumulated since Hold and resumes direct delivery.
// It is a no-op for endpoints that are not held.
func (sw *Switch) Release(endpoint string) {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	backlog, ok := sw.held[endpoint]
	if !ok {
		return
	}
	delete(sw.held, endpoint)
	tx, ok := sw.endpoints[endpoint]
	if !ok {
		return
	}
	for _, env := range backlog {
		send(env, endpoint, tx, &sw.logger)
	}
	sw.logger.Trace().Str("endpoint", endpoint).Int("backlog", len(backlog)).Msg("endpoint released")
}

func (sw *Switch) Subscribe(group, endpoint string) {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	members, ok := sw.groups[group]
	if !ok {
		members = make(map[string]struct{})
		sw.groups[group] = members
	}
	members[endpoint] = struct{}{}

	groups, ok := sw.subs[endpoint]
	if !ok {
		groups = make(map[string]struct{})
		sw.subs[endpoint] = groups
	}
	groups[group] = struct{}{}
}

func (sw *Switch) Unsubscribe(group, endpoint string) {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	sw.unsubscribe(group, endpoint)
}

func (sw *Switch) unsubscribe(group, endpoint string) {
	if members, ok := sw.groups[group]; ok {
		delete(members, endpoint)
		if len(members) == 0 {
			delete(sw.groups, group)
		}
	}
	if groups, ok := sw.subs[endpoint]; ok {
		delete(groups, group)
		if len(groups) == 0 {
			delete(sw.subs, endpoint)
		}
	}
}

// Broadcast delivers env to every endpoint in group except the listed ones
// and returns how many endpoints accepted it.
func (sw *Switch) Broadcast(env model.Envelope, group string, except ...string) int {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	var sent int
Members:
	for dst := range sw.groups[group] {
		for _, skip := range except {
			if dst == skip {
				continue Members
			}
		}
		tx, ok := sw.endpoints[dst]
		if !ok {
			continue
		}
		if backlog, isHeld := sw.held[dst]; isHeld {
			if len(backlog) >= cap(tx) {
				sw.logger.Warn().Str("dst", dst).Str("type", env.Type).Msg("held endpoint backlog is full, envelope dropped")
				continue
			}
			sw.held[dst] = append(backlog, env)
			sent++
			continue
		}
		if send(env, dst, tx, &sw.logger) {
			sent++
		}
	}
	if sent == 0 {
		sw.logger.Trace().
			Str("group", group).
			Str("type", env.Type).
			Msg("broadcast did not reach anyone")
	}
	return sent
}

func send(env model.Envelope, dst string, tx chan<- model.Envelope, logger *zerolog.Logger) bool {
	select {
	case tx <- env:
		logger.Trace().Str("dst", dst).Str("type", env.Type).Msg("envelope is forwarded")
		return true
	default:
		logger.Warn().Str("dst", dst).Str("type", env.Type).Msg("slow endpoint, envelope dropped")
		return false
	}
}
