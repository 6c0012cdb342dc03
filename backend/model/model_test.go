package model

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomHistoryEviction(t *testing.T) {
	room := NewRoom("r", PublicAccess(), 100)
	for i := 0; i < 150; i++ {
		room.AppendMessage(Message{ID: strconv.Itoa(i)})
	}

	h := room.History()
	require.Len(t, h, 100)
	for i, msg := range h {
		assert.Equal(t, strconv.Itoa(i+50), msg.ID)
	}
}

func TestRoomHistoryIsCopy(t *testing.T) {
	room := NewRoom("r", PublicAccess(), 0)
	room.AppendMessage(Message{ID: "a", Text: "hi"})

	h := room.History()
	h[0].Text = "changed"
	assert.Equal(t, "hi", room.History()[0].Text)
}

func TestRoomMembersJoinOrder(t *testing.T) {
	room := NewRoom("r", PrivateAccess([]byte("x")), 0)
	ids := []string{"zz", "aa", "mm", "bb"}
	for _, id := range ids {
		require.True(t, room.AddMember(Participant{ID: id}))
	}
	assert.False(t, room.AddMember(Participant{ID: "aa"}))

	_, ok := room.RemoveMember("mm")
	require.True(t, ok)
	require.True(t, room.AddMember(Participant{ID: "mm"}))

	var got []string
	for _, p := range room.Members() {
		got = append(got, p.ID)
	}
	assert.Equal(t, []string{"zz", "aa", "bb", "mm"}, got)
	assert.Equal(t, 4, room.MemberCount())
}

func TestReplyJSON(t *testing.T) {
	b, err := json.Marshal(Reply{Error: "room not found"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"room not found"}`, string(b))

	b, err = json.Marshal(Reply{Success: true, Snapshot: &Snapshot{
		RoomID:        PublicRoomID,
		ParticipantID: "p1",
		DisplayName:   "Anon-AB12",
		Members:       []Participant{{ID: "p1", DisplayName: "Anon-AB12", ConnID: "c1"}},
		History:       []Message{},
	}})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"success": true,
		"roomId": "public",
		"participantId": "p1",
		"displayName": "Anon-AB12",
		"members": [{"participantId": "p1", "displayName": "Anon-AB12"}],
		"history": []
	}`, string(b))
}
