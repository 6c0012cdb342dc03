package model

import "encoding/json"

// Request types sent by clients.
const (
	RequestJoinPublic    = "join-public"
	RequestCreatePrivate = "create-private"
	RequestJoinPrivate   = "join-private"
	RequestSendMessage   = "send-message"
	RequestExitRoom      = "exit-room"
)

// Event types pushed by server.
const (
	EventReply        = "reply"
	EventMessage      = "message"
	EventUserJoined   = "user-joined"
	EventUserLeft     = "user-left"
	EventUsersUpdated = "users-updated"
)

// Envelope is a single websocket frame. Requests and their replies share ID,
// server-initiated events carry no ID.
type Envelope struct {
	ID      uint64          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewEnvelope(id uint64, typ string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{ID: id, Type: typ, Payload: b}, nil
}

type PrivateRoomRequest struct {
	RoomID string `json:"roomId"`
	Secret string `json:"secret"`
}

type SendMessageRequest struct {
	Text string `json:"text"`
}

// Snapshot is what a participant gets after entering a room.
type Snapshot struct {
	RoomID        string        `json:"roomId"`
	ParticipantID string        `json:"participantId"`
	DisplayName   string        `json:"displayName"`
	Members       []Participant `json:"members"`
	History       []Message     `json:"history"`
}

type Reply struct {
	Success bool   `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
	*Snapshot
}

type PresenceEvent struct {
	DisplayName string `json:"displayName"`
	MemberCount int    `json:"memberCount"`
}

type MembersEvent struct {
	Members []Participant `json:"members"`
}
