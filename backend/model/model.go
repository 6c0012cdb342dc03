package model

import (
	"sort"
	"time"
)

// PublicRoomID is the fixed id of the single public room.
const PublicRoomID = "public"

// DefaultHistoryLimit is how many messages a room keeps.
const DefaultHistoryLimit = 100

type RoomKind int

const (
	RoomKindPublic RoomKind = iota
	RoomKindPrivate
)

func (k RoomKind) String() string {
	switch k {
	case RoomKindPublic:
		return "public"
	case RoomKindPrivate:
		return "private"
	default:
		return "unknown"
	}
}

// Access is the kind of room together with whatever gates entry into it.
// Only private access carries a secret hash.
type Access struct {
	Kind       RoomKind
	SecretHash []byte
}

func PublicAccess() Access {
	return Access{Kind: RoomKindPublic}
}

func PrivateAccess(secretHash []byte) Access {
	return Access{Kind: RoomKindPrivate, SecretHash: secretHash}
}

type Participant struct {
	ID          string `json:"participantId"`
	DisplayName string `json:"displayName"`
	ConnID      string `json:"-"`

	seq uint64
}

type Message struct {
	ID                string    `json:"id"`
	AuthorDisplayName string    `json:"authorDisplayName"`
	Text              string    `json:"text"`
	SentAt            time.Time `json:"sentAt"`
}

// Session binds a connection to its current room membership.
type Session struct {
	RoomID        string
	ParticipantID string
}

// Room holds membership and bounded history. It is not safe for concurrent use,
// callers serialize access to it.
type Room struct {
	ID        string
	Access    Access
	CreatedAt time.Time

	members      map[string]*Participant
	history      []Message
	historyLimit int
	seq          uint64
}

func NewRoom(id string, access Access, historyLimit int) *Room {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Room{
		ID:           id,
		Access:       access,
		CreatedAt:    time.Now(),
		members:      make(map[string]*Participant),
		history:      make([]Message, 0, historyLimit),
		historyLimit: historyLimit,
	}
}

func (r *Room) Kind() RoomKind {
	return r.Access.Kind
}

// AddMember inserts p, returns false if the participant id is already taken.
func (r *Room) AddMember(p Participant) bool {
	if _, ok := r.members[p.ID]; ok {
		return false
	}
	r.seq++
	p.seq = r.seq
	r.members[p.ID] = &p
	return true
}

func (r *Room) RemoveMember(participantID string) (Participant, bool) {
	p, ok := r.members[participantID]
	if !ok {
		return Participant{}, false
	}
	delete(r.members, participantID)
	return *p, true
}

func (r *Room) Member(participantID string) (Participant, bool) {
	p, ok := r.members[participantID]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

func (r *Room) MemberCount() int {
	return len(r.members)
}

// Members returns a snapshot of the membership in join order.
func (r *Room) Members() []Participant {
	out := make([]Participant, 0, len(r.members))
	for _, p := range r.members {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].seq < out[j].seq
	})
	return out
}

// AppendMessage adds msg to history, evicting the oldest entries beyond the limit.
func (r *Room) AppendMessage(msg Message) {
	r.history = append(r.history, msg)
	if over := len(r.history) - r.historyLimit; over > 0 {
		copy(r.history, r.history[over:])
		r.history = r.history[:r.historyLimit]
	}
}

// History returns a copy of the message history, oldest first.
func (r *Room) History() []Message {
	out := make([]Message, len(r.history))
	copy(out, r.history)
	return out
}
