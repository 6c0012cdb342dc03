package memory

import (
	"errors"
	"sync"

	"github.com/adwski/ghostchat/backend/model"
)

var ErrAlreadyBound = errors.New("connection already has a session")

// Sessions maps connections to the room membership they currently hold.
type Sessions struct {
	mx *sync.RWMutex
	db map[string]model.Session
}

func NewSessions() *Sessions {
	return &Sessions{
		mx: &sync.RWMutex{},
		db: make(map[string]model.Session),
	}
}

func (s *Sessions) Bind(connID, roomID, participantID string) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	if _, ok := s.db[connID]; ok {
		return ErrAlreadyBound
	}
	s.db[connID] = model.Session{
		RoomID:        roomID,
		ParticipantID: participantID,
	}
	return nil
}

func (s *Sessions) Lookup(connID string) (model.Session, bool) {
	s.mx.RLock()
	defer s.mx.RUnlock()

	sess, ok := s.db[connID]
	return sess, ok
}

// Unbind is a no-op for unknown connections.
func (s *Sessions) Unbind(connID string) {
	s.mx.Lock()
	defer s.mx.Unlock()

	delete(s.db, connID)
}

func (s *Sessions) Len() int {
	s.mx.RLock()
	defer s.mx.RUnlock()

	return len(s.db)
}
