package service

import (
	"errors"
	"sync"
	"time"

	"github.com/adwski/ghostchat/backend/auth"
	"github.com/adwski/ghostchat/backend/model"
	"github.com/adwski/ghostchat/backend/storage/memory"
	"github.com/rs/zerolog"
)

type (
	RoomStore interface {
		Get(roomID string) (*model.Room, bool)
		Create(roomID string, access model.Access) (*model.Room, error)
		Delete(roomID string) error
		EnsurePublicRoom() *model.Room
		Len() int
	}

	SessionRegistry interface {
		Bind(connID, roomID, participantID string) error
		Lookup(connID string) (model.Session, bool)
		Unbind(connID string)
		Len() int
	}

	Switch interface {
		Connect(endpoint string, tx chan<- model.Envelope)
		Disconnect(endpoint string)
		Subscribe(group, endpoint string)
		Unsubscribe(group, endpoint string)
		Hold(endpoint string)
		Release(endpoint string)
		Broadcast(env model.Envelope, group string, except ...string) int
	}

	IdentityGenerator interface {
		NewParticipantID() string
		NewMessageID() string
		NewDisplayName() string
	}

	SecretHasher interface {
		Hash(secret string) ([]byte, error)
		Verify(hash []byte, secret string) bool
	}

	// Service coordinates rooms, sessions and broadcasts. All state transitions
	// happen under one lock, which also fixes the order in which members observe events.
	Service struct {
		store    RoomStore
		sessions SessionRegistry
		sw       Switch
		ids      IdentityGenerator
		secrets  SecretHasher
		logger   zerolog.Logger
		mx       sync.Mutex
	}

	Config struct {
		RoomStore RoomStore
		Sessions  SessionRegistry
		Switch    Switch
		Identity  IdentityGenerator
		Secrets   SecretHasher
		Logger    *zerolog.Logger
	}

	Stats struct {
		Rooms    int `json:"rooms"`
		Sessions int `json:"sessions"`
	}
)

func NewService(cfg Config) *Service {
	cfg.RoomStore.EnsurePublicRoom()
	return &Service{
		store:    cfg.RoomStore,
		sessions: cfg.Sessions,
		sw:       cfg.Switch,
		ids:      cfg.Identity,
		secrets:  cfg.Secrets,
		logger:   cfg.Logger.With().Str("component", "coordinator").Logger(),
	}
}

// Connect registers the outbound queue of a new connection.
func (svc *Service) Connect(connID string, tx chan<- model.Envelope) {
	svc.sw.Connect(connID, tx)
}

// Disconnect releases everything held by a closed connection.
func (svc *Service) Disconnect(connID string) error {
	err := svc.leave(connID, false)
	svc.sw.Disconnect(connID)
	return err
}

// Release resumes room event delivery to a connection that has just joined.
// Joins hold the connection's room traffic, so the caller must queue the join
// reply first and then call Release; events that happened after the snapshot
// was taken follow the reply in order.
func (svc *Service) Release(connID string) {
	svc.sw.Release(connID)
}

func (svc *Service) JoinPublic(connID string) (*model.Snapshot, error) {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	if _, ok := svc.sessions.Lookup(connID); ok {
		return nil, ErrAlreadyInRoom
	}
	room, ok := svc.store.Get(model.PublicRoomID)
	if !ok {
		svc.logger.Error().Msg("public room is missing")
		return nil, ErrInternal
	}
	return svc.enter(connID, room)
}

func (svc *Service) CreatePrivate(connID, roomID, secret string) (*model.Snapshot, error) {
	if roomID == "" || secret == "" {
		return nil, invalid("room id and password are required")
	}
	if svc.isBound(connID) {
		return nil, ErrAlreadyInRoom
	}

	// hashing is slow, keep it outside the lock
	hash, err := svc.secrets.Hash(secret)
	if err != nil {
		if errors.Is(err, auth.ErrSecretTooLong) {
			return nil, invalid("password is too long")
		}
		svc.logger.Error().Err(err).Msg("failed to hash room secret")
		return nil, ErrInternal
	}

	svc.mx.Lock()
	defer svc.mx.Unlock()

	if _, ok := svc.sessions.Lookup(connID); ok {
		return nil, ErrAlreadyInRoom
	}
	room, err := svc.store.Create(roomID, model.PrivateAccess(hash))
	if err != nil {
		switch {
		case errors.Is(err, memory.ErrRoomAlreadyExists):
			return nil, ErrRoomAlreadyExists
		case errors.Is(err, memory.ErrEmptyRoomID):
			return nil, invalid("room id and password are required")
		}
		return nil, errors.Join(ErrInternal, err)
	}
	snap, err := svc.enter(connID, room)
	if err != nil {
		if errDel := svc.store.Delete(roomID); errDel != nil {
			svc.logger.Error().Err(errDel).Str("roomID", roomID).Msg("failed to roll back room creation")
		}
		return nil, err
	}
	svc.logger.Debug().Str("roomID", roomID).Msg("private room created")
	return snap, nil
}

func (svc *Service) JoinPrivate(connID, roomID, secret string) (*model.Snapshot, error) {
	if roomID == "" || secret == "" {
		return nil, invalid("room id and password are required")
	}

	svc.mx.Lock()
	if _, ok := svc.sessions.Lookup(connID); ok {
		svc.mx.Unlock()
		return nil, ErrAlreadyInRoom
	}
	room, ok := svc.store.Get(roomID)
	if !ok {
		svc.mx.Unlock()
		return nil, ErrRoomNotFound
	}
	if room.Kind() != model.RoomKindPrivate {
		svc.mx.Unlock()
		return nil, ErrWrongRoomKind
	}
	hash := room.Access.SecretHash
	svc.mx.Unlock()

	if !svc.secrets.Verify(hash, secret) {
		svc.logger.Debug().Str("roomID", roomID).Str("connID", connID).Msg("incorrect room secret")
		return nil, ErrInvalidSecret
	}

	svc.mx.Lock()
	defer svc.mx.Unlock()

	if _, ok = svc.sessions.Lookup(connID); ok {
		return nil, ErrAlreadyInRoom
	}
	// the room may have been destroyed and recreated with another secret meanwhile
	if current, ok := svc.store.Get(roomID); !ok || current != room {
		return nil, ErrRoomNotFound
	}
	return svc.enter(connID, room)
}

func (svc *Service) SendMessage(connID, text string) error {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	sess, ok := svc.sessions.Lookup(connID)
	if !ok {
		return ErrNotInRoom
	}
	room, ok := svc.store.Get(sess.RoomID)
	if !ok {
		svc.logger.Error().
			Str("connID", connID).
			Str("roomID", sess.RoomID).
			Msg("session points to a room that does not exist")
		return ErrInternal
	}
	author, ok := room.Member(sess.ParticipantID)
	if !ok {
		svc.logger.Error().
			Str("connID", connID).
			Str("roomID", sess.RoomID).
			Str("participantID", sess.ParticipantID).
			Msg("session points to a participant that is not a room member")
		return ErrInternal
	}

	msg := model.Message{
		ID:                svc.ids.NewMessageID(),
		AuthorDisplayName: author.DisplayName,
		Text:              text,
		SentAt:            time.Now(),
	}
	room.AppendMessage(msg)
	svc.announce(room.ID, model.EventMessage, msg)
	return nil
}

// ExitRoom is an explicit leave. It succeeds for connections without a session.
func (svc *Service) ExitRoom(connID string) error {
	return svc.leave(connID, true)
}

func (svc *Service) Stats() Stats {
	return Stats{
		Rooms:    svc.store.Len(),
		Sessions: svc.sessions.Len(),
	}
}

func (svc *Service) isBound(connID string) bool {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	_, ok := svc.sessions.Lookup(connID)
	return ok
}

// enter adds a fresh participant for connID to room. Must be called under svc.mx.
func (svc *Service) enter(connID string, room *model.Room) (*model.Snapshot, error) {
	p := model.Participant{
		ID:          svc.ids.NewParticipantID(),
		DisplayName: svc.ids.NewDisplayName(),
		ConnID:      connID,
	}
	if !room.AddMember(p) {
		svc.logger.Error().
			Str("roomID", room.ID).
			Str("participantID", p.ID).
			Msg("participant id collision")
		return nil, ErrInternal
	}
	if err := svc.sessions.Bind(connID, room.ID, p.ID); err != nil {
		room.RemoveMember(p.ID)
		if errors.Is(err, memory.ErrAlreadyBound) {
			return nil, ErrAlreadyInRoom
		}
		return nil, errors.Join(ErrInternal, err)
	}
	svc.sw.Subscribe(room.ID, connID)
	svc.sw.Hold(connID)

	members := room.Members()
	svc.logger.Debug().
		Str("roomID", room.ID).
		Str("connID", connID).
		Str("participantID", p.ID).
		Int("members", len(members)).
		Msg("participant joined")

	svc.announce(room.ID, model.EventUserJoined, model.PresenceEvent{
		DisplayName: p.DisplayName,
		MemberCount: len(members),
	}, connID)
	svc.announce(room.ID, model.EventUsersUpdated, model.MembersEvent{Members: members}, connID)

	return &model.Snapshot{
		RoomID:        room.ID,
		ParticipantID: p.ID,
		DisplayName:   p.DisplayName,
		Members:       members,
		History:       room.History(),
	}, nil
}

func (svc *Service) leave(connID string, explicit bool) error {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	sess, ok := svc.sessions.Lookup(connID)
	if !ok {
		return nil
	}
	svc.sessions.Unbind(connID)
	if explicit {
		svc.sw.Unsubscribe(sess.RoomID, connID)
	}

	room, ok := svc.store.Get(sess.RoomID)
	if !ok {
		svc.logger.Error().
			Str("connID", connID).
			Str("roomID", sess.RoomID).
			Msg("session points to a room that does not exist")
		return ErrInternal
	}
	p, ok := room.RemoveMember(sess.ParticipantID)
	if !ok {
		svc.logger.Error().
			Str("connID", connID).
			Str("roomID", sess.RoomID).
			Str("participantID", sess.ParticipantID).
			Msg("leaving participant is not a room member")
	}
	svc.logger.Debug().
		Str("roomID", room.ID).
		Str("connID", connID).
		Str("participantID", sess.ParticipantID).
		Bool("explicit", explicit).
		Msg("participant left")

	if room.MemberCount() == 0 {
		if room.Kind() == model.RoomKindPrivate {
			if err := svc.store.Delete(room.ID); err != nil {
				svc.logger.Error().Err(err).Str("roomID", room.ID).Msg("failed to destroy empty room")
				return errors.Join(ErrInternal, err)
			}
			svc.logger.Debug().Str("roomID", room.ID).Msg("private room destroyed")
		}
		return nil
	}

	svc.announce(room.ID, model.EventUserLeft, model.PresenceEvent{
		DisplayName: p.DisplayName,
		MemberCount: room.MemberCount(),
	}, connID)
	svc.announce(room.ID, model.EventUsersUpdated, model.MembersEvent{Members: room.Members()}, connID)
	return nil
}

func (svc *Service) announce(roomID, typ string, payload any, except ...string) {
	env, err := model.NewEnvelope(0, typ, payload)
	if err != nil {
		svc.logger.Error().Err(err).Str("type", typ).Msg("failed to marshal event")
		return
	}
	svc.sw.Broadcast(env, roomID, except...)
}
