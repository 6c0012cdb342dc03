package memory

import (
	"errors"
	"sync"

	"github.com/adwski/ghostchat/backend/model"
)

var (
	ErrRoomAlreadyExists = errors.New("room already exists")
	ErrEmptyRoomID       = errors.New("room id is empty")
	ErrPublicRoom        = errors.New("public room cannot be deleted")
	ErrRoomNotEmpty      = errors.New("room is not empty")
)

// MemStore keeps live rooms. Room contents are not guarded here,
// only the room id namespace is.
type MemStore struct {
	mx           *sync.RWMutex
	db           map[string]*model.Room
	historyLimit int
}

func NewMemStore(historyLimit int) *MemStore {
	return &MemStore{
		mx:           &sync.RWMutex{},
		db:           make(map[string]*model.Room),
		historyLimit: historyLimit,
	}
}

func (ms *MemStore) Get(roomID string) (*model.Room, bool) {
	ms.mx.RLock()
	defer ms.mx.RUnlock()

	room, ok := ms.db[roomID]
	return room, ok
}

func (ms *MemStore) Create(roomID string, access model.Access) (*model.Room, error) {
	if roomID == "" {
		return nil, ErrEmptyRoomID
	}
	if access.Kind != model.RoomKindPublic && roomID == model.PublicRoomID {
		return nil, ErrRoomAlreadyExists
	}

	ms.mx.Lock()
	defer ms.mx.Unlock()

	if _, ok := ms.db[roomID]; ok {
		return nil, ErrRoomAlreadyExists
	}
	room := model.NewRoom(roomID, access, ms.historyLimit)
	ms.db[roomID] = room
	return room, nil
}

func (ms *MemStore) Delete(roomID string) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[roomID]
	if !ok {
		return nil
	}
	if room.Kind() == model.RoomKindPublic {
		return ErrPublicRoom
	}
	if room.MemberCount() > 0 {
		return ErrRoomNotEmpty
	}
	delete(ms.db, roomID)
	return nil
}

// EnsurePublicRoom creates the public room once.
func (ms *MemStore) EnsurePublicRoom() *model.Room {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[model.PublicRoomID]
	if !ok {
		room = model.NewRoom(model.PublicRoomID, model.PublicAccess(), ms.historyLimit)
		ms.db[model.PublicRoomID] = room
	}
	return room
}

func (ms *MemStore) Len() int {
	ms.mx.RLock()
	defer ms.mx.RUnlock()

	return len(ms.db)
}
