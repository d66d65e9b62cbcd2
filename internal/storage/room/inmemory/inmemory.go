package inmemory

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/digitalaxis/axisgate/internal/room"
)

var ErrRoomNotFound = errors.New("room not found")

type Storage struct {
	rooms map[string]*room.Room
	mtx   sync.RWMutex

	logger *zap.Logger
}

func NewStorage(logger *zap.Logger) *Storage {
	return &Storage{
		rooms:  make(map[string]*room.Room),
		logger: logger,
	}
}

func (s *Storage) GetOrCreate(name string) *room.Room {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if r, ok := s.rooms[name]; ok {
		return r
	}
	r := room.NewRoom(name)
	s.rooms[name] = r
	s.logger.Debug("Room opened", zap.String("room", name))
	return r
}

func (s *Storage) Get(name string) (*room.Room, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	r, ok := s.rooms[name]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

func (s *Storage) DeleteIfEmpty(name string) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	r, ok := s.rooms[name]
	if !ok || r.Len() > 0 {
		return false
	}
	delete(s.rooms, name)
	s.logger.Debug("Room closed", zap.String("room", name))
	return true
}

// Len counts the open rooms.
func (s *Storage) Len() int {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return len(s.rooms)
}
