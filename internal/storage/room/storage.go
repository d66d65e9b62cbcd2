package room

import (
	"github.com/digitalaxis/axisgate/internal/room"
)

// Storage keeps the live rooms by name. Implementations must make
// GetOrCreate and DeleteIfEmpty atomic so a room is never dropped while a
// member is being added to it.
type Storage interface {
	// GetOrCreate returns the room called name, creating an empty one first
	// if needed.
	GetOrCreate(name string) *room.Room
	Get(name string) (*room.Room, error)
	// DeleteIfEmpty drops the room when nobody is left in it and reports
	// whether it did.
	DeleteIfEmpty(name string) bool
	Len() int
}
