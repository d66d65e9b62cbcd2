package room

import (
	"sync"
)

const userRoomPrefix = "user_"

// Member is a live connection that can sit in a room.
type Member interface {
	// ID is the transport-assigned connection id.
	ID() string

	// Send queues msg for the member and reports whether it was accepted.
	Send(msg []byte) bool
}

type Room struct {
	// Name is the unique name of the room, see NameForUser
	Name string

	// members is a map of connections in the room keyed by connection id
	members map[string]Member

	// mtx is a mutex
	mtx *sync.RWMutex
}

// NewRoom creates a new empty room.
func NewRoom(name string) *Room {
	return &Room{
		Name:    name,
		members: make(map[string]Member),
		mtx:     &sync.RWMutex{},
	}
}

// NameForUser returns the name of the room that receives userID's pushes.
func NameForUser(userID string) string {
	return userRoomPrefix + userID
}

func (r *Room) Add(m Member) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.members[m.ID()] = m
}

// Remove drops the member with the given connection id and returns how many
// members are left.
func (r *Room) Remove(memberID string) int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	delete(r.members, memberID)
	return len(r.members)
}

func (r *Room) Len() int {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return len(r.members)
}

// Broadcast queues msg for every member and returns how many accepted it.
func (r *Room) Broadcast(msg []byte) int {
	r.mtx.RLock()
	members := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		members = append(members, m)
	}
	r.mtx.RUnlock()

	delivered := 0
	for _, m := range members {
		if m.Send(msg) {
			delivered++
		}
	}
	return delivered
}
