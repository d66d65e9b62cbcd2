package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeMember struct {
	id     string
	full   bool
	queued [][]byte
}

func (f *fakeMember) ID() string { return f.id }

func (f *fakeMember) Send(msg []byte) bool {
	if f.full {
		return false
	}
	f.queued = append(f.queued, msg)
	return true
}

func TestNameForUser(t *testing.T) {
	assert.Equal(t, "user_42", NameForUser("42"))
}

func TestRoomMembership(t *testing.T) {
	r := NewRoom(NameForUser("42"))
	a := &fakeMember{id: "a"}
	b := &fakeMember{id: "b"}

	r.Add(a)
	r.Add(b)
	r.Add(a)
	assert.Equal(t, 2, r.Len())

	assert.Equal(t, 1, r.Remove("a"))
	assert.Equal(t, 1, r.Broadcast([]byte("hi")))
	assert.Empty(t, a.queued)
	assert.Len(t, b.queued, 1)
	assert.Equal(t, 0, r.Remove("b"))
	assert.Equal(t, 0, r.Remove("missing"))
}

func TestRoomBroadcastSkipsFullMembers(t *testing.T) {
	r := NewRoom("user_1")
	ok := &fakeMember{id: "ok"}
	full := &fakeMember{id: "full", full: true}
	r.Add(ok)
	r.Add(full)

	assert.Equal(t, 1, r.Broadcast([]byte("hi")))
	assert.Equal(t, [][]byte{[]byte("hi")}, ok.queued)
	assert.Empty(t, full.queued)
}

func TestEmptyRoomBroadcast(t *testing.T) {
	assert.Zero(t, NewRoom("user_1").Broadcast([]byte("hi")))
}
