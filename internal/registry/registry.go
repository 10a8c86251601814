// Package registry tracks live connections, their authenticated identity,
// and which rooms each one has joined. It is the single owner of that
// state; components receive it by injection, never through globals.
package registry

import (
	"errors"
	"sync"

	"github.com/mbenevides/hermes/internal/bus"
)

// ErrUnauthenticated rejects registration of connections without an
// authenticated identity. Fatal for the connection.
var ErrUnauthenticated = errors.New("registry: connection is not authenticated")

// Identity is the authenticated user behind a connection.
type Identity struct {
	UserID   int64
	Username string
}

type entry struct {
	sub   bus.Subscriber
	rooms map[string]struct{}
}

// Registry maps connection ids to their identity and room memberships.
// A user may hold several concurrent connections (multi-device); each is
// registered independently under its own connection id.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*entry
	bus   *bus.Bus
}

// New creates a registry that joins and leaves rooms on the given bus.
func New(b *bus.Bus) *Registry {
	return &Registry{
		conns: make(map[string]*entry),
		bus:   b,
	}
}

// Register records the connection and joins it to the given rooms.
// An anonymous identity (user id 0 or negative) is refused.
func (r *Registry) Register(sub bus.Subscriber, rooms ...string) error {
	if sub.UserID() <= 0 {
		return ErrUnauthenticated
	}

	e := &entry{sub: sub, rooms: make(map[string]struct{}, len(rooms))}
	for _, room := range rooms {
		e.rooms[room] = struct{}{}
	}

	r.mu.Lock()
	r.conns[sub.ID()] = e
	r.mu.Unlock()

	for _, room := range rooms {
		r.bus.Join(room, sub)
	}
	return nil
}

// JoinRoom adds the connection to one more room. Unknown connections are ignored.
func (r *Registry) JoinRoom(connID, roomKey string) {
	r.mu.Lock()
	e, ok := r.conns[connID]
	if ok {
		e.rooms[roomKey] = struct{}{}
	}
	r.mu.Unlock()
	if ok {
		r.bus.Join(roomKey, e.sub)
	}
}

// LeaveRoom removes the connection from a room it previously joined.
func (r *Registry) LeaveRoom(connID, roomKey string) {
	r.mu.Lock()
	e, ok := r.conns[connID]
	if ok {
		delete(e.rooms, roomKey)
	}
	r.mu.Unlock()
	if ok {
		r.bus.Leave(roomKey, connID)
	}
}

// Unregister removes the connection from every room it joined and
// forgets it. Unknown connection ids are ignored.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	e, ok := r.conns[connID]
	if ok {
		delete(r.conns, connID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	for room := range e.rooms {
		r.bus.Leave(room, connID)
	}
}

// Connections reports the number of registered connections.
func (r *Registry) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// ConnectionsForUser reports how many live connections a user holds.
func (r *Registry) ConnectionsForUser(userID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.conns {
		if e.sub.UserID() == userID {
			n++
		}
	}
	return n
}
