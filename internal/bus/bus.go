package bus

import (
	"fmt"
	"sync"
)

// Subscriber is a live connection that can receive room events.
// Send must not block; implementations enqueue into a buffered channel
// and report an error when the buffer is full or the connection is gone.
type Subscriber interface {
	ID() string
	UserID() int64
	Send(payload []byte) error
}

// Bus is a room-keyed publish/subscribe fanout.
//
// Each room has its own lock, so publishing to one room never contends
// with joins, leaves, or publishes on another. Delivery within a single
// Publish call is atomic with respect to membership changes, and events
// published to the same room are handed to subscribers in publish order.
type Bus struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	onDrop func(roomKey string)
}

type room struct {
	mu   sync.Mutex
	subs map[string]Subscriber
}

// New creates an empty bus. onDrop, if non-nil, is called once per
// subscriber that could not accept an event.
func New(onDrop func(roomKey string)) *Bus {
	return &Bus{
		rooms:  make(map[string]*room),
		onDrop: onDrop,
	}
}

// ConversationRoom returns the shared room key for a conversation.
func ConversationRoom(conversationID int64) string {
	return fmt.Sprintf("conversation:%d", conversationID)
}

// UserRoom returns a user's personal room key, used for call signaling
// independent of which conversation the user is viewing.
func UserRoom(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// Join adds sub to roomKey, creating the room on first join.
func (b *Bus) Join(roomKey string, sub Subscriber) {
	b.mu.Lock()
	r, ok := b.rooms[roomKey]
	if !ok {
		r = &room{subs: make(map[string]Subscriber)}
		b.rooms[roomKey] = r
	}
	b.mu.Unlock()

	r.mu.Lock()
	r.subs[sub.ID()] = sub
	r.mu.Unlock()
}

// Leave removes the connection from roomKey. Empty rooms are removed.
func (b *Bus) Leave(roomKey, connID string) {
	b.mu.RLock()
	r, ok := b.rooms[roomKey]
	b.mu.RUnlock()
	if !ok {
		return
	}

	r.mu.Lock()
	delete(r.subs, connID)
	empty := len(r.subs) == 0
	r.mu.Unlock()

	if !empty {
		return
	}
	b.mu.Lock()
	// Re-check under the write lock; a concurrent Join may have
	// repopulated the room.
	if cur, ok := b.rooms[roomKey]; ok && cur == r {
		cur.mu.Lock()
		if len(cur.subs) == 0 {
			delete(b.rooms, roomKey)
		}
		cur.mu.Unlock()
	}
	b.mu.Unlock()
}

// Publish delivers payload to every subscriber of roomKey, skipping
// connections whose user matches excludeUser (0 means no exclusion).
// Publishing to a room with no subscribers is a no-op.
func (b *Bus) Publish(roomKey string, payload []byte, excludeUser int64) {
	b.mu.RLock()
	r, ok := b.rooms[roomKey]
	b.mu.RUnlock()
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subs {
		if excludeUser != 0 && sub.UserID() == excludeUser {
			continue
		}
		if err := sub.Send(payload); err != nil && b.onDrop != nil {
			b.onDrop(roomKey)
		}
	}
}

// Counts reports the number of rooms and total subscriptions.
func (b *Bus) Counts() (rooms, subs int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rooms = len(b.rooms)
	for _, r := range b.rooms {
		r.mu.Lock()
		subs += len(r.subs)
		r.mu.Unlock()
	}
	return rooms, subs
}
