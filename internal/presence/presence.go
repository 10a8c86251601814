// Package presence tracks online/offline and typing-indicator state,
// driven by connect/disconnect and explicit typing signals.
package presence

import (
	"encoding/json"

	"github.com/mbenevides/hermes/internal/bus"
	"github.com/mbenevides/hermes/internal/registry"
	"go.uber.org/zap"
)

// Store is the slice of the persistence layer presence depends on.
type Store interface {
	SetOnline(userID int64, online bool) error
	TouchUser(userID int64) error
	UpsertTyping(conversationID, userID int64, isTyping bool) error
}

// Tracker persists presence state and broadcasts the resulting events.
type Tracker struct {
	store  Store
	bus    *bus.Bus
	logger *zap.Logger
}

// New creates a presence tracker.
func New(store Store, b *bus.Bus, logger *zap.Logger) *Tracker {
	return &Tracker{store: store, bus: b, logger: logger}
}

type userStatusEvent struct {
	Type     string `json:"type"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	IsOnline bool   `json:"is_online"`
}

type typingEvent struct {
	Type     string `json:"type"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

type userActivityEvent struct {
	Type     string `json:"type"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Activity string `json:"activity"`
}

// Connected marks the user online and announces it to the conversation room.
func (t *Tracker) Connected(who registry.Identity, conversationID int64) error {
	if err := t.store.SetOnline(who.UserID, true); err != nil {
		return err
	}
	t.publish(bus.ConversationRoom(conversationID), userStatusEvent{
		Type:     "user_status",
		UserID:   who.UserID,
		Username: who.Username,
		IsOnline: true,
	}, 0)
	return nil
}

// Disconnected marks the user offline, stamps last_seen, force-clears the
// typing flag for the conversation, and announces the offline status.
func (t *Tracker) Disconnected(who registry.Identity, conversationID int64) error {
	if err := t.store.SetOnline(who.UserID, false); err != nil {
		return err
	}
	if err := t.store.UpsertTyping(conversationID, who.UserID, false); err != nil {
		t.logger.Warn("clearing typing flag on disconnect",
			zap.Int64("user_id", who.UserID), zap.Error(err))
	}
	t.publish(bus.ConversationRoom(conversationID), userStatusEvent{
		Type:     "user_status",
		UserID:   who.UserID,
		Username: who.Username,
		IsOnline: false,
	}, 0)
	return nil
}

// SetTyping upserts the typing flag and broadcasts it to the room,
// excluding the typer's own connections.
func (t *Tracker) SetTyping(who registry.Identity, conversationID int64, isTyping bool) error {
	if err := t.store.UpsertTyping(conversationID, who.UserID, isTyping); err != nil {
		return err
	}
	t.publish(bus.ConversationRoom(conversationID), typingEvent{
		Type:     "typing",
		UserID:   who.UserID,
		Username: who.Username,
		IsTyping: isTyping,
	}, who.UserID)
	return nil
}

// SetActivity bumps the user's last_seen and broadcasts the activity
// change (active/away/busy), excluding the originator.
func (t *Tracker) SetActivity(who registry.Identity, conversationID int64, activity string) error {
	if err := t.store.TouchUser(who.UserID); err != nil {
		return err
	}
	t.publish(bus.ConversationRoom(conversationID), userActivityEvent{
		Type:     "user_activity",
		UserID:   who.UserID,
		Username: who.Username,
		Activity: activity,
	}, who.UserID)
	return nil
}

func (t *Tracker) publish(roomKey string, evt any, excludeUser int64) {
	payload, err := json.Marshal(evt)
	if err != nil {
		t.logger.Error("marshal presence event", zap.Error(err))
		return
	}
	t.bus.Publish(roomKey, payload, excludeUser)
}
