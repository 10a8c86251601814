// Package chat implements the message lifecycle: send, edit, delete,
// restore, react, and read receipts. Durable storage is delegated to the
// message store; every mutation is followed by a room broadcast.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mbenevides/hermes/internal/bus"
	"github.com/mbenevides/hermes/internal/registry"
	"github.com/mbenevides/hermes/internal/store"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// ErrNotSender rejects edit/delete/restore attempts by anyone other than
// the message's sender.
var ErrNotSender = errors.New("chat: actor is not the message sender")

// ErrDeleted rejects edits of soft-deleted messages.
var ErrDeleted = errors.New("chat: message is deleted")

// Store is the slice of the persistence layer the lifecycle manager uses.
type Store interface {
	CreateMessage(m *store.Message) error
	GetMessage(id int64) (*store.Message, error)
	ApplyEdit(messageID int64, oldContent, newContent string, editorID int64) (int64, error)
	SoftDeleteMessage(id, deletedBy int64) error
	RestoreMessage(id int64) error
	MarkRead(id int64) (bool, error)
	GetOrCreateReaction(messageID, userID int64, emoji string) error
	DeleteReaction(messageID, userID int64, emoji string) error
	ListReactionsByMessage(messageID int64) ([]store.Reaction, error)
}

// Service drives the message lifecycle against the store and the bus.
type Service struct {
	store  Store
	bus    *bus.Bus
	logger *zap.Logger
}

// New creates the lifecycle manager.
func New(s Store, b *bus.Bus, logger *zap.Logger) *Service {
	return &Service{store: s, bus: b, logger: logger}
}

type messageEvent struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Username  string `json:"username"`
	UserID    int64  `json:"user_id"`
	Timestamp string `json:"timestamp"`
	MessageID int64  `json:"message_id"`
	Status    string `json:"status"`
	TempID    string `json:"temp_id,omitempty"`
}

type messageStatusEvent struct {
	Type      string `json:"type"`
	MessageID int64  `json:"message_id"`
	Status    string `json:"status"`
}

type messageEditEvent struct {
	Type       string `json:"type"`
	MessageID  int64  `json:"message_id"`
	NewContent string `json:"new_content"`
	EditedBy   string `json:"edited_by"`
	EditedAt   string `json:"edited_at"`
}

type messageDeleteEvent struct {
	Type      string `json:"type"`
	MessageID int64  `json:"message_id"`
	DeletedBy string `json:"deleted_by"`
}

// ReactionUser identifies one reactor in the full reaction map.
type ReactionUser struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type reactionEvent struct {
	Type      string                    `json:"type"`
	MessageID int64                     `json:"message_id"`
	Emoji     string                    `json:"emoji"`
	UserID    int64                     `json:"user_id"`
	Username  string                    `json:"username"`
	Action    string                    `json:"action"`
	Reactions map[string][]ReactionUser `json:"reactions"`
}

type fileMessageEvent struct {
	Type        string `json:"type"`
	MessageID   int64  `json:"message_id"`
	Content     string `json:"content"`
	FileURL     string `json:"file_url"`
	FileName    string `json:"file_name"`
	FileSize    string `json:"file_size"`
	FileIcon    string `json:"file_icon"`
	MessageType string `json:"message_type"`
	IsImage     bool   `json:"is_image"`
	Username    string `json:"username"`
	UserID      int64  `json:"user_id"`
	Timestamp   string `json:"timestamp"`
	Status      string `json:"status"`
}

// Send persists and broadcasts a text message. Whitespace-only content is
// a silent no-op: nothing is stored, nothing is broadcast, no error is
// surfaced. tempID, when present, is echoed back so the sender's UI can
// reconcile its optimistic local copy with the authoritative one.
func (s *Service) Send(conversationID int64, sender registry.Identity, content, tempID string) (*store.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	m := &store.Message{
		ConversationID: conversationID,
		SenderID:       sender.UserID,
		Content:        content,
	}
	if err := s.store.CreateMessage(m); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	m.SenderName = sender.Username

	s.publish(bus.ConversationRoom(conversationID), messageEvent{
		Type:      "message",
		Message:   m.Content,
		Username:  sender.Username,
		UserID:    sender.UserID,
		Timestamp: isoTime(m.Timestamp),
		MessageID: m.ID,
		Status:    m.Status,
		TempID:    tempID,
	}, 0)
	return m, nil
}

// Edit rewrites a message's content. Only the sender may edit, deleted
// messages are not editable, and the previous content is captured in an
// append-only audit row before the mutation. Whitespace-only replacement
// content is a silent no-op, same as Send.
func (s *Service) Edit(messageID int64, actor registry.Identity, newContent string) error {
	if strings.TrimSpace(newContent) == "" {
		return nil
	}

	m, err := s.store.GetMessage(messageID)
	if err != nil {
		return err
	}
	if m.SenderID != actor.UserID {
		return ErrNotSender
	}
	if m.IsDeleted {
		return ErrDeleted
	}

	editedAt, err := s.store.ApplyEdit(messageID, m.Content, newContent, actor.UserID)
	if err != nil {
		return fmt.Errorf("apply edit: %w", err)
	}

	s.publish(bus.ConversationRoom(m.ConversationID), messageEditEvent{
		Type:       "message_edit",
		MessageID:  messageID,
		NewContent: newContent,
		EditedBy:   actor.Username,
		EditedAt:   isoTime(editedAt),
	}, 0)
	return nil
}

// Delete soft-deletes a message, preserving content for audit and restore.
// Clients substitute a deletion placeholder on receipt.
func (s *Service) Delete(messageID int64, actor registry.Identity) error {
	m, err := s.store.GetMessage(messageID)
	if err != nil {
		return err
	}
	if m.SenderID != actor.UserID {
		return ErrNotSender
	}

	if err := s.store.SoftDeleteMessage(messageID, actor.UserID); err != nil {
		return fmt.Errorf("soft delete: %w", err)
	}

	s.publish(bus.ConversationRoom(m.ConversationID), messageDeleteEvent{
		Type:      "message_delete",
		MessageID: messageID,
		DeletedBy: actor.Username,
	}, 0)
	return nil
}

// Restore clears a message's delete metadata. store.ErrNotFound if the
// message does not exist or is not currently deleted.
func (s *Service) Restore(messageID int64, actor registry.Identity) error {
	m, err := s.store.GetMessage(messageID)
	if err != nil {
		return err
	}
	if m.SenderID != actor.UserID {
		return ErrNotSender
	}
	return s.store.RestoreMessage(messageID)
}

// React adds or removes a reaction, then rebroadcasts the message's full
// reaction map rather than a delta, so out-of-order delivery across
// clients converges to the same final view. Duplicate adds and removes
// of absent rows are no-ops.
func (s *Service) React(messageID int64, actor registry.Identity, emoji, action string) error {
	m, err := s.store.GetMessage(messageID)
	if err != nil {
		return err
	}

	switch action {
	case "add":
		err = s.store.GetOrCreateReaction(messageID, actor.UserID, emoji)
	case "remove":
		err = s.store.DeleteReaction(messageID, actor.UserID, emoji)
	default:
		return fmt.Errorf("chat: unknown reaction action %q", action)
	}
	if err != nil {
		return fmt.Errorf("reaction %s: %w", action, err)
	}

	reactions, err := s.store.ListReactionsByMessage(messageID)
	if err != nil {
		return fmt.Errorf("list reactions: %w", err)
	}

	byEmoji := lo.MapValues(
		lo.GroupBy(reactions, func(r store.Reaction) string { return r.Emoji }),
		func(rs []store.Reaction, _ string) []ReactionUser {
			return lo.Map(rs, func(r store.Reaction, _ int) ReactionUser {
				return ReactionUser{UserID: r.UserID, Username: r.Username}
			})
		})

	s.publish(bus.ConversationRoom(m.ConversationID), reactionEvent{
		Type:      "reaction",
		MessageID: messageID,
		Emoji:     emoji,
		UserID:    actor.UserID,
		Username:  actor.Username,
		Action:    action,
		Reactions: byEmoji,
	}, 0)
	return nil
}

// MarkRead advances the message to read. Valid only from sent or
// delivered; already-read messages are a no-op and nothing is broadcast.
func (s *Service) MarkRead(messageID int64, reader registry.Identity) error {
	m, err := s.store.GetMessage(messageID)
	if err != nil {
		return err
	}

	changed, err := s.store.MarkRead(messageID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if !changed {
		return nil
	}

	s.publish(bus.ConversationRoom(m.ConversationID), messageStatusEvent{
		Type:      "message_status",
		MessageID: messageID,
		Status:    "read",
	}, 0)
	return nil
}

// AnnounceFile rebroadcasts a stored file or image message with its
// attachment metadata. The upload itself happens out of band.
func (s *Service) AnnounceFile(messageID int64, actor registry.Identity) error {
	m, err := s.store.GetMessage(messageID)
	if err != nil {
		return err
	}

	s.publish(bus.ConversationRoom(m.ConversationID), fileMessageEvent{
		Type:        "file_message",
		MessageID:   m.ID,
		Content:     m.DisplayContent(),
		FileURL:     m.FileURL,
		FileName:    m.FileName,
		FileSize:    humanSize(m.FileSize),
		FileIcon:    fileIcon(m.FileName),
		MessageType: m.Type,
		IsImage:     m.Type == "image",
		Username:    m.SenderName,
		UserID:      m.SenderID,
		Timestamp:   isoTime(m.Timestamp),
		Status:      m.Status,
	}, 0)
	return nil
}

func (s *Service) publish(roomKey string, evt any, excludeUser int64) {
	payload, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error("marshal chat event", zap.Error(err))
		return
	}
	s.bus.Publish(roomKey, payload, excludeUser)
}

func isoTime(unixMs int64) string {
	return time.UnixMilli(unixMs).UTC().Format(time.RFC3339)
}
