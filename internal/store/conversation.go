package store

import (
	"database/sql"
	"errors"
	"time"
)

// CreateConversation creates a conversation with the given participants.
func (db *DB) CreateConversation(participantIDs ...int64) (int64, error) {
	now := time.Now().UnixMilli()

	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`INSERT INTO conversations (created_at, updated_at) VALUES (?, ?)`, now, now)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, uid := range participantIDs {
		if _, err := tx.Exec(`
			INSERT INTO conversation_participants (conversation_id, user_id) VALUES (?, ?)`,
			id, uid); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// GetConversation loads a conversation by id.
func (db *DB) GetConversation(id int64) (*Conversation, error) {
	var c Conversation
	err := db.QueryRow(`SELECT id, created_at, updated_at FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// IsParticipant reports whether the user belongs to the conversation.
func (db *DB) IsParticipant(conversationID, userID int64) (bool, error) {
	var one int
	err := db.QueryRow(`
		SELECT 1 FROM conversation_participants WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// TouchConversation bumps the conversation's updated timestamp.
func (db *DB) TouchConversation(id int64) error {
	_, err := db.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), id)
	return err
}
