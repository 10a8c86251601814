package store

import (
	"database/sql"
	"errors"
	"time"
)

// UpsertTyping writes the last-write-wins typing flag for (conversation, user).
func (db *DB) UpsertTyping(conversationID, userID int64, isTyping bool) error {
	_, err := db.Exec(`
		INSERT INTO typing_status (conversation_id, user_id, is_typing, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(conversation_id, user_id) DO UPDATE SET
			is_typing = excluded.is_typing,
			updated_at = excluded.updated_at`,
		conversationID, userID, isTyping, time.Now().UnixMilli())
	return err
}

// GetTyping reads the typing flag; a missing row reads as not typing.
func (db *DB) GetTyping(conversationID, userID int64) (bool, error) {
	var isTyping bool
	err := db.QueryRow(`
		SELECT is_typing FROM typing_status WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID).Scan(&isTyping)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return isTyping, nil
}
