package store

import "time"

// GetOrCreateReaction adds a reaction row, idempotent under duplicate adds:
// the unique (message, user, emoji) index turns repeats into no-ops.
func (db *DB) GetOrCreateReaction(messageID, userID int64, emoji string) error {
	_, err := db.Exec(`
		INSERT OR IGNORE INTO message_reactions (message_id, user_id, emoji, created_at)
		VALUES (?, ?, ?, ?)`,
		messageID, userID, emoji, time.Now().UnixMilli())
	return err
}

// DeleteReaction removes the exact (message, user, emoji) row if present.
func (db *DB) DeleteReaction(messageID, userID int64, emoji string) error {
	_, err := db.Exec(`
		DELETE FROM message_reactions WHERE message_id = ? AND user_id = ? AND emoji = ?`,
		messageID, userID, emoji)
	return err
}

// ListReactionsByMessage returns all reactions for a message in creation
// order, with usernames resolved.
func (db *DB) ListReactionsByMessage(messageID int64) ([]Reaction, error) {
	rows, err := db.Query(`
		SELECT r.message_id, r.user_id, u.username, r.emoji, r.created_at
		FROM message_reactions r JOIN users u ON u.id = r.user_id
		WHERE r.message_id = ?
		ORDER BY r.created_at ASC, r.id ASC`, messageID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var reactions []Reaction
	for rows.Next() {
		var r Reaction
		if err := rows.Scan(&r.MessageID, &r.UserID, &r.Username, &r.Emoji, &r.CreatedAt); err != nil {
			return nil, err
		}
		reactions = append(reactions, r)
	}
	return reactions, rows.Err()
}
