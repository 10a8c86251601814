package store

import (
	"database/sql"
	"errors"
	"time"
)

const messageColumns = `m.id, m.conversation_id, m.sender_id, u.username, m.content,
	m.message_type, m.status, m.is_edited, m.edited_at, m.is_deleted, m.deleted_at,
	m.deleted_by, m.file_name, m.file_size, m.file_url, m.timestamp`

func scanMessage(row interface{ Scan(...any) error }) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName, &m.Content,
		&m.Type, &m.Status, &m.IsEdited, &m.EditedAt, &m.IsDeleted, &m.DeletedAt,
		&m.DeletedBy, &m.FileName, &m.FileSize, &m.FileURL, &m.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMessage persists a new message with status "sent" and bumps the
// conversation's updated timestamp in the same transaction. The message ID
// and timestamp are filled in on return.
func (db *DB) CreateMessage(m *Message) error {
	now := time.Now().UnixMilli()
	if m.Type == "" {
		m.Type = "text"
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
		INSERT INTO messages (conversation_id, sender_id, content, message_type, status, file_name, file_size, file_url, timestamp)
		VALUES (?, ?, ?, ?, 'sent', ?, ?, ?, ?)`,
		m.ConversationID, m.SenderID, m.Content, m.Type, m.FileName, m.FileSize, m.FileURL, now)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`, now, m.ConversationID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	m.ID, _ = res.LastInsertId()
	m.Status = "sent"
	m.Timestamp = now
	return nil
}

// GetMessage loads a message with its sender's username.
func (db *DB) GetMessage(id int64) (*Message, error) {
	row := db.QueryRow(`
		SELECT `+messageColumns+`
		FROM messages m JOIN users u ON u.id = m.sender_id
		WHERE m.id = ?`, id)
	return scanMessage(row)
}

// ApplyEdit writes the append-only audit row capturing the content before
// mutation, then updates the message, all in one transaction. The deleted
// guard is re-checked atomically; ErrNotFound means the message vanished
// or was deleted concurrently.
func (db *DB) ApplyEdit(messageID int64, oldContent, newContent string, editorID int64) (editedAt int64, err error) {
	now := time.Now().UnixMilli()

	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO message_edits (message_id, old_content, new_content, editor_id, edited_at)
		VALUES (?, ?, ?, ?, ?)`,
		messageID, oldContent, newContent, editorID, now); err != nil {
		return 0, err
	}
	res, err := tx.Exec(`
		UPDATE messages SET content = ?, is_edited = 1, edited_at = ?
		WHERE id = ? AND is_deleted = 0`,
		newContent, now, messageID)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return now, nil
}

// ListEdits returns the audit trail for a message, most recent first.
func (db *DB) ListEdits(messageID int64) ([]MessageEdit, error) {
	rows, err := db.Query(`
		SELECT id, message_id, old_content, new_content, editor_id, edited_at
		FROM message_edits WHERE message_id = ? ORDER BY edited_at DESC, id DESC`, messageID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var edits []MessageEdit
	for rows.Next() {
		var e MessageEdit
		if err := rows.Scan(&e.ID, &e.MessageID, &e.OldContent, &e.NewContent, &e.EditorID, &e.EditedAt); err != nil {
			return nil, err
		}
		edits = append(edits, e)
	}
	return edits, rows.Err()
}

// SoftDeleteMessage marks the message deleted without erasing content.
// Deleting an already-deleted message is a no-op.
func (db *DB) SoftDeleteMessage(id, deletedBy int64) error {
	res, err := db.Exec(`
		UPDATE messages SET is_deleted = 1, deleted_at = ?, deleted_by = ?
		WHERE id = ? AND is_deleted = 0`,
		time.Now().UnixMilli(), deletedBy, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := db.GetMessage(id); err != nil {
			return err
		}
	}
	return nil
}

// RestoreMessage clears delete metadata. ErrNotFound if the message does
// not exist or is not currently deleted.
func (db *DB) RestoreMessage(id int64) error {
	res, err := db.Exec(`
		UPDATE messages SET is_deleted = 0, deleted_at = 0, deleted_by = 0
		WHERE id = ? AND is_deleted = 1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDelivered advances status sent -> delivered. Any other current
// status leaves the row untouched; status never regresses.
func (db *DB) MarkDelivered(id int64) (changed bool, err error) {
	res, err := db.Exec(`UPDATE messages SET status = 'delivered' WHERE id = ? AND status = 'sent'`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkRead advances status to read from sent or delivered. The guard is a
// single atomic update, so concurrent markers cannot regress the status.
func (db *DB) MarkRead(id int64) (changed bool, err error) {
	res, err := db.Exec(`UPDATE messages SET status = 'read' WHERE id = ? AND status IN ('sent', 'delivered')`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListMessages returns a conversation's messages in send order, capped at limit.
func (db *DB) ListMessages(conversationID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages m JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = ?
		ORDER BY m.timestamp ASC, m.id ASC
		LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}
