package store

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

const callColumns = `id, call_id, conversation_id, caller_id, callee_id, call_type,
	status, initiated_at, accepted_at, ended_at, duration_ms`

func scanCall(row interface{ Scan(...any) error }) (*Call, error) {
	var c Call
	err := row.Scan(&c.ID, &c.CallID, &c.ConversationID, &c.CallerID, &c.CalleeID,
		&c.Type, &c.Status, &c.InitiatedAt, &c.AcceptedAt, &c.EndedAt, &c.DurationMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCallIfNoActive creates the call session only if the conversation
// has no call in a non-terminal state. The check-and-create is a single
// statement, so two racing initiations cannot both succeed: SQLite
// serializes writers, and the losing insert affects zero rows and returns
// ErrActiveCall.
func (db *DB) CreateCallIfNoActive(c *Call) error {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		INSERT INTO calls (call_id, conversation_id, caller_id, callee_id, call_type, status, initiated_at)
		SELECT ?, ?, ?, ?, ?, 'initiated', ?
		WHERE NOT EXISTS (
			SELECT 1 FROM calls
			WHERE conversation_id = ? AND status IN ('initiated', 'ringing', 'accepted')
		)`,
		c.CallID, c.ConversationID, c.CallerID, c.CalleeID, c.Type, now, c.ConversationID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrActiveCall
	}
	c.ID, _ = res.LastInsertId()
	c.Status = "initiated"
	c.InitiatedAt = now
	return nil
}

// GetCall loads a call session by its opaque call id.
func (db *DB) GetCall(callID string) (*Call, error) {
	row := db.QueryRow(`SELECT `+callColumns+` FROM calls WHERE call_id = ?`, callID)
	return scanCall(row)
}

// CountActiveCalls reports how many non-terminal sessions a conversation holds.
func (db *DB) CountActiveCalls(conversationID int64) (int, error) {
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM calls
		WHERE conversation_id = ? AND status IN ('initiated', 'ringing', 'accepted')`,
		conversationID).Scan(&n)
	return n, err
}

// TransitionCall moves the call to status `to` only if its current status
// is one of `from`, in a single guarded update. It returns the refreshed
// row, (nil, false, nil) when the call exists but the guard did not match,
// or ErrNotFound for unknown call ids.
func (db *DB) TransitionCall(callID, to string, from ...string) (*Call, bool, error) {
	now := time.Now().UnixMilli()

	query := `UPDATE calls SET status = ?`
	args := []any{to}
	switch to {
	case "accepted":
		query += `, accepted_at = ?`
		args = append(args, now)
	case "ended":
		query += `, ended_at = ?, duration_ms = CASE WHEN accepted_at > 0 THEN ? - accepted_at ELSE 0 END`
		args = append(args, now, now)
	}
	query += ` WHERE call_id = ? AND status IN (?` + strings.Repeat(", ?", len(from)-1) + `)`
	args = append(args, callID)
	for _, f := range from {
		args = append(args, f)
	}

	res, err := db.Exec(query, args...)
	if err != nil {
		return nil, false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Zero rows is either a missing call or a failed status guard.
		if _, err := db.GetCall(callID); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	c, err := db.GetCall(callID)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}
