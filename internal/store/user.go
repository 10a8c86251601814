package store

import (
	"database/sql"
	"errors"
	"time"
)

// CreateUser adds a directory entry and returns its id.
func (db *DB) CreateUser(username, displayName string) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO users (username, display_name, last_seen) VALUES (?, ?, ?)`,
		username, displayName, time.Now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetUser resolves a user id to its directory entry.
func (db *DB) GetUser(id int64) (*User, error) {
	var u User
	err := db.QueryRow(`
		SELECT id, username, display_name, is_online, last_seen FROM users WHERE id = ?`,
		id).Scan(&u.ID, &u.Username, &u.DisplayName, &u.IsOnline, &u.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SetOnline flips the presence flag; going offline also stamps last_seen.
func (db *DB) SetOnline(userID int64, online bool) error {
	if online {
		_, err := db.Exec(`UPDATE users SET is_online = 1 WHERE id = ?`, userID)
		return err
	}
	_, err := db.Exec(`UPDATE users SET is_online = 0, last_seen = ? WHERE id = ?`,
		time.Now().UnixMilli(), userID)
	return err
}

// TouchUser bumps last_seen without changing the online flag.
func (db *DB) TouchUser(userID int64) error {
	_, err := db.Exec(`UPDATE users SET last_seen = ? WHERE id = ?`, time.Now().UnixMilli(), userID)
	return err
}
