// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/chatterm/internal/model"
)

// schema creates the mirror table. One row per cached page; the chat list
// is stored as a JSON blob since it is only ever read and written whole.
const schema = `
CREATE TABLE IF NOT EXISTS history_cache (
	endpoint   TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	cursor     TEXT NOT NULL,
	chats      TEXT NOT NULL,
	fetched_at TIMESTAMP NOT NULL,
	PRIMARY KEY (endpoint, user_id, cursor)
);
CREATE INDEX IF NOT EXISTS idx_history_cache_user ON history_cache(user_id);
`

// =============================================================================
// PERSISTENT MIRROR
// =============================================================================

// Store is the sqlite-backed mirror of the history cache.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if necessary) the mirror database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history mirror: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init history mirror schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put upserts one cached page.
func (s *Store) Put(key Key, chats []model.ChatSummary) error {
	blob, err := json.Marshal(chats)
	if err != nil {
		return fmt.Errorf("failed to marshal chats: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO history_cache (endpoint, user_id, cursor, chats, fetched_at)
		 VALUES (?, ?, ?, ?, ?)`,
		key.Endpoint, key.UserID, key.Cursor, string(blob), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to write mirror row: %w", err)
	}
	return nil
}

// Get reads one cached page. ok is false when the page was never mirrored.
func (s *Store) Get(key Key) (chats []model.ChatSummary, ok bool, err error) {
	var blob string
	row := s.db.QueryRow(
		`SELECT chats FROM history_cache WHERE endpoint = ? AND user_id = ? AND cursor = ?`,
		key.Endpoint, key.UserID, key.Cursor,
	)
	switch err := row.Scan(&blob); err {
	case nil:
	case sql.ErrNoRows:
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("failed to read mirror row: %w", err)
	}

	if err := json.Unmarshal([]byte(blob), &chats); err != nil {
		return nil, false, fmt.Errorf("corrupt mirror row: %w", err)
	}
	return chats, true, nil
}

// DeleteUser removes every mirrored page of the given user.
func (s *Store) DeleteUser(userID string) error {
	if _, err := s.db.Exec(`DELETE FROM history_cache WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete mirror rows: %w", err)
	}
	return nil
}
