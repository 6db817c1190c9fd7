// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/gemchat/internal/logging"
)

// schema is the single-table layout. seq preserves order.
const schema = `
CREATE TABLE IF NOT EXISTS entries (
    seq         INTEGER PRIMARY KEY,
    id          TEXT NOT NULL DEFAULT '',
    role        TEXT NOT NULL,
    content     TEXT NOT NULL,
    attachments TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL
);
`

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLiteStore keeps history in a SQLite database.
type SQLiteStore struct {
	path string
	max  int
	db   *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string, max int) (*SQLiteStore, error) {
	if max <= 0 {
		max = DefaultMaxEntries
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, &PersistenceError{Op: "open", Path: path, Err: fmt.Errorf("failed to create database directory: %w", err)}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &PersistenceError{Op: "open", Path: path, Err: err}
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, &PersistenceError{Op: "open", Path: path, Err: fmt.Errorf("failed to set pragma: %w", err)}
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, &PersistenceError{Op: "open", Path: path, Err: fmt.Errorf("failed to initialize schema: %w", err)}
	}
	os.Chmod(path, 0600)

	return &SQLiteStore{path: path, max: max, db: db}, nil
}

// Path implements Store.
func (s *SQLiteStore) Path() string { return s.path }

// SetMax implements Store. Non-positive values select DefaultMaxEntries.
func (s *SQLiteStore) SetMax(max int) {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	s.max = max
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Load implements Store.
func (s *SQLiteStore) Load() ([]Entry, error) {
	rows, err := s.db.Query(`SELECT id, role, content, attachments, created_at FROM entries ORDER BY seq`)
	if err != nil {
		return nil, &PersistenceError{Op: "load", Path: s.path, Err: err}
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var attachments, created string
		if err := rows.Scan(&e.ID, &e.Role, &e.Content, &attachments, &created); err != nil {
			return nil, &PersistenceError{Op: "load", Path: s.path, Err: err}
		}
		if attachments != "" {
			if err := json.Unmarshal([]byte(attachments), &e.Attachments); err != nil {
				logging.L().WithField("id", e.ID).WithError(err).Warn("ignoring unreadable attachment list")
			}
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.Timestamp = ts
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "load", Path: s.path, Err: err}
	}

	return Truncate(dropInvalid(s.path, entries), s.max), nil
}

// Save implements Store. The table is replaced inside one transaction.
func (s *SQLiteStore) Save(entries []Entry) error {
	entries = Truncate(entries, s.max)

	tx, err := s.db.Begin()
	if err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM entries`); err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}

	stmt, err := tx.Prepare(`INSERT INTO entries (seq, id, role, content, attachments, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	defer stmt.Close()

	for i, e := range entries {
		var attachments string
		if len(e.Attachments) > 0 {
			data, err := json.Marshal(e.Attachments)
			if err != nil {
				return &PersistenceError{Op: "save", Path: s.path, Err: err}
			}
			attachments = string(data)
		}
		if _, err := stmt.Exec(i+1, e.ID, e.Role, e.Content, attachments, e.Timestamp.Format(time.RFC3339Nano)); err != nil {
			return &PersistenceError{Op: "save", Path: s.path, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}
