// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"path/filepath"
	"strings"

	"github.com/jeranaias/gemchat/internal/util"
)

// Store persists history entries.
type Store interface {
	// Load returns the stored entries, oldest first. A missing store is an
	// empty history. A non-nil *PersistenceError with Recovered set may
	// accompany a usable (empty) result.
	Load() ([]Entry, error)

	// Save replaces the stored entries with the newest max of entries.
	Save(entries []Entry) error

	// SetMax changes the entry limit applied by Load and Save.
	SetMax(max int)

	// Path returns the backing file.
	Path() string

	// Close releases resources.
	Close() error
}

// IsSQLitePath reports whether path selects the SQLite store.
func IsSQLitePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

// Open returns the store for path: SQLite for .db/.sqlite files and JSON
// otherwise. A leading ~ is expanded.
func Open(path string, max int) (Store, error) {
	path = util.ExpandHome(path)
	if IsSQLitePath(path) {
		return OpenSQLite(path, max)
	}
	return NewJSONStore(path, max), nil
}
