// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/gemchat/internal/logging"
	"github.com/jeranaias/gemchat/internal/util"
)

// =============================================================================
// JSON STORE
// =============================================================================

// JSONStore keeps history as an indented JSON array in one file.
type JSONStore struct {
	path string
	max  int
}

// NewJSONStore creates a store for path.
func NewJSONStore(path string, max int) *JSONStore {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &JSONStore{path: path, max: max}
}

// Path implements Store.
func (s *JSONStore) Path() string { return s.path }

// SetMax implements Store. Non-positive values select DefaultMaxEntries.
func (s *JSONStore) SetMax(max int) {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	s.max = max
}

// Close implements Store.
func (s *JSONStore) Close() error { return nil }

// Load implements Store. Undecodable content is moved aside to
// "<path>.corrupt-<unix>" and an empty history is returned together with
// a recovered PersistenceError.
func (s *JSONStore) Load() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Entry{}, nil
		}
		return nil, &PersistenceError{Op: "load", Path: s.path, Err: err}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return []Entry{}, nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		perr := &PersistenceError{Op: "load", Path: s.path, Recovered: true, Err: fmt.Errorf("invalid history file: %w", err)}
		backup, backupErr := util.BackupFile(s.path, "corrupt")
		if backupErr == nil {
			perr.Backup = backup
		}
		logging.L().WithFields(logrus.Fields{"path": s.path, "backup": backup}).WithError(err).Warn("history file is corrupt, starting empty")
		return []Entry{}, perr
	}

	return Truncate(dropInvalid(s.path, entries), s.max), nil
}

// Save implements Store. The write is atomic with mode 0600.
func (s *JSONStore) Save(entries []Entry) error {
	data, err := Encode(Truncate(entries, s.max))
	if err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	if err := util.AtomicWriteFile(s.path, data, 0600); err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}

// Encode renders entries in the on-disk JSON format.
func Encode(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode history: %w", err)
	}
	return append(data, '\n'), nil
}

// dropInvalid removes entries whose role is not user or assistant.
func dropInvalid(path string, entries []Entry) []Entry {
	out := entries[:0]
	for i, e := range entries {
		if !ValidRole(e.Role) {
			logging.L().WithFields(logrus.Fields{"path": path, "index": i, "role": e.Role}).Warn("dropping history entry with invalid role")
			continue
		}
		out = append(out, e)
	}
	return out
}
