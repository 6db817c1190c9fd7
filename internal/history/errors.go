// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import "fmt"

// PersistenceError is a history read or write failure. The in-memory
// history stays usable whenever one is returned.
type PersistenceError struct {
	Op   string // "load" or "save"
	Path string

	// Recovered is set when Load replaced unreadable data with an empty
	// history. Backup names where the bad file was moved, if it was.
	Recovered bool
	Backup    string

	Err error
}

func (e *PersistenceError) Error() string {
	if e.Recovered && e.Backup != "" {
		return fmt.Sprintf("history %s %s: %v (moved to %s, starting empty)", e.Op, e.Path, e.Err, e.Backup)
	}
	if e.Recovered {
		return fmt.Sprintf("history %s %s: %v (starting empty)", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("history %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
