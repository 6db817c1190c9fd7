// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"time"

	"github.com/google/uuid"
)

// Roles stored in history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultMaxEntries is used when a non-positive maximum is given.
const DefaultMaxEntries = 100

// =============================================================================
// ENTRY
// =============================================================================

// AttachmentRef records a file that was sent with a prompt. The file data
// itself is never persisted.
type AttachmentRef struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// Entry is one turn of the conversation.
type Entry struct {
	ID          string          `json:"id,omitempty"`
	Role        string          `json:"role"`
	Content     string          `json:"content"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// NewEntry creates an entry with a fresh ID and the current time.
func NewEntry(role, content string, refs []AttachmentRef) Entry {
	return Entry{
		ID:          uuid.NewString(),
		Role:        role,
		Content:     content,
		Attachments: refs,
		Timestamp:   time.Now().UTC(),
	}
}

// ValidRole reports whether role may be stored.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}

// Truncate keeps the newest max entries in their original order. The
// result never aliases the input.
func Truncate(entries []Entry, max int) []Entry {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	start := 0
	if len(entries) > max {
		start = len(entries) - max
	}
	out := make([]Entry, len(entries)-start)
	copy(out, entries[start:])
	return out
}

// =============================================================================
// IN-MEMORY LOG
// =============================================================================

// Log is the in-memory history of a session. It enforces the maximum on
// every append so it never holds more than max entries.
type Log struct {
	entries []Entry
	max     int
}

// NewLog creates an empty log holding at most max entries.
func NewLog(max int) *Log {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Log{max: max}
}

// Append adds an entry and drops the oldest if over the maximum.
func (l *Log) Append(role, content string, refs []AttachmentRef) Entry {
	e := NewEntry(role, content, refs)
	l.entries = append(l.entries, e)
	if len(l.entries) > l.max {
		l.entries = Truncate(l.entries, l.max)
	}
	return e
}

// Entries returns a copy of the entries, oldest first.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Last returns the newest n entries, or all when n <= 0.
func (l *Log) Last(n int) []Entry {
	if n <= 0 || n >= len(l.entries) {
		return l.Entries()
	}
	return Truncate(l.entries, n)
}

// Replace swaps in a new set of entries, truncated to the maximum.
func (l *Log) Replace(entries []Entry) {
	l.entries = Truncate(entries, l.max)
}

// Clear removes every entry.
func (l *Log) Clear() {
	l.entries = nil
}

// Len returns the number of entries.
func (l *Log) Len() int {
	return len(l.entries)
}

// Max returns the entry limit.
func (l *Log) Max() int {
	return l.max
}

// SetMax changes the limit, truncating if needed.
func (l *Log) SetMax(max int) {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	l.max = max
	if len(l.entries) > max {
		l.entries = Truncate(l.entries, max)
	}
}
