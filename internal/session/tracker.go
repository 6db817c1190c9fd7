// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultAutoSaveInterval is how often a dirty history is saved while the
// chat loop is idle at the prompt.
const DefaultAutoSaveInterval = 2 * time.Minute

// =============================================================================
// ACTIVITY TRACKER
// =============================================================================

// Tracker records session activity and whether history has unsaved
// changes. It is safe for concurrent use; the signal goroutine reads it
// while the loop writes it.
type Tracker struct {
	mu sync.Mutex

	id           string
	startTime    time.Time
	lastActivity time.Time

	autoSaveEnabled  bool
	autoSaveInterval time.Duration
	lastSave         time.Time
	dirty            bool
	turns            int

	onAutoSave func() error
}

// NewTracker creates a tracker. A non-positive interval uses
// DefaultAutoSaveInterval.
func NewTracker(autoSave bool, interval time.Duration) *Tracker {
	if interval <= 0 {
		interval = DefaultAutoSaveInterval
	}
	now := time.Now()
	return &Tracker{
		id:               uuid.NewString(),
		startTime:        now,
		lastActivity:     now,
		autoSaveEnabled:  autoSave,
		autoSaveInterval: interval,
		lastSave:         now,
	}
}

// ID returns the session ID used in log fields.
func (t *Tracker) ID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id
}

// RecordActivity updates the last activity timestamp.
func (t *Tracker) RecordActivity() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastActivity = time.Now()
}

// RecordTurn counts a completed exchange and marks history dirty.
func (t *Tracker) RecordTurn() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns++
	t.dirty = true
	t.lastActivity = time.Now()
}

// MarkDirty indicates history has unsaved changes.
func (t *Tracker) MarkDirty() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dirty = true
}

// MarkClean indicates history has been saved.
func (t *Tracker) MarkClean() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dirty = false
	t.lastSave = time.Now()
}

// IsDirty returns whether history has unsaved changes.
func (t *Tracker) IsDirty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dirty
}

// SetAutoSave enables or disables periodic saving.
func (t *Tracker) SetAutoSave(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.autoSaveEnabled = enabled
}

// SetAutoSaveCallback sets the function Check calls to save.
func (t *Tracker) SetAutoSaveCallback(fn func() error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onAutoSave = fn
}

// ShouldAutoSave returns true if a periodic save is due.
func (t *Tracker) ShouldAutoSave() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.autoSaveDue()
}

func (t *Tracker) autoSaveDue() bool {
	return t.autoSaveEnabled && t.dirty && time.Since(t.lastSave) >= t.autoSaveInterval
}

// Check runs the auto-save callback when a save is due. The callback runs
// outside the lock. A failed save leaves the tracker dirty and is returned.
func (t *Tracker) Check() error {
	t.mu.Lock()
	due := t.autoSaveDue()
	fn := t.onAutoSave
	t.mu.Unlock()

	if !due || fn == nil {
		return nil
	}
	if err := fn(); err != nil {
		return err
	}
	t.MarkClean()
	return nil
}

// =============================================================================
// STATUS
// =============================================================================

// Status is a snapshot of the tracker.
type Status struct {
	ID       string
	Started  time.Time
	Duration time.Duration
	IdleTime time.Duration
	Turns    int
	Dirty    bool
}

// Status returns the current snapshot.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	return Status{
		ID:       t.id,
		Started:  t.startTime,
		Duration: now.Sub(t.startTime),
		IdleTime: now.Sub(t.lastActivity),
		Turns:    t.turns,
		Dirty:    t.dirty,
	}
}

// FormatDuration returns a short human-readable duration ("45s", "3m 12s").
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d >= time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dm %ds", mins, secs)
}
