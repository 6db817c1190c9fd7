// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds the mutable state of one chat run.
//
// A Session is created once and passed explicitly to every command
// handler and to the interactive loop. It owns the settings, the
// in-memory history and its store, pending attachments, the paste buffer
// and the lazily created API client.
//
// Submit is the only path that talks to the API. It appends to history
// only after a successful reply, so a failed request never leaves a
// half-recorded turn behind.
//
// # Key Types
//
//   - Session: Settings, history, attachments and client for one run
//   - Tracker: Turn count and unsaved-history state for auto-save
//
// # Usage
//
//	sess, err := session.New(session.Options{Settings: settings})
//	resp, err := sess.Submit(ctx, "hello")
//	if err := sess.Tracker.Check(); err != nil {
//	    // periodic auto-save failed
//	}
package session
