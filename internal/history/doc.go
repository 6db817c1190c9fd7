// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history keeps the conversation log and persists it.
//
// # Key Types
//
//   - Entry: one user or assistant turn with optional attachment refs
//   - Log: the in-memory session history, capped at a maximum length
//   - Store: Load/Save persistence, implemented by JSONStore and SQLiteStore
//   - PersistenceError: read or write failure, possibly recovered
//
// Truncation is always FIFO: the oldest entries go first and the order of
// the survivors is kept.
//
// # Usage
//
//	store, err := history.Open("~/.gemchat/history.json", 100)
//	entries, err := store.Load()
//	log := history.NewLog(100)
//	log.Replace(entries)
//	log.Append(history.RoleUser, "hello", nil)
//	err = store.Save(log.Entries())
package history
