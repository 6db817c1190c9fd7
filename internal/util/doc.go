// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across gemchat.
//
// # Key Functions
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync
//   - BackupFile: Move an unreadable file aside before starting fresh
//   - ExpandHome: Resolve "~" in user-supplied paths
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth, Preview: Terminal-width aware truncation
//   - NormalizeText: NFC normalization for user prompts
//
// # Usage
//
//	err := util.AtomicWriteFile(path, data, 0600)
//	line := util.Preview(entry.Content, 60)
package util
