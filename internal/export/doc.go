// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a chat session's history to a shareable file.
//
// # Key Types
//
//   - Conversation: History entries plus model and system prompt
//   - Exporter: Format interface (Markdown, JSON)
//   - Options: Output directory and metadata switches
//
// # Usage
//
//	conv := export.NewConversation(settings.ModelName, settings.SystemPrompt, log.Entries())
//	exp, err := export.ForFormat("md", nil)
//	path, err := export.ToFile(conv, exp, &export.Options{OutputDir: "."})
package export
