// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands provides the slash command system for the chat loop.
//
// Commands start with "/" and act on a session.Session: they inspect or
// change settings, manage history and queue attachments. The command set is
// fixed at build time.
//
// # Key Types
//
//   - Registry: Command table with alias lookup and suggestions
//   - Command: One command with usage, arity and handler
//   - Context: What a handler may act on
//   - UnknownCommandError: Unrecognized name plus the closest match
//
// # Built-in Commands
//
//   - /help, /exit
//   - /history, /clear, /save, /load
//   - /system, /model, /temperature, /top-p, /max-tokens
//   - /upload, /detach, /paste
//   - /theme, /format, /stream, /config
//
// # Usage
//
// Dispatch a line typed at the prompt:
//
//	reg := commands.NewRegistry()
//	if commands.IsCommand(line) {
//	    if err := reg.Dispatch(sess, os.Stdout, line); err != nil {
//	        // print err as a warning
//	    }
//	}
//
// Get completions:
//
//	reg.Complete("/mo")
//	// Returns ["/model"]
package commands
