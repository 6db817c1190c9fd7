// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the two run modes of gemchat.
//
// With a prompt (as arguments or on stdin) gemchat sends one request, prints
// the raw response to stdout and exits. Without one, on a terminal, it starts
// the interactive chat loop with history, slash commands and streaming.
//
// # Key Types
//
//   - Args: Parsed command-line flags and the positional prompt
//   - ArgParser: Flag scanner with aliases, boolean and repeated flags
//   - Env: Standard streams and terminal detection for one run
//   - ChatInput: Line editor with persistent input history and completion
//   - Spinner: Waiting indicator written to stderr
//   - AskResult: JSON output for --json
//
// # Usage
//
//	args, err := cli.Parse(os.Args[1:])
//	if err != nil {
//	    fmt.Fprintln(os.Stderr, err)
//	    os.Exit(cli.ExitFailure)
//	}
//	os.Exit(cli.Run(ctx, args, cli.SystemEnv()))
//
// Every failure exits with status 1. Errors go to stderr with a short hint;
// with --json the failure is reported as a JSON object on stdout instead.
package cli
