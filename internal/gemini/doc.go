// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gemini sends prompts to the Gemini generateContent API.
//
// Two transports implement Sender: Client speaks REST directly with
// retries, backoff and rate limiting, and SDKClient goes through the
// official Go SDK. Both map failures onto the same error taxonomy.
//
// # Key Types
//
//   - Sender: Send, Stream and Close over either transport
//   - Request: prompt, attachments, prior turns and generation Params
//   - Response: text of the first candidate plus token counts
//   - NetworkError: connection, timeout, 429 and 5xx failures (retried)
//   - APIError: non-retryable error replies such as a rejected key
//   - RefusalError: safety blocks and empty candidate lists
//   - StreamError: failure after streaming began, with the partial text
//
// # Usage
//
//	sender, err := gemini.New(settings)
//	resp, err := sender.Send(ctx, gemini.Request{
//	    Prompt: "hello",
//	    Params: gemini.ParamsFromSettings(settings),
//	})
//
// # Security
//
// The API key travels in the x-goog-api-key header, never in the URL,
// and is only ever logged as a SHA-256 fingerprint.
package gemini
