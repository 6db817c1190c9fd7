// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render turns model replies into terminal output.
//
// Split cuts a reply into prose and fenced-code segments. Prose is rendered
// with glamour and code with chroma inside a lipgloss frame. An optional
// format pass runs code through a language formatter first; a formatter
// failure is logged and the raw code is shown.
//
// # Key Types
//
//   - Segment: one prose or code slice of a reply
//   - Renderer: theme-aware renderer with a Plain mode for pipes
//   - Formatter: per-language code formatter (gofmt, black, rustfmt)
//   - FormatterSet: formatter lookup by language alias
//
// # Usage
//
//	r := render.New("dark", width, true, !stdoutIsTTY)
//	fmt.Println(r.Render(resp.Text))
package render
