// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"
)

// =============================================================================
// SEGMENTS
// =============================================================================

// Kind distinguishes prose from fenced code.
type Kind int

const (
	// Prose is Markdown text outside any fence.
	Prose Kind = iota
	// Code is the body of a triple-backtick fence.
	Code
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Prose:
		return "prose"
	case Code:
		return "code"
	default:
		return "unknown"
	}
}

// Segment is one typed slice of a response.
type Segment struct {
	Kind Kind
	Lang string // Fence info string, Code only
	Text string

	// Unterminated marks a code segment whose closing fence never came.
	Unterminated bool
}

const fence = "```"

// Split divides text into prose and code segments. A line starting with
// three backticks toggles code state; the first word after an opening
// fence is the language tag. Whitespace-only prose between fences is dropped. If the
// text ends inside a fence, the buffered lines are still emitted as Code
// with Unterminated set.
func Split(text string) []Segment {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	var (
		segments []Segment
		buf      []string
		inCode   bool
		lang     string
	)

	flushProse := func() {
		joined := strings.Join(buf, "\n")
		if strings.TrimSpace(joined) != "" {
			segments = append(segments, Segment{Kind: Prose, Text: joined})
		}
		buf = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if !strings.HasPrefix(trimmed, fence) {
			buf = append(buf, line)
			continue
		}

		if inCode {
			segments = append(segments, Segment{Kind: Code, Lang: lang, Text: strings.Join(buf, "\n")})
			buf = nil
			lang = ""
			inCode = false
			continue
		}

		flushProse()
		lang = ""
		if info := strings.Fields(strings.TrimLeft(trimmed, "`")); len(info) > 0 {
			lang = info[0]
		}
		inCode = true
	}

	if inCode {
		segments = append(segments, Segment{Kind: Code, Lang: lang, Text: strings.Join(buf, "\n"), Unterminated: true})
	} else {
		flushProse()
	}

	return segments
}

// CodeBlocks returns only the code segments of text.
func CodeBlocks(text string) []Segment {
	var out []Segment
	for _, seg := range Split(text) {
		if seg.Kind == Code {
			out = append(out, seg)
		}
	}
	return out
}
