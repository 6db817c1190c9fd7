// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go/format"
	"os/exec"
	"strings"
	"time"
)

// ErrFormatterUnavailable means the external tool is not installed.
var ErrFormatterUnavailable = errors.New("formatter not available")

// DefaultFormatTimeout bounds an external formatter run.
const DefaultFormatTimeout = 5 * time.Second

// Formatter reformats source code for one language.
type Formatter interface {
	Format(lang, code string) (string, error)
}

// =============================================================================
// BUILT-IN FORMATTERS
// =============================================================================

// GoFormatter formats Go source with gofmt rules.
type GoFormatter struct{}

// Format implements Formatter.
func (GoFormatter) Format(_ string, code string) (string, error) {
	out, err := format.Source([]byte(code))
	if err != nil {
		return "", fmt.Errorf("gofmt: %w", err)
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// JSONFormatter re-indents JSON documents.
type JSONFormatter struct{}

// Format implements Formatter.
func (JSONFormatter) Format(_ string, code string) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(code), "", "  "); err != nil {
		return "", fmt.Errorf("json: %w", err)
	}
	return buf.String(), nil
}

// CommandFormatter pipes code through an external tool on stdin and reads
// the result from stdout.
type CommandFormatter struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// Format implements Formatter.
func (f CommandFormatter) Format(_ string, code string) (string, error) {
	path, err := exec.LookPath(f.Command)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrFormatterUnavailable, f.Command)
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultFormatTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, f.Args...)
	cmd.Stdin = strings.NewReader(code)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%s timed out after %v", f.Command, timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%s: %s", f.Command, msg)
	}
	return strings.TrimRight(stdout.String(), "\n"), nil
}

// =============================================================================
// FORMATTER SET
// =============================================================================

// FormatterSet picks a formatter by language tag or alias.
type FormatterSet struct {
	byLang map[string]Formatter
}

// NewFormatterSet creates an empty set.
func NewFormatterSet() *FormatterSet {
	return &FormatterSet{byLang: make(map[string]Formatter)}
}

// DefaultFormatters returns the built-in set: gofmt for Go, json.Indent
// for JSON, black for Python and rustfmt for Rust.
func DefaultFormatters() *FormatterSet {
	fs := NewFormatterSet()
	fs.Register(GoFormatter{}, "go", "golang")
	fs.Register(JSONFormatter{}, "json")
	fs.Register(CommandFormatter{Command: "black", Args: []string{"-q", "-"}}, "python", "py", "python3")
	fs.Register(CommandFormatter{Command: "rustfmt", Args: []string{"--emit", "stdout", "--quiet"}}, "rust", "rs")
	return fs
}

// Register binds f to each alias. Later registrations win.
func (fs *FormatterSet) Register(f Formatter, aliases ...string) {
	for _, a := range aliases {
		fs.byLang[strings.ToLower(a)] = f
	}
}

// Lookup returns the formatter for lang, if any.
func (fs *FormatterSet) Lookup(lang string) (Formatter, bool) {
	if fs == nil {
		return nil, false
	}
	f, ok := fs.byLang[strings.ToLower(strings.TrimSpace(lang))]
	return f, ok
}

// Format formats code for lang. A language with no formatter returns the
// code unchanged and a nil error.
func (fs *FormatterSet) Format(lang, code string) (string, error) {
	f, ok := fs.Lookup(lang)
	if !ok {
		return code, nil
	}
	return f.Format(lang, code)
}
