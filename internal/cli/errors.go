// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error display and exit codes for gemchat.
//
// STANDARDIZED PATTERN:
//   - Handlers return errors; Run decides how to display them
//   - Every failure exits with ExitFailure so scripts only test for zero

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/jeranaias/gemchat/internal/attach"
	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/gemini"
	"github.com/jeranaias/gemchat/internal/ui/styles"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitFailure indicates any failure: usage, config, file, network,
	// refusal or stream errors
	ExitFailure = 1
)

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	return ExitFailure
}

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError reports invalid command-line usage.
type UsageError struct {
	Reason string
}

func (e *UsageError) Error() string {
	return e.Reason
}

// ErrNoPrompt is returned in non-interactive mode when neither arguments
// nor stdin supplied a prompt.
var ErrNoPrompt = &UsageError{Reason: "no prompt given: pass it as arguments or pipe it on stdin"}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// Hint returns a short suggestion for fixing err, or "".
func Hint(err error) string {
	var ferr *attach.FileError
	switch {
	case errors.Is(err, config.ErrMissingAPIKey):
		return "export " + config.EnvAPIKey + "=<your key> or add it to " + filepath.Join(config.Dir(), ".env")
	case errors.Is(err, gemini.ErrAuthFailed):
		return "check that " + config.EnvAPIKey + " holds a valid key"
	case errors.Is(err, gemini.ErrModelNotFound):
		return "pick another model with --model or /model"
	case errors.Is(err, gemini.ErrRateLimited):
		return "wait a moment, or lower requests_per_minute"
	case errors.Is(err, gemini.ErrSafetyBlocked):
		return "rephrase the prompt or change safety_threshold"
	case errors.As(err, &ferr) && errors.Is(err, attach.ErrUnsupportedType):
		return "supported types: images, PDF, text, audio and MP4 video"
	case errors.As(err, &ferr) && errors.Is(err, attach.ErrTooLarge):
		return "raise max_attachment_bytes or attach a smaller file"
	case errors.Is(err, context.Canceled):
		return ""
	}
	var usage *UsageError
	if errors.As(err, &usage) {
		return "run gemchat --help for usage"
	}
	return ""
}

// DisplayError writes err and its hint, if any, in a consistent format.
func DisplayError(w io.Writer, theme styles.Theme, err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(w, theme.StatusError(err.Error()))
	if hint := Hint(err); hint != "" {
		fmt.Fprintln(w, theme.Muted.Render("  "+hint))
	}
}

// =============================================================================
// JSON RESULT
// =============================================================================

// AskResult is the --json output of a non-interactive run.
type AskResult struct {
	Success  bool   `json:"success"`
	Model    string `json:"model"`
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// NewAskResult builds the result for a finished request. A stream that
// failed part way keeps its partial text in Response.
func NewAskResult(model string, resp *gemini.Response, err error) AskResult {
	r := AskResult{Success: err == nil, Model: model}
	if resp != nil {
		r.Response = resp.Text
	}
	if err != nil {
		r.Error = err.Error()
		if partial := gemini.PartialText(err); partial != "" {
			r.Response = partial
		}
	}
	return r
}

// Write encodes the result as indented JSON.
func (r AskResult) Write(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}
