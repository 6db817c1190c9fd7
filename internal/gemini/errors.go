// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors. Use errors.Is against any error returned by a Sender.
var (
	// ErrSafetyBlocked means the provider refused to generate content.
	ErrSafetyBlocked = errors.New("response blocked by safety filters")

	// ErrEmptyResponse means no candidate text came back and nothing was blocked.
	ErrEmptyResponse = errors.New("empty response")

	// ErrTimeout means the request exceeded the configured timeout.
	ErrTimeout = errors.New("request timed out")

	// ErrRateLimited means the API returned 429.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnavailable means the API returned a 5xx status.
	ErrUnavailable = errors.New("service unavailable")

	// ErrAuthFailed means the API key was rejected (400 key errors, 401, 403).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrModelNotFound means the model name is unknown (404).
	ErrModelNotFound = errors.New("model not found")
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// NetworkError is a connection, timeout, rate-limit or server failure.
// These are retried per the client's policy before being returned.
type NetworkError struct {
	Op         string        // What was being done ("send", "stream")
	StatusCode int           // HTTP status, 0 for transport failures
	RetryAfter time.Duration // Server-suggested delay, if any
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// APIError is a non-retryable error reply or an undecodable body.
type APIError struct {
	StatusCode int
	Status     string // Provider status such as "INVALID_ARGUMENT"
	Message    string
	Err        error // Optional sentinel (ErrAuthFailed, ErrModelNotFound)
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		if e.Status != "" {
			return fmt.Sprintf("API error %d %s: %s", e.StatusCode, e.Status, msg)
		}
		return fmt.Sprintf("API error %d: %s", e.StatusCode, msg)
	}
	return "API error: " + msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// RefusalError reports a safety block or an empty candidate list.
// Refusals are never retried.
type RefusalError struct {
	Reason string
	Err    error // ErrSafetyBlocked or ErrEmptyResponse
}

func (e *RefusalError) Error() string {
	if errors.Is(e.Err, ErrSafetyBlocked) {
		return fmt.Sprintf("%v: %s", e.Err, e.Reason)
	}
	return e.Reason
}

func (e *RefusalError) Unwrap() error {
	return e.Err
}

// StreamError is a failure after streaming began. Partial holds the text
// received before the failure.
type StreamError struct {
	Partial string
	Err     error
}

func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream interrupted after %d chars: %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream interrupted: %v", e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// =============================================================================
// CLASSIFICATION HELPERS
// =============================================================================

// IsRefusal reports whether err is a safety block or empty response.
func IsRefusal(err error) bool {
	var re *RefusalError
	return errors.As(err, &re)
}

// IsNetwork reports whether err is a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsRetryable reports whether a whole request may be attempted again.
// Only network failures qualify, and never a cancellation.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ne *NetworkError
	return errors.As(err, &ne)
}

// PartialText returns the text carried by a StreamError, if any.
func PartialText(err error) string {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Partial
	}
	return ""
}

// statusError maps an HTTP status and body message to the taxonomy.
func statusError(op string, status int, apiStatus, message string, retryAfter time.Duration) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &NetworkError{Op: op, StatusCode: status, RetryAfter: retryAfter, Err: fmt.Errorf("%w: %s", ErrRateLimited, message)}
	case status >= 500:
		return &NetworkError{Op: op, StatusCode: status, RetryAfter: retryAfter, Err: fmt.Errorf("%w: %s", ErrUnavailable, message)}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &APIError{StatusCode: status, Status: apiStatus, Message: message, Err: ErrAuthFailed}
	case status == http.StatusNotFound:
		return &APIError{StatusCode: status, Status: apiStatus, Message: message, Err: ErrModelNotFound}
	case status == http.StatusBadRequest && apiStatus == "INVALID_ARGUMENT" && containsFold(message, "api key"):
		return &APIError{StatusCode: status, Status: apiStatus, Message: message, Err: ErrAuthFailed}
	default:
		return &APIError{StatusCode: status, Status: apiStatus, Message: message}
	}
}
