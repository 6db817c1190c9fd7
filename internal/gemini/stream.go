// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader parses a streamGenerateContent body. Each non-empty line is
// one JSON fragment, optionally prefixed with "data: " (server-sent events).
type StreamReader struct {
	reader *bufio.Reader
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	accumulator  strings.Builder
	chunks       int
	finishReason string
	blockReason  string
	usage        *UsageMetadata
}

// NewStreamReader creates a new stream reader from an io.Reader.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{reader: bufio.NewReader(r)}
}

// Process reads the stream and calls onChunk for each non-empty text
// fragment. It returns nil at a clean end of stream. A malformed fragment
// or a read failure returns an error; the text so far stays in Accumulated.
func (s *StreamReader) Process(ctx context.Context, onChunk func(string)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, readErr := s.reader.ReadBytes('\n')
		if len(line) > 0 {
			if err := s.handleLine(line, onChunk); err != nil {
				return err
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return readErr
		}
	}
}

func (s *StreamReader) handleLine(line []byte, onChunk func(string)) error {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	// SSE comments and non-data fields are ignored
	if line[0] == ':' || bytes.HasPrefix(line, []byte("event:")) || bytes.HasPrefix(line, []byte("id:")) {
		return nil
	}
	line = bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
	if len(line) == 0 || bytes.Equal(line, []byte("[DONE]")) {
		return nil
	}

	var fragment GenerateResponse
	if err := json.Unmarshal(line, &fragment); err != nil {
		return fmt.Errorf("malformed stream fragment: %w", err)
	}

	if fragment.PromptFeedback != nil && fragment.PromptFeedback.BlockReason != "" {
		s.blockReason = fragment.PromptFeedback.BlockReason
	}
	if fragment.UsageMetadata != nil {
		s.usage = fragment.UsageMetadata
	}
	if len(fragment.Candidates) == 0 {
		return nil
	}

	first := fragment.Candidates[0]
	if first.FinishReason != "" {
		s.finishReason = first.FinishReason
	}
	if text := first.Content.Text(); text != "" {
		s.accumulator.WriteString(text)
		s.chunks++
		if onChunk != nil {
			onChunk(text)
		}
	}
	return nil
}

// Accumulated returns all text received so far.
func (s *StreamReader) Accumulated() string {
	return s.accumulator.String()
}

// ChunkCount returns the number of text fragments received.
func (s *StreamReader) ChunkCount() int {
	return s.chunks
}

// Result converts a completed stream into a Response, or a RefusalError
// when the stream carried no text.
func (s *StreamReader) Result() (*Response, error) {
	if s.blockReason != "" && s.accumulator.Len() == 0 {
		return nil, &RefusalError{Reason: s.blockReason, Err: ErrSafetyBlocked}
	}
	if s.accumulator.Len() == 0 {
		return nil, emptyTextRefusal(s.finishReason)
	}
	out := &Response{Text: s.accumulator.String(), FinishReason: s.finishReason}
	if s.usage != nil {
		out.PromptTokens = s.usage.PromptTokenCount
		out.CandidateTokens = s.usage.CandidatesTokenCount
	}
	return out, nil
}

// =============================================================================
// STREAMING
// =============================================================================

// Stream performs a streamGenerateContent request. Opening the stream is
// retried like Send. Each attempt, body included, is bounded by Timeout;
// once the body is being read, failures are returned as a *StreamError
// carrying the partial text.
func (c *Client) Stream(ctx context.Context, req Request, onChunk func(string)) (*Response, error) {
	body, err := json.Marshal(BuildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	endpoint := c.endpoint(req.Params.Model, "streamGenerateContent") + "?alt=sse"

	var (
		resp      *http.Response
		streamCtx context.Context
		cancel    context.CancelFunc = func() {}
	)
	err = c.withRetry(ctx, "stream", func() error {
		attemptCtx, attemptCancel := context.WithTimeout(ctx, c.timeout)
		r, err := c.post(attemptCtx, c.streamClient, "stream", endpoint, body)
		if err != nil {
			attemptCancel()
			return err
		}
		if r.StatusCode < 200 || r.StatusCode > 299 {
			defer attemptCancel()
			defer r.Body.Close()
			data, readErr := readResponse(r)
			if readErr != nil {
				return &NetworkError{Op: "stream", StatusCode: r.StatusCode, Err: readErr}
			}
			return handleErrorResponse("stream", r, data)
		}
		resp, streamCtx, cancel = r, attemptCtx, attemptCancel
		return nil
	})
	defer cancel()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	reader := NewStreamReader(resp.Body)
	if err := reader.Process(streamCtx, onChunk); err != nil {
		// The parent context separates a user cancel from the attempt deadline
		switch {
		case errors.Is(ctx.Err(), context.Canceled):
			err = context.Canceled
		case errors.Is(streamCtx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
			err = ErrTimeout
		case errors.Is(err, context.Canceled):
			err = context.Canceled
		}
		return nil, &StreamError{Partial: reader.Accumulated(), Err: err}
	}
	return reader.Result()
}
