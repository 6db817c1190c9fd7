// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/jeranaias/gemchat/internal/logging"
)

// =============================================================================
// SDK TRANSPORT
// =============================================================================

// SDKClient sends requests through the official Go SDK instead of raw HTTP.
// Errors are mapped onto the same taxonomy as Client, and requests share
// its timeout, backoff and rate limit. Retries cover only the blocking call.
type SDKClient struct {
	apiKey         string
	maxRetries     int
	retryBaseDelay time.Duration
	timeout        time.Duration
	limiter        *rate.Limiter

	mu     sync.Mutex
	client *genai.Client
	opts   []option.ClientOption
}

// NewSDKClient creates an SDK-backed sender from the same config as
// NewClient; BaseURL and HTTPClient are ignored. The underlying client is
// created lazily on first use.
func NewSDKClient(cfg *ClientConfig, opts ...option.ClientOption) *SDKClient {
	r := resolveConfig(cfg)
	return &SDKClient{
		apiKey:         r.APIKey,
		maxRetries:     r.MaxRetries,
		retryBaseDelay: r.RetryBaseDelay,
		timeout:        r.Timeout,
		limiter:        newLimiter(r.RequestsPerMinute),
		opts:           opts,
	}
}

func (c *SDKClient) ensureClient(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	opts := append([]option.ClientOption{option.WithAPIKey(c.apiKey)}, c.opts...)
	// The client outlives the request that created it
	client, err := genai.NewClient(context.WithoutCancel(ctx), opts...)
	if err != nil {
		return nil, &NetworkError{Op: "connect", Err: fmt.Errorf("failed to create Gemini client: %w", err)}
	}
	c.client = client
	return client, nil
}

// Close implements Sender.
func (c *SDKClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// session prepares a chat session primed with the request history.
func (c *SDKClient) session(ctx context.Context, req Request) (*genai.ChatSession, []genai.Part, error) {
	client, err := c.ensureClient(ctx)
	if err != nil {
		return nil, nil, err
	}

	model := client.GenerativeModel(req.Params.Model)
	model.SetTemperature(float32(req.Params.Temperature))
	model.SetTopP(float32(req.Params.TopP))
	model.SetMaxOutputTokens(int32(req.Params.MaxOutputTokens))

	if strings.TrimSpace(req.SystemPrompt) != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemPrompt)}}
	}
	if threshold, ok := sdkThresholds[req.Params.SafetyThreshold]; ok {
		for _, category := range sdkCategories {
			model.SafetySettings = append(model.SafetySettings, &genai.SafetySetting{
				Category:  category,
				Threshold: threshold,
			})
		}
	}

	cs := model.StartChat()
	cs.History = make([]*genai.Content, 0, len(req.History))
	for _, turn := range req.History {
		cs.History = append(cs.History, toSDKContent(turn))
	}

	parts := make([]genai.Part, 0, 1+len(req.Attachments))
	if req.Prompt != "" {
		parts = append(parts, genai.Text(req.Prompt))
	}
	for _, a := range req.Attachments {
		parts = append(parts, genai.Blob{MIMEType: a.MimeType, Data: a.Data})
	}
	return cs, parts, nil
}

// Send implements Sender.
func (c *SDKClient) Send(ctx context.Context, req Request) (*Response, error) {
	policy := retryPolicy{
		op:        "send",
		key:       keyFingerprint(c.apiKey),
		retries:   c.maxRetries,
		baseDelay: c.retryBaseDelay,
		limiter:   c.limiter,
	}

	var result *Response
	err := retry(ctx, policy, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		cs, parts, err := c.session(attemptCtx, req)
		if err != nil {
			return err
		}
		resp, err := cs.SendMessage(attemptCtx, parts...)
		if err != nil {
			mapped := mapSDKError(attemptCtx, "send", err)
			logging.L().WithField("op", "send").WithError(mapped).Debug("sdk request failed")
			return mapped
		}
		result, err = fromSDKResponse(resp)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Stream implements Sender. The whole stream is bounded by the timeout.
func (c *SDKClient) Stream(ctx context.Context, req Request, onChunk func(string)) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &NetworkError{Op: "stream", Err: err}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cs, parts, err := c.session(ctx, req)
	if err != nil {
		return nil, err
	}

	iter := cs.SendMessageStream(ctx, parts...)
	var sb strings.Builder
	out := &Response{}
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			mapped := mapSDKError(ctx, "stream", err)
			if sb.Len() == 0 && (IsRefusal(mapped) || !IsNetwork(mapped)) {
				return nil, mapped
			}
			return nil, &StreamError{Partial: sb.String(), Err: mapped}
		}

		text := sdkText(resp)
		if text != "" {
			sb.WriteString(text)
			if onChunk != nil {
				onChunk(text)
			}
		}
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			out.FinishReason = sdkFinishReason(resp.Candidates[0].FinishReason)
		}
		if resp.UsageMetadata != nil {
			out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
			out.CandidateTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}
	}

	if sb.Len() == 0 {
		return nil, &RefusalError{Reason: "empty response", Err: ErrEmptyResponse}
	}
	out.Text = sb.String()
	return out, nil
}

// =============================================================================
// CONVERSION
// =============================================================================

var sdkCategories = []genai.HarmCategory{
	genai.HarmCategoryHarassment,
	genai.HarmCategoryHateSpeech,
	genai.HarmCategorySexuallyExplicit,
	genai.HarmCategoryDangerousContent,
}

var sdkThresholds = map[string]genai.HarmBlockThreshold{
	"BLOCK_NONE":             genai.HarmBlockNone,
	"BLOCK_ONLY_HIGH":        genai.HarmBlockOnlyHigh,
	"BLOCK_MEDIUM_AND_ABOVE": genai.HarmBlockMediumAndAbove,
	"BLOCK_LOW_AND_ABOVE":    genai.HarmBlockLowAndAbove,
}

// sdkFinishReason maps SDK finish reasons to the REST names.
func sdkFinishReason(fr genai.FinishReason) string {
	switch fr {
	case genai.FinishReasonStop:
		return "STOP"
	case genai.FinishReasonMaxTokens:
		return "MAX_TOKENS"
	case genai.FinishReasonSafety:
		return "SAFETY"
	case genai.FinishReasonRecitation:
		return "RECITATION"
	default:
		return "OTHER"
	}
}

func toSDKContent(c Content) *genai.Content {
	out := &genai.Content{Role: c.Role}
	for _, p := range c.Parts {
		if p.InlineData != nil {
			continue
		}
		out.Parts = append(out.Parts, genai.Text(p.Text))
	}
	return out
}

func sdkText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}

func fromSDKResponse(resp *genai.GenerateContentResponse) (*Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, &RefusalError{Reason: "no candidates returned", Err: ErrEmptyResponse}
	}
	out := &Response{Text: sdkText(resp)}
	if fr := resp.Candidates[0].FinishReason; fr != genai.FinishReasonUnspecified {
		out.FinishReason = sdkFinishReason(fr)
	}
	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.CandidateTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	if out.Text == "" {
		return nil, &RefusalError{Reason: "empty response", Err: ErrEmptyResponse}
	}
	return out, nil
}

// mapSDKError converts SDK errors onto the package taxonomy.
func mapSDKError(ctx context.Context, op string, err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return &RefusalError{Reason: blocked.Error(), Err: ErrSafetyBlocked}
	}
	if ctx.Err() != nil {
		return transportError(ctx, op, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return statusError(op, gerr.Code, "", gerr.Message, 0)
	}
	return &NetworkError{Op: op, Err: err}
}
