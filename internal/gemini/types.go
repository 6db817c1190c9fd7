// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"strings"

	"github.com/jeranaias/gemchat/internal/attach"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// Roles used in Content.Role.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Blob is base64-encoded inline data.
type Blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Part is one element of a Content: either text or inline data.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// Content is one conversation turn.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// GenerationConfig carries sampling parameters. Zero values are meaningful
// (temperature 0 is deterministic) so nothing is omitted.
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// SafetySetting sets the block threshold for one harm category.
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// GenerateRequest is the generateContent request body.
type GenerateRequest struct {
	Contents          []Content        `json:"contents"`
	SystemInstruction *Content         `json:"systemInstruction,omitempty"`
	GenerationConfig  GenerationConfig `json:"generationConfig"`
	SafetySettings    []SafetySetting  `json:"safetySettings,omitempty"`
}

// Candidate is one proposed completion. Only the first is used.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// PromptFeedback is present when the prompt itself was blocked.
type PromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

// UsageMetadata reports token counts.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// GenerateResponse is the generateContent response body, and also the
// shape of each streamed fragment.
type GenerateResponse struct {
	Candidates     []Candidate     `json:"candidates"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
	UsageMetadata  *UsageMetadata  `json:"usageMetadata,omitempty"`
}

// apiErrorResponse is the body of a non-2xx reply.
type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// HarmCategories are the categories a safety threshold is applied to.
var HarmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// safetyFinishReasons are finish reasons that mean the output was withheld.
var safetyFinishReasons = map[string]bool{
	"SAFETY":             true,
	"BLOCKLIST":          true,
	"PROHIBITED_CONTENT": true,
	"SPII":               true,
	"RECITATION":         true,
}

// =============================================================================
// CLIENT-FACING TYPES
// =============================================================================

// Params are the per-request generation settings.
type Params struct {
	Model           string
	Temperature     float64
	TopP            float64
	MaxOutputTokens int
	SafetyThreshold string // Empty omits safetySettings
}

// Request is one prompt plus everything sent alongside it.
type Request struct {
	Prompt       string
	Attachments  []attach.FileAttachment
	History      []Content // Prior turns, oldest first
	SystemPrompt string
	Params       Params
}

// Response is the text of the first candidate.
type Response struct {
	Text            string
	FinishReason    string
	PromptTokens    int
	CandidateTokens int
}

// Truncated reports whether generation stopped at the output token limit.
func (r *Response) Truncated() bool {
	return r != nil && r.FinishReason == "MAX_TOKENS"
}

// =============================================================================
// REQUEST BUILDING
// =============================================================================

// BuildRequest converts a Request into the wire body. The new prompt is the
// last user turn: its text part comes first, followed by one inline data
// part per attachment.
func BuildRequest(req Request) GenerateRequest {
	contents := make([]Content, 0, len(req.History)+1)
	contents = append(contents, req.History...)

	parts := make([]Part, 0, 1+len(req.Attachments))
	if req.Prompt != "" {
		parts = append(parts, Part{Text: req.Prompt})
	}
	for _, a := range req.Attachments {
		parts = append(parts, Part{InlineData: &Blob{MimeType: a.MimeType, Data: a.Base64()}})
	}
	contents = append(contents, Content{Role: RoleUser, Parts: parts})

	body := GenerateRequest{
		Contents: contents,
		GenerationConfig: GenerationConfig{
			Temperature:     req.Params.Temperature,
			TopP:            req.Params.TopP,
			MaxOutputTokens: req.Params.MaxOutputTokens,
		},
	}

	if strings.TrimSpace(req.SystemPrompt) != "" {
		body.SystemInstruction = &Content{Parts: []Part{{Text: req.SystemPrompt}}}
	}

	if req.Params.SafetyThreshold != "" {
		for _, category := range HarmCategories {
			body.SafetySettings = append(body.SafetySettings, SafetySetting{
				Category:  category,
				Threshold: req.Params.SafetyThreshold,
			})
		}
	}

	return body
}

// Text concatenates the text parts of a content.
func (c Content) Text() string {
	var sb strings.Builder
	for _, p := range c.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// extractResponse returns the first candidate's text, or a RefusalError
// when the prompt was blocked or nothing usable came back.
func extractResponse(resp *GenerateResponse) (*Response, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, &RefusalError{Reason: resp.PromptFeedback.BlockReason, Err: ErrSafetyBlocked}
	}
	if len(resp.Candidates) == 0 {
		return nil, &RefusalError{Reason: "no candidates returned", Err: ErrEmptyResponse}
	}

	first := resp.Candidates[0]
	out := &Response{
		Text:         first.Content.Text(),
		FinishReason: first.FinishReason,
	}
	if resp.UsageMetadata != nil {
		out.PromptTokens = resp.UsageMetadata.PromptTokenCount
		out.CandidateTokens = resp.UsageMetadata.CandidatesTokenCount
	}

	if out.Text == "" {
		return nil, emptyTextRefusal(first.FinishReason)
	}
	return out, nil
}

// emptyTextRefusal distinguishes a safety stop from a plain empty reply.
func emptyTextRefusal(finishReason string) error {
	if safetyFinishReasons[finishReason] {
		return &RefusalError{Reason: finishReason, Err: ErrSafetyBlocked}
	}
	reason := "empty response"
	if finishReason != "" {
		reason = "empty response (finish reason " + finishReason + ")"
	}
	return &RefusalError{Reason: reason, Err: ErrEmptyResponse}
}
