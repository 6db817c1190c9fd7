// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/gemchat/internal/attach"
	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/gemini"
	"github.com/jeranaias/gemchat/internal/history"
	"github.com/jeranaias/gemchat/internal/logging"
	"github.com/jeranaias/gemchat/internal/render"
	"github.com/jeranaias/gemchat/internal/util"
)

// ErrEmptyPrompt is returned by Submit when there is nothing to send.
var ErrEmptyPrompt = errors.New("empty prompt")

// ErrBusy is returned by Submit while another request is in flight.
var ErrBusy = errors.New("a request is already in flight")

// PastePrompt is shown while collecting paste-mode lines.
const PastePrompt = "... "

// =============================================================================
// STATE
// =============================================================================

// State is the input state of the interactive loop.
type State int

const (
	// StateNormal reads commands and prompts.
	StateNormal State = iota
	// StatePasting buffers lines verbatim until /end.
	StatePasting
	// StateAwaitingResponse means a request is in flight.
	StateAwaitingResponse
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StatePasting:
		return "pasting"
	case StateAwaitingResponse:
		return "awaiting-response"
	default:
		return "unknown"
	}
}

// =============================================================================
// SESSION
// =============================================================================

// SenderFactory builds a transport from settings.
type SenderFactory func(*config.Settings) (gemini.Sender, error)

// Session is the single mutable context of a chat run. Every command and
// the loop itself act on it; nothing is held in package globals.
type Session struct {
	Settings *config.Settings
	History  *history.Log
	Store    history.Store
	Pending  []attach.FileAttachment
	State    State
	PasteBuf []string

	// Client is created on first Submit.
	Client   gemini.Sender
	Renderer *render.Renderer

	Out io.Writer
	Err io.Writer

	// ConfigPath is where /config save writes.
	ConfigPath string

	// Width is the output width for rendering.
	Width int

	// StyledOutput enables glamour and chroma; false renders plain text.
	StyledOutput bool

	// OnChunk receives streamed text as it arrives. Nil discards it.
	OnChunk func(string)

	ExitRequested bool

	// Tracker records turns and unsaved history for auto-save.
	Tracker *Tracker

	newSender SenderFactory
}

// Options configures New.
type Options struct {
	Settings     *config.Settings
	Store        history.Store // Nil opens Settings.HistoryPath
	ConfigPath   string
	Out          io.Writer
	Err          io.Writer
	Width        int
	StyledOutput bool
	NewSender    SenderFactory // Nil uses gemini.New
}

// New creates a session. History is not loaded; call LoadHistory.
func New(opts Options) (*Session, error) {
	if opts.Settings == nil {
		opts.Settings = config.Default()
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	if opts.NewSender == nil {
		opts.NewSender = gemini.New
	}

	s := &Session{
		Settings:     opts.Settings,
		History:      history.NewLog(opts.Settings.MaxHistoryEntries),
		Store:        opts.Store,
		Out:          opts.Out,
		Err:          opts.Err,
		ConfigPath:   opts.ConfigPath,
		Width:        opts.Width,
		StyledOutput: opts.StyledOutput,
		newSender:    opts.NewSender,
		Tracker:      NewTracker(opts.Settings.AutoSave, DefaultAutoSaveInterval),
	}
	s.Tracker.SetAutoSaveCallback(func() error {
		_, err := s.SaveHistory("")
		return err
	})

	if s.Store == nil {
		store, err := history.Open(opts.Settings.HistoryPath, opts.Settings.MaxHistoryEntries)
		if err != nil {
			return nil, err
		}
		s.Store = store
	}

	s.RebuildRenderer()
	return s, nil
}

// RebuildRenderer recreates the renderer from the current theme, width and
// format settings.
func (s *Session) RebuildRenderer() {
	s.Renderer = render.New(s.Settings.Theme, s.Width, s.Settings.FormatCode, !s.StyledOutput)
}

// Close releases the client and the history store.
func (s *Session) Close() error {
	var firstErr error
	if s.Client != nil {
		if err := s.Client.Close(); err != nil {
			firstErr = err
		}
		s.Client = nil
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit sends prompt with any pending attachments. On success the user
// and assistant turns are appended to History and the pending attachments
// are cleared. On any failure History is left untouched and the pending
// attachments stay queued for a retry.
func (s *Session) Submit(ctx context.Context, prompt string) (*gemini.Response, error) {
	if s.State == StateAwaitingResponse {
		return nil, ErrBusy
	}

	prompt = strings.TrimSpace(util.NormalizeText(prompt))
	if prompt == "" && len(s.Pending) == 0 {
		return nil, ErrEmptyPrompt
	}

	if err := s.Settings.RequireAPIKey(); err != nil {
		return nil, err
	}
	client, err := s.client()
	if err != nil {
		return nil, err
	}

	req := s.BuildRequest(prompt)

	prev := s.State
	s.State = StateAwaitingResponse
	defer func() { s.State = prev }()

	log := logging.L().WithFields(logrus.Fields{
		"model":       req.Params.Model,
		"history":     len(req.History),
		"attachments": len(req.Attachments),
		"stream":      s.Settings.Stream,
	})
	log.Debug("submitting prompt")

	start := time.Now()
	var resp *gemini.Response
	if s.Settings.Stream {
		resp, err = client.Stream(ctx, req, s.OnChunk)
	} else {
		resp, err = client.Send(ctx, req)
	}
	if err != nil {
		log.WithError(err).Warn("request failed")
		return nil, err
	}
	log.WithField("duration", time.Since(start).Round(time.Millisecond)).Debug("response received")

	s.History.Append(history.RoleUser, prompt, s.pendingRefs())
	s.History.Append(history.RoleAssistant, resp.Text, nil)
	s.Pending = nil
	s.Tracker.RecordTurn()
	return resp, nil
}

// BuildRequest assembles the request Submit would send for prompt.
func (s *Session) BuildRequest(prompt string) gemini.Request {
	req := gemini.Request{
		Prompt:       prompt,
		Attachments:  s.Pending,
		SystemPrompt: s.Settings.SystemPrompt,
		Params:       gemini.ParamsFromSettings(s.Settings),
	}
	if s.Settings.SendHistory {
		req.History = Contents(s.History.Entries())
	}
	return req
}

// Contents converts history entries to API turns.
func Contents(entries []history.Entry) []gemini.Content {
	out := make([]gemini.Content, 0, len(entries))
	for _, e := range entries {
		role := gemini.RoleUser
		if e.Role == history.RoleAssistant {
			role = gemini.RoleModel
		}
		text := e.Content
		if text == "" && len(e.Attachments) > 0 {
			names := make([]string, len(e.Attachments))
			for i, a := range e.Attachments {
				names[i] = a.FileName
			}
			text = "[attached: " + strings.Join(names, ", ") + "]"
		}
		if text == "" {
			continue
		}
		out = append(out, gemini.Content{Role: role, Parts: []gemini.Part{{Text: text}}})
	}
	return out
}

func (s *Session) client() (gemini.Sender, error) {
	if s.Client != nil {
		return s.Client, nil
	}
	c, err := s.newSender(s.Settings)
	if err != nil {
		return nil, err
	}
	s.Client = c
	return c, nil
}

func (s *Session) pendingRefs() []history.AttachmentRef {
	if len(s.Pending) == 0 {
		return nil
	}
	refs := make([]history.AttachmentRef, len(s.Pending))
	for i, a := range s.Pending {
		refs[i] = history.AttachmentRef{FileName: a.FileName, MimeType: a.MimeType, Size: a.Size}
	}
	return refs
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// Attach validates path and queues it for the next prompt. A rejected file
// returns a *attach.FileError and nothing is queued.
func (s *Session) Attach(path string) (attach.FileAttachment, error) {
	a, err := attach.Load(util.ExpandHome(path), s.Settings.MaxAttachmentBytes)
	if err != nil {
		return attach.FileAttachment{}, err
	}
	s.Pending = append(s.Pending, a)
	return a, nil
}

// Detach drops every pending attachment and returns how many there were.
func (s *Session) Detach() int {
	n := len(s.Pending)
	s.Pending = nil
	return n
}

// =============================================================================
// PASTE MODE
// =============================================================================

// BeginPaste enters paste mode.
func (s *Session) BeginPaste() {
	s.State = StatePasting
	s.PasteBuf = nil
}

// AddPasteLine buffers one line verbatim.
func (s *Session) AddPasteLine(line string) {
	s.PasteBuf = append(s.PasteBuf, line)
}

// EndPaste leaves paste mode and returns the joined buffer.
func (s *Session) EndPaste() string {
	text := strings.Join(s.PasteBuf, "\n")
	s.PasteBuf = nil
	s.State = StateNormal
	return text
}

// CancelPaste leaves paste mode and discards the buffer.
func (s *Session) CancelPaste() {
	s.PasteBuf = nil
	s.State = StateNormal
}

// Prompt returns the input prompt for the current state.
func (s *Session) Prompt() string {
	if s.State == StatePasting {
		return PastePrompt
	}
	return s.Settings.Prompt
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// SaveHistory writes the history to path, or to the session store when
// path is empty.
func (s *Session) SaveHistory(path string) (string, error) {
	store, done, err := s.storeFor(path)
	if err != nil {
		return "", err
	}
	defer done()
	if err := store.Save(s.History.Entries()); err != nil {
		return store.Path(), err
	}
	if path == "" {
		s.Tracker.MarkClean()
	}
	return store.Path(), nil
}

// LoadHistory replaces the in-memory history with the contents of path,
// or of the session store when path is empty. A recovered
// PersistenceError is returned alongside a successful (empty) load.
func (s *Session) LoadHistory(path string) (int, error) {
	store, done, err := s.storeFor(path)
	if err != nil {
		return 0, err
	}
	defer done()

	entries, err := store.Load()
	var perr *history.PersistenceError
	if err != nil && !(errors.As(err, &perr) && perr.Recovered) {
		return 0, err
	}
	s.History.Replace(entries)
	if path == "" {
		s.Tracker.MarkClean()
	} else {
		s.Tracker.MarkDirty()
	}
	return s.History.Len(), err
}

func (s *Session) storeFor(path string) (history.Store, func(), error) {
	if path == "" {
		if s.Store == nil {
			return nil, nil, fmt.Errorf("no history store configured")
		}
		return s.Store, func() {}, nil
	}
	store, err := history.Open(path, s.Settings.MaxHistoryEntries)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { store.Close() }, nil
}

// =============================================================================
// SETTINGS
// =============================================================================

// ApplySettings swaps in new settings. The client is dropped when a
// transport setting changed, the renderer is rebuilt when presentation
// changed, and the history store is reopened when its path changed. The
// store always takes the new entry limit.
func (s *Session) ApplySettings(next *config.Settings) error {
	old := s.Settings
	s.Settings = next

	if old.Transport != next.Transport || old.TimeoutSeconds != next.TimeoutSeconds ||
		old.APIKey != next.APIKey || old.BaseURL != next.BaseURL ||
		old.MaxRetries != next.MaxRetries || old.RequestsPerMinute != next.RequestsPerMinute {
		s.ResetClient()
	}

	if old.Theme != next.Theme || old.FormatCode != next.FormatCode {
		s.RebuildRenderer()
	}

	s.History.SetMax(next.MaxHistoryEntries)
	s.Tracker.SetAutoSave(next.AutoSave)

	if old.HistoryPath != next.HistoryPath {
		store, err := history.Open(next.HistoryPath, next.MaxHistoryEntries)
		if err != nil {
			return err
		}
		if s.Store != nil {
			s.Store.Close()
		}
		s.Store = store
	}
	if s.Store != nil {
		s.Store.SetMax(next.MaxHistoryEntries)
	}
	return nil
}

// ResetClient closes the client so the next Submit creates a new one.
func (s *Session) ResetClient() {
	if s.Client != nil {
		s.Client.Close()
		s.Client = nil
	}
}

// SaveSettings writes the settings file.
func (s *Session) SaveSettings() (string, error) {
	path := s.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}
	return path, s.Settings.Save(path)
}
