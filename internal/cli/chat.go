// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat loop for gemchat.
//
// USABILITY: Markdown rendering and history for better CLI experience
//
// Input states:
//   Normal            /commands are dispatched, other lines are prompts
//   Pasting           lines are buffered verbatim until /end or Ctrl-D
//   AwaitingResponse  input is not read; Ctrl-C cancels the request
//
// Keys:
//   Ctrl+C              Cancel the request, cancel paste, or exit
//   Ctrl+D              Submit paste buffer, or exit
//   Up/Down             Input history

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/peterh/liner"
	"github.com/sirupsen/logrus"

	"github.com/jeranaias/gemchat/internal/commands"
	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/gemini"
	"github.com/jeranaias/gemchat/internal/history"
	"github.com/jeranaias/gemchat/internal/logging"
	"github.com/jeranaias/gemchat/internal/session"
	"github.com/jeranaias/gemchat/internal/ui/styles"
)

// InputHistoryFile is the liner history file inside the config directory.
const InputHistoryFile = "input_history"

// =============================================================================
// INPUT
// =============================================================================

// LineReader reads prompted lines. ReadLine returns liner.ErrPromptAborted
// on Ctrl-C and io.EOF on Ctrl-D.
type LineReader interface {
	ReadLine(prompt string) (string, error)
	Remember(line string)
	Close() error
}

// ChatInput provides line editing and persistent input history.
// USABILITY: Supports arrow keys for history navigation and line editing.
type ChatInput struct {
	line        *liner.State
	historyFile string
}

// NewChatInput creates the line editor and loads saved input history.
func NewChatInput(historyFile string, complete liner.Completer) *ChatInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	if complete != nil {
		line.SetCompleter(complete)
	}

	c := &ChatInput{line: line, historyFile: historyFile}
	c.loadHistory()
	return c
}

func (c *ChatInput) loadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadLine reads a line of input with the given prompt.
func (c *ChatInput) ReadLine(prompt string) (string, error) {
	return c.line.Prompt(prompt)
}

// Remember adds a line to input history.
func (c *ChatInput) Remember(line string) {
	c.line.AppendHistory(line)
}

// SaveHistory persists input history with owner-only permissions.
func (c *ChatInput) SaveHistory() error {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = c.line.WriteHistory(f)
	return err
}

// Close saves input history and restores the terminal.
func (c *ChatInput) Close() error {
	saveErr := c.SaveHistory()
	if err := c.line.Close(); err != nil {
		return err
	}
	return saveErr
}

// =============================================================================
// IN-FLIGHT REQUEST
// =============================================================================

// inflight holds the cancel function of the running request so the
// signal goroutine can reach it.
type inflight struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

func (f *inflight) set(cancel context.CancelFunc) {
	f.mu.Lock()
	f.cancel = cancel
	f.mu.Unlock()
}

func (f *inflight) clear() {
	f.set(nil)
}

// Cancel cancels the running request. It reports whether one was running.
func (f *inflight) Cancel() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel == nil {
		return false
	}
	f.cancel()
	f.cancel = nil
	return true
}

// =============================================================================
// CHAT LOOP
// =============================================================================

// chatLoop drives one interactive session.
type chatLoop struct {
	sess     *session.Session
	reg      *commands.Registry
	input    LineReader
	args     Args
	env      Env
	reloads  chan config.Reload
	inflight inflight
	log      *logrus.Entry

	// fatal ends the loop with a failure exit code.
	fatal bool
}

func newChatLoop(sess *session.Session, reg *commands.Registry, input LineReader, args Args, env Env) *chatLoop {
	return &chatLoop{
		sess:    sess,
		reg:     reg,
		input:   input,
		args:    args,
		env:     env,
		reloads: make(chan config.Reload, 4),
		log:     logging.L().WithField("session", sess.Tracker.ID()),
	}
}

func (l *chatLoop) theme() styles.Theme {
	return l.sess.Renderer.Theme
}

func (l *chatLoop) warn(format string, args ...interface{}) {
	fmt.Fprintln(l.env.Stderr, l.theme().StatusWarning(fmt.Sprintf(format, args...)))
}

func (l *chatLoop) info(format string, args ...interface{}) {
	fmt.Fprintln(l.env.Stdout, l.theme().StatusInfo(fmt.Sprintf(format, args...)))
}

// RunChat starts the interactive loop and returns the exit code.
func RunChat(ctx context.Context, args Args, settings *config.Settings, configPath string, env Env) int {
	sess, err := session.New(session.Options{
		Settings:     settings,
		ConfigPath:   configPath,
		Out:          env.Stdout,
		Err:          env.Stderr,
		Width:        env.Width,
		StyledOutput: env.StdoutTTY && ColorsEnabled(),
	})
	if err != nil {
		DisplayError(env.Stderr, styles.NewTheme(styles.ThemeMono), err)
		return ExitFailure
	}
	defer sess.Close()

	if err := os.MkdirAll(config.Dir(), 0700); err != nil {
		logging.L().WithError(err).Warn("cannot create config directory")
	}
	reg := commands.NewRegistry()
	input := NewChatInput(filepath.Join(config.Dir(), InputHistoryFile), reg.Complete)
	loop := newChatLoop(sess, reg, input, args, env)
	defer func() {
		if err := input.Close(); err != nil {
			loop.log.WithError(err).Warn("input history not saved")
		}
	}()

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	// Settings hot reload; a missing directory just disables it
	if w, err := config.NewWatcher(configPath, loop.queueReload); err != nil {
		loop.log.WithError(err).Debug("settings watcher disabled")
	} else {
		go w.Watch(ctx)
		defer w.Close()
	}

	// Ctrl-C while a request is in flight cancels only that request.
	// At the prompt liner sees Ctrl-C itself.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigChan:
				if loop.inflight.Cancel() {
					loop.log.WithField("signal", sig.String()).Info("request cancelled")
				} else if sig == syscall.SIGTERM {
					stop()
				}
			}
		}
	}()

	loop.loadHistory()
	loop.banner()
	loop.run(ctx)
	loop.finish()
	return loop.exitCode()
}

// queueReload is the watcher callback. It never blocks; a full queue
// drops the oldest reload.
func (l *chatLoop) queueReload(r config.Reload) {
	for {
		select {
		case l.reloads <- r:
			return
		default:
			select {
			case <-l.reloads:
			default:
			}
		}
	}
}

// drainReloads applies pending settings reloads. Flag overrides are
// re-applied so they keep precedence over the file.
func (l *chatLoop) drainReloads() {
	for {
		select {
		case r := <-l.reloads:
			l.applyReload(r)
		default:
			return
		}
	}
}

func (l *chatLoop) applyReload(r config.Reload) {
	for _, w := range r.Warnings {
		l.warn("%v", w)
	}
	next := r.Settings
	if err := l.args.Apply(next); err != nil {
		l.warn("flag override: %v", err)
	}
	if err := l.sess.ApplySettings(next); err != nil {
		l.warn("settings reload: %v", err)
		return
	}
	l.info("Settings reloaded")
}

func (l *chatLoop) loadHistory() {
	n, err := l.sess.LoadHistory("")
	if err != nil {
		var perr *history.PersistenceError
		if errors.As(err, &perr) && perr.Recovered {
			l.warn("%v", err)
		} else {
			l.warn("history not loaded: %v", err)
		}
	}
	l.log.WithField("entries", n).Debug("history loaded")
}

// banner prints the welcome header.
func (l *chatLoop) banner() {
	t := l.theme()
	s := l.sess.Settings
	out := l.env.Stdout

	mode := "streaming"
	if !s.Stream {
		mode = "buffered"
	}
	key := t.Success.Render("configured") + t.Muted.Render(" ("+gemini.Fingerprint(s.APIKey)+")")
	if s.RequireAPIKey() != nil {
		key = t.Warning.Render("missing, set " + config.EnvAPIKey)
	}

	fmt.Fprintln(out, t.AssistantLabel.Render("gemchat "+Version))
	fmt.Fprintln(out, t.Rule(30))
	fmt.Fprintf(out, "%s %s %s\n", t.Muted.Render("Model:  "), s.ModelName, t.Muted.Render("("+s.Transport+", "+mode+")"))
	fmt.Fprintf(out, "%s %d entries\n", t.Muted.Render("History:"), l.sess.History.Len())
	fmt.Fprintf(out, "%s %s\n", t.Muted.Render("API key:"), key)
	fmt.Fprintln(out)
	fmt.Fprintln(out, t.Muted.Render("Type a message and press Enter. /help lists commands, /exit quits."))
	fmt.Fprintln(out)
}

// run reads and handles lines until exit.
func (l *chatLoop) run(ctx context.Context) {
	for !l.sess.ExitRequested && !l.fatal {
		if ctx.Err() != nil {
			return
		}
		l.drainReloads()
		if err := l.sess.Tracker.Check(); err != nil {
			l.warn("auto-save failed: %v", err)
		}

		line, err := l.input.ReadLine(l.sess.Prompt())
		switch {
		case errors.Is(err, liner.ErrPromptAborted):
			if l.sess.State == session.StatePasting {
				l.sess.CancelPaste()
				l.info("Paste cancelled")
				continue
			}
			fmt.Fprintln(l.env.Stdout)
			return
		case errors.Is(err, io.EOF):
			if l.sess.State == session.StatePasting {
				l.submit(ctx, l.sess.EndPaste())
				continue
			}
			fmt.Fprintln(l.env.Stdout)
			return
		case err != nil:
			l.warn("input: %v", err)
			return
		}

		l.handleLine(ctx, line)
	}
}

// handleLine applies one line of input in the current state.
func (l *chatLoop) handleLine(ctx context.Context, line string) {
	l.sess.Tracker.RecordActivity()

	if l.sess.State == session.StatePasting {
		if strings.TrimSpace(line) == "/end" {
			l.submit(ctx, l.sess.EndPaste())
		} else {
			l.sess.AddPasteLine(line)
		}
		return
	}

	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	l.input.Remember(trimmed)

	if commands.IsCommand(trimmed) {
		if err := l.reg.Dispatch(l.sess, l.env.Stdout, trimmed); err != nil {
			l.commandError(err)
		}
		return
	}

	if strings.EqualFold(trimmed, "exit") || strings.EqualFold(trimmed, "quit") {
		l.sess.ExitRequested = true
		return
	}

	l.submit(ctx, line)
}

func (l *chatLoop) commandError(err error) {
	var unknown *commands.UnknownCommandError
	if errors.As(err, &unknown) {
		l.warn("%v", err)
		return
	}
	DisplayError(l.env.Stderr, l.theme(), err)
}

// =============================================================================
// SUBMIT
// =============================================================================

// submit sends prompt and prints the reply. Failures are reported and
// leave history untouched.
func (l *chatLoop) submit(ctx context.Context, prompt string) {
	reqCtx, cancel := context.WithCancel(ctx)
	l.inflight.set(cancel)
	defer func() {
		l.inflight.clear()
		cancel()
	}()

	out := l.env.Stdout
	settings := l.sess.Settings
	streaming := settings.Stream

	var spin *Spinner
	if l.env.StderrTTY {
		spin = NewSpinner(l.env.Stderr, l.theme().Spinner(), settings.ModelName)
		spin.Start()
	}
	stopSpin := func() {
		if spin != nil {
			spin.Stop()
		}
	}

	wrote := false
	l.sess.OnChunk = nil
	if streaming {
		l.sess.OnChunk = func(chunk string) {
			stopSpin()
			wrote = true
			fmt.Fprint(out, chunk)
		}
	}

	resp, err := l.sess.Submit(reqCtx, prompt)
	stopSpin()
	if wrote {
		fmt.Fprintln(out)
	}
	if err != nil {
		l.submitError(err)
		return
	}

	if streaming {
		if l.sess.StyledOutput && settings.FormatCode && len(strings.TrimSpace(resp.Text)) > 0 {
			fmt.Fprintln(out, l.theme().Rule(l.sess.Renderer.Width))
			fmt.Fprintln(out, l.sess.Renderer.Render(resp.Text))
		}
	} else {
		fmt.Fprintln(out, l.sess.Renderer.Render(resp.Text))
	}
	if resp.Truncated() {
		l.warn("response truncated at max_output_tokens (%d)", settings.MaxOutputTokens)
	}
	fmt.Fprintln(out)
}

func (l *chatLoop) submitError(err error) {
	var serr *gemini.StreamError
	switch {
	case errors.Is(err, session.ErrEmptyPrompt):
		return
	case errors.Is(err, context.Canceled):
		l.warn("Cancelled, nothing was recorded")
	case errors.As(err, &serr):
		l.warn("%v; the partial response was not saved", err)
	case errors.Is(err, config.ErrMissingAPIKey):
		// No command can supply the key, so the session cannot continue
		DisplayError(l.env.Stderr, l.theme(), err)
		l.fatal = true
		return
	default:
		DisplayError(l.env.Stderr, l.theme(), err)
	}
	if n := len(l.sess.Pending); n > 0 {
		l.info("%d attachment(s) still pending, /detach to drop", n)
	}
}

// exitCode is ExitFailure when the loop ended on an unrecoverable error.
func (l *chatLoop) exitCode() int {
	if l.fatal {
		return ExitFailure
	}
	return ExitSuccess
}

// finish auto-saves history and prints the session summary.
func (l *chatLoop) finish() {
	if l.sess.Settings.AutoSave && l.sess.Tracker.IsDirty() {
		path, err := l.sess.SaveHistory("")
		if err != nil {
			l.warn("history not saved: %v", err)
		} else {
			l.log.WithField("path", path).Info("history saved")
		}
	}
	st := l.sess.Tracker.Status()
	fmt.Fprintln(l.env.Stdout, l.theme().Muted.Render(
		fmt.Sprintf("%d exchange(s) in %s", st.Turns, session.FormatDuration(st.Duration))))
}
