// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/gemchat/internal/attach"
	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/gemini"
	"github.com/jeranaias/gemchat/internal/session"
)

// stubSender answers every request with "ok".
type stubSender struct {
	last gemini.Request
}

func (s *stubSender) Send(_ context.Context, req gemini.Request) (*gemini.Response, error) {
	s.last = req
	return &gemini.Response{Text: "ok"}, nil
}

func (s *stubSender) Stream(ctx context.Context, req gemini.Request, _ func(string)) (*gemini.Response, error) {
	return s.Send(ctx, req)
}

func (s *stubSender) Close() error { return nil }

func newTestSession(t *testing.T) (*session.Session, *stubSender) {
	t.Helper()
	settings := config.Default()
	settings.APIKey = "test-key"
	settings.Stream = false
	settings.HistoryPath = filepath.Join(t.TempDir(), "history.json")

	sender := &stubSender{}
	sess, err := session.New(session.Options{
		Settings:   settings,
		ConfigPath: filepath.Join(t.TempDir(), "config.toml"),
		Out:        &bytes.Buffer{},
		Err:        &bytes.Buffer{},
		Width:      80,
		NewSender:  func(*config.Settings) (gemini.Sender, error) { return sender, nil },
	})
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess, sender
}

func run(t *testing.T, sess *session.Session, line string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := NewRegistry().Dispatch(sess, &out, line)
	return out.String(), err
}

// =============================================================================
// PARSER
// =============================================================================

func TestParse(t *testing.T) {
	tests := []struct {
		line     string
		wantName string
		wantArgs []string
		wantOK   bool
	}{
		{"/help", "/help", nil, true},
		{"  /HELP model ", "/help", []string{"model"}, true},
		{`/upload "my file.txt"`, "/upload", []string{"my file.txt"}, true},
		{`/system 'be terse' now`, "/system", []string{"be terse", "now"}, true},
		{`/config prompt ""`, "/config", []string{"prompt", ""}, true},
		{"hello", "", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			name, args, ok := Parse(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("args = %q, want %q", args, tt.wantArgs)
			}
			for i := range args {
				if args[i] != tt.wantArgs[i] {
					t.Errorf("args[%d] = %q, want %q", i, args[i], tt.wantArgs[i])
				}
			}
		})
	}
}

func TestRawArgs(t *testing.T) {
	if got := RawArgs("/system  you are   terse "); got != "you are   terse" {
		t.Errorf("RawArgs() = %q", got)
	}
	if got := RawArgs("/clear"); got != "" {
		t.Errorf("RawArgs() = %q, want empty", got)
	}
}

// =============================================================================
// REGISTRY
// =============================================================================

func TestRegistry_GetResolvesAliases(t *testing.T) {
	r := NewRegistry()
	tests := map[string]string{
		"/h":        "/help",
		"/?":        "/help",
		"/quit":     "/exit",
		"/temp":     "/temperature",
		"/attach":   "/upload",
		"/settings": "/config",
		"model":     "/model",
		"/TOPP":     "/top-p",
	}
	for alias, want := range tests {
		cmd := r.Get(alias)
		if cmd == nil {
			t.Errorf("Get(%q) = nil", alias)
			continue
		}
		if cmd.Name != want {
			t.Errorf("Get(%q).Name = %q, want %q", alias, cmd.Name, want)
		}
	}
}

func TestRegistry_ByCategoryCoversAll(t *testing.T) {
	r := NewRegistry()
	total := 0
	for _, category := range Categories() {
		total += len(r.ByCategory()[category])
	}
	assert.Equal(t, len(r.All()), total, "every command should be in a known category")
}

func TestDispatch_UnknownCommandSuggests(t *testing.T) {
	sess, _ := newTestSession(t)

	_, err := run(t, sess, "/hepl")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownCommand))

	var unknown *UnknownCommandError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "/help", unknown.Suggestion)
	assert.Contains(t, err.Error(), "did you mean /help")

	_, err = run(t, sess, "/xyzzy")
	require.True(t, errors.As(err, &unknown))
	assert.Empty(t, unknown.Suggestion)
}

func TestDispatch_ArgCount(t *testing.T) {
	sess, _ := newTestSession(t)

	_, err := run(t, sess, "/upload")
	var usage *UsageError
	require.True(t, errors.As(err, &usage))
	assert.Equal(t, "/upload <path>", usage.Usage)

	_, err = run(t, sess, "/clear now please")
	assert.True(t, errors.As(err, &usage))
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"/help", "/hepl", 2},
		{"/model", "/modle", 2},
		{"kitten", "sitting", 3},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

// =============================================================================
// HANDLERS
// =============================================================================

func TestHelp(t *testing.T) {
	sess, _ := newTestSession(t)

	out, err := run(t, sess, "/help")
	require.NoError(t, err)
	for _, name := range []string{"/upload <path>", "/temperature", "/exit"} {
		assert.Contains(t, out, name)
	}

	out, err = run(t, sess, "/help temp")
	require.NoError(t, err)
	assert.Contains(t, out, "/temperature [0-1]")
	assert.Contains(t, out, "/temp")
}

func TestTemperature_ReflectedInNextRequest(t *testing.T) {
	sess, sender := newTestSession(t)

	out, err := run(t, sess, "/temperature 0.5")
	require.NoError(t, err)
	assert.Contains(t, out, "temperature set to 0.5")

	_, err = sess.Submit(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, 0.5, sender.last.Params.Temperature)
}

func TestSetters_InvalidValueLeavesSettingUnchanged(t *testing.T) {
	tests := []struct {
		line  string
		check func(*config.Settings) bool
	}{
		{"/temperature 1.5", func(s *config.Settings) bool { return s.Temperature == config.Default().Temperature }},
		{"/temperature warm", func(s *config.Settings) bool { return s.Temperature == config.Default().Temperature }},
		{"/top-p -0.1", func(s *config.Settings) bool { return s.TopP == config.Default().TopP }},
		{"/max-tokens 0", func(s *config.Settings) bool { return s.MaxOutputTokens == config.Default().MaxOutputTokens }},
		{"/theme neon", func(s *config.Settings) bool { return s.Theme == config.Default().Theme }},
		{"/stream maybe", func(s *config.Settings) bool { return !s.Stream }},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			sess, _ := newTestSession(t)
			_, err := run(t, sess, tt.line)
			assert.Error(t, err)
			assert.True(t, tt.check(sess.Settings), "setting changed after %q", tt.line)
		})
	}
}

func TestShowSetting(t *testing.T) {
	sess, _ := newTestSession(t)
	out, err := run(t, sess, "/model")
	require.NoError(t, err)
	assert.Contains(t, out, "model_name = "+sess.Settings.ModelName)
}

func TestModelSwitch(t *testing.T) {
	sess, _ := newTestSession(t)
	_, err := run(t, sess, "/m gemini-2.5-pro")
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-pro", sess.Settings.ModelName)
}

func TestThemeRebuildsRenderer(t *testing.T) {
	sess, _ := newTestSession(t)
	_, err := run(t, sess, "/theme light")
	require.NoError(t, err)
	assert.Equal(t, "light", sess.Settings.Theme)
	assert.Equal(t, "light", sess.Renderer.Theme.Name)
}

func TestToggles(t *testing.T) {
	sess, _ := newTestSession(t)

	_, err := run(t, sess, "/stream")
	require.NoError(t, err)
	assert.True(t, sess.Settings.Stream)

	_, err = run(t, sess, "/stream")
	require.NoError(t, err)
	assert.False(t, sess.Settings.Stream)

	_, err = run(t, sess, "/format off")
	require.NoError(t, err)
	assert.False(t, sess.Settings.FormatCode)
	assert.False(t, sess.Renderer.FormatCode)
}

func TestSystemPrompt(t *testing.T) {
	sess, _ := newTestSession(t)

	_, err := run(t, sess, "/system you are  a pirate")
	require.NoError(t, err)
	assert.Equal(t, "you are  a pirate", sess.Settings.SystemPrompt)

	out, err := run(t, sess, "/sys")
	require.NoError(t, err)
	assert.Contains(t, out, "you are  a pirate")

	_, err = run(t, sess, "/system off")
	require.NoError(t, err)
	assert.Empty(t, sess.Settings.SystemPrompt)
}

func TestUploadAndDetach(t *testing.T) {
	sess, _ := newTestSession(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "notes file.txt")
	require.NoError(t, os.WriteFile(path, []byte("some notes"), 0644))

	// Unquoted path with a space
	out, err := run(t, sess, "/upload "+path)
	require.NoError(t, err)
	assert.Contains(t, out, "notes file.txt")
	require.Len(t, sess.Pending, 1)

	out, err = run(t, sess, "/detach")
	require.NoError(t, err)
	assert.Contains(t, out, "Dropped 1")
	assert.Empty(t, sess.Pending)
}

func TestUploadRejected(t *testing.T) {
	sess, _ := newTestSession(t)
	sess.Settings.MaxAttachmentBytes = 4

	path := filepath.Join(t.TempDir(), "big.txt")
	require.NoError(t, os.WriteFile(path, []byte("too many bytes"), 0644))

	_, err := run(t, sess, "/upload "+path)
	var ferr *attach.FileError
	require.True(t, errors.As(err, &ferr))
	assert.True(t, errors.Is(err, attach.ErrTooLarge))
	assert.Empty(t, sess.Pending)

	_, err = run(t, sess, "/file "+filepath.Join(t.TempDir(), "missing.txt"))
	assert.True(t, errors.Is(err, attach.ErrNotFound))
}

func TestSaveLoadClear(t *testing.T) {
	sess, _ := newTestSession(t)
	_, err := sess.Submit(context.Background(), "remember this")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "saved.json")
	out, err := run(t, sess, "/save "+path)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved 2 entries")

	_, err = run(t, sess, "/clear")
	require.NoError(t, err)
	assert.Equal(t, 0, sess.History.Len())

	out, err = run(t, sess, "/load "+path)
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded 2 entries")
	assert.Equal(t, "remember this", sess.History.Entries()[0].Content)

	out, err = run(t, sess, "/history 1")
	require.NoError(t, err)
	assert.Contains(t, out, "ok")
	assert.NotContains(t, out, "remember this")
}

func TestExport(t *testing.T) {
	sess, _ := newTestSession(t)
	dir := t.TempDir()

	out, err := run(t, sess, "/export md "+dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to export")

	_, err = sess.Submit(context.Background(), "explain channels")
	require.NoError(t, err)

	for _, format := range []string{"md", "json"} {
		out, err = run(t, sess, "/export "+format+" "+dir)
		require.NoError(t, err)
		assert.Contains(t, out, "Exported 2 entries")
	}

	files, err := filepath.Glob(filepath.Join(dir, "gemchat_*"))
	require.NoError(t, err)
	assert.Len(t, files, 2)

	_, err = run(t, sess, "/export pdf")
	assert.Error(t, err)
}

func TestLoadCorruptWarns(t *testing.T) {
	sess, _ := newTestSession(t)
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	out, err := run(t, sess, "/load "+path)
	require.NoError(t, err)
	assert.Contains(t, out, "[!]")
	assert.Contains(t, out, "Loaded 0 entries")
}

func TestHistoryEmpty(t *testing.T) {
	sess, _ := newTestSession(t)
	out, err := run(t, sess, "/history")
	require.NoError(t, err)
	assert.Contains(t, out, "History is empty")

	_, err = run(t, sess, "/history zero")
	assert.Error(t, err)
}

func TestPasteAndExit(t *testing.T) {
	sess, _ := newTestSession(t)

	_, err := run(t, sess, "/paste")
	require.NoError(t, err)
	assert.Equal(t, session.StatePasting, sess.State)
	sess.CancelPaste()

	_, err = run(t, sess, "/q")
	require.NoError(t, err)
	assert.True(t, sess.ExitRequested)
}

func TestConfig(t *testing.T) {
	sess, _ := newTestSession(t)

	out, err := run(t, sess, "/config")
	require.NoError(t, err)
	assert.Contains(t, out, "[REDACTED]")
	assert.NotContains(t, out, "test-key")

	_, err = run(t, sess, "/config prompt gem> ")
	require.NoError(t, err)
	assert.Equal(t, "gem>", sess.Settings.Prompt)

	out, err = run(t, sess, "/config save")
	require.NoError(t, err)
	assert.Contains(t, out, sess.ConfigPath)
	_, statErr := os.Stat(sess.ConfigPath)
	assert.NoError(t, statErr)

	_, err = run(t, sess, "/config no_such_key")
	assert.Error(t, err)
}

// =============================================================================
// COMPLETION
// =============================================================================

func TestComplete(t *testing.T) {
	r := NewRegistry()

	got := r.Complete("/mo")
	assert.Equal(t, []string{"/model"}, got)

	got = r.Complete("/theme l")
	assert.Equal(t, []string{"/theme light"}, got)

	got = r.Complete("/stream o")
	assert.ElementsMatch(t, []string{"/stream on", "/stream off"}, got)

	assert.Nil(t, r.Complete("hello"))
	assert.Nil(t, r.Complete("/nope x"))
}

func TestComplete_FilePaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.pdf"), []byte("%PDF"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "reports"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), nil, 0644))

	got := NewRegistry().Complete("/upload " + dir + string(filepath.Separator) + "rep")
	require.Len(t, got, 2)
	for _, c := range got {
		assert.True(t, strings.HasPrefix(c, "/upload "+dir))
	}
	assert.True(t, strings.HasSuffix(got[1], "reports"+string(filepath.Separator)))
}
