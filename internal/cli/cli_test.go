// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/peterh/liner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/gemchat/internal/commands"
	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/gemini"
	"github.com/jeranaias/gemchat/internal/session"
)

// =============================================================================
// ARG PARSER TESTS (args.go)
// =============================================================================

func TestArgParser_BasicParsing(t *testing.T) {
	rules := ArgRules{Bools: []string{"json"}, Aliases: map[string]string{"m": "model"}}

	tests := []struct {
		name     string
		args     []string
		validate func(*testing.T, *ArgParser)
	}{
		{
			name: "flag with value",
			args: []string{"--model", "gemini-2.5-pro"},
			validate: func(t *testing.T, p *ArgParser) {
				if p.Flag("model") != "gemini-2.5-pro" {
					t.Errorf("Flag(model) = %q, want %q", p.Flag("model"), "gemini-2.5-pro")
				}
			},
		},
		{
			name: "flag with equals",
			args: []string{"--model=gemini-2.5-pro"},
			validate: func(t *testing.T, p *ArgParser) {
				if p.Flag("model") != "gemini-2.5-pro" {
					t.Errorf("Flag(model) = %q", p.Flag("model"))
				}
			},
		},
		{
			name: "short alias",
			args: []string{"-m", "x"},
			validate: func(t *testing.T, p *ArgParser) {
				if p.Flag("model") != "x" {
					t.Errorf("Flag(model) = %q, want %q", p.Flag("model"), "x")
				}
			},
		},
		{
			name: "boolean flag does not eat positional",
			args: []string{"--json", "hello", "world"},
			validate: func(t *testing.T, p *ArgParser) {
				if !p.BoolFlag("json") {
					t.Error("BoolFlag(json) should be true")
				}
				if got := strings.Join(p.Positional(), " "); got != "hello world" {
					t.Errorf("Positional() = %q, want %q", got, "hello world")
				}
			},
		},
		{
			name: "repeated flag",
			args: []string{"--file", "a.png", "--file", "b.pdf"},
			validate: func(t *testing.T, p *ArgParser) {
				if got := p.Flags("file"); len(got) != 2 || got[0] != "a.png" || got[1] != "b.pdf" {
					t.Errorf("Flags(file) = %v", got)
				}
			},
		},
		{
			name: "double dash ends flags",
			args: []string{"--", "--json", "-m"},
			validate: func(t *testing.T, p *ArgParser) {
				if p.BoolFlag("json") {
					t.Error("--json after -- should be positional")
				}
				if len(p.Positional()) != 2 {
					t.Errorf("Positional() = %v", p.Positional())
				}
			},
		},
		{
			name: "negative number is a value",
			args: []string{"--temperature", "-0.5"},
			validate: func(t *testing.T, p *ArgParser) {
				if p.Flag("temperature") != "-0.5" {
					t.Errorf("Flag(temperature) = %q", p.Flag("temperature"))
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validate(t, NewArgParser(tt.args, rules))
		})
	}
}

func TestParse(t *testing.T) {
	args, err := Parse([]string{
		"-m", "gemini-2.5-pro", "-t", "0.2", "--top-p", "0.9", "--max-tokens", "512",
		"-s", "be brief", "-f", "a.txt", "--file=b.txt", "--no-stream", "--json", "-v",
		"what", "is", "go",
	})
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-pro", args.Model)
	require.NotNil(t, args.Temperature)
	assert.Equal(t, 0.2, *args.Temperature)
	require.NotNil(t, args.TopP)
	assert.Equal(t, 0.9, *args.TopP)
	require.NotNil(t, args.MaxTokens)
	assert.Equal(t, 512, *args.MaxTokens)
	require.NotNil(t, args.System)
	assert.Equal(t, "be brief", *args.System)
	assert.Equal(t, []string{"a.txt", "b.txt"}, args.Files)
	require.NotNil(t, args.Stream)
	assert.False(t, *args.Stream)
	assert.True(t, args.JSON)
	assert.True(t, args.Verbose)
	assert.Equal(t, "what is go", args.Prompt)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		argv []string
	}{
		{"unknown flag", []string{"--frobnicate"}},
		{"temperature out of range", []string{"-t", "1.5"}},
		{"temperature not a number", []string{"--temperature", "hot"}},
		{"top-p negative", []string{"--top-p", "-0.1"}},
		{"max tokens zero", []string{"--max-tokens", "0"}},
		{"missing value", []string{"--model"}},
		{"stream conflict", []string{"--stream", "--no-stream"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.argv)
			var usage *UsageError
			if !errors.As(err, &usage) {
				t.Errorf("Parse(%v) error = %v, want *UsageError", tt.argv, err)
			}
			if ExitCode(err) != ExitFailure {
				t.Errorf("ExitCode = %d, want %d", ExitCode(err), ExitFailure)
			}
		})
	}
}

func TestArgsApply(t *testing.T) {
	temp := 0.3
	tokens := 100
	system := "terse"
	on := true
	args := Args{Model: "gemini-2.5-pro", Temperature: &temp, MaxTokens: &tokens, System: &system, Stream: &on}

	s := config.Default()
	s.Stream = false
	require.NoError(t, args.Apply(s))
	assert.Equal(t, "gemini-2.5-pro", s.ModelName)
	assert.Equal(t, 0.3, s.Temperature)
	assert.Equal(t, 100, s.MaxOutputTokens)
	assert.Equal(t, "terse", s.SystemPrompt)
	assert.True(t, s.Stream)

	bad := Args{Model: "not a model/../x"}
	assert.Error(t, bad.Apply(config.Default()))
}

func TestIsInteractive(t *testing.T) {
	tests := []struct {
		name string
		args Args
		tty  bool
		want bool
	}{
		{"tty no prompt", Args{}, true, true},
		{"tty with prompt", Args{Prompt: "hi"}, true, false},
		{"piped", Args{}, false, false},
		{"forced", Args{Interactive: true, Prompt: "hi"}, false, true},
	}
	for _, tt := range tests {
		if got := IsInteractive(tt.args, Env{StdinTTY: tt.tty}); got != tt.want {
			t.Errorf("%s: IsInteractive() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestBuildPrompt(t *testing.T) {
	tests := []struct {
		args, stdin string
		want        string
		wantErr     bool
	}{
		{"hello", "", "hello", false},
		{"", "hello\n", "hello", false},
		{"Review this:", "diff --git a b\n", "Review this:\n\ndiff --git a b", false},
		{"", "  \n", "", true},
		{"", "", "", true},
	}
	for _, tt := range tests {
		got, err := BuildPrompt(tt.args, tt.stdin)
		if (err != nil) != tt.wantErr {
			t.Errorf("BuildPrompt(%q, %q) error = %v, wantErr %v", tt.args, tt.stdin, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("BuildPrompt(%q, %q) = %q, want %q", tt.args, tt.stdin, got, tt.want)
		}
	}
}

func TestHint(t *testing.T) {
	assert.Contains(t, Hint(config.ErrMissingAPIKey), config.EnvAPIKey)
	assert.Contains(t, Hint(&gemini.APIError{StatusCode: 404, Err: gemini.ErrModelNotFound}), "--model")
	assert.Empty(t, Hint(errors.New("something else")))
}

// =============================================================================
// ASK MODE (ask.go)
// =============================================================================

// geminiServer answers generateContent with text and counts requests.
func geminiServer(t *testing.T, status int, text string) (*httptest.Server, *int32, *[]gemini.GenerateRequest) {
	t.Helper()
	var count int32
	var bodies []gemini.GenerateRequest
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		var body gemini.GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			mu.Lock()
			bodies = append(bodies, body)
			mu.Unlock()
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			fmt.Fprintf(w, `{"error":{"code":%d,"message":"boom","status":"INTERNAL"}}`, status)
			return
		}
		if strings.Contains(r.URL.Path, "streamGenerateContent") {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, word := range strings.SplitAfter(text, " ") {
				fmt.Fprintf(w, "data: {\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":%q}]}}]}\n\n", word)
			}
			return
		}
		fmt.Fprintf(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":%q}]},"finishReason":"STOP"}]}`, text)
	}))
	t.Cleanup(srv.Close)
	return srv, &count, &bodies
}

func askSettings(t *testing.T, baseURL string) *config.Settings {
	t.Helper()
	s := config.Default()
	s.APIKey = "test-key"
	s.BaseURL = baseURL
	s.MaxRetries = 0
	s.Stream = false
	s.HistoryPath = filepath.Join(t.TempDir(), "history.json")
	return s
}

func pipedEnv(stdin string) (Env, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return Env{Stdin: strings.NewReader(stdin), Stdout: &stdout, Stderr: &stderr, Width: 80}, &stdout, &stderr
}

func TestRunAsk_PipedPrompt(t *testing.T) {
	srv, count, bodies := geminiServer(t, http.StatusOK, "Hi there!")
	settings := askSettings(t, srv.URL)
	env, stdout, _ := pipedEnv("hello")

	code := RunAsk(context.Background(), Args{}, settings, env)

	assert.Equal(t, ExitSuccess, code)
	assert.Equal(t, int32(1), atomic.LoadInt32(count))
	require.Len(t, *bodies, 1)
	contents := (*bodies)[0].Contents
	require.Len(t, contents, 1)
	assert.Equal(t, "hello", contents[0].Parts[0].Text)
	assert.Equal(t, "Hi there!\n", stdout.String())

	// History is not written in this mode
	_, err := os.Stat(settings.HistoryPath)
	assert.True(t, os.IsNotExist(err))
}

func TestRunAsk_ServerErrorExitsOne(t *testing.T) {
	srv, count, _ := geminiServer(t, http.StatusInternalServerError, "")
	env, stdout, stderr := pipedEnv("")

	code := RunAsk(context.Background(), Args{Prompt: "hello"}, askSettings(t, srv.URL), env)

	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, int32(1), atomic.LoadInt32(count))
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "[ERROR]")
}

func TestRunAsk_NoPrompt(t *testing.T) {
	srv, count, _ := geminiServer(t, http.StatusOK, "unused")
	env, _, stderr := pipedEnv("")

	code := RunAsk(context.Background(), Args{}, askSettings(t, srv.URL), env)

	assert.Equal(t, ExitFailure, code)
	assert.Zero(t, atomic.LoadInt32(count))
	assert.Contains(t, stderr.String(), "no prompt")
}

func TestRunAsk_MissingKey(t *testing.T) {
	srv, count, _ := geminiServer(t, http.StatusOK, "unused")
	settings := askSettings(t, srv.URL)
	settings.APIKey = ""
	env, _, stderr := pipedEnv("")

	code := RunAsk(context.Background(), Args{Prompt: "hi"}, settings, env)

	assert.Equal(t, ExitFailure, code)
	assert.Zero(t, atomic.LoadInt32(count))
	assert.Contains(t, stderr.String(), config.EnvAPIKey)
}

func TestRunAsk_RejectedAttachmentSendsNothing(t *testing.T) {
	srv, count, _ := geminiServer(t, http.StatusOK, "unused")
	settings := askSettings(t, srv.URL)
	settings.MaxAttachmentBytes = 8

	dir := t.TempDir()
	big := filepath.Join(dir, "big.txt")
	require.NoError(t, os.WriteFile(big, []byte(strings.Repeat("x", 64)), 0644))
	odd := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(odd, []byte{0x00, 0x01}, 0644))

	for _, path := range []string{big, odd} {
		env, _, _ := pipedEnv("")
		code := RunAsk(context.Background(), Args{Prompt: "look", Files: []string{path}}, settings, env)
		assert.Equal(t, ExitFailure, code, path)
	}
	assert.Zero(t, atomic.LoadInt32(count))
}

func TestRunAsk_JSON(t *testing.T) {
	srv, _, _ := geminiServer(t, http.StatusOK, "42")
	settings := askSettings(t, srv.URL)
	env, stdout, _ := pipedEnv("")

	code := RunAsk(context.Background(), Args{Prompt: "answer?", JSON: true}, settings, env)
	require.Equal(t, ExitSuccess, code)

	var result AskResult
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, settings.ModelName, result.Model)
	assert.Equal(t, "42", result.Response)
	assert.Empty(t, result.Error)
}

func TestRunAsk_JSONFailure(t *testing.T) {
	srv, _, _ := geminiServer(t, http.StatusInternalServerError, "")
	env, stdout, _ := pipedEnv("")

	code := RunAsk(context.Background(), Args{Prompt: "answer?", JSON: true}, askSettings(t, srv.URL), env)
	require.Equal(t, ExitFailure, code)

	var result AskResult
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestRunAsk_Streaming(t *testing.T) {
	srv, count, _ := geminiServer(t, http.StatusOK, "one two three")
	settings := askSettings(t, srv.URL)
	settings.Stream = true
	env, stdout, _ := pipedEnv("")

	code := RunAsk(context.Background(), Args{Prompt: "count"}, settings, env)

	assert.Equal(t, ExitSuccess, code)
	assert.Equal(t, int32(1), atomic.LoadInt32(count))
	assert.Equal(t, "one two three\n", stdout.String())
}

func TestRunAsk_ArgsAndStdinCombined(t *testing.T) {
	srv, _, bodies := geminiServer(t, http.StatusOK, "ok")
	env, _, _ := pipedEnv("func main() {}\n")

	code := RunAsk(context.Background(), Args{Prompt: "Review:"}, askSettings(t, srv.URL), env)

	require.Equal(t, ExitSuccess, code)
	require.Len(t, *bodies, 1)
	assert.Equal(t, "Review:\n\nfunc main() {}", (*bodies)[0].Contents[0].Parts[0].Text)
}

// =============================================================================
// CHAT LOOP (chat.go)
// =============================================================================

// scriptedInput replays lines, then returns io.EOF.
type scriptedInput struct {
	lines      []interface{} // string or error
	prompts    []string
	remembered []string
}

func (s *scriptedInput) ReadLine(prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	next := s.lines[0]
	s.lines = s.lines[1:]
	if err, ok := next.(error); ok {
		return "", err
	}
	return next.(string), nil
}

func (s *scriptedInput) Remember(line string) { s.remembered = append(s.remembered, line) }
func (s *scriptedInput) Close() error        { return nil }

// recordingSender answers "reply N" and records prompts.
type recordingSender struct {
	prompts []string
	fail    error
}

func (r *recordingSender) Send(_ context.Context, req gemini.Request) (*gemini.Response, error) {
	r.prompts = append(r.prompts, req.Prompt)
	if r.fail != nil {
		return nil, r.fail
	}
	return &gemini.Response{Text: fmt.Sprintf("reply %d", len(r.prompts))}, nil
}

func (r *recordingSender) Stream(ctx context.Context, req gemini.Request, onChunk func(string)) (*gemini.Response, error) {
	resp, err := r.Send(ctx, req)
	if err == nil && onChunk != nil {
		onChunk(resp.Text)
	}
	return resp, err
}

func (r *recordingSender) Close() error { return nil }

func newTestLoop(t *testing.T, sender gemini.Sender, lines ...interface{}) (*chatLoop, *scriptedInput, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	settings := config.Default()
	settings.APIKey = "test-key"
	settings.Stream = false
	settings.HistoryPath = filepath.Join(t.TempDir(), "history.json")

	var stdout, stderr bytes.Buffer
	sess, err := session.New(session.Options{
		Settings:  settings,
		Out:       &stdout,
		Err:       &stderr,
		Width:     80,
		NewSender: func(*config.Settings) (gemini.Sender, error) { return sender, nil },
	})
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })

	input := &scriptedInput{lines: lines}
	env := Env{Stdout: &stdout, Stderr: &stderr, Width: 80}
	return newChatLoop(sess, commands.NewRegistry(), input, Args{}, env), input, &stdout, &stderr
}

func TestChatLoop_PromptsAndCommands(t *testing.T) {
	sender := &recordingSender{}
	loop, input, stdout, _ := newTestLoop(t, sender,
		"hello",
		"",
		"/temperature 0.5",
		"second",
		"/exit",
		"never read",
	)

	loop.run(context.Background())

	assert.Equal(t, []string{"hello", "second"}, sender.prompts)
	assert.Equal(t, 4, loop.sess.History.Len())
	assert.Equal(t, 0.5, loop.sess.Settings.Temperature)
	assert.True(t, loop.sess.ExitRequested)
	assert.Contains(t, stdout.String(), "reply 1")
	assert.Contains(t, stdout.String(), "reply 2")
	assert.Len(t, input.lines, 1, "input after /exit should not be read")
	assert.NotContains(t, input.remembered, "")
}

func TestChatLoop_PasteMode(t *testing.T) {
	sender := &recordingSender{}
	loop, input, _, _ := newTestLoop(t, sender,
		"/paste",
		"line one",
		"/help",
		"",
		"/end",
	)

	loop.run(context.Background())

	require.Len(t, sender.prompts, 1)
	assert.Equal(t, "line one\n/help", sender.prompts[0])
	assert.Equal(t, session.StateNormal, loop.sess.State)
	assert.Contains(t, input.prompts, session.PastePrompt)
}

func TestChatLoop_PasteEndsOnEOF(t *testing.T) {
	sender := &recordingSender{}
	loop, _, _, _ := newTestLoop(t, sender, "/paste", "a", "b")

	loop.run(context.Background())

	require.Len(t, sender.prompts, 1)
	assert.Equal(t, "a\nb", sender.prompts[0])
}

func TestChatLoop_CtrlCCancelsPaste(t *testing.T) {
	sender := &recordingSender{}
	loop, _, stdout, _ := newTestLoop(t, sender, "/paste", "draft", liner.ErrPromptAborted, "/exit")

	loop.run(context.Background())

	assert.Empty(t, sender.prompts)
	assert.Equal(t, session.StateNormal, loop.sess.State)
	assert.Contains(t, stdout.String(), "Paste cancelled")
	assert.True(t, loop.sess.ExitRequested)
}

func TestChatLoop_CtrlCAtPromptExits(t *testing.T) {
	loop, input, _, _ := newTestLoop(t, &recordingSender{}, liner.ErrPromptAborted, "hello")

	loop.run(context.Background())

	assert.Len(t, input.lines, 1)
}

func TestChatLoop_BareExit(t *testing.T) {
	loop, input, _, _ := newTestLoop(t, &recordingSender{}, "quit", "hello")
	loop.run(context.Background())
	assert.True(t, loop.sess.ExitRequested)
	assert.Len(t, input.lines, 1)
}

func TestChatLoop_UnknownCommandWarns(t *testing.T) {
	loop, _, _, stderr := newTestLoop(t, &recordingSender{}, "/modle")
	loop.run(context.Background())
	assert.Contains(t, stderr.String(), "[!]")
	assert.Contains(t, stderr.String(), "did you mean /model")
}

func TestChatLoop_MissingKeyEndsSession(t *testing.T) {
	sender := &recordingSender{}
	loop, input, _, stderr := newTestLoop(t, sender, "hello", "second prompt", "/exit")
	loop.sess.Settings.APIKey = ""

	loop.run(context.Background())

	assert.Len(t, input.lines, 2, "no line after the first prompt should be read")
	assert.Empty(t, sender.prompts)
	assert.Equal(t, 1, strings.Count(stderr.String(), "[ERROR]"))
	assert.Contains(t, stderr.String(), config.EnvAPIKey)
	assert.Equal(t, ExitFailure, loop.exitCode())
	assert.False(t, loop.sess.ExitRequested)
}

func TestChatLoop_NormalExitCode(t *testing.T) {
	loop, _, _, _ := newTestLoop(t, &recordingSender{}, "hello", "/exit")
	loop.run(context.Background())
	assert.Equal(t, ExitSuccess, loop.exitCode())
}

func TestChatLoop_FailureLeavesHistory(t *testing.T) {
	sender := &recordingSender{fail: &gemini.NetworkError{Op: "send", StatusCode: 503, Err: gemini.ErrUnavailable}}
	loop, _, _, stderr := newTestLoop(t, sender, "hello")

	loop.run(context.Background())

	assert.Equal(t, 0, loop.sess.History.Len())
	assert.Contains(t, stderr.String(), "[ERROR]")
}

func TestChatLoop_CancelledRequest(t *testing.T) {
	sender := &recordingSender{fail: context.Canceled}
	loop, _, _, stderr := newTestLoop(t, sender, "hello")

	loop.run(context.Background())

	assert.Equal(t, 0, loop.sess.History.Len())
	assert.Contains(t, stderr.String(), "Cancelled")
}

func TestChatLoop_StreamingPrintsChunks(t *testing.T) {
	sender := &recordingSender{}
	loop, _, stdout, _ := newTestLoop(t, sender, "/stream on", "hi")

	loop.run(context.Background())

	assert.True(t, loop.sess.Settings.Stream)
	assert.Contains(t, stdout.String(), "reply 1\n")
	assert.Equal(t, 2, loop.sess.History.Len())
}

func TestChatLoop_ReloadKeepsFlagOverrides(t *testing.T) {
	loop, _, stdout, _ := newTestLoop(t, &recordingSender{})
	loop.args = Args{Model: "gemini-2.5-pro"}

	reloaded := config.Default()
	reloaded.APIKey = "test-key"
	reloaded.HistoryPath = loop.sess.Settings.HistoryPath
	reloaded.Theme = "light"
	loop.queueReload(config.Reload{Settings: reloaded})
	loop.drainReloads()

	assert.Equal(t, "gemini-2.5-pro", loop.sess.Settings.ModelName)
	assert.Equal(t, "light", loop.sess.Renderer.Theme.Name)
	assert.Contains(t, stdout.String(), "Settings reloaded")
}

func TestChatLoop_FinishAutoSaves(t *testing.T) {
	loop, _, _, _ := newTestLoop(t, &recordingSender{}, "hello")
	loop.run(context.Background())
	loop.finish()

	data, err := os.ReadFile(loop.sess.Settings.HistoryPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.False(t, loop.sess.Tracker.IsDirty())
}

func TestChatLoop_Banner(t *testing.T) {
	loop, _, stdout, _ := newTestLoop(t, &recordingSender{})
	loop.sess.Settings.APIKey = ""
	loop.banner()
	assert.Contains(t, stdout.String(), loop.sess.Settings.ModelName)
	assert.Contains(t, stdout.String(), config.EnvAPIKey)
}

func TestInflightCancel(t *testing.T) {
	var f inflight
	assert.False(t, f.Cancel())

	ctx, cancel := context.WithCancel(context.Background())
	f.set(cancel)
	assert.True(t, f.Cancel())
	assert.Error(t, ctx.Err())
	assert.False(t, f.Cancel())
}
