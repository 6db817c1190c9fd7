// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - Non-interactive mode for gemchat.
//
// Sends exactly one request and writes the raw response to stdout.
// History is neither read nor written.
//
// Examples:
//   gemchat "What is the capital of France?"
//   gemchat --json -m gemini-2.5-pro "Summarize RFC 9110"
//   git diff | gemchat "Review this change:"
//   gemchat -f diagram.png "Describe this image"

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/gemini"
	"github.com/jeranaias/gemchat/internal/history"
	"github.com/jeranaias/gemchat/internal/logging"
	"github.com/jeranaias/gemchat/internal/session"
	"github.com/jeranaias/gemchat/internal/ui/styles"
)

// MaxStdinBytes bounds how much piped input is read.
const MaxStdinBytes = 8 << 20

// BuildPrompt joins the argument prompt and piped stdin with a blank line.
// Either part may be empty, but not both.
func BuildPrompt(argPrompt, stdin string) (string, error) {
	argPrompt = strings.TrimSpace(argPrompt)
	stdin = strings.TrimSpace(stdin)
	switch {
	case argPrompt == "" && stdin == "":
		return "", ErrNoPrompt
	case stdin == "":
		return argPrompt, nil
	case argPrompt == "":
		return stdin, nil
	default:
		return argPrompt + "\n\n" + stdin, nil
	}
}

// readStdin reads piped input. A terminal stdin yields "".
func readStdin(env Env) (string, error) {
	if env.StdinTTY || env.Stdin == nil {
		return "", nil
	}
	data, err := io.ReadAll(io.LimitReader(env.Stdin, MaxStdinBytes+1))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	if len(data) > MaxStdinBytes {
		return "", &UsageError{Reason: fmt.Sprintf("stdin exceeds %d bytes", MaxStdinBytes)}
	}
	return string(data), nil
}

// RunAsk performs one request and returns the exit code.
func RunAsk(ctx context.Context, args Args, settings *config.Settings, env Env) int {
	return runAsk(ctx, args, settings, env, nil)
}

// runAsk is RunAsk with an injectable sender factory.
func runAsk(ctx context.Context, args Args, settings *config.Settings, env Env, newSender session.SenderFactory) int {
	theme := styles.NewTheme(styles.ThemeMono)
	log := logging.L().WithField("mode", "ask")

	fail := func(resp *gemini.Response, err error) int {
		log.WithError(err).Warn("ask failed")
		if args.JSON {
			if werr := NewAskResult(settings.ModelName, resp, err).Write(env.Stdout); werr != nil {
				log.WithError(werr).Error("write result")
			}
		} else {
			DisplayError(env.Stderr, theme, err)
		}
		return ExitFailure
	}

	stdin, err := readStdin(env)
	if err != nil {
		return fail(nil, err)
	}
	prompt, err := BuildPrompt(args.Prompt, stdin)
	if err != nil {
		return fail(nil, err)
	}

	// The store is never loaded or saved in this mode
	sess, err := session.New(session.Options{
		Settings:  settings,
		Store:     history.NewJSONStore(settings.HistoryPath, settings.MaxHistoryEntries),
		Out:       env.Stdout,
		Err:       env.Stderr,
		Width:     env.Width,
		NewSender: newSender,
	})
	if err != nil {
		return fail(nil, err)
	}
	defer sess.Close()

	for _, path := range args.Files {
		a, err := sess.Attach(path)
		if err != nil {
			return fail(nil, err)
		}
		log.WithField("file", a.FileName).Debug("attached")
	}

	streaming := settings.Stream && !args.JSON
	settings.Stream = streaming
	wrote := false
	if streaming {
		sess.OnChunk = func(chunk string) {
			wrote = true
			fmt.Fprint(env.Stdout, chunk)
		}
	}

	var spin *Spinner
	if !streaming && env.StderrTTY {
		spin = NewSpinner(env.Stderr, theme.Spinner(), "waiting for "+settings.ModelName)
		spin.Start()
	}

	resp, err := sess.Submit(ctx, prompt)
	if spin != nil {
		spin.Stop()
	}
	if err != nil {
		if wrote {
			fmt.Fprintln(env.Stdout)
		}
		return fail(resp, err)
	}

	if args.JSON {
		if err := NewAskResult(settings.ModelName, resp, nil).Write(env.Stdout); err != nil {
			return fail(resp, err)
		}
		return ExitSuccess
	}

	if !streaming {
		fmt.Fprint(env.Stdout, resp.Text)
	}
	if !strings.HasSuffix(resp.Text, "\n") {
		fmt.Fprintln(env.Stdout)
	}
	if resp.Truncated() {
		fmt.Fprintln(env.Stderr, theme.StatusWarning("response truncated at max_output_tokens"))
	}
	return ExitSuccess
}
