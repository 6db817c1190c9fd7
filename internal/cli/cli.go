// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Entry point wiring for gemchat.

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/logging"
	"github.com/jeranaias/gemchat/internal/ui/styles"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const usageText = `gemchat - chat with Gemini models from the terminal

Usage:
  gemchat                        Start an interactive chat
  gemchat [flags] PROMPT...      Ask one question and print the answer
  echo PROMPT | gemchat [flags]  Ask with the prompt read from stdin

Flags:
  -m, --model NAME        Model to use (e.g., gemini-2.5-flash)
  -t, --temperature N     Sampling temperature in [0, 1]
      --top-p N           Nucleus sampling in [0, 1]
      --max-tokens N      Maximum output tokens
  -s, --system TEXT       System prompt
  -f, --file PATH         Attach a file (repeatable)
      --stream            Stream the response as it arrives
      --no-stream         Wait for the whole response
      --config PATH       Settings file (default ~/.gemchat/config.toml)
      --json              Print {success, model, response, error} as JSON
  -v, --verbose           Debug logging on stderr
  -i, --interactive       Force interactive mode
      --version           Print version
  -h, --help              Show this help

Environment:
  GEMINI_API_KEY          API key (GOOGLE_API_KEY is also accepted)
  GEMCHAT_MODEL           Default model
  GEMCHAT_CONFIG          Settings file path
  GEMCHAT_LOG_LEVEL       Log level (debug, info, warn, error)
  NO_COLOR                Disable colors

In interactive mode type /help for commands.

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "gemchat version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go version: %s\n", runtime.Version())
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

// Env holds the process streams and terminal facts a run depends on.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	StdinTTY  bool
	StdoutTTY bool
	StderrTTY bool
	Width     int
}

// SystemEnv returns the real process environment.
func SystemEnv() Env {
	return Env{
		Stdin:     os.Stdin,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		StdinTTY:  IsTTY(),
		StdoutTTY: IsStdoutTTY(),
		StderrTTY: IsStderrTTY(),
		Width:     GetTerminalWidth(),
	}
}

// IsInteractive reports whether a run should start the chat loop: when
// forced with -i, or when stdin is a terminal and no prompt was given.
func IsInteractive(args Args, env Env) bool {
	return args.Interactive || (env.StdinTTY && args.Prompt == "")
}

// =============================================================================
// OVERRIDES
// =============================================================================

// Apply writes the flag overrides onto s. It is called once at startup
// and again after each settings reload so flags keep precedence.
func (a Args) Apply(s *config.Settings) error {
	set := func(key, value string) error {
		if err := s.Set(key, value); err != nil {
			return &UsageError{Reason: err.Error()}
		}
		return nil
	}

	if a.Model != "" {
		if err := set("model_name", a.Model); err != nil {
			return err
		}
	}
	if a.Temperature != nil {
		if err := set("temperature", strconv.FormatFloat(*a.Temperature, 'f', -1, 64)); err != nil {
			return err
		}
	}
	if a.TopP != nil {
		if err := set("top_p", strconv.FormatFloat(*a.TopP, 'f', -1, 64)); err != nil {
			return err
		}
	}
	if a.MaxTokens != nil {
		if err := set("max_output_tokens", strconv.Itoa(*a.MaxTokens)); err != nil {
			return err
		}
	}
	if a.System != nil {
		s.SystemPrompt = *a.System
	}
	if a.Stream != nil {
		s.Stream = *a.Stream
	}
	return nil
}

// ResolveConfigPath returns the settings file: --config, then GEMCHAT_CONFIG,
// then the default location.
func (a Args) ResolveConfigPath() string {
	if a.ConfigPath != "" {
		return a.ConfigPath
	}
	if p := os.Getenv(config.EnvConfigPath); p != "" {
		return p
	}
	return config.DefaultPath()
}

// =============================================================================
// RUN
// =============================================================================

// Run executes one gemchat invocation and returns the exit code.
func Run(ctx context.Context, args Args, env Env) int {
	if args.Help {
		PrintUsage(env.Stdout)
		return ExitSuccess
	}
	if args.Version {
		PrintVersion(env.Stdout)
		return ExitSuccess
	}

	interactive := IsInteractive(args, env)
	if interactive {
		configureColors()
	}
	theme := styles.NewTheme(styles.ThemeMono)

	// .env first so it can supply the key; the real environment wins
	warnings := config.LoadDotEnv()

	configPath := args.ResolveConfigPath()
	settings, loadWarnings := config.Load(configPath)
	warnings = append(warnings, loadWarnings...)

	logPath := filepath.Join(config.Dir(), "gemchat.log")
	if err := logging.Init(logging.OptionsFromEnv(logPath, args.Verbose)); err != nil {
		fmt.Fprintln(env.Stderr, theme.StatusWarning(fmt.Sprintf("logging disabled: %v", err)))
	}
	defer logging.Close()

	log := logging.L().WithField("config", configPath)
	for _, w := range warnings {
		log.WithError(w).Warn("settings warning")
		fmt.Fprintln(env.Stderr, theme.StatusWarning(w.Error()))
	}

	if err := args.Apply(settings); err != nil {
		DisplayError(env.Stderr, theme, err)
		return ExitFailure
	}

	log.WithField("interactive", interactive).Debug("starting")
	if interactive {
		return RunChat(ctx, args, settings, configPath, env)
	}
	return RunAsk(ctx, args, settings, env)
}
