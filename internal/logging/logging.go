// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging owns the process-wide log stream for gemchat.
//
// Operational detail (retries, formatter failures, corrupt-file backups,
// watcher events) is written here and never to the chat transcript.
// By default the stream is a file under the config directory; --verbose
// redirects it to stderr at debug level.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Options configures Init.
type Options struct {
	// Path is the log file. Empty means discard unless Verbose is set.
	Path string

	// Level is a logrus level name ("debug", "info", "warn", ...).
	Level string

	// JSON selects the JSON formatter instead of text.
	JSON bool

	// Verbose sends output to stderr at debug level.
	Verbose bool
}

var (
	mu     sync.RWMutex
	logger = newDiscard()
	closer io.Closer
)

func newDiscard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// OptionsFromEnv fills Level and JSON from GEMCHAT_LOG_LEVEL and
// GEMCHAT_LOG_FORMAT.
func OptionsFromEnv(path string, verbose bool) Options {
	return Options{
		Path:    path,
		Level:   os.Getenv("GEMCHAT_LOG_LEVEL"),
		JSON:    strings.EqualFold(os.Getenv("GEMCHAT_LOG_FORMAT"), "json"),
		Verbose: verbose,
	}
}

// Init replaces the global logger. It never fails: if the log file cannot
// be opened, logging is discarded and the open error is returned for the
// caller to surface as a warning.
func Init(opts Options) error {
	l := logrus.New()

	if opts.JSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	}

	level := logrus.InfoLevel
	if opts.Level != "" {
		if parsed, err := logrus.ParseLevel(opts.Level); err == nil {
			level = parsed
		}
	}
	if opts.Verbose {
		level = logrus.DebugLevel
	}
	l.SetLevel(level)

	var openErr error
	var c io.Closer
	switch {
	case opts.Verbose:
		l.SetOutput(os.Stderr)
	case opts.Path != "":
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0700); err != nil {
			openErr = err
			l.SetOutput(io.Discard)
			break
		}
		f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			openErr = err
			l.SetOutput(io.Discard)
			break
		}
		l.SetOutput(f)
		c = f
	default:
		l.SetOutput(io.Discard)
	}

	mu.Lock()
	old := closer
	logger = l
	closer = c
	mu.Unlock()

	if old != nil {
		old.Close()
	}
	return openErr
}

// SetOutput redirects the global logger. Tests use it to capture entries.
func SetOutput(w io.Writer) {
	mu.RLock()
	defer mu.RUnlock()
	logger.SetOutput(w)
}

// L returns the global logger.
func L() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Close flushes and closes the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	logger.SetOutput(io.Discard)
	return err
}
