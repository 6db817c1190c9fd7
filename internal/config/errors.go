// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
)

// ErrMissingAPIKey is returned by RequireAPIKey when no credential is set.
// It is the only configuration problem that stops gemchat, and only once a
// request is about to be made.
var ErrMissingAPIKey = errors.New("no API key configured: set the " + EnvAPIKey + " environment variable")

// ConfigError describes a settings problem that was recovered by falling
// back to a default. It is reported as a warning, never returned as fatal.
type ConfigError struct {
	Path    string // Settings file, if the problem came from a file
	Field   string // Settings key, empty for whole-file problems
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	var prefix string
	switch {
	case e.Field != "" && e.Path != "":
		prefix = fmt.Sprintf("%s: %s", e.Path, e.Field)
	case e.Field != "":
		prefix = e.Field
	case e.Path != "":
		prefix = e.Path
	default:
		prefix = "config"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
