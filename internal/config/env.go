// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvAPIKey         = "GEMINI_API_KEY"
	EnvAPIKeyFallback = "GOOGLE_API_KEY"
	EnvModel          = "GEMCHAT_MODEL"
	EnvHistoryPath    = "GEMCHAT_HISTORY_PATH"
	EnvTemperature    = "GEMCHAT_TEMPERATURE"
	EnvSystemPrompt   = "GEMCHAT_SYSTEM_PROMPT"
	EnvConfigPath     = "GEMCHAT_CONFIG"
)

// LoadDotEnv loads .env from the working directory and from the config
// directory. Variables already present in the environment are never
// overridden. Missing files are not an error.
func LoadDotEnv() []*ConfigError {
	var warnings []*ConfigError
	for _, path := range []string{".env", filepath.Join(Dir(), ".env")} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			warnings = append(warnings, &ConfigError{Path: path, Message: "cannot parse .env file", Err: err})
		}
	}
	return warnings
}

// ApplyEnv applies environment overrides:
//   - GEMINI_API_KEY (or GOOGLE_API_KEY): always wins over a stored key
//   - GEMCHAT_MODEL: overrides model_name
//   - GEMCHAT_HISTORY_PATH: overrides history_path
//   - GEMCHAT_TEMPERATURE: overrides temperature (ignored with a warning if invalid)
//   - GEMCHAT_SYSTEM_PROMPT: overrides system_prompt
func (s *Settings) ApplyEnv() []*ConfigError {
	var warnings []*ConfigError

	if key := os.Getenv(EnvAPIKey); key != "" {
		s.APIKey = strings.TrimSpace(key)
	} else if key := os.Getenv(EnvAPIKeyFallback); key != "" {
		s.APIKey = strings.TrimSpace(key)
	}

	if model := os.Getenv(EnvModel); model != "" {
		s.ModelName = strings.TrimSpace(model)
	}

	if path := os.Getenv(EnvHistoryPath); path != "" {
		s.HistoryPath = path
	}

	if temp := os.Getenv(EnvTemperature); temp != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(temp), 64)
		switch {
		case err != nil:
			warnings = append(warnings, &ConfigError{Field: EnvTemperature, Message: "not a number, ignored", Err: err})
		case !inUnitRange(f):
			warnings = append(warnings, &ConfigError{Field: EnvTemperature, Message: "outside [0, 1], ignored", Err: errors.New(temp)})
		default:
			s.Temperature = f
		}
	}

	if prompt, ok := os.LookupEnv(EnvSystemPrompt); ok {
		s.SystemPrompt = prompt
	}

	return warnings
}
