// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// # Key Types
//
//   - Settings: Flat session settings (model, generation parameters, paths)
//   - ConfigError: A recovered settings problem, reported as a warning
//   - Watcher: fsnotify-based reload of the settings file
//
// # Configuration Precedence
//
// Highest first:
//   - Command-line flags (applied by the cli package through Set)
//   - Environment variables (GEMINI_API_KEY, GEMCHAT_*)
//   - .env files (working directory, then ~/.gemchat/.env)
//   - ~/.gemchat/config.toml (or GEMCHAT_CONFIG)
//   - Built-in defaults
//
// # Usage
//
//	config.LoadDotEnv()
//	settings, warnings := config.Load(config.DefaultPath())
//	for _, w := range warnings {
//	    fmt.Fprintln(os.Stderr, "Warning:", w)
//	}
//
//	if err := settings.Set("temperature", "0.5"); err != nil {
//	    // value rejected, setting unchanged
//	}
package config
