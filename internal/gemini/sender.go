// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/logging"
)

// New builds the Sender selected by settings.Transport. The API key must
// already be present; callers check settings.RequireAPIKey first.
func New(settings *config.Settings) (Sender, error) {
	if err := settings.RequireAPIKey(); err != nil {
		return nil, err
	}

	logging.L().WithFields(logrus.Fields{
		"transport": settings.Transport,
		"model":     settings.ModelName,
		"key":       keyFingerprint(settings.APIKey),
	}).Info("creating client")

	cfg := ConfigFromSettings(settings)
	if settings.Transport == "sdk" {
		return NewSDKClient(cfg), nil
	}
	return NewClient(cfg), nil
}

// ConfigFromSettings maps settings onto a ClientConfig.
func ConfigFromSettings(settings *config.Settings) *ClientConfig {
	cfg := DefaultConfig()
	cfg.APIKey = settings.APIKey
	if settings.BaseURL != "" {
		cfg.BaseURL = settings.BaseURL
	}
	if settings.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(settings.TimeoutSeconds) * time.Second
	}
	cfg.MaxRetries = settings.MaxRetries
	if settings.RequestsPerMinute > 0 {
		cfg.RequestsPerMinute = settings.RequestsPerMinute
	}
	return cfg
}

// ParamsFromSettings extracts the per-request generation parameters.
func ParamsFromSettings(settings *config.Settings) Params {
	return Params{
		Model:           settings.ModelName,
		Temperature:     settings.Temperature,
		TopP:            settings.TopP,
		MaxOutputTokens: settings.MaxOutputTokens,
		SafetyThreshold: settings.SafetyThreshold,
	}
}
