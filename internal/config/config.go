// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides settings loading and management for gemchat.
//
// Settings come from a TOML file, .env files, environment variables and
// command-line flags. Every field has a built-in default; a missing,
// malformed or out-of-range value falls back to that default with a warning
// and loading never aborts.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/gemchat/internal/util"
)

// =============================================================================
// SETTINGS
// =============================================================================

// Settings is the flat set of options for a gemchat session.
// Field names in toml/json use snake_case and double as the keys accepted
// by Get and Set.
type Settings struct {
	// APIKey is read from the environment each run and never written back.
	APIKey string `toml:"api_key" json:"api_key"`

	// Generation parameters
	ModelName       string  `toml:"model_name" json:"model_name"`
	Temperature     float64 `toml:"temperature" json:"temperature"`
	TopP            float64 `toml:"top_p" json:"top_p"`
	MaxOutputTokens int     `toml:"max_output_tokens" json:"max_output_tokens"`
	SystemPrompt    string  `toml:"system_prompt" json:"system_prompt"`
	SafetyThreshold string  `toml:"safety_threshold" json:"safety_threshold"`

	// Transport
	TimeoutSeconds    int    `toml:"timeout_seconds" json:"timeout_seconds"`
	MaxRetries        int    `toml:"max_retries" json:"max_retries"`
	RequestsPerMinute int    `toml:"requests_per_minute" json:"requests_per_minute"`
	Transport         string `toml:"transport" json:"transport"`
	BaseURL           string `toml:"base_url" json:"base_url"`
	Stream            bool   `toml:"stream" json:"stream"`

	// History
	HistoryPath       string `toml:"history_path" json:"history_path"`
	MaxHistoryEntries int    `toml:"max_history_entries" json:"max_history_entries"`
	SendHistory       bool   `toml:"send_history" json:"send_history"`
	AutoSave          bool   `toml:"auto_save" json:"auto_save"`

	// Presentation
	Theme      string `toml:"theme" json:"theme"`
	Prompt     string `toml:"prompt" json:"prompt"`
	FormatCode bool   `toml:"format_code" json:"format_code"`

	// Attachments
	MaxAttachmentBytes int64 `toml:"max_attachment_bytes" json:"max_attachment_bytes"`
}

// Defaults
const (
	DefaultModel              = "gemini-2.0-flash"
	DefaultTemperature        = 0.7
	DefaultTopP               = 0.95
	DefaultMaxOutputTokens    = 2048
	DefaultTimeoutSeconds     = 60
	DefaultMaxRetries         = 3
	DefaultRequestsPerMinute  = 60
	DefaultTransport          = "http"
	DefaultBaseURL            = "https://generativelanguage.googleapis.com/v1beta"
	DefaultTheme              = "dark"
	DefaultPrompt             = "gemchat> "
	DefaultMaxHistoryEntries  = 100
	DefaultMaxAttachmentBytes = 10 << 20

	maxRetriesLimit = 10
)

// Themes lists the accepted theme names.
var Themes = []string{"dark", "light", "mono"}

// SafetyThresholds lists the accepted safety_threshold values. The empty
// string omits safetySettings from requests.
var SafetyThresholds = []string{
	"",
	"BLOCK_NONE",
	"BLOCK_ONLY_HIGH",
	"BLOCK_MEDIUM_AND_ABOVE",
	"BLOCK_LOW_AND_ABOVE",
}

// Transports lists the accepted transport values.
var Transports = []string{"http", "sdk"}

// Default returns settings with every field at its built-in default.
func Default() *Settings {
	return &Settings{
		ModelName:          DefaultModel,
		Temperature:        DefaultTemperature,
		TopP:               DefaultTopP,
		MaxOutputTokens:    DefaultMaxOutputTokens,
		TimeoutSeconds:     DefaultTimeoutSeconds,
		MaxRetries:         DefaultMaxRetries,
		RequestsPerMinute:  DefaultRequestsPerMinute,
		Transport:          DefaultTransport,
		BaseURL:            DefaultBaseURL,
		Stream:             true,
		HistoryPath:        DefaultHistoryPath(),
		MaxHistoryEntries:  DefaultMaxHistoryEntries,
		SendHistory:        true,
		AutoSave:           true,
		Theme:              DefaultTheme,
		Prompt:             DefaultPrompt,
		FormatCode:         true,
		MaxAttachmentBytes: DefaultMaxAttachmentBytes,
	}
}

// =============================================================================
// PATH HELPERS
// =============================================================================

// Dir returns the gemchat configuration directory (~/.gemchat).
// Falls back to a relative ".gemchat" when the home directory is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gemchat"
	}
	return filepath.Join(home, ".gemchat")
}

// DefaultPath returns the settings file path, honoring GEMCHAT_CONFIG.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return util.ExpandHome(p)
	}
	return filepath.Join(Dir(), "config.toml")
}

// DefaultHistoryPath returns the default history file path.
func DefaultHistoryPath() string {
	return filepath.Join(Dir(), "history.json")
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads settings from path and applies environment overrides.
//
// A missing file yields defaults silently. A file that cannot be parsed
// yields defaults plus one warning. Fields that are absent keep their
// default; fields with a bad type or out-of-range value are reset to their
// default with a warning each. Load never returns a fatal error.
func Load(path string) (*Settings, []*ConfigError) {
	s := Default()
	var warnings []*ConfigError

	if path != "" {
		warnings = append(warnings, s.loadFile(path)...)
	}

	warnings = append(warnings, s.ApplyEnv()...)
	warnings = append(warnings, s.Validate()...)
	return s, warnings
}

func (s *Settings) loadFile(path string) []*ConfigError {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return []*ConfigError{{Path: path, Message: "cannot read settings file, using defaults", Err: err}}
	}

	raw := make(map[string]interface{})
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return []*ConfigError{{Path: path, Message: "malformed settings file, using defaults", Err: err}}
	}

	// Apply keys in a stable order so warnings are deterministic
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var warnings []*ConfigError
	for _, key := range keys {
		if err := s.set(key, raw[key]); err != nil {
			warnings = append(warnings, &ConfigError{
				Path:    path,
				Field:   key,
				Message: "ignored, using default",
				Err:     err,
			})
		}
	}
	return warnings
}

// Save writes the settings to path as TOML. The API key is always blanked.
// SECURITY: Written atomically with 0600 permissions.
func (s *Settings) Save(path string) error {
	safe := s.Clone()
	safe.APIKey = ""

	var buf bytes.Buffer
	buf.WriteString("# gemchat settings\n")
	buf.WriteString("# The API key is read from GEMINI_API_KEY and is never stored here.\n\n")

	if err := toml.NewEncoder(&buf).Encode(safe); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate resets every out-of-range field to its default and returns one
// warning per reset field.
func (s *Settings) Validate() []*ConfigError {
	d := Default()
	var warnings []*ConfigError

	reset := func(field, msg string, apply func()) {
		apply()
		warnings = append(warnings, &ConfigError{Field: field, Message: msg + ", using default"})
	}

	if err := ValidateModelName(s.ModelName); err != nil {
		reset("model_name", err.Error(), func() { s.ModelName = d.ModelName })
	}
	if !inUnitRange(s.Temperature) {
		reset("temperature", fmt.Sprintf("%v is outside [0, 1]", s.Temperature), func() { s.Temperature = d.Temperature })
	}
	if !inUnitRange(s.TopP) {
		reset("top_p", fmt.Sprintf("%v is outside [0, 1]", s.TopP), func() { s.TopP = d.TopP })
	}
	if s.MaxOutputTokens <= 0 {
		reset("max_output_tokens", "must be positive", func() { s.MaxOutputTokens = d.MaxOutputTokens })
	}
	if s.TimeoutSeconds <= 0 {
		reset("timeout_seconds", "must be positive", func() { s.TimeoutSeconds = d.TimeoutSeconds })
	}
	if s.MaxRetries < 0 || s.MaxRetries > maxRetriesLimit {
		reset("max_retries", fmt.Sprintf("must be between 0 and %d", maxRetriesLimit), func() { s.MaxRetries = d.MaxRetries })
	}
	if s.RequestsPerMinute <= 0 {
		reset("requests_per_minute", "must be positive", func() { s.RequestsPerMinute = d.RequestsPerMinute })
	}
	if !contains(Transports, s.Transport) {
		reset("transport", fmt.Sprintf("unknown transport %q", s.Transport), func() { s.Transport = d.Transport })
	}
	if u, err := url.Parse(s.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		reset("base_url", "must be an http(s) URL", func() { s.BaseURL = d.BaseURL })
	}
	if strings.TrimSpace(s.HistoryPath) == "" {
		reset("history_path", "must not be empty", func() { s.HistoryPath = d.HistoryPath })
	}
	if s.MaxHistoryEntries <= 0 {
		reset("max_history_entries", "must be positive", func() { s.MaxHistoryEntries = d.MaxHistoryEntries })
	}
	if !contains(Themes, s.Theme) {
		reset("theme", fmt.Sprintf("unknown theme %q", s.Theme), func() { s.Theme = d.Theme })
	}
	if !contains(SafetyThresholds, s.SafetyThreshold) {
		reset("safety_threshold", fmt.Sprintf("unknown threshold %q", s.SafetyThreshold), func() { s.SafetyThreshold = d.SafetyThreshold })
	}
	if s.MaxAttachmentBytes <= 0 {
		reset("max_attachment_bytes", "must be positive", func() { s.MaxAttachmentBytes = d.MaxAttachmentBytes })
	}
	if s.Prompt == "" {
		s.Prompt = d.Prompt
	}

	s.HistoryPath = util.ExpandHome(s.HistoryPath)
	return warnings
}

// ValidateModelName checks that name can be placed in the request URL.
func ValidateModelName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("model name is empty")
	}
	if strings.ContainsAny(name, "/ \t?#") {
		return fmt.Errorf("model name %q contains invalid characters", name)
	}
	return nil
}

// ParseUnit parses a value that must lie in [0, 1], such as temperature.
func ParseUnit(value string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", value)
	}
	if !inUnitRange(f) {
		return 0, fmt.Errorf("%v is outside [0, 1]", f)
	}
	return f, nil
}

// ParsePositive parses a strictly positive integer, such as max_output_tokens.
func ParsePositive(value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", value)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%d must be positive", n)
	}
	return n, nil
}

func inUnitRange(f float64) bool {
	return f >= 0 && f <= 1
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// RequireAPIKey returns ErrMissingAPIKey when no key is configured.
// Called right before the first request, not at startup.
func (s *Settings) RequireAPIKey() error {
	if strings.TrimSpace(s.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// =============================================================================
// GET / SET BY KEY
// =============================================================================

// Keys returns every settings key in declaration order.
func Keys() []string {
	t := reflect.TypeOf(Settings{})
	keys := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		keys = append(keys, tagName(t.Field(i)))
	}
	return keys
}

// Get returns the string form of the named setting. The API key is redacted.
func (s *Settings) Get(key string) (string, error) {
	field, err := s.field(key)
	if err != nil {
		return "", err
	}
	if normalizeKey(key) == "api_key" {
		return redact(s.APIKey), nil
	}
	return fmt.Sprint(field.Interface()), nil
}

// Set parses value and assigns it to the named setting, then validates the
// result. An invalid value leaves the setting unchanged.
func (s *Settings) Set(key, value string) error {
	trial := s.Clone()
	if err := trial.set(key, value); err != nil {
		return err
	}
	if warnings := trial.Validate(); len(warnings) > 0 {
		return fmt.Errorf("invalid value for %s: %s", normalizeKey(key), strings.TrimSuffix(warnings[0].Message, ", using default"))
	}
	*s = *trial
	return nil
}

func (s *Settings) field(key string) (reflect.Value, error) {
	key = normalizeKey(key)
	v := reflect.ValueOf(s).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tagName(t.Field(i)) == key {
			return v.Field(i), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("unknown setting: %s", key)
}

func (s *Settings) set(key string, value interface{}) error {
	field, err := s.field(key)
	if err != nil {
		return err
	}
	return setFieldValue(field, value)
}

func tagName(f reflect.StructField) string {
	tag := f.Tag.Get("toml")
	if i := strings.IndexByte(tag, ','); i >= 0 {
		tag = tag[:i]
	}
	return tag
}

// normalizeKey accepts kebab-case and mixed case ("top-p", "Top_P").
func normalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "-", "_")
}

// setFieldValue sets a reflect.Value from a decoded TOML value or a string.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strings.TrimSpace(strVal), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value %q", strVal)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strings.TrimSpace(strVal), 64)
			if err != nil {
				return fmt.Errorf("invalid number %q", strVal)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := ParseBool(strVal)
			if err != nil {
				return err
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return errors.New("empty value")
	}

	switch field.Kind() {
	case reflect.Float64:
		// TOML integers are valid floats ("temperature = 1")
		if val.Kind() == reflect.Int64 || val.Kind() == reflect.Float64 {
			field.SetFloat(val.Convert(field.Type()).Float())
			return nil
		}
	case reflect.Int, reflect.Int64:
		if val.Kind() == reflect.Int64 {
			field.SetInt(val.Int())
			return nil
		}
	}

	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	return fmt.Errorf("expected %s, got %T", field.Kind(), value)
}

// ParseBool parses on/off style booleans.
// Accepts: true/false, yes/no, y/n, 1/0, on/off (case-insensitive)
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1", "on":
		return true, nil
	case "false", "no", "n", "0", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value: %s", s)
	}
}

// =============================================================================
// COPY / DISPLAY
// =============================================================================

// Clone returns a copy of the settings.
func (s *Settings) Clone() *Settings {
	clone := *s
	return &clone
}

// String returns the settings as indented JSON with the API key redacted.
func (s *Settings) String() string {
	safe := s.Clone()
	safe.APIKey = redact(s.APIKey)
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

func redact(key string) string {
	if key == "" {
		return ""
	}
	return "[REDACTED]"
}
