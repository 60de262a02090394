// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for inkwell.
//
// Configuration lives in TOML at ~/.inkwell/config.toml, with built-in
// defaults and environment variable overrides (INKWELL_*).
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/morganforge/inkwell/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete inkwell configuration.
type Config struct {
	Version string `toml:"version"`

	// LayoutMode selects the editing profile: "coding" or "writing".
	// It decides default models and the system prompts used for chat and
	// inline edits.
	LayoutMode string `toml:"layout_mode"`

	// Local (Ollama) provider configuration
	Local LocalConfig `toml:"local"`

	// Cloud (Anthropic) provider configuration
	Cloud CloudConfig `toml:"cloud"`

	// Routes maps request categories to model names
	Routes RoutesConfig `toml:"routes"`

	// Timeouts holds per-channel deadlines
	Timeouts TimeoutConfig `toml:"timeouts"`

	// Completion holds ghost-text tuning
	Completion CompletionConfig `toml:"completion"`

	// UI configuration
	UI UIConfig `toml:"ui"`
}

// LocalConfig contains local Ollama provider configuration.
type LocalConfig struct {
	// URL is the base URL of the Ollama server
	URL string `toml:"url"`
	// ChatModel is the default local model for chat and inline edits
	ChatModel string `toml:"chat_model"`
	// CompletionModel is the FIM-capable model used for ghost text
	CompletionModel string `toml:"completion_model"`
}

// CloudConfig contains cloud provider configuration.
type CloudConfig struct {
	// APIKey is the Anthropic API key. Empty means the cloud provider is
	// not configured; requests routed to it fail before any network call.
	APIKey string `toml:"api_key"`
	// Model is the default cloud model
	Model string `toml:"model"`
	// MaxTokens caps generated tokens per request
	MaxTokens int `toml:"max_tokens"`
	// RequestsPerMinute throttles outbound requests (0 = no throttle)
	RequestsPerMinute int `toml:"requests_per_minute"`
}

// RoutesConfig maps request categories to model names. An empty entry
// falls back to the layout-mode default.
type RoutesConfig struct {
	Chat       string `toml:"chat"`
	Completion string `toml:"completion"`
	InlineEdit string `toml:"inline_edit"`
}

// TimeoutConfig holds per-channel request deadlines in seconds.
type TimeoutConfig struct {
	ChatSecs       int `toml:"chat_secs"`
	CompletionSecs int `toml:"completion_secs"`
	InlineEditSecs int `toml:"inline_edit_secs"`
}

// Chat returns the chat deadline as a duration.
func (t TimeoutConfig) Chat() time.Duration { return time.Duration(t.ChatSecs) * time.Second }

// Completion returns the completion deadline as a duration.
func (t TimeoutConfig) Completion() time.Duration {
	return time.Duration(t.CompletionSecs) * time.Second
}

// InlineEdit returns the inline edit deadline as a duration.
func (t TimeoutConfig) InlineEdit() time.Duration {
	return time.Duration(t.InlineEditSecs) * time.Second
}

// CompletionConfig contains ghost-text completion tuning.
type CompletionConfig struct {
	// Enabled toggles the completion feature entirely
	Enabled bool `toml:"enabled"`
	// DebounceMs is the quiet period after the last keystroke before a
	// completion request is issued
	DebounceMs int `toml:"debounce_ms"`
	// PrefixMaxLines bounds the document context before the cursor
	PrefixMaxLines int `toml:"prefix_max_lines"`
	// SuffixMaxLines bounds the document context after the cursor
	SuffixMaxLines int `toml:"suffix_max_lines"`
	// MaxSuggestionChars caps the accepted suggestion length
	MaxSuggestionChars int `toml:"max_suggestion_chars"`
	// MaxSuggestionLines caps the suggestion height (0 = unlimited)
	MaxSuggestionLines int `toml:"max_suggestion_lines"`
}

// Debounce returns the debounce interval as a duration.
func (c CompletionConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme"`
	// ShowDiffPreview shows a diff before applying inline edits
	ShowDiffPreview bool `toml:"show_diff_preview"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version:    "1.0.0",
		LayoutMode: "coding",

		Local: LocalConfig{
			URL:             "http://127.0.0.1:11434",
			ChatModel:       "qwen2.5-coder:7b",
			CompletionModel: "deepseek-coder:1.3b",
		},

		Cloud: CloudConfig{
			APIKey:            "",
			Model:             "claude-3-5-haiku-latest",
			MaxTokens:         4096,
			RequestsPerMinute: 30,
		},

		Routes: RoutesConfig{},

		Timeouts: TimeoutConfig{
			ChatSecs:       120,
			CompletionSecs: 10,
			InlineEditSecs: 60,
		},

		Completion: CompletionConfig{
			Enabled:            true,
			DebounceMs:         300,
			PrefixMaxLines:     100,
			SuffixMaxLines:     20,
			MaxSuggestionChars: 500,
			MaxSuggestionLines: 0,
		},

		UI: UIConfig{
			Theme:           "dark",
			ShowDiffPreview: true,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the inkwell configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".inkwell"), nil
}

// Path returns the path to the TOML config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureDir ensures the config directory exists.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on the config file.
// The file can hold an API key, so it should be 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}

	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default config file, falling back to
// defaults when none exists. Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	path, err := Path()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := decodeTOML(cfg, path); err != nil {
				loadErr = fmt.Errorf("failed to load config: %w", err)
			} else {
				cfg.ApplyEnvOverrides()
				fillDefaults(cfg)
				if err := cfg.Validate(); err != nil {
					return nil, fmt.Errorf("invalid config: %w", err)
				}
				return cfg, nil
			}
		}
	}

	cfg.ApplyEnvOverrides()
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, loadErr
}

// LoadFromPath loads configuration from a specific file path with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}

	if err := decodeTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func decodeTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		// Permissions might not be fixable on all systems; warn and carry on.
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if cfg.LayoutMode == "" {
		cfg.LayoutMode = defaults.LayoutMode
	}

	if cfg.Local.URL == "" {
		cfg.Local.URL = defaults.Local.URL
	}
	if cfg.Local.ChatModel == "" {
		cfg.Local.ChatModel = defaults.Local.ChatModel
	}
	if cfg.Local.CompletionModel == "" {
		cfg.Local.CompletionModel = defaults.Local.CompletionModel
	}

	if cfg.Cloud.Model == "" {
		cfg.Cloud.Model = defaults.Cloud.Model
	}
	if cfg.Cloud.MaxTokens == 0 {
		cfg.Cloud.MaxTokens = defaults.Cloud.MaxTokens
	}
	if cfg.Cloud.RequestsPerMinute == 0 {
		cfg.Cloud.RequestsPerMinute = defaults.Cloud.RequestsPerMinute
	}

	if cfg.Timeouts.ChatSecs == 0 {
		cfg.Timeouts.ChatSecs = defaults.Timeouts.ChatSecs
	}
	if cfg.Timeouts.CompletionSecs == 0 {
		cfg.Timeouts.CompletionSecs = defaults.Timeouts.CompletionSecs
	}
	if cfg.Timeouts.InlineEditSecs == 0 {
		cfg.Timeouts.InlineEditSecs = defaults.Timeouts.InlineEditSecs
	}

	if cfg.Completion.DebounceMs == 0 {
		cfg.Completion.DebounceMs = defaults.Completion.DebounceMs
	}
	if cfg.Completion.PrefixMaxLines == 0 {
		cfg.Completion.PrefixMaxLines = defaults.Completion.PrefixMaxLines
	}
	if cfg.Completion.SuffixMaxLines == 0 {
		cfg.Completion.SuffixMaxLines = defaults.Completion.SuffixMaxLines
	}
	if cfg.Completion.MaxSuggestionChars == 0 {
		cfg.Completion.MaxSuggestionChars = defaults.Completion.MaxSuggestionChars
	}

	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// SAVE
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveTo(cfg, path)
}

// SaveTo saves the configuration to a TOML file with 0600 permissions
// (the file can hold an API key). The write is atomic so a watcher or a
// concurrent reader never sees a half-written file.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# inkwell configuration file")
	fmt.Fprintln(&buf, "# Generated by inkwell - edit with care")
	fmt.Fprintln(&buf, "")

	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	validModes := map[string]bool{"coding": true, "writing": true}
	if !validModes[strings.ToLower(c.LayoutMode)] {
		errs = append(errs, ValidationError{
			Field:   "layout_mode",
			Message: fmt.Sprintf("invalid mode '%s', must be one of: coding, writing", c.LayoutMode),
		})
	}

	if c.Local.URL != "" {
		if u, err := url.Parse(c.Local.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "local.url",
				Message: fmt.Sprintf("invalid URL '%s'", c.Local.URL),
			})
		}
	}

	if c.Cloud.MaxTokens < 0 {
		errs = append(errs, ValidationError{
			Field:   "cloud.max_tokens",
			Message: "must be non-negative",
		})
	}
	if c.Cloud.RequestsPerMinute < 0 {
		errs = append(errs, ValidationError{
			Field:   "cloud.requests_per_minute",
			Message: "must be non-negative",
		})
	}

	if c.Timeouts.ChatSecs < 0 || c.Timeouts.CompletionSecs < 0 || c.Timeouts.InlineEditSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "timeouts",
			Message: "deadlines must be non-negative",
		})
	}

	if c.Completion.DebounceMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "completion.debounce_ms",
			Message: "must be non-negative",
		})
	}
	if c.Completion.PrefixMaxLines < 1 {
		errs = append(errs, ValidationError{
			Field:   "completion.prefix_max_lines",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Completion.PrefixMaxLines),
		})
	}
	if c.Completion.SuffixMaxLines < 0 {
		errs = append(errs, ValidationError{
			Field:   "completion.suffix_max_lines",
			Message: "must be non-negative",
		})
	}
	if c.Completion.MaxSuggestionChars < 1 {
		errs = append(errs, ValidationError{
			Field:   "completion.max_suggestion_chars",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Completion.MaxSuggestionChars),
		})
	}

	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - INKWELL_OLLAMA_URL: overrides local.url
//   - INKWELL_API_KEY / ANTHROPIC_API_KEY: overrides cloud.api_key
//   - INKWELL_MODE: overrides layout_mode
//   - INKWELL_CHAT_MODEL: overrides routes.chat
//   - INKWELL_COMPLETION_MODEL: overrides routes.completion
//   - INKWELL_COMPLETION: set to "0" or "false" to disable ghost text
//   - INKWELL_DEBOUNCE_MS: overrides completion.debounce_ms
func (c *Config) ApplyEnvOverrides() {
	if u := os.Getenv("INKWELL_OLLAMA_URL"); u != "" {
		c.Local.URL = u
	}

	if key := os.Getenv("INKWELL_API_KEY"); key != "" {
		c.Cloud.APIKey = key
	} else if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && c.Cloud.APIKey == "" {
		c.Cloud.APIKey = key
	}

	if mode := os.Getenv("INKWELL_MODE"); mode != "" {
		c.LayoutMode = mode
	}

	if model := os.Getenv("INKWELL_CHAT_MODEL"); model != "" {
		c.Routes.Chat = model
	}
	if model := os.Getenv("INKWELL_COMPLETION_MODEL"); model != "" {
		c.Routes.Completion = model
	}

	if v := os.Getenv("INKWELL_COMPLETION"); v != "" {
		c.Completion.Enabled = !(v == "0" || strings.ToLower(v) == "false")
	}

	if v := os.Getenv("INKWELL_DEBOUNCE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			c.Completion.DebounceMs = ms
		}
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// Clone creates a deep copy of the configuration. Config contains only
// value types, so a struct copy suffices; kept as a method so callers do
// not depend on that detail.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Redacted returns a copy safe for logging, with the API key masked.
func (c *Config) Redacted() *Config {
	safe := c.Clone()
	if safe.Cloud.APIKey != "" {
		safe.Cloud.APIKey = "[REDACTED]"
	}
	return safe
}

// =============================================================================
// GLOBAL INSTANCE (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
// Consumers that cache derived state (the route table) re-derive it from
// the new snapshot.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
