// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v6"

	"github.com/jeranaias/chatterm/internal/model"
	"github.com/jeranaias/chatterm/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete chatterm configuration.
type Config struct {
	Backend BackendConfig `toml:"backend"`
	Gateway GatewayConfig `toml:"gateway"`
	Auth    AuthConfig    `toml:"auth"`
	History HistoryConfig `toml:"history"`
	UI      UIConfig      `toml:"ui"`
}

// BackendConfig points at the chat backend.
type BackendConfig struct {
	// BaseURL is the root of the backend API.
	BaseURL string `toml:"base_url" env:"CHATTERM_BACKEND_URL"`
	// DefaultModel is the model identifier carried on sends when the
	// user has not picked one.
	DefaultModel string `toml:"default_model" env:"CHATTERM_MODEL"`
	// TimeoutSecs bounds a single backend request.
	TimeoutSecs int `toml:"timeout_secs" env:"CHATTERM_TIMEOUT_SECS"`
}

// GatewayConfig configures the local HTTP gateway (`chatterm serve`).
type GatewayConfig struct {
	// Addr is the listen address.
	Addr string `toml:"addr" env:"CHATTERM_GATEWAY_ADDR"`
	// RateLimitPerSec is the per-client request rate; 0 disables limiting.
	RateLimitPerSec float64 `toml:"rate_limit_per_sec" env:"CHATTERM_RATE_LIMIT"`
	// RateLimitBurst is the per-client burst allowance.
	RateLimitBurst int `toml:"rate_limit_burst" env:"CHATTERM_RATE_BURST"`
	// AllowPrefixes extends the guard's built-in allow-list of path
	// prefixes that bypass authentication.
	AllowPrefixes []string `toml:"allow_prefixes"`
}

// AuthConfig configures credential storage.
type AuthConfig struct {
	// CredentialDir holds the encrypted credential file and its key.
	// Empty means ~/.chatterm.
	CredentialDir string `toml:"credential_dir" env:"CHATTERM_CREDENTIAL_DIR"`
}

// HistoryConfig configures the chat-list cache.
type HistoryConfig struct {
	// Limit is the page size requested from the history endpoint.
	Limit int `toml:"limit" env:"CHATTERM_HISTORY_LIMIT"`
	// MirrorPath is the sqlite stale-while-revalidate mirror; empty
	// disables the mirror.
	MirrorPath string `toml:"mirror_path" env:"CHATTERM_HISTORY_MIRROR"`
}

// UIConfig contains terminal UI configuration.
type UIConfig struct {
	// Theme is "dark", "light" or "auto".
	Theme string `toml:"theme" env:"CHATTERM_THEME"`
	// Markdown renders assistant replies through the markdown renderer.
	Markdown bool `toml:"markdown" env:"CHATTERM_MARKDOWN"`
	// CompactMode hides the sidebar by default.
	CompactMode bool `toml:"compact_mode"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with built-in defaults.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:      "http://localhost:8000",
			DefaultModel: model.DefaultChatModel,
			TimeoutSecs:  60,
		},
		Gateway: GatewayConfig{
			Addr:            "localhost:8787",
			RateLimitPerSec: 10,
			RateLimitBurst:  20,
		},
		History: HistoryConfig{
			Limit: 20,
		},
		UI: UIConfig{
			Theme:    "dark",
			Markdown: true,
		},
	}
}

// =============================================================================
// PATH HELPERS
// =============================================================================

// Dir returns the chatterm configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".chatterm"), nil
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
	return os.MkdirAll(dir, 0o755)
}

// ensureSecurePermissions tightens the config file to 0600. The file can
// hold a backend URL with embedded credentials.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		if err := os.Chmod(path, 0o600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load resolves the effective configuration: defaults, then the config
// file if present, then environment overrides, then validation.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return finish(Default())
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file, applies
// environment overrides, and validates.
func LoadFromPath(path string) (*Config, error) {
	// SECURITY: fix permissions before reading; best effort.
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	return finish(cfg)
}

// finish applies env overrides, fills gaps, and validates.
func finish(cfg *Config) (*Config, error) {
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to the default path atomically.
func (c *Config) Save() error {
	if err := EnsureDir(); err != nil {
		return err
	}
	path, err := Path()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return util.AtomicWriteFile(path, buf.Bytes(), 0o600)
}

// =============================================================================
// DEFAULTS & VALIDATION
// =============================================================================

// SetDefaults fills any zero values with defaults so a sparse config
// file stays valid.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = d.Backend.BaseURL
	}
	if c.Backend.DefaultModel == "" {
		c.Backend.DefaultModel = d.Backend.DefaultModel
	}
	if c.Backend.TimeoutSecs <= 0 {
		c.Backend.TimeoutSecs = d.Backend.TimeoutSecs
	}
	if c.Gateway.Addr == "" {
		c.Gateway.Addr = d.Gateway.Addr
	}
	if c.Gateway.RateLimitBurst <= 0 {
		c.Gateway.RateLimitBurst = d.Gateway.RateLimitBurst
	}
	if c.History.Limit <= 0 {
		c.History.Limit = d.History.Limit
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.base_url %q is not an absolute URL", c.Backend.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.base_url scheme %q is not http(s)", u.Scheme)
	}
	if c.Gateway.RateLimitPerSec < 0 {
		return fmt.Errorf("gateway.rate_limit_per_sec must not be negative")
	}
	switch c.UI.Theme {
	case "dark", "light", "auto":
	default:
		return fmt.Errorf("ui.theme %q is not one of dark, light, auto", c.UI.Theme)
	}
	return nil
}
