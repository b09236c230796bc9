// Package config loads the editor client configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the client configuration.
type Config struct {
	ServerURL string `toml:"server_url"`
	User      string `toml:"user"`

	SaveDelay         time.Duration `toml:"save_delay"`
	CompletionDelay   time.Duration `toml:"completion_delay"`
	CompletionTimeout time.Duration `toml:"completion_timeout"`
	HeartbeatInterval time.Duration `toml:"heartbeat_interval"`
	AcceptKey         string        `toml:"accept_key"`

	WriteWait time.Duration `toml:"write_wait"`
	PongWait  time.Duration `toml:"pong_wait"`

	Backoff BackoffConfig `toml:"backoff"`
}

// BackoffConfig holds reconnect settings.
type BackoffConfig struct {
	BaseDelay   time.Duration `toml:"base_delay"`
	MaxDelay    time.Duration `toml:"max_delay"`
	MaxAttempts int           `toml:"max_attempts"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ServerURL:         "ws://localhost:8080/ws",
		SaveDelay:         time.Second,
		CompletionDelay:   1500 * time.Millisecond,
		CompletionTimeout: 10 * time.Second,
		HeartbeatInterval: 5 * time.Second,
		AcceptKey:         "Tab",
		WriteWait:         10 * time.Second,
		PongWait:          60 * time.Second,
		Backoff: BackoffConfig{
			BaseDelay:   time.Second,
			MaxDelay:    time.Minute,
			MaxAttempts: 5,
		},
	}
}

// Load reads the TOML file at path, or returns defaults if path is empty or
// the file does not exist. Missing fields take their defaults and
// $COLLAB_SERVER_URL / $COLLAB_USER override the file.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load config %s: %w", path, err)
			}
		}
	}

	// Apply defaults for missing fields
	defaults := Default()
	if cfg.ServerURL == "" {
		cfg.ServerURL = defaults.ServerURL
	}
	if cfg.SaveDelay == 0 {
		cfg.SaveDelay = defaults.SaveDelay
	}
	if cfg.CompletionDelay == 0 {
		cfg.CompletionDelay = defaults.CompletionDelay
	}
	if cfg.CompletionTimeout == 0 {
		cfg.CompletionTimeout = defaults.CompletionTimeout
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if cfg.AcceptKey == "" {
		cfg.AcceptKey = defaults.AcceptKey
	}
	if cfg.WriteWait == 0 {
		cfg.WriteWait = defaults.WriteWait
	}
	if cfg.PongWait == 0 {
		cfg.PongWait = defaults.PongWait
	}
	if cfg.Backoff.BaseDelay == 0 {
		cfg.Backoff.BaseDelay = defaults.Backoff.BaseDelay
	}
	if cfg.Backoff.MaxDelay == 0 {
		cfg.Backoff.MaxDelay = defaults.Backoff.MaxDelay
	}
	if cfg.Backoff.MaxAttempts == 0 {
		cfg.Backoff.MaxAttempts = defaults.Backoff.MaxAttempts
	}

	if v := os.Getenv("COLLAB_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("COLLAB_USER"); v != "" {
		cfg.User = v
	}
	return &cfg, nil
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("server_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server_url: scheme must be ws or wss, got %q", u.Scheme)
	}
	if c.SaveDelay <= 0 {
		return errors.New("save_delay must be positive")
	}
	if c.CompletionDelay <= 0 {
		return errors.New("completion_delay must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		return errors.New("heartbeat_interval must be positive")
	}
	if c.Backoff.BaseDelay <= 0 {
		return errors.New("backoff.base_delay must be positive")
	}
	if c.Backoff.MaxDelay < c.Backoff.BaseDelay {
		return errors.New("backoff.max_delay must not be below backoff.base_delay")
	}
	if c.Backoff.MaxAttempts <= 0 {
		return errors.New("backoff.max_attempts must be positive")
	}
	if c.PongWait <= 0 || c.WriteWait <= 0 {
		return errors.New("write_wait and pong_wait must be positive")
	}
	return nil
}

// Warnings reports settings that work but are probably not intended.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.CompletionDelay <= c.SaveDelay {
		warnings = append(warnings, fmt.Sprintf(
			"completion_delay (%s) is not longer than save_delay (%s); suggestions will be requested before edits are saved",
			c.CompletionDelay, c.SaveDelay))
	}
	if c.CompletionTimeout <= c.CompletionDelay {
		warnings = append(warnings, "completion_timeout is shorter than completion_delay")
	}
	return warnings
}

// URL returns the server URL with the user query parameter set.
func (c *Config) URL() (string, error) {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return "", err
	}
	if c.User != "" {
		q := u.Query()
		q.Set("user", c.User)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
