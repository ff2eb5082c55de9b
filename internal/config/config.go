// Package config loads client configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root client configuration.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// APIConfig configures the transport client.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Version string        `yaml:"version"`
	Timeout time.Duration `yaml:"timeout"`
}

// RealtimeConfig configures the realtime channel.
type RealtimeConfig struct {
	URL                  string        `yaml:"url"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	OutboxLimit          int           `yaml:"outbox_limit"`
}

// StorageConfig configures durable local storage.
type StorageConfig struct {
	// Path is the SQLite database file. Empty selects the in-memory store.
	Path string `yaml:"path"`
}

// LoggingConfig configures logging output.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePrefix string `yaml:"file_prefix"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "https://api.afrobizconnect.com",
			Version: "v1",
			Timeout: 10 * time.Second,
		},
		Realtime: RealtimeConfig{
			URL:                  "wss://api.afrobizconnect.com/ws",
			HandshakeTimeout:     10 * time.Second,
			ReconnectBaseDelay:   time.Second,
			ReconnectMaxDelay:    30 * time.Second,
			MaxReconnectAttempts: 5,
			OutboxLimit:          64,
		},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stderr"},
	}
}

// Load reads configuration from path, applies defaults for unset fields, and
// then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads from path but falls back to defaults (plus env
// overrides) when the file is missing.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		cfg = Default()
		applyEnv(cfg)
	}
	return cfg
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("config: api.base_url is required")
	}
	if c.API.Version == "" {
		return fmt.Errorf("config: api.version is required")
	}
	if c.Realtime.URL == "" {
		return fmt.Errorf("config: realtime.url is required")
	}
	if c.Realtime.MaxReconnectAttempts < 0 {
		return fmt.Errorf("config: realtime.max_reconnect_attempts must not be negative")
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("AFROBIZ_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("AFROBIZ_API_VERSION"); v != "" {
		cfg.API.Version = v
	}
	if v := os.Getenv("AFROBIZ_WS_URL"); v != "" {
		cfg.Realtime.URL = v
	}
	if v := os.Getenv("AFROBIZ_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("AFROBIZ_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AFROBIZ_API_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.API.Timeout = time.Duration(ms) * time.Millisecond
		}
	}
}
