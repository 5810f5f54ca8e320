// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local use and tests.
	Development Environment = "development"
	// Production is for long-lived peers holding real keys.
	Production Environment = "production"
)

// ProductionMinWorkFactor is the lowest scrypt work factor accepted in
// production. Lower values are only useful to keep tests fast.
const ProductionMinWorkFactor = 18

// Config is the master configuration for peerstate tools.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Identity is the default user for commands that log in.
	Identity string `yaml:"identity"`

	// Paths configures file locations.
	Paths PathsConfig `yaml:"paths"`

	// Keychain configures key storage and rotation.
	Keychain KeychainConfig `yaml:"keychain"`

	// Retry configures dispatch retries.
	Retry RetryConfig `yaml:"retry"`

	// Filters configures the authorization and encryption rules.
	Filters FiltersConfig `yaml:"filters"`

	// Log configures the process logger.
	Log LogConfig `yaml:"log"`

	// Per-environment overrides, applied after the base config.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths    *PathsConfig    `yaml:"paths,omitempty"`
	Keychain *KeychainConfig `yaml:"keychain,omitempty"`
	Retry    *RetryConfig    `yaml:"retry,omitempty"`
	Log      *LogConfig      `yaml:"log,omitempty"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// Root is the base directory for peerstate data.
	Root string `yaml:"root"`

	// Keystore is the SQLite database holding sealed credentials and
	// the public key directory.
	// Default: ${PEERSTATE_ROOT}/keystore.db
	Keystore string `yaml:"keystore"`

	// State is the file the CLI keeps its replica of the tree in.
	// Default: ${PEERSTATE_ROOT}/state.cbor
	State string `yaml:"state"`
}

// KeychainConfig configures key storage and rotation.
type KeychainConfig struct {
	// WorkFactor is the scrypt work factor (log2 N) sealing credentials.
	// Default: 18
	WorkFactor int `yaml:"work_factor"`

	// TransitionWindow is how long archived keys stay available for
	// decryption after rotation. Zero keeps them until discarded.
	// Default: 720h
	TransitionWindow time.Duration `yaml:"transition_window"`
}

// RetryConfig configures dispatch retries.
type RetryConfig struct {
	// MaxAttempts bounds how often one action is applied before giving up.
	// Default: 5
	MaxAttempts int `yaml:"max_attempts"`

	// Backoff is the wait before the second attempt; it doubles per attempt.
	// Default: 10ms
	Backoff time.Duration `yaml:"backoff"`

	// MaxBackoff caps the wait.
	// Default: 1s
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// FiltersConfig locates the rules document.
type FiltersConfig struct {
	// Rules is a YAML or JSONC rules document. Empty denies every write.
	Rules string `yaml:"rules"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Format is "text" or "json".
	// Default: text
	Format string `yaml:"format"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:     "${HOME}/.local/share/peerstate",
			Keystore: "${PEERSTATE_ROOT}/keystore.db",
			State:    "${PEERSTATE_ROOT}/state.cbor",
		},
		Keychain: KeychainConfig{
			WorkFactor:       18,
			TransitionWindow: 30 * 24 * time.Hour,
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			Backoff:     10 * time.Millisecond,
			MaxBackoff:  time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from the PEERSTATE_CONFIG environment
// variable. There is no search path: if the variable is unset, this
// fails.
func Load() (*Config, error) {
	configPath := os.Getenv("PEERSTATE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("PEERSTATE_CONFIG environment variable not set; " +
			"set it to the path of your peerstate.yaml config file, or use --config")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path over the
// defaults, applies the environment's overrides, and expands
// variables in path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnvironmentOverrides()
	cfg.Expand()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.Keystore != "" {
			c.Paths.Keystore = overrides.Paths.Keystore
		}
		if overrides.Paths.State != "" {
			c.Paths.State = overrides.Paths.State
		}
	}

	if overrides.Keychain != nil {
		if overrides.Keychain.WorkFactor != 0 {
			c.Keychain.WorkFactor = overrides.Keychain.WorkFactor
		}
		if overrides.Keychain.TransitionWindow != 0 {
			c.Keychain.TransitionWindow = overrides.Keychain.TransitionWindow
		}
	}

	if overrides.Retry != nil {
		if overrides.Retry.MaxAttempts != 0 {
			c.Retry.MaxAttempts = overrides.Retry.MaxAttempts
		}
		if overrides.Retry.Backoff != 0 {
			c.Retry.Backoff = overrides.Retry.Backoff
		}
		if overrides.Retry.MaxBackoff != 0 {
			c.Retry.MaxBackoff = overrides.Retry.MaxBackoff
		}
	}

	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.Format != "" {
			c.Log.Format = overrides.Log.Format
		}
	}
}

// Expand expands ${VAR} and ${VAR:-default} patterns in path fields.
// ${PEERSTATE_ROOT} refers to the expanded Paths.Root.
func (c *Config) Expand() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["PEERSTATE_ROOT"] = c.Paths.Root

	c.Paths.Keystore = expandVars(c.Paths.Keystore, vars)
	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Filters.Rules = expandVars(c.Filters.Rules, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}, checking vars before
// the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Paths.Keystore == "" {
		errs = append(errs, fmt.Errorf("paths.keystore is required"))
	}
	if c.Keychain.WorkFactor < 1 || c.Keychain.WorkFactor > 30 {
		errs = append(errs, fmt.Errorf("keychain.work_factor must be between 1 and 30, got %d", c.Keychain.WorkFactor))
	}
	if c.Environment == Production && c.Keychain.WorkFactor < ProductionMinWorkFactor {
		errs = append(errs, fmt.Errorf("keychain.work_factor must be at least %d in production", ProductionMinWorkFactor))
	}
	if c.Keychain.TransitionWindow < 0 {
		errs = append(errs, fmt.Errorf("keychain.transition_window must not be negative"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1"))
	}
	if c.Retry.Backoff < 0 || c.Retry.MaxBackoff < 0 {
		errs = append(errs, fmt.Errorf("retry backoff durations must not be negative"))
	}
	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", logLevels))
	}
	if !slices.Contains(logFormats, strings.ToLower(c.Log.Format)) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", logFormats))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the directories holding the configured files.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.Keystore, c.Paths.State} {
		if path == "" {
			continue
		}
		directory := filepath.Dir(path)
		if err := os.MkdirAll(directory, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", directory, err)
		}
	}
	return nil
}

// SlogLevel returns the configured slog level.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Handler returns a handler writing to w in the configured format.
func (l LogConfig) Handler(w io.Writer) slog.Handler {
	options := &slog.HandlerOptions{Level: l.SlogLevel()}
	if strings.ToLower(l.Format) == "json" {
		return slog.NewJSONHandler(w, options)
	}
	return slog.NewTextHandler(w, options)
}
