// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "peerstate.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Environment != Development {
		t.Errorf("Environment = %s, want development", cfg.Environment)
	}
	if cfg.Keychain.WorkFactor != 18 {
		t.Errorf("WorkFactor = %d, want 18", cfg.Keychain.WorkFactor)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.Backoff != 10*time.Millisecond {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	cfg.Expand()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults: %v", err)
	}
}

func TestLoadRequiresPeerstateConfig(t *testing.T) {
	t.Setenv("PEERSTATE_CONFIG", "")
	_, err := Load()
	if err == nil {
		t.Fatal("Load() without PEERSTATE_CONFIG succeeded")
	}
	if !strings.HasPrefix(err.Error(), "PEERSTATE_CONFIG environment variable not set") {
		t.Errorf("error = %q", err)
	}
}

func TestLoadWithPeerstateConfig(t *testing.T) {
	path := writeConfig(t, `
identity: user1@example.com
paths:
  root: /test/root
keychain:
  work_factor: 12
  transition_window: 48h
retry:
  max_attempts: 3
  backoff: 5ms
filters:
  rules: ${PEERSTATE_ROOT}/rules.yaml
log:
  level: debug
  format: json
`)
	t.Setenv("PEERSTATE_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Identity != "user1@example.com" {
		t.Errorf("Identity = %q", cfg.Identity)
	}
	if cfg.Paths.Keystore != "/test/root/keystore.db" {
		t.Errorf("Keystore = %q, want /test/root/keystore.db", cfg.Paths.Keystore)
	}
	if cfg.Filters.Rules != "/test/root/rules.yaml" {
		t.Errorf("Rules = %q", cfg.Filters.Rules)
	}
	if cfg.Keychain.WorkFactor != 12 || cfg.Keychain.TransitionWindow != 48*time.Hour {
		t.Errorf("Keychain = %+v", cfg.Keychain)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.Backoff != 5*time.Millisecond || cfg.Retry.MaxBackoff != time.Second {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestLoadFileRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "keychian:\n  work_factor: 12\n")
	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile() accepted a misspelled section")
	}
}

func TestLoadFileEmpty(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("LoadFile(empty) error: %v", err)
	}
	if cfg.Keychain.WorkFactor != 18 {
		t.Errorf("WorkFactor = %d, want the default", cfg.Keychain.WorkFactor)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile(missing) succeeded")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
environment: production
keychain:
  work_factor: 10
log:
  level: debug
production:
  keychain:
    work_factor: 20
  log:
    level: warn
development:
  log:
    level: error
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if cfg.Keychain.WorkFactor != 20 {
		t.Errorf("WorkFactor = %d, want the production override 20", cfg.Keychain.WorkFactor)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"environment", func(c *Config) { c.Environment = "staging" }, "invalid environment"},
		{"keystore", func(c *Config) { c.Paths.Keystore = "" }, "paths.keystore"},
		{"work factor", func(c *Config) { c.Keychain.WorkFactor = 0 }, "keychain.work_factor"},
		{"production work factor", func(c *Config) {
			c.Environment = Production
			c.Keychain.WorkFactor = 10
		}, "at least 18 in production"},
		{"window", func(c *Config) { c.Keychain.TransitionWindow = -time.Second }, "transition_window"},
		{"attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
		{"backoff", func(c *Config) { c.Retry.Backoff = -1 }, "backoff"},
		{"level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, test := range tests {
		cfg := Default()
		cfg.Expand()
		test.mutate(cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), test.want) {
			t.Errorf("%s: Validate() = %v, want error containing %q", test.name, err, test.want)
		}
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("PEERSTATE_TEST_DIR", "/from/env")
	vars := map[string]string{"PEERSTATE_ROOT": "/root/dir"}
	tests := []struct {
		input, want string
	}{
		{"${PEERSTATE_ROOT}/keystore.db", "/root/dir/keystore.db"},
		{"${PEERSTATE_TEST_DIR}/x", "/from/env/x"},
		{"${PEERSTATE_UNSET_VAR:-/fallback}/x", "/fallback/x"},
		{"/plain/path", "/plain/path"},
	}
	for _, test := range tests {
		if got := expandVars(test.input, vars); got != test.want {
			t.Errorf("expandVars(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestEnsurePaths(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Paths.Keystore = filepath.Join(root, "a", "keystore.db")
	cfg.Paths.State = filepath.Join(root, "b", "state.cbor")
	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths() error: %v", err)
	}
	for _, dir := range []string{"a", "b"} {
		if info, err := os.Stat(filepath.Join(root, dir)); err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", dir, err)
		}
	}
}

func TestLogHandler(t *testing.T) {
	var buffer bytes.Buffer
	logger := slog.New(LogConfig{Level: "warn", Format: "json"}.Handler(&buffer))
	logger.Info("hidden")
	logger.Warn("shown", "path", "/counter")
	output := buffer.String()
	if strings.Contains(output, "hidden") {
		t.Error("info record written at warn level")
	}
	if !strings.Contains(output, `"path":"/counter"`) {
		t.Errorf("JSON output = %q", output)
	}
}
