// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/peerstate/peerstate/lib/keychain"
)

const testRules = `engine: cel
auth:
  /counter: "true"
  /secret: "true"
  /users/:user: "actor == params.user"
encryption:
  /secret: '["bob"]'
`

// fixture is a shared keystore and rules file with one config file
// and replica per user, standing in for several machines exchanging
// action files.
type fixture struct {
	t   *testing.T
	dir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "rules.yaml"), []byte(testRules), 0o600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return &fixture{t: t, dir: dir}
}

// flags returns the common flags for user, writing their config and
// passphrase files on first use.
func (f *fixture) flags(user string) []string {
	f.t.Helper()
	configPath := filepath.Join(f.dir, user+".yaml")
	passphrasePath := filepath.Join(f.dir, user+".passphrase")
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		cfg := fmt.Sprintf(`environment: development
identity: %[2]s
paths:
  root: %[1]s
  keystore: ${PEERSTATE_ROOT}/keystore.db
  state: ${PEERSTATE_ROOT}/%[2]s.state
keychain:
  work_factor: 10
filters:
  rules: ${PEERSTATE_ROOT}/rules.yaml
log:
  level: error
`, f.dir, user)
		if err := os.WriteFile(configPath, []byte(cfg), 0o600); err != nil {
			f.t.Fatalf("WriteFile() error: %v", err)
		}
		if err := os.WriteFile(passphrasePath, []byte("passphrase of "+user+"\n"), 0o600); err != nil {
			f.t.Fatalf("WriteFile() error: %v", err)
		}
	}
	return []string{"--config", configPath, "--passphrase-file", passphrasePath}
}

func (f *fixture) path(name string) string { return filepath.Join(f.dir, name) }

// run executes a command as user and returns stdout.
func (f *fixture) run(user, command string, args ...string) (string, error) {
	f.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{command}, f.flags(user)...)
	full = append(full, args...)
	err := run(context.Background(), full, &stdout, &stderr)
	return stdout.String(), err
}

// mustRun is run that fails the test on error.
func (f *fixture) mustRun(user, command string, args ...string) string {
	f.t.Helper()
	out, err := f.run(user, command, args...)
	if err != nil {
		f.t.Fatalf("peerstate %s as %s: %v\n%s", command, user, err, out)
	}
	return out
}

func TestInitEnrollsAndLogsIn(t *testing.T) {
	f := newFixture(t)

	first := f.mustRun("alice", "init")
	if !strings.Contains(first, "identity: alice") {
		t.Fatalf("init output = %q, want identity line", first)
	}
	second := f.mustRun("alice", "init")
	if first != second {
		t.Errorf("second init = %q, want the same identity and key as %q", second, first)
	}
}

func TestInitWrongPassphrase(t *testing.T) {
	f := newFixture(t)
	f.mustRun("alice", "init")

	wrong := f.path("wrong.passphrase")
	if err := os.WriteFile(wrong, []byte("not it\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"init", "--config", f.path("alice.yaml"), "--passphrase-file", wrong,
	}, &stdout, &stderr)
	if !errors.Is(err, keychain.ErrAuthentication) {
		t.Fatalf("init with wrong passphrase error = %v, want ErrAuthentication", err)
	}
}

func TestEmptyReplica(t *testing.T) {
	f := newFixture(t)
	out := f.mustRun("alice", "show", "--compact")
	if out != "{}\n" {
		t.Errorf("show = %q, want {}", out)
	}
}

func TestCounterAcrossPeers(t *testing.T) {
	f := newFixture(t)
	f.mustRun("alice", "init")
	f.mustRun("bob", "init")

	action := f.path("counter.action")
	f.mustRun("alice", "sign", "--op", "add", "--path", "/counter", "--value", "1", "--apply", "--out", action)

	if out := f.mustRun("alice", "show", "/counter"); out != "1\n" {
		t.Errorf("alice /counter = %q, want 1", out)
	}

	out := f.mustRun("bob", "apply", action)
	if !strings.Contains(out, "applied") {
		t.Errorf("apply output = %q, want applied", out)
	}
	if out := f.mustRun("bob", "show", "/counter"); out != "1\n" {
		t.Errorf("bob /counter = %q, want 1", out)
	}

	out = f.mustRun("bob", "apply", action)
	if !strings.Contains(out, "already applied") {
		t.Errorf("second apply output = %q, want skip", out)
	}

	aliceDigest := f.mustRun("alice", "show", "--digest")
	bobDigest := f.mustRun("bob", "show", "--digest")
	if aliceDigest != bobDigest {
		t.Errorf("replica digests differ: alice %q, bob %q", aliceDigest, bobDigest)
	}
}

func TestSealedValueReadableOnlyByRecipients(t *testing.T) {
	f := newFixture(t)
	for _, user := range []string{"alice", "bob", "carol"} {
		f.mustRun(user, "init")
	}

	action := f.path("secret.action")
	f.mustRun("alice", "sign", "--path", "/secret", "--value", `"hi"`, "--out", action)

	inspected := f.mustRun("alice", "inspect", action)
	if !strings.Contains(inspected, "sealed: true") {
		t.Errorf("inspect output = %q, want sealed action", inspected)
	}
	var bare, stderr bytes.Buffer
	if err := run(context.Background(), []string{"inspect", action}, &bare, &stderr); err != nil {
		t.Fatalf("inspect without common flags: %v", err)
	}
	if bare.String() != inspected {
		t.Errorf("inspect without common flags = %q, want %q", bare.String(), inspected)
	}

	f.mustRun("bob", "apply", action)
	if out := f.mustRun("bob", "show", "/secret"); out != "\"hi\"\n" {
		t.Errorf("bob /secret = %q, want \"hi\"", out)
	}

	f.mustRun("carol", "apply", action)
	out := f.mustRun("carol", "show", "--compact", "/secret")
	if !strings.Contains(out, `"sealed"`) || !strings.Contains(out, `"alice,bob"`) {
		t.Errorf("carol /secret = %q, want sealed placeholder for alice,bob", out)
	}
	if strings.Contains(out, "hi") {
		t.Errorf("carol /secret = %q leaks the plaintext", out)
	}
}

func TestUnauthorizedActionRejected(t *testing.T) {
	f := newFixture(t)
	f.mustRun("alice", "init")
	f.mustRun("bob", "init")

	action := f.path("users.action")
	f.mustRun("alice", "sign", "--path", "/users/bob", "--value", `{"name":"Mallory"}`, "--out", action)

	out, err := f.run("bob", "apply", action)
	if err == nil {
		t.Fatal("apply of an unauthorized action succeeded")
	}
	if !strings.Contains(out, "rejected") || !strings.Contains(out, "not authorized") {
		t.Errorf("apply output = %q, want a not-authorized rejection", out)
	}
	if shown := f.mustRun("bob", "show", "--compact"); shown != "{}\n" {
		t.Errorf("bob replica = %q, want unchanged", shown)
	}

	// Writing under one's own name is allowed.
	own := f.path("own.action")
	f.mustRun("bob", "sign", "--path", "/users/bob", "--value", `{"name":"Bob"}`, "--out", own)
	f.mustRun("alice", "apply", own)
	if shown := f.mustRun("alice", "show", "--compact", "/users/bob/name"); shown != "\"Bob\"\n" {
		t.Errorf("alice /users/bob/name = %q, want \"Bob\"", shown)
	}
}

func TestRotateKeepsOldActionsVerifiable(t *testing.T) {
	f := newFixture(t)
	f.mustRun("alice", "init")
	f.mustRun("bob", "init")

	action := f.path("counter.action")
	f.mustRun("alice", "sign", "--path", "/counter", "--value", "7", "--out", action)

	out := f.mustRun("alice", "rotate")
	if !strings.Contains(out, "rotated") || !strings.Contains(out, "archived: 1") {
		t.Errorf("rotate output = %q", out)
	}

	f.mustRun("bob", "apply", action)
	if shown := f.mustRun("bob", "show", "/counter"); shown != "7\n" {
		t.Errorf("bob /counter = %q, want 7", shown)
	}
}

func TestSecretIsStable(t *testing.T) {
	f := newFixture(t)
	f.mustRun("alice", "init")

	first := f.mustRun("alice", "secret", "bob")
	if !strings.HasPrefix(first, "alice,bob\t") {
		t.Fatalf("secret output = %q, want group alice,bob", first)
	}
	if second := f.mustRun("alice", "secret", "bob", "alice"); second != first {
		t.Errorf("secret for the same group = %q, want %q", second, first)
	}
}

func TestSignRejectsInvalidIntent(t *testing.T) {
	f := newFixture(t)
	f.mustRun("alice", "init")

	if _, err := f.run("alice", "sign", "--op", "remove", "--path", "/counter", "--value", "1"); err == nil {
		t.Error("sign remove with a value succeeded")
	}
	if _, err := f.run("alice", "sign", "--path", "/counter", "--value", "{"); err == nil {
		t.Error("sign with malformed JSON succeeded")
	}
	if _, err := f.run("alice", "sign", "--value", "1"); err == nil {
		t.Error("sign without --path succeeded")
	}
}

func TestUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), nil, &stdout, &stderr); !errors.Is(err, errUsage) {
		t.Errorf("run() with no command error = %v, want errUsage", err)
	}
	if err := run(context.Background(), []string{"frobnicate"}, &stdout, &stderr); !errors.Is(err, errUsage) {
		t.Errorf("run(frobnicate) error = %v, want errUsage", err)
	}
	stdout.Reset()
	if err := run(context.Background(), []string{"version"}, &stdout, &stderr); err != nil {
		t.Fatalf("run(version) error: %v", err)
	}
	if !strings.HasPrefix(stdout.String(), "peerstate ") {
		t.Errorf("version output = %q", stdout.String())
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		input string
		want  any
	}{
		{"1", int64(1)},
		{"-3", int64(-3)},
		{"1.5", 1.5},
		{`"text"`, "text"},
		{"true", true},
		{"null", nil},
	}
	for _, test := range tests {
		got, err := parseValue(test.input)
		if err != nil {
			t.Fatalf("parseValue(%q) error: %v", test.input, err)
		}
		if got != test.want {
			t.Errorf("parseValue(%q) = %#v, want %#v", test.input, got, test.want)
		}
	}

	nested, err := parseValue(`{"list":[1,2.5]}`)
	if err != nil {
		t.Fatalf("parseValue() error: %v", err)
	}
	list := nested.(map[string]any)["list"].([]any)
	if list[0] != int64(1) || list[1] != 2.5 {
		t.Errorf("nested numbers = %#v", list)
	}

	for _, bad := range []string{"", "{", "1 2"} {
		if _, err := parseValue(bad); err == nil {
			t.Errorf("parseValue(%q) succeeded, want error", bad)
		}
	}
}
