// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package rules

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/peerstate/peerstate/lib/authfilter"
	"github.com/peerstate/peerstate/lib/encfilter"
	"github.com/peerstate/peerstate/lib/keychain"
)

const yamlDocument = `
engine: %s
auth:
  /counter: "true"
  /lastName: "op == 'replace'"
  /users/:userId: "actor == params.userId"
  /secretPath: "false"
  /count: "1"
encryption:
  /counter: '["2"]'
  /lastName: "false"
  /inbox/:userId: "[params.userId]"
  /broken: "42"
`

func compileFor(t *testing.T, engine Engine) *Filters {
	t.Helper()
	document, err := Parse([]byte(fmt.Sprintf(yamlDocument, engine)), FormatYAML)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	filters, err := document.Compile()
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	return filters
}

func TestAuthExpressions(t *testing.T) {
	for _, engine := range []Engine{EngineCEL, EngineExpr} {
		t.Run(string(engine), func(t *testing.T) {
			filters := compileFor(t, engine)
			tests := []struct {
				name   string
				actor  keychain.Identity
				path   string
				op     string
				want   bool
				reason authfilter.DenyReason
			}{
				{"literal true", "1", "/counter", "add", true, authfilter.ReasonNone},
				{"literal false", "1", "/secretPath", "add", false, authfilter.ReasonPredicateFalse},
				{"op match", "1", "/lastName", "replace", true, authfilter.ReasonNone},
				{"op mismatch", "1", "/lastName", "add", false, authfilter.ReasonPredicateFalse},
				{"own user", "7", "/users/7", "add", true, authfilter.ReasonNone},
				{"other user", "8", "/users/7", "add", false, authfilter.ReasonPredicateFalse},
				{"non-bool", "1", "/count", "add", false, authfilter.ReasonPredicateError},
				{"unmatched", "1", "/elsewhere", "add", false, authfilter.ReasonNoPattern},
			}
			for _, test := range tests {
				result := filters.Auth.Authorize(authfilter.Request{Actor: test.actor, Path: test.path, Op: test.op})
				if result.Allowed() != test.want {
					t.Errorf("%s: Allowed() = %v, want %v (%v)", test.name, result.Allowed(), test.want, result)
				}
				if result.Reason != test.reason {
					t.Errorf("%s: Reason = %v, want %v", test.name, result.Reason, test.reason)
				}
			}
		})
	}
}

func TestEncryptionExpressions(t *testing.T) {
	for _, engine := range []Engine{EngineCEL, EngineExpr} {
		t.Run(string(engine), func(t *testing.T) {
			filters := compileFor(t, engine)

			resolution, err := filters.Encryption.ResolveRecipients(encfilter.Request{Actor: "1", Path: "/counter"})
			if err != nil {
				t.Fatalf("ResolveRecipients(/counter) error: %v", err)
			}
			if !resolution.Encrypt || !slices.Equal(resolution.Recipients, []keychain.Identity{"1", "2"}) {
				t.Errorf("/counter = %+v, want encrypt for [1 2]", resolution)
			}

			resolution, err = filters.Encryption.ResolveRecipients(encfilter.Request{Actor: "1", Path: "/lastName"})
			if err != nil || resolution.Encrypt {
				t.Errorf("/lastName = %+v, %v, want plaintext", resolution, err)
			}

			resolution, err = filters.Encryption.ResolveRecipients(encfilter.Request{Actor: "1", Path: "/inbox/5"})
			if err != nil {
				t.Fatalf("ResolveRecipients(/inbox/5) error: %v", err)
			}
			if !slices.Equal(resolution.Recipients, []keychain.Identity{"1", "5"}) {
				t.Errorf("/inbox/5 recipients = %v", resolution.Recipients)
			}

			if _, err := filters.Encryption.ResolveRecipients(encfilter.Request{Actor: "1", Path: "/broken"}); !errors.Is(err, encfilter.ErrRecipients) {
				t.Errorf("/broken error = %v, want ErrRecipients", err)
			}
		})
	}
}

func TestJSONCDocument(t *testing.T) {
	data := []byte(`{
		// comments and trailing commas are allowed
		"engine": "expr",
		"auth": {
			"/counter": "true",
		},
		"encryption": {
			"/counter": "['2']", /* single-quoted strings are expr syntax */
		},
	}`)
	document, err := Parse(data, FormatJSONC)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if document.Engine != EngineExpr {
		t.Errorf("Engine = %q", document.Engine)
	}
	filters, err := document.Compile()
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if !filters.Auth.Authorize(authfilter.Request{Actor: "1", Path: "/counter", Op: "add"}).Allowed() {
		t.Error("/counter denied")
	}
}

func TestDefaultEngineIsCEL(t *testing.T) {
	document, err := Parse([]byte("auth:\n  /a: \"true\"\n"), FormatYAML)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if document.Engine != EngineCEL {
		t.Errorf("Engine = %q, want cel", document.Engine)
	}
}

func TestInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown engine", "engine: lua\n"},
		{"unknown field", "engine: cel\nauthz: {}\n"},
		{"empty expression", "auth:\n  /a: \"  \"\n"},
		{"not yaml", "auth: [\n"},
	}
	for _, test := range tests {
		if _, err := Parse([]byte(test.data), FormatYAML); !errors.Is(err, ErrInvalidDocument) {
			t.Errorf("%s: Parse() error = %v, want ErrInvalidDocument", test.name, err)
		}
	}

	compileTests := []struct {
		name     string
		document Document
	}{
		{"cel syntax", Document{Engine: EngineCEL, Auth: map[string]string{"/a": "actor =="}}},
		{"expr syntax", Document{Engine: EngineExpr, Auth: map[string]string{"/a": "actor =="}}},
		{"cel undeclared", Document{Engine: EngineCEL, Encryption: map[string]string{"/a": "nobody"}}},
		{"duplicate shape", Document{Engine: EngineCEL, Auth: map[string]string{"/a/:x": "true", "/a/:y": "true"}}},
		{"bad pattern", Document{Engine: EngineCEL, Auth: map[string]string{"a": "true"}}},
	}
	for _, test := range compileTests {
		if _, err := test.document.Compile(); !errors.Is(err, ErrInvalidDocument) {
			t.Errorf("%s: Compile() error = %v, want ErrInvalidDocument", test.name, err)
		}
	}
}

func TestReadFile(t *testing.T) {
	directory := t.TempDir()
	yamlPath := filepath.Join(directory, "rules.yaml")
	if err := os.WriteFile(yamlPath, []byte("auth:\n  /counter: \"true\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	jsoncPath := filepath.Join(directory, "rules.jsonc")
	if err := os.WriteFile(jsoncPath, []byte(`{"auth": {"/counter": "true",},}`), 0o600); err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{yamlPath, jsoncPath} {
		document, err := ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile(%s) error: %v", path, err)
		}
		if document.Auth["/counter"] != "true" {
			t.Errorf("ReadFile(%s) auth = %v", path, document.Auth)
		}
	}
	if _, err := ReadFile(filepath.Join(directory, "missing.yaml")); err == nil {
		t.Error("ReadFile(missing) succeeded")
	}
}

func TestToRecipients(t *testing.T) {
	if got, err := toRecipients(nil); got != nil || err != nil {
		t.Errorf("toRecipients(nil) = %v, %v", got, err)
	}
	if _, err := toRecipients(true); err == nil {
		t.Error("toRecipients(true) succeeded")
	}
	if _, err := toRecipients([]any{"a", 1}); err == nil {
		t.Error("toRecipients with a non-string element succeeded")
	}
	got, err := toRecipients([]any{})
	if err != nil || got == nil || len(got) != 0 {
		t.Errorf("toRecipients(empty) = %#v, %v, want non-nil empty", got, err)
	}
}
