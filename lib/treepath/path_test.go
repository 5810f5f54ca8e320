// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package treepath

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		raw  string
		want Path
	}{
		{"", Path{}},
		{"/", Path{}},
		{"/counter", Path{"counter"}},
		{"/users/alice/name", Path{"users", "alice", "name"}},
		{"/a~1b/c~0d", Path{"a/b", "c~d"}},
		{"/trailing/", Path{"trailing", ""}},
		{"/~01", Path{"~1"}},
	}
	for _, test := range tests {
		got, err := Parse(test.raw)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", test.raw, err)
			continue
		}
		if !got.Equal(test.want) {
			t.Errorf("Parse(%q) = %q, want %q", test.raw, got, test.want)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	for _, raw := range []string{"counter", "/a~", "/a~2", "x/y"} {
		if _, err := Parse(raw); !errors.Is(err, ErrInvalid) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalid", raw, err)
		}
	}
}

func TestParseTargetRejectsRoot(t *testing.T) {
	for _, raw := range []string{"", "/"} {
		if _, err := ParseTarget(raw); !errors.Is(err, ErrRoot) {
			t.Errorf("ParseTarget(%q) error = %v, want ErrRoot", raw, err)
		}
	}
	if _, err := ParseTarget("/counter"); err != nil {
		t.Errorf("ParseTarget(/counter) error: %v", err)
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, raw := range []string{"/", "/counter", "/a~1b/c~0d", "/users/:userId"} {
		path := MustParse(raw)
		if got := path.String(); got != raw {
			t.Errorf("MustParse(%q).String() = %q", raw, got)
		}
	}
}

func TestChildDoesNotAlias(t *testing.T) {
	base := make(Path, 1, 4)
	base[0] = "users"
	first := base.Child("alice")
	second := base.Child("bob")
	if first.Last() != "alice" || second.Last() != "bob" {
		t.Fatalf("Child aliased its receiver: %q, %q", first, second)
	}
}

func TestHasPrefix(t *testing.T) {
	path := MustParse("/users/alice/name")
	if !path.HasPrefix(MustParse("/users")) {
		t.Error("HasPrefix(/users) = false")
	}
	if !path.HasPrefix(Path{}) {
		t.Error("HasPrefix(root) = false")
	}
	if path.HasPrefix(MustParse("/users/bob")) {
		t.Error("HasPrefix(/users/bob) = true")
	}
	if path.Parent().Last() != "alice" {
		t.Errorf("Parent().Last() = %q", path.Parent().Last())
	}
}
