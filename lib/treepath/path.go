// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package treepath

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalid is returned for strings that are not well-formed paths.
	ErrInvalid = errors.New("treepath: invalid path")

	// ErrRoot is returned by ParseTarget for the root path.
	ErrRoot = errors.New("treepath: root is not a write target")
)

// Path is a parsed, unescaped sequence of segments. A nil or empty
// Path is the root.
type Path []string

// Parse parses a path string. The empty string and "/" parse to the
// root.
func Parse(raw string) (Path, error) {
	if raw == "" || raw == "/" {
		return Path{}, nil
	}
	if raw[0] != '/' {
		return nil, fmt.Errorf("%w: %q does not start with '/'", ErrInvalid, raw)
	}

	parts := strings.Split(raw[1:], "/")
	path := make(Path, len(parts))
	for i, part := range parts {
		segment, err := unescape(part)
		if err != nil {
			return nil, fmt.Errorf("%w: %q segment %d: %v", ErrInvalid, raw, i, err)
		}
		path[i] = segment
	}
	return path, nil
}

// ParseTarget parses a path that will be written to. It rejects the
// root in addition to everything Parse rejects.
func ParseTarget(raw string) (Path, error) {
	path, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if path.IsRoot() {
		return nil, ErrRoot
	}
	return path, nil
}

// MustParse is Parse for constant paths in tests and initializers.
func MustParse(raw string) Path {
	path, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return path
}

// IsRoot reports whether the path has no segments.
func (p Path) IsRoot() bool { return len(p) == 0 }

// Parent returns the path without its last segment. The parent of the
// root is the root.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return p
	}
	return p[:len(p)-1]
}

// Last returns the final segment, or "" for the root.
func (p Path) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Child returns a new path with segment appended. The receiver is not
// modified.
func (p Path) Child(segment string) Path {
	child := make(Path, len(p)+1)
	copy(child, p)
	child[len(p)] = segment
	return child
}

// Equal reports whether two paths have the same segments.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is an ancestor of (or equal to) p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	return p[:len(prefix)].Equal(prefix)
}

// String returns the escaped form. The root renders as "/".
func (p Path) String() string {
	if len(p) == 0 {
		return "/"
	}
	var builder strings.Builder
	for _, segment := range p {
		builder.WriteByte('/')
		builder.WriteString(Escape(segment))
	}
	return builder.String()
}

// Escape encodes a single segment so it can be joined with '/'.
func Escape(segment string) string {
	if !strings.ContainsAny(segment, "~/") {
		return segment
	}
	segment = strings.ReplaceAll(segment, "~", "~0")
	return strings.ReplaceAll(segment, "/", "~1")
}

func unescape(segment string) (string, error) {
	if !strings.Contains(segment, "~") {
		return segment, nil
	}
	var builder strings.Builder
	builder.Grow(len(segment))
	for i := 0; i < len(segment); i++ {
		if segment[i] != '~' {
			builder.WriteByte(segment[i])
			continue
		}
		if i+1 >= len(segment) {
			return "", errors.New("dangling '~'")
		}
		switch segment[i+1] {
		case '0':
			builder.WriteByte('~')
		case '1':
			builder.WriteByte('/')
		default:
			return "", fmt.Errorf("invalid escape '~%c'", segment[i+1])
		}
		i++
	}
	return builder.String(), nil
}
