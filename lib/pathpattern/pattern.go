// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package pathpattern

import (
	"errors"
	"fmt"
	"strings"

	"github.com/peerstate/peerstate/lib/treepath"
)

// ErrInvalidPattern is returned by Compile for malformed patterns.
var ErrInvalidPattern = errors.New("pathpattern: invalid pattern")

// Params holds parameter bindings from a successful match, keyed by
// parameter name without the leading ':'.
type Params map[string]string

// Pattern is a compiled path pattern. Patterns are immutable and safe
// for concurrent use.
type Pattern struct {
	raw      string
	segments []segment
}

type segment struct {
	// literal is the unescaped literal text. Empty when param is set.
	literal string
	// param is the parameter name. Empty for literal segments.
	param string
}

func (s segment) isParam() bool { return s.param != "" }

// Compile parses a pattern string. Patterns must address at least one
// segment; parameter names must be non-empty and unique within the
// pattern.
func Compile(raw string) (*Pattern, error) {
	path, err := treepath.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	if path.IsRoot() {
		return nil, fmt.Errorf("%w: %q addresses the root", ErrInvalidPattern, raw)
	}

	segments := make([]segment, len(path))
	seen := make(map[string]bool)
	for i, part := range path {
		if !strings.HasPrefix(part, ":") {
			segments[i] = segment{literal: part}
			continue
		}
		name := part[1:]
		if name == "" {
			return nil, fmt.Errorf("%w: %q has an unnamed parameter at segment %d", ErrInvalidPattern, raw, i)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: %q binds parameter %q twice", ErrInvalidPattern, raw, name)
		}
		seen[name] = true
		segments[i] = segment{param: name}
	}
	return &Pattern{raw: raw, segments: segments}, nil
}

// MustCompile is Compile that panics on error.
func MustCompile(raw string) *Pattern {
	pattern, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return pattern
}

// String returns the pattern as written.
func (p *Pattern) String() string { return p.raw }

// Depth returns the number of segments.
func (p *Pattern) Depth() int { return len(p.segments) }

// ParamNames returns the parameter names in positional order.
func (p *Pattern) ParamNames() []string {
	var names []string
	for _, segment := range p.segments {
		if segment.isParam() {
			names = append(names, segment.param)
		}
	}
	return names
}

// Match reports whether path matches the pattern and returns the bound
// parameters. Params is nil for patterns without parameters.
func (p *Pattern) Match(path treepath.Path) (Params, bool) {
	if len(path) != len(p.segments) {
		return nil, false
	}
	for i, segment := range p.segments {
		if !segment.isParam() && segment.literal != path[i] {
			return nil, false
		}
	}

	var params Params
	for i, segment := range p.segments {
		if !segment.isParam() {
			continue
		}
		if params == nil {
			params = make(Params)
		}
		params[segment.param] = path[i]
	}
	return params, true
}

// shape returns a key identifying patterns that would match exactly the
// same set of paths. Parameter names do not contribute; literals are
// prefixed with '=' so they never collide with the parameter marker.
func (p *Pattern) shape() string {
	var builder strings.Builder
	for _, segment := range p.segments {
		builder.WriteByte('/')
		if segment.isParam() {
			builder.WriteByte(':')
			continue
		}
		builder.WriteByte('=')
		builder.WriteString(treepath.Escape(segment.literal))
	}
	return builder.String()
}

// moreSpecific reports whether a outranks b. Both must have the same
// depth. The first differing position decides: literal beats parameter.
func moreSpecific(a, b *Pattern) bool {
	for i := range a.segments {
		aParam, bParam := a.segments[i].isParam(), b.segments[i].isParam()
		if aParam != bParam {
			return !aParam
		}
	}
	return false
}
