// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package pathpattern

import (
	"errors"
	"fmt"
	"sort"

	"github.com/peerstate/peerstate/lib/treepath"
)

// ErrDuplicatePattern is returned by Table.Add when a pattern with the
// same shape is already present.
var ErrDuplicatePattern = errors.New("pathpattern: duplicate pattern")

// Match is the result of a successful Table lookup.
type Match[T any] struct {
	Pattern *Pattern
	Params  Params
	Value   T
}

// Table maps compiled patterns to values and resolves the most specific
// pattern for a path. The zero value is an empty table ready for use.
// A Table is not safe for concurrent mutation; once built, concurrent
// Lookup calls are safe.
type Table[T any] struct {
	// byDepth groups entries by segment count. Within a depth, entries
	// are kept in specificity order so Lookup can return the first hit.
	byDepth map[int][]tableEntry[T]
	shapes  map[string]string
	count   int
}

type tableEntry[T any] struct {
	pattern *Pattern
	value   T
}

// Add compiles raw and inserts it with value.
func (t *Table[T]) Add(raw string, value T) error {
	pattern, err := Compile(raw)
	if err != nil {
		return err
	}
	return t.AddPattern(pattern, value)
}

// AddPattern inserts a compiled pattern.
func (t *Table[T]) AddPattern(pattern *Pattern, value T) error {
	if t.byDepth == nil {
		t.byDepth = make(map[int][]tableEntry[T])
		t.shapes = make(map[string]string)
	}
	shape := pattern.shape()
	if existing, ok := t.shapes[shape]; ok {
		return fmt.Errorf("%w: %q overlaps %q", ErrDuplicatePattern, pattern.raw, existing)
	}
	t.shapes[shape] = pattern.raw

	depth := pattern.Depth()
	entries := append(t.byDepth[depth], tableEntry[T]{pattern: pattern, value: value})
	sort.SliceStable(entries, func(i, j int) bool {
		return moreSpecific(entries[i].pattern, entries[j].pattern)
	})
	t.byDepth[depth] = entries
	t.count++
	return nil
}

// Len returns the number of patterns in the table.
func (t *Table[T]) Len() int { return t.count }

// Lookup returns the most specific pattern matching path.
func (t *Table[T]) Lookup(path treepath.Path) (Match[T], bool) {
	for _, entry := range t.byDepth[len(path)] {
		if params, ok := entry.pattern.Match(path); ok {
			return Match[T]{Pattern: entry.pattern, Params: params, Value: entry.value}, true
		}
	}
	return Match[T]{}, false
}

// Patterns returns every pattern string in the table, sorted.
func (t *Table[T]) Patterns() []string {
	patterns := make([]string, 0, t.count)
	for _, raw := range t.shapes {
		patterns = append(patterns, raw)
	}
	sort.Strings(patterns)
	return patterns
}
