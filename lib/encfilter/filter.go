// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package encfilter

import (
	"errors"
	"fmt"
	"sort"

	"github.com/peerstate/peerstate/lib/keychain"
	"github.com/peerstate/peerstate/lib/pathpattern"
	"github.com/peerstate/peerstate/lib/statetree"
	"github.com/peerstate/peerstate/lib/treepath"
)

// ErrRecipients is wrapped by every ResolveRecipients error.
var ErrRecipients = errors.New("encfilter: cannot resolve recipients")

// Recipients is a recipient list. Nil means no encryption.
type Recipients []keychain.Identity

// Context is what a recipient function sees.
type Context struct {
	Actor  keychain.Identity
	Path   treepath.Path
	Op     string
	Params pathpattern.Params
	Tree   statetree.Tree
}

// RecipientFunc chooses the audience of a write.
type RecipientFunc func(Context) (Recipients, error)

// Rule pairs a pattern with its recipient function.
type Rule struct {
	Pattern    string
	Recipients RecipientFunc
}

// Request describes a write about to be signed.
type Request struct {
	Actor keychain.Identity
	Path  string
	Op    string
	Tree  statetree.Tree
}

// Resolution is the outcome of ResolveRecipients.
type Resolution struct {
	// Encrypt is false when the value is written in plaintext.
	Encrypt bool

	// Recipients is sorted, de-duplicated, and includes the actor.
	// Empty when Encrypt is false.
	Recipients []keychain.Identity

	// Pattern is the matched pattern, or "".
	Pattern string
	Params  pathpattern.Params
}

// Filter is an immutable, compiled set of encryption rules. A nil
// *Filter encrypts nothing.
type Filter struct {
	table pathpattern.Table[RecipientFunc]
}

// New compiles a pattern-to-function map.
func New(rules map[string]RecipientFunc) (*Filter, error) {
	patterns := make([]string, 0, len(rules))
	for pattern := range rules {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)

	ordered := make([]Rule, len(patterns))
	for i, pattern := range patterns {
		ordered[i] = Rule{Pattern: pattern, Recipients: rules[pattern]}
	}
	return NewFromRules(ordered)
}

// NewFromRules compiles rules. Patterns with the same shape are
// rejected.
func NewFromRules(rules []Rule) (*Filter, error) {
	filter := &Filter{}
	for _, rule := range rules {
		if rule.Recipients == nil {
			return nil, fmt.Errorf("encfilter: pattern %q has no recipient function", rule.Pattern)
		}
		if err := filter.table.Add(rule.Pattern, rule.Recipients); err != nil {
			return nil, fmt.Errorf("encfilter: %w", err)
		}
	}
	return filter, nil
}

// MustNew is New that panics on error.
func MustNew(rules map[string]RecipientFunc) *Filter {
	filter, err := New(rules)
	if err != nil {
		panic(err)
	}
	return filter
}

// Patterns returns the compiled patterns, sorted.
func (f *Filter) Patterns() []string {
	if f == nil {
		return nil
	}
	return f.table.Patterns()
}

// ResolveRecipients decides whether a write is encrypted and for whom.
func (f *Filter) ResolveRecipients(request Request) (Resolution, error) {
	path, err := treepath.ParseTarget(request.Path)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: %v", ErrRecipients, err)
	}
	if f == nil {
		return Resolution{}, nil
	}
	match, ok := f.table.Lookup(path)
	if !ok {
		return Resolution{}, nil
	}

	resolution := Resolution{Pattern: match.Pattern.String(), Params: match.Params}
	recipients, err := evaluate(match.Value, Context{
		Actor:  request.Actor,
		Path:   path,
		Op:     request.Op,
		Params: match.Params,
		Tree:   request.Tree,
	})
	if err != nil {
		return resolution, fmt.Errorf("%w: %s for %s: %v", ErrRecipients, resolution.Pattern, path, err)
	}
	if recipients == nil {
		return resolution, nil
	}

	members := make([]keychain.Identity, 0, len(recipients)+1)
	members = append(members, recipients...)
	members = append(members, request.Actor)
	members = keychain.NormalizeRecipients(members)
	for _, member := range members {
		if err := keychain.ValidateIdentity(member); err != nil {
			return resolution, fmt.Errorf("%w: %s for %s: %v", ErrRecipients, resolution.Pattern, path, err)
		}
	}
	resolution.Encrypt = true
	resolution.Recipients = members
	return resolution, nil
}

func evaluate(function RecipientFunc, ctx Context) (recipients Recipients, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			recipients, err = nil, fmt.Errorf("panic: %v", recovered)
		}
	}()
	return function(ctx)
}
