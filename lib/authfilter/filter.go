// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package authfilter

import (
	"fmt"
	"sort"

	"github.com/peerstate/peerstate/lib/keychain"
	"github.com/peerstate/peerstate/lib/pathpattern"
	"github.com/peerstate/peerstate/lib/statetree"
	"github.com/peerstate/peerstate/lib/treepath"
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	// Deny means the write is not permitted.
	Deny Decision = iota

	// Allow means the write is permitted.
	Allow
)

// String returns "allow" or "deny".
func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// DenyReason describes why a check was denied.
type DenyReason int

const (
	// ReasonNone is the reason of an Allow result.
	ReasonNone DenyReason = iota

	// ReasonNoPattern means no pattern matched the path.
	ReasonNoPattern

	// ReasonPredicateFalse means the matched predicate returned false.
	ReasonPredicateFalse

	// ReasonPredicateError means the matched predicate returned an
	// error.
	ReasonPredicateError

	// ReasonPredicatePanic means the matched predicate panicked.
	ReasonPredicatePanic

	// ReasonInvalidPath means the path did not parse or was the root.
	ReasonInvalidPath
)

// String returns a human-readable reason.
func (r DenyReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNoPattern:
		return "no matching pattern"
	case ReasonPredicateFalse:
		return "predicate returned false"
	case ReasonPredicateError:
		return "predicate failed"
	case ReasonPredicatePanic:
		return "predicate panicked"
	case ReasonInvalidPath:
		return "invalid path"
	default:
		return "unknown"
	}
}

// Context is what a predicate sees.
type Context struct {
	Actor  keychain.Identity
	Path   treepath.Path
	Op     string
	Params pathpattern.Params

	// Tree is the state the write would apply to. Read only.
	Tree statetree.Tree
}

// Param returns the named path parameter, or "".
func (c Context) Param(name string) string { return c.Params[name] }

// Predicate decides a single write. Returning an error denies.
type Predicate func(Context) (bool, error)

// Rule pairs a pattern with its predicate.
type Rule struct {
	Pattern   string
	Predicate Predicate
}

// Request describes a proposed write.
type Request struct {
	Actor keychain.Identity
	Path  string
	Op    string
	Tree  statetree.Tree
}

// Result is the outcome of Authorize.
type Result struct {
	Decision Decision

	// Reason is ReasonNone for Allow.
	Reason DenyReason

	// Pattern is the matched pattern, or "" when none matched.
	Pattern string

	// Params are the parameters bound by Pattern.
	Params pathpattern.Params

	// Err is the predicate's error or recovered panic, or the path
	// parse error, when Reason calls for one.
	Err error
}

// Allowed reports whether the decision is Allow.
func (r Result) Allowed() bool { return r.Decision == Allow }

// String formats the result for logs and error messages.
func (r Result) String() string {
	if r.Decision == Allow {
		return fmt.Sprintf("allow by %s", r.Pattern)
	}
	message := r.Reason.String()
	if r.Pattern != "" {
		message = fmt.Sprintf("%s (%s)", message, r.Pattern)
	}
	if r.Err != nil {
		message = fmt.Sprintf("%s: %v", message, r.Err)
	}
	return message
}

// Filter is an immutable, compiled set of authorization rules. A nil
// *Filter denies everything.
type Filter struct {
	table pathpattern.Table[Predicate]
}

// New compiles a pattern-to-predicate map.
func New(rules map[string]Predicate) (*Filter, error) {
	patterns := make([]string, 0, len(rules))
	for pattern := range rules {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)

	ordered := make([]Rule, len(patterns))
	for i, pattern := range patterns {
		ordered[i] = Rule{Pattern: pattern, Predicate: rules[pattern]}
	}
	return NewFromRules(ordered)
}

// NewFromRules compiles rules. Patterns with the same shape are
// rejected.
func NewFromRules(rules []Rule) (*Filter, error) {
	filter := &Filter{}
	for _, rule := range rules {
		if rule.Predicate == nil {
			return nil, fmt.Errorf("authfilter: pattern %q has no predicate", rule.Pattern)
		}
		if err := filter.table.Add(rule.Pattern, rule.Predicate); err != nil {
			return nil, fmt.Errorf("authfilter: %w", err)
		}
	}
	return filter, nil
}

// MustNew is New that panics on error.
func MustNew(rules map[string]Predicate) *Filter {
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

// Authorize evaluates a write request.
func (f *Filter) Authorize(request Request) Result {
	path, err := treepath.ParseTarget(request.Path)
	if err != nil {
		return Result{Decision: Deny, Reason: ReasonInvalidPath, Err: err}
	}
	if f == nil {
		return Result{Decision: Deny, Reason: ReasonNoPattern}
	}

	match, ok := f.table.Lookup(path)
	if !ok {
		return Result{Decision: Deny, Reason: ReasonNoPattern}
	}

	result := Result{Pattern: match.Pattern.String(), Params: match.Params}
	allowed, panicked, err := evaluate(match.Value, Context{
		Actor:  request.Actor,
		Path:   path,
		Op:     request.Op,
		Params: match.Params,
		Tree:   request.Tree,
	})
	switch {
	case panicked:
		result.Reason, result.Err = ReasonPredicatePanic, err
	case err != nil:
		result.Reason, result.Err = ReasonPredicateError, err
	case !allowed:
		result.Reason = ReasonPredicateFalse
	default:
		result.Decision = Allow
	}
	return result
}

// evaluate runs a predicate, converting a panic into an error.
func evaluate(predicate Predicate, ctx Context) (allowed, panicked bool, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			allowed, panicked, err = false, true, fmt.Errorf("%v", recovered)
		}
	}()
	allowed, err = predicate(ctx)
	return allowed, false, err
}
