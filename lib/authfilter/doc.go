// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

// Package authfilter decides whether an actor may write a path.
//
// A [Filter] maps path patterns to predicates. For a write request the
// single most specific pattern matching the path is selected (see
// lib/pathpattern), its parameters are bound, and its predicate runs.
// Everything else is denied:
//
//   - no pattern matches the path,
//   - the path is malformed or the root,
//   - the predicate returns false, returns an error, or panics.
//
// Evaluation is pure. Predicates receive the request's actor, path,
// operation, bound parameters, and the tree the write would apply to,
// and must not depend on anything else, so every peer replaying the
// same action against the same tree reaches the same verdict.
//
// [Filter.Authorize] returns a [Result] carrying the decision, the
// reason for a denial, and the matched pattern, for logs and error
// messages.
package authfilter
