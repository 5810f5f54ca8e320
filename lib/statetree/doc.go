// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

// Package statetree implements the immutable hierarchical document that
// peers replicate.
//
// A Tree wraps a root value built from map[string]any, []any and
// scalars. Every write (Set, Delete) returns a new Tree; the receiver
// is never modified, and the new Tree shares every subtree off the
// written path with the old one. Any holder of an older Tree keeps a
// valid snapshot, which is what lets the dispatch retry loop re-apply
// an action against a fresher base without coordination.
//
// Values stored in a Tree must not be mutated by callers after they
// are handed in. Get returns internal values directly; callers treat
// them as read-only.
//
// Digest hashes the canonical CBOR encoding with BLAKE3 so replicas can
// compare state without shipping it.
package statetree
