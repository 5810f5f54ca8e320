// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

// Package pathpattern compiles path patterns such as "/users/:userId"
// and selects the single most specific pattern for a concrete path.
//
// A pattern segment is either a literal, which must equal the path
// segment, or a parameter written ":name", which matches any single
// segment and binds it under name. Matching requires full-length
// alignment: "/users/:id" never matches "/users" or "/users/a/b".
//
// When several patterns in a [Table] match the same path, the winner is
// found by walking segments left to right; at the first position where
// the candidates differ, a literal beats a parameter. Two patterns with
// the same shape (same depth, same literal/parameter layout, same
// literals) are rejected at insertion time, so every lookup has at most
// one answer. Both the authorization and the encryption filters are
// built on this package and therefore agree on which rule owns a path.
package pathpattern
