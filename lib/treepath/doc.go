// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

// Package treepath parses the slash-separated paths that address
// values in a state tree.
//
// Paths use JSON Pointer syntax (RFC 6901): "/users/alice/name" has
// three segments, "~1" inside a segment decodes to "/" and "~0" to "~".
// The empty string and "/" both name the root, which is readable but
// never a write target.
package treepath
