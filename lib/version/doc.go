// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for peerstate
// binaries.
//
// Four package-level variables are injected at build time via
// -ldflags -X, for example:
//
//	go build -ldflags "-X github.com/peerstate/peerstate/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// They default to "unknown" / "0.1.0-dev" during development builds
// and test runs.
package version
