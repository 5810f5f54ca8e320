// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

// Package keystore implements the keychain's two storage
// collaborators, [keychain.Directory] and [keychain.CredentialStore].
//
// [Memory] keeps everything in maps and is what tests and single
// process simulations share between peers. [SQLite] persists to a
// database file through lib/sqlitepool and is what the CLI uses, so a
// user enrolled by one invocation can log in from the next.
//
// Both keep retired keys forever: Resolve answers for any key ever
// published, Current only for the newest unretired one.
package keystore
