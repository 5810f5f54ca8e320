// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for key material:
// signing seeds, age identities, group secrets, and login passphrases.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS)
// and asks the kernel to exclude it from core dumps. Locking the pages into RAM is
// attempted but not required: containers and CI runners commonly set
// RLIMIT_MEMLOCK to 64 KiB, and a keychain holding a handful of
// archived keypairs would exhaust that. [Buffer.Locked] reports whether
// the lock succeeded. On Close the memory is zeroed, unlocked, and
// unmapped.
//
// Constructors:
//
//   - [New] -- allocates a zero-filled buffer of a given size
//   - [NewFromBytes] -- copies into protected memory, zeros the source
//   - [Random] -- fills a new buffer from crypto/rand
//
// Access via [Buffer.Bytes] (slice into the mmap region) or
// [Buffer.String] (heap copy for API boundaries). [Buffer.Equal] uses
// constant-time comparison. After Close, any access panics. Close is
// idempotent.
//
// Depends on golang.org/x/sys/unix. No peerstate-internal dependencies.
package secret
