// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction.
//
// The keychain stamps key creation and retirement times and prunes
// archived keys whose transition window has elapsed; the dispatch
// retry loop waits between attempts. Both take a Clock instead of
// calling time.Now or time.After directly. Production code uses
// Real(); tests use Fake(), which advances only when Advance is called.
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	keys := keychain.New(keychain.Config{Clock: c, ...})
//	c.Advance(48 * time.Hour)
//	keys.PruneArchived()
//
// Goroutines blocked in After register a waiter; WaitForWaiters blocks
// until a given number are registered so Advance never races the
// registration.
package clock
