// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

// Package encfilter decides which writes must be encrypted and for
// whom.
//
// A [Filter] maps path patterns to recipient functions, selected with
// the same most-specific-match rule as lib/authfilter. The default is
// no encryption: a path with no matching pattern, or whose function
// returns nil, is written in plaintext. This is safe only because the
// authorization filter still gates every write.
//
// A recipient function returning a non-nil list asks for encryption to
// those identities plus the actor; an empty non-nil list therefore
// means the actor alone. A function that errors or panics makes
// [Filter.ResolveRecipients] return an error, and the signer refuses
// to sign: a value for a path whose audience cannot be decided never
// leaves the device.
package encfilter
