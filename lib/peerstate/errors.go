// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package peerstate

import (
	"errors"

	"github.com/peerstate/peerstate/lib/keychain"
)

// Keychain errors surfaced unchanged by the engine.
var (
	ErrAuthentication   = keychain.ErrAuthentication
	ErrNoActiveIdentity = keychain.ErrNoActiveIdentity
	ErrKeyUnavailable   = keychain.ErrKeyUnavailable
)

var (
	// ErrNotAuthorized is returned by NextState when the authorization
	// filter denies the write. The state is returned unchanged.
	ErrNotAuthorized = errors.New("peerstate: not authorized")

	// ErrSignatureVerification is returned by NextState for actions
	// whose signature does not verify against the named key.
	ErrSignatureVerification = errors.New("peerstate: signature verification failed")

	// ErrDecryptionUnavailable is returned by State.Lookup for values
	// this peer cannot decrypt.
	ErrDecryptionUnavailable = errors.New("peerstate: decryption unavailable")

	// ErrRetryExhausted is returned by Dispatch when every attempt lost
	// its commit race.
	ErrRetryExhausted = errors.New("peerstate: retries exhausted")

	// ErrInvalidAction is returned for intents and actions that are
	// structurally wrong: unknown op, bad path, a value where none is
	// allowed or a missing one where it is required.
	ErrInvalidAction = errors.New("peerstate: invalid action")
)
