// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package keychain

import "errors"

var (
	// ErrAuthentication is returned by Login for a wrong passphrase or
	// an unusable user name.
	ErrAuthentication = errors.New("keychain: authentication failed")

	// ErrNoActiveIdentity is returned when an operation needs a logged
	// in identity with an active keypair and there is none.
	ErrNoActiveIdentity = errors.New("keychain: no active identity")

	// ErrKeyUnavailable is returned when key material cannot be
	// produced or fetched: randomness failure, a recipient without a
	// published key, or a store failure.
	ErrKeyUnavailable = errors.New("keychain: key unavailable")

	// ErrKeyNotFound is returned by Directory implementations and by
	// DiscardArchived for unknown keys.
	ErrKeyNotFound = errors.New("keychain: key not found")

	// ErrCredentialNotFound is returned by CredentialStore.Load for
	// users that have never enrolled.
	ErrCredentialNotFound = errors.New("keychain: credential not found")

	// ErrNotRecipient is returned by Open when none of this keychain's
	// keys can open an envelope.
	ErrNotRecipient = errors.New("keychain: not a recipient")

	// ErrEnvelopeCorrupt is returned by Open for envelopes whose
	// secret opened but whose contents do not authenticate.
	ErrEnvelopeCorrupt = errors.New("keychain: envelope corrupt")

	// ErrBadSignature is returned by Verify when a signature does not
	// match the message and the named key.
	ErrBadSignature = errors.New("keychain: signature does not verify")

	// ErrClosed is returned by operations on a closed keychain.
	ErrClosed = errors.New("keychain: closed")
)
