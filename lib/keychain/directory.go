// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package keychain

import (
	"context"
	"crypto/ed25519"
	"time"
)

// PublicKey is the published half of a keypair.
type PublicKey struct {
	Identity Identity
	KeyID    KeyID

	// Signing verifies signatures made by the keypair.
	Signing ed25519.PublicKey

	// Recipient is the age X25519 recipient string (age1...).
	Recipient string

	CreatedAt time.Time

	// RetiredAt is zero while the key is current.
	RetiredAt time.Time
}

// Retired reports whether the key has been rotated away from.
func (p PublicKey) Retired() bool { return !p.RetiredAt.IsZero() }

// Directory resolves identities to published public keys. It is shared
// by every peer that must verify each other's actions.
//
// Implementations must keep retired keys resolvable through Resolve
// forever; only Current stops returning them.
type Directory interface {
	// Publish records a key. Publishing a key that is already present
	// is a no-op and does not clear its retirement.
	Publish(ctx context.Context, key PublicKey) error

	// Retire marks a key as no longer current. Returns ErrKeyNotFound
	// for unknown keys.
	Retire(ctx context.Context, identity Identity, keyID KeyID, at time.Time) error

	// Resolve returns a specific key, current or retired. Returns
	// ErrKeyNotFound for unknown keys.
	Resolve(ctx context.Context, identity Identity, keyID KeyID) (PublicKey, error)

	// Current returns the most recently published key of identity that
	// has not been retired. Returns ErrKeyNotFound when there is none.
	Current(ctx context.Context, identity Identity) (PublicKey, error)
}

// CredentialStore persists passphrase-sealed credentials. The keychain
// never hands it plaintext.
type CredentialStore interface {
	// Load returns the sealed credential for user, or
	// ErrCredentialNotFound.
	Load(ctx context.Context, user Identity) ([]byte, error)

	// Save replaces the sealed credential for user.
	Save(ctx context.Context, user Identity, sealed []byte) error
}
