// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package keychain

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
)

// Sign signs message with the active keypair and returns the signer's
// identity and KeyID alongside the signature. Fails with
// ErrNoActiveIdentity before Login or without an active keypair.
func (k *Keychain) Sign(message []byte) (Identity, KeyID, []byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return "", "", nil, ErrClosed
	}
	if k.identity == "" || k.active == nil {
		return "", "", nil, ErrNoActiveIdentity
	}
	return k.identity, k.active.id, k.active.sign(message), nil
}

// Verify checks that signature over message was made by keyID
// belonging to identity, resolving the key through the directory.
// Retired keys verify. Returns ErrKeyNotFound for unknown keys and
// ErrBadSignature otherwise.
func (k *Keychain) Verify(ctx context.Context, identity Identity, keyID KeyID, message, signature []byte) error {
	key, err := k.directory.Resolve(ctx, identity, keyID)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return err
		}
		return fmt.Errorf("%w: resolving %s for %q: %v", ErrKeyUnavailable, keyID.Short(), identity, err)
	}
	if key.Identity != identity || Fingerprint(key.Signing) != keyID {
		return fmt.Errorf("%w: directory entry for %s does not match", ErrBadSignature, keyID.Short())
	}
	if len(key.Signing) != ed25519.PublicKeySize || !ed25519.Verify(key.Signing, message, signature) {
		return ErrBadSignature
	}
	return nil
}
