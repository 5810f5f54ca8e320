// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package keychain

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"

	"github.com/peerstate/peerstate/lib/sealed"
	"github.com/peerstate/peerstate/lib/secret"
)

// Secret is a symmetric secret shared by the members of a group. The
// keychain owns the key material and zeroes it on Close or Login.
// Group, Fingerprint, and Equal use a digest taken at creation and stay
// valid after that.
type Secret struct {
	group  string
	key    *secret.Buffer
	digest [32]byte
}

// newSecret takes ownership of material and zeroes the slice.
func newSecret(group string, material []byte) (*Secret, error) {
	if len(material) != sealed.KeySize {
		secret.Zero(material)
		return nil, fmt.Errorf("group secret for %q is %d bytes, want %d", group, len(material), sealed.KeySize)
	}
	digest := secretDigest(material)
	key, err := secret.NewFromBytes(material)
	if err != nil {
		return nil, fmt.Errorf("protecting group secret: %w", err)
	}
	return &Secret{group: group, key: key, digest: digest}, nil
}

// Group returns the group ID the secret belongs to.
func (s *Secret) Group() string { return s.group }

// Equal reports whether two secrets hold the same key material.
func (s *Secret) Equal(other *Secret) bool {
	if other == nil {
		return false
	}
	return subtle.ConstantTimeCompare(s.digest[:], other.digest[:]) == 1
}

// Fingerprint returns a short, non-reversible identifier for the key
// material, so peers can compare secrets without revealing them.
func (s *Secret) Fingerprint() string {
	return hex.EncodeToString(s.digest[:8])
}

// secretFingerprintKey is the BLAKE3 key for secret digests.
var secretFingerprintKey = [32]byte{
	'p', 'e', 'e', 'r', 's', 't', 'a', 't', 'e', '.', 'k', 'e', 'y', 'c', 'h', 'a',
	'i', 'n', '.', 's', 'e', 'c', 'r', 'e', 't', 0, 0, 0, 0, 0, 0, 0,
}

func secretDigest(material []byte) [32]byte {
	hasher, err := blake3.NewKeyed(secretFingerprintKey[:])
	if err != nil {
		panic("keychain: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(material)
	var digest [32]byte
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// FetchOrCreateSecret returns the cached secret for groupID, creating
// a random one when absent. Every later call returns the same secret
// until the keychain is closed; when logged in the secret is also
// sealed into the credential so it survives the session.
func (k *Keychain) FetchOrCreateSecret(ctx context.Context, groupID string) (*Secret, error) {
	if groupID == "" {
		return nil, fmt.Errorf("keychain: group ID is empty")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil, ErrClosed
	}
	return k.fetchOrCreateLocked(ctx, groupID)
}

func (k *Keychain) fetchOrCreateLocked(ctx context.Context, groupID string) (*Secret, error) {
	if existing, ok := k.secrets[groupID]; ok {
		return existing, nil
	}

	material := make([]byte, sealed.KeySize)
	if _, err := io.ReadFull(k.random, material); err != nil {
		return nil, fmt.Errorf("%w: generating group secret: %v", ErrKeyUnavailable, err)
	}
	created, err := newSecret(groupID, material)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	k.secrets[groupID] = created
	if err := k.persistLocked(ctx); err != nil {
		delete(k.secrets, groupID)
		created.key.Close()
		return nil, err
	}
	k.logger.Debug("group secret created", "group", groupID, "fingerprint", created.Fingerprint())
	return created, nil
}

// AcceptSecret caches a secret received from another member of
// groupID over a channel the caller has authenticated. Seal reuses it
// for the group, so material must come from a member. An already
// cached secret wins and is returned; material is zeroed either way.
func (k *Keychain) AcceptSecret(ctx context.Context, groupID string, material []byte) (*Secret, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		secret.Zero(material)
		return nil, ErrClosed
	}
	return k.acceptLocked(ctx, groupID, material)
}

func (k *Keychain) acceptLocked(ctx context.Context, groupID string, material []byte) (*Secret, error) {
	if existing, ok := k.secrets[groupID]; ok {
		secret.Zero(material)
		return existing, nil
	}
	accepted, err := newSecret(groupID, material)
	if err != nil {
		return nil, err
	}
	k.secrets[groupID] = accepted
	if err := k.persistLocked(ctx); err != nil {
		// The secret stays cached for this session.
		k.logger.Warn("persisting accepted group secret failed", "group", groupID, "error", err)
	}
	return accepted, nil
}
