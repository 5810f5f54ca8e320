// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package keychain

import (
	"crypto/ed25519"
	"fmt"
	"io"
	"time"

	"github.com/peerstate/peerstate/lib/sealed"
	"github.com/peerstate/peerstate/lib/secret"
)

// keypair is one generation of key material. Private halves live in
// secret.Buffers and are zeroed by close.
type keypair struct {
	id KeyID

	signing       *secret.Buffer // ed25519.PrivateKey bytes
	signingPublic ed25519.PublicKey

	decryption *secret.Buffer // AGE-SECRET-KEY-1...
	recipient  string

	createdAt  time.Time
	archivedAt time.Time
}

func generateKeypair(random io.Reader, now time.Time) (*keypair, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(random, seed); err != nil {
		return nil, fmt.Errorf("%w: generating signing key: %v", ErrKeyUnavailable, err)
	}
	private := ed25519.NewKeyFromSeed(seed)
	secret.Zero(seed)
	public := private.Public().(ed25519.PublicKey)

	signing, err := secret.NewFromBytes(private)
	if err != nil {
		return nil, fmt.Errorf("%w: protecting signing key: %v", ErrKeyUnavailable, err)
	}

	agePair, err := sealed.GenerateKeypair()
	if err != nil {
		signing.Close()
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	return &keypair{
		id:            Fingerprint(public),
		signing:       signing,
		signingPublic: public,
		decryption:    agePair.PrivateKey,
		recipient:     agePair.PublicKey,
		createdAt:     now,
	}, nil
}

// restoreKeypair rebuilds a keypair from its stored form. The seed
// slice is zeroed.
func restoreKeypair(stored storedKey) (*keypair, error) {
	if len(stored.SigningSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("stored signing seed is %d bytes, want %d", len(stored.SigningSeed), ed25519.SeedSize)
	}
	private := ed25519.NewKeyFromSeed(stored.SigningSeed)
	secret.Zero(stored.SigningSeed)
	public := private.Public().(ed25519.PublicKey)

	signing, err := secret.NewFromBytes(private)
	if err != nil {
		return nil, fmt.Errorf("protecting signing key: %w", err)
	}
	decryption, err := secret.NewFromBytes([]byte(stored.Decryption))
	if err != nil {
		signing.Close()
		return nil, fmt.Errorf("protecting decryption key: %w", err)
	}
	recipient, err := sealed.PublicKeyOf(decryption)
	if err != nil {
		signing.Close()
		decryption.Close()
		return nil, err
	}

	pair := &keypair{
		id:            Fingerprint(public),
		signing:       signing,
		signingPublic: public,
		decryption:    decryption,
		recipient:     recipient,
		createdAt:     time.Unix(0, stored.CreatedAt).UTC(),
	}
	if stored.ArchivedAt != 0 {
		pair.archivedAt = time.Unix(0, stored.ArchivedAt).UTC()
	}
	return pair, nil
}

// sign signs with a heap copy of the private key. crypto/ed25519
// caches expanded keys keyed by a weak pointer to the key slice, and
// weak pointers into mmap'd secret.Buffer memory abort the runtime.
func (k *keypair) sign(message []byte) []byte {
	private := make(ed25519.PrivateKey, ed25519.PrivateKeySize)
	copy(private, k.signing.Bytes())
	defer secret.Zero(private)
	return ed25519.Sign(private, message)
}

func (k *keypair) publicKey(identity Identity) PublicKey {
	return PublicKey{
		Identity:  identity,
		KeyID:     k.id,
		Signing:   k.signingPublic,
		Recipient: k.recipient,
		CreatedAt: k.createdAt,
	}
}

// stored copies the private material onto the heap for sealing. The
// caller zeroes it with storedKey.zero.
func (k *keypair) stored() storedKey {
	return storedKey{
		SigningSeed: ed25519.PrivateKey(k.signing.Bytes()).Seed(),
		Decryption:  k.decryption.String(),
		CreatedAt:   k.createdAt.UnixNano(),
		ArchivedAt:  unixNanoOrZero(k.archivedAt),
	}
}

func (k *keypair) close() {
	k.signing.Close()
	k.decryption.Close()
}

func unixNanoOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
