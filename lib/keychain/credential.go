// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package keychain

import (
	"fmt"

	"github.com/peerstate/peerstate/lib/codec"
	"github.com/peerstate/peerstate/lib/sealed"
	"github.com/peerstate/peerstate/lib/secret"
)

// credential is the plaintext sealed into a CredentialStore entry.
type credential struct {
	User     Identity          `cbor:"1,keyasint"`
	Active   *storedKey        `cbor:"2,keyasint,omitempty"`
	Archived []storedKey       `cbor:"3,keyasint,omitempty"`
	Groups   map[string][]byte `cbor:"4,keyasint,omitempty"`
}

type storedKey struct {
	SigningSeed []byte `cbor:"1,keyasint"`
	Decryption  string `cbor:"2,keyasint"`
	CreatedAt   int64  `cbor:"3,keyasint"`
	ArchivedAt  int64  `cbor:"4,keyasint,omitempty"`
}

func (c *credential) zero() {
	if c.Active != nil {
		secret.Zero(c.Active.SigningSeed)
	}
	for _, stored := range c.Archived {
		secret.Zero(stored.SigningSeed)
	}
	for _, material := range c.Groups {
		secret.Zero(material)
	}
}

// sealCredential encodes and seals a credential. The credential's
// heap copies of key material are zeroed.
func sealCredential(cred *credential, passphrase *secret.Buffer, workFactor int) ([]byte, error) {
	defer cred.zero()
	plaintext, err := codec.Marshal(cred)
	if err != nil {
		return nil, fmt.Errorf("encoding credential: %w", err)
	}
	defer secret.Zero(plaintext)
	return sealed.SealWithPassphrase(plaintext, passphrase, workFactor)
}

// openCredential opens and decodes a sealed credential. The caller
// zeroes the result with credential.zero once restored.
func openCredential(blob []byte, passphrase *secret.Buffer, maxWorkFactor int) (*credential, error) {
	plaintext, err := sealed.OpenWithPassphrase(blob, passphrase, maxWorkFactor)
	if err != nil {
		return nil, err
	}
	defer plaintext.Close()

	var cred credential
	if err := codec.Unmarshal(plaintext.Bytes(), &cred); err != nil {
		return nil, fmt.Errorf("decoding credential: %w", err)
	}
	return &cred, nil
}
