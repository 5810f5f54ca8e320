// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/peerstate/peerstate/lib/secret"
)

// KeySize is the size in bytes of group secrets and derived value keys.
const KeySize = 32

// ValueBlobVersion is the first byte of every value blob. It is part of
// the additional data, so changing it breaks authentication.
const ValueBlobVersion byte = 0x01

// ValueBlobOverhead is the per-blob overhead: 1 (version) + 24
// (XChaCha20-Poly1305 nonce) + 16 (Poly1305 tag).
const ValueBlobOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// hkdfInfoValue is the HKDF info prefix for value keys. Changing it
// invalidates every sealed value.
var hkdfInfoValue = []byte("peerstate.value.v1")

// DeriveValueKey derives the key that seals values under a group
// secret. The context (the group ID) is appended to the HKDF info so
// that a secret reused under another name yields a different key.
//
// groupSecret is borrowed and not closed. The caller must Close the
// returned buffer.
func DeriveValueKey(groupSecret *secret.Buffer, context string) (*secret.Buffer, error) {
	if groupSecret.Len() != KeySize {
		return nil, fmt.Errorf("group secret must be %d bytes, got %d", KeySize, groupSecret.Len())
	}
	info := make([]byte, 0, len(hkdfInfoValue)+len(context))
	info = append(info, hkdfInfoValue...)
	info = append(info, context...)

	reader := hkdf.New(sha256.New, groupSecret.Bytes(), nil, info)
	derived := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		secret.Zero(derived)
		return nil, fmt.Errorf("HKDF key derivation failed: %w", err)
	}
	return secret.NewFromBytes(derived)
}

// SealValue encrypts plaintext with XChaCha20-Poly1305:
//
//	[Version: 1 byte] [Nonce: 24 bytes] [Ciphertext+Tag: N+16 bytes]
//
// The version byte and additionalData are authenticated but not
// encrypted. The key is borrowed and not closed.
func SealValue(plaintext []byte, key *secret.Buffer, additionalData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	output := make([]byte, 1+len(nonce), ValueBlobOverhead+len(plaintext))
	output[0] = ValueBlobVersion
	copy(output[1:], nonce[:])
	return aead.Seal(output, nonce[:], plaintext, buildAAD(ValueBlobVersion, additionalData)), nil
}

// OpenValue decrypts a blob produced by SealValue. It fails when the
// blob is truncated, carries an unknown version, or does not
// authenticate under key and additionalData.
func OpenValue(blob []byte, key *secret.Buffer, additionalData []byte) ([]byte, error) {
	if len(blob) < ValueBlobOverhead {
		return nil, fmt.Errorf("value blob is %d bytes, minimum is %d", len(blob), ValueBlobOverhead)
	}
	if blob[0] != ValueBlobVersion {
		return nil, fmt.Errorf("value blob version %d is not supported (expected %d)", blob[0], ValueBlobVersion)
	}

	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}
	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, blob[1+chacha20poly1305.NonceSizeX:], buildAAD(blob[0], additionalData))
	if err != nil {
		return nil, fmt.Errorf("AEAD decryption failed (wrong key, tampered data, or mismatched context): %w", err)
	}
	return plaintext, nil
}

func buildAAD(version byte, additionalData []byte) []byte {
	aad := make([]byte, 1+len(additionalData))
	aad[0] = version
	copy(aad[1:], additionalData)
	return aad
}
