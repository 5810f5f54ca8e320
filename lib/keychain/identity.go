// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package keychain

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/zeebo/blake3"
)

// Identity is a stable user or peer identifier, the user name given to
// Login. It is the subject of authorization rules and the unit of
// encryption recipients.
type Identity string

// KeyID names one keypair: the hex BLAKE3 fingerprint of its Ed25519
// public key.
type KeyID string

// Short returns the first 12 hex digits, for logs and CLI output.
func (k KeyID) Short() string {
	if len(k) <= 12 {
		return string(k)
	}
	return string(k[:12])
}

// fingerprintKey is the BLAKE3 key for KeyIDs: the ASCII domain name
// zero-padded to 32 bytes. Changing it renames every key.
var fingerprintKey = [32]byte{
	'p', 'e', 'e', 'r', 's', 't', 'a', 't', 'e', '.', 'k', 'e', 'y', 'c', 'h', 'a',
	'i', 'n', '.', 'k', 'e', 'y', 'i', 'd', 0, 0, 0, 0, 0, 0, 0, 0,
}

// Fingerprint computes the KeyID of a signing public key.
func Fingerprint(signing ed25519.PublicKey) KeyID {
	hasher, err := blake3.NewKeyed(fingerprintKey[:])
	if err != nil {
		panic("keychain: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(signing)
	return KeyID(hex.EncodeToString(hasher.Sum(nil)))
}

// ValidateIdentity rejects identities that cannot appear in a group ID:
// empty strings, commas, and control or whitespace characters.
func ValidateIdentity(identity Identity) error {
	if identity == "" {
		return fmt.Errorf("identity is empty")
	}
	for _, r := range identity {
		if r == ',' || unicode.IsControl(r) || unicode.IsSpace(r) {
			return fmt.Errorf("identity %q contains %q", identity, r)
		}
	}
	return nil
}

// NormalizeRecipients returns the sorted, de-duplicated recipient set.
func NormalizeRecipients(recipients []Identity) []Identity {
	normalized := slices.Clone(recipients)
	slices.Sort(normalized)
	return slices.Compact(normalized)
}

// GroupID names the group formed by a recipient set. Every peer
// computing it from the same members gets the same string.
func GroupID(recipients []Identity) string {
	members := NormalizeRecipients(recipients)
	parts := make([]string, len(members))
	for i, member := range members {
		parts[i] = string(member)
	}
	return strings.Join(parts, ",")
}
