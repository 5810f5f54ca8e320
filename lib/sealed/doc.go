// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed holds the encryption primitives behind the keychain.
//
// Three layers, each a thin wrapper:
//
//   - [Encrypt] / [Decrypt] seal a small payload (a group secret) to
//     one or more age X25519 recipients. Decrypt accepts several
//     private keys so a peer can still open payloads addressed to a
//     key it has rotated away from.
//   - [SealWithPassphrase] / [OpenWithPassphrase] protect the
//     credential that holds a user's private keys, using age's scrypt
//     recipient. A wrong passphrase yields [ErrWrongPassphrase].
//   - [SealValue] / [OpenValue] encrypt a state value under a key
//     derived with HKDF-SHA256 from a group secret, using
//     XChaCha20-Poly1305 with caller-supplied additional data.
//
// Private keys, passphrases, and decrypted payloads travel in
// [secret.Buffer] values, backed by mmap memory outside the Go heap.
// Ciphertexts are raw bytes; the canonical CBOR codec carries them
// as byte strings.
package sealed
