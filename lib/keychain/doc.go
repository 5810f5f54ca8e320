// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

// Package keychain owns a peer's key material: its login identity, the
// active signing and decryption keypair, archived keypairs kept for
// decryption after rotation, and a cache of group secrets.
//
// A keypair is an Ed25519 signing key plus an age X25519 decryption
// key. Its [KeyID] is the BLAKE3 fingerprint of the signing public key.
// The [Identity] is the user ID established by [Keychain.Login]; it
// stays the same across sessions and rotations, while the KeyID
// changes on every rotation.
//
// Two collaborators are injected:
//
//   - A [CredentialStore] holds each user's private keys and group
//     secrets, sealed with their passphrase (age scrypt). The first
//     Login for a user enrolls them.
//   - A [Directory] publishes public keys so other peers can verify
//     signatures and address encrypted values. Rotation marks the old
//     key retired; retired keys remain resolvable so old signatures
//     keep verifying.
//
// Encrypted values travel as an [Envelope]: the group secret sealed
// with age to every recipient's current public key, and the value
// sealed under a key derived from that secret. Peers that are not
// recipients cannot open it and receive [ErrNotRecipient].
//
// Every operation that reads or changes key material runs under one
// mutex, so concurrent rotation and signing never observe a torn
// keypair.
package keychain
