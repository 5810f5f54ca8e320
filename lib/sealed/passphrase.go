// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"errors"
	"fmt"

	"filippo.io/age"

	"github.com/peerstate/peerstate/lib/secret"
)

// DefaultWorkFactor is the scrypt work factor (log2 of N) used when a
// caller passes zero. It matches age's own default.
const DefaultWorkFactor = 18

// ErrWrongPassphrase is returned by OpenWithPassphrase when the
// passphrase does not open the ciphertext.
var ErrWrongPassphrase = errors.New("sealed: wrong passphrase")

// SealWithPassphrase encrypts plaintext with an scrypt-derived key.
// workFactor is log2 of the scrypt N parameter; zero selects
// DefaultWorkFactor. The passphrase is borrowed and not closed.
func SealWithPassphrase(plaintext []byte, passphrase *secret.Buffer, workFactor int) ([]byte, error) {
	if workFactor == 0 {
		workFactor = DefaultWorkFactor
	}
	if workFactor < 1 || workFactor > 30 {
		return nil, fmt.Errorf("scrypt work factor %d out of range [1, 30]", workFactor)
	}
	recipient, err := age.NewScryptRecipient(passphrase.String())
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	recipient.SetWorkFactor(workFactor)
	return encrypt(plaintext, recipient)
}

// OpenWithPassphrase decrypts a ciphertext produced by
// SealWithPassphrase. maxWorkFactor bounds the scrypt cost an attacker
// controlled ciphertext can impose; zero selects age's default bound.
// The caller must Close the returned buffer.
func OpenWithPassphrase(ciphertext []byte, passphrase *secret.Buffer, maxWorkFactor int) (*secret.Buffer, error) {
	identity, err := age.NewScryptIdentity(passphrase.String())
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	if maxWorkFactor > 0 {
		identity.SetMaxWorkFactor(maxWorkFactor)
	}
	plaintext, err := decrypt(ciphertext, identity)
	if err != nil {
		if isIncorrectIdentity(err) {
			return nil, ErrWrongPassphrase
		}
		return nil, err
	}
	return plaintext, nil
}
