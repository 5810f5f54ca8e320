// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/peerstate/peerstate/lib/secret"
)

// ErrNotRecipient is returned by Decrypt when none of the supplied
// private keys can open the ciphertext.
var ErrNotRecipient = errors.New("sealed: no matching private key")

// Keypair holds an age X25519 keypair. The private key lives in a
// secret.Buffer; the public key is safe to publish.
//
// The caller must call Close when the keypair is no longer needed.
type Keypair struct {
	// PrivateKey is the secret key in AGE-SECRET-KEY-1... format.
	// Never logged or written anywhere except inside a
	// passphrase-sealed credential.
	PrivateKey *secret.Buffer

	// PublicKey is the corresponding age1... recipient string.
	PublicKey string
}

// Close releases the private key memory. Idempotent.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// GenerateKeypair generates a new age X25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}

	// The identity's string form is briefly on the heap; the mmap
	// buffer is the durable copy.
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}
	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// PublicKeyOf returns the age recipient string for a private key.
func PublicKeyOf(privateKey *secret.Buffer) (string, error) {
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return "", fmt.Errorf("invalid age private key: %w", err)
	}
	return identity.Recipient().String(), nil
}

// ParsePublicKey validates an age recipient string.
func ParsePublicKey(publicKey string) error {
	if _, err := age.ParseX25519Recipient(publicKey); err != nil {
		return fmt.Errorf("invalid age public key: %w", err)
	}
	return nil
}

// Encrypt seals plaintext to every recipient public key. At least one
// recipient is required.
func Encrypt(plaintext []byte, recipientKeys []string) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}

	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}
	return encrypt(plaintext, recipients...)
}

// Decrypt opens a ciphertext produced by Encrypt with whichever of the
// private keys it was addressed to. The private keys are borrowed and
// not closed. The caller must Close the returned buffer.
func Decrypt(ciphertext []byte, privateKeys ...*secret.Buffer) (*secret.Buffer, error) {
	if len(privateKeys) == 0 {
		return nil, ErrNotRecipient
	}
	identities := make([]age.Identity, 0, len(privateKeys))
	for _, privateKey := range privateKeys {
		identity, err := age.ParseX25519Identity(privateKey.String())
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		identities = append(identities, identity)
	}

	plaintext, err := decrypt(ciphertext, identities...)
	if err != nil {
		if isIncorrectIdentity(err) {
			return nil, ErrNotRecipient
		}
		return nil, err
	}
	return plaintext, nil
}

func encrypt(plaintext []byte, recipients ...age.Recipient) ([]byte, error) {
	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return ciphertext.Bytes(), nil
}

func decrypt(ciphertext []byte, identities ...age.Identity) (*secret.Buffer, error) {
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	if len(plaintext) == 0 {
		// secret.Buffer has no zero-length form.
		return secret.New(1)
	}
	buffer, err := secret.NewFromBytes(plaintext)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("protecting decrypted plaintext: %w", err)
	}
	return buffer, nil
}

func isIncorrectIdentity(err error) bool {
	var noMatch *age.NoIdentityMatchError
	return errors.As(err, &noMatch) || errors.Is(err, age.ErrIncorrectIdentity)
}
