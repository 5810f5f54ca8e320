// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package keychain

import (
	"context"
	"errors"
	"fmt"

	"github.com/peerstate/peerstate/lib/sealed"
	"github.com/peerstate/peerstate/lib/secret"
)

// Envelope is an encrypted value addressed to a recipient group. It is
// self-contained: any recipient can open it with their own private key
// even if they never saw the group secret before.
type Envelope struct {
	// Group is GroupID(Recipients).
	Group string `cbor:"1,keyasint"`

	// Recipients is the sorted member list, the sender included.
	Recipients []Identity `cbor:"2,keyasint"`

	// KeyIDs are the recipients' keys the secret was sealed to, in
	// Recipients order.
	KeyIDs []KeyID `cbor:"3,keyasint"`

	// Secret is the group secret sealed with age to every recipient.
	Secret []byte `cbor:"4,keyasint"`

	// Ciphertext is the value sealed under a key derived from the
	// group secret, bound to the binding given to Seal.
	Ciphertext []byte `cbor:"5,keyasint"`
}

// Includes reports whether identity is among the recipients.
func (e *Envelope) Includes(identity Identity) bool {
	for _, recipient := range e.Recipients {
		if recipient == identity {
			return true
		}
	}
	return false
}

// Seal encrypts plaintext for recipients plus this keychain's own
// identity. binding (the tree path) is authenticated, so the envelope
// cannot be opened under a different one. Requires a logged-in
// identity; fails with ErrKeyUnavailable when a recipient has no
// published key.
func (k *Keychain) Seal(ctx context.Context, recipients []Identity, binding string, plaintext []byte) (*Envelope, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil, ErrClosed
	}
	if k.identity == "" || k.active == nil {
		return nil, ErrNoActiveIdentity
	}

	members := NormalizeRecipients(append(append([]Identity(nil), recipients...), k.identity))
	for _, member := range members {
		if err := ValidateIdentity(member); err != nil {
			return nil, fmt.Errorf("keychain: recipient: %w", err)
		}
	}
	group := GroupID(members)

	shared, err := k.fetchOrCreateLocked(ctx, group)
	if err != nil {
		return nil, err
	}

	recipientKeys := make([]string, len(members))
	keyIDs := make([]KeyID, len(members))
	for i, member := range members {
		current, err := k.directory.Current(ctx, member)
		if err != nil {
			return nil, fmt.Errorf("%w: no published key for recipient %q: %v", ErrKeyUnavailable, member, err)
		}
		recipientKeys[i] = current.Recipient
		keyIDs[i] = current.KeyID
	}

	wrapped, err := sealed.Encrypt(shared.key.Bytes(), recipientKeys)
	if err != nil {
		return nil, fmt.Errorf("keychain: sealing group secret: %w", err)
	}
	valueKey, err := sealed.DeriveValueKey(shared.key, group)
	if err != nil {
		return nil, fmt.Errorf("keychain: deriving value key: %w", err)
	}
	defer valueKey.Close()
	ciphertext, err := sealed.SealValue(plaintext, valueKey, []byte(binding))
	if err != nil {
		return nil, fmt.Errorf("keychain: sealing value: %w", err)
	}

	return &Envelope{
		Group:      group,
		Recipients: members,
		KeyIDs:     keyIDs,
		Secret:     wrapped,
		Ciphertext: ciphertext,
	}, nil
}

// Open decrypts an envelope with the active or any archived keypair.
// It returns ErrNotRecipient when no local key can open the group
// secret, and ErrEnvelopeCorrupt when the secret opens but the value
// does not authenticate under binding. The group secret carried by the
// envelope is never cached: anyone can seal a secret of their choosing
// under any group label, so Seal only uses secrets this keychain
// created or accepted through AcceptSecret.
func (k *Keychain) Open(ctx context.Context, envelope *Envelope, binding string) ([]byte, error) {
	if envelope == nil {
		return nil, fmt.Errorf("%w: nil envelope", ErrEnvelopeCorrupt)
	}
	if GroupID(envelope.Recipients) != envelope.Group {
		return nil, fmt.Errorf("%w: group %q does not match its recipients", ErrEnvelopeCorrupt, envelope.Group)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil, ErrClosed
	}

	privateKeys := make([]*secret.Buffer, 0, len(k.archived)+1)
	if k.active != nil {
		privateKeys = append(privateKeys, k.active.decryption)
	}
	for _, pair := range k.archived {
		privateKeys = append(privateKeys, pair.decryption)
	}

	material, err := sealed.Decrypt(envelope.Secret, privateKeys...)
	if errors.Is(err, sealed.ErrNotRecipient) {
		return nil, ErrNotRecipient
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelopeCorrupt, err)
	}
	defer material.Close()
	if material.Len() != sealed.KeySize {
		return nil, fmt.Errorf("%w: group secret is %d bytes", ErrEnvelopeCorrupt, material.Len())
	}

	valueKey, err := sealed.DeriveValueKey(material, envelope.Group)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelopeCorrupt, err)
	}
	defer valueKey.Close()
	plaintext, err := sealed.OpenValue(envelope.Ciphertext, valueKey, []byte(binding))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelopeCorrupt, err)
	}
	return plaintext, nil
}
