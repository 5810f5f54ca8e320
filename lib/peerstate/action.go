// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package peerstate

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/peerstate/peerstate/lib/codec"
	"github.com/peerstate/peerstate/lib/keychain"
)

// Built-in operations.
const (
	OpAdd     = "add"
	OpReplace = "replace"
	OpRemove  = "remove"
)

// signingContext separates action signatures from any other use of
// the same Ed25519 key.
const signingContext = "peerstate.action.v1\x00"

// Encrypted is a value sealed to a recipient group.
type Encrypted = keychain.Envelope

// Payload is an action's value. Exactly one of Plain and Sealed is
// meaningful: when Sealed is non-nil the value is ciphertext and Plain
// must be nil.
type Payload struct {
	Plain  any
	Sealed *Encrypted
}

// IsSealed reports whether the payload is ciphertext.
func (p *Payload) IsSealed() bool { return p != nil && p.Sealed != nil }

// Action is a proposed mutation of the tree. Value is nil for
// operations that carry no value.
type Action struct {
	ID    uuid.UUID
	Op    string
	Path  string
	Value *Payload
	Actor keychain.Identity
}

// SignedAction is an Action bound to its actor by a signature. Any
// change to the action or to Signer after signing makes verification
// fail.
type SignedAction struct {
	Action
	Signer    keychain.KeyID
	Signature []byte
}

type payloadWire struct {
	Plain  any        `cbor:"1,keyasint"`
	Sealed *Encrypted `cbor:"2,keyasint,omitempty"`
}

type actionWire struct {
	ID    [16]byte     `cbor:"1,keyasint"`
	Op    string       `cbor:"2,keyasint"`
	Path  string       `cbor:"3,keyasint"`
	Value *payloadWire `cbor:"4,keyasint"`
	Actor string       `cbor:"5,keyasint"`
}

type signedActionWire struct {
	Action    actionWire `cbor:"1,keyasint"`
	Signer    string     `cbor:"2,keyasint"`
	Signature []byte     `cbor:"3,keyasint"`
}

func (a *Action) wire() actionWire {
	w := actionWire{
		ID:    a.ID,
		Op:    a.Op,
		Path:  a.Path,
		Actor: string(a.Actor),
	}
	if a.Value != nil {
		w.Value = &payloadWire{Plain: a.Value.Plain, Sealed: a.Value.Sealed}
	}
	return w
}

func (w *actionWire) action() Action {
	a := Action{
		ID:    uuid.UUID(w.ID),
		Op:    w.Op,
		Path:  w.Path,
		Actor: keychain.Identity(w.Actor),
	}
	if w.Value != nil {
		a.Value = &Payload{Plain: w.Value.Plain, Sealed: w.Value.Sealed}
	}
	return a
}

// SigningBytes returns the bytes the signature covers: a context
// prefix followed by the canonical CBOR encoding of the action.
func (a *Action) SigningBytes() ([]byte, error) {
	encoded, err := codec.Marshal(a.wire())
	if err != nil {
		return nil, fmt.Errorf("%w: encoding action: %v", ErrInvalidAction, err)
	}
	return append([]byte(signingContext), encoded...), nil
}

// MarshalBinary encodes the signed action in its canonical wire form.
func (s *SignedAction) MarshalBinary() ([]byte, error) {
	return codec.Marshal(signedActionWire{
		Action:    s.Action.wire(),
		Signer:    string(s.Signer),
		Signature: s.Signature,
	})
}

// UnmarshalSignedAction decodes the output of MarshalBinary. The result
// is not verified; NextState does that.
func UnmarshalSignedAction(data []byte) (*SignedAction, error) {
	var w signedActionWire
	if err := codec.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: decoding signed action: %v", ErrInvalidAction, err)
	}
	return &SignedAction{
		Action:    w.Action.action(),
		Signer:    keychain.KeyID(w.Signer),
		Signature: w.Signature,
	}, nil
}

// Intent is what a caller wants written. Value is ignored by
// operations that carry none.
type Intent struct {
	Op    string
	Path  string
	Value any
}
