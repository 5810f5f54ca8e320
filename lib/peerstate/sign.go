// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package peerstate

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/peerstate/peerstate/lib/codec"
	"github.com/peerstate/peerstate/lib/encfilter"
	"github.com/peerstate/peerstate/lib/treepath"
)

// Sign turns an intent into a SignedAction using state's keychain.
//
// When the encryption filter names an audience for the path, the value
// is sealed to it before signing and no plaintext copy leaves this
// call. A filter error fails the sign rather than falling back to
// plaintext. Fails with ErrNoActiveIdentity before login or without an
// active keypair.
func (e *Engine) Sign(ctx context.Context, state State, intent Intent) (*SignedAction, error) {
	keys := e.keysFor(state)
	identity := keys.Identity()
	if identity == "" || keys.ActiveKeyID() == "" {
		return nil, ErrNoActiveIdentity
	}

	operation, ok := e.operations[intent.Op]
	if !ok {
		return nil, fmt.Errorf("%w: unknown op %q", ErrInvalidAction, intent.Op)
	}
	path, err := treepath.ParseTarget(intent.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}

	if !operation.RequiresValue && intent.Value != nil {
		return nil, fmt.Errorf("%w: %s %s takes no value", ErrInvalidAction, intent.Op, path)
	}

	action := Action{Op: intent.Op, Path: path.String(), Actor: identity}
	if operation.RequiresValue {
		value, err := codec.Normalize(intent.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: value for %s: %v", ErrInvalidAction, path, err)
		}

		resolution, err := e.encryption.ResolveRecipients(encfilter.Request{
			Actor: identity,
			Path:  action.Path,
			Op:    intent.Op,
			Tree:  state.PeerState,
		})
		if err != nil {
			return nil, err
		}

		if resolution.Encrypt {
			plaintext, err := codec.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("%w: encoding value for %s: %v", ErrInvalidAction, path, err)
			}
			envelope, err := keys.Seal(ctx, resolution.Recipients, action.Path, plaintext)
			if err != nil {
				return nil, fmt.Errorf("sealing %s for %v: %w", path, resolution.Recipients, err)
			}
			action.Value = &Payload{Sealed: envelope}
		} else {
			action.Value = &Payload{Plain: value}
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("%w: action ID: %v", ErrKeyUnavailable, err)
	}
	action.ID = id

	message, err := action.SigningBytes()
	if err != nil {
		return nil, err
	}
	signer, keyID, signature, err := keys.Sign(message)
	if err != nil {
		return nil, err
	}
	if signer != identity {
		return nil, fmt.Errorf("%w: identity changed from %q to %q while signing", ErrNoActiveIdentity, identity, signer)
	}

	e.metrics.observeSigned()
	e.logger.Debug("action signed",
		"id", action.ID,
		"op", action.Op,
		"path", action.Path,
		"actor", action.Actor,
		"sealed", action.Value.IsSealed(),
	)
	return &SignedAction{Action: action, Signer: keyID, Signature: signature}, nil
}
