// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package peerstate

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/peerstate/peerstate/lib/authfilter"
	"github.com/peerstate/peerstate/lib/codec"
	"github.com/peerstate/peerstate/lib/keychain"
	"github.com/peerstate/peerstate/lib/treepath"
)

// NextState applies a signed action to state and returns the new
// state. A nil action returns state unchanged.
//
// On any rejection the returned state is the input state. Rejections
// are, in order of checking: ErrSignatureVerification (the signature
// does not verify against the Signer key published for Actor),
// ErrInvalidAction (malformed action or an operation that fails), and
// ErrNotAuthorized (the authorization filter denied the write).
//
// A sealed value this peer cannot open is not an error: the envelope
// is stored at the path as an opaque value, and State.Lookup reports
// ErrDecryptionUnavailable for it.
func (e *Engine) NextState(ctx context.Context, state State, action *SignedAction) (State, error) {
	if action == nil {
		return state, nil
	}
	keys := e.keysFor(state)

	if err := e.verify(ctx, keys, action); err != nil {
		e.metrics.observeRejected("signature")
		e.logger.Warn("action rejected",
			"id", action.ID,
			"actor", action.Actor,
			"signer", action.Signer.Short(),
			"error", err,
		)
		return state, err
	}

	if action.ID == uuid.Nil {
		e.metrics.observeRejected("invalid")
		return state, fmt.Errorf("%w: missing action ID", ErrInvalidAction)
	}
	if action.Value != nil && action.Value.Sealed != nil && action.Value.Plain != nil {
		e.metrics.observeRejected("invalid")
		return state, fmt.Errorf("%w: payload is both plain and sealed", ErrInvalidAction)
	}
	path, operation, err := e.validate(action.Op, action.Path, action.Value != nil)
	if err != nil {
		e.metrics.observeRejected("invalid")
		return state, err
	}

	result := e.auth.Authorize(authfilter.Request{
		Actor: action.Actor,
		Path:  action.Path,
		Op:    action.Op,
		Tree:  state.PeerState,
	})
	if !result.Allowed() {
		e.metrics.observeRejected("denied")
		e.logger.Info("action denied",
			"id", action.ID,
			"op", action.Op,
			"path", action.Path,
			"actor", action.Actor,
			"reason", result.Reason.String(),
		)
		return state, fmt.Errorf("%w: %s %s by %q: %s", ErrNotAuthorized, action.Op, path, action.Actor, result)
	}

	var value any
	if action.Value != nil {
		value, err = e.openValue(ctx, keys, action, path)
		if err != nil {
			e.metrics.observeRejected("invalid")
			return state, err
		}
	}

	tree, err := operation.Apply(state.PeerState, path, value)
	if err != nil {
		e.metrics.observeRejected("invalid")
		return state, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}

	e.metrics.observeApplied(action.Op)
	e.logger.Debug("action applied",
		"id", action.ID,
		"op", action.Op,
		"path", action.Path,
		"actor", action.Actor,
		"version", state.Version+1,
	)
	return State{PeerState: tree, Keys: state.Keys, Version: state.Version + 1}, nil
}

func (e *Engine) verify(ctx context.Context, keys *keychain.Keychain, action *SignedAction) error {
	if action.Actor == "" || action.Signer == "" || len(action.Signature) == 0 {
		return fmt.Errorf("%w: action is unsigned", ErrSignatureVerification)
	}
	message, err := action.SigningBytes()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureVerification, err)
	}
	err = keys.Verify(ctx, action.Actor, action.Signer, message, action.Signature)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, keychain.ErrKeyUnavailable):
		return fmt.Errorf("%w: %w", ErrSignatureVerification, err)
	default:
		return fmt.Errorf("%w: %s by %q: %v", ErrSignatureVerification, action.Signer.Short(), action.Actor, err)
	}
}

// openValue returns the plaintext value of the action, or the envelope
// itself when this peer cannot open it.
func (e *Engine) openValue(ctx context.Context, keys *keychain.Keychain, action *SignedAction, path treepath.Path) (any, error) {
	if !action.Value.IsSealed() {
		value, err := codec.Normalize(action.Value.Plain)
		if err != nil {
			return nil, fmt.Errorf("%w: value for %s: %v", ErrInvalidAction, path, err)
		}
		return value, nil
	}

	envelope := action.Value.Sealed
	if !envelope.Includes(action.Actor) {
		// A sender outside the audience chose the group secret itself.
		e.metrics.observeOpaque()
		e.logger.Warn("storing value sealed by a non-member opaquely",
			"path", action.Path,
			"group", envelope.Group,
			"actor", action.Actor,
		)
		return envelope, nil
	}
	plaintext, err := keys.Open(ctx, envelope, action.Path)
	if err != nil {
		e.metrics.observeOpaque()
		if errors.Is(err, keychain.ErrNotRecipient) || errors.Is(err, keychain.ErrNoActiveIdentity) {
			e.logger.Debug("storing sealed value opaquely", "path", action.Path, "group", envelope.Group)
		} else {
			e.logger.Warn("storing undecryptable value opaquely", "path", action.Path, "group", envelope.Group, "error", err)
		}
		return envelope, nil
	}

	var value any
	if err := codec.Unmarshal(plaintext, &value); err != nil {
		e.metrics.observeOpaque()
		e.logger.Warn("storing undecodable value opaquely", "path", action.Path, "group", envelope.Group, "error", err)
		return envelope, nil
	}
	return value, nil
}
