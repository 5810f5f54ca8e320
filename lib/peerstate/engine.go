// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package peerstate

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/peerstate/peerstate/lib/authfilter"
	"github.com/peerstate/peerstate/lib/encfilter"
	"github.com/peerstate/peerstate/lib/keychain"
	"github.com/peerstate/peerstate/lib/statetree"
	"github.com/peerstate/peerstate/lib/treepath"
)

// State is the reducer's working state. It is a value: NextState
// returns a new State and leaves its input usable.
type State struct {
	// PeerState is the visible tree.
	PeerState statetree.Tree

	// Keys signs and decrypts on behalf of this peer.
	Keys *keychain.Keychain

	// Version counts applied actions. Store uses it to detect
	// concurrent commits.
	Version uint64
}

// NewState returns the initial state for a tree and keychain.
func NewState(initial statetree.Tree, keys *keychain.Keychain) State {
	return State{PeerState: initial, Keys: keys}
}

// Lookup returns the value at path. Values sealed to an audience this
// peer is not part of return ErrDecryptionUnavailable.
func (s State) Lookup(path string) (any, error) {
	parsed, err := treepath.Parse(path)
	if err != nil {
		return nil, err
	}
	value, err := s.PeerState.Get(parsed)
	if err != nil {
		return nil, err
	}
	if envelope, ok := value.(*Encrypted); ok {
		return nil, fmt.Errorf("%w: %s is sealed to %v", ErrDecryptionUnavailable, parsed, envelope.Recipients)
	}
	return value, nil
}

// Engine signs intents and reduces signed actions under one pair of
// filters. It holds no tree state and is safe for concurrent use.
type Engine struct {
	auth       *authfilter.Filter
	encryption *encfilter.Filter
	keys       *keychain.Keychain
	operations map[string]Operation
	logger     *slog.Logger
	metrics    *Metrics
}

// CreatePeerState builds an engine. The authorization filter is
// required; a nil encryption filter encrypts nothing. keys is the
// default keychain for states that carry none.
func CreatePeerState(auth *authfilter.Filter, encryption *encfilter.Filter, keys *keychain.Keychain, opts ...Option) (*Engine, error) {
	if auth == nil {
		return nil, errors.New("peerstate: an authorization filter is required")
	}
	if keys == nil {
		return nil, errors.New("peerstate: a keychain is required")
	}
	o := buildOptions(opts)
	operations := builtinOperations()
	for name, operation := range o.operations {
		if name == "" || operation.Apply == nil {
			return nil, fmt.Errorf("peerstate: operation %q needs a name and an Apply function", name)
		}
		operations[name] = operation
	}
	return &Engine{
		auth:       auth,
		encryption: encryption,
		keys:       keys,
		operations: operations,
		logger:     o.logger,
		metrics:    o.metrics,
	}, nil
}

// NewState returns the initial state for initial with the engine's
// keychain.
func (e *Engine) NewState(initial statetree.Tree) State {
	return NewState(initial, e.keys)
}

// Operations returns the registered operation names, sorted.
func (e *Engine) Operations() []string {
	names := make([]string, 0, len(e.operations))
	for name := range e.operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) keysFor(state State) *keychain.Keychain {
	if state.Keys != nil {
		return state.Keys
	}
	return e.keys
}

// validate checks op, path, and value presence, returning the parsed
// path and operation.
func (e *Engine) validate(op, path string, hasValue bool) (treepath.Path, Operation, error) {
	operation, ok := e.operations[op]
	if !ok {
		return nil, Operation{}, fmt.Errorf("%w: unknown op %q", ErrInvalidAction, op)
	}
	parsed, err := treepath.ParseTarget(path)
	if err != nil {
		return nil, Operation{}, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	if operation.RequiresValue && !hasValue {
		return nil, Operation{}, fmt.Errorf("%w: %s %s requires a value", ErrInvalidAction, op, parsed)
	}
	if !operation.RequiresValue && hasValue {
		return nil, Operation{}, fmt.Errorf("%w: %s %s takes no value", ErrInvalidAction, op, parsed)
	}
	return parsed, operation, nil
}
