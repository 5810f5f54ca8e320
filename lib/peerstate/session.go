// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package peerstate

import (
	"context"

	"github.com/peerstate/peerstate/lib/statetree"
)

// Session binds an engine to one tree: a Store holding the committed
// state and a Coordinator dispatching into it.
type Session struct {
	coordinator *Coordinator
}

// NewSession starts a session on initial with the engine's keychain.
// Options configure the session's Coordinator.
func NewSession(engine *Engine, initial statetree.Tree, opts ...Option) *Session {
	store := NewStore(engine.NewState(initial))
	return &Session{coordinator: WithRetries(engine, store, opts...)}
}

// State returns the committed tree.
func (s *Session) State() statetree.Tree {
	return s.coordinator.store.Load().PeerState
}

// Snapshot returns the committed State.
func (s *Session) Snapshot() State {
	return s.coordinator.store.Load()
}

// Sign signs intent against the committed state.
func (s *Session) Sign(ctx context.Context, intent Intent) (*SignedAction, error) {
	return s.coordinator.Sign(ctx, s.coordinator.store.Load(), intent)
}

// Dispatch commits a signed action from this or any other peer.
func (s *Session) Dispatch(ctx context.Context, action *SignedAction) (statetree.Tree, error) {
	state, err := s.coordinator.Dispatch(ctx, action)
	return state.PeerState, err
}

// Propose signs intent and dispatches the result, returning the action
// so it can be shipped to other peers.
func (s *Session) Propose(ctx context.Context, intent Intent) (*SignedAction, statetree.Tree, error) {
	action, err := s.Sign(ctx, intent)
	if err != nil {
		return nil, s.State(), err
	}
	tree, err := s.Dispatch(ctx, action)
	return action, tree, err
}

// Subscribe observes commits; see Store.Subscribe.
func (s *Session) Subscribe() (<-chan State, func()) {
	return s.coordinator.store.Subscribe()
}
