// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package peerstate_test

import (
	"context"
	"testing"
	"time"

	"github.com/peerstate/peerstate/lib/authfilter"
	"github.com/peerstate/peerstate/lib/clock"
	"github.com/peerstate/peerstate/lib/encfilter"
	"github.com/peerstate/peerstate/lib/keychain"
	"github.com/peerstate/peerstate/lib/keystore"
	"github.com/peerstate/peerstate/lib/peerstate"
	"github.com/peerstate/peerstate/lib/statetree"
)

// testWorkFactor keeps scrypt fast in tests.
const testWorkFactor = 10

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// network is a set of peers sharing one key directory.
type network struct {
	store *keystore.Memory
	clock *clock.FakeClock
}

func newNetwork() *network {
	return &network{store: keystore.NewMemory(), clock: clock.Fake(epoch)}
}

// keychain returns a keychain that has not logged in.
func (n *network) keychain(t *testing.T) *keychain.Keychain {
	t.Helper()
	keys, err := keychain.New(keychain.Config{
		Directory:   n.store,
		Credentials: n.store,
		Clock:       n.clock,
		WorkFactor:  testWorkFactor,
	})
	if err != nil {
		t.Fatalf("keychain.New() error: %v", err)
	}
	t.Cleanup(func() { keys.Close() })
	return keys
}

func (n *network) login(t *testing.T, user keychain.Identity) *keychain.Keychain {
	t.Helper()
	keys := n.keychain(t)
	if err := keys.Login(context.Background(), user, []byte("password-"+string(user))); err != nil {
		t.Fatalf("Login(%q) error: %v", user, err)
	}
	return keys
}

// authRules mirrors a small application: anyone may write the counter,
// last name, and their own user record; only "1" owns /owner.
func authRules() *authfilter.Filter {
	return authfilter.MustNew(map[string]authfilter.Predicate{
		"/lastName":      authfilter.Always,
		"/counter":       authfilter.Always,
		"/users/:userId": authfilter.ActorMatchesParam("userId"),
		"/items/:id":     authfilter.Always,
		"/owner":         authfilter.ActorIs("1"),
	})
}

func encryptionRules() *encfilter.Filter {
	return encfilter.MustNew(map[string]encfilter.RecipientFunc{
		"/counter":  encfilter.To("2"),
		"/lastName": encfilter.None,
	})
}

func newEngine(t *testing.T, keys *keychain.Keychain, opts ...peerstate.Option) *peerstate.Engine {
	t.Helper()
	engine, err := peerstate.CreatePeerState(authRules(), encryptionRules(), keys, opts...)
	if err != nil {
		t.Fatalf("CreatePeerState() error: %v", err)
	}
	return engine
}

// sign signs as the engine's own keychain against tree.
func sign(t *testing.T, engine *peerstate.Engine, tree statetree.Tree, op, path string, value any) *peerstate.SignedAction {
	t.Helper()
	action, err := engine.Sign(context.Background(), engine.NewState(tree), peerstate.Intent{Op: op, Path: path, Value: value})
	if err != nil {
		t.Fatalf("Sign(%s %s) error: %v", op, path, err)
	}
	return action
}

func apply(t *testing.T, engine *peerstate.Engine, state peerstate.State, action *peerstate.SignedAction) peerstate.State {
	t.Helper()
	next, err := engine.NextState(context.Background(), state, action)
	if err != nil {
		t.Fatalf("NextState(%s %s) error: %v", action.Op, action.Path, err)
	}
	return next
}

// clone deep-copies an action through its wire form.
func clone(t *testing.T, action *peerstate.SignedAction) *peerstate.SignedAction {
	t.Helper()
	data, err := action.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error: %v", err)
	}
	copied, err := peerstate.UnmarshalSignedAction(data)
	if err != nil {
		t.Fatalf("UnmarshalSignedAction() error: %v", err)
	}
	return copied
}

func digest(t *testing.T, tree statetree.Tree) statetree.Digest {
	t.Helper()
	d, err := tree.Digest()
	if err != nil {
		t.Fatalf("Digest() error: %v", err)
	}
	return d
}
