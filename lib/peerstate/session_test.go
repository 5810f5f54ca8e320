// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package peerstate_test

import (
	"context"
	"testing"
	"time"

	"github.com/peerstate/peerstate/lib/peerstate"
	"github.com/peerstate/peerstate/lib/statetree"
	"github.com/peerstate/peerstate/lib/testutil"
)

func TestSessionsConverge(t *testing.T) {
	ctx := context.Background()
	net := newNetwork()
	alice := peerstate.NewSession(newEngine(t, net.login(t, "1")), statetree.Empty())
	bob := peerstate.NewSession(newEngine(t, net.login(t, "2")), statetree.Empty())

	updates, cancel := bob.Subscribe()
	defer cancel()

	first, _, err := alice.Propose(ctx, peerstate.Intent{Op: peerstate.OpAdd, Path: "/counter", Value: 1})
	if err != nil {
		t.Fatalf("alice Propose() error: %v", err)
	}
	second, _, err := bob.Propose(ctx, peerstate.Intent{Op: peerstate.OpAdd, Path: "/users/2", Value: map[string]any{"name": "Bob"}})
	if err != nil {
		t.Fatalf("bob Propose() error: %v", err)
	}
	testutil.RequireReceive(t, updates, 5*time.Second, "waiting for bob's own commit")

	// Each peer receives the other's action over some transport.
	if _, err := bob.Dispatch(ctx, clone(t, first)); err != nil {
		t.Fatalf("bob Dispatch() error: %v", err)
	}
	if _, err := alice.Dispatch(ctx, clone(t, second)); err != nil {
		t.Fatalf("alice Dispatch() error: %v", err)
	}

	if got := testutil.RequireReceive(t, updates, 5*time.Second, "waiting for alice's action"); got.Version != 2 {
		t.Errorf("bob observed version %d, want 2", got.Version)
	}
	if digest(t, alice.State()) != digest(t, bob.State()) {
		t.Errorf("replicas diverged: %v vs %v", alice.State().Root(), bob.State().Root())
	}

	// A redelivered action is suppressed.
	if _, err := bob.Dispatch(ctx, clone(t, first)); err != nil {
		t.Fatalf("redelivery Dispatch() error: %v", err)
	}
	if bob.Snapshot().Version != 2 {
		t.Errorf("redelivery changed the version to %d", bob.Snapshot().Version)
	}
}
