// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package peerstate_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/peerstate/peerstate/lib/peerstate"
	"github.com/peerstate/peerstate/lib/statetree"
	"github.com/peerstate/peerstate/lib/testutil"
	"github.com/peerstate/peerstate/lib/treepath"
)

// racingTransitioner commits a competing state to the store before
// returning from NextState, for the first races calls.
type racingTransitioner struct {
	peerstate.Transitioner
	store *peerstate.Store
	races int32
	calls atomic.Int32
}

func (r *racingTransitioner) NextState(ctx context.Context, state peerstate.State, action *peerstate.SignedAction) (peerstate.State, error) {
	next, err := r.Transitioner.NextState(ctx, state, action)
	if call := r.calls.Add(1); call <= r.races {
		current := r.store.Load()
		tree, setErr := current.PeerState.Set(treepath.MustParse("/items/remote"), int64(call))
		if setErr != nil {
			panic(setErr)
		}
		if !r.store.CompareAndSwap(current, peerstate.State{PeerState: tree, Keys: current.Keys, Version: current.Version + 1}) {
			panic("competing commit lost")
		}
	}
	return next, err
}

func newCoordinator(t *testing.T, races int32, opts ...peerstate.Option) (*peerstate.Coordinator, *racingTransitioner, *peerstate.Engine) {
	t.Helper()
	return newCoordinatorOn(t, statetree.Empty(), races, opts...)
}

func newCoordinatorOn(t *testing.T, initial statetree.Tree, races int32, opts ...peerstate.Option) (*peerstate.Coordinator, *racingTransitioner, *peerstate.Engine) {
	t.Helper()
	net := newNetwork()
	engine := newEngine(t, net.login(t, "1"))
	store := peerstate.NewStore(engine.NewState(initial))
	racer := &racingTransitioner{Transitioner: engine, store: store, races: races}
	opts = append([]peerstate.Option{peerstate.WithRetryPolicy(peerstate.RetryPolicy{MaxAttempts: 3})}, opts...)
	return peerstate.WithRetries(racer, store, opts...), racer, engine
}

func TestDispatchCommits(t *testing.T) {
	coordinator, _, engine := newCoordinator(t, 0)
	action := sign(t, engine, statetree.Empty(), peerstate.OpAdd, "/lastName", "Smith")

	state, err := coordinator.Dispatch(context.Background(), action)
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if state.Version != 1 || coordinator.Store().Load().Version != 1 {
		t.Errorf("Version = %d, want 1", state.Version)
	}
	if value, _ := coordinator.Store().Load().Lookup("/lastName"); value != "Smith" {
		t.Errorf("lastName = %v", value)
	}
}

func TestDispatchRetriesOnConflict(t *testing.T) {
	coordinator, racer, engine := newCoordinator(t, 2)
	action := sign(t, engine, statetree.Empty(), peerstate.OpAdd, "/lastName", "Smith")

	state, err := coordinator.Dispatch(context.Background(), action)
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if got := racer.calls.Load(); got != 3 {
		t.Errorf("NextState calls = %d, want 3", got)
	}
	if state.Version != 3 {
		t.Errorf("Version = %d, want 3 (two competing commits and ours)", state.Version)
	}
	if value, _ := state.Lookup("/lastName"); value != "Smith" {
		t.Errorf("lastName = %v", value)
	}
	if value, _ := state.Lookup("/items/remote"); value != int64(2) {
		t.Errorf("competing write lost: /items/remote = %v", value)
	}
}

func TestDispatchExhausted(t *testing.T) {
	coordinator, racer, engine := newCoordinator(t, 100)
	action := sign(t, engine, statetree.Empty(), peerstate.OpAdd, "/lastName", "Smith")

	state, err := coordinator.Dispatch(context.Background(), action)
	if !errors.Is(err, peerstate.ErrRetryExhausted) {
		t.Fatalf("Dispatch() error = %v, want ErrRetryExhausted", err)
	}
	if got := racer.calls.Load(); got != 3 {
		t.Errorf("NextState calls = %d, want 3", got)
	}
	if _, err := state.Lookup("/lastName"); !errors.Is(err, statetree.ErrNotFound) {
		t.Errorf("exhausted action is visible: %v", err)
	}
	if state.Version != coordinator.Store().Load().Version {
		t.Error("returned state is not the committed state")
	}
}

func TestDispatchSuppressesDuplicates(t *testing.T) {
	coordinator, racer, engine := newCoordinator(t, 0)
	action := sign(t, engine, statetree.Empty(), peerstate.OpAdd, "/lastName", "Smith")

	for range 3 {
		if _, err := coordinator.Dispatch(context.Background(), clone(t, action)); err != nil {
			t.Fatalf("Dispatch() error: %v", err)
		}
	}
	if got := coordinator.Store().Load().Version; got != 1 {
		t.Errorf("Version = %d after duplicate deliveries, want 1", got)
	}
	if got := racer.calls.Load(); got != 1 {
		t.Errorf("NextState calls = %d, want 1", got)
	}
}

func TestDispatchSuppressesDuplicateArrayRemove(t *testing.T) {
	initial := statetree.MustNew(map[string]any{"items": []any{"a", "b", "c"}})
	coordinator, _, engine := newCoordinatorOn(t, initial, 0)
	action := sign(t, engine, initial, peerstate.OpRemove, "/items/0", nil)

	for range 3 {
		if _, err := coordinator.Dispatch(context.Background(), clone(t, action)); err != nil {
			t.Fatalf("Dispatch() error: %v", err)
		}
	}
	state := coordinator.Store().Load()
	if state.Version != 1 {
		t.Errorf("Version = %d, want 1", state.Version)
	}
	if items, _ := state.Lookup("/items"); fmt.Sprint(items) != "[b c]" {
		t.Errorf("items = %v, want [b c]", items)
	}
}

// reentrantTransitioner delivers the same action a second time while
// the first delivery is being applied, as a transport redelivering
// concurrently would.
type reentrantTransitioner struct {
	peerstate.Transitioner
	coordinator *peerstate.Coordinator
	reentered   atomic.Bool
	err         error
}

func (r *reentrantTransitioner) NextState(ctx context.Context, state peerstate.State, action *peerstate.SignedAction) (peerstate.State, error) {
	next, err := r.Transitioner.NextState(ctx, state, action)
	if r.reentered.CompareAndSwap(false, true) {
		_, r.err = r.coordinator.Dispatch(ctx, action)
	}
	return next, err
}

func TestDispatchSuppressesConcurrentRedelivery(t *testing.T) {
	net := newNetwork()
	engine := newEngine(t, net.login(t, "1"))
	initial := statetree.MustNew(map[string]any{"items": []any{"a", "b", "c"}})
	store := peerstate.NewStore(engine.NewState(initial))
	redeliver := &reentrantTransitioner{Transitioner: engine}
	redeliver.coordinator = peerstate.WithRetries(redeliver, store,
		peerstate.WithRetryPolicy(peerstate.RetryPolicy{MaxAttempts: 3}))
	action := sign(t, engine, initial, peerstate.OpRemove, "/items/0", nil)

	state, err := redeliver.coordinator.Dispatch(context.Background(), action)
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if redeliver.err != nil {
		t.Fatalf("redelivered Dispatch() error: %v", redeliver.err)
	}
	if state.Version != 1 || store.Load().Version != 1 {
		t.Errorf("Version = %d (store %d), want 1", state.Version, store.Load().Version)
	}
	if items, _ := store.Load().Lookup("/items"); fmt.Sprint(items) != "[b c]" {
		t.Errorf("items = %v, want [b c]", items)
	}
}

func TestDispatchWithoutSuppressionStaysIdempotent(t *testing.T) {
	coordinator, _, engine := newCoordinator(t, 0, peerstate.WithRecentWindow(0))
	action := sign(t, engine, statetree.Empty(), peerstate.OpAdd, "/lastName", "Smith")

	first, err := coordinator.Dispatch(context.Background(), action)
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	second, err := coordinator.Dispatch(context.Background(), action)
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if second.Version != 2 {
		t.Errorf("Version = %d, want 2 without suppression", second.Version)
	}
	if digest(t, first.PeerState) != digest(t, second.PeerState) {
		t.Error("re-applied action changed the tree")
	}
}

func TestDispatchDenialLeavesStore(t *testing.T) {
	coordinator, _, engine := newCoordinator(t, 0)
	action := sign(t, engine, statetree.Empty(), peerstate.OpAdd, "/secretPath", "x")

	state, err := coordinator.Dispatch(context.Background(), action)
	if !errors.Is(err, peerstate.ErrNotAuthorized) {
		t.Fatalf("Dispatch() error = %v, want ErrNotAuthorized", err)
	}
	if state.Version != 0 || coordinator.Store().Load().Version != 0 {
		t.Error("denied dispatch committed")
	}

	// A denied action is not remembered: a later retry is evaluated again.
	if _, err := coordinator.Dispatch(context.Background(), action); !errors.Is(err, peerstate.ErrNotAuthorized) {
		t.Errorf("second Dispatch() error = %v, want ErrNotAuthorized", err)
	}
}

func TestDispatchNilAction(t *testing.T) {
	coordinator, racer, _ := newCoordinator(t, 0)
	state, err := coordinator.Dispatch(context.Background(), nil)
	if err != nil || state.Version != 0 {
		t.Errorf("Dispatch(nil) = version %d, %v", state.Version, err)
	}
	if racer.calls.Load() != 0 {
		t.Error("nil action reached the reducer")
	}
}

func TestDispatchBacksOffOnClock(t *testing.T) {
	net := newNetwork()
	engine := newEngine(t, net.login(t, "1"))
	store := peerstate.NewStore(engine.NewState(statetree.Empty()))
	racer := &racingTransitioner{Transitioner: engine, store: store, races: 1}
	coordinator := peerstate.WithRetries(racer, store,
		peerstate.WithClock(net.clock),
		peerstate.WithRetryPolicy(peerstate.RetryPolicy{MaxAttempts: 2, Backoff: time.Second}),
	)
	action := sign(t, engine, statetree.Empty(), peerstate.OpAdd, "/lastName", "Smith")

	type result struct {
		state peerstate.State
		err   error
	}
	done := make(chan result, 1)
	go func() {
		state, err := coordinator.Dispatch(context.Background(), action)
		done <- result{state, err}
	}()

	net.clock.WaitForWaiters(1)
	testutil.RequireNoReceive(t, done, "Dispatch returned before the backoff elapsed")
	net.clock.Advance(time.Second)

	got := testutil.RequireReceive(t, done, 5*time.Second, "waiting for Dispatch")
	if got.err != nil {
		t.Fatalf("Dispatch() error: %v", got.err)
	}
	if got.state.Version != 2 {
		t.Errorf("Version = %d, want 2", got.state.Version)
	}
}

func TestDispatchHonoursContext(t *testing.T) {
	net := newNetwork()
	engine := newEngine(t, net.login(t, "1"))
	store := peerstate.NewStore(engine.NewState(statetree.Empty()))
	racer := &racingTransitioner{Transitioner: engine, store: store, races: 1}
	coordinator := peerstate.WithRetries(racer, store,
		peerstate.WithClock(net.clock),
		peerstate.WithRetryPolicy(peerstate.RetryPolicy{MaxAttempts: 2, Backoff: time.Hour}),
	)
	action := sign(t, engine, statetree.Empty(), peerstate.OpAdd, "/lastName", "Smith")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := coordinator.Dispatch(ctx, action)
		done <- err
	}()
	net.clock.WaitForWaiters(1)
	cancel()

	if err := testutil.RequireReceive(t, done, 5*time.Second, "waiting for Dispatch"); !errors.Is(err, context.Canceled) {
		t.Errorf("Dispatch() error = %v, want context.Canceled", err)
	}
	if _, err := store.Load().Lookup("/lastName"); !errors.Is(err, statetree.ErrNotFound) {
		t.Error("cancelled dispatch committed")
	}
}

func TestCoordinatorDelegates(t *testing.T) {
	coordinator, _, _ := newCoordinator(t, 0)
	state := coordinator.Store().Load()
	action, err := coordinator.Sign(context.Background(), state, peerstate.Intent{Op: peerstate.OpAdd, Path: "/lastName", Value: "Smith"})
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	next, err := coordinator.NextState(context.Background(), state, action)
	if err != nil {
		t.Fatalf("NextState() error: %v", err)
	}
	if next.Version != 1 || coordinator.Store().Load().Version != 0 {
		t.Error("NextState committed to the store")
	}
}
