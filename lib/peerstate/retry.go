// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package peerstate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/peerstate/peerstate/lib/clock"
)

// DefaultRecentWindow is how many applied action IDs a Coordinator
// remembers by default.
const DefaultRecentWindow = 1024

// Transitioner is the engine surface the Coordinator wraps.
type Transitioner interface {
	NextState(ctx context.Context, state State, action *SignedAction) (State, error)
	Sign(ctx context.Context, state State, intent Intent) (*SignedAction, error)
}

var _ Transitioner = (*Engine)(nil)

// Coordinator commits signed actions to a Store, re-applying an action
// against the newer state when another commit wins the race.
type Coordinator struct {
	transitioner Transitioner
	store        *Store
	policy       RetryPolicy
	clock        clock.Clock
	logger       *slog.Logger
	metrics      *Metrics
	recent       *recentIDs

	commitMu sync.Mutex
}

var _ Transitioner = (*Coordinator)(nil)

// WithRetries wraps transitioner so Dispatch commits to store.
func WithRetries(transitioner Transitioner, store *Store, opts ...Option) *Coordinator {
	o := buildOptions(opts)
	return &Coordinator{
		transitioner: transitioner,
		store:        store,
		policy:       o.retry,
		clock:        o.clock,
		logger:       o.logger,
		metrics:      o.metrics,
		recent:       newRecentIDs(o.recentWindow),
	}
}

// NextState is the wrapped transitioner's NextState.
func (c *Coordinator) NextState(ctx context.Context, state State, action *SignedAction) (State, error) {
	return c.transitioner.NextState(ctx, state, action)
}

// Sign is the wrapped transitioner's Sign.
func (c *Coordinator) Sign(ctx context.Context, state State, intent Intent) (*SignedAction, error) {
	return c.transitioner.Sign(ctx, state, intent)
}

// Store returns the store Dispatch commits to.
func (c *Coordinator) Store() *Store { return c.store }

// Dispatch applies action to the latest committed state and commits
// the result. When the commit loses to a concurrent one, the same
// signed action is re-applied to the newer state, up to the policy's
// attempt bound; exhaustion returns ErrRetryExhausted. An action whose
// ID was recently committed is not applied again.
//
// On error the committed state is untouched and is returned alongside
// the error.
func (c *Coordinator) Dispatch(ctx context.Context, action *SignedAction) (State, error) {
	if action == nil {
		return c.store.Load(), nil
	}

	start := c.clock.Now()
	defer func() { c.metrics.observeDispatch(c.clock.Now().Sub(start)) }()

	attempts := c.policy.attempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.wait(ctx, c.policy.delay(attempt)); err != nil {
			return c.store.Load(), fmt.Errorf("dispatching %s %s: %w", action.Op, action.Path, err)
		}

		// A concurrent delivery of the same action may have committed
		// since the last attempt; re-applying it would double its effect.
		base, duplicate := c.begin(action)
		if duplicate {
			c.metrics.observeDuplicate()
			c.logger.Debug("duplicate action suppressed", "id", action.ID, "path", action.Path, "attempt", attempt)
			return base, nil
		}

		next, err := c.transitioner.NextState(ctx, base, action)
		if err != nil {
			return base, err
		}
		if c.commit(action, base, next) {
			if attempt > 1 {
				c.logger.Debug("action committed after retry", "id", action.ID, "attempt", attempt)
			}
			return next, nil
		}

		c.metrics.observeConflict()
		c.logger.Debug("commit conflict",
			"id", action.ID,
			"path", action.Path,
			"attempt", attempt,
			"base_version", base.Version,
		)
	}

	c.metrics.observeExhausted()
	return c.store.Load(), fmt.Errorf("%w: %s %s by %q after %d attempts",
		ErrRetryExhausted, action.Op, action.Path, action.Actor, attempts)
}

// begin loads the base state for an attempt and reports whether the
// action was already committed. It is atomic with respect to commit,
// so a base loaded before a concurrent commit of the same action is
// stale and fails its CompareAndSwap.
func (c *Coordinator) begin(action *SignedAction) (State, bool) {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()
	return c.store.Load(), c.recent.contains(action.ID)
}

// commit swaps next in and records the action ID in one step.
func (c *Coordinator) commit(action *SignedAction, base, next State) bool {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()
	if !c.store.CompareAndSwap(base, next) {
		return false
	}
	c.recent.add(action.ID)
	return true
}

func (c *Coordinator) wait(ctx context.Context, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}
	select {
	case <-c.clock.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// recentIDs is a fixed-size set of action IDs with FIFO eviction.
type recentIDs struct {
	mu    sync.Mutex
	ring  []uuid.UUID
	next  int
	index map[uuid.UUID]struct{}
}

func newRecentIDs(size int) *recentIDs {
	return &recentIDs{
		ring:  make([]uuid.UUID, 0, size),
		index: make(map[uuid.UUID]struct{}, size),
	}
}

func (r *recentIDs) contains(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.index[id]
	return ok
}

func (r *recentIDs) add(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cap(r.ring) == 0 {
		return
	}
	if _, ok := r.index[id]; ok {
		return
	}
	if len(r.ring) < cap(r.ring) {
		r.ring = append(r.ring, id)
	} else {
		delete(r.index, r.ring[r.next])
		r.ring[r.next] = id
		r.next = (r.next + 1) % len(r.ring)
	}
	r.index[id] = struct{}{}
}
