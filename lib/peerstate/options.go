// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package peerstate

import (
	"log/slog"
	"time"

	"github.com/peerstate/peerstate/lib/clock"
)

// Option configures an Engine, Coordinator, or Session.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	clock        clock.Clock
	metrics      *Metrics
	retry        RetryPolicy
	recentWindow int
	operations   map[string]Operation
}

func buildOptions(opts []Option) options {
	o := options{
		logger:       slog.New(slog.DiscardHandler),
		clock:        clock.Real(),
		retry:        DefaultRetryPolicy(),
		recentWindow: DefaultRecentWindow,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithLogger sets the logger. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock sets the clock used for retry backoff.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithMetrics records engine and dispatch metrics. The default records
// nothing.
func WithMetrics(metrics *Metrics) Option {
	return func(o *options) { o.metrics = metrics }
}

// WithRetryPolicy sets the Dispatch retry bound.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(o *options) { o.retry = policy }
}

// WithRecentWindow sets how many applied action IDs Dispatch remembers
// for duplicate suppression. Zero disables suppression.
func WithRecentWindow(size int) Option {
	return func(o *options) {
		if size >= 0 {
			o.recentWindow = size
		}
	}
}

// WithOperation registers an operation beyond add, replace, and
// remove, or replaces a built-in one.
func WithOperation(name string, operation Operation) Option {
	return func(o *options) {
		if o.operations == nil {
			o.operations = make(map[string]Operation)
		}
		o.operations[name] = operation
	}
}

// RetryPolicy bounds Dispatch. Attempt n (n > 1) waits Backoff
// doubled n-2 times, capped at MaxBackoff when that is positive.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy returns 5 attempts starting at 10ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Backoff: 10 * time.Millisecond, MaxBackoff: time.Second}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// delay returns the wait before the given attempt (1-based).
func (p RetryPolicy) delay(attempt int) time.Duration {
	if attempt <= 1 || p.Backoff <= 0 {
		return 0
	}
	delay := p.Backoff
	for i := 2; i < attempt; i++ {
		delay *= 2
		if p.MaxBackoff > 0 && delay >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}
