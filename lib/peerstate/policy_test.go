// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package peerstate

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 6, Backoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond}
	want := []time.Duration{0, 10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 50 * time.Millisecond, 50 * time.Millisecond}
	for attempt := 1; attempt <= len(want); attempt++ {
		if got := policy.delay(attempt); got != want[attempt-1] {
			t.Errorf("delay(%d) = %v, want %v", attempt, got, want[attempt-1])
		}
	}

	if got := (RetryPolicy{}).attempts(); got != 1 {
		t.Errorf("zero policy attempts = %d, want 1", got)
	}
	if got := (RetryPolicy{Backoff: time.Second}).delay(5); got != 8*time.Second {
		t.Errorf("uncapped delay(5) = %v, want 8s", got)
	}
}

func TestRecentIDsEvictsOldest(t *testing.T) {
	recent := newRecentIDs(2)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		recent.add(id)
	}
	if recent.contains(ids[0]) {
		t.Error("oldest ID not evicted")
	}
	if !recent.contains(ids[1]) || !recent.contains(ids[2]) {
		t.Error("recent IDs missing")
	}

	recent.add(ids[1])
	recent.add(ids[0])
	if recent.contains(ids[1]) || !recent.contains(ids[2]) || !recent.contains(ids[0]) {
		t.Error("re-adding a present ID changed eviction order")
	}

	disabled := newRecentIDs(0)
	disabled.add(ids[0])
	if disabled.contains(ids[0]) {
		t.Error("zero-size window remembered an ID")
	}
}
