// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package peerstate

import (
	"sync"
	"sync/atomic"
)

// Store holds the latest committed State. Load never blocks; commits
// are serialized and observers are notified in commit order.
type Store struct {
	current atomic.Pointer[State]

	mu          sync.Mutex
	subscribers map[uint64]chan State
	nextID      uint64
}

// NewStore returns a store whose committed state is initial.
func NewStore(initial State) *Store {
	s := &Store{subscribers: make(map[uint64]chan State)}
	s.current.Store(&initial)
	return s
}

// Load returns the latest committed state.
func (s *Store) Load() State {
	return *s.current.Load()
}

// CompareAndSwap commits next if the committed state still has the
// version of expected. It reports whether next was committed.
func (s *Store) CompareAndSwap(expected, next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.Load().Version != expected.Version {
		return false
	}
	s.current.Store(&next)
	for _, ch := range s.subscribers {
		publish(ch, next)
	}
	return true
}

// Subscribe returns a channel that receives committed states. The
// channel holds only the latest undelivered state: a slow reader skips
// intermediate commits but always sees the newest one. cancel closes
// the channel.
func (s *Store) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// publish replaces any undelivered state in ch with state. Callers
// hold the store lock, so no other sender races.
func publish(ch chan State, state State) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- state:
	default:
	}
}
