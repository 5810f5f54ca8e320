// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/peerstate/peerstate/lib/keychain"
)

var (
	_ keychain.Directory       = (*Memory)(nil)
	_ keychain.CredentialStore = (*Memory)(nil)
)

// Memory is an in-process Directory and CredentialStore. The zero
// value is not usable; call NewMemory.
type Memory struct {
	mu          sync.RWMutex
	keys        map[keychain.Identity][]keychain.PublicKey // publish order
	credentials map[keychain.Identity][]byte
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		keys:        make(map[keychain.Identity][]keychain.PublicKey),
		credentials: make(map[keychain.Identity][]byte),
	}
}

// Publish implements keychain.Directory.
func (m *Memory) Publish(ctx context.Context, key keychain.PublicKey) error {
	if key.Identity == "" || key.KeyID == "" {
		return fmt.Errorf("keystore: publishing key without identity or key ID")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.keys[key.Identity] {
		if existing.KeyID == key.KeyID {
			return nil
		}
	}
	key.Signing = slices.Clone(key.Signing)
	key.RetiredAt = time.Time{}
	m.keys[key.Identity] = append(m.keys[key.Identity], key)
	return nil
}

// Retire implements keychain.Directory.
func (m *Memory) Retire(ctx context.Context, identity keychain.Identity, keyID keychain.KeyID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := m.keys[identity]
	for i := range keys {
		if keys[i].KeyID != keyID {
			continue
		}
		if keys[i].RetiredAt.IsZero() {
			keys[i].RetiredAt = at
		}
		return nil
	}
	return fmt.Errorf("%w: %s for %q", keychain.ErrKeyNotFound, keyID.Short(), identity)
}

// Resolve implements keychain.Directory.
func (m *Memory) Resolve(ctx context.Context, identity keychain.Identity, keyID keychain.KeyID) (keychain.PublicKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, key := range m.keys[identity] {
		if key.KeyID == keyID {
			return key, nil
		}
	}
	return keychain.PublicKey{}, fmt.Errorf("%w: %s for %q", keychain.ErrKeyNotFound, keyID.Short(), identity)
}

// Current implements keychain.Directory.
func (m *Memory) Current(ctx context.Context, identity keychain.Identity) (keychain.PublicKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := m.keys[identity]
	for i := len(keys) - 1; i >= 0; i-- {
		if !keys[i].Retired() {
			return keys[i], nil
		}
	}
	return keychain.PublicKey{}, fmt.Errorf("%w: no current key for %q", keychain.ErrKeyNotFound, identity)
}

// Load implements keychain.CredentialStore.
func (m *Memory) Load(ctx context.Context, user keychain.Identity) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sealed, ok := m.credentials[user]
	if !ok {
		return nil, fmt.Errorf("%w: %q", keychain.ErrCredentialNotFound, user)
	}
	return slices.Clone(sealed), nil
}

// Save implements keychain.CredentialStore.
func (m *Memory) Save(ctx context.Context, user keychain.Identity, sealed []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credentials[user] = slices.Clone(sealed)
	return nil
}
