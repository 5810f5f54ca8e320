// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package keychain

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/peerstate/peerstate/lib/clock"
	"github.com/peerstate/peerstate/lib/sealed"
	"github.com/peerstate/peerstate/lib/secret"
)

// Config holds the dependencies and tunables for a Keychain. Directory
// and Credentials are required.
type Config struct {
	Directory   Directory
	Credentials CredentialStore

	// Clock stamps key creation and archival. Nil selects clock.Real().
	Clock clock.Clock

	// Logger receives key lifecycle events. Never secret material.
	Logger *slog.Logger

	// WorkFactor is the scrypt work factor (log2 N) for sealing
	// credentials. Zero selects sealed.DefaultWorkFactor.
	WorkFactor int

	// TransitionWindow is how long archived keys are kept before
	// PruneArchived discards them. Zero keeps them until
	// DiscardArchived.
	TransitionWindow time.Duration

	// Random supplies key and secret entropy. Nil selects crypto/rand.
	Random io.Reader
}

// Keychain is one peer's key material. It is safe for concurrent use;
// all operations are serialized.
type Keychain struct {
	directory   Directory
	credentials CredentialStore
	clock       clock.Clock
	logger      *slog.Logger
	workFactor  int
	window      time.Duration
	random      io.Reader

	mu         sync.Mutex
	identity   Identity
	passphrase *secret.Buffer
	active     *keypair
	archived   []*keypair
	secrets    map[string]*Secret
	closed     bool
}

// New creates a keychain with no identity and no keys.
func New(cfg Config) (*Keychain, error) {
	if cfg.Directory == nil {
		return nil, fmt.Errorf("keychain: Directory is required")
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("keychain: Credentials is required")
	}
	if cfg.WorkFactor < 0 || cfg.WorkFactor > 30 {
		return nil, fmt.Errorf("keychain: WorkFactor %d out of range [0, 30]", cfg.WorkFactor)
	}
	if cfg.TransitionWindow < 0 {
		return nil, fmt.Errorf("keychain: TransitionWindow must not be negative")
	}

	k := &Keychain{
		directory:   cfg.Directory,
		credentials: cfg.Credentials,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		workFactor:  cfg.WorkFactor,
		window:      cfg.TransitionWindow,
		random:      cfg.Random,
		secrets:     make(map[string]*Secret),
	}
	if k.clock == nil {
		k.clock = clock.Real()
	}
	if k.logger == nil {
		k.logger = slog.New(slog.DiscardHandler)
	}
	if k.random == nil {
		k.random = rand.Reader
	}
	if k.workFactor == 0 {
		k.workFactor = sealed.DefaultWorkFactor
	}
	return k, nil
}

// Identity returns the logged-in identity, or "" before Login.
func (k *Keychain) Identity() Identity {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.identity
}

// ActiveKeyID returns the KeyID of the active keypair, or "".
func (k *Keychain) ActiveKeyID() KeyID {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.active == nil {
		return ""
	}
	return k.active.id
}

// ArchivedKeyIDs returns the KeyIDs of archived keypairs, oldest first.
func (k *Keychain) ArchivedKeyIDs() []KeyID {
	k.mu.Lock()
	defer k.mu.Unlock()
	ids := make([]KeyID, len(k.archived))
	for i, pair := range k.archived {
		ids[i] = pair.id
	}
	return ids
}

// Directory returns the directory this keychain publishes to.
func (k *Keychain) Directory() Directory { return k.directory }

// Login opens user's credential with passphrase and makes user the
// active identity. A user with no stored credential is enrolled: the
// keychain's current pre-login keypair (or a new one) becomes theirs,
// is sealed with passphrase, saved, and published.
//
// A wrong passphrase returns ErrAuthentication and leaves the keychain
// unchanged. The passphrase slice is copied, not retained.
func (k *Keychain) Login(ctx context.Context, user Identity, passphrase []byte) error {
	if err := ValidateIdentity(user); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if len(passphrase) == 0 {
		return fmt.Errorf("%w: empty passphrase", ErrAuthentication)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return ErrClosed
	}

	protected, err := secret.New(len(passphrase))
	if err != nil {
		return fmt.Errorf("keychain: protecting passphrase: %w", err)
	}
	copy(protected.Bytes(), passphrase)

	blob, err := k.credentials.Load(ctx, user)
	switch {
	case errors.Is(err, ErrCredentialNotFound):
		if err := k.enrollLocked(ctx, user, protected); err != nil {
			protected.Close()
			return err
		}
		return nil
	case err != nil:
		protected.Close()
		return fmt.Errorf("%w: loading credential for %q: %v", ErrKeyUnavailable, user, err)
	}

	cred, err := openCredential(blob, protected, max(k.workFactor, 22))
	if err != nil {
		protected.Close()
		if errors.Is(err, sealed.ErrWrongPassphrase) {
			return fmt.Errorf("%w: wrong passphrase for %q", ErrAuthentication, user)
		}
		return fmt.Errorf("%w: opening credential for %q: %v", ErrKeyUnavailable, user, err)
	}
	defer cred.zero()
	if cred.User != user {
		protected.Close()
		return fmt.Errorf("%w: credential belongs to %q", ErrAuthentication, cred.User)
	}

	active, archived, secrets, err := restoreCredential(cred)
	if err != nil {
		protected.Close()
		return fmt.Errorf("%w: restoring credential for %q: %v", ErrKeyUnavailable, user, err)
	}
	if active != nil {
		if err := k.directory.Publish(ctx, active.publicKey(user)); err != nil {
			closeAll(active, archived, secrets)
			protected.Close()
			return fmt.Errorf("%w: publishing key for %q: %v", ErrKeyUnavailable, user, err)
		}
	}

	// Key material created before this login is kept for decryption.
	carried := k.identity == "" && (k.active != nil || len(k.archived) > 0 || len(k.secrets) > 0)
	if carried {
		if k.active != nil {
			k.active.archivedAt = k.clock.Now()
			archived = append(archived, k.active)
		}
		archived = append(archived, k.archived...)
		for group, shared := range k.secrets {
			if _, exists := secrets[group]; exists {
				shared.key.Close()
				continue
			}
			secrets[group] = shared
		}
		k.active, k.archived, k.secrets = nil, nil, make(map[string]*Secret)
	}
	k.resetLocked()

	k.identity = user
	k.passphrase = protected
	k.active = active
	k.archived = archived
	k.secrets = secrets

	k.logger.Info("logged in",
		"identity", user,
		"key_id", idOrEmpty(active),
		"archived_keys", len(archived),
	)

	if carried {
		return k.persistLocked(ctx)
	}
	return nil
}

func (k *Keychain) enrollLocked(ctx context.Context, user Identity, passphrase *secret.Buffer) error {
	// Before any login, the keychain's own material becomes the new
	// user's. When switching users, the enrollee starts fresh.
	carry := k.identity == ""
	active, archived, secrets := k.active, k.archived, k.secrets
	if !carry {
		active, archived, secrets = nil, nil, make(map[string]*Secret)
	}
	generated := active == nil
	if generated {
		pair, err := generateKeypair(k.random, k.clock.Now())
		if err != nil {
			return err
		}
		active = pair
	}
	discard := func() {
		if generated {
			active.close()
		}
	}

	blob, err := sealCredential(buildCredential(user, active, archived, secrets), passphrase, k.workFactor)
	if err != nil {
		discard()
		return fmt.Errorf("%w: sealing credential: %v", ErrKeyUnavailable, err)
	}
	if err := k.credentials.Save(ctx, user, blob); err != nil {
		discard()
		return fmt.Errorf("%w: saving credential for %q: %v", ErrKeyUnavailable, user, err)
	}
	if err := k.directory.Publish(ctx, active.publicKey(user)); err != nil {
		discard()
		return fmt.Errorf("%w: publishing key for %q: %v", ErrKeyUnavailable, user, err)
	}

	if !carry {
		k.resetLocked()
	}
	k.identity = user
	k.passphrase = passphrase
	k.active = active
	k.archived = archived
	k.secrets = secrets

	k.logger.Info("enrolled", "identity", user, "key_id", active.id)
	return nil
}

// NewKeypair generates a keypair and makes it active. The previous
// active keypair is archived for decryption. When logged in, the new
// public key is published, the old one retired, and the credential
// re-sealed.
func (k *Keychain) NewKeypair(ctx context.Context) (KeyID, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return "", ErrClosed
	}
	return k.replaceActiveLocked(ctx)
}

// RotateKeys replaces the active keypair like NewKeypair, but requires
// one to exist. Past signatures are not re-signed; the retired public
// key stays resolvable so they keep verifying.
func (k *Keychain) RotateKeys(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return ErrClosed
	}
	if k.active == nil {
		return ErrNoActiveIdentity
	}
	_, err := k.replaceActiveLocked(ctx)
	return err
}

// replaceActiveLocked saves the credential holding the new keypair
// before publishing it, so a failure at any step leaves the stored
// credential, the directory, and the in-memory keys agreeing on the
// previous active key.
func (k *Keychain) replaceActiveLocked(ctx context.Context) (KeyID, error) {
	now := k.clock.Now()
	next, err := generateKeypair(k.random, now)
	if err != nil {
		return "", err
	}

	previous := k.active
	archived := k.archived
	if previous != nil {
		previous.archivedAt = now
		archived = append(archived[:len(archived):len(archived)], previous)
	}
	rollback := func() {
		if previous != nil {
			previous.archivedAt = time.Time{}
		}
		next.close()
	}

	if k.identity != "" {
		if err := k.saveLocked(ctx, next, archived); err != nil {
			rollback()
			return "", err
		}
		if err := k.publishRotationLocked(ctx, next, previous, now); err != nil {
			if restoreErr := k.saveLocked(ctx, previous, k.archived); restoreErr != nil {
				k.logger.Error("restoring credential after failed rotation",
					"identity", k.identity,
					"key_id", idOrEmpty(previous),
					"error", restoreErr,
				)
			}
			rollback()
			return "", err
		}
	}

	k.active = next
	k.archived = archived

	k.logger.Info("keypair activated",
		"identity", k.identity,
		"key_id", next.id,
		"previous_key_id", idOrEmpty(previous),
	)
	return next.id, nil
}

// publishRotationLocked publishes next and retires previous. When the
// retire fails the new key is retired again so the directory's current
// key stays previous.
func (k *Keychain) publishRotationLocked(ctx context.Context, next, previous *keypair, now time.Time) error {
	if err := k.directory.Publish(ctx, next.publicKey(k.identity)); err != nil {
		return fmt.Errorf("%w: publishing key: %v", ErrKeyUnavailable, err)
	}
	if previous == nil {
		return nil
	}
	err := k.directory.Retire(ctx, k.identity, previous.id, now)
	if err == nil || errors.Is(err, ErrKeyNotFound) {
		return nil
	}
	if undoErr := k.directory.Retire(ctx, k.identity, next.id, now); undoErr != nil {
		k.logger.Error("retiring unused key after failed rotation",
			"identity", k.identity,
			"key_id", next.id,
			"error", undoErr,
		)
	}
	return fmt.Errorf("%w: retiring key %s: %v", ErrKeyUnavailable, previous.id.Short(), err)
}

// DiscardArchived destroys an archived keypair. Envelopes addressed
// only to it can no longer be opened.
func (k *Keychain) DiscardArchived(ctx context.Context, keyID KeyID) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return ErrClosed
	}
	for i, pair := range k.archived {
		if pair.id != keyID {
			continue
		}
		pair.close()
		k.archived = append(k.archived[:i], k.archived[i+1:]...)
		k.logger.Info("archived key discarded", "identity", k.identity, "key_id", keyID)
		return k.persistLocked(ctx)
	}
	return fmt.Errorf("%w: no archived key %s", ErrKeyNotFound, keyID.Short())
}

// PruneArchived discards archived keypairs whose transition window
// has elapsed and returns how many were discarded. With a zero window
// nothing is pruned.
func (k *Keychain) PruneArchived(ctx context.Context) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return 0, ErrClosed
	}
	if k.window <= 0 {
		return 0, nil
	}

	now := k.clock.Now()
	kept := k.archived[:0]
	pruned := 0
	for _, pair := range k.archived {
		if pair.archivedAt.Add(k.window).After(now) {
			kept = append(kept, pair)
			continue
		}
		pair.close()
		pruned++
	}
	clear(k.archived[len(kept):])
	k.archived = kept
	if pruned == 0 {
		return 0, nil
	}
	k.logger.Info("archived keys pruned", "identity", k.identity, "count", pruned)
	return pruned, k.persistLocked(ctx)
}

// Close zeroes all key material. Further operations return ErrClosed.
func (k *Keychain) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.resetLocked()
	k.closed = true
	return nil
}

// resetLocked drops identity and key material.
func (k *Keychain) resetLocked() {
	closeAll(k.active, k.archived, k.secrets)
	if k.passphrase != nil {
		k.passphrase.Close()
	}
	k.identity = ""
	k.passphrase = nil
	k.active = nil
	k.archived = nil
	k.secrets = make(map[string]*Secret)
}

// persistLocked re-seals the credential. No-op before Login.
func (k *Keychain) persistLocked(ctx context.Context) error {
	if k.identity == "" {
		return nil
	}
	return k.saveLocked(ctx, k.active, k.archived)
}

// saveLocked seals a credential with the given keypairs and the
// current group secrets.
func (k *Keychain) saveLocked(ctx context.Context, active *keypair, archived []*keypair) error {
	cred := buildCredential(k.identity, active, archived, k.secrets)
	blob, err := sealCredential(cred, k.passphrase, k.workFactor)
	if err != nil {
		return fmt.Errorf("%w: sealing credential: %v", ErrKeyUnavailable, err)
	}
	if err := k.credentials.Save(ctx, k.identity, blob); err != nil {
		return fmt.Errorf("%w: saving credential for %q: %v", ErrKeyUnavailable, k.identity, err)
	}
	return nil
}

// buildCredential copies key material onto the heap for sealing.
// sealCredential zeroes the copies.
func buildCredential(user Identity, active *keypair, archived []*keypair, secrets map[string]*Secret) *credential {
	cred := &credential{User: user}
	if active != nil {
		stored := active.stored()
		cred.Active = &stored
	}
	for _, pair := range archived {
		cred.Archived = append(cred.Archived, pair.stored())
	}
	if len(secrets) > 0 {
		cred.Groups = make(map[string][]byte, len(secrets))
		for group, shared := range secrets {
			cred.Groups[group] = append([]byte(nil), shared.key.Bytes()...)
		}
	}
	return cred
}

func restoreCredential(cred *credential) (*keypair, []*keypair, map[string]*Secret, error) {
	var active *keypair
	var archived []*keypair
	secrets := make(map[string]*Secret, len(cred.Groups))

	fail := func(err error) (*keypair, []*keypair, map[string]*Secret, error) {
		closeAll(active, archived, secrets)
		return nil, nil, nil, err
	}

	if cred.Active != nil {
		restored, err := restoreKeypair(*cred.Active)
		if err != nil {
			return fail(err)
		}
		active = restored
	}
	for _, stored := range cred.Archived {
		restored, err := restoreKeypair(stored)
		if err != nil {
			return fail(err)
		}
		archived = append(archived, restored)
	}
	for group, material := range cred.Groups {
		shared, err := newSecret(group, material)
		if err != nil {
			return fail(err)
		}
		secrets[group] = shared
	}
	return active, archived, secrets, nil
}

func closeAll(active *keypair, archived []*keypair, secrets map[string]*Secret) {
	if active != nil {
		active.close()
	}
	for _, pair := range archived {
		pair.close()
	}
	for _, shared := range secrets {
		shared.key.Close()
	}
}

func idOrEmpty(pair *keypair) KeyID {
	if pair == nil {
		return ""
	}
	return pair.id
}
