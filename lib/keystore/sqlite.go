// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/peerstate/peerstate/lib/keychain"
	"github.com/peerstate/peerstate/lib/sqlitepool"
)

// migrations is the keystore schema history. Append only.
var migrations = []string{
	`
	CREATE TABLE public_keys (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		identity   TEXT    NOT NULL,
		key_id     TEXT    NOT NULL,
		signing    BLOB    NOT NULL,
		recipient  TEXT    NOT NULL,
		created_at INTEGER NOT NULL,
		retired_at INTEGER,
		UNIQUE (identity, key_id)
	);
	CREATE INDEX public_keys_current ON public_keys (identity, retired_at, seq);

	CREATE TABLE credentials (
		identity   TEXT    PRIMARY KEY,
		sealed     BLOB    NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`,
}

var (
	_ keychain.Directory       = (*SQLite)(nil)
	_ keychain.CredentialStore = (*SQLite)(nil)
)

// SQLite is a Directory and CredentialStore persisted in a SQLite
// database.
type SQLite struct {
	pool *sqlitepool.Pool
	now  func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	pool, err := sqlitepool.Open(ctx, sqlitepool.Config{
		Path:       path,
		PoolSize:   2,
		Migrations: migrations,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}
	return &SQLite{pool: pool, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.pool.Close()
}

// Publish implements keychain.Directory.
func (s *SQLite) Publish(ctx context.Context, key keychain.PublicKey) error {
	if key.Identity == "" || key.KeyID == "" {
		return fmt.Errorf("keystore: publishing key without identity or key ID")
	}
	return s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			INSERT INTO public_keys (identity, key_id, signing, recipient, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (identity, key_id) DO NOTHING`,
			&sqlitex.ExecOptions{
				Args: []any{
					string(key.Identity), string(key.KeyID), []byte(key.Signing),
					key.Recipient, key.CreatedAt.UnixNano(),
				},
			})
		if err != nil {
			return fmt.Errorf("keystore: publishing %s: %w", key.KeyID.Short(), err)
		}
		return nil
	})
}

// Retire implements keychain.Directory.
func (s *SQLite) Retire(ctx context.Context, identity keychain.Identity, keyID keychain.KeyID, at time.Time) error {
	return s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			UPDATE public_keys SET retired_at = COALESCE(retired_at, ?)
			WHERE identity = ? AND key_id = ?`,
			&sqlitex.ExecOptions{Args: []any{at.UnixNano(), string(identity), string(keyID)}})
		if err != nil {
			return fmt.Errorf("keystore: retiring %s: %w", keyID.Short(), err)
		}
		if conn.Changes() == 0 {
			return fmt.Errorf("%w: %s for %q", keychain.ErrKeyNotFound, keyID.Short(), identity)
		}
		return nil
	})
}

// Resolve implements keychain.Directory.
func (s *SQLite) Resolve(ctx context.Context, identity keychain.Identity, keyID keychain.KeyID) (keychain.PublicKey, error) {
	key, found, err := s.queryKey(ctx, `
		SELECT identity, key_id, signing, recipient, created_at, retired_at
		FROM public_keys WHERE identity = ? AND key_id = ?`,
		string(identity), string(keyID))
	if err != nil {
		return keychain.PublicKey{}, err
	}
	if !found {
		return keychain.PublicKey{}, fmt.Errorf("%w: %s for %q", keychain.ErrKeyNotFound, keyID.Short(), identity)
	}
	return key, nil
}

// Current implements keychain.Directory.
func (s *SQLite) Current(ctx context.Context, identity keychain.Identity) (keychain.PublicKey, error) {
	key, found, err := s.queryKey(ctx, `
		SELECT identity, key_id, signing, recipient, created_at, retired_at
		FROM public_keys WHERE identity = ? AND retired_at IS NULL
		ORDER BY seq DESC LIMIT 1`,
		string(identity))
	if err != nil {
		return keychain.PublicKey{}, err
	}
	if !found {
		return keychain.PublicKey{}, fmt.Errorf("%w: no current key for %q", keychain.ErrKeyNotFound, identity)
	}
	return key, nil
}

func (s *SQLite) queryKey(ctx context.Context, query string, args ...any) (keychain.PublicKey, bool, error) {
	var key keychain.PublicKey
	var found bool
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				signing := make([]byte, stmt.ColumnLen(2))
				stmt.ColumnBytes(2, signing)
				key = keychain.PublicKey{
					Identity:  keychain.Identity(stmt.ColumnText(0)),
					KeyID:     keychain.KeyID(stmt.ColumnText(1)),
					Signing:   ed25519.PublicKey(signing),
					Recipient: stmt.ColumnText(3),
					CreatedAt: time.Unix(0, stmt.ColumnInt64(4)).UTC(),
				}
				if stmt.ColumnType(5) != sqlite.TypeNull {
					key.RetiredAt = time.Unix(0, stmt.ColumnInt64(5)).UTC()
				}
				return nil
			},
		})
	})
	if err != nil {
		return keychain.PublicKey{}, false, fmt.Errorf("keystore: querying public key: %w", err)
	}
	return key, found, nil
}

// Load implements keychain.CredentialStore.
func (s *SQLite) Load(ctx context.Context, user keychain.Identity) ([]byte, error) {
	var sealed []byte
	var found bool
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT sealed FROM credentials WHERE identity = ?`, &sqlitex.ExecOptions{
			Args: []any{string(user)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				sealed = make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, sealed)
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("keystore: loading credential: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", keychain.ErrCredentialNotFound, user)
	}
	return sealed, nil
}

// Save implements keychain.CredentialStore.
func (s *SQLite) Save(ctx context.Context, user keychain.Identity, sealed []byte) error {
	return s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			INSERT INTO credentials (identity, sealed, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (identity) DO UPDATE SET sealed = excluded.sealed, updated_at = excluded.updated_at`,
			&sqlitex.ExecOptions{Args: []any{string(user), sealed, s.now().UnixNano()}})
		if err != nil {
			return fmt.Errorf("keystore: saving credential: %w", err)
		}
		return nil
	})
}
