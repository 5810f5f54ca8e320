// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// MemoryPath opens a private in-memory database. Open replaces it with
// a uniquely named shared-cache URI so every connection in the pool sees
// the same database and separate pools never do.
const MemoryPath = ":memory:"

var memoryDatabases atomic.Uint64

// Config holds the parameters for opening a pool.
type Config struct {
	// Path is the database file. The parent directory must exist.
	Path string

	// PoolSize is the number of connections. Zero selects
	// max(runtime.NumCPU(), 4).
	PoolSize int

	// Migrations are applied in order, once per database.
	Migrations []string

	// Logger receives open/close and migration messages. Nil discards.
	Logger *slog.Logger
}

// Pool is a fixed-size pool of SQLite connections. Pool is safe for
// concurrent use; individual connections are not.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string

	closeOnce sync.Once
	closeErr  error
}

// Open creates the pool and brings the schema up to date. The caller
// must call Close.
func Open(ctx context.Context, cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = max(runtime.NumCPU(), 4)
	}
	uri := cfg.Path
	if cfg.Path == MemoryPath {
		uri = fmt.Sprintf("file:peerstate-memory-%d?mode=memory&cache=shared", memoryDatabases.Add(1))
	}

	inner, err := sqlitex.NewPool(uri, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}

	pool := &Pool{inner: inner, logger: logger, path: cfg.Path}
	if err := pool.migrate(ctx, cfg.Migrations); err != nil {
		inner.Close()
		return nil, err
	}

	logger.Debug("sqlite pool opened", "path", cfg.Path, "pool_size", poolSize)
	return pool, nil
}

// Take borrows a connection, blocking until one is free or ctx is
// done. The caller must Put it back.
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection to the pool. Nil is a no-op.
func (p *Pool) Put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// WithConn runs fn with a borrowed connection.
func (p *Pool) WithConn(ctx context.Context, fn func(*sqlite.Conn) error) error {
	conn, err := p.Take(ctx)
	if err != nil {
		return err
	}
	defer p.Put(conn)
	return fn(conn)
}

// WithTx runs fn inside an immediate transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
func (p *Pool) WithTx(ctx context.Context, fn func(*sqlite.Conn) error) error {
	return p.WithConn(ctx, func(conn *sqlite.Conn) (err error) {
		endTransaction, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return fmt.Errorf("sqlitepool: begin transaction: %w", err)
		}
		defer endTransaction(&err)
		return fn(conn)
	})
}

// Close closes every connection, blocking until borrowed connections
// are returned. Idempotent.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		if err := p.inner.Close(); err != nil {
			p.logger.Error("sqlite pool close error", "path", p.path, "error", err)
			p.closeErr = fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
			return
		}
		p.logger.Debug("sqlite pool closed", "path", p.path)
	})
	return p.closeErr
}

// SchemaVersion returns the number of migrations applied.
func (p *Pool) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := p.WithConn(ctx, func(conn *sqlite.Conn) error {
		var err error
		version, err = userVersion(conn)
		return err
	})
	return version, err
}

func (p *Pool) migrate(ctx context.Context, migrations []string) error {
	if len(migrations) == 0 {
		return nil
	}
	return p.WithTx(ctx, func(conn *sqlite.Conn) error {
		current, err := userVersion(conn)
		if err != nil {
			return err
		}
		if current > len(migrations) {
			return fmt.Errorf("sqlitepool: %s has schema version %d, newer than the %d known migrations",
				p.path, current, len(migrations))
		}
		for index := current; index < len(migrations); index++ {
			if err := sqlitex.ExecuteScript(conn, migrations[index], nil); err != nil {
				return fmt.Errorf("sqlitepool: migration %d: %w", index+1, err)
			}
			p.logger.Info("applied schema migration", "path", p.path, "version", index+1)
		}
		// PRAGMA does not accept bound parameters.
		pragma := fmt.Sprintf("PRAGMA user_version=%d", len(migrations))
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
		return nil
	})
}

func userVersion(conn *sqlite.Conn) (int, error) {
	var version int
	err := sqlitex.ExecuteTransient(conn, "PRAGMA user_version", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			version = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("sqlitepool: reading user_version: %w", err)
	}
	return version, nil
}

func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
	}
	return nil
}
