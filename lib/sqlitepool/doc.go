// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens SQLite connection pools with a fixed set of
// pragmas and a versioned schema.
//
// It wraps zombiezen.com/go/sqlite/sqlitex.Pool. Every connection gets
// WAL journaling, NORMAL synchronous mode, a busy timeout, and foreign
// key enforcement. [Config.Migrations] is an ordered list of SQL
// scripts; Open applies the ones the database has not seen yet, using
// PRAGMA user_version as the high-water mark, inside one immediate
// transaction. Appending a script is the only supported schema change.
//
// Callers write SQL directly and use sqlitex.Execute with cached
// statements. [Pool.WithConn] and [Pool.WithTx] take care of the
// Take/Put and transaction bookkeeping.
//
// The keystore package uses this to persist credentials and the public
// key directory across CLI invocations.
package sqlitepool
