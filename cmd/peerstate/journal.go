// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/peerstate/peerstate/lib/codec"
	"github.com/peerstate/peerstate/lib/peerstate"
	"github.com/peerstate/peerstate/lib/statetree"
)

// journal is the local replica: the signed actions this peer has
// accepted, stored as a CBOR sequence of their wire encodings. The
// tree is rebuilt by replaying it, so values sealed to this peer are
// decrypted with whatever keys the peer holds at load time.
type journal struct {
	path    string
	actions []*peerstate.SignedAction
	seen    map[uuid.UUID]bool
}

func loadJournal(path string) (*journal, error) {
	j := &journal{path: path, seen: make(map[uuid.UUID]bool)}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return j, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := codec.NewDecoder(file)
	for {
		var encoded []byte
		if err := decoder.Decode(&encoded); err != nil {
			if errors.Is(err, io.EOF) {
				return j, nil
			}
			return nil, fmt.Errorf("reading journal %s (entry %d): %w", path, len(j.actions), err)
		}
		action, err := peerstate.UnmarshalSignedAction(encoded)
		if err != nil {
			return nil, fmt.Errorf("reading journal %s (entry %d): %w", path, len(j.actions), err)
		}
		j.actions = append(j.actions, action)
		j.seen[action.ID] = true
	}
}

// contains reports whether an action with this ID was already recorded.
func (j *journal) contains(id uuid.UUID) bool { return j.seen[id] }

// append records action at the end of the journal file.
func (j *journal) append(action *peerstate.SignedAction) error {
	if j.seen[action.ID] {
		return nil
	}
	encoded, err := action.MarshalBinary()
	if err != nil {
		return err
	}
	file, err := os.OpenFile(j.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	if err := codec.NewEncoder(file).Encode(encoded); err != nil {
		file.Close()
		return fmt.Errorf("writing journal %s: %w", j.path, err)
	}
	if err := file.Close(); err != nil {
		return err
	}
	j.actions = append(j.actions, action)
	j.seen[action.ID] = true
	return nil
}

// replay rebuilds the replica in a new session. Entries that no longer
// apply (their signer's key was discarded, or the rules changed) are
// logged and skipped.
func (j *journal) replay(ctx context.Context, engine *peerstate.Engine, logger *slog.Logger, opts ...peerstate.Option) (*peerstate.Session, error) {
	session := peerstate.NewSession(engine, statetree.Empty(), opts...)
	for index, action := range j.actions {
		if _, err := session.Dispatch(ctx, action); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Warn("skipping journal entry",
				"entry", index,
				"id", action.ID,
				"op", action.Op,
				"path", action.Path,
				"error", err,
			)
		}
	}
	return session, nil
}
