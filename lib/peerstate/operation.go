// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package peerstate

import (
	"fmt"

	"github.com/peerstate/peerstate/lib/statetree"
	"github.com/peerstate/peerstate/lib/treepath"
)

// Operation applies one kind of action to a tree. Apply must be
// deterministic and must not modify its input: every peer applying the
// same action to the same tree has to reach the same result.
type Operation struct {
	// RequiresValue reports whether actions carry a value. Actions
	// disagreeing with it are rejected with ErrInvalidAction.
	RequiresValue bool

	// Apply returns the new tree. value is the decoded plaintext, or
	// the *Encrypted envelope when this peer cannot decrypt it, or nil
	// when RequiresValue is false.
	Apply func(tree statetree.Tree, path treepath.Path, value any) (statetree.Tree, error)
}

func builtinOperations() map[string]Operation {
	return map[string]Operation{
		OpAdd:     {RequiresValue: true, Apply: applyAdd},
		OpReplace: {RequiresValue: true, Apply: applyReplace},
		OpRemove:  {RequiresValue: false, Apply: applyRemove},
	}
}

// applyAdd writes value at path, creating missing parent objects.
// Writing the same value twice yields the same tree.
func applyAdd(tree statetree.Tree, path treepath.Path, value any) (statetree.Tree, error) {
	return tree.Set(path, value)
}

// applyReplace writes value at an existing path.
func applyReplace(tree statetree.Tree, path treepath.Path, value any) (statetree.Tree, error) {
	if !tree.Has(path) {
		return tree, fmt.Errorf("replace %s: %w", path, statetree.ErrNotFound)
	}
	return tree.Set(path, value)
}

// applyRemove deletes path. Removing a missing path is a no-op so that
// replays converge.
func applyRemove(tree statetree.Tree, path treepath.Path, _ any) (statetree.Tree, error) {
	return tree.Delete(path)
}
