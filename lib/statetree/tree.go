// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package statetree

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/zeebo/blake3"

	"github.com/peerstate/peerstate/lib/codec"
	"github.com/peerstate/peerstate/lib/treepath"
)

var (
	// ErrNotFound is returned by Get when no value exists at the path.
	ErrNotFound = errors.New("statetree: path not found")

	// ErrNotContainer is returned when a path descends through a
	// scalar, or indexes an array with something other than a valid
	// index.
	ErrNotContainer = errors.New("statetree: path descends through a non-container")
)

// Digest is a BLAKE3 hash of a tree's canonical encoding.
type Digest [32]byte

// String returns the hex form of the digest.
func (d Digest) String() string { return fmt.Sprintf("%x", d[:]) }

// digestKey is the BLAKE3 key for tree digests: the ASCII domain name
// zero-padded to 32 bytes. Changing it invalidates every digest.
var digestKey = [32]byte{
	'p', 'e', 'e', 'r', 's', 't', 'a', 't', 'e', '.', 's', 't', 'a', 't', 'e', 't',
	'r', 'e', 'e', '.', 'd', 'i', 'g', 'e', 's', 't', 0, 0, 0, 0, 0, 0,
}

// Tree is an immutable snapshot of the state document. The zero value
// is an empty object.
type Tree struct {
	root map[string]any
}

// Empty returns an empty tree.
func Empty() Tree { return Tree{} }

// New builds a tree from a root object. The map is normalized through
// the canonical codec so every replica holds identical value types; the
// caller's map is not retained.
func New(root map[string]any) (Tree, error) {
	if root == nil {
		return Tree{}, nil
	}
	normalized, err := codec.Normalize(root)
	if err != nil {
		return Tree{}, fmt.Errorf("statetree: normalizing root: %w", err)
	}
	object, ok := normalized.(map[string]any)
	if !ok {
		return Tree{}, fmt.Errorf("statetree: root normalized to %T", normalized)
	}
	return Tree{root: object}, nil
}

// MustNew is New that panics on error.
func MustNew(root map[string]any) Tree {
	tree, err := New(root)
	if err != nil {
		panic(err)
	}
	return tree
}

// Root returns the root object. It is nil for an empty tree and must
// not be modified.
func (t Tree) Root() map[string]any { return t.root }

// Len returns the number of top-level keys.
func (t Tree) Len() int { return len(t.root) }

// Get returns the value at path. The root path returns the root object.
func (t Tree) Get(path treepath.Path) (any, error) {
	var current any = t.root
	if t.root == nil {
		current = map[string]any{}
	}
	for i, segment := range path {
		switch node := current.(type) {
		case map[string]any:
			child, ok := node[segment]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, path[:i+1])
			}
			current = child
		case []any:
			index, err := arrayIndex(segment, len(node)-1)
			if err != nil {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, path[:i+1])
			}
			current = node[index]
		default:
			return nil, fmt.Errorf("%w: %s is %T", ErrNotContainer, path[:i], current)
		}
	}
	return current, nil
}

// Has reports whether a value exists at path.
func (t Tree) Has(path treepath.Path) bool {
	_, err := t.Get(path)
	return err == nil
}

// Set returns a tree with value stored at path. Missing intermediate
// objects are created. An array segment may name an existing index
// (replace) or len(array) (append). The value is stored as given;
// callers normalize it first when replicas must agree on types.
func (t Tree) Set(path treepath.Path, value any) (Tree, error) {
	if path.IsRoot() {
		return t, treepath.ErrRoot
	}
	root, err := setIn(t.root, path, value)
	if err != nil {
		return t, err
	}
	return Tree{root: root.(map[string]any)}, nil
}

// Delete returns a tree without the value at path. Deleting a missing
// path is not an error and returns the receiver. Deleting an array
// element shifts later elements down.
func (t Tree) Delete(path treepath.Path) (Tree, error) {
	if path.IsRoot() {
		return t, treepath.ErrRoot
	}
	if !t.Has(path) {
		return t, nil
	}
	root, err := deleteIn(t.root, path)
	if err != nil {
		return t, err
	}
	return Tree{root: root.(map[string]any)}, nil
}

// Digest returns the BLAKE3 hash of the tree's canonical encoding. Two
// trees holding the same normalized content have the same digest.
func (t Tree) Digest() (Digest, error) {
	root := t.root
	if root == nil {
		root = map[string]any{}
	}
	encoded, err := codec.Marshal(root)
	if err != nil {
		return Digest{}, fmt.Errorf("statetree: encoding for digest: %w", err)
	}
	hasher, err := blake3.NewKeyed(digestKey[:])
	if err != nil {
		panic("statetree: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(encoded)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// Equal reports whether two trees have the same digest.
func (t Tree) Equal(other Tree) bool {
	a, errA := t.Digest()
	b, errB := other.Digest()
	return errA == nil && errB == nil && a == b
}

// setIn returns a copy of node with value written at path. Only the
// containers along path are copied.
func setIn(node any, path treepath.Path, value any) (any, error) {
	if len(path) == 0 {
		return value, nil
	}
	segment, rest := path[0], path[1:]

	switch container := node.(type) {
	case nil:
		child, err := setIn(nil, rest, value)
		if err != nil {
			return nil, err
		}
		return map[string]any{segment: child}, nil

	case map[string]any:
		child, err := setIn(container[segment], rest, value)
		if err != nil {
			return nil, err
		}
		copied := make(map[string]any, len(container)+1)
		for key, existing := range container {
			copied[key] = existing
		}
		copied[segment] = child
		return copied, nil

	case []any:
		index, err := arrayIndex(segment, len(container))
		if err != nil {
			return nil, fmt.Errorf("%w: segment %q: %v", ErrNotContainer, segment, err)
		}
		var existing any
		if index < len(container) {
			existing = container[index]
		}
		child, err := setIn(existing, rest, value)
		if err != nil {
			return nil, err
		}
		copied := make([]any, len(container), len(container)+1)
		copy(copied, container)
		if index == len(container) {
			copied = append(copied, child)
		} else {
			copied[index] = child
		}
		return copied, nil

	default:
		return nil, fmt.Errorf("%w: cannot descend into %T at %q", ErrNotContainer, node, segment)
	}
}

// deleteIn returns a copy of node without the value at path. The path
// must exist.
func deleteIn(node any, path treepath.Path) (any, error) {
	segment, rest := path[0], path[1:]

	switch container := node.(type) {
	case map[string]any:
		copied := make(map[string]any, len(container))
		for key, existing := range container {
			copied[key] = existing
		}
		if len(rest) == 0 {
			delete(copied, segment)
			return copied, nil
		}
		child, err := deleteIn(container[segment], rest)
		if err != nil {
			return nil, err
		}
		copied[segment] = child
		return copied, nil

	case []any:
		index, err := arrayIndex(segment, len(container)-1)
		if err != nil {
			return nil, fmt.Errorf("%w: segment %q: %v", ErrNotContainer, segment, err)
		}
		if len(rest) == 0 {
			copied := make([]any, 0, len(container)-1)
			copied = append(copied, container[:index]...)
			return append(copied, container[index+1:]...), nil
		}
		child, err := deleteIn(container[index], rest)
		if err != nil {
			return nil, err
		}
		copied := make([]any, len(container))
		copy(copied, container)
		copied[index] = child
		return copied, nil

	default:
		return nil, fmt.Errorf("%w: cannot descend into %T at %q", ErrNotContainer, node, segment)
	}
}

// arrayIndex parses a decimal array index in [0, max]. Leading zeros
// and signs are rejected so each index has exactly one spelling.
func arrayIndex(segment string, max int) (int, error) {
	if segment == "" || (len(segment) > 1 && segment[0] == '0') {
		return 0, fmt.Errorf("invalid array index %q", segment)
	}
	for i := 0; i < len(segment); i++ {
		if segment[i] < '0' || segment[i] > '9' {
			return 0, fmt.Errorf("invalid array index %q", segment)
		}
	}
	index, err := strconv.Atoi(segment)
	if err != nil {
		return 0, fmt.Errorf("invalid array index %q", segment)
	}
	if index > max {
		return 0, fmt.Errorf("array index %d out of range [0, %d]", index, max)
	}
	return index, nil
}
