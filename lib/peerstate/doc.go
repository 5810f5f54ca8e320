// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

// Package peerstate is the shared-state engine: it turns a caller's
// intent into a signed, optionally encrypted action, and folds signed
// actions from any peer into an immutable state tree.
//
// The pieces, in the order an action flows through them:
//
//   - [Engine.Sign] resolves the write's audience with the encryption
//     filter, seals the value to that audience through the keychain,
//     stamps the actor and a UUIDv7 action ID, and signs the canonical
//     CBOR encoding of the action with the active Ed25519 key.
//   - [Engine.NextState] is the reducer. It verifies the signature
//     against the directory key the action names, runs the
//     authorization filter (deny by default), opens sealed values when
//     this peer is a recipient (storing the envelope opaquely when it
//     is not), and applies the operation to produce a new tree. The
//     input state is never modified.
//   - [Coordinator.Dispatch] applies an action against the latest
//     committed state in a [Store] and commits it with compare-and-swap,
//     re-applying the same signed action when another commit won the
//     race, up to a bounded number of attempts.
//   - [Session] binds an engine and a store for one tree, which is the
//     shape a UI binding or CLI consumes.
//
// Rejections never leak into the committed tree: a denied, forged, or
// malformed action returns the unchanged state together with an error
// matching one of the sentinels in this package.
//
// Operations are "add", "replace", and "remove". Further operations can
// be registered with [WithOperation]; every peer that should accept an
// action must register the same operation.
package peerstate
