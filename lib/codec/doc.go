// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the canonical CBOR encoding shared by every
// peerstate package.
//
// Signatures are computed over encoded bytes, so two peers must produce
// identical bytes for the same logical action or verification fails.
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer and float encoding, no indefinite-length
// items. Same logical data always produces identical bytes.
//
// For buffer-oriented operations (signing payloads, sealed values):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (action logs, CLI pipes):
//
//	encoder := codec.NewEncoder(file)
//	decoder := codec.NewDecoder(file)
//
// [Normalize] pushes an arbitrary value through an encode/decode round
// trip so that tree values have the same Go types on every replica
// (uint64 for non-negative integers, int64 for negative ones, float64,
// string, []byte, []any, map[string]any). Values stored in a state tree
// are always normalized.
//
// # Struct Tag Rules
//
// Wire types use integer keys (`cbor:"1,keyasint"`). Integer keys are
// compact and, unlike field names, survive renames without changing
// the signed bytes. Types that also appear in CLI JSON output use
// `json` tags, which fxamacker/cbor reads as a fallback.
package codec
