// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

// Package rules builds authorization and encryption filters from a
// declarative document instead of Go closures.
//
// A document names an expression engine and maps path patterns to
// expressions:
//
//	engine: cel
//	auth:
//	  /counter: "true"
//	  /users/:userId: "actor == params.userId"
//	encryption:
//	  /counter: '["2"]'
//	  /lastName: "false"
//
// Documents are authored as YAML or as JSONC (JSON with comments and
// trailing commas). Every expression sees four variables: actor (the
// writing identity), path (the concrete target path), op (the
// operation name), and params (the values bound by the pattern's
// ":name" segments).
//
// Auth expressions must evaluate to a bool; any other result denies
// the write. Encryption expressions evaluate to false or null (write
// in plaintext) or to a list of identity strings (encrypt for those
// identities and the actor).
//
// Two engines are available: "cel" (Common Expression Language, the
// default) and "expr". Expressions are compiled once by [Document.Compile];
// a syntax error anywhere in the document fails the whole compile.
package rules
