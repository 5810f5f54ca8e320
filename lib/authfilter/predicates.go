// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package authfilter

import "github.com/peerstate/peerstate/lib/keychain"

// Always allows every write to the pattern.
func Always(Context) (bool, error) { return true, nil }

// Never denies every write to the pattern. Equivalent to leaving the
// pattern out, but documents the intent.
func Never(Context) (bool, error) { return false, nil }

// ActorIs allows writes by any of the given identities.
func ActorIs(identities ...keychain.Identity) Predicate {
	allowed := make(map[keychain.Identity]bool, len(identities))
	for _, identity := range identities {
		allowed[identity] = true
	}
	return func(ctx Context) (bool, error) {
		return allowed[ctx.Actor], nil
	}
}

// ActorMatchesParam allows a write when the actor equals the named
// path parameter, as in "/users/:userId" with ActorMatchesParam("userId").
func ActorMatchesParam(name string) Predicate {
	return func(ctx Context) (bool, error) {
		value, ok := ctx.Params[name]
		return ok && keychain.Identity(value) == ctx.Actor, nil
	}
}

// Ops restricts a predicate to the given operations. Other operations
// are denied.
func Ops(predicate Predicate, ops ...string) Predicate {
	allowed := make(map[string]bool, len(ops))
	for _, op := range ops {
		allowed[op] = true
	}
	return func(ctx Context) (bool, error) {
		if !allowed[ctx.Op] {
			return false, nil
		}
		return predicate(ctx)
	}
}
