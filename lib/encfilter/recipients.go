// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package encfilter

import "github.com/peerstate/peerstate/lib/keychain"

// None writes in plaintext.
func None(Context) (Recipients, error) { return nil, nil }

// To encrypts for the given identities (and the actor).
func To(identities ...keychain.Identity) RecipientFunc {
	recipients := append(Recipients{}, identities...)
	return func(Context) (Recipients, error) {
		return recipients, nil
	}
}

// ActorOnly encrypts so only the actor can read the value back.
func ActorOnly(Context) (Recipients, error) { return Recipients{}, nil }

// ToParam encrypts for the identity named by a path parameter, as in
// "/inbox/:userId" with ToParam("userId").
func ToParam(name string) RecipientFunc {
	return func(ctx Context) (Recipients, error) {
		value, ok := ctx.Params[name]
		if !ok || value == "" {
			return Recipients{}, nil
		}
		return Recipients{keychain.Identity(value)}, nil
	}
}
