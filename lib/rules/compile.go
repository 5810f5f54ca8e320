// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package rules

import (
	"fmt"
	"sort"

	"github.com/peerstate/peerstate/lib/authfilter"
	"github.com/peerstate/peerstate/lib/encfilter"
	"github.com/peerstate/peerstate/lib/keychain"
)

// Filters is the output of Compile.
type Filters struct {
	Auth       *authfilter.Filter
	Encryption *encfilter.Filter
}

// Compile compiles every expression in the document and builds both
// filters.
func (d *Document) Compile() (*Filters, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	compiler, err := newCompiler(d.Engine)
	if err != nil {
		return nil, err
	}

	authRules := make([]authfilter.Rule, 0, len(d.Auth))
	for _, pattern := range sortedKeys(d.Auth) {
		compiled, err := compiler.compile(d.Auth[pattern])
		if err != nil {
			return nil, fmt.Errorf("%w: auth rule %s: %v", ErrInvalidDocument, pattern, err)
		}
		authRules = append(authRules, authfilter.Rule{Pattern: pattern, Predicate: predicate(compiled)})
	}
	auth, err := authfilter.NewFromRules(authRules)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	encryptionRules := make([]encfilter.Rule, 0, len(d.Encryption))
	for _, pattern := range sortedKeys(d.Encryption) {
		compiled, err := compiler.compile(d.Encryption[pattern])
		if err != nil {
			return nil, fmt.Errorf("%w: encryption rule %s: %v", ErrInvalidDocument, pattern, err)
		}
		encryptionRules = append(encryptionRules, encfilter.Rule{Pattern: pattern, Recipients: recipients(compiled)})
	}
	encryption, err := encfilter.NewFromRules(encryptionRules)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	return &Filters{Auth: auth, Encryption: encryption}, nil
}

func predicate(compiled program) authfilter.Predicate {
	return func(ctx authfilter.Context) (bool, error) {
		out, err := compiled.eval(variables{
			Actor:  string(ctx.Actor),
			Path:   ctx.Path.String(),
			Op:     ctx.Op,
			Params: ctx.Params,
		})
		if err != nil {
			return false, err
		}
		allowed, ok := out.(bool)
		if !ok {
			return false, fmt.Errorf("auth expression returned %T, want bool", out)
		}
		return allowed, nil
	}
}

func recipients(compiled program) encfilter.RecipientFunc {
	return func(ctx encfilter.Context) (encfilter.Recipients, error) {
		out, err := compiled.eval(variables{
			Actor:  string(ctx.Actor),
			Path:   ctx.Path.String(),
			Op:     ctx.Op,
			Params: ctx.Params,
		})
		if err != nil {
			return nil, err
		}
		return toRecipients(out)
	}
}

// toRecipients maps an expression result onto the encryption filter's
// convention: false or null is plaintext, a list is an audience.
func toRecipients(out any) (encfilter.Recipients, error) {
	switch typed := out.(type) {
	case nil:
		return nil, nil
	case bool:
		if typed {
			return nil, fmt.Errorf("encryption expression returned true, want false or a list")
		}
		return nil, nil
	case []string:
		result := make(encfilter.Recipients, len(typed))
		for i, identity := range typed {
			result[i] = keychain.Identity(identity)
		}
		return result, nil
	case []any:
		result := make(encfilter.Recipients, len(typed))
		for i, element := range typed {
			identity, ok := element.(string)
			if !ok {
				return nil, fmt.Errorf("encryption list element %d is %T, want string", i, element)
			}
			result[i] = keychain.Identity(identity)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("encryption expression returned %T, want false or a list", out)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
