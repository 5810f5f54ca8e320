// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/peerstate/peerstate/lib/secret"
)

// readPassphrase reads the login passphrase from path ("-" is stdin),
// or prompts on the terminal with echo disabled when path is empty.
// The caller must close the returned buffer.
func readPassphrase(path string, stderr io.Writer) (*secret.Buffer, error) {
	if path != "" {
		buffer, err := secret.ReadFromPath(path)
		if err != nil {
			return nil, fmt.Errorf("reading passphrase: %w", err)
		}
		return buffer, nil
	}

	stdinFileDescriptor := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFileDescriptor) {
		return nil, errors.New("no terminal available for interactive passphrase prompt (use --passphrase-file)")
	}

	fmt.Fprint(stderr, "Passphrase: ")
	passphraseBytes, err := term.ReadPassword(stdinFileDescriptor)
	fmt.Fprintln(stderr)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}

	buffer, err := secret.NewFromBytes(passphraseBytes)
	if err != nil {
		secret.Zero(passphraseBytes)
		return nil, err
	}
	return buffer, nil
}
