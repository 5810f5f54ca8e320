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

	"github.com/spf13/pflag"

	"github.com/peerstate/peerstate/lib/authfilter"
	"github.com/peerstate/peerstate/lib/config"
	"github.com/peerstate/peerstate/lib/keychain"
	"github.com/peerstate/peerstate/lib/keystore"
	"github.com/peerstate/peerstate/lib/peerstate"
	"github.com/peerstate/peerstate/lib/rules"
)

// commonFlags are accepted by every command that logs in.
type commonFlags struct {
	configPath     string
	user           string
	passphraseFile string
}

func (f *commonFlags) addFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "configuration file (default: $PEERSTATE_CONFIG)")
	flagSet.StringVar(&f.user, "user", "", "identity to log in as (default: config identity)")
	flagSet.StringVar(&f.passphraseFile, "passphrase-file", "", `read the passphrase from a file, or "-" for stdin`)
}

// loadConfig resolves the configuration: --config, then
// PEERSTATE_CONFIG, then the defaults.
func (f *commonFlags) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case f.configPath != "":
		cfg, err = config.LoadFile(f.configPath)
	case os.Getenv("PEERSTATE_CONFIG") != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
		cfg.Expand()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// environment is a logged-in peer: configuration, logger, keystore,
// and keychain. close releases all of them.
type environment struct {
	config *config.Config
	logger *slog.Logger
	store  *keystore.SQLite
	keys   *keychain.Keychain
}

// openEnvironment loads configuration, opens the keystore, and logs
// in. Logging in an unknown user enrolls them.
func openEnvironment(ctx context.Context, flags *commonFlags, stderr io.Writer) (*environment, error) {
	cfg, err := flags.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := slog.New(cfg.Log.Handler(stderr))

	user := flags.user
	if user == "" {
		user = cfg.Identity
	}
	if user == "" {
		return nil, errors.New("no identity: pass --user or set identity in the config file")
	}
	if err := keychain.ValidateIdentity(keychain.Identity(user)); err != nil {
		return nil, err
	}

	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	store, err := keystore.OpenSQLite(ctx, cfg.Paths.Keystore, logger)
	if err != nil {
		return nil, err
	}

	keys, err := keychain.New(keychain.Config{
		Directory:        store,
		Credentials:      store,
		Logger:           logger,
		WorkFactor:       cfg.Keychain.WorkFactor,
		TransitionWindow: cfg.Keychain.TransitionWindow,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	passphrase, err := readPassphrase(flags.passphraseFile, stderr)
	if err != nil {
		keys.Close()
		store.Close()
		return nil, err
	}
	defer passphrase.Close()

	if err := keys.Login(ctx, keychain.Identity(user), passphrase.Bytes()); err != nil {
		keys.Close()
		store.Close()
		return nil, err
	}
	logger.Debug("logged in", "identity", user, "key", keys.ActiveKeyID().Short())

	return &environment{config: cfg, logger: logger, store: store, keys: keys}, nil
}

func (e *environment) close() {
	e.keys.Close()
	e.store.Close()
}

// engine compiles the configured rules and builds an engine over the
// environment's keychain. Without a rules file every write is denied.
func (e *environment) engine() (*peerstate.Engine, error) {
	var filters rules.Filters
	if e.config.Filters.Rules == "" {
		e.logger.Warn("no rules file configured; every write will be denied")
		auth, err := authfilter.New(nil)
		if err != nil {
			return nil, err
		}
		filters.Auth = auth
	} else {
		document, err := rules.ReadFile(e.config.Filters.Rules)
		if err != nil {
			return nil, err
		}
		compiled, err := document.Compile()
		if err != nil {
			return nil, err
		}
		filters = *compiled
	}
	return peerstate.CreatePeerState(filters.Auth, filters.Encryption, e.keys, peerstate.WithLogger(e.logger))
}

// coordinatorOptions configures dispatch from the retry section.
func (e *environment) coordinatorOptions() []peerstate.Option {
	return []peerstate.Option{
		peerstate.WithLogger(e.logger),
		peerstate.WithRetryPolicy(peerstate.RetryPolicy{
			MaxAttempts: e.config.Retry.MaxAttempts,
			Backoff:     e.config.Retry.Backoff,
			MaxBackoff:  e.config.Retry.MaxBackoff,
		}),
	}
}
