// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/peerstate/peerstate/lib/codec"
	"github.com/peerstate/peerstate/lib/keychain"
	"github.com/peerstate/peerstate/lib/peerstate"
	"github.com/peerstate/peerstate/lib/treepath"
)

func initCmd(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var flags commonFlags
	flagSet := pflag.NewFlagSet("init", pflag.ContinueOnError)
	flags.addFlags(flagSet)
	if err := parseFlags(flagSet, args, stderr); err != nil {
		return err
	}
	if flagSet.NArg() != 0 {
		return fmt.Errorf("init takes no arguments")
	}

	env, err := openEnvironment(ctx, &flags, stderr)
	if err != nil {
		return err
	}
	defer env.close()

	fmt.Fprintf(stdout, "identity: %s\n", env.keys.Identity())
	fmt.Fprintf(stdout, "key:      %s\n", env.keys.ActiveKeyID())
	return nil
}

func rotateCmd(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var flags commonFlags
	var prune bool
	flagSet := pflag.NewFlagSet("rotate", pflag.ContinueOnError)
	flags.addFlags(flagSet)
	flagSet.BoolVar(&prune, "prune", false, "discard archived keys older than the transition window")
	if err := parseFlags(flagSet, args, stderr); err != nil {
		return err
	}

	env, err := openEnvironment(ctx, &flags, stderr)
	if err != nil {
		return err
	}
	defer env.close()

	previous := env.keys.ActiveKeyID()
	if err := env.keys.RotateKeys(ctx); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "rotated %s -> %s\n", previous.Short(), env.keys.ActiveKeyID().Short())

	if prune {
		discarded, err := env.keys.PruneArchived(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "discarded %d archived key(s)\n", discarded)
	}
	fmt.Fprintf(stdout, "archived: %d\n", len(env.keys.ArchivedKeyIDs()))
	return nil
}

func secretCmd(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var flags commonFlags
	flagSet := pflag.NewFlagSet("secret", pflag.ContinueOnError)
	flags.addFlags(flagSet)
	if err := parseFlags(flagSet, args, stderr); err != nil {
		return err
	}
	if flagSet.NArg() == 0 {
		return fmt.Errorf("usage: peerstate secret [flags] <member>...")
	}

	env, err := openEnvironment(ctx, &flags, stderr)
	if err != nil {
		return err
	}
	defer env.close()

	members := []keychain.Identity{env.keys.Identity()}
	for _, member := range flagSet.Args() {
		if err := keychain.ValidateIdentity(keychain.Identity(member)); err != nil {
			return err
		}
		members = append(members, keychain.Identity(member))
	}
	group := keychain.GroupID(keychain.NormalizeRecipients(members))

	shared, err := env.keys.FetchOrCreateSecret(ctx, group)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s\t%s\n", shared.Group(), shared.Fingerprint())
	return nil
}

func signCmd(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var flags commonFlags
	var op, path, value, out string
	var apply bool
	flagSet := pflag.NewFlagSet("sign", pflag.ContinueOnError)
	flags.addFlags(flagSet)
	flagSet.StringVar(&op, "op", peerstate.OpAdd, "operation: add, replace, or remove")
	flagSet.StringVar(&path, "path", "", "target path, e.g. /users/alice/name")
	flagSet.StringVar(&value, "value", "", "value as JSON (add and replace)")
	flagSet.StringVarP(&out, "out", "o", "-", `write the signed action here ("-" for stdout)`)
	flagSet.BoolVar(&apply, "apply", false, "also apply the action to the local replica")
	if err := parseFlags(flagSet, args, stderr); err != nil {
		return err
	}
	if path == "" {
		return fmt.Errorf("--path is required")
	}

	intent := peerstate.Intent{Op: op, Path: path}
	if flagSet.Changed("value") {
		parsed, err := parseValue(value)
		if err != nil {
			return err
		}
		intent.Value = parsed
	}

	env, err := openEnvironment(ctx, &flags, stderr)
	if err != nil {
		return err
	}
	defer env.close()

	engine, err := env.engine()
	if err != nil {
		return err
	}
	replica, err := loadJournal(env.config.Paths.State)
	if err != nil {
		return err
	}
	session, err := replica.replay(ctx, engine, env.logger, env.coordinatorOptions()...)
	if err != nil {
		return err
	}

	action, err := session.Sign(ctx, intent)
	if err != nil {
		return err
	}
	if apply {
		if _, err := session.Dispatch(ctx, action); err != nil {
			return err
		}
		if err := replica.append(action); err != nil {
			return err
		}
	}

	encoded, err := action.MarshalBinary()
	if err != nil {
		return err
	}
	env.logger.Info("signed action",
		"id", action.ID,
		"op", action.Op,
		"path", action.Path,
		"sealed", action.Value.IsSealed(),
		"applied", apply,
	)
	if out == "-" {
		_, err = stdout.Write(encoded)
		return err
	}
	return os.WriteFile(out, encoded, 0o644)
}

func applyCmd(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var flags commonFlags
	flagSet := pflag.NewFlagSet("apply", pflag.ContinueOnError)
	flags.addFlags(flagSet)
	if err := parseFlags(flagSet, args, stderr); err != nil {
		return err
	}
	if flagSet.NArg() == 0 {
		return fmt.Errorf("usage: peerstate apply [flags] <action-file>...")
	}

	env, err := openEnvironment(ctx, &flags, stderr)
	if err != nil {
		return err
	}
	defer env.close()

	engine, err := env.engine()
	if err != nil {
		return err
	}
	replica, err := loadJournal(env.config.Paths.State)
	if err != nil {
		return err
	}
	session, err := replica.replay(ctx, engine, env.logger, env.coordinatorOptions()...)
	if err != nil {
		return err
	}

	rejected := 0
	for _, file := range flagSet.Args() {
		if err := applyFile(ctx, session, replica, file, stdout); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			rejected++
			fmt.Fprintf(stdout, "rejected %s: %v\n", file, err)
		}
	}
	if rejected > 0 {
		return fmt.Errorf("%d of %d action(s) rejected", rejected, flagSet.NArg())
	}
	return nil
}

func applyFile(ctx context.Context, session *peerstate.Session, replica *journal, file string, stdout io.Writer) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	action, err := peerstate.UnmarshalSignedAction(data)
	if err != nil {
		return err
	}
	if replica.contains(action.ID) {
		fmt.Fprintf(stdout, "skipped %s: already applied\n", file)
		return nil
	}
	if _, err := session.Dispatch(ctx, action); err != nil {
		return err
	}
	if err := replica.append(action); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "applied %s: %s %s by %s\n", file, action.Op, action.Path, action.Actor)
	return nil
}

func showCmd(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var flags commonFlags
	var compact, digest bool
	flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
	flags.addFlags(flagSet)
	flagSet.BoolVar(&compact, "compact", false, "print JSON on one line")
	flagSet.BoolVar(&digest, "digest", false, "print the replica digest instead of its contents")
	if err := parseFlags(flagSet, args, stderr); err != nil {
		return err
	}
	if flagSet.NArg() > 1 {
		return fmt.Errorf("usage: peerstate show [flags] [path]")
	}
	path, err := treepath.Parse(flagSet.Arg(0))
	if err != nil {
		return err
	}

	env, err := openEnvironment(ctx, &flags, stderr)
	if err != nil {
		return err
	}
	defer env.close()

	engine, err := env.engine()
	if err != nil {
		return err
	}
	replica, err := loadJournal(env.config.Paths.State)
	if err != nil {
		return err
	}
	session, err := replica.replay(ctx, engine, env.logger, env.coordinatorOptions()...)
	if err != nil {
		return err
	}

	tree := session.State()
	if digest {
		sum, err := tree.Digest()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, sum)
		return nil
	}
	value, err := tree.Get(path)
	if err != nil {
		return err
	}
	return writeJSON(stdout, value, compact)
}

func inspectCmd(args []string, stdout, stderr io.Writer) error {
	// inspect needs no login; the common flags are accepted so scripts
	// can pass the same flags to every command.
	var flags commonFlags
	flagSet := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	flags.addFlags(flagSet)
	if err := parseFlags(flagSet, args, stderr); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("usage: peerstate inspect <action-file>")
	}

	data, err := os.ReadFile(flagSet.Arg(0))
	if err != nil {
		return err
	}
	action, err := peerstate.UnmarshalSignedAction(data)
	if err != nil {
		return err
	}
	diagnostic, err := codec.Diagnose(data)
	if err != nil {
		return fmt.Errorf("%w: %v", peerstate.ErrInvalidAction, err)
	}
	fmt.Fprintf(stdout, "id:     %s\n", action.ID)
	fmt.Fprintf(stdout, "op:     %s %s\n", action.Op, action.Path)
	fmt.Fprintf(stdout, "actor:  %s (key %s)\n", action.Actor, action.Signer.Short())
	fmt.Fprintf(stdout, "sealed: %t\n", action.Value.IsSealed())
	fmt.Fprintln(stdout, diagnostic)
	return nil
}
