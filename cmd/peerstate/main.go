// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

// peerstate is a command-line peer for a shared state tree. It keeps
// the peer's keys in a SQLite keystore, its replica as a journal of
// signed actions, and exchanges actions with other peers as files.
//
// Usage:
//
//	peerstate init     [flags]
//	peerstate rotate   [flags]
//	peerstate secret   [flags] <member>...
//	peerstate sign     [flags] --op <op> --path <path> [--value <json>]
//	peerstate apply    [flags] <action-file>...
//	peerstate show     [flags] [path]
//	peerstate inspect  <action-file>
//	peerstate version
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/peerstate/peerstate/lib/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// errUsage reports that usage was already printed.
var errUsage = errors.New("usage")

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		printUsage(stderr)
		return errUsage
	}

	command, args := args[0], args[1:]
	switch command {
	case "init":
		return initCmd(ctx, args, stdout, stderr)
	case "rotate":
		return rotateCmd(ctx, args, stdout, stderr)
	case "secret":
		return secretCmd(ctx, args, stdout, stderr)
	case "sign":
		return signCmd(ctx, args, stdout, stderr)
	case "apply":
		return applyCmd(ctx, args, stdout, stderr)
	case "show":
		return showCmd(ctx, args, stdout, stderr)
	case "inspect":
		return inspectCmd(args, stdout, stderr)
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "peerstate %s\n", version.Info())
		return nil
	case "help", "--help", "-h":
		printUsage(stdout)
		return nil
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return errUsage
	}
}

// parseFlags parses args into flagSet, printing usage on --help.
func parseFlags(flagSet *pflag.FlagSet, args []string, stderr io.Writer) error {
	flagSet.SetOutput(stderr)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return errUsage
		}
		return err
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `peerstate - Signed, filtered, optionally encrypted shared state

USAGE
    peerstate <command> [flags] [args...]

COMMANDS
    init      Log in, creating the identity and its first keypair if needed
    rotate    Replace the active keypair, archiving the old one
    secret    Fetch or create the shared secret for a recipient group
    sign      Sign an action against the local replica
    apply     Verify and apply signed action files to the local replica
    show      Print the local replica, or the value at a path
    inspect   Print a signed action file in CBOR diagnostic notation
    version   Show version

COMMON FLAGS
    --config           Configuration file (default: $PEERSTATE_CONFIG)
    --user             Identity to log in as (default: config identity)
    --passphrase-file  Read the passphrase from a file, or "-" for stdin

EXAMPLES
    # Create an identity and write a counter
    peerstate init --user alice
    peerstate sign --user alice --op add --path /counter --value 1 --apply --out counter.action

    # Apply another peer's action
    peerstate apply --user bob counter.action
    peerstate show --user bob /counter

ENVIRONMENT
    PEERSTATE_CONFIG  Path to the peerstate.yaml configuration file
`)
}
