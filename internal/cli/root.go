// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

// Package cli implements relayctl, the offline maintenance tool for a relay
// data directory.
package cli

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/mediarelay/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DataDir    string
	Backend    string // "json" | "badger"
	BadgerPath string
	Format     string // "text" | "json"
	Verbose    bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the relayctl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "relayctl",
		Short: "relayctl - MediaRelay maintenance",
		Long: `Inspect and repair a MediaRelay data directory.

Run it against a stopped relay, or accept that reads may race the bot's
writes. Writers take the same advisory lock files as the bot.`,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Backend != "json" && opts.Backend != "badger" {
				return fmt.Errorf("invalid backend %q: must be json or badger", opts.Backend)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "data", "relay data directory")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "json", "store backend (json|badger)")
	cmd.PersistentFlags().StringVar(&opts.BadgerPath, "badger-path", "data/badger", "badger directory when --backend=badger")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewKeysCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewLocksCommand(opts))

	return cmd
}

// openStore loads the configured backend. The caller closes the store.
func openStore(opts *RootOptions) (*store.Store, error) {
	var (
		backend store.Backend
		err     error
	)
	if opts.Backend == "badger" {
		backend, err = store.OpenBadgerBackend(opts.BadgerPath)
	} else {
		backend, err = store.NewJSONBackend(opts.DataDir, 5*time.Second, 50*time.Millisecond)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "cannot open store", err)
	}
	st, err := store.Open(backend)
	if err != nil {
		_ = backend.Close()
		return nil, WrapExitError(ExitCommandError, "cannot load store", err)
	}
	return st, nil
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
