// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/mediarelay/internal/store"
)

// NewLocksCommand creates the locks command group.
func NewLocksCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locks",
		Short: "Manage advisory lock files",
	}
	cmd.AddCommand(newLocksClearCommand(rootOpts))
	return cmd
}

func newLocksClearCommand(rootOpts *RootOptions) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove lock files older than --max-age",
		Long: `Remove lock files left behind by a crashed writer.

A lock younger than --max-age may belong to a live process and is kept.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if maxAge <= 0 {
				return NewExitError(ExitCommandError, "--max-age must be positive")
			}
			removed, err := store.RemoveStaleLocks(rootOpts.DataDir, maxAge)
			if err != nil {
				return WrapExitError(ExitCommandError, "cannot clear locks", err)
			}
			result := map[string]int{"removed": removed}
			return newFormatter(rootOpts, cmd).Success(result, func(w io.Writer) {
				fmt.Fprintf(w, "Removed %d stale lock file(s) from %s\n", removed, rootOpts.DataDir)
			})
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 10*time.Minute, "minimum lock age to remove")
	return cmd
}
