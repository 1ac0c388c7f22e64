// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tomtom215/mediarelay/internal/models"
	"github.com/tomtom215/mediarelay/internal/store"
)

// NewKeysCommand creates the keys command group.
func NewKeysCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Inspect access keys",
	}
	cmd.AddCommand(newKeysListCommand(rootOpts))
	return cmd
}

func newKeysListCommand(rootOpts *RootOptions) *cobra.Command {
	var usableOnly bool

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List access keys, oldest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			var keys []*models.AccessKey
			_ = st.View(func(tx *store.Tx) error {
				for _, k := range tx.Keys() {
					if usableOnly && !k.Usable() {
						continue
					}
					keys = append(keys, k.Clone())
				}
				return nil
			})
			sort.Slice(keys, func(i, j int) bool {
				if keys[i].Created.Equal(keys[j].Created) {
					return keys[i].Key < keys[j].Key
				}
				return keys[i].Created.Before(keys[j].Created)
			})
			if keys == nil {
				keys = []*models.AccessKey{}
			}

			return newFormatter(rootOpts, cmd).Success(keys, func(w io.Writer) {
				if len(keys) == 0 {
					fmt.Fprintln(w, "No access keys.")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "KEY\tTYPE\tUSES\tSTATUS\tCREATED")
				for _, k := range keys {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", k.Key, k.Type, usesText(k), keyStatus(k), k.Created.Format("2006-01-02"))
				}
				_ = tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&usableOnly, "usable", false, "only keys that can still admit a user")
	return cmd
}

func usesText(k *models.AccessKey) string {
	if k.MaxUses == 0 {
		return fmt.Sprintf("%d/∞", k.Uses)
	}
	return fmt.Sprintf("%d/%d", k.Uses, k.MaxUses)
}

func keyStatus(k *models.AccessKey) string {
	switch {
	case !k.Active:
		return "disabled"
	case !k.Usable():
		return "used up"
	default:
		return "usable"
	}
}
