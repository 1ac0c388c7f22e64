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

// StatsReport is the output of relayctl stats.
type StatsReport struct {
	Users         int       `json:"users"`
	PremiumUsers  int       `json:"premium_users"`
	ActiveUsers   int       `json:"active_users"`
	BannedUsers   int       `json:"banned_users"`
	Media         int       `json:"media"`
	Duplicates    int       `json:"duplicates"`
	Reported      int       `json:"reported"`
	PendingSyncs  int       `json:"pending_syncs"`
	Keys          int       `json:"keys"`
	UsableKeys    int       `json:"usable_keys"`
	TotalUploaded int       `json:"total_uploaded"`
	StartTime     time.Time `json:"start_time"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Summarize users, media and keys",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			var r StatsReport
			_ = st.View(func(tx *store.Tx) error {
				r = collectStats(tx)
				return nil
			})
			return newFormatter(rootOpts, cmd).Success(r, func(w io.Writer) {
				fmt.Fprintf(w, "Users:     %d (premium %d, active %d, banned %d)\n", r.Users, r.PremiumUsers, r.ActiveUsers, r.BannedUsers)
				fmt.Fprintf(w, "Media:     %d (duplicates %d, reported %d)\n", r.Media, r.Duplicates, r.Reported)
				fmt.Fprintf(w, "Uploads:   %d total since %s\n", r.TotalUploaded, r.StartTime.Format(time.RFC3339))
				fmt.Fprintf(w, "Syncs:     %d pending\n", r.PendingSyncs)
				fmt.Fprintf(w, "Keys:      %d (%d usable)\n", r.Keys, r.UsableKeys)
			})
		},
	}
}

// collectStats counts from the records rather than trusting the persisted
// counters, which verify compares separately.
func collectStats(tx *store.Tx) StatsReport {
	r := StatsReport{
		TotalUploaded: tx.Stats().TotalMediaCount,
		StartTime:     tx.Stats().StartTime,
	}
	for _, u := range tx.Users() {
		r.Users++
		if u.Premium {
			r.PremiumUsers++
		}
		if u.Active {
			r.ActiveUsers++
		}
		if u.Banned {
			r.BannedUsers++
		}
		if u.HasPendingPlan() {
			r.PendingSyncs++
		}
	}
	for _, m := range tx.AllMedia() {
		r.Media++
		if m.IsDuplicate {
			r.Duplicates++
		}
		if m.Reported {
			r.Reported++
		}
	}
	for _, k := range tx.Keys() {
		r.Keys++
		if k.Usable() {
			r.UsableKeys++
		}
	}
	return r
}
