// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tomtom215/mediarelay/internal/store"
)

// Violation severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Violation is one broken data model rule.
type Violation struct {
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Subject  string `json:"subject"`
	Message  string `json:"message"`
}

// VerifyReport is the output of relayctl verify.
type VerifyReport struct {
	Errors     int         `json:"errors"`
	Warnings   int         `json:"warnings"`
	Violations []Violation `json:"violations"`
}

// NewVerifyCommand creates the verify command. It exits with ExitFailure
// when any error-level violation is found.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the stored data against the relay's invariants",
		Long: `Check users, media and keys for states the relay never produces:
premium users that are inactive, media owned twice, own media in a user's
synced set, repeated (owner, file) pairs, dangling references and
overused keys. Persisted counters that disagree with the records are
reported as warnings.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			f := newFormatter(rootOpts, cmd)
			var violations []Violation
			_ = st.View(func(tx *store.Tx) error {
				violations = Verify(tx)
				return nil
			})

			report := VerifyReport{Violations: violations}
			for _, v := range violations {
				if v.Severity == SeverityError {
					report.Errors++
				} else {
					report.Warnings++
				}
			}
			f.VerboseLog("Checked %s", rootOpts.DataDir)

			if err := f.Success(report, func(w io.Writer) { writeVerifyText(w, report) }); err != nil {
				return err
			}
			if report.Errors > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d invariant violation(s)", report.Errors))
			}
			return nil
		},
	}
}

func writeVerifyText(w io.Writer, r VerifyReport) {
	if len(r.Violations) == 0 {
		fmt.Fprintln(w, "✓ No violations found")
		return
	}
	for _, v := range r.Violations {
		fmt.Fprintf(w, "%-7s %-22s %-12s %s\n", v.Severity, v.Code, v.Subject, v.Message)
	}
	fmt.Fprintf(w, "\n%d error(s), %d warning(s)\n", r.Errors, r.Warnings)
}

// Verify checks tx against the data model rules. Results are sorted by
// severity, code and subject.
func Verify(tx *store.Tx) []Violation {
	out := make([]Violation, 0)
	add := func(sev, code, subject, format string, args ...interface{}) {
		out = append(out, Violation{Severity: sev, Code: code, Subject: subject, Message: fmt.Sprintf(format, args...)})
	}

	users := tx.Users()
	media := tx.AllMedia()

	owners := make(map[string][]string)
	var premium, active, banned int
	for id, u := range users {
		if u.Premium {
			premium++
		}
		if u.Active {
			active++
		}
		if u.Banned {
			banned++
		}
		if u.Premium && !u.Active {
			add(SeverityError, "premium-inactive", id, "premium user is not active")
		}
		for mid := range u.MediaIDs {
			owners[mid] = append(owners[mid], id)
			m, ok := media[mid]
			switch {
			case !ok:
				add(SeverityWarning, "dangling-media-ref", id, "owns missing media %s", mid)
			case m.OwnerID != id:
				add(SeverityError, "owner-mismatch", id, "lists media %s owned by %s", mid, m.OwnerID)
			}
			if u.SyncedMedia.Has(mid) {
				add(SeverityError, "own-media-synced", id, "own media %s is in synced set", mid)
			}
		}
	}
	for mid, ids := range owners {
		if len(ids) > 1 {
			sort.Strings(ids)
			add(SeverityError, "media-multi-owner", mid, "owned by %v", ids)
		}
	}

	type ownerFile struct{ owner, file string }
	seen := make(map[ownerFile]string)
	for id, m := range media {
		if u, ok := users[m.OwnerID]; ok && u.SyncedMedia.Has(id) {
			add(SeverityError, "own-media-synced", m.OwnerID, "own media %s is in synced set", id)
		}
		key := ownerFile{m.OwnerID, m.FileID}
		if other, dup := seen[key]; dup {
			first, second := other, id
			if second < first {
				first, second = second, first
			}
			add(SeverityError, "duplicate-file", second, "same owner and file as %s", first)
		} else {
			seen[key] = id
		}
		if m.IsDuplicate && m.DuplicateOf != "" {
			if _, ok := media[m.DuplicateOf]; !ok {
				add(SeverityWarning, "dangling-duplicate", id, "duplicate of missing media %s", m.DuplicateOf)
			}
		}
	}

	for code, k := range tx.Keys() {
		if k.MaxUses > 0 && k.Uses > k.MaxUses {
			add(SeverityError, "key-overused", code, "used %d times, limit %d", k.Uses, k.MaxUses)
		}
		if k.Uses != len(k.Users) {
			add(SeverityWarning, "key-users-mismatch", code, "uses %d but %d user(s) recorded", k.Uses, len(k.Users))
		}
	}

	stats := tx.Stats()
	counters := []struct {
		name           string
		stored, actual int
	}{
		{"total_users", stats.TotalUsers, len(users)},
		{"premium_users", stats.PremiumUsers, premium},
		{"active_users", stats.ActiveUsers, active},
		{"banned_users", stats.BannedUsers, banned},
	}
	for _, c := range counters {
		if c.stored != c.actual {
			add(SeverityWarning, "stats-drift", c.name, "stored %d, records say %d", c.stored, c.actual)
		}
	}

	dedupeViolations(&out)
	return out
}

// dedupeViolations sorts and drops identical entries; own-media-synced can
// be found from both the user and the media side.
func dedupeViolations(vs *[]Violation) {
	s := *vs
	sort.Slice(s, func(i, j int) bool {
		if s[i].Severity != s[j].Severity {
			return s[i].Severity == SeverityError
		}
		if s[i].Code != s[j].Code {
			return s[i].Code < s[j].Code
		}
		if s[i].Subject != s[j].Subject {
			return s[i].Subject < s[j].Subject
		}
		return s[i].Message < s[j].Message
	})
	out := s[:0]
	for _, v := range s {
		if len(out) > 0 && v == out[len(out)-1] {
			continue
		}
		out = append(out, v)
	}
	*vs = out
}
