// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package executor

import (
	"context"
	"sort"

	"github.com/tomtom215/mediarelay/internal/store"
)

// ResumeConfirmed starts a run for every confirmed plan with work left and
// returns how many were started.
func (e *Executor) ResumeConfirmed(ctx context.Context) int {
	type job struct{ userID, opID string }
	var jobs []job
	_ = e.store.View(func(tx *store.Tx) error {
		for id, u := range tx.Users() {
			if u.SyncConfirmed && len(u.PendingSync) > 0 && u.SyncOperationID != "" {
				jobs = append(jobs, job{id, u.SyncOperationID})
			}
		}
		return nil
	})
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].userID < jobs[j].userID })

	for _, j := range jobs {
		e.Start(ctx, j.userID, j.opID)
	}
	if len(jobs) > 0 {
		e.logger.Info().Int("plans", len(jobs)).Msg("Resuming confirmed sync plans")
	}
	return len(jobs)
}

// Serve resumes interrupted plans, then waits for shutdown, stops every run
// and drains them.
func (e *Executor) Serve(ctx context.Context) error {
	e.ResumeConfirmed(ctx)
	<-ctx.Done()
	e.Stop()
	e.Wait()
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logging.
func (e *Executor) String() string { return "sync-executor" }
