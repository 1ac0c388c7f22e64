// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package ingest

import (
	"context"
)

// ResumePending re-queues instant registrations whose download never
// finished, e.g. because the process stopped. It returns how many were
// queued.
func (q *Queue) ResumePending(ctx context.Context) int {
	n := 0
	for _, m := range q.registry.PendingDownloads() {
		u := Upload{
			UserID:       m.OwnerID,
			FileID:       m.FileID,
			FileUniqueID: m.FileUniqueID,
			Type:         m.Type,
			Caption:      m.Caption,
		}
		if err := q.Enqueue(ctx, u); err != nil {
			q.logger.Warn().Err(err).Str("media_id", m.ID).Msg("Cannot resume pending download")
			continue
		}
		n++
	}
	if n > 0 {
		q.logger.Info().Int("uploads", n).Msg("Resumed pending downloads")
	}
	return n
}

// Serve binds workers to ctx, resumes pending downloads and waits for
// shutdown.
func (q *Queue) Serve(ctx context.Context) error {
	q.mu.Lock()
	q.base = ctx
	q.mu.Unlock()

	q.ResumePending(ctx)
	<-ctx.Done()
	q.Wait()
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logging.
func (q *Queue) String() string { return "ingest-queue" }
