// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package registry

import (
	"context"
	"errors"

	"github.com/tomtom215/mediarelay/internal/logging"
	"github.com/tomtom215/mediarelay/internal/models"
	"github.com/tomtom215/mediarelay/internal/store"
)

// ErrAlreadyReported is returned when a user reports the same item twice.
var ErrAlreadyReported = errors.New("registry: already reported by user")

// Report records a complaint against an item.
func (r *Registry) Report(ctx context.Context, mediaID, reporterID, reason string) error {
	err := r.store.Update(func(tx *store.Tx) error {
		m := tx.Media(mediaID)
		if m == nil {
			return ErrNotFound
		}
		for _, rep := range m.Reports {
			if rep.UserID == reporterID {
				return ErrAlreadyReported
			}
		}
		var alias string
		if u := tx.User(reporterID); u != nil {
			alias = u.Alias
		}
		m.Reports = append(m.Reports, models.Report{
			UserID: reporterID,
			Alias:  alias,
			Time:   tx.Now(),
			Reason: reason,
		})
		m.Reported = true
		tx.MarkDirty(store.DocMedia)
		return nil
	})
	if err == nil {
		logging.Ctx(ctx).Info().Str("media_id", mediaID).Str("reporter", reporterID).Msg("Media reported")
	}
	return err
}

// ReportedCount returns how many items carry at least one report.
func (r *Registry) ReportedCount() int {
	n := 0
	_ = r.store.View(func(tx *store.Tx) error {
		for _, m := range tx.AllMedia() {
			if m.Reported && len(m.Reports) > 0 {
				n++
			}
		}
		return nil
	})
	return n
}

// FindByFile locates the item behind a platform attachment, preferring an
// original over its duplicates.
func (r *Registry) FindByFile(fileID, uniqueID string) (*models.MediaItem, bool) {
	var out *models.MediaItem
	_ = r.store.View(func(tx *store.Tx) error {
		for _, m := range tx.AllMedia() {
			if m.FileID != fileID && (uniqueID == "" || m.FileUniqueID != uniqueID) {
				continue
			}
			if out == nil || (out.IsDuplicate && !m.IsDuplicate) || (out.IsDuplicate == m.IsDuplicate && earlier(m, out)) {
				out = m
			}
		}
		if out != nil {
			out = out.Clone()
		}
		return nil
	})
	return out, out != nil
}
