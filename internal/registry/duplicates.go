// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package registry

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/mediarelay/internal/blob"
	"github.com/tomtom215/mediarelay/internal/logging"
	"github.com/tomtom215/mediarelay/internal/metrics"
	"github.com/tomtom215/mediarelay/internal/models"
	"github.com/tomtom215/mediarelay/internal/store"
)

// SweepResult counts what SweepExpiredDuplicates removed.
type SweepResult struct {
	ItemsRemoved     int
	SightingsExpired int
	BlobsDeleted     int
}

// findOriginal returns the root original another owner registered for the
// same content, or nil. Originals are preferred over duplicates; a
// duplicate match is followed through DuplicateOf to its root. Among
// several originals the earliest upload wins.
func findOriginal(tx *store.Tx, ownerID, fileID, uniqueID string) *models.MediaItem {
	var original, duplicate *models.MediaItem
	for _, m := range tx.AllMedia() {
		if m.OwnerID == ownerID {
			continue
		}
		if m.FileID != fileID && (uniqueID == "" || m.FileUniqueID != uniqueID) {
			continue
		}
		if m.IsDuplicate {
			if duplicate == nil || earlier(m, duplicate) {
				duplicate = m
			}
			continue
		}
		if original == nil || earlier(m, original) {
			original = m
		}
	}
	if original != nil {
		return original
	}
	if duplicate != nil {
		return resolveRoot(tx, duplicate)
	}
	return nil
}

// resolveRoot follows DuplicateOf links to the first non-duplicate item.
// It returns nil when the chain is broken or loops.
func resolveRoot(tx *store.Tx, m *models.MediaItem) *models.MediaItem {
	seen := map[string]bool{}
	for m != nil && m.IsDuplicate {
		if seen[m.ID] {
			return nil
		}
		seen[m.ID] = true
		m = tx.Media(m.DuplicateOf)
	}
	return m
}

func earlier(a, b *models.MediaItem) bool {
	if a.UploadTime.Equal(b.UploadTime) {
		return a.ID < b.ID
	}
	return a.UploadTime.Before(b.UploadTime)
}

// quarantine moves a duplicate's bytes into the duplicates area. On failure
// the item keeps pointing at its original key.
func (r *Registry) quarantine(ctx context.Context, mediaID, src, dst string) {
	log := logging.Ctx(ctx)
	if err := r.blobs.Copy(ctx, src, dst); err != nil {
		log.Warn().Err(err).Str("media_id", mediaID).Str("src", src).Msg("Failed to quarantine duplicate")
		_ = r.store.Update(func(tx *store.Tx) error {
			item := tx.Media(mediaID)
			if item == nil || item.StoragePath != dst {
				return nil
			}
			item.StoragePath = src
			if root := tx.Media(item.DuplicateOf); root != nil {
				for i := range root.DuplicateSightings {
					if root.DuplicateSightings[i].MediaID == mediaID {
						root.DuplicateSightings[i].QuarantinePath = ""
					}
				}
			}
			tx.MarkDirty(store.DocMedia)
			return nil
		})
		return
	}
	if err := r.blobs.Delete(ctx, src); err != nil {
		log.Warn().Err(err).Str("key", src).Msg("Failed to remove quarantined source")
	}
}

func (r *Registry) deleteBlobs(ctx context.Context, keys ...string) int {
	deleted := 0
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := r.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blob.ErrNotFound) {
			logging.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Failed to delete blob")
			continue
		}
		deleted++
	}
	return deleted
}

// SweepExpiredDuplicates retires duplicate items older than retention and
// prunes expired sightings from their originals. Each item is handled in
// its own transaction so a long sweep never blocks uploads for long.
func (r *Registry) SweepExpiredDuplicates(ctx context.Context, retention time.Duration) (SweepResult, error) {
	var (
		res        SweepResult
		duplicates []string
		originals  []string
	)
	err := r.store.View(func(tx *store.Tx) error {
		for id, m := range tx.AllMedia() {
			if m.IsDuplicate {
				duplicates = append(duplicates, id)
			}
			if m.HasDuplicates || len(m.DuplicateSightings) > 0 {
				originals = append(originals, id)
			}
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	for _, id := range duplicates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		var paths []string
		err := r.store.Update(func(tx *store.Tx) error {
			m := tx.Media(id)
			if m == nil || !m.IsDuplicate || tx.Now().Sub(m.UploadTime) < retention {
				return nil
			}
			paths = r.removeItem(tx, m)
			res.ItemsRemoved++
			return nil
		})
		if err != nil {
			return res, err
		}
		res.BlobsDeleted += r.deleteBlobs(ctx, paths...)
	}

	for _, id := range originals {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		var paths []string
		err := r.store.Update(func(tx *store.Tx) error {
			m := tx.Media(id)
			if m == nil {
				return nil
			}
			now := tx.Now()
			kept := m.DuplicateSightings[:0:0]
			for _, s := range m.DuplicateSightings {
				if now.Sub(s.DetectedAt) <= retention {
					kept = append(kept, s)
					continue
				}
				res.SightingsExpired++
				if dup := tx.Media(s.MediaID); dup != nil && dup.IsDuplicate {
					paths = append(paths, r.removeItem(tx, dup)...)
					paths = append(paths, s.QuarantinePath)
					res.ItemsRemoved++
				}
			}
			if len(kept) != len(m.DuplicateSightings) || (len(kept) == 0 && m.HasDuplicates) {
				m.DuplicateSightings = kept
				m.HasDuplicates = len(kept) > 0
				tx.MarkDirty(store.DocMedia)
			}
			return nil
		})
		if err != nil {
			return res, err
		}
		res.BlobsDeleted += r.deleteBlobs(ctx, dedupe(paths)...)
	}

	metrics.RecordSweep("duplicate_item", res.ItemsRemoved)
	metrics.RecordSweep("sighting", res.SightingsExpired)
	if res.ItemsRemoved > 0 || res.SightingsExpired > 0 {
		r.logger.Info().
			Int("items_removed", res.ItemsRemoved).
			Int("sightings_expired", res.SightingsExpired).
			Int("blobs_deleted", res.BlobsDeleted).
			Msg("Duplicate sweep complete")
	}
	return res, nil
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
