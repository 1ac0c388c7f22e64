// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

// Package registry is the media catalog.
//
// It owns the (owner, file id) uniqueness rule, cross-owner duplicate
// detection with chain resolution to the root original, the per-user
// syncable pool, and the sweep that retires duplicates after the retention
// window. Registration applies the activity upload policy in the same store
// transaction so the upload counter, the media record and the stats never
// disagree.
package registry

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/mediarelay/internal/activity"
	"github.com/tomtom215/mediarelay/internal/blob"
	"github.com/tomtom215/mediarelay/internal/logging"
	"github.com/tomtom215/mediarelay/internal/metrics"
	"github.com/tomtom215/mediarelay/internal/models"
	"github.com/tomtom215/mediarelay/internal/store"
)

var (
	// ErrNotFound is returned when no matching media item exists.
	ErrNotFound = errors.New("registry: media not found")
	// ErrOwnerUnavailable is returned when the uploader is unknown or banned.
	ErrOwnerUnavailable = errors.New("registry: owner unknown or banned")
	// ErrOwnMedia is returned when marking a user's own item as received.
	ErrOwnMedia = errors.New("registry: media belongs to user")
)

// RegisterInput describes one upload.
type RegisterInput struct {
	OwnerID      string
	FileID       string
	FileUniqueID string
	StoragePath  string
	Size         int64
	Type         models.MediaType
	Caption      string
}

// RegisterResult reports what Register did.
type RegisterResult struct {
	MediaID     string
	Created     bool
	DuplicateOf string
	Transition  activity.Transition
}

// Activated reports whether the owner became active with this upload.
func (r RegisterResult) Activated() bool { return r.Transition == activity.Activated }

// Registry is the media catalog.
type Registry struct {
	store  *store.Store
	blobs  blob.Store
	policy activity.Policy
	logger zerolog.Logger
}

// New creates a Registry.
func New(st *store.Store, blobs blob.Store, policy activity.Policy) *Registry {
	return &Registry{
		store:  st,
		blobs:  blobs,
		policy: policy,
		logger: logging.WithComponent("registry"),
	}
}

// Register adds an uploaded item whose bytes are already in the blob store.
func (r *Registry) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	return r.register(ctx, in, false)
}

// RegisterInstant records an upload before its bytes are downloaded so it
// counts towards activity immediately. StoragePath and Size may be empty
// until FinalizeDownload.
func (r *Registry) RegisterInstant(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	return r.register(ctx, in, true)
}

func (r *Registry) register(ctx context.Context, in RegisterInput, pending bool) (RegisterResult, error) {
	var (
		res      RegisterResult
		moveFrom string
		moveTo   string
	)
	err := r.store.Update(func(tx *store.Tx) error {
		owner := tx.User(in.OwnerID)
		if owner == nil || owner.Banned {
			return ErrOwnerUnavailable
		}
		if existing := findOwned(tx, in.OwnerID, in.FileID); existing != nil {
			res.MediaID = existing.ID
			res.DuplicateOf = existing.DuplicateOf
			return nil
		}

		now := tx.Now()
		item := &models.MediaItem{
			ID:              uuid.NewString(),
			OwnerID:         in.OwnerID,
			FileID:          in.FileID,
			FileUniqueID:    in.FileUniqueID,
			StoragePath:     in.StoragePath,
			Size:            in.Size,
			Type:            in.Type,
			Caption:         in.Caption,
			UploadTime:      now,
			OwnerAlias:      owner.Alias,
			OwnerPremium:    owner.Premium,
			PendingDownload: pending,
		}

		if root := findOriginal(tx, in.OwnerID, in.FileID, in.FileUniqueID); root != nil {
			sighting := models.DuplicateSighting{
				UserID:     in.OwnerID,
				DetectedAt: now,
				FileID:     in.FileID,
				MediaID:    item.ID,
			}
			if !pending && in.StoragePath != "" {
				moveFrom = in.StoragePath
				moveTo = blob.QuarantineKey(item.ID, in.StoragePath)
				sighting.QuarantinePath = moveTo
				item.StoragePath = moveTo
			}
			root.HasDuplicates = true
			root.DuplicateSightings = append(root.DuplicateSightings, sighting)
			item.IsDuplicate = true
			item.DuplicateOf = root.ID
			res.DuplicateOf = root.ID
		}

		tx.PutMedia(item)
		owner.AddMedia(item.ID)
		owner.Uploads++
		stats := tx.Stats()
		res.Transition = r.policy.ApplyUpload(owner, stats, now)
		stats.TotalMediaCount++
		tx.MarkDirty(store.DocUsers, store.DocStats)

		res.MediaID = item.ID
		res.Created = true
		return nil
	})
	if err != nil {
		metrics.RecordUpload("rejected")
		return RegisterResult{}, err
	}

	switch {
	case !res.Created:
		metrics.RecordUpload("existing")
	case pending:
		metrics.RecordUpload("instant")
	default:
		metrics.RecordUpload("created")
	}
	if res.Created && res.DuplicateOf != "" {
		metrics.DuplicatesDetected.Inc()
		logging.Ctx(ctx).Info().
			Str("media_id", res.MediaID).
			Str("duplicate_of", res.DuplicateOf).
			Msg("Duplicate upload detected")
	}
	if moveTo != "" {
		r.quarantine(ctx, res.MediaID, moveFrom, moveTo)
	}
	return res, nil
}

// FinalizeDownload attaches downloaded bytes to an instant registration.
func (r *Registry) FinalizeDownload(ctx context.Context, ownerID, fileID, path string, size int64) (string, error) {
	var (
		id     string
		moveTo string
	)
	err := r.store.Update(func(tx *store.Tx) error {
		item := findOwned(tx, ownerID, fileID)
		if item == nil || !item.PendingDownload {
			return ErrNotFound
		}
		item.StoragePath = path
		item.Size = size
		item.PendingDownload = false
		if item.IsDuplicate && path != "" {
			moveTo = blob.QuarantineKey(item.ID, path)
			item.StoragePath = moveTo
			if root := tx.Media(item.DuplicateOf); root != nil {
				for i := range root.DuplicateSightings {
					if root.DuplicateSightings[i].MediaID == item.ID {
						root.DuplicateSightings[i].QuarantinePath = moveTo
					}
				}
			}
		}
		tx.MarkDirty(store.DocMedia)
		id = item.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	metrics.RecordUpload("finalized")
	if moveTo != "" {
		r.quarantine(ctx, id, path, moveTo)
	}
	return id, nil
}

// Delete removes an item and its blob. It reports false for unknown ids.
func (r *Registry) Delete(ctx context.Context, mediaID string) bool {
	var paths []string
	err := r.store.Update(func(tx *store.Tx) error {
		item := tx.Media(mediaID)
		if item == nil {
			return ErrNotFound
		}
		owner := tx.User(item.OwnerID)
		owned := owner != nil && owner.MediaIDs.Has(item.ID)
		paths = r.removeItem(tx, item)
		if owned && !owner.Premium && owner.Active && owner.Uploads < r.policy.RequiredUploads {
			owner.Active = false
			tx.Stats().DecActive()
		}
		return nil
	})
	if err != nil {
		return false
	}
	r.deleteBlobs(ctx, paths...)
	logging.Ctx(ctx).Info().Str("media_id", mediaID).Msg("Media deleted")
	return true
}

// removeItem drops item from the catalog and its owner, adjusting counters,
// and returns the blob keys to delete once the transaction has committed.
// The owner's active state is left alone: only an expiry check or an
// explicit Delete may deactivate.
func (r *Registry) removeItem(tx *store.Tx, item *models.MediaItem) []string {
	stats := tx.Stats()
	if owner := tx.User(item.OwnerID); owner != nil && owner.MediaIDs.Has(item.ID) {
		owner.RemoveMedia(item.ID)
		if owner.Uploads > 0 {
			owner.Uploads--
		}
		tx.MarkDirty(store.DocUsers)
	}
	if stats.TotalMediaCount > 0 {
		stats.TotalMediaCount--
	}
	tx.DeleteMedia(item.ID)
	tx.MarkDirty(store.DocStats)

	if item.StoragePath == "" {
		return nil
	}
	return []string{item.StoragePath}
}

// Get returns a copy of one item.
func (r *Registry) Get(mediaID string) (*models.MediaItem, bool) {
	var out *models.MediaItem
	_ = r.store.View(func(tx *store.Tx) error {
		if m := tx.Media(mediaID); m != nil {
			out = m.Clone()
		}
		return nil
	})
	return out, out != nil
}

// SyncableFor returns the items userID may still receive, newest first:
// not their own, not yet received, not duplicates and fully downloaded.
func (r *Registry) SyncableFor(userID string) []*models.MediaItem {
	var out []*models.MediaItem
	_ = r.store.View(func(tx *store.Tx) error {
		out = SyncableTx(tx, userID)
		return nil
	})
	return out
}

// SyncableTx is SyncableFor inside a caller's transaction.
func SyncableTx(tx *store.Tx, userID string) []*models.MediaItem {
	u := tx.User(userID)
	var out []*models.MediaItem
	for _, m := range tx.AllMedia() {
		if m.OwnerID == userID || m.IsDuplicate || m.PendingDownload {
			continue
		}
		if u != nil && (u.SyncedMedia.Has(m.ID) || u.MediaIDs.Has(m.ID)) {
			continue
		}
		out = append(out, m.Clone())
	}
	sortNewestFirst(out)
	return out
}

// OwnedBy returns userID's deliverable items, newest first.
func (r *Registry) OwnedBy(userID string) []*models.MediaItem {
	var out []*models.MediaItem
	_ = r.store.View(func(tx *store.Tx) error {
		u := tx.User(userID)
		if u == nil {
			return nil
		}
		for id := range u.MediaIDs {
			m := tx.Media(id)
			if m == nil || m.IsDuplicate || m.PendingDownload {
				continue
			}
			out = append(out, m.Clone())
		}
		return nil
	})
	sortNewestFirst(out)
	return out
}

// PendingDownloads returns instant registrations still waiting for bytes.
func (r *Registry) PendingDownloads() []*models.MediaItem {
	var out []*models.MediaItem
	_ = r.store.View(func(tx *store.Tx) error {
		for _, m := range tx.AllMedia() {
			if m.PendingDownload {
				out = append(out, m.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UploadTime.Before(out[j].UploadTime) })
	return out
}

// MarkSynced records mediaID as received by userID. Repeated calls are
// no-ops. It reports whether the set grew.
func (r *Registry) MarkSynced(userID, mediaID string) (bool, error) {
	var added bool
	err := r.store.Update(func(tx *store.Tx) error {
		var err error
		added, err = MarkSyncedTx(tx, userID, mediaID)
		return err
	})
	return added, err
}

// MarkSyncedTx is MarkSynced inside a caller's transaction.
func MarkSyncedTx(tx *store.Tx, userID, mediaID string) (bool, error) {
	u := tx.User(userID)
	m := tx.Media(mediaID)
	if u == nil || m == nil {
		return false, ErrNotFound
	}
	if m.OwnerID == userID || u.MediaIDs.Has(mediaID) {
		return false, ErrOwnMedia
	}
	if !u.AddSynced(mediaID) {
		return false, nil
	}
	tx.MarkDirty(store.DocUsers)
	return true, nil
}

// ResolveRef finds the current item for a plan reference.
func (r *Registry) ResolveRef(ref models.MediaRef) (*models.MediaItem, bool) {
	var out *models.MediaItem
	_ = r.store.View(func(tx *store.Tx) error {
		if m := findOwned(tx, ref.OwnerID, ref.FileID); m != nil {
			out = m.Clone()
		}
		return nil
	})
	return out, out != nil
}

func findOwned(tx *store.Tx, ownerID, fileID string) *models.MediaItem {
	u := tx.User(ownerID)
	if u != nil {
		for id := range u.MediaIDs {
			if m := tx.Media(id); m != nil && m.FileID == fileID {
				return m
			}
		}
	}
	for _, m := range tx.AllMedia() {
		if m.OwnerID == ownerID && m.FileID == fileID {
			return m
		}
	}
	return nil
}

func sortNewestFirst(items []*models.MediaItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].UploadTime.Equal(items[j].UploadTime) {
			return items[i].ID < items[j].ID
		}
		return items[i].UploadTime.After(items[j].UploadTime)
	})
}
