// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

// Package ingest downloads and registers uploads through one queue per
// user. Each non-empty queue has exactly one worker goroutine, so a user's
// uploads are processed in arrival order while different users proceed in
// parallel.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/mediarelay/internal/blob"
	"github.com/tomtom215/mediarelay/internal/config"
	"github.com/tomtom215/mediarelay/internal/delivery"
	"github.com/tomtom215/mediarelay/internal/events"
	"github.com/tomtom215/mediarelay/internal/logging"
	"github.com/tomtom215/mediarelay/internal/metrics"
	"github.com/tomtom215/mediarelay/internal/models"
	"github.com/tomtom215/mediarelay/internal/platform"
	"github.com/tomtom215/mediarelay/internal/registry"
	"github.com/tomtom215/mediarelay/internal/store"
	"github.com/tomtom215/mediarelay/internal/validation"
)

var (
	ErrInvalidUpload = errors.New("ingest: invalid upload")
	ErrTooLarge      = errors.New("ingest: file exceeds size limit")
)

// Upload is one media message waiting to be stored.
type Upload struct {
	UserID       string           `validate:"required,platformid"`
	FileID       string           `validate:"required,max=256"`
	FileUniqueID string           `validate:"max=256"`
	FileName     string           `validate:"max=512"`
	Type         models.MediaType `validate:"required,mediatype"`
	Size         int64            `validate:"gte=0"`
	Caption      string           `validate:"max=4096"`
	Forwarded    bool
}

// Client is the part of the platform the queue needs.
type Client interface {
	Download(ctx context.Context, fileID, dir string) (string, error)
	SendText(ctx context.Context, chatID, text string, buttons ...platform.Button) (int, error)
}

// Publisher announces activations.
type Publisher interface {
	PublishActivated(ctx context.Context, e events.UserActivated) error
}

// Queue holds the per-user upload queues.
type Queue struct {
	store     *store.Store
	registry  *registry.Registry
	blobs     blob.Store
	client    Client
	publisher Publisher
	cfg       config.IngestConfig
	retry     delivery.Retrier
	logger    zerolog.Logger

	mu      sync.Mutex
	base    context.Context
	pending map[string][]Upload
	running map[string]bool
	wg      sync.WaitGroup
}

// Option configures a Queue.
type Option func(*Queue)

// WithSleep replaces the sleep used between download attempts and items.
func WithSleep(fn delivery.SleepFunc) Option {
	return func(q *Queue) { q.retry.Sleep = fn }
}

// New creates a Queue.
func New(st *store.Store, reg *registry.Registry, blobs blob.Store, client Client, pub Publisher, cfg config.IngestConfig, opts ...Option) *Queue {
	q := &Queue{
		store:     st,
		registry:  reg,
		blobs:     blobs,
		client:    client,
		publisher: pub,
		cfg:       cfg,
		retry: delivery.Retrier{
			MaxAttempts: cfg.DownloadAttempts,
			RetryDelay:  cfg.RetryDelay,
			FloodMargin: time.Second,
			Sleep:       delivery.Sleep,
		},
		logger:  logging.WithComponent("ingest"),
		base:    context.Background(),
		pending: make(map[string][]Upload),
		running: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue validates u and appends it to its owner's queue, starting a
// worker when none is draining that queue. Forwarded media from a user who
// is neither active nor premium is registered immediately so it counts
// towards activation before the download finishes.
func (q *Queue) Enqueue(ctx context.Context, u Upload) error {
	if verr := validation.ValidateStruct(&u); verr != nil {
		metrics.RecordUpload("invalid")
		return fmt.Errorf("%w: %s", ErrInvalidUpload, verr.Error())
	}
	if q.cfg.MaxFileSize > 0 && u.Size > q.cfg.MaxFileSize {
		metrics.RecordUpload("too_large")
		return ErrTooLarge
	}

	if u.Forwarded && q.needsInstant(u.UserID) {
		res, err := q.registry.RegisterInstant(ctx, registerInput(u, ""))
		if err != nil {
			return fmt.Errorf("instant register: %w", err)
		}
		if res.Activated() {
			q.announce(ctx, u.UserID)
		}
	}

	q.mu.Lock()
	q.pending[u.UserID] = append(q.pending[u.UserID], u)
	start := !q.running[u.UserID]
	if start {
		q.running[u.UserID] = true
		q.wg.Add(1)
	}
	base := q.base
	q.mu.Unlock()
	metrics.UploadQueueDepth.Inc()

	if start {
		go q.worker(base, u.UserID)
	}
	return nil
}

func (q *Queue) needsInstant(userID string) bool {
	var instant bool
	_ = q.store.View(func(tx *store.Tx) error {
		if usr := tx.User(userID); usr != nil {
			instant = !usr.Active && !usr.Premium
		}
		return nil
	})
	return instant
}

// Depth returns the number of uploads waiting for userID, excluding the
// one being processed.
func (q *Queue) Depth(userID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[userID])
}

// Wait blocks until every worker has exited.
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) next(userID string) (Upload, bool, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.pending[userID]
	if len(items) == 0 {
		delete(q.pending, userID)
		delete(q.running, userID)
		return Upload{}, false, false
	}
	u := items[0]
	if len(items) == 1 {
		delete(q.pending, userID)
	} else {
		q.pending[userID] = items[1:]
	}
	return u, true, len(items) > 1
}

func (q *Queue) worker(ctx context.Context, userID string) {
	defer q.wg.Done()
	ctx = logging.ContextWithUserID(ctx, userID)
	for {
		u, ok, more := q.next(userID)
		if !ok {
			return
		}
		metrics.UploadQueueDepth.Dec()
		if err := q.process(ctx, u); err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("file_id", u.FileID).Msg("Failed to process upload")
			if ctx.Err() == nil {
				q.tell(ctx, userID, "❌ Error processing your media. Please try again later.")
			}
		}
		if more {
			_ = q.retry.Sleep(ctx, q.cfg.ItemDelay)
		}
	}
}

// process downloads u, stores its bytes and registers it.
func (q *Queue) process(ctx context.Context, u Upload) error {
	if item, ok := q.registry.ResolveRef(models.MediaRef{OwnerID: u.UserID, FileID: u.FileID}); ok && !item.PendingDownload {
		metrics.RecordUpload("existing")
		return nil
	}

	dir, err := os.MkdirTemp(q.cfg.TempDir, "ingest-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	var local string
	err = q.retry.Do(ctx, "download", func() error {
		var derr error
		local, derr = q.client.Download(ctx, u.FileID, dir)
		return derr
	})
	if err != nil {
		return fmt.Errorf("download %s: %w", u.FileID, err)
	}

	size := u.Size
	if fi, err := os.Stat(local); err == nil {
		size = fi.Size()
	}
	key := BlobKey(u.UserID, q.store.Now(), u.FileID, Extension(u, local))
	if err := q.blobs.PutFile(ctx, key, local); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}

	if _, err := q.registry.FinalizeDownload(ctx, u.UserID, u.FileID, key, size); err == nil {
		return nil
	} else if !errors.Is(err, registry.ErrNotFound) {
		return err
	}

	res, err := q.registry.Register(ctx, registerInput(u, key))
	if err != nil {
		_ = q.blobs.Delete(ctx, key)
		return fmt.Errorf("register %s: %w", u.FileID, err)
	}
	if !res.Created {
		// Raced with an identical upload; keep the catalog's copy.
		_ = q.blobs.Delete(ctx, key)
	}
	if res.Activated() {
		q.announce(ctx, u.UserID)
	}
	return nil
}

func (q *Queue) announce(ctx context.Context, userID string) {
	if q.publisher == nil {
		return
	}
	e := events.UserActivated{UserID: userID, ActivatedAt: q.store.Now()}
	_ = q.store.View(func(tx *store.Tx) error {
		if usr := tx.User(userID); usr != nil {
			e.Alias = usr.Alias
			e.Uploads = usr.Uploads
		}
		return nil
	})
	if err := q.publisher.PublishActivated(ctx, e); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to publish activation")
		return
	}
	logging.Ctx(ctx).Info().Int("uploads", e.Uploads).Msg("User activated")
}

func (q *Queue) tell(ctx context.Context, userID, text string) {
	if _, err := q.client.SendText(ctx, userID, text); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to notify uploader")
	}
}

func registerInput(u Upload, key string) registry.RegisterInput {
	return registry.RegisterInput{
		OwnerID:      u.UserID,
		FileID:       u.FileID,
		FileUniqueID: u.FileUniqueID,
		StoragePath:  key,
		Size:         u.Size,
		Type:         u.Type,
		Caption:      u.Caption,
	}
}

// BlobKey builds the storage key <user>/<unix>_<fileid><ext>.
func BlobKey(userID string, now time.Time, fileID, ext string) string {
	return path.Join(userID, fmt.Sprintf("%d_%s%s", now.Unix(), fileID, ext))
}

// Extension picks a file extension from the original name, then the
// downloaded path, then the media type.
func Extension(u Upload, local string) string {
	if ext := filepath.Ext(u.FileName); ext != "" {
		return ext
	}
	if ext := filepath.Ext(local); ext != "" {
		return ext
	}
	switch u.Type {
	case models.MediaPhoto:
		return ".jpg"
	case models.MediaVideo, models.MediaAnimation:
		return ".mp4"
	case models.MediaAudio:
		return ".mp3"
	case models.MediaVoice:
		return ".ogg"
	default:
		return ""
	}
}
