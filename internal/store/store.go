// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

// Package store holds the relay documents (users, media, keys, stats) in
// memory and persists them through a Backend.
//
// Every logical operation runs inside Update or View. Update serializes all
// callers behind one mutex, so a read followed by a write inside fn can never
// interleave with another operation, and operations spanning several
// documents (registering media touches users, media and stats) are atomic in
// process. Documents marked dirty are flushed before Update returns.
//
// Records reached through a Tx are live; copy them (Clone) before letting
// them escape the transaction.
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mediarelay/internal/logging"
	"github.com/tomtom215/mediarelay/internal/metrics"
	"github.com/tomtom215/mediarelay/internal/models"
)

// Store is the in-memory document set.
type Store struct {
	mu      sync.Mutex
	backend Backend
	now     func() time.Time

	users map[string]*models.User
	media map[string]*models.MediaItem
	keys  map[string]*models.AccessKey
	stats *models.Stats
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now for every component reading the store clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open loads all documents from backend.
func Open(backend Backend, opts ...Option) (*Store, error) {
	s := &Store{
		backend: backend,
		now:     time.Now,
		users:   make(map[string]*models.User),
		media:   make(map[string]*models.MediaItem),
		keys:    make(map[string]*models.AccessKey),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := loadDocument(backend, DocUsers, &s.users); err != nil {
		return nil, err
	}
	if err := loadDocument(backend, DocMedia, &s.media); err != nil {
		return nil, err
	}
	if err := loadDocument(backend, DocKeys, &s.keys); err != nil {
		return nil, err
	}
	if err := loadDocument(backend, DocStats, &s.stats); err != nil {
		return nil, err
	}
	s.normalize()

	logging.Info().
		Str("backend", backend.String()).
		Int("users", len(s.users)).
		Int("media", len(s.media)).
		Int("keys", len(s.keys)).
		Msg("Store loaded")
	return s, nil
}

func loadDocument[T any](backend Backend, doc Document, dst *T) error {
	data, err := backend.Load(doc)
	if err != nil {
		return fmt.Errorf("load %s: %w", doc, err)
	}
	if len(data) == 0 {
		return nil
	}
	var decoded T
	if err := json.Unmarshal(data, &decoded); err != nil {
		logging.Error().Err(err).Str("document", string(doc)).Msg("Document is corrupt, starting empty")
		if qerr := backend.Quarantine(doc); qerr != nil {
			return fmt.Errorf("quarantine corrupt %s: %w", doc, qerr)
		}
		return nil
	}
	*dst = decoded
	return nil
}

// normalize repairs records loaded from older or hand-edited documents.
func (s *Store) normalize() {
	if s.users == nil {
		s.users = make(map[string]*models.User)
	}
	if s.media == nil {
		s.media = make(map[string]*models.MediaItem)
	}
	if s.keys == nil {
		s.keys = make(map[string]*models.AccessKey)
	}
	if s.stats == nil {
		s.stats = &models.Stats{StartTime: s.now()}
	}
	for id, u := range s.users {
		if u == nil {
			delete(s.users, id)
			continue
		}
		u.ID = id
		if u.MediaIDs == nil {
			u.MediaIDs = models.IDSet{}
		}
		if u.SyncedMedia == nil {
			u.SyncedMedia = models.IDSet{}
		}
	}
	for id, m := range s.media {
		if m == nil {
			delete(s.media, id)
			continue
		}
		m.ID = id
	}
	for k, key := range s.keys {
		if key == nil {
			delete(s.keys, k)
			continue
		}
		key.Key = k
	}
}

// Now returns the store clock.
func (s *Store) Now() time.Time { return s.now() }

// Update runs fn with a writable transaction and flushes every document fn
// marked dirty, even when fn returns an error, so disk never lags memory.
func (s *Store) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{s: s, writable: true, dirty: make(map[Document]bool)}
	fnErr := fn(tx)
	return errors.Join(fnErr, s.flush(tx.dirty))
}

// View runs fn with a read-only transaction.
func (s *Store) View(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fn(&Tx{s: s})
}

// Flush rewrites every document regardless of dirty state.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make(map[Document]bool, len(AllDocuments))
	for _, doc := range AllDocuments {
		all[doc] = true
	}
	return s.flush(all)
}

// flush must be called with mu held.
func (s *Store) flush(dirty map[Document]bool) error {
	var errs []error
	for _, doc := range AllDocuments {
		if !dirty[doc] {
			continue
		}
		start := time.Now()
		data, err := s.encode(doc)
		if err == nil {
			err = s.backend.Save(doc, data)
		}
		metrics.RecordFlush(string(doc), time.Since(start))
		if err != nil {
			logging.Error().Err(err).Str("document", string(doc)).Msg("Failed to persist document")
			errs = append(errs, fmt.Errorf("flush %s: %w", doc, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Store) encode(doc Document) ([]byte, error) {
	switch doc {
	case DocUsers:
		return json.MarshalIndent(s.users, "", "  ")
	case DocMedia:
		return json.MarshalIndent(s.media, "", "  ")
	case DocKeys:
		return json.MarshalIndent(s.keys, "", "  ")
	case DocStats:
		return json.MarshalIndent(s.stats, "", "  ")
	default:
		return nil, fmt.Errorf("unknown document %q", doc)
	}
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Tx is a view of the store inside Update or View.
type Tx struct {
	s        *Store
	writable bool
	dirty    map[Document]bool
}

// Now returns the store clock.
func (tx *Tx) Now() time.Time { return tx.s.now() }

// MarkDirty schedules docs for flushing after in-place edits.
func (tx *Tx) MarkDirty(docs ...Document) {
	if !tx.writable {
		panic("store: write in read-only transaction")
	}
	for _, doc := range docs {
		tx.dirty[doc] = true
	}
}

// User returns the live user record or nil.
func (tx *Tx) User(id string) *models.User { return tx.s.users[id] }

// Users returns the live user map. Add or remove entries with PutUser and
// DeleteUser only.
func (tx *Tx) Users() map[string]*models.User { return tx.s.users }

// PutUser inserts or replaces a user.
func (tx *Tx) PutUser(u *models.User) {
	tx.MarkDirty(DocUsers)
	tx.s.users[u.ID] = u
}

// DeleteUser removes a user.
func (tx *Tx) DeleteUser(id string) {
	tx.MarkDirty(DocUsers)
	delete(tx.s.users, id)
}

// Media returns the live media record or nil.
func (tx *Tx) Media(id string) *models.MediaItem { return tx.s.media[id] }

// AllMedia returns the live media map.
func (tx *Tx) AllMedia() map[string]*models.MediaItem { return tx.s.media }

// PutMedia inserts or replaces a media item.
func (tx *Tx) PutMedia(m *models.MediaItem) {
	tx.MarkDirty(DocMedia)
	tx.s.media[m.ID] = m
}

// DeleteMedia removes a media item.
func (tx *Tx) DeleteMedia(id string) {
	tx.MarkDirty(DocMedia)
	delete(tx.s.media, id)
}

// Key returns the live access key or nil.
func (tx *Tx) Key(key string) *models.AccessKey { return tx.s.keys[key] }

// Keys returns the live key map.
func (tx *Tx) Keys() map[string]*models.AccessKey { return tx.s.keys }

// PutKey inserts or replaces an access key.
func (tx *Tx) PutKey(k *models.AccessKey) {
	tx.MarkDirty(DocKeys)
	tx.s.keys[k.Key] = k
}

// Stats returns the live stats record. Call MarkDirty(DocStats) after edits.
func (tx *Tx) Stats() *models.Stats { return tx.s.stats }
