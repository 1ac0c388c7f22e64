// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/mediarelay/internal/activity"
	"github.com/tomtom215/mediarelay/internal/blob"
	"github.com/tomtom215/mediarelay/internal/models"
	"github.com/tomtom215/mediarelay/internal/store"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	reg   *Registry
	store *store.Store
	blobs *blob.LocalStore
	clock *fakeClock
}

func newFixture(t *testing.T, users ...*models.User) *fixture {
	t.Helper()
	clock := &fakeClock{now: epoch}
	b, err := store.NewJSONBackend(t.TempDir(), time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.Open(b, store.WithClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	blobs, err := blob.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	err = st.Update(func(tx *store.Tx) error {
		for _, u := range users {
			tx.PutUser(u)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{reg: New(st, blobs, activity.DefaultPolicy()), store: st, blobs: blobs, clock: clock}
}

func users(ids ...string) []*models.User {
	out := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		out = append(out, &models.User{ID: id, Alias: "alias-" + id})
	}
	return out
}

// writeBlob creates a file for key in the local store.
func (f *fixture) writeBlob(t *testing.T, key string) {
	t.Helper()
	p, err := f.blobs.Path(key)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(key), 0o600); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) blobExists(t *testing.T, key string) bool {
	t.Helper()
	ok, err := f.blobs.Exists(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	return ok
}

func (f *fixture) user(t *testing.T, id string) *models.User {
	t.Helper()
	var out *models.User
	_ = f.store.View(func(tx *store.Tx) error {
		if u := tx.User(id); u != nil {
			out = u.Clone()
		}
		return nil
	})
	return out
}

func (f *fixture) stats() models.Stats {
	var out models.Stats
	_ = f.store.View(func(tx *store.Tx) error {
		out = *tx.Stats()
		return nil
	})
	return out
}

func (f *fixture) register(t *testing.T, owner, fileID, uniqueID string) RegisterResult {
	t.Helper()
	key := owner + "/" + fileID + ".jpg"
	f.writeBlob(t, key)
	res, err := f.reg.Register(context.Background(), RegisterInput{
		OwnerID:      owner,
		FileID:       fileID,
		FileUniqueID: uniqueID,
		StoragePath:  key,
		Size:         10,
		Type:         models.MediaPhoto,
	})
	if err != nil {
		t.Fatalf("Register(%s, %s): %v", owner, fileID, err)
	}
	return res
}

func TestRegisterIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, users("a")...)
	first := f.register(t, "a", "f1", "u1")
	second := f.register(t, "a", "f1", "u1")

	if !first.Created || second.Created {
		t.Fatalf("Created = %v, %v; want true, false", first.Created, second.Created)
	}
	if first.MediaID != second.MediaID {
		t.Fatalf("ids differ: %s vs %s", first.MediaID, second.MediaID)
	}
	if u := f.user(t, "a"); u.Uploads != 1 || u.MediaIDs.Len() != 1 {
		t.Fatalf("uploads=%d media=%d", u.Uploads, u.MediaIDs.Len())
	}
	if s := f.stats(); s.TotalMediaCount != 1 {
		t.Fatalf("TotalMediaCount = %d", s.TotalMediaCount)
	}
}

func TestRegisterRejectsUnknownOrBannedOwner(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &models.User{ID: "banned", Banned: true})
	for _, owner := range []string{"banned", "ghost"} {
		_, err := f.reg.Register(context.Background(), RegisterInput{OwnerID: owner, FileID: "f"})
		if !errors.Is(err, ErrOwnerUnavailable) {
			t.Errorf("Register(%s) err = %v", owner, err)
		}
	}
}

func TestRegisterReportsActivation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &models.User{ID: "a", Uploads: 29})
	res := f.register(t, "a", "f30", "")
	if !res.Activated() {
		t.Fatalf("Transition = %v, want activated", res.Transition)
	}
	if s := f.stats(); s.ActiveUsers != 1 {
		t.Fatalf("ActiveUsers = %d", s.ActiveUsers)
	}
}

func TestDuplicateAcrossOwnersIsExcluded(t *testing.T) {
	t.Parallel()

	f := newFixture(t, users("a", "b", "c")...)
	orig := f.register(t, "a", "fa", "same")
	dup := f.register(t, "b", "fb", "same")

	if dup.DuplicateOf != orig.MediaID {
		t.Fatalf("DuplicateOf = %q, want %q", dup.DuplicateOf, orig.MediaID)
	}
	item, _ := f.reg.Get(dup.MediaID)
	if !item.IsDuplicate || !strings.HasPrefix(item.StoragePath, blob.DuplicatesPrefix) {
		t.Fatalf("duplicate item = %+v", item)
	}
	if !f.blobExists(t, item.StoragePath) || f.blobExists(t, "b/fb.jpg") {
		t.Fatal("duplicate bytes not moved into quarantine")
	}
	root, _ := f.reg.Get(orig.MediaID)
	if !root.HasDuplicates || len(root.DuplicateSightings) != 1 || root.DuplicateSightings[0].UserID != "b" {
		t.Fatalf("root sightings = %+v", root.DuplicateSightings)
	}

	pool := f.reg.SyncableFor("c")
	if len(pool) != 1 || pool[0].ID != orig.MediaID {
		t.Fatalf("SyncableFor(c) = %v", ids(pool))
	}
	// The duplicate still counts towards its uploader's activity.
	if u := f.user(t, "b"); u.Uploads != 1 {
		t.Fatalf("b uploads = %d", u.Uploads)
	}
}

func TestDuplicateMatchesByFileIDWithoutUniqueID(t *testing.T) {
	t.Parallel()

	f := newFixture(t, users("a", "b")...)
	orig := f.register(t, "a", "shared", "")
	dup := f.register(t, "b", "shared", "")
	if dup.DuplicateOf != orig.MediaID {
		t.Fatalf("DuplicateOf = %q", dup.DuplicateOf)
	}
}

func TestDuplicateChainResolvesToRoot(t *testing.T) {
	t.Parallel()

	f := newFixture(t, users("a", "b", "c")...)
	_ = f.store.Update(func(tx *store.Tx) error {
		tx.PutMedia(&models.MediaItem{ID: "root", OwnerID: "a", FileID: "fa", UploadTime: epoch})
		tx.PutMedia(&models.MediaItem{
			ID: "mid", OwnerID: "b", FileID: "fa", FileUniqueID: "U",
			IsDuplicate: true, DuplicateOf: "root", UploadTime: epoch,
		})
		return nil
	})

	res := f.register(t, "c", "fc", "U")
	if res.DuplicateOf != "root" {
		t.Fatalf("DuplicateOf = %q, want root", res.DuplicateOf)
	}
	root, _ := f.reg.Get("root")
	if len(root.DuplicateSightings) != 1 || root.DuplicateSightings[0].MediaID != res.MediaID {
		t.Fatalf("root sightings = %+v", root.DuplicateSightings)
	}
	mid, _ := f.reg.Get("mid")
	if len(mid.DuplicateSightings) != 0 {
		t.Fatal("sighting attached to intermediate duplicate")
	}
}

func TestBrokenChainRegistersOriginal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, users("b", "c")...)
	_ = f.store.Update(func(tx *store.Tx) error {
		tx.PutMedia(&models.MediaItem{
			ID: "orphan", OwnerID: "b", FileID: "fb", FileUniqueID: "U",
			IsDuplicate: true, DuplicateOf: "gone", UploadTime: epoch,
		})
		return nil
	})
	res := f.register(t, "c", "fc", "U")
	if res.DuplicateOf != "" {
		t.Fatalf("DuplicateOf = %q, want original", res.DuplicateOf)
	}
}

func TestQuarantineFailureKeepsSourceKey(t *testing.T) {
	t.Parallel()

	f := newFixture(t, users("a", "b")...)
	f.register(t, "a", "fa", "same")

	// No bytes at the source key, so the copy fails.
	res, err := f.reg.Register(context.Background(), RegisterInput{
		OwnerID: "b", FileID: "fb", FileUniqueID: "same", StoragePath: "b/missing.jpg",
	})
	if err != nil {
		t.Fatal(err)
	}
	item, _ := f.reg.Get(res.MediaID)
	if item.StoragePath != "b/missing.jpg" || !item.IsDuplicate {
		t.Fatalf("item = %+v", item)
	}
	root, _ := f.reg.Get(res.DuplicateOf)
	if root.DuplicateSightings[0].QuarantinePath != "" {
		t.Fatal("sighting keeps quarantine path after failed copy")
	}
}

func TestDuplicateSweepAfterRetention(t *testing.T) {
	t.Parallel()

	f := newFixture(t, users("a", "b")...)
	ctx := context.Background()
	orig := f.register(t, "a", "fa", "same")
	dup := f.register(t, "b", "fb", "same")
	item, _ := f.reg.Get(dup.MediaID)
	quarantined := item.StoragePath

	f.clock.Advance(23 * time.Hour)
	res, err := f.reg.SweepExpiredDuplicates(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if res.ItemsRemoved != 0 || res.SightingsExpired != 0 {
		t.Fatalf("early sweep removed %+v", res)
	}

	f.clock.Advance(2 * time.Hour)
	res, err = f.reg.SweepExpiredDuplicates(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if res.ItemsRemoved != 1 || res.SightingsExpired != 1 {
		t.Fatalf("sweep = %+v, want 1 item and 1 sighting", res)
	}
	if _, ok := f.reg.Get(dup.MediaID); ok {
		t.Fatal("duplicate item survived sweep")
	}
	if f.blobExists(t, quarantined) {
		t.Fatal("quarantined blob survived sweep")
	}
	root, ok := f.reg.Get(orig.MediaID)
	if !ok || root.HasDuplicates || len(root.DuplicateSightings) != 0 {
		t.Fatalf("root after sweep = %+v", root)
	}
	if u := f.user(t, "b"); u.Uploads != 0 || u.MediaIDs.Len() != 0 {
		t.Fatalf("b after sweep uploads=%d media=%d", u.Uploads, u.MediaIDs.Len())
	}
	if s := f.stats(); s.TotalMediaCount != 1 {
		t.Fatalf("TotalMediaCount = %d", s.TotalMediaCount)
	}
}

func TestInstantRegistrationAndFinalize(t *testing.T) {
	t.Parallel()

	f := newFixture(t, users("a", "b", "c")...)
	ctx := context.Background()

	res, err := f.reg.RegisterInstant(ctx, RegisterInput{OwnerID: "a", FileID: "fa", FileUniqueID: "x", Type: models.MediaVideo})
	if err != nil || !res.Created {
		t.Fatalf("RegisterInstant = %+v, %v", res, err)
	}
	if got := f.reg.SyncableFor("c"); len(got) != 0 {
		t.Fatalf("pending item is syncable: %v", ids(got))
	}
	if pending := f.reg.PendingDownloads(); len(pending) != 1 {
		t.Fatalf("PendingDownloads = %d", len(pending))
	}

	f.writeBlob(t, "a/fa.mp4")
	id, err := f.reg.FinalizeDownload(ctx, "a", "fa", "a/fa.mp4", 42)
	if err != nil || id != res.MediaID {
		t.Fatalf("FinalizeDownload = %q, %v", id, err)
	}
	item, _ := f.reg.Get(id)
	if item.PendingDownload || item.Size != 42 || item.StoragePath != "a/fa.mp4" {
		t.Fatalf("finalized item = %+v", item)
	}
	if got := f.reg.SyncableFor("c"); len(got) != 1 {
		t.Fatalf("SyncableFor after finalize = %v", ids(got))
	}

	if _, err := f.reg.FinalizeDownload(ctx, "a", "fa", "a/fa.mp4", 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second finalize err = %v", err)
	}
}

func TestInstantDuplicateQuarantinedOnFinalize(t *testing.T) {
	t.Parallel()

	f := newFixture(t, users("a", "b")...)
	ctx := context.Background()
	orig := f.register(t, "a", "fa", "same")

	res, err := f.reg.RegisterInstant(ctx, RegisterInput{OwnerID: "b", FileID: "fb", FileUniqueID: "same"})
	if err != nil || res.DuplicateOf != orig.MediaID {
		t.Fatalf("RegisterInstant = %+v, %v", res, err)
	}
	f.writeBlob(t, "b/fb.jpg")
	if _, err := f.reg.FinalizeDownload(ctx, "b", "fb", "b/fb.jpg", 1); err != nil {
		t.Fatal(err)
	}
	item, _ := f.reg.Get(res.MediaID)
	if !strings.HasPrefix(item.StoragePath, blob.DuplicatesPrefix) || !f.blobExists(t, item.StoragePath) {
		t.Fatalf("item path = %q", item.StoragePath)
	}
	root, _ := f.reg.Get(orig.MediaID)
	if root.DuplicateSightings[0].QuarantinePath != item.StoragePath {
		t.Fatalf("sighting path = %q", root.DuplicateSightings[0].QuarantinePath)
	}
}

func TestDeleteDeactivatesBelowThreshold(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &models.User{ID: "a", Uploads: 29})
	res := f.register(t, "a", "f30", "")
	if !f.user(t, "a").Active {
		t.Fatal("user not active after 30th upload")
	}

	if !f.reg.Delete(context.Background(), res.MediaID) {
		t.Fatal("Delete returned false")
	}
	u := f.user(t, "a")
	if u.Active || u.Uploads != 29 {
		t.Fatalf("after delete active=%v uploads=%d", u.Active, u.Uploads)
	}
	if s := f.stats(); s.ActiveUsers != 0 || s.TotalMediaCount != 0 {
		t.Fatalf("stats = %+v", s)
	}
	if f.blobExists(t, "a/f30.jpg") {
		t.Fatal("blob survived delete")
	}
	if f.reg.Delete(context.Background(), "unknown") {
		t.Fatal("Delete(unknown) = true")
	}
}

func TestSyncableForOrderAndExclusions(t *testing.T) {
	t.Parallel()

	f := newFixture(t, users("a", "b", "c")...)
	first := f.register(t, "a", "f1", "")
	f.clock.Advance(time.Minute)
	second := f.register(t, "b", "f2", "")
	f.clock.Advance(time.Minute)
	own := f.register(t, "c", "f3", "")

	pool := f.reg.SyncableFor("c")
	if got := ids(pool); len(got) != 2 || got[0] != second.MediaID || got[1] != first.MediaID {
		t.Fatalf("SyncableFor = %v, want newest first", got)
	}

	if added, err := f.reg.MarkSynced("c", second.MediaID); err != nil || !added {
		t.Fatalf("MarkSynced = %v, %v", added, err)
	}
	if added, err := f.reg.MarkSynced("c", second.MediaID); err != nil || added {
		t.Fatalf("repeat MarkSynced = %v, %v", added, err)
	}
	if _, err := f.reg.MarkSynced("c", own.MediaID); !errors.Is(err, ErrOwnMedia) {
		t.Fatalf("MarkSynced(own) err = %v", err)
	}
	if got := ids(f.reg.SyncableFor("c")); len(got) != 1 || got[0] != first.MediaID {
		t.Fatalf("SyncableFor after sync = %v", got)
	}

	item, ok := f.reg.ResolveRef(models.MediaRef{OwnerID: "a", FileID: "f1"})
	if !ok || item.ID != first.MediaID {
		t.Fatalf("ResolveRef = %v, %v", item, ok)
	}
	if _, ok := f.reg.ResolveRef(models.MediaRef{OwnerID: "a", FileID: "nope"}); ok {
		t.Fatal("ResolveRef found a missing item")
	}
	if owned := f.reg.OwnedBy("a"); len(owned) != 1 {
		t.Fatalf("OwnedBy(a) = %d items", len(owned))
	}
}

func TestReport(t *testing.T) {
	t.Parallel()

	f := newFixture(t, users("a", "b")...)
	ctx := context.Background()
	res := f.register(t, "a", "f1", "")

	if err := f.reg.Report(ctx, res.MediaID, "b", "spam"); err != nil {
		t.Fatal(err)
	}
	if err := f.reg.Report(ctx, res.MediaID, "b", "again"); !errors.Is(err, ErrAlreadyReported) {
		t.Fatalf("second report err = %v", err)
	}
	if err := f.reg.Report(ctx, "missing", "b", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing report err = %v", err)
	}
	if found, ok := f.reg.FindByFile("other-bot-id", ""); ok {
		t.Fatalf("FindByFile matched %v", found.ID)
	}
	if found, ok := f.reg.FindByFile("f1", ""); !ok || found.ID != res.MediaID {
		t.Fatalf("FindByFile = %v, %v", found, ok)
	}
	if n := f.reg.ReportedCount(); n != 1 {
		t.Fatalf("ReportedCount = %d", n)
	}
	item, _ := f.reg.Get(res.MediaID)
	if item.Reports[0].Alias != "alias-b" || item.Reports[0].Reason != "spam" {
		t.Fatalf("report = %+v", item.Reports[0])
	}
}

func ids(items []*models.MediaItem) []string {
	out := make([]string, 0, len(items))
	for _, m := range items {
		out = append(out, m.ID)
	}
	return out
}
