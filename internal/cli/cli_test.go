// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/mediarelay/internal/models"
	"github.com/tomtom215/mediarelay/internal/store"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// seedDir writes a data directory through the store so the CLI reads the
// same documents the relay writes.
func seedDir(t *testing.T, fn func(tx *store.Tx)) string {
	t.Helper()
	dir := t.TempDir()
	b, err := store.NewJSONBackend(dir, time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	st, err := store.Open(b, store.WithClock(func() time.Time { return epoch }))
	require.NoError(t, err)
	require.NoError(t, st.Update(func(tx *store.Tx) error {
		fn(tx)
		tx.MarkDirty(store.AllDocuments...)
		return nil
	}))
	require.NoError(t, st.Close())
	return dir
}

func healthyData(tx *store.Tx) {
	tx.PutUser(&models.User{ID: "1", Alias: "a", Premium: true, Active: true,
		MediaIDs: models.NewIDSet("m1"), SyncedMedia: models.NewIDSet("m2")})
	tx.PutUser(&models.User{ID: "2", Alias: "b", Banned: true,
		MediaIDs: models.NewIDSet("m2"), SyncedMedia: models.NewIDSet()})
	tx.PutMedia(&models.MediaItem{ID: "m1", OwnerID: "1", FileID: "f1", Reported: true})
	tx.PutMedia(&models.MediaItem{ID: "m2", OwnerID: "2", FileID: "f2"})
	tx.PutKey(&models.AccessKey{Key: "AAAA1111", Type: models.KeyPremium, Created: epoch, Uses: 1, MaxUses: 1, Active: true, Users: []string{"1"}})
	tx.PutKey(&models.AccessKey{Key: "BBBB2222", Type: models.KeyNormal, Created: epoch.Add(time.Hour), Uses: 1, Active: true, Users: []string{"2"}})
	s := tx.Stats()
	s.TotalUsers, s.PremiumUsers, s.ActiveUsers, s.BannedUsers = 2, 1, 1, 1
	s.TotalMediaCount = 2
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func decodeData(t *testing.T, out string, v interface{}) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "relayctl", cmd.Use)

	for _, path := range [][]string{{"stats"}, {"keys", "list"}, {"verify"}, {"locks", "clear"}} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, "command %v should exist", path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}

	dataDir := cmd.PersistentFlags().Lookup("data-dir")
	require.NotNil(t, dataDir)
	assert.Equal(t, "data", dataDir.DefValue)
}

func TestInvalidGlobalFlags(t *testing.T) {
	_, err := run(t, "--format", "yaml", "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")

	_, err = run(t, "--backend", "sqlite", "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid backend")
}

func TestStats(t *testing.T) {
	dir := seedDir(t, healthyData)

	out, err := run(t, "--data-dir", dir, "--format", "json", "stats")
	require.NoError(t, err)

	var r StatsReport
	decodeData(t, out, &r)
	assert.Equal(t, 2, r.Users)
	assert.Equal(t, 1, r.PremiumUsers)
	assert.Equal(t, 1, r.BannedUsers)
	assert.Equal(t, 2, r.Media)
	assert.Equal(t, 1, r.Reported)
	assert.Equal(t, 2, r.Keys)
	assert.Equal(t, 1, r.UsableKeys)

	text, err := run(t, "--data-dir", dir, "stats")
	require.NoError(t, err)
	assert.Contains(t, text, "Users:     2 (premium 1, active 1, banned 1)")
}

func TestKeysList(t *testing.T) {
	dir := seedDir(t, healthyData)

	out, err := run(t, "--data-dir", dir, "--format", "json", "keys", "list")
	require.NoError(t, err)
	var keys []models.AccessKey
	decodeData(t, out, &keys)
	require.Len(t, keys, 2)
	assert.Equal(t, "AAAA1111", keys[0].Key, "oldest first")

	out, err = run(t, "--data-dir", dir, "--format", "json", "keys", "list", "--usable")
	require.NoError(t, err)
	decodeData(t, out, &keys)
	require.Len(t, keys, 1)
	assert.Equal(t, "BBBB2222", keys[0].Key)

	text, err := run(t, "--data-dir", dir, "keys", "list")
	require.NoError(t, err)
	assert.Contains(t, text, "used up")
	assert.Contains(t, text, "1/∞")
}

func TestVerifyClean(t *testing.T) {
	dir := seedDir(t, healthyData)

	out, err := run(t, "--data-dir", dir, "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "No violations found")
}

func TestVerifyFindsViolations(t *testing.T) {
	dir := seedDir(t, func(tx *store.Tx) {
		healthyData(tx)
		// Premium but inactive, and owns m2 as well as user 2.
		tx.User("1").Active = false
		tx.User("1").AddMedia("m2")
		// Same owner and file twice.
		tx.PutMedia(&models.MediaItem{ID: "m3", OwnerID: "2", FileID: "f2"})
		tx.User("2").AddMedia("m3")
		tx.Key("AAAA1111").Uses = 3
	})

	out, err := run(t, "--data-dir", dir, "--format", "json", "verify")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var report VerifyReport
	decodeData(t, out, &report)
	codes := map[string]bool{}
	for _, v := range report.Violations {
		codes[v.Code] = true
	}
	for _, want := range []string{"premium-inactive", "media-multi-owner", "owner-mismatch", "own-media-synced", "duplicate-file", "key-overused"} {
		assert.True(t, codes[want], "expected %s in %v", want, report.Violations)
	}
	assert.True(t, codes["stats-drift"], "active counter no longer matches")
	assert.Positive(t, report.Errors)
	assert.Equal(t, SeverityError, report.Violations[0].Severity, "errors sort first")
}

func TestVerifyDeduplicates(t *testing.T) {
	dir := seedDir(t, func(tx *store.Tx) {
		healthyData(tx)
		tx.User("2").AddSynced("m2")
	})

	out, err := run(t, "--data-dir", dir, "--format", "json", "verify")
	require.Error(t, err)
	var report VerifyReport
	decodeData(t, out, &report)

	n := 0
	for _, v := range report.Violations {
		if v.Code == "own-media-synced" {
			n++
		}
	}
	assert.Equal(t, 1, n, "found from both sides but reported once")
}

func TestLocksClear(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "users.json.lock")
	fresh := filepath.Join(dir, "media.json.lock")
	require.NoError(t, os.WriteFile(stale, nil, 0o600))
	require.NoError(t, os.WriteFile(fresh, nil, 0o600))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	out, err := run(t, "--data-dir", dir, "--format", "json", "locks", "clear", "--max-age", "10m")
	require.NoError(t, err)

	var result map[string]int
	decodeData(t, out, &result)
	assert.Equal(t, 1, result["removed"])
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)

	_, err = run(t, "--data-dir", dir, "locks", "clear", "--max-age", "0s")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "x")))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
}
