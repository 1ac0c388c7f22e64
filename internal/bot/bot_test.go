// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package bot

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/mediarelay/internal/accounts"
	"github.com/tomtom215/mediarelay/internal/activity"
	"github.com/tomtom215/mediarelay/internal/blob"
	"github.com/tomtom215/mediarelay/internal/config"
	"github.com/tomtom215/mediarelay/internal/delivery"
	"github.com/tomtom215/mediarelay/internal/events"
	"github.com/tomtom215/mediarelay/internal/executor"
	"github.com/tomtom215/mediarelay/internal/ingest"
	"github.com/tomtom215/mediarelay/internal/models"
	"github.com/tomtom215/mediarelay/internal/platform"
	"github.com/tomtom215/mediarelay/internal/platform/platformtest"
	"github.com/tomtom215/mediarelay/internal/registry"
	"github.com/tomtom215/mediarelay/internal/store"
	"github.com/tomtom215/mediarelay/internal/syncplan"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const admin = "900"

type nopPublisher struct{}

func (nopPublisher) PublishActivated(context.Context, events.UserActivated) error { return nil }

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

type fixture struct {
	bot    *Bot
	svc    Services
	store  *store.Store
	client *platformtest.Client
}

func newFixture(t *testing.T, users ...*models.User) *fixture {
	t.Helper()
	b, err := store.NewJSONBackend(t.TempDir(), time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.Open(b, store.WithClock(func() time.Time { return epoch }))
	if err != nil {
		t.Fatal(err)
	}
	err = st.Update(func(tx *store.Tx) error {
		for _, u := range users {
			u.ActivityTimer = epoch.Add(24 * time.Hour)
			tx.PutUser(u)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	blobs, err := blob.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	policy := activity.DefaultPolicy()
	syncCfg := config.SyncConfig{
		MaxSyncNormal:      20,
		MaxReplaceAttempts: 1,
		CheckpointEvery:    50,
		MaxAttempts:        2,
		MaxDeferrals:       3,
	}
	client := platformtest.New()
	reg := registry.New(st, blobs, policy)
	d := delivery.New(client, syncCfg, delivery.WithSleep(noSleep))
	svc := Services{
		Accounts: accounts.NewService(st, policy),
		Tracker:  activity.NewTracker(st, policy),
		Registry: reg,
		Planner:  syncplan.New(st, policy, syncCfg),
		Executor: executor.New(st, reg, d, client, syncCfg),
		Queue: ingest.New(st, reg, blobs, client, nopPublisher{}, config.IngestConfig{
			MaxFileSize:      1 << 20,
			DownloadAttempts: 1,
			TempDir:          t.TempDir(),
		}, ingest.WithSleep(noSleep)),
	}
	return &fixture{
		bot:    New(client, svc, config.BotConfig{AdminIDs: []string{admin}}),
		svc:    svc,
		store:  st,
		client: client,
	}
}

func (f *fixture) addMedia(t *testing.T, owner string, n int) {
	t.Helper()
	err := f.store.Update(func(tx *store.Tx) error {
		for i := 0; i < n; i++ {
			m := &models.MediaItem{
				ID:         fmt.Sprintf("%s-m%d", owner, i),
				OwnerID:    owner,
				FileID:     fmt.Sprintf("%s-f%d", owner, i),
				Type:       models.MediaPhoto,
				UploadTime: epoch.Add(-time.Duration(n-i) * time.Minute),
			}
			tx.PutMedia(m)
			tx.User(owner).AddMedia(m.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) lastText(t *testing.T, chatID string) platformtest.Call {
	t.Helper()
	texts := f.client.Texts(chatID)
	if len(texts) == 0 {
		t.Fatalf("no text sent to %s", chatID)
	}
	return texts[len(texts)-1]
}

func command(userID, cmd, args string) platform.Update {
	return platform.Update{UserID: userID, ChatID: userID, FirstName: "Ada", Command: cmd, Args: args}
}

func callback(userID, data string) platform.Update {
	return platform.Update{UserID: userID, ChatID: userID, Callback: &platform.Callback{ID: "cb-" + userID, Data: data}}
}

func TestStartRegistersWithKey(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	key, err := f.svc.Accounts.CreateKey(ctx, models.KeyNormal, 1)
	if err != nil {
		t.Fatal(err)
	}

	f.bot.Handle(ctx, command("1", "start", strings.ToLower(key.Key)))

	user, err := f.svc.Accounts.Get("1")
	if err != nil {
		t.Fatalf("user not registered: %v", err)
	}
	if !strings.Contains(f.lastText(t, "1").Text, "Welcome to the Media Vault, Ada") {
		t.Errorf("reply = %q", f.lastText(t, "1").Text)
	}
	notice := f.lastText(t, admin).Text
	if !strings.Contains(notice, "New User Joined") || !strings.Contains(notice, user.Alias) {
		t.Errorf("admin notice = %q", notice)
	}

	// The key had a single use.
	f.bot.Handle(ctx, command("2", "start", key.Key))
	if !strings.Contains(f.lastText(t, "2").Text, "Access Denied") {
		t.Errorf("second registration reply = %q", f.lastText(t, "2").Text)
	}
}

func TestStartWithoutKey(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &models.User{ID: "banned", Banned: true})

	f.bot.Handle(context.Background(), command("1", "start", ""))
	if !strings.Contains(f.lastText(t, "1").Text, "/start YOUR_ACCESS_KEY") {
		t.Errorf("reply = %q", f.lastText(t, "1").Text)
	}
	f.bot.Handle(context.Background(), command("banned", "start", ""))
	if f.lastText(t, "banned").Text != bannedText {
		t.Errorf("banned reply = %q", f.lastText(t, "banned").Text)
	}
}

func TestRefusesUnregisteredAndBanned(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &models.User{ID: "banned", Active: true, Banned: true})

	tests := []struct {
		user string
		want string
	}{
		{"stranger", accessDeniedText},
		{"banned", bannedText},
	}
	for _, tt := range tests {
		f.bot.Handle(context.Background(), command(tt.user, "syncmedia", ""))
		if got := f.lastText(t, tt.user).Text; got != tt.want {
			t.Errorf("%s: reply = %q, want %q", tt.user, got, tt.want)
		}
	}

	f.bot.Handle(context.Background(), callback("stranger", cbReplace))
	calls := f.client.Calls()
	last := calls[len(calls)-1]
	if last.Method != "AnswerCallback" || !strings.Contains(last.Text, "Access denied") {
		t.Errorf("callback answer = %+v", last)
	}
}

func TestSyncPromptConfirmRunsExecutor(t *testing.T) {
	t.Parallel()
	f := newFixture(t,
		&models.User{ID: "1", Active: true},
		&models.User{ID: "2", Active: true},
	)
	f.addMedia(t, "2", 3)
	ctx := context.Background()

	f.bot.Handle(ctx, command("1", "syncmedia", ""))
	prompt := f.lastText(t, "1")
	if len(prompt.Buttons) != 2 || !strings.HasPrefix(prompt.Buttons[0].Data, cbConfirm) {
		t.Fatalf("prompt buttons = %+v", prompt.Buttons)
	}
	if !strings.Contains(prompt.Text, "3 MEDIA FILES") {
		t.Errorf("prompt = %q", prompt.Text)
	}

	f.bot.Handle(ctx, callback("1", prompt.Buttons[0].Data))
	f.svc.Executor.Wait()

	if got := len(f.client.Sent("1")); got != 3 {
		t.Errorf("delivered %d, want 3", got)
	}
	if !strings.Contains(f.lastText(t, "1").Text, "Files synced: 3") {
		t.Errorf("summary = %q", f.lastText(t, "1").Text)
	}

	// The prompt's operation has been completed; pressing it again is stale.
	f.bot.Handle(ctx, callback("1", prompt.Buttons[0].Data))
	calls := f.client.Calls()
	if last := calls[len(calls)-1]; !strings.Contains(last.Text, "expired") {
		t.Errorf("stale confirm answer = %q", last.Text)
	}
}

func TestSyncBusyOffersReplace(t *testing.T) {
	t.Parallel()
	f := newFixture(t,
		&models.User{ID: "1", Active: true},
		&models.User{ID: "2", Active: true},
	)
	f.addMedia(t, "2", 1)
	ctx := context.Background()

	f.bot.Handle(ctx, command("1", "syncmedia", ""))
	f.bot.Handle(ctx, command("1", "syncmedia", ""))
	busy := f.lastText(t, "1")
	if busy.Text != busyText || len(busy.Buttons) != 1 || busy.Buttons[0].Data != cbReplace {
		t.Fatalf("busy reply = %+v", busy)
	}

	f.bot.Handle(ctx, callback("1", cbReplace))
	if f.lastText(t, "1").Text != replacedText {
		t.Errorf("replace reply = %q", f.lastText(t, "1").Text)
	}
	f.bot.Handle(ctx, command("1", "syncmedia", ""))
	if got := f.lastText(t, "1"); len(got.Buttons) != 2 {
		t.Errorf("no fresh prompt after replace: %+v", got)
	}
}

func TestSyncRefusalTexts(t *testing.T) {
	t.Parallel()
	f := newFixture(t,
		&models.User{ID: "idle", Uploads: 4},
		&models.User{ID: "alone", Active: true},
	)

	f.bot.Handle(context.Background(), command("idle", "syncmedia", ""))
	if got := f.lastText(t, "idle").Text; !strings.Contains(got, "Current uploads: 4") {
		t.Errorf("inactive reply = %q", got)
	}
	f.bot.Handle(context.Background(), command("alone", "syncmedia", ""))
	if got := f.lastText(t, "alone").Text; got != nothingToSyncText {
		t.Errorf("empty reply = %q", got)
	}
}

func TestRejectClearsPlan(t *testing.T) {
	t.Parallel()
	f := newFixture(t,
		&models.User{ID: "1", Active: true},
		&models.User{ID: "2", Active: true},
	)
	f.addMedia(t, "2", 2)
	ctx := context.Background()

	f.bot.Handle(ctx, command("1", "syncmedia", ""))
	prompt := f.lastText(t, "1")
	f.bot.Handle(ctx, callback("1", prompt.Buttons[1].Data))

	if f.lastText(t, "1").Text != rejectedText {
		t.Errorf("reply = %q", f.lastText(t, "1").Text)
	}
	if _, ok := f.svc.Planner.Pending("1"); ok {
		t.Error("plan still pending after reject")
	}
}

func TestReportNotifiesAdmins(t *testing.T) {
	t.Parallel()
	f := newFixture(t,
		&models.User{ID: "1", Alias: "Quiet Fox", Active: true},
		&models.User{ID: "2", Active: true},
	)
	f.addMedia(t, "2", 1)
	ctx := context.Background()

	u := command("1", "report", "spam")
	f.bot.Handle(ctx, u)
	if f.lastText(t, "1").Text != reportUsageText {
		t.Errorf("usage reply = %q", f.lastText(t, "1").Text)
	}

	u.ReplyTo = &platform.Media{FileID: "2-f0", Type: models.MediaPhoto}
	f.bot.Handle(ctx, u)
	if !strings.Contains(f.lastText(t, "1").Text, "2-m0") {
		t.Errorf("report reply = %q", f.lastText(t, "1").Text)
	}
	notice := f.lastText(t, admin).Text
	if !strings.Contains(notice, "Quiet Fox") || !strings.Contains(notice, "spam") {
		t.Errorf("admin notice = %q", notice)
	}

	f.bot.Handle(ctx, u)
	if f.lastText(t, "1").Text != alreadyReportedText {
		t.Errorf("repeat reply = %q", f.lastText(t, "1").Text)
	}

	u.ReplyTo = &platform.Media{FileID: "unknown"}
	f.bot.Handle(ctx, u)
	if f.lastText(t, "1").Text != reportUnknownText {
		t.Errorf("unknown reply = %q", f.lastText(t, "1").Text)
	}
}

func TestMediaIsQueuedAndTouches(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &models.User{ID: "1"})
	f.client.AddFile("photo-1", []byte("jpeg"))

	f.bot.Handle(context.Background(), platform.Update{
		UserID: "1",
		ChatID: "1",
		Media:  &platform.Media{FileID: "photo-1", FileUniqueID: "u-1", Type: models.MediaPhoto, Size: 4},
	})
	f.svc.Queue.Wait()

	if got := len(f.svc.Registry.OwnedBy("1")); got != 1 {
		t.Errorf("owned = %d, want 1", got)
	}
	user, _ := f.svc.Accounts.Get("1")
	if !user.LastActivity.Equal(epoch) || !user.Online {
		t.Errorf("activity not recorded: last=%v online=%v", user.LastActivity, user.Online)
	}

	f.bot.Handle(context.Background(), platform.Update{
		UserID: "1",
		ChatID: "1",
		Media:  &platform.Media{FileID: "big", Type: models.MediaVideo, Size: 2 << 20},
	})
	if f.lastText(t, "1").Text != tooLargeText {
		t.Errorf("oversize reply = %q", f.lastText(t, "1").Text)
	}
}

func TestStatsAndTop(t *testing.T) {
	t.Parallel()
	f := newFixture(t,
		&models.User{ID: "1", Alias: "Brave Owl", Uploads: 7, JoinDate: epoch, Active: true},
		&models.User{ID: "2", Alias: "Hidden Elk", Uploads: 50, Ghosted: true},
		&models.User{ID: "3", Alias: "Calm Bee", Uploads: 12, Premium: true, Active: true},
	)

	f.bot.Handle(context.Background(), command("1", "mystats", ""))
	stats := f.lastText(t, "1").Text
	for _, want := range []string{"Brave Owl", "Uploads: 7", "✅ Active", "24h"} {
		if !strings.Contains(stats, want) {
			t.Errorf("stats missing %q:\n%s", want, stats)
		}
	}

	f.bot.Handle(context.Background(), command("1", "top", ""))
	top := f.lastText(t, "1").Text
	if strings.Contains(top, "Hidden Elk") {
		t.Error("ghosted user listed")
	}
	if strings.Index(top, "Calm Bee") > strings.Index(top, "Brave Owl") {
		t.Errorf("ranking order wrong:\n%s", top)
	}
}

func TestActivationNotice(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &models.User{ID: "1", Active: true})

	bus, err := events.NewBus()
	if err != nil {
		t.Fatal(err)
	}
	f.bot.Subscribe(bus)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = bus.Serve(ctx) }()
	<-bus.Running()

	if err := bus.PublishActivated(ctx, events.UserActivated{UserID: "1", ActivatedAt: epoch}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for len(f.client.Texts("1")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("activation notice not sent")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := f.client.Texts("1")[0].Text; !strings.Contains(got, "You are now ACTIVE") {
		t.Errorf("notice = %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0m"},
		{45 * time.Minute, "45m"},
		{2 * time.Hour, "2h"},
		{3*time.Hour + 25*time.Minute + 10*time.Second, "3h 25m"},
		{24 * time.Hour, "24h"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestServeStopsWithContext(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &models.User{ID: "1"})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.bot.Serve(ctx) }()
	f.client.Push(command("1", "help", ""))

	deadline := time.Now().Add(5 * time.Second)
	for len(f.client.Texts("1")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("update not handled")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
}
