// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

// Package bot routes platform updates to the relay services.
//
// The router is deliberately thin: every decision about quotas, activity or
// plans is made by the service it calls, and the bot only maps the outcome
// to a reply. Each update is handled in its own goroutine so one slow reply
// never holds up another user; long-running work (the upload worker, a sync
// run) is handed to the owning service.
package bot

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tomtom215/mediarelay/internal/accounts"
	"github.com/tomtom215/mediarelay/internal/activity"
	"github.com/tomtom215/mediarelay/internal/config"
	"github.com/tomtom215/mediarelay/internal/events"
	"github.com/tomtom215/mediarelay/internal/executor"
	"github.com/tomtom215/mediarelay/internal/ingest"
	"github.com/tomtom215/mediarelay/internal/logging"
	"github.com/tomtom215/mediarelay/internal/models"
	"github.com/tomtom215/mediarelay/internal/platform"
	"github.com/tomtom215/mediarelay/internal/registry"
	"github.com/tomtom215/mediarelay/internal/syncplan"
)

// ErrUpdatesClosed is returned by Serve when the update stream ends while
// the bot is still meant to be running.
var ErrUpdatesClosed = errors.New("bot: update stream closed")

// Callback data prefixes. The operation id follows the last colon.
const (
	cbConfirm = "sync:confirm:"
	cbReject  = "sync:reject:"
	cbReplace = "sync:replace"
)

// topLimit is the number of rows shown by /top.
const topLimit = 10

// Services are the components the bot drives.
type Services struct {
	Accounts *accounts.Service
	Tracker  *activity.Tracker
	Registry *registry.Registry
	Planner  *syncplan.Planner
	Executor *executor.Executor
	Queue    *ingest.Queue
}

// Bot handles incoming updates.
type Bot struct {
	client platform.Client
	svc    Services
	admins []string
	logger zerolog.Logger

	wg sync.WaitGroup
}

// New creates a Bot.
func New(client platform.Client, svc Services, cfg config.BotConfig) *Bot {
	return &Bot{
		client: client,
		svc:    svc,
		admins: cfg.AdminIDs,
		logger: logging.WithComponent("bot"),
	}
}

// Subscribe sends the activation notice whenever a user becomes active.
func (b *Bot) Subscribe(bus *events.Bus) {
	bus.OnActivated("activation-notice", func(ctx context.Context, e *events.UserActivated) error {
		_, err := b.client.SendText(ctx, e.UserID, activationText(b.svc.Tracker.Policy()))
		if errors.Is(err, platform.ErrMissingPermission) {
			return nil
		}
		return err
	})
}

// Serve consumes updates until ctx is done, then waits for the handlers it
// started.
func (b *Bot) Serve(ctx context.Context) error {
	b.logger.Info().Msg("Listening for updates")
	defer b.wg.Wait()
	for u := range b.client.Updates(ctx) {
		b.wg.Add(1)
		go func(u platform.Update) {
			defer b.wg.Done()
			b.dispatch(ctx, u)
		}(u)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrUpdatesClosed
}

// dispatch runs Handle, turning a panic into a logged error so a handler
// goroutine cannot take the process down.
func (b *Bot) dispatch(ctx context.Context, u platform.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Interface("panic", r).
				Str("user_id", u.UserID).
				Msg("Update handler panicked")
		}
	}()
	b.Handle(ctx, u)
}

// Wait blocks until every dispatched update has been handled.
func (b *Bot) Wait() {
	b.wg.Wait()
}

// String implements fmt.Stringer for supervisor logging.
func (b *Bot) String() string { return "bot" }

// Handle routes one update.
func (b *Bot) Handle(ctx context.Context, u platform.Update) {
	if u.UserID == "" {
		return
	}
	ctx = logging.ContextWithLogger(ctx, b.logger)
	ctx = logging.ContextWithUserID(logging.ContextWithNewCorrelationID(ctx), u.UserID)

	if u.Callback != nil {
		b.handleCallback(ctx, u)
		return
	}
	if u.Command == "start" {
		b.handleStart(ctx, u)
		return
	}

	user, ok := b.authorize(ctx, u)
	if !ok {
		return
	}
	switch {
	case u.Command == "syncmedia":
		b.handleSync(ctx, u, user)
	case u.Command == "report":
		b.handleReport(ctx, u, user)
	case u.Command == "mystats":
		b.handleStats(ctx, u)
	case u.Command == "top":
		b.reply(ctx, u, topText(b.svc.Accounts.TopUploaders(topLimit)))
	case u.Command == "help":
		b.reply(ctx, u, welcomeText(u.FirstName, user.Premium))
	case u.Media != nil:
		b.handleMedia(ctx, u)
	case u.IsCommand():
		b.reply(ctx, u, unknownCommandText)
	default:
		b.touch(ctx, u.UserID)
	}
}

// authorize returns the registered, unbanned sender or replies with a
// refusal.
func (b *Bot) authorize(ctx context.Context, u platform.Update) (*models.User, bool) {
	user, err := b.svc.Accounts.Get(u.UserID)
	switch {
	case errors.Is(err, accounts.ErrUnknownUser):
		b.reply(ctx, u, accessDeniedText)
		return nil, false
	case err != nil:
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to load user")
		b.reply(ctx, u, genericErrorText)
		return nil, false
	case user.Banned:
		b.reply(ctx, u, bannedText)
		return nil, false
	}
	return user, true
}

func (b *Bot) handleStart(ctx context.Context, u platform.Update) {
	if user, err := b.svc.Accounts.Get(u.UserID); err == nil {
		if user.Banned {
			b.reply(ctx, u, bannedText)
			return
		}
		b.reply(ctx, u, welcomeText(u.FirstName, user.Premium))
		return
	}

	key := strings.ToUpper(strings.TrimSpace(u.Args))
	if key == "" {
		b.reply(ctx, u, newUserText(u.FirstName))
		return
	}
	user, err := b.svc.Accounts.Register(ctx, accounts.Registration{
		UserID:    u.UserID,
		Username:  u.Username,
		FirstName: u.FirstName,
		Key:       key,
	})
	switch {
	case errors.Is(err, accounts.ErrKeyNotFound), errors.Is(err, accounts.ErrKeyUnusable):
		b.reply(ctx, u, accessDeniedText)
		return
	case errors.Is(err, accounts.ErrUserExists):
		b.reply(ctx, u, welcomeText(u.FirstName, false))
		return
	case err != nil:
		logging.Ctx(ctx).Error().Err(err).Msg("Registration failed")
		b.reply(ctx, u, genericErrorText)
		return
	}
	b.reply(ctx, u, welcomeText(u.FirstName, user.Premium))
	b.notifyAdmins(ctx, newMemberText(u, user))
}

func (b *Bot) handleSync(ctx context.Context, u platform.Update, user *models.User) {
	plan, err := b.svc.Planner.Plan(ctx, u.UserID)
	var limit *syncplan.LimitReachedError
	switch {
	case err == nil:
		b.reply(ctx, u, syncPromptText(plan),
			platform.Button{Text: "✅ CONFIRM", Data: cbConfirm + plan.OperationID},
			platform.Button{Text: "❌ REJECT", Data: cbReject + plan.OperationID},
		)
	case errors.As(err, &limit):
		b.reply(ctx, u, limitText(limit))
	case errors.Is(err, syncplan.ErrNotActive):
		b.reply(ctx, u, notActiveText(b.svc.Tracker.Policy(), user.Uploads))
	case errors.Is(err, syncplan.ErrStalePlanCleared):
		b.reply(ctx, u, staleClearedText)
	case errors.Is(err, syncplan.ErrBusy):
		b.reply(ctx, u, busyText, platform.Button{Text: "🟩 REPLACE PREVIOUS SYNC 🟩", Data: cbReplace})
	case errors.Is(err, syncplan.ErrSyncInProgress):
		if b.resumeStalled(ctx, u.UserID) {
			b.reply(ctx, u, resumedText)
			return
		}
		b.reply(ctx, u, inProgressText)
	case errors.Is(err, syncplan.ErrNothingToSync):
		b.reply(ctx, u, nothingToSyncText)
	default:
		logging.Ctx(ctx).Error().Err(err).Msg("Sync planning failed")
		b.reply(ctx, u, genericErrorText)
	}
}

func (b *Bot) handleCallback(ctx context.Context, u platform.Update) {
	cb := u.Callback
	user, err := b.svc.Accounts.Get(u.UserID)
	if err != nil || user.Banned {
		b.answer(ctx, cb.ID, "🚫 Access denied")
		return
	}

	switch data := cb.Data; {
	case strings.HasPrefix(data, cbConfirm):
		b.confirm(ctx, u, strings.TrimPrefix(data, cbConfirm))
	case strings.HasPrefix(data, cbReject):
		b.reject(ctx, u, strings.TrimPrefix(data, cbReject))
	case data == cbReplace:
		if err := b.svc.Planner.Replace(ctx, u.UserID); err != nil {
			logging.Ctx(ctx).Error().Err(err).Msg("Sync replace failed")
			b.answer(ctx, cb.ID, "❌ Error")
			return
		}
		b.answer(ctx, cb.ID, "Previous sync cleared")
		b.reply(ctx, u, replacedText)
	default:
		b.answer(ctx, cb.ID, "Unknown action")
	}
}

func (b *Bot) confirm(ctx context.Context, u platform.Update, opID string) {
	plan, err := b.svc.Planner.Confirm(ctx, u.UserID, opID)
	switch {
	case errors.Is(err, syncplan.ErrExpired), errors.Is(err, syncplan.ErrNoPendingPlan):
		b.answer(ctx, u.Callback.ID, "⌛ This sync request has expired")
		return
	case errors.Is(err, syncplan.ErrSyncInProgress):
		if b.resumeStalled(ctx, u.UserID) {
			b.answer(ctx, u.Callback.ID, "Sync resumed")
			return
		}
		b.answer(ctx, u.Callback.ID, "⏳ Sync already in progress")
		return
	case err != nil:
		logging.Ctx(ctx).Error().Err(err).Msg("Sync confirm failed")
		b.answer(ctx, u.Callback.ID, "❌ Error")
		return
	}
	b.answer(ctx, u.Callback.ID, "Sync started")
	b.reply(ctx, u, syncStartedText(len(plan.Items)))
	b.svc.Executor.Start(ctx, u.UserID, opID)
}

// resumeStalled restarts a confirmed plan that has no run behind it.
func (b *Bot) resumeStalled(ctx context.Context, userID string) bool {
	if b.svc.Executor.Running(userID) {
		return false
	}
	plan, ok := b.svc.Planner.Pending(userID)
	if !ok || !plan.Confirmed || len(plan.Items) == 0 {
		return false
	}
	logging.Ctx(ctx).Info().Str("operation_id", plan.OperationID).Msg("Restarting stalled sync run")
	b.svc.Executor.Start(ctx, userID, plan.OperationID)
	return true
}

func (b *Bot) reject(ctx context.Context, u platform.Update, opID string) {
	err := b.svc.Planner.Reject(ctx, u.UserID, opID)
	switch {
	case errors.Is(err, syncplan.ErrExpired), errors.Is(err, syncplan.ErrNoPendingPlan):
		b.answer(ctx, u.Callback.ID, "⌛ This sync request has expired")
	case errors.Is(err, syncplan.ErrSyncInProgress):
		b.answer(ctx, u.Callback.ID, "⏳ Sync already in progress")
	case err != nil:
		logging.Ctx(ctx).Error().Err(err).Msg("Sync reject failed")
		b.answer(ctx, u.Callback.ID, "❌ Error")
	default:
		b.answer(ctx, u.Callback.ID, "Sync cancelled")
		b.reply(ctx, u, rejectedText)
	}
}

func (b *Bot) handleReport(ctx context.Context, u platform.Update, user *models.User) {
	if u.ReplyTo == nil {
		b.reply(ctx, u, reportUsageText)
		return
	}
	item, ok := b.svc.Registry.FindByFile(u.ReplyTo.FileID, u.ReplyTo.FileUniqueID)
	if !ok {
		b.reply(ctx, u, reportUnknownText)
		return
	}
	reason := strings.TrimSpace(u.Args)
	err := b.svc.Registry.Report(ctx, item.ID, u.UserID, reason)
	switch {
	case errors.Is(err, registry.ErrAlreadyReported):
		b.reply(ctx, u, alreadyReportedText)
		return
	case errors.Is(err, registry.ErrNotFound):
		b.reply(ctx, u, reportUnknownText)
		return
	case err != nil:
		logging.Ctx(ctx).Error().Err(err).Str("media_id", item.ID).Msg("Report failed")
		b.reply(ctx, u, genericErrorText)
		return
	}
	b.reply(ctx, u, reportedText(item.ID))
	b.notifyAdmins(ctx, adminReportText(item.ID, u.UserID, user.Alias, reason))
}

func (b *Bot) handleStats(ctx context.Context, u platform.Update) {
	// Run the lazy expiry check so the status shown is current.
	if _, err := b.svc.Tracker.Check(ctx, u.UserID); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Activity check failed")
	}
	user, err := b.svc.Accounts.Get(u.UserID)
	if err != nil {
		b.reply(ctx, u, genericErrorText)
		return
	}
	remaining, err := b.svc.Tracker.TimeRemaining(u.UserID)
	if err != nil {
		b.reply(ctx, u, genericErrorText)
		return
	}
	b.reply(ctx, u, statsText(user, remaining, b.svc.Tracker.Policy()))
}

func (b *Bot) handleMedia(ctx context.Context, u platform.Update) {
	b.touch(ctx, u.UserID)
	m := u.Media
	err := b.svc.Queue.Enqueue(ctx, ingest.Upload{
		UserID:       u.UserID,
		FileID:       m.FileID,
		FileUniqueID: m.FileUniqueID,
		FileName:     m.FileName,
		Type:         m.Type,
		Size:         m.Size,
		Caption:      m.Caption,
		Forwarded:    u.Forwarded,
	})
	switch {
	case err == nil:
	case errors.Is(err, ingest.ErrTooLarge):
		b.reply(ctx, u, tooLargeText)
	case errors.Is(err, ingest.ErrInvalidUpload):
		b.reply(ctx, u, unsupportedText)
	default:
		logging.Ctx(ctx).Error().Err(err).Str("file_id", m.FileID).Msg("Failed to queue upload")
		b.reply(ctx, u, uploadErrorText)
	}
}

func (b *Bot) touch(ctx context.Context, userID string) {
	if err := b.svc.Tracker.Touch(ctx, userID); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to record activity")
	}
}

func (b *Bot) reply(ctx context.Context, u platform.Update, text string, buttons ...platform.Button) {
	chatID := u.ChatID
	if chatID == "" {
		chatID = u.UserID
	}
	if _, err := b.client.SendText(ctx, chatID, text, buttons...); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to send reply")
	}
}

func (b *Bot) answer(ctx context.Context, callbackID, text string) {
	if err := b.client.AnswerCallback(ctx, callbackID, text); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("Failed to answer callback")
	}
}

func (b *Bot) notifyAdmins(ctx context.Context, text string) {
	for _, id := range b.admins {
		if _, err := b.client.SendText(ctx, id, text); err != nil {
			b.logger.Warn().Err(err).Str("admin_id", id).Msg("Failed to notify admin")
		}
	}
}
