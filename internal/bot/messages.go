// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/mediarelay/internal/accounts"
	"github.com/tomtom215/mediarelay/internal/activity"
	"github.com/tomtom215/mediarelay/internal/models"
	"github.com/tomtom215/mediarelay/internal/platform"
	"github.com/tomtom215/mediarelay/internal/syncplan"
)

const (
	accessDeniedText = "🚫 Access Denied 🚫\n\n" +
		"You don't have access to this network.\n\n" +
		"Register with a valid access key:\n" +
		"👉 /start YOUR_ACCESS_KEY\n\n" +
		"The key may be invalid, disabled or already used up."

	bannedText         = "🚫 You are banned from using this bot."
	genericErrorText   = "❌ Something went wrong. Please try again later."
	unknownCommandText = "❓ Unknown command. Use /help to see what you can do."

	staleClearedText = "✅ Previous sync operation automatically cleared\n\n" +
		"Please use /syncmedia again to start a new sync operation."
	busyText = "⚠️ You already have a pending sync operation.\n\n" +
		"Tap below to replace it."
	inProgressText    = "⏳ A sync is already running. Please wait for it to finish."
	resumedText       = "🔄 Your confirmed sync was interrupted and has been resumed."
	nothingToSyncText = "📭 No new media available to sync"
	replacedText      = "✅ Previous sync operation cleared.\n\nUse /syncmedia to start a new sync."
	rejectedText      = "❌ Sync request cancelled."

	reportUsageText = "🚨 Report Error 🚨\n\n" +
		"Reply to the media message you want to report with /report <reason>."
	reportUnknownText = "🚨 Report Error 🚨\n\n" +
		"This media is not in our database. You can only report media shared through this bot."
	alreadyReportedText = "ℹ️ You have already reported this media."

	tooLargeText    = "⚠️ This file is too large to store."
	unsupportedText = "⚠️ This kind of message cannot be stored."
	uploadErrorText = "❌ Error processing your media. Please try again later."
)

func welcomeText(name string, premium bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👋 Welcome to the Media Vault, %s!\n\n", name)
	if premium {
		b.WriteString("💎 You have PREMIUM access! 💎\n\n")
	}
	b.WriteString("🧲 /syncmedia - Get new media from the vault\n" +
		"📊 /mystats - See your stats and progress\n" +
		"🏆 /top - View top contributors\n" +
		"🚨 /report - Report inappropriate media\n")
	if !premium {
		b.WriteString("\n💎 Premium members get unlimited syncing and no activity requirements.")
	}
	return b.String()
}

func newUserText(name string) string {
	return fmt.Sprintf("✨ Welcome to the Media Vault, %s! ✨\n\n"+
		"This is a private media exchange.\n\n"+
		"🔑 To get started, enter your access key:\n"+
		"👉 /start YOUR_ACCESS_KEY", name)
}

func newMemberText(u platform.Update, user *models.User) string {
	username := "No username"
	if u.Username != "" {
		username = "@" + u.Username
	}
	premium := "No"
	if user.Premium {
		premium = "Yes"
	}
	return fmt.Sprintf("🆕 New User Joined\n\n👤 User: %s (%s)\n🆔 ID: %s\n🔑 Key: %s\n🎭 Alias: %s\n✨ Premium: %s",
		u.FirstName, username, user.ID, user.AccessKey, user.Alias, premium)
}

func activationText(p activity.Policy) string {
	return fmt.Sprintf("🎉 Congratulations! 🎉\n\n"+
		"✅ You are now ACTIVE.\n\n"+
		"🧲 Use /syncmedia to receive media from other users\n"+
		"📊 Check your stats with /mystats\n\n"+
		"⏱️ Stay active by uploading %d files every %s.",
		p.RequiredUploads, formatDuration(p.Window))
}

func notActiveText(p activity.Policy, uploads int) string {
	return fmt.Sprintf("❌ You are not active\n\n"+
		"You need to upload %d media files to become active.\n"+
		"Current uploads: %d", p.RequiredUploads, uploads)
}

func syncPromptText(plan *syncplan.Plan) string {
	var b strings.Builder
	b.WriteString("📡 MEDIA SYNC READY 📡\n\n")
	fmt.Fprintf(&b, "🚨 %d MEDIA FILES queued for sync!\n", len(plan.Items))
	if !plan.Premium && plan.Available > len(plan.Items) {
		fmt.Fprintf(&b, "📊 Total available: %d (limited for standard accounts)\n", plan.Available)
	}
	b.WriteString("\n⏳ Do not interrupt an active sync. Files arrive gradually.\n\n")
	b.WriteString("Tap ✅ CONFIRM to start.\n\n")
	fmt.Fprintf(&b, "🆔 Operation ID: %s", plan.OperationID)
	return b.String()
}

func limitText(e *syncplan.LimitReachedError) string {
	return fmt.Sprintf("🔴 SYNC LIMIT REACHED 🔴\n\n"+
		"📊 You have reached the maximum of %d synced media files.\n"+
		"📈 Total available media: %d\n\n"+
		"💎 Upgrade to premium for unlimited syncing.", e.Limit, e.Total)
}

func syncStartedText(n int) string {
	return fmt.Sprintf("🔄 Sync started: %d files on the way.", n)
}

func reportedText(mediaID string) string {
	return fmt.Sprintf("🚨 Report Submitted 🚨\n\n"+
		"🙏 Thank you for helping keep the community safe.\n"+
		"An admin will review this content shortly.\n\n"+
		"📂 Media ID: %s", mediaID)
}

func adminReportText(mediaID, reporterID, alias, reason string) string {
	if reason == "" {
		reason = "(none given)"
	}
	return fmt.Sprintf("🚨 Content Reported 🚨\n\n"+
		"📂 Media ID: %s\n"+
		"👤 Reported by: %s (ID: %s)\n"+
		"📝 Reason: %s", mediaID, alias, reporterID, reason)
}

func statsText(u *models.User, remaining time.Duration, p activity.Policy) string {
	status := "❌ Inactive"
	switch {
	case u.Premium:
		status = "💎 Premium"
	case u.Active:
		status = "✅ Active"
	}
	left := formatDuration(remaining)
	if remaining == activity.Forever {
		left = "never"
	}
	text := fmt.Sprintf("📊 Your Personal Stats 📊\n\n"+
		"🔒 Alias: %s\n"+
		"📅 Joined: %s\n"+
		"📤 Uploads: %d\n"+
		"🧲 Synced: %d\n"+
		"⭐ Status: %s\n"+
		"⏳ Time until inactive: %s",
		u.Alias, u.JoinDate.Format("2006-01-02"), u.Uploads, u.SyncedMedia.Len(), status, left)
	if !u.Premium {
		text += fmt.Sprintf("\n\n⚠️ Upload %d media files every %s to stay active.", p.RequiredUploads, formatDuration(p.Window))
	}
	return text
}

func topText(rows []accounts.RankedUser) string {
	if len(rows) == 0 {
		return "🏆 No uploads yet."
	}
	var b strings.Builder
	b.WriteString("🏆 Top Contributors 🏆\n")
	for i, r := range rows {
		badge := ""
		if r.Premium {
			badge = " 💎"
		}
		fmt.Fprintf(&b, "\n%d. %s%s: %d uploads", i+1, r.Alias, badge, r.Uploads)
	}
	return b.String()
}

// formatDuration renders d as "3h 25m", or "0m" when nothing is left.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dm", m)
	}
}
