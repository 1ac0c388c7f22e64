// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

// Package platform defines the messaging-platform boundary.
//
// Client is implemented by the Telegram adapter in platform/telegram and by
// the in-memory fake in platform/platformtest. Two failures are
// distinguishable: *FloodWaitError, a server-imposed back-off which callers
// honour and retry, and ErrMissingPermission. Every other error is opaque.
package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/mediarelay/internal/models"
)

// ErrMissingPermission is returned when the bot lacks rights for an action
// (blocked by the user, no pin rights, and so on).
var ErrMissingPermission = errors.New("platform: missing permission")

// FloodWaitError asks the caller to wait before retrying.
type FloodWaitError struct {
	Wait time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("platform: flood wait %s", e.Wait)
}

// AsFloodWait unwraps a *FloodWaitError from err.
func AsFloodWait(err error) (*FloodWaitError, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw, true
	}
	return nil, false
}

// Button is an inline keyboard button carrying callback data.
type Button struct {
	Text string
	Data string
}

// Media describes an attachment on an incoming message.
type Media struct {
	FileID       string
	FileUniqueID string
	Type         models.MediaType
	Size         int64
	FileName     string
	MimeType     string
	Caption      string
}

// Callback is an inline button press.
type Callback struct {
	ID   string
	Data string
}

// Update is one incoming event. Exactly one of the message fields or
// Callback is meaningful.
type Update struct {
	UserID    string
	ChatID    string
	Username  string
	FirstName string
	MessageID int

	Text      string
	Command   string
	Args      string
	Media     *Media
	Forwarded bool
	ReplyTo   *Media

	Callback *Callback
}

// IsCommand reports whether the update is a slash command.
func (u Update) IsCommand() bool { return u.Command != "" }

// Client is the set of platform operations the relay needs.
type Client interface {
	SendText(ctx context.Context, chatID, text string, buttons ...Button) (int, error)
	// SendCachedMedia resends a previously uploaded file whose kind is not
	// one of the typed senders below.
	SendCachedMedia(ctx context.Context, chatID, fileID, caption string) (int, error)
	SendPhoto(ctx context.Context, chatID, fileID, caption string) (int, error)
	SendVideo(ctx context.Context, chatID, fileID, caption string) (int, error)
	SendDocument(ctx context.Context, chatID, fileID, caption string) (int, error)
	SendAudio(ctx context.Context, chatID, fileID, caption string) (int, error)
	SendVoice(ctx context.Context, chatID, fileID, caption string) (int, error)
	// Download fetches a file into dir and returns the local path.
	Download(ctx context.Context, fileID, dir string) (string, error)
	Pin(ctx context.Context, chatID string, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	// Updates streams incoming events until ctx is done.
	Updates(ctx context.Context) <-chan Update
}

// SendMedia dispatches on media type to the matching typed sender.
func SendMedia(ctx context.Context, c Client, chatID string, mediaType models.MediaType, fileID, caption string) (int, error) {
	switch mediaType {
	case models.MediaPhoto:
		return c.SendPhoto(ctx, chatID, fileID, caption)
	case models.MediaVideo:
		return c.SendVideo(ctx, chatID, fileID, caption)
	case models.MediaDocument:
		return c.SendDocument(ctx, chatID, fileID, caption)
	case models.MediaAudio:
		return c.SendAudio(ctx, chatID, fileID, caption)
	case models.MediaVoice:
		return c.SendVoice(ctx, chatID, fileID, caption)
	default:
		return c.SendCachedMedia(ctx, chatID, fileID, caption)
	}
}
