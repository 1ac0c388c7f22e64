// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

// Package telegram adapts the Telegram Bot API to platform.Client.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/tomtom215/mediarelay/internal/config"
	"github.com/tomtom215/mediarelay/internal/logging"
	"github.com/tomtom215/mediarelay/internal/models"
	"github.com/tomtom215/mediarelay/internal/platform"
)

// Client talks to the Bot API.
//
// The long-poll stream belongs to the Client, not to a caller of Updates:
// tgbotapi can stop receiving only once per BotAPI, so Updates may be called
// again after a restart and Close ends the stream for good.
type Client struct {
	api         *tgbotapi.BotAPI
	http        *http.Client
	pollTimeout int
	logger      zerolog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	source    tgbotapi.UpdatesChannel

	mu   sync.Mutex
	held *platform.Update
}

// New connects with the configured token and endpoint.
func New(cfg config.BotConfig) (*Client, error) {
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	pollTimeout := int(cfg.PollTimeout / time.Second)
	if pollTimeout <= 0 {
		pollTimeout = 60
	}
	logger := logging.WithComponent("telegram")
	logger.Info().Str("bot", api.Self.UserName).Msg("Connected to Telegram")
	return &Client{
		api:         api,
		http:        &http.Client{Timeout: 10 * time.Minute},
		pollTimeout: pollTimeout,
		logger:      logger,
	}, nil
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: invalid chat id %q: %w", chatID, err)
	}
	return id, nil
}

// mapError converts Bot API failures into the platform error taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.Code == http.StatusTooManyRequests || apiErr.RetryAfter > 0:
		wait := time.Duration(apiErr.RetryAfter) * time.Second
		if wait <= 0 {
			wait = time.Second
		}
		return &platform.FloodWaitError{Wait: wait}
	case apiErr.Code == http.StatusForbidden,
		strings.Contains(strings.ToLower(apiErr.Message), "not enough rights"):
		return fmt.Errorf("%w: %s", platform.ErrMissingPermission, apiErr.Message)
	default:
		return err
	}
}

func (c *Client) send(ctx context.Context, msg tgbotapi.Chattable) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	sent, err := c.api.Send(msg)
	if err != nil {
		return 0, mapError(err)
	}
	return sent.MessageID, nil
}

func (c *Client) SendText(ctx context.Context, chatID, text string, buttons ...platform.Button) (int, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(id, text)
	if len(buttons) > 0 {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
		for _, b := range buttons {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	}
	return c.send(ctx, msg)
}

// SendCachedMedia sends the file as an animation, the only cached kind
// without a typed sender.
func (c *Client) SendCachedMedia(ctx context.Context, chatID, fileID, caption string) (int, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return 0, err
	}
	cfg := tgbotapi.NewAnimation(id, tgbotapi.FileID(fileID))
	cfg.Caption = caption
	return c.send(ctx, cfg)
}

func (c *Client) SendPhoto(ctx context.Context, chatID, fileID, caption string) (int, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return 0, err
	}
	cfg := tgbotapi.NewPhoto(id, tgbotapi.FileID(fileID))
	cfg.Caption = caption
	return c.send(ctx, cfg)
}

func (c *Client) SendVideo(ctx context.Context, chatID, fileID, caption string) (int, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return 0, err
	}
	cfg := tgbotapi.NewVideo(id, tgbotapi.FileID(fileID))
	cfg.Caption = caption
	return c.send(ctx, cfg)
}

func (c *Client) SendDocument(ctx context.Context, chatID, fileID, caption string) (int, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return 0, err
	}
	cfg := tgbotapi.NewDocument(id, tgbotapi.FileID(fileID))
	cfg.Caption = caption
	return c.send(ctx, cfg)
}

func (c *Client) SendAudio(ctx context.Context, chatID, fileID, caption string) (int, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return 0, err
	}
	cfg := tgbotapi.NewAudio(id, tgbotapi.FileID(fileID))
	cfg.Caption = caption
	return c.send(ctx, cfg)
}

func (c *Client) SendVoice(ctx context.Context, chatID, fileID, caption string) (int, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return 0, err
	}
	cfg := tgbotapi.NewVoice(id, tgbotapi.FileID(fileID))
	cfg.Caption = caption
	return c.send(ctx, cfg)
}

// Download resolves the file URL and streams it into dir.
func (c *Client) Download(ctx context.Context, fileID, dir string) (string, error) {
	url, err := c.api.GetFileDirectURL(fileID)
	if err != nil {
		return "", mapError(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("telegram: download %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		wait, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return "", &platform.FloodWaitError{Wait: time.Duration(max(wait, 1)) * time.Second}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("telegram: download %s: status %d", fileID, resp.StatusCode)
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, "dl-*"+path.Ext(req.URL.Path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("telegram: download %s: %w", fileID, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return filepath.Clean(f.Name()), nil
}

func (c *Client) Pin(ctx context.Context, chatID string, messageID int) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err = c.api.Request(tgbotapi.PinChatMessageConfig{ChatID: id, MessageID: messageID, DisableNotification: true})
	return mapError(err)
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.api.Request(tgbotapi.NewCallback(callbackID, text))
	return mapError(err)
}

// Updates forwards the shared long-poll stream until ctx is done. An update
// read but not yet taken by the caller is kept for the next call.
func (c *Client) Updates(ctx context.Context) <-chan platform.Update {
	c.startOnce.Do(func() {
		cfg := tgbotapi.NewUpdate(0)
		cfg.Timeout = c.pollTimeout
		c.source = c.api.GetUpdatesChan(cfg)
	})

	out := make(chan platform.Update)
	go func() {
		defer close(out)
		if u, ok := c.takeHeld(); ok {
			if !c.forward(ctx, out, u) {
				return
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-c.source:
				if !ok {
					return
				}
				u, ok := convertUpdate(raw)
				if !ok {
					continue
				}
				if !c.forward(ctx, out, u) {
					return
				}
			}
		}
	}()
	return out
}

func (c *Client) forward(ctx context.Context, out chan<- platform.Update, u platform.Update) bool {
	select {
	case out <- u:
		return true
	case <-ctx.Done():
		c.mu.Lock()
		c.held = &u
		c.mu.Unlock()
		return false
	}
}

func (c *Client) takeHeld() (platform.Update, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.held == nil {
		return platform.Update{}, false
	}
	u := *c.held
	c.held = nil
	return u, true
}

// Close stops long polling. It is safe to call more than once.
func (c *Client) Close() error {
	c.stopOnce.Do(func() {
		c.startOnce.Do(func() {})
		if c.source != nil {
			c.api.StopReceivingUpdates()
		}
	})
	return nil
}

func convertUpdate(raw tgbotapi.Update) (platform.Update, bool) {
	if cq := raw.CallbackQuery; cq != nil {
		if cq.From == nil {
			return platform.Update{}, false
		}
		u := platform.Update{
			UserID:    strconv.FormatInt(cq.From.ID, 10),
			Username:  cq.From.UserName,
			FirstName: cq.From.FirstName,
			Callback:  &platform.Callback{ID: cq.ID, Data: cq.Data},
		}
		u.ChatID = u.UserID
		if cq.Message != nil && cq.Message.Chat != nil {
			u.ChatID = strconv.FormatInt(cq.Message.Chat.ID, 10)
			u.MessageID = cq.Message.MessageID
		}
		return u, true
	}

	msg := raw.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return platform.Update{}, false
	}
	u := platform.Update{
		UserID:    strconv.FormatInt(msg.From.ID, 10),
		ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		Username:  msg.From.UserName,
		FirstName: msg.From.FirstName,
		MessageID: msg.MessageID,
		Text:      msg.Text,
		Media:     extractMedia(msg),
		Forwarded: msg.ForwardFrom != nil || msg.ForwardFromChat != nil || msg.ForwardDate != 0,
	}
	if msg.IsCommand() {
		u.Command = msg.Command()
		u.Args = strings.TrimSpace(msg.CommandArguments())
	}
	if msg.ReplyToMessage != nil {
		u.ReplyTo = extractMedia(msg.ReplyToMessage)
	}
	return u, true
}

func extractMedia(msg *tgbotapi.Message) *platform.Media {
	var m *platform.Media
	switch {
	case len(msg.Photo) > 0:
		p := msg.Photo[len(msg.Photo)-1]
		m = &platform.Media{FileID: p.FileID, FileUniqueID: p.FileUniqueID, Type: models.MediaPhoto, Size: int64(p.FileSize)}
	case msg.Video != nil:
		v := msg.Video
		m = &platform.Media{FileID: v.FileID, FileUniqueID: v.FileUniqueID, Type: models.MediaVideo, Size: int64(v.FileSize), FileName: v.FileName, MimeType: v.MimeType}
	case msg.Animation != nil:
		a := msg.Animation
		m = &platform.Media{FileID: a.FileID, FileUniqueID: a.FileUniqueID, Type: models.MediaAnimation, Size: int64(a.FileSize), FileName: a.FileName, MimeType: a.MimeType}
	case msg.Document != nil:
		d := msg.Document
		m = &platform.Media{FileID: d.FileID, FileUniqueID: d.FileUniqueID, Type: models.MediaDocument, Size: int64(d.FileSize), FileName: d.FileName, MimeType: d.MimeType}
	case msg.Audio != nil:
		a := msg.Audio
		m = &platform.Media{FileID: a.FileID, FileUniqueID: a.FileUniqueID, Type: models.MediaAudio, Size: int64(a.FileSize), MimeType: a.MimeType}
	case msg.Voice != nil:
		v := msg.Voice
		m = &platform.Media{FileID: v.FileID, FileUniqueID: v.FileUniqueID, Type: models.MediaVoice, Size: int64(v.FileSize), MimeType: v.MimeType}
	default:
		return nil
	}
	m.Caption = msg.Caption
	return m
}

var _ platform.Client = (*Client)(nil)
