// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

// Package platformtest provides an in-memory platform.Client for tests.
package platformtest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tomtom215/mediarelay/internal/platform"
)

// Call records one client invocation.
type Call struct {
	Method    string
	ChatID    string
	FileID    string
	Text      string
	Caption   string
	MessageID int
	Buttons   []platform.Button
}

// Client is a scriptable fake. The zero value is not usable; call New.
type Client struct {
	mu      sync.Mutex
	calls   []Call
	nextID  int
	files   map[string][]byte
	updates chan platform.Update

	// Fail, when set, is consulted before every call except Updates. A
	// non-nil result is returned instead of performing the call; failed
	// calls are not recorded as sent.
	Fail func(Call) error
}

// New returns an empty fake.
func New() *Client {
	return &Client{
		files:   make(map[string][]byte),
		updates: make(chan platform.Update, 64),
	}
}

// AddFile makes fileID downloadable with the given content.
func (c *Client) AddFile(fileID string, content []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[fileID] = content
}

// SetFail replaces Fail while calls may be in flight.
func (c *Client) SetFail(fn func(Call) error) {
	c.mu.Lock()
	c.Fail = fn
	c.mu.Unlock()
}

// Push queues an update for the Updates stream.
func (c *Client) Push(u platform.Update) {
	c.updates <- u
}

// Calls returns every successful call in order.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Sent returns the successful media sends to chatID.
func (c *Client) Sent(chatID string) []Call {
	var out []Call
	for _, call := range c.Calls() {
		if call.ChatID == chatID && call.FileID != "" && call.Method != "Download" {
			out = append(out, call)
		}
	}
	return out
}

// Texts returns the successful text messages to chatID.
func (c *Client) Texts(chatID string) []Call {
	var out []Call
	for _, call := range c.Calls() {
		if call.ChatID == chatID && call.Method == "SendText" {
			out = append(out, call)
		}
	}
	return out
}

func (c *Client) record(call Call) (int, error) {
	c.mu.Lock()
	fail := c.Fail
	c.mu.Unlock()
	if fail != nil {
		if err := fail(call); err != nil {
			return 0, err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.calls = append(c.calls, call)
	return c.nextID, nil
}

func (c *Client) SendText(ctx context.Context, chatID, text string, buttons ...platform.Button) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.record(Call{Method: "SendText", ChatID: chatID, Text: text, Buttons: buttons})
}

func (c *Client) sendMedia(ctx context.Context, method, chatID, fileID, caption string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.record(Call{Method: method, ChatID: chatID, FileID: fileID, Caption: caption})
}

func (c *Client) SendCachedMedia(ctx context.Context, chatID, fileID, caption string) (int, error) {
	return c.sendMedia(ctx, "SendCachedMedia", chatID, fileID, caption)
}

func (c *Client) SendPhoto(ctx context.Context, chatID, fileID, caption string) (int, error) {
	return c.sendMedia(ctx, "SendPhoto", chatID, fileID, caption)
}

func (c *Client) SendVideo(ctx context.Context, chatID, fileID, caption string) (int, error) {
	return c.sendMedia(ctx, "SendVideo", chatID, fileID, caption)
}

func (c *Client) SendDocument(ctx context.Context, chatID, fileID, caption string) (int, error) {
	return c.sendMedia(ctx, "SendDocument", chatID, fileID, caption)
}

func (c *Client) SendAudio(ctx context.Context, chatID, fileID, caption string) (int, error) {
	return c.sendMedia(ctx, "SendAudio", chatID, fileID, caption)
}

func (c *Client) SendVoice(ctx context.Context, chatID, fileID, caption string) (int, error) {
	return c.sendMedia(ctx, "SendVoice", chatID, fileID, caption)
}

// Download writes the registered content for fileID into dir.
func (c *Client) Download(ctx context.Context, fileID, dir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := c.record(Call{Method: "Download", FileID: fileID}); err != nil {
		return "", err
	}
	c.mu.Lock()
	content, ok := c.files[fileID]
	c.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("platformtest: unknown file %q", fileID)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fileID)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func (c *Client) Pin(ctx context.Context, chatID string, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.record(Call{Method: "Pin", ChatID: chatID, MessageID: messageID})
	return err
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.record(Call{Method: "AnswerCallback", Text: text, Caption: callbackID})
	return err
}

// Updates returns the pushed updates. The channel closes when ctx is done.
func (c *Client) Updates(ctx context.Context) <-chan platform.Update {
	out := make(chan platform.Update)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case u := <-c.updates:
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

var _ platform.Client = (*Client)(nil)
