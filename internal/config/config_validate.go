// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package config

import (
	"fmt"
	"strings"
)

// Validate checks that required configuration is present and coherent.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateBot,
		c.validateStorage,
		c.validateBlob,
		c.validateActivity,
		c.validateSync,
		c.validateDuplicates,
		c.validateIngest,
		c.validateBreaker,
		c.validateServer,
		c.validateLogging,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateBot() error {
	if c.Bot.Token == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if containsPlaceholder(c.Bot.Token) {
		return fmt.Errorf("BOT_TOKEN looks like a placeholder value")
	}
	if c.Bot.PollTimeout <= 0 {
		return fmt.Errorf("BOT_POLL_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case "json":
		if c.Storage.DataDir == "" {
			return fmt.Errorf("DATA_DIR is required for the json storage backend")
		}
	case "badger":
		if c.Storage.BadgerPath == "" {
			return fmt.Errorf("BADGER_PATH is required for the badger storage backend")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be one of: json, badger")
	}
	if c.Storage.LockTimeout <= 0 || c.Storage.LockPoll <= 0 {
		return fmt.Errorf("STORAGE_LOCK_TIMEOUT and STORAGE_LOCK_POLL must be positive")
	}
	if c.Storage.LockPoll > c.Storage.LockTimeout {
		return fmt.Errorf("STORAGE_LOCK_POLL must not exceed STORAGE_LOCK_TIMEOUT")
	}
	return nil
}

func (c *Config) validateBlob() error {
	switch c.Blob.Backend {
	case "local":
		if c.Blob.MediaDir == "" {
			return fmt.Errorf("MEDIA_DIR is required for the local blob backend")
		}
	case "s3":
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 blob backend")
		}
		if (c.Blob.S3.AccessKeyID == "") != (c.Blob.S3.SecretAccessKey == "") {
			return fmt.Errorf("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together")
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be one of: local, s3")
	}
	return nil
}

func (c *Config) validateActivity() error {
	a := c.Activity
	if a.RequiredUploads < 1 {
		return fmt.Errorf("ACTIVITY_REQUIRED_UPLOADS must be at least 1")
	}
	if a.Window <= 0 || a.CheckInterval <= 0 || a.PresenceInterval <= 0 || a.PresenceIdle <= 0 {
		return fmt.Errorf("activity durations must be positive")
	}
	return nil
}

func (c *Config) validateSync() error {
	s := c.Sync
	if s.MaxSyncNormal < 1 {
		return fmt.Errorf("SYNC_MAX_SYNC_NORMAL must be at least 1")
	}
	if s.MaxReplaceAttempts < 1 {
		return fmt.Errorf("SYNC_MAX_REPLACE_ATTEMPTS must be at least 1")
	}
	if s.CheckpointEvery < 1 {
		return fmt.Errorf("SYNC_CHECKPOINT_EVERY must be at least 1")
	}
	if s.MaxAttempts < 1 {
		return fmt.Errorf("SYNC_MAX_ATTEMPTS must be at least 1")
	}
	if s.MaxDeferrals < 1 {
		return fmt.Errorf("SYNC_MAX_DEFERRALS must be at least 1")
	}
	if s.RetryDelay < 0 || s.ItemDelay < 0 || s.FloodMargin < 0 {
		return fmt.Errorf("sync delays must not be negative")
	}
	return nil
}

func (c *Config) validateDuplicates() error {
	if c.Duplicates.Retention <= 0 || c.Duplicates.SweepInterval <= 0 {
		return fmt.Errorf("DUPLICATES_RETENTION and DUPLICATES_SWEEP_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.MaxFileSize <= 0 {
		return fmt.Errorf("INGEST_MAX_FILE_SIZE must be positive")
	}
	if c.Ingest.DownloadAttempts < 1 {
		return fmt.Errorf("INGEST_DOWNLOAD_ATTEMPTS must be at least 1")
	}
	if c.Ingest.TempDir == "" {
		return fmt.Errorf("INGEST_TEMP_DIR is required")
	}
	return nil
}

func (c *Config) validateBreaker() error {
	if c.Breaker.FailureRatio <= 0 || c.Breaker.FailureRatio > 1 {
		return fmt.Errorf("BREAKER_FAILURE_RATIO must be in (0, 1]")
	}
	if c.Breaker.Timeout <= 0 {
		return fmt.Errorf("BREAKER_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.RateLimit < 1 || c.Server.RateLimitWindow <= 0 {
		return fmt.Errorf("HTTP_RATE_LIMIT and HTTP_RATE_LIMIT_WINDOW must be positive")
	}
	if t := c.Server.AdminToken; t != "" && len(t) < 16 {
		return fmt.Errorf("HTTP_ADMIN_TOKEN must be at least 16 characters")
	}
	return nil
}

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// placeholderPatterns catch values copied verbatim from example configs.
var placeholderPatterns = []string{
	"changeme",
	"your_token",
	"your-token",
	"replace_me",
	"<token>",
}

func containsPlaceholder(value string) bool {
	lower := strings.ToLower(value)
	for _, p := range placeholderPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
