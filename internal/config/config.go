// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

// Package config loads MediaRelay configuration.
//
// Sources are layered with koanf, later layers winning:
//
//  1. Built-in defaults (defaultConfig)
//  2. YAML file from CONFIG_PATH or one of DefaultConfigPaths
//  3. Environment variables listed in envTransformFunc
//
// Load validates the merged result before returning it.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Bot        BotConfig        `koanf:"bot"`
	Storage    StorageConfig    `koanf:"storage"`
	Blob       BlobConfig       `koanf:"blob"`
	Activity   ActivityConfig   `koanf:"activity"`
	Sync       SyncConfig       `koanf:"sync"`
	Duplicates DuplicatesConfig `koanf:"duplicates"`
	Ingest     IngestConfig     `koanf:"ingest"`
	Breaker    BreakerConfig    `koanf:"breaker"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// BotConfig holds messaging platform credentials.
//
// Environment Variables:
//   - BOT_TOKEN: Telegram bot token (required)
//   - BOT_ADMIN_IDS: comma-separated admin user IDs
//   - BOT_API_ENDPOINT: alternative Bot API endpoint (self-hosted server)
type BotConfig struct {
	Token       string        `koanf:"token"`
	AdminIDs    []string      `koanf:"admin_ids"`
	APIEndpoint string        `koanf:"api_endpoint"`
	PollTimeout time.Duration `koanf:"poll_timeout"`
}

// StorageConfig selects the document store backend.
type StorageConfig struct {
	// Backend is "json" (whole-file documents) or "badger".
	Backend string `koanf:"backend"`

	// DataDir holds users.json, media.json, keys.json and stats.json.
	DataDir string `koanf:"data_dir"`

	// BadgerPath is used when Backend is "badger".
	BadgerPath string `koanf:"badger_path"`

	// LockTimeout bounds advisory lock acquisition before writing unlocked.
	LockTimeout time.Duration `koanf:"lock_timeout"`

	// LockPoll is the retry interval while the lock file exists.
	LockPoll time.Duration `koanf:"lock_poll"`

	// StaleLockAge removes lock files older than this at startup. Zero disables.
	StaleLockAge time.Duration `koanf:"stale_lock_age"`
}

// BlobConfig selects where media bytes live.
type BlobConfig struct {
	// Backend is "local" or "s3".
	Backend  string   `koanf:"backend"`
	MediaDir string   `koanf:"media_dir"`
	S3       S3Config `koanf:"s3"`
}

// S3Config holds S3 (or S3-compatible) bucket settings.
type S3Config struct {
	Bucket          string `koanf:"bucket"`
	Region          string `koanf:"region"`
	Endpoint        string `koanf:"endpoint"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	UsePathStyle    bool   `koanf:"use_path_style"`
}

// ActivityConfig tunes the activity tracker.
type ActivityConfig struct {
	RequiredUploads  int           `koanf:"required_uploads"`
	Window           time.Duration `koanf:"window"`
	CheckInterval    time.Duration `koanf:"check_interval"`
	PresenceInterval time.Duration `koanf:"presence_interval"`
	PresenceIdle     time.Duration `koanf:"presence_idle"`
}

// SyncConfig tunes the planner and executor.
type SyncConfig struct {
	MaxSyncNormal      int           `koanf:"max_sync_normal"`
	MaxReplaceAttempts int           `koanf:"max_replace_attempts"`
	CheckpointEvery    int           `koanf:"checkpoint_every"`
	MaxAttempts        int           `koanf:"max_attempts"`
	RetryDelay         time.Duration `koanf:"retry_delay"`
	ItemDelay          time.Duration `koanf:"item_delay"`
	FloodMargin        time.Duration `koanf:"flood_margin"`
	MaxDeferrals       int           `koanf:"max_deferrals"`
}

// DuplicatesConfig controls quarantine retention.
type DuplicatesConfig struct {
	Retention     time.Duration `koanf:"retention"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// IngestConfig tunes the per-user upload workers.
type IngestConfig struct {
	MaxFileSize      int64         `koanf:"max_file_size"`
	DownloadAttempts int           `koanf:"download_attempts"`
	RetryDelay       time.Duration `koanf:"retry_delay"`
	ItemDelay        time.Duration `koanf:"item_delay"`
	TempDir          string        `koanf:"temp_dir"`
}

// BreakerConfig configures the circuit breaker around platform calls.
type BreakerConfig struct {
	MaxRequests  uint32        `koanf:"max_requests"`
	Interval     time.Duration `koanf:"interval"`
	Timeout      time.Duration `koanf:"timeout"`
	FailureRatio float64       `koanf:"failure_ratio"`
	MinRequests  uint32        `koanf:"min_requests"`
}

// ServerConfig is the ops HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	RateLimit       int           `koanf:"rate_limit"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	// AdminToken guards the /api/v1 admin routes. Empty disables them.
	AdminToken string `koanf:"admin_token"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
