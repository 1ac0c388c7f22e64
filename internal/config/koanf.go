// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/mediarelay/config.yaml",
	"/etc/mediarelay/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Bot: BotConfig{
			PollTimeout: 60 * time.Second,
		},
		Storage: StorageConfig{
			Backend:      "json",
			DataDir:      "data",
			BadgerPath:   "data/badger",
			LockTimeout:  30 * time.Second,
			LockPoll:     100 * time.Millisecond,
			StaleLockAge: 10 * time.Minute,
		},
		Blob: BlobConfig{
			Backend:  "local",
			MediaDir: "media",
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Activity: ActivityConfig{
			RequiredUploads:  30,
			Window:           24 * time.Hour,
			CheckInterval:    5 * time.Minute,
			PresenceInterval: 60 * time.Second,
			PresenceIdle:     5 * time.Minute,
		},
		Sync: SyncConfig{
			MaxSyncNormal:      20,
			MaxReplaceAttempts: 5,
			CheckpointEvery:    50,
			MaxAttempts:        5,
			RetryDelay:         time.Second,
			ItemDelay:          200 * time.Millisecond,
			FloodMargin:        time.Second,
			MaxDeferrals:       3,
		},
		Duplicates: DuplicatesConfig{
			Retention:     24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Ingest: IngestConfig{
			MaxFileSize:      2 << 30, // 2GB platform ceiling
			DownloadAttempts: 3,
			RetryDelay:       time.Second,
			ItemDelay:        500 * time.Millisecond,
			TempDir:          "media/.tmp",
		},
		Breaker: BreakerConfig{
			MaxRequests:  3,
			Interval:     time.Minute,
			Timeout:      30 * time.Second,
			FailureRatio: 0.6,
			MinRequests:  10,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8089,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			RateLimit:       60,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load merges defaults, the optional config file and environment variables,
// then validates the result.
func Load() (*Config, error) {
	return loadFrom(findConfigFile())
}

func loadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// BOT_TOKEN -> bot.token, SYNC_MAX_SYNC_NORMAL -> sync.max_sync_normal
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated env values.
var sliceConfigPaths = []string{
	"bot.admin_ids",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"bot_token":        "bot.token",
	"bot_admin_ids":    "bot.admin_ids",
	"bot_api_endpoint": "bot.api_endpoint",
	"bot_poll_timeout": "bot.poll_timeout",

	"storage_backend":        "storage.backend",
	"data_dir":               "storage.data_dir",
	"badger_path":            "storage.badger_path",
	"storage_lock_timeout":   "storage.lock_timeout",
	"storage_lock_poll":      "storage.lock_poll",
	"storage_stale_lock_age": "storage.stale_lock_age",

	"blob_backend":         "blob.backend",
	"media_dir":            "blob.media_dir",
	"s3_bucket":            "blob.s3.bucket",
	"s3_region":            "blob.s3.region",
	"s3_endpoint":          "blob.s3.endpoint",
	"s3_access_key_id":     "blob.s3.access_key_id",
	"s3_secret_access_key": "blob.s3.secret_access_key",
	"s3_use_path_style":    "blob.s3.use_path_style",

	"activity_required_uploads":  "activity.required_uploads",
	"activity_window":            "activity.window",
	"activity_check_interval":    "activity.check_interval",
	"activity_presence_interval": "activity.presence_interval",
	"activity_presence_idle":     "activity.presence_idle",

	"sync_max_sync_normal":      "sync.max_sync_normal",
	"sync_max_replace_attempts": "sync.max_replace_attempts",
	"sync_checkpoint_every":     "sync.checkpoint_every",
	"sync_max_attempts":         "sync.max_attempts",
	"sync_retry_delay":          "sync.retry_delay",
	"sync_item_delay":           "sync.item_delay",
	"sync_flood_margin":         "sync.flood_margin",
	"sync_max_deferrals":        "sync.max_deferrals",

	"duplicates_retention":      "duplicates.retention",
	"duplicates_sweep_interval": "duplicates.sweep_interval",

	"ingest_max_file_size":     "ingest.max_file_size",
	"ingest_download_attempts": "ingest.download_attempts",
	"ingest_retry_delay":       "ingest.retry_delay",
	"ingest_item_delay":        "ingest.item_delay",
	"ingest_temp_dir":          "ingest.temp_dir",

	"breaker_max_requests":  "breaker.max_requests",
	"breaker_interval":      "breaker.interval",
	"breaker_timeout":       "breaker.timeout",
	"breaker_failure_ratio": "breaker.failure_ratio",
	"breaker_min_requests":  "breaker.min_requests",

	"http_host":              "server.host",
	"http_port":              "server.port",
	"http_rate_limit":        "server.rate_limit",
	"http_rate_limit_window": "server.rate_limit_window",
	"http_admin_token":       "server.admin_token",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps known environment variables to koanf paths.
// Unknown variables map to "" and are skipped so unrelated environment
// does not leak into the config.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
