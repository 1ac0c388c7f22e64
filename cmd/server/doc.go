// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

/*
Package main runs the MediaRelay bot.

MediaRelay is an invitation-only media exchange. Members upload photos,
videos and documents to the bot; the relay stores them under an anonymous
alias and delivers them to every other eligible member on request
(/syncmedia) or as a backlog push when a member first becomes active.

# Process layout

	RootSupervisor ("mediarelay")
	├── data-layer
	│   ├── inactivity-sweep (ACTIVITY_CHECK_INTERVAL)
	│   ├── presence-sweep   (ACTIVITY_PRESENCE_INTERVAL)
	│   └── duplicate-sweep  (DUPLICATES_SWEEP_INTERVAL)
	├── messaging-layer
	│   ├── event-bus     (watermill, in-process activation events)
	│   ├── ingest-queue  (per-user upload workers)
	│   ├── sync-executor (confirmed sync plans)
	│   └── bot           (platform update loop)
	└── api-layer
	    └── http-server   (/healthz, /metrics, /api/v1)

# Configuration

Settings come from built-in defaults, an optional YAML file (CONFIG_PATH or
./config.yaml) and environment variables, highest last. The essentials:

	BOT_TOKEN=123456:ABC...        # required
	BOT_ADMIN_IDS=11111,22222      # receive join and report notices
	STORAGE_BACKEND=json           # or badger
	STORAGE_DATA_DIR=/var/lib/mediarelay
	BLOB_BACKEND=local             # or s3 (BLOB_S3_BUCKET, BLOB_S3_REGION, ...)
	HTTP_PORT=8089
	HTTP_ADMIN_TOKEN=...           # enables /api/v1/admin

# Signals

SIGINT and SIGTERM cancel the root context. Sync runs stop at the next item
boundary with their progress checkpointed, the HTTP server drains for up to
ten seconds, and the store backend is closed last.
*/
package main
