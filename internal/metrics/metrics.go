// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

// Package metrics declares the Prometheus collectors exported on /metrics.
//
// Collectors are registered with promauto at package init. Components call
// the Record* helpers rather than touching vectors directly so label values
// stay consistent.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_uploads_total",
			Help: "Media registrations by result",
		},
		[]string{"result"}, // created, existing, instant, finalized, failed, rejected
	)

	DuplicatesDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_duplicates_detected_total",
			Help: "Uploads flagged as duplicates of another owner's content",
		},
	)

	UploadQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_upload_queue_depth",
			Help: "Uploads waiting across all per-user queues",
		},
	)

	// Sync
	SyncPlans = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_sync_plans_total",
			Help: "Sync plan requests by outcome",
		},
		[]string{"result"}, // planned, not_active, busy, stale_cleared, limit_reached, nothing, in_progress
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Media deliveries by path and outcome",
		},
		[]string{"path", "outcome"}, // path: sync, push; outcome: sent, deferred, skipped, dropped, capped, failed
	)

	FloodWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_flood_waits_total",
			Help: "Platform flood-wait signals honoured",
		},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_sync_duration_seconds",
			Help:    "Wall time of completed sync executions",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	// Store
	StoreFlushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_store_flush_duration_seconds",
			Help:    "Time to persist one document",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"document"},
	)

	StoreLockTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_store_lock_timeouts_total",
			Help: "Document writes that proceeded without the advisory lock",
		},
	)

	// Maintenance
	SweepRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_sweep_removed_total",
			Help: "Records removed by background sweeps",
		},
		[]string{"kind"}, // duplicate_item, sighting, deactivated, offline
	)

	ActiveUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_users",
			Help: "Users currently active or premium",
		},
	)

	// Ops API
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_api_requests_total",
			Help: "Ops API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_api_request_duration_seconds",
			Help:    "Ops API request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_circuit_breaker_requests_total",
			Help: "Calls through a circuit breaker by result",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordUpload counts one registration outcome.
func RecordUpload(result string) {
	UploadsTotal.WithLabelValues(result).Inc()
}

// RecordSyncPlan counts one planner outcome.
func RecordSyncPlan(result string) {
	SyncPlans.WithLabelValues(result).Inc()
}

// RecordDelivery counts one delivery outcome on the sync or push path.
func RecordDelivery(path, outcome string) {
	Deliveries.WithLabelValues(path, outcome).Inc()
}

// RecordFlush observes a document flush.
func RecordFlush(document string, d time.Duration) {
	StoreFlushDuration.WithLabelValues(document).Observe(d.Seconds())
}

// RecordSweep adds n removals of the given kind. Zero is ignored.
func RecordSweep(kind string, n int) {
	if n > 0 {
		SweepRemoved.WithLabelValues(kind).Add(float64(n))
	}
}

// RecordAPIRequest observes one ops API request. route is the matched
// pattern, not the raw path, to keep cardinality bounded.
func RecordAPIRequest(method, route, status string, d time.Duration) {
	APIRequests.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
