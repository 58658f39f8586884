// Package metrics provides Prometheus metrics for xpsync.
// Counters, gauges and histograms for synchronization, event fan-out and the
// reference stats gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Synchronization ────────────────────────────────────────────────────────

// SyncAttempts tracks gateway calls by workflow (xp, profile, challenge, freeze, force).
var SyncAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "xpsync",
	Name:      "sync_attempts_total",
	Help:      "Total gateway sync attempts.",
}, []string{"workflow"})

// SyncFailures tracks failed gateway calls by workflow and error class.
var SyncFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "xpsync",
	Name:      "sync_failures_total",
	Help:      "Total failed gateway sync attempts.",
}, []string{"workflow", "class"})

// SyncLatency tracks gateway round-trip duration.
var SyncLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "xpsync",
	Name:      "sync_latency_seconds",
	Help:      "Gateway round-trip latency in seconds.",
	Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
}, []string{"workflow"})

// SyncsSkipped tracks profile syncs dropped inside their rate window.
var SyncsSkipped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "xpsync",
	Name:      "syncs_skipped_total",
	Help:      "Profile syncs dropped by the rate limiter.",
})

// StaleResponses tracks responses discarded by the sequence guard.
var StaleResponses = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "xpsync",
	Name:      "stale_responses_total",
	Help:      "Gateway responses discarded because a newer sync was already applied.",
})

// XPCoalesced tracks XP requests folded into a debounced call.
var XPCoalesced = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "xpsync",
	Name:      "xp_requests_coalesced_total",
	Help:      "XP requests folded into a single debounced gateway call.",
})

// PendingSyncs tracks in-flight reconciliations.
var PendingSyncs = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "xpsync",
	Name:      "pending_syncs",
	Help:      "Number of in-flight gateway reconciliations.",
})

// ConnectivityProbes tracks scheduled gateway health probes by outcome.
var ConnectivityProbes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "xpsync",
	Name:      "connectivity_probes_total",
	Help:      "Gateway health probes run by the scheduler.",
}, []string{"result"})

// ─── Events ─────────────────────────────────────────────────────────────────

// EventsPublished tracks events delivered through the bus by kind.
var EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "xpsync",
	Name:      "events_published_total",
	Help:      "Total events published by kind.",
}, []string{"kind"})

// ListenerPanics tracks listeners that panicked during delivery.
var ListenerPanics = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "xpsync",
	Name:      "listener_panics_total",
	Help:      "Listeners recovered from a panic during publish.",
})

// ─── Reference Gateway ──────────────────────────────────────────────────────

// XPAwarded tracks XP granted by the reference server by source.
var XPAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "xpsync",
	Name:      "gateway_xp_awarded_total",
	Help:      "XP granted by the reference stats gateway.",
}, []string{"source"})

// ChallengesScored tracks challenge submissions on the reference server.
var ChallengesScored = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "xpsync",
	Name:      "gateway_challenges_scored_total",
	Help:      "Challenge submissions scored by the reference stats gateway.",
})
