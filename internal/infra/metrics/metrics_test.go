package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestSyncMetrics(t *testing.T) {
	SyncAttempts.WithLabelValues("xp").Inc()
	SyncFailures.WithLabelValues("xp", "transient_network_failure").Inc()
	SyncLatency.WithLabelValues("profile").Observe(0.12)
	SyncsSkipped.Inc()
	StaleResponses.Inc()
	XPCoalesced.Inc()
	PendingSyncs.Set(2)
	ConnectivityProbes.WithLabelValues("ok").Inc()

	names := gatheredNames(t)
	expected := []string{
		"xpsync_sync_attempts_total",
		"xpsync_sync_failures_total",
		"xpsync_sync_latency_seconds",
		"xpsync_syncs_skipped_total",
		"xpsync_stale_responses_total",
		"xpsync_xp_requests_coalesced_total",
		"xpsync_pending_syncs",
		"xpsync_connectivity_probes_total",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestEventMetrics(t *testing.T) {
	EventsPublished.WithLabelValues("xp_added").Inc()
	ListenerPanics.Inc()

	names := gatheredNames(t)
	if !names["xpsync_events_published_total"] {
		t.Error("xpsync_events_published_total not found")
	}
	if !names["xpsync_listener_panics_total"] {
		t.Error("xpsync_listener_panics_total not found")
	}
}

func TestGatewayMetrics(t *testing.T) {
	XPAwarded.WithLabelValues("course").Add(50)
	ChallengesScored.Inc()

	names := gatheredNames(t)
	if !names["xpsync_gateway_xp_awarded_total"] {
		t.Error("xpsync_gateway_xp_awarded_total not found")
	}
	if !names["xpsync_gateway_challenges_scored_total"] {
		t.Error("xpsync_gateway_challenges_scored_total not found")
	}
}

func TestAllMetricsGatherable(t *testing.T) {
	TestSyncMetrics(t)
	TestEventMetrics(t)
	TestGatewayMetrics(t)

	count := 0
	for name := range gatheredNames(t) {
		if strings.HasPrefix(name, "xpsync_") {
			count++
		}
	}
	if count < 12 {
		t.Errorf("expected at least 12 xpsync_ metrics, got %d", count)
	}
}
