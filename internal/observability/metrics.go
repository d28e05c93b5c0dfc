package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting gateway metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Snapshot collection latency and outcome per source (ntm, beads, tools, agent_mail)
//   - Tool probe latency and availability outcomes
//   - Event hub publish and drop counts
//   - Context health status per session band
//   - Registry load outcomes by error category
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	timer := prometheus.NewTimer(metrics.CollectionDuration.WithLabelValues("ntm"))
//	defer timer.ObserveDuration()
type Metrics struct {
	// CollectionDuration measures per-source snapshot collection latency in seconds.
	// Labels: source (ntm|beads|tools|agent_mail)
	// Buckets: 0.01s, 0.05s, 0.1s, 0.25s, 0.5s, 1s, 2.5s, 5s
	CollectionDuration *prometheus.HistogramVec

	// CollectionCounter counts snapshot collections by source and outcome.
	// Labels: source, status (success|error|timeout)
	CollectionCounter *prometheus.CounterVec

	// SnapshotCacheCounter counts snapshot cache hits and misses.
	// Labels: result (hit|miss|bypass)
	SnapshotCacheCounter *prometheus.CounterVec

	// ProbeDuration measures CLI probe latency in seconds.
	// Labels: tool
	ProbeDuration *prometheus.HistogramVec

	// ProbeCounter counts probes by tool and availability outcome.
	// Labels: tool, available (true|false)
	ProbeCounter *prometheus.CounterVec

	// RegistryLoadCounter counts registry loads by source and error category.
	// Labels: source (manifest|fallback), error_category ("" when clean)
	RegistryLoadCounter *prometheus.CounterVec

	// HubPublished counts events published through the hub.
	// Labels: channel_type
	HubPublished *prometheus.CounterVec

	// HubDropped counts events dropped for slow subscribers.
	// Labels: channel_type
	HubDropped *prometheus.CounterVec

	// ContextSessions is a gauge of registered sessions by status band.
	// Labels: status (healthy|warning|critical|emergency)
	ContextSessions *prometheus.GaugeVec

	// ContextInterventions counts automated interventions.
	// Labels: kind (warning|compaction|rotation), result (ok|failed|skipped)
	ContextInterventions *prometheus.CounterVec

	// SweepDuration measures sweep job run time in seconds.
	// Labels: job
	SweepDuration *prometheus.HistogramVec

	// InFlightRequests is a gauge of requests currently admitted by the
	// maintenance coordinator.
	InFlightRequests prometheus.Gauge

	// WSConnections is a gauge of live websocket event subscribers.
	WSConnections prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics with the default
// registry. Call once at startup; the /metrics endpoint serves them.
func NewMetrics() *Metrics {
	return NewMetricsWith(nil)
}

// NewMetricsWith registers metrics against the given registerer. A nil
// registerer uses the Prometheus default. Tests pass their own registry to
// avoid duplicate-registration panics.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	if reg == nil {
		factory = promauto.With(prometheus.DefaultRegisterer)
	}

	return &Metrics{
		CollectionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opsgate_collection_duration_seconds",
				Help:    "Duration of per-source snapshot collection in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"source"},
		),

		CollectionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsgate_collections_total",
				Help: "Total snapshot collections by source and outcome",
			},
			[]string{"source", "status"},
		),

		SnapshotCacheCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsgate_snapshot_cache_total",
				Help: "Snapshot cache lookups by result",
			},
			[]string{"result"},
		),

		ProbeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opsgate_probe_duration_seconds",
				Help:    "Duration of CLI probes in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"tool"},
		),

		ProbeCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsgate_probes_total",
				Help: "Total CLI probes by tool and availability",
			},
			[]string{"tool", "available"},
		),

		RegistryLoadCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsgate_registry_loads_total",
				Help: "Registry loads by source and error category",
			},
			[]string{"source", "error_category"},
		),

		HubPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsgate_hub_events_published_total",
				Help: "Events published through the hub by channel type",
			},
			[]string{"channel_type"},
		),

		HubDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsgate_hub_events_dropped_total",
				Help: "Events dropped for slow subscribers by channel type",
			},
			[]string{"channel_type"},
		),

		ContextSessions: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "opsgate_context_sessions",
				Help: "Registered sessions by health status band",
			},
			[]string{"status"},
		),

		ContextInterventions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsgate_context_interventions_total",
				Help: "Automated context-health interventions by kind and result",
			},
			[]string{"kind", "result"},
		),

		SweepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opsgate_sweep_duration_seconds",
				Help:    "Duration of sweep jobs in seconds",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"job"},
		),

		InFlightRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "opsgate_inflight_requests",
				Help: "Requests currently admitted past the maintenance gate",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "opsgate_ws_connections",
				Help: "Live websocket event subscribers",
			},
		),
	}
}
