// Package telemetry exposes the gateway's runtime state as Prometheus
// metrics at /metrics, a sibling of the plain-JSON /v1/memory inspection
// endpoint.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects every gauge/counter the gateway updates as it runs.
// One instance is built at startup and registered against the default
// Prometheus registry.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	HeartbeatsSent  prometheus.Counter

	CredentialPoolSize   prometheus.Gauge
	CredentialsDisabled  prometheus.Gauge
	RotatorIndex         prometheus.Gauge
	QuotaCacheHits       prometheus.Counter
	QuotaCacheMisses     prometheus.Counter
	MemoryTier           prometheus.Gauge
	MemoryHeapBytes      prometheus.Gauge
	MemoryPeakHeapBytes  prometheus.Gauge
	MemoryCleanupRuns    prometheus.Gauge
	BreakerOpenTotal     *prometheus.CounterVec
	QuotaExhaustedTotal  prometheus.Counter
}

// New builds and registers the gateway's metric set. Calling it twice
// against the same registerer panics, matching promauto's own contract;
// callers build exactly one Metrics per process.
func New() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "antigravity_gateway",
			Name:      "requests_total",
			Help:      "Chat requests handled, by surface and outcome.",
		}, []string{"surface", "outcome"}),

		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "antigravity_gateway",
			Name:      "request_duration_seconds",
			Help:      "End-to-end handler latency, by surface.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"surface"}),

		HeartbeatsSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "antigravity_gateway",
			Name:      "heartbeats_sent_total",
			Help:      "SSE heartbeat comment lines written across all open streams.",
		}),

		CredentialPoolSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "antigravity_gateway",
			Name:      "credential_pool_size",
			Help:      "Number of credentials currently known to the store.",
		}),

		CredentialsDisabled: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "antigravity_gateway",
			Name:      "credentials_disabled",
			Help:      "Number of credentials currently disabled (refresh-fatal or quota-exhausted).",
		}),

		RotatorIndex: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "antigravity_gateway",
			Name:      "rotator_index",
			Help:      "Current position of the round-robin/least-recently-used rotator cursor.",
		}),

		QuotaCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "antigravity_gateway",
			Name:      "quota_cache_hits_total",
			Help:      "Quota cache reads served from a fresh record.",
		}),

		QuotaCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "antigravity_gateway",
			Name:      "quota_cache_misses_total",
			Help:      "Quota cache reads that found no fresh record.",
		}),

		MemoryTier: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "antigravity_gateway",
			Name:      "memory_tier",
			Help:      "Current memory pressure tier (0=low, 1=medium, 2=high, 3=critical).",
		}),

		MemoryHeapBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "antigravity_gateway",
			Name:      "memory_heap_bytes",
			Help:      "Current heap allocation as sampled by the memory regulator.",
		}),

		MemoryPeakHeapBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "antigravity_gateway",
			Name:      "memory_peak_heap_bytes",
			Help:      "Peak heap allocation observed since process start.",
		}),

		MemoryCleanupRuns: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "antigravity_gateway",
			Name:      "memory_cleanup_runs",
			Help:      "Number of forced GC cleanup runs the memory regulator has triggered.",
		}),

		BreakerOpenTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "antigravity_gateway",
			Name:      "breaker_open_total",
			Help:      "Circuit breaker state transitions into the open state, by credential.",
		}, []string{"credential"}),

		QuotaExhaustedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "antigravity_gateway",
			Name:      "quota_exhausted_total",
			Help:      "Credentials marked quota-exhausted after exhausting their 429 retries.",
		}),
	}
}
