package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Storage engine metrics
	StorageEntriesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "merklekv_storage_entries_total",
			Help: "Live entries currently held by the storage engine",
		},
	)

	TombstonesGCedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "merklekv_tombstones_gc_total",
			Help: "Total tombstones removed by GC sweeps",
		},
	)

	// Command processor metrics
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merklekv_commands_total",
			Help: "Total commands processed by operation and status",
		},
		[]string{"op", "status"},
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "merklekv_command_duration_seconds",
			Help:    "Command processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	IdempotencyCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "merklekv_idempotency_cache_hits_total",
			Help: "Commands answered from the idempotency cache instead of re-applied",
		},
	)

	// Replication metrics
	ReplicationEventsPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "merklekv_replication_events_published_total",
			Help: "Replication events published to the bus",
		},
	)

	ReplicationEventsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merklekv_replication_events_applied_total",
			Help: "Inbound replication events applied, rejected, or dropped by outcome",
		},
		[]string{"outcome"},
	)

	ReplicationWatermarkLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "merklekv_replication_watermark_lag",
			Help: "Sequence gap between a peer's last-seen seq and its latest published seq",
		},
		[]string{"peer_node_id"},
	)

	// Offline queue metrics
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "merklekv_queue_depth",
			Help: "Queued operations awaiting drain, by priority",
		},
		[]string{"priority"},
	)

	QueueDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merklekv_queue_dropped_total",
			Help: "Operations dropped from the offline queue, by reason",
		},
		[]string{"reason"},
	)

	QueueDrainDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "merklekv_queue_drain_duration_seconds",
			Help:    "Time taken to drain one batch from the offline queue",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Transport metrics
	TransportReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "merklekv_transport_reconnects_total",
			Help: "Transport reconnect attempts",
		},
	)

	TransportStateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "merklekv_transport_state",
			Help: "Current transport connection state (1 = current state, else 0)",
		},
		[]string{"state"},
	)

	TransportBackoffSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "merklekv_transport_backoff_seconds",
			Help:    "Computed reconnect backoff delay in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 60},
		},
	)

	// Anti-entropy metrics
	AntiEntropyCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "merklekv_antientropy_cycle_duration_seconds",
			Help:    "Duration of one anti-entropy session",
			Buckets: prometheus.DefBuckets,
		},
	)

	AntiEntropyBucketsRepaired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "merklekv_antientropy_buckets_repaired_total",
			Help: "Buckets found divergent and repaired by anti-entropy",
		},
	)

	AntiEntropySessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merklekv_antientropy_sessions_total",
			Help: "Anti-entropy sessions by outcome",
		},
		[]string{"outcome"},
	)

	// Lifecycle / battery adapter metrics
	LifecycleSyncIntervalSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "merklekv_lifecycle_sync_interval_seconds",
			Help: "Current derived sync interval in seconds",
		},
	)

	LifecycleDeferredRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "merklekv_lifecycle_deferred_requests_total",
			Help: "Non-critical requests deferred by the battery lifecycle adapter",
		},
	)
)

func init() {
	prometheus.MustRegister(
		StorageEntriesTotal,
		TombstonesGCedTotal,
		CommandsTotal,
		CommandDuration,
		IdempotencyCacheHits,
		ReplicationEventsPublished,
		ReplicationEventsApplied,
		ReplicationWatermarkLag,
		QueueDepth,
		QueueDroppedTotal,
		QueueDrainDuration,
		TransportReconnectsTotal,
		TransportStateGauge,
		TransportBackoffSeconds,
		AntiEntropyCycleDuration,
		AntiEntropyBucketsRepaired,
		AntiEntropySessionsTotal,
		LifecycleSyncIntervalSeconds,
		LifecycleDeferredRequestsTotal,
	)
}

// Handler returns the Prometheus HTTP handler for an embedding process to
// mount at its own metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
