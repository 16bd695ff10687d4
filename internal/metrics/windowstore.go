// Package metrics provides Prometheus metrics for observability.
//
// StoreMetrics covers the externally visible behavior of a composed
// windowed store: put/fetch latency, cache hits and misses, late-write
// drops, segment lifecycle events, and cache flushes. One StoreMetrics
// value implements the recorder interfaces of the store, segment, and
// cache packages, so a single wiring step instruments the whole chain.
//
// Metrics are exposed via a dedicated HTTP server on /metrics in
// Prometheus format; see Server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultLatencyBuckets are latency buckets for store operations. This is
// a local embedded engine, so the range runs from microseconds (cached
// reads) to a second (cold disk scans).
var DefaultLatencyBuckets = []float64{
	0.0001, // 100µs
	0.00025,
	0.0005,
	0.001, // 1ms
	0.0025,
	0.005,
	0.01, // 10ms
	0.025,
	0.05,
	0.1, // 100ms
	0.25,
	0.5,
	1.0, // 1s
}

// StoreMetrics holds metrics for one windowed store.
type StoreMetrics struct {
	// PutLatency tracks put latency in seconds, labeled by status.
	PutLatency *prometheus.HistogramVec

	// FetchLatency tracks fetch and fetchAll latency in seconds, labeled
	// by operation and status.
	FetchLatency *prometheus.HistogramVec

	// FlushLatency tracks store flush latency in seconds, labeled by
	// status.
	FlushLatency *prometheus.HistogramVec

	// CacheFlushLatency tracks cache flush passes in seconds.
	CacheFlushLatency prometheus.Histogram

	// CacheFlushedEntries counts entries forwarded by cache flushes.
	CacheFlushedEntries prometheus.Counter

	// CacheHitsTotal counts fetches served at least partly from cache.
	CacheHitsTotal prometheus.Counter

	// CacheMissesTotal counts fetches that bypassed the cache entirely.
	CacheMissesTotal prometheus.Counter

	// CacheEvictionsTotal counts clean entries evicted under pressure.
	CacheEvictionsTotal prometheus.Counter

	// LateWriteDropsTotal counts writes dropped for expired windows.
	LateWriteDropsTotal prometheus.Counter

	// SegmentsCreatedTotal counts segment creations.
	SegmentsCreatedTotal prometheus.Counter

	// SegmentsExpiredTotal counts segment expirations.
	SegmentsExpiredTotal prometheus.Counter
}

// NewStoreMetrics creates and registers store metrics for the named store
// with the default registry, via promauto.
func NewStoreMetrics(storeName string) *StoreMetrics {
	return newStoreMetrics(storeName, promauto.With(prometheus.DefaultRegisterer))
}

// NewStoreMetricsWithRegistry creates store metrics registered with a
// custom registry. Useful for testing to avoid conflicts with the default
// registry.
func NewStoreMetricsWithRegistry(storeName string, reg prometheus.Registerer) *StoreMetrics {
	return newStoreMetrics(storeName, promauto.With(reg))
}

func newStoreMetrics(storeName string, factory promauto.Factory) *StoreMetrics {
	constLabels := prometheus.Labels{"store": storeName}
	return &StoreMetrics{
		PutLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   "windowkv",
				Subsystem:   "store",
				Name:        "put_latency_seconds",
				Help:        "Put latency in seconds.",
				Buckets:     DefaultLatencyBuckets,
				ConstLabels: constLabels,
			},
			[]string{"status"},
		),
		FetchLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   "windowkv",
				Subsystem:   "store",
				Name:        "fetch_latency_seconds",
				Help:        "Fetch latency in seconds.",
				Buckets:     DefaultLatencyBuckets,
				ConstLabels: constLabels,
			},
			[]string{"operation", "status"},
		),
		FlushLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   "windowkv",
				Subsystem:   "store",
				Name:        "flush_latency_seconds",
				Help:        "Store flush latency in seconds.",
				Buckets:     DefaultLatencyBuckets,
				ConstLabels: constLabels,
			},
			[]string{"status"},
		),
		CacheFlushLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace:   "windowkv",
				Subsystem:   "cache",
				Name:        "flush_latency_seconds",
				Help:        "Write-behind cache flush latency in seconds.",
				Buckets:     DefaultLatencyBuckets,
				ConstLabels: constLabels,
			},
		),
		CacheFlushedEntries: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace:   "windowkv",
				Subsystem:   "cache",
				Name:        "flushed_entries_total",
				Help:        "Total entries forwarded to the store by cache flushes.",
				ConstLabels: constLabels,
			},
		),
		CacheHitsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace:   "windowkv",
				Subsystem:   "cache",
				Name:        "hits_total",
				Help:        "Total fetches served at least partly from the cache.",
				ConstLabels: constLabels,
			},
		),
		CacheMissesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace:   "windowkv",
				Subsystem:   "cache",
				Name:        "misses_total",
				Help:        "Total fetches with no cached entries in range.",
				ConstLabels: constLabels,
			},
		),
		CacheEvictionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace:   "windowkv",
				Subsystem:   "cache",
				Name:        "evictions_total",
				Help:        "Total clean cache entries evicted under capacity pressure.",
				ConstLabels: constLabels,
			},
		),
		LateWriteDropsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace:   "windowkv",
				Subsystem:   "store",
				Name:        "late_write_drops_total",
				Help:        "Total writes dropped because their window fell out of retention.",
				ConstLabels: constLabels,
			},
		),
		SegmentsCreatedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace:   "windowkv",
				Subsystem:   "segment",
				Name:        "created_total",
				Help:        "Total segments created.",
				ConstLabels: constLabels,
			},
		),
		SegmentsExpiredTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace:   "windowkv",
				Subsystem:   "segment",
				Name:        "expired_total",
				Help:        "Total segments expired and reclaimed.",
				ConstLabels: constLabels,
			},
		),
	}
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordPut implements store.MetricsRecorder.
func (m *StoreMetrics) RecordPut(durationSeconds float64, success bool) {
	m.PutLatency.WithLabelValues(statusLabel(success)).Observe(durationSeconds)
}

// RecordFetch implements store.MetricsRecorder.
func (m *StoreMetrics) RecordFetch(durationSeconds float64, success bool) {
	m.FetchLatency.WithLabelValues("fetch", statusLabel(success)).Observe(durationSeconds)
}

// RecordFetchAll implements store.MetricsRecorder.
func (m *StoreMetrics) RecordFetchAll(durationSeconds float64, success bool) {
	m.FetchLatency.WithLabelValues("fetch_all", statusLabel(success)).Observe(durationSeconds)
}

// RecordFlush implements store.MetricsRecorder.
func (m *StoreMetrics) RecordFlush(durationSeconds float64, success bool) {
	m.FlushLatency.WithLabelValues(statusLabel(success)).Observe(durationSeconds)
}

// RecordHit implements cache.Recorder.
func (m *StoreMetrics) RecordHit() { m.CacheHitsTotal.Inc() }

// RecordMiss implements cache.Recorder.
func (m *StoreMetrics) RecordMiss() { m.CacheMissesTotal.Inc() }

// RecordEviction implements cache.Recorder.
func (m *StoreMetrics) RecordEviction() { m.CacheEvictionsTotal.Inc() }

// RecordCacheFlush implements cache.Recorder's flush hook.
func (m *StoreMetrics) RecordCacheFlush(durationSeconds float64, entries int) {
	m.CacheFlushLatency.Observe(durationSeconds)
	m.CacheFlushedEntries.Add(float64(entries))
}

// RecordLateWrite implements segment.Recorder.
func (m *StoreMetrics) RecordLateWrite() { m.LateWriteDropsTotal.Inc() }

// RecordSegmentCreated implements segment.Recorder.
func (m *StoreMetrics) RecordSegmentCreated() { m.SegmentsCreatedTotal.Inc() }

// RecordSegmentExpired implements segment.Recorder.
func (m *StoreMetrics) RecordSegmentExpired() { m.SegmentsExpiredTotal.Inc() }
