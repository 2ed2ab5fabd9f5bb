package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/skyforge/fitsflow/pkg/previewcache"
	"github.com/skyforge/fitsflow/pkg/storage/tempcache"
)

// tempCacheMetrics is the Prometheus implementation of
// tempcache.Metrics.
type tempCacheMetrics struct {
	lookups      *prometheus.CounterVec
	evictedFiles prometheus.Counter
	evictedBytes prometheus.Counter
	sizeBytes    prometheus.Gauge
}

// NewTempCacheMetrics creates temp-cache instrumentation, nil when
// metrics are disabled.
func NewTempCacheMetrics() tempcache.Metrics {
	reg := GetRegistry()
	if reg == nil {
		return nil
	}

	return &tempCacheMetrics{
		lookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitsflow_tempcache_lookups_total",
				Help: "Temp cache lookups by outcome",
			},
			[]string{"status"}, // "hit", "miss"
		),
		evictedFiles: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fitsflow_tempcache_evicted_files_total",
				Help: "Files evicted from the temp cache",
			},
		),
		evictedBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fitsflow_tempcache_evicted_bytes_total",
				Help: "Bytes evicted from the temp cache",
			},
		),
		sizeBytes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "fitsflow_tempcache_size_bytes",
				Help: "Current temp cache footprint",
			},
		),
	}
}

func (m *tempCacheMetrics) Hit()  { m.lookups.WithLabelValues("hit").Inc() }
func (m *tempCacheMetrics) Miss() { m.lookups.WithLabelValues("miss").Inc() }

func (m *tempCacheMetrics) Evicted(files int, bytes int64) {
	m.evictedFiles.Add(float64(files))
	m.evictedBytes.Add(float64(bytes))
}

func (m *tempCacheMetrics) SetSize(bytes int64) {
	m.sizeBytes.Set(float64(bytes))
}

// previewCacheMetrics is the Prometheus implementation of
// previewcache.Metrics.
type previewCacheMetrics struct {
	lookups      *prometheus.CounterVec
	evicted      prometheus.Counter
	evictedBytes prometheus.Counter
	entries      prometheus.Gauge
	sizeBytes    prometheus.Gauge
}

// NewPreviewCacheMetrics creates reprojection-cache instrumentation,
// nil when metrics are disabled.
func NewPreviewCacheMetrics() previewcache.Metrics {
	reg := GetRegistry()
	if reg == nil {
		return nil
	}

	return &previewCacheMetrics{
		lookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitsflow_previewcache_lookups_total",
				Help: "Reprojection cache lookups by outcome",
			},
			[]string{"status"}, // "hit", "miss"
		),
		evicted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fitsflow_previewcache_evicted_total",
				Help: "Entries evicted from the reprojection cache",
			},
		),
		evictedBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fitsflow_previewcache_evicted_bytes_total",
				Help: "Bytes evicted from the reprojection cache",
			},
		),
		entries: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "fitsflow_previewcache_entries",
				Help: "Current reprojection cache entry count",
			},
		),
		sizeBytes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "fitsflow_previewcache_size_bytes",
				Help: "Current reprojection cache footprint",
			},
		),
	}
}

func (m *previewCacheMetrics) Hit()  { m.lookups.WithLabelValues("hit").Inc() }
func (m *previewCacheMetrics) Miss() { m.lookups.WithLabelValues("miss").Inc() }

func (m *previewCacheMetrics) Evicted(entries int, bytes int64) {
	m.evicted.Add(float64(entries))
	m.evictedBytes.Add(float64(bytes))
}

func (m *previewCacheMetrics) SetSize(entries int, bytes int64) {
	m.entries.Set(float64(entries))
	m.sizeBytes.Set(float64(bytes))
}
