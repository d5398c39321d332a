// Package metrics provides results page metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PageMetrics contains Prometheus metrics for results page serving
type PageMetrics struct {
	registry *prometheus.Registry

	// Page serving metrics
	pageViewsTotal  *prometheus.CounterVec
	renderDuration  prometheus.Histogram
	renderCacheOps  *prometheus.CounterVec
	imageServes     *prometheus.CounterVec
	viewCountErrors prometheus.Counter

	// Short ID allocation metrics
	idGenerationAttempts prometheus.Histogram
	idCollisionsTotal    prometheus.Counter
	idExhaustionTotal    prometheus.Counter

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// NewPageMetrics creates and registers new page metrics
func NewPageMetrics(registry *prometheus.Registry) (*PageMetrics, error) {
	m := &PageMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *PageMetrics) initMetrics() error {
	m.pageViewsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "page_views_total",
			Help: "Total number of results page requests",
		},
		[]string{"status"}, // status: ok, not_found, gone
	)

	m.renderDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "page_render_duration_seconds",
		Help:    "Time taken to render a results page",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12), // 1ms to ~4s
	})

	m.renderCacheOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "page_render_cache_operations_total",
			Help: "Total number of render cache lookups",
		},
		[]string{"result"}, // result: hit, miss
	)

	m.imageServes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "page_image_serves_total",
			Help: "Total number of page image requests served",
		},
		[]string{"variant", "source"}, // variant: full, thumb; source: blob, remote, redirect
	)

	m.viewCountErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "page_view_count_errors_total",
		Help: "Total number of failed view counter increments",
	})

	m.idGenerationAttempts = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "page_id_generation_attempts",
		Help:    "Number of attempts needed to allocate a unique page ID",
		Buckets: []float64{1, 2, 3, 4, 5, 7, 10},
	})

	m.idCollisionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "page_id_collisions_total",
		Help: "Total number of page ID allocation collisions",
	})

	m.idExhaustionTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "page_id_exhaustion_total",
		Help: "Total number of page ID allocations abandoned after exhausting attempts",
	})

	m.collectors = []prometheus.Collector{
		m.pageViewsTotal,
		m.renderDuration,
		m.renderCacheOps,
		m.imageServes,
		m.viewCountErrors,
		m.idGenerationAttempts,
		m.idCollisionsTotal,
		m.idExhaustionTotal,
	}

	return nil
}

// Describe implements the prometheus.Collector interface
func (m *PageMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface
func (m *PageMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordPageView records a results page request outcome
func (m *PageMetrics) RecordPageView(status string) {
	m.pageViewsTotal.WithLabelValues(status).Inc()
}

// ObserveRenderDuration records page render time
func (m *PageMetrics) ObserveRenderDuration(durationSeconds float64) {
	m.renderDuration.Observe(durationSeconds)
}

// RecordRenderCache records a render cache lookup result
func (m *PageMetrics) RecordRenderCache(result string) {
	m.renderCacheOps.WithLabelValues(result).Inc()
}

// RecordImageServe records a served page image
func (m *PageMetrics) RecordImageServe(variant, source string) {
	m.imageServes.WithLabelValues(variant, source).Inc()
}

// IncrementViewCountErrors increments the count of failed view counter updates
func (m *PageMetrics) IncrementViewCountErrors() {
	m.viewCountErrors.Inc()
}

// ObserveIDGenerationAttempts records how many attempts an ID allocation took
func (m *PageMetrics) ObserveIDGenerationAttempts(attempts int) {
	m.idGenerationAttempts.Observe(float64(attempts))
}

// IncrementIDCollisions increments the page ID collision counter
func (m *PageMetrics) IncrementIDCollisions() {
	m.idCollisionsTotal.Inc()
}

// IncrementIDExhaustion increments the abandoned ID allocation counter
func (m *PageMetrics) IncrementIDExhaustion() {
	m.idExhaustionTotal.Inc()
}
