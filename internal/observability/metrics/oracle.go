// Package metrics provides detection oracle metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OracleMetrics contains Prometheus metrics for detection oracle operations
type OracleMetrics struct {
	registry *prometheus.Registry

	// Request metrics
	requestsTotal   *prometheus.CounterVec
	requestDuration prometheus.Histogram
	httpStatusTotal *prometheus.CounterVec

	// Retry metrics
	retriesTotal         *prometheus.CounterVec
	budgetExhaustedTotal prometheus.Counter

	// Result metrics
	probabilityHist prometheus.Histogram

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// NewOracleMetrics creates and registers new oracle metrics
func NewOracleMetrics(registry *prometheus.Registry) (*OracleMetrics, error) {
	m := &OracleMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *OracleMetrics) initMetrics() error {
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_requests_total",
			Help: "Total number of detection oracle requests",
		},
		[]string{"status"}, // status: success, unavailable, rate_limited, rejected, error
	)

	m.requestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "oracle_request_duration_seconds",
		Help:    "Time taken for detection oracle requests",
		Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount10), // 100ms to ~51s
	})

	m.httpStatusTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_http_status_total",
			Help: "Total number of HTTP status codes returned by the oracle",
		},
		[]string{"status_code"},
	)

	m.retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_retries_total",
			Help: "Total number of retried oracle requests",
		},
		[]string{"reason"}, // reason: unavailable, rate_limited, network
	)

	m.budgetExhaustedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oracle_retry_budget_exhausted_total",
		Help: "Total number of classifications abandoned after the retry budget ran out",
	})

	m.probabilityHist = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "oracle_ai_probability",
		Help:    "Distribution of AI probability scores returned by the oracle",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
	})

	m.collectors = []prometheus.Collector{
		m.requestsTotal,
		m.requestDuration,
		m.httpStatusTotal,
		m.retriesTotal,
		m.budgetExhaustedTotal,
		m.probabilityHist,
	}

	return nil
}

// Describe implements the prometheus.Collector interface
func (m *OracleMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface
func (m *OracleMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordRequest records an oracle request outcome
func (m *OracleMetrics) RecordRequest(status string) {
	m.requestsTotal.WithLabelValues(status).Inc()
}

// ObserveRequestDuration records the duration of an oracle request
func (m *OracleMetrics) ObserveRequestDuration(durationSeconds float64) {
	m.requestDuration.Observe(durationSeconds)
}

// RecordHTTPStatus records an HTTP status code returned by the oracle
func (m *OracleMetrics) RecordHTTPStatus(statusCode string) {
	m.httpStatusTotal.WithLabelValues(statusCode).Inc()
}

// RecordRetry records a retried oracle request
func (m *OracleMetrics) RecordRetry(reason string) {
	m.retriesTotal.WithLabelValues(reason).Inc()
}

// IncrementBudgetExhausted increments the count of abandoned classifications
func (m *OracleMetrics) IncrementBudgetExhausted() {
	m.budgetExhaustedTotal.Inc()
}

// ObserveProbability records an AI probability score
func (m *OracleMetrics) ObserveProbability(probability float64) {
	m.probabilityHist.Observe(probability)
}
