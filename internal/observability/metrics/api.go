// Package metrics provides direct submission API metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// APIMetrics contains Prometheus metrics for the direct submission API
type APIMetrics struct {
	registry *prometheus.Registry

	// Request metrics
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	submissionBytes prometheus.Histogram

	// Rejection metrics
	authFailuresTotal prometheus.Counter
	rateLimitedTotal  prometheus.Counter
	submissionsTotal  *prometheus.CounterVec

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// NewAPIMetrics creates and registers new API metrics
func NewAPIMetrics(registry *prometheus.Registry) (*APIMetrics, error) {
	m := &APIMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *APIMetrics) initMetrics() error {
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"endpoint", "status_code"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Time taken to serve API requests",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12), // 10ms to ~40s
		},
		[]string{"endpoint"},
	)

	m.submissionBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "api_submission_size_bytes",
		Help:    "Size of submitted image payloads in bytes",
		Buckets: prometheus.ExponentialBuckets(BucketStart1KB, BucketFactor2, BucketCount15),
	})

	m.authFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "api_auth_failures_total",
		Help: "Total number of API requests rejected for missing or invalid keys",
	})

	m.rateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "api_rate_limited_total",
		Help: "Total number of API requests rejected by the rate limiter",
	})

	m.submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_submissions_total",
			Help: "Total number of direct submissions by outcome",
		},
		[]string{"outcome"}, // outcome: accepted, invalid, too_large, unsupported_type, failed
	)

	m.collectors = []prometheus.Collector{
		m.requestsTotal,
		m.requestDuration,
		m.submissionBytes,
		m.authFailuresTotal,
		m.rateLimitedTotal,
		m.submissionsTotal,
	}

	return nil
}

// Describe implements the prometheus.Collector interface
func (m *APIMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface
func (m *APIMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordRequest records an API request with its response status
func (m *APIMetrics) RecordRequest(endpoint, statusCode string) {
	m.requestsTotal.WithLabelValues(endpoint, statusCode).Inc()
}

// ObserveRequestDuration records the time taken to serve an API request
func (m *APIMetrics) ObserveRequestDuration(endpoint string, durationSeconds float64) {
	m.requestDuration.WithLabelValues(endpoint).Observe(durationSeconds)
}

// ObserveSubmissionSize records the size of a submitted payload
func (m *APIMetrics) ObserveSubmissionSize(sizeBytes float64) {
	m.submissionBytes.Observe(sizeBytes)
}

// IncrementAuthFailures increments the count of rejected API keys
func (m *APIMetrics) IncrementAuthFailures() {
	m.authFailuresTotal.Inc()
}

// IncrementRateLimited increments the count of rate limited requests
func (m *APIMetrics) IncrementRateLimited() {
	m.rateLimitedTotal.Inc()
}

// RecordSubmission records a direct submission outcome
func (m *APIMetrics) RecordSubmission(outcome string) {
	m.submissionsTotal.WithLabelValues(outcome).Inc()
}
