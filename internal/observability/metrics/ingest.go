// Package metrics provides custom Prometheus metrics for various components of the truthscan application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics contains Prometheus metrics for webhook and mention processing
type IngestMetrics struct {
	registry *prometheus.Registry

	// Webhook delivery metrics
	webhookEventsTotal     *prometheus.CounterVec
	crcChallengesTotal     *prometheus.CounterVec
	signatureFailuresTotal prometheus.Counter

	// Mention processing metrics
	mentionsProcessedTotal    *prometheus.CounterVec
	mentionProcessingDuration prometheus.Histogram
	imagesPerMention          prometheus.Histogram

	// Outcome metrics
	detectionsCreatedTotal *prometheus.CounterVec
	verdictsTotal          *prometheus.CounterVec
	repliesTotal           *prometheus.CounterVec

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// NewIngestMetrics creates and registers new ingest metrics
func NewIngestMetrics(registry *prometheus.Registry) (*IngestMetrics, error) {
	m := &IngestMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *IngestMetrics) initMetrics() error {
	m.webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_webhook_events_total",
			Help: "Total number of webhook events received",
		},
		[]string{"event_type", "status"}, // event_type: mention, other; status: accepted, rejected, ignored
	)

	m.crcChallengesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_crc_challenges_total",
			Help: "Total number of CRC handshake challenges answered",
		},
		[]string{"status"},
	)

	m.signatureFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingest_signature_failures_total",
		Help: "Total number of webhook payloads rejected for bad signatures",
	})

	m.mentionsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_mentions_processed_total",
			Help: "Total number of mention events processed",
		},
		[]string{"status"}, // status: completed, partial, failed, duplicate, no_images
	)

	m.mentionProcessingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_mention_processing_duration_seconds",
		Help:    "Time taken to process a mention end to end",
		Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount12), // 100ms to ~3m
	})

	m.imagesPerMention = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_images_per_mention",
		Help:    "Number of candidate images extracted per mention event",
		Buckets: []float64{0, 1, 2, 3, 4, 6, 8},
	})

	m.detectionsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_detections_created_total",
			Help: "Total number of detection records created",
		},
		[]string{"source"}, // source: mention, api
	)

	m.verdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_verdicts_total",
			Help: "Total number of classification verdicts reached",
		},
		[]string{"verdict", "source"}, // verdict: ai_generated, human_created, uncertain, unsupported
	)

	m.repliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_replies_total",
			Help: "Total number of reply attempts to mentions",
		},
		[]string{"status"},
	)

	m.collectors = []prometheus.Collector{
		m.webhookEventsTotal,
		m.crcChallengesTotal,
		m.signatureFailuresTotal,
		m.mentionsProcessedTotal,
		m.mentionProcessingDuration,
		m.imagesPerMention,
		m.detectionsCreatedTotal,
		m.verdictsTotal,
		m.repliesTotal,
	}

	return nil
}

// Describe implements the prometheus.Collector interface
func (m *IngestMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface
func (m *IngestMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordWebhookEvent records a received webhook event
func (m *IngestMetrics) RecordWebhookEvent(eventType, status string) {
	m.webhookEventsTotal.WithLabelValues(eventType, status).Inc()
}

// RecordCRCChallenge records an answered CRC handshake challenge
func (m *IngestMetrics) RecordCRCChallenge(status string) {
	m.crcChallengesTotal.WithLabelValues(status).Inc()
}

// IncrementSignatureFailures increments the count of rejected webhook signatures
func (m *IngestMetrics) IncrementSignatureFailures() {
	m.signatureFailuresTotal.Inc()
}

// RecordMentionProcessed records the outcome of one mention event
func (m *IngestMetrics) RecordMentionProcessed(status string) {
	m.mentionsProcessedTotal.WithLabelValues(status).Inc()
}

// ObserveMentionProcessingDuration records end to end mention processing time
func (m *IngestMetrics) ObserveMentionProcessingDuration(durationSeconds float64) {
	m.mentionProcessingDuration.Observe(durationSeconds)
}

// ObserveImagesPerMention records how many candidate images a mention carried
func (m *IngestMetrics) ObserveImagesPerMention(count int) {
	m.imagesPerMention.Observe(float64(count))
}

// RecordDetectionCreated records a new detection record
func (m *IngestMetrics) RecordDetectionCreated(source string) {
	m.detectionsCreatedTotal.WithLabelValues(source).Inc()
}

// RecordVerdict records a classification verdict
func (m *IngestMetrics) RecordVerdict(verdict, source string) {
	m.verdictsTotal.WithLabelValues(verdict, source).Inc()
}

// RecordReply records a reply attempt outcome
func (m *IngestMetrics) RecordReply(status string) {
	m.repliesTotal.WithLabelValues(status).Inc()
}
