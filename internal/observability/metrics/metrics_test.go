package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestMetricsRecordVerdict(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewIngestMetrics(registry)
	require.NoError(t, err)

	testCases := []struct {
		name    string
		verdict string
		source  string
	}{
		{"ai verdict from mention", "ai_generated", "mention"},
		{"human verdict from mention", "human_created", "mention"},
		{"uncertain verdict from api", "uncertain", "api"},
		{"unsupported from api", "unsupported", "api"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m.RecordVerdict(tc.verdict, tc.source)

			count := testutil.ToFloat64(m.verdictsTotal.WithLabelValues(tc.verdict, tc.source))
			assert.Equal(t, float64(1), count)
		})
	}
}

func TestIngestMetricsWebhookCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewIngestMetrics(registry)
	require.NoError(t, err)

	m.RecordWebhookEvent("mention", "accepted")
	m.RecordWebhookEvent("mention", "accepted")
	m.RecordWebhookEvent("other", "ignored")
	m.IncrementSignatureFailures()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.webhookEventsTotal.WithLabelValues("mention", "accepted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.webhookEventsTotal.WithLabelValues("other", "ignored")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.signatureFailuresTotal))
}

func TestOracleMetricsRequests(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewOracleMetrics(registry)
	require.NoError(t, err)

	m.RecordRequest("success")
	m.RecordRequest("unavailable")
	m.RecordRequest("unavailable")
	m.RecordRetry("unavailable")
	m.RecordHTTPStatus("503")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.requestsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.requestsTotal.WithLabelValues("unavailable")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.retriesTotal.WithLabelValues("unavailable")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpStatusTotal.WithLabelValues("503")))
}

func TestOracleMetricsProbabilityHistogram(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewOracleMetrics(registry)
	require.NoError(t, err)

	m.ObserveProbability(0.92)
	m.ObserveProbability(0.15)
	m.ObserveProbability(0.5)

	metric := &dto.Metric{}
	require.NoError(t, m.probabilityHist.Write(metric))
	require.NotNil(t, metric.Histogram)
	assert.Equal(t, uint64(3), metric.Histogram.GetSampleCount())
	assert.InDelta(t, 1.57, metric.Histogram.GetSampleSum(), 0.0001)
}

func TestPageMetricsIDGeneration(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewPageMetrics(registry)
	require.NoError(t, err)

	m.ObserveIDGenerationAttempts(1)
	m.ObserveIDGenerationAttempts(3)
	m.IncrementIDCollisions()
	m.IncrementIDCollisions()
	m.IncrementIDExhaustion()

	metric := &dto.Metric{}
	require.NoError(t, m.idGenerationAttempts.Write(metric))
	assert.Equal(t, uint64(2), metric.Histogram.GetSampleCount())

	assert.Equal(t, float64(2), testutil.ToFloat64(m.idCollisionsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.idExhaustionTotal))
}

func TestPageMetricsViews(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewPageMetrics(registry)
	require.NoError(t, err)

	m.RecordPageView("ok")
	m.RecordPageView("gone")
	m.RecordRenderCache(LabelHit)
	m.RecordRenderCache(LabelMiss)
	m.RecordImageServe("full", "blob")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.pageViewsTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.pageViewsTotal.WithLabelValues("gone")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.renderCacheOps.WithLabelValues(LabelHit)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.imageServes.WithLabelValues("full", "blob")))
}

func TestAPIMetricsSubmissions(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewAPIMetrics(registry)
	require.NoError(t, err)

	m.RecordSubmission("accepted")
	m.RecordSubmission("too_large")
	m.IncrementAuthFailures()
	m.IncrementRateLimited()
	m.RecordRequest("create-results-page", "200")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.submissionsTotal.WithLabelValues("accepted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.submissionsTotal.WithLabelValues("too_large")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.authFailuresTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.rateLimitedTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requestsTotal.WithLabelValues("create-results-page", "200")))
}

func TestImageFetchMetricsRejections(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewImageFetchMetrics(registry)
	require.NoError(t, err)

	m.RecordRejectedImage("too_large")
	m.RecordRejectedImage("bad_type")
	m.RecordRejectedImage("bad_type")
	m.IncrementCacheHits()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RejectedImages.WithLabelValues("too_large")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RejectedImages.WithLabelValues("bad_type")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheHits))
}

func TestDatastoreMetricsErrorAlsoCountsOperation(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewDatastoreMetrics(registry)
	require.NoError(t, err)

	m.RecordDbOperationError("save", "detections", "conflict")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.dbOperationErrorsTotal.WithLabelValues("save", "detections", "conflict")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.dbOperationsTotal.WithLabelValues("save", "detections", LabelError)))
}

func TestMQTTMetricsConnectionStatus(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewMQTTMetrics(registry)
	require.NoError(t, err)

	m.UpdateConnectionStatus(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ConnectionStatus))

	m.UpdateConnectionStatus(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ConnectionStatus))

	m.IncrementMessagesDelivered()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MessagesDelivered))
}
