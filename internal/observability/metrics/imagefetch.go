// Package metrics provides custom Prometheus metrics for various components of the truthscan application.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ImageFetchMetrics contains all Prometheus metrics related to image fetch operations.
type ImageFetchMetrics struct {
	ImageDownloads   prometheus.Counter
	DownloadErrors   prometheus.Counter
	DownloadDuration prometheus.Histogram
	DownloadSize     prometheus.Histogram
	OGResolutions    prometheus.Counter
	OGResolutionErrs prometheus.Counter
	RateLimitWaits   prometheus.Counter
	RejectedImages   *prometheus.CounterVec
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	registry         *prometheus.Registry
}

// NewImageFetchMetrics creates a new instance of ImageFetchMetrics.
// It requires a Prometheus registry to register the metrics.
// It returns an error if metric registration fails.
func NewImageFetchMetrics(registry *prometheus.Registry) (*ImageFetchMetrics, error) {
	m := &ImageFetchMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize ImageFetch metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register ImageFetch metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for ImageFetchMetrics.
func (m *ImageFetchMetrics) initMetrics() error {
	m.ImageDownloads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_fetch_downloads_total",
		Help: "Total number of image downloads.",
	})

	m.DownloadErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_fetch_download_errors_total",
		Help: "Total number of image download errors.",
	})

	m.DownloadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "image_fetch_download_duration_seconds",
		Help:    "Duration of image downloads in seconds.",
		Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount10),
	})

	m.DownloadSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "image_fetch_download_size_bytes",
		Help:    "Size of downloaded images in bytes.",
		Buckets: prometheus.ExponentialBuckets(BucketStart1KB, BucketFactor2, BucketCount15),
	})

	m.OGResolutions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_fetch_og_resolutions_total",
		Help: "Total number of pages resolved to images via og:image tags.",
	})

	m.OGResolutionErrs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_fetch_og_resolution_errors_total",
		Help: "Total number of failed og:image resolutions.",
	})

	m.RateLimitWaits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_fetch_rate_limit_waits_total",
		Help: "Total number of fetches delayed by the outbound rate limiter.",
	})

	m.RejectedImages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_fetch_rejected_total",
			Help: "Total number of images rejected before download completed.",
		},
		[]string{"reason"}, // reason: too_large, bad_type, bad_url
	)

	m.CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_fetch_cache_hits_total",
		Help: "Total number of cached image blob hits.",
	})

	m.CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_fetch_cache_misses_total",
		Help: "Total number of cached image blob misses.",
	})

	return nil
}

// IncrementImageDownloads increases the image download counter by one.
func (m *ImageFetchMetrics) IncrementImageDownloads() {
	m.ImageDownloads.Inc()
}

// IncrementDownloadErrors increases the download error counter by one.
func (m *ImageFetchMetrics) IncrementDownloadErrors() {
	m.DownloadErrors.Inc()
}

// ObserveDownloadDuration records the duration of an image download operation.
// The duration should be provided in seconds.
func (m *ImageFetchMetrics) ObserveDownloadDuration(durationSeconds float64) {
	m.DownloadDuration.Observe(durationSeconds)
}

// ObserveDownloadSize records the size of a downloaded image in bytes.
func (m *ImageFetchMetrics) ObserveDownloadSize(sizeBytes float64) {
	m.DownloadSize.Observe(sizeBytes)
}

// IncrementOGResolutions increases the og:image resolution counter by one.
func (m *ImageFetchMetrics) IncrementOGResolutions() {
	m.OGResolutions.Inc()
}

// IncrementOGResolutionErrors increases the og:image resolution error counter by one.
func (m *ImageFetchMetrics) IncrementOGResolutionErrors() {
	m.OGResolutionErrs.Inc()
}

// IncrementRateLimitWaits increases the rate limiter delay counter by one.
func (m *ImageFetchMetrics) IncrementRateLimitWaits() {
	m.RateLimitWaits.Inc()
}

// RecordRejectedImage records an image rejected before download completed.
func (m *ImageFetchMetrics) RecordRejectedImage(reason string) {
	m.RejectedImages.WithLabelValues(reason).Inc()
}

// IncrementCacheHits increases the cache hit counter by one.
func (m *ImageFetchMetrics) IncrementCacheHits() {
	m.CacheHits.Inc()
}

// IncrementCacheMisses increases the cache miss counter by one.
func (m *ImageFetchMetrics) IncrementCacheMisses() {
	m.CacheMisses.Inc()
}

// Collect implements the prometheus.Collector interface.
func (m *ImageFetchMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.ImageDownloads
	ch <- m.DownloadErrors
	ch <- m.DownloadDuration
	ch <- m.DownloadSize
	ch <- m.OGResolutions
	ch <- m.OGResolutionErrs
	ch <- m.RateLimitWaits
	m.RejectedImages.Collect(ch)
	ch <- m.CacheHits
	ch <- m.CacheMisses
}

// Describe implements the prometheus.Collector interface.
func (m *ImageFetchMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.ImageDownloads.Desc()
	ch <- m.DownloadErrors.Desc()
	ch <- m.DownloadDuration.Desc()
	ch <- m.DownloadSize.Desc()
	ch <- m.OGResolutions.Desc()
	ch <- m.OGResolutionErrs.Desc()
	ch <- m.RateLimitWaits.Desc()
	m.RejectedImages.Describe(ch)
	ch <- m.CacheHits.Desc()
	ch <- m.CacheMisses.Desc()
}
