// Package observability provides metrics and monitoring capabilities for the truthscan application.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/undetectableai/truthscan-twitter-bot/internal/datastore"
	"github.com/undetectableai/truthscan-twitter-bot/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry   *prometheus.Registry
	Ingest     *metrics.IngestMetrics
	Oracle     *metrics.OracleMetrics
	ImageFetch *metrics.ImageFetchMetrics
	Page       *metrics.PageMetrics
	API        *metrics.APIMetrics
	MQTT       *metrics.MQTTMetrics
	Datastore  *metrics.DatastoreMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric collectors.
// It returns an error if any metric collector fails to initialize.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	ingestMetrics, err := metrics.NewIngestMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ingest metrics: %w", err)
	}

	oracleMetrics, err := metrics.NewOracleMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create Oracle metrics: %w", err)
	}

	imageFetchMetrics, err := metrics.NewImageFetchMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create ImageFetch metrics: %w", err)
	}

	pageMetrics, err := metrics.NewPageMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create Page metrics: %w", err)
	}

	apiMetrics, err := metrics.NewAPIMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create API metrics: %w", err)
	}

	mqttMetrics, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}

	datastoreMetrics, err := metrics.NewDatastoreMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create Datastore metrics: %w", err)
	}

	// Wire metrics into the datastore package so query instrumentation works
	datastore.SetMetrics(datastoreMetrics)

	m := &Metrics{
		registry:   registry,
		Ingest:     ingestMetrics,
		Oracle:     oracleMetrics,
		ImageFetch: imageFetchMetrics,
		Page:       pageMetrics,
		API:        apiMetrics,
		MQTT:       mqttMetrics,
		Datastore:  datastoreMetrics,
	}

	return m, nil
}

// RegisterHandlers registers the metrics endpoint with the provided http.ServeMux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/metrics", m.metricsHandler)
}

// Handler exposes the metrics endpoint for mounting on an existing router.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(m.metricsHandler)
}

// metricsHandler is the HTTP handler for the /metrics endpoint.
func (m *Metrics) metricsHandler(w http.ResponseWriter, r *http.Request) {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
	h.ServeHTTP(w, r)
}
