// Package datastore provides type aliases and integration with the observability metrics package
package datastore

import (
	"sync"

	"github.com/undetectableai/truthscan-twitter-bot/internal/observability/metrics"
)

// Metrics is a type alias for the metrics.DatastoreMetrics
// This allows us to use the metrics throughout the datastore package
type Metrics = metrics.DatastoreMetrics

var (
	dsMetrics   *Metrics
	dsMetricsMu sync.RWMutex
)

// SetMetrics wires the datastore metrics instance. Called once during
// observability setup, before any store is opened.
func SetMetrics(m *Metrics) {
	dsMetricsMu.Lock()
	defer dsMetricsMu.Unlock()
	dsMetrics = m
}

// getMetrics returns the wired metrics instance, or nil when metrics
// are disabled.
func getMetrics() *Metrics {
	dsMetricsMu.RLock()
	defer dsMetricsMu.RUnlock()
	return dsMetrics
}
