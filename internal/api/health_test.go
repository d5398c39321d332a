// health_test.go: readiness probe behavior.
package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
)

func TestHealthCheck_Healthy(t *testing.T) {
	h := newAPIHarness(t)

	// No API key: the probe must stay reachable for load balancers.
	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var health map[string]any
	require.NoError(t, decodeBody(rec, &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "connected", health["database_status"])
	assert.Equal(t, "ok", health["oracle_status"])
	assert.Equal(t, "production", health["environment"])
	assert.Contains(t, health, "timestamp")
	assert.Contains(t, health, "uptime_seconds")
	assert.Contains(t, health, "system")
}

func TestHealthCheck_DegradedWhenDatabaseDown(t *testing.T) {
	h := newAPIHarness(t)

	// Closing the store makes the readiness probe fail.
	require.NoError(t, h.store.Close())

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var health map[string]any
	require.NoError(t, decodeBody(rec, &health))
	assert.Equal(t, "degraded", health["status"])
	assert.Equal(t, "error", health["database_status"])
}

func TestHealthCheck_ReportsOracleStreak(t *testing.T) {
	setupHTTPMock(t)
	h := newAPIHarness(t)

	// A failed classification raises the streak but keeps the service
	// ready, since the record degrades to a null verdict.
	stubOracleStatus(http.StatusInternalServerError)
	rec := h.submitMultipart(t, jpegBytes, "image/jpeg", "")
	require.Equal(t, http.StatusOK, rec.Code)

	probe := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, probe.Code)

	var health map[string]any
	require.NoError(t, decodeBody(probe, &health))
	assert.Equal(t, "degraded", health["oracle_status"])
	assert.EqualValues(t, 1, health["oracle_failure_streak"])

	// A successful call clears it.
	stubOracleScore(0.5, 0.5)
	rec = h.submitMultipart(t, jpegBytes, "image/jpeg", "")
	require.Equal(t, http.StatusOK, rec.Code)

	probe = h.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, decodeBody(probe, &health))
	assert.Equal(t, "ok", health["oracle_status"])
	assert.EqualValues(t, 0, health["oracle_failure_streak"])
}

func TestHealthCheck_MountedWhenSubmissionsDisabled(t *testing.T) {
	h := newAPIHarness(t, func(s *conf.Settings) {
		s.DirectAPI.Enabled = false
	})

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// The submission and read routes are gone.
	post := h.do(withKey(httptest.NewRequest(http.MethodPost, "/api/v1/detections", nil)))
	assert.Equal(t, http.StatusNotFound, post.Code)
	list := h.do(withKey(httptest.NewRequest(http.MethodGet, "/api/v1/detections", nil)))
	assert.Equal(t, http.StatusNotFound, list.Code)
}
