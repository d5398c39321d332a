// api_test.go: shared harness for the API controller tests.
//
// The harness mounts the real controller on a fresh echo instance backed
// by a real SQLite datastore and the real ingestion pipeline; the oracle
// and remote images are served by httpmock. Tests that stub the default
// transport via httpmock do not run in parallel.
package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
	"github.com/undetectableai/truthscan-twitter-bot/internal/datastore"
	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
	"github.com/undetectableai/truthscan-twitter-bot/internal/imagefetch"
	"github.com/undetectableai/truthscan-twitter-bot/internal/ingest"
	"github.com/undetectableai/truthscan-twitter-bot/internal/observability"
	"github.com/undetectableai/truthscan-twitter-bot/internal/oracle"
	"github.com/undetectableai/truthscan-twitter-bot/internal/pageid"
)

const (
	oracleDetectURL = "https://oracle.test/v1/detect"
	testAPIKey      = "test-key-0123456789abcdef"
)

var jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46, 0x49, 0x46}

// setupHTTPMock activates httpmock and registers cleanup.
func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

// newTestSettings returns settings wired for fast, network-free tests: a
// temp SQLite file, the mocked oracle endpoint, and a generous rate
// limit so only the dedicated tests ever trip it.
func newTestSettings(t *testing.T) *conf.Settings {
	t.Helper()

	settings := &conf.Settings{}
	settings.Main.Name = "truthscan-test"
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = t.TempDir() + "/test.db"

	settings.Oracle.Endpoint = "https://oracle.test"
	settings.Oracle.APIKey = conf.Secret("test-api-key")
	settings.Oracle.Timeout = 2
	settings.Oracle.MaxRetries = 1
	settings.Oracle.BackoffMs = 1
	settings.Oracle.TotalBudget = 5

	settings.WebServer.PublicURL = "https://truthscan.test"

	settings.DirectAPI.Enabled = true
	settings.DirectAPI.Keys = []string{testAPIKey}
	settings.DirectAPI.RateLimit = 600
	settings.DirectAPI.RateBurst = 100
	settings.DirectAPI.MaxUploadMB = 1
	settings.DirectAPI.AllowedTypes = []string{"image/jpeg", "image/png", "image/webp"}

	return settings
}

// apiHarness bundles a mounted controller with its backing store for
// state assertions.
type apiHarness struct {
	echo       *echo.Echo
	controller *Controller
	store      datastore.Interface
	settings   *conf.Settings
}

func newAPIHarness(t *testing.T, configure ...func(*conf.Settings)) *apiHarness {
	t.Helper()

	settings := newTestSettings(t)
	for _, fn := range configure {
		fn(settings)
	}

	store := datastore.New(settings)
	require.NoError(t, store.Open(), "failed to open test database")
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	oracleClient, err := oracle.NewClient(oracle.ConfigFromSettings(settings), nil)
	require.NoError(t, err)

	obs, err := observability.NewMetrics()
	require.NoError(t, err)

	fetcher := imagefetch.New(settings, nil)
	pages := pageid.New(store, settings, nil)
	orchestrator := ingest.New(settings, store, oracleClient, fetcher, pages, obs.Ingest)

	e := echo.New()
	controller, err := New(e, store, settings, orchestrator, obs, nil)
	require.NoError(t, err)
	t.Cleanup(controller.Shutdown)

	return &apiHarness{echo: e, controller: controller, store: store, settings: settings}
}

// do serves one request through the mounted echo instance.
func (h *apiHarness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.echo.ServeHTTP(rec, req)
	return rec
}

// submitJSON posts a JSON submission with the standard test key.
func (h *apiHarness) submitJSON(body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/detections", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(apiKeyHeader, testAPIKey)
	return h.do(req)
}

// submitMultipart posts a multipart submission with the standard test key.
func (h *apiHarness) submitMultipart(t *testing.T, data []byte, contentType, metadata string) *httptest.ResponseRecorder {
	t.Helper()
	body, formType := multipartBody(t, data, contentType, metadata)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/detections", body)
	req.Header.Set(echo.HeaderContentType, formType)
	req.Header.Set(apiKeyHeader, testAPIKey)
	return h.do(req)
}

// multipartBody builds a form body with one image part and an optional
// metadata field.
func multipartBody(t *testing.T, data []byte, contentType, metadata string) (io.Reader, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="image"; filename="photo.jpg"`)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)

	if metadata != "" {
		require.NoError(t, w.WriteField("metadata", metadata))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

// stubOracleScore registers a responder that always returns the given
// probability and confidence.
func stubOracleScore(p, c float64) {
	httpmock.RegisterResponder("POST", oracleDetectURL,
		httpmock.NewStringResponder(http.StatusOK,
			`{"probability": `+formatFloat(p)+`, "confidence": `+formatFloat(c)+`}`))
}

// stubOracleStatus registers a responder that always returns the given
// HTTP status with an error envelope.
func stubOracleStatus(status int) {
	httpmock.RegisterResponder("POST", oracleDetectURL,
		httpmock.NewStringResponder(status, `{"error": "stubbed", "message": "stubbed failure"}`))
}

// stubImageURL serves image bytes for one remote URL.
func stubImageURL(url string, data []byte, contentType string) {
	httpmock.RegisterResponder("GET", url,
		func(*http.Request) (*http.Response, error) {
			resp := httpmock.NewBytesResponse(http.StatusOK, data)
			resp.Header.Set("Content-Type", contentType)
			return resp, nil
		})
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// withKey attaches the standard test key to a request.
func withKey(req *http.Request) *http.Request {
	req.Header.Set(apiKeyHeader, testAPIKey)
	return req
}

// decodeBody unmarshals a recorded response body into v.
func decodeBody(rec *httptest.ResponseRecorder, v any) error {
	return json.Unmarshal(rec.Body.Bytes(), v)
}

// decodeSubmit unmarshals a submission response body.
func decodeSubmit(t *testing.T, rec *httptest.ResponseRecorder) SubmitResponse {
	t.Helper()
	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), "body: %s", rec.Body.String())
	return resp
}

// decodeError unmarshals an error envelope body.
func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), "body: %s", rec.Body.String())
	return resp
}

// oracleCalls reports how many requests reached the mocked oracle.
func oracleCalls() int {
	return httpmock.GetCallCountInfo()["POST "+oracleDetectURL]
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	validation := errors.Newf("bad field").Category(errors.CategoryValidation).Component("api").Build()
	fetch := errors.Newf("%w: text/plain", imagefetch.ErrUnsupportedType).
		Category(errors.CategoryImageFetch).Component("imagefetch").Build()

	tests := []struct {
		name string
		err  error
		code int
		want string
	}{
		{"validation category", validation, http.StatusBadRequest, "ValidationError"},
		{"image fetch category", fetch, http.StatusBadRequest, "InvalidImage"},
		{"plain 401", errMissingAPIKey, http.StatusUnauthorized, "Unauthorized"},
		{"plain 429", errRateLimited, http.StatusTooManyRequests, "RateLimited"},
		{"plain 413", errors.NewStd("too big"), http.StatusRequestEntityTooLarge, "PayloadTooLarge"},
		{"unknown 500", errors.NewStd("boom"), http.StatusInternalServerError, "InternalError"},
		{"unknown 404", errors.NewStd("nope"), http.StatusNotFound, "NotFoundError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorKind(tt.err, tt.code))
		})
	}
}

func TestGenerateCorrelationID(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for range 64 {
		id := generateCorrelationID()
		assert.Len(t, id, 8)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 1, "ids must not all collide")
}
