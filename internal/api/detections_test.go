// detections_test.go: read surface behavior over stored detections.
package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undetectableai/truthscan-twitter-bot/internal/datastore"
)

// seedSubmission creates one detection through the pipeline and returns
// its response. The caller stubs the oracle first.
func seedSubmission(t *testing.T, h *apiHarness, idempotencyKey string) SubmitResponse {
	t.Helper()
	rec := h.submitMultipart(t, jpegBytes, "image/jpeg",
		fmt.Sprintf(`{"idempotencyKey": %q}`, idempotencyKey))
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	return decodeSubmit(t, rec)
}

func TestGetDetections_Pagination(t *testing.T) {
	setupHTTPMock(t)
	h := newAPIHarness(t)
	stubOracleScore(0.9, 0.8)

	for i := range 3 {
		seedSubmission(t, h, fmt.Sprintf("page-test-%d", i))
	}

	rec := h.do(withKey(httptest.NewRequest(http.MethodGet, "/api/v1/detections?limit=2", nil)))
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var page1 struct {
		Data        []DetectionResponse `json:"data"`
		Total       int64               `json:"total"`
		Limit       int                 `json:"limit"`
		Offset      int                 `json:"offset"`
		CurrentPage int                 `json:"current_page"`
		TotalPages  int                 `json:"total_pages"`
	}
	require.NoError(t, decodeBody(rec, &page1))
	assert.Len(t, page1.Data, 2)
	assert.EqualValues(t, 3, page1.Total)
	assert.Equal(t, 2, page1.Limit)
	assert.Equal(t, 1, page1.CurrentPage)
	assert.Equal(t, 2, page1.TotalPages)

	for _, d := range page1.Data {
		assert.NotEmpty(t, d.ID)
		assert.NotEmpty(t, d.PageID)
		assert.Equal(t, "https://truthscan.test/d/"+d.PageID, d.PageURL)
		assert.Equal(t, datastore.SourceAPI, d.Source)
	}

	rec = h.do(withKey(httptest.NewRequest(http.MethodGet, "/api/v1/detections?limit=2&offset=2", nil)))
	require.Equal(t, http.StatusOK, rec.Code)

	var page2 struct {
		Data        []DetectionResponse `json:"data"`
		CurrentPage int                 `json:"current_page"`
	}
	require.NoError(t, decodeBody(rec, &page2))
	assert.Len(t, page2.Data, 1)
	assert.Equal(t, 2, page2.CurrentPage)
}

func TestGetDetections_VerdictFilter(t *testing.T) {
	setupHTTPMock(t)
	h := newAPIHarness(t)

	stubOracleScore(0.92, 0.9)
	ai := seedSubmission(t, h, "filter-ai")

	stubOracleScore(0.08, 0.9)
	seedSubmission(t, h, "filter-human")

	query := url.Values{}
	query.Set("verdict", datastore.ResultAIGenerated)
	rec := h.do(withKey(httptest.NewRequest(http.MethodGet, "/api/v1/detections?"+query.Encode(), nil)))
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var page struct {
		Data  []DetectionResponse `json:"data"`
		Total int64               `json:"total"`
	}
	require.NoError(t, decodeBody(rec, &page))
	require.Len(t, page.Data, 1)
	assert.EqualValues(t, 1, page.Total)
	assert.Equal(t, ai.PageID, page.Data[0].PageID)
	assert.Equal(t, datastore.ResultAIGenerated, page.Data[0].FinalResult)
}

func TestGetDetections_HandleFilter(t *testing.T) {
	setupHTTPMock(t)
	h := newAPIHarness(t)
	stubOracleScore(0.5, 0.5)

	rec := h.submitMultipart(t, jpegBytes, "image/jpeg", `{"handle": "newsroom-7"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.submitMultipart(t, jpegBytes, "image/jpeg", `{"handle": "other-desk"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	list := h.do(withKey(httptest.NewRequest(http.MethodGet, "/api/v1/detections?handle=newsroom-7", nil)))
	require.Equal(t, http.StatusOK, list.Code)

	var page struct {
		Data []DetectionResponse `json:"data"`
	}
	require.NoError(t, decodeBody(list, &page))
	require.Len(t, page.Data, 1)
	assert.Equal(t, "newsroom-7", page.Data[0].SourceHandle)
}

func TestGetDetections_RequiresKey(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/detections", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	envelope := decodeError(t, rec)
	assert.Equal(t, "Unauthorized", envelope.Error)
}

func TestGetDetection_NotFound(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(withKey(httptest.NewRequest(http.MethodGet, "/api/v1/detections/no-such-id", nil)))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	envelope := decodeError(t, rec)
	assert.Equal(t, "NotFoundError", envelope.Error)
	assert.NotEmpty(t, envelope.CorrelationID)
}

func TestGetDetection_SoftDeletedStillListed(t *testing.T) {
	setupHTTPMock(t)
	h := newAPIHarness(t)
	stubOracleScore(0.9, 0.8)

	resp := seedSubmission(t, h, "soft-delete-read")
	detection, _, err := h.store.GetByPageID(resp.PageID)
	require.NoError(t, err)
	require.NoError(t, h.store.SoftDeleteDetection(detection.ID))

	// The default listing hides deleted records.
	rec := h.do(withKey(httptest.NewRequest(http.MethodGet, "/api/v1/detections", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	var visible struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, decodeBody(rec, &visible))
	assert.EqualValues(t, 0, visible.Total)

	// include_deleted surfaces them with the deleted marker set.
	rec = h.do(withKey(httptest.NewRequest(http.MethodGet, "/api/v1/detections?include_deleted=true", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	var all struct {
		Data  []DetectionResponse `json:"data"`
		Total int64               `json:"total"`
	}
	require.NoError(t, decodeBody(rec, &all))
	require.Len(t, all.Data, 1)
	assert.EqualValues(t, 1, all.Total)
	assert.True(t, all.Data[0].Deleted)
}
