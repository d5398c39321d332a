package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undetectableai/truthscan-twitter-bot/internal/datastore"
)

func TestDetectionEvent_WireFormat(t *testing.T) {
	t.Parallel()

	p := 0.87
	detection := &datastore.Detection{
		SourceHandle:  "skeptical_sam",
		AIProbability: &p,
		CreatedAt:     time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC),
	}
	page := &datastore.DetectionPage{PageID: "abc123xyz"}

	event := NewDetectionEvent(detection, page, "https://truthscan.com/d/abc123xyz")
	body, err := json.Marshal(event)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"pageId": "abc123xyz",
		"pageUrl": "https://truthscan.com/d/abc123xyz",
		"sourceHandle": "skeptical_sam",
		"aiProbability": 0.87,
		"finalResult": "AI Generated",
		"createdAt": "2026-01-02T15:04:05Z"
	}`, string(body))
}

func TestDetectionEvent_PendingProbability(t *testing.T) {
	t.Parallel()

	detection := &datastore.Detection{SourceHandle: "sam"}
	event := NewDetectionEvent(detection, &datastore.DetectionPage{PageID: "abc123xyz"}, "https://truthscan.com/d/abc123xyz")

	body, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"aiProbability":null`)
	assert.Contains(t, string(body), `"finalResult":""`)
}

func TestNewDetectionEvent_CopiesProbability(t *testing.T) {
	t.Parallel()

	p := 0.5
	detection := &datastore.Detection{AIProbability: &p}
	event := NewDetectionEvent(detection, nil, "")

	p = 0.99
	require.NotNil(t, event.AIProbability)
	assert.InDelta(t, 0.5, *event.AIProbability, 0.0001)
	assert.Empty(t, event.PageID)
}
