// ingest_test.go: shared harness for the orchestrator tests.
//
// The harness runs the real pipeline end to end: a real SQLite datastore,
// the real oracle client against httpmock, and the real page id generator.
// Only the reply poster and MQTT publisher are fakes, since those cross
// into external services with no local equivalent. Tests that stub the
// default transport via httpmock do not run in parallel.
package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
	"github.com/undetectableai/truthscan-twitter-bot/internal/datastore"
	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
	"github.com/undetectableai/truthscan-twitter-bot/internal/imagefetch"
	"github.com/undetectableai/truthscan-twitter-bot/internal/observability/metrics"
	"github.com/undetectableai/truthscan-twitter-bot/internal/oracle"
	"github.com/undetectableai/truthscan-twitter-bot/internal/pageid"
	"github.com/undetectableai/truthscan-twitter-bot/internal/twitter"
)

const oracleDetectURL = "https://oracle.test/v1/detect"

// setupHTTPMock activates httpmock and registers cleanup.
func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

// newTestSettings returns settings wired for fast, network-free tests:
// a temp SQLite file, the mocked oracle endpoint, and millisecond retry
// timing.
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

	settings.Twitter.BotHandle = "truthscan"
	settings.Twitter.Reply.Enabled = true
	settings.Twitter.Reply.MaxAttempts = 3

	settings.MQTT.Enabled = true
	settings.MQTT.Topic = "truthscan/detections"

	settings.Worker.Interval = 1
	settings.Worker.BatchSize = 10
	settings.Worker.OracleMaxAttempts = 5

	return settings
}

// replyCall records one PostReply invocation.
type replyCall struct {
	inReplyTo string
	text      string
}

// fakeReplies implements ReplyPoster and records every call. Setting err
// makes subsequent calls fail until it is cleared.
type fakeReplies struct {
	mu    sync.Mutex
	calls []replyCall
	err   error
}

func (f *fakeReplies) PostReply(_ context.Context, inReplyTo, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, replyCall{inReplyTo: inReplyTo, text: text})
	if f.err != nil {
		return "", f.err
	}
	return "reply-tweet-id", nil
}

func (f *fakeReplies) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeReplies) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeReplies) lastCall() replyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return replyCall{}
	}
	return f.calls[len(f.calls)-1]
}

// publishedMessage records one Publish invocation.
type publishedMessage struct {
	topic   string
	payload string
}

// fakePublisher implements mqtt.Client and records published messages.
type fakePublisher struct {
	mu        sync.Mutex
	published []publishedMessage
}

func (f *fakePublisher) Connect(_ context.Context) error { return nil }
func (f *fakePublisher) IsConnected() bool               { return true }
func (f *fakePublisher) Disconnect()                     {}

func (f *fakePublisher) Publish(_ context.Context, topic, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMessage{topic: topic, payload: payload})
	return nil
}

func (f *fakePublisher) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func (f *fakePublisher) lastMessage() publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.published) == 0 {
		return publishedMessage{}
	}
	return f.published[len(f.published)-1]
}

// harness bundles a fully wired orchestrator with its fakes and backing
// store for state assertions.
type harness struct {
	orchestrator *Orchestrator
	store        datastore.Interface
	settings     *conf.Settings
	replies      *fakeReplies
	publisher    *fakePublisher
}

func newHarness(t *testing.T, configure ...func(*conf.Settings)) *harness {
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

	registry := prometheus.NewRegistry()
	ingestMetrics, err := metrics.NewIngestMetrics(registry)
	require.NoError(t, err)

	fetcher := imagefetch.New(settings, nil)
	pages := pageid.New(store, settings, nil)

	orchestrator := New(settings, store, oracleClient, fetcher, pages, ingestMetrics)

	replies := &fakeReplies{}
	publisher := &fakePublisher{}
	orchestrator.SetReplyPoster(replies)
	orchestrator.SetPublisher(publisher)

	return &harness{
		orchestrator: orchestrator,
		store:        store,
		settings:     settings,
		replies:      replies,
		publisher:    publisher,
	}
}

// stubOracleScore registers a responder that always returns the given
// probability and confidence.
func stubOracleScore(p, c float64) {
	httpmock.RegisterResponder("POST", oracleDetectURL,
		httpmock.NewStringResponder(http.StatusOK,
			`{"probability": `+formatFloat(p)+`, "confidence": `+formatFloat(c)+`}`))
}

// stubOracleStatus registers a responder that always returns the given
// HTTP status with an empty error envelope.
func stubOracleStatus(status int) {
	httpmock.RegisterResponder("POST", oracleDetectURL,
		httpmock.NewStringResponder(status, `{"error": "stubbed", "message": "stubbed failure"}`))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// newMention builds a minimal mention event carrying one photo.
func newMention(eventID string) *twitter.MentionEvent {
	return &twitter.MentionEvent{
		EventID:   eventID,
		TweetID:   eventID,
		Handle:    "skeptical_sam",
		Text:      "@truthscan is this real?",
		ImageURLs: []string{"https://pbs.twimg.com/media/" + eventID + ".jpg"},
	}
}

// mustGetDetection reads a detection back by id and fails the test on error.
func mustGetDetection(t *testing.T, h *harness, id string) datastore.Detection {
	t.Helper()
	detection, err := h.store.GetDetection(id)
	require.NoError(t, err)
	return detection
}

// notFoundErr builds an error the orchestrator's idempotency pre-check
// treats as a miss.
func notFoundErr(key string) error {
	return errors.Newf("no detection for source event %q", key).
		Category(errors.CategoryNotFound).
		Component("test").
		Build()
}

// decodeJSONBody decodes a request body into v.
func decodeJSONBody(req *http.Request, v any) error {
	return json.NewDecoder(req.Body).Decode(v)
}
