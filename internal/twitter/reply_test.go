package twitter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
)

// The reply tests stub the default transport, so none of them run in
// parallel.
func setupReplyMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

func newTestReplyClient() *ReplyClient {
	settings := &conf.Settings{}
	settings.Twitter.APIURL = "https://api.twitter.test"
	settings.Twitter.BearerToken = conf.Secret("test-token")
	return NewReplyClient(settings)
}

func TestPostReply_Success(t *testing.T) {
	setupReplyMock(t)

	var gotAuth, gotContentType string
	var gotBody replyRequest
	httpmock.RegisterResponder(http.MethodPost, "https://api.twitter.test/2/tweets",
		func(req *http.Request) (*http.Response, error) {
			gotAuth = req.Header.Get("Authorization")
			gotContentType = req.Header.Get("Content-Type")
			raw, err := io.ReadAll(req.Body)
			if err != nil {
				return nil, err
			}
			if err := json.Unmarshal(raw, &gotBody); err != nil {
				return nil, err
			}
			return httpmock.NewStringResponse(http.StatusCreated, `{"data":{"id":"999"}}`), nil
		})

	client := newTestReplyClient()
	tweetID, err := client.PostReply(context.Background(), "123", "@sam AI probability: 87% (AI Generated)")
	require.NoError(t, err)
	assert.Equal(t, "999", tweetID)

	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "@sam AI probability: 87% (AI Generated)", gotBody.Text)
	require.NotNil(t, gotBody.Reply)
	assert.Equal(t, "123", gotBody.Reply.InReplyToTweetID)
}

func TestPostReply_NoReplyTarget(t *testing.T) {
	setupReplyMock(t)

	var rawBody string
	httpmock.RegisterResponder(http.MethodPost, "https://api.twitter.test/2/tweets",
		func(req *http.Request) (*http.Response, error) {
			raw, err := io.ReadAll(req.Body)
			if err != nil {
				return nil, err
			}
			rawBody = string(raw)
			return httpmock.NewStringResponse(http.StatusOK, `{"data":{"id":"1000"}}`), nil
		})

	client := newTestReplyClient()
	tweetID, err := client.PostReply(context.Background(), "", "standalone tweet")
	require.NoError(t, err)
	assert.Equal(t, "1000", tweetID)
	assert.NotContains(t, rawBody, "in_reply_to_tweet_id",
		"a tweet without a target must not carry a reply block")
}

func TestPostReply_Unauthorized(t *testing.T) {
	setupReplyMock(t)

	httpmock.RegisterResponder(http.MethodPost, "https://api.twitter.test/2/tweets",
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"title":"Unauthorized"}`))

	client := newTestReplyClient()
	_, err := client.PostReply(context.Background(), "123", "hello")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration),
		"auth failures point at the bearer token, not the request")
}

func TestPostReply_RateLimited(t *testing.T) {
	setupReplyMock(t)

	httpmock.RegisterResponder(http.MethodPost, "https://api.twitter.test/2/tweets",
		httpmock.NewStringResponder(http.StatusTooManyRequests, `{"title":"Too Many Requests"}`))

	client := newTestReplyClient()
	_, err := client.PostReply(context.Background(), "123", "hello")
	require.Error(t, err)
	assert.True(t, errors.IsRateLimited(err))
}

func TestPostReply_ServerError(t *testing.T) {
	setupReplyMock(t)

	httpmock.RegisterResponder(http.MethodPost, "https://api.twitter.test/2/tweets",
		httpmock.NewStringResponder(http.StatusInternalServerError, `{}`))

	client := newTestReplyClient()
	_, err := client.PostReply(context.Background(), "123", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.True(t, errors.IsCategory(err, errors.CategoryReply))
}

func TestPostReply_MalformedResponse(t *testing.T) {
	setupReplyMock(t)

	httpmock.RegisterResponder(http.MethodPost, "https://api.twitter.test/2/tweets",
		httpmock.NewStringResponder(http.StatusOK, `{}`))

	client := newTestReplyClient()
	_, err := client.PostReply(context.Background(), "123", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tweet id")
}

func TestPostReply_MissingToken(t *testing.T) {
	setupReplyMock(t)

	settings := &conf.Settings{}
	settings.Twitter.APIURL = "https://api.twitter.test"
	client := NewReplyClient(settings)

	_, err := client.PostReply(context.Background(), "123", "hello")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.Zero(t, httpmock.GetTotalCallCount(), "an unconfigured client must not hit the network")
}

func TestPostReply_EmptyText(t *testing.T) {
	setupReplyMock(t)

	client := newTestReplyClient()
	_, err := client.PostReply(context.Background(), "123", "")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Zero(t, httpmock.GetTotalCallCount())
}

func TestComposeReply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		handle      string
		probability *float64
		finalResult string
		pageURL     string
		want        string
	}{
		{
			name:        "full verdict",
			handle:      "sam",
			probability: probability(0.87),
			finalResult: "AI Generated",
			pageURL:     "https://truthscan.com/d/abc123",
			want:        "@sam AI probability: 87% (AI Generated)\n\nFull report: https://truthscan.com/d/abc123",
		},
		{
			name:        "pending analysis",
			handle:      "sam",
			probability: nil,
			pageURL:     "https://truthscan.com/d/abc123",
			want:        "@sam Analysis in progress, results will be ready shortly.\n\nFull report: https://truthscan.com/d/abc123",
		},
		{
			name:        "no handle",
			probability: probability(0.12),
			finalResult: "Human Created",
			pageURL:     "https://truthscan.com/d/abc123",
			want:        "AI probability: 12% (Human Created)\n\nFull report: https://truthscan.com/d/abc123",
		},
		{
			name:        "no verdict label",
			handle:      "sam",
			probability: probability(0.42),
			want:        "@sam AI probability: 42%",
		},
		{
			name:        "probability rounds",
			probability: probability(0.666),
			finalResult: "Uncertain",
			want:        "AI probability: 67% (Uncertain)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ComposeReply(tt.handle, tt.probability, tt.finalResult, tt.pageURL)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComposeReply_TruncatesToTweetLength(t *testing.T) {
	t.Parallel()

	handle := strings.Repeat("x", 300)
	got := ComposeReply(handle, probability(0.5), "Uncertain", "https://truthscan.com/d/abc123")

	assert.LessOrEqual(t, len([]rune(got)), maxTweetRunes)
	assert.True(t, strings.HasSuffix(got, "…"), "truncated replies end with an ellipsis")
}

func probability(v float64) *float64 {
	return &v
}
