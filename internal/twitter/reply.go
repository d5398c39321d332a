package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
)

const (
	defaultAPIURL = "https://api.twitter.com"
	replyTimeout  = 10 * time.Second

	// maxTweetRunes is the platform limit for a single tweet.
	maxTweetRunes = 280
)

// ReplyClient posts reply tweets through the v2 tweet endpoint. Each
// PostReply call is a single attempt; the retry budget belongs to the
// caller.
type ReplyClient struct {
	apiURL string
	bearer string
	client *http.Client
	debug  bool
}

// NewReplyClient builds a reply client from the Twitter settings.
func NewReplyClient(settings *conf.Settings) *ReplyClient {
	apiURL := defaultAPIURL
	bearer := ""
	debug := false
	if settings != nil {
		if settings.Twitter.APIURL != "" {
			apiURL = settings.Twitter.APIURL
		}
		bearer = settings.Twitter.BearerToken.Value()
		debug = settings.Debug
	}

	return &ReplyClient{
		apiURL: strings.TrimRight(apiURL, "/"),
		bearer: bearer,
		// Transport stays nil so tests can stub the default transport.
		client: &http.Client{Timeout: replyTimeout},
		debug:  debug,
	}
}

type replyRequest struct {
	Text  string       `json:"text"`
	Reply *replyTarget `json:"reply,omitempty"`
}

type replyTarget struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type replyResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// PostReply publishes text as a reply to the given tweet and returns the
// id of the created tweet.
func (rc *ReplyClient) PostReply(ctx context.Context, inReplyTo, text string) (string, error) {
	if rc.bearer == "" {
		return "", errors.Newf("reply bearer token is not configured").
			Category(errors.CategoryConfiguration).
			Component("twitter").
			Context("operation", "post_reply").
			Build()
	}
	if text == "" {
		return "", errors.Newf("reply text is empty").
			Category(errors.CategoryValidation).
			Component("twitter").
			Context("operation", "post_reply").
			Build()
	}

	payload := replyRequest{Text: text}
	if inReplyTo != "" {
		payload.Reply = &replyTarget{InReplyToTweetID: inReplyTo}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.New(err).
			Category(errors.CategoryReply).
			Component("twitter").
			Context("operation", "marshal_reply").
			Build()
	}

	url := rc.apiURL + "/2/tweets"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", errors.New(err).
			Category(errors.CategoryReply).
			Component("twitter").
			Context("operation", "post_reply").
			Build()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+rc.bearer)

	start := time.Now()
	resp, err := rc.client.Do(req)
	if err != nil {
		return "", errors.New(err).
			Category(errors.CategoryReply).
			Component("twitter").
			Context("operation", "post_reply").
			NetworkContext(url, replyTimeout).
			Build()
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Debug("reply response body close failed", "error", closeErr)
		}
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.New(err).
			Category(errors.CategoryReply).
			Component("twitter").
			Context("operation", "read_reply_response").
			Build()
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var parsed replyResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil || parsed.Data.ID == "" {
			return "", errors.Newf("reply response carried no tweet id").
				Category(errors.CategoryReply).
				Component("twitter").
				Context("operation", "post_reply").
				Context("status_code", resp.StatusCode).
				Build()
		}
		if rc.debug {
			logger.Debug("reply posted",
				"in_reply_to", inReplyTo,
				"tweet_id", parsed.Data.ID,
				"duration_ms", time.Since(start).Milliseconds())
		}
		return parsed.Data.ID, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", errors.Newf("reply rejected with status %d, check the bearer token", resp.StatusCode).
			Category(errors.CategoryConfiguration).
			Component("twitter").
			Context("operation", "post_reply").
			Context("status_code", resp.StatusCode).
			Build()

	case resp.StatusCode == http.StatusTooManyRequests:
		return "", errors.Newf("reply rate limited").
			Category(errors.CategoryLimit).
			Component("twitter").
			Context("operation", "post_reply").
			Context("status_code", resp.StatusCode).
			Build()

	default:
		return "", errors.Newf("reply failed: status %d", resp.StatusCode).
			Category(errors.CategoryReply).
			Component("twitter").
			Context("operation", "post_reply").
			Context("status_code", resp.StatusCode).
			Build()
	}
}

// ComposeReply renders the reply text for a finished (or still pending)
// analysis. The result always fits in a single tweet.
func ComposeReply(handle string, probability *float64, finalResult, pageURL string) string {
	var verdict string
	switch {
	case probability == nil:
		verdict = "Analysis in progress, results will be ready shortly."
	case finalResult != "":
		verdict = fmt.Sprintf("AI probability: %d%% (%s)", int(math.Round(*probability*100)), finalResult)
	default:
		verdict = fmt.Sprintf("AI probability: %d%%", int(math.Round(*probability*100)))
	}

	var b strings.Builder
	if handle != "" {
		b.WriteString("@" + handle + " ")
	}
	b.WriteString(verdict)
	if pageURL != "" {
		b.WriteString("\n\nFull report: " + pageURL)
	}

	text := b.String()
	if utf8.RuneCountInString(text) > maxTweetRunes {
		runes := []rune(text)
		text = string(runes[:maxTweetRunes-1]) + "…"
	}
	return text
}
