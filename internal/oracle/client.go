package oracle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
	"github.com/undetectableai/truthscan-twitter-bot/internal/logging"
	"github.com/undetectableai/truthscan-twitter-bot/internal/observability/metrics"
)

// Package-level logger specific to the oracle client
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "oracle.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "oracle", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize oracle file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "oracle")
		closeLogger = func() error { return nil }
	}
}

// Classification failure taxonomy. Retries apply to ErrUnavailable and
// ErrRateLimited only; ErrRejected is terminal for the image.
var (
	ErrUnavailable = errors.NewStd("oracle unavailable")
	ErrRateLimited = errors.NewStd("oracle rate limited")
	ErrRejected    = errors.NewStd("oracle rejected image")
)

// maxBackoff caps the exponential delay between attempts. A Retry-After
// from the server may still exceed it.
const maxBackoff = 30 * time.Second

// Client calls the detection oracle with bounded retries and a hard total
// budget per classification.
type Client struct {
	config     Config
	httpClient *http.Client
	metrics    *metrics.OracleMetrics
	debug      bool
}

// NewClient creates a new oracle client. oracleMetrics may be nil.
func NewClient(config Config, oracleMetrics *metrics.OracleMetrics) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.Newf("oracle API key is required").
			Category(errors.CategoryConfiguration).
			Component("oracle").
			Build()
	}

	defaults := DefaultConfig()
	if config.Endpoint == "" {
		config.Endpoint = defaults.Endpoint
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.TotalBudget == 0 {
		config.TotalBudget = defaults.TotalBudget
	}

	settings := conf.GetSettings()

	client := &Client{
		config: config,
		// Transport stays nil so the default transport's connection pool
		// is shared with the rest of the process.
		httpClient: &http.Client{Timeout: config.Timeout},
		metrics:    oracleMetrics,
		debug:      settings != nil && settings.Debug,
	}

	logger.Info("oracle client initialized",
		"endpoint", config.Endpoint,
		"timeout", config.Timeout,
		"max_retries", config.MaxRetries,
		"total_budget", config.TotalBudget)

	return client, nil
}

// Close releases the service log file.
func (c *Client) Close() {
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing oracle logger: %v", err)
		}
	}
}

// Classify submits one image and returns the oracle's verdict. Unavailable
// and rate-limited failures are retried with exponential backoff inside the
// total budget, honoring a server-supplied Retry-After delay when longer;
// rejection returns immediately. The returned error wraps ErrUnavailable,
// ErrRateLimited, or ErrRejected for callers that branch on the failure
// class.
func (c *Client) Classify(ctx context.Context, req *Request) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	body, err := json.Marshal(buildDetectRequest(req))
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryValidation).
			Context("operation", "marshal_detect_request").
			Component("oracle").
			Build()
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.TotalBudget)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		result, retryAfter, err := c.doDetect(ctx, body)
		if err == nil {
			if c.metrics != nil {
				c.metrics.RecordRequest("success")
				c.metrics.ObserveProbability(result.Probability)
			}
			if attempt > 0 {
				logger.Info("classification succeeded after retries",
					"attempts", attempt+1,
					"probability", result.Probability)
			}
			return result, nil
		}

		if errors.Is(err, ErrRejected) {
			if c.metrics != nil {
				c.metrics.RecordRequest("rejected")
			}
			logger.Warn("oracle rejected image", "error", err.Error())
			return nil, err
		}

		retryable := errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRateLimited)
		if !retryable {
			if c.metrics != nil {
				c.metrics.RecordRequest("error")
			}
			return nil, err
		}

		lastErr = err
		if ctx.Err() != nil || attempt == c.config.MaxRetries {
			break
		}

		delay := c.config.InitialBackoff << attempt
		if delay > maxBackoff || delay <= 0 {
			delay = maxBackoff
		}
		if retryAfter > delay {
			delay = retryAfter
		}

		reason := "unavailable"
		if errors.Is(err, ErrRateLimited) {
			reason = "rate_limited"
		}
		if c.metrics != nil {
			c.metrics.RecordRetry(reason)
		}
		logger.Warn("oracle request failed, retrying",
			"attempt", attempt+1,
			"max_attempts", c.config.MaxRetries+1,
			"delay_ms", delay.Milliseconds(),
			"reason", reason,
			"error", err.Error())

		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	if c.metrics != nil {
		c.metrics.IncrementBudgetExhausted()
		if errors.Is(lastErr, ErrRateLimited) {
			c.metrics.RecordRequest("rate_limited")
		} else {
			c.metrics.RecordRequest("unavailable")
		}
	}
	logger.Error("classification abandoned, retry budget exhausted",
		"max_attempts", c.config.MaxRetries+1,
		"error", lastErr.Error())
	return nil, lastErr
}

// validateRequest rejects malformed requests before any network work.
func validateRequest(req *Request) error {
	if req == nil {
		return errors.Newf("classify request is nil").
			Category(errors.CategoryValidation).
			Component("oracle").
			Build()
	}

	hasURL := req.ImageURL != ""
	hasData := len(req.ImageData) > 0
	if hasURL == hasData {
		return errors.Newf("classify request needs exactly one of image url or image data").
			Category(errors.CategoryValidation).
			Context("has_url", hasURL).
			Context("has_data", hasData).
			Component("oracle").
			Build()
	}
	if hasData && req.ContentType == "" {
		return errors.Newf("image data requires a content type").
			Category(errors.CategoryValidation).
			Component("oracle").
			Build()
	}
	return nil
}

func buildDetectRequest(req *Request) detectRequest {
	if req.ImageURL != "" {
		return detectRequest{ImageURL: req.ImageURL}
	}
	return detectRequest{
		ImageData:   base64.StdEncoding.EncodeToString(req.ImageData),
		ContentType: req.ContentType,
	}
}

// doDetect performs one HTTP exchange with the oracle. The returned duration
// is a server-requested retry delay from Retry-After, zero when absent.
func (c *Client) doDetect(ctx context.Context, body []byte) (*Result, time.Duration, error) {
	url := c.config.Endpoint + "/v1/detect"
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, errors.New(err).
			Category(errors.CategoryOracle).
			Context("url", url).
			Component("oracle").
			Build()
	}
	httpReq.Header.Set("X-API-Key", c.config.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	if c.debug {
		logger.Debug("oracle request", "url", url, "body_bytes", len(body))
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, errors.Newf("%w: %w", ErrUnavailable, err).
			Category(errors.CategoryOracle).
			NetworkContext(url, c.config.Timeout).
			Component("oracle").
			Build()
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Debug("failed to close oracle response body", "error", cerr)
		}
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, errors.Newf("%w: reading oracle response: %w", ErrUnavailable, err).
			Category(errors.CategoryOracle).
			Context("status_code", resp.StatusCode).
			Component("oracle").
			Build()
	}

	duration := time.Since(start)
	if c.metrics != nil {
		c.metrics.RecordHTTPStatus(strconv.Itoa(resp.StatusCode))
		c.metrics.ObserveRequestDuration(duration.Seconds())
	}
	if c.debug {
		logger.Debug("oracle response",
			"status_code", resp.StatusCode,
			"duration_ms", duration.Milliseconds(),
			"response_size", len(bodyBytes))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return parseResult(bodyBytes, duration)

	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, retryAfter, errors.Newf("%w: %s", ErrRateLimited, apiMessage(bodyBytes)).
			Category(errors.CategoryLimit).
			Context("status_code", resp.StatusCode).
			Context("retry_after_ms", retryAfter.Milliseconds()).
			Component("oracle").
			Build()

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		logger.Error("oracle authentication failed",
			"status_code", resp.StatusCode,
			"message", "check the oracle API key in the configuration")
		return nil, 0, errors.Newf("oracle authentication failed (status %d)", resp.StatusCode).
			Category(errors.CategoryConfiguration).
			Context("status_code", resp.StatusCode).
			Component("oracle").
			Build()

	case isRejectedStatus(resp.StatusCode):
		return nil, 0, errors.Newf("%w: %s", ErrRejected, apiMessage(bodyBytes)).
			Category(errors.CategoryImageRejected).
			Context("status_code", resp.StatusCode).
			Component("oracle").
			Build()

	case resp.StatusCode >= 500:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, retryAfter, errors.Newf("%w: status %d", ErrUnavailable, resp.StatusCode).
			Category(errors.CategoryOracle).
			Context("status_code", resp.StatusCode).
			Component("oracle").
			Build()

	default:
		return nil, 0, errors.Newf("unexpected oracle status %d: %s", resp.StatusCode, apiMessage(bodyBytes)).
			Category(errors.CategoryOracle).
			Context("status_code", resp.StatusCode).
			Component("oracle").
			Build()
	}
}

// isRejectedStatus reports statuses that mean the image itself was refused.
func isRejectedStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

// parseResult validates the 200 payload. A missing or out-of-range score is
// treated as unavailable so the attempt is retried.
func parseResult(body []byte, duration time.Duration) (*Result, time.Duration, error) {
	var wire detectResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, 0, errors.Newf("%w: malformed oracle response: %w", ErrUnavailable, err).
			Category(errors.CategoryOracle).
			Context("response_size", len(body)).
			Component("oracle").
			Build()
	}
	if wire.Probability == nil || *wire.Probability < 0 || *wire.Probability > 1 {
		return nil, 0, errors.Newf("%w: oracle response missing a valid probability", ErrUnavailable).
			Category(errors.CategoryOracle).
			Component("oracle").
			Build()
	}

	return &Result{
		Probability:  *wire.Probability,
		Confidence:   wire.Confidence,
		RawLatencyMs: duration.Milliseconds(),
	}, 0, nil
}

// apiMessage extracts the oracle's error envelope, falling back to a body
// preview for non-JSON responses.
func apiMessage(body []byte) string {
	var envelope apiError
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error != "" {
			return envelope.Error
		}
	}

	preview := string(body)
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	if preview == "" {
		preview = "no response body"
	}
	return preview
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
