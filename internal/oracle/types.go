// Package oracle provides a client for the external AI-detection API
package oracle

import (
	"time"

	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
)

// Request carries one image to classify. Exactly one of ImageURL or
// ImageData must be set; ImageData additionally requires ContentType.
type Request struct {
	ImageURL    string
	ImageData   []byte
	ContentType string
}

// Result is a completed classification.
type Result struct {
	// Probability is the oracle's AI-generation score in [0, 1].
	Probability float64
	// Confidence is the oracle's own confidence in the score, when reported.
	Confidence *float64
	// RawLatencyMs is the round-trip time of the successful attempt.
	RawLatencyMs int64
}

// Config holds configuration for the oracle client
type Config struct {
	APIKey         string        `json:"api_key"`
	Endpoint       string        `json:"endpoint"`
	Timeout        time.Duration `json:"timeout"`         // per-attempt request timeout
	MaxRetries     int           `json:"max_retries"`     // retries after the first attempt
	InitialBackoff time.Duration `json:"initial_backoff"` // doubled per retry
	TotalBudget    time.Duration `json:"total_budget"`    // hard ceiling across all attempts
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Endpoint:       "https://api.undetectable.ai",
		Timeout:        15 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		TotalBudget:    45 * time.Second,
	}
}

// ConfigFromSettings maps the oracle section of the application settings
// onto a client Config, leaving defaults in place for unset values.
func ConfigFromSettings(settings *conf.Settings) Config {
	config := DefaultConfig()
	if settings == nil {
		return config
	}

	oracle := settings.Oracle
	config.APIKey = oracle.APIKey.Value()
	if oracle.Endpoint != "" {
		config.Endpoint = oracle.Endpoint
	}
	if oracle.Timeout > 0 {
		config.Timeout = time.Duration(oracle.Timeout) * time.Second
	}
	if oracle.MaxRetries > 0 {
		config.MaxRetries = oracle.MaxRetries
	}
	if oracle.BackoffMs > 0 {
		config.InitialBackoff = time.Duration(oracle.BackoffMs) * time.Millisecond
	}
	if oracle.TotalBudget > 0 {
		config.TotalBudget = time.Duration(oracle.TotalBudget) * time.Second
	}
	return config
}

// detectRequest is the wire format of a classification call. Image bytes
// travel base64-encoded in a JSON body.
type detectRequest struct {
	ImageURL    string `json:"image_url,omitempty"`
	ImageData   string `json:"image_data,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// detectResponse is the oracle's wire response. Probability is a pointer so
// a 200 with a missing score is detectable as a protocol violation.
type detectResponse struct {
	Probability *float64 `json:"probability"`
	Confidence  *float64 `json:"confidence"`
}

// apiError is the oracle's error envelope
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
