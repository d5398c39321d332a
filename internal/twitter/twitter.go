// Package twitter implements the protocol surface of the bot: webhook
// challenge and payload authentication, mention event parsing, and the
// reply client. It owns no pipeline state; the ingest orchestrator drives
// it.
package twitter

import (
	"io"
	"log"
	"log/slog"
	"path/filepath"

	"github.com/undetectableai/truthscan-twitter-bot/internal/logging"
)

// Package-level logger specific to the twitter protocol surface
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "twitter.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "twitter", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize twitter file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "twitter")
		closeLogger = func() error { return nil }
	}
}

// CloseLogger releases the service log file.
func CloseLogger() {
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing twitter logger: %v", err)
		}
	}
}

// MentionEvent is one bot mention pulled out of a webhook delivery.
type MentionEvent struct {
	EventID   string   // id of the originating event, idempotency key upstream
	TweetID   string   // tweet the reply should attach to
	Handle    string   // author's screen name, without the @
	Text      string   // full tweet text
	ImageURLs []string // candidate photos in priority order
}

// PrimaryImage returns the highest-priority candidate image, or an empty
// string when the mention carried none.
func (m *MentionEvent) PrimaryImage() string {
	if len(m.ImageURLs) == 0 {
		return ""
	}
	return m.ImageURLs[0]
}
