// Package ingest drives detections through their lifecycle: image
// extraction, oracle classification, persistence with page assignment,
// the reply back to the mentioning user, and event publication. Oracle
// and reply failures become record state rather than pipeline errors; a
// background worker re-drives them within bounded attempt budgets.
package ingest

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
	"github.com/undetectableai/truthscan-twitter-bot/internal/datastore"
	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
	"github.com/undetectableai/truthscan-twitter-bot/internal/imagefetch"
	"github.com/undetectableai/truthscan-twitter-bot/internal/logging"
	"github.com/undetectableai/truthscan-twitter-bot/internal/mqtt"
	"github.com/undetectableai/truthscan-twitter-bot/internal/notify"
	"github.com/undetectableai/truthscan-twitter-bot/internal/observability/metrics"
	"github.com/undetectableai/truthscan-twitter-bot/internal/oracle"
	"github.com/undetectableai/truthscan-twitter-bot/internal/pageid"
	"github.com/undetectableai/truthscan-twitter-bot/internal/twitter"
)

// Package-level logger specific to ingestion
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "ingest.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "ingest", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize ingest file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "ingest")
		closeLogger = func() error { return nil }
	}
}

// CloseLogger releases the package log file.
func CloseLogger() error {
	if closeLogger != nil {
		return closeLogger()
	}
	return nil
}

// Outcome classifies how far one event travelled through the pipeline.
type Outcome string

const (
	// OutcomeCompleted means the detection is persisted and every owed
	// side effect succeeded.
	OutcomeCompleted Outcome = "completed"
	// OutcomePartial means the detection is persisted and servable, but
	// the reply failed and is queued for out-of-band retries.
	OutcomePartial Outcome = "partial"
	// OutcomeDuplicate means the event was already ingested; the existing
	// page was reused and nothing new was created.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeNoImages means the event carried nothing to analyze. Not a
	// failure; no record is created.
	OutcomeNoImages Outcome = "no_images"
	// OutcomeFailed means the detection could not be persisted.
	OutcomeFailed Outcome = "failed"
)

// ReplyPoster posts one reply tweet. *twitter.ReplyClient implements it.
type ReplyPoster interface {
	PostReply(ctx context.Context, inReplyTo, text string) (string, error)
}

// Orchestrator owns the ingestion state machine. All cross-request state
// lives in the datastore; the orchestrator itself only tracks the
// consecutive oracle failure count for outage alerting.
type Orchestrator struct {
	settings *conf.Settings
	store    datastore.Interface
	oracle   *oracle.Client
	fetcher  *imagefetch.Fetcher
	pages    *pageid.Generator
	metrics  *metrics.IngestMetrics

	replies   ReplyPoster
	publisher mqtt.Client
	notifier  *notify.Notifier

	mu             sync.Mutex
	oracleFailures int
}

// New creates the orchestrator with its required collaborators. Optional
// collaborators (reply client, MQTT publisher, operator alerting) are
// attached with the Set methods before processing starts.
func New(settings *conf.Settings, store datastore.Interface, oracleClient *oracle.Client,
	fetcher *imagefetch.Fetcher, pages *pageid.Generator, ingestMetrics *metrics.IngestMetrics) *Orchestrator {
	return &Orchestrator{
		settings: settings,
		store:    store,
		oracle:   oracleClient,
		fetcher:  fetcher,
		pages:    pages,
		metrics:  ingestMetrics,
	}
}

// SetReplyPoster attaches the reply client used for the Replied stage.
func (o *Orchestrator) SetReplyPoster(rp ReplyPoster) { o.replies = rp }

// SetPublisher attaches the MQTT client for completed-detection events.
func (o *Orchestrator) SetPublisher(client mqtt.Client) { o.publisher = client }

// SetNotifier attaches operator alerting.
func (o *Orchestrator) SetNotifier(n *notify.Notifier) { o.notifier = n }

// classify obtains the oracle verdict for one image and folds it into
// the detection before it is persisted. Oracle failures become record
// state: exhausted retries leave the failed marker for the worker, a
// rejection leaves the terminal unsupported marker. The detection always
// ends in a consistent, servable shape.
func (o *Orchestrator) classify(ctx context.Context, detection *datastore.Detection, req *oracle.Request) {
	result, err := o.oracle.Classify(ctx, req)
	switch {
	case err == nil:
		detection.AIProbability = &result.Probability
		detection.Confidence = result.Confidence
		detection.OracleStatus = datastore.OracleStatusComplete
		detection.OracleAttempts = 1
		o.noteOracleSuccess()
		logger.Info("image classified",
			"detection_id", detection.ID,
			"probability", result.Probability,
			"latency_ms", result.RawLatencyMs)

	case errors.Is(err, oracle.ErrRejected):
		detection.OracleStatus = datastore.OracleStatusUnsupported
		detection.OracleAttempts = 1
		// The oracle answered; rejection is not an outage.
		o.noteOracleSuccess()
		logger.Warn("oracle rejected image, detection marked unsupported",
			"detection_id", detection.ID,
			"error", err.Error())

	default:
		detection.OracleStatus = datastore.OracleStatusFailed
		detection.OracleAttempts = 1
		o.noteOracleFailure(err)
		logger.Warn("classification degraded to null probability",
			"detection_id", detection.ID,
			"error", err.Error())
	}
}

// persist writes the detection and its page. A unique-constraint loss on
// sourceEventId means another delivery of the same event won the race;
// the winner's record is re-read and returned so the caller can reuse
// it. The returned detection is nil when this call's detection won.
func (o *Orchestrator) persist(detection *datastore.Detection) (*datastore.DetectionPage, *datastore.Detection, error) {
	page, err := o.store.SaveDetection(detection, o.pages.Allocate)
	if err == nil {
		return page, nil, nil
	}

	if errors.IsConflict(err) && detection.SourceEventID != nil {
		winner, readErr := o.store.GetDetectionBySourceEventID(*detection.SourceEventID)
		if readErr != nil {
			return nil, nil, readErr
		}
		winnerPage, pageErr := o.store.GetPageByDetectionID(winner.ID)
		if pageErr != nil {
			return nil, nil, pageErr
		}
		logger.Info("lost idempotency race, reusing winner",
			"source_event_id", *detection.SourceEventID,
			"winner_detection_id", winner.ID,
			"page_id", winnerPage.PageID)
		return &winnerPage, &winner, nil
	}

	return nil, nil, err
}

// reply posts the verdict back to the mentioning user and records the
// outcome. A failure leaves replyStatus=failed for the worker to retry.
func (o *Orchestrator) reply(ctx context.Context, detection *datastore.Detection, page *datastore.DetectionPage) bool {
	text := twitter.ComposeReply(detection.SourceHandle, detection.AIProbability,
		detection.FinalResult(), o.settings.PageURL(page.PageID))

	_, err := o.replies.PostReply(ctx, detection.SourceTweetID, text)
	if err != nil {
		if markErr := o.store.MarkReply(detection.ID, false); markErr != nil {
			logger.Error("failed to record reply failure",
				"detection_id", detection.ID, "error", markErr.Error())
		}
		if o.metrics != nil {
			o.metrics.RecordReply("failed")
		}
		logger.Warn("reply failed, queued for retry",
			"detection_id", detection.ID,
			"tweet_id", detection.SourceTweetID,
			"error", err.Error())
		return false
	}

	if markErr := o.store.MarkReply(detection.ID, true); markErr != nil {
		logger.Error("failed to record sent reply",
			"detection_id", detection.ID, "error", markErr.Error())
	}
	if o.metrics != nil {
		o.metrics.RecordReply("sent")
	}
	return true
}

// publishDetection announces a completed classification over MQTT.
// Publication is best-effort; failures are logged and never propagate.
func (o *Orchestrator) publishDetection(ctx context.Context, detection *datastore.Detection, page *datastore.DetectionPage) {
	if o.publisher == nil || !o.settings.MQTT.Enabled {
		return
	}
	if detection.OracleStatus != datastore.OracleStatusComplete {
		return
	}

	event := mqtt.NewDetectionEvent(detection, page, o.settings.PageURL(page.PageID))
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("failed to marshal detection event",
			"detection_id", detection.ID, "error", err.Error())
		return
	}
	if err := o.publisher.Publish(ctx, o.settings.MQTT.Topic, string(payload)); err != nil {
		logger.Warn("detection event publish failed",
			"detection_id", detection.ID,
			"topic", o.settings.MQTT.Topic,
			"error", err.Error())
	}
}

// recordVerdict feeds the verdict counter once a detection reaches a
// terminal classification state.
func (o *Orchestrator) recordVerdict(detection *datastore.Detection, source string) {
	if o.metrics == nil {
		return
	}
	var verdict string
	switch {
	case detection.OracleStatus == datastore.OracleStatusUnsupported:
		verdict = "unsupported"
	case detection.AIProbability == nil:
		return
	default:
		switch detection.FinalResult() {
		case datastore.ResultAIGenerated:
			verdict = "ai_generated"
		case datastore.ResultHumanCreated:
			verdict = "human_created"
		default:
			verdict = "uncertain"
		}
	}
	o.metrics.RecordVerdict(verdict, source)
}

// replyOwed reports whether mention-triggered detections owe a reply.
func (o *Orchestrator) replyOwed() bool {
	return o.replies != nil && o.settings.Twitter.Reply.Enabled
}

func (o *Orchestrator) noteOracleFailure(err error) {
	o.mu.Lock()
	o.oracleFailures++
	consecutive := o.oracleFailures
	o.mu.Unlock()

	if o.notifier != nil {
		o.notifier.OracleOutage(consecutive, err)
	}
}

func (o *Orchestrator) noteOracleSuccess() {
	o.mu.Lock()
	o.oracleFailures = 0
	o.mu.Unlock()
}

// OracleFailureStreak reports the current run of consecutive failed oracle
// calls. Zero means the most recent classification attempt succeeded.
func (o *Orchestrator) OracleFailureStreak() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.oracleFailures
}

func newDetectionID() string {
	return uuid.NewString()
}
