package ingest

import (
	"context"
	"time"

	"github.com/undetectableai/truthscan-twitter-bot/internal/datastore"
	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
	"github.com/undetectableai/truthscan-twitter-bot/internal/oracle"
)

const (
	defaultWorkerInterval    = 60 * time.Second
	defaultWorkerBatchSize   = 10
	defaultOracleMaxAttempts = 5
	defaultReplyMaxAttempts  = 3
)

// Worker re-drives detections whose oracle call or reply failed during
// synchronous ingestion. Each pass picks up bounded batches, oldest
// first, and stops retrying once a record exhausts its attempt budget.
type Worker struct {
	orchestrator *Orchestrator

	interval          time.Duration
	batchSize         int
	oracleMaxAttempts int
	replyMaxAttempts  int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker builds a worker from the orchestrator's settings. Zero or
// missing settings fall back to defaults.
func NewWorker(o *Orchestrator) *Worker {
	w := &Worker{
		orchestrator:      o,
		interval:          defaultWorkerInterval,
		batchSize:         defaultWorkerBatchSize,
		oracleMaxAttempts: defaultOracleMaxAttempts,
		replyMaxAttempts:  defaultReplyMaxAttempts,
	}
	if s := o.settings.Worker; s.Interval > 0 {
		w.interval = time.Duration(s.Interval) * time.Second
	}
	if s := o.settings.Worker; s.BatchSize > 0 {
		w.batchSize = s.BatchSize
	}
	if s := o.settings.Worker; s.OracleMaxAttempts > 0 {
		w.oracleMaxAttempts = s.OracleMaxAttempts
	}
	if r := o.settings.Twitter.Reply; r.MaxAttempts > 0 {
		w.replyMaxAttempts = r.MaxAttempts
	}
	return w
}

// Start launches the retry loop. The first pass runs immediately so a
// restart drains any backlog without waiting a full interval.
func (w *Worker) Start(ctx context.Context) {
	if w.cancel != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		logger.Info("retry worker started",
			"interval", w.interval.String(),
			"batch_size", w.batchSize)

		w.runPass(ctx)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Info("retry worker stopped")
				return
			case <-ticker.C:
				w.runPass(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the in-flight pass to finish.
func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.cancel = nil
}

func (w *Worker) runPass(ctx context.Context) {
	w.retryClassifications(ctx)
	w.retryReplies(ctx)
}

// retryClassifications re-runs the oracle for detections stuck in the
// failed state. Attempt accounting lives in the datastore guards, so a
// record that meanwhile gained a verdict is silently left alone.
func (w *Worker) retryClassifications(ctx context.Context) {
	o := w.orchestrator
	detections, err := o.store.ListOracleRetries(w.oracleMaxAttempts, w.batchSize)
	if err != nil {
		logger.Error("failed to list oracle retries", "error", err.Error())
		return
	}

	for i := range detections {
		if ctx.Err() != nil {
			return
		}
		w.reclassify(ctx, &detections[i])
	}
}

func (w *Worker) reclassify(ctx context.Context, detection *datastore.Detection) {
	o := w.orchestrator

	req := &oracle.Request{}
	switch {
	case detection.HasBlob():
		req.ImageData = detection.ImageBlob
		req.ContentType = detection.ImageContentType
	case detection.ImageURL != "":
		req.ImageURL = detection.ImageURL
	default:
		logger.Error("retry candidate has no image representation",
			"detection_id", detection.ID)
		return
	}

	result, err := o.oracle.Classify(ctx, req)
	switch {
	case err == nil:
		o.noteOracleSuccess()
		if upErr := o.store.UpdateClassification(detection.ID, result.Probability, result.Confidence); upErr != nil {
			// A concurrent path already recorded a verdict; that record
			// stands and this result is discarded.
			if errors.IsConflict(upErr) {
				logger.Debug("verdict already recorded, discarding retry result",
					"detection_id", detection.ID)
				return
			}
			logger.Error("failed to record retried classification",
				"detection_id", detection.ID, "error", upErr.Error())
			return
		}
		detection.AIProbability = &result.Probability
		detection.Confidence = result.Confidence
		detection.OracleStatus = datastore.OracleStatusComplete
		// The page's meta description was composed without a verdict;
		// refresh it now that one exists.
		if enrichErr := o.store.UpdateEnrichment(detection.ID, detection.ImageDescription, metaSentence(detection)); enrichErr != nil {
			logger.Error("failed to refresh meta description",
				"detection_id", detection.ID, "error", enrichErr.Error())
		}
		logger.Info("retried classification succeeded",
			"detection_id", detection.ID,
			"probability", result.Probability)

		o.recordVerdict(detection, detection.Source)
		if page, pageErr := o.store.GetPageByDetectionID(detection.ID); pageErr == nil {
			o.publishDetection(ctx, detection, &page)
		}

	case errors.Is(err, oracle.ErrRejected):
		o.noteOracleSuccess()
		if markErr := o.store.MarkOracleUnsupported(detection.ID); markErr != nil {
			logger.Error("failed to mark detection unsupported",
				"detection_id", detection.ID, "error", markErr.Error())
			return
		}
		detection.OracleStatus = datastore.OracleStatusUnsupported
		if enrichErr := o.store.UpdateEnrichment(detection.ID, detection.ImageDescription, metaSentence(detection)); enrichErr != nil {
			logger.Error("failed to refresh meta description",
				"detection_id", detection.ID, "error", enrichErr.Error())
		}
		if o.metrics != nil {
			o.metrics.RecordVerdict("unsupported", detection.Source)
		}
		logger.Warn("oracle rejected image on retry, detection marked unsupported",
			"detection_id", detection.ID)

	default:
		o.noteOracleFailure(err)
		if markErr := o.store.MarkOracleFailed(detection.ID); markErr != nil {
			logger.Error("failed to record oracle retry failure",
				"detection_id", detection.ID, "error", markErr.Error())
			return
		}
		logger.Warn("retried classification failed",
			"detection_id", detection.ID,
			"attempts", detection.OracleAttempts+1,
			"error", err.Error())
	}
}

// retryReplies re-sends failed replies. The original reply text is
// recomposed from current record state, so a verdict that landed after
// the first attempt is included this time around.
func (w *Worker) retryReplies(ctx context.Context) {
	o := w.orchestrator
	if !o.replyOwed() {
		return
	}

	detections, err := o.store.ListReplyRetries(w.replyMaxAttempts, w.batchSize)
	if err != nil {
		logger.Error("failed to list reply retries", "error", err.Error())
		return
	}

	for i := range detections {
		if ctx.Err() != nil {
			return
		}
		detection := &detections[i]
		page, pageErr := o.store.GetPageByDetectionID(detection.ID)
		if pageErr != nil {
			logger.Error("reply retry candidate has no page",
				"detection_id", detection.ID, "error", pageErr.Error())
			continue
		}
		if o.reply(ctx, detection, &page) {
			logger.Info("retried reply sent",
				"detection_id", detection.ID,
				"tweet_id", detection.SourceTweetID)
		}
	}
}
