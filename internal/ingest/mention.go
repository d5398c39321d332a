package ingest

import (
	"context"
	"time"

	"github.com/undetectableai/truthscan-twitter-bot/internal/datastore"
	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
	"github.com/undetectableai/truthscan-twitter-bot/internal/oracle"
	"github.com/undetectableai/truthscan-twitter-bot/internal/twitter"
)

// ProcessMention ingests one mention event end to end. The returned page
// is non-nil whenever a detection record exists for the event, including
// the duplicate case where an earlier delivery already created it.
//
// The tweet id doubles as the idempotency key, so redelivered webhooks
// converge on the same page. Events without a photo are acknowledged and
// dropped without creating any record.
func (o *Orchestrator) ProcessMention(ctx context.Context, mention *twitter.MentionEvent) (*datastore.DetectionPage, Outcome, error) {
	start := time.Now()
	defer func() {
		if o.metrics != nil {
			o.metrics.ObserveMentionProcessingDuration(time.Since(start).Seconds())
		}
	}()
	if o.metrics != nil {
		o.metrics.ObserveImagesPerMention(len(mention.ImageURLs))
	}

	// Fast path for redelivery: the unique constraint below is the
	// authoritative guard, this read just avoids wasted oracle calls.
	existing, err := o.store.GetDetectionBySourceEventID(mention.EventID)
	switch {
	case err == nil:
		page, pageErr := o.store.GetPageByDetectionID(existing.ID)
		if pageErr != nil {
			o.recordMention(OutcomeFailed)
			return nil, OutcomeFailed, pageErr
		}
		logger.Info("duplicate mention, reusing existing page",
			"source_event_id", mention.EventID,
			"page_id", page.PageID)
		o.recordMention(OutcomeDuplicate)
		return &page, OutcomeDuplicate, nil
	case errors.IsNotFound(err):
		// First sighting, proceed.
	default:
		o.recordMention(OutcomeFailed)
		return nil, OutcomeFailed, errors.New(err).
			Category(errors.CategoryDatabase).
			Component("ingest").
			Context("operation", "idempotency_check").
			Context("source_event_id", mention.EventID).
			Build()
	}

	imageURL := mention.PrimaryImage()
	if imageURL == "" {
		logger.Info("mention carried no image to analyze, skipping",
			"tweet_id", mention.TweetID,
			"handle", mention.Handle)
		o.recordMention(OutcomeNoImages)
		return nil, OutcomeNoImages, nil
	}

	eventID := mention.EventID
	detection := &datastore.Detection{
		ID:            newDetectionID(),
		SourceEventID: &eventID,
		SourceTweetID: mention.TweetID,
		SourceHandle:  mention.Handle,
		Source:        datastore.SourceMention,
		ImageURL:      imageURL,
		OracleStatus:  datastore.OracleStatusPending,
	}
	if o.replyOwed() {
		detection.ReplyStatus = datastore.ReplyStatusPending
	}

	o.classify(ctx, detection, &oracle.Request{ImageURL: imageURL})
	o.enrich(detection, mention.Text)

	page, winner, err := o.persist(detection)
	if err != nil {
		if o.notifier != nil {
			o.notifier.IngestFailure("persist", err)
		}
		o.recordMention(OutcomeFailed)
		return nil, OutcomeFailed, err
	}
	if winner != nil {
		// Another delivery beat this one to the constraint; its record
		// owns the side effects.
		o.recordMention(OutcomeDuplicate)
		return page, OutcomeDuplicate, nil
	}

	if o.metrics != nil {
		o.metrics.RecordDetectionCreated(datastore.SourceMention)
	}
	o.recordVerdict(detection, datastore.SourceMention)
	o.publishDetection(ctx, detection, page)

	if o.replyOwed() {
		if !o.reply(ctx, detection, page) {
			o.recordMention(OutcomePartial)
			return page, OutcomePartial, nil
		}
	}

	logger.Info("mention processed",
		"tweet_id", mention.TweetID,
		"page_id", page.PageID,
		"oracle_status", detection.OracleStatus,
		"duration_ms", time.Since(start).Milliseconds())
	o.recordMention(OutcomeCompleted)
	return page, OutcomeCompleted, nil
}

func (o *Orchestrator) recordMention(outcome Outcome) {
	if o.metrics != nil {
		o.metrics.RecordMentionProcessed(string(outcome))
	}
}
