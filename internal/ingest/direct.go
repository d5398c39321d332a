package ingest

import (
	"context"
	"time"

	"github.com/undetectableai/truthscan-twitter-bot/internal/datastore"
	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
	"github.com/undetectableai/truthscan-twitter-bot/internal/oracle"
)

// apiEventPrefix namespaces API idempotency keys away from tweet ids so
// the two sources can never collide on the unique constraint.
const apiEventPrefix = "api:"

// DirectSubmission is one image submitted through the HTTP API rather
// than a mention. Exactly one of ImageURL and ImageData must be set;
// ImageData requires ContentType.
type DirectSubmission struct {
	ImageURL       string
	ImageData      []byte
	ContentType    string
	SourceHandle   string // credential name, recorded for attribution
	Description    string // optional caller text shown on the result page
	IdempotencyKey string // optional caller-supplied dedup key
}

// DirectResult reports the outcome of a direct submission.
type DirectResult struct {
	Detection    *datastore.Detection
	Page         *datastore.DetectionPage
	Duplicate    bool
	ProcessingMs int64
}

// ProcessDirect ingests a direct API submission. Unlike mentions, a URL
// submission downloads the image up front so validation failures surface
// to the caller immediately, and the bytes are cached on the record from
// the start. No reply is ever owed.
func (o *Orchestrator) ProcessDirect(ctx context.Context, sub *DirectSubmission) (*DirectResult, error) {
	start := time.Now()

	if err := sub.validate(); err != nil {
		return nil, err
	}

	if sub.IdempotencyKey != "" {
		existing, err := o.store.GetDetectionBySourceEventID(apiEventPrefix + sub.IdempotencyKey)
		switch {
		case err == nil:
			page, pageErr := o.store.GetPageByDetectionID(existing.ID)
			if pageErr != nil {
				return nil, pageErr
			}
			return &DirectResult{
				Detection:    &existing,
				Page:         &page,
				Duplicate:    true,
				ProcessingMs: time.Since(start).Milliseconds(),
			}, nil
		case errors.IsNotFound(err):
			// First sighting, proceed.
		default:
			return nil, err
		}
	}

	detection := &datastore.Detection{
		ID:           newDetectionID(),
		SourceHandle: sub.SourceHandle,
		Source:       datastore.SourceAPI,
		OracleStatus: datastore.OracleStatusPending,
	}
	if sub.IdempotencyKey != "" {
		key := apiEventPrefix + sub.IdempotencyKey
		detection.SourceEventID = &key
	}

	req := &oracle.Request{}
	switch {
	case sub.ImageURL != "":
		img, err := o.fetcher.Fetch(ctx, sub.ImageURL)
		if err != nil {
			return nil, err
		}
		detection.ImageURL = sub.ImageURL
		detection.ImageBlob = img.Data
		detection.ImageContentType = img.ContentType
		req.ImageData = img.Data
		req.ContentType = img.ContentType
	default:
		detection.ImageBlob = sub.ImageData
		detection.ImageContentType = sub.ContentType
		req.ImageData = sub.ImageData
		req.ContentType = sub.ContentType
	}

	o.classify(ctx, detection, req)
	o.enrich(detection, sub.Description)

	page, winner, err := o.persist(detection)
	if err != nil {
		if o.notifier != nil {
			o.notifier.IngestFailure("persist", err)
		}
		return nil, err
	}
	if winner != nil {
		return &DirectResult{
			Detection:    winner,
			Page:         page,
			Duplicate:    true,
			ProcessingMs: time.Since(start).Milliseconds(),
		}, nil
	}

	if o.metrics != nil {
		o.metrics.RecordDetectionCreated(datastore.SourceAPI)
	}
	o.recordVerdict(detection, datastore.SourceAPI)
	o.publishDetection(ctx, detection, page)

	logger.Info("direct submission processed",
		"detection_id", detection.ID,
		"page_id", page.PageID,
		"oracle_status", detection.OracleStatus,
		"duration_ms", time.Since(start).Milliseconds())

	return &DirectResult{
		Detection:    detection,
		Page:         page,
		ProcessingMs: time.Since(start).Milliseconds(),
	}, nil
}

func (sub *DirectSubmission) validate() error {
	hasURL := sub.ImageURL != ""
	hasData := len(sub.ImageData) > 0
	switch {
	case hasURL && hasData:
		return errors.Newf("submission carries both an image URL and image bytes").
			Category(errors.CategoryValidation).
			Component("ingest").
			Build()
	case !hasURL && !hasData:
		return errors.Newf("submission carries no image").
			Category(errors.CategoryValidation).
			Component("ingest").
			Build()
	case hasData && sub.ContentType == "":
		return errors.Newf("image bytes require a content type").
			Category(errors.CategoryValidation).
			Component("ingest").
			Build()
	}
	return nil
}
