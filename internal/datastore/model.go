// model.go this code defines the data model for the application
package datastore

import (
	"time"

	"gorm.io/gorm"
)

// Classification thresholds for deriving the final result label from
// the AI probability score. Fixed by product policy.
const (
	AIGeneratedThreshold  = 0.7
	HumanCreatedThreshold = 0.3
)

// Final result labels shown on pages and returned by the API.
const (
	ResultAIGenerated  = "AI Generated"
	ResultHumanCreated = "Human Created"
	ResultUncertain    = "Uncertain"
)

// Oracle status values for a Detection.
const (
	OracleStatusPending     = "pending"     // classification not yet attempted or in flight
	OracleStatusComplete    = "complete"    // probability recorded
	OracleStatusUnsupported = "unsupported" // oracle rejected the image, terminal
	OracleStatusFailed      = "failed"      // retry budget exhausted, eligible for async retry
)

// Reply status values for a Detection. Empty means no reply is owed
// (direct API submissions).
const (
	ReplyStatusPending = "pending"
	ReplyStatusSent    = "sent"
	ReplyStatusFailed  = "failed"
)

// Detection source values.
const (
	SourceMention = "mention"
	SourceAPI     = "api"
)

// Detection represents a single image's AI-probability analysis record
type Detection struct {
	ID            string  `gorm:"primaryKey;size:36"`
	SourceEventID *string `gorm:"uniqueIndex:idx_detections_source_event;size:64"` // idempotency key, NULLs do not collide
	SourceTweetID string  `gorm:"size:32"`                                         // tweet to reply to, empty for API submissions
	SourceHandle  string  `gorm:"size:64"`
	Source        string  `gorm:"size:16;index:idx_detections_source"` // mention or api

	// Image representation. At least one of URL and blob must be
	// resolvable; the blob is cached opportunistically from the URL.
	ImageURL         string `gorm:"size:2048"`
	ImageBlob        []byte `gorm:"type:mediumblob"`
	ImageContentType string `gorm:"size:64"`

	// Classification state. AIProbability transitions null to non-null
	// exactly once and is never reset. The column name is pinned because
	// gorm's initialism handling would otherwise derive a_iprobability,
	// while every raw query in this package uses ai_probability.
	AIProbability  *float64 `gorm:"column:ai_probability"`
	Confidence     *float64
	OracleStatus   string `gorm:"size:16;index:idx_detections_oracle_retry,priority:1"`
	OracleAttempts int    `gorm:"index:idx_detections_oracle_retry,priority:2"`
	ReplyStatus    string `gorm:"size:16;index:idx_detections_reply_status"`
	ReplyAttempts  int

	// Enrichment text rendered into the page and its meta tags.
	ImageDescription string `gorm:"type:text"`
	MetaDescription  string `gorm:"type:text"`

	// RobotsIndex defaults to false and flips only via the promotion
	// policy surface, never during ingestion.
	RobotsIndex bool

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index:idx_detections_deleted_at"`

	Page *DetectionPage `gorm:"foreignKey:DetectionID;references:ID;constraint:OnDelete:CASCADE"`
}

// FinalResult derives the categorical label from AIProbability against the
// fixed thresholds. It returns an empty string while classification is
// pending, so callers can render a processing state instead.
func (d *Detection) FinalResult() string {
	if d.AIProbability == nil {
		return ""
	}
	switch {
	case *d.AIProbability >= AIGeneratedThreshold:
		return ResultAIGenerated
	case *d.AIProbability <= HumanCreatedThreshold:
		return ResultHumanCreated
	default:
		return ResultUncertain
	}
}

// HasBlob reports whether cached image bytes are available to serve.
func (d *Detection) HasBlob() bool {
	return len(d.ImageBlob) > 0
}

// HasImage reports whether any image representation is resolvable.
func (d *Detection) HasImage() bool {
	return d.ImageURL != "" || d.HasBlob()
}

// IsDeleted reports whether the detection has been soft deleted.
func (d *Detection) IsDeleted() bool {
	return d.DeletedAt.Valid
}

// DetectionPage is the externally addressable projection of a Detection.
// Page IDs are never reused, even after the owning detection is deleted.
type DetectionPage struct {
	PageID       string `gorm:"primaryKey;size:16"`
	DetectionID  string `gorm:"uniqueIndex:idx_pages_detection;size:36;not null"`
	ViewCount    int64
	LastViewedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
