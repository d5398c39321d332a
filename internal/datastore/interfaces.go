// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"time"

	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
	"gorm.io/gorm"
)

// maxPageInsertAttempts bounds identifier redraws inside a single
// SaveDetection transaction. Each redraw means the candidate lost a race
// against a page committed after the generator's existence check.
const maxPageInsertAttempts = 5

// Interface abstracts the underlying database implementation and defines the
// operations the rest of the application performs against it.
type Interface interface {
	Open() error
	Close() error
	Optimize() error

	SaveDetection(detection *Detection, allocatePageID func() (string, error)) (*DetectionPage, error)
	GetDetection(id string) (Detection, error)
	GetDetectionBySourceEventID(sourceEventID string) (Detection, error)
	GetByPageID(pageID string) (Detection, DetectionPage, error)
	GetPageByDetectionID(detectionID string) (DetectionPage, error)
	PageIDExists(pageID string) (bool, error)

	IncrementViewCount(pageID string) error
	UpdateClassification(id string, probability float64, confidence *float64) error
	MarkOracleFailed(id string) error
	MarkOracleUnsupported(id string) error
	MarkReply(id string, sent bool) error
	UpdateEnrichment(id, imageDescription, metaDescription string) error
	CacheImageBlob(id string, blob []byte, contentType string) error
	SetRobotsIndex(id string, index bool) error
	SoftDeleteDetection(id string) error

	ListOracleRetries(maxAttempts, limit int) ([]Detection, error)
	ListReplyRetries(maxAttempts, limit int) ([]Detection, error)
	SearchDetections(filters *SearchFilters) ([]Detection, error)
	CountDetections(filters *SearchFilters) (int64, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		return nil
	}
}

// SaveDetection stores a detection and allocates its public page identifier as
// a single transaction. allocatePageID is called for every candidate; a
// candidate that loses an insert race is rolled back to a savepoint and
// redrawn without discarding the detection insert.
func (ds *DataStore) SaveDetection(detection *Detection, allocatePageID func() (string, error)) (*DetectionPage, error) {
	if detection == nil {
		return nil, validationError("detection must not be nil", "detection", nil)
	}
	if allocatePageID == nil {
		return nil, validationError("page identifier allocator must not be nil", "allocate_page_id", nil)
	}

	start := time.Now()
	var page *DetectionPage

	txErr := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(detection).Error; err != nil {
			if isUniqueConstraintError(err) && detection.SourceEventID != nil {
				return conflictError(err, "save_detection", "source_event_id",
					"source_event_id", *detection.SourceEventID)
			}
			return dbError(err, "save_detection", errors.PriorityHigh, "detection_id", detection.ID)
		}

		for attempt := 1; attempt <= maxPageInsertAttempts; attempt++ {
			pageID, err := allocatePageID()
			if err != nil {
				return err
			}

			candidate := &DetectionPage{PageID: pageID, DetectionID: detection.ID}

			// The nested transaction becomes a savepoint, so a losing
			// insert does not poison the outer transaction.
			insertErr := tx.Transaction(func(inner *gorm.DB) error {
				return inner.Create(candidate).Error
			})
			if insertErr == nil {
				page = candidate
				return nil
			}
			if !isUniqueConstraintError(insertErr) {
				return dbError(insertErr, "save_detection_page", errors.PriorityHigh,
					"detection_id", detection.ID, "page_id", pageID)
			}

			if m := getMetrics(); m != nil {
				m.RecordTransactionRetry("save_detection", "page_id_collision")
			}
		}

		return errors.Newf("page identifier allocation collided %d times", maxPageInsertAttempts).
			Component("datastore").
			Category(errors.CategoryPageID).
			Priority(errors.PriorityCritical).
			Context("operation", "save_detection").
			Context("detection_id", detection.ID).
			Build()
	})

	if m := getMetrics(); m != nil {
		status := "success"
		txStatus := "committed"
		if txErr != nil {
			status = "error"
			txStatus = "rollback"
		}
		m.RecordTransaction(txStatus)
		m.RecordDetectionOperation("save", status)
		m.RecordDetectionOperationDuration("save", time.Since(start).Seconds())
	}

	if txErr != nil {
		return nil, txErr
	}
	return page, nil
}

// GetDetection retrieves a detection by its primary identifier. Soft deleted
// records are not returned.
func (ds *DataStore) GetDetection(id string) (Detection, error) {
	var detection Detection
	if err := ds.DB.Where("id = ?", id).First(&detection).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Detection{}, notFoundError("detection", id)
		}
		return Detection{}, dbError(err, "get_detection", errors.PriorityMedium, "detection_id", id)
	}
	return detection, nil
}

// GetDetectionBySourceEventID retrieves a detection by the originating event
// identifier. The lookup is unscoped because the uniqueness guarantee on
// source_event_id spans soft deleted records.
func (ds *DataStore) GetDetectionBySourceEventID(sourceEventID string) (Detection, error) {
	if sourceEventID == "" {
		return Detection{}, validationError("source event ID must not be empty", "source_event_id", sourceEventID)
	}

	var detection Detection
	if err := ds.DB.Unscoped().Where("source_event_id = ?", sourceEventID).First(&detection).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Detection{}, notFoundError("detection", sourceEventID)
		}
		return Detection{}, dbError(err, "get_detection_by_source_event", errors.PriorityMedium,
			"source_event_id", sourceEventID)
	}
	return detection, nil
}

// GetByPageID resolves a public page identifier to its detection. A page
// whose detection has been soft deleted yields a gone error so callers can
// distinguish retired pages from identifiers that never existed.
func (ds *DataStore) GetByPageID(pageID string) (Detection, DetectionPage, error) {
	var page DetectionPage
	if err := ds.DB.Where("page_id = ?", pageID).First(&page).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Detection{}, DetectionPage{}, notFoundError("detection page", pageID)
		}
		return Detection{}, DetectionPage{}, dbError(err, "get_by_page_id", errors.PriorityMedium, "page_id", pageID)
	}

	var detection Detection
	if err := ds.DB.Unscoped().Where("id = ?", page.DetectionID).First(&detection).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// The page row outlived its detection; the identifier stays burned.
			return Detection{}, page, goneError("detection", pageID)
		}
		return Detection{}, page, dbError(err, "get_by_page_id", errors.PriorityMedium, "page_id", pageID)
	}

	if detection.IsDeleted() {
		return Detection{}, page, goneError("detection", pageID)
	}
	return detection, page, nil
}

// GetPageByDetectionID retrieves the page record owned by a detection.
func (ds *DataStore) GetPageByDetectionID(detectionID string) (DetectionPage, error) {
	var page DetectionPage
	if err := ds.DB.Where("detection_id = ?", detectionID).First(&page).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return DetectionPage{}, notFoundError("detection page", detectionID)
		}
		return DetectionPage{}, dbError(err, "get_page_by_detection", errors.PriorityMedium,
			"detection_id", detectionID)
	}
	return page, nil
}

// PageIDExists reports whether a page identifier is already taken. Allocation
// uses this as a cheap pre-check; the unique index on page_id remains the
// authority.
func (ds *DataStore) PageIDExists(pageID string) (bool, error) {
	var count int64
	if err := ds.DB.Model(&DetectionPage{}).Where("page_id = ?", pageID).Count(&count).Error; err != nil {
		return false, dbError(err, "page_id_exists", errors.PriorityMedium, "page_id", pageID)
	}
	return count > 0, nil
}

// IncrementViewCount adds one successful render to the page's view counter.
// The increment runs in SQL so concurrent renders cannot lose updates.
func (ds *DataStore) IncrementViewCount(pageID string) error {
	result := ds.DB.Model(&DetectionPage{}).
		Where("page_id = ?", pageID).
		Updates(map[string]any{
			"view_count":     gorm.Expr("view_count + ?", 1),
			"last_viewed_at": time.Now(),
		})
	if result.Error != nil {
		return dbError(result.Error, "increment_view_count", errors.PriorityLow, "page_id", pageID)
	}
	if result.RowsAffected == 0 {
		return notFoundError("detection page", pageID)
	}
	return nil
}

// UpdateClassification records the oracle verdict for a detection. The
// probability transitions from null to a value exactly once; a second verdict
// for the same detection is rejected as a conflict.
func (ds *DataStore) UpdateClassification(id string, probability float64, confidence *float64) error {
	if probability < 0 || probability > 1 {
		return validationError("probability must be within [0, 1]", "ai_probability", probability)
	}

	result := ds.DB.Model(&Detection{}).
		Where("id = ? AND ai_probability IS NULL", id).
		Updates(map[string]any{
			"ai_probability":  probability,
			"confidence":      confidence,
			"oracle_status":   OracleStatusComplete,
			"oracle_attempts": gorm.Expr("oracle_attempts + ?", 1),
		})
	if result.Error != nil {
		return dbError(result.Error, "update_classification", errors.PriorityHigh, "detection_id", id)
	}
	if result.RowsAffected == 0 {
		exists, err := ds.detectionExists(id)
		if err != nil {
			return err
		}
		if !exists {
			return notFoundError("detection", id)
		}
		return errors.Newf("classification already recorded").
			Component("datastore").
			Category(errors.CategoryConflict).
			Priority(errors.PriorityMedium).
			Context("operation", "update_classification").
			Context("detection_id", id).
			Build()
	}

	if m := getMetrics(); m != nil {
		m.RecordDetectionOperation("classify", "success")
	}
	return nil
}

// detectionExists checks for a detection row regardless of soft delete state.
func (ds *DataStore) detectionExists(id string) (bool, error) {
	var count int64
	if err := ds.DB.Unscoped().Model(&Detection{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, dbError(err, "detection_exists", errors.PriorityMedium, "detection_id", id)
	}
	return count > 0, nil
}

// MarkOracleFailed records a failed classification attempt. A detection whose
// verdict landed concurrently is left untouched.
func (ds *DataStore) MarkOracleFailed(id string) error {
	return ds.markOracleStatus(id, OracleStatusFailed, "mark_oracle_failed")
}

// MarkOracleUnsupported marks a detection the oracle permanently refused.
func (ds *DataStore) MarkOracleUnsupported(id string) error {
	return ds.markOracleStatus(id, OracleStatusUnsupported, "mark_oracle_unsupported")
}

func (ds *DataStore) markOracleStatus(id, status, operation string) error {
	result := ds.DB.Model(&Detection{}).
		Where("id = ? AND ai_probability IS NULL", id).
		Updates(map[string]any{
			"oracle_status":   status,
			"oracle_attempts": gorm.Expr("oracle_attempts + ?", 1),
		})
	if result.Error != nil {
		return dbError(result.Error, operation, errors.PriorityMedium, "detection_id", id)
	}
	if result.RowsAffected == 0 {
		exists, err := ds.detectionExists(id)
		if err != nil {
			return err
		}
		if !exists {
			return notFoundError("detection", id)
		}
		// Verdict landed between the attempt and this bookkeeping; nothing
		// left to record.
	}
	return nil
}

// MarkReply records the outcome of the reply posted back to the mentioning
// user.
func (ds *DataStore) MarkReply(id string, sent bool) error {
	status := ReplyStatusFailed
	if sent {
		status = ReplyStatusSent
	}

	result := ds.DB.Model(&Detection{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"reply_status":   status,
			"reply_attempts": gorm.Expr("reply_attempts + ?", 1),
		})
	if result.Error != nil {
		return dbError(result.Error, "mark_reply", errors.PriorityMedium, "detection_id", id)
	}
	if result.RowsAffected == 0 {
		return notFoundError("detection", id)
	}
	return nil
}

// UpdateEnrichment stores the generated image description and the page meta
// description.
func (ds *DataStore) UpdateEnrichment(id, imageDescription, metaDescription string) error {
	result := ds.DB.Model(&Detection{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"image_description": imageDescription,
			"meta_description":  metaDescription,
		})
	if result.Error != nil {
		return dbError(result.Error, "update_enrichment", errors.PriorityLow, "detection_id", id)
	}
	if result.RowsAffected == 0 {
		// MySQL reports zero affected rows for same-value updates, so only a
		// missing row is an error.
		exists, err := ds.detectionExists(id)
		if err != nil {
			return err
		}
		if !exists {
			return notFoundError("detection", id)
		}
	}
	return nil
}

// CacheImageBlob stores downloaded image bytes so later renders do not depend
// on the remote URL staying alive. The write is opportunistic and never
// replaces an existing blob.
func (ds *DataStore) CacheImageBlob(id string, blob []byte, contentType string) error {
	if len(blob) == 0 {
		return validationError("image blob must not be empty", "image_blob", len(blob))
	}

	result := ds.DB.Model(&Detection{}).
		Where("id = ? AND (image_blob IS NULL OR length(image_blob) = 0)", id).
		Updates(map[string]any{
			"image_blob":         blob,
			"image_content_type": contentType,
		})
	if result.Error != nil {
		if m := getMetrics(); m != nil {
			m.RecordImageCacheOperation("store", "error")
		}
		return dbError(result.Error, "cache_image_blob", errors.PriorityLow,
			"detection_id", id, "blob_bytes", len(blob))
	}

	if m := getMetrics(); m != nil {
		if result.RowsAffected == 0 {
			m.RecordImageCacheOperation("store", "skipped")
		} else {
			m.RecordImageCacheOperation("store", "success")
		}
	}
	return nil
}

// SetRobotsIndex switches a page between noindex and indexable.
func (ds *DataStore) SetRobotsIndex(id string, index bool) error {
	result := ds.DB.Model(&Detection{}).Where("id = ?", id).Update("robots_index", index)
	if result.Error != nil {
		return dbError(result.Error, "set_robots_index", errors.PriorityLow, "detection_id", id)
	}
	if result.RowsAffected == 0 {
		exists, err := ds.detectionExists(id)
		if err != nil {
			return err
		}
		if !exists {
			return notFoundError("detection", id)
		}
	}
	return nil
}

// SoftDeleteDetection retires a detection. The page identifier stays reserved
// so the public URL reports gone instead of being reissued. Deleting an
// already deleted detection is a no-op.
func (ds *DataStore) SoftDeleteDetection(id string) error {
	result := ds.DB.Where("id = ?", id).Delete(&Detection{})
	if result.Error != nil {
		return dbError(result.Error, "soft_delete_detection", errors.PriorityMedium, "detection_id", id)
	}
	if result.RowsAffected == 0 {
		exists, err := ds.detectionExists(id)
		if err != nil {
			return err
		}
		if !exists {
			return notFoundError("detection", id)
		}
		// Already deleted.
		return nil
	}

	if m := getMetrics(); m != nil {
		m.RecordDetectionOperation("delete", "success")
	}
	return nil
}

// ListOracleRetries returns detections whose classification failed and still
// have retry budget left, oldest first.
func (ds *DataStore) ListOracleRetries(maxAttempts, limit int) ([]Detection, error) {
	var detections []Detection
	err := ds.DB.
		Where("oracle_status = ? AND oracle_attempts < ?", OracleStatusFailed, maxAttempts).
		Order("updated_at ASC").
		Limit(limit).
		Find(&detections).Error
	if err != nil {
		return nil, dbError(err, "list_oracle_retries", errors.PriorityMedium, "max_attempts", maxAttempts)
	}
	return detections, nil
}

// ListReplyRetries returns detections whose reply failed, still have retry
// budget left and know which post to reply to, oldest first.
func (ds *DataStore) ListReplyRetries(maxAttempts, limit int) ([]Detection, error) {
	var detections []Detection
	err := ds.DB.
		Where("reply_status = ? AND reply_attempts < ? AND source_tweet_id <> ''",
			ReplyStatusFailed, maxAttempts).
		Order("updated_at ASC").
		Limit(limit).
		Find(&detections).Error
	if err != nil {
		return nil, dbError(err, "list_reply_retries", errors.PriorityMedium, "max_attempts", maxAttempts)
	}
	return detections, nil
}

// Optimize performs database maintenance. SQLite gets VACUUM and ANALYZE;
// other engines manage this server side.
func (ds *DataStore) Optimize() error {
	if ds.DB == nil {
		return validationError("database connection is not initialized", "db", nil)
	}
	if ds.DB.Dialector.Name() != "sqlite" {
		return nil
	}
	if err := ds.DB.Exec("VACUUM").Error; err != nil {
		return dbError(err, "optimize", errors.PriorityLow, "statement", "VACUUM")
	}
	if err := ds.DB.Exec("ANALYZE").Error; err != nil {
		return dbError(err, "optimize", errors.PriorityLow, "statement", "ANALYZE")
	}
	return nil
}
