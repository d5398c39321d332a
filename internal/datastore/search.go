package datastore

import (
	"time"

	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
	"gorm.io/gorm"
)

// SearchFilters narrows detection listings. Zero values mean "no filter".
type SearchFilters struct {
	Source         string     // mention or api
	Verdict        string     // AI Generated, Human Created or Uncertain
	OracleStatus   string     // pending, complete, unsupported or failed
	SourceHandle   string     // exact handle match
	Query          string     // substring match on handle and image description
	Since          *time.Time // created at or after
	Until          *time.Time // created before
	IncludeDeleted bool
	SortAscending  bool
	Limit          int
	Offset         int
}

// buildSearchQuery translates filters into a query. The verdict filter maps
// back to probability ranges because the verdict itself is derived, not
// stored.
func (ds *DataStore) buildSearchQuery(filters *SearchFilters) *gorm.DB {
	query := ds.DB.Model(&Detection{})
	if filters.IncludeDeleted {
		query = query.Unscoped()
	}
	if filters.Source != "" {
		query = query.Where("source = ?", filters.Source)
	}
	if filters.OracleStatus != "" {
		query = query.Where("oracle_status = ?", filters.OracleStatus)
	}
	if filters.SourceHandle != "" {
		query = query.Where("source_handle = ?", filters.SourceHandle)
	}

	switch filters.Verdict {
	case ResultAIGenerated:
		query = query.Where("ai_probability >= ?", AIGeneratedThreshold)
	case ResultHumanCreated:
		query = query.Where("ai_probability <= ?", HumanCreatedThreshold)
	case ResultUncertain:
		query = query.Where("ai_probability > ? AND ai_probability < ?",
			HumanCreatedThreshold, AIGeneratedThreshold)
	}

	if filters.Query != "" {
		pattern := "%" + filters.Query + "%"
		query = query.Where("source_handle LIKE ? OR image_description LIKE ?", pattern, pattern)
	}
	if filters.Since != nil {
		query = query.Where("created_at >= ?", *filters.Since)
	}
	if filters.Until != nil {
		query = query.Where("created_at < ?", *filters.Until)
	}

	return query
}

// SearchDetections returns detections matching the filters, newest first
// unless ascending order is requested. Each result carries its page
// association for callers that build public URLs.
func (ds *DataStore) SearchDetections(filters *SearchFilters) ([]Detection, error) {
	if filters == nil {
		filters = &SearchFilters{}
	}

	query := ds.buildSearchQuery(filters).Preload("Page")

	order := "created_at DESC"
	if filters.SortAscending {
		order = "created_at ASC"
	}
	query = query.Order(order)

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var detections []Detection
	if err := query.Find(&detections).Error; err != nil {
		return nil, dbError(err, "search_detections", errors.PriorityMedium)
	}
	return detections, nil
}

// CountDetections returns the number of detections matching the filters.
func (ds *DataStore) CountDetections(filters *SearchFilters) (int64, error) {
	if filters == nil {
		filters = &SearchFilters{}
	}

	var count int64
	if err := ds.buildSearchQuery(filters).Count(&count).Error; err != nil {
		return 0, dbError(err, "count_detections", errors.PriorityMedium)
	}
	return count, nil
}
