// internal/api/detections.go
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/undetectableai/truthscan-twitter-bot/internal/datastore"
	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
)

// initDetectionRoutes registers the read surface over stored detections.
func (c *Controller) initDetectionRoutes() {
	if !c.Settings.DirectAPI.Enabled {
		c.Debug("Direct submission API disabled, skipping detection routes")
		return
	}
	c.Group.GET("/v1/detections", c.GetDetections, c.AuthMiddleware())
	c.Group.GET("/v1/detections/:id", c.GetDetection, c.AuthMiddleware())
}

// PaginatedResponse wraps list results with pagination metadata.
type PaginatedResponse struct {
	Data        any   `json:"data"`
	Total       int64 `json:"total"`
	Limit       int   `json:"limit"`
	Offset      int   `json:"offset"`
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
}

// DetectionResponse is the API representation of one detection record.
type DetectionResponse struct {
	ID            string    `json:"id"`
	PageID        string    `json:"pageId,omitempty"`
	PageURL       string    `json:"pageUrl,omitempty"`
	Source        string    `json:"source"`
	SourceHandle  string    `json:"sourceHandle,omitempty"`
	AIProbability *float64  `json:"aiProbability"`
	Confidence    *float64  `json:"confidence,omitempty"`
	FinalResult   string    `json:"finalResult"`
	OracleStatus  string    `json:"oracleStatus"`
	ReplyStatus   string    `json:"replyStatus,omitempty"`
	ViewCount     int64     `json:"viewCount"`
	Deleted       bool      `json:"deleted,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// GetDetections returns a filtered, paginated slice of detections.
func (c *Controller) GetDetections(ctx echo.Context) error {
	filters := searchFiltersFromQuery(ctx)

	detections, err := c.DS.SearchDetections(filters)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to search detections", http.StatusInternalServerError)
	}
	total, err := c.DS.CountDetections(filters)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to count detections", http.StatusInternalServerError)
	}

	responses := make([]DetectionResponse, 0, len(detections))
	for i := range detections {
		responses = append(responses, c.detectionResponse(&detections[i]))
	}

	currentPage := (filters.Offset / filters.Limit) + 1
	totalPages := int((total + int64(filters.Limit) - 1) / int64(filters.Limit))

	return ctx.JSON(http.StatusOK, &PaginatedResponse{
		Data:        responses,
		Total:       total,
		Limit:       filters.Limit,
		Offset:      filters.Offset,
		CurrentPage: currentPage,
		TotalPages:  totalPages,
	})
}

// GetDetection returns a single detection by its record id.
func (c *Controller) GetDetection(ctx echo.Context) error {
	id := ctx.Param("id")
	if id == "" {
		return c.HandleError(ctx, errors.NewStd("detection id is required"),
			"Detection ID is required", http.StatusBadRequest)
	}

	detection, err := c.DS.GetDetection(id)
	if err != nil {
		if errors.IsNotFound(err) {
			return c.HandleError(ctx, err, "Detection not found", http.StatusNotFound)
		}
		return c.HandleError(ctx, err, "Failed to load detection", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, c.detectionResponse(&detection))
}

// searchFiltersFromQuery translates query parameters into search
// filters. Unparseable values fall back to defaults rather than failing
// the request.
func searchFiltersFromQuery(ctx echo.Context) *datastore.SearchFilters {
	filters := &datastore.SearchFilters{Limit: 20}

	if limitStr := ctx.QueryParam("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			if limit > 100 {
				limit = 100
			}
			filters.Limit = limit
		}
	}
	if offsetStr := ctx.QueryParam("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filters.Offset = offset
		}
	}

	filters.Source = ctx.QueryParam("source")
	filters.Verdict = ctx.QueryParam("verdict")
	filters.OracleStatus = ctx.QueryParam("oracle_status")
	filters.SourceHandle = ctx.QueryParam("handle")
	filters.Query = ctx.QueryParam("search")

	if sinceStr := ctx.QueryParam("since"); sinceStr != "" {
		if since, err := time.Parse(time.RFC3339, sinceStr); err == nil {
			filters.Since = &since
		}
	}
	if untilStr := ctx.QueryParam("until"); untilStr != "" {
		if until, err := time.Parse(time.RFC3339, untilStr); err == nil {
			filters.Until = &until
		}
	}

	filters.IncludeDeleted = ctx.QueryParam("include_deleted") == "true"
	filters.SortAscending = ctx.QueryParam("sort") == "asc"

	return filters
}

// detectionResponse converts a record to its API shape. Searches
// preload the page association; single-record loads resolve it on
// demand.
func (c *Controller) detectionResponse(detection *datastore.Detection) DetectionResponse {
	resp := DetectionResponse{
		ID:            detection.ID,
		Source:        detection.Source,
		SourceHandle:  detection.SourceHandle,
		AIProbability: detection.AIProbability,
		Confidence:    detection.Confidence,
		FinalResult:   detection.FinalResult(),
		OracleStatus:  detection.OracleStatus,
		ReplyStatus:   detection.ReplyStatus,
		Deleted:       detection.IsDeleted(),
		CreatedAt:     detection.CreatedAt,
	}

	page := detection.Page
	if page == nil {
		if p, err := c.DS.GetPageByDetectionID(detection.ID); err == nil {
			page = &p
		}
	}
	if page != nil {
		resp.PageID = page.PageID
		resp.PageURL = c.Settings.PageURL(page.PageID)
		resp.ViewCount = page.ViewCount
	}
	return resp
}
