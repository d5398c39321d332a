// internal/api/submit.go
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
	"github.com/undetectableai/truthscan-twitter-bot/internal/imagefetch"
	"github.com/undetectableai/truthscan-twitter-bot/internal/ingest"
)

var errTypeNotAllowed = errors.NewStd("content type not allowed")

// SubmitRequest is the JSON submission body.
type SubmitRequest struct {
	ImageURL string          `json:"imageUrl"`
	Metadata *SubmitMetadata `json:"metadata,omitempty"`
}

// SubmitMetadata carries optional caller-supplied context. In multipart
// submissions it arrives as a JSON string in the metadata form field.
type SubmitMetadata struct {
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
	Description    string `json:"description,omitempty"`
	Handle         string `json:"handle,omitempty"`
}

// SubmitResponse reports an accepted submission.
type SubmitResponse struct {
	Success    bool              `json:"success"`
	PageID     string            `json:"pageId"`
	PageURL    string            `json:"pageUrl"`
	Duplicate  bool              `json:"duplicate,omitempty"`
	Processing *ProcessingResult `json:"processing"`
}

// ProcessingResult summarizes the classification outcome at submit
// time. AIProbability is null when the oracle could not be reached; the
// record is retried in the background and the page updates on its own.
type ProcessingResult struct {
	AIProbability    *float64 `json:"aiProbability"`
	FinalResult      string   `json:"finalResult"`
	Confidence       *float64 `json:"confidence,omitempty"`
	ProcessingTimeMs int64    `json:"processingTimeMs"`
}

// initSubmissionRoutes registers the direct submission endpoint. The
// create-results-page route name is kept for existing integrations.
func (c *Controller) initSubmissionRoutes() {
	if !c.Settings.DirectAPI.Enabled {
		c.Debug("Direct submission API disabled, skipping submission routes")
		return
	}

	guards := []echo.MiddlewareFunc{
		c.AuthMiddleware(),
		c.RateLimitMiddleware(),
		middleware.BodyLimit(fmt.Sprintf("%dM", c.Settings.DirectAPI.MaxUploadMB)),
	}

	c.Group.POST("/create-results-page", c.SubmitDetection, guards...)
	c.Group.POST("/v1/detections", c.SubmitDetection, guards...)
}

// SubmitDetection accepts one image for analysis, runs the pipeline
// synchronously, and returns the public result page location.
func (c *Controller) SubmitDetection(ctx echo.Context) error {
	sub, err := c.parseSubmission(ctx)
	if err != nil {
		return c.rejectSubmission(ctx, err)
	}

	result, err := c.Ingest.ProcessDirect(ctx.Request().Context(), sub)
	if err != nil {
		return c.rejectSubmission(ctx, err)
	}

	if m := c.apiMetrics(); m != nil {
		m.ObserveSubmissionSize(float64(len(result.Detection.ImageBlob)))
		m.RecordSubmission("accepted")
	}

	return ctx.JSON(http.StatusOK, &SubmitResponse{
		Success:   true,
		PageID:    result.Page.PageID,
		PageURL:   c.Settings.PageURL(result.Page.PageID),
		Duplicate: result.Duplicate,
		Processing: &ProcessingResult{
			AIProbability:    result.Detection.AIProbability,
			FinalResult:      result.Detection.FinalResult(),
			Confidence:       result.Detection.Confidence,
			ProcessingTimeMs: result.ProcessingMs,
		},
	})
}

// parseSubmission extracts one submission from either a JSON body or a
// multipart upload.
func (c *Controller) parseSubmission(ctx echo.Context) (*ingest.DirectSubmission, error) {
	credential, _ := ctx.Get(credentialContextKey).(string)

	mediaType, _, _ := mime.ParseMediaType(ctx.Request().Header.Get(echo.HeaderContentType))
	if mediaType == echo.MIMEMultipartForm {
		return c.parseMultipartSubmission(ctx, credential)
	}
	return c.parseJSONSubmission(ctx, credential)
}

func (c *Controller) parseJSONSubmission(ctx echo.Context, credential string) (*ingest.DirectSubmission, error) {
	var req SubmitRequest
	if err := ctx.Bind(&req); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryValidation).
			Component("api").
			Context("operation", "bind_submission").
			Build()
	}
	if req.ImageURL == "" {
		return nil, errors.Newf("imageUrl is required").
			Category(errors.CategoryValidation).
			Component("api").
			Build()
	}

	sub := &ingest.DirectSubmission{
		ImageURL:     req.ImageURL,
		SourceHandle: credential,
	}
	applyMetadata(sub, req.Metadata)
	return sub, nil
}

func (c *Controller) parseMultipartSubmission(ctx echo.Context, credential string) (*ingest.DirectSubmission, error) {
	fileHeader, err := ctx.FormFile("image")
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryValidation).
			Component("api").
			Context("operation", "multipart_image_part").
			Build()
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryValidation).
			Component("api").
			Context("operation", "multipart_open").
			Build()
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryValidation).
			Component("api").
			Context("operation", "multipart_read").
			Build()
	}
	if len(data) == 0 {
		return nil, errors.Newf("image part is empty").
			Category(errors.CategoryValidation).
			Component("api").
			Build()
	}

	contentType := fileHeader.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if !c.Settings.ImageTypeAllowed(contentType) {
		return nil, errors.New(fmt.Errorf("%w: %s", errTypeNotAllowed, contentType)).
			Category(errors.CategoryValidation).
			Component("api").
			Context("content_type", contentType).
			Build()
	}

	sub := &ingest.DirectSubmission{
		ImageData:    data,
		ContentType:  contentType,
		SourceHandle: credential,
	}

	if raw := ctx.FormValue("metadata"); raw != "" {
		var meta SubmitMetadata
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return nil, errors.New(err).
				Category(errors.CategoryValidation).
				Component("api").
				Context("operation", "metadata_parse").
				Build()
		}
		applyMetadata(sub, &meta)
	}
	return sub, nil
}

// applyMetadata folds optional caller metadata into the submission. The
// handle defaults to the credential fingerprint so every record carries
// an attribution.
func applyMetadata(sub *ingest.DirectSubmission, meta *SubmitMetadata) {
	if meta == nil {
		return
	}
	sub.IdempotencyKey = meta.IdempotencyKey
	sub.Description = meta.Description
	if meta.Handle != "" {
		sub.SourceHandle = meta.Handle
	}
}

// rejectSubmission converts a submission failure into the error
// envelope and the matching outcome metric.
func (c *Controller) rejectSubmission(ctx echo.Context, err error) error {
	outcome := "failed"
	message := "Submission could not be processed"

	switch {
	case errors.Is(err, imagefetch.ErrTooLarge):
		outcome = "too_large"
		message = "Image exceeds the size limit"
	case errors.Is(err, imagefetch.ErrUnsupportedType), errors.Is(err, errTypeNotAllowed):
		outcome = "unsupported_type"
		message = "Image type is not supported"
	case errors.Is(err, imagefetch.ErrBadURL), errors.Is(err, imagefetch.ErrNoImage):
		outcome = "invalid"
		message = "Image could not be retrieved"
	case errors.IsCategory(err, errors.CategoryValidation):
		outcome = "invalid"
		message = "Submission failed validation"
	}

	if m := c.apiMetrics(); m != nil {
		m.RecordSubmission(outcome)
	}
	return c.HandleError(ctx, err, message, submissionStatus(err))
}

// submissionStatus maps pipeline failures onto response codes. Anything
// the caller can fix is a 400; the rest is a server fault.
func submissionStatus(err error) int {
	switch {
	case errors.IsCategory(err, errors.CategoryValidation),
		errors.IsCategory(err, errors.CategoryImageFetch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
