package httpcontroller

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
)

func (s *Server) handleDetectionImage(c echo.Context) error {
	return s.serveDetectionImage(c, "full")
}

func (s *Server) handleDetectionThumb(c echo.Context) error {
	return s.serveDetectionImage(c, "thumb")
}

// serveDetectionImage serves the analyzed image from the local blob when one
// is stored, otherwise it pulls the remote URL through the fetcher, which
// writes the bytes back so the next request is served locally. If the fetch
// fails the client is redirected to the origin URL as a last resort.
func (s *Server) serveDetectionImage(c echo.Context, variant string) error {
	pageID := c.Param("pageid")

	detection, _, err := s.DS.GetByPageID(pageID)
	switch {
	case errors.IsNotFound(err):
		return c.NoContent(http.StatusNotFound)
	case errors.IsGone(err):
		return c.NoContent(http.StatusGone)
	case err != nil:
		s.LogError(c, err, "image lookup failed")
		return c.NoContent(http.StatusInternalServerError)
	}

	if !detection.HasImage() {
		return c.NoContent(http.StatusNotFound)
	}

	source := "remote"
	if detection.HasBlob() {
		source = "blob"
	}

	img, err := s.Fetcher.FetchForDetection(c.Request().Context(), s.DS, &detection)
	if err != nil {
		if detection.ImageURL != "" {
			if m := s.pageMetrics(); m != nil {
				m.RecordImageServe(variant, "redirect")
			}
			return c.Redirect(http.StatusFound, detection.ImageURL)
		}
		s.LogError(c, err, "image fetch failed")
		return c.NoContent(http.StatusNotFound)
	}

	contentType := img.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(img.Data)
	}

	if m := s.pageMetrics(); m != nil {
		m.RecordImageServe(variant, source)
	}
	c.Response().Header().Set("Cache-Control", "public, max-age=86400")
	return c.Blob(http.StatusOK, contentType, img.Data)
}
