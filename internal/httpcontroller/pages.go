package httpcontroller

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/undetectableai/truthscan-twitter-bot/internal/datastore"
	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
)

// cachedRender is a fully rendered response, replayable from the cache.
type cachedRender struct {
	status       int
	cacheControl string
	body         []byte
}

// handleDetectionPage serves GET /d/:pageid. A page id is never reused, so
// the render cache can key on it directly. Cache hits still count views.
func (s *Server) handleDetectionPage(c echo.Context) error {
	pageID := c.Param("pageid")

	if entry, ok := s.cachedPage(pageID); ok {
		if m := s.pageMetrics(); m != nil {
			m.RecordRenderCache("hit")
		}
		s.finishPageView(pageID, entry.status)
		return s.writeRendered(c, entry)
	}
	if m := s.pageMetrics(); m != nil {
		m.RecordRenderCache("miss")
	}

	start := time.Now()
	entry, cacheTTL := s.renderPage(c, pageID)
	if m := s.pageMetrics(); m != nil {
		m.ObserveRenderDuration(time.Since(start).Seconds())
	}

	if cacheTTL > 0 {
		s.storeRendered(pageID, entry, cacheTTL)
	}
	s.finishPageView(pageID, entry.status)
	return s.writeRendered(c, entry)
}

// renderPage produces the response body for a page id along with the
// duration it may be cached for. A zero duration means do not cache.
func (s *Server) renderPage(c echo.Context, pageID string) (*cachedRender, time.Duration) {
	pageTTL := time.Duration(s.Settings.WebServer.Cache.PageTTL) * time.Second
	negativeTTL := time.Duration(s.Settings.WebServer.Cache.NegativeTTL) * time.Second

	detection, page, err := s.DS.GetByPageID(pageID)
	switch {
	case err == nil:
		data := s.detectionData(&detection, &page)
		body, rerr := s.renderer.renderBytes("detection.html", data)
		if rerr != nil {
			s.LogError(c, rerr, "detection page render failed")
			return s.errorRender(), 0
		}
		ttl := pageTTL
		if data.Processing {
			// Short TTL so the verdict replaces the placeholder promptly.
			ttl = negativeTTL
		}
		return &cachedRender{status: http.StatusOK, cacheControl: maxAge(ttl), body: body}, ttl

	case errors.IsGone(err):
		body := s.renderErrorPage("Result Removed",
			"This detection result has been removed and is no longer available.")
		return &cachedRender{status: http.StatusGone, cacheControl: maxAge(negativeTTL), body: body}, negativeTTL

	case errors.IsNotFound(err):
		body := s.renderErrorPage("Result Not Found",
			"No detection result exists at this address. The link may be mistyped or expired.")
		return &cachedRender{status: http.StatusNotFound, cacheControl: maxAge(negativeTTL), body: body}, negativeTTL

	default:
		s.LogError(c, err, "detection page lookup failed")
		return s.errorRender(), 0
	}
}

// detectionData assembles the template data for a detection page. All asset
// URLs point back at this server so the page never leaks a third-party image
// location into link previews.
func (s *Server) detectionData(detection *datastore.Detection, page *datastore.DetectionPage) *detectionPageData {
	pageURL := s.Settings.PageURL(page.PageID)

	data := &detectionPageData{
		PageID:           page.PageID,
		PageURL:          pageURL,
		ImageURL:         pageURL + "/image",
		ThumbURL:         pageURL + "/thumb",
		SiteName:         s.Settings.Main.Name,
		Handle:           detection.SourceHandle,
		ImageDescription: detection.ImageDescription,
		MetaDescription:  detection.MetaDescription,
		CreatedAt:        page.CreatedAt,
		ViewCount:        page.ViewCount,
	}

	switch detection.Source {
	case datastore.SourceMention:
		data.SourceLabel = "twitter mention"
	default:
		data.SourceLabel = "direct upload"
	}

	if detection.RobotsIndex {
		data.RobotsContent = "index, follow"
	} else {
		data.RobotsContent = "noindex, nofollow"
	}

	if detection.AIProbability == nil {
		data.Processing = true
		data.Title = "Analysis in Progress"
		if data.MetaDescription == "" {
			data.MetaDescription = "This image is being analyzed for signs of AI generation."
		}
		return data
	}

	data.Probability = *detection.AIProbability
	data.Verdict = detection.FinalResult()
	if detection.Confidence != nil {
		data.HasConfidence = true
		data.ConfidencePct = int(math.Round(*detection.Confidence * 100))
	}
	pct := int(math.Round(data.Probability * 100))
	data.Title = fmt.Sprintf("%s, %d%% AI Probability", data.Verdict, pct)
	if data.MetaDescription == "" {
		data.MetaDescription = fmt.Sprintf("AI image detection result: %s with a %d%% AI probability.", data.Verdict, pct)
	}
	return data
}

// finishPageView records the page view and, for successful views only,
// performs the best-effort view counter increment. A failed increment never
// fails the request.
func (s *Server) finishPageView(pageID string, status int) {
	m := s.pageMetrics()
	switch status {
	case http.StatusOK:
		if m != nil {
			m.RecordPageView("ok")
		}
		if err := s.DS.IncrementViewCount(pageID); err != nil {
			if m != nil {
				m.IncrementViewCountErrors()
			}
			if s.webLogger != nil {
				s.webLogger.Warn("view count increment failed", "page_id", pageID, "error", err.Error())
			}
		}
	case http.StatusNotFound:
		if m != nil {
			m.RecordPageView("not_found")
		}
	case http.StatusGone:
		if m != nil {
			m.RecordPageView("gone")
		}
	}
}

// renderErrorPage renders a branded error body, falling back to a minimal
// document if the template itself fails.
func (s *Server) renderErrorPage(title, message string) []byte {
	body, err := s.renderer.renderBytes("errorpage.html", &errorPageData{
		SiteName: s.Settings.Main.Name,
		Title:    title,
		Message:  message,
	})
	if err != nil {
		s.Echo.Logger.Errorf("error page render failed: %v", err)
		return []byte("<!DOCTYPE html><html><body><h1>" + title + "</h1></body></html>")
	}
	return body
}

// errorRender is the branded 500 response. Never cached.
func (s *Server) errorRender() *cachedRender {
	body := s.renderErrorPage("Something Went Wrong",
		"The page could not be loaded. Please try again shortly.")
	return &cachedRender{status: http.StatusInternalServerError, body: body}
}

// writeRendered replays a rendered response onto the wire.
func (s *Server) writeRendered(c echo.Context, entry *cachedRender) error {
	cacheControl := entry.cacheControl
	if cacheControl == "" {
		cacheControl = "no-store"
	}
	c.Response().Header().Set("Cache-Control", cacheControl)
	return c.HTMLBlob(entry.status, entry.body)
}

// cachedPage looks up a previously rendered response.
func (s *Server) cachedPage(pageID string) (*cachedRender, bool) {
	if s.renderCache == nil {
		return nil, false
	}
	v, ok := s.renderCache.Get(pageID)
	if !ok {
		return nil, false
	}
	return v.(*cachedRender), true
}

// storeRendered caches a rendered response for ttl.
func (s *Server) storeRendered(pageID string, entry *cachedRender, ttl time.Duration) {
	if s.renderCache == nil {
		return
	}
	s.renderCache.Set(pageID, entry, ttl)
}

func maxAge(ttl time.Duration) string {
	return fmt.Sprintf("public, max-age=%d", int(ttl.Seconds()))
}
