package httpcontroller

import (
	"bytes"
	"html/template"
	"io"
	"math"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// detectionPageData carries everything the detection page template needs.
type detectionPageData struct {
	PageID      string
	PageURL     string // canonical URL of this page
	ImageURL    string // this server's own image route, absolute
	ThumbURL    string // this server's own thumbnail route, absolute
	SiteName    string
	SourceLabel string // origin of the submission, e.g. "twitter mention"
	Handle      string // submitting handle, may be empty for API uploads

	Processing    bool // true while the classification is still pending
	Probability   float64
	Verdict       string // human readable classification result
	HasConfidence bool
	ConfidencePct int

	ImageDescription string
	MetaDescription  string
	RobotsContent    string // value for the robots meta tag
	Title            string

	CreatedAt time.Time
	ViewCount int64
}

// errorPageData carries the branded 404/410/500 page fields.
type errorPageData struct {
	SiteName string
	Title    string
	Message  string
}

// TemplateRenderer is a custom HTML template renderer for the Echo framework.
type TemplateRenderer struct {
	templates *template.Template
	logger    echo.Logger
}

// Render renders a template with the given data.
func (t *TemplateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	// Buffer the execution so a template error never leaves a half-written body.
	var buf bytes.Buffer
	if err := t.templates.ExecuteTemplate(&buf, name, data); err != nil {
		t.logger.Errorf("Error executing template %s: %v", name, err)
		return err
	}

	_, err := buf.WriteTo(w)
	if err != nil {
		t.logger.Errorf("Error writing template result: %v", err)
	}
	return err
}

// renderBytes executes a template into a byte slice for caching.
func (t *TemplateRenderer) renderBytes(name string, data interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// setupTemplateRenderer configures the template renderer for the server
func (s *Server) setupTemplateRenderer() {
	funcMap := template.FuncMap{
		"title":   cases.Title(language.English).String,
		"percent": func(p float64) int { return int(math.Round(p * 100)) },
		"year":    func() int { return time.Now().Year() },
	}

	tmpl, err := template.New("").Funcs(funcMap).ParseFS(ViewsFs, "views/*.html")
	if err != nil {
		s.Echo.Logger.Fatal(err)
	}

	s.renderer = &TemplateRenderer{
		templates: tmpl,
		logger:    s.Echo.Logger,
	}
	s.Echo.Renderer = s.renderer
}
