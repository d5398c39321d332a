// httpcontroller/routes.go
package httpcontroller

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Embed the assets and views directories.
//
//go:embed assets
var AssetsFs embed.FS

//go:embed views
var ViewsFs embed.FS

// initRoutes initializes the routes for the server.
func (s *Server) initRoutes() {
	// Public detection pages.
	s.Echo.GET("/d/:pageid", s.handleDetectionPage)
	s.Echo.GET("/d/:pageid/image", s.handleDetectionImage)
	s.Echo.GET("/d/:pageid/thumb", s.handleDetectionThumb)

	// Inbound webhook, registered only when the integration is configured.
	if s.Settings.Twitter.Enabled {
		s.Echo.GET("/webhooks/twitter", s.handleWebhookCRC)
		s.Echo.POST("/webhooks/twitter", s.handleWebhookEvent)
	}

	s.Echo.GET("/healthz", s.handleHealthz)

	if s.Metrics != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))
	}

	// Static file serving for stylesheets and icons.
	assetsFS, err := fs.Sub(AssetsFs, "assets")
	if err != nil {
		s.Echo.Logger.Fatal(err)
	}
	s.Echo.StaticFS("/assets", assetsFS)
}

// handleHealthz is the liveness probe: the process is up and serving.
func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":     "healthy",
		"version":    s.Settings.Version,
		"build_date": s.Settings.BuildDate,
	})
}
