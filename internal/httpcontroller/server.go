// internal/httpcontroller/server.go
package httpcontroller

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/acme/autocert"

	"github.com/undetectableai/truthscan-twitter-bot/internal/api"
	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
	"github.com/undetectableai/truthscan-twitter-bot/internal/datastore"
	"github.com/undetectableai/truthscan-twitter-bot/internal/imagefetch"
	"github.com/undetectableai/truthscan-twitter-bot/internal/ingest"
	"github.com/undetectableai/truthscan-twitter-bot/internal/logging"
	"github.com/undetectableai/truthscan-twitter-bot/internal/observability"
	"github.com/undetectableai/truthscan-twitter-bot/internal/observability/metrics"
)

// shutdownDrainTimeout bounds how long Shutdown waits for detached
// webhook processing before closing the listener anyway.
const shutdownDrainTimeout = 15 * time.Second

// Server encapsulates the Echo server and related configurations.
type Server struct {
	Echo     *echo.Echo
	DS       datastore.Interface
	Settings *conf.Settings
	Fetcher  *imagefetch.Fetcher
	Ingest   *ingest.Orchestrator
	Metrics  *observability.Metrics
	API      *api.Controller

	// renderCache holds rendered page bodies keyed by page id, including
	// negative entries for 404 and 410 responses. Nil when disabled.
	renderCache *cache.Cache

	renderer *TemplateRenderer

	// webhookWG tracks detached webhook processing goroutines so
	// Shutdown can drain them.
	webhookWG sync.WaitGroup

	// Structured logger for web operations
	webLogger      *slog.Logger
	webLoggerClose func() error
}

// New initializes a new HTTP server with the given datastore and collaborators.
func New(settings *conf.Settings, dataStore datastore.Interface, fetcher *imagefetch.Fetcher, orchestrator *ingest.Orchestrator, obs *observability.Metrics) *Server {
	configureDefaultSettings(settings)

	s := &Server{
		Echo:     echo.New(),
		DS:       dataStore,
		Settings: settings,
		Fetcher:  fetcher,
		Ingest:   orchestrator,
		Metrics:  obs,
	}

	// Configure an IP extractor
	s.Echo.IPExtractor = echo.ExtractIPFromXFFHeader()

	if settings.WebServer.Cache.Enabled {
		pageTTL := time.Duration(settings.WebServer.Cache.PageTTL) * time.Second
		s.renderCache = cache.New(pageTTL, 2*pageTTL)
	}

	s.initializeServer()
	return s
}

// Start begins listening and serving HTTP requests.
func (s *Server) Start() {
	errChan := make(chan error)

	go func() {
		var err error

		if s.Settings.Security.AutoTLS {
			configPaths, configErr := conf.GetDefaultConfigPaths()
			if configErr != nil {
				errChan <- fmt.Errorf("failed to get config paths: %w", configErr)
				return
			}

			s.Echo.AutoTLSManager.Prompt = autocert.AcceptTOS
			s.Echo.AutoTLSManager.Cache = autocert.DirCache(configPaths[0])
			s.Echo.AutoTLSManager.HostPolicy = autocert.HostWhitelist(s.Settings.Security.Host)

			err = s.Echo.StartAutoTLS(":" + s.Settings.WebServer.Port)
		} else {
			err = s.Echo.Start(":" + s.Settings.WebServer.Port)
		}

		if err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	go handleServerError(errChan)

	fmt.Printf("HTTP server started on port %s (AutoTLS: %v)\n", s.Settings.WebServer.Port, s.Settings.Security.AutoTLS)
}

// RealIP returns the originating client address, preferring the
// X-Forwarded-For chain set by the edge proxy.
func (s *Server) RealIP(c echo.Context) string {
	if xff := c.Request().Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			// The last entry is the address the edge actually saw.
			return strings.TrimSpace(ips[len(ips)-1])
		}
	}

	// Fallback to direct RemoteAddr
	ip, _, _ := net.SplitHostPort(c.Request().RemoteAddr)
	return ip
}

// initializeServer configures and initializes the server.
func (s *Server) initializeServer() {
	s.Echo.HideBanner = true
	s.Echo.Logger = logging.NewEchoLogger(logging.ForService("echo"))
	s.initLogger()
	s.configureMiddleware()
	s.setupTemplateRenderer()
	s.initRoutes()

	// Mount the JSON API on the same listener.
	s.API = api.InitializeAPI(s.Echo, s.DS, s.Settings, s.Ingest, s.Metrics)
}

// configureDefaultSettings fills in server settings a minimal config omits.
func configureDefaultSettings(settings *conf.Settings) {
	if settings.WebServer.Port == "" {
		settings.WebServer.Port = "8080"
	}
	if settings.WebServer.Cache.PageTTL <= 0 {
		settings.WebServer.Cache.PageTTL = 300
	}
	if settings.WebServer.Cache.NegativeTTL <= 0 {
		settings.WebServer.Cache.NegativeTTL = 60
	}
}

// handleServerError listens for server errors and handles them.
func handleServerError(errChan chan error) {
	for err := range errChan {
		log.Printf("Server error: %v", err)
	}
}

// initLogger initializes the structured web logger.
func (s *Server) initLogger() {
	if !s.Settings.WebServer.Log.Enabled {
		return
	}

	webLogPath := s.Settings.WebServer.Log.Path
	if webLogPath == "" {
		webLogPath = "logs/web.log"
	}
	level := logging.ParseLevel(s.Settings.WebServer.Log.Level)

	webLogger, closeFunc, err := logging.NewFileLogger(webLogPath, "web", level)
	if err != nil {
		log.Printf("Warning: Failed to initialize web structured logger: %v", err)
		// Continue without structured logging rather than failing completely
		return
	}
	s.webLogger = webLogger
	s.webLoggerClose = closeFunc

	// Discard Echo's own log output, the middleware logs every request.
	s.Echo.Logger.SetOutput(io.Discard)
	s.Echo.Logger.SetLevel(99)
}

// Debug logs debug messages if debug mode is enabled
func (s *Server) Debug(format string, v ...interface{}) {
	if !s.Settings.WebServer.Debug {
		return
	}

	switch len(v) {
	case 0:
		log.Print(format)
	default:
		log.Printf(format, v...)
	}

	if s.webLogger != nil {
		var msg string
		switch len(v) {
		case 0:
			msg = format
		default:
			msg = fmt.Sprintf(format, v...)
		}
		s.webLogger.Debug(msg)
	}
}

// Shutdown drains detached webhook work, then gracefully stops the server.
func (s *Server) Shutdown() error {
	drained := make(chan struct{})
	go func() {
		s.webhookWG.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(shutdownDrainTimeout):
		log.Printf("webhook processing still running after %s, closing anyway", shutdownDrainTimeout)
	}

	if s.API != nil {
		s.API.Shutdown()
	}

	if s.webLoggerClose != nil {
		if err := s.webLoggerClose(); err != nil {
			log.Printf("Error closing web log file: %v", err)
		}
	}

	return s.Echo.Close()
}

// LogError logs an error with structured information
func (s *Server) LogError(c echo.Context, err error, message string) {
	log.Printf("ERROR: %s: %v", message, err)

	if s.webLogger != nil {
		req := c.Request()
		s.webLogger.Error("Error",
			"message", message,
			"error", err.Error(),
			"path", req.URL.Path,
			"method", req.Method,
			"ip", s.RealIP(c),
			"user_agent", req.UserAgent(),
		)
	}
}

// LoggingMiddleware creates a middleware function that logs HTTP requests
// with detailed structured information.
func (s *Server) LoggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			// Skip if structured logger is not available
			if s.webLogger == nil {
				return next(ctx)
			}

			start := time.Now()
			err := next(ctx)

			req := ctx.Request()
			res := ctx.Response()

			attrs := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"query", req.URL.RawQuery,
				"status", res.Status,
				"ip", s.RealIP(ctx),
				"user_agent", req.UserAgent(),
				"latency_ms", time.Since(start).Milliseconds(),
				"bytes_out", res.Size,
			}

			switch {
			case err != nil:
				attrs = append(attrs, "error", err.Error())
				s.webLogger.Error("HTTP Request", attrs...)
			case res.Status >= 400:
				s.webLogger.Warn("HTTP Request", attrs...)
			default:
				s.webLogger.Info("HTTP Request", attrs...)
			}

			return err
		}
	}
}

// pageMetrics returns the page metric collector, nil when metrics are disabled.
func (s *Server) pageMetrics() *metrics.PageMetrics {
	if s.Metrics == nil {
		return nil
	}
	return s.Metrics.Page
}

// ingestMetrics returns the ingest metric collector, nil when metrics are disabled.
func (s *Server) ingestMetrics() *metrics.IngestMetrics {
	if s.Metrics == nil {
		return nil
	}
	return s.Metrics.Ingest
}
