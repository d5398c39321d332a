// internal/api/api.go
package api

import (
	"crypto/rand"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
	"github.com/undetectableai/truthscan-twitter-bot/internal/datastore"
	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
	"github.com/undetectableai/truthscan-twitter-bot/internal/ingest"
	"github.com/undetectableai/truthscan-twitter-bot/internal/logging"
	"github.com/undetectableai/truthscan-twitter-bot/internal/observability"
	"github.com/undetectableai/truthscan-twitter-bot/internal/observability/metrics"
)

// Controller manages the JSON API routes and handlers: the direct
// submission endpoint, the read surface over stored detections, and the
// readiness probe.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	DS       datastore.Interface
	Settings *conf.Settings
	Ingest   *ingest.Orchestrator

	logger         *log.Logger
	apiLogger      *slog.Logger   // structured logger for API operations
	apiLevelVar    *slog.LevelVar // dynamic level control
	apiLoggerClose func() error
	metrics        *observability.Metrics
	limiters       *limiterPool
	startTime      *time.Time
}

// New creates the API controller and mounts its routes on the given echo
// instance. A nil logger falls back to the standard logger.
func New(e *echo.Echo, ds datastore.Interface, settings *conf.Settings,
	orchestrator *ingest.Orchestrator, obs *observability.Metrics,
	logger *log.Logger) (*Controller, error) {

	if logger == nil {
		logger = log.Default()
	}

	c := &Controller{
		Echo:     e,
		DS:       ds,
		Settings: settings,
		Ingest:   orchestrator,
		logger:   logger,
		metrics:  obs,
		limiters: newLimiterPool(settings.DirectAPI.RateLimit, settings.DirectAPI.RateBurst),
	}

	// Structured logger for API requests, sharing the web log file.
	apiLogPath := "logs/web.log"
	c.apiLevelVar = new(slog.LevelVar)
	c.apiLevelVar.Set(slog.LevelInfo)

	apiLogger, closeFunc, err := logging.NewFileLogger(apiLogPath, "api", c.apiLevelVar)
	if err != nil {
		logger.Printf("Warning: Failed to initialize API structured logger: %v", err)
		// Fall back to a disabled logger that still respects the level var.
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: c.apiLevelVar})
		c.apiLogger = slog.New(fbHandler).With("service", "api")
		c.apiLoggerClose = func() error { return nil }
	} else {
		c.apiLogger = apiLogger
		c.apiLoggerClose = closeFunc
	}

	c.Group = e.Group("/api")
	c.Group.Use(middleware.Recover())
	c.Group.Use(c.LoggingMiddleware())
	c.Group.Use(c.errorEnvelopeMiddleware())

	now := time.Now()
	c.startTime = &now

	c.initRoutes()

	return c, nil
}

// InitializeAPI creates a new API controller and registers all routes.
func InitializeAPI(e *echo.Echo, ds datastore.Interface, settings *conf.Settings,
	orchestrator *ingest.Orchestrator, obs *observability.Metrics) *Controller {

	apiController, err := New(e, ds, settings, orchestrator, obs, nil)
	if err != nil {
		log.Fatalf("Failed to initialize API: %v", err)
	}

	if apiController.apiLogger != nil {
		apiController.apiLogger.Info("API initialized",
			"version", settings.Version,
			"build_date", settings.BuildDate,
			"submissions_enabled", settings.DirectAPI.Enabled,
		)
	}

	return apiController
}

// initRoutes registers all API endpoints.
func (c *Controller) initRoutes() {
	routeInitializers := []struct {
		name string
		fn   func()
	}{
		{"health routes", c.initHealthRoutes},
		{"submission routes", c.initSubmissionRoutes},
		{"detection routes", c.initDetectionRoutes},
	}

	for _, initializer := range routeInitializers {
		c.Debug("Initializing %s...", initializer.name)
		initializer.fn()
	}
}

// LoggingMiddleware logs each request and feeds the request metrics.
func (c *Controller) LoggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()

			err := next(ctx)

			req := ctx.Request()
			res := ctx.Response()

			if m := c.apiMetrics(); m != nil {
				m.RecordRequest(ctx.Path(), strconv.Itoa(res.Status))
				m.ObserveRequestDuration(ctx.Path(), time.Since(start).Seconds())
			}

			if c.apiLogger != nil {
				// LogAttrs avoids allocations when the level is disabled.
				attrs := []slog.Attr{
					slog.String("method", req.Method),
					slog.String("path", req.URL.Path),
					slog.String("query", req.URL.RawQuery),
					slog.Int("status", res.Status),
					slog.String("ip", ctx.RealIP()),
					slog.String("user_agent", req.UserAgent()),
					slog.Int64("latency_ms", time.Since(start).Milliseconds()),
				}
				if err != nil {
					attrs = append(attrs, slog.Any("error", err))
				}
				c.apiLogger.LogAttrs(req.Context(), slog.LevelInfo, "API Request", attrs...)
			}

			return err
		}
	}
}

// errorEnvelopeMiddleware converts errors escaping handlers and built-in
// middleware into the JSON error envelope. Handlers normally respond
// through HandleError; this catches echo-internal errors such as the
// body limit's 413.
func (c *Controller) errorEnvelopeMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			err := next(ctx)
			if err == nil || ctx.Response().Committed {
				return err
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				message := http.StatusText(httpErr.Code)
				if s, ok := httpErr.Message.(string); ok {
					message = s
				}
				if httpErr.Code == http.StatusRequestEntityTooLarge {
					if m := c.apiMetrics(); m != nil {
						m.RecordSubmission("too_large")
					}
				}
				return c.HandleError(ctx, err, message, httpErr.Code)
			}
			return c.HandleError(ctx, err, "Internal server error", http.StatusInternalServerError)
		}
	}
}

// ErrorResponse is the JSON error envelope every endpoint returns on
// failure. Error carries the taxonomy label, Details the underlying
// cause when one exists.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Details       string `json:"details,omitempty"`
	CorrelationID string `json:"correlation_id"` // unique identifier for tracking this error
}

// NewErrorResponse creates a new API error response.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	resp := &ErrorResponse{
		Error:         errorKind(err, code),
		Message:       message,
		CorrelationID: generateCorrelationID(),
	}
	if err != nil {
		resp.Details = err.Error()
	}
	return resp
}

// errorKind maps an error onto the submission taxonomy label carried in
// the envelope. Errors without a recognized category fall back to a
// status-derived label.
func errorKind(err error, code int) string {
	switch {
	case errors.Is(err, errTypeNotAllowed),
		errors.IsCategory(err, errors.CategoryImageFetch),
		errors.IsCategory(err, errors.CategoryImageRejected):
		return "InvalidImage"
	case errors.IsCategory(err, errors.CategoryValidation):
		return "ValidationError"
	case errors.IsCategory(err, errors.CategoryAuth):
		return "Unauthorized"
	case errors.IsRateLimited(err):
		return "RateLimited"
	case errors.IsNotFound(err):
		return "NotFoundError"
	case errors.IsGone(err):
		return "GoneError"
	}

	switch code {
	case http.StatusBadRequest:
		return "ValidationError"
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusRequestEntityTooLarge:
		return "PayloadTooLarge"
	case http.StatusTooManyRequests:
		return "RateLimited"
	case http.StatusNotFound:
		return "NotFoundError"
	case http.StatusGone:
		return "GoneError"
	default:
		return "InternalError"
	}
}

// generateCorrelationID creates a unique identifier for error tracking
// using cryptographic randomness.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		// Fall back to a default ID if crypto/rand fails
		return "ERR-RAND"
	}

	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError constructs and returns an appropriate error response.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	errorResp := NewErrorResponse(err, message, code)

	ip := ctx.RealIP()
	c.logger.Printf("API Error [%s] from %s: %s: %v", errorResp.CorrelationID, ip, message, err)

	if c.apiLogger != nil {
		var errorStr string
		if err != nil {
			errorStr = err.Error()
		} else {
			errorStr = message
		}

		c.apiLogger.Error("API Error",
			"correlation_id", errorResp.CorrelationID,
			"kind", errorResp.Error,
			"message", message,
			"error", errorStr,
			"code", code,
			"path", ctx.Request().URL.Path,
			"method", ctx.Request().Method,
			"ip", ip,
		)
	}

	return ctx.JSON(code, errorResp)
}

// Debug logs debug messages when debug mode is enabled.
func (c *Controller) Debug(format string, v ...any) {
	if c.Settings.WebServer.Debug {
		msg := fmt.Sprintf(format, v...)
		c.logger.Printf("[DEBUG] %s", msg)

		if c.apiLogger != nil {
			c.apiLogger.Debug(msg)
		}
	}
}

// Shutdown releases controller resources. Called when the server stops.
func (c *Controller) Shutdown() {
	if c.apiLoggerClose != nil {
		if err := c.apiLoggerClose(); err != nil {
			c.logger.Printf("Error closing API log file: %v", err)
		}
	}
}

// apiMetrics returns the API metric set, nil when metrics are disabled.
func (c *Controller) apiMetrics() *metrics.APIMetrics {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.API
}
