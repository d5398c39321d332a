// Package notify delivers operator alerts through shoutrrr service URLs.
// Alerts are throttled per key so a sustained outage produces one message
// per interval instead of one per failure. Send errors are logged and
// never reach the ingestion pipeline.
package notify

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	gocache "github.com/patrickmn/go-cache"

	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
	"github.com/undetectableai/truthscan-twitter-bot/internal/logging"
	"github.com/undetectableai/truthscan-twitter-bot/internal/telemetry"
)

const (
	defaultMinIntervalMin = 30
	defaultOracleOutageAt = 5
	sendTimeout           = 10 * time.Second
)

// Package-level logger for alerting events
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "notify.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "notify", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize notify file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "notify")
		closeLogger = func() error { return nil }
	}
}

// CloseLogger releases the package log file.
func CloseLogger() error {
	if closeLogger != nil {
		return closeLogger()
	}
	return nil
}

// Notifier sends throttled operator alerts. The zero-value Notifier is a
// no-op, as is one built from disabled settings.
type Notifier struct {
	sender      *router.ServiceRouter
	enabled     bool
	urls        []string
	minInterval time.Duration
	outageAt    int
	throttle    *gocache.Cache
}

// New builds a Notifier from the alerting settings. Disabled settings or
// an empty URL list yield a working no-op notifier.
func New(settings *conf.Settings) (*Notifier, error) {
	n := &Notifier{
		minInterval: defaultMinIntervalMin * time.Minute,
		outageAt:    defaultOracleOutageAt,
	}
	if settings == nil || !settings.Notify.Enabled || len(settings.Notify.URLs) == 0 {
		return n, nil
	}

	if settings.Notify.MinInterval > 0 {
		n.minInterval = time.Duration(settings.Notify.MinInterval) * time.Minute
	}
	if settings.Notify.OracleOutageAt > 0 {
		n.outageAt = settings.Notify.OracleOutageAt
	}
	n.urls = slices.Clone(settings.Notify.URLs)

	sender, err := shoutrrr.CreateSender(n.urls...)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Component("notify").
			Context("operation", "create_sender").
			Context("url_count", len(n.urls)).
			Build()
	}
	sender.Timeout = sendTimeout
	sender.SetLogger(log.New(io.Discard, "", 0))

	n.sender = sender
	n.enabled = true
	n.throttle = gocache.New(n.minInterval, 2*n.minInterval)

	logger.Info("operator alerting enabled",
		"url_count", len(n.urls),
		"min_interval", n.minInterval,
		"oracle_outage_at", n.outageAt)
	return n, nil
}

// Enabled reports whether alerts will actually be sent.
func (n *Notifier) Enabled() bool {
	return n != nil && n.enabled
}

// OracleOutage alerts once the consecutive-failure count reaches the
// configured threshold. Counts below the threshold are ignored, counts at
// or above it share the throttle key, so a long outage alerts once per
// interval.
func (n *Notifier) OracleOutage(consecutive int, err error) {
	if !n.Enabled() || consecutive < n.outageAt {
		return
	}
	message := fmt.Sprintf("Detection oracle has failed %d times in a row. Last error: %s",
		consecutive, telemetry.ScrubMessage(errMessage(err)))
	n.send("oracle_outage", "Detection oracle outage", message)
}

// IngestFailure alerts on a pipeline failure at the named stage. Alerts
// are throttled per stage.
func (n *Notifier) IngestFailure(stage string, err error) {
	if !n.Enabled() {
		return
	}
	message := fmt.Sprintf("Ingestion failed at stage %q: %s",
		stage, telemetry.ScrubMessage(errMessage(err)))
	n.send("ingest_failure:"+stage, "Ingestion failure", message)
}

// Test sends one unthrottled alert so operators can verify their service
// URLs before relying on outage alerts.
func (n *Notifier) Test(message string) error {
	if !n.Enabled() {
		return errors.Newf("alerting is disabled or has no service URLs").
			Category(errors.CategoryConfiguration).
			Component("notify").
			Context("operation", "test_alert").
			Build()
	}

	params := stypes.Params{}
	params.SetTitle("TruthScan test alert")
	errs := n.sender.Send(message, &params)
	for _, sendErr := range errs {
		if sendErr != nil {
			return errors.New(sendErr).
				Category(errors.CategoryNetwork).
				Component("notify").
				Context("operation", "test_alert").
				Build()
		}
	}
	logger.Info("test alert sent", "url_count", len(n.urls))
	return nil
}

// send delivers one alert unless the key is still inside its throttle
// window. Delivery failures are logged only.
func (n *Notifier) send(key, title, message string) {
	if _, suppressed := n.throttle.Get(key); suppressed {
		logger.Debug("alert suppressed by throttle", "key", key)
		return
	}
	n.throttle.Set(key, time.Now(), gocache.DefaultExpiration)

	params := stypes.Params{}
	params.SetTitle(title)
	errs := n.sender.Send(message, &params)
	for _, sendErr := range errs {
		if sendErr != nil {
			logger.Error("alert delivery failed", "key", key, "error", telemetry.ScrubMessage(sendErr.Error()))
			return
		}
	}
	logger.Info("alert sent", "key", key, "title", title)
}

func errMessage(err error) string {
	if err == nil {
		return "unknown"
	}
	return err.Error()
}
