package telemetry

import (
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
)

func TestInitDisabledIsNoOp(t *testing.T) {
	settings := &conf.Settings{}
	settings.Sentry.Enabled = false

	err := Init(settings)
	require.NoError(t, err, "disabled telemetry must not fail startup")
}

func TestInitializeErrorIntegration(t *testing.T) {
	t.Cleanup(func() {
		errors.SetTelemetryReporter(nil)
		errors.SetPrivacyScrubber(nil)
	})

	InitializeErrorIntegration()

	reporter := errors.GetTelemetryReporter()
	require.NotNil(t, reporter, "error integration must install a reporter")
	assert.False(t, reporter.IsEnabled(), "reporter must stay disabled without opt-in")
}

func TestUpdateErrorIntegration(t *testing.T) {
	t.Cleanup(func() {
		errors.SetTelemetryReporter(nil)
	})

	UpdateErrorIntegration(true)
	require.True(t, errors.GetTelemetryReporter().IsEnabled())

	UpdateErrorIntegration(false)
	require.False(t, errors.GetTelemetryReporter().IsEnabled())
}

func TestApplyPrivacyFilters(t *testing.T) {
	t.Parallel()

	event := sentry.NewEvent()
	event.User = sentry.User{ID: "user-1", IPAddress: "203.0.113.7"}
	event.ServerName = "prod-host-01"
	event.Contexts["device"] = sentry.Context{"name": "host"}
	event.Contexts["os"] = sentry.Context{"name": "linux"}
	event.Contexts["application"] = sentry.Context{"name": "truthscan"}
	event.Extra["component"] = "oracle"
	event.Extra["request_body"] = "sensitive"
	event.Tags["hostname"] = "prod-host-01"
	event.Tags["component"] = "oracle"

	filtered := applyPrivacyFilters(event)

	assert.True(t, filtered.User.IsEmpty(), "user data must be cleared")
	assert.Empty(t, filtered.ServerName)
	assert.NotContains(t, filtered.Contexts, "device")
	assert.NotContains(t, filtered.Contexts, "os")
	assert.Contains(t, filtered.Contexts, "application")
	assert.NotContains(t, filtered.Extra, "request_body")
	assert.Contains(t, filtered.Extra, "component")
	assert.NotContains(t, filtered.Tags, "hostname")
	assert.Contains(t, filtered.Tags, "component")
}

func TestCollectPlatformInfo(t *testing.T) {
	t.Parallel()

	info := collectPlatformInfo()

	assert.NotEmpty(t, info.OS)
	assert.NotEmpty(t, info.Architecture)
	assert.Positive(t, info.NumCPU)
	assert.NotEmpty(t, info.GoVersion)
}
