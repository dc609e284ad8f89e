package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northlane-labs/social-tracker/internal/alerts"
	"github.com/northlane-labs/social-tracker/internal/clock"
	"github.com/northlane-labs/social-tracker/internal/eventbus"
	"github.com/northlane-labs/social-tracker/internal/metrics"
	"github.com/northlane-labs/social-tracker/internal/registry"
)

func TestStatusReflectsWiredComponents(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	bus := eventbus.NewLocal(nil)

	e := New(Config{}, registry.NewMemoryStore(), alerts.NewMemoryStore(), metrics.NewMemorySink(),
		bus, fc, clock.NewFakeRandom(0), nil)

	status := e.Status()
	assert.False(t, status.Initialized)
	assert.False(t, status.Running)
	assert.Equal(t, 0, status.Accounts)
	assert.Equal(t, 0, status.Browsers.Running)
}

func TestStatusAfterLoadOnlyReflectsRegistryWithoutStart(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	bus := eventbus.NewLocal(nil)

	e := New(Config{}, registry.NewMemoryStore(), alerts.NewMemoryStore(), metrics.NewMemorySink(),
		bus, fc, clock.NewFakeRandom(0), nil)

	require.NotNil(t, e.Registry)
	status := e.Status()
	assert.Equal(t, 0, status.Proxies.Total)
}

func TestNewWiresWebhookSinkAlwaysAndEmailSinkOnlyWhenConfigured(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	bus := eventbus.NewLocal(nil)

	withoutSMTP := New(Config{}, registry.NewMemoryStore(), alerts.NewMemoryStore(), metrics.NewMemorySink(),
		bus, fc, clock.NewFakeRandom(0), nil)
	require.NotNil(t, withoutSMTP.Alerts)

	withSMTP := New(Config{Alerts: AlertsConfig{SMTPAddr: "smtp.example.com:25", SMTPFrom: "alerts@example.com"}},
		registry.NewMemoryStore(), alerts.NewMemoryStore(), metrics.NewMemorySink(),
		bus, fc, clock.NewFakeRandom(0), nil)
	require.NotNil(t, withSMTP.Alerts)
}
