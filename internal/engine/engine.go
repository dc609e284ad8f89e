// Package engine implements the Orchestrator: the single value that owns
// every pool and store and drives their lifecycle together, replacing a
// scatter of module-level managers with one composed value.
package engine

import (
	"context"
	"net"
	"net/http"
	"net/smtp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/northlane-labs/social-tracker/internal/alerts"
	"github.com/northlane-labs/social-tracker/internal/browserpool"
	"github.com/northlane-labs/social-tracker/internal/clock"
	"github.com/northlane-labs/social-tracker/internal/eventbus"
	"github.com/northlane-labs/social-tracker/internal/fetcher"
	"github.com/northlane-labs/social-tracker/internal/metrics"
	"github.com/northlane-labs/social-tracker/internal/models"
	"github.com/northlane-labs/social-tracker/internal/proxypool"
	"github.com/northlane-labs/social-tracker/internal/registry"
	"github.com/northlane-labs/social-tracker/internal/scheduler"
)

// Config bundles the sub-component configs the Orchestrator wires together.
type Config struct {
	Proxy     proxypool.Config
	Browser   browserpool.Config
	Fetcher   fetcher.Config
	Scheduler scheduler.Config
	Alerts    AlertsConfig
}

// AlertsConfig configures the alert engine's email and webhook sinks. The
// webhook sink needs no destination config since each rule carries its own
// URL in ChannelConfig; the email sink is only wired up when SMTPAddr is set.
type AlertsConfig struct {
	SMTPAddr     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string

	WebhookTimeout time.Duration
}

// Engine owns the Account Registry, Proxy Pool, Browser Pool, Fetcher,
// Metrics Store, Alert Engine, and Priority Scheduler, and exposes the
// lifecycle and status shape the control plane reads.
type Engine struct {
	mu          sync.Mutex
	initialized bool
	running     bool

	Registry  *registry.Registry
	Proxies   *proxypool.Pool
	Browsers  *browserpool.Pool
	Fetcher   *fetcher.Fetcher
	Metrics   metrics.Sink
	Alerts    *alerts.Engine
	Scheduler *scheduler.Scheduler

	bus    eventbus.Bus
	logger *zap.Logger
}

// New wires every component together but performs no I/O; call Start to
// begin scheduling and health-checking.
func New(cfg Config, store registry.Store, alertStore alerts.Store, metricsSink metrics.Sink,
	bus eventbus.Bus, c clock.Clock, r clock.RandomSource, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := registry.New(store, bus, c, logger)
	proxies := proxypool.New(cfg.Proxy, c, r, logger)
	browsers := browserpool.New(cfg.Browser, c, logger)
	fetch := fetcher.New(cfg.Fetcher, browsers, proxies, c, logger)

	var emailSink alerts.Sink
	if cfg.Alerts.SMTPAddr != "" {
		host := cfg.Alerts.SMTPAddr
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		var auth smtp.Auth
		if cfg.Alerts.SMTPUsername != "" {
			auth = smtp.PlainAuth("", cfg.Alerts.SMTPUsername, cfg.Alerts.SMTPPassword, host)
		}
		emailSink = alerts.NewEmailSink(cfg.Alerts.SMTPAddr, cfg.Alerts.SMTPFrom, auth)
	}

	webhookTimeout := cfg.Alerts.WebhookTimeout
	if webhookTimeout == 0 {
		webhookTimeout = 10 * time.Second
	}
	webhookSink := alerts.NewWebhookSink(&http.Client{Timeout: webhookTimeout})

	alertEngine := alerts.New(alertStore, alerts.NewLogSink(logger), emailSink, webhookSink, c, logger)

	sched := scheduler.New(cfg.Scheduler, reg, fetch, metricsSink, alertEngine, bus, c, r, logger)

	return &Engine{
		Registry:  reg,
		Proxies:   proxies,
		Browsers:  browsers,
		Fetcher:   fetch,
		Metrics:   metricsSink,
		Alerts:    alertEngine,
		Scheduler: sched,
		bus:       bus,
		logger:    logger,
	}
}

// Start loads the account registry, starts proxy health monitoring, and
// begins the scheduler's dispatch loop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}

	if err := e.Registry.Load(ctx); err != nil {
		return err
	}
	e.Proxies.StartHealthMonitor()
	if err := e.Scheduler.Start(ctx); err != nil {
		return err
	}

	e.initialized = true
	e.running = true
	return nil
}

// Stop cancels all timers, drains the ready queue, lets in-flight fetches
// observe cancellation, and releases pooled browsers and proxy state.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.Scheduler.Stop()
	e.Proxies.Stop()
	e.Browsers.Stop()
	e.running = false
}

// Pause leaves in-flight work alone but stops new dispatches.
func (e *Engine) Pause() { e.Scheduler.Pause() }

// Resume resumes dispatching after Pause.
func (e *Engine) Resume() { e.Scheduler.Resume() }

// Status is the shape the control plane's GET status reads.
type Status struct {
	Initialized bool           `json:"initialized"`
	Running     bool           `json:"running"`
	Accounts    int            `json:"accounts"`
	Scheduler   SchedulerStats `json:"scheduler"`
	Browsers    BrowserStats   `json:"browsers"`
	Proxies     ProxyStats     `json:"proxies"`
}

type SchedulerStats struct {
	QueueSize int      `json:"queueSize"`
	Running   []string `json:"running"`
	Scheduled int      `json:"scheduled"`
}

type BrowserStats struct {
	Running int `json:"running"`
	Max     int `json:"max"`
}

type ProxyStats struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Cooling   int `json:"cooling"`
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	initialized, running := e.initialized, e.running
	e.mu.Unlock()

	schedStatus := e.Scheduler.Status()
	proxyStatus := e.Proxies.Status()

	return Status{
		Initialized: initialized,
		Running:     running,
		Accounts:    len(e.Registry.List(models.AccountFilter{})),
		Scheduler: SchedulerStats{
			QueueSize: schedStatus.QueueSize,
			Running:   schedStatus.Running,
			Scheduled: schedStatus.Scheduled,
		},
		Browsers: BrowserStats{
			Running: e.Browsers.Running(),
			Max:     e.Browsers.Max(),
		},
		Proxies: ProxyStats{
			Total:     proxyStatus.Total,
			Available: proxyStatus.Available,
			Cooling:   proxyStatus.Cooling,
		},
	}
}
