package controlplane

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/northlane-labs/social-tracker/internal/engine"
)

// ConfigView is the GET/PUT config shape. Of the three fields, only
// LogLevel is live-reloadable in place via the AtomicLevel wired through
// NewController — MaxConcurrentWorkers and MaxBrowsers size the scheduler's
// worker pool and the browser pool at Engine construction time, so a PUT
// against them only changes the value GET config reports; the running
// scheduler and browser pool keep the sizes they were built with.
type ConfigView struct {
	MaxConcurrentWorkers int    `json:"maxConcurrentWorkers"`
	MaxBrowsers          int    `json:"maxBrowsers"`
	LogLevel             string `json:"logLevel"`
}

// Controller adapts an *engine.Engine to the control-plane surface.
type Controller struct {
	mu     sync.RWMutex
	eng    *engine.Engine
	level  zap.AtomicLevel
	cfg    ConfigView
	logger *zap.Logger
}

func NewController(eng *engine.Engine, level zap.AtomicLevel, initial ConfigView, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{eng: eng, level: level, cfg: initial, logger: logger}
}

func (c *Controller) Start(ctx context.Context) error { return c.eng.Start(ctx) }
func (c *Controller) Stop()                           { c.eng.Stop() }
func (c *Controller) Pause()                          { c.eng.Pause() }
func (c *Controller) Resume()                         { c.eng.Resume() }

func (c *Controller) Status() engine.Status { return c.eng.Status() }

func (c *Controller) ScrapeNow(accountID string) (string, error) {
	status, err := c.eng.Scheduler.Prioritize(accountID)
	if err != nil {
		return "", err
	}
	return string(status), nil
}

func (c *Controller) GetConfig() ConfigView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// PutConfig applies logLevel immediately; the worker/browser-count fields
// are only recorded in the returned view (see ConfigView's doc comment).
func (c *Controller) PutConfig(update ConfigView) ConfigView {
	c.mu.Lock()
	defer c.mu.Unlock()

	if update.LogLevel != "" {
		if lvl, err := zapcore.ParseLevel(update.LogLevel); err == nil {
			c.level.SetLevel(lvl)
			c.cfg.LogLevel = update.LogLevel
		} else {
			c.logger.Warn("ignoring unparseable log level", zap.String("logLevel", update.LogLevel))
		}
	}
	if update.MaxConcurrentWorkers > 0 {
		c.cfg.MaxConcurrentWorkers = update.MaxConcurrentWorkers
	}
	if update.MaxBrowsers > 0 {
		c.cfg.MaxBrowsers = update.MaxBrowsers
	}
	return c.cfg
}
