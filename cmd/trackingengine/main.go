// Package main provides the entry point for the social tracking engine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/northlane-labs/social-tracker/internal/alerts"
	"github.com/northlane-labs/social-tracker/internal/browserpool"
	"github.com/northlane-labs/social-tracker/internal/clock"
	"github.com/northlane-labs/social-tracker/internal/config"
	"github.com/northlane-labs/social-tracker/internal/controlplane"
	"github.com/northlane-labs/social-tracker/internal/engine"
	"github.com/northlane-labs/social-tracker/internal/eventbus"
	"github.com/northlane-labs/social-tracker/internal/metrics"
	"github.com/northlane-labs/social-tracker/internal/proxypool"
	"github.com/northlane-labs/social-tracker/internal/registry"
	"github.com/northlane-labs/social-tracker/internal/scheduler"
)

// Exit codes: 0 normal stop, 1 startup failure, 2 fatal runtime error.
const (
	exitOK      = 0
	exitStartup = 1
	exitRuntime = 2
)

func main() {
	os.Exit(runRecovered())
}

// runRecovered wraps run with a panic guard so a fatal runtime error exits
// with code 2 instead of propagating an unhandled panic trace.
func runRecovered() (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fatal runtime error: %v\n", r)
			code = exitRuntime
		}
	}()
	return run()
}

func run() int {
	atomicLevel := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger, err := buildLogger(atomicLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return exitStartup
	}
	defer logger.Sync()

	cfg, err := config.LoadEngineConfig(nil)
	if err != nil {
		logger.Error("failed to load configuration", zap.Error(err))
		return exitStartup
	}
	if lvl, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		atomicLevel.SetLevel(lvl)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, alertStore, metricsSink, closeStores, err := wireStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to wire persistence", zap.Error(err))
		return exitStartup
	}
	defer closeStores()

	bus := eventbus.NewLocal(logger)
	realClock := clock.Real
	realRandom := clock.NewRealRandom()

	proxyCfg := proxypool.Config{
		MinIntervalMs:    cfg.MinProxyInterval.Milliseconds(),
		MaxUsagePerProxy: cfg.MaxUsagePerProxy,
		CoolingPeriod:    cfg.CoolingPeriod,
	}

	engineCfg := engine.Config{
		Proxy:     proxyCfg,
		Browser:   browserpool.Config{MaxBrowsers: cfg.MaxBrowsers},
		Scheduler: scheduler.Config{MaxConcurrent: cfg.MaxConcurrentWorkers},
		Alerts: engine.AlertsConfig{
			SMTPAddr:       cfg.SMTPAddr,
			SMTPFrom:       cfg.SMTPFrom,
			SMTPUsername:   cfg.SMTPUsername,
			SMTPPassword:   cfg.SMTPPassword,
			WebhookTimeout: cfg.WebhookTimeout,
		},
	}

	eng := engine.New(engineCfg, store, alertStore, metricsSink, bus, realClock, realRandom, logger)

	if cfg.ProxyFile != "" {
		if err := eng.Proxies.LoadFile(cfg.ProxyFile); err != nil {
			logger.Error("failed to load proxy file", zap.Error(err))
			return exitStartup
		}
	}

	controller := controlplane.NewController(eng, atomicLevel, controlplane.ConfigView{
		MaxConcurrentWorkers: cfg.MaxConcurrentWorkers,
		MaxBrowsers:          cfg.MaxBrowsers,
		LogLevel:             cfg.LogLevel,
	}, logger)

	server := controlplane.NewServer(cfg.HTTPAddr, controller, cfg.JWTSecret, logger)
	server.Start()

	if err := eng.Start(ctx); err != nil {
		logger.Error("failed to start engine", zap.Error(err))
		return exitStartup
	}
	logger.Info("tracking engine running", zap.String("addr", cfg.HTTPAddr))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("error stopping control plane server", zap.Error(err))
	}
	eng.Stop()

	logger.Info("tracking engine stopped")
	return exitOK
}

func wireStores(ctx context.Context, cfg *config.EngineConfig, logger *zap.Logger) (
	registry.Store, alerts.Store, metrics.Sink, func(), error) {

	if cfg.DatabaseURL == "" {
		logger.Info("no database_url configured, using in-memory stores")
		return registry.NewMemoryStore(), alerts.NewMemoryStore(), metrics.NewMemorySink(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	accountStore := registry.NewPostgresStore(pool)
	if err := accountStore.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, nil, err
	}
	alertStore := alerts.NewPostgresStore(pool)
	if err := alertStore.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, nil, err
	}
	metricsSink := metrics.NewPostgresSink(pool)
	if err := metricsSink.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, nil, err
	}

	return accountStore, alertStore, metricsSink, pool.Close, nil
}

func buildLogger(level zap.AtomicLevel) (*zap.Logger, error) {
	cfg := zap.Config{
		Level:            level,
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	return cfg.Build()
}
