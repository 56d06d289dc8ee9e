// Package control assembles the resilience service and its optional
// infrastructure from configuration and manages their lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/faultline/internal/connectivity"
	"github.com/vietddude/faultline/internal/core/config"
	"github.com/vietddude/faultline/internal/core/worker"
	"github.com/vietddude/faultline/internal/health"
	"github.com/vietddude/faultline/internal/infra/postgres"
	redisclient "github.com/vietddude/faultline/internal/infra/redis"
	"github.com/vietddude/faultline/internal/processor"
	"github.com/vietddude/faultline/internal/resilience"
)

// App is the running faultline service.
type App struct {
	cfg          *config.AppConfig
	svc          *resilience.Service
	healthMon    *health.Monitor
	healthServer *health.Server
	redisClient  *redisclient.Client
	mirror       *redisclient.Mirror
	db           *postgres.DB
	pruner       *worker.Pruner
	log          *slog.Logger
}

// NewApp connects the configured backends and builds the service. The
// service also becomes the process default.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	logger := slog.Default()
	app := &App{cfg: cfg, log: logger}

	// Backends are independent, so connect them concurrently.
	g, gctx := errgroup.WithContext(ctx)
	if cfg.Redis.URL != "" {
		g.Go(func() error {
			c, err := redisclient.NewClient(cfg.Redis)
			if err != nil {
				return fmt.Errorf("failed to init redis: %w", err)
			}
			app.redisClient = c
			return nil
		})
	}
	if cfg.Database.URL != "" {
		g.Go(func() error {
			db, err := postgres.NewDB(gctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to init db: %w", err)
			}
			app.db = db
			if err := db.Migrate(gctx); err != nil {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		app.closeBackends()
		return nil, err
	}

	sinks := []processor.LogSink{processor.NewSlogSink(logger)}
	var audit health.AuditReader
	if app.redisClient != nil {
		rs := redisclient.NewAuditSink(app.redisClient)
		sinks = append(sinks, rs)
		audit = rs
	}
	if app.db != nil {
		ps := postgres.NewAuditSink(app.db)
		sinks = append(sinks, ps)
		audit = ps
		app.pruner = worker.NewPruner(cfg.Database.Retention, ps)
	}

	opts := resilience.Options{
		Processor: cfg.ProcessorSettings(),
		Sinks:     sinks,
		Logger:    logger,
	}
	if cfg.Processor.ConnectivityURL != "" {
		opts.Connectivity = connectivity.NewHTTPProbe(cfg.Processor.ConnectivityURL, cfg.Processor.ConnectivityTimeout, 5*time.Second)
	}
	app.svc = resilience.New(opts)
	resilience.SetDefault(app.svc)

	if app.redisClient != nil {
		app.mirror = redisclient.NewMirror(app.redisClient)
		app.mirror.Attach(app.svc.Bus())
	}

	app.healthMon = health.NewMonitor(app.svc.Breaker(), app.svc.Processor(), cfg.Processor.QueueCritical)
	if app.redisClient != nil {
		app.healthMon.AddCheck("redis", app.redisClient.Ping)
	}
	if app.db != nil {
		app.healthMon.AddCheck("postgres", app.db.Health)
	}
	app.healthServer = health.NewServer(app.healthMon, audit, cfg.Server.Port)

	logger.Info("Faultline initialized",
		"redis", app.redisClient != nil,
		"postgres", app.db != nil,
		"offline_probe", cfg.Processor.ConnectivityURL != "",
	)
	return app, nil
}

// Service returns the resilience service.
func (a *App) Service() *resilience.Service { return a.svc }

// Run serves health endpoints and background workers until ctx is done.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("Health server listening", "port", a.cfg.Server.Port)
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.healthServer.Stop(shutdownCtx)
	})

	if a.db != nil {
		a.db.StartMetricsCollector(gctx)
	}
	if a.pruner != nil {
		g.Go(func() error {
			a.pruner.Start(gctx)
			return nil
		})
	}

	return g.Wait()
}

// Stop drains the error queue and closes the backends.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping faultline...")

	err := a.svc.Close(ctx)
	if err != nil {
		a.log.Warn("Error queue not drained", "pending", a.svc.Processor().Len(), "error", err)
	}
	if a.mirror != nil {
		a.mirror.Detach()
	}
	a.closeBackends()
	return err
}

func (a *App) closeBackends() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}
