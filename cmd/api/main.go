package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/sla-service/internal/api/http"
	"github.com/spec-kit/sla-service/internal/api/http/handlers"
	"github.com/spec-kit/sla-service/internal/app"
	"github.com/spec-kit/sla-service/internal/auth"
	"github.com/spec-kit/sla-service/internal/config"
	"github.com/spec-kit/sla-service/internal/observability"
	"github.com/spec-kit/sla-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}
	defer c.Close()

	worker.StartEscalationWorker(ctx, c.Escalation)
	worker.StartCacheListener(ctx, c.Cache, logger)
	if cfg.SLA.SweepEnabled {
		opts := worker.SweepWorkerOptions{
			Runner:   c.Sweeper,
			Interval: cfg.SLA.SweepInterval(),
			LockKey:  cfg.SLA.SweepLockKey,
			LockTTL:  cfg.SLA.SweepLockTTL(),
			Logger:   logger,
		}
		if c.Redis != nil {
			opts.Redis = c.Redis.Client
		}
		go worker.NewSweepWorker(opts).Start(ctx)
	}

	deps := map[string]handlers.Pinger{"store": c.Store}
	if c.Redis != nil {
		deps["redis"] = c.Redis
	}

	server := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(server, logger, c.Metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(server, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
		Auth:           handlers.NewAuthHandler(c.Auth),
		Trackings:      handlers.NewTrackingHandler(c.Tracker),
		Sweeps:         handlers.NewSweepHandler(c.Sweeper),
		Config:         handlers.NewConfigHandler(c.Configs),
		AuthMiddleware: auth.NewAuthMiddleware(c.Tokens),
		Gatherer:       c.Registry,
	})

	go func() {
		if err := server.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	c.Escalation.Wait()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
