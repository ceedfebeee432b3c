// Package app wires the SLA engine from configuration. The API server and
// slactl share it so both run the same engine against the same store.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/auth"
	"github.com/spec-kit/sla-service/internal/config"
	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/notify"
	"github.com/spec-kit/sla-service/internal/observability"
	"github.com/spec-kit/sla-service/internal/persistence"
	"github.com/spec-kit/sla-service/internal/repository"
	"github.com/spec-kit/sla-service/internal/service"
)

// Container holds the wired services.
type Container struct {
	Config     *config.Config
	Logger     *zap.Logger
	Registry   *prometheus.Registry
	Metrics    *observability.Metrics
	Store      repository.Store
	Redis      *persistence.Redis
	Dispatcher events.Dispatcher
	Cache      *service.TenantCache
	Tracker    *service.Tracker
	Sweeper    *service.Sweeper
	Configs    *service.ConfigService
	Tokens     *auth.TokenManager
	Auth       *service.AuthService
	Escalation *service.EscalationTrigger

	closers []func()
}

// Build opens the store and Redis and constructs every service.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	metrics, err := observability.NewMetrics(c.Registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	c.Metrics = metrics

	store, closeStore, err := persistence.OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	c.Store = store
	c.closers = append(c.closers, closeStore)

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		c.Redis = persistence.NewRedis(cfg.Redis, logger)
		c.closers = append(c.closers, c.Redis.Close)
		rdb = c.Redis.Client
	}

	c.Dispatcher = events.NewInMemoryDispatcher(logger)
	c.Cache = service.NewTenantCache(store, rdb, service.CacheOptions{
		TTL:     cfg.SLA.CacheTTL(),
		Channel: cfg.SLA.CacheInvalidateChannel,
	}, logger)
	c.Tracker = service.NewTracker(service.TrackerDependencies{
		Store:              store,
		Resolver:           service.NewResolver(c.Cache, nil, logger),
		Calendars:          c.Cache,
		Dispatcher:         c.Dispatcher,
		Metrics:            metrics,
		Logger:             logger,
		MaxConflictRetries: cfg.SLA.MaxConflictRetries,
	})
	c.Sweeper = service.NewSweeper(service.SweeperDependencies{
		Store:         store,
		Evaluator:     c.Tracker,
		Metrics:       metrics,
		Logger:        logger,
		Concurrency:   cfg.SLA.SweepConcurrency,
		BatchSize:     cfg.SLA.SweepBatchSize,
		RecordTimeout: cfg.SLA.RecordTimeout(),
	})
	c.Configs = service.NewConfigService(service.ConfigDependencies{
		Store:      store,
		Cache:      c.Cache,
		Dispatcher: c.Dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	c.Tokens = auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL())
	c.Auth = service.NewAuthService(store.Repositories().Accounts, c.Tokens, cfg.Auth.BcryptCost)
	c.Escalation = service.NewEscalationTrigger(c.Dispatcher, c.notifiers(rdb), logger, cfg.Notification.QueueSize)
	return c, nil
}

func (c *Container) notifiers(rdb *redis.Client) notify.Notifier {
	list := []notify.Notifier{notify.NewLogNotifier(c.Logger)}
	n := c.Config.Notification
	if n.WebhookURL != "" {
		list = append(list, notify.NewWebhookNotifier(notify.WebhookOptions{
			URL:     n.WebhookURL,
			RPS:     n.WebhookRPS,
			Timeout: n.WebhookTimeout(),
		}))
	}
	if n.RedisStream != "" && rdb != nil {
		list = append(list, notify.NewStreamNotifier(rdb, n.RedisStream, 0))
	}
	return notify.NewChain(c.Metrics, c.Logger, list...)
}

// Close releases connections in reverse order of opening.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}
