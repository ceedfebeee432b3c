// Package cli implements slactl, the operator command line for the SLA engine.
package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/app"
	"github.com/spec-kit/sla-service/internal/config"
	"github.com/spec-kit/sla-service/internal/observability"
	"github.com/spec-kit/sla-service/internal/persistence"
)

// Runtime supplies the configuration and engine wiring to commands.
type Runtime struct {
	LoadConfig func() (*config.Config, error)
	Build      func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app.Container, error)
	Migrate    func(ctx context.Context, cfg *config.Config, logger *zap.Logger) error
}

// DefaultRuntime reads configuration from the environment and opens the
// configured store.
func DefaultRuntime() *Runtime {
	return &Runtime{
		LoadConfig: config.Load,
		Build:      app.Build,
		Migrate:    migrateStore,
	}
}

func (rt *Runtime) setup() (*config.Config, *zap.Logger, error) {
	cfg, err := rt.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	// Command output owns stdout.
	cfg.Logger.Format, cfg.Logger.Output = "console", "stderr"
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

// withContainer builds the engine, runs fn and releases connections.
func (rt *Runtime) withContainer(ctx context.Context, fn func(c *app.Container) error) error {
	cfg, logger, err := rt.setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	c, err := rt.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

// migrateStore opens the store with migrations forced on. The SQLite store
// applies its schema on open; the memory store has nothing to migrate.
func migrateStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	cfg.Postgres.RunMigrations = true
	_, closeStore, err := persistence.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	closeStore()
	return nil
}

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	badColor  = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.FgHiBlack)
)
