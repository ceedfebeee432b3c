package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/sla-service/internal/api/http/handlers"
	"github.com/spec-kit/sla-service/internal/auth"
	"github.com/spec-kit/sla-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Trackings      *handlers.TrackingHandler
	Sweeps         *handlers.SweepHandler
	Config         *handlers.ConfigHandler
	AuthMiddleware *auth.AuthMiddleware
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	app.Post("/auth/token", cfg.Auth.Token)

	v1 := app.Group("/v1", cfg.AuthMiddleware.Handle)

	writer := auth.RequireRole(domain.RoleIntegration)
	trackings := v1.Group("/trackings", auth.RequireRole(domain.RoleIntegration, domain.RoleScheduler))
	trackings.Post("/", writer, cfg.Trackings.Start)
	trackings.Get("/:id", cfg.Trackings.Get)
	trackings.Get("/:id/events", cfg.Trackings.Events)
	trackings.Post("/:id/pause", writer, cfg.Trackings.Pause)
	trackings.Post("/:id/resume", writer, cfg.Trackings.Resume)
	trackings.Post("/:id/response", writer, cfg.Trackings.Response)
	trackings.Post("/:id/resolution", writer, cfg.Trackings.Resolution)
	trackings.Post("/:id/evaluate", cfg.Trackings.Evaluate)

	v1.Post("/sweeps", auth.RequireRole(domain.RoleScheduler), cfg.Sweeps.Run)

	admin := auth.RequireRole()
	v1.Get("/schedules", admin, cfg.Config.ListSchedules)
	v1.Post("/schedules", admin, cfg.Config.CreateSchedule)
	v1.Get("/schedules/:id", admin, cfg.Config.GetSchedule)
	v1.Put("/schedules/:id", admin, cfg.Config.UpdateSchedule)
	v1.Get("/schedules/:id/holidays", admin, cfg.Config.ListHolidays)
	v1.Post("/schedules/:id/holidays", admin, cfg.Config.AddHoliday)
	v1.Delete("/schedules/:id/holidays/:holidayId", admin, cfg.Config.DeleteHoliday)

	v1.Get("/configurations", admin, cfg.Config.ListConfigurations)
	v1.Post("/configurations", admin, cfg.Config.CreateConfiguration)
	v1.Get("/configurations/:id", admin, cfg.Config.GetConfiguration)
	v1.Put("/configurations/:id", admin, cfg.Config.UpdateConfiguration)
}
