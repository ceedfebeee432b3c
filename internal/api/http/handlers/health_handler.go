package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"
)

const readinessTimeout = 2 * time.Second

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	service string
	version string
	deps    map[string]Pinger
}

// NewHealthHandler skips nil dependencies.
func NewHealthHandler(service, version string, deps map[string]Pinger) *HealthHandler {
	checked := make(map[string]Pinger, len(deps))
	for name, dep := range deps {
		if dep != nil {
			checked[name] = dep
		}
	}
	return &HealthHandler{service: service, version: version, deps: checked}
}

type dependencyCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Live answers as long as the process serves requests.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "alive", "service": h.service, "version": h.version})
}

// Ready pings every dependency concurrently and answers 503 if any fails.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	var (
		mu     sync.Mutex
		checks = make(map[string]dependencyCheck, len(h.deps))
		ready  = true
		g      errgroup.Group
	)
	for name, dep := range h.deps {
		name, dep := name, dep
		g.Go(func() error {
			start := time.Now()
			err := dep.Ping(ctx)
			check := dependencyCheck{Status: "ok", LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				check.Status, check.Error = "down", err.Error()
			}
			mu.Lock()
			defer mu.Unlock()
			checks[name] = check
			ready = ready && err == nil
			return nil
		})
	}
	_ = g.Wait()

	body := fiber.Map{"service": h.service, "checks": checks}
	if !ready {
		body["status"] = "unavailable"
		return c.Status(fiber.StatusServiceUnavailable).JSON(body)
	}
	body["status"] = "ready"
	return c.JSON(body)
}
