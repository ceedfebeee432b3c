package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/service"
)

// StartEscalationWorker registers escalation handlers and delivers queued
// notifications in the background until ctx ends.
func StartEscalationWorker(ctx context.Context, trigger *service.EscalationTrigger) {
	if trigger == nil {
		return
	}
	trigger.RegisterHandlers()
	trigger.Start(ctx)
}

// StartCacheListener applies cache invalidations published by other replicas.
func StartCacheListener(ctx context.Context, cache *service.TenantCache, logger *zap.Logger) {
	if cache == nil {
		return
	}
	go func() {
		if err := cache.Listen(ctx); err != nil {
			logger.Warn("cache invalidation listener stopped", zap.Error(err))
		}
	}()
}
