// Package notify delivers escalation events to people and systems outside
// the SLA engine.
package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/observability"
)

// Notifier delivers one event.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, event events.Event) error
}

// Chain fans an event out to every notifier. One notifier failing does not
// stop the rest.
type Chain struct {
	notifiers []Notifier
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewChain builds a chain over notifiers, skipping nil entries.
func NewChain(metrics *observability.Metrics, logger *zap.Logger, notifiers ...Notifier) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Chain{metrics: metrics, logger: logger}
	for _, n := range notifiers {
		if n != nil {
			c.notifiers = append(c.notifiers, n)
		}
	}
	return c
}

// Name implements Notifier.
func (c *Chain) Name() string { return "chain" }

// Notify implements Notifier and returns every failure joined.
func (c *Chain) Notify(ctx context.Context, event events.Event) error {
	var errs []error
	for _, n := range c.notifiers {
		err := n.Notify(ctx, event)
		c.metrics.RecordNotification(n.Name(), err)
		if err != nil {
			c.logger.Warn("notifier failed",
				zap.String("notifier", n.Name()),
				zap.String("event_type", string(event.Type)),
				zap.String("tracking_id", event.TrackingID),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len reports how many notifiers are chained.
func (c *Chain) Len() int { return len(c.notifiers) }
