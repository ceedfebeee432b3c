package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/events"
)

// LogNotifier writes escalations to the structured log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a notifier logging through logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Notify(_ context.Context, event events.Event) error {
	n.logger.Info("sla escalation",
		zap.String("event_type", string(event.Type)),
		zap.String("org_id", event.OrgID),
		zap.String("tracking_id", event.TrackingID),
		zap.String("domain", string(event.Domain)),
		zap.String("entity", event.EntityType+"/"+event.EntityID),
		zap.Time("occurred_at", event.Timestamp),
		zap.Any("payload", event.Payload))
	return nil
}
