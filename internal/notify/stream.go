package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/sla-service/internal/events"
)

// StreamNotifier appends events to a Redis stream for downstream consumers.
type StreamNotifier struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewStreamNotifier writes to stream, trimming it approximately to maxLen
// entries when maxLen is positive.
func NewStreamNotifier(client *redis.Client, stream string, maxLen int64) *StreamNotifier {
	return &StreamNotifier{client: client, stream: stream, maxLen: maxLen}
}

func (n *StreamNotifier) Name() string { return "redis_stream" }

func (n *StreamNotifier) Notify(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: n.stream,
		Values: []interface{}{
			"event_id", event.ID,
			"type", string(event.Type),
			"org_id", event.OrgID,
			"tracking_id", event.TrackingID,
			"domain", string(event.Domain),
			"entity_type", event.EntityType,
			"entity_id", event.EntityID,
			"occurred_at", event.Timestamp.UTC().Format(time.RFC3339Nano),
			"payload", string(payload),
		},
	}
	if n.maxLen > 0 {
		args.MaxLen = n.maxLen
		args.Approx = true
	}
	if err := n.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", n.stream, err)
	}
	return nil
}
