package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/notify"
)

// DefaultEscalationQueueSize bounds the events waiting for delivery.
const DefaultEscalationQueueSize = 1024

// EscalationTrigger hands committed warning, breach and escalation events to
// a notifier. Delivery happens off the request path; a full queue drops the
// event with a log line since the event log keeps the record.
type EscalationTrigger struct {
	dispatcher events.Dispatcher
	notifier   notify.Notifier
	logger     *zap.Logger
	queue      chan events.Event
	wg         sync.WaitGroup
}

// NewEscalationTrigger creates the trigger.
func NewEscalationTrigger(dispatcher events.Dispatcher, notifier notify.Notifier, logger *zap.Logger, queueSize int) *EscalationTrigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = DefaultEscalationQueueSize
	}
	return &EscalationTrigger{
		dispatcher: dispatcher,
		notifier:   notifier,
		logger:     logger,
		queue:      make(chan events.Event, queueSize),
	}
}

// RegisterHandlers subscribes to the escalation event types.
func (e *EscalationTrigger) RegisterHandlers() {
	if e.dispatcher == nil {
		return
	}
	e.dispatcher.Subscribe(e.enqueue, events.EscalationTypes...)
}

func (e *EscalationTrigger) enqueue(_ context.Context, event events.Event) error {
	select {
	case e.queue <- event:
	default:
		e.logger.Warn("escalation queue full; dropping notification",
			zap.String("event_type", string(event.Type)),
			zap.String("tracking_id", event.TrackingID))
	}
	return nil
}

// Start runs the delivery loop in a goroutine. Wait blocks until it ends.
func (e *EscalationTrigger) Start(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.Run(ctx)
	}()
}

// Run delivers queued events until ctx is cancelled, then drains what is
// already queued.
func (e *EscalationTrigger) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			e.drain()
			return
		case event := <-e.queue:
			e.deliver(context.WithoutCancel(ctx), event)
		}
	}
}

// Wait blocks until the loop started by Start has returned.
func (e *EscalationTrigger) Wait() {
	e.wg.Wait()
}

func (e *EscalationTrigger) drain() {
	for {
		select {
		case event := <-e.queue:
			e.deliver(context.Background(), event)
		default:
			return
		}
	}
}

func (e *EscalationTrigger) deliver(ctx context.Context, event events.Event) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, event); err != nil {
		e.logger.Warn("escalation delivery failed",
			zap.String("event_type", string(event.Type)),
			zap.String("tracking_id", event.TrackingID),
			zap.Error(err))
		return
	}
	e.logger.Debug("escalation delivered",
		zap.String("event_type", string(event.Type)),
		zap.String("tracking_id", event.TrackingID))
}
