package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Handler consumes a committed event. Handlers run on the publisher's
// goroutine and must not block.
type Handler func(context.Context, Event) error

// Dispatcher fans committed events out to in-process consumers.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	// Subscribe registers h for the given types, or for every type when
	// none are given.
	Subscribe(h Handler, types ...EventType)
}

type subscription struct {
	handler Handler
	types   map[EventType]struct{}
}

func (s subscription) matches(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

type syncDispatcher struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *zap.Logger
}

// NewInMemoryDispatcher returns a dispatcher that calls handlers
// synchronously in subscription order.
func NewInMemoryDispatcher(logger *zap.Logger) Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &syncDispatcher{logger: logger}
}

func (d *syncDispatcher) Subscribe(h Handler, types ...EventType) {
	set := make(map[EventType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, subscription{handler: h, types: set})
}

// Publish delivers to every matching handler. Failures and panics are
// logged and returned joined; they never stop delivery to the rest.
func (d *syncDispatcher) Publish(ctx context.Context, event Event) error {
	d.mu.RLock()
	subs := d.subs
	d.mu.RUnlock()

	var errs []error
	for _, sub := range subs {
		if !sub.matches(event.Type) {
			continue
		}
		if err := deliver(ctx, sub.handler, event); err != nil {
			d.logger.Warn("event consumer failed",
				zap.String("event_type", string(event.Type)),
				zap.String("org_id", event.OrgID),
				zap.String("tracking_id", event.TrackingID),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func deliver(ctx context.Context, h Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("consumer panic: %v", r)
		}
	}()
	return h(ctx, event)
}
