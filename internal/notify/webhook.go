package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/spec-kit/sla-service/internal/events"
)

// WebhookOptions configures a WebhookNotifier.
type WebhookOptions struct {
	URL string
	// RPS caps outbound requests per second; zero means unlimited.
	RPS     int
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// WebhookNotifier POSTs events as JSON. Calls are rate limited and guarded
// by a circuit breaker so a failing endpoint is not hammered.
type WebhookNotifier struct {
	url     string
	timeout time.Duration
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// ErrWebhookStatus reports a non-2xx response.
var ErrWebhookStatus = errors.New("webhook returned non-success status")

// NewWebhookNotifier builds the notifier.
func NewWebhookNotifier(opts WebhookOptions) *WebhookNotifier {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
		burst = opts.RPS
	}
	threshold := opts.FailureThreshold
	return &WebhookNotifier{
		url:     opts.URL,
		timeout: opts.Timeout,
		limiter: rate.NewLimiter(limit, burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "sla-webhook",
			MaxRequests: 1,
			Timeout:     opts.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		}),
	}
}

func (n *WebhookNotifier) Name() string { return "webhook" }

func (n *WebhookNotifier) Notify(ctx context.Context, event events.Event) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := n.breaker.Execute(func() (interface{}, error) {
		return nil, n.post(event)
	})
	return err
}

// State exposes the breaker state for readiness reporting.
func (n *WebhookNotifier) State() gobreaker.State {
	return n.breaker.State()
}

func (n *WebhookNotifier) post(event events.Event) error {
	agent := fiber.Post(n.url)
	agent.Set("X-SLA-Event", string(event.Type))
	agent.Timeout(n.timeout)
	agent.JSON(event)

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("post webhook: %w", errors.Join(errs...))
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: %d %s", ErrWebhookStatus, status, truncate(body, 200))
	}
	return nil
}

func truncate(body []byte, max int) string {
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}
