// Package notification delivers domain events to the message broker and sends
// transactional email. Both are fire-and-forget: callers never wait for
// delivery and never see its errors.
package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/entity"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/messaging"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/resilience"
)

// Dispatcher publishes events and sends email in the background.
type Dispatcher struct {
	publisher messaging.Publisher
	email     EmailSender
	retry     resilience.RetryPolicy
	timeout   time.Duration
	wg        sync.WaitGroup
}

// NewDispatcher creates a dispatcher. timeout bounds each delivery including
// its retries.
func NewDispatcher(publisher messaging.Publisher, email EmailSender, retry resilience.RetryPolicy, timeout time.Duration) *Dispatcher {
	if email == nil {
		email = LogSender{}
	}
	return &Dispatcher{publisher: publisher, email: email, retry: retry, timeout: timeout}
}

// Enqueue publishes event on its topic, keyed by key, and returns at once.
func (d *Dispatcher) Enqueue(ctx context.Context, key string, event entity.Event) {
	topic := event.EventType()
	d.background(ctx, func(ctx context.Context) {
		err := resilience.Retry(ctx, d.retry, "publish "+topic, func() error {
			return d.publisher.PublishEvent(ctx, topic, key, event)
		})
		if err != nil {
			slog.ErrorContext(ctx, "Failed to publish event", "topic", topic, "key", key, "error", err)
			return
		}
		slog.InfoContext(ctx, "Event published", "topic", topic, "key", key)
	})
}

// SendEmail sends a templated email in the background.
func (d *Dispatcher) SendEmail(ctx context.Context, to []Recipient, templateID int64, params any) {
	d.background(ctx, func(ctx context.Context) {
		err := resilience.Retry(ctx, d.retry, "send email", func() error {
			return d.email.SendTemplated(ctx, to, templateID, params)
		})
		if err != nil {
			slog.ErrorContext(ctx, "Failed to send email", "template_id", templateID, "error", err)
		}
	})
}

// background runs fn on a context detached from the caller's cancellation
// but carrying its values, so trace ids survive.
func (d *Dispatcher) background(ctx context.Context, fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		fn(ctx)
	}()
}

// Wait blocks until every pending delivery has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
