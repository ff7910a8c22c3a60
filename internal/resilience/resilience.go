// Package resilience holds the circuit breaker and retry policies shared by
// the outbound clients.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"

	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/entity"
)

// NewBreaker returns a breaker that opens after five consecutive upstream
// failures and probes again after thirty seconds. Errors that are not
// entity.ErrUpstreamUnavailable count as successful calls.
func NewBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, entity.ErrUpstreamUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// Execute runs fn through the breaker. A rejected call is reported as
// entity.ErrUpstreamUnavailable.
func Execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	out, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, errors.Join(entity.ErrUpstreamUnavailable, err)
		}
		return zero, err
	}
	v, _ := out.(T)
	return v, nil
}

// RetryPolicy bounds a retried operation.
type RetryPolicy struct {
	MaxTries       uint
	MaxElapsedTime time.Duration
	InitialBackoff time.Duration
}

// DefaultRetry is used for notification delivery.
var DefaultRetry = RetryPolicy{
	MaxTries:       5,
	MaxElapsedTime: 30 * time.Second,
	InitialBackoff: 200 * time.Millisecond,
}

// Retry runs op with exponential backoff until it succeeds, returns a
// permanent error, or the policy is exhausted.
func Retry(ctx context.Context, p RetryPolicy, name string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	if p.InitialBackoff > 0 {
		b.InitialInterval = p.InitialBackoff
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.MaxTries),
		backoff.WithMaxElapsedTime(p.MaxElapsedTime),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.WarnContext(ctx, "Retrying", "operation", name, "error", err, "next_in", next)
		}),
	)
	return err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
