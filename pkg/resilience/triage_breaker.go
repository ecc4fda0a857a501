// Package resilience provides fault tolerance patterns for external service calls.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"triage_server/pkg/apperr"
)

// Errors returned by the circuit breaker.
var (
	ErrCircuitOpen     = gobreaker.ErrOpenState
	ErrTooManyRequests = gobreaker.ErrTooManyRequests
)

// BreakerConfig holds configuration for a circuit breaker.
type BreakerConfig struct {
	Name             string        // Name for logging/metrics
	FailureThreshold uint32        // Consecutive failures before opening (default: 5)
	HalfOpenRequests uint32        // Requests let through while half-open (default: 1)
	OpenTimeout      time.Duration // Time to wait before half-open (default: 30s)
	CallTimeout      time.Duration // Per-call deadline, 0 disables
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		HalfOpenRequests: 1,
		OpenTimeout:      30 * time.Second,
	}
}

// StateChangeFunc is invoked on every breaker transition.
type StateChangeFunc func(name, from, to string)

// Breaker guards one collaborator.
type Breaker struct {
	cb          *gobreaker.CircuitBreaker
	callTimeout time.Duration
}

func NewBreaker(cfg BreakerConfig, onChange StateChangeFunc) *Breaker {
	def := DefaultBreakerConfig(cfg.Name)
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = def.HalfOpenRequests
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}

	threshold := cfg.FailureThreshold
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: isSuccessful,
	}
	if onChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			onChange(name, from.String(), to.String())
		}
	}

	return &Breaker{
		cb:          gobreaker.NewCircuitBreaker(settings),
		callTimeout: cfg.CallTimeout,
	}
}

// isSuccessful keeps caller cancellation and client-side app errors out of
// the failure count.
func isSuccessful(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	return apperr.IsAppError(err) && apperr.GetHTTPStatus(err) < 500
}

func (b *Breaker) Name() string  { return b.cb.Name() }
func (b *Breaker) State() string { return b.cb.State().String() }

// Counts returns the breaker counters of the current generation.
func (b *Breaker) Counts() gobreaker.Counts { return b.cb.Counts() }

// Do runs fn under the breaker.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call runs fn under the breaker and returns its result.
func Call[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	res, err := b.cb.Execute(func() (interface{}, error) {
		if b.callTimeout <= 0 {
			return fn(ctx)
		}

		callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
		defer cancel()
		res, err := fn(callCtx)
		// the call deadline fired, not the caller's
		if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return res, apperr.Timeout(b.Name()).
				WithDetail("timeout", b.callTimeout.String()).
				WithError(err)
		}
		return res, err
	})
	if err != nil {
		return zero, err
	}
	return res.(T), nil
}

// IsOpen reports whether err was produced by a rejecting breaker.
func IsOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests)
}
