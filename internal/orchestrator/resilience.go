package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"patchwork/internal/agent"
)

// RetryConfig configures exponential backoff around the model boundary.
type RetryConfig struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	MaxElapsedTime      time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// BreakerRegistry manages one circuit breaker per model endpoint, shared by
// every agent talking to that endpoint.
type BreakerRegistry struct {
	mu       sync.Mutex
	log      *zap.Logger
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry creates a breaker registry.
func NewBreakerRegistry(log *zap.Logger) *BreakerRegistry {
	if log == nil {
		log = zap.NewNop()
	}
	return &BreakerRegistry{
		log:      log,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the breaker for the named endpoint, creating it on first use.
func (r *BreakerRegistry) Get(name string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.log.Warn("model breaker state change",
				zap.String("endpoint", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			// Cancellation is the session's doing, not the endpoint's.
			if err == nil {
				return true
			}
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})
	r.breakers[name] = cb
	return cb
}

// ResilientCaller wraps a model Caller with exponential-backoff retry and a
// circuit breaker. Errors surfacing from here are post-retry: the orchestrator
// treats them as node failures, not transient noise.
type ResilientCaller struct {
	inner agent.Caller
	cb    *gobreaker.CircuitBreaker
	retry RetryConfig
}

// NewResilientCaller wraps a caller.
func NewResilientCaller(inner agent.Caller, cb *gobreaker.CircuitBreaker, retry RetryConfig) *ResilientCaller {
	return &ResilientCaller{inner: inner, cb: cb, retry: retry}
}

// Call implements agent.Caller.
func (c *ResilientCaller) Call(ctx context.Context, bundle agent.ContextBundle) (agent.Output, error) {
	var out agent.Output

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		result, err := c.cb.Execute(func() (interface{}, error) {
			return c.inner.Call(ctx, bundle)
		})
		if err != nil {
			// An open breaker means the endpoint is down; retrying here
			// only hammers it further.
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}

		out = result.(agent.Output)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retry.InitialInterval
	policy.MaxInterval = c.retry.MaxInterval
	policy.MaxElapsedTime = c.retry.MaxElapsedTime
	policy.Multiplier = c.retry.Multiplier
	policy.RandomizationFactor = c.retry.RandomizationFactor

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	return out, err
}
