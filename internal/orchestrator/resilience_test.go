package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"patchwork/internal/agent"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		InitialInterval:     time.Millisecond,
		MaxInterval:         5 * time.Millisecond,
		MaxElapsedTime:      200 * time.Millisecond,
		Multiplier:          1.5,
		RandomizationFactor: 0,
	}
}

func TestResilientCallerRetriesTransientFailures(t *testing.T) {
	calls := 0
	inner := agent.CallerFunc(func(ctx context.Context, b agent.ContextBundle) (agent.Output, error) {
		calls++
		if calls < 3 {
			return agent.Output{}, errors.New("flaky endpoint")
		}
		return agent.Output{Text: "answer"}, nil
	})

	cb := NewBreakerRegistry(nil).Get("test-endpoint")
	rc := NewResilientCaller(inner, cb, fastRetry())

	out, err := rc.Call(context.Background(), agent.ContextBundle{})
	if err != nil {
		t.Fatal(err)
	}
	if out.Text != "answer" || calls != 3 {
		t.Errorf("out = %+v after %d calls", out, calls)
	}
}

func TestResilientCallerBreakerOpens(t *testing.T) {
	inner := agent.CallerFunc(func(ctx context.Context, b agent.ContextBundle) (agent.Output, error) {
		return agent.Output{}, errors.New("endpoint down")
	})

	cb := NewBreakerRegistry(nil).Get("down-endpoint")
	rc := NewResilientCaller(inner, cb, fastRetry())

	// Exhaust retries enough times to trip the breaker.
	for i := 0; i < 3; i++ {
		if _, err := rc.Call(context.Background(), agent.ContextBundle{}); err == nil {
			t.Fatal("expected failure")
		}
	}
	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %s, want open", cb.State())
	}

	// With the breaker open the call fails fast, without hammering the
	// endpoint through the whole retry window.
	start := time.Now()
	_, err := rc.Call(context.Background(), agent.ContextBundle{})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want ErrOpenState", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Errorf("open-breaker call took %s", time.Since(start))
	}
}

func TestResilientCallerRespectsCancellation(t *testing.T) {
	inner := agent.CallerFunc(func(ctx context.Context, b agent.ContextBundle) (agent.Output, error) {
		return agent.Output{}, errors.New("always failing")
	})

	cb := NewBreakerRegistry(nil).Get("cancel-endpoint")
	rc := NewResilientCaller(inner, cb, RetryConfig{
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     10 * time.Millisecond,
		MaxElapsedTime:  10 * time.Second,
		Multiplier:      1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := rc.Call(ctx, agent.ContextBundle{})
	if err == nil {
		t.Fatal("expected failure")
	}
	if time.Since(start) > time.Second {
		t.Errorf("cancelled retry loop ran for %s", time.Since(start))
	}
}

func TestBreakerRegistrySharesPerEndpoint(t *testing.T) {
	reg := NewBreakerRegistry(nil)
	if reg.Get("a") != reg.Get("a") {
		t.Error("same endpoint produced distinct breakers")
	}
	if reg.Get("a") == reg.Get("b") {
		t.Error("distinct endpoints share a breaker")
	}
}
