package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		MaxFailures: 3,
		Timeout:     time.Minute,
	})
	ctx := context.Background()
	boom := errors.New("backend down")

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(ctx, func() (interface{}, error) { return nil, boom })
		if !errors.Is(err, boom) {
			t.Fatalf("Expected backend error on call %d, got %v", i, err)
		}
	}

	_, err := cb.Execute(ctx, func() (interface{}, error) { return "ok", nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen after trip, got %v", err)
	}
}

func TestCircuitBreakerRecoversAfterTimeout(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		MaxFailures:          1,
		Timeout:              20 * time.Millisecond,
		HalfOpenMaxSuccesses: 1,
	})
	ctx := context.Background()

	_, _ = cb.Execute(ctx, func() (interface{}, error) { return nil, errors.New("fail") })
	if _, err := cb.Execute(ctx, func() (interface{}, error) { return "ok", nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Expected open circuit, got %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	result, err := cb.Execute(ctx, func() (interface{}, error) { return "ok", nil })
	if err != nil {
		t.Fatalf("Expected half-open trial to pass, got %v", err)
	}
	if result != "ok" {
		t.Errorf("Expected result passthrough, got %v", result)
	}
}

func TestCircuitBreakerHonorsContext(t *testing.T) {
	cb := NewCircuitBreaker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cb.Execute(ctx, func() (interface{}, error) { return "ok", nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context error, got %v", err)
	}
}
