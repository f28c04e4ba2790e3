package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(maxAttempts int, isRetryable func(error) bool) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   maxAttempts,
		BaseDelay:     time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
		IsRetryable:   isRetryable,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	result := Retry(context.Background(), fastPolicy(3, nil), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if result.Err != nil {
		t.Fatalf("expected success, got %v", result.Err)
	}
	if result.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", result.Attempts)
	}
}

func TestRetry_NonRetryableStopsAfterOneAttempt(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0

	result := Retry(context.Background(), fastPolicy(3, func(err error) bool {
		return !errors.Is(err, permanent)
	}), func(ctx context.Context) error {
		calls++
		return permanent
	})

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if result.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", result.Attempts)
	}
	if !errors.Is(result.Err, permanent) {
		t.Fatalf("expected permanent error, got %v", result.Err)
	}
}

func TestRetry_ExhaustionReturnsLastError(t *testing.T) {
	last := errors.New("still failing")
	calls := 0

	result := Retry(context.Background(), fastPolicy(3, nil), func(ctx context.Context) error {
		calls++
		return last
	})

	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if !errors.Is(result.Err, last) {
		t.Fatalf("expected last error, got %v", result.Err)
	}
	if result.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", result.Attempts)
	}
}

func TestRetry_BackoffIsCapped(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      250 * time.Millisecond,
		BackoffFactor: 10,
	}

	if got := policy.backoff(1); got != 100*time.Millisecond {
		t.Errorf("attempt 1: expected 100ms, got %v", got)
	}
	if got := policy.backoff(2); got != 250*time.Millisecond {
		t.Errorf("attempt 2: expected cap of 250ms, got %v", got)
	}
	if got := policy.backoff(5); got != 250*time.Millisecond {
		t.Errorf("attempt 5: expected cap of 250ms, got %v", got)
	}
}

func TestRetry_ContextCancelStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	policy := RetryPolicy{
		MaxAttempts:   5,
		BaseDelay:     time.Hour,
		MaxDelay:      time.Hour,
		BackoffFactor: 1,
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := Retry(ctx, policy, func(ctx context.Context) error {
		return errors.New("transient")
	})

	if !errors.Is(result.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", result.Err)
	}
	if result.Attempts != 1 {
		t.Fatalf("expected 1 attempt before cancellation, got %d", result.Attempts)
	}
}
