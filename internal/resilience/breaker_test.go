package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

// fakeClock lets tests move the breaker's cooldown clock by hand
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int, timeout time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	b := NewCircuitBreaker("extraction", maxFailures, timeout)
	b.now = clock.now
	return b, clock
}

func failTimes(b *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = b.Execute(func() error { return errBoom })
	}
}

func TestBreaker_OpensAfterMaxConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	failTimes(b, 3)

	if got := b.State(); got != "open" {
		t.Fatalf("expected open after 3 failures, got %s", got)
	}

	invoked := false
	err := b.Execute(func() error {
		invoked = true
		return nil
	})

	if invoked {
		t.Fatal("operation was invoked while breaker open")
	}
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	failTimes(b, 2)
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Two more failures should not trip a breaker that was reset
	failTimes(b, 2)
	if got := b.State(); got != "closed" {
		t.Fatalf("expected closed, got %s", got)
	}
}

func TestBreaker_HalfOpenProbeSuccessCloses(t *testing.T) {
	b, clock := newTestBreaker(3, time.Minute)

	failTimes(b, 3)
	clock.advance(time.Minute + time.Second)

	invoked := false
	err := b.Execute(func() error {
		invoked = true
		return nil
	})

	if !invoked {
		t.Fatal("probe was not allowed through after cooldown")
	}
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := b.State(); got != "closed" {
		t.Fatalf("expected closed after successful probe, got %s", got)
	}

	// Failure count was reset: one failure must not re-open
	failTimes(b, 1)
	if got := b.State(); got != "closed" {
		t.Fatalf("expected closed, got %s", got)
	}
}

func TestBreaker_HalfOpenProbeFailureReopensAndResetsCooldown(t *testing.T) {
	b, clock := newTestBreaker(3, time.Minute)

	failTimes(b, 3)
	clock.advance(time.Minute + time.Second)

	// Failed probe
	if err := b.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("expected probe to run and fail, got %v", err)
	}
	if got := b.State(); got != "open" {
		t.Fatalf("expected open after failed probe, got %s", got)
	}

	// The cooldown clock restarted at the failed probe; half the window is
	// not enough to probe again.
	clock.advance(30 * time.Second)
	invoked := false
	err := b.Execute(func() error {
		invoked = true
		return nil
	})
	if invoked {
		t.Fatal("call allowed before restarted cooldown elapsed")
	}
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}
