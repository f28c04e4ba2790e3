package resilience

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryPolicy controls bounded exponential-backoff retry of an operation
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64

	// IsRetryable classifies an error; a nil classifier retries everything
	IsRetryable func(error) bool
}

// RetryResult reports the outcome of a retried operation
type RetryResult struct {
	Attempts int
	Err      error
}

// Retry runs op with the given policy. The operation must be safe to invoke
// more than once. A retryable failure sleeps min(base*factor^(n-1), max)
// before the next attempt; a non-retryable failure or attempt exhaustion
// returns immediately with the last error and the attempt count.
func Retry(ctx context.Context, policy RetryPolicy, op func(context.Context) error) RetryResult {
	attempts := 0
	var lastErr error

	for attempts < policy.MaxAttempts {
		attempts++

		lastErr = op(ctx)
		if lastErr == nil {
			return RetryResult{Attempts: attempts}
		}

		if policy.IsRetryable != nil && !policy.IsRetryable(lastErr) {
			log.Debug().Err(lastErr).Int("attempts", attempts).Msg("Non-retryable error, giving up")
			return RetryResult{Attempts: attempts, Err: lastErr}
		}

		if attempts >= policy.MaxAttempts {
			break
		}

		delay := policy.backoff(attempts)
		log.Debug().
			Err(lastErr).
			Int("attempt", attempts).
			Dur("delay", delay).
			Msg("Retryable error, backing off")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return RetryResult{Attempts: attempts, Err: ctx.Err()}
		}
	}

	return RetryResult{Attempts: attempts, Err: lastErr}
}

// backoff returns the sleep before attempt n+1, capped at MaxDelay
func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.BackoffFactor
	}

	if max := float64(p.MaxDelay); p.MaxDelay > 0 && delay > max {
		delay = max
	}

	return time.Duration(delay)
}
