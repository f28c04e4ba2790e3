package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrCircuitOpen is returned when a call is rejected without being attempted
var ErrCircuitOpen = errors.New("circuit breaker is open")

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker gates calls to one named external dependency. It opens after
// MaxFailures consecutive failures, rejects every call during the cooldown
// window, then admits exactly one trial call. Each breaker instance is
// process-local; in a multi-instance deployment the instances trip
// independently, which degrades toward retrying less, never toward
// incorrectness.
type CircuitBreaker struct {
	name        string
	maxFailures int
	timeout     time.Duration

	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time
}

// NewCircuitBreaker creates a breaker for the named dependency
func NewCircuitBreaker(name string, maxFailures int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:        name,
		maxFailures: maxFailures,
		timeout:     timeout,
		now:         time.Now,
	}
}

// Execute runs op through the breaker. When the breaker is open and the
// cooldown has not elapsed, op is not invoked and ErrCircuitOpen is returned.
func (b *CircuitBreaker) Execute(op func() error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := op()
	b.record(err)
	return err
}

// allow decides whether a call may proceed, transitioning open -> half-open
// once the cooldown has elapsed. Only one probe is admitted in half-open.
func (b *CircuitBreaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return nil
	case stateOpen:
		if b.now().Sub(b.openedAt) < b.timeout {
			return fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
		}
		b.state = stateHalfOpen
		b.probing = true
		log.Info().Str("dependency", b.name).Msg("Circuit breaker half-open, probing")
		return nil
	default: // half-open
		if b.probing {
			return fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
		}
		b.probing = true
		return nil
	}
}

// record applies a call outcome to the breaker state
func (b *CircuitBreaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state != stateClosed {
			log.Info().Str("dependency", b.name).Msg("Circuit breaker closed")
		}
		b.state = stateClosed
		b.failures = 0
		b.probing = false
		return
	}

	if b.state == stateHalfOpen {
		// Failed probe: back to open with a fresh cooldown clock
		b.state = stateOpen
		b.openedAt = b.now()
		b.probing = false
		log.Warn().Str("dependency", b.name).Err(err).Msg("Circuit breaker probe failed, reopening")
		return
	}

	b.failures++
	if b.failures >= b.maxFailures {
		b.state = stateOpen
		b.openedAt = b.now()
		log.Warn().
			Str("dependency", b.name).
			Int("failures", b.failures).
			Dur("cooldown", b.timeout).
			Msg("Circuit breaker opened")
	}
}

// State returns the current state name, for health reporting
func (b *CircuitBreaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}

// Name returns the guarded dependency name
func (b *CircuitBreaker) Name() string {
	return b.name
}
