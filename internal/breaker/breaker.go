// Package breaker implements a circuit breaker with exact CAS-based
// probe-claiming semantics: a single half-open probe slot, guarded by an
// atomic compare-and-swap so concurrent callers never race into sending two
// probe requests at once. This is deliberately not built on a generic
// breaker library — see the module's design notes for why the probe-slot
// semantics need to be exact.
package breaker

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// State is the circuit breaker's externally observable state.
type State int

const (
	// Closed allows all requests through.
	Closed State = iota
	// Open rejects all requests until the cooldown elapses.
	Open
	// HalfOpen allows exactly one probe request through.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	halfOpenIdle = 0
	halfOpenWait = 1
	halfOpenProbe = 2
)

// ErrProbeInProgress is returned when the half-open probe slot is already
// claimed by another caller.
var ErrProbeInProgress = errors.New("breaker: probe request already in progress")

// OpenError is returned when the circuit is open.
type OpenError struct {
	Failures         uint64
	RemainingCooldown time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("breaker: circuit open after %d failures, %.0fs remaining",
		e.Failures, e.RemainingCooldown.Seconds())
}

// Breaker is a thread-safe circuit breaker protecting an external service.
type Breaker struct {
	name     string
	logger   zerolog.Logger
	failures atomic.Uint64

	mu       sync.Mutex
	openedAt *time.Time

	halfOpen atomic.Int32

	threshold uint64
	cooldown  time.Duration
}

// New creates a circuit breaker that opens after threshold consecutive
// failures and stays open for cooldown before allowing a probe. A default
// logger is used unless overridden with WithLogger.
func New(name string, threshold uint64, cooldown time.Duration, opts ...Option) *Breaker {
	b := &Breaker{
		name:      name,
		logger:    zerolog.New(os.Stdout).With().Timestamp().Str("component", "breaker").Str("breaker", name).Logger(),
		threshold: threshold,
		cooldown:  cooldown,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithLogger overrides the breaker's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Breaker) {
		b.logger = logger.With().Str("component", "breaker").Str("breaker", b.name).Logger()
	}
}

// CheckAllowed reports whether a request may proceed. It returns
// ErrProbeInProgress or *OpenError when the request must be rejected.
func (b *Breaker) CheckAllowed() error {
	switch b.State() {
	case Closed:
		return nil
	case HalfOpen:
		if b.halfOpen.CompareAndSwap(halfOpenWait, halfOpenProbe) {
			b.logger.Debug().Msg("allowing probe request")
			return nil
		}
		b.logger.Debug().Msg("rejecting request: probe already in progress")
		return ErrProbeInProgress
	default: // Open
		b.mu.Lock()
		opened := b.openedAt
		b.mu.Unlock()

		var remaining time.Duration
		if opened != nil {
			elapsed := time.Since(*opened)
			if remaining = b.cooldown - elapsed; remaining < 0 {
				remaining = 0
			}
		}
		return &OpenError{Failures: b.failures.Load(), RemainingCooldown: remaining}
	}
}

// RecordSuccess resets the failure count and closes the circuit.
func (b *Breaker) RecordSuccess() {
	prevFailures := b.failures.Swap(0)
	wasHalfOpen := b.halfOpen.Swap(halfOpenIdle) > halfOpenIdle

	b.mu.Lock()
	b.openedAt = nil
	b.mu.Unlock()

	switch {
	case wasHalfOpen:
		b.logger.Info().Uint64("prev_failures", prevFailures).Msg("circuit closed: probe succeeded")
	case prevFailures > 0:
		b.logger.Debug().Uint64("prev_failures", prevFailures).Msg("success resets consecutive failures")
	}
}

// RecordFailure records a failed request. If it was the half-open probe,
// the circuit reopens without incrementing the failure count. Otherwise the
// failure count increments and the circuit opens once it reaches threshold.
func (b *Breaker) RecordFailure() {
	if b.halfOpen.CompareAndSwap(halfOpenProbe, halfOpenIdle) {
		now := time.Now()
		b.mu.Lock()
		b.openedAt = &now
		b.mu.Unlock()
		b.logger.Warn().Uint64("failures", b.failures.Load()).Msg("circuit reopened: probe failed")
		return
	}

	newCount := b.failures.Add(1)
	if newCount >= b.threshold {
		b.mu.Lock()
		if b.openedAt == nil {
			now := time.Now()
			b.openedAt = &now
			b.logger.Warn().Uint64("failures", newCount).Dur("cooldown", b.cooldown).Msg("circuit opened")
		}
		b.mu.Unlock()
	} else {
		b.logger.Debug().Uint64("failures", newCount).Uint64("threshold", b.threshold).Msg("recorded failure")
	}
}

// State reports the current circuit state, transitioning Open to HalfOpen
// once the cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	opened := b.openedAt
	b.mu.Unlock()

	if opened == nil {
		return Closed
	}

	if time.Since(*opened) >= b.cooldown {
		if b.halfOpen.CompareAndSwap(halfOpenIdle, halfOpenWait) {
			b.logger.Debug().Dur("cooldown", b.cooldown).Msg("entering half-open state")
		}
		return HalfOpen
	}
	return Open
}

// FailureCount returns the current consecutive failure count.
func (b *Breaker) FailureCount() uint64 { return b.failures.Load() }
