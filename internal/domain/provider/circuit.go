package provider

import (
	"sync"
	"time"
)

// CircuitState is the three-state circuit breaker state machine.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitBreaker trips after maxFailures consecutive failures, stays open
// for resetWindow, then allows exactly one half-open probe before
// returning to closed (success) or open (failure) — grounded on the
// consecutive-failure/reset-window shape of Mindburn's
// resiliency.CircuitBreaker, generalized to gate the half-open state to a
// single in-flight probe.
type CircuitBreaker struct {
	mu sync.Mutex

	maxFailures int
	resetWindow time.Duration

	state               CircuitState
	consecutiveFailures int
	openedAt            time.Time
	probeInFlight       bool
}

// NewCircuitBreaker builds a closed CircuitBreaker.
func NewCircuitBreaker(maxFailures int, resetWindow time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures: maxFailures,
		resetWindow: resetWindow,
		state:       CircuitClosed,
	}
}

// Allow reports whether a call may proceed now, transitioning open→
// half-open when the reset window has elapsed. Only one caller observes
// true for a given half-open period; concurrent callers during that probe
// see false until it resolves via RecordSuccess/RecordFailure.
func (cb *CircuitBreaker) Allow(now time.Time) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if now.Sub(cb.openedAt) < cb.resetWindow {
			return false
		}
		cb.state = CircuitHalfOpen
		cb.probeInFlight = true
		return true
	case CircuitHalfOpen:
		if cb.probeInFlight {
			return false
		}
		cb.probeInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess closes the circuit and resets the failure counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.consecutiveFailures = 0
	cb.probeInFlight = false
}

// RecordFailure increments the consecutive-failure counter (opening the
// circuit at maxFailures) or, from half-open, immediately reopens it.
func (cb *CircuitBreaker) RecordFailure(now time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
		cb.openedAt = now
		cb.probeInFlight = false
		return
	}

	cb.consecutiveFailures++
	if cb.consecutiveFailures >= cb.maxFailures {
		cb.state = CircuitOpen
		cb.openedAt = now
	}
}

// State returns the current state, for inspection/metrics.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
