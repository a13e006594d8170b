package decision

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by CircuitBreaker.Allow when the breaker is open.
var ErrCircuitOpen = errors.New("decision: circuit breaker open")

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// CircuitBreaker guards T5 model invocations. Grounded on the teacher's
// resilience package error-classification idiom (internal/core/resilience),
// generalized here into the stateful breaker the classifier feeds into:
// repeated model-call failures open the circuit for cooldown before
// allowing a single half-open probe through.
type CircuitBreaker struct {
	failureThreshold int
	cooldown         time.Duration
	now              func() time.Time

	mu          sync.Mutex
	state       breakerState
	failures    int
	openedAt    time.Time
	halfOpenInF bool
}

// NewCircuitBreaker returns a breaker that opens after failureThreshold
// consecutive failures and stays open for cooldown before half-opening.
func NewCircuitBreaker(failureThreshold int, cooldown time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{failureThreshold: failureThreshold, cooldown: cooldown, now: time.Now}
}

// Allow reports whether a call may proceed. A half-open call is marked
// in-flight; the caller must report its outcome via Success/Failure.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return nil
	case breakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrCircuitOpen
		}
		b.state = breakerHalfOpen
		b.halfOpenInF = true
		return nil
	case breakerHalfOpen:
		if b.halfOpenInF {
			return ErrCircuitOpen
		}
		b.halfOpenInF = true
		return nil
	default:
		return nil
	}
}

// Success records a successful call, closing the circuit.
func (b *CircuitBreaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = breakerClosed
	b.halfOpenInF = false
}

// Failure records a failed call, opening the circuit once the threshold is
// reached (or immediately, if the failure happened during a half-open probe).
func (b *CircuitBreaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerHalfOpen {
		b.state = breakerOpen
		b.openedAt = b.now()
		b.halfOpenInF = false
		return
	}

	b.failures++
	if b.failures >= b.failureThreshold {
		b.state = breakerOpen
		b.openedAt = b.now()
	}
}

// Open reports whether the breaker is currently open.
func (b *CircuitBreaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == breakerOpen && b.now().Sub(b.openedAt) < b.cooldown
}
