// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package resilience protects the scheduler from hammering a failing
// listings database.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/recsched/internal/log"
	"github.com/ManuGH/recsched/internal/metrics"
	"github.com/rs/zerolog"
)

// State represents the circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

func (s State) metric() int {
	switch s {
	case StateOpen:
		return metrics.BreakerOpen
	case StateHalfOpen:
		return metrics.BreakerHalfOpen
	default:
		return metrics.BreakerClosed
	}
}

// ErrCircuitOpen is returned by Execute while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Status is a point-in-time view of a breaker for health endpoints.
type Status struct {
	Name     string    `json:"name"`
	State    State     `json:"state"`
	Failures int       `json:"failures"`
	OpenedAt time.Time `json:"openedAt,omitzero"`
	RetryAt  time.Time `json:"retryAt,omitzero"`
}

type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// CircuitBreaker opens after threshold consecutive failures and refuses calls
// until resetTimeout has passed. One trial call is then let through: success
// closes the breaker, failure opens it again.
type CircuitBreaker struct {
	mu           sync.Mutex
	name         string
	state        State
	failures     int
	trialRunning bool
	threshold    int
	resetTimeout time.Duration
	openedAt     time.Time

	clock     clock
	isFailure func(error) bool
	logger    zerolog.Logger
}

type Option func(*CircuitBreaker)

func WithClock(c clock) Option {
	return func(cb *CircuitBreaker) { cb.clock = c }
}

// WithFailurePredicate decides which errors count against the threshold.
// By default every error except context cancellation does.
func WithFailurePredicate(fn func(error) bool) Option {
	return func(cb *CircuitBreaker) { cb.isFailure = fn }
}

func WithLogger(l zerolog.Logger) Option {
	return func(cb *CircuitBreaker) { cb.logger = l }
}

func countsAsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// NewCircuitBreaker creates a closed breaker. Non-positive arguments fall back
// to 3 failures and 30 seconds.
func NewCircuitBreaker(name string, threshold int, resetTimeout time.Duration, opts ...Option) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}

	cb := &CircuitBreaker{
		name:         name,
		state:        StateClosed,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		clock:        realClock{},
		isFailure:    countsAsFailure,
		logger:       log.WithComponent("resilience").With().Str("breaker", name).Logger(),
	}
	for _, opt := range opts {
		opt(cb)
	}

	metrics.SetBreakerState(cb.name, cb.state.metric())
	return cb
}

// Execute runs fn unless the breaker is open. Errors that are not failures
// are returned without changing the breaker state.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if retryAt, ok := cb.acquire(); !ok {
		metrics.RecordBreakerRejected(cb.name)
		return fmt.Errorf("%w: %s until %s", ErrCircuitOpen, cb.name, retryAt.Format(time.RFC3339))
	}

	err := fn()
	switch {
	case err == nil:
		cb.onSuccess()
	case cb.isFailure(err):
		cb.onFailure(err)
	default:
		cb.release()
	}
	return err
}

// acquire reports whether a call may proceed, and when the breaker will
// allow the next trial call if not.
func (cb *CircuitBreaker) acquire() (time.Time, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return time.Time{}, true
	case StateOpen:
		retryAt := cb.openedAt.Add(cb.resetTimeout)
		if cb.clock.Now().Before(retryAt) {
			return retryAt, false
		}
		cb.transitionTo(StateHalfOpen)
		cb.trialRunning = true
		return time.Time{}, true
	default:
		if cb.trialRunning {
			return cb.clock.Now(), false
		}
		cb.trialRunning = true
		return time.Time{}, true
	}
}

func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.trialRunning = false
}

func (cb *CircuitBreaker) onFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.trialRunning = false
	if cb.state == StateHalfOpen || (cb.state == StateClosed && cb.failures >= cb.threshold) {
		cb.logger.Warn().Err(err).
			Int("failures", cb.failures).
			Dur("reset_timeout", cb.resetTimeout).
			Msg("circuit breaker opened")
		cb.transitionTo(StateOpen)
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.trialRunning = false
	if cb.state != StateClosed {
		cb.logger.Info().Msg("circuit breaker closed")
		cb.transitionTo(StateClosed)
	}
}

// Caller must hold cb.mu.
func (cb *CircuitBreaker) transitionTo(next State) {
	if cb.state == next {
		return
	}
	metrics.RecordBreakerTransition(cb.name, string(cb.state), string(next))
	cb.state = next
	if next == StateOpen {
		cb.openedAt = cb.clock.Now()
	}
	metrics.SetBreakerState(cb.name, next.metric())
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Status returns the current state with its timing.
func (cb *CircuitBreaker) Status() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	st := Status{Name: cb.name, State: cb.state, Failures: cb.failures}
	if cb.state != StateClosed {
		st.OpenedAt = cb.openedAt
		st.RetryAt = cb.openedAt.Add(cb.resetTimeout)
	}
	return st
}

// Name returns the component name used for metrics.
func (cb *CircuitBreaker) Name() string { return cb.name }
