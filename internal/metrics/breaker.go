// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Breaker state values of recsched_breaker_state.
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "recsched_breaker_state",
		Help: "Circuit breaker state by component (0 closed, 1 half-open, 2 open)",
	}, []string{"component"})

	breakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recsched_breaker_transitions_total",
		Help: "Circuit breaker state changes",
	}, []string{"component", "from", "to"})

	breakerRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recsched_breaker_rejected_total",
		Help: "Calls refused while a circuit breaker was open",
	}, []string{"component"})
)

// SetBreakerState publishes the current breaker state.
func SetBreakerState(component string, state int) {
	breakerState.WithLabelValues(component).Set(float64(state))
}

// RecordBreakerTransition counts a state change.
func RecordBreakerTransition(component, from, to string) {
	breakerTransitions.WithLabelValues(component, from, to).Inc()
}

// RecordBreakerRejected counts a call short-circuited by an open breaker.
func RecordBreakerRejected(component string) {
	breakerRejected.WithLabelValues(component).Inc()
}
