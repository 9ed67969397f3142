// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package scheduler decides which recordings proceed and on which tuner
// input. It rebuilds its candidate list from listings, rules and history,
// resolves conflicts between overlapping recordings and serves the resolved
// list to the recording-execution subsystem.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/recsched/internal/dvr"
	"github.com/ManuGH/recsched/internal/history"
	"github.com/ManuGH/recsched/internal/listings"
	"github.com/ManuGH/recsched/internal/log"
	"github.com/ManuGH/recsched/internal/recording"
	"github.com/ManuGH/recsched/internal/resilience"
	"github.com/ManuGH/recsched/internal/telemetry"
	"github.com/ManuGH/recsched/internal/topology"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// Listings supplies programs and recording rules.
type Listings interface {
	Programs(ctx context.Context, from, to time.Time) ([]listings.Program, error)
	Rules(ctx context.Context) ([]dvr.Rule, error)
}

// TopologySource supplies the tuner layout.
type TopologySource interface {
	Topology(ctx context.Context) (*topology.Topology, error)
}

// History is the prior-recordings store.
type History interface {
	Seen(ctx context.Context, keys ...string) (bool, error)
	Record(ctx context.Context, e history.Entry) error
}

// Backend is the listings/topology backing store; *listings.Store implements it.
type Backend interface {
	Listings
	TopologySource
	listings.RevisionSource
	History
}

// Defaults for the listings window.
const (
	DefaultHorizon  = 14 * 24 * time.Hour
	DefaultLookback = 6 * time.Hour
)

// Scheduler owns the candidate store and topology snapshot. All exported
// methods are safe for concurrent use.
type Scheduler struct {
	listings  Listings
	topoSrc   TopologySource
	revisions listings.RevisionSource
	history   History

	now            func() time.Time
	location       *time.Location
	logger         zerolog.Logger
	tracer         trace.Tracer
	breaker        *resilience.CircuitBreaker
	horizon        time.Duration
	lookback       time.Duration
	exclusiveCards bool

	// Rebuild coordination
	group     singleflight.Group
	rebuildMu sync.Mutex

	// Guarded by mu
	mu           sync.RWMutex
	store        *recording.Store
	topo         *topology.Topology
	committed    listings.Revision
	hasCommitted bool
	priorDirty   bool
	resolved     bool
	lastReport   Report
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithHistory replaces the backend's history store.
func WithHistory(h History) Option {
	return func(s *Scheduler) { s.history = h }
}

// WithRevisions replaces the backend's revision source.
func WithRevisions(r listings.RevisionSource) Option {
	return func(s *Scheduler) { s.revisions = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLocation sets the zone rule day and start-window checks use.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithHorizon sets how far ahead listings are loaded.
func WithHorizon(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.horizon = d
		}
	}
}

// WithLookback keeps programs that ended within d in the internal store so
// Conflicting can still explain them.
func WithLookback(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.lookback = d
		}
	}
}

// WithExclusiveCards makes inputs of the same card contend with each other.
func WithExclusiveCards(enabled bool) Option {
	return func(s *Scheduler) { s.exclusiveCards = enabled }
}

// WithBreaker guards backend loads with a circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(s *Scheduler) { s.breaker = cb }
}

// WithTracer replaces the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) { s.tracer = t }
}

// New creates a scheduler over backend. The store is empty until the first
// FillRecordLists.
func New(backend Backend, opts ...Option) *Scheduler {
	s := &Scheduler{
		listings:  backend,
		topoSrc:   backend,
		revisions: backend,
		history:   backend,
		now:       time.Now,
		location:  time.Local,
		logger:    log.WithComponent("scheduler"),
		tracer:    telemetry.Tracer(telemetry.TracerName),
		breaker:   resilience.NewCircuitBreaker("listings", 3, 30*time.Second),
		horizon:   DefaultHorizon,
		lookback:  DefaultLookback,
		store:     recording.NewStore(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Topology returns the current topology snapshot, or nil before the first rebuild.
func (s *Scheduler) Topology() *topology.Topology {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topo
}

// BreakerStatus reports the state of the listings circuit breaker.
func (s *Scheduler) BreakerStatus() resilience.Status {
	if s.breaker == nil {
		return resilience.Status{Name: "listings", State: resilience.StateClosed}
	}
	return s.breaker.Status()
}

// LastReport returns the summary of the last successful rebuild.
func (s *Scheduler) LastReport() Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}
