// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the recording schedule over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ManuGH/recsched/internal/api/middleware"
	"github.com/ManuGH/recsched/internal/config"
	"github.com/ManuGH/recsched/internal/log"
	"github.com/ManuGH/recsched/internal/recording"
	"github.com/ManuGH/recsched/internal/resilience"
	"github.com/ManuGH/recsched/internal/scheduler"
	"github.com/ManuGH/recsched/internal/topology"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Scheduler is the part of *scheduler.Scheduler the API needs.
type Scheduler interface {
	AllPending() []recording.Candidate
	GetNextRecording() (recording.Candidate, bool)
	RemoveFirstRecording() (recording.Candidate, bool)
	CompleteRecording(ctx context.Context, programID recording.ProgramID) error
	Conflicting(programID recording.ProgramID, removeNonPlaying bool, within []recording.Candidate) ([]recording.Candidate, error)
	FillRecordLists(ctx context.Context, autoResolve bool) bool
	ResolveConflicts() int
	Resolved() bool
	LastReport() scheduler.Report
	Topology() *topology.Topology
	BreakerStatus() resilience.Status
}

// Notifier requests a background rebuild cycle.
type Notifier interface {
	Notify(reason string)
}

// Server owns the HTTP router and its collaborators.
type Server struct {
	sched       Scheduler
	notifier    Notifier
	rules       RuleManager
	cfg         config.APIConfig
	serviceName string
	router      chi.Router
	httpServer  *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithNotifier wakes the rebuild loop after state-changing requests.
func WithNotifier(n Notifier) Option {
	return func(s *Server) { s.notifier = n }
}

// WithTracing enables otelhttp spans under the given service name.
func WithTracing(serviceName string) Option {
	return func(s *Server) { s.serviceName = serviceName }
}

// New creates a server and builds its routes.
func New(sched Scheduler, cfg config.APIConfig, opts ...Option) *Server {
	s := &Server{sched: sched, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  true,
		TracingService: s.serviceName,
		EnableLogging:  true,
		RateLimit:      s.cfg.RateLimit,
	})

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/recordings/pending", s.handlePending)
		r.Get("/recordings/next", s.handleNext)
		r.Post("/recordings/next/consume", s.handleConsume)
		r.Post("/recordings/{id}/complete", s.handleComplete)
		r.Get("/recordings/{id}/conflicts", s.handleConflicts)
		r.Post("/rebuild", s.handleRebuild)
		r.Post("/resolve", s.handleResolve)
		r.Get("/report", s.handleReport)
		r.Get("/topology", s.handleTopology)
		if s.rules != nil {
			r.Route("/rules", s.ruleRoutes)
		}
	})
	return r
}

func (s *Server) notify(reason string) {
	if s.notifier != nil {
		s.notifier.Notify(reason)
	}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger := log.WithComponent("api")
		logger.Info().
			Str(log.FieldEvent, "api.listen").
			Str("addr", s.cfg.ListenAddr).
			Msg("HTTP server listening")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout+shutdownGrace)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown HTTP server: %w", err)
	}
	return nil
}
