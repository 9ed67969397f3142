// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ManuGH/recsched/internal/log"
	"github.com/ManuGH/recsched/internal/recording"
	"github.com/ManuGH/recsched/internal/resilience"
	"github.com/ManuGH/recsched/internal/topology"
	"github.com/go-chi/chi/v5"
)

const shutdownGrace = 5 * time.Second

type listResponse struct {
	Count int                   `json:"count"`
	Items []recording.Candidate `json:"items"`
}

type topologyResponse struct {
	Fingerprint string           `json:"fingerprint"`
	Sources     int              `json:"sources"`
	Cards       []topology.Card  `json:"cards"`
	Inputs      []topology.Input `json:"inputs"`
}

func newList(items []recording.Candidate) listResponse {
	if items == nil {
		items = []recording.Candidate{}
	}
	return listResponse{Count: len(items), Items: items}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	report := s.sched.LastReport()
	breaker := s.sched.BreakerStatus()
	status := "ok"
	if breaker.State != resilience.StateClosed {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      status,
		"resolved":    s.sched.Resolved(),
		"lastRebuild": report.Status,
		"topology":    s.sched.Topology() != nil,
		"listings":    breaker,
	})
}

func (s *Server) handlePending(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newList(s.sched.AllPending()))
}

func (s *Server) handleNext(w http.ResponseWriter, _ *http.Request) {
	next, ok := s.sched.GetNextRecording()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

func (s *Server) handleConsume(w http.ResponseWriter, r *http.Request) {
	head, ok := s.sched.RemoveFirstRecording()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(log.FieldEvent, "recording.consume").
		Str(log.FieldProgramID, string(head.ProgramID)).
		Msg("recording consumed via API")
	writeJSON(w, http.StatusOK, head)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id := recording.ProgramID(chi.URLParam(r, "id"))
	if err := s.sched.CompleteRecording(r.Context(), id); err != nil {
		writeFailure(w, r, err, "recording.complete_failed")
		return
	}
	s.notify("recording.completed")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	id := recording.ProgramID(chi.URLParam(r, "id"))
	removeNonPlaying, err := boolParam(r, "remove_non_playing", false)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	conflicts, err := s.sched.Conflicting(id, removeNonPlaying, nil)
	if err != nil {
		writeFailure(w, r, err, "recording.conflicts_failed")
		return
	}
	writeJSON(w, http.StatusOK, newList(conflicts))
}

// handleRebuild runs a rebuild synchronously so the caller sees the outcome.
func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	autoResolve, err := boolParam(r, "auto_resolve", true)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if !s.sched.FillRecordLists(r.Context(), autoResolve) {
		writeJSON(w, http.StatusServiceUnavailable, s.sched.LastReport())
		return
	}
	writeJSON(w, http.StatusOK, s.sched.LastReport())
}

type resolveResponse struct {
	Conflicted int `json:"conflicted"`
	Pending    int `json:"pending"`
}

// handleResolve resolves a list rebuilt with auto_resolve=false. Nothing is
// dispatched from such a list until this runs.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	n := s.sched.ResolveConflicts()
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(log.FieldEvent, "conflicts.resolve").
		Int(log.FieldConflicted, n).
		Msg("conflicts resolved via API")
	writeJSON(w, http.StatusOK, resolveResponse{Conflicted: n, Pending: len(s.sched.AllPending())})
}

func (s *Server) handleReport(w http.ResponseWriter, _ *http.Request) {
	report := s.sched.LastReport()
	if report.RunID == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	topo := s.sched.Topology()
	if topo == nil {
		writeProblem(w, r, http.StatusServiceUnavailable, codeUnavailable, "topology not loaded")
		return
	}
	writeJSON(w, http.StatusOK, topologyResponse{
		Fingerprint: topo.Fingerprint(),
		Sources:     topo.NumSources(),
		Cards:       topo.Cards(),
		Inputs:      topo.Inputs(),
	})
}

func boolParam(r *http.Request, name string, def bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}
