// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ManuGH/recsched/internal/dvr"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxRuleBody = 64 << 10

// RuleManager edits recording rules; *dvr.Manager implements it.
type RuleManager interface {
	GetRules(ctx context.Context) ([]dvr.Rule, error)
	GetRule(ctx context.Context, id string) (dvr.Rule, error)
	AddRule(ctx context.Context, r dvr.Rule) (string, error)
	UpdateRule(ctx context.Context, id string, upd dvr.Rule) error
	DeleteRule(ctx context.Context, id string) error
}

// WithRules mounts the rule endpoints.
func WithRules(rm RuleManager) Option {
	return func(s *Server) { s.rules = rm }
}

func (s *Server) ruleRoutes(r chi.Router) {
	r.Get("/", s.handleListRules)
	r.Post("/", s.handleCreateRule)
	r.Get("/{id}", s.handleGetRule)
	r.Put("/{id}", s.handleUpdateRule)
	r.Delete("/{id}", s.handleDeleteRule)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.rules.GetRules(r.Context())
	if err != nil {
		s.ruleFailure(w, r, err)
		return
	}
	if rules == nil {
		rules = []dvr.Rule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.rules.GetRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.ruleFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	rule, err := decodeRule(w, r)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if err := rule.Validate(); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	id, err := s.rules.AddRule(r.Context(), rule)
	if err != nil {
		s.ruleFailure(w, r, err)
		return
	}
	s.notify("rules.changed")
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	rule, err := decodeRule(w, r)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	rule.ID = id
	if err := rule.Validate(); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if err := s.rules.UpdateRule(r.Context(), id, rule); err != nil {
		s.ruleFailure(w, r, err)
		return
	}
	s.notify("rules.changed")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.rules.DeleteRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.ruleFailure(w, r, err)
		return
	}
	s.notify("rules.changed")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ruleFailure(w http.ResponseWriter, r *http.Request, err error) {
	writeFailure(w, r, err, "rules.failed")
}

func decodeRule(w http.ResponseWriter, r *http.Request) (dvr.Rule, error) {
	var rule dvr.Rule
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRuleBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rule); err != nil {
		return dvr.Rule{}, fmt.Errorf("invalid rule body: %w", err)
	}
	return rule, nil
}
