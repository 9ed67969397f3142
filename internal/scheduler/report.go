// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scheduler

import (
	"time"

	"github.com/ManuGH/recsched/internal/listings"
)

// Report is the summary of one FillRecordLists run. It is bounded so it can
// be served to operators as-is.
type Report struct {
	RunID       string            `json:"runId"`
	AutoResolve bool              `json:"autoResolve"`
	StartedAt   time.Time         `json:"startedAt"`
	FinishedAt  time.Time         `json:"finishedAt"`
	DurationMs  int64             `json:"durationMs"`
	WindowFrom  int64             `json:"windowFrom"` // unix seconds
	WindowTo    int64             `json:"windowTo"`   // unix seconds
	Status      string            `json:"status"`     // "success" | "failed"
	Revision    listings.Revision `json:"revision"`
	Summary     RunSummary        `json:"summary"`

	Decisions []RunDecision `json:"decisions,omitempty"` // Cap at maxDecisions
	Conflicts []RunConflict `json:"conflicts,omitempty"` // Cap at maxConflicts
}

// RunSummary provides high-level counters for a rebuild.
type RunSummary struct {
	ProgramsScanned int `json:"programsScanned"`
	RulesEvaluated  int `json:"rulesEvaluated"`
	Candidates      int `json:"candidates"`
	CarriedOver     int `json:"carriedOver"`

	SkippedHistory    int `json:"skippedHistory"`
	SkippedDontRecord int `json:"skippedDontRecord"`
	SkippedMalformed  int `json:"skippedMalformed"`
	SkippedDuplicate  int `json:"skippedDuplicate"`

	Pending    int `json:"pending"`
	Invalid    int `json:"invalid"`
	Conflicted int `json:"conflicted"`
	Clusters   int `json:"clusters"`
	Exhausted  int `json:"exhausted"`
}

// RunDecision explains why a listings entry was skipped.
type RunDecision struct {
	ProgramID string `json:"programId"`
	Title     string `json:"title,omitempty"`
	RuleID    string `json:"ruleId,omitempty"`
	Action    string `json:"action"` // "skipped"
	Reason    string `json:"reason"` // "history" | "dontrecord" | "malformed" | "duplicate"
}

// RunConflict names a candidate dropped by conflict resolution.
type RunConflict struct {
	ProgramID string `json:"programId"`
	Title     string `json:"title,omitempty"`
	Begin     int64  `json:"begin"`
	End       int64  `json:"end"`
	Priority  int    `json:"priority"`
	Message   string `json:"message,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"

	ActionSkipped = "skipped"

	maxDecisions = 200
	maxConflicts = 50
)

func (r *Report) decide(d RunDecision) {
	if len(r.Decisions) < maxDecisions {
		r.Decisions = append(r.Decisions, d)
	}
}

func (r *Report) conflict(c RunConflict) {
	if len(r.Conflicts) < maxConflicts {
		r.Conflicts = append(r.Conflicts, c)
	}
}
