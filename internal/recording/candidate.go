// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package recording holds the working set of recording candidates.
package recording

import (
	"time"

	"github.com/ManuGH/recsched/internal/topology"
)

// ProgramID identifies a broadcast uniquely across listings pulls.
type ProgramID string

// Type classifies how a candidate was requested.
type Type string

const (
	TypeSingle   Type = "single"
	TypeSeries   Type = "series"
	TypeOverride Type = "override"
)

// Status is the scheduling state of a candidate.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRecording  Status = "recording"
	StatusConflicted Status = "conflicted"
	StatusInvalid    Status = "invalid"
)

// Removed reports whether a status takes the candidate out of the pending list.
func (s Status) Removed() bool {
	return s == StatusConflicted || s == StatusInvalid
}

// Candidate is a recording request awaiting or holding an input assignment.
type Candidate struct {
	ProgramID  ProgramID         `json:"programId"`
	Title      string            `json:"title,omitempty"`
	Subtitle   string            `json:"subtitle,omitempty"`
	ChannelRef string            `json:"channelRef,omitempty"`
	SourceID   topology.SourceID `json:"sourceId"`
	Start      time.Time         `json:"start"`
	End        time.Time         `json:"end"`
	Priority   int               `json:"priority"`
	Type       Type              `json:"type"`
	RuleID     string            `json:"ruleId,omitempty"`
	// NewEpisodesOnly skips episodes whose title/subtitle is in history.
	NewEpisodesOnly bool `json:"newEpisodesOnly,omitempty"`

	Input       topology.InputID `json:"inputId,omitempty"`
	Status      Status           `json:"status"`
	Conflicting bool             `json:"conflicting,omitempty"`
	Reason      string           `json:"reason,omitempty"`
}

// Assigned reports whether an input has been chosen.
func (c Candidate) Assigned() bool { return c.Input != topology.NoInput }

// IsOverride reports whether the user forced this recording.
func (c Candidate) IsOverride() bool { return c.Type == TypeOverride }

// Overlaps reports whether the two half-open windows [Start, End) intersect.
// Back-to-back windows do not overlap.
func (c Candidate) Overlaps(o Candidate) bool {
	return c.Start.Before(o.End) && o.Start.Before(c.End)
}

// Ended reports whether the window closed at or before now.
func (c Candidate) Ended(now time.Time) bool { return !c.End.After(now) }

// Duration of the recording window.
func (c Candidate) Duration() time.Duration { return c.End.Sub(c.Start) }

// Less is the canonical pending-list order: start time, then program id.
func Less(a, b Candidate) bool {
	if !a.Start.Equal(b.Start) {
		return a.Start.Before(b.Start)
	}
	return a.ProgramID < b.ProgramID
}
