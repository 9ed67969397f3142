// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package history records finished recordings and answers "was this recorded
// before" for the list builder.
package history

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const (
	programPrefix = "program:"
	episodePrefix = "episode:"
)

// Entry is one finished recording.
type Entry struct {
	ProgramID  string    `json:"program_id"`
	Title      string    `json:"title,omitempty"`
	Subtitle   string    `json:"subtitle,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Keys returns every history key the entry is stored under.
func (e Entry) Keys() []string {
	return Keys(e.ProgramID, e.Title, e.Subtitle)
}

// ProgramKey identifies a recording by listings program id.
func ProgramKey(programID string) string {
	if programID == "" {
		return ""
	}
	return programPrefix + programID
}

// EpisodeKey identifies an episode independent of when or where it airs.
// Both title and subtitle are required; a title alone cannot tell episodes
// apart, so it yields "".
func EpisodeKey(title, subtitle string) string {
	t, s := Normalize(title), Normalize(subtitle)
	if t == "" || s == "" {
		return ""
	}
	return episodePrefix + t + "|" + s
}

// Keys derives the program key and, when possible, the episode key.
func Keys(programID, title, subtitle string) []string {
	out := make([]string, 0, 2)
	if k := ProgramKey(programID); k != "" {
		out = append(out, k)
	}
	if k := EpisodeKey(title, subtitle); k != "" {
		out = append(out, k)
	}
	return out
}

// Normalize folds s for caseless comparison: NFC, Unicode case folding and
// collapsed whitespace.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = cases.Fold().String(s)
	// Folding can produce decomposed sequences.
	s = norm.NFC.String(s)
	return strings.Join(strings.Fields(s), " ")
}
