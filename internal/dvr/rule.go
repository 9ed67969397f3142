// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dvr

import (
	"fmt"
	"sort"
)

// RuleType selects how a rule turns listings into recording candidates.
type RuleType string

const (
	// RuleSingle records exactly one program, identified by ProgramID.
	RuleSingle RuleType = "single"
	// RuleSeries records every matching airing.
	RuleSeries RuleType = "series"
	// RuleOverride forces a recording: it outranks priorities and history checks.
	RuleOverride RuleType = "override"
	// RuleDontRecord suppresses matching airings that lower-ranked rules would pick up.
	RuleDontRecord RuleType = "dontrecord"
)

// Valid reports whether t is a known rule type.
func (t RuleType) Valid() bool {
	switch t {
	case RuleSingle, RuleSeries, RuleOverride, RuleDontRecord:
		return true
	}
	return false
}

// Rule is a user recording rule.
type Rule struct {
	ID              string   `json:"id"`
	Enabled         bool     `json:"enabled"`
	Type            RuleType `json:"type"`
	Keyword         string   `json:"keyword,omitempty"`
	ChannelRef      string   `json:"channel_ref,omitempty"`
	ProgramID       string   `json:"program_id,omitempty"`
	Days            []int    `json:"days,omitempty"`         // 0=Sunday
	StartWindow     string   `json:"start_window,omitempty"` // HHMM-HHMM
	Priority        int      `json:"priority"`
	NewEpisodesOnly bool     `json:"new_episodes_only,omitempty"`
}

// Validate checks the fields a rule needs to match anything.
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if !r.Type.Valid() {
		return fmt.Errorf("rule %s: unknown type %q", r.ID, r.Type)
	}
	if r.Type == RuleSingle && r.ProgramID == "" {
		return fmt.Errorf("rule %s: single rules need a program id", r.ID)
	}
	for _, d := range r.Days {
		if d < 0 || d > 6 {
			return fmt.Errorf("rule %s: day %d out of range 0..6", r.ID, d)
		}
	}
	if r.StartWindow != "" {
		if _, _, err := parseWindow(r.StartWindow); err != nil {
			return fmt.Errorf("rule %s: start window: %w", r.ID, err)
		}
	}
	return nil
}

// SortRules orders rules by evaluation precedence: override and dontrecord
// rules first, then priority descending, then id.
func SortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		ri, rj := typeRank(rules[i].Type), typeRank(rules[j].Type)
		if ri != rj {
			return ri < rj
		}
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}

func typeRank(t RuleType) int {
	switch t {
	case RuleOverride:
		return 0
	case RuleDontRecord:
		return 1
	default:
		return 2
	}
}
