// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dvr

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MatchResult contains the outcome of a rule match against a listings entry.
type MatchResult struct {
	Matched bool
	Reasons []string
}

// Airing is the subset of a listings entry rules look at.
type Airing struct {
	ProgramID  string
	Title      string
	ChannelRef string
	Start      time.Time
}

// Matches evaluates if a rule applies to an airing.
// It checks Identity (single rules), Channel, Title (Keyword) and Time (Day/Window).
// Start is evaluated in its own location; callers convert to local time when
// rules are expressed in local wall-clock terms.
func (r *Rule) Matches(a Airing) MatchResult {
	if !r.Enabled {
		return MatchResult{Matched: false, Reasons: []string{"rule disabled"}}
	}

	res := MatchResult{Matched: true}

	// 1. Identity
	if r.ProgramID != "" {
		if r.ProgramID != a.ProgramID {
			return MatchResult{Matched: false, Reasons: []string{"program mismatch"}}
		}
		res.Reasons = append(res.Reasons, "program match")
	}

	// 2. Channel
	if r.ChannelRef != "" {
		if !strings.EqualFold(r.ChannelRef, a.ChannelRef) {
			return MatchResult{Matched: false, Reasons: []string{"channel mismatch"}}
		}
		res.Reasons = append(res.Reasons, "channel match")
	}

	// 3. Title
	if r.Keyword != "" {
		if !strings.Contains(strings.ToLower(a.Title), strings.ToLower(r.Keyword)) {
			return MatchResult{Matched: false, Reasons: []string{"keyword mismatch"}}
		}
		res.Reasons = append(res.Reasons, "keyword match")
	}

	// 4. Day
	if len(r.Days) > 0 {
		day := int(a.Start.Weekday()) // 0=Sunday
		found := false
		for _, d := range r.Days {
			if d == day {
				found = true
				break
			}
		}
		if !found {
			return MatchResult{Matched: false, Reasons: []string{"day mismatch"}}
		}
		res.Reasons = append(res.Reasons, "day match")
	}

	// 5. Start window
	if r.StartWindow != "" {
		inWindow, err := IsTimeInWindow(a.Start, r.StartWindow)
		if err != nil {
			// Broken window config must not produce unwanted recordings.
			return MatchResult{Matched: false, Reasons: []string{fmt.Sprintf("window config error: %v", err)}}
		}
		if !inWindow {
			return MatchResult{Matched: false, Reasons: []string{"startWindow mismatch"}}
		}
		res.Reasons = append(res.Reasons, "startWindow match")
	}

	return res
}

// IsTimeInWindow checks if the wall-clock time of t falls within "HHMM-HHMM".
// Supports midnight crossing (e.g., "2200-0200"). Colons are accepted.
// The start is inclusive and the end exclusive.
func IsTimeInWindow(t time.Time, windowStr string) (bool, error) {
	startMins, endMins, err := parseWindow(windowStr)
	if err != nil {
		return false, err
	}

	tMins := t.Hour()*60 + t.Minute()

	switch {
	case startMins < endMins:
		return tMins >= startMins && tMins < endMins, nil
	case startMins > endMins:
		return tMins >= startMins || tMins < endMins, nil
	default:
		// 0000-0000 is treated as "never".
		return false, nil
	}
}

func parseWindow(windowStr string) (int, int, error) {
	clean := strings.ReplaceAll(windowStr, ":", "")
	parts := strings.Split(clean, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid format %q", windowStr)
	}

	start, err := parseClock(parts[0])
	if err != nil {
		return 0, 0, err
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseClock(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	h, m := v/100, v%100
	if v < 0 || h > 23 || m > 59 {
		return 0, fmt.Errorf("clock value %q out of range", s)
	}
	return h*60 + m, nil
}
