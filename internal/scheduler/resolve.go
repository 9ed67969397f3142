// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scheduler

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/ManuGH/recsched/internal/log"
	"github.com/ManuGH/recsched/internal/recording"
	"github.com/ManuGH/recsched/internal/topology"
	"github.com/rs/zerolog"
)

// Removal reasons.
const (
	ReasonTopology = "topology"
	ReasonConflict = "conflict"
)

// resolver runs the conflict engine over one store. It holds no state
// between runs.
type resolver struct {
	topo           *topology.Topology
	exclusiveCards bool
	now            time.Time
	logger         zerolog.Logger
}

// resolveStats summarises one resolver run.
type resolveStats struct {
	Invalid    int
	Conflicted int
	Clusters   int
	Exhausted  int
}

// validate resets removals from an earlier run and drops candidates the
// topology cannot serve. Stale assignments are cleared.
func (r *resolver) validate(st *recording.Store) int {
	invalid := 0
	for _, c := range st.All() {
		if c.Status == recording.StatusRecording {
			// An in-progress recording keeps its input even when the
			// topology no longer lists it.
			if !c.Ended(r.now) && (r.topo == nil || !r.topo.ValidInput(c.SourceID, c.Input)) {
				r.logger.Warn().
					Err(ErrTopologyInconsistent).
					Str(log.FieldProgramID, string(c.ProgramID)).
					Int(log.FieldSourceID, int(c.SourceID)).
					Int(log.FieldInputID, int(c.Input)).
					Str(log.FieldEvent, "recording.stale_input").
					Msg("in-progress recording holds an input the topology no longer has")
			}
			continue
		}
		c.Status = recording.StatusPending
		c.Reason = ""
		c.Conflicting = false
		if r.topo == nil || !r.topo.HasSource(c.SourceID) {
			c.Status = recording.StatusInvalid
			c.Reason = ReasonTopology
			c.Input = topology.NoInput
			invalid++
			r.logger.Warn().
				Err(ErrTopologyInconsistent).
				Str(log.FieldProgramID, string(c.ProgramID)).
				Int(log.FieldSourceID, int(c.SourceID)).
				Str(log.FieldEvent, "candidate.invalid").
				Msg("source has no inputs, dropping candidate")
		} else if c.Assigned() && !r.topo.ValidInput(c.SourceID, c.Input) {
			c.Input = topology.NoInput
		}
		st.Put(c)
	}
	return invalid
}

// markKnownInputs assigns the only input of single-input sources.
func (r *resolver) markKnownInputs(st *recording.Store) {
	for _, c := range st.Filter(func(c recording.Candidate) bool {
		return active(c, r.now) && !c.Assigned()
	}) {
		if r.topo.NumInputsPerSource(c.SourceID) != 1 {
			continue
		}
		c.Input = r.topo.InputsFor(c.SourceID)[0]
		st.Put(c)
	}
}

// markConflicts flags every active candidate that shares a cluster with
// another one and returns the clusters.
func (r *resolver) markConflicts(st *recording.Store) [][]recording.Candidate {
	groups := clusters(r.topo, r.exclusiveCards, st.Filter(func(c recording.Candidate) bool {
		return active(c, r.now)
	}))
	for _, g := range groups {
		conflicting := len(g) > 1
		for i := range g {
			g[i].Conflicting = conflicting
			st.Put(g[i])
		}
	}
	return groups
}

// checkOverride returns -1 when a is a forced recording and b is not, 1 for
// the reverse and 0 when neither outranks the other by override.
func checkOverride(a, b recording.Candidate) int {
	switch {
	case a.IsOverride() && !b.IsOverride():
		return -1
	case !a.IsOverride() && b.IsOverride():
		return 1
	}
	return 0
}

// rankLess orders conflicting candidates from most to least deserving:
// in-progress recordings, forced recordings, higher priority, earlier start,
// lower program id.
func rankLess(a, b recording.Candidate) bool {
	ar, br := a.Status == recording.StatusRecording, b.Status == recording.StatusRecording
	if ar != br {
		return ar
	}
	if o := checkOverride(a, b); o != 0 {
		return o < 0
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return recording.Less(a, b)
}

// getBest returns the highest-ranked member of a cluster.
func getBest(group []recording.Candidate) (recording.Candidate, bool) {
	if len(group) == 0 {
		return recording.Candidate{}, false
	}
	best := group[0]
	for _, c := range group[1:] {
		if rankLess(c, best) {
			best = c
		}
	}
	return best, true
}

// placeCluster admits members in rank order and returns the placed members
// and the losers. A member is admitted when it fits beside the members
// already placed, either on a free input or after repacking the whole set.
func (r *resolver) placeCluster(group []recording.Candidate) (placed, losers []recording.Candidate) {
	if len(group) == 1 {
		return []recording.Candidate{r.guessSingle(group[0])}, nil
	}
	ranked := make([]recording.Candidate, len(group))
	copy(ranked, group)
	sort.SliceStable(ranked, func(i, j int) bool { return rankLess(ranked[i], ranked[j]) })

	for _, c := range ranked {
		if pinned(c) {
			if c.Assigned() && !r.inputFree(c, c.Input, placed) {
				r.logger.Warn().
					Err(ErrResourceExhausted).
					Str(log.FieldProgramID, string(c.ProgramID)).
					Int(log.FieldInputID, int(c.Input)).
					Str(log.FieldEvent, "recording.shared_input").
					Msg("in-progress recordings share an input")
			}
			placed = append(placed, c)
			continue
		}
		if in := r.doMultiCard(c, placed); in != topology.NoInput {
			c.Input = in
			placed = append(placed, c)
			continue
		}
		if repacked, ok := r.repack(append(slices.Clone(placed), c)); ok {
			placed = repacked
			continue
		}
		losers = append(losers, c)
	}
	return placed, losers
}

// pinned reports whether c is already recording and must keep its input.
func pinned(c recording.Candidate) bool {
	return c.Status == recording.StatusRecording
}

// repackBudget bounds the input choices one repack may try.
const repackBudget = 4096

// repack reassigns every unpinned member in start order, backtracking over
// the inputs of each member's source. Pinned members keep their inputs. It
// reports false when no assignment exists or the budget runs out.
func (r *resolver) repack(members []recording.Candidate) ([]recording.Candidate, bool) {
	order := slices.Clone(members)
	sort.SliceStable(order, func(i, j int) bool {
		if pi, pj := pinned(order[i]), pinned(order[j]); pi != pj {
			return pi
		}
		return recording.Less(order[i], order[j])
	})
	out := make([]recording.Candidate, 0, len(order))
	first := 0
	for first < len(order) && pinned(order[first]) {
		out = append(out, order[first])
		first++
	}

	budget := repackBudget
	var place func(i int) bool
	place = func(i int) bool {
		if i == len(order) {
			return true
		}
		c := order[i]
		for _, in := range r.topo.InputsFor(c.SourceID) {
			if budget == 0 {
				return false
			}
			budget--
			if !r.inputFree(c, in, out) {
				continue
			}
			c.Input = in
			out = append(out, c)
			if place(i + 1) {
				return true
			}
			out = out[:len(out)-1]
		}
		return false
	}
	if !place(first) {
		return nil, false
	}
	return out, true
}

// markConflictsToRemove marks losers as conflicted, naming the placed
// candidates that blocked them.
func (r *resolver) markConflictsToRemove(losers, placed []recording.Candidate) []recording.Candidate {
	out := make([]recording.Candidate, 0, len(losers))
	for _, c := range losers {
		var blocking []string
		for _, p := range placed {
			if potentialConflict(r.topo, r.exclusiveCards, c, p) {
				blocking = append(blocking, string(p.ProgramID))
			}
		}
		sort.Strings(blocking)
		c.Status = recording.StatusConflicted
		c.Input = topology.NoInput
		c.Reason = fmt.Sprintf("%s: %s", ReasonConflict, strings.Join(blocking, ","))
		out = append(out, c)
	}
	return out
}

// removeConflicts writes placements and removals back to the store.
func (r *resolver) removeConflicts(st *recording.Store, placed, removed []recording.Candidate) {
	for _, c := range placed {
		st.Put(c)
	}
	for _, c := range removed {
		st.Put(c)
		r.logger.Info().
			Str(log.FieldProgramID, string(c.ProgramID)).
			Int(log.FieldPriority, c.Priority).
			Str(log.FieldStatus, string(c.Status)).
			Str(log.FieldReason, c.Reason).
			Str(log.FieldEvent, "candidate.removed").
			Msg("recording dropped by conflict resolution")
	}
}

// prepare runs the steps that never remove a valid candidate.
func (r *resolver) prepare(st *recording.Store) (resolveStats, [][]recording.Candidate) {
	var stats resolveStats
	stats.Invalid = r.validate(st)
	if r.topo == nil {
		return stats, nil
	}
	r.markKnownInputs(st)
	groups := r.markConflicts(st)
	stats.Clusters = countConflictClusters(groups)
	return stats, groups
}

// resolve runs the full conflict engine over st.
func (r *resolver) resolve(st *recording.Store) resolveStats {
	stats, groups := r.prepare(st)
	for _, g := range groups {
		placed, losers := r.placeCluster(g)
		var removed []recording.Candidate
		if len(losers) > 0 {
			stats.Exhausted++
			removed = r.markConflictsToRemove(losers, placed)
			stats.Conflicted += len(removed)
			r.logger.Warn().
				Err(ErrResourceExhausted).
				Int(log.FieldClusterSize, len(g)).
				Int(log.FieldDropped, len(losers)).
				Str(log.FieldEvent, "cluster.exhausted").
				Msg("not enough inputs for conflicting recordings")
		}
		r.removeConflicts(st, placed, removed)
	}
	return stats
}

func countConflictClusters(groups [][]recording.Candidate) int {
	n := 0
	for _, g := range groups {
		if len(g) > 1 {
			n++
		}
	}
	return n
}
