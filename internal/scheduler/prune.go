// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scheduler

import (
	"time"

	"github.com/ManuGH/recsched/internal/metrics"
	"github.com/ManuGH/recsched/internal/recording"
)

// pendingLocked must be called with s.mu held.
func (s *Scheduler) pendingLocked(now time.Time) []recording.Candidate {
	return pruneList(s.store, now)
}

// dispatchLocked is the pending view handed to the executor. An unresolved
// list still holds both sides of every conflict, so nothing is dispatched
// until ResolveConflicts or a resolving rebuild has run. Must be called with
// s.mu held.
func (s *Scheduler) dispatchLocked(now time.Time) []recording.Candidate {
	if !s.resolved {
		return nil
	}
	return pruneList(s.store, now)
}

// pruneList returns the pending view: candidates not removed by resolution,
// not yet ended and not already handed out, in start/program-id order.
// Removed and ended candidates stay in the store.
func pruneList(st *recording.Store, now time.Time) []recording.Candidate {
	return st.Filter(func(c recording.Candidate) bool {
		return c.Status == recording.StatusPending && !c.Ended(now)
	})
}

// ResolveConflicts runs the full conflict engine over a list built with
// autoResolve disabled and returns the number of candidates it removed.
// Calling it on a resolved list re-resolves from scratch with the same result.
func (s *Scheduler) ResolveConflicts() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	r := &resolver{topo: s.topo, exclusiveCards: s.exclusiveCards, now: now, logger: s.logger}
	stats := r.resolve(s.store)
	s.resolved = true

	s.lastReport.Summary.Pending = len(s.pendingLocked(now))
	s.lastReport.Summary.Invalid = stats.Invalid
	s.lastReport.Summary.Conflicted = stats.Conflicted
	s.lastReport.Summary.Clusters = stats.Clusters
	s.lastReport.Summary.Exhausted = stats.Exhausted

	metrics.SetScheduleState(s.lastReport.Summary.Pending, stats.Conflicted, stats.Clusters)
	metrics.RecordRemovals(ReasonConflict, stats.Conflicted)
	return stats.Conflicted
}

// Resolved reports whether the current list went through conflict resolution.
func (s *Scheduler) Resolved() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolved
}
