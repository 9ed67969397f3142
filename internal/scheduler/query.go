// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scheduler

import (
	"context"
	"fmt"
	"sort"

	"github.com/ManuGH/recsched/internal/history"
	"github.com/ManuGH/recsched/internal/log"
	"github.com/ManuGH/recsched/internal/metrics"
	"github.com/ManuGH/recsched/internal/recording"
	"github.com/ManuGH/recsched/internal/topology"
)

// GetNextRecording returns the earliest pending recording of a resolved
// list. It reports false while the list is unresolved.
func (s *Scheduler) GetNextRecording() (recording.Candidate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pending := s.dispatchLocked(s.now())
	if len(pending) == 0 {
		return recording.Candidate{}, false
	}
	return pending[0], true
}

// RemoveFirstRecording hands the head of the pending list to the caller and
// marks it as recording. It stays in the store, keeps its input across
// rebuilds and is dropped once its window ends or it is completed.
func (s *Scheduler) RemoveFirstRecording() (recording.Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.dispatchLocked(s.now())
	if len(pending) == 0 {
		return recording.Candidate{}, false
	}
	head := pending[0]
	head.Status = recording.StatusRecording
	s.store.Put(head)
	metrics.RecordConsumed()

	s.logger.Info().
		Str(log.FieldProgramID, string(head.ProgramID)).
		Int(log.FieldInputID, int(head.Input)).
		Str(log.FieldEvent, "recording.consumed").
		Msg("recording handed to executor")
	return head, true
}

// AllPending returns a copy of the pending list. On an unresolved list it
// includes every valid candidate, conflicting ones flagged.
func (s *Scheduler) AllPending() []recording.Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingLocked(s.now())
}

// Candidates returns every candidate in the store, removed ones included.
func (s *Scheduler) Candidates() []recording.Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.All()
}

// Conflicting returns the candidates that conflict with programID, ordered by
// start time. The program is evaluated on every valid input of its source,
// so the result explains why it could not be placed. A nil within searches
// the whole store. With removeNonPlaying, removed and unassigned candidates
// are left out.
func (s *Scheduler) Conflicting(programID recording.ProgramID, removeNonPlaying bool, within []recording.Candidate) ([]recording.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target, ok := s.store.Get(programID)
	if !ok {
		for _, c := range within {
			if c.ProgramID == programID {
				target, ok = c, true
				break
			}
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProgram, programID)
	}
	target.Input = topology.NoInput

	pool := within
	if pool == nil {
		pool = s.store.All()
	}
	out := make([]recording.Candidate, 0)
	for _, c := range pool {
		if removeNonPlaying && (c.Status.Removed() || !c.Assigned()) {
			continue
		}
		if Conflict(s.topo, s.exclusiveCards, target, c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return recording.Less(out[i], out[j]) })
	return out, nil
}

// CompleteRecording records a finished recording in history and drops it
// from the store. The next CheckForChanges reports a change.
func (s *Scheduler) CompleteRecording(ctx context.Context, programID recording.ProgramID) error {
	s.mu.RLock()
	c, ok := s.store.Get(programID)
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProgram, programID)
	}

	if s.history != nil {
		entry := history.Entry{
			ProgramID:  string(c.ProgramID),
			Title:      c.Title,
			Subtitle:   c.Subtitle,
			RecordedAt: s.now(),
		}
		if err := s.history.Record(ctx, entry); err != nil {
			return fmt.Errorf("record history %s: %w", programID, err)
		}
	}

	s.mu.Lock()
	s.store.Delete(programID)
	s.priorDirty = true
	s.mu.Unlock()
	metrics.RecordCompleted()

	logger := log.WithContext(ctx, s.logger)
	logger.Info().
		Str(log.FieldProgramID, string(programID)).
		Str(log.FieldEvent, "recording.completed").
		Msg("recording completed")
	return nil
}
