// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scheduler

import (
	"context"

	"github.com/ManuGH/recsched/internal/log"
	"github.com/ManuGH/recsched/internal/recording"
)

// CheckForChanges reports whether the backing data or the local recording
// state moved since the last successful rebuild. It is true before the first
// rebuild and when the revision cannot be read, so the rebuild surfaces the
// failure.
func (s *Scheduler) CheckForChanges(ctx context.Context) bool {
	rev, err := s.revisions.Revision(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err != nil {
		s.logger.Debug().Err(err).Str(log.FieldEvent, "revision.read_failed").Msg("treating unreadable revision as change")
		return true
	}
	if !s.hasCommitted || s.priorDirty || rev != s.committed {
		return true
	}
	now := s.now()
	for _, c := range s.store.Filter(func(c recording.Candidate) bool {
		return c.Status == recording.StatusRecording
	}) {
		if c.Ended(now) {
			return true
		}
	}
	return false
}
