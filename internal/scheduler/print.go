// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scheduler

import (
	"github.com/ManuGH/recsched/internal/log"
	"github.com/rs/zerolog"
)

// PrintList logs every candidate in the store at debug level.
func (s *Scheduler) PrintList() {
	s.printList(s.logger, zerolog.DebugLevel)
}

func (s *Scheduler) printList(logger zerolog.Logger, level zerolog.Level) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.store.All()
	logger.WithLevel(level).
		Int(log.FieldCandidates, len(all)).
		Bool("resolved", s.resolved).
		Msg("recording list")
	for _, c := range all {
		logger.WithLevel(level).
			Str(log.FieldProgramID, string(c.ProgramID)).
			Str(log.FieldTitle, c.Title).
			Time("start", c.Start).
			Time("end", c.End).
			Int(log.FieldSourceID, int(c.SourceID)).
			Int(log.FieldInputID, int(c.Input)).
			Int(log.FieldPriority, c.Priority).
			Str("type", string(c.Type)).
			Str(log.FieldStatus, string(c.Status)).
			Bool("conflicting", c.Conflicting).
			Str(log.FieldReason, c.Reason).
			Msg("candidate")
	}
}
