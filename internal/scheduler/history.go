// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scheduler

import (
	"context"
	"fmt"

	"github.com/ManuGH/recsched/internal/history"
	"github.com/ManuGH/recsched/internal/recording"
)

// FindInOldRecordings reports whether c was recorded before: by program id,
// or by episode title/subtitle when c only wants new episodes. It does not
// touch scheduler state.
func (s *Scheduler) FindInOldRecordings(ctx context.Context, c recording.Candidate) (bool, error) {
	if s.history == nil {
		return false, nil
	}
	keys := historyKeys(c)
	if len(keys) == 0 {
		return false, nil
	}
	seen, err := s.history.Seen(ctx, keys...)
	if err != nil {
		return false, fmt.Errorf("history lookup %s: %w", c.ProgramID, err)
	}
	return seen, nil
}

func historyKeys(c recording.Candidate) []string {
	keys := make([]string, 0, 2)
	if k := history.ProgramKey(string(c.ProgramID)); k != "" {
		keys = append(keys, k)
	}
	if c.NewEpisodesOnly {
		if k := history.EpisodeKey(c.Title, c.Subtitle); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
