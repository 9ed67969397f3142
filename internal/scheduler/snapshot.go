// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scheduler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ManuGH/recsched/internal/listings"
	"github.com/ManuGH/recsched/internal/recording"
	"github.com/google/renameio/v2"
)

// Snapshot is a point-in-time dump of the scheduler for operators.
type Snapshot struct {
	GeneratedAt         time.Time             `json:"generatedAt"`
	Revision            listings.Revision     `json:"revision"`
	TopologyFingerprint string                `json:"topologyFingerprint,omitempty"`
	Resolved            bool                  `json:"resolved"`
	Pending             []recording.Candidate `json:"pending"`
	Candidates          []recording.Candidate `json:"candidates"`
	LastReport          Report                `json:"lastReport"`
}

// Snapshot copies the current state.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	snap := Snapshot{
		GeneratedAt: now,
		Revision:    s.committed,
		Resolved:    s.resolved,
		Pending:     s.pendingLocked(now),
		Candidates:  s.store.All(),
		LastReport:  s.lastReport,
	}
	if s.topo != nil {
		snap.TopologyFingerprint = s.topo.Fingerprint()
	}
	return snap
}

// WriteSnapshot writes the current state as JSON, replacing path atomically.
func (s *Scheduler) WriteSnapshot(path string) error {
	snap := s.Snapshot()

	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending snapshot file: %w", err)
	}
	defer func() {
		// no-op once committed
		if err := pendingFile.Cleanup(); err != nil {
			s.logger.Debug().Err(err).Msg("cleanup pending snapshot file")
		}
	}()

	enc := json.NewEncoder(pendingFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace snapshot: %w", err)
	}
	return nil
}
