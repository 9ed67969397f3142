// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scheduler

import (
	"github.com/ManuGH/recsched/internal/recording"
	"github.com/ManuGH/recsched/internal/topology"
)

// inputFree reports whether c could use in without colliding with an
// already placed candidate.
func (r *resolver) inputFree(c recording.Candidate, in topology.InputID, placed []recording.Candidate) bool {
	for _, p := range placed {
		if !p.Assigned() || !p.Overlaps(c) {
			continue
		}
		if p.Input == in {
			return false
		}
		if r.exclusiveCards && r.topo.SameCard(p.Input, in) {
			return false
		}
	}
	return true
}

// doMultiCard picks an input for c. The current assignment is kept while it
// is valid and free; otherwise the source's inputs are tried in preference
// order. It returns NoInput when every input is taken.
func (r *resolver) doMultiCard(c recording.Candidate, placed []recording.Candidate) topology.InputID {
	if c.Assigned() && r.topo.ValidInput(c.SourceID, c.Input) && r.inputFree(c, c.Input, placed) {
		return c.Input
	}
	for _, in := range r.topo.InputsFor(c.SourceID) {
		if r.inputFree(c, in, placed) {
			return in
		}
	}
	return topology.NoInput
}

// guessSingle assigns an input to a candidate that conflicts with nothing.
func (r *resolver) guessSingle(c recording.Candidate) recording.Candidate {
	if pinned(c) {
		return c
	}
	c.Input = r.doMultiCard(c, nil)
	return c
}
