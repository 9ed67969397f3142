// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scheduler

import (
	"sort"
	"time"

	"github.com/ManuGH/recsched/internal/recording"
	"github.com/ManuGH/recsched/internal/topology"
)

// Conflict reports whether a and b compete for the same tuner resource while
// their windows overlap. A candidate contends with the input it is assigned,
// or with every valid input of its source while unassigned. With
// exclusiveCards, inputs sharing a card contend too. The relation is
// symmetric and irreflexive.
func Conflict(topo *topology.Topology, exclusiveCards bool, a, b recording.Candidate) bool {
	if a.ProgramID == b.ProgramID || !a.Overlaps(b) {
		return false
	}
	return contend(topo, exclusiveCards, inputSet(topo, a), inputSet(topo, b))
}

// Conflict evaluates the relation against the current topology.
func (s *Scheduler) Conflict(a, b recording.Candidate) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Conflict(s.topo, s.exclusiveCards, a, b)
}

func inputSet(topo *topology.Topology, c recording.Candidate) []topology.InputID {
	if c.Assigned() {
		return []topology.InputID{c.Input}
	}
	if topo == nil {
		return nil
	}
	return topo.InputsFor(c.SourceID)
}

// potentialSet is the set of inputs a candidate may end up on. Only an
// in-progress recording is pinned to its input.
func potentialSet(topo *topology.Topology, c recording.Candidate) []topology.InputID {
	if c.Status == recording.StatusRecording && c.Assigned() {
		return []topology.InputID{c.Input}
	}
	if topo == nil {
		return nil
	}
	return topo.InputsFor(c.SourceID)
}

func contend(topo *topology.Topology, exclusiveCards bool, a, b []topology.InputID) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
			if exclusiveCards && topo != nil && topo.SameCard(x, y) {
				return true
			}
		}
	}
	return false
}

// potentialConflict is the clustering relation: any pair that could end up
// sharing an input (or card) lands in the same cluster, whatever the final
// assignment.
func potentialConflict(topo *topology.Topology, exclusiveCards bool, a, b recording.Candidate) bool {
	if a.ProgramID == b.ProgramID || !a.Overlaps(b) {
		return false
	}
	return contend(topo, exclusiveCards, potentialSet(topo, a), potentialSet(topo, b))
}

// active reports whether c takes part in conflict resolution.
func active(c recording.Candidate, now time.Time) bool {
	return !c.Status.Removed() && !c.Ended(now)
}

// disjointSet is a union-find over candidate indexes.
type disjointSet struct {
	parent []int
	rank   []int
}

func newDisjointSet(n int) *disjointSet {
	d := &disjointSet{parent: make([]int, n), rank: make([]int, n)}
	for i := range d.parent {
		d.parent[i] = i
	}
	return d
}

func (d *disjointSet) find(i int) int {
	for d.parent[i] != i {
		d.parent[i] = d.parent[d.parent[i]]
		i = d.parent[i]
	}
	return i
}

func (d *disjointSet) union(a, b int) {
	ra, rb := d.find(a), d.find(b)
	if ra == rb {
		return
	}
	switch {
	case d.rank[ra] < d.rank[rb]:
		d.parent[ra] = rb
	case d.rank[ra] > d.rank[rb]:
		d.parent[rb] = ra
	default:
		d.parent[rb] = ra
		d.rank[ra]++
	}
}

// clusters partitions cands into connected components of the potential
// conflict relation. Components and their members are ordered by start time
// then program id, so the result only depends on the input set.
func clusters(topo *topology.Topology, exclusiveCards bool, cands []recording.Candidate) [][]recording.Candidate {
	sorted := make([]recording.Candidate, len(cands))
	copy(sorted, cands)
	sort.Slice(sorted, func(i, j int) bool { return recording.Less(sorted[i], sorted[j]) })

	ds := newDisjointSet(len(sorted))
	// Sweep by start: only candidates still running at the current start can overlap it.
	var running []int
	for i, c := range sorted {
		kept := running[:0]
		for _, j := range running {
			if sorted[j].End.After(c.Start) {
				kept = append(kept, j)
			}
		}
		running = kept
		for _, j := range running {
			if potentialConflict(topo, exclusiveCards, sorted[j], c) {
				ds.union(i, j)
			}
		}
		running = append(running, i)
	}

	byRoot := make(map[int]int)
	var out [][]recording.Candidate
	for i, c := range sorted {
		root := ds.find(i)
		idx, ok := byRoot[root]
		if !ok {
			idx = len(out)
			byRoot[root] = idx
			out = append(out, nil)
		}
		out[idx] = append(out[idx], c)
	}
	return out
}
