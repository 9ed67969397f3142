// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recording

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrDuplicateProgram = errors.New("duplicate program id")
	ErrNotFound         = errors.New("program not found")
)

// Store owns candidates by value keyed by program id. It is not safe for
// concurrent use; the scheduler serialises access.
type Store struct {
	items map[ProgramID]Candidate
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{items: make(map[ProgramID]Candidate)}
}

// Len returns the number of candidates held, removed ones included.
func (s *Store) Len() int { return len(s.items) }

// Add inserts c, rejecting a second entry for the same program.
func (s *Store) Add(c Candidate) error {
	if _, ok := s.items[c.ProgramID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProgram, c.ProgramID)
	}
	s.items[c.ProgramID] = c
	return nil
}

// Put inserts or replaces c.
func (s *Store) Put(c Candidate) { s.items[c.ProgramID] = c }

// Get returns a copy of the candidate.
func (s *Store) Get(id ProgramID) (Candidate, bool) {
	c, ok := s.items[id]
	return c, ok
}

// Update applies fn to the stored candidate. The program id cannot change.
func (s *Store) Update(id ProgramID, fn func(*Candidate)) error {
	c, ok := s.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	fn(&c)
	c.ProgramID = id
	s.items[id] = c
	return nil
}

// Delete removes a candidate.
func (s *Store) Delete(id ProgramID) bool {
	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	return true
}

// All returns every candidate in pending-list order.
func (s *Store) All() []Candidate {
	return s.Filter(nil)
}

// Filter returns the candidates accepted by keep, in pending-list order.
func (s *Store) Filter(keep func(Candidate) bool) []Candidate {
	out := make([]Candidate, 0, len(s.items))
	for _, c := range s.items {
		if keep == nil || keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

// Clone returns an independent copy of the store.
func (s *Store) Clone() *Store {
	out := &Store{items: make(map[ProgramID]Candidate, len(s.items))}
	for id, c := range s.items {
		out.items[id] = c
	}
	return out
}
