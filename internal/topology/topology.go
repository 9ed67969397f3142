// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package topology models tuner cards, their inputs and the sources each
// input can receive. A Topology is immutable once built.
package topology

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidTopology classifies layouts that violate the card/input/source invariants.
var ErrInvalidTopology = errors.New("invalid topology")

type (
	CardID   int
	InputID  int
	SourceID int
)

// NoInput marks a candidate that has not been assigned an input yet.
const NoInput InputID = 0

// Card is a physical tuner device.
type Card struct {
	ID   CardID `yaml:"id" json:"id"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
}

// Input is an addressable receive path on a card bound to one source.
// Inputs with a higher Preference are tried first when distributing recordings.
type Input struct {
	ID         InputID  `yaml:"id" json:"id"`
	CardID     CardID   `yaml:"card" json:"cardId"`
	SourceID   SourceID `yaml:"source" json:"sourceId"`
	Name       string   `yaml:"name,omitempty" json:"name,omitempty"`
	Preference int      `yaml:"preference,omitempty" json:"preference,omitempty"`
}

// Topology is the indexed card/input/source layout.
type Topology struct {
	cards         map[CardID]Card
	inputs        map[InputID]Input
	sourceToInput map[SourceID][]InputID
	inputToCard   map[InputID]CardID
	fingerprint   string
}

// Build validates the layout and indexes it.
//
// Every input must reference a declared card, carry a positive id and source,
// and appear only once. Sources are derived from inputs, so each source maps
// to at least one input by construction.
func Build(cards []Card, inputs []Input) (*Topology, error) {
	t := &Topology{
		cards:         make(map[CardID]Card, len(cards)),
		inputs:        make(map[InputID]Input, len(inputs)),
		sourceToInput: make(map[SourceID][]InputID),
		inputToCard:   make(map[InputID]CardID, len(inputs)),
	}

	for _, c := range cards {
		if c.ID <= 0 {
			return nil, fmt.Errorf("%w: card id must be > 0 (got %d)", ErrInvalidTopology, c.ID)
		}
		if _, dup := t.cards[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate card %d", ErrInvalidTopology, c.ID)
		}
		t.cards[c.ID] = c
	}

	for _, in := range inputs {
		if in.ID <= 0 {
			return nil, fmt.Errorf("%w: input id must be > 0 (got %d)", ErrInvalidTopology, in.ID)
		}
		if in.SourceID <= 0 {
			return nil, fmt.Errorf("%w: input %d has no source", ErrInvalidTopology, in.ID)
		}
		if _, ok := t.cards[in.CardID]; !ok {
			return nil, fmt.Errorf("%w: input %d references unknown card %d", ErrInvalidTopology, in.ID, in.CardID)
		}
		if _, dup := t.inputToCard[in.ID]; dup {
			return nil, fmt.Errorf("%w: input %d declared more than once", ErrInvalidTopology, in.ID)
		}
		t.inputs[in.ID] = in
		t.inputToCard[in.ID] = in.CardID
		t.sourceToInput[in.SourceID] = append(t.sourceToInput[in.SourceID], in.ID)
	}

	for src, ids := range t.sourceToInput {
		sort.Slice(ids, func(i, j int) bool {
			a, b := t.inputs[ids[i]], t.inputs[ids[j]]
			if a.Preference != b.Preference {
				return a.Preference > b.Preference
			}
			return a.ID < b.ID
		})
		t.sourceToInput[src] = ids
	}

	t.fingerprint = t.computeFingerprint()
	return t, nil
}

// NumCards returns the number of cards.
func (t *Topology) NumCards() int { return len(t.cards) }

// NumInputs returns the number of inputs.
func (t *Topology) NumInputs() int { return len(t.inputs) }

// NumSources returns the number of sources with at least one input.
func (t *Topology) NumSources() int { return len(t.sourceToInput) }

// NumInputsPerSource bounds the multi-card search for a source.
func (t *Topology) NumInputsPerSource(src SourceID) int { return len(t.sourceToInput[src]) }

// HasSource reports whether any input can receive src.
func (t *Topology) HasSource(src SourceID) bool { return len(t.sourceToInput[src]) > 0 }

// InputsFor returns the inputs able to receive src in preference order.
// The returned slice is a copy.
func (t *Topology) InputsFor(src SourceID) []InputID {
	ids := t.sourceToInput[src]
	out := make([]InputID, len(ids))
	copy(out, ids)
	return out
}

// ValidInput reports whether in can receive src.
func (t *Topology) ValidInput(src SourceID, in InputID) bool {
	for _, id := range t.sourceToInput[src] {
		if id == in {
			return true
		}
	}
	return false
}

// CardOf returns the card owning in.
func (t *Topology) CardOf(in InputID) (CardID, bool) {
	c, ok := t.inputToCard[in]
	return c, ok
}

// SameCard reports whether two known inputs live on the same card.
func (t *Topology) SameCard(a, b InputID) bool {
	ca, okA := t.inputToCard[a]
	cb, okB := t.inputToCard[b]
	return okA && okB && ca == cb
}

// Input returns the input definition.
func (t *Topology) Input(id InputID) (Input, bool) {
	in, ok := t.inputs[id]
	return in, ok
}

// Cards returns all cards ordered by id.
func (t *Topology) Cards() []Card {
	out := make([]Card, 0, len(t.cards))
	for _, c := range t.cards {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Inputs returns all inputs ordered by id.
func (t *Topology) Inputs() []Input {
	out := make([]Input, 0, len(t.inputs))
	for _, in := range t.inputs {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Fingerprint is a stable hash of the layout, used to detect topology drift.
func (t *Topology) Fingerprint() string { return t.fingerprint }

func (t *Topology) computeFingerprint() string {
	var b strings.Builder
	for _, c := range t.Cards() {
		b.WriteString("c")
		b.WriteString(strconv.Itoa(int(c.ID)))
		b.WriteByte(';')
	}
	for _, in := range t.Inputs() {
		fmt.Fprintf(&b, "i%d:%d:%d:%d;", in.ID, in.CardID, in.SourceID, in.Preference)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}
