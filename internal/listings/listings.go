// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package listings is the backing store for programs, recording rules, tuner
// topology and prior recordings. It also tracks per-family revision counters
// so callers can detect drift without reloading everything.
package listings

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/recsched/internal/topology"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("listings: not found")

// Revision families.
const (
	FamilyListings = "listings"
	FamilyTopology = "topology"
	FamilyHistory  = "history"
)

// Families lists every revision family in a fixed order.
var Families = []string{FamilyListings, FamilyTopology, FamilyHistory}

// Revision is a cheap fingerprint of the backing store. Each counter
// increases on every write to its table family.
type Revision struct {
	Listings int64 `json:"listings"`
	Topology int64 `json:"topology"`
	History  int64 `json:"history"`
}

// Add returns the componentwise sum of r and o.
func (r Revision) Add(o Revision) Revision {
	return Revision{
		Listings: r.Listings + o.Listings,
		Topology: r.Topology + o.Topology,
		History:  r.History + o.History,
	}
}

func (r *Revision) set(family string, v int64) {
	switch family {
	case FamilyListings:
		r.Listings = v
	case FamilyTopology:
		r.Topology = v
	case FamilyHistory:
		r.History = v
	}
}

// RevisionSource reports the current revision.
type RevisionSource interface {
	Revision(ctx context.Context) (Revision, error)
}

// MergedRevisions sums the revisions of several sources, e.g. the local
// database and counters bumped by external grabbers.
type MergedRevisions []RevisionSource

func (m MergedRevisions) Revision(ctx context.Context) (Revision, error) {
	var out Revision
	for _, src := range m {
		r, err := src.Revision(ctx)
		if err != nil {
			return Revision{}, err
		}
		out = out.Add(r)
	}
	return out, nil
}

// Channel maps a listings channel to the tuner source carrying it.
type Channel struct {
	Ref      string            `json:"ref"`
	SourceID topology.SourceID `json:"sourceId"`
	Name     string            `json:"name,omitempty"`
}

// Program is one listings entry. SourceID is 0 when the program's channel is
// not mapped to a source.
type Program struct {
	ID          string            `json:"id"`
	ChannelRef  string            `json:"channelRef"`
	SourceID    topology.SourceID `json:"sourceId"`
	Title       string            `json:"title"`
	Subtitle    string            `json:"subtitle,omitempty"`
	Description string            `json:"description,omitempty"`
	Category    string            `json:"category,omitempty"`
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
}
