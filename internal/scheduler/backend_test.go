// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/recsched/internal/dvr"
	"github.com/ManuGH/recsched/internal/history"
	"github.com/ManuGH/recsched/internal/listings"
	"github.com/ManuGH/recsched/internal/topology"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

// fakeBackend is an in-memory Backend. Errors are returned by the matching
// call until cleared.
type fakeBackend struct {
	mu       sync.Mutex
	topo     *topology.Topology
	rules    []dvr.Rule
	programs []listings.Program
	rev      listings.Revision
	history  *history.MemoryStore

	programsErr error
	topoErr     error
	revErr      error
	loads       int
}

func newFakeBackend(topo *topology.Topology) *fakeBackend {
	return &fakeBackend{topo: topo, history: history.NewMemoryStore()}
}

func (f *fakeBackend) Programs(_ context.Context, from, to time.Time) ([]listings.Program, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.programsErr != nil {
		return nil, f.programsErr
	}
	var out []listings.Program
	for _, p := range f.programs {
		if p.End.After(from) && p.Start.Before(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeBackend) Rules(context.Context) ([]dvr.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dvr.Rule(nil), f.rules...), nil
}

func (f *fakeBackend) Topology(context.Context) (*topology.Topology, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.topoErr != nil {
		return nil, f.topoErr
	}
	return f.topo, nil
}

func (f *fakeBackend) Revision(context.Context) (listings.Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revErr != nil {
		return listings.Revision{}, f.revErr
	}
	return f.rev, nil
}

func (f *fakeBackend) Seen(ctx context.Context, keys ...string) (bool, error) {
	return f.history.Seen(ctx, keys...)
}

func (f *fakeBackend) Record(ctx context.Context, e history.Entry) error {
	if err := f.history.Record(ctx, e); err != nil {
		return err
	}
	f.mu.Lock()
	f.rev.History++
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) setPrograms(ps ...listings.Program) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.programs = ps
	f.rev.Listings++
}

func (f *fakeBackend) setRules(rs ...dvr.Rule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = rs
	f.rev.Listings++
}

func (f *fakeBackend) setTopology(t *topology.Topology) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topo = t
	f.rev.Topology++
}

// clock is a settable test clock.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestScheduler(t *testing.T, b Backend, opts ...Option) (*Scheduler, *clock) {
	t.Helper()
	clk := &clock{now: testNow}
	base := []Option{
		WithClock(clk.Now),
		WithLocation(time.UTC),
		WithBreaker(nil),
	}
	return New(b, append(base, opts...)...), clk
}

// singleInputTopology has one card with one input on source 1.
func singleInputTopology(t *testing.T) *topology.Topology {
	t.Helper()
	topo, err := topology.Build(
		[]topology.Card{{ID: 1}},
		[]topology.Input{{ID: 1, CardID: 1, SourceID: 1}},
	)
	require.NoError(t, err)
	return topo
}

// dualInputTopology has two cards, each with one input on source 1.
func dualInputTopology(t *testing.T) *topology.Topology {
	t.Helper()
	topo, err := topology.Build(
		[]topology.Card{{ID: 1}, {ID: 2}},
		[]topology.Input{
			{ID: 1, CardID: 1, SourceID: 1},
			{ID: 2, CardID: 2, SourceID: 1},
		},
	)
	require.NoError(t, err)
	return topo
}

func program(id string, start time.Time, d time.Duration) listings.Program {
	return listings.Program{
		ID:         id,
		ChannelRef: "ch1",
		SourceID:   1,
		Title:      "Show " + id,
		Start:      start,
		End:        start.Add(d),
	}
}

func singleRule(programID string, priority int) dvr.Rule {
	return dvr.Rule{
		ID:        "rule-" + programID,
		Enabled:   true,
		Type:      dvr.RuleSingle,
		ProgramID: programID,
		Priority:  priority,
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

// gatedBackend blocks Programs until release is closed or the call's context
// ends. entered is closed on the first call.
type gatedBackend struct {
	*fakeBackend
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedBackend(topo *topology.Topology) *gatedBackend {
	return &gatedBackend{
		fakeBackend: newFakeBackend(topo),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (g *gatedBackend) Programs(ctx context.Context, from, to time.Time) ([]listings.Program, error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.fakeBackend.Programs(ctx, from, to)
}
