// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/recsched/internal/dvr"
	"github.com/ManuGH/recsched/internal/history"
	"github.com/ManuGH/recsched/internal/listings"
	"github.com/ManuGH/recsched/internal/recording"
	"github.com/ManuGH/recsched/internal/topology"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func ids(cs []recording.Candidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, string(c.ProgramID))
	}
	return out
}

func mustGet(t *testing.T, s *Scheduler, id string) recording.Candidate {
	t.Helper()
	for _, c := range s.Candidates() {
		if string(c.ProgramID) == id {
			return c
		}
	}
	t.Fatalf("candidate %s not in store", id)
	return recording.Candidate{}
}

// Two overlapping recordings on a single input: the higher priority wins.
func TestFillRecordLists_PriorityWinsOnSingleInput(t *testing.T) {
	b := newFakeBackend(singleInputTopology(t))
	b.setPrograms(program("A", at(20, 0), time.Hour), program("B", at(20, 30), time.Hour))
	b.setRules(singleRule("A", 5), singleRule("B", 3))
	s, _ := newTestScheduler(t, b)

	require.True(t, s.FillRecordLists(context.Background(), true))

	assert.Equal(t, []string{"A"}, ids(s.AllPending()))
	a := mustGet(t, s, "A")
	assert.Equal(t, topology.InputID(1), a.Input)
	assert.True(t, a.Conflicting)

	lost := mustGet(t, s, "B")
	assert.Equal(t, recording.StatusConflicted, lost.Status)
	assert.Equal(t, topology.NoInput, lost.Input)
	assert.Equal(t, "conflict: A", lost.Reason)

	report := s.LastReport()
	assert.Equal(t, StatusSuccess, report.Status)
	assert.Equal(t, 1, report.Summary.Conflicted)
	assert.Equal(t, 1, report.Summary.Clusters)
	assert.Equal(t, 1, report.Summary.Exhausted)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, "B", report.Conflicts[0].ProgramID)
}

// The same pair with a second input on the source: both record.
func TestFillRecordLists_SecondInputAvoidsConflict(t *testing.T) {
	b := newFakeBackend(dualInputTopology(t))
	b.setPrograms(program("A", at(20, 0), time.Hour), program("B", at(20, 30), time.Hour))
	b.setRules(singleRule("A", 5), singleRule("B", 3))
	s, _ := newTestScheduler(t, b)

	require.True(t, s.FillRecordLists(context.Background(), true))

	pending := s.AllPending()
	require.Equal(t, []string{"A", "B"}, ids(pending))
	assert.Equal(t, topology.InputID(1), pending[0].Input)
	assert.Equal(t, topology.InputID(2), pending[1].Input)
	assert.True(t, pending[0].Conflicting)
	assert.True(t, pending[1].Conflicting)
	assert.Zero(t, s.LastReport().Summary.Conflicted)
}

// Back-to-back windows share an input without conflicting.
func TestFillRecordLists_BackToBackShareInput(t *testing.T) {
	b := newFakeBackend(singleInputTopology(t))
	b.setPrograms(
		program("A", at(20, 0), time.Hour),
		program("B", at(21, 0), time.Hour),
		program("C", at(22, 0), time.Hour),
	)
	b.setRules(singleRule("A", 1), singleRule("B", 1), singleRule("C", 1))
	s, _ := newTestScheduler(t, b)

	require.True(t, s.FillRecordLists(context.Background(), true))

	pending := s.AllPending()
	require.Equal(t, []string{"A", "B", "C"}, ids(pending))
	for _, c := range pending {
		assert.Equal(t, topology.InputID(1), c.Input, c.ProgramID)
		assert.False(t, c.Conflicting, c.ProgramID)
	}
}

func TestFillRecordLists_ListingsFailureKeepsPreviousList(t *testing.T) {
	b := newFakeBackend(singleInputTopology(t))
	b.setPrograms(program("A", at(20, 0), time.Hour))
	b.setRules(singleRule("A", 1))
	s, _ := newTestScheduler(t, b)
	ctx := context.Background()

	require.True(t, s.FillRecordLists(ctx, true))
	before := s.AllPending()

	b.mu.Lock()
	b.programsErr = errors.New("database is locked")
	b.mu.Unlock()
	b.setPrograms(program("X", at(19, 0), time.Hour))

	assert.True(t, s.CheckForChanges(ctx))
	assert.False(t, s.FillRecordLists(ctx, true))
	if diff := cmp.Diff(before, s.AllPending()); diff != "" {
		t.Errorf("pending list changed after failed rebuild (-before +after):\n%s", diff)
	}
	assert.Equal(t, StatusFailed, s.LastReport().Status)
	// The failed rebuild did not commit the revision.
	assert.True(t, s.CheckForChanges(ctx))
}

func TestFillRecordLists_TopologyFailure(t *testing.T) {
	b := newFakeBackend(singleInputTopology(t))
	b.topoErr = errors.New("no cards")
	s, _ := newTestScheduler(t, b)

	assert.False(t, s.FillRecordLists(context.Background(), true))
	assert.Nil(t, s.Topology())
	assert.Empty(t, s.AllPending())
}

func TestFillRecordLists_RevisionFailure(t *testing.T) {
	b := newFakeBackend(singleInputTopology(t))
	b.revErr = errors.New("timeout")
	s, _ := newTestScheduler(t, b)
	ctx := context.Background()

	assert.True(t, s.CheckForChanges(ctx))
	assert.False(t, s.FillRecordLists(ctx, true))
	assert.Zero(t, b.loads)
}

func TestFillRecordLists_OverrideBeatsPriority(t *testing.T) {
	b := newFakeBackend(singleInputTopology(t))
	b.setPrograms(program("A", at(20, 0), time.Hour), program("B", at(20, 0), time.Hour))
	b.setRules(
		dvr.Rule{ID: "force-a", Enabled: true, Type: dvr.RuleOverride, ProgramID: "A", Priority: 0},
		singleRule("B", 100),
	)
	s, _ := newTestScheduler(t, b)

	require.True(t, s.FillRecordLists(context.Background(), true))

	assert.Equal(t, []string{"A"}, ids(s.AllPending()))
	assert.Equal(t, recording.TypeOverride, mustGet(t, s, "A").Type)
	assert.Equal(t, recording.StatusConflicted, mustGet(t, s, "B").Status)
}

func TestFillRecordLists_EqualRankFallsBackToStartThenID(t *testing.T) {
	b := newFakeBackend(singleInputTopology(t))
	b.setPrograms(
		program("B", at(20, 0), time.Hour),
		program("A", at(20, 0), time.Hour),
		program("C", at(19, 30), time.Hour),
	)
	b.setRules(singleRule("A", 1), singleRule("B", 1), singleRule("C", 1))
	s, _ := newTestScheduler(t, b)

	require.True(t, s.FillRecordLists(context.Background(), true))

	// C starts first and blocks both A and B.
	assert.Equal(t, []string{"C"}, ids(s.AllPending()))
	assert.Equal(t, "conflict: C", mustGet(t, s, "A").Reason)
	assert.Equal(t, "conflict: C", mustGet(t, s, "B").Reason)
}

func TestFillRecordLists_Idempotent(t *testing.T) {
	b := newFakeBackend(dualInputTopology(t))
	b.setPrograms(
		program("A", at(20, 0), time.Hour),
		program("B", at(20, 15), time.Hour),
		program("C", at(20, 30), time.Hour),
		program("D", at(22, 0), time.Hour),
	)
	b.setRules(singleRule("A", 1), singleRule("B", 2), singleRule("C", 3), singleRule("D", 1))
	s, _ := newTestScheduler(t, b)
	ctx := context.Background()

	require.True(t, s.FillRecordLists(ctx, true))
	first := s.Candidates()
	assert.False(t, s.CheckForChanges(ctx))

	require.True(t, s.FillRecordLists(ctx, true))
	if diff := cmp.Diff(first, s.Candidates()); diff != "" {
		t.Errorf("second rebuild changed the list (-first +second):\n%s", diff)
	}
}

func TestFillRecordLists_DeterministicAcrossListingsOrder(t *testing.T) {
	ps := []listings.Program{
		program("A", at(20, 0), time.Hour),
		program("B", at(20, 15), time.Hour),
		program("C", at(20, 30), time.Hour),
		program("D", at(20, 45), time.Hour),
	}
	rules := []dvr.Rule{singleRule("A", 2), singleRule("B", 2), singleRule("C", 2), singleRule("D", 2)}

	run := func(order []int) []recording.Candidate {
		b := newFakeBackend(dualInputTopology(t))
		var in []listings.Program
		for _, i := range order {
			in = append(in, ps[i])
		}
		b.setPrograms(in...)
		b.setRules(rules...)
		s, _ := newTestScheduler(t, b)
		require.True(t, s.FillRecordLists(context.Background(), true))
		return s.Candidates()
	}

	want := run([]int{0, 1, 2, 3})
	if diff := cmp.Diff(want, run([]int{3, 1, 0, 2})); diff != "" {
		t.Errorf("result depends on listings order (-want +got):\n%s", diff)
	}
}

func TestFillRecordLists_PrunesEndedCandidates(t *testing.T) {
	b := newFakeBackend(singleInputTopology(t))
	b.setPrograms(program("old", at(16, 0), time.Hour), program("new", at(20, 0), time.Hour))
	b.setRules(singleRule("old", 1), singleRule("new", 1))
	s, clk := newTestScheduler(t, b)

	require.True(t, s.FillRecordLists(context.Background(), true))
	assert.Equal(t, []string{"new"}, ids(s.AllPending()))
	// Ended candidates stay in the store.
	assert.Len(t, s.Candidates(), 2)

	clk.Set(at(21, 0))
	assert.Empty(t, s.AllPending())
	_, ok := s.GetNextRecording()
	assert.False(t, ok)
}

func TestFillRecordLists_TopologyInconsistentCandidate(t *testing.T) {
	b := newFakeBackend(singleInputTopology(t))
	orphan := program("orphan", at(20, 0), time.Hour)
	orphan.SourceID = 7
	b.setPrograms(orphan, program("A", at(20, 0), time.Hour))
	b.setRules(singleRule("orphan", 9), singleRule("A", 1))
	s, _ := newTestScheduler(t, b)

	require.True(t, s.FillRecordLists(context.Background(), true))

	assert.Equal(t, []string{"A"}, ids(s.AllPending()))
	c := mustGet(t, s, "orphan")
	assert.Equal(t, recording.StatusInvalid, c.Status)
	assert.Equal(t, ReasonTopology, c.Reason)
	assert.Equal(t, 1, s.LastReport().Summary.Invalid)
}

func TestFillRecordLists_DiscardsMalformedPrograms(t *testing.T) {
	b := newFakeBackend(singleInputTopology(t))
	inverted := program("inverted", at(20, 0), time.Hour)
	inverted.End = inverted.Start.Add(-time.Minute)
	unmapped := program("unmapped", at(20, 0), time.Hour)
	unmapped.SourceID = 0
	b.setPrograms(
		inverted,
		unmapped,
		program("", at(20, 0), time.Hour),
		program("A", at(21, 0), time.Hour),
		program("A", at(23, 0), time.Hour),
	)
	b.setRules(dvr.Rule{ID: "all", Enabled: true, Type: dvr.RuleSeries, Keyword: "show", Priority: 1})
	s, _ := newTestScheduler(t, b)

	require.True(t, s.FillRecordLists(context.Background(), true))

	pending := s.AllPending()
	require.Equal(t, []string{"A"}, ids(pending))
	assert.Equal(t, at(21, 0), pending[0].Start, "first occurrence wins")
	summary := s.LastReport().Summary
	assert.Equal(t, 3, summary.SkippedMalformed)
	assert.Equal(t, 1, summary.SkippedDuplicate)
}

func TestFillRecordLists_DontRecordSuppresses(t *testing.T) {
	b := newFakeBackend(dualInputTopology(t))
	b.setPrograms(program("A", at(20, 0), time.Hour), program("B", at(21, 0), time.Hour))
	b.setRules(
		dvr.Rule{ID: "series", Enabled: true, Type: dvr.RuleSeries, Keyword: "show", Priority: 5},
		dvr.Rule{ID: "skip-b", Enabled: true, Type: dvr.RuleDontRecord, ProgramID: "B"},
	)
	s, _ := newTestScheduler(t, b)

	require.True(t, s.FillRecordLists(context.Background(), true))

	assert.Equal(t, []string{"A"}, ids(s.AllPending()))
	report := s.LastReport()
	assert.Equal(t, 1, report.Summary.SkippedDontRecord)
	require.Len(t, report.Decisions, 1)
	assert.Equal(t, "dontrecord", report.Decisions[0].Reason)
}

func TestFillRecordLists_SkipsRecordedPrograms(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend(dualInputTopology(t))
	require.NoError(t, b.history.Record(ctx, history.Entry{ProgramID: "A", RecordedAt: testNow}))
	require.NoError(t, b.history.Record(ctx, history.Entry{ProgramID: "elsewhere", Title: "Show", Subtitle: "Pilot", RecordedAt: testNow}))

	rerun := program("C", at(22, 0), time.Hour)
	rerun.Title, rerun.Subtitle = "SHOW", "pilot"
	b.setPrograms(program("A", at(20, 0), time.Hour), program("B", at(20, 0), time.Hour), rerun)
	b.setRules(
		dvr.Rule{ID: "force-b", Enabled: true, Type: dvr.RuleOverride, ProgramID: "B"},
		dvr.Rule{ID: "series", Enabled: true, Type: dvr.RuleSeries, Keyword: "show", Priority: 1, NewEpisodesOnly: true},
	)
	s, _ := newTestScheduler(t, b)

	require.True(t, s.FillRecordLists(ctx, true))

	assert.Equal(t, []string{"B"}, ids(s.AllPending()), "A recorded, C is a known episode")
	assert.Equal(t, 2, s.LastReport().Summary.SkippedHistory)
}

func TestFillRecordLists_EpisodeHistoryIgnoredWithoutNewEpisodesOnly(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend(singleInputTopology(t))
	require.NoError(t, b.history.Record(ctx, history.Entry{ProgramID: "elsewhere", Title: "Show", Subtitle: "Pilot"}))
	p := program("C", at(22, 0), time.Hour)
	p.Title, p.Subtitle = "Show", "Pilot"
	b.setPrograms(p)
	b.setRules(dvr.Rule{ID: "series", Enabled: true, Type: dvr.RuleSeries, Keyword: "show", Priority: 1})
	s, _ := newTestScheduler(t, b)

	require.True(t, s.FillRecordLists(ctx, true))
	assert.Equal(t, []string{"C"}, ids(s.AllPending()))
}

type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) Seen(ctx context.Context, keys ...string) (bool, error) {
	args := m.Called(ctx, keys)
	return args.Bool(0), args.Error(1)
}

func (m *mockHistory) Record(ctx context.Context, e history.Entry) error {
	return m.Called(ctx, e).Error(0)
}

func TestFillRecordLists_HistoryFailureAbortsRebuild(t *testing.T) {
	b := newFakeBackend(singleInputTopology(t))
	b.setPrograms(program("A", at(20, 0), time.Hour))
	b.setRules(singleRule("A", 1))

	h := &mockHistory{}
	h.On("Seen", mock.Anything, []string{"program:A"}).Return(false, errors.New("badger closed"))
	s, _ := newTestScheduler(t, b, WithHistory(h))

	assert.False(t, s.FillRecordLists(context.Background(), true))
	assert.Empty(t, s.AllPending())
	h.AssertExpectations(t)
}

func TestFillRecordLists_WithoutAutoResolve(t *testing.T) {
	b := newFakeBackend(singleInputTopology(t))
	b.setPrograms(program("A", at(20, 0), time.Hour), program("B", at(20, 30), time.Hour))
	b.setRules(singleRule("A", 5), singleRule("B", 3))
	s, _ := newTestScheduler(t, b)

	require.True(t, s.FillRecordLists(context.Background(), false))
	assert.False(t, s.Resolved())

	pending := s.AllPending()
	require.Equal(t, []string{"A", "B"}, ids(pending))
	for _, c := range pending {
		assert.True(t, c.Conflicting, c.ProgramID)
		assert.Equal(t, topology.InputID(1), c.Input, "known input assigned")
	}

	assert.Equal(t, 1, s.ResolveConflicts())
	assert.True(t, s.Resolved())
	assert.Equal(t, []string{"A"}, ids(s.AllPending()))

	// Resolving again gives the same answer.
	before := s.Candidates()
	assert.Equal(t, 1, s.ResolveConflicts())
	if diff := cmp.Diff(before, s.Candidates()); diff != "" {
		t.Errorf("re-resolution changed the list:\n%s", diff)
	}
}

func TestFillRecordLists_ExclusiveCards(t *testing.T) {
	topo, err := topology.Build(
		[]topology.Card{{ID: 1}},
		[]topology.Input{
			{ID: 1, CardID: 1, SourceID: 1},
			{ID: 2, CardID: 1, SourceID: 2},
		},
	)
	require.NoError(t, err)

	other := program("B", at(20, 30), time.Hour)
	other.SourceID = 2
	build := func(exclusive bool) *Scheduler {
		b := newFakeBackend(topo)
		b.setPrograms(program("A", at(20, 0), time.Hour), other)
		b.setRules(singleRule("A", 5), singleRule("B", 3))
		s, _ := newTestScheduler(t, b, WithExclusiveCards(exclusive))
		require.True(t, s.FillRecordLists(context.Background(), true))
		return s
	}

	assert.Equal(t, []string{"A", "B"}, ids(build(false).AllPending()))
	s := build(true)
	assert.Equal(t, []string{"A"}, ids(s.AllPending()))
	assert.Equal(t, "conflict: A", mustGet(t, s, "B").Reason)
}

func TestFillRecordLists_ConcurrentCallersShareRebuild(t *testing.T) {
	b := newFakeBackend(dualInputTopology(t))
	b.setPrograms(program("A", at(20, 0), time.Hour))
	b.setRules(singleRule("A", 1))
	s, _ := newTestScheduler(t, b)

	var wg sync.WaitGroup
	results := make([]bool, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.FillRecordLists(context.Background(), true)
		}()
	}
	wg.Wait()
	for _, ok := range results {
		assert.True(t, ok)
	}
	assert.Equal(t, []string{"A"}, ids(s.AllPending()))
}

// A caller giving up on a shared rebuild does not fail the callers still
// waiting on it.
func TestFillRecordLists_CancelledCallerDoesNotFailOthers(t *testing.T) {
	b := newGatedBackend(singleInputTopology(t))
	b.setPrograms(program("A", at(20, 0), time.Hour))
	b.setRules(singleRule("A", 1))
	s, _ := newTestScheduler(t, b)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leader := make(chan bool, 1)
	go func() { leader <- s.FillRecordLists(leaderCtx, true) }()
	<-b.entered

	follower := make(chan bool, 1)
	go func() { follower <- s.FillRecordLists(context.Background(), true) }()

	cancel()
	select {
	case ok := <-leader:
		assert.False(t, ok, "cancelled caller stops waiting")
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled caller still blocked on the rebuild")
	}

	close(b.release)
	select {
	case ok := <-follower:
		assert.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("rebuild did not finish")
	}
	assert.Equal(t, StatusSuccess, s.LastReport().Status)
	assert.Equal(t, []string{"A"}, ids(s.AllPending()))
}

func TestFillRecordLists_CancelledContext(t *testing.T) {
	b := newFakeBackend(singleInputTopology(t))
	s, _ := newTestScheduler(t, b)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, s.FillRecordLists(ctx, true))
	assert.Zero(t, b.loads, "no rebuild starts for a cancelled caller")
}

func TestCheckForChanges(t *testing.T) {
	b := newFakeBackend(singleInputTopology(t))
	b.setPrograms(program("A", at(18, 0), time.Hour))
	b.setRules(singleRule("A", 1))
	s, clk := newTestScheduler(t, b)
	ctx := context.Background()

	assert.True(t, s.CheckForChanges(ctx), "nothing built yet")
	require.True(t, s.FillRecordLists(ctx, true))
	assert.False(t, s.CheckForChanges(ctx))

	b.setTopology(dualInputTopology(t))
	assert.True(t, s.CheckForChanges(ctx))
	require.True(t, s.FillRecordLists(ctx, true))
	assert.False(t, s.CheckForChanges(ctx))

	_, ok := s.RemoveFirstRecording()
	require.True(t, ok)
	assert.False(t, s.CheckForChanges(ctx), "recording still running")

	clk.Set(at(19, 0))
	assert.True(t, s.CheckForChanges(ctx), "recording window closed")
}

func TestQuery_NextAndRemoveFirst(t *testing.T) {
	b := newFakeBackend(dualInputTopology(t))
	b.setPrograms(
		program("B", at(20, 0), time.Hour),
		program("A", at(20, 0), time.Hour),
		program("C", at(19, 0), time.Hour),
	)
	b.setRules(singleRule("A", 1), singleRule("B", 1), singleRule("C", 1))
	s, _ := newTestScheduler(t, b)
	require.True(t, s.FillRecordLists(context.Background(), true))

	next, ok := s.GetNextRecording()
	require.True(t, ok)
	assert.Equal(t, recording.ProgramID("C"), next.ProgramID)

	head, ok := s.RemoveFirstRecording()
	require.True(t, ok)
	assert.Equal(t, recording.ProgramID("C"), head.ProgramID)
	assert.Equal(t, recording.StatusRecording, head.Status)
	assert.Equal(t, recording.StatusRecording, mustGet(t, s, "C").Status)

	next, ok = s.GetNextRecording()
	require.True(t, ok)
	assert.Equal(t, recording.ProgramID("A"), next.ProgramID, "ties broken by program id")
	assert.Equal(t, []string{"A", "B"}, ids(s.AllPending()))
}

// An unresolved list holds both sides of a conflict, so nothing is handed to
// the executor until it is resolved.
func TestQuery_UnresolvedListIsNotDispatched(t *testing.T) {
	b := newFakeBackend(singleInputTopology(t))
	b.setPrograms(program("A", at(20, 0), time.Hour), program("B", at(20, 30), time.Hour))
	b.setRules(singleRule("A", 5), singleRule("B", 3))
	s, _ := newTestScheduler(t, b)
	ctx := context.Background()

	require.True(t, s.FillRecordLists(ctx, false))
	_, ok := s.GetNextRecording()
	assert.False(t, ok)
	for i := 0; i < 2; i++ {
		_, ok = s.RemoveFirstRecording()
		assert.False(t, ok)
	}
	assert.Equal(t, []string{"A", "B"}, ids(s.AllPending()), "still visible for review")
	assert.Equal(t, recording.StatusPending, mustGet(t, s, "B").Status)

	assert.Equal(t, 1, s.ResolveConflicts())
	head, ok := s.RemoveFirstRecording()
	require.True(t, ok)
	assert.Equal(t, recording.ProgramID("A"), head.ProgramID)
	_, ok = s.RemoveFirstRecording()
	assert.False(t, ok)

	// The next unresolved rebuild keeps A recording and stops dispatch again.
	b.setRules(singleRule("A", 5), singleRule("B", 3))
	require.True(t, s.FillRecordLists(ctx, false))
	_, ok = s.RemoveFirstRecording()
	assert.False(t, ok)
	require.True(t, s.FillRecordLists(ctx, true))
	assert.Equal(t, recording.StatusRecording, mustGet(t, s, "A").Status)
	assert.Equal(t, recording.StatusConflicted, mustGet(t, s, "B").Status)
}

func TestQuery_EmptyList(t *testing.T) {
	s, _ := newTestScheduler(t, newFakeBackend(singleInputTopology(t)))
	_, ok := s.GetNextRecording()
	assert.False(t, ok)
	_, ok = s.RemoveFirstRecording()
	assert.False(t, ok)
	assert.Empty(t, s.AllPending())
}

// An in-progress recording keeps its input across rebuilds and outranks a
// later higher-priority claim.
func TestFillRecordLists_CarriesOverInProgressRecording(t *testing.T) {
	b := newFakeBackend(singleInputTopology(t))
	b.setPrograms(program("A", at(18, 0), time.Hour))
	b.setRules(singleRule("A", 1))
	s, _ := newTestScheduler(t, b)
	ctx := context.Background()

	require.True(t, s.FillRecordLists(ctx, true))
	_, ok := s.RemoveFirstRecording()
	require.True(t, ok)

	b.setPrograms(program("A", at(18, 0), time.Hour), program("B", at(18, 30), time.Hour))
	b.setRules(singleRule("A", 1), singleRule("B", 99))
	require.True(t, s.FillRecordLists(ctx, true))

	a := mustGet(t, s, "A")
	assert.Equal(t, recording.StatusRecording, a.Status)
	assert.Equal(t, topology.InputID(1), a.Input)
	assert.Equal(t, "conflict: A", mustGet(t, s, "B").Reason)
	assert.Empty(t, s.AllPending())
	assert.Equal(t, 1, s.LastReport().Summary.CarriedOver)
}

func TestCompleteRecording(t *testing.T) {
	b := newFakeBackend(singleInputTopology(t))
	b.setPrograms(program("A", at(18, 0), time.Hour))
	b.setRules(singleRule("A", 1))
	s, _ := newTestScheduler(t, b)
	ctx := context.Background()

	require.True(t, s.FillRecordLists(ctx, true))
	_, ok := s.RemoveFirstRecording()
	require.True(t, ok)

	require.NoError(t, s.CompleteRecording(ctx, "A"))
	assert.Empty(t, s.Candidates())
	assert.True(t, s.CheckForChanges(ctx))

	seen, err := b.history.Seen(ctx, history.ProgramKey("A"))
	require.NoError(t, err)
	assert.True(t, seen)

	require.True(t, s.FillRecordLists(ctx, true))
	assert.Empty(t, s.Candidates(), "recorded program is not rescheduled")

	err = s.CompleteRecording(ctx, "A")
	assert.ErrorIs(t, err, ErrUnknownProgram)
}

func TestCompleteRecording_HistoryFailureKeepsCandidate(t *testing.T) {
	b := newFakeBackend(singleInputTopology(t))
	b.setPrograms(program("A", at(18, 0), time.Hour))
	b.setRules(singleRule("A", 1))

	h := &mockHistory{}
	h.On("Seen", mock.Anything, mock.Anything).Return(false, nil)
	h.On("Record", mock.Anything, mock.MatchedBy(func(e history.Entry) bool { return e.ProgramID == "A" })).
		Return(errors.New("disk full"))
	s, _ := newTestScheduler(t, b, WithHistory(h))
	ctx := context.Background()

	require.True(t, s.FillRecordLists(ctx, true))
	err := s.CompleteRecording(ctx, "A")
	require.Error(t, err)
	assert.Len(t, s.Candidates(), 1)
	h.AssertExpectations(t)
}

func TestConflicting(t *testing.T) {
	b := newFakeBackend(singleInputTopology(t))
	b.setPrograms(
		program("A", at(20, 0), time.Hour),
		program("B", at(20, 30), time.Hour),
		program("C", at(21, 0), time.Hour),
	)
	b.setRules(singleRule("A", 5), singleRule("B", 3), singleRule("C", 1))
	s, _ := newTestScheduler(t, b)
	require.True(t, s.FillRecordLists(context.Background(), true))

	// B overlaps both A and C; A wins the cluster, C fits after A.
	assert.Equal(t, []string{"A", "C"}, ids(s.AllPending()))

	got, err := s.Conflicting("B", false, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, ids(got))

	got, err = s.Conflicting("A", false, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, ids(got))

	got, err = s.Conflicting("A", true, nil)
	require.NoError(t, err)
	assert.Empty(t, got, "removed candidates are not playing")

	within := []recording.Candidate{mustGet(t, s, "C")}
	got, err = s.Conflicting("B", false, within)
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, ids(got))

	_, err = s.Conflicting("nope", false, nil)
	assert.ErrorIs(t, err, ErrUnknownProgram)
}

func TestWriteSnapshot(t *testing.T) {
	b := newFakeBackend(singleInputTopology(t))
	b.setPrograms(program("A", at(20, 0), time.Hour), program("B", at(20, 30), time.Hour))
	b.setRules(singleRule("A", 5), singleRule("B", 3))
	s, _ := newTestScheduler(t, b)
	require.True(t, s.FillRecordLists(context.Background(), true))

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, s.WriteSnapshot(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, []string{"A"}, ids(snap.Pending))
	assert.Len(t, snap.Candidates, 2)
	assert.True(t, snap.Resolved)
	assert.NotEmpty(t, snap.TopologyFingerprint)
	assert.Equal(t, StatusSuccess, snap.LastReport.Status)
}

func TestPrintList(t *testing.T) {
	b := newFakeBackend(singleInputTopology(t))
	b.setPrograms(program("A", at(20, 0), time.Hour))
	b.setRules(singleRule("A", 1))
	s, _ := newTestScheduler(t, b)
	require.True(t, s.FillRecordLists(context.Background(), true))
	assert.NotPanics(t, s.PrintList)
}
