// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package listings

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ManuGH/recsched/internal/dvr"
	"github.com/ManuGH/recsched/internal/epg"
	"github.com/ManuGH/recsched/internal/history"
	"github.com/ManuGH/recsched/internal/persistence/sqlite"
	"github.com/ManuGH/recsched/internal/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "listings.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var base = time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

func TestOpen_SetsSchemaVersion(t *testing.T) {
	s := openTestStore(t)
	v, err := sqlite.SchemaVersion(context.Background(), s.DB)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, v)

	issues, err := s.VerifyIntegrity(context.Background(), sqlite.CheckFull)
	require.NoError(t, err)
	assert.Nil(t, issues)
}

func TestRevision_BumpedByTriggers(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	rev, err := s.Revision(ctx)
	require.NoError(t, err)
	assert.Equal(t, Revision{}, rev)

	require.NoError(t, s.UpsertChannel(ctx, Channel{Ref: "ard", SourceID: 1, Name: "Das Erste"}))
	rev2, err := s.Revision(ctx)
	require.NoError(t, err)
	assert.Greater(t, rev2.Listings, rev.Listings)
	assert.Zero(t, rev2.Topology)

	// Identical rewrite is a no-op.
	require.NoError(t, s.UpsertChannel(ctx, Channel{Ref: "ard", SourceID: 1, Name: "Das Erste"}))
	rev3, err := s.Revision(ctx)
	require.NoError(t, err)
	assert.Equal(t, rev2, rev3)

	require.NoError(t, s.PutCard(ctx, topology.Card{ID: 1, Name: "dvb-s2"}))
	rev4, err := s.Revision(ctx)
	require.NoError(t, err)
	assert.Greater(t, rev4.Topology, rev3.Topology)
	assert.Equal(t, rev3.Listings, rev4.Listings)

	require.NoError(t, s.Record(ctx, history.Entry{ProgramID: "p1", RecordedAt: base}))
	rev5, err := s.Revision(ctx)
	require.NoError(t, err)
	assert.Greater(t, rev5.History, rev4.History)
}

func TestPrograms_WindowAndSource(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.UpsertChannel(ctx, Channel{Ref: "ard", SourceID: 3}))
	progs := []Program{
		{ID: "early", ChannelRef: "ard", Title: "Early", Start: base.Add(-3 * time.Hour), End: base.Add(-2 * time.Hour)},
		{ID: "b", ChannelRef: "ard", Title: "B", Start: base, End: base.Add(time.Hour)},
		{ID: "a", ChannelRef: "ard", Title: "A", Start: base, End: base.Add(30 * time.Minute)},
		{ID: "orphan", ChannelRef: "nowhere", Title: "Orphan", Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)},
		{ID: "late", ChannelRef: "ard", Title: "Late", Start: base.Add(48 * time.Hour), End: base.Add(49 * time.Hour)},
	}
	for _, p := range progs {
		require.NoError(t, s.UpsertProgram(ctx, p))
	}

	got, err := s.Programs(ctx, base.Add(-time.Hour), base.Add(24*time.Hour))
	require.NoError(t, err)

	ids := make([]string, len(got))
	for i, p := range got {
		ids[i] = p.ID
	}
	assert.Equal(t, []string{"a", "b", "orphan"}, ids)
	assert.Equal(t, topology.SourceID(3), got[0].SourceID)
	assert.Equal(t, topology.SourceID(0), got[2].SourceID, "unmapped channel has no source")
	assert.True(t, got[1].Start.Equal(base))

	n, err := s.DeleteProgramsBefore(ctx, base)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestRules_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	rule := dvr.Rule{
		ID:              "r1",
		Enabled:         true,
		Type:            dvr.RuleSeries,
		Keyword:         "tatort",
		ChannelRef:      "ard",
		Days:            []int{0, 6},
		StartWindow:     "2000-2230",
		Priority:        4,
		NewEpisodesOnly: true,
	}
	require.NoError(t, s.PutRule(ctx, rule))
	require.NoError(t, s.PutRule(ctx, dvr.Rule{ID: "r0", Type: dvr.RuleSingle, ProgramID: "p1"}))

	rules, err := s.Rules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "r0", rules[0].ID)
	assert.Nil(t, rules[0].Days)
	assert.Equal(t, rule, rules[1])

	assert.Error(t, s.PutRule(ctx, dvr.Rule{ID: "bad", Type: "weekly"}))

	require.NoError(t, s.DeleteRule(ctx, "r0"))
	assert.ErrorIs(t, s.DeleteRule(ctx, "r0"), ErrNotFound)
}

func TestTopology_ImportAndLoad(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	f := &topology.File{
		Cards: []topology.Card{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}},
		Inputs: []topology.Input{
			{ID: 10, CardID: 1, SourceID: 1},
			{ID: 20, CardID: 2, SourceID: 1, Preference: 5},
			{ID: 21, CardID: 2, SourceID: 2},
		},
	}
	require.NoError(t, s.ImportTopology(ctx, f))

	topo, err := s.Topology(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, topo.NumCards())
	assert.Equal(t, 3, topo.NumInputs())
	assert.Equal(t, []topology.InputID{20, 10}, topo.InputsFor(1))

	// Invalid layouts are rejected without touching stored rows.
	bad := &topology.File{Cards: []topology.Card{{ID: 1}}, Inputs: []topology.Input{{ID: 10, CardID: 9, SourceID: 1}}}
	assert.ErrorIs(t, s.ImportTopology(ctx, bad), topology.ErrInvalidTopology)

	again, err := s.Topology(ctx)
	require.NoError(t, err)
	assert.Equal(t, topo.Fingerprint(), again.Fingerprint())

	// Inputs must reference an existing card.
	assert.Error(t, s.PutInput(ctx, topology.Input{ID: 99, CardID: 42, SourceID: 1}))
}

func TestTopology_ImportChannels(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	f := &topology.File{
		Cards:    []topology.Card{{ID: 1}},
		Inputs:   []topology.Input{{ID: 1, CardID: 1, SourceID: 1}},
		Channels: []topology.ChannelSpec{{Ref: "ard.de", SourceID: 1, Name: "Das Erste"}},
	}
	require.NoError(t, s.ImportTopology(ctx, f))

	chans, err := s.Channels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Channel{{Ref: "ard.de", SourceID: 1, Name: "Das Erste"}}, chans)

	f.Channels = append(f.Channels, topology.ChannelSpec{Ref: "orphan", SourceID: 7})
	assert.ErrorIs(t, s.ImportTopology(ctx, f), topology.ErrInvalidTopology)
}

func TestHistory_SeenAndRecord(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	seen, err := s.Seen(ctx)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.Record(ctx, history.Entry{ProgramID: "p1", Title: "Tatort", Subtitle: "Der Fall", RecordedAt: base}))

	seen, err = s.Seen(ctx, history.ProgramKey("p1"))
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = s.Seen(ctx, history.Keys("p2", "tatort", "DER FALL")...)
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = s.Seen(ctx, history.ProgramKey("p2"))
	require.NoError(t, err)
	assert.False(t, seen)

	assert.ErrorIs(t, s.Record(ctx, history.Entry{}), history.ErrNoKeys)
}

const importXMLTV = `<?xml version="1.0" encoding="UTF-8"?>
<tv>
  <channel id="ard.de"><display-name>Das Erste HD</display-name></channel>
  <channel id="zdf.de"><display-name>ZDF</display-name></channel>
  <channel id="mystery.tv"><display-name>Mystery</display-name></channel>
  <programme start="20250303100000 +0000" stop="20250303110000 +0000" channel="ard.de">
    <title>Tagesschau</title><sub-title>10 Uhr</sub-title>
  </programme>
  <programme start="20250303110000 +0000" stop="20250303120000 +0000" channel="zdf.de" program-id="zdf-1">
    <title>Krimi</title><category>Crime</category>
  </programme>
  <programme start="20250303120000 +0000" stop="20250303110000 +0000" channel="zdf.de">
    <title>Backwards</title>
  </programme>
  <programme start="20250303100000 +0000" stop="20250303110000 +0000" channel="mystery.tv">
    <title>Unknown</title>
  </programme>
</tv>`

func TestImportXMLTV(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.UpsertChannel(ctx, Channel{Ref: "1:0:1:ARD", SourceID: 1, Name: "Das Erste"}))
	require.NoError(t, s.UpsertChannel(ctx, Channel{Ref: "zdf.de", SourceID: 2, Name: "ZDF"}))

	doc, err := epg.Decode(strings.NewReader(importXMLTV))
	require.NoError(t, err)

	stats, err := s.ImportXMLTV(ctx, doc, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Programs: 2, Skipped: 2, UnknownChannels: 1}, stats)

	progs, err := s.Programs(ctx, base, base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, progs, 2)

	assert.Equal(t, ProgramIDFor("1:0:1:ARD", base), progs[0].ID)
	assert.Equal(t, "1:0:1:ARD", progs[0].ChannelRef, "matched by display name")
	assert.Equal(t, "10 Uhr", progs[0].Subtitle)
	assert.Equal(t, topology.SourceID(1), progs[0].SourceID)

	assert.Equal(t, "zdf-1", progs[1].ID)
	assert.Equal(t, "Crime", progs[1].Category)

	// Re-importing unchanged data keeps ids and does not bump the revision.
	before, err := s.Revision(ctx)
	require.NoError(t, err)
	_, err = s.ImportXMLTV(ctx, doc, ImportOptions{})
	require.NoError(t, err)
	after, err := s.Revision(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestImportXMLTV_ChannelMapAndPrune(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.UpsertProgram(ctx, Program{ID: "old", ChannelRef: "x", Title: "Old", Start: base.Add(-48 * time.Hour), End: base.Add(-47 * time.Hour)}))

	doc, err := epg.Decode(strings.NewReader(importXMLTV))
	require.NoError(t, err)

	stats, err := s.ImportXMLTV(ctx, doc, ImportOptions{
		ChannelMap:  map[string]string{"mystery.tv": "myst", "ard.de": "ard", "zdf.de": "zdf"},
		PruneBefore: base.Add(-24 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Programs)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Pruned)
}

func TestProgramIDFor_Stable(t *testing.T) {
	a := ProgramIDFor("ard", base)
	assert.Equal(t, a, ProgramIDFor("ard", base.In(time.FixedZone("CET", 3600))))
	assert.NotEqual(t, a, ProgramIDFor("ard", base.Add(time.Minute)))
	assert.NotEqual(t, a, ProgramIDFor("zdf", base))
}
