// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package listings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/recsched/internal/epg"
	"github.com/ManuGH/recsched/internal/log"
	"github.com/ManuGH/recsched/internal/topology"
	"github.com/google/uuid"
)

// programNamespace seeds derived program ids so re-imports of the same
// airing keep their id.
var programNamespace = uuid.MustParse("6f1f6a7e-3c1b-4b8e-9a55-5d2f0c8f4a11")

// ImportOptions controls XMLTV import.
type ImportOptions struct {
	// ChannelMap maps XMLTV channel ids to channel refs. Unmapped ids are
	// resolved by display name against known channels.
	ChannelMap map[string]string
	// FuzzyDistance is the edit distance accepted for display-name matching.
	// Zero requires an exact normalised match.
	FuzzyDistance int
	// PruneBefore deletes programs that ended before this time. Zero keeps all.
	PruneBefore time.Time
}

// ImportStats summarises an import.
type ImportStats struct {
	Programs        int `json:"programs"`
	Skipped         int `json:"skipped"`
	UnknownChannels int `json:"unknownChannels"`
	Pruned          int `json:"pruned"`
}

// ProgramIDFor derives a stable program id for an airing without one.
func ProgramIDFor(channelRef string, start time.Time) string {
	return uuid.NewSHA1(programNamespace, []byte(channelRef+"|"+start.UTC().Format(time.RFC3339))).String()
}

// ImportXMLTV writes the programmes of doc in a single transaction.
func (s *Store) ImportXMLTV(ctx context.Context, doc *epg.TV, opts ImportOptions) (ImportStats, error) {
	logger := log.WithComponent("listings.import")
	var stats ImportStats

	known, err := s.Channels(ctx)
	if err != nil {
		return stats, err
	}
	resolve := channelResolver(doc, known, opts)

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return stats, err
	}
	defer func() { _ = tx.Rollback() }()

	unknown := make(map[string]struct{})
	for _, prog := range doc.Programs {
		ref, ok := resolve(prog.Channel)
		if !ok {
			unknown[prog.Channel] = struct{}{}
			stats.Skipped++
			continue
		}

		p, err := programFromXMLTV(prog, ref)
		if err != nil {
			logger.Warn().Err(err).Str(log.FieldChannel, prog.Channel).Msg("skipping malformed programme")
			stats.Skipped++
			continue
		}
		if err := upsertProgram(ctx, tx, p); err != nil {
			return ImportStats{}, err
		}
		stats.Programs++
	}

	if !opts.PruneBefore.IsZero() {
		res, err := tx.ExecContext(ctx, `DELETE FROM program WHERE ends_at < ?`, opts.PruneBefore.Unix())
		if err != nil {
			return ImportStats{}, fmt.Errorf("prune programs: %w", err)
		}
		n, _ := res.RowsAffected()
		stats.Pruned = int(n)
	}

	if err := tx.Commit(); err != nil {
		return ImportStats{}, fmt.Errorf("commit import: %w", err)
	}

	stats.UnknownChannels = len(unknown)
	logger.Info().
		Int(log.FieldPrograms, stats.Programs).
		Int("skipped", stats.Skipped).
		Int("unknown_channels", stats.UnknownChannels).
		Int("pruned", stats.Pruned).
		Msg("xmltv import finished")
	return stats, nil
}

// channelResolver maps XMLTV channel ids to known channel refs: explicit map
// first, then the id itself, then display names.
func channelResolver(doc *epg.TV, known []Channel, opts ImportOptions) func(string) (string, bool) {
	refs := make(map[string]struct{}, len(known))
	byName := make(map[string]string, len(known))
	for _, ch := range known {
		refs[ch.Ref] = struct{}{}
		if key := epg.NameKey(ch.Name); key != "" {
			byName[key] = ch.Ref
		}
	}

	displayNames := make(map[string][]string, len(doc.Channels))
	for _, ch := range doc.Channels {
		displayNames[ch.ID] = ch.DisplayName
	}

	cache := make(map[string]string)
	return func(id string) (string, bool) {
		if ref, ok := cache[id]; ok {
			return ref, ref != ""
		}
		ref := ""
		if mapped, ok := opts.ChannelMap[id]; ok {
			ref = mapped
		} else if _, ok := refs[id]; ok {
			ref = id
		} else {
			for _, name := range displayNames[id] {
				if match, ok := epg.FindBest(name, byName, opts.FuzzyDistance); ok {
					ref = match
					break
				}
			}
		}
		cache[id] = ref
		return ref, ref != ""
	}
}

func programFromXMLTV(prog epg.Programme, channelRef string) (Program, error) {
	start, err := epg.ParseTime(prog.Start)
	if err != nil {
		return Program{}, err
	}
	end, err := epg.ParseTime(prog.Stop)
	if err != nil {
		return Program{}, err
	}
	if !end.After(start) {
		return Program{}, fmt.Errorf("programme %q ends before it starts", prog.Title.Value)
	}
	title := strings.TrimSpace(prog.Title.Value)
	if title == "" {
		return Program{}, fmt.Errorf("programme without title")
	}

	id := strings.TrimSpace(prog.ProgramID)
	if id == "" {
		id = ProgramIDFor(channelRef, start)
	}
	return Program{
		ID:          id,
		ChannelRef:  channelRef,
		Title:       title,
		Subtitle:    strings.TrimSpace(prog.SubTitle.Value),
		Description: strings.TrimSpace(prog.Desc),
		Category:    prog.Category(),
		Start:       start.UTC(),
		End:         end.UTC(),
	}, nil
}

// ImportTopology replaces all cards and inputs with f and upserts its
// channels. The layout is validated before anything is written.
func (s *Store) ImportTopology(ctx context.Context, f *topology.File) error {
	topo, err := topology.Build(f.Cards, f.Inputs)
	if err != nil {
		return err
	}
	for _, ch := range f.Channels {
		if !topo.HasSource(ch.SourceID) {
			return fmt.Errorf("%w: channel %s references source %d without inputs",
				topology.ErrInvalidTopology, ch.Ref, ch.SourceID)
		}
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM input`); err != nil {
		return fmt.Errorf("clear inputs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM card`); err != nil {
		return fmt.Errorf("clear cards: %w", err)
	}
	for _, c := range f.Cards {
		if _, err := tx.ExecContext(ctx, `INSERT INTO card (id, name) VALUES (?, ?)`, c.ID, c.Name); err != nil {
			return fmt.Errorf("insert card %d: %w", c.ID, err)
		}
	}
	for _, in := range f.Inputs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO input (id, card_id, source_id, name, preference) VALUES (?, ?, ?, ?, ?)`,
			in.ID, in.CardID, in.SourceID, in.Name, in.Preference); err != nil {
			return fmt.Errorf("insert input %d: %w", in.ID, err)
		}
	}
	for _, ch := range f.Channels {
		if err := upsertChannel(ctx, tx, Channel{Ref: ch.Ref, SourceID: ch.SourceID, Name: ch.Name}); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ImportXMLTVFile parses path and imports it.
func (s *Store) ImportXMLTVFile(ctx context.Context, path string, opts ImportOptions) (ImportStats, error) {
	doc, err := epg.ParseFile(path)
	if err != nil {
		return ImportStats{}, err
	}
	return s.ImportXMLTV(ctx, doc, opts)
}
