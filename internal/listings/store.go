// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package listings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/recsched/internal/dvr"
	"github.com/ManuGH/recsched/internal/history"
	"github.com/ManuGH/recsched/internal/persistence/sqlite"
	"github.com/ManuGH/recsched/internal/topology"
)

// Store is the SQLite listings database.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the listings database at path and migrates it.
func Open(ctx context.Context, path string) (*Store, error) {
	return OpenWithConfig(ctx, path, sqlite.DefaultConfig())
}

// OpenWithConfig is Open with explicit connection pool settings.
func OpenWithConfig(ctx context.Context, path string, cfg sqlite.Config) (*Store, error) {
	db, err := sqlite.Open(ctx, path, cfg)
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(ctx, db, migrations()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("listings store: migration failed: %w", err)
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

// VerifyIntegrity runs a quick or full integrity check on the open database.
func (s *Store) VerifyIntegrity(ctx context.Context, mode sqlite.CheckMode) ([]string, error) {
	return sqlite.Check(ctx, s.DB, mode)
}

// Revision reads the revision counters maintained by triggers.
func (s *Store) Revision(ctx context.Context) (Revision, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT name, value FROM revision`)
	if err != nil {
		return Revision{}, fmt.Errorf("read revision: %w", err)
	}
	defer rows.Close()

	var rev Revision
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return Revision{}, fmt.Errorf("scan revision: %w", err)
		}
		rev.set(name, value)
	}
	return rev, rows.Err()
}

// Programs returns programs overlapping [from, to), ordered by start then id.
func (s *Store) Programs(ctx context.Context, from, to time.Time) ([]Program, error) {
	const q = `
	SELECT p.program_id, p.channel_ref, COALESCE(c.source_id, 0), p.title, p.subtitle,
	       p.description, p.category, p.starts_at, p.ends_at
	FROM program p
	LEFT JOIN channel c ON c.channel_ref = p.channel_ref
	WHERE p.ends_at > ? AND p.starts_at < ?
	ORDER BY p.starts_at, p.program_id`

	rows, err := s.DB.QueryContext(ctx, q, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("query programs: %w", err)
	}
	defer rows.Close()

	var out []Program
	for rows.Next() {
		var p Program
		var start, end int64
		if err := rows.Scan(&p.ID, &p.ChannelRef, &p.SourceID, &p.Title, &p.Subtitle,
			&p.Description, &p.Category, &start, &end); err != nil {
			return nil, fmt.Errorf("scan program: %w", err)
		}
		p.Start = time.Unix(start, 0).UTC()
		p.End = time.Unix(end, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertChannel inserts or updates a channel.
func (s *Store) UpsertChannel(ctx context.Context, ch Channel) error {
	return upsertChannel(ctx, s.DB, ch)
}

// Channels returns all channels ordered by ref.
func (s *Store) Channels(ctx context.Context) ([]Channel, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT channel_ref, source_id, name FROM channel ORDER BY channel_ref`)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	var out []Channel
	for rows.Next() {
		var ch Channel
		if err := rows.Scan(&ch.Ref, &ch.SourceID, &ch.Name); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// UpsertProgram inserts or updates a program. Rewriting identical data does
// not bump the listings revision.
func (s *Store) UpsertProgram(ctx context.Context, p Program) error {
	return upsertProgram(ctx, s.DB, p)
}

// DeleteProgramsBefore removes programs that ended before t.
func (s *Store) DeleteProgramsBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM program WHERE ends_at < ?`, t.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune programs: %w", err)
	}
	return res.RowsAffected()
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertChannel(ctx context.Context, db execer, ch Channel) error {
	if ch.Ref == "" {
		return fmt.Errorf("channel ref is required")
	}
	_, err := db.ExecContext(ctx, `
	INSERT INTO channel (channel_ref, source_id, name) VALUES (?, ?, ?)
	ON CONFLICT(channel_ref) DO UPDATE SET source_id = excluded.source_id, name = excluded.name
	WHERE source_id IS NOT excluded.source_id OR name IS NOT excluded.name`,
		ch.Ref, ch.SourceID, ch.Name)
	if err != nil {
		return fmt.Errorf("upsert channel %s: %w", ch.Ref, err)
	}
	return nil
}

func upsertProgram(ctx context.Context, db execer, p Program) error {
	if p.ID == "" {
		return fmt.Errorf("program id is required")
	}
	_, err := db.ExecContext(ctx, `
	INSERT INTO program (program_id, channel_ref, title, subtitle, description, category, starts_at, ends_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(program_id) DO UPDATE SET
		channel_ref = excluded.channel_ref,
		title = excluded.title,
		subtitle = excluded.subtitle,
		description = excluded.description,
		category = excluded.category,
		starts_at = excluded.starts_at,
		ends_at = excluded.ends_at
	WHERE channel_ref IS NOT excluded.channel_ref
	   OR title IS NOT excluded.title
	   OR subtitle IS NOT excluded.subtitle
	   OR description IS NOT excluded.description
	   OR category IS NOT excluded.category
	   OR starts_at IS NOT excluded.starts_at
	   OR ends_at IS NOT excluded.ends_at`,
		p.ID, p.ChannelRef, p.Title, p.Subtitle, p.Description, p.Category, p.Start.Unix(), p.End.Unix())
	if err != nil {
		return fmt.Errorf("upsert program %s: %w", p.ID, err)
	}
	return nil
}

// Rules returns all recording rules ordered by id.
func (s *Store) Rules(ctx context.Context) ([]dvr.Rule, error) {
	const q = `
	SELECT id, enabled, type, keyword, channel_ref, program_id, days, start_window, priority, new_episodes_only
	FROM record_rule ORDER BY id`

	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []dvr.Rule
	for rows.Next() {
		var r dvr.Rule
		var days string
		if err := rows.Scan(&r.ID, &r.Enabled, &r.Type, &r.Keyword, &r.ChannelRef, &r.ProgramID,
			&days, &r.StartWindow, &r.Priority, &r.NewEpisodesOnly); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		if r.Days, err = parseDays(days); err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PutRule validates and stores a rule.
func (s *Store) PutRule(ctx context.Context, r dvr.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO record_rule (id, enabled, type, keyword, channel_ref, program_id, days, start_window, priority, new_episodes_only)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		enabled = excluded.enabled,
		type = excluded.type,
		keyword = excluded.keyword,
		channel_ref = excluded.channel_ref,
		program_id = excluded.program_id,
		days = excluded.days,
		start_window = excluded.start_window,
		priority = excluded.priority,
		new_episodes_only = excluded.new_episodes_only`,
		r.ID, r.Enabled, string(r.Type), r.Keyword, r.ChannelRef, r.ProgramID,
		formatDays(r.Days), r.StartWindow, r.Priority, r.NewEpisodesOnly)
	if err != nil {
		return fmt.Errorf("put rule %s: %w", r.ID, err)
	}
	return nil
}

// DeleteRule removes a rule.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM record_rule WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return nil
}

func formatDays(days []int) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

func parseDays(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid days %q: %w", s, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// Topology loads cards and inputs and builds the tuner topology.
func (s *Store) Topology(ctx context.Context) (*topology.Topology, error) {
	f, err := s.TopologyFile(ctx)
	if err != nil {
		return nil, err
	}
	return topology.Build(f.Cards, f.Inputs)
}

// TopologyFile returns the raw card and input rows.
func (s *Store) TopologyFile(ctx context.Context) (*topology.File, error) {
	var f topology.File

	cardRows, err := s.DB.QueryContext(ctx, `SELECT id, name FROM card ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query cards: %w", err)
	}
	defer cardRows.Close()
	for cardRows.Next() {
		var c topology.Card
		if err := cardRows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		f.Cards = append(f.Cards, c)
	}
	if err := cardRows.Err(); err != nil {
		return nil, err
	}

	inputRows, err := s.DB.QueryContext(ctx, `SELECT id, card_id, source_id, name, preference FROM input ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query inputs: %w", err)
	}
	defer inputRows.Close()
	for inputRows.Next() {
		var in topology.Input
		if err := inputRows.Scan(&in.ID, &in.CardID, &in.SourceID, &in.Name, &in.Preference); err != nil {
			return nil, fmt.Errorf("scan input: %w", err)
		}
		f.Inputs = append(f.Inputs, in)
	}
	return &f, inputRows.Err()
}

// PutCard inserts or updates a card.
func (s *Store) PutCard(ctx context.Context, c topology.Card) error {
	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO card (id, name) VALUES (?, ?)
	ON CONFLICT(id) DO UPDATE SET name = excluded.name`, c.ID, c.Name)
	if err != nil {
		return fmt.Errorf("put card %d: %w", c.ID, err)
	}
	return nil
}

// PutInput inserts or updates an input. The owning card must exist.
func (s *Store) PutInput(ctx context.Context, in topology.Input) error {
	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO input (id, card_id, source_id, name, preference) VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		card_id = excluded.card_id,
		source_id = excluded.source_id,
		name = excluded.name,
		preference = excluded.preference`,
		in.ID, in.CardID, in.SourceID, in.Name, in.Preference)
	if err != nil {
		return fmt.Errorf("put input %d: %w", in.ID, err)
	}
	return nil
}

// Seen reports whether any of keys is in the prior-recordings history.
func (s *Store) Seen(ctx context.Context, keys ...string) (bool, error) {
	if len(keys) == 0 {
		return false, nil
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	q := `SELECT 1 FROM oldrecorded WHERE key IN (?` + strings.Repeat(",?", len(keys)-1) + `) LIMIT 1`

	var one int
	err := s.DB.QueryRowContext(ctx, q, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("history lookup: %w", err)
	}
	return true, nil
}

// Record stores a finished recording under all of its history keys.
func (s *Store) Record(ctx context.Context, e history.Entry) error {
	keys := e.Keys()
	if len(keys) == 0 {
		return history.ErrNoKeys
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO oldrecorded (key, program_id, title, subtitle, recorded_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			program_id = excluded.program_id,
			title = excluded.title,
			subtitle = excluded.subtitle,
			recorded_at = excluded.recorded_at`,
			k, e.ProgramID, e.Title, e.Subtitle, e.RecordedAt.Unix()); err != nil {
			return fmt.Errorf("record history %s: %w", k, err)
		}
	}
	return tx.Commit()
}
