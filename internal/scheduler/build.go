// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/recsched/internal/dvr"
	"github.com/ManuGH/recsched/internal/listings"
	"github.com/ManuGH/recsched/internal/log"
	"github.com/ManuGH/recsched/internal/metrics"
	"github.com/ManuGH/recsched/internal/recording"
	"github.com/ManuGH/recsched/internal/telemetry"
	"github.com/ManuGH/recsched/internal/topology"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// historyConcurrency bounds parallel history lookups during a rebuild.
const historyConcurrency = 8

// FillRecordLists rebuilds the candidate list from listings, rules and
// history and, with autoResolve, resolves every conflict. It returns false
// when a collaborator was unavailable; the previous list then stays in
// place. Concurrent calls with the same autoResolve share one rebuild. The
// shared rebuild is detached from the caller that started it, so a caller
// giving up does not fail the others; it only stops waiting.
func (s *Scheduler) FillRecordLists(ctx context.Context, autoResolve bool) bool {
	if ctx.Err() != nil {
		return false
	}
	key := "fill"
	if autoResolve {
		key = "fill:resolve"
	}
	ch := s.group.DoChan(key, func() (any, error) {
		return s.fillRecordLists(context.WithoutCancel(ctx), autoResolve), nil
	})
	select {
	case res := <-ch:
		return res.Val.(bool)
	case <-ctx.Done():
		return false
	}
}

// loaded is the collaborator data of one rebuild.
type loaded struct {
	topo     *topology.Topology
	rules    []dvr.Rule
	programs []listings.Program
}

func (s *Scheduler) fillRecordLists(ctx context.Context, autoResolve bool) bool {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	runID := uuid.NewString()
	ctx = log.ContextWithRebuildID(ctx, runID)
	ctx, span := s.tracer.Start(ctx, "scheduler.FillRecordLists",
		trace.WithAttributes(telemetry.RebuildAttributes(runID, autoResolve)...))
	defer span.End()

	logger := log.WithContext(ctx, s.logger)
	began := time.Now()
	start := s.now()
	report := Report{
		RunID:       runID,
		AutoResolve: autoResolve,
		StartedAt:   start,
		WindowFrom:  start.Add(-s.lookback).Unix(),
		WindowTo:    start.Add(s.horizon).Unix(),
	}

	fail := func(err error, kind string) bool {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(telemetry.ErrorAttributes(err, kind)...)
		metrics.RecordRebuild(false, time.Since(began))
		logger.Error().Err(err).Str(log.FieldEvent, "rebuild.failed").Msg("recording list rebuild failed, keeping previous list")

		report.Status = StatusFailed
		report.FinishedAt = s.now()
		report.DurationMs = time.Since(began).Milliseconds()
		s.mu.Lock()
		s.lastReport = report
		s.mu.Unlock()
		return false
	}

	// Read before loading so a write racing the load is seen by the next check.
	rev, err := s.revisions.Revision(ctx)
	if err != nil {
		return fail(fmt.Errorf("%w: revision: %w", ErrListingsUnavailable, err), "revision")
	}
	report.Revision = rev

	data, err := s.load(ctx, start.Add(-s.lookback), start.Add(s.horizon))
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrListingsUnavailable, err), "listings")
	}
	report.Summary.ProgramsScanned = len(data.programs)

	cands := s.matchPrograms(data.rules, data.programs, &report, logger)
	cands, err = s.dropRecorded(ctx, cands, &report)
	if err != nil {
		return fail(err, "history")
	}

	next := recording.NewStore()
	for _, c := range cands {
		if err := next.Add(c); err != nil {
			// matchPrograms already dropped duplicates
			logger.Warn().Err(err).Msg("skipping candidate")
		}
	}
	report.Summary.Candidates = next.Len()

	s.mu.Lock()
	now := s.now()
	report.Summary.CarriedOver = s.carryOver(next, now)
	r := &resolver{topo: data.topo, exclusiveCards: s.exclusiveCards, now: now, logger: logger}
	var stats resolveStats
	if autoResolve {
		stats = r.resolve(next)
	} else {
		stats, _ = r.prepare(next)
	}
	s.store = next
	s.topo = data.topo
	s.committed = rev
	s.hasCommitted = true
	s.priorDirty = false
	s.resolved = autoResolve

	pending := len(s.pendingLocked(now))
	for _, c := range next.Filter(func(c recording.Candidate) bool { return c.Status == recording.StatusConflicted }) {
		report.conflict(RunConflict{
			ProgramID: string(c.ProgramID),
			Title:     c.Title,
			Begin:     c.Start.Unix(),
			End:       c.End.Unix(),
			Priority:  c.Priority,
			Message:   c.Reason,
		})
	}
	report.Summary.Pending = pending
	report.Summary.Invalid = stats.Invalid
	report.Summary.Conflicted = stats.Conflicted
	report.Summary.Clusters = stats.Clusters
	report.Summary.Exhausted = stats.Exhausted
	report.Status = StatusSuccess
	report.FinishedAt = s.now()
	report.DurationMs = time.Since(began).Milliseconds()
	s.lastReport = report
	s.mu.Unlock()

	metrics.RecordRebuild(true, time.Since(began))
	metrics.SetScheduleState(pending, stats.Conflicted, stats.Clusters)
	metrics.RecordRemovals(ReasonConflict, stats.Conflicted)
	metrics.RecordRemovals(ReasonTopology, stats.Invalid)
	for i := 0; i < stats.Exhausted; i++ {
		metrics.RecordResourceExhausted()
	}
	span.SetAttributes(telemetry.RebuildResultAttributes(
		len(data.programs), report.Summary.Candidates, pending, stats.Conflicted, stats.Clusters)...)

	logger.Info().
		Str(log.FieldEvent, "rebuild.done").
		Bool(log.FieldAutoResolve, autoResolve).
		Int(log.FieldPrograms, len(data.programs)).
		Int(log.FieldCandidates, report.Summary.Candidates).
		Int(log.FieldPending, pending).
		Int(log.FieldConflicted, stats.Conflicted).
		Int(log.FieldInvalid, stats.Invalid).
		Int(log.FieldClusters, stats.Clusters).
		Int64(log.FieldDurationMs, report.DurationMs).
		Msg("recording list rebuilt")
	return true
}

// load fetches topology, rules and programs in parallel behind the breaker.
func (s *Scheduler) load(ctx context.Context, from, to time.Time) (loaded, error) {
	var out loaded
	fn := func() error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			t, err := s.topoSrc.Topology(gctx)
			if err != nil {
				return fmt.Errorf("load topology: %w", err)
			}
			out.topo = t
			return nil
		})
		g.Go(func() error {
			rules, err := s.listings.Rules(gctx)
			if err != nil {
				return fmt.Errorf("load rules: %w", err)
			}
			out.rules = rules
			return nil
		})
		g.Go(func() error {
			programs, err := s.listings.Programs(gctx, from, to)
			if err != nil {
				return fmt.Errorf("load programs: %w", err)
			}
			out.programs = programs
			return nil
		})
		return g.Wait()
	}
	var err error
	if s.breaker != nil {
		err = s.breaker.Execute(fn)
	} else {
		err = fn()
	}
	if err != nil {
		return loaded{}, err
	}
	if out.topo == nil {
		return loaded{}, errors.New("load topology: no topology configured")
	}
	return out, nil
}

// matchPrograms turns listings into candidates. Rules are tried in
// precedence order and the first match decides.
func (s *Scheduler) matchPrograms(rules []dvr.Rule, programs []listings.Program, report *Report, logger zerolog.Logger) []recording.Candidate {
	enabled := make([]dvr.Rule, 0, len(rules))
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		if err := r.Validate(); err != nil {
			logger.Warn().Err(err).Str(log.FieldRuleID, r.ID).Msg("ignoring invalid rule")
			continue
		}
		enabled = append(enabled, r)
	}
	dvr.SortRules(enabled)
	report.Summary.RulesEvaluated = len(enabled)

	seen := make(map[string]struct{}, len(programs))
	var out []recording.Candidate
	for _, p := range programs {
		if err := validProgram(p); err != nil {
			report.Summary.SkippedMalformed++
			report.decide(RunDecision{ProgramID: p.ID, Title: p.Title, Action: ActionSkipped, Reason: "malformed"})
			logger.Debug().Err(err).Str(log.FieldProgramID, p.ID).Msg("discarding listings entry")
			continue
		}
		if _, dup := seen[p.ID]; dup {
			report.Summary.SkippedDuplicate++
			report.decide(RunDecision{ProgramID: p.ID, Title: p.Title, Action: ActionSkipped, Reason: "duplicate"})
			continue
		}
		seen[p.ID] = struct{}{}

		airing := dvr.Airing{
			ProgramID:  p.ID,
			Title:      p.Title,
			ChannelRef: p.ChannelRef,
			Start:      p.Start.In(s.location),
		}
		for i := range enabled {
			rule := &enabled[i]
			if !rule.Matches(airing).Matched {
				continue
			}
			if rule.Type == dvr.RuleDontRecord {
				report.Summary.SkippedDontRecord++
				report.decide(RunDecision{ProgramID: p.ID, Title: p.Title, RuleID: rule.ID, Action: ActionSkipped, Reason: "dontrecord"})
			} else {
				out = append(out, newCandidate(p, rule))
			}
			break
		}
	}
	return out
}

func validProgram(p listings.Program) error {
	switch {
	case p.ID == "":
		return fmt.Errorf("%w: empty program id", ErrMalformedCandidate)
	case p.Start.IsZero() || !p.End.After(p.Start):
		return fmt.Errorf("%w: window %s..%s", ErrMalformedCandidate, p.Start, p.End)
	case p.SourceID <= 0:
		return fmt.Errorf("%w: channel %q has no source", ErrMalformedCandidate, p.ChannelRef)
	}
	return nil
}

func newCandidate(p listings.Program, rule *dvr.Rule) recording.Candidate {
	typ := recording.TypeSeries
	switch rule.Type {
	case dvr.RuleSingle:
		typ = recording.TypeSingle
	case dvr.RuleOverride:
		typ = recording.TypeOverride
	}
	return recording.Candidate{
		ProgramID:       recording.ProgramID(p.ID),
		Title:           p.Title,
		Subtitle:        p.Subtitle,
		ChannelRef:      p.ChannelRef,
		SourceID:        p.SourceID,
		Start:           p.Start,
		End:             p.End,
		Priority:        rule.Priority,
		Type:            typ,
		RuleID:          rule.ID,
		NewEpisodesOnly: rule.NewEpisodesOnly,
		Status:          recording.StatusPending,
	}
}

// dropRecorded removes candidates found in history. Forced recordings skip
// the lookup.
func (s *Scheduler) dropRecorded(ctx context.Context, cands []recording.Candidate, report *Report) ([]recording.Candidate, error) {
	recorded := make([]bool, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(historyConcurrency)
	for i, c := range cands {
		if c.IsOverride() {
			continue
		}
		g.Go(func() error {
			seen, err := s.FindInOldRecordings(gctx, c)
			if err != nil {
				return err
			}
			recorded[i] = seen
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := cands[:0]
	for i, c := range cands {
		if recorded[i] {
			report.Summary.SkippedHistory++
			report.decide(RunDecision{ProgramID: string(c.ProgramID), Title: c.Title, RuleID: c.RuleID, Action: ActionSkipped, Reason: "history"})
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// carryOver moves in-progress recordings into next. A fresh entry for the
// same program keeps its new listings data but inherits the state and input.
// Must be called with s.mu held.
func (s *Scheduler) carryOver(next *recording.Store, now time.Time) int {
	n := 0
	for _, old := range s.store.Filter(func(c recording.Candidate) bool {
		return c.Status == recording.StatusRecording && !c.Ended(now)
	}) {
		if c, ok := next.Get(old.ProgramID); ok {
			c.Status = recording.StatusRecording
			c.Input = old.Input
			c.Reason = ""
			next.Put(c)
		} else {
			next.Put(old)
		}
		n++
	}
	return n
}
