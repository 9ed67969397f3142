// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/recsched/internal/config"
	"github.com/ManuGH/recsched/internal/history"
	"github.com/ManuGH/recsched/internal/listings"
	"github.com/ManuGH/recsched/internal/log"
	"github.com/ManuGH/recsched/internal/persistence/sqlite"
	"github.com/ManuGH/recsched/internal/resilience"
	"github.com/ManuGH/recsched/internal/scheduler"
	"github.com/ManuGH/recsched/internal/version"
	"github.com/rs/zerolog"
)

// app bundles the collaborators shared by the commands.
type app struct {
	cfg        config.AppConfig
	loader     *config.Loader
	configPath string
	store      *listings.Store
	logger     zerolog.Logger
	closers    []io.Closer
}

// resolveConfigPath returns the explicit path, or ${RECSCHED_DATA_DIR}/config.yaml
// when that file exists.
func resolveConfigPath(explicit string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	dataDir := strings.TrimSpace(config.ParseString(config.EnvPrefix+"DATA_DIR", config.Defaults().DataDir))
	autoPath := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(autoPath); err == nil {
		return autoPath
	}
	return ""
}

// loadApp loads the configuration, configures logging and opens the
// listings database.
func loadApp(ctx context.Context, opts *rootOptions) (*app, error) {
	log.Configure(log.Config{Level: "info", Service: serviceName, Version: version.Version, Output: os.Stderr})

	path := resolveConfigPath(opts.configPath)
	loader := config.NewLoader(path, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	log.Configure(log.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Service: serviceName, Version: cfg.Version, Output: os.Stderr})
	logger := log.WithComponent("daemon")

	source := "env+defaults"
	if path != "" {
		source = "file"
	}
	logger.Info().
		Str(log.FieldEvent, "config.loaded").
		Str("source", source).
		Str(log.FieldPath, path).
		Msg("configuration loaded")

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	store, err := listings.OpenWithConfig(ctx, cfg.Database.Path, sqlite.Config{
		BusyTimeout:  cfg.Database.BusyTimeout,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open listings database: %w", err)
	}

	return &app{
		cfg:        cfg,
		loader:     loader,
		configPath: path,
		store:      store,
		logger:     logger,
		closers:    []io.Closer{store},
	}, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newScheduler wires the scheduler to the configured history backend and
// revision sources.
func (a *app) newScheduler(ctx context.Context) (*scheduler.Scheduler, error) {
	s := a.cfg.Scheduler
	loc, err := config.LoadLocation(s.Timezone)
	if err != nil {
		return nil, err
	}

	opts := []scheduler.Option{
		scheduler.WithLocation(loc),
		scheduler.WithHorizon(s.Horizon),
		scheduler.WithLookback(s.Lookback),
		scheduler.WithExclusiveCards(s.ExclusiveCards),
		scheduler.WithBreaker(resilience.NewCircuitBreaker("listings", s.BreakerFailures, s.BreakerReset)),
	}

	if a.cfg.History.Backend != "sqlite" {
		h, err := history.NewStore(a.cfg.History.Backend, a.cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		if c, ok := h.(io.Closer); ok {
			a.closers = append(a.closers, c)
		}
		opts = append(opts, scheduler.WithHistory(h))
	}

	if a.cfg.Redis.Enabled {
		rr, err := listings.NewRedisRevisions(ctx, listings.RedisConfig{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
			Prefix:   a.cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("connect revision counters: %w", err)
		}
		a.closers = append(a.closers, rr)
		opts = append(opts, scheduler.WithRevisions(listings.MergedRevisions{a.store, rr}))
	}

	return scheduler.New(a.store, opts...), nil
}

// importOptions builds XMLTV import options from the listings config.
func (a *app) importOptions() listings.ImportOptions {
	opts := listings.ImportOptions{
		ChannelMap:    a.cfg.Listings.ChannelMap,
		FuzzyDistance: a.cfg.Listings.FuzzyDistance,
	}
	if a.cfg.Listings.Retention > 0 {
		opts.PruneBefore = nowFunc().Add(-a.cfg.Listings.Retention)
	}
	return opts
}
