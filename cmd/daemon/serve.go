// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/recsched/internal/api"
	"github.com/ManuGH/recsched/internal/config"
	"github.com/ManuGH/recsched/internal/dvr"
	"github.com/ManuGH/recsched/internal/listings"
	"github.com/ManuGH/recsched/internal/log"
	"github.com/ManuGH/recsched/internal/metrics"
	"github.com/ManuGH/recsched/internal/scheduler"
	"github.com/ManuGH/recsched/internal/telemetry"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const serviceName = "recsched"

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler loop and the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	a, err := loadApp(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Error().Err(err).Msg("failed to close resources")
		}
	}()
	cfg := a.cfg

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		Exporter:       cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	sched, err := a.newScheduler(ctx)
	if err != nil {
		return err
	}

	loop := newLoop(sched, cfg.Scheduler)
	if path := cfg.Scheduler.SnapshotPath; path != "" {
		loop.OnCycle(func(trigger string, rebuilt, ok bool) {
			if !rebuilt || !ok {
				return
			}
			if err := sched.WriteSnapshot(path); err != nil {
				a.logger.Warn().Err(err).Str(log.FieldPath, path).Msg("failed to write snapshot")
			}
		})
	}

	serverOpts := []api.Option{
		api.WithNotifier(loop),
		api.WithRules(dvr.NewManager(a.store)),
	}
	if cfg.Telemetry.Enabled {
		serverOpts = append(serverOpts, api.WithTracing(serviceName))
	}
	srv := api.New(sched, cfg.API, serverOpts...)

	if a.configPath != "" {
		reloader := config.NewReloader(cfg, a.loader, a.configPath)
		reloader.Subscribe(func(next config.AppConfig) { applyReload(next, loop) })
		if err := reloader.Watch(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("config hot reload disabled")
		}
	}

	if path := cfg.Listings.WatchPath; path != "" {
		w := listings.NewWatcher(path, cfg.Listings.Debounce, func(ctx context.Context) error {
			stats, err := a.store.ImportXMLTVFile(ctx, path, a.importOptions())
			metrics.RecordListingsImport(err == nil, stats.Programs)
			if err != nil {
				return err
			}
			loop.Notify("listings.import")
			return nil
		})
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("start listings watcher: %w", err)
		}
	}

	a.logger.Info().
		Str(log.FieldEvent, "daemon.start").
		Str("listen", cfg.API.ListenAddr).
		Bool("auto_resolve", cfg.Scheduler.AutoResolve).
		Str("history", cfg.History.Backend).
		Bool("redis", cfg.Redis.Enabled).
		Msg("recsched starting")

	g, gctx := errgroup.WithContext(ctx)
	loop.Start(gctx)
	g.Go(func() error { return srv.ListenAndServe(gctx) })
	g.Go(func() error {
		<-loop.Done()
		return nil
	})
	err = g.Wait()

	if path := cfg.Scheduler.SnapshotPath; path != "" {
		if serr := sched.WriteSnapshot(path); serr != nil {
			a.logger.Warn().Err(serr).Msg("failed to write final snapshot")
		}
	}
	a.logger.Info().Str(log.FieldEvent, "daemon.stop").Msg("recsched stopped")
	return err
}

func newLoop(sched *scheduler.Scheduler, cfg config.SchedulerConfig) *dvr.Loop {
	loop := dvr.NewLoop(sched)
	loop.BaseInterval = cfg.Interval
	loop.MaxInterval = cfg.MaxInterval
	loop.Jitter = cfg.Jitter
	loop.StartupDelay = cfg.StartupDelay
	loop.AutoResolve = cfg.AutoResolve
	loop.SetLimiter(rate.NewLimiter(rate.Limit(cfg.NotifyRate), 1))
	return loop
}

// applyReload applies the settings that can change without a restart.
func applyReload(cfg config.AppConfig, loop *dvr.Loop) {
	log.Configure(log.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Service: serviceName, Version: cfg.Version, Output: os.Stderr})
	loop.SetBaseInterval(cfg.Scheduler.Interval)
	loop.Notify("config.reload")
}
