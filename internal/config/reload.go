// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/recsched/internal/log"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 500 * time.Millisecond

// Change names one setting that differs between two configurations.
type Change struct {
	Key     string
	Old     string
	New     string
	Restart bool
}

// Diff lists the settings the daemon cares about that differ between old and
// next. Secrets are masked.
func Diff(old, next AppConfig) []Change {
	var out []Change
	add := func(key string, o, n any, restart bool) {
		ov, nv := fmt.Sprint(o), fmt.Sprint(n)
		if ov != nv {
			out = append(out, Change{Key: key, Old: ov, New: nv, Restart: restart})
		}
	}
	add("scheduler.interval", old.Scheduler.Interval, next.Scheduler.Interval, false)
	add("scheduler.autoResolve", old.Scheduler.AutoResolve, next.Scheduler.AutoResolve, false)
	add("log.level", old.Log.Level, next.Log.Level, false)
	add("database.path", old.Database.Path, next.Database.Path, true)
	add("api.listenAddr", old.API.ListenAddr, next.API.ListenAddr, true)
	add("redis.addr", old.Redis.Addr, next.Redis.Addr, true)
	add("redis.password", maskSecret(old.Redis.Password), maskSecret(next.Redis.Password), true)
	return out
}

// Reloader keeps the live configuration and swaps it when the config file
// changes. A failed load leaves the previous configuration active.
type Reloader struct {
	current atomic.Pointer[AppConfig]
	loader  *Loader
	path    string
	logger  zerolog.Logger

	mu   sync.Mutex
	subs []func(AppConfig)
}

// NewReloader starts from an already loaded configuration.
func NewReloader(initial AppConfig, loader *Loader, path string) *Reloader {
	r := &Reloader{
		loader: loader,
		path:   path,
		logger: log.WithComponent("config"),
	}
	r.current.Store(&initial)
	return r
}

// Current returns the active configuration.
func (r *Reloader) Current() AppConfig {
	return *r.current.Load()
}

// Subscribe registers fn to run after every successful reload. Callbacks run
// on the reloading goroutine in registration order.
func (r *Reloader) Subscribe(fn func(AppConfig)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, fn)
}

// Reload loads the file again and publishes the result.
func (r *Reloader) Reload() error {
	next, err := r.loader.Load()
	if err != nil {
		r.logger.Error().Err(err).Str(log.FieldEvent, "config.reload_failed").Msg("keeping previous configuration")
		return fmt.Errorf("reload config: %w", err)
	}

	old := r.current.Swap(&next)
	for _, c := range Diff(*old, next) {
		ev := r.logger.Info()
		if c.Restart {
			ev = r.logger.Warn().Bool("restart_required", true)
		}
		ev.Str(log.FieldKey, c.Key).Str("old", c.Old).Str("new", c.New).Msg("config changed")
	}

	r.mu.Lock()
	subs := slices.Clone(r.subs)
	r.mu.Unlock()
	for _, fn := range subs {
		fn(next)
	}

	r.logger.Info().Str(log.FieldEvent, "config.reloaded").Msg("configuration reloaded")
	return nil
}

// Watch reloads on changes to the config file until ctx is done. The parent
// directory is watched so editors and atomic renames are both picked up.
// Without a path it returns immediately.
func (r *Reloader) Watch(ctx context.Context) error {
	if r.path == "" {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(r.path)); err != nil {
		_ = fw.Close()
		return fmt.Errorf("watch %s: %w", r.path, err)
	}

	r.logger.Info().Str(log.FieldEvent, "config.watch").Str(log.FieldPath, r.path).Msg("watching config file")
	go r.watch(ctx, fw)
	return nil
}

func (r *Reloader) watch(ctx context.Context, fw *fsnotify.Watcher) {
	defer fw.Close()

	name := filepath.Clean(r.path)
	timer := time.NewTimer(reloadDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			timer.Reset(reloadDebounce)
		case <-timer.C:
			_ = r.Reload()
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			r.logger.Warn().Err(err).Msg("config watcher error")
		}
	}
}

func maskSecret(v string) string {
	if v == "" {
		return ""
	}
	return "***"
}
