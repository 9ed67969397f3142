// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package listings

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ManuGH/recsched/internal/log"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce collapses the burst of events an editor or grabber emits
// while writing a file.
const DefaultDebounce = 500 * time.Millisecond

// Watcher calls OnChange after the watched file was written or created.
// The parent directory is watched so atomic replacements are seen too.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(ctx context.Context) error
	logger   zerolog.Logger
	done     chan struct{}
}

// NewWatcher creates a watcher for path. A debounce <= 0 uses DefaultDebounce.
func NewWatcher(path string, debounce time.Duration, onChange func(ctx context.Context) error) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		onChange: onChange,
		logger:   log.WithComponent("listings.watcher"),
		done:     make(chan struct{}),
	}
}

// Start begins watching; it returns once the watch is registered. The watcher
// stops when ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return fmt.Errorf("watch %s: %w", w.path, err)
	}

	w.logger.Info().
		Str(log.FieldEvent, "listings.watcher_started").
		Str(log.FieldPath, w.path).
		Msg("watching listings file for changes")

	go w.loop(ctx, fw)
	return nil
}

// Done is closed when the watcher has stopped.
func (w *Watcher) Done() <-chan struct{} { return w.done }

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer close(w.done)
	defer func() { _ = fw.Close() }()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Str(log.FieldEvent, "listings.watcher_stopped").Msg("listings watcher stopped")
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.logger.Debug().
				Str(log.FieldEvent, "listings.file_changed").
				Str("op", event.Op.String()).
				Msg("listings file changed")

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := w.onChange(ctx); err != nil {
				w.logger.Error().
					Err(err).
					Str(log.FieldEvent, "listings.import_failed").
					Msg("listings import after file change failed")
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Str(log.FieldEvent, "listings.watcher_error").Msg("listings watcher error")
		}
	}
}
