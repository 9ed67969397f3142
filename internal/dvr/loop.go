// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dvr

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/ManuGH/recsched/internal/log"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Rebuilder is the scheduler surface driven by the loop.
type Rebuilder interface {
	CheckForChanges(ctx context.Context) bool
	FillRecordLists(ctx context.Context, autoResolve bool) bool
}

// Loop runs rebuild cycles sequentially. A cycle starts on a timer tick or on
// Notify; it asks the rebuilder whether state drifted and rebuilds if so.
type Loop struct {
	rebuilder Rebuilder
	logger    zerolog.Logger

	// Config
	BaseInterval time.Duration
	MaxInterval  time.Duration
	Jitter       time.Duration
	StartupDelay time.Duration
	AutoResolve  bool

	// Dependencies
	clock   Clock
	limiter *rate.Limiter

	notify chan string
	done   chan struct{}

	// State
	mu              sync.Mutex
	currentInterval time.Duration
	cycles          int
	onCycle         func(trigger string, rebuilt, ok bool)
}

// Clock interface for mocking time
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer interface for mocking time.Timer
type Timer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

// RealClock implements Clock using standard time package
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
func (RealClock) NewTimer(d time.Duration) Timer {
	return &RealTimer{t: time.NewTimer(d)}
}

// RealTimer wraps time.Timer
type RealTimer struct {
	t *time.Timer
}

func (r *RealTimer) C() <-chan time.Time        { return r.t.C }
func (r *RealTimer) Stop() bool                 { return r.t.Stop() }
func (r *RealTimer) Reset(d time.Duration) bool { return r.t.Reset(d) }

// NewLoop creates a loop for the given rebuilder. Notification-triggered
// cycles are limited to one every 5 seconds with a burst of 2.
func NewLoop(r Rebuilder) *Loop {
	return &Loop{
		rebuilder:    r,
		logger:       log.WithComponent("dvr.loop"),
		BaseInterval: 5 * time.Minute,
		MaxInterval:  60 * time.Minute,
		Jitter:       30 * time.Second,
		StartupDelay: 2 * time.Second,
		AutoResolve:  true,
		clock:        RealClock{},
		limiter:      rate.NewLimiter(rate.Every(5*time.Second), 2),
		notify:       make(chan string, 1),
		done:         make(chan struct{}),
	}
}

// SetClock replaces the clock; it must be called before Start.
func (l *Loop) SetClock(c Clock) { l.clock = c }

// SetLimiter replaces the notification rate limiter; it must be called before Start.
func (l *Loop) SetLimiter(lim *rate.Limiter) { l.limiter = lim }

// OnCycle registers a hook invoked after every cycle; it must be called before Start.
func (l *Loop) OnCycle(fn func(trigger string, rebuilt, ok bool)) { l.onCycle = fn }

// SetBaseInterval changes the tick interval from the next cycle on.
func (l *Loop) SetBaseInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.BaseInterval = d
	l.currentInterval = 0
}

// Notify requests a cycle, e.g. after a listings import. Requests arriving
// while one is queued are coalesced.
func (l *Loop) Notify(reason string) {
	select {
	case l.notify <- reason:
	default:
	}
}

// Start begins the loop in a background goroutine.
// It returns immediately. The loop stops when ctx is cancelled.
func (l *Loop) Start(ctx context.Context) {
	go l.run(ctx)
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Cycles returns the number of completed cycles.
func (l *Loop) Cycles() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cycles
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	l.logger.Info().Msg("recording loop started")

	timer := l.clock.NewTimer(l.nextDuration(true))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("recording loop stopping")
			return

		case reason := <-l.notify:
			if err := l.limiter.Wait(ctx); err != nil {
				// Context cancelled while throttled.
				return
			}
			l.cycle(ctx, "notify:"+reason)

		case <-timer.C():
			l.cycle(ctx, "timer")
			timer.Reset(l.nextDuration(false))
		}
	}
}

// cycle runs one CheckForChanges / FillRecordLists pass.
func (l *Loop) cycle(ctx context.Context, trigger string) {
	ctx = log.ContextWithTrigger(ctx, trigger)
	logger := log.WithContext(ctx, l.logger)

	rebuilt, ok := false, true
	if l.rebuilder.CheckForChanges(ctx) {
		rebuilt = true
		ok = l.rebuilder.FillRecordLists(ctx, l.AutoResolve)
	}

	switch {
	case !ok:
		logger.Warn().Msg("rebuild failed, backing off")
		l.increaseBackoff()
	case rebuilt:
		logger.Info().Msg("recording list rebuilt")
		l.resetBackoff()
	default:
		logger.Debug().Msg("no changes detected")
		l.resetBackoff()
	}

	l.mu.Lock()
	l.cycles++
	hook := l.onCycle
	l.mu.Unlock()
	if hook != nil {
		hook(trigger, rebuilt, ok)
	}
}

func (l *Loop) nextDuration(isFirst bool) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if isFirst {
		return l.StartupDelay + l.jitterDuration()
	}

	interval := l.currentInterval
	if interval == 0 {
		interval = l.BaseInterval
	}

	d := interval + l.jitterDuration()
	if d <= 0 {
		d = interval
	}
	return d
}

// jitterDuration returns a random duration between -Jitter and +Jitter.
// Caller must hold l.mu.
func (l *Loop) jitterDuration() time.Duration {
	if l.Jitter <= 0 {
		return 0
	}
	ms := int64(l.Jitter / time.Millisecond)
	if ms == 0 {
		return 0
	}
	delta := rand.Int63n(ms*2) - ms // -ms to +ms
	return time.Duration(delta) * time.Millisecond
}

func (l *Loop) increaseBackoff() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.currentInterval == 0 {
		l.currentInterval = l.BaseInterval
	}

	l.currentInterval *= 2
	if l.currentInterval > l.MaxInterval {
		l.currentInterval = l.MaxInterval
	}
	l.logger.Info().Str("next_interval", l.currentInterval.String()).Msg("increased loop backoff")
}

func (l *Loop) resetBackoff() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.currentInterval != 0 && l.currentInterval != l.BaseInterval {
		l.logger.Info().Str("next_interval", l.BaseInterval.String()).Msg("reset loop backoff")
	}
	l.currentInterval = l.BaseInterval
}
