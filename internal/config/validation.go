// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%d invalid setting(s): %v", len(e.Problems), e.Problems)
}

type validator struct {
	problems []string
}

func (v *validator) addf(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) positive(field string, d time.Duration) {
	if d <= 0 {
		v.addf("%s must be > 0 (got %s)", field, d)
	}
}

// Validate checks cross-field constraints. It returns a *ValidationError.
func Validate(cfg AppConfig) error {
	var v validator

	s := cfg.Scheduler
	v.positive("scheduler.interval", s.Interval)
	if s.MaxInterval < s.Interval {
		v.addf("scheduler.maxInterval (%s) must be >= scheduler.interval (%s)", s.MaxInterval, s.Interval)
	}
	if s.Jitter < 0 || s.StartupDelay < 0 || s.Lookback < 0 {
		v.addf("scheduler durations must not be negative")
	}
	v.positive("scheduler.horizon", s.Horizon)
	if _, err := LoadLocation(s.Timezone); err != nil {
		v.addf("scheduler.timezone: %v", err)
	}
	if s.NotifyRate <= 0 {
		v.addf("scheduler.notifyRate must be > 0")
	}
	if s.BreakerFailures < 1 {
		v.addf("scheduler.breakerFailures must be >= 1")
	}
	v.positive("scheduler.breakerReset", s.BreakerReset)

	if cfg.Database.Path == "" {
		v.addf("database.path is required")
	}
	if cfg.Database.MaxOpenConns < 1 {
		v.addf("database.maxOpenConns must be >= 1")
	}

	switch cfg.History.Backend {
	case "sqlite", "badger", "memory":
	default:
		v.addf("history.backend %q unsupported (sqlite, badger, memory)", cfg.History.Backend)
	}
	if cfg.History.Backend == "badger" && cfg.DataDir == "" {
		v.addf("history.backend badger needs dataDir")
	}

	if cfg.Redis.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Redis.Addr); err != nil {
			v.addf("redis.addr: %v", err)
		}
	}

	if cfg.Listings.WatchPath != "" {
		v.positive("listings.debounce", cfg.Listings.Debounce)
	}
	if cfg.Listings.FuzzyDistance < 0 {
		v.addf("listings.fuzzyDistance must not be negative")
	}

	if cfg.API.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.API.ListenAddr); err != nil {
			v.addf("api.listenAddr: %v", err)
		}
	}
	if cfg.API.RateLimit < 0 {
		v.addf("api.rateLimit must not be negative")
	}

	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.Exporter != "grpc" && cfg.Telemetry.Exporter != "http" {
			v.addf("telemetry.exporter %q unsupported (grpc, http)", cfg.Telemetry.Exporter)
		}
		if cfg.Telemetry.Endpoint == "" {
			v.addf("telemetry.endpoint is required when telemetry is enabled")
		}
	}
	if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
		v.addf("telemetry.samplingRate must be within 0..1")
	}

	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		v.addf("log.level: %v", err)
	}
	if f := cfg.Log.Format; f != "json" && f != "console" {
		v.addf("log.format %q unsupported (json, console)", f)
	}

	if len(v.problems) > 0 {
		return &ValidationError{Problems: v.problems}
	}
	return nil
}

// LoadLocation resolves a timezone name; "" and "Local" mean the host zone.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.New("unknown timezone " + name)
	}
	return loc, nil
}
