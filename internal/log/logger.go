// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package log holds the process-wide zerolog logger and its correlation
// helpers.
package log

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config describes the global logger. Zero fields fall back to info level,
// JSON on stdout and the "recsched" service name.
type Config struct {
	Level   string
	Format  string // "json" or "console"
	Output  io.Writer
	Service string
	Version string
}

var base atomic.Pointer[zerolog.Logger]

// Configure replaces the global logger. It is called once at startup with
// defaults and again whenever the configuration file is (re)loaded.
func Configure(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly, NoColor: true}
	}
	if cfg.Service == "" {
		cfg.Service = "recsched"
	}

	ctx := zerolog.New(out).With().Timestamp().Str("service", cfg.Service)
	if cfg.Version != "" {
		ctx = ctx.Str("version", cfg.Version)
	}
	l := ctx.Logger()
	base.Store(&l)
}

func logger() zerolog.Logger {
	if l := base.Load(); l != nil {
		return *l
	}
	Configure(Config{})
	return *base.Load()
}

// Base returns the global logger.
func Base() zerolog.Logger {
	return logger()
}

// WithComponent returns a child logger tagged with component.
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str(FieldComponent, component).Logger()
}
