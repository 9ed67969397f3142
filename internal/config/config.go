// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the recsched configuration from defaults, a strict
// YAML file and RECSCHED_* environment variables, in that order.
package config

import "time"

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "RECSCHED_"

// AppConfig is the effective daemon configuration.
type AppConfig struct {
	Version string `yaml:"-"`
	DataDir string `yaml:"dataDir"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
	Database  DatabaseConfig  `yaml:"database"`
	History   HistoryConfig   `yaml:"history"`
	Redis     RedisConfig     `yaml:"redis"`
	Listings  ListingsConfig  `yaml:"listings"`
	API       APIConfig       `yaml:"api"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// SchedulerConfig tunes the rebuild loop and the conflict engine.
type SchedulerConfig struct {
	Interval       time.Duration `yaml:"interval"`
	MaxInterval    time.Duration `yaml:"maxInterval"`
	Jitter         time.Duration `yaml:"jitter"`
	StartupDelay   time.Duration `yaml:"startupDelay"`
	AutoResolve    bool          `yaml:"autoResolve"`
	ExclusiveCards bool          `yaml:"exclusiveCards"`
	Horizon        time.Duration `yaml:"horizon"`
	Lookback       time.Duration `yaml:"lookback"`
	Timezone       string        `yaml:"timezone"`
	// NotifyRate bounds notification-triggered rebuilds per second.
	NotifyRate      float64       `yaml:"notifyRate"`
	SnapshotPath    string        `yaml:"snapshotPath"`
	BreakerFailures int           `yaml:"breakerFailures"`
	BreakerReset    time.Duration `yaml:"breakerReset"`
}

// DatabaseConfig locates the listings database.
type DatabaseConfig struct {
	Path         string        `yaml:"path"`
	BusyTimeout  time.Duration `yaml:"busyTimeout"`
	MaxOpenConns int           `yaml:"maxOpenConns"`
}

// HistoryConfig selects the prior-recordings store: "sqlite" shares the
// listings database, "badger" keeps a KV store under DataDir, "memory" is
// for tests.
type HistoryConfig struct {
	Backend string `yaml:"backend"`
}

// RedisConfig enables revision counters bumped by external grabbers.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// ListingsConfig controls the XMLTV drop-file watcher.
type ListingsConfig struct {
	WatchPath     string            `yaml:"watchPath"`
	Debounce      time.Duration     `yaml:"debounce"`
	FuzzyDistance int               `yaml:"fuzzyDistance"`
	ChannelMap    map[string]string `yaml:"channelMap"`
	Retention     time.Duration     `yaml:"retention"`
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	ListenAddr   string        `yaml:"listenAddr"`
	RateLimit    int           `yaml:"rateLimit"` // requests per minute per client
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // grpc | http
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
}
