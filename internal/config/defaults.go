// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		DataDir: "/var/lib/recsched",
		Scheduler: SchedulerConfig{
			Interval:        time.Minute,
			MaxInterval:     15 * time.Minute,
			Jitter:          5 * time.Second,
			StartupDelay:    2 * time.Second,
			AutoResolve:     true,
			Horizon:         14 * 24 * time.Hour,
			Lookback:        6 * time.Hour,
			Timezone:        "Local",
			NotifyRate:      0.2,
			BreakerFailures: 3,
			BreakerReset:    30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:         "recsched.db",
			BusyTimeout:  5 * time.Second,
			MaxOpenConns: 8,
		},
		History: HistoryConfig{Backend: "sqlite"},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "recsched:rev:",
		},
		Listings: ListingsConfig{
			Debounce:  2 * time.Second,
			Retention: 7 * 24 * time.Hour,
		},
		API: APIConfig{
			ListenAddr:   ":8089",
			RateLimit:    120,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}
