// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/recsched/internal/log"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Wrapper methods for mechanical connection tracking

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults
// It enforces Strict Validated Order: Parse File (Strict) -> Apply Env -> Validate
func (l *Loader) Load() (AppConfig, error) {
	// 1. Defaults
	cfg := Defaults()

	// 2. File (if provided); absent keys keep their defaults
	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	// 3. Environment (highest priority)
	l.mergeEnvConfig(&cfg)
	l.warnUnknownEnv()

	// SAFETY: Ensure DataDir is absolute so relative paths resolve predictably
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.Database.Path != "" && !filepath.IsAbs(cfg.Database.Path) {
		cfg.Database.Path = filepath.Join(cfg.DataDir, cfg.Database.Path)
	}

	// 4. Version from binary
	cfg.Version = l.version

	// 5. Validate final configuration
	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes a YAML file onto cfg with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	data = []byte(expandEnv(string(data)))

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	// Strict: Ensure no multiple documents or trailing content
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

// mergeEnvConfig applies RECSCHED_* overrides.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.DataDir = l.envString(EnvPrefix+"DATA_DIR", cfg.DataDir)

	s := &cfg.Scheduler
	s.Interval = l.envDuration(EnvPrefix+"SCHEDULER_INTERVAL", s.Interval)
	s.MaxInterval = l.envDuration(EnvPrefix+"SCHEDULER_MAX_INTERVAL", s.MaxInterval)
	s.Jitter = l.envDuration(EnvPrefix+"SCHEDULER_JITTER", s.Jitter)
	s.StartupDelay = l.envDuration(EnvPrefix+"SCHEDULER_STARTUP_DELAY", s.StartupDelay)
	s.AutoResolve = l.envBool(EnvPrefix+"SCHEDULER_AUTO_RESOLVE", s.AutoResolve)
	s.ExclusiveCards = l.envBool(EnvPrefix+"SCHEDULER_EXCLUSIVE_CARDS", s.ExclusiveCards)
	s.Horizon = l.envDuration(EnvPrefix+"SCHEDULER_HORIZON", s.Horizon)
	s.Lookback = l.envDuration(EnvPrefix+"SCHEDULER_LOOKBACK", s.Lookback)
	s.Timezone = l.envString(EnvPrefix+"SCHEDULER_TIMEZONE", s.Timezone)
	s.NotifyRate = l.envFloat(EnvPrefix+"SCHEDULER_NOTIFY_RATE", s.NotifyRate)
	s.SnapshotPath = l.envString(EnvPrefix+"SCHEDULER_SNAPSHOT_PATH", s.SnapshotPath)
	s.BreakerFailures = l.envInt(EnvPrefix+"SCHEDULER_BREAKER_FAILURES", s.BreakerFailures)
	s.BreakerReset = l.envDuration(EnvPrefix+"SCHEDULER_BREAKER_RESET", s.BreakerReset)

	cfg.Database.Path = l.envString(EnvPrefix+"DB_PATH", cfg.Database.Path)
	cfg.Database.BusyTimeout = l.envDuration(EnvPrefix+"DB_BUSY_TIMEOUT", cfg.Database.BusyTimeout)
	cfg.Database.MaxOpenConns = l.envInt(EnvPrefix+"DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)

	cfg.History.Backend = l.envString(EnvPrefix+"HISTORY_BACKEND", cfg.History.Backend)

	cfg.Redis.Enabled = l.envBool(EnvPrefix+"REDIS_ENABLED", cfg.Redis.Enabled)
	cfg.Redis.Addr = l.envString(EnvPrefix+"REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = l.envString(EnvPrefix+"REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = l.envInt(EnvPrefix+"REDIS_DB", cfg.Redis.DB)
	cfg.Redis.Prefix = l.envString(EnvPrefix+"REDIS_PREFIX", cfg.Redis.Prefix)

	cfg.Listings.WatchPath = l.envString(EnvPrefix+"LISTINGS_WATCH_PATH", cfg.Listings.WatchPath)
	cfg.Listings.Debounce = l.envDuration(EnvPrefix+"LISTINGS_DEBOUNCE", cfg.Listings.Debounce)
	cfg.Listings.FuzzyDistance = l.envInt(EnvPrefix+"LISTINGS_FUZZY_DISTANCE", cfg.Listings.FuzzyDistance)
	cfg.Listings.Retention = l.envDuration(EnvPrefix+"LISTINGS_RETENTION", cfg.Listings.Retention)

	cfg.API.ListenAddr = l.envString(EnvPrefix+"API_LISTEN", cfg.API.ListenAddr)
	cfg.API.RateLimit = l.envInt(EnvPrefix+"API_RATE_LIMIT", cfg.API.RateLimit)
	cfg.API.ReadTimeout = l.envDuration(EnvPrefix+"API_READ_TIMEOUT", cfg.API.ReadTimeout)
	cfg.API.WriteTimeout = l.envDuration(EnvPrefix+"API_WRITE_TIMEOUT", cfg.API.WriteTimeout)

	cfg.Telemetry.Enabled = l.envBool(EnvPrefix+"TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString(EnvPrefix+"TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString(EnvPrefix+"TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat(EnvPrefix+"TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
	cfg.Telemetry.Environment = l.envString(EnvPrefix+"TELEMETRY_ENVIRONMENT", cfg.Telemetry.Environment)

	cfg.Log.Level = l.envString(EnvPrefix+"LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = l.envString(EnvPrefix+"LOG_FORMAT", cfg.Log.Format)
}

// warnUnknownEnv logs RECSCHED_* variables nothing consumed, usually typos.
func (l *Loader) warnUnknownEnv() {
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		if _, ok := l.ConsumedEnvKeys[key]; ok {
			continue
		}
		logger := configLogger()
		logger.Warn().Str(log.FieldKey, key).Msg("unknown environment variable ignored")
	}
}
