// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/recsched/internal/log"
	"github.com/rs/zerolog"
)

func configLogger() zerolog.Logger { return log.WithComponent("config") }

// parseEnv reads key and converts it with parse. Missing or empty variables
// and parse errors fall back to defaultValue; the choice is logged.
func parseEnv[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	logger := configLogger()
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		logger.Debug().
			Str(log.FieldKey, key).
			Interface("default", defaultValue).
			Str("source", "default").
			Msg("using default value")
		return defaultValue
	}
	parsed, err := parse(v)
	if err != nil {
		logger.Warn().
			Err(err).
			Str(log.FieldKey, key).
			Interface("default", defaultValue).
			Msg("invalid environment variable, using default")
		return defaultValue
	}
	ev := logger.Debug().Str(log.FieldKey, key).Str("source", "environment")
	if isSensitive(key) {
		ev = ev.Bool("sensitive", true)
	} else {
		ev = ev.Str("value", v)
	}
	ev.Msg("using environment variable")
	return parsed
}

func isSensitive(key string) bool {
	lowerKey := strings.ToLower(key)
	return strings.Contains(lowerKey, "token") || strings.Contains(lowerKey, "password")
}

// ParseString reads a string from environment variable or returns default value.
func ParseString(key, defaultValue string) string {
	return parseEnv(key, defaultValue, func(s string) (string, error) { return s, nil })
}

// ParseInt reads an integer from environment variable or returns default value.
func ParseInt(key string, defaultValue int) int {
	return parseEnv(key, defaultValue, strconv.Atoi)
}

// ParseDuration reads a duration in Go duration format (e.g. "5s").
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return parseEnv(key, defaultValue, time.ParseDuration)
}

// ParseFloat reads a float64 from environment variable or returns default value.
func ParseFloat(key string, defaultValue float64) float64 {
	return parseEnv(key, defaultValue, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

// ParseBool reads a boolean from environment variable or returns default value.
// It accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func ParseBool(key string, defaultValue bool) bool {
	return parseEnv(key, defaultValue, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return false, fmt.Errorf("invalid boolean %q", s)
	})
}

// expandEnv expands environment variables in the format ${VAR} or $VAR
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}
