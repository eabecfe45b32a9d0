package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/practicos/internal/log"
	"github.com/rs/zerolog"
)

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "key") || strings.Contains(k, "token") ||
		strings.Contains(k, "password") || strings.Contains(k, "database_url")
}

// ParseString reads a string from the environment or returns defaultValue.
// Empty variables count as unset.
func ParseString(key, defaultValue string) string {
	logger := log.WithComponent("config")
	if value, ok := os.LookupEnv(key); ok && value != "" {
		event := logger.Debug().Str("key", key).Str("source", "environment")
		if isSensitive(key) {
			event.Bool("sensitive", true).Msg("using environment variable")
		} else {
			event.Str("value", value).Msg("using environment variable")
		}
		return value
	}
	logDefault(logger, key).Msg("using default value")
	return defaultValue
}

// ParseInt reads an integer, falling back to defaultValue on parse errors.
func ParseInt(key string, defaultValue int) int {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		logDefault(logger, key).Int("default", defaultValue).Msg("using default value")
		return defaultValue
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Int("default", defaultValue).
			Msg("invalid integer in environment variable, using default")
		return defaultValue
	}
	logger.Debug().Str("key", key).Int("value", i).Str("source", "environment").Msg("using environment variable")
	return i
}

// ParseFloat reads a float, falling back to defaultValue on parse errors.
func ParseFloat(key string, defaultValue float64) float64 {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		logDefault(logger, key).Float64("default", defaultValue).Msg("using default value")
		return defaultValue
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Float64("default", defaultValue).
			Msg("invalid number in environment variable, using default")
		return defaultValue
	}
	return f
}

// ParseBool treats "true", "1" and "t" (any case) as true and every other
// non-empty value as false.
func ParseBool(key string, defaultValue bool) bool {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		logDefault(logger, key).Bool("default", defaultValue).Msg("using default value")
		return defaultValue
	}
	b := parseFlag(v)
	logger.Debug().Str("key", key).Bool("value", b).Str("source", "environment").Msg("using environment variable")
	return b
}

func parseFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "t":
		return true
	default:
		return false
	}
}

// ParseDuration reads a Go duration ("5s"), falling back on parse errors.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		logDefault(logger, key).Dur("default", defaultValue).Msg("using default value")
		return defaultValue
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Dur("default", defaultValue).
			Msg("invalid duration in environment variable, using default")
		return defaultValue
	}
	return d
}

func logDefault(logger zerolog.Logger, key string) *zerolog.Event {
	return logger.Debug().Str("key", key).Str("source", "default")
}
