// Package env reads typed configuration values from the process environment.
// Every parse failure names the offending variable.
package env

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

func String(key string, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func Duration(key string, def time.Duration) (time.Duration, error) {
	return parsed(key, def, time.ParseDuration)
}

func Bool(key string, def bool) (bool, error) {
	return parsed(key, def, strconv.ParseBool)
}

func Int(key string, def int) (int, error) {
	return parsed(key, def, strconv.Atoi)
}

// OneOf returns the lower-cased value of key, which must be one of allowed.
func OneOf(key string, def string, allowed ...string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(String(key, def)))
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	return "", fmt.Errorf("parse %s: %q not in %v", key, v, allowed)
}

// LogLevel parses key as a slog level name (debug, info, warn, error).
func LogLevel(key string, def slog.Level) (slog.Level, error) {
	return parsed(key, def, func(v string) (slog.Level, error) {
		var level slog.Level
		err := level.UnmarshalText([]byte(v))
		return level, err
	})
}

// parsed applies parse to the trimmed value of key. Unset or blank keys
// yield def.
func parsed[T any](key string, def T, parse func(string) (T, error)) (T, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	v, err := parse(strings.TrimSpace(raw))
	if err != nil {
		var zero T
		return zero, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}
