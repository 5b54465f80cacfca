package env

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestString_Default(t *testing.T) {
	got := String("ENV_STRING_DOES_NOT_EXIST", "fallback")
	if got != "fallback" {
		t.Fatalf("String()=%q, want fallback", got)
	}
}

func TestDuration_Override(t *testing.T) {
	t.Setenv("ENV_DURATION_KEY", "250ms")
	got, err := Duration("ENV_DURATION_KEY", 5*time.Second)
	if err != nil {
		t.Fatalf("Duration() err=%v", err)
	}
	if got != 250*time.Millisecond {
		t.Fatalf("Duration()=%v, want 250ms", got)
	}
}

func TestBool_Invalid(t *testing.T) {
	t.Setenv("ENV_BOOL_KEY_INVALID", "nope")
	if _, err := Bool("ENV_BOOL_KEY_INVALID", false); err == nil {
		t.Fatalf("Bool() expected error")
	}
}

func TestInt_Override(t *testing.T) {
	t.Setenv("ENV_INT_KEY", "12")
	got, err := Int("ENV_INT_KEY", 3)
	if err != nil || got != 12 {
		t.Fatalf("Int()=%d,%v, want 12", got, err)
	}
}

func TestOneOf(t *testing.T) {
	t.Setenv("ENV_ONEOF_KEY", " Postgres ")
	got, err := OneOf("ENV_ONEOF_KEY", "memory", "memory", "postgres")
	if err != nil || got != "postgres" {
		t.Fatalf("OneOf()=%q,%v, want postgres", got, err)
	}
	t.Setenv("ENV_ONEOF_KEY", "sqlite")
	if _, err := OneOf("ENV_ONEOF_KEY", "memory", "memory", "postgres"); err == nil {
		t.Fatalf("OneOf() expected error")
	}
}

func TestLogLevel(t *testing.T) {
	t.Setenv("ENV_LOG_LEVEL", "debug")
	got, err := LogLevel("ENV_LOG_LEVEL", slog.LevelInfo)
	if err != nil || got != slog.LevelDebug {
		t.Fatalf("LogLevel()=%v,%v, want debug", got, err)
	}
	got, err = LogLevel("ENV_LOG_LEVEL_MISSING", slog.LevelWarn)
	if err != nil || got != slog.LevelWarn {
		t.Fatalf("LogLevel()=%v,%v, want default", got, err)
	}
}

func TestBlankValueFallsBackToDefault(t *testing.T) {
	t.Setenv("ENV_BLANK_INT", "  ")
	got, err := Int("ENV_BLANK_INT", 7)
	if err != nil || got != 7 {
		t.Fatalf("Int()=%d,%v, want default 7", got, err)
	}
}

func TestParseErrorNamesKey(t *testing.T) {
	t.Setenv("ENV_BAD_DURATION", "forever")
	_, err := Duration("ENV_BAD_DURATION", time.Second)
	if err == nil || !strings.Contains(err.Error(), "ENV_BAD_DURATION") {
		t.Fatalf("expected error naming the key, got %v", err)
	}
}
