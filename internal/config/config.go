// Package config assembles runledger configuration from the environment and
// wires the graph backend, repository, planner and run service from it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/animus-labs/runledger/internal/platform/auth"
	"github.com/animus-labs/runledger/internal/platform/env"
	"github.com/animus-labs/runledger/internal/platform/httpserver"
	"github.com/animus-labs/runledger/internal/platform/objectstore"
	"github.com/animus-labs/runledger/internal/platform/postgres"
	"github.com/animus-labs/runledger/internal/service/runs"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMinIO    = "minio"

	serviceName = "runledger"
)

type Config struct {
	Backend         string
	IndexURL        string
	RunsURL         string
	TemplatesURL    string
	PlansURL        string
	Namespace       string
	OutputRoot      string
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        slog.Level

	// Bindings maps unproduced data variables to data object ids.
	Bindings map[string]string

	// Defaults are step parameter values applied when a step leaves them unset.
	Defaults map[string]string

	Auth     auth.Config
	Postgres postgres.Config
	MinIO    objectstore.Config
}

func FromEnv() (Config, error) {
	backend, err := env.OneOf("RUNLEDGER_GRAPH_BACKEND", BackendMemory, BackendMemory, BackendPostgres, BackendMinIO)
	if err != nil {
		return Config{}, err
	}
	shutdownTimeout, err := env.Duration("RUNLEDGER_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	level, err := env.LogLevel("RUNLEDGER_LOG_LEVEL", slog.LevelInfo)
	if err != nil {
		return Config{}, err
	}
	bindings, err := keyValues("RUNLEDGER_INPUT_BINDINGS")
	if err != nil {
		return Config{}, err
	}
	defaults, err := keyValues("RUNLEDGER_PARAM_DEFAULTS")
	if err != nil {
		return Config{}, err
	}

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Auth:            authCfg,
		Backend:         backend,
		IndexURL:        env.String("RUNLEDGER_INDEX_URL", "http://localhost/runledger/index"),
		RunsURL:         env.String("RUNLEDGER_RUNS_URL", "http://localhost/runledger/runs"),
		TemplatesURL:    env.String("RUNLEDGER_TEMPLATES_URL", "http://localhost/runledger/templates"),
		PlansURL:        env.String("RUNLEDGER_PLANS_URL", "http://localhost/runledger/plans"),
		Namespace:       env.String("RUNLEDGER_ONTOLOGY_NS", "http://localhost/runledger/ontology/execution#"),
		OutputRoot:      env.String("RUNLEDGER_OUTPUT_ROOT", "/var/lib/runledger/outputs"),
		HTTPAddr:        env.String("RUNLEDGER_HTTP_ADDR", ":8090"),
		ShutdownTimeout: shutdownTimeout,
		LogLevel:        level,
		Bindings:        bindings,
		Defaults:        defaults,
	}

	switch backend {
	case BackendPostgres:
		if cfg.Postgres, err = postgres.ConfigFromEnv(); err != nil {
			return Config{}, fmt.Errorf("postgres config: %w", err)
		}
	case BackendMinIO:
		if cfg.MinIO, err = objectstore.ConfigFromEnv(); err != nil {
			return Config{}, fmt.Errorf("minio config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.IndexURL) == "" {
		return errors.New("RUNLEDGER_INDEX_URL is required")
	}
	if strings.TrimSpace(c.Namespace) == "" {
		return errors.New("RUNLEDGER_ONTOLOGY_NS is required")
	}
	if strings.TrimSpace(c.OutputRoot) == "" {
		return errors.New("RUNLEDGER_OUTPUT_ROOT is required")
	}
	if err := c.Locations().Validate(); err != nil {
		return err
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("RUNLEDGER_SHUTDOWN_TIMEOUT must be positive")
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	switch c.Backend {
	case BackendMemory:
	case BackendPostgres:
		return c.Postgres.Validate()
	case BackendMinIO:
		return c.MinIO.Validate()
	default:
		return fmt.Errorf("unknown graph backend %q", c.Backend)
	}
	return nil
}

func (c Config) Locations() runs.Locations {
	return runs.Locations{
		RunsURL:      c.RunsURL,
		TemplatesURL: c.TemplatesURL,
		PlansURL:     c.PlansURL,
	}
}

func (c Config) HTTPServer() httpserver.Config {
	return httpserver.Config{
		Service:         serviceName,
		Addr:            c.HTTPAddr,
		ShutdownTimeout: c.ShutdownTimeout,
	}
}

// keyValues parses "k=v,k2=v2". An unset or blank variable yields nil.
func keyValues(key string) (map[string]string, error) {
	raw := strings.TrimSpace(env.String(key, ""))
	if raw == "" {
		return nil, nil
	}
	out := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" {
			return nil, fmt.Errorf("parse %s: malformed pair %q", key, pair)
		}
		out[k] = v
	}
	return out, nil
}
