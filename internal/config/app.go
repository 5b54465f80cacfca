package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/spf13/afero"

	"github.com/animus-labs/runledger/internal/catalog"
	"github.com/animus-labs/runledger/internal/graph"
	"github.com/animus-labs/runledger/internal/graph/inmemory"
	"github.com/animus-labs/runledger/internal/graph/objstore"
	"github.com/animus-labs/runledger/internal/graph/pgstore"
	"github.com/animus-labs/runledger/internal/outputs"
	"github.com/animus-labs/runledger/internal/planner"
	"github.com/animus-labs/runledger/internal/planner/pipeline"
	"github.com/animus-labs/runledger/internal/platform/httpserver"
	"github.com/animus-labs/runledger/internal/platform/objectstore"
	"github.com/animus-labs/runledger/internal/platform/postgres"
	"github.com/animus-labs/runledger/internal/repo/graphrepo"
	"github.com/animus-labs/runledger/internal/service/runs"
	storeobjects "github.com/animus-labs/runledger/internal/storage/objectstore"
)

const (
	startupTimeout = 5 * time.Second
	checkTimeout   = 750 * time.Millisecond
)

// App is a fully wired runledger instance.
type App struct {
	Runs       *runs.Service
	Repository *graphrepo.Repository
	Checks     []httpserver.ReadinessCheck

	closers []func() error
}

// Options override collaborators for embedding and tests.
type Options struct {
	// Backend replaces the backend selected by Config.Backend.
	Backend graph.Backend

	// Fs holds step output files. Defaults to the OS filesystem.
	Fs afero.Fs
}

func Build(ctx context.Context, cfg Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	app := &App{}

	backend := opts.Backend
	if backend == nil {
		var err error
		if backend, err = app.openBackend(ctx, cfg, logger); err != nil {
			_ = app.Close()
			return nil, err
		}
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	graphs := graph.NewFactory(backend)
	docs := catalog.New(graphs, cfg.Namespace)
	repository, err := graphrepo.Open(ctx, graphrepo.Config{IndexURL: cfg.IndexURL, Namespace: cfg.Namespace}, graphrepo.Deps{
		Graphs:    graphs,
		Documents: docs,
		Outputs:   outputs.NewCleaner(fs, logger),
		Logger:    logger,
	})
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("open run repository: %w", err)
	}
	app.Repository = repository
	app.closers = append([]func() error{repository.Close}, app.closers...)

	p, err := planner.New(docs, pipeline.NewFactory(pipeline.Config{
		OutputRoot: cfg.OutputRoot,
		Bindings:   cfg.Bindings,
		Defaults:   cfg.Defaults,
	}), logger)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("init planner: %w", err)
	}
	app.Runs = runs.New(repository, p, docs, cfg.Locations(), logger)
	return app, nil
}

func (a *App) openBackend(ctx context.Context, cfg Config, logger *slog.Logger) (graph.Backend, error) {
	switch cfg.Backend {
	case BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("database unavailable: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		backend := pgstore.New(db)
		startupCtx, cancel := context.WithTimeout(ctx, startupTimeout)
		defer cancel()
		if err := backend.EnsureSchema(startupCtx); err != nil {
			return nil, err
		}
		a.Checks = append(a.Checks, pingCheck(db))
		logger.Info("graph backend ready", "backend", BackendPostgres)
		return backend, nil

	case BackendMinIO:
		client, err := objectstore.NewMinIOClient(cfg.MinIO)
		if err != nil {
			return nil, fmt.Errorf("object store client init failed: %w", err)
		}
		startupCtx, cancel := context.WithTimeout(ctx, startupTimeout)
		defer cancel()
		if err := objectstore.EnsureBucket(startupCtx, client, cfg.MinIO); err != nil {
			return nil, fmt.Errorf("object store unavailable: %w", err)
		}
		store, err := storeobjects.NewMinioStoreWithClient(client, cfg.MinIO.BucketGraphs)
		if err != nil {
			return nil, err
		}
		a.Checks = append(a.Checks, bucketCheck(client, cfg.MinIO))
		logger.Info("graph backend ready", "backend", BackendMinIO, "bucket", cfg.MinIO.BucketGraphs)
		return objstore.New(store), nil

	default:
		logger.Warn("graph backend is in-memory, records are lost on exit")
		return inmemory.New(), nil
	}
}

func pingCheck(db *sql.DB) httpserver.ReadinessCheck {
	return httpserver.ReadinessCheck{
		Name: "postgres",
		Check: func(ctx context.Context) error {
			checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			return db.PingContext(checkCtx)
		},
	}
}

func bucketCheck(client *minio.Client, cfg objectstore.Config) httpserver.ReadinessCheck {
	return httpserver.ReadinessCheck{
		Name: "minio",
		Check: func(ctx context.Context) error {
			checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			return objectstore.CheckBucket(checkCtx, client, cfg)
		},
	}
}

// Close releases the repository and backend connections in reverse order.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
