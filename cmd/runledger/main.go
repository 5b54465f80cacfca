package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"

	"github.com/animus-labs/runledger/internal/cli"
	"github.com/animus-labs/runledger/internal/config"
	"github.com/animus-labs/runledger/internal/platform/httpserver"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	fs := afero.NewOsFs()

	root := cli.NewRootCommand(cli.Env{
		Out:           os.Stdout,
		Fs:            fs,
		Logger:        logger,
		Authenticator: cfg.Auth.Authenticator(),
		Open: func(ctx context.Context) (*cli.Session, error) {
			app, err := config.Build(ctx, cfg, logger, config.Options{Fs: fs})
			if err != nil {
				return nil, err
			}
			return &cli.Session{Runs: app.Runs, Checks: app.Checks, Close: app.Close}, nil
		},
		Serve: func(ctx context.Context, handler http.Handler) error {
			err := httpserver.Run(ctx, logger, cfg.HTTPServer(), handler)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		},
	})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "runledger: %v\n", err)
		os.Exit(1)
	}
}
