// Package cli implements the runledger command tree.
package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/animus-labs/runledger/internal/api"
	"github.com/animus-labs/runledger/internal/platform/auth"
	"github.com/animus-labs/runledger/internal/platform/httpserver"
)

// Runs is the run service the commands drive.
type Runs interface {
	api.RunService
	Purge(ctx context.Context) error
}

// Session is an opened run service plus the readiness checks of its backend.
type Session struct {
	Runs   Runs
	Checks []httpserver.ReadinessCheck
	Close  func() error
}

type Env struct {
	Out    io.Writer
	Fs     afero.Fs
	Logger *slog.Logger

	// Open connects to the configured graph backend.
	Open func(ctx context.Context) (*Session, error)

	// Serve blocks serving handler until ctx is done.
	Serve func(ctx context.Context, handler http.Handler) error

	// Authenticator guards the served API. Nil leaves it open.
	Authenticator auth.Authenticator
}

func NewRootCommand(env Env) *cobra.Command {
	if env.Out == nil {
		env.Out = os.Stdout
	}
	if env.Fs == nil {
		env.Fs = afero.NewOsFs()
	}
	if env.Logger == nil {
		env.Logger = slog.Default()
	}

	root := &cobra.Command{
		Use:           "runledger",
		Short:         "Track and re-plan workflow runs",
		Long:          `runledger keeps the runtime record of workflow runs in a graph store: it lists, inspects, deletes, repairs and re-plans them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(env.Out)
	root.AddCommand(
		newListCmd(env),
		newShowCmd(env),
		newExistsCmd(env),
		newDeleteCmd(env),
		newPurgeCmd(env),
		newRepairCmd(env),
		newSubmitCmd(env),
		newRePlanCmd(env),
		newServeCmd(env),
	)
	return root
}

// withSession opens the backend, runs fn and always closes the session.
func withSession(cmd *cobra.Command, env Env, fn func(ctx context.Context, s *Session) error) (err error) {
	if env.Open == nil {
		return errors.New("no run backend configured")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	session, err := env.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if session.Close == nil {
			return
		}
		if cerr := session.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, session)
}
