// Package outputs removes the files a run's steps declared as outputs.
package outputs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/afero"

	"github.com/animus-labs/runledger/internal/domain"
)

// Cleaner deletes step output files and their metadata sidecars.
type Cleaner struct {
	fs     afero.Fs
	logger *slog.Logger
}

func NewCleaner(fs afero.Fs, logger *slog.Logger) *Cleaner {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{fs: fs, logger: logger}
}

// Remove deletes every output file of ep and its metadata sidecar. Files that
// are already gone are skipped. The first other failure aborts the sweep.
func (c *Cleaner) Remove(ctx context.Context, ep domain.ExecutionPlan) error {
	if c == nil || c.fs == nil {
		return fmt.Errorf("output cleaner not initialized")
	}
	for _, step := range ep.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, file := range step.OutputFiles {
			for _, path := range []string{file.Location, file.MetadataLocation()} {
				if path == "" || path == ".met" {
					continue
				}
				if err := c.fs.Remove(path); err != nil {
					if errors.Is(err, os.ErrNotExist) {
						continue
					}
					return fmt.Errorf("remove output %s: %w", path, err)
				}
				c.logger.Debug("output removed", "step_id", step.ID, "path", path)
			}
		}
	}
	return nil
}
