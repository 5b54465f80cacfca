package graphrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/runledger/internal/domain"
	"github.com/animus-labs/runledger/internal/repo"
)

// DeleteRun removes the run with id: its expanded and seeded templates, its
// execution plan, its output files, its private record and finally its index
// entry. The first failure stops the cascade and is reported as a
// *repo.DeleteError; nothing already removed is restored.
func (r *Repository) DeleteRun(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return err
	}
	return r.deleteRun(ctx, strings.TrimSpace(id))
}

func (r *Repository) deleteRun(ctx context.Context, id string) error {
	index, err := r.loadIndex(ctx)
	if err != nil {
		return r.deleteFailed(id, repo.StageIndex, err)
	}
	plan, err := r.loadRun(ctx, index, id, repo.LoadFull)
	detailMissing := errors.Is(err, repo.ErrDetailMissing)
	if err != nil && !detailMissing {
		if errors.Is(err, repo.ErrNotFound) {
			return err
		}
		return r.deleteFailed(id, repo.StageDetailRecord, err)
	}

	if !detailMissing {
		documents := []struct {
			stage repo.DeleteStage
			id    string
		}{
			{repo.StageExpandedTemplate, plan.ExpandedTemplateID},
			{repo.StageSeededTemplate, plan.SeededTemplateID},
			{repo.StageExecutionPlan, plan.ExecutionPlanID},
		}
		for _, doc := range documents {
			if doc.id == "" {
				continue
			}
			if err := r.docs.Delete(ctx, doc.id); err != nil {
				return r.deleteFailed(id, doc.stage, err)
			}
		}

		if plan.Plan != nil && r.outputs != nil {
			if err := r.outputs.Remove(ctx, *plan.Plan); err != nil {
				return r.deleteFailed(id, repo.StageOutputFiles, err)
			}
		}

		detail, err := r.graphs.Open(ctx, plan.URL())
		if err != nil {
			return r.deleteFailed(id, repo.StageDetailRecord, err)
		}
		if err := detail.Delete(ctx); err != nil {
			return r.deleteFailed(id, repo.StageDetailRecord, err)
		}
	} else {
		r.logger.Warn("deleting run without detail record", "run_id", id)
	}

	index.RemoveAllWith(id)
	if err := index.Save(ctx); err != nil {
		return r.deleteFailed(id, repo.StageIndex, err)
	}
	r.logger.Info("run deleted", "run_id", id)
	return nil
}

func (r *Repository) deleteFailed(id string, stage repo.DeleteStage, err error) error {
	r.logger.Error("delete run failed", "run_id", id, "stage", string(stage), "error", err)
	return &repo.DeleteError{RunID: id, Stage: stage, Err: err}
}

// Purge deletes every indexed run, then drops the master index itself. A run
// that fails to delete does not stop the sweep; the failures are joined and
// the index is kept so those runs stay listed. The repository stays open on an
// empty index.
func (r *Repository) Purge(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return err
	}
	index, err := r.loadIndex(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, ind := range index.IndividualsOf(r.vocab.execution, true) {
		if err := r.deleteRun(ctx, ind.ID); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		r.logger.Warn("purge incomplete, index kept", "failed_runs", len(errs))
		return errors.Join(errs...)
	}

	if index, err = r.loadIndex(ctx); err != nil {
		return err
	}
	if err := index.Delete(ctx); err != nil {
		r.logger.Error("drop index failed", "error", err)
		return fmt.Errorf("drop index: %w", err)
	}
	r.logger.Info("run index purged")
	return nil
}

// Repair reconciles the index entry of run id with its private record. When the
// private record exists its summary is mirrored into the index; when it is
// gone the index entry is dropped.
func (r *Repository) Repair(ctx context.Context, id string) (repo.RepairOutcome, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("run id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return "", err
	}

	detail, err := r.graphs.Open(ctx, domain.URLOf(id))
	if err != nil {
		return "", fmt.Errorf("open run record: %w", err)
	}
	index, err := r.loadIndex(ctx)
	if err != nil {
		return "", err
	}
	indexed := index.Individual(id) != nil

	if detail.Individual(id) == nil {
		if !indexed {
			return "", fmt.Errorf("run %q: %w", id, repo.ErrNotFound)
		}
		index.RemoveAllWith(id)
		if err := index.Save(ctx); err != nil {
			return "", fmt.Errorf("drop index entry: %w", err)
		}
		r.logger.Info("dangling index entry dropped", "run_id", id)
		return repo.RepairDropped, nil
	}

	plan := domain.NewRuntimePlan(id)
	if plan.Info, err = r.vocab.readRuntimeInfo(detail, id); err != nil {
		return "", err
	}
	if err := r.vocab.readSteps(detail, plan, r.logger); err != nil {
		return "", err
	}
	r.vocab.readProvenance(detail, plan)
	r.vocab.mirrorRun(index, plan)
	if err := index.Save(ctx); err != nil {
		return "", fmt.Errorf("mirror run into index: %w", err)
	}
	r.logger.Info("run index entry repaired", "run_id", id, "was_indexed", indexed)
	return repo.RepairMirrored, nil
}
