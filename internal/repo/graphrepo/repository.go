// Package graphrepo implements the run repository on top of graph stores: one
// private detail record per run at the run's url, plus a master index holding a
// summary of every run.
//
// Every operation commits each touched store independently. A failure between
// the private record commit and the index commit leaves the two out of step;
// Repair re-mirrors the index from the private record.
//
// The master index is read from the backend at the start of every operation
// and written back at its end, so a change whose commit failed is dropped with
// the operation and runs written by other processes are seen. Two processes
// mutating the index at the same instant can still overwrite each other.
package graphrepo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/animus-labs/runledger/internal/catalog"
	"github.com/animus-labs/runledger/internal/domain"
	"github.com/animus-labs/runledger/internal/graph"
	"github.com/animus-labs/runledger/internal/repo"
)

var ErrClosed = errors.New("run repository closed")

// Documents loads and drops the template and execution plan records a run
// links to.
type Documents interface {
	LoadExecutionPlan(ctx context.Context, id string) (domain.ExecutionPlan, error)
	Delete(ctx context.Context, id string) error
}

// OutputCleaner removes the output files declared by an execution plan.
type OutputCleaner interface {
	Remove(ctx context.Context, plan domain.ExecutionPlan) error
}

type Config struct {
	IndexURL  string
	Namespace string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.IndexURL) == "" {
		return errors.New("index url is required")
	}
	if strings.TrimSpace(c.Namespace) == "" {
		return errors.New("ontology namespace is required")
	}
	return nil
}

type Deps struct {
	Graphs    *graph.Factory
	Documents Documents
	Outputs   OutputCleaner
	Logger    *slog.Logger
}

// Repository is the graph-backed run repository. Its methods are safe for
// concurrent use; the in-memory RuntimePlan values it hands out are not.
type Repository struct {
	mu       sync.Mutex
	graphs   *graph.Factory
	docs     Documents
	outputs  OutputCleaner
	logger   *slog.Logger
	vocab    vocabulary
	indexURL string
	closed   bool
}

var _ repo.RunRepository = (*Repository)(nil)

// Open checks that the master index can be loaded. The repository serves it
// until Close.
func Open(ctx context.Context, cfg Config, deps Deps) (*Repository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Graphs == nil {
		return nil, errors.New("graph factory is required")
	}
	if deps.Documents == nil {
		return nil, errors.New("document store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Repository{
		graphs:   deps.Graphs,
		docs:     deps.Documents,
		outputs:  deps.Outputs,
		logger:   logger,
		vocab:    newVocabulary(cfg.Namespace),
		indexURL: strings.TrimSpace(cfg.IndexURL),
	}
	if _, err := r.loadIndex(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Close releases the master index. Later calls fail with ErrClosed.
func (r *Repository) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *Repository) ready() error {
	if r == nil || r.closed {
		return ErrClosed
	}
	return nil
}

// loadIndex reads the committed master index.
func (r *Repository) loadIndex(ctx context.Context) (graph.Store, error) {
	index, err := r.graphs.Open(ctx, r.indexURL)
	if err != nil {
		r.logger.Error("open index failed", "url", r.indexURL, "error", err)
		return nil, fmt.Errorf("open index: %w", err)
	}
	return index, nil
}

// StartLogging writes the private record of plan and registers it in the
// master index. The two commits are independent.
func (r *Repository) StartLogging(ctx context.Context, plan *domain.RuntimePlan) error {
	if err := validatePlan(plan); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return err
	}

	detail := r.graphs.New()
	r.vocab.writeRun(detail, plan)
	if err := detail.SaveAs(ctx, plan.URL()); err != nil {
		r.logger.Error("write run record failed", "run_id", plan.ID, "url", plan.URL(), "error", err)
		return fmt.Errorf("write run record: %w", err)
	}

	index, err := r.loadIndex(ctx)
	if err != nil {
		return fmt.Errorf("register run: %w", err)
	}
	r.vocab.mirrorRun(index, plan)
	if err := index.Save(ctx); err != nil {
		r.logger.Error("register run in index failed", "run_id", plan.ID, "error", err)
		return fmt.Errorf("register run: %w", err)
	}
	r.logger.Info("run logging started", "run_id", plan.ID, "steps", plan.Queue.Len())
	return nil
}

// UpdatePlanRuntimeInfo rewrites the runtime info of plan in its private
// record, then in the master index.
func (r *Repository) UpdatePlanRuntimeInfo(ctx context.Context, plan *domain.RuntimePlan) error {
	if err := validatePlan(plan); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return err
	}

	detail, err := r.graphs.Open(ctx, plan.URL())
	if err != nil {
		r.logger.Warn("open run record failed", "run_id", plan.ID, "error", err)
		return fmt.Errorf("open run record: %w", err)
	}
	if detail.Individual(plan.ID) == nil {
		return fmt.Errorf("update run %s: %w", plan.ID, repo.ErrDetailMissing)
	}
	r.vocab.writeRuntimeInfo(detail, plan.ID, plan.Info)
	if err := detail.Save(ctx); err != nil {
		r.logger.Error("update run record failed", "run_id", plan.ID, "error", err)
		return fmt.Errorf("update run record: %w", err)
	}

	index, err := r.loadIndex(ctx)
	if err != nil {
		return fmt.Errorf("update run index: %w", err)
	}
	if index.Individual(plan.ID) == nil {
		index.CreateIndividual(plan.ID, r.vocab.execution)
	}
	r.vocab.writeRuntimeInfo(index, plan.ID, plan.Info)
	if err := index.Save(ctx); err != nil {
		r.logger.Error("update run in index failed", "run_id", plan.ID, "error", err)
		return fmt.Errorf("update run index: %w", err)
	}
	return nil
}

// UpdateStepRuntimeInfo rewrites the runtime info of step in the private
// record of its plan. The step record is created on first update and linked
// to the plan.
func (r *Repository) UpdateStepRuntimeInfo(ctx context.Context, step *domain.RuntimeStep) error {
	if step == nil || strings.TrimSpace(step.ID) == "" {
		return errors.New("step id is required")
	}
	if strings.TrimSpace(step.PlanID) == "" {
		return fmt.Errorf("step %s is not attached to a run", step.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return err
	}

	detail, err := r.graphs.Open(ctx, domain.URLOf(step.PlanID))
	if err != nil {
		r.logger.Warn("open run record failed", "run_id", step.PlanID, "step_id", step.ID, "error", err)
		return fmt.Errorf("open run record: %w", err)
	}
	if detail.Individual(step.PlanID) == nil {
		return fmt.Errorf("update step %s: %w", step.ID, repo.ErrDetailMissing)
	}
	if detail.Individual(step.ID) == nil {
		r.vocab.writeStep(detail, step)
		detail.AddProperty(step.PlanID, r.vocab.hasStep, graph.Resource(step.ID))
	} else {
		r.vocab.writeRuntimeInfo(detail, step.ID, step.Info)
	}
	if err := detail.Save(ctx); err != nil {
		r.logger.Error("update step record failed", "run_id", step.PlanID, "step_id", step.ID, "error", err)
		return fmt.Errorf("update step record: %w", err)
	}
	return nil
}

// RunList returns every indexed run. Runs are summaries with an empty queue
// unless EffectiveMode escalates them to a full load. A run whose private
// record is missing is listed as a summary.
func (r *Repository) RunList(ctx context.Context) ([]*domain.RuntimePlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return nil, err
	}

	index, err := r.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	individuals := index.IndividualsOf(r.vocab.execution, true)
	plans := make([]*domain.RuntimePlan, 0, len(individuals))
	for _, ind := range individuals {
		plan, err := r.loadRun(ctx, index, ind.ID, repo.LoadSummary)
		if err != nil {
			if errors.Is(err, repo.ErrDetailMissing) && plan != nil {
				r.logger.Warn("run detail record missing", "run_id", ind.ID)
				plans = append(plans, plan)
				continue
			}
			r.logger.Error("list runs failed", "run_id", ind.ID, "error", err)
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// RunDetails fully loads the run with id.
func (r *Repository) RunDetails(ctx context.Context, id string) (*domain.RuntimePlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return nil, err
	}
	index, err := r.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	plan, err := r.loadRun(ctx, index, strings.TrimSpace(id), repo.LoadFull)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// RunExists probes the master index only.
func (r *Repository) RunExists(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return false, err
	}
	index, err := r.loadIndex(ctx)
	if err != nil {
		return false, err
	}
	return index.Individual(strings.TrimSpace(id)) != nil, nil
}

// loadRun builds the plan with id from the index, escalating to the private
// record when mode requires it. On ErrDetailMissing the summary is returned
// alongside the error.
func (r *Repository) loadRun(ctx context.Context, index graph.Store, id string, mode repo.LoadMode) (*domain.RuntimePlan, error) {
	if id == "" || index.Individual(id) == nil {
		return nil, fmt.Errorf("run %q: %w", id, repo.ErrNotFound)
	}
	plan := domain.NewRuntimePlan(id)
	info, err := r.vocab.readRuntimeInfo(index, id)
	if err != nil {
		return nil, err
	}
	plan.Info = info
	if repo.EffectiveMode(mode, info.Status) == repo.LoadSummary {
		return plan, nil
	}

	detail, err := r.graphs.Open(ctx, plan.URL())
	if err != nil {
		return nil, fmt.Errorf("open run record: %w", err)
	}
	if detail.Individual(id) == nil {
		return plan, fmt.Errorf("run %s: %w", id, repo.ErrDetailMissing)
	}
	if info, err = r.vocab.readRuntimeInfo(detail, id); err != nil {
		return nil, err
	}
	plan.Info = info
	if err := r.vocab.readSteps(detail, plan, r.logger); err != nil {
		return nil, err
	}
	r.vocab.readProvenance(detail, plan)

	if plan.ExecutionPlanID != "" {
		ep, err := r.docs.LoadExecutionPlan(ctx, plan.ExecutionPlanID)
		switch {
		case err == nil:
			plan.SetPlan(&ep)
		case errors.Is(err, catalog.ErrNotFound):
			r.logger.Warn("execution plan record missing", "run_id", id, "plan_id", plan.ExecutionPlanID)
		default:
			return nil, fmt.Errorf("load execution plan: %w", err)
		}
	}
	return plan, nil
}

func validatePlan(plan *domain.RuntimePlan) error {
	if plan == nil || strings.TrimSpace(plan.ID) == "" {
		return errors.New("run id is required")
	}
	if domain.URLOf(plan.ID) == "" {
		return fmt.Errorf("run %s has no url", plan.ID)
	}
	return nil
}
