package runs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/animus-labs/runledger/internal/domain"
	"github.com/animus-labs/runledger/internal/execution/plan"
	"github.com/animus-labs/runledger/internal/planner"
	"github.com/animus-labs/runledger/internal/repo"
)

// Planner is the part of planner.Planner the service drives.
type Planner interface {
	Generate(ctx context.Context, runID string, seed domain.Template, planID string) (domain.Template, domain.ExecutionPlan, error)
	RePlan(ctx context.Context, live *domain.RuntimePlan) *domain.RuntimePlan
}

// Templates stores the documents created at submission.
type Templates interface {
	SaveTemplate(ctx context.Context, tpl domain.Template, id string) error
	SaveExecutionPlan(ctx context.Context, ep domain.ExecutionPlan, id string) error
	Delete(ctx context.Context, id string) error
}

// Locations are the base urls new records are created under.
type Locations struct {
	RunsURL      string
	TemplatesURL string
	PlansURL     string
}

func (l Locations) Validate() error {
	if strings.TrimSpace(l.RunsURL) == "" {
		return errors.New("runs url is required")
	}
	if strings.TrimSpace(l.TemplatesURL) == "" {
		return errors.New("templates url is required")
	}
	if strings.TrimSpace(l.PlansURL) == "" {
		return errors.New("plans url is required")
	}
	return nil
}

type Service struct {
	runs      repo.RunRepository
	planner   Planner
	templates Templates
	locations Locations
	logger    *slog.Logger
	newName   func() string

	mu    sync.Mutex
	locks map[string]*runLock
}

// runLock serializes mutations of one run. refs counts holders and waiters;
// the entry is dropped when it reaches zero.
type runLock struct {
	mu   sync.Mutex
	refs int
}

var _ Planner = (*planner.Planner)(nil)

func New(runs repo.RunRepository, p Planner, templates Templates, locations Locations, logger *slog.Logger) *Service {
	if runs == nil || p == nil || templates == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		runs:      runs,
		planner:   p,
		templates: templates,
		locations: locations,
		logger:    logger,
		newName:   uuid.NewString,
		locks:     map[string]*runLock{},
	}
}

// Submit creates and starts logging a new run for seed. Planning failures
// are returned as *planner.PlanningError and leave no records behind.
func (s *Service) Submit(ctx context.Context, seed domain.Template) (*domain.RuntimePlan, error) {
	if err := s.locations.Validate(); err != nil {
		return nil, err
	}
	name := s.newName()
	runID := domain.NewID(s.locations.RunsURL, name)
	seededID := domain.NewID(s.locations.TemplatesURL, name+"-seeded")
	expandedID := domain.NewID(s.locations.TemplatesURL, name+"-expanded")
	planID := domain.NewID(s.locations.PlansURL, name)

	originalID := strings.TrimSpace(seed.ID)
	seed.Stage = domain.StageSeeded
	if err := s.templates.SaveTemplate(ctx, seed, seededID); err != nil {
		return nil, fmt.Errorf("save seeded template: %w", err)
	}

	expanded, ep, err := s.planner.Generate(ctx, runID, seed, planID)
	if err != nil {
		s.discard(ctx, runID, seededID)
		return nil, err
	}
	if err := s.templates.SaveTemplate(ctx, expanded, expandedID); err != nil {
		s.discard(ctx, runID, seededID, expandedID)
		return nil, fmt.Errorf("save expanded template: %w", err)
	}
	if err := s.templates.SaveExecutionPlan(ctx, ep, planID); err != nil {
		s.discard(ctx, runID, seededID, expandedID, planID)
		return nil, fmt.Errorf("save execution plan: %w", err)
	}
	shadow, err := plan.ShadowPlan(ep)
	if err != nil {
		s.discard(ctx, runID, seededID, expandedID, planID)
		return nil, fmt.Errorf("derive steps: %w", err)
	}

	run := domain.NewRuntimePlan(runID)
	run.OriginalTemplateID = originalID
	run.SeededTemplateID = seededID
	run.ExpandedTemplateID = expandedID
	run.SetPlan(&ep)
	planner.MergeSteps(run, shadow)
	run.Info.AddLog(fmt.Sprintf("Run submitted with %d steps", run.Queue.Len()))

	if err := s.runs.StartLogging(ctx, run); err != nil {
		return run, err
	}
	s.logger.Info("run submitted", "run_id", run.ID, "steps", run.Queue.Len())
	return run, nil
}

func (s *Service) discard(ctx context.Context, runID string, ids ...string) {
	for _, id := range ids {
		if err := s.templates.Delete(ctx, id); err != nil {
			s.logger.Warn("discard document failed", "run_id", runID, "document_id", id, "error", err)
		}
	}
}

// RePlan re-plans the run with id and persists the outcome. Planning failures
// are not errors: inspect the returned plan's status and log.
func (s *Service) RePlan(ctx context.Context, id string) (*domain.RuntimePlan, error) {
	id = strings.TrimSpace(id)
	unlock := s.lockRun(id)
	defer unlock()

	live, err := s.runs.RunDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	known := live.Queue.Len()
	live = s.planner.RePlan(ctx, live)

	for _, step := range live.Queue.Steps()[known:] {
		if err := s.runs.UpdateStepRuntimeInfo(ctx, step); err != nil {
			return live, fmt.Errorf("persist step %s: %w", step.ID, err)
		}
	}
	if err := s.runs.UpdatePlanRuntimeInfo(ctx, live); err != nil {
		return live, fmt.Errorf("persist run: %w", err)
	}
	s.logger.Info("run replan finished", "run_id", id, "status", string(live.Info.Status), "new_steps", live.Queue.Len()-known)
	return live, nil
}

func (s *Service) List(ctx context.Context) ([]*domain.RuntimePlan, error) {
	return s.runs.RunList(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*domain.RuntimePlan, error) {
	return s.runs.RunDetails(ctx, strings.TrimSpace(id))
}

func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	return s.runs.RunExists(ctx, strings.TrimSpace(id))
}

func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	unlock := s.lockRun(id)
	defer unlock()
	return s.runs.DeleteRun(ctx, id)
}

func (s *Service) Repair(ctx context.Context, id string) (repo.RepairOutcome, error) {
	id = strings.TrimSpace(id)
	unlock := s.lockRun(id)
	defer unlock()
	return s.runs.Repair(ctx, id)
}

func (s *Service) Purge(ctx context.Context) error {
	return s.runs.Purge(ctx)
}

func (s *Service) lockRun(id string) func() {
	s.mu.Lock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &runLock{}
		s.locks[id] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}
