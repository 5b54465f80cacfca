package repo

import (
	"context"

	"github.com/animus-labs/runledger/internal/domain"
)

// ExecutionLogger records runtime state while a run executes.
type ExecutionLogger interface {
	StartLogging(ctx context.Context, plan *domain.RuntimePlan) error
	UpdatePlanRuntimeInfo(ctx context.Context, plan *domain.RuntimePlan) error
	UpdateStepRuntimeInfo(ctx context.Context, step *domain.RuntimeStep) error
}

// ExecutionMonitor enumerates, inspects and removes recorded runs.
type ExecutionMonitor interface {
	RunList(ctx context.Context) ([]*domain.RuntimePlan, error)
	RunDetails(ctx context.Context, id string) (*domain.RuntimePlan, error)
	RunExists(ctx context.Context, id string) (bool, error)
	DeleteRun(ctx context.Context, id string) error
	Purge(ctx context.Context) error
}

// RunRepository is the full run persistence surface.
type RunRepository interface {
	ExecutionLogger
	ExecutionMonitor
	Repair(ctx context.Context, id string) (RepairOutcome, error)
}

// RepairOutcome reports what Repair did to the index entry of a run.
type RepairOutcome string

const (
	RepairMirrored RepairOutcome = "mirrored"
	RepairDropped  RepairOutcome = "dropped"
)
