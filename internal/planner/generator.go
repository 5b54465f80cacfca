package planner

import (
	"context"

	"github.com/animus-labs/runledger/internal/domain"
)

// Generator is the workflow generation pipeline. Each stage may come back
// empty, which means it found no viable output.
type Generator interface {
	InferTemplate(ctx context.Context, seed domain.Template) (*domain.Template, error)
	SpecializeTemplates(ctx context.Context, tpl domain.Template) ([]domain.Template, error)
	SelectInputDataObjects(ctx context.Context, tpl domain.Template) ([]domain.Template, error)
	// SetDataMetrics annotates bound templates in place.
	SetDataMetrics(ctx context.Context, bound []domain.Template) error
	ConfigureTemplates(ctx context.Context, tpl domain.Template) ([]domain.Template, error)
	ExpandTemplate(ctx context.Context, tpl domain.Template) (*domain.Template, error)
	// ExecutionPlan derives the plan to be stored under planID.
	ExecutionPlan(ctx context.Context, expanded domain.Template, planID string) (*domain.ExecutionPlan, error)
}

// GeneratorFactory returns the generator used for the run with runID.
type GeneratorFactory func(runID string) Generator

// Documents is the template and execution plan store the planner writes to.
type Documents interface {
	LoadTemplate(ctx context.Context, id string) (domain.Template, error)
	SaveTemplate(ctx context.Context, tpl domain.Template, id string) error
	SaveExecutionPlan(ctx context.Context, ep domain.ExecutionPlan, id string) error
	Delete(ctx context.Context, id string) error
}
