// Package planner drives the workflow generator to derive expanded templates
// and execution plans, and grafts re-derived steps onto live runs.
//
// A Planner does no locking. Callers must keep at most one RePlan or step
// update in flight per run.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/animus-labs/runledger/internal/domain"
	"github.com/animus-labs/runledger/internal/execution/plan"
)

type Planner struct {
	docs       Documents
	generators GeneratorFactory
	logger     *slog.Logger
}

func New(docs Documents, generators GeneratorFactory, logger *slog.Logger) (*Planner, error) {
	if docs == nil {
		return nil, errors.New("document store is required")
	}
	if generators == nil {
		return nil, errors.New("generator factory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{docs: docs, generators: generators, logger: logger}, nil
}

// Generate runs the generation pipeline on seed for a first submission and
// returns the laid out expanded template with its execution plan. Nothing is
// persisted.
func (p *Planner) Generate(ctx context.Context, runID string, seed domain.Template, planID string) (domain.Template, domain.ExecutionPlan, error) {
	gen := p.generators(runID)
	if gen == nil {
		return domain.Template{}, domain.ExecutionPlan{}, fmt.Errorf("no generator for run %s", runID)
	}
	expanded, perr := p.expand(ctx, gen, seed)
	if perr != nil {
		return domain.Template{}, domain.ExecutionPlan{}, perr
	}
	ep, err := gen.ExecutionPlan(ctx, expanded, planID)
	if err != nil || ep == nil {
		return domain.Template{}, domain.ExecutionPlan{}, planningError(MsgNoExecutionPlan, err)
	}
	ep.ID = planID
	return expanded, *ep, nil
}

// RePlan regenerates the execution plan of live from its seeded template and
// appends the steps it did not track yet. It always returns live: failures
// set its status to FAILURE and append the reason to its log.
//
// The expanded template and the execution plan are replaced under their
// existing ids by deleting the old record before saving the new one. A crash
// in between loses the record.
func (p *Planner) RePlan(ctx context.Context, live *domain.RuntimePlan) *domain.RuntimePlan {
	if live == nil {
		return nil
	}
	if live.Info == nil {
		live.Info = domain.NewRuntimeInfo()
	}

	seed, err := p.docs.LoadTemplate(ctx, live.SeededTemplateID)
	if err != nil {
		return p.fail(live, planningError(MsgNoSeededTemplate, err))
	}
	gen := p.generators(live.ID)
	if gen == nil {
		return p.fail(live, planningError(MsgNoExecutionPlan, fmt.Errorf("no generator for run %s", live.ID)))
	}

	expanded, perr := p.expand(ctx, gen, seed)
	if perr != nil {
		return p.fail(live, perr)
	}

	expandedID := live.ExpandedTemplateID
	if err := p.docs.Delete(ctx, expandedID); err != nil {
		p.logger.Warn("delete expanded template failed", "run_id", live.ID, "template_id", expandedID, "error", err)
	}
	if err := p.docs.SaveTemplate(ctx, expanded, expandedID); err != nil {
		return p.fail(live, planningError(MsgSaveExpanded, err))
	}
	expanded.ID = expandedID

	planID := live.ExecutionPlanID
	if live.Plan != nil && live.Plan.ID != "" {
		planID = live.Plan.ID
	}
	ep, err := gen.ExecutionPlan(ctx, expanded, planID)
	if err != nil || ep == nil {
		return p.fail(live, planningError(MsgNoExecutionPlan, err))
	}
	if err := p.docs.Delete(ctx, planID); err != nil {
		p.logger.Warn("delete execution plan failed", "run_id", live.ID, "plan_id", planID, "error", err)
	}
	if err := p.docs.SaveExecutionPlan(ctx, *ep, planID); err != nil {
		return p.fail(live, planningError(MsgSavePlan, err))
	}
	ep.ID = planID

	shadow, err := plan.ShadowPlan(*ep)
	if err != nil {
		return p.fail(live, planningError(MsgNoExecutionPlan, err))
	}
	live.SetPlan(ep)

	added := MergeSteps(live, shadow)
	if len(added) == 0 {
		return p.fail(live, planningError(MsgNoNewSteps, nil))
	}
	p.logger.Info("run replanned", "run_id", live.ID, "new_steps", len(added), "steps", live.Queue.Len())
	return live
}

// expand runs the inference, specialization, binding, metrics, configuration
// and expansion stages and returns the first expanded candidate, laid out.
func (p *Planner) expand(ctx context.Context, gen Generator, seed domain.Template) (domain.Template, *PlanningError) {
	inferred, err := gen.InferTemplate(ctx, seed)
	if err != nil || inferred == nil {
		return domain.Template{}, planningError(MsgNoInferred, err)
	}

	candidates, err := gen.SpecializeTemplates(ctx, *inferred)
	if err != nil || len(candidates) == 0 {
		return domain.Template{}, planningError(MsgNoSpecialized, err)
	}

	var bound []domain.Template
	for _, candidate := range candidates {
		bts, err := gen.SelectInputDataObjects(ctx, candidate)
		if err != nil {
			return domain.Template{}, planningError(MsgNoBound, err)
		}
		bound = append(bound, bts...)
	}
	if len(bound) == 0 {
		return domain.Template{}, planningError(MsgNoBound, nil)
	}

	if err := gen.SetDataMetrics(ctx, bound); err != nil {
		p.logger.Warn("set data metrics failed", "error", err)
	}

	var configured []domain.Template
	for _, bt := range bound {
		cts, err := gen.ConfigureTemplates(ctx, bt)
		if err != nil {
			return domain.Template{}, planningError(MsgNoConfigured, err)
		}
		configured = append(configured, cts...)
	}
	if len(configured) == 0 {
		return domain.Template{}, planningError(MsgNoConfigured, nil)
	}

	var expanded []domain.Template
	for _, ct := range configured {
		xt, err := gen.ExpandTemplate(ctx, ct)
		if err != nil {
			return domain.Template{}, planningError(MsgNoExpanded, err)
		}
		if xt != nil {
			expanded = append(expanded, *xt)
		}
	}
	if len(expanded) == 0 {
		return domain.Template{}, planningError(MsgNoExpanded, nil)
	}

	// Alternatives are not surfaced; the first candidate wins.
	chosen := expanded[0].Clone()
	chosen.Stage = domain.StageExpanded
	chosen.AutoLayout()
	return chosen, nil
}

func (p *Planner) fail(live *domain.RuntimePlan, perr *PlanningError) *domain.RuntimePlan {
	live.Info.AddLog(perr.Error())
	live.Info.Status = domain.StatusFailure
	p.logger.Warn("replan failed", "run_id", live.ID, "reason", perr.Message, "error", perr.Err)
	return live
}
