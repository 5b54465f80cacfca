// Package pipeline is the built-in workflow generator. It validates the seed,
// fans out component alternatives, binds unproduced inputs to configured data
// objects, applies parameter defaults and derives the execution plan with
// plan.BuildPlan.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/animus-labs/runledger/internal/domain"
	"github.com/animus-labs/runledger/internal/execution/plan"
	"github.com/animus-labs/runledger/internal/execution/specvalidator"
	"github.com/animus-labs/runledger/internal/planner"
)

const (
	// AlternativeSeparator splits a step component into specialization choices.
	AlternativeSeparator = "|"
	maxCandidates        = 16
	bindingParamPrefix   = "input:"
)

type Config struct {
	OutputRoot string
	// Bindings maps data variables that no step produces to data object ids.
	Bindings   map[string]string
	// Defaults are parameter values applied to steps that do not set them.
	Defaults   map[string]string
}

// NewFactory returns a factory handing out one Generator per run.
func NewFactory(cfg Config) planner.GeneratorFactory {
	return func(runID string) planner.Generator {
		return &Generator{runID: runID, cfg: cfg}
	}
}

type Generator struct {
	runID string
	cfg   Config
}

func (g *Generator) InferTemplate(ctx context.Context, seed domain.Template) (*domain.Template, error) {
	if err := specvalidator.ValidateTemplate(seed); err != nil {
		return nil, err
	}
	out := seed.Clone()
	out.Stage = domain.StageInferred
	return &out, nil
}

// SpecializeTemplates yields one candidate per combination of component
// alternatives, in declaration order, capped at maxCandidates.
func (g *Generator) SpecializeTemplates(ctx context.Context, tpl domain.Template) ([]domain.Template, error) {
	candidates := []domain.Template{tpl.Clone()}
	for i, step := range tpl.Steps {
		var choices []string
		for _, choice := range strings.Split(step.Component, AlternativeSeparator) {
			if choice = strings.TrimSpace(choice); choice != "" {
				choices = append(choices, choice)
			}
		}
		if len(choices) == 0 {
			return nil, nil
		}
		next := make([]domain.Template, 0, len(candidates)*len(choices))
		for _, candidate := range candidates {
			for _, choice := range choices {
				if len(next) == maxCandidates {
					break
				}
				specialized := candidate.Clone()
				specialized.Steps[i].Component = choice
				next = append(next, specialized)
			}
		}
		candidates = next
	}
	for i := range candidates {
		candidates[i].Stage = domain.StageSpecialized
	}
	return candidates, nil
}

// SelectInputDataObjects binds every input no step produces. A template with
// an unbound input has no viable binding.
func (g *Generator) SelectInputDataObjects(ctx context.Context, tpl domain.Template) ([]domain.Template, error) {
	produced := map[string]struct{}{}
	for _, step := range tpl.Steps {
		for _, out := range step.Outputs {
			produced[out] = struct{}{}
		}
	}
	bound := tpl.Clone()
	for i, step := range bound.Steps {
		for _, in := range step.Inputs {
			if _, ok := produced[in]; ok {
				continue
			}
			object, ok := g.cfg.Bindings[in]
			if !ok || strings.TrimSpace(object) == "" {
				return nil, nil
			}
			if bound.Steps[i].Params == nil {
				bound.Steps[i].Params = map[string]string{}
			}
			bound.Steps[i].Params[bindingParamPrefix+in] = object
		}
	}
	bound.Stage = domain.StageBound
	return []domain.Template{bound}, nil
}

func (g *Generator) SetDataMetrics(ctx context.Context, bound []domain.Template) error {
	for i := range bound {
		count := 0
		for _, step := range bound[i].Steps {
			for key := range step.Params {
				if strings.HasPrefix(key, bindingParamPrefix) {
					count++
				}
			}
		}
		if bound[i].Metrics == nil {
			bound[i].Metrics = map[string]string{}
		}
		bound[i].Metrics["bound_inputs"] = strconv.Itoa(count)
		bound[i].Metrics["steps"] = strconv.Itoa(len(bound[i].Steps))
	}
	return nil
}

func (g *Generator) ConfigureTemplates(ctx context.Context, tpl domain.Template) ([]domain.Template, error) {
	configured := tpl.Clone()
	keys := make([]string, 0, len(g.cfg.Defaults))
	for key := range g.cfg.Defaults {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for i := range configured.Steps {
		for _, key := range keys {
			if _, ok := configured.Steps[i].Params[key]; ok {
				continue
			}
			if configured.Steps[i].Params == nil {
				configured.Steps[i].Params = map[string]string{}
			}
			configured.Steps[i].Params[key] = g.cfg.Defaults[key]
		}
	}
	configured.Stage = domain.StageConfigured
	return []domain.Template{configured}, nil
}

func (g *Generator) ExpandTemplate(ctx context.Context, tpl domain.Template) (*domain.Template, error) {
	expanded := tpl.Clone()
	expanded.Stage = domain.StageExpanded
	return &expanded, nil
}

func (g *Generator) ExecutionPlan(ctx context.Context, expanded domain.Template, planID string) (*domain.ExecutionPlan, error) {
	ep, err := plan.BuildPlan(expanded, planID, g.cfg.OutputRoot)
	if err != nil {
		return nil, fmt.Errorf("build plan for run %s: %w", g.runID, err)
	}
	return &ep, nil
}
