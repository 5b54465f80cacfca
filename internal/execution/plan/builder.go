package plan

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/animus-labs/runledger/internal/domain"
	"github.com/animus-labs/runledger/internal/execution/specvalidator"
)

// BuildPlan generates a deterministic execution plan from an expanded template.
// Step ids live in the namespace of planID, so rebuilding a plan under the same
// id yields the same ids for steps that did not change.
func BuildPlan(tpl domain.Template, planID, outputRoot string) (domain.ExecutionPlan, error) {
	planID = strings.TrimSpace(planID)
	if planID == "" {
		return domain.ExecutionPlan{}, fmt.Errorf("plan id is required")
	}

	if err := specvalidator.ValidateTemplate(tpl); err != nil {
		return domain.ExecutionPlan{}, err
	}

	ordered, err := topoSortSteps(tpl)
	if err != nil {
		return domain.ExecutionPlan{}, err
	}

	parents := make(map[string][]string, len(tpl.Steps))
	for _, link := range tpl.Links {
		parents[link.To] = append(parents[link.To], domain.ChildID(planID, link.From))
	}

	runDir := filepath.Join(outputRoot, domain.LocalName(planID))
	steps := make([]domain.ExecutionStep, 0, len(ordered))
	for _, step := range ordered {
		var files []domain.ExecutionFile
		for _, out := range step.Outputs {
			files = append(files, domain.ExecutionFile{
				ID:       domain.ChildID(planID, step.Name+"."+out),
				Location: filepath.Join(runDir, step.Name, out),
			})
		}
		stepParents := append([]string(nil), parents[step.Name]...)
		sort.Strings(stepParents)
		steps = append(steps, domain.ExecutionStep{
			ID:          domain.ChildID(planID, step.Name),
			Name:        step.Name,
			Component:   step.Component,
			Parents:     stepParents,
			OutputFiles: files,
		})
	}

	return domain.ExecutionPlan{
		ID:         planID,
		TemplateID: tpl.ID,
		Steps:      steps,
	}, nil
}

func topoSortSteps(tpl domain.Template) ([]domain.TemplateStep, error) {
	stepMap := make(map[string]domain.TemplateStep, len(tpl.Steps))
	for _, step := range tpl.Steps {
		stepMap[step.Name] = step
	}

	inDegree := make(map[string]int, len(stepMap))
	adj := make(map[string][]string, len(stepMap))
	for name := range stepMap {
		inDegree[name] = 0
	}
	for _, link := range tpl.Links {
		adj[link.From] = append(adj[link.From], link.To)
		inDegree[link.To]++
	}

	ready := make([]string, 0, len(stepMap))
	for name, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	ordered := make([]domain.TemplateStep, 0, len(stepMap))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		ordered = append(ordered, stepMap[name])
		for _, neighbor := range adj[name] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				ready = append(ready, neighbor)
				sort.Strings(ready)
			}
		}
	}

	if len(ordered) != len(stepMap) {
		return nil, fmt.Errorf("dependency graph contains a cycle")
	}
	return ordered, nil
}
