package plan

import (
	"fmt"

	"github.com/yourbasic/graph"

	"github.com/animus-labs/runledger/internal/domain"
)

// ShadowPlan derives the transient runtime plan implied by ep. Its queue holds
// one fresh step per execution step, parents first; ties keep plan order. The
// result is never persisted.
func ShadowPlan(ep domain.ExecutionPlan) (*domain.RuntimePlan, error) {
	index := make(map[string]int, len(ep.Steps))
	for i, step := range ep.Steps {
		if _, dup := index[step.ID]; dup {
			return nil, fmt.Errorf("duplicate step %q in execution plan", step.ID)
		}
		index[step.ID] = i
	}

	g := graph.New(len(ep.Steps))
	inDegree := make([]int, len(ep.Steps))
	for i, step := range ep.Steps {
		for _, parentID := range step.Parents {
			p, ok := index[parentID]
			if !ok {
				return nil, fmt.Errorf("step %q references unknown parent %q", step.ID, parentID)
			}
			if !g.Edge(p, i) {
				g.Add(p, i)
				inDegree[i]++
			}
		}
	}
	if !graph.Acyclic(g) {
		return nil, fmt.Errorf("execution plan %q contains a cycle", ep.ID)
	}

	shadow := domain.NewRuntimePlan(ep.ID)
	steps := make([]*domain.RuntimeStep, len(ep.Steps))
	for i, step := range ep.Steps {
		steps[i] = domain.NewRuntimeStep(step.ID)
	}

	done := make([]bool, len(ep.Steps))
	for added := 0; added < len(ep.Steps); {
		progressed := false
		for i, step := range ep.Steps {
			if done[i] || inDegree[i] > 0 {
				continue
			}
			for _, parentID := range step.Parents {
				steps[i].AddParent(steps[index[parentID]])
			}
			shadow.AddStep(steps[i])
			done[i] = true
			added++
			progressed = true
			g.Visit(i, func(w int, _ int64) bool {
				inDegree[w]--
				return false
			})
		}
		if !progressed {
			return nil, fmt.Errorf("execution plan %q contains a cycle", ep.ID)
		}
	}
	epCopy := ep
	shadow.SetPlan(&epCopy)
	return shadow, nil
}
