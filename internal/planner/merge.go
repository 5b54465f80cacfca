package planner

import "github.com/animus-labs/runledger/internal/domain"

// MergeSteps appends to live every step of shadow it does not track yet and
// returns the appended steps in shadow order. Parents that live already tracks
// are rewired to the live step objects. Steps of live are never removed or
// replaced.
func MergeSteps(live, shadow *domain.RuntimePlan) []*domain.RuntimeStep {
	if live == nil || shadow == nil {
		return nil
	}
	var added []*domain.RuntimeStep
	for _, step := range shadow.Queue.Steps() {
		if live.Queue.Step(step.ID) != nil {
			continue
		}
		derived := step.Parents
		step.Parents = nil
		for _, parent := range derived {
			if existing := live.Queue.Step(parent.ID); existing != nil {
				parent = existing
			}
			step.AddParent(parent)
		}
		if live.AddStep(step) {
			added = append(added, step)
		}
	}
	return added
}
