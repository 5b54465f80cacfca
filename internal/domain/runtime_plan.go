package domain

import "strings"

// RuntimeStep is the runtime state of one node of a run's step DAG.
//
// Parents are non-owning references to steps that precede this one in the
// owning plan's queue. The owning plan is referenced by id only.
type RuntimeStep struct {
	ID      string
	PlanID  string
	Parents []*RuntimeStep
	Info    *RuntimeInfo
}

// NewRuntimeStep returns a queued step.
func NewRuntimeStep(id string) *RuntimeStep {
	return &RuntimeStep{ID: strings.TrimSpace(id), Info: NewRuntimeInfo()}
}

// AddParent links parent unless a parent with the same id is already linked.
func (s *RuntimeStep) AddParent(parent *RuntimeStep) {
	if parent == nil {
		return
	}
	for _, p := range s.Parents {
		if p.ID == parent.ID {
			return
		}
	}
	s.Parents = append(s.Parents, parent)
}

// ParentIDs returns the ids of the linked parents in link order.
func (s *RuntimeStep) ParentIDs() []string {
	out := make([]string, 0, len(s.Parents))
	for _, p := range s.Parents {
		out = append(out, p.ID)
	}
	return out
}

// ExecutionQueue is the ordered, id-unique set of steps of a run.
type ExecutionQueue struct {
	steps []*RuntimeStep
	byID  map[string]*RuntimeStep
}

func NewExecutionQueue() *ExecutionQueue {
	return &ExecutionQueue{byID: map[string]*RuntimeStep{}}
}

// AddStep appends step. It returns false when a step with the same id is
// already queued.
func (q *ExecutionQueue) AddStep(step *RuntimeStep) bool {
	if step == nil {
		return false
	}
	if q.byID == nil {
		q.byID = map[string]*RuntimeStep{}
	}
	if _, ok := q.byID[step.ID]; ok {
		return false
	}
	q.byID[step.ID] = step
	q.steps = append(q.steps, step)
	return true
}

// Steps returns the queued steps in insertion order.
func (q *ExecutionQueue) Steps() []*RuntimeStep {
	if q == nil {
		return nil
	}
	out := make([]*RuntimeStep, len(q.steps))
	copy(out, q.steps)
	return out
}

// Step returns the queued step with id, or nil.
func (q *ExecutionQueue) Step(id string) *RuntimeStep {
	if q == nil || q.byID == nil {
		return nil
	}
	return q.byID[id]
}

func (q *ExecutionQueue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.steps)
}

// RuntimePlan is the aggregate runtime state of one workflow execution.
type RuntimePlan struct {
	ID                 string
	Queue              *ExecutionQueue
	OriginalTemplateID string
	SeededTemplateID   string
	ExpandedTemplateID string
	ExecutionPlanID    string
	Plan               *ExecutionPlan
	Info               *RuntimeInfo
}

// NewRuntimePlan returns a queued plan with an empty step queue.
func NewRuntimePlan(id string) *RuntimePlan {
	return &RuntimePlan{
		ID:    strings.TrimSpace(id),
		Queue: NewExecutionQueue(),
		Info:  NewRuntimeInfo(),
	}
}

// URL is the location of the plan's private detail record.
func (p *RuntimePlan) URL() string {
	return URLOf(p.ID)
}

// AddStep attaches step to the plan and appends it to the queue.
func (p *RuntimePlan) AddStep(step *RuntimeStep) bool {
	if p.Queue == nil {
		p.Queue = NewExecutionQueue()
	}
	if !p.Queue.AddStep(step) {
		return false
	}
	step.PlanID = p.ID
	return true
}

// SetPlan records the execution plan and its id.
func (p *RuntimePlan) SetPlan(plan *ExecutionPlan) {
	p.Plan = plan
	if plan != nil {
		p.ExecutionPlanID = plan.ID
	}
}
