package graphrepo

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/animus-labs/runledger/internal/domain"
	"github.com/animus-labs/runledger/internal/graph"
)

// vocabulary holds the fully qualified terms of the execution ontology.
type vocabulary struct {
	execution     string
	executionStep string

	hasStep             string
	hasParent           string
	hasExpandedTemplate string
	hasSeededTemplate   string
	hasTemplate         string
	hasPlan             string

	hasLog             string
	hasStartTime       string
	hasEndTime         string
	hasExecutionStatus string
}

func newVocabulary(namespace string) vocabulary {
	ns := strings.TrimSpace(namespace)
	return vocabulary{
		execution:           ns + "Execution",
		executionStep:       ns + "ExecutionStep",
		hasStep:             ns + "hasStep",
		hasParent:           ns + "hasParent",
		hasExpandedTemplate: ns + "hasExpandedTemplate",
		hasSeededTemplate:   ns + "hasSeededTemplate",
		hasTemplate:         ns + "hasTemplate",
		hasPlan:             ns + "hasPlan",
		hasLog:              ns + "hasLog",
		hasStartTime:        ns + "hasStartTime",
		hasEndTime:          ns + "hasEndTime",
		hasExecutionStatus:  ns + "hasExecutionStatus",
	}
}

func (v vocabulary) writeRuntimeInfo(store graph.Store, subject string, info *domain.RuntimeInfo) {
	if info == nil {
		info = domain.NewRuntimeInfo()
	}
	store.SetProperty(subject, v.hasLog, graph.Literal(info.Log))
	store.SetProperty(subject, v.hasStartTime, graph.DateTime(info.StartTime))
	store.SetProperty(subject, v.hasEndTime, graph.DateTime(info.EndTime))
	store.SetProperty(subject, v.hasExecutionStatus, graph.Literal(string(info.Status)))
}

func (v vocabulary) readRuntimeInfo(store graph.Store, subject string) (*domain.RuntimeInfo, error) {
	info := domain.NewRuntimeInfo()
	if value, ok := store.Property(subject, v.hasStartTime); ok {
		t, err := value.Time()
		if err != nil {
			return nil, fmt.Errorf("parse start time of %s: %w", subject, err)
		}
		info.StartTime = &t
	}
	if value, ok := store.Property(subject, v.hasEndTime); ok {
		t, err := value.Time()
		if err != nil {
			return nil, fmt.Errorf("parse end time of %s: %w", subject, err)
		}
		info.EndTime = &t
	}
	if value, ok := store.Property(subject, v.hasExecutionStatus); ok && value.Text != "" {
		status, err := domain.ParseStatus(value.Text)
		if err != nil {
			return nil, fmt.Errorf("parse status of %s: %w", subject, err)
		}
		info.Status = status
	}
	if value, ok := store.Property(subject, v.hasLog); ok {
		info.Log = value.Text
	}
	return info, nil
}

func (v vocabulary) writeProvenance(store graph.Store, plan *domain.RuntimePlan) {
	executionPlanID := plan.ExecutionPlanID
	if plan.Plan != nil && plan.Plan.ID != "" {
		executionPlanID = plan.Plan.ID
	}
	links := []struct {
		predicate string
		target    string
	}{
		{v.hasExpandedTemplate, plan.ExpandedTemplateID},
		{v.hasSeededTemplate, plan.SeededTemplateID},
		{v.hasTemplate, plan.OriginalTemplateID},
		{v.hasPlan, executionPlanID},
	}
	for _, link := range links {
		if strings.TrimSpace(link.target) == "" {
			continue
		}
		store.SetProperty(plan.ID, link.predicate, graph.Resource(link.target))
	}
}

func (v vocabulary) readProvenance(store graph.Store, plan *domain.RuntimePlan) {
	link := func(predicate string) string {
		value, ok := store.Property(plan.ID, predicate)
		if !ok {
			return ""
		}
		return value.Text
	}
	plan.ExpandedTemplateID = link(v.hasExpandedTemplate)
	plan.SeededTemplateID = link(v.hasSeededTemplate)
	plan.OriginalTemplateID = link(v.hasTemplate)
	plan.ExecutionPlanID = link(v.hasPlan)
}

// writeStep creates the record of step with its parent links and runtime info.
func (v vocabulary) writeStep(store graph.Store, step *domain.RuntimeStep) {
	store.CreateIndividual(step.ID, v.executionStep)
	for _, parent := range step.Parents {
		store.AddProperty(step.ID, v.hasParent, graph.Resource(parent.ID))
	}
	v.writeRuntimeInfo(store, step.ID, step.Info)
}

// writeRun writes the complete private record of plan.
func (v vocabulary) writeRun(store graph.Store, plan *domain.RuntimePlan) {
	store.CreateIndividual(plan.ID, v.execution)
	v.writeProvenance(store, plan)
	for _, step := range plan.Queue.Steps() {
		v.writeStep(store, step)
		store.AddProperty(plan.ID, v.hasStep, graph.Resource(step.ID))
	}
	v.writeRuntimeInfo(store, plan.ID, plan.Info)
}

// mirrorRun replaces the index entry of plan with its summary: runtime info,
// provenance links and step links.
func (v vocabulary) mirrorRun(index graph.Store, plan *domain.RuntimePlan) {
	index.RemoveAllWith(plan.ID)
	index.CreateIndividual(plan.ID, v.execution)
	v.writeProvenance(index, plan)
	for _, step := range plan.Queue.Steps() {
		index.AddProperty(plan.ID, v.hasStep, graph.Resource(step.ID))
	}
	v.writeRuntimeInfo(index, plan.ID, plan.Info)
}

// readSteps rebuilds the step queue of plan from its private record. Parent
// links are resolved against steps of the same record only.
func (v vocabulary) readSteps(store graph.Store, plan *domain.RuntimePlan, logger *slog.Logger) error {
	values := store.Properties(plan.ID, v.hasStep)
	steps := make([]*domain.RuntimeStep, 0, len(values))
	byID := make(map[string]*domain.RuntimeStep, len(values))
	for _, value := range values {
		step := domain.NewRuntimeStep(value.Text)
		info, err := v.readRuntimeInfo(store, step.ID)
		if err != nil {
			return err
		}
		step.Info = info
		steps = append(steps, step)
		byID[step.ID] = step
	}
	for _, step := range steps {
		for _, parent := range store.Properties(step.ID, v.hasParent) {
			p, ok := byID[parent.Text]
			if !ok {
				logger.Warn("dangling step parent", "run_id", plan.ID, "step_id", step.ID, "parent_id", parent.Text)
				continue
			}
			step.AddParent(p)
		}
		plan.AddStep(step)
	}
	return nil
}
