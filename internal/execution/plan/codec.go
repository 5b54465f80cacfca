package plan

import (
	"encoding/json"

	"github.com/animus-labs/runledger/internal/domain"
)

// MarshalExecutionPlan serializes an execution plan with stable field names.
func MarshalExecutionPlan(plan domain.ExecutionPlan) ([]byte, error) {
	payload := executionPlanPayload{
		ID:         plan.ID,
		TemplateID: plan.TemplateID,
		Steps:      make([]executionStepPayload, 0, len(plan.Steps)),
	}
	for _, step := range plan.Steps {
		files := make([]executionFilePayload, 0, len(step.OutputFiles))
		for _, f := range step.OutputFiles {
			files = append(files, executionFilePayload{ID: f.ID, Location: f.Location})
		}
		parents := step.Parents
		if parents == nil {
			parents = []string{}
		}
		payload.Steps = append(payload.Steps, executionStepPayload{
			ID:          step.ID,
			Name:        step.Name,
			Component:   step.Component,
			Parents:     parents,
			OutputFiles: files,
		})
	}
	return json.Marshal(payload)
}

// UnmarshalExecutionPlan parses a persisted plan JSON into a domain ExecutionPlan.
func UnmarshalExecutionPlan(raw []byte) (domain.ExecutionPlan, error) {
	var payload executionPlanPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.ExecutionPlan{}, err
	}
	steps := make([]domain.ExecutionStep, 0, len(payload.Steps))
	for _, step := range payload.Steps {
		var files []domain.ExecutionFile
		for _, f := range step.OutputFiles {
			files = append(files, domain.ExecutionFile{ID: f.ID, Location: f.Location})
		}
		steps = append(steps, domain.ExecutionStep{
			ID:          step.ID,
			Name:        step.Name,
			Component:   step.Component,
			Parents:     append([]string(nil), step.Parents...),
			OutputFiles: files,
		})
	}
	return domain.ExecutionPlan{
		ID:         payload.ID,
		TemplateID: payload.TemplateID,
		Steps:      steps,
	}, nil
}

type executionPlanPayload struct {
	ID         string                 `json:"id"`
	TemplateID string                 `json:"templateId"`
	Steps      []executionStepPayload `json:"steps"`
}

type executionStepPayload struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Component   string                 `json:"component"`
	Parents     []string               `json:"parents"`
	OutputFiles []executionFilePayload `json:"outputFiles"`
}

type executionFilePayload struct {
	ID       string `json:"id"`
	Location string `json:"location"`
}
