package api

import (
	"time"

	"github.com/animus-labs/runledger/internal/domain"
)

type runView struct {
	ID                 string     `json:"id"`
	URL                string     `json:"url"`
	Status             string     `json:"status"`
	StartTime          *time.Time `json:"start_time,omitempty"`
	EndTime            *time.Time `json:"end_time,omitempty"`
	Log                string     `json:"log,omitempty"`
	OriginalTemplateID string     `json:"original_template_id,omitempty"`
	SeededTemplateID   string     `json:"seeded_template_id,omitempty"`
	ExpandedTemplateID string     `json:"expanded_template_id,omitempty"`
	ExecutionPlanID    string     `json:"execution_plan_id,omitempty"`
	Steps              []stepView `json:"steps"`
}

type stepView struct {
	ID        string     `json:"id"`
	Status    string     `json:"status"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Log       string     `json:"log,omitempty"`
	Parents   []string   `json:"parents"`
}

func newRunView(plan *domain.RuntimePlan) runView {
	info := plan.Info
	if info == nil {
		info = domain.NewRuntimeInfo()
	}
	view := runView{
		ID:                 plan.ID,
		URL:                plan.URL(),
		Status:             string(info.Status),
		StartTime:          info.StartTime,
		EndTime:            info.EndTime,
		Log:                info.Log,
		OriginalTemplateID: plan.OriginalTemplateID,
		SeededTemplateID:   plan.SeededTemplateID,
		ExpandedTemplateID: plan.ExpandedTemplateID,
		ExecutionPlanID:    plan.ExecutionPlanID,
		Steps:              []stepView{},
	}
	for _, step := range plan.Queue.Steps() {
		stepInfo := step.Info
		if stepInfo == nil {
			stepInfo = domain.NewRuntimeInfo()
		}
		view.Steps = append(view.Steps, stepView{
			ID:        step.ID,
			Status:    string(stepInfo.Status),
			StartTime: stepInfo.StartTime,
			EndTime:   stepInfo.EndTime,
			Log:       stepInfo.Log,
			Parents:   step.ParentIDs(),
		})
	}
	return view
}
