package planner

// Messages written to a run's log when planning fails.
const (
	MsgNoSeededTemplate = "Could not load seeded template"
	MsgNoInferred       = "No Inferred template after planning"
	MsgNoSpecialized    = "No Specialized templates after planning"
	MsgNoBound          = "No Bound templates after planning"
	MsgNoConfigured     = "No Configured templates after planning"
	MsgNoExpanded       = "No Expanded templates after planning"
	MsgSaveExpanded     = "Could not save new Expanded template"
	MsgNoExecutionPlan  = "Could not get a new Execution Plan"
	MsgSavePlan         = "Could not save new Plan"
	MsgNoNewSteps       = "No new steps in the new execution plan"
)

// PlanningError reports that a generation stage produced no viable output.
type PlanningError struct {
	Message string
	Err     error
}

func (e *PlanningError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *PlanningError) Unwrap() error {
	return e.Err
}

func planningError(message string, err error) *PlanningError {
	return &PlanningError{Message: message, Err: err}
}
