package domain

// ExecutionPlan is the concrete, executable realization of an expanded template.
type ExecutionPlan struct {
	ID         string
	TemplateID string
	Steps      []ExecutionStep
}

// ExecutionStep is one executable node. Parents lists the ids of steps that
// must complete first.
type ExecutionStep struct {
	ID          string
	Name        string
	Component   string
	Parents     []string
	OutputFiles []ExecutionFile
}

// ExecutionFile is a file a step declares as output.
type ExecutionFile struct {
	ID       string
	Location string
}

// MetadataLocation is the path of the metadata sidecar written next to the file.
func (f ExecutionFile) MetadataLocation() string {
	return f.Location + ".met"
}

// Step returns the step with id, or false.
func (p ExecutionPlan) Step(id string) (ExecutionStep, bool) {
	for _, step := range p.Steps {
		if step.ID == id {
			return step, true
		}
	}
	return ExecutionStep{}, false
}
