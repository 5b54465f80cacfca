package repo

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDetailMissing marks an index entry whose private detail record is gone.
	ErrDetailMissing = errors.New("run detail record missing")
)

// DeleteStage names a step of the cascading run deletion.
type DeleteStage string

const (
	StageExpandedTemplate DeleteStage = "expanded_template"
	StageSeededTemplate   DeleteStage = "seeded_template"
	StageExecutionPlan    DeleteStage = "execution_plan"
	StageOutputFiles      DeleteStage = "output_files"
	StageDetailRecord     DeleteStage = "detail_record"
	StageIndex            DeleteStage = "index"
)

// DeleteError reports the stage at which a run deletion stopped. Stages before
// it were applied and are not rolled back.
type DeleteError struct {
	RunID string
	Stage DeleteStage
	Err   error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("delete run %s: %s: %v", e.RunID, e.Stage, e.Err)
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}
