package specvalidator

import (
	"fmt"
	"strings"
)

// ValidationError lists every problem found in one template.
type ValidationError struct {
	Template string
	Issues   []string
}

func (e *ValidationError) Error() string {
	subject := "template"
	if e.Template != "" {
		subject = fmt.Sprintf("template %q", e.Template)
	}
	if len(e.Issues) == 0 {
		return subject + " is invalid"
	}
	return subject + " is invalid: " + strings.Join(e.Issues, "; ")
}

func (e *ValidationError) Addf(format string, args ...any) {
	e.Issues = append(e.Issues, fmt.Sprintf(format, args...))
}

// OrNil returns e when it holds at least one issue.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}
