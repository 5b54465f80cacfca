package specvalidator

import (
	"errors"
	"strings"
	"testing"

	"github.com/animus-labs/runledger/internal/domain"
)

func validTemplate() domain.Template {
	return domain.Template{
		Name: "wordcount",
		Steps: []domain.TemplateStep{
			{Name: "fetch", Component: "Fetch", Outputs: []string{"corpus"}},
			{Name: "count", Component: "Count", Inputs: []string{"corpus"}, Outputs: []string{"counts"}},
		},
		Links: []domain.TemplateLink{{From: "fetch", To: "count"}},
	}
}

func TestValidateTemplateAcceptsValid(t *testing.T) {
	if err := ValidateTemplate(validTemplate()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateTemplateIssues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Template)
		want   string
	}{
		{
			name:   "no steps",
			mutate: func(tpl *domain.Template) { tpl.Steps = nil },
			want:   "at least one step",
		},
		{
			name:   "duplicate step",
			mutate: func(tpl *domain.Template) { tpl.Steps[1].Name = "fetch" },
			want:   "duplicate step name",
		},
		{
			name:   "missing component",
			mutate: func(tpl *domain.Template) { tpl.Steps[0].Component = "" },
			want:   "component is required",
		},
		{
			name:   "unknown link target",
			mutate: func(tpl *domain.Template) { tpl.Links = append(tpl.Links, domain.TemplateLink{From: "fetch", To: "ghost"}) },
			want:   `link to "ghost" not found`,
		},
		{
			name:   "cycle",
			mutate: func(tpl *domain.Template) { tpl.Links = append(tpl.Links, domain.TemplateLink{From: "count", To: "fetch"}) },
			want:   "contains a cycle",
		},
		{
			name:   "shared output",
			mutate: func(tpl *domain.Template) { tpl.Steps[1].Outputs = []string{"corpus"} },
			want:   "produced by both",
		},
	}

	for _, tc := range tests {
		tpl := validTemplate().Clone()
		tc.mutate(&tpl)
		err := ValidateTemplate(tpl)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.name, err)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected %q in %q", tc.name, tc.want, err.Error())
		}
	}
}
