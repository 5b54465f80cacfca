package specvalidator

import (
	"regexp"
	"strings"

	"github.com/animus-labs/runledger/internal/domain"
)

var stepNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidateTemplate performs strict validation of a workflow template.
func ValidateTemplate(tpl domain.Template) error {
	issues := &ValidationError{Template: strings.TrimSpace(tpl.Name)}

	if strings.TrimSpace(tpl.Name) == "" {
		issues.Addf("name is required")
	}
	if len(tpl.Steps) == 0 {
		issues.Addf("steps must contain at least one step")
		return issues.OrNil()
	}

	stepNames := make(map[string]struct{}, len(tpl.Steps))
	outputs := make(map[string]string, len(tpl.Steps))
	for i, step := range tpl.Steps {
		name := strings.TrimSpace(step.Name)
		if name == "" {
			issues.Addf("step[%d] name is required", i)
			continue
		}
		if !stepNamePattern.MatchString(name) {
			issues.Addf("step[%s] name must match %s", name, stepNamePattern.String())
		}
		if _, exists := stepNames[name]; exists {
			issues.Addf("duplicate step name %q", name)
		}
		stepNames[name] = struct{}{}

		if strings.TrimSpace(step.Component) == "" {
			issues.Addf("step[%s] component is required", name)
		}
		for _, out := range step.Outputs {
			out = strings.TrimSpace(out)
			if out == "" {
				issues.Addf("step[%s] has an empty output", name)
				continue
			}
			if owner, ok := outputs[out]; ok {
				issues.Addf("output %q produced by both %q and %q", out, owner, name)
				continue
			}
			outputs[out] = name
		}
	}

	adj := make(map[string][]string, len(stepNames))
	for _, link := range tpl.Links {
		from := strings.TrimSpace(link.From)
		to := strings.TrimSpace(link.To)
		if from == "" || to == "" {
			issues.Addf("links must specify from and to")
			continue
		}
		if from == to {
			issues.Addf("link %q has self-edge", from)
			continue
		}
		if _, ok := stepNames[from]; !ok {
			issues.Addf("link from %q not found", from)
			continue
		}
		if _, ok := stepNames[to]; !ok {
			issues.Addf("link to %q not found", to)
			continue
		}
		adj[from] = append(adj[from], to)
	}

	if hasCycle(adj, stepNames) {
		issues.Addf("link graph contains a cycle")
	}

	return issues.OrNil()
}

func hasCycle(adj map[string][]string, nodes map[string]struct{}) bool {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(nodes))
	var visit func(string) bool
	visit = func(node string) bool {
		switch state[node] {
		case visiting:
			return true
		case done:
			return false
		}
		state[node] = visiting
		for _, next := range adj[node] {
			if visit(next) {
				return true
			}
		}
		state[node] = done
		return false
	}

	for node := range nodes {
		if state[node] == unvisited {
			if visit(node) {
				return true
			}
		}
	}
	return false
}
