package domain

import (
	"sort"
	"strings"
)

// TemplateStage names the refinement stage a template has reached.
type TemplateStage string

const (
	StageSeeded      TemplateStage = "seeded"
	StageInferred    TemplateStage = "inferred"
	StageSpecialized TemplateStage = "specialized"
	StageBound       TemplateStage = "bound"
	StageConfigured  TemplateStage = "configured"
	StageExpanded    TemplateStage = "expanded"
)

// Template is a declarative workflow description at a given refinement stage.
type Template struct {
	ID      string            `yaml:"id" json:"id"`
	Name    string            `yaml:"name" json:"name"`
	Stage   TemplateStage     `yaml:"stage" json:"stage"`
	Steps   []TemplateStep    `yaml:"steps" json:"steps"`
	Links   []TemplateLink    `yaml:"links" json:"links"`
	Metrics map[string]string `yaml:"metrics,omitempty" json:"metrics,omitempty"`
}

type TemplateStep struct {
	Name      string            `yaml:"name" json:"name"`
	Component string            `yaml:"component" json:"component"`
	Inputs    []string          `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs   []string          `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Params    map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
	Position  *Position         `yaml:"position,omitempty" json:"position,omitempty"`
}

// TemplateLink is a dependency edge: To consumes what From produces.
type TemplateLink struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

type Position struct {
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`
}

const (
	layoutColumnWidth = 200
	layoutRowHeight   = 120
)

// AutoLayout positions steps in rows by dependency depth and in columns by
// name within a row. Steps on a cycle keep depth zero.
func (t *Template) AutoLayout() {
	depth := make(map[string]int, len(t.Steps))
	parents := make(map[string][]string, len(t.Steps))
	for _, link := range t.Links {
		parents[link.To] = append(parents[link.To], link.From)
	}
	var visit func(name string, seen map[string]bool) int
	visit = func(name string, seen map[string]bool) int {
		if d, ok := depth[name]; ok {
			return d
		}
		if seen[name] {
			return 0
		}
		seen[name] = true
		d := 0
		for _, p := range parents[name] {
			if pd := visit(p, seen) + 1; pd > d {
				d = pd
			}
		}
		depth[name] = d
		return d
	}
	rows := map[int][]string{}
	for _, step := range t.Steps {
		d := visit(step.Name, map[string]bool{})
		rows[d] = append(rows[d], step.Name)
	}
	column := map[string]int{}
	for _, names := range rows {
		sort.Strings(names)
		for i, name := range names {
			column[name] = i
		}
	}
	for i := range t.Steps {
		name := t.Steps[i].Name
		t.Steps[i].Position = &Position{
			X: column[name] * layoutColumnWidth,
			Y: depth[name] * layoutRowHeight,
		}
	}
}

// Clone returns a deep copy so generator stages never share step slices.
func (t Template) Clone() Template {
	out := t
	out.Steps = make([]TemplateStep, len(t.Steps))
	for i, step := range t.Steps {
		cp := step
		cp.Inputs = append([]string(nil), step.Inputs...)
		cp.Outputs = append([]string(nil), step.Outputs...)
		if step.Params != nil {
			cp.Params = make(map[string]string, len(step.Params))
			for k, v := range step.Params {
				cp.Params[k] = v
			}
		}
		if step.Position != nil {
			pos := *step.Position
			cp.Position = &pos
		}
		out.Steps[i] = cp
	}
	out.Links = append([]TemplateLink(nil), t.Links...)
	if t.Metrics != nil {
		out.Metrics = make(map[string]string, len(t.Metrics))
		for k, v := range t.Metrics {
			out.Metrics[k] = v
		}
	}
	return out
}

// StepNames returns the set of declared step names.
func (t Template) StepNames() map[string]struct{} {
	names := make(map[string]struct{}, len(t.Steps))
	for _, step := range t.Steps {
		if strings.TrimSpace(step.Name) == "" {
			continue
		}
		names[step.Name] = struct{}{}
	}
	return names
}
