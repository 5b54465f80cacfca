// Package catalog loads and saves templates and execution plans as opaque
// documents. Each document lives in its own graph store at the url of its id,
// so replacing or dropping a document never touches other records.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/animus-labs/runledger/internal/domain"
	"github.com/animus-labs/runledger/internal/execution/plan"
	"github.com/animus-labs/runledger/internal/graph"
)

var ErrNotFound = errors.New("document not found")

const (
	classTemplate      = "TemplateDocument"
	classExecutionPlan = "ExecutionPlanDocument"
	predDocument       = "hasDocument"
	predStage          = "hasStage"
)

// Catalog is the template and execution plan loader.
type Catalog struct {
	graphs    *graph.Factory
	namespace string
}

func New(graphs *graph.Factory, namespace string) *Catalog {
	if graphs == nil {
		return nil
	}
	return &Catalog{graphs: graphs, namespace: strings.TrimSpace(namespace)}
}

// ParseTemplate decodes a YAML workflow template.
func ParseTemplate(input []byte) (domain.Template, error) {
	var tpl domain.Template
	if err := yaml.Unmarshal(input, &tpl); err != nil {
		return domain.Template{}, fmt.Errorf("decode template: %w", err)
	}
	if tpl.Stage == "" {
		tpl.Stage = domain.StageSeeded
	}
	return tpl, nil
}

func (c *Catalog) LoadTemplate(ctx context.Context, id string) (domain.Template, error) {
	raw, err := c.load(ctx, id, classTemplate)
	if err != nil {
		return domain.Template{}, err
	}
	tpl, err := ParseTemplate([]byte(raw))
	if err != nil {
		return domain.Template{}, err
	}
	tpl.ID = id
	return tpl, nil
}

// SaveTemplate stores tpl under id, replacing whatever document was there.
func (c *Catalog) SaveTemplate(ctx context.Context, tpl domain.Template, id string) error {
	tpl.ID = strings.TrimSpace(id)
	raw, err := yaml.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("encode template: %w", err)
	}
	return c.save(ctx, tpl.ID, classTemplate, string(raw), func(store graph.Store) {
		store.SetProperty(tpl.ID, c.term(predStage), graph.Literal(string(tpl.Stage)))
	})
}

func (c *Catalog) LoadExecutionPlan(ctx context.Context, id string) (domain.ExecutionPlan, error) {
	raw, err := c.load(ctx, id, classExecutionPlan)
	if err != nil {
		return domain.ExecutionPlan{}, err
	}
	ep, err := plan.UnmarshalExecutionPlan([]byte(raw))
	if err != nil {
		return domain.ExecutionPlan{}, fmt.Errorf("decode execution plan: %w", err)
	}
	ep.ID = id
	return ep, nil
}

// SaveExecutionPlan stores ep under id, replacing whatever document was there.
func (c *Catalog) SaveExecutionPlan(ctx context.Context, ep domain.ExecutionPlan, id string) error {
	ep.ID = strings.TrimSpace(id)
	raw, err := plan.MarshalExecutionPlan(ep)
	if err != nil {
		return fmt.Errorf("encode execution plan: %w", err)
	}
	return c.save(ctx, ep.ID, classExecutionPlan, string(raw), nil)
}

// Delete drops the store holding the document with id. Deleting a missing
// document is not an error.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if c == nil || c.graphs == nil {
		return fmt.Errorf("catalog not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("document id is required")
	}
	store, err := c.graphs.Open(ctx, domain.URLOf(id))
	if err != nil {
		return err
	}
	if err := store.Delete(ctx); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

func (c *Catalog) load(ctx context.Context, id, class string) (string, error) {
	if c == nil || c.graphs == nil {
		return "", fmt.Errorf("catalog not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("document id is required")
	}
	store, err := c.graphs.Open(ctx, domain.URLOf(id))
	if err != nil {
		return "", err
	}
	typ, ok := store.Property(id, graph.RDFType)
	if !ok || typ.Text != c.term(class) {
		return "", fmt.Errorf("%s %s: %w", class, id, ErrNotFound)
	}
	doc, ok := store.Property(id, c.term(predDocument))
	if !ok {
		return "", fmt.Errorf("%s %s: %w", class, id, ErrNotFound)
	}
	return doc.Text, nil
}

func (c *Catalog) save(ctx context.Context, id, class, doc string, annotate func(graph.Store)) error {
	if c == nil || c.graphs == nil {
		return fmt.Errorf("catalog not initialized")
	}
	if id == "" {
		return fmt.Errorf("document id is required")
	}
	store, err := c.graphs.Open(ctx, domain.URLOf(id))
	if err != nil {
		return err
	}
	store.RemoveAllWith(id)
	store.CreateIndividual(id, c.term(class))
	store.SetProperty(id, c.term(predDocument), graph.Literal(doc))
	if annotate != nil {
		annotate(store)
	}
	if err := store.Save(ctx); err != nil {
		return fmt.Errorf("save document %s: %w", id, err)
	}
	return nil
}

func (c *Catalog) term(local string) string {
	return c.namespace + local
}
