// Package graph is the subject-predicate-object store capability the run
// repository persists into.
//
// A Graph is an addressable set of triples held in memory. Writes accumulate
// until Save, which hands the whole snapshot to a Backend; each Save is atomic
// for its url, but nothing spans two urls.
package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	RDFType        = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	RDFSSubClassOf = "http://www.w3.org/2000/01/rdf-schema#subClassOf"
	XSDString      = "http://www.w3.org/2001/XMLSchema#string"
	XSDDateTime    = "http://www.w3.org/2001/XMLSchema#dateTime"
)

// ErrNoGraph is returned by a Backend when nothing is stored at a url.
var ErrNoGraph = errors.New("graph not found")

type Kind uint8

const (
	KindResource Kind = iota + 1
	KindLiteral
)

// Value is the object of a triple. The zero Value means "no value".
type Value struct {
	Kind     Kind
	Text     string
	Datatype string
}

func Resource(id string) Value {
	return Value{Kind: KindResource, Text: id}
}

func Literal(text string) Value {
	return Value{Kind: KindLiteral, Text: text, Datatype: XSDString}
}

// DateTime returns an xsd:dateTime literal, or the zero Value for nil.
func DateTime(t *time.Time) Value {
	if t == nil || t.IsZero() {
		return Value{}
	}
	return Value{Kind: KindLiteral, Text: t.UTC().Format(time.RFC3339Nano), Datatype: XSDDateTime}
}

func (v Value) IsZero() bool {
	return v.Kind == 0
}

func (v Value) IsResource() bool {
	return v.Kind == KindResource
}

// Time parses an xsd:dateTime literal.
func (v Value) Time() (time.Time, error) {
	if v.Kind != KindLiteral || v.Datatype != XSDDateTime {
		return time.Time{}, fmt.Errorf("value %q is not a dateTime", v.Text)
	}
	return time.Parse(time.RFC3339Nano, v.Text)
}

type Triple struct {
	Subject   string
	Predicate string
	Object    Value
}

// Individual is a typed subject of a store.
type Individual struct {
	ID string
}

// Store is the capability the repository and catalog depend on.
type Store interface {
	URL() string
	CreateIndividual(id, class string) *Individual
	// Individual returns nil for an id that is not the subject of any triple.
	Individual(id string) *Individual
	SetProperty(subject, predicate string, value Value)
	AddProperty(subject, predicate string, value Value)
	Property(subject, predicate string) (Value, bool)
	Properties(subject, predicate string) []Value
	IndividualsOf(class string, transitive bool) []*Individual
	RemoveAllWith(id string)
	Triples() []Triple
	Save(ctx context.Context) error
	SaveAs(ctx context.Context, url string) error
	Delete(ctx context.Context) error
}

// Backend persists whole snapshots keyed by url.
type Backend interface {
	Load(ctx context.Context, url string) ([]Triple, error)
	Store(ctx context.Context, url string, triples []Triple) error
	Remove(ctx context.Context, url string) error
}

// Factory opens stores over a single Backend.
type Factory struct {
	backend Backend
}

func NewFactory(backend Backend) *Factory {
	if backend == nil {
		return nil
	}
	return &Factory{backend: backend}
}

// Open loads the store at url, or returns an empty one bound to url when
// nothing was saved there yet.
func (f *Factory) Open(ctx context.Context, url string) (Store, error) {
	if f == nil || f.backend == nil {
		return nil, errors.New("graph factory not initialized")
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("graph url is required")
	}
	triples, err := f.backend.Load(ctx, url)
	if err != nil && !errors.Is(err, ErrNoGraph) {
		return nil, fmt.Errorf("load graph %s: %w", url, err)
	}
	g := newGraph(f.backend, url)
	for _, t := range triples {
		g.add(t)
	}
	return g, nil
}

// New returns an unaddressed store; it must be committed with SaveAs.
func (f *Factory) New() Store {
	if f == nil {
		return newGraph(nil, "")
	}
	return newGraph(f.backend, "")
}

// Graph is the in-memory Store implementation.
type Graph struct {
	backend  Backend
	url      string
	triples  []Triple
	present  map[Triple]struct{}
	subjects map[string]int
}

func newGraph(backend Backend, url string) *Graph {
	return &Graph{backend: backend, url: url, present: map[Triple]struct{}{}, subjects: map[string]int{}}
}

func (g *Graph) URL() string {
	return g.url
}

func (g *Graph) CreateIndividual(id, class string) *Individual {
	g.add(Triple{Subject: id, Predicate: RDFType, Object: Resource(class)})
	return &Individual{ID: id}
}

func (g *Graph) Individual(id string) *Individual {
	if g.subjects[id] == 0 {
		return nil
	}
	return &Individual{ID: id}
}

func (g *Graph) SetProperty(subject, predicate string, value Value) {
	g.remove(func(t Triple) bool {
		return t.Subject == subject && t.Predicate == predicate
	})
	if !value.IsZero() {
		g.add(Triple{Subject: subject, Predicate: predicate, Object: value})
	}
}

func (g *Graph) AddProperty(subject, predicate string, value Value) {
	if value.IsZero() {
		return
	}
	g.add(Triple{Subject: subject, Predicate: predicate, Object: value})
}

func (g *Graph) Property(subject, predicate string) (Value, bool) {
	for _, t := range g.triples {
		if t.Subject == subject && t.Predicate == predicate {
			return t.Object, true
		}
	}
	return Value{}, false
}

func (g *Graph) Properties(subject, predicate string) []Value {
	var out []Value
	for _, t := range g.triples {
		if t.Subject == subject && t.Predicate == predicate {
			out = append(out, t.Object)
		}
	}
	return out
}

// IndividualsOf returns subjects typed with class, in first-typed order. With
// transitive set, subjects typed with any rdfs:subClassOf descendant count too.
func (g *Graph) IndividualsOf(class string, transitive bool) []*Individual {
	classes := map[string]struct{}{class: {}}
	if transitive {
		for changed := true; changed; {
			changed = false
			for _, t := range g.triples {
				if t.Predicate != RDFSSubClassOf || !t.Object.IsResource() {
					continue
				}
				if _, ok := classes[t.Object.Text]; !ok {
					continue
				}
				if _, ok := classes[t.Subject]; !ok {
					classes[t.Subject] = struct{}{}
					changed = true
				}
			}
		}
	}
	seen := map[string]struct{}{}
	var out []*Individual
	for _, t := range g.triples {
		if t.Predicate != RDFType || !t.Object.IsResource() {
			continue
		}
		if _, ok := classes[t.Object.Text]; !ok {
			continue
		}
		if _, ok := seen[t.Subject]; ok {
			continue
		}
		seen[t.Subject] = struct{}{}
		out = append(out, &Individual{ID: t.Subject})
	}
	return out
}

// RemoveAllWith drops every triple that has id as subject or as resource object.
func (g *Graph) RemoveAllWith(id string) {
	g.remove(func(t Triple) bool {
		return t.Subject == id || (t.Object.IsResource() && t.Object.Text == id)
	})
}

func (g *Graph) Triples() []Triple {
	out := make([]Triple, len(g.triples))
	copy(out, g.triples)
	return out
}

func (g *Graph) Save(ctx context.Context) error {
	if g.backend == nil {
		return errors.New("graph has no backend")
	}
	if g.url == "" {
		return errors.New("graph has no url")
	}
	if err := g.backend.Store(ctx, g.url, g.Triples()); err != nil {
		return fmt.Errorf("save graph %s: %w", g.url, err)
	}
	return nil
}

func (g *Graph) SaveAs(ctx context.Context, url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return errors.New("graph url is required")
	}
	g.url = url
	return g.Save(ctx)
}

// Delete drops the whole store from the backend and empties it.
func (g *Graph) Delete(ctx context.Context) error {
	if g.backend == nil {
		return errors.New("graph has no backend")
	}
	if g.url == "" {
		return errors.New("graph has no url")
	}
	if err := g.backend.Remove(ctx, g.url); err != nil && !errors.Is(err, ErrNoGraph) {
		return fmt.Errorf("delete graph %s: %w", g.url, err)
	}
	g.triples = nil
	g.present = map[Triple]struct{}{}
	g.subjects = map[string]int{}
	return nil
}

func (g *Graph) add(t Triple) {
	if _, ok := g.present[t]; ok {
		return
	}
	g.present[t] = struct{}{}
	g.triples = append(g.triples, t)
	g.subjects[t.Subject]++
}

func (g *Graph) remove(match func(Triple) bool) {
	kept := g.triples[:0]
	for _, t := range g.triples {
		if match(t) {
			delete(g.present, t)
			g.subjects[t.Subject]--
			if g.subjects[t.Subject] <= 0 {
				delete(g.subjects, t.Subject)
			}
			continue
		}
		kept = append(kept, t)
	}
	g.triples = kept
}
