// Package inmemory provides an ephemeral graph.Backend for local runs and tests.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/animus-labs/runledger/internal/graph"
)

// Backend keeps snapshots in a map. Safe for concurrent use.
type Backend struct {
	mu     sync.RWMutex
	graphs map[string][]graph.Triple
}

func New() *Backend {
	return &Backend{graphs: map[string][]graph.Triple{}}
}

func (b *Backend) Load(ctx context.Context, url string) ([]graph.Triple, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	triples, ok := b.graphs[url]
	if !ok {
		return nil, graph.ErrNoGraph
	}
	out := make([]graph.Triple, len(triples))
	copy(out, triples)
	return out, nil
}

func (b *Backend) Store(ctx context.Context, url string, triples []graph.Triple) error {
	snapshot := make([]graph.Triple, len(triples))
	copy(snapshot, triples)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.graphs[url] = snapshot
	return nil
}

func (b *Backend) Remove(ctx context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.graphs[url]; !ok {
		return graph.ErrNoGraph
	}
	delete(b.graphs, url)
	return nil
}

// URLs lists the stored urls in sorted order.
func (b *Backend) URLs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.graphs))
	for url := range b.graphs {
		out = append(out, url)
	}
	sort.Strings(out)
	return out
}

// Has reports whether a snapshot is stored at url.
func (b *Backend) Has(url string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.graphs[url]
	return ok
}
