// Package objstore persists graph snapshots as JSON objects in an
// S3-compatible bucket, one object per graph url.
package objstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/animus-labs/runledger/internal/graph"
	"github.com/animus-labs/runledger/internal/storage/objectstore"
)

const (
	contentType = "application/json"
	keyPrefix   = "graphs/"
)

type Backend struct {
	store objectstore.Store
}

func New(store objectstore.Store) *Backend {
	if store == nil {
		return nil
	}
	return &Backend{store: store}
}

// ObjectKey is the bucket key holding the snapshot of graphURL.
func ObjectKey(graphURL string) string {
	return keyPrefix + url.PathEscape(strings.TrimSpace(graphURL)) + ".json"
}

func (b *Backend) Load(ctx context.Context, graphURL string) ([]graph.Triple, error) {
	if b == nil || b.store == nil {
		return nil, fmt.Errorf("graph backend not initialized")
	}
	body, _, err := b.store.Get(ctx, ObjectKey(graphURL))
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return nil, graph.ErrNoGraph
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return unmarshalSnapshot(raw)
}

func (b *Backend) Store(ctx context.Context, graphURL string, triples []graph.Triple) error {
	if b == nil || b.store == nil {
		return fmt.Errorf("graph backend not initialized")
	}
	raw, err := marshalSnapshot(graphURL, triples)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := b.store.Put(ctx, ObjectKey(graphURL), bytes.NewReader(raw), int64(len(raw)), contentType); err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	return nil
}

func (b *Backend) Remove(ctx context.Context, graphURL string) error {
	if b == nil || b.store == nil {
		return fmt.Errorf("graph backend not initialized")
	}
	if err := b.store.Delete(ctx, ObjectKey(graphURL)); err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return graph.ErrNoGraph
		}
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

type snapshotPayload struct {
	URL     string          `json:"url"`
	Triples []triplePayload `json:"triples"`
}

type triplePayload struct {
	Subject   string `json:"s"`
	Predicate string `json:"p"`
	Kind      string `json:"kind"`
	Object    string `json:"o"`
	Datatype  string `json:"datatype,omitempty"`
}

func marshalSnapshot(graphURL string, triples []graph.Triple) ([]byte, error) {
	payload := snapshotPayload{
		URL:     graphURL,
		Triples: make([]triplePayload, 0, len(triples)),
	}
	for _, t := range triples {
		kind := "literal"
		if t.Object.IsResource() {
			kind = "resource"
		}
		payload.Triples = append(payload.Triples, triplePayload{
			Subject:   t.Subject,
			Predicate: t.Predicate,
			Kind:      kind,
			Object:    t.Object.Text,
			Datatype:  t.Object.Datatype,
		})
	}
	return json.Marshal(payload)
}

func unmarshalSnapshot(raw []byte) ([]graph.Triple, error) {
	var payload snapshotPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	triples := make([]graph.Triple, 0, len(payload.Triples))
	for _, t := range payload.Triples {
		obj := graph.Value{Kind: graph.KindLiteral, Text: t.Object, Datatype: t.Datatype}
		switch t.Kind {
		case "resource":
			obj = graph.Resource(t.Object)
		case "literal":
		default:
			return nil, fmt.Errorf("decode snapshot: unknown object kind %q", t.Kind)
		}
		triples = append(triples, graph.Triple{Subject: t.Subject, Predicate: t.Predicate, Object: obj})
	}
	return triples, nil
}
