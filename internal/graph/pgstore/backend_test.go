package pgstore

import (
	"context"
	"strings"
	"testing"
)

func TestTriplesAreScopedAndOrdered(t *testing.T) {
	if !strings.Contains(selectTriplesQuery, "graph_url = $1") {
		t.Fatalf("expected graph_url predicate in select query")
	}
	if !strings.Contains(selectTriplesQuery, "ORDER BY ordinal ASC") {
		t.Fatalf("expected ordinal ordering in select query")
	}
	if !strings.Contains(deleteTriplesQuery, "graph_url = $1") {
		t.Fatalf("expected graph_url predicate in delete query")
	}
}

func TestSchemaCascadesTriplesWithGraph(t *testing.T) {
	if !strings.Contains(createTriplesTableQuery, "ON DELETE CASCADE") {
		t.Fatalf("expected triples to cascade with their graph row")
	}
	if !strings.Contains(createTriplesTableQuery, "PRIMARY KEY (graph_url, ordinal)") {
		t.Fatalf("expected ordinal primary key")
	}
	if !strings.Contains(upsertGraphQuery, "ON CONFLICT (graph_url) DO UPDATE") {
		t.Fatalf("expected idempotent graph upsert")
	}
}

func TestNilBackend(t *testing.T) {
	if New(nil) != nil {
		t.Fatalf("expected nil backend for nil db")
	}
	var b *Backend
	if _, err := b.Load(context.Background(), "u"); err == nil {
		t.Fatalf("expected error from uninitialized backend")
	}
}
