package objstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/animus-labs/runledger/internal/graph"
	"github.com/animus-labs/runledger/internal/storage/objectstore"
)

type fakeObjectStore struct {
	objects map[string][]byte
	putErr  error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}}
}

func (f *fakeObjectStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(raw)) != size {
		return errors.New("size mismatch")
	}
	f.objects[key] = raw
	return nil
}

func (f *fakeObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, objectstore.ObjectInfo, error) {
	raw, ok := f.objects[key]
	if !ok {
		return nil, objectstore.ObjectInfo{}, objectstore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), objectstore.ObjectInfo{Key: key, Size: int64(len(raw))}, nil
}

func (f *fakeObjectStore) Delete(ctx context.Context, key string) error {
	if _, ok := f.objects[key]; !ok {
		return objectstore.ErrNotFound
	}
	delete(f.objects, key)
	return nil
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	objects := newFakeObjectStore()
	factory := graph.NewFactory(New(objects))

	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store := factory.New()
	store.CreateIndividual("run-1", "urn:Execution")
	store.SetProperty("run-1", "urn:hasStartTime", graph.DateTime(&started))
	store.AddProperty("run-1", "urn:hasStep", graph.Resource("step-1"))
	if err := store.SaveAs(ctx, "http://example.test/runs/run-1"); err != nil {
		t.Fatalf("SaveAs() err=%v", err)
	}
	if _, ok := objects.objects[ObjectKey("http://example.test/runs/run-1")]; !ok {
		t.Fatalf("expected object under escaped key")
	}

	reopened, err := factory.Open(ctx, "http://example.test/runs/run-1")
	if err != nil {
		t.Fatalf("Open() err=%v", err)
	}
	if diff := cmp.Diff(store.Triples(), reopened.Triples()); diff != "" {
		t.Fatalf("triples mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissingIsEmpty(t *testing.T) {
	factory := graph.NewFactory(New(newFakeObjectStore()))
	store, err := factory.Open(context.Background(), "http://example.test/none")
	if err != nil {
		t.Fatalf("Open() err=%v", err)
	}
	if len(store.Triples()) != 0 {
		t.Fatalf("expected empty store")
	}
}

func TestRemoveMissingMapsToNoGraph(t *testing.T) {
	b := New(newFakeObjectStore())
	if err := b.Remove(context.Background(), "http://example.test/none"); !errors.Is(err, graph.ErrNoGraph) {
		t.Fatalf("expected ErrNoGraph, got %v", err)
	}
}

func TestStoreFailureIsWrapped(t *testing.T) {
	objects := newFakeObjectStore()
	objects.putErr = errors.New("bucket offline")
	b := New(objects)
	err := b.Store(context.Background(), "http://example.test/g", nil)
	if err == nil || !strings.Contains(err.Error(), "bucket offline") {
		t.Fatalf("expected wrapped put error, got %v", err)
	}
}

func TestObjectKeyEscapesURL(t *testing.T) {
	key := ObjectKey("http://example.test/a b/c")
	if strings.Contains(key, " ") || !strings.HasPrefix(key, keyPrefix) {
		t.Fatalf("unexpected key %q", key)
	}
}
