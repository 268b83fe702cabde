package snapshots

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"snapgraph/internal/core/errors"
	"snapgraph/internal/engine/graph"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "snapshots.db"), opts...)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func richSchema() graph.Schema {
	s := graph.DefaultSchema()
	s.EdgeIDType = graph.IDTypeString
	s.VertexProperties["name"] = graph.PropertyString
	s.VertexProperties["age"] = graph.PropertyInteger
	s.VertexProperties["score"] = graph.PropertyFloat
	s.VertexProperties["balance"] = graph.PropertyLong
	s.VertexProperties["active"] = graph.PropertyBoolean
	s.VertexProperties["born"] = graph.PropertyLocalDate
	s.EdgeProperties["weight"] = graph.PropertyDouble
	s.EdgeProperties["since"] = graph.PropertyTimestamp
	return s
}

func buildVersion1(t *testing.T, name string) *graph.Snapshot {
	t.Helper()
	cs := graph.NewEmptySnapshot(name, richSchema()).NewChangeSet()

	a, err := cs.AddVertex(graph.IntID(1))
	if err != nil {
		t.Fatalf("add vertex: %v", err)
	}
	for key, value := range map[string]any{
		"name":    "ada",
		"age":     36,
		"score":   float32(9.5),
		"balance": int64(1) << 40,
		"active":  true,
		"born":    "1815-12-10",
	} {
		if err := a.SetProperty(key, value); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	if err := a.AddLabel("person"); err != nil {
		t.Fatalf("add label: %v", err)
	}
	if err := a.AddLabel("author"); err != nil {
		t.Fatalf("add label: %v", err)
	}
	if _, err := cs.AddVertex(graph.IntID(-7)); err != nil {
		t.Fatalf("add vertex: %v", err)
	}

	e, err := cs.AddEdge(graph.IntID(1), graph.IntID(-7), graph.StringID("e1"))
	if err != nil {
		t.Fatalf("add edge: %v", err)
	}
	if err := e.SetLabel("knows"); err != nil {
		t.Fatalf("set label: %v", err)
	}
	if err := e.SetProperty("weight", 0.25); err != nil {
		t.Fatalf("set weight: %v", err)
	}
	if err := e.SetProperty("since", time.Date(2020, 3, 1, 12, 30, 0, 500, time.UTC)); err != nil {
		t.Fatalf("set since: %v", err)
	}

	snap, err := cs.BuildNewSnapshot(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return snap
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	snap := buildVersion1(t, "people")

	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A fresh store on the same file bypasses the cache.
	reopened, err := Open(store.Path())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Load(ctx, "people", 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Digest() != snap.Digest() {
		t.Fatalf("digest mismatch after round trip: %s != %s", got.Digest(), snap.Digest())
	}
	if diff := cmp.Diff(snap.Meta(), got.Meta()); diff != "" {
		t.Fatalf("meta mismatch (-want +got):\n%s", diff)
	}

	v, ok := got.Vertex(graph.IntID(1))
	if !ok {
		t.Fatal("expected vertex 1")
	}
	wantProps := map[string]any{
		"name":    "ada",
		"age":     int32(36),
		"score":   float32(9.5),
		"balance": int64(1) << 40,
		"active":  true,
		"born":    time.Date(1815, 12, 10, 0, 0, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(wantProps, v.Properties()); diff != "" {
		t.Fatalf("vertex properties mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"author", "person"}, v.Labels()); diff != "" {
		t.Fatalf("labels mismatch (-want +got):\n%s", diff)
	}

	e, ok := got.Edge(graph.StringID("e1"))
	if !ok {
		t.Fatal("expected edge e1")
	}
	if e.Source() != graph.IntID(1) || e.Destination() != graph.IntID(-7) || e.Label() != "knows" {
		t.Fatalf("unexpected edge %s: %s -> %s (%s)", e.ID(), e.Source(), e.Destination(), e.Label())
	}
}

func TestStore_SaveIsIdempotentAndDetectsConflicts(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	snap := buildVersion1(t, "people")

	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("second save of identical content should be a no-op: %v", err)
	}

	// Same graph and version, different content.
	cs := graph.NewEmptySnapshot("people", richSchema()).NewChangeSet()
	if _, err := cs.AddVertex(graph.IntID(99)); err != nil {
		t.Fatalf("add vertex: %v", err)
	}
	other, err := cs.BuildNewSnapshot(ctx)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	err = store.Save(ctx, other)
	if !errors.IsCode(err, errors.CodeConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}

func TestStore_LoadVersionsAndCache(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, WithCacheSize(4))
	v1 := buildVersion1(t, "people")
	if err := store.Save(ctx, v1); err != nil {
		t.Fatalf("save v1: %v", err)
	}

	cs := v1.NewChangeSet()
	if err := cs.RemoveVertex(graph.IntID(-7)); err != nil {
		t.Fatalf("remove vertex: %v", err)
	}
	v2, err := cs.BuildNewSnapshot(ctx)
	if err != nil {
		t.Fatalf("build v2: %v", err)
	}
	if err := store.Save(ctx, v2); err != nil {
		t.Fatalf("save v2: %v", err)
	}

	latest, err := store.Load(ctx, "people", 0)
	if err != nil {
		t.Fatalf("load latest: %v", err)
	}
	if latest != v2 {
		t.Fatal("expected latest load to be served from cache")
	}
	if latest.EdgeCount() != 0 {
		t.Fatalf("expected the edge to be swept with its endpoint, got %d edges", latest.EdgeCount())
	}

	first, err := store.Load(ctx, "people", 1)
	if err != nil {
		t.Fatalf("load v1: %v", err)
	}
	if first.ID() != v1.ID() {
		t.Fatalf("expected v1 id %s, got %s", v1.ID(), first.ID())
	}

	if _, err := store.Load(ctx, "people", 3); !errors.IsCode(err, errors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND for missing version, got %v", err)
	}
	if _, err := store.Load(ctx, "nobody", 0); !errors.IsCode(err, errors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND for missing graph, got %v", err)
	}
}

func TestStore_ListHistoryDelete(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	for _, name := range []string{"people", "places", "things"} {
		if err := store.Save(ctx, buildVersion1(t, name)); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}

	all, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	names := make([]string, 0, len(all))
	for _, s := range all {
		names = append(names, s.Name)
	}
	if diff := cmp.Diff([]string{"people", "places", "things"}, names); diff != "" {
		t.Fatalf("list mismatch (-want +got):\n%s", diff)
	}

	matched, err := store.List(ctx, "p*")
	if err != nil {
		t.Fatalf("list pattern: %v", err)
	}
	if len(matched) != 2 {
		t.Fatalf("expected 2 graphs matching p*, got %d", len(matched))
	}
	if matched[0].VertexCount != 2 || matched[0].EdgeCount != 1 || matched[0].Digest == "" {
		t.Fatalf("unexpected summary %+v", matched[0])
	}

	hist, err := store.History(ctx, "people")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 || hist[0].Version != 1 {
		t.Fatalf("unexpected history %+v", hist)
	}

	n, err := store.Delete(ctx, "people")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted snapshot, got %d", n)
	}
	if _, err := store.History(ctx, "people"); !errors.IsCode(err, errors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND after delete, got %v", err)
	}
	if _, err := store.Load(ctx, "people", 1); !errors.IsCode(err, errors.CodeNotFound) {
		t.Fatalf("expected cache eviction on delete, got %v", err)
	}
}

func TestOpen_RejectsDirectoryAndEmptyPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := Open(t.TempDir()); err == nil {
		t.Fatal("expected error for directory path")
	}
}

func TestOpen_ReportsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.db")
	if err := os.WriteFile(path, bytes.Repeat([]byte("not sqlite "), 200), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path)
	if err == nil {
		t.Fatal("expected error for corrupt database")
	}
	if !IsCorruptError(err) {
		t.Fatalf("expected corrupt error, got %v", err)
	}
}
