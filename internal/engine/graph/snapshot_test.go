package graph

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"snapgraph/internal/core/errors"
)

func TestRestoreSnapshot_PreservesContentAndDigest(t *testing.T) {
	orig := seedGraph(t)

	var vertices []VertexRecord
	for _, v := range orig.Vertices() {
		vertices = append(vertices, VertexRecord{ID: v.ID(), Labels: v.Labels(), Properties: v.Properties()})
	}
	var edges []EdgeRecord
	for _, e := range orig.Edges() {
		edges = append(edges, EdgeRecord{ID: e.ID(), Source: e.Source(), Dest: e.Destination(), Label: e.Label(), Properties: e.Properties()})
	}

	restored, err := RestoreSnapshot(orig.Meta(), orig.Schema(), vertices, edges)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.ID() != orig.ID() || restored.Version() != orig.Version() {
		t.Fatalf("identity not restored: %v@%d", restored.ID(), restored.Version())
	}
	if restored.Digest() != orig.Digest() {
		t.Fatalf("digest mismatch: %s vs %s", restored.Digest(), orig.Digest())
	}
}

func TestRestoreSnapshot_RejectsDanglingEdge(t *testing.T) {
	meta := SnapshotMeta{ID: uuid.New(), Name: "g", Version: 1, CreatedAt: time.Now()}
	_, err := RestoreSnapshot(meta, DefaultSchema(),
		[]VertexRecord{{ID: IntID(1)}},
		[]EdgeRecord{{ID: IntID(1), Source: IntID(1), Dest: IntID(2)}})
	if !errors.IsCode(err, errors.CodeValidationError) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestSnapshot_IterationIsOrdered(t *testing.T) {
	cs := NewEmptySnapshot("g", DefaultSchema()).NewChangeSet()
	for _, id := range []int64{30, -4, 2, 11} {
		if _, err := cs.AddVertex(IntID(id)); err != nil {
			t.Fatal(err)
		}
	}
	snap, err := cs.BuildNewSnapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var got []int64
	for _, v := range snap.Vertices() {
		n, _ := v.ID().Int()
		got = append(got, n)
	}
	want := []int64{-4, 2, 11, 30}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestSnapshot_AccessorsReturnCopies(t *testing.T) {
	snap := seedGraph(t)
	v, _ := snap.Vertex(IntID(1))
	props := v.Properties()
	props["name"] = "mallory"
	if _, ok := v.Property("name"); ok {
		t.Fatal("mutating the returned map leaked into the snapshot")
	}
	labels := v.Labels()
	labels[0] = "changed"
	if !v.HasLabel("person") {
		t.Fatal("mutating the returned labels leaked into the snapshot")
	}
}
