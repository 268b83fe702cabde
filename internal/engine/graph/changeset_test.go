package graph

import (
	"bytes"
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapgraph/internal/core/errors"
)

func testSchema(idType IDType) Schema {
	s := DefaultSchema()
	s.VertexIDType = idType
	s.EdgeIDType = idType
	s.VertexProperties["name"] = PropertyString
	s.VertexProperties["age"] = PropertyInteger
	s.EdgeProperties["weight"] = PropertyDouble
	return s
}

// seedGraph builds version 1 with vertices 1..3 and edges 10 (1->2), 11 (2->3).
func seedGraph(t *testing.T) *Snapshot {
	t.Helper()
	cs := NewEmptySnapshot("social", testSchema(IDTypeInteger)).NewChangeSet()
	for i := int64(1); i <= 3; i++ {
		v, err := cs.AddVertex(IntID(i))
		require.NoError(t, err)
		require.NoError(t, v.AddLabel("person"))
	}
	_, err := cs.AddEdge(IntID(1), IntID(2), IntID(10))
	require.NoError(t, err)
	e, err := cs.AddEdge(IntID(2), IntID(3), IntID(11))
	require.NoError(t, err)
	require.NoError(t, e.SetLabel("knows"))

	snap, err := cs.BuildNewSnapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, snap.VertexCount())
	require.Equal(t, 2, snap.EdgeCount())
	return snap
}

func canonical(s *Snapshot) string {
	var buf bytes.Buffer
	s.writeCanonical(&buf)
	return buf.String()
}

func TestChangeSet_ResetVertexMatchesUntouched(t *testing.T) {
	base := seedGraph(t)
	ctx := context.Background()

	touched := base.NewChangeSet()
	untouched := base.NewChangeSet()

	// Same unrelated change on both.
	for _, cs := range []*ChangeSet{touched, untouched} {
		_, err := cs.AddVertex(IntID(4))
		require.NoError(t, err)
	}

	v, err := touched.UpdateVertex(IntID(2))
	require.NoError(t, err)
	require.NoError(t, v.SetProperty("name", "bob"))
	require.NoError(t, v.AddLabel("admin"))
	require.NoError(t, touched.RemoveVertex(IntID(2)))
	require.NoError(t, touched.ResetVertex(IntID(2)))

	a, err := touched.BuildNewSnapshot(ctx)
	require.NoError(t, err)
	b, err := untouched.BuildNewSnapshot(ctx)
	require.NoError(t, err)

	va, ok := a.Vertex(IntID(2))
	require.True(t, ok)
	vb, ok := b.Vertex(IntID(2))
	require.True(t, ok)
	assert.Equal(t, vb.Labels(), va.Labels())
	assert.Equal(t, vb.Properties(), va.Properties())
	assert.Equal(t, b.EdgeCount(), a.EdgeCount())
	assert.Equal(t, a.Digest(), b.Digest())
}

func TestChangeSet_ResetEdge(t *testing.T) {
	base := seedGraph(t)
	cs := base.NewChangeSet()
	require.NoError(t, cs.RemoveEdge(IntID(10)))
	e, err := cs.UpdateEdge(IntID(11))
	require.NoError(t, err)
	require.NoError(t, e.SetProperty("weight", 2.5))

	require.NoError(t, cs.ResetEdge(IntID(10)))
	assert.Equal(t, 1, cs.Len())

	snap, err := cs.BuildNewSnapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.HasEdge(IntID(10)))
	got, _ := snap.Edge(IntID(11))
	w, _ := got.Property("weight")
	assert.Equal(t, 2.5, w)
}

func TestChangeSet_BuildNeverMutatesBase(t *testing.T) {
	base := seedGraph(t)
	before := canonical(base)
	beforeVertex, _ := base.Vertex(IntID(1))
	beforeLabels := beforeVertex.Labels()

	cs := base.NewChangeSet()
	v, err := cs.UpdateVertex(IntID(1))
	require.NoError(t, err)
	require.NoError(t, v.SetProperty("name", "alice"))
	require.NoError(t, v.RemoveLabel("person"))
	e, err := cs.UpdateEdge(IntID(10))
	require.NoError(t, err)
	require.NoError(t, e.SetLabel("follows"))
	require.NoError(t, cs.RemoveVertex(IntID(3)))
	_, err = cs.AddVertex(IntID(9))
	require.NoError(t, err)

	next, err := cs.BuildNewSnapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, before, canonical(base))
	assert.Equal(t, beforeLabels, beforeVertex.Labels())
	assert.Equal(t, 3, base.VertexCount())
	assert.Equal(t, 2, base.EdgeCount())

	assert.NotEqual(t, base.Digest(), next.Digest())
	assert.Equal(t, base.Version()+1, next.Version())
	assert.Equal(t, base.ID(), next.ParentID())
	assert.Equal(t, 1, next.EdgeCount(), "edge 11 goes with vertex 3")
}

func TestChangeSet_DuplicateVertexPolicies(t *testing.T) {
	ctx := context.Background()
	stage := func(t *testing.T) *ChangeSet {
		cs := NewEmptySnapshot("g", testSchema(IDTypeInteger)).NewChangeSet()
		v, err := cs.AddVertex(IntID(5))
		require.NoError(t, err)
		require.NoError(t, v.SetProperty("name", "first"))
		require.NoError(t, v.AddLabel("old"))
		v, err = cs.AddVertex(IntID(5))
		require.NoError(t, err)
		require.NoError(t, v.SetProperty("name", "second"))
		return cs
	}

	t.Run("error", func(t *testing.T) {
		cs := stage(t)
		require.NoError(t, cs.SetAddExistingVertexPolicy("error"))
		_, err := cs.BuildNewSnapshot(ctx)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodePolicyViolation))
		assert.True(t, errors.IsCode(err, errors.CodeDuplicateElement))
		id, _ := errors.ContextValue(err, errors.CtxElementID)
		assert.Equal(t, "5", id)
		policy, _ := errors.ContextValue(err, errors.CtxPolicy)
		assert.Equal(t, "error", policy)
		assert.Equal(t, StateStaged, cs.State(), "failed build keeps state")
		assert.Equal(t, 5, cs.Len())
	})

	t.Run("overwrite", func(t *testing.T) {
		cs := stage(t)
		require.NoError(t, cs.SetAddExistingVertexPolicy("overwrite"))
		snap, err := cs.BuildNewSnapshot(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, snap.VertexCount())
		v, ok := snap.Vertex(IntID(5))
		require.True(t, ok)
		name, _ := v.Property("name")
		assert.Equal(t, "second", name)
		assert.Empty(t, v.Labels())
	})

	t.Run("ignore", func(t *testing.T) {
		cs := stage(t)
		require.NoError(t, cs.SetAddExistingVertexPolicy("ignore_and_log_once"))
		snap, err := cs.BuildNewSnapshot(ctx)
		require.NoError(t, err)
		v, _ := snap.Vertex(IntID(5))
		name, _ := v.Property("name")
		assert.Equal(t, "second", name, "later updates still apply to the kept vertex")
		assert.Equal(t, []string{"old"}, v.Labels())
	})

	t.Run("policy read at build time", func(t *testing.T) {
		cs := stage(t)
		_, err := cs.BuildNewSnapshot(ctx)
		require.Error(t, err)
		require.NoError(t, cs.SetAddExistingVertexPolicy("overwrite"))
		_, err = cs.BuildNewSnapshot(ctx)
		require.NoError(t, err)
	})
}

func TestChangeSet_DuplicateEdge(t *testing.T) {
	base := seedGraph(t)
	cs := base.NewChangeSet()
	_, err := cs.AddEdge(IntID(3), IntID(1), IntID(10))
	require.NoError(t, err)

	_, err = cs.BuildNewSnapshot(context.Background())
	require.True(t, errors.IsCode(err, errors.CodePolicyViolation))

	require.NoError(t, cs.SetAddExistingEdgePolicy("overwrite"))
	snap, err := cs.BuildNewSnapshot(context.Background())
	require.NoError(t, err)
	e, _ := snap.Edge(IntID(10))
	assert.Equal(t, IntID(3), e.Source())
	assert.Equal(t, IntID(1), e.Destination())

	// Removing vertex 3 must now sweep the overwritten edge too.
	require.NoError(t, cs.RemoveVertex(IntID(3)))
	snap, err = cs.BuildNewSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, snap.EdgeCount())
}

func TestChangeSet_RetainVertexIDs(t *testing.T) {
	ctx := context.Background()
	build := func(t *testing.T, retain bool) (*Snapshot, *ChangeSet) {
		base := seedGraph(t)
		cs := base.NewChangeSet()
		cs.SetRetainVertexIDs(retain)
		for _, id := range []int64{100, 200} {
			_, err := cs.AddVertex(IntID(id))
			require.NoError(t, err)
		}
		_, err := cs.AddEdge(IntID(100), IntID(200), IntID(50))
		require.NoError(t, err)
		snap, err := cs.BuildNewSnapshot(ctx)
		require.NoError(t, err)
		return snap, cs
	}

	t.Run("retained", func(t *testing.T) {
		snap, _ := build(t, true)
		assert.True(t, snap.HasVertex(IntID(100)))
		assert.True(t, snap.HasVertex(IntID(200)))
		assert.Empty(t, snap.VertexIDMapping())
	})

	t.Run("reassigned", func(t *testing.T) {
		snap, _ := build(t, false)
		assert.False(t, snap.HasVertex(IntID(100)))
		assert.False(t, snap.HasVertex(IntID(200)))
		assert.Equal(t, 5, snap.VertexCount())

		mapping := snap.VertexIDMapping()
		assert.Equal(t, IntID(4), mapping[IntID(100)])
		assert.Equal(t, IntID(5), mapping[IntID(200)])
		for _, id := range []int64{1, 2, 3} {
			assert.True(t, snap.HasVertex(IntID(id)), "base ids survive")
		}

		e, ok := snap.Edge(IntID(50))
		require.True(t, ok, "edge ids are retained independently")
		assert.Equal(t, IntID(4), e.Source())
		assert.Equal(t, IntID(5), e.Destination())
	})
}

func TestChangeSet_ReassignedIDsNeverKeepStagedIDs(t *testing.T) {
	cs := NewEmptySnapshot("g", DefaultSchema()).NewChangeSet()
	cs.SetRetainIDs(false)
	for _, id := range []int64{0, 1, 2} {
		_, err := cs.AddVertex(IntID(id))
		require.NoError(t, err)
	}
	_, err := cs.AddEdge(IntID(0), IntID(2), IntID(0))
	require.NoError(t, err)

	snap, err := cs.BuildNewSnapshot(context.Background())
	require.NoError(t, err)

	vm := snap.VertexIDMapping()
	require.Len(t, vm, 3)
	assert.Equal(t, IntID(3), vm[IntID(0)])
	assert.Equal(t, IntID(4), vm[IntID(1)])
	assert.Equal(t, IntID(5), vm[IntID(2)])
	for _, id := range []int64{0, 1, 2} {
		assert.False(t, snap.HasVertex(IntID(id)))
	}

	em := snap.EdgeIDMapping()
	require.Len(t, em, 1)
	assert.Equal(t, IntID(1), em[IntID(0)])
	e, ok := snap.Edge(IntID(1))
	require.True(t, ok)
	assert.Equal(t, IntID(3), e.Source())
	assert.Equal(t, IntID(5), e.Destination())
}

func TestChangeSet_RetainEdgeIDsStringDomain(t *testing.T) {
	cs := NewEmptySnapshot("s", testSchema(IDTypeString)).NewChangeSet()
	cs.SetRetainIDs(false)
	_, err := cs.AddVertex(StringID("alice"))
	require.NoError(t, err)
	_, err = cs.AddVertex(StringID("bob"))
	require.NoError(t, err)
	_, err = cs.AddEdge(StringID("alice"), StringID("bob"), StringID("e1"))
	require.NoError(t, err)

	snap, err := cs.BuildNewSnapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.HasVertex(StringID("0")))
	assert.True(t, snap.HasVertex(StringID("1")))
	assert.False(t, snap.HasVertex(StringID("alice")))
	e, ok := snap.Edge(StringID("0"))
	require.True(t, ok)
	assert.Equal(t, StringID("0"), e.Source())
	assert.Equal(t, StringID("1"), e.Destination())
	assert.Equal(t, StringID("0"), snap.EdgeIDMapping()[StringID("e1")])
}

func TestChangeSet_UpdateThenRemove(t *testing.T) {
	base := seedGraph(t)
	cs := base.NewChangeSet()

	_, err := cs.AddVertex(IntID(7))
	require.NoError(t, err)
	_, err = cs.AddEdge(IntID(2), IntID(7), IntID(20))
	require.NoError(t, err)
	_, err = cs.AddEdge(IntID(7), IntID(1), IntID(21))
	require.NoError(t, err)

	v, err := cs.UpdateVertex(IntID(2))
	require.NoError(t, err)
	require.NoError(t, v.SetProperty("age", 31))
	require.NoError(t, cs.RemoveVertex(IntID(2)))

	snap, err := cs.BuildNewSnapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.HasVertex(IntID(2)))
	assert.False(t, snap.HasEdge(IntID(10)), "base edge 1->2 removed")
	assert.False(t, snap.HasEdge(IntID(11)), "base edge 2->3 removed")
	assert.False(t, snap.HasEdge(IntID(20)), "staged edge 2->7 removed")
	assert.True(t, snap.HasEdge(IntID(21)))

	// The modifier outlived its vertex.
	err = v.SetProperty("name", "ghost")
	assert.True(t, errors.IsCode(err, errors.CodeElementNotFound))
	err = v.AddLabel("x")
	assert.True(t, errors.IsCode(err, errors.CodeElementNotFound))
}

func TestChangeSet_ModifierIDRoundTrip(t *testing.T) {
	base := seedGraph(t)
	cs := base.NewChangeSet()
	for _, id := range []int64{1, 2, 3} {
		m, err := cs.UpdateVertex(IntID(id))
		require.NoError(t, err)
		assert.Equal(t, IntID(id), m.ID())
	}
	e, err := cs.UpdateEdge(IntID(11))
	require.NoError(t, err)
	assert.Equal(t, IntID(11), e.ID())

	scs := NewEmptySnapshot("s", testSchema(IDTypeString)).NewChangeSet()
	_, err = scs.AddVertex(StringID("x"))
	require.NoError(t, err)
	m, err := scs.UpdateVertex(StringID("x"))
	require.NoError(t, err)
	assert.Equal(t, StringID("x"), m.ID())
	id, ok := m.ID().Str()
	assert.True(t, ok)
	assert.Equal(t, "x", id)
}

func TestChangeSet_UpdateMissing(t *testing.T) {
	base := seedGraph(t)
	cs := base.NewChangeSet()

	_, err := cs.UpdateVertex(IntID(99))
	assert.True(t, errors.IsCode(err, errors.CodeNoSuchElement))
	_, err = cs.UpdateEdge(IntID(99))
	assert.True(t, errors.IsCode(err, errors.CodeNoSuchElement))

	require.NoError(t, cs.RemoveVertex(IntID(1)))
	_, err = cs.UpdateVertex(IntID(1))
	assert.True(t, errors.IsCode(err, errors.CodeNoSuchElement))
	_, err = cs.UpdateEdge(IntID(10))
	assert.True(t, errors.IsCode(err, errors.CodeNoSuchElement), "edge dies with its endpoint")
	assert.Equal(t, 1, cs.Len(), "failed calls leave the log unchanged")
}

func TestChangeSet_TypeMismatchLeavesLogUnchanged(t *testing.T) {
	cs := seedGraph(t).NewChangeSet()
	_, err := cs.AddVertex(StringID("a"))
	assert.True(t, errors.IsCode(err, errors.CodeTypeMismatch))
	_, err = cs.AddEdge(IntID(1), IntID(2), StringID("e"))
	assert.True(t, errors.IsCode(err, errors.CodeTypeMismatch))
	assert.Equal(t, 0, cs.Len())
	assert.Equal(t, StateEmpty, cs.State())
}

func TestChangeSet_InvalidChangePolicy(t *testing.T) {
	base := seedGraph(t)
	stage := func() *ChangeSet {
		cs := base.NewChangeSet()
		require.NoError(t, cs.RemoveVertex(IntID(42)))
		_, err := cs.AddEdge(IntID(1), IntID(77), IntID(30))
		require.NoError(t, err)
		v, err := cs.UpdateVertex(IntID(1))
		require.NoError(t, err)
		require.NoError(t, v.SetProperty("undeclared", "x"))
		_, err = cs.AddVertex(IntID(8))
		require.NoError(t, err)
		return cs
	}

	cs := stage()
	_, err := cs.BuildNewSnapshot(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodePolicyViolation))
	assert.True(t, errors.IsCode(err, errors.CodeElementNotFound))
	kind, _ := errors.ContextValue(err, errors.CtxPolicyKind)
	assert.Equal(t, string(PolicyInvalidChange), kind)

	cs = stage()
	require.NoError(t, cs.SetInvalidChangePolicy("ignore_and_log"))
	snap, err := cs.BuildNewSnapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.HasVertex(IntID(8)))
	assert.False(t, snap.HasEdge(IntID(30)))
	v, _ := snap.Vertex(IntID(1))
	_, has := v.Property("undeclared")
	assert.False(t, has)
}

func TestChangeSet_RequiredConversion(t *testing.T) {
	base := seedGraph(t)
	ctx := context.Background()
	cs := base.NewChangeSet()
	v, err := cs.UpdateVertex(IntID(1))
	require.NoError(t, err)
	require.NoError(t, v.SetProperty("age", "41"))

	snap, err := cs.BuildNewSnapshot(ctx)
	require.NoError(t, err)
	got, _ := snap.Vertex(IntID(1))
	age, _ := got.Property("age")
	assert.Equal(t, int32(41), age)

	require.NoError(t, cs.SetRequiredConversionPolicy("error"))
	_, err = cs.BuildNewSnapshot(ctx)
	assert.True(t, errors.IsCode(err, errors.CodeTypeConversion))
	assert.True(t, errors.IsCode(err, errors.CodePolicyViolation))

	bad := base.NewChangeSet()
	v, err = bad.UpdateVertex(IntID(1))
	require.NoError(t, err)
	require.NoError(t, v.SetProperty("age", "forty"))
	require.NoError(t, bad.SetInvalidChangePolicy("ignore"))
	_, err = bad.BuildNewSnapshot(ctx)
	assert.True(t, errors.IsCode(err, errors.CodeTypeConversion), "impossible conversions always fail")

	err = v.SetProperty("age", []int{1})
	assert.True(t, errors.IsCode(err, errors.CodeTypeConversion), "unsupported kinds fail while staging")
	assert.Equal(t, 1, bad.Len())
}

func TestChangeSet_InvalidPolicyName(t *testing.T) {
	cs := NewChangeSet(nil)
	err := cs.SetAddExistingVertexPolicy("explode")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidOption))
	err = cs.SetRequiredConversionPolicy("ignore")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidOption))
	assert.Equal(t, PolicyError, cs.Policies().Get(PolicyAddExistingVertex))
}

func TestChangeSet_StateMachine(t *testing.T) {
	ctx := context.Background()
	cs := NewEmptySnapshot("g", DefaultSchema()).NewChangeSet()
	assert.Equal(t, StateEmpty, cs.State())

	_, err := cs.AddVertex(IntID(1))
	require.NoError(t, err)
	assert.Equal(t, StateStaged, cs.State())
	assert.Equal(t, 1, cs.Pending())

	first, err := cs.BuildNewSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateBuilt, cs.State())
	assert.Equal(t, 0, cs.Pending())
	assert.Equal(t, 1, cs.Len(), "build keeps the log")

	_, err = cs.AddVertex(IntID(2))
	require.NoError(t, err)
	assert.Equal(t, StateStaged, cs.State())
	assert.Equal(t, 1, cs.Pending())

	second, err := cs.BuildNewSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.VertexCount())
	assert.Equal(t, 2, second.VertexCount(), "rebuild replays the full log")
	assert.Equal(t, first.Version(), second.Version(), "both builds derive from the same base")

	require.NoError(t, cs.ResetVertex(IntID(1)))
	require.NoError(t, cs.ResetVertex(IntID(2)))
	assert.Equal(t, StateEmpty, cs.State())
}

func TestChangeSet_BuildHonoursCancellation(t *testing.T) {
	cs := seedGraph(t).NewChangeSet()
	_, err := cs.AddVertex(IntID(9))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = cs.BuildNewSnapshot(ctx)
	require.Error(t, err)
	assert.Equal(t, StateStaged, cs.State())
}

func TestChangeSet_ModifierExposesBuilder(t *testing.T) {
	cs := NewEmptySnapshot("g", testSchema(IDTypeInteger)).NewChangeSet()
	v, err := cs.AddVertex(IntID(1))
	require.NoError(t, err)

	// Builder methods are reachable through the modifier.
	_, err = v.AddVertex(IntID(2))
	require.NoError(t, err)
	e, err := v.AddEdge(IntID(1), IntID(2), IntID(1))
	require.NoError(t, err)
	require.NoError(t, e.SetProperty("weight", 1))

	var _ VertexEditor = v
	var _ EdgeEditor = e

	snap, err := cs.BuildNewSnapshot(context.Background())
	require.NoError(t, err)
	got, _ := snap.Edge(IntID(1))
	w, _ := got.Property("weight")
	assert.Equal(t, float64(1), w)
	assert.Contains(t, cs.String(), "add_vertex=2")
}

func TestChangeSet_PolicyAndLogOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	cs := NewEmptySnapshot("g", DefaultSchema()).NewChangeSet(WithLogger(logger))
	for i := 0; i < 3; i++ {
		_, err := cs.AddVertex(IntID(1))
		require.NoError(t, err)
	}
	require.NoError(t, cs.SetAddExistingVertexPolicy("ignore_and_log_once"))
	_, err := cs.BuildNewSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("policy_kind=add_existing_vertex")))

	buf.Reset()
	require.NoError(t, cs.SetAddExistingVertexPolicy("ignore_and_log"))
	_, err = cs.BuildNewSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("policy_kind=add_existing_vertex")))
}

func TestBuilderTypesAreNotComparable(t *testing.T) {
	for _, typ := range []reflect.Type{
		reflect.TypeOf((*ChangeSet)(nil)).Elem(),
		reflect.TypeOf((*VertexModifier)(nil)).Elem(),
		reflect.TypeOf((*EdgeModifier)(nil)).Elem(),
	} {
		assert.False(t, typ.Comparable(), "%s must not be usable as a map key", typ.Name())
	}
}
