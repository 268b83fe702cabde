// # internal/engine/graph/builder.go
package graph

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/btree"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"snapgraph/internal/core/errors"
	"snapgraph/internal/shared/observability"
)

// SnapshotBuilder replays a change log over a copy-on-write copy of the base
// snapshot. A builder is single use; ChangeSet.BuildNewSnapshot creates a new
// one per build.
type SnapshotBuilder struct {
	base            *Snapshot
	log             []StagedChange
	policies        PolicyRegistry
	retainVertexIDs bool
	retainEdgeIDs   bool
	converter       PropertyConverter
	logger          *slog.Logger

	vertices *btree.Map[string, *Vertex]
	edges    *btree.Map[string, *Edge]

	// Elements cloned during this build; the rest are still shared with base.
	ownedVertices map[string]bool
	ownedEdges    map[string]bool

	// vertex key -> incident edge keys, built on the first vertex removal.
	incidence map[string]map[string]struct{}

	// Keys created by this build that do not exist in base, with the sequence
	// number of their first addition.
	createdVertices map[string]uint64
	createdEdges    map[string]uint64

	loggedOnce map[PolicyKind]bool
}

// NewSnapshotBuilder captures the change set's log, policies and flags.
func NewSnapshotBuilder(cs *ChangeSet) *SnapshotBuilder {
	return &SnapshotBuilder{
		base:            cs.base,
		log:             cs.Log(),
		policies:        cs.policies.Clone(),
		retainVertexIDs: cs.retainVertexIDs,
		retainEdgeIDs:   cs.retainEdgeIDs,
		converter:       cs.converter,
		logger:          cs.logger,
	}
}

// Build applies the captured log. Policy-governed conflicts are resolved
// per policy; any error aborts the build and returns no snapshot.
func (b *SnapshotBuilder) Build(ctx context.Context) (snap *Snapshot, err error) {
	ctx, span := observability.Tracer.Start(ctx, "graph.BuildNewSnapshot")
	defer span.End()
	span.SetAttributes(
		attribute.String("graph.name", b.base.name),
		attribute.Int64("graph.base_version", b.base.version),
		attribute.Int("changes", len(b.log)),
	)

	start := time.Now()
	defer func() {
		observability.BuildDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			observability.BuildsTotal.WithLabelValues("error").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		observability.BuildsTotal.WithLabelValues("ok").Inc()
	}()

	b.vertices, b.edges = b.base.copyMaps()
	b.ownedVertices = make(map[string]bool)
	b.ownedEdges = make(map[string]bool)
	b.createdVertices = make(map[string]uint64)
	b.createdEdges = make(map[string]uint64)
	b.loggedOnce = make(map[PolicyKind]bool)

	for _, c := range b.log {
		if err := ctx.Err(); err != nil {
			return nil, errors.AddContext(errors.Wrap(err, errors.CodeInternal, "build cancelled"), errors.CtxOperation, "build")
		}
		if err := b.apply(c); err != nil {
			return nil, err
		}
	}

	vertexMapping, edgeMapping := b.reassignIDs()

	snap = &Snapshot{
		id:              uuid.New(),
		parentID:        b.base.id,
		name:            b.base.name,
		version:         b.base.version + 1,
		createdAt:       time.Now().UTC(),
		schema:          b.base.schema.Clone(),
		vertexCodec:     b.base.vertexCodec,
		edgeCodec:       b.base.edgeCodec,
		vertices:        b.vertices,
		edges:           b.edges,
		vertexIDMapping: vertexMapping,
		edgeIDMapping:   edgeMapping,
	}
	span.SetAttributes(
		attribute.Int("graph.vertices", snap.VertexCount()),
		attribute.Int("graph.edges", snap.EdgeCount()),
	)
	return snap, nil
}

func (b *SnapshotBuilder) apply(c StagedChange) error {
	switch c.Kind {
	case ChangeAddVertex:
		return b.addVertex(c)
	case ChangeAddEdge:
		return b.addEdge(c)
	case ChangeRemoveVertex:
		return b.removeVertex(c)
	case ChangeRemoveEdge:
		return b.removeEdge(c)
	case ChangeUpdateVertexProperty:
		return b.setVertexProperty(c)
	case ChangeUpdateVertexLabel:
		return b.updateVertexLabel(c)
	case ChangeUpdateEdgeProperty:
		return b.setEdgeProperty(c)
	case ChangeUpdateEdgeLabel:
		return b.setEdgeLabel(c)
	}
	return errors.Newf(errors.CodeNotSupported, "unknown change kind %s", c.Kind)
}

func (b *SnapshotBuilder) vertexID(key InternalID) ElementID { return b.base.vertexCodec.mustDecode(key) }
func (b *SnapshotBuilder) edgeID(key InternalID) ElementID   { return b.base.edgeCodec.mustDecode(key) }

func (b *SnapshotBuilder) addVertex(c StagedChange) error {
	key := string(c.ID)
	id := b.vertexID(c.ID)
	if _, exists := b.vertices.Get(key); exists {
		policy := b.policies.Get(PolicyAddExistingVertex)
		cause := errors.Newf(errors.CodeDuplicateElement, "vertex %s already exists", id).
			WithContext(errors.CtxElementID, id.String())
		if policy == PolicyError {
			return b.violation(PolicyAddExistingVertex, policy, c, id, cause)
		}
		if policy.ignores() {
			b.resolved(PolicyAddExistingVertex, policy, c, id, "ignored")
			return nil
		}
		b.resolved(PolicyAddExistingVertex, policy, c, id, "overwritten")
	}
	b.vertices.Set(key, newVertex(id))
	b.ownedVertices[key] = true
	_, inBase := b.base.vertices.Get(key)
	b.markCreated(b.createdVertices, inBase, key, c.Seq)
	return nil
}

func (b *SnapshotBuilder) addEdge(c StagedChange) error {
	key := string(c.ID)
	id := b.edgeID(c.ID)
	for _, end := range []InternalID{c.Src, c.Dst} {
		if _, ok := b.vertices.Get(string(end)); !ok {
			cause := errors.Newf(errors.CodeElementNotFound, "endpoint vertex %s of edge %s does not exist", b.vertexID(end), id).
				WithContext(errors.CtxElementID, id.String())
			return b.invalid(c, id, cause)
		}
	}
	if old, exists := b.edges.Get(key); exists {
		policy := b.policies.Get(PolicyAddExistingEdge)
		cause := errors.Newf(errors.CodeDuplicateElement, "edge %s already exists", id).
			WithContext(errors.CtxElementID, id.String())
		if policy == PolicyError {
			return b.violation(PolicyAddExistingEdge, policy, c, id, cause)
		}
		if policy.ignores() {
			b.resolved(PolicyAddExistingEdge, policy, c, id, "ignored")
			return nil
		}
		b.resolved(PolicyAddExistingEdge, policy, c, id, "overwritten")
		b.unindexEdge(key, old)
	}
	e := newEdge(id, b.vertexID(c.Src), b.vertexID(c.Dst))
	b.edges.Set(key, e)
	b.ownedEdges[key] = true
	b.indexEdge(key, e)
	_, inBase := b.base.edges.Get(key)
	b.markCreated(b.createdEdges, inBase, key, c.Seq)
	return nil
}

func (b *SnapshotBuilder) removeVertex(c StagedChange) error {
	key := string(c.ID)
	id := b.vertexID(c.ID)
	if _, ok := b.vertices.Get(key); !ok {
		return b.invalid(c, id, errors.Newf(errors.CodeElementNotFound, "vertex %s does not exist", id).
			WithContext(errors.CtxElementID, id.String()))
	}
	b.ensureIncidence()
	for edgeKey := range b.incidence[key] {
		if e, ok := b.edges.Delete(edgeKey); ok {
			b.unindexEdge(edgeKey, e)
		}
		delete(b.ownedEdges, edgeKey)
		delete(b.createdEdges, edgeKey)
	}
	delete(b.incidence, key)
	b.vertices.Delete(key)
	delete(b.ownedVertices, key)
	delete(b.createdVertices, key)
	return nil
}

func (b *SnapshotBuilder) removeEdge(c StagedChange) error {
	key := string(c.ID)
	id := b.edgeID(c.ID)
	e, ok := b.edges.Delete(key)
	if !ok {
		return b.invalid(c, id, errors.Newf(errors.CodeElementNotFound, "edge %s does not exist", id).
			WithContext(errors.CtxElementID, id.String()))
	}
	b.unindexEdge(key, e)
	delete(b.ownedEdges, key)
	delete(b.createdEdges, key)
	return nil
}

func (b *SnapshotBuilder) setVertexProperty(c StagedChange) error {
	id := b.vertexID(c.ID)
	v, ok := b.mutableVertex(string(c.ID))
	if !ok {
		return b.invalid(c, id, errors.Newf(errors.CodeElementNotFound, "vertex %s does not exist", id).
			WithContext(errors.CtxElementID, id.String()))
	}
	target, declared := b.base.schema.VertexProperty(c.Key)
	if !declared {
		return b.invalid(c, id, errors.Newf(errors.CodeValidationError, "vertex property %q is not declared", c.Key).
			WithContext(errors.CtxProperty, c.Key))
	}
	val, err := b.convert(c, id, target)
	if err != nil {
		return err
	}
	v.props[c.Key] = val
	return nil
}

func (b *SnapshotBuilder) updateVertexLabel(c StagedChange) error {
	id := b.vertexID(c.ID)
	v, ok := b.mutableVertex(string(c.ID))
	if !ok {
		return b.invalid(c, id, errors.Newf(errors.CodeElementNotFound, "vertex %s does not exist", id).
			WithContext(errors.CtxElementID, id.String()))
	}
	if c.LabelOp == LabelRemove {
		delete(v.labels, c.Label)
	} else {
		v.labels[c.Label] = struct{}{}
	}
	return nil
}

func (b *SnapshotBuilder) setEdgeProperty(c StagedChange) error {
	id := b.edgeID(c.ID)
	e, ok := b.mutableEdge(string(c.ID))
	if !ok {
		return b.invalid(c, id, errors.Newf(errors.CodeElementNotFound, "edge %s does not exist", id).
			WithContext(errors.CtxElementID, id.String()))
	}
	target, declared := b.base.schema.EdgeProperty(c.Key)
	if !declared {
		return b.invalid(c, id, errors.Newf(errors.CodeValidationError, "edge property %q is not declared", c.Key).
			WithContext(errors.CtxProperty, c.Key))
	}
	val, err := b.convert(c, id, target)
	if err != nil {
		return err
	}
	e.props[c.Key] = val
	return nil
}

func (b *SnapshotBuilder) setEdgeLabel(c StagedChange) error {
	id := b.edgeID(c.ID)
	e, ok := b.mutableEdge(string(c.ID))
	if !ok {
		return b.invalid(c, id, errors.Newf(errors.CodeElementNotFound, "edge %s does not exist", id).
			WithContext(errors.CtxElementID, id.String()))
	}
	e.label = c.Label
	return nil
}

// mutableVertex returns a vertex owned by this build, cloning it out of the
// base the first time it is touched.
func (b *SnapshotBuilder) mutableVertex(key string) (*Vertex, bool) {
	v, ok := b.vertices.Get(key)
	if !ok {
		return nil, false
	}
	if !b.ownedVertices[key] {
		v = v.clone()
		b.vertices.Set(key, v)
		b.ownedVertices[key] = true
	}
	return v, true
}

func (b *SnapshotBuilder) mutableEdge(key string) (*Edge, bool) {
	e, ok := b.edges.Get(key)
	if !ok {
		return nil, false
	}
	if !b.ownedEdges[key] {
		e = e.clone()
		b.edges.Set(key, e)
		b.ownedEdges[key] = true
	}
	return e, true
}

func (b *SnapshotBuilder) convert(c StagedChange, id ElementID, target PropertyType) (any, error) {
	val, changed, err := b.converter.Convert(c.Value, target)
	if err != nil {
		return nil, errors.AddContext(
			errors.AddContext(err, errors.CtxElementID, id.String()),
			errors.CtxProperty, c.Key)
	}
	if !changed {
		return val, nil
	}
	policy := b.policies.Get(PolicyRequiredConversion)
	if policy == PolicyError {
		cause := errors.Newf(errors.CodeTypeConversion, "value %v (%T) requires conversion to %s", c.Value, c.Value, target).
			WithContext(errors.CtxProperty, c.Key).
			WithContext(errors.CtxValue, c.Value)
		return nil, b.violation(PolicyRequiredConversion, policy, c, id, cause)
	}
	b.resolved(PolicyRequiredConversion, policy, c, id, "converted",
		slog.String("property", c.Key), slog.Any("value", c.Value), slog.String("type", target.String()))
	return val, nil
}

// invalid resolves a change that cannot apply under the invalid_change policy.
func (b *SnapshotBuilder) invalid(c StagedChange, id ElementID, cause error) error {
	policy := b.policies.Get(PolicyInvalidChange)
	if policy == PolicyError {
		return b.violation(PolicyInvalidChange, policy, c, id, cause)
	}
	b.resolved(PolicyInvalidChange, policy, c, id, "ignored", slog.String("reason", cause.Error()))
	return nil
}

func (b *SnapshotBuilder) violation(kind PolicyKind, policy Policy, c StagedChange, id ElementID, cause error) error {
	observability.PolicyOutcomesTotal.WithLabelValues(string(kind), "error").Inc()
	de := &errors.DomainError{
		Code:    errors.CodePolicyViolation,
		Message: string(kind) + "=" + string(policy),
		Err:     cause,
	}
	return de.WithContext(errors.CtxElementID, id.String()).
		WithContext(errors.CtxPolicyKind, string(kind)).
		WithContext(errors.CtxPolicy, string(policy)).
		WithContext(errors.CtxOperation, c.Kind.String())
}

// resolved records a non-fatal policy outcome and logs it when the policy asks.
func (b *SnapshotBuilder) resolved(kind PolicyKind, policy Policy, c StagedChange, id ElementID, outcome string, attrs ...any) {
	observability.PolicyOutcomesTotal.WithLabelValues(string(kind), outcome).Inc()
	if !policy.logs() {
		return
	}
	if policy.once() {
		if b.loggedOnce[kind] {
			return
		}
		b.loggedOnce[kind] = true
	}
	args := append([]any{
		"policy_kind", string(kind),
		"policy", string(policy),
		"element_id", id.String(),
		"operation", c.Kind.String(),
		"seq", c.Seq,
	}, attrs...)
	b.logger.Warn("change "+outcome, args...)
}

func (b *SnapshotBuilder) markCreated(created map[string]uint64, inBase bool, key string, seq uint64) {
	if inBase {
		return
	}
	if _, ok := created[key]; !ok {
		created[key] = seq
	}
}

func (b *SnapshotBuilder) vertexKey(id ElementID) string {
	key, _ := b.base.vertexCodec.Encode(id)
	return string(key)
}

func (b *SnapshotBuilder) ensureIncidence() {
	if b.incidence != nil {
		return
	}
	b.incidence = make(map[string]map[string]struct{})
	b.edges.Scan(func(key string, e *Edge) bool {
		b.indexEdge(key, e)
		return true
	})
}

func (b *SnapshotBuilder) indexEdge(key string, e *Edge) {
	if b.incidence == nil {
		return
	}
	for _, end := range []string{b.vertexKey(e.src), b.vertexKey(e.dst)} {
		set := b.incidence[end]
		if set == nil {
			set = make(map[string]struct{})
			b.incidence[end] = set
		}
		set[key] = struct{}{}
	}
}

func (b *SnapshotBuilder) unindexEdge(key string, e *Edge) {
	if b.incidence == nil {
		return
	}
	for _, end := range []string{b.vertexKey(e.src), b.vertexKey(e.dst)} {
		delete(b.incidence[end], key)
	}
}

// reassignIDs gives elements created by this build fresh ids when retention
// is off. Integer domains continue after the largest surviving id; string
// domains count up from "0". Ids already present and the staged ids of the
// created elements are skipped, so no created element keeps its id.
func (b *SnapshotBuilder) reassignIDs() (map[ElementID]ElementID, map[ElementID]ElementID) {
	vertexMapping := make(map[ElementID]ElementID)
	edgeMapping := make(map[ElementID]ElementID)

	if !b.retainVertexIDs && len(b.createdVertices) > 0 {
		moved := detach(b.vertices, b.createdVertices)
		alloc := newIDAllocator(b.base.vertexCodec, b.vertices, b.createdVertices)
		for _, v := range moved {
			newID, newKey := alloc.next()
			vertexMapping[v.id] = newID
			v.id = newID
			b.vertices.Set(newKey, v)
		}
		for key := range b.ownedEdges {
			e, ok := b.edges.Get(key)
			if !ok {
				continue
			}
			if to, ok := vertexMapping[e.src]; ok {
				e.src = to
			}
			if to, ok := vertexMapping[e.dst]; ok {
				e.dst = to
			}
		}
	}

	if !b.retainEdgeIDs && len(b.createdEdges) > 0 {
		moved := detach(b.edges, b.createdEdges)
		alloc := newIDAllocator(b.base.edgeCodec, b.edges, b.createdEdges)
		for _, e := range moved {
			newID, newKey := alloc.next()
			edgeMapping[e.id] = newID
			e.id = newID
			b.edges.Set(newKey, e)
		}
	}
	return vertexMapping, edgeMapping
}

// detach removes the created keys from m and returns their elements in order
// of first addition.
func detach[V any](m *btree.Map[string, V], created map[string]uint64) []V {
	keys := make([]string, 0, len(created))
	for k := range created {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return created[keys[i]] < created[keys[j]] })
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		if v, ok := m.Delete(k); ok {
			out = append(out, v)
		}
	}
	return out
}

type idAllocator struct {
	codec   Codec
	counter int64
	taken   func(string) bool
}

func newIDAllocator[V any](codec Codec, m *btree.Map[string, V], reserved map[string]uint64) *idAllocator {
	a := &idAllocator{codec: codec, taken: func(k string) bool {
		if _, ok := reserved[k]; ok {
			return true
		}
		_, ok := m.Get(k)
		return ok
	}}
	if codec.IDType() == IDTypeInteger {
		var last string
		m.Scan(func(k string, _ V) bool {
			last = k
			return true
		})
		if last != "" {
			if n, ok := codec.mustDecode(InternalID(last)).Int(); ok {
				a.counter = n + 1
			}
		}
	}
	return a
}

func (a *idAllocator) next() (ElementID, string) {
	for {
		var id ElementID
		if a.codec.IDType() == IDTypeString {
			id = StringID(strconv.FormatInt(a.counter, 10))
		} else {
			id = IntID(a.counter)
		}
		a.counter++
		key, _ := a.codec.Encode(id)
		if !a.taken(string(key)) {
			return id, string(key)
		}
	}
}
