// # internal/engine/graph/changeset.go
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"snapgraph/internal/core/errors"
	"snapgraph/internal/shared/observability"
)

// ChangeKind enumerates the entries of a change log.
type ChangeKind int

const (
	ChangeAddVertex ChangeKind = iota
	ChangeAddEdge
	ChangeRemoveVertex
	ChangeRemoveEdge
	ChangeUpdateVertexProperty
	ChangeUpdateVertexLabel
	ChangeUpdateEdgeProperty
	ChangeUpdateEdgeLabel
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAddVertex:
		return "add_vertex"
	case ChangeAddEdge:
		return "add_edge"
	case ChangeRemoveVertex:
		return "remove_vertex"
	case ChangeRemoveEdge:
		return "remove_edge"
	case ChangeUpdateVertexProperty:
		return "update_vertex_property"
	case ChangeUpdateVertexLabel:
		return "update_vertex_label"
	case ChangeUpdateEdgeProperty:
		return "update_edge_property"
	case ChangeUpdateEdgeLabel:
		return "update_edge_label"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

func (k ChangeKind) onVertex() bool {
	switch k {
	case ChangeAddVertex, ChangeRemoveVertex, ChangeUpdateVertexProperty, ChangeUpdateVertexLabel:
		return true
	}
	return false
}

// LabelOp distinguishes vertex label additions from removals.
type LabelOp int

const (
	LabelAdd LabelOp = iota
	LabelRemove
)

// StagedChange is one entry of the change log. Src and Dst are set for
// ChangeAddEdge only; Key and Value for property updates; Label and LabelOp
// for label updates.
type StagedChange struct {
	Seq     uint64
	Kind    ChangeKind
	ID      InternalID
	Src     InternalID
	Dst     InternalID
	Key     string
	Value   any
	Label   string
	LabelOp LabelOp
}

// ChangeSetState tracks the Empty -> Staged -> Built lifecycle.
type ChangeSetState int

const (
	StateEmpty ChangeSetState = iota
	StateStaged
	StateBuilt
)

func (s ChangeSetState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateStaged:
		return "staged"
	case StateBuilt:
		return "built"
	default:
		return fmt.Sprintf("ChangeSetState(%d)", int(s))
	}
}

// ChangeSet stages mutations against a base snapshot and builds new snapshots
// from them. It is meant for a single writer; it does no locking. The zero
// length func array makes it non-comparable, so it cannot be used as a map key.
type ChangeSet struct {
	_ [0]func()

	base        *Snapshot
	vertexCodec Codec
	edgeCodec   Codec

	policies        PolicyRegistry
	retainVertexIDs bool
	retainEdgeIDs   bool

	log          []StagedChange
	nextSeq      uint64
	lastBuiltSeq uint64
	state        ChangeSetState

	converter PropertyConverter
	logger    *slog.Logger
}

type ChangeSetOption func(*ChangeSet)

func WithConverter(c PropertyConverter) ChangeSetOption {
	return func(cs *ChangeSet) {
		if c != nil {
			cs.converter = c
		}
	}
}

func WithLogger(l *slog.Logger) ChangeSetOption {
	return func(cs *ChangeSet) {
		if l != nil {
			cs.logger = l
		}
	}
}

// WithPolicies seeds the change set with a copy of p.
func WithPolicies(p PolicyRegistry) ChangeSetOption {
	return func(cs *ChangeSet) { cs.policies = p.Clone() }
}

func WithRetainIDs(vertices, edges bool) ChangeSetOption {
	return func(cs *ChangeSet) {
		cs.retainVertexIDs = vertices
		cs.retainEdgeIDs = edges
	}
}

// NewChangeSet binds a change set to base. A nil base stands for an empty
// unnamed graph with the default schema.
func NewChangeSet(base *Snapshot, opts ...ChangeSetOption) *ChangeSet {
	if base == nil {
		base = NewEmptySnapshot("", DefaultSchema())
	}
	cs := &ChangeSet{
		base:            base,
		vertexCodec:     base.vertexCodec,
		edgeCodec:       base.edgeCodec,
		policies:        DefaultPolicies(),
		retainVertexIDs: true,
		retainEdgeIDs:   true,
		nextSeq:         1,
		converter:       DefaultConverter{},
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(cs)
	}
	return cs
}

func (cs *ChangeSet) Base() *Snapshot          { return cs.base }
func (cs *ChangeSet) State() ChangeSetState    { return cs.state }
func (cs *ChangeSet) Policies() PolicyRegistry { return cs.policies.Clone() }
func (cs *ChangeSet) RetainVertexIDs() bool    { return cs.retainVertexIDs }
func (cs *ChangeSet) RetainEdgeIDs() bool      { return cs.retainEdgeIDs }

// Len is the number of entries in the change log.
func (cs *ChangeSet) Len() int { return len(cs.log) }

// Pending counts log entries staged after the last successful build.
func (cs *ChangeSet) Pending() int {
	n := 0
	for _, c := range cs.log {
		if c.Seq > cs.lastBuiltSeq {
			n++
		}
	}
	return n
}

// Log returns a copy of the change log in staging order.
func (cs *ChangeSet) Log() []StagedChange {
	return append([]StagedChange(nil), cs.log...)
}

func (cs *ChangeSet) String() string {
	counts := make(map[ChangeKind]int)
	for _, c := range cs.log {
		counts[c.Kind]++
	}
	var parts []string
	for k := ChangeAddVertex; k <= ChangeUpdateEdgeLabel; k++ {
		if counts[k] > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
		}
	}
	return fmt.Sprintf("ChangeSet(base=%s@%d, state=%s, changes=[%s])",
		cs.base.name, cs.base.version, cs.state, strings.Join(parts, " "))
}

func (cs *ChangeSet) stage(c StagedChange) {
	c.Seq = cs.nextSeq
	cs.nextSeq++
	cs.log = append(cs.log, c)
	cs.state = StateStaged
	observability.ChangesStagedTotal.WithLabelValues(c.Kind.String()).Inc()
}

func (cs *ChangeSet) encodeVertex(id ElementID, op string) (InternalID, error) {
	iid, err := cs.vertexCodec.Encode(id)
	if err != nil {
		return "", errors.AddContext(err, errors.CtxOperation, op)
	}
	return iid, nil
}

func (cs *ChangeSet) encodeEdge(id ElementID, op string) (InternalID, error) {
	iid, err := cs.edgeCodec.Encode(id)
	if err != nil {
		return "", errors.AddContext(err, errors.CtxOperation, op)
	}
	return iid, nil
}

// AddVertex stages a vertex addition. Whether id already exists is decided at
// build time by the add_existing_vertex policy.
func (cs *ChangeSet) AddVertex(id ElementID) (*VertexModifier, error) {
	iid, err := cs.encodeVertex(id, "add_vertex")
	if err != nil {
		return nil, err
	}
	cs.stage(StagedChange{Kind: ChangeAddVertex, ID: iid})
	return &VertexModifier{ChangeSet: cs, id: iid}, nil
}

// AddEdge stages an edge addition. Endpoints may be vertices staged earlier
// in the same change set.
func (cs *ChangeSet) AddEdge(src, dst, id ElementID) (*EdgeModifier, error) {
	srcID, err := cs.encodeVertex(src, "add_edge")
	if err != nil {
		return nil, err
	}
	dstID, err := cs.encodeVertex(dst, "add_edge")
	if err != nil {
		return nil, err
	}
	iid, err := cs.encodeEdge(id, "add_edge")
	if err != nil {
		return nil, err
	}
	cs.stage(StagedChange{Kind: ChangeAddEdge, ID: iid, Src: srcID, Dst: dstID})
	return &EdgeModifier{ChangeSet: cs, id: iid}, nil
}

// RemoveVertex stages a removal; incident edges go with it at build time.
func (cs *ChangeSet) RemoveVertex(id ElementID) error {
	iid, err := cs.encodeVertex(id, "remove_vertex")
	if err != nil {
		return err
	}
	cs.stage(StagedChange{Kind: ChangeRemoveVertex, ID: iid})
	return nil
}

func (cs *ChangeSet) RemoveEdge(id ElementID) error {
	iid, err := cs.encodeEdge(id, "remove_edge")
	if err != nil {
		return err
	}
	cs.stage(StagedChange{Kind: ChangeRemoveEdge, ID: iid})
	return nil
}

// ResetVertex drops every staged change of the vertex, reverting it to its
// base state. Edges staged against it are kept.
func (cs *ChangeSet) ResetVertex(id ElementID) error {
	iid, err := cs.encodeVertex(id, "reset_vertex")
	if err != nil {
		return err
	}
	cs.reset(iid, true)
	return nil
}

func (cs *ChangeSet) ResetEdge(id ElementID) error {
	iid, err := cs.encodeEdge(id, "reset_edge")
	if err != nil {
		return err
	}
	cs.reset(iid, false)
	return nil
}

func (cs *ChangeSet) reset(iid InternalID, vertex bool) {
	kept := cs.log[:0:0]
	dropped := 0
	for _, c := range cs.log {
		if c.ID == iid && c.Kind.onVertex() == vertex {
			dropped++
			continue
		}
		kept = append(kept, c)
	}
	cs.log = kept
	element := "edge"
	if vertex {
		element = "vertex"
	}
	observability.ChangesResetTotal.WithLabelValues(element).Add(float64(dropped))
	if len(cs.log) == 0 {
		cs.state = StateEmpty
	} else if dropped > 0 {
		cs.state = StateStaged
	}
}

func (cs *ChangeSet) SetAddExistingVertexPolicy(name string) error {
	return cs.policies.Set(PolicyAddExistingVertex, name)
}

func (cs *ChangeSet) SetAddExistingEdgePolicy(name string) error {
	return cs.policies.Set(PolicyAddExistingEdge, name)
}

func (cs *ChangeSet) SetInvalidChangePolicy(name string) error {
	return cs.policies.Set(PolicyInvalidChange, name)
}

func (cs *ChangeSet) SetRequiredConversionPolicy(name string) error {
	return cs.policies.Set(PolicyRequiredConversion, name)
}

// SetPolicy sets any policy kind by name.
func (cs *ChangeSet) SetPolicy(kind PolicyKind, name string) error {
	return cs.policies.Set(kind, name)
}

func (cs *ChangeSet) SetRetainVertexIDs(retain bool) { cs.retainVertexIDs = retain }
func (cs *ChangeSet) SetRetainEdgeIDs(retain bool)   { cs.retainEdgeIDs = retain }

// SetRetainIDs sets both retention flags.
func (cs *ChangeSet) SetRetainIDs(retain bool) {
	cs.retainVertexIDs = retain
	cs.retainEdgeIDs = retain
}

// UpdateVertex returns a modifier for a vertex of the base snapshot or a live
// staged addition. Anything else fails with NO_SUCH_ELEMENT.
func (cs *ChangeSet) UpdateVertex(id ElementID) (*VertexModifier, error) {
	iid, err := cs.encodeVertex(id, "update_vertex")
	if err != nil {
		return nil, err
	}
	if !cs.vertexLive(iid) {
		return nil, errors.Newf(errors.CodeNoSuchElement, "vertex %s does not exist", id).
			WithContext(errors.CtxElementID, id.String()).
			WithContext(errors.CtxElement, "vertex")
	}
	return &VertexModifier{ChangeSet: cs, id: iid}, nil
}

func (cs *ChangeSet) UpdateEdge(id ElementID) (*EdgeModifier, error) {
	iid, err := cs.encodeEdge(id, "update_edge")
	if err != nil {
		return nil, err
	}
	if !cs.edgeLive(iid) {
		return nil, errors.Newf(errors.CodeNoSuchElement, "edge %s does not exist", id).
			WithContext(errors.CtxElementID, id.String()).
			WithContext(errors.CtxElement, "edge")
	}
	return &EdgeModifier{ChangeSet: cs, id: iid}, nil
}

// vertexLive reports whether the vertex exists after replaying the log's
// additions and removals over the base. Later entries win.
func (cs *ChangeSet) vertexLive(iid InternalID) bool {
	idx, live := cs.lastVertexLifecycle(iid)
	if idx < 0 {
		_, live = cs.base.vertices.Get(string(iid))
	}
	return live
}

func (cs *ChangeSet) lastVertexLifecycle(iid InternalID) (int, bool) {
	for i := len(cs.log) - 1; i >= 0; i-- {
		c := cs.log[i]
		if c.ID != iid {
			continue
		}
		switch c.Kind {
		case ChangeAddVertex:
			return i, true
		case ChangeRemoveVertex:
			return i, false
		}
	}
	return -1, false
}

// edgeLive also treats an edge as gone when either endpoint is removed after
// the edge's last addition.
func (cs *ChangeSet) edgeLive(iid InternalID) bool {
	from := -1
	var src, dst InternalID
	found := false
	for i := len(cs.log) - 1; i >= 0; i-- {
		c := cs.log[i]
		if c.ID != iid {
			continue
		}
		if c.Kind == ChangeRemoveEdge {
			return false
		}
		if c.Kind == ChangeAddEdge {
			from, src, dst, found = i, c.Src, c.Dst, true
			break
		}
	}
	if !found {
		e, ok := cs.base.edges.Get(string(iid))
		if !ok {
			return false
		}
		src = cs.vertexKey(e.src)
		dst = cs.vertexKey(e.dst)
	}
	for i := from + 1; i < len(cs.log); i++ {
		c := cs.log[i]
		if c.Kind == ChangeRemoveVertex && (c.ID == src || c.ID == dst) {
			return false
		}
	}
	return true
}

func (cs *ChangeSet) vertexKey(id ElementID) InternalID {
	iid, _ := cs.vertexCodec.Encode(id)
	return iid
}

// BuildNewSnapshot applies the whole change log, in order and under the
// current policies, to a copy of the base. The base and the log are left
// untouched; a later call replays the full log again.
func (cs *ChangeSet) BuildNewSnapshot(ctx context.Context) (*Snapshot, error) {
	b := NewSnapshotBuilder(cs)
	snap, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}
	cs.lastBuiltSeq = cs.nextSeq - 1
	cs.state = StateBuilt
	return snap, nil
}
