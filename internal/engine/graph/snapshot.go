// # internal/engine/graph/snapshot.go
package graph

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/btree"

	"snapgraph/internal/core/errors"
)

// Snapshot is an immutable point-in-time graph. Every accessor returns copies
// or immutable views; a Snapshot may be shared by any number of readers and
// change sets.
type Snapshot struct {
	id        uuid.UUID
	parentID  uuid.UUID
	name      string
	version   int64
	createdAt time.Time
	schema    Schema

	vertexCodec Codec
	edgeCodec   Codec

	vertices *btree.Map[string, *Vertex]
	edges    *btree.Map[string, *Edge]

	vertexIDMapping map[ElementID]ElementID
	edgeIDMapping   map[ElementID]ElementID

	// copyMu serialises Copy on the maps, which rewrites their isolation ids.
	copyMu sync.Mutex

	digestOnce sync.Once
	digest     string
}

// NewEmptySnapshot creates version 0 of a graph.
func NewEmptySnapshot(name string, schema Schema) *Snapshot {
	return &Snapshot{
		id:          uuid.New(),
		name:        name,
		createdAt:   time.Now().UTC(),
		schema:      schema.Clone(),
		vertexCodec: NewCodec(schema.VertexIDType),
		edgeCodec:   NewCodec(schema.EdgeIDType),
		vertices:    &btree.Map[string, *Vertex]{},
		edges:       &btree.Map[string, *Edge]{},
	}
}

// SnapshotMeta carries the identity of a persisted snapshot.
type SnapshotMeta struct {
	ID        uuid.UUID
	ParentID  uuid.UUID
	Name      string
	Version   int64
	CreatedAt time.Time
}

// VertexRecord and EdgeRecord are the plain form of elements used when a
// snapshot is restored from storage.
type VertexRecord struct {
	ID         ElementID
	Labels     []string
	Properties map[string]any
}

type EdgeRecord struct {
	ID         ElementID
	Source     ElementID
	Dest       ElementID
	Label      string
	Properties map[string]any
}

// RestoreSnapshot rebuilds a snapshot from persisted records. Property values
// must already carry their declared Go types.
func RestoreSnapshot(meta SnapshotMeta, schema Schema, vertices []VertexRecord, edges []EdgeRecord) (*Snapshot, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	s := NewEmptySnapshot(meta.Name, schema)
	s.id = meta.ID
	s.parentID = meta.ParentID
	s.version = meta.Version
	s.createdAt = meta.CreatedAt

	for _, rec := range vertices {
		key, err := s.vertexCodec.Encode(rec.ID)
		if err != nil {
			return nil, errors.AddContext(err, errors.CtxOperation, "restore_vertex")
		}
		v := newVertex(rec.ID)
		for _, l := range rec.Labels {
			v.labels[l] = struct{}{}
		}
		for k, val := range rec.Properties {
			v.props[k] = val
		}
		s.vertices.Set(string(key), v)
	}
	for _, rec := range edges {
		key, err := s.edgeCodec.Encode(rec.ID)
		if err != nil {
			return nil, errors.AddContext(err, errors.CtxOperation, "restore_edge")
		}
		for _, end := range []ElementID{rec.Source, rec.Dest} {
			vk, err := s.vertexCodec.Encode(end)
			if err != nil {
				return nil, errors.AddContext(err, errors.CtxOperation, "restore_edge")
			}
			if _, ok := s.vertices.Get(string(vk)); !ok {
				return nil, errors.Newf(errors.CodeValidationError, "edge %s references missing vertex %s", rec.ID, end).
					WithContext(errors.CtxElementID, rec.ID.String())
			}
		}
		e := newEdge(rec.ID, rec.Source, rec.Dest)
		e.label = rec.Label
		for k, val := range rec.Properties {
			e.props[k] = val
		}
		s.edges.Set(string(key), e)
	}
	return s, nil
}

func (s *Snapshot) ID() uuid.UUID        { return s.id }
func (s *Snapshot) ParentID() uuid.UUID  { return s.parentID }
func (s *Snapshot) Name() string         { return s.name }
func (s *Snapshot) Version() int64       { return s.version }
func (s *Snapshot) CreatedAt() time.Time { return s.createdAt }
func (s *Snapshot) Schema() Schema       { return s.schema.Clone() }

func (s *Snapshot) Meta() SnapshotMeta {
	return SnapshotMeta{ID: s.id, ParentID: s.parentID, Name: s.name, Version: s.version, CreatedAt: s.createdAt}
}

func (s *Snapshot) VertexCount() int { return s.vertices.Len() }
func (s *Snapshot) EdgeCount() int   { return s.edges.Len() }

func (s *Snapshot) Vertex(id ElementID) (*Vertex, bool) {
	key, err := s.vertexCodec.Encode(id)
	if err != nil {
		return nil, false
	}
	return s.vertices.Get(string(key))
}

func (s *Snapshot) Edge(id ElementID) (*Edge, bool) {
	key, err := s.edgeCodec.Encode(id)
	if err != nil {
		return nil, false
	}
	return s.edges.Get(string(key))
}

func (s *Snapshot) HasVertex(id ElementID) bool {
	_, ok := s.Vertex(id)
	return ok
}

func (s *Snapshot) HasEdge(id ElementID) bool {
	_, ok := s.Edge(id)
	return ok
}

// Vertices returns every vertex in id order.
func (s *Snapshot) Vertices() []*Vertex {
	out := make([]*Vertex, 0, s.vertices.Len())
	s.vertices.Scan(func(_ string, v *Vertex) bool {
		out = append(out, v)
		return true
	})
	return out
}

// Edges returns every edge in id order.
func (s *Snapshot) Edges() []*Edge {
	out := make([]*Edge, 0, s.edges.Len())
	s.edges.Scan(func(_ string, e *Edge) bool {
		out = append(out, e)
		return true
	})
	return out
}

// VertexIDMapping maps the ids staged for newly created vertices to the ids
// they received when id retention was off. It is empty otherwise.
func (s *Snapshot) VertexIDMapping() map[ElementID]ElementID {
	return copyIDMap(s.vertexIDMapping)
}

func (s *Snapshot) EdgeIDMapping() map[ElementID]ElementID {
	return copyIDMap(s.edgeIDMapping)
}

func (s *Snapshot) String() string {
	return fmt.Sprintf("Snapshot(name=%s, version=%d, vertices=%d, edges=%d)",
		s.name, s.version, s.vertices.Len(), s.edges.Len())
}

// NewChangeSet starts a change set on top of s.
func (s *Snapshot) NewChangeSet(opts ...ChangeSetOption) *ChangeSet {
	return NewChangeSet(s, opts...)
}

// copyMaps returns copy-on-write clones of both element maps.
func (s *Snapshot) copyMaps() (*btree.Map[string, *Vertex], *btree.Map[string, *Edge]) {
	s.copyMu.Lock()
	defer s.copyMu.Unlock()
	return s.vertices.Copy(), s.edges.Copy()
}

func copyIDMap(in map[ElementID]ElementID) map[ElementID]ElementID {
	out := make(map[ElementID]ElementID, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
