package graph

import "sort"

// Vertex is an immutable view of a vertex inside a Snapshot.
type Vertex struct {
	id     ElementID
	labels map[string]struct{}
	props  map[string]any
}

func newVertex(id ElementID) *Vertex {
	return &Vertex{id: id, labels: map[string]struct{}{}, props: map[string]any{}}
}

func (v *Vertex) ID() ElementID { return v.id }

// Labels returns the sorted label set.
func (v *Vertex) Labels() []string {
	out := make([]string, 0, len(v.labels))
	for l := range v.labels {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func (v *Vertex) HasLabel(label string) bool {
	_, ok := v.labels[label]
	return ok
}

func (v *Vertex) Property(key string) (any, bool) {
	val, ok := v.props[key]
	return val, ok
}

// Properties returns a copy of the property map.
func (v *Vertex) Properties() map[string]any {
	return copyProps(v.props)
}

func (v *Vertex) clone() *Vertex {
	labels := make(map[string]struct{}, len(v.labels))
	for l := range v.labels {
		labels[l] = struct{}{}
	}
	return &Vertex{id: v.id, labels: labels, props: copyProps(v.props)}
}

// Edge is an immutable view of a directed edge inside a Snapshot.
type Edge struct {
	id    ElementID
	src   ElementID
	dst   ElementID
	label string
	props map[string]any
}

func newEdge(id, src, dst ElementID) *Edge {
	return &Edge{id: id, src: src, dst: dst, props: map[string]any{}}
}

func (e *Edge) ID() ElementID          { return e.id }
func (e *Edge) Source() ElementID      { return e.src }
func (e *Edge) Destination() ElementID { return e.dst }
func (e *Edge) Label() string          { return e.label }

func (e *Edge) Property(key string) (any, bool) {
	val, ok := e.props[key]
	return val, ok
}

func (e *Edge) Properties() map[string]any {
	return copyProps(e.props)
}

func (e *Edge) clone() *Edge {
	c := *e
	c.props = copyProps(e.props)
	return &c
}

func copyProps(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
