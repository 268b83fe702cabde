package graph

import (
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"lukechampine.com/blake3"
)

// Digest is the hex BLAKE3-256 of the snapshot's canonical content: schema,
// vertices and edges in key order. Identity fields (uuid, version, timestamps)
// are excluded, so two snapshots with equal content share a digest.
func (s *Snapshot) Digest() string {
	s.digestOnce.Do(func() {
		h := blake3.New(32, nil)
		s.writeCanonical(h)
		s.digest = hex.EncodeToString(h.Sum(nil))
	})
	return s.digest
}

func (s *Snapshot) writeCanonical(w io.Writer) {
	fmt.Fprintf(w, "schema vid=%s eid=%s\n", s.schema.VertexIDType, s.schema.EdgeIDType)
	for _, name := range sortedPropertyNames(s.schema.VertexProperties) {
		fmt.Fprintf(w, "vprop %q %s\n", name, s.schema.VertexProperties[name])
	}
	for _, name := range sortedPropertyNames(s.schema.EdgeProperties) {
		fmt.Fprintf(w, "eprop %q %s\n", name, s.schema.EdgeProperties[name])
	}
	s.vertices.Scan(func(key string, v *Vertex) bool {
		fmt.Fprintf(w, "v %q", key)
		for _, l := range v.Labels() {
			fmt.Fprintf(w, " l=%q", l)
		}
		writeProps(w, v.props)
		io.WriteString(w, "\n")
		return true
	})
	s.edges.Scan(func(key string, e *Edge) bool {
		fmt.Fprintf(w, "e %q %s>%s l=%q", key, canonicalID(e.src), canonicalID(e.dst), e.label)
		writeProps(w, e.props)
		io.WriteString(w, "\n")
		return true
	})
}

func writeProps(w io.Writer, props map[string]any) {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, " p%q=%s", k, canonicalValue(props[k]))
	}
}

func canonicalID(id ElementID) string {
	if id.typ == IDTypeString {
		return strconv.Quote(id.s)
	}
	return strconv.FormatInt(id.i, 10)
}

func canonicalValue(v any) string {
	switch x := v.(type) {
	case int32:
		return "i32:" + strconv.FormatInt(int64(x), 10)
	case int64:
		return "i64:" + strconv.FormatInt(x, 10)
	case float32:
		return "f32:" + strconv.FormatUint(uint64(math.Float32bits(x)), 16)
	case float64:
		return "f64:" + strconv.FormatUint(math.Float64bits(x), 16)
	case bool:
		return "b:" + strconv.FormatBool(x)
	case string:
		return "s:" + strconv.Quote(x)
	case time.Time:
		return "t:" + x.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}
