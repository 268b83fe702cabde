package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"snapgraph/internal/data/snapshots"
	"snapgraph/internal/engine/graph"
)

func describe(snap *graph.Snapshot) string {
	return fmt.Sprintf("%s v%d (%d vertices, %d edges)", snap.Name(), snap.Version(), snap.VertexCount(), snap.EdgeCount())
}

type summaryJSON struct {
	ID          string    `json:"id"`
	ParentID    string    `json:"parent_id"`
	Name        string    `json:"name"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	Digest      string    `json:"digest"`
	VertexCount int       `json:"vertex_count"`
	EdgeCount   int       `json:"edge_count"`
}

type vertexJSON struct {
	ID         any            `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties,omitempty"`
}

type edgeJSON struct {
	ID          any            `json:"id"`
	Source      any            `json:"source"`
	Destination any            `json:"destination"`
	Label       string         `json:"label,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
}

type elementsJSON struct {
	Vertices []vertexJSON `json:"vertices,omitempty"`
	Edges    []edgeJSON   `json:"edges,omitempty"`
}

type snapshotJSON struct {
	summaryJSON
	elementsJSON
}

func summaryViews(sums []snapshots.Summary) []summaryJSON {
	out := make([]summaryJSON, 0, len(sums))
	for _, s := range sums {
		out = append(out, summaryJSON{
			ID:          s.ID.String(),
			ParentID:    s.ParentID.String(),
			Name:        s.Name,
			Version:     s.Version,
			CreatedAt:   s.CreatedAt,
			Digest:      s.Digest,
			VertexCount: s.VertexCount,
			EdgeCount:   s.EdgeCount,
		})
	}
	return out
}

func snapshotView(snap *graph.Snapshot, elements bool) snapshotJSON {
	view := snapshotJSON{summaryJSON: summaryJSON{
		ID:          snap.ID().String(),
		ParentID:    snap.ParentID().String(),
		Name:        snap.Name(),
		Version:     snap.Version(),
		CreatedAt:   snap.CreatedAt(),
		Digest:      snap.Digest(),
		VertexCount: snap.VertexCount(),
		EdgeCount:   snap.EdgeCount(),
	}}
	if elements {
		view.elementsJSON = elementsView(snap.Vertices(), snap.Edges())
	}
	return view
}

func elementsView(vertices []*graph.Vertex, edges []*graph.Edge) elementsJSON {
	var view elementsJSON
	for _, v := range vertices {
		view.Vertices = append(view.Vertices, vertexJSON{ID: v.ID().Value(), Labels: v.Labels(), Properties: v.Properties()})
	}
	for _, e := range edges {
		view.Edges = append(view.Edges, edgeJSON{
			ID:          e.ID().Value(),
			Source:      e.Source().Value(),
			Destination: e.Destination().Value(),
			Label:       e.Label(),
			Properties:  e.Properties(),
		})
	}
	return view
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummaries(w io.Writer, sums []snapshots.Summary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GRAPH\tVERSION\tVERTICES\tEDGES\tCREATED\tDIGEST")
	for _, s := range sums {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t%s\n",
			s.Name, s.Version, s.VertexCount, s.EdgeCount, s.CreatedAt.Format(time.RFC3339), shortDigest(s.Digest))
	}
	tw.Flush()
}

func printSnapshot(w io.Writer, snap *graph.Snapshot, elements bool) {
	fmt.Fprintf(w, "graph %s v%d\n", snap.Name(), snap.Version())
	fmt.Fprintf(w, "  id:       %s\n", snap.ID())
	fmt.Fprintf(w, "  parent:   %s\n", snap.ParentID())
	fmt.Fprintf(w, "  created:  %s\n", snap.CreatedAt().Format(time.RFC3339))
	fmt.Fprintf(w, "  digest:   %s\n", snap.Digest())
	fmt.Fprintf(w, "  vertices: %d\n", snap.VertexCount())
	fmt.Fprintf(w, "  edges:    %d\n", snap.EdgeCount())
	if elements {
		printElements(w, snap.Vertices(), snap.Edges())
	}
}

func printElements(w io.Writer, vertices []*graph.Vertex, edges []*graph.Edge) {
	for _, v := range vertices {
		fmt.Fprintf(w, "v %s [%s] %s\n", v.ID(), strings.Join(v.Labels(), ","), formatProps(v.Properties()))
	}
	for _, e := range edges {
		fmt.Fprintf(w, "e %s %s -> %s %s %s\n", e.ID(), e.Source(), e.Destination(), e.Label(), formatProps(e.Properties()))
	}
}

func formatProps(props map[string]any) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := props[k]
		if t, ok := v.(time.Time); ok {
			v = t.Format(time.RFC3339Nano)
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
