// # internal/ui/report/formats/dot.go
package formats

import (
	"fmt"
	"strings"

	"snapgraph/internal/engine/graph"
)

type DOTGenerator struct {
	snap *graph.Snapshot
}

func NewDOTGenerator(snap *graph.Snapshot) *DOTGenerator {
	return &DOTGenerator{snap: snap}
}

func (d *DOTGenerator) Generate() (string, error) {
	var buf strings.Builder

	fmt.Fprintf(&buf, "digraph %q {\n", fmt.Sprintf("%s_v%d", d.snap.Name(), d.snap.Version()))
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  node [shape=box, style=rounded, fontname=\"Helvetica\", fontsize=10];\n")
	buf.WriteString("  edge [fontname=\"Helvetica\", fontsize=8, penwidth=1.2];\n")
	buf.WriteString("  overlap=false;\n\n")

	vertices := d.snap.Vertices()
	names := make([]string, len(vertices))
	for i, v := range vertices {
		names[i] = v.ID().String()
	}
	ids := makeIDs("v", names)

	for _, v := range vertices {
		lines := []string{v.ID().String()}
		if labels := v.Labels(); len(labels) > 0 {
			lines = append(lines, ":"+strings.Join(labels, ":"))
		}
		if props := propsText(v.Properties(), "\\n"); props != "" {
			lines = append(lines, props)
		}
		fmt.Fprintf(&buf, "  %s [label=\"%s\"];\n", ids[v.ID().String()], escapeLabel(strings.Join(lines, "\\n")))
	}
	if len(vertices) > 0 {
		buf.WriteString("\n")
	}

	for _, e := range d.snap.Edges() {
		label := e.ID().String()
		if e.Label() != "" {
			label += " " + e.Label()
		}
		if props := propsText(e.Properties(), " "); props != "" {
			label += "\\n" + props
		}
		fmt.Fprintf(&buf, "  %s -> %s [label=\"%s\"];\n",
			ids[e.Source().String()], ids[e.Destination().String()], escapeLabel(label))
	}

	buf.WriteString("}\n")
	return buf.String(), nil
}
