package formats

import (
	"fmt"
	"strings"

	"snapgraph/internal/engine/graph"
)

type MermaidGenerator struct {
	snap *graph.Snapshot
}

func NewMermaidGenerator(snap *graph.Snapshot) *MermaidGenerator {
	return &MermaidGenerator{snap: snap}
}

// Generate renders a left-to-right flowchart. Labelled vertices get a class
// per first label so a stylesheet can colour them.
func (m *MermaidGenerator) Generate() (string, error) {
	var b strings.Builder
	b.WriteString("flowchart LR\n")

	vertices := m.snap.Vertices()
	names := make([]string, len(vertices))
	for i, v := range vertices {
		names[i] = v.ID().String()
	}
	ids := makeIDs("v", names)

	classes := make(map[string][]string)
	var classOrder []string
	for _, v := range vertices {
		id := ids[v.ID().String()]
		text := v.ID().String()
		labels := v.Labels()
		if len(labels) > 0 {
			text += "<br/>:" + strings.Join(labels, ":")
			class := sanitizeID("", labels[0])
			if _, ok := classes[class]; !ok {
				classOrder = append(classOrder, class)
			}
			classes[class] = append(classes[class], id)
		}
		if props := propsText(v.Properties(), "<br/>"); props != "" {
			text += "<br/>" + props
		}
		fmt.Fprintf(&b, "    %s[\"%s\"]\n", id, escapeLabel(text))
	}

	for _, e := range m.snap.Edges() {
		src, dst := ids[e.Source().String()], ids[e.Destination().String()]
		label := e.Label()
		if props := propsText(e.Properties(), " "); props != "" {
			label = strings.TrimSpace(label + " " + props)
		}
		if label == "" {
			fmt.Fprintf(&b, "    %s --> %s\n", src, dst)
			continue
		}
		fmt.Fprintf(&b, "    %s -->|\"%s\"| %s\n", src, escapeLabel(label), dst)
	}

	for _, class := range classOrder {
		fmt.Fprintf(&b, "    class %s %s\n", strings.Join(classes[class], ","), class)
	}
	return b.String(), nil
}
