// # internal/ui/report/formats/tsv.go
package formats

import (
	"fmt"
	"strings"

	"snapgraph/internal/engine/graph"
)

type TSVGenerator struct {
	snap *graph.Snapshot
}

func NewTSVGenerator(snap *graph.Snapshot) *TSVGenerator {
	return &TSVGenerator{snap: snap}
}

// Generate writes one row per element. Vertex rows leave the endpoint
// columns empty; labels are comma separated.
func (t *TSVGenerator) Generate() (string, error) {
	var buf strings.Builder

	buf.WriteString("Kind\tID\tSource\tDestination\tLabels\tProperties\n")
	for _, v := range t.snap.Vertices() {
		fmt.Fprintf(&buf, "vertex\t%s\t\t\t%s\t%s\n",
			v.ID(), strings.Join(v.Labels(), ","), tsvField(propsText(v.Properties(), ";")))
	}
	for _, e := range t.snap.Edges() {
		fmt.Fprintf(&buf, "edge\t%s\t%s\t%s\t%s\t%s\n",
			e.ID(), e.Source(), e.Destination(), e.Label(), tsvField(propsText(e.Properties(), ";")))
	}

	return buf.String(), nil
}

func tsvField(s string) string {
	return strings.NewReplacer("\t", " ", "\n", " ").Replace(s)
}
