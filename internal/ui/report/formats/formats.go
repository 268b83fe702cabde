package formats

import (
	"strings"

	"snapgraph/internal/core/errors"
	"snapgraph/internal/engine/graph"
)

// Generator renders a snapshot in one export format.
type Generator interface {
	Generate() (string, error)
}

var generators = map[string]func(*graph.Snapshot) Generator{
	"dot":     func(s *graph.Snapshot) Generator { return NewDOTGenerator(s) },
	"mermaid": func(s *graph.Snapshot) Generator { return NewMermaidGenerator(s) },
	"tsv":     func(s *graph.Snapshot) Generator { return NewTSVGenerator(s) },
}

// Names lists the supported export formats.
func Names() []string {
	return []string{"dot", "mermaid", "tsv"}
}

func Render(snap *graph.Snapshot, format string) (string, error) {
	newGen, ok := generators[strings.ToLower(strings.TrimSpace(format))]
	if !ok {
		return "", errors.Newf(errors.CodeInvalidOption, "unknown export format %q (options: %s)",
			format, strings.Join(Names(), ", "))
	}
	return newGen(snap).Generate()
}
