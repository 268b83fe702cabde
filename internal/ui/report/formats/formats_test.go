package formats

import (
	"context"
	"strings"
	"testing"

	"snapgraph/internal/core/errors"
	"snapgraph/internal/engine/graph"
)

func testSnapshot(t *testing.T) *graph.Snapshot {
	t.Helper()
	schema := graph.DefaultSchema()
	schema.VertexProperties = map[string]graph.PropertyType{"name": graph.PropertyString}
	schema.EdgeProperties = map[string]graph.PropertyType{"weight": graph.PropertyDouble}

	cs := graph.NewChangeSet(graph.NewEmptySnapshot("social", schema))
	ada, err := cs.AddVertex(graph.IntID(1))
	if err != nil {
		t.Fatal(err)
	}
	if err := ada.AddLabel("person"); err != nil {
		t.Fatal(err)
	}
	if err := ada.SetProperty("name", "ada"); err != nil {
		t.Fatal(err)
	}
	if _, err := cs.AddVertex(graph.IntID(2)); err != nil {
		t.Fatal(err)
	}
	knows, err := cs.AddEdge(graph.IntID(1), graph.IntID(2), graph.IntID(10))
	if err != nil {
		t.Fatal(err)
	}
	if err := knows.SetLabel("knows"); err != nil {
		t.Fatal(err)
	}
	if err := knows.SetProperty("weight", 0.5); err != nil {
		t.Fatal(err)
	}

	snap, err := cs.BuildNewSnapshot(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return snap
}

func TestRender(t *testing.T) {
	snap := testSnapshot(t)

	cases := []struct {
		format string
		want   []string
	}{
		{"dot", []string{
			`digraph "social_v1" {`,
			`  v1 [label="1\n:person\nname=ada"];`,
			`  v2 [label="2"];`,
			`  v1 -> v2 [label="10 knows\nweight=0.5"];`,
		}},
		{"mermaid", []string{
			"flowchart LR",
			`    v1["1<br/>:person<br/>name=ada"]`,
			`    v2["2"]`,
			`    v1 -->|"knows weight=0.5"| v2`,
			"    class v1 person",
		}},
		{"TSV", []string{
			"Kind\tID\tSource\tDestination\tLabels\tProperties",
			"vertex\t1\t\t\tperson\tname=ada",
			"vertex\t2\t\t\t\t",
			"edge\t10\t1\t2\tknows\tweight=0.5",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.format, func(t *testing.T) {
			out, err := Render(snap, tc.format)
			if err != nil {
				t.Fatalf("render: %v", err)
			}
			lines := strings.Split(out, "\n")
			for _, want := range tc.want {
				found := false
				for _, line := range lines {
					if line == want {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("missing line %q in:\n%s", want, out)
				}
			}
		})
	}
}

func TestRender_UnknownFormat(t *testing.T) {
	_, err := Render(testSnapshot(t), "svg")
	if !errors.IsCode(err, errors.CodeInvalidOption) {
		t.Fatalf("expected INVALID_OPTION, got %v", err)
	}
}

func TestMakeIDs_DisambiguatesCollisions(t *testing.T) {
	ids := makeIDs("v", []string{"a-b", "a_b", "c"})
	if ids["a-b"] != "va_b" || ids["a_b"] != "va_b_2" || ids["c"] != "vc" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}
