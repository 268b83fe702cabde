package query

import (
	"context"
	"strings"
	"time"

	"snapgraph/internal/engine/graph"
)

// Result holds the elements a query selected, in id order.
type Result struct {
	Target   Target
	Vertices []*graph.Vertex
	Edges    []*graph.Edge
}

func (r Result) Len() int {
	if r.Target == TargetEdges {
		return len(r.Edges)
	}
	return len(r.Vertices)
}

// Execute parses raw and runs it against snap. A positive limit caps the
// result; the query's own LIMIT wins when it is smaller.
func Execute(ctx context.Context, snap *graph.Snapshot, raw string, limit int) (Result, error) {
	q, err := ParseCQL(raw)
	if err != nil {
		return Result{}, err
	}
	if q.Limit > 0 && (limit <= 0 || q.Limit < limit) {
		limit = q.Limit
	}

	res := Result{Target: q.Target}
	switch q.Target {
	case TargetVertices:
		for _, v := range snap.Vertices() {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			if limit > 0 && len(res.Vertices) >= limit {
				break
			}
			if matchAll(q.Conditions, vertexField(v)) {
				res.Vertices = append(res.Vertices, v)
			}
		}
	case TargetEdges:
		for _, e := range snap.Edges() {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			if limit > 0 && len(res.Edges) >= limit {
				break
			}
			if matchAll(q.Conditions, edgeField(e)) {
				res.Edges = append(res.Edges, e)
			}
		}
	}
	return res, nil
}

// fieldValue resolves a condition field on one element. The vertex "label"
// field is a set: it matches when any label does.
type fieldValue struct {
	value    any
	labels   []string
	labelSet bool
	found    bool
}

type resolver func(field string) fieldValue

func vertexField(v *graph.Vertex) resolver {
	return func(field string) fieldValue {
		switch strings.ToLower(field) {
		case "id":
			return fieldValue{value: v.ID().Value(), found: true}
		case "label", "labels":
			return fieldValue{labels: v.Labels(), labelSet: true, found: true}
		}
		val, ok := v.Property(strings.TrimPrefix(field, "props."))
		return fieldValue{value: val, found: ok}
	}
}

func edgeField(e *graph.Edge) resolver {
	return func(field string) fieldValue {
		switch strings.ToLower(field) {
		case "id":
			return fieldValue{value: e.ID().Value(), found: true}
		case "label":
			return fieldValue{value: e.Label(), found: true}
		case "src", "source":
			return fieldValue{value: e.Source().Value(), found: true}
		case "dst", "destination":
			return fieldValue{value: e.Destination().Value(), found: true}
		}
		val, ok := e.Property(strings.TrimPrefix(field, "props."))
		return fieldValue{value: val, found: ok}
	}
}

func matchAll(conds []CQLCondition, resolve resolver) bool {
	for _, c := range conds {
		fv := resolve(c.Field)
		if !fv.found {
			return false
		}
		if fv.labelSet {
			if !matchLabels(c, fv.labels) {
				return false
			}
			continue
		}
		if !match(c, fv.value) {
			return false
		}
	}
	return true
}

func matchLabels(c CQLCondition, labels []string) bool {
	if c.Op != "=" && c.Op != "!=" && c.Op != "contains" {
		return false
	}
	want := c.StrVal
	has := false
	for _, l := range labels {
		if c.Op == "contains" && strings.Contains(l, want) || c.Op != "contains" && l == want {
			has = true
			break
		}
	}
	if c.Op == "!=" {
		return !has
	}
	return has
}

func match(c CQLCondition, value any) bool {
	switch v := value.(type) {
	case bool:
		if !c.IsBool {
			return false
		}
		return compareEq(c.Op, v == c.BoolVal)
	case string:
		if c.Op == "contains" {
			return strings.Contains(v, c.StrVal)
		}
		// Numeric literals only compare for equality, e.g. string ids.
		if c.IsBool || c.IsNum && c.Op != "=" && c.Op != "!=" {
			return false
		}
		return compareOrdered(c.Op, strings.Compare(v, c.StrVal))
	case time.Time:
		if !c.IsStr || c.Op == "contains" {
			return false
		}
		t, ok := parseTime(c.StrVal)
		if !ok {
			return false
		}
		return compareOrdered(c.Op, v.Compare(t))
	}

	n, ok := number(value)
	if !ok || !c.IsNum {
		return false
	}
	switch {
	case n < c.NumVal:
		return compareOrdered(c.Op, -1)
	case n > c.NumVal:
		return compareOrdered(c.Op, 1)
	}
	return compareOrdered(c.Op, 0)
}

func compareEq(op string, equal bool) bool {
	if op == "!=" {
		return !equal
	}
	return op == "=" && equal
}

func compareOrdered(op string, cmp int) bool {
	switch op {
	case "=":
		return cmp == 0
	case "!=":
		return cmp != 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	}
	return false
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
