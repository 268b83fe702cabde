package snapshots

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"snapgraph/internal/core/errors"
	"snapgraph/internal/engine/graph"
)

type schemaDoc struct {
	VertexIDType     string            `json:"vertex_id_type"`
	EdgeIDType       string            `json:"edge_id_type"`
	VertexProperties map[string]string `json:"vertex_properties"`
	EdgeProperties   map[string]string `json:"edge_properties"`
}

func encodeSchema(s graph.Schema) (string, error) {
	doc := schemaDoc{
		VertexIDType:     s.VertexIDType.String(),
		EdgeIDType:       s.EdgeIDType.String(),
		VertexProperties: make(map[string]string, len(s.VertexProperties)),
		EdgeProperties:   make(map[string]string, len(s.EdgeProperties)),
	}
	for k, t := range s.VertexProperties {
		doc.VertexProperties[k] = t.String()
	}
	for k, t := range s.EdgeProperties {
		doc.EdgeProperties[k] = t.String()
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode schema: %w", err)
	}
	return string(data), nil
}

func decodeSchema(raw string) (graph.Schema, error) {
	var doc schemaDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return graph.Schema{}, fmt.Errorf("decode schema: %w", err)
	}
	s := graph.DefaultSchema()
	var err error
	if s.VertexIDType, err = graph.ParseIDType(doc.VertexIDType); err != nil {
		return graph.Schema{}, err
	}
	if s.EdgeIDType, err = graph.ParseIDType(doc.EdgeIDType); err != nil {
		return graph.Schema{}, err
	}
	for k, name := range doc.VertexProperties {
		if s.VertexProperties[k], err = graph.ParsePropertyType(name); err != nil {
			return graph.Schema{}, err
		}
	}
	for k, name := range doc.EdgeProperties {
		if s.EdgeProperties[k], err = graph.ParsePropertyType(name); err != nil {
			return graph.Schema{}, err
		}
	}
	return s, nil
}

func encodeLabels(labels []string) (string, error) {
	if labels == nil {
		labels = []string{}
	}
	data, err := json.Marshal(labels)
	if err != nil {
		return "", fmt.Errorf("encode labels: %w", err)
	}
	return string(data), nil
}

func decodeLabels(raw string) ([]string, error) {
	var labels []string
	if err := json.Unmarshal([]byte(raw), &labels); err != nil {
		return nil, fmt.Errorf("decode labels: %w", err)
	}
	sort.Strings(labels)
	return labels, nil
}

// encodeProps writes property values as JSON. Timestamps and dates are
// written as RFC3339 strings and restored through the schema on decode.
func encodeProps(props map[string]any) (string, error) {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if t, ok := v.(time.Time); ok {
			out[k] = t.UTC().Format(time.RFC3339Nano)
			continue
		}
		out[k] = v
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode properties: %w", err)
	}
	return string(data), nil
}

func decodeProps(raw string, types map[string]graph.PropertyType) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var in map[string]any
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		t, ok := types[k]
		if !ok {
			return nil, errors.Newf(errors.CodeValidationError, "stored property %q is not declared", k).
				WithContext(errors.CtxProperty, k)
		}
		val, err := decodeValue(v, t)
		if err != nil {
			return nil, errors.AddContext(err, errors.CtxProperty, k)
		}
		out[k] = val
	}
	return out, nil
}

func decodeValue(v any, t graph.PropertyType) (any, error) {
	mismatch := func() error {
		return errors.Newf(errors.CodeTypeConversion, "stored value %v is not a %s", v, t).
			WithContext(errors.CtxValue, v)
	}
	switch t {
	case graph.PropertyInteger, graph.PropertyLong:
		n, ok := v.(json.Number)
		if !ok {
			return nil, mismatch()
		}
		i, err := n.Int64()
		if err != nil {
			return nil, mismatch()
		}
		if t == graph.PropertyInteger {
			return int32(i), nil
		}
		return i, nil
	case graph.PropertyFloat, graph.PropertyDouble:
		n, ok := v.(json.Number)
		if !ok {
			return nil, mismatch()
		}
		f, err := n.Float64()
		if err != nil {
			return nil, mismatch()
		}
		if t == graph.PropertyFloat {
			return float32(f), nil
		}
		return f, nil
	case graph.PropertyBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, mismatch()
		}
		return b, nil
	case graph.PropertyString:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch()
		}
		return s, nil
	case graph.PropertyLocalDate, graph.PropertyTimestamp:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch()
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, mismatch()
		}
		return ts.UTC(), nil
	}
	return nil, mismatch()
}
