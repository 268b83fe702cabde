// # internal/engine/script/script.go
package script

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"snapgraph/internal/core/errors"
	"snapgraph/internal/engine/graph"
	"snapgraph/internal/shared/util"
)

type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatOf picks the decoder from a file extension.
func FormatOf(path string) (Format, error) {
	switch util.ScriptExtension(path) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", errors.Newf(errors.CodeNotSupported, "unsupported change script %q", path).
		WithContext(errors.CtxValue, path)
}

// Script is a declarative, ordered list of changes against one graph.
type Script struct {
	Path     string            `toml:"-" yaml:"-"`
	Graph    string            `toml:"graph" yaml:"graph"`
	Schema   *SchemaSpec       `toml:"schema" yaml:"schema"`
	Policies map[string]string `toml:"policies" yaml:"policies"`
	Retain   *RetainSpec       `toml:"retain" yaml:"retain"`
	Ops      []Op              `toml:"ops" yaml:"ops"`
}

// SchemaSpec is only consulted when the graph does not exist yet.
type SchemaSpec struct {
	VertexIDType     string            `toml:"vertex_id_type" yaml:"vertex_id_type"`
	EdgeIDType       string            `toml:"edge_id_type" yaml:"edge_id_type"`
	VertexProperties map[string]string `toml:"vertex_properties" yaml:"vertex_properties"`
	EdgeProperties   map[string]string `toml:"edge_properties" yaml:"edge_properties"`
}

type RetainSpec struct {
	Vertices *bool `toml:"vertices" yaml:"vertices"`
	Edges    *bool `toml:"edges" yaml:"edges"`
}

func Load(path string) (*Script, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Path = path
	return s, nil
}

func Parse(data []byte, format Format) (*Script, error) {
	var s Script
	switch format {
	case FormatTOML:
		if _, err := toml.Decode(string(data), &s); err != nil {
			return nil, errors.Wrap(err, errors.CodeValidationError, "decode toml change script")
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil {
			return nil, errors.Wrap(err, errors.CodeValidationError, "decode yaml change script")
		}
	default:
		return nil, errors.Newf(errors.CodeNotSupported, "unsupported script format %q", format)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks everything that can be checked without a base snapshot.
func (s *Script) Validate() error {
	if strings.TrimSpace(s.Graph) == "" {
		return errors.New(errors.CodeValidationError, "change script must name a graph")
	}
	if s.Schema != nil {
		if _, err := s.Schema.Build(); err != nil {
			return err
		}
	}
	for kind, name := range s.Policies {
		if _, err := graph.ParsePolicy(graph.PolicyKind(kind), name); err != nil {
			return err
		}
	}
	for i, op := range s.Ops {
		if err := op.validate(); err != nil {
			return fmt.Errorf("op %d: %w", i, err)
		}
	}
	return nil
}

// Build converts the declared schema; an omitted id type means integer.
func (d *SchemaSpec) Build() (graph.Schema, error) {
	schema := graph.DefaultSchema()
	var err error
	if schema.VertexIDType, err = graph.ParseIDType(d.VertexIDType); err != nil {
		return graph.Schema{}, err
	}
	if schema.EdgeIDType, err = graph.ParseIDType(d.EdgeIDType); err != nil {
		return graph.Schema{}, err
	}
	for name, typ := range d.VertexProperties {
		if schema.VertexProperties[name], err = graph.ParsePropertyType(typ); err != nil {
			return graph.Schema{}, errors.AddContext(err, errors.CtxProperty, name)
		}
	}
	for name, typ := range d.EdgeProperties {
		if schema.EdgeProperties[name], err = graph.ParsePropertyType(typ); err != nil {
			return graph.Schema{}, errors.AddContext(err, errors.CtxProperty, name)
		}
	}
	return schema, schema.Validate()
}

// GraphSchema returns the declared schema or the default one.
func (s *Script) GraphSchema() (graph.Schema, error) {
	if s.Schema == nil {
		return graph.DefaultSchema(), nil
	}
	return s.Schema.Build()
}

// Configure applies the script's policies and retention flags to cs.
func (s *Script) Configure(cs *graph.ChangeSet) error {
	for _, kind := range util.SortedStringKeys(s.Policies) {
		if err := cs.SetPolicy(graph.PolicyKind(kind), s.Policies[kind]); err != nil {
			return err
		}
	}
	if s.Retain != nil {
		if s.Retain.Vertices != nil {
			cs.SetRetainVertexIDs(*s.Retain.Vertices)
		}
		if s.Retain.Edges != nil {
			cs.SetRetainEdgeIDs(*s.Retain.Edges)
		}
	}
	return nil
}

// Apply configures cs and stages every op in order. Staging stops at the
// first failing op; changes staged before it stay in cs.
func (s *Script) Apply(cs *graph.ChangeSet) error {
	if err := s.Configure(cs); err != nil {
		return err
	}
	schema := cs.Base().Schema()
	for i, op := range s.Ops {
		if err := op.apply(cs, schema); err != nil {
			return fmt.Errorf("op %d (%s): %w", i, op.Op, err)
		}
	}
	return nil
}
