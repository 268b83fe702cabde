package graph

import (
	"fmt"
	"sort"
	"strings"

	"snapgraph/internal/core/errors"
)

// PropertyType is the declared type of a vertex or edge property.
type PropertyType int

const (
	PropertyInteger PropertyType = iota // int32
	PropertyLong                        // int64
	PropertyFloat                       // float32
	PropertyDouble                      // float64
	PropertyBoolean
	PropertyString
	PropertyLocalDate // time.Time at UTC midnight
	PropertyTimestamp // time.Time
)

var propertyTypeNames = map[PropertyType]string{
	PropertyInteger:   "integer",
	PropertyLong:      "long",
	PropertyFloat:     "float",
	PropertyDouble:    "double",
	PropertyBoolean:   "boolean",
	PropertyString:    "string",
	PropertyLocalDate: "local_date",
	PropertyTimestamp: "timestamp",
}

func (p PropertyType) String() string {
	if name, ok := propertyTypeNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PropertyType(%d)", int(p))
}

func ParsePropertyType(s string) (PropertyType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	switch key {
	case "int":
		key = "integer"
	case "bool":
		key = "boolean"
	case "date":
		key = "local_date"
	}
	for t, name := range propertyTypeNames {
		if name == key {
			return t, nil
		}
	}
	return 0, errors.Newf(errors.CodeInvalidOption, "unknown property type %q", s).
		WithContext(errors.CtxValue, s)
}

// Schema declares id types and property types for both element domains.
type Schema struct {
	VertexIDType     IDType
	EdgeIDType       IDType
	VertexProperties map[string]PropertyType
	EdgeProperties   map[string]PropertyType
}

// DefaultSchema uses integer ids and declares no properties.
func DefaultSchema() Schema {
	return Schema{
		VertexIDType:     IDTypeInteger,
		EdgeIDType:       IDTypeInteger,
		VertexProperties: map[string]PropertyType{},
		EdgeProperties:   map[string]PropertyType{},
	}
}

func (s Schema) Clone() Schema {
	out := Schema{
		VertexIDType:     s.VertexIDType,
		EdgeIDType:       s.EdgeIDType,
		VertexProperties: make(map[string]PropertyType, len(s.VertexProperties)),
		EdgeProperties:   make(map[string]PropertyType, len(s.EdgeProperties)),
	}
	for k, v := range s.VertexProperties {
		out.VertexProperties[k] = v
	}
	for k, v := range s.EdgeProperties {
		out.EdgeProperties[k] = v
	}
	return out
}

func (s Schema) Validate() error {
	for _, t := range []IDType{s.VertexIDType, s.EdgeIDType} {
		if t != IDTypeInteger && t != IDTypeString {
			return errors.Newf(errors.CodeValidationError, "invalid id type %s", t)
		}
	}
	check := func(domain string, props map[string]PropertyType) error {
		for name, t := range props {
			if strings.TrimSpace(name) == "" {
				return errors.Newf(errors.CodeValidationError, "%s property with empty name", domain)
			}
			if _, ok := propertyTypeNames[t]; !ok {
				return errors.Newf(errors.CodeValidationError, "%s property %q has invalid type %s", domain, name, t).
					WithContext(errors.CtxProperty, name)
			}
		}
		return nil
	}
	if err := check("vertex", s.VertexProperties); err != nil {
		return err
	}
	return check("edge", s.EdgeProperties)
}

func (s Schema) VertexProperty(name string) (PropertyType, bool) {
	t, ok := s.VertexProperties[name]
	return t, ok
}

func (s Schema) EdgeProperty(name string) (PropertyType, bool) {
	t, ok := s.EdgeProperties[name]
	return t, ok
}

func sortedPropertyNames(props map[string]PropertyType) []string {
	names := make([]string, 0, len(props))
	for k := range props {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
