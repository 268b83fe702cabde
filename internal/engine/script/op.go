package script

import (
	"strconv"
	"strings"

	"snapgraph/internal/core/errors"
	"snapgraph/internal/engine/graph"
	"snapgraph/internal/shared/util"
)

const (
	OpAddVertex    = "add_vertex"
	OpAddEdge      = "add_edge"
	OpRemoveVertex = "remove_vertex"
	OpRemoveEdge   = "remove_edge"
	OpResetVertex  = "reset_vertex"
	OpResetEdge    = "reset_edge"
	OpUpdateVertex = "update_vertex"
	OpUpdateEdge   = "update_edge"
)

// Op is one scripted change. Which fields apply depends on Op.
type Op struct {
	Op           string         `toml:"op" yaml:"op"`
	ID           any            `toml:"id" yaml:"id"`
	Src          any            `toml:"src" yaml:"src"`
	Dst          any            `toml:"dst" yaml:"dst"`
	Label        string         `toml:"label" yaml:"label"`
	Labels       []string       `toml:"labels" yaml:"labels"`
	RemoveLabels []string       `toml:"remove_labels" yaml:"remove_labels"`
	Props        map[string]any `toml:"props" yaml:"props"`
}

func (op Op) validate() error {
	switch op.Op {
	case OpAddVertex, OpAddEdge, OpRemoveVertex, OpRemoveEdge,
		OpResetVertex, OpResetEdge, OpUpdateVertex, OpUpdateEdge:
	default:
		return errors.Newf(errors.CodeNotSupported, "unknown op %q", op.Op).
			WithContext(errors.CtxOperation, op.Op)
	}
	if op.ID == nil {
		return errors.Newf(errors.CodeValidationError, "%s requires an id", op.Op)
	}
	switch op.Op {
	case OpAddEdge:
		if op.Src == nil || op.Dst == nil {
			return errors.New(errors.CodeValidationError, "add_edge requires src and dst")
		}
	case OpAddVertex, OpUpdateVertex:
		if op.Label != "" {
			return errors.Newf(errors.CodeValidationError, "%s takes labels, not label", op.Op)
		}
	case OpUpdateEdge:
		if len(op.Labels) > 0 || len(op.RemoveLabels) > 0 {
			return errors.New(errors.CodeValidationError, "update_edge takes a single label")
		}
	}
	return nil
}

func (op Op) apply(cs *graph.ChangeSet, schema graph.Schema) error {
	if err := op.validate(); err != nil {
		return err
	}
	vid := func(v any) (graph.ElementID, error) { return elementID(v, schema.VertexIDType) }
	eid := func(v any) (graph.ElementID, error) { return elementID(v, schema.EdgeIDType) }

	switch op.Op {
	case OpAddVertex, OpUpdateVertex:
		id, err := vid(op.ID)
		if err != nil {
			return err
		}
		var m *graph.VertexModifier
		if op.Op == OpAddVertex {
			m, err = cs.AddVertex(id)
		} else {
			m, err = cs.UpdateVertex(id)
		}
		if err != nil {
			return err
		}
		return editVertex(m, op)

	case OpAddEdge, OpUpdateEdge:
		id, err := eid(op.ID)
		if err != nil {
			return err
		}
		var m *graph.EdgeModifier
		if op.Op == OpAddEdge {
			src, err := vid(op.Src)
			if err != nil {
				return err
			}
			dst, err := vid(op.Dst)
			if err != nil {
				return err
			}
			m, err = cs.AddEdge(src, dst, id)
			if err != nil {
				return err
			}
		} else if m, err = cs.UpdateEdge(id); err != nil {
			return err
		}
		return editEdge(m, op)

	case OpRemoveVertex, OpResetVertex:
		id, err := vid(op.ID)
		if err != nil {
			return err
		}
		if op.Op == OpRemoveVertex {
			return cs.RemoveVertex(id)
		}
		return cs.ResetVertex(id)

	case OpRemoveEdge, OpResetEdge:
		id, err := eid(op.ID)
		if err != nil {
			return err
		}
		if op.Op == OpRemoveEdge {
			return cs.RemoveEdge(id)
		}
		return cs.ResetEdge(id)
	}
	return nil
}

func editVertex(m graph.VertexEditor, op Op) error {
	for _, l := range op.Labels {
		if err := m.AddLabel(l); err != nil {
			return err
		}
	}
	for _, l := range op.RemoveLabels {
		if err := m.RemoveLabel(l); err != nil {
			return err
		}
	}
	for _, k := range util.SortedStringKeys(op.Props) {
		if err := m.SetProperty(k, op.Props[k]); err != nil {
			return err
		}
	}
	return nil
}

func editEdge(m graph.EdgeEditor, op Op) error {
	if op.Label != "" {
		if err := m.SetLabel(op.Label); err != nil {
			return err
		}
	}
	for _, k := range util.SortedStringKeys(op.Props) {
		if err := m.SetProperty(k, op.Props[k]); err != nil {
			return err
		}
	}
	return nil
}

// elementID reads a scripted id against the declared id type. Decimal
// strings are accepted for integer domains and integers for string domains,
// since YAML and TOML users rarely quote consistently.
func elementID(v any, t graph.IDType) (graph.ElementID, error) {
	id, err := graph.IDOf(v)
	if err != nil {
		return graph.ElementID{}, err
	}
	if id.Type() == t {
		return id, nil
	}
	switch t {
	case graph.IDTypeString:
		return graph.StringID(id.String()), nil
	case graph.IDTypeInteger:
		n, perr := strconv.ParseInt(strings.TrimSpace(id.String()), 10, 64)
		if perr == nil {
			return graph.IntID(n), nil
		}
	}
	return graph.ElementID{}, errors.Newf(errors.CodeTypeMismatch, "id %v is not a valid %s id", v, t).
		WithContext(errors.CtxElementID, id.String())
}
