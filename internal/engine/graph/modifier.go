package graph

import (
	"strings"

	"snapgraph/internal/core/errors"
)

// VertexEditor is the element-scoped capability of a VertexModifier.
type VertexEditor interface {
	ID() ElementID
	SetProperty(key string, value any) error
	AddLabel(label string) error
	RemoveLabel(label string) error
}

// EdgeEditor is the element-scoped capability of an EdgeModifier.
type EdgeEditor interface {
	ID() ElementID
	SetProperty(key string, value any) error
	SetLabel(label string) error
}

var (
	_ VertexEditor = (*VertexModifier)(nil)
	_ EdgeEditor   = (*EdgeModifier)(nil)
)

// VertexModifier stages edits of one vertex. The embedded change set keeps
// the rest of the builder API reachable. Like ChangeSet it is not comparable.
type VertexModifier struct {
	_ [0]func()
	*ChangeSet
	id InternalID
}

func (m *VertexModifier) ID() ElementID {
	return m.vertexCodec.mustDecode(m.id)
}

func (m *VertexModifier) ensureLive(op string) error {
	if m.vertexLive(m.id) {
		return nil
	}
	return errors.Newf(errors.CodeElementNotFound, "vertex %s was removed", m.ID()).
		WithContext(errors.CtxElementID, m.ID().String()).
		WithContext(errors.CtxOperation, op)
}

// SetProperty stages a property overwrite. Conversion to the declared type
// happens at build time under the required_conversion policy.
func (m *VertexModifier) SetProperty(key string, value any) error {
	if err := checkPropertyKey(key); err != nil {
		return err
	}
	if err := checkValueKind(value); err != nil {
		return errors.AddContext(err, errors.CtxProperty, key)
	}
	if err := m.ensureLive("set_property"); err != nil {
		return err
	}
	m.stage(StagedChange{Kind: ChangeUpdateVertexProperty, ID: m.id, Key: key, Value: value})
	return nil
}

func (m *VertexModifier) AddLabel(label string) error {
	return m.stageLabel(label, LabelAdd)
}

func (m *VertexModifier) RemoveLabel(label string) error {
	return m.stageLabel(label, LabelRemove)
}

func (m *VertexModifier) stageLabel(label string, op LabelOp) error {
	if strings.TrimSpace(label) == "" {
		return errors.New(errors.CodeValidationError, "label must not be empty")
	}
	if err := m.ensureLive("update_label"); err != nil {
		return err
	}
	m.stage(StagedChange{Kind: ChangeUpdateVertexLabel, ID: m.id, Label: label, LabelOp: op})
	return nil
}

// EdgeModifier stages edits of one edge. It is not comparable.
type EdgeModifier struct {
	_ [0]func()
	*ChangeSet
	id InternalID
}

func (m *EdgeModifier) ID() ElementID {
	return m.edgeCodec.mustDecode(m.id)
}

func (m *EdgeModifier) ensureLive(op string) error {
	if m.edgeLive(m.id) {
		return nil
	}
	return errors.Newf(errors.CodeElementNotFound, "edge %s was removed", m.ID()).
		WithContext(errors.CtxElementID, m.ID().String()).
		WithContext(errors.CtxOperation, op)
}

func (m *EdgeModifier) SetProperty(key string, value any) error {
	if err := checkPropertyKey(key); err != nil {
		return err
	}
	if err := checkValueKind(value); err != nil {
		return errors.AddContext(err, errors.CtxProperty, key)
	}
	if err := m.ensureLive("set_property"); err != nil {
		return err
	}
	m.stage(StagedChange{Kind: ChangeUpdateEdgeProperty, ID: m.id, Key: key, Value: value})
	return nil
}

// SetLabel replaces the edge's single label.
func (m *EdgeModifier) SetLabel(label string) error {
	if err := m.ensureLive("set_label"); err != nil {
		return err
	}
	m.stage(StagedChange{Kind: ChangeUpdateEdgeLabel, ID: m.id, Label: label})
	return nil
}

func checkPropertyKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New(errors.CodeValidationError, "property key must not be empty")
	}
	return nil
}
