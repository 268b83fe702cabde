// # internal/engine/graph/ids.go
package graph

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"snapgraph/internal/core/errors"
)

// IDType is the declared identifier type of one element domain.
type IDType int

const (
	IDTypeInteger IDType = iota
	IDTypeString
)

func (t IDType) String() string {
	switch t {
	case IDTypeInteger:
		return "integer"
	case IDTypeString:
		return "string"
	default:
		return fmt.Sprintf("IDType(%d)", int(t))
	}
}

// ParseIDType accepts "integer" (or "int", "long") and "string".
func ParseIDType(s string) (IDType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "integer", "int", "long":
		return IDTypeInteger, nil
	case "string":
		return IDTypeString, nil
	default:
		return 0, errors.Newf(errors.CodeInvalidOption, "unknown id type %q", s).
			WithContext(errors.CtxValue, s)
	}
}

// ElementID identifies a vertex or an edge. It holds either an integer or a
// string; the zero value is the integer 0.
type ElementID struct {
	typ IDType
	i   int64
	s   string
}

func IntID(v int64) ElementID     { return ElementID{typ: IDTypeInteger, i: v} }
func StringID(v string) ElementID { return ElementID{typ: IDTypeString, s: v} }

// IDOf lifts a Go integer or string into an ElementID.
func IDOf(v any) (ElementID, error) {
	switch x := v.(type) {
	case ElementID:
		return x, nil
	case int:
		return IntID(int64(x)), nil
	case int8:
		return IntID(int64(x)), nil
	case int16:
		return IntID(int64(x)), nil
	case int32:
		return IntID(int64(x)), nil
	case int64:
		return IntID(x), nil
	case uint8:
		return IntID(int64(x)), nil
	case uint16:
		return IntID(int64(x)), nil
	case uint32:
		return IntID(int64(x)), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			break
		}
		return IntID(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			break
		}
		return IntID(int64(x)), nil
	case string:
		return StringID(x), nil
	}
	return ElementID{}, errors.Newf(errors.CodeTypeMismatch, "unsupported id value %v (%T)", v, v).
		WithContext(errors.CtxValue, v)
}

func (id ElementID) Type() IDType { return id.typ }

func (id ElementID) Int() (int64, bool) { return id.i, id.typ == IDTypeInteger }

func (id ElementID) Str() (string, bool) { return id.s, id.typ == IDTypeString }

// Value returns the id as an int64 or a string.
func (id ElementID) Value() any {
	if id.typ == IDTypeString {
		return id.s
	}
	return id.i
}

func (id ElementID) String() string {
	if id.typ == IDTypeString {
		return id.s
	}
	return strconv.FormatInt(id.i, 10)
}

// InternalID is the encoded, order-preserving form of an ElementID used as a
// storage key.
type InternalID string

// Codec encodes ids of one declared type. It is stateless.
type Codec struct {
	idType IDType
}

func NewCodec(t IDType) Codec { return Codec{idType: t} }

func (c Codec) IDType() IDType { return c.idType }

// Encode fails with TYPE_MISMATCH when id does not carry the declared type.
func (c Codec) Encode(id ElementID) (InternalID, error) {
	if id.typ != c.idType {
		return "", errors.Newf(errors.CodeTypeMismatch, "id %s is %s, expected %s", id, id.typ, c.idType).
			WithContext(errors.CtxElementID, id.String())
	}
	switch c.idType {
	case IDTypeInteger:
		return InternalID(fmt.Sprintf("%016x", uint64(id.i)^(1<<63))), nil
	case IDTypeString:
		if id.s == "" {
			return "", errors.New(errors.CodeValidationError, "string id must not be empty")
		}
		return InternalID(id.s), nil
	}
	return "", errors.Newf(errors.CodeNotSupported, "id type %s", c.idType)
}

func (c Codec) Decode(iid InternalID) (ElementID, error) {
	switch c.idType {
	case IDTypeInteger:
		u, err := strconv.ParseUint(string(iid), 16, 64)
		if err != nil || len(iid) != 16 {
			return ElementID{}, errors.Newf(errors.CodeTypeMismatch, "internal id %q is not an integer id", string(iid))
		}
		return IntID(int64(u ^ (1 << 63))), nil
	case IDTypeString:
		if iid == "" {
			return ElementID{}, errors.New(errors.CodeValidationError, "string id must not be empty")
		}
		return StringID(string(iid)), nil
	}
	return ElementID{}, errors.Newf(errors.CodeNotSupported, "id type %s", c.idType)
}

// mustDecode is used on keys the package encoded itself.
func (c Codec) mustDecode(iid InternalID) ElementID {
	id, err := c.Decode(iid)
	if err != nil {
		panic(err)
	}
	return id
}
