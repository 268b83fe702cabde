package graph

import (
	"sort"
	"testing"

	"snapgraph/internal/core/errors"
)

func TestCodec_RoundTrip(t *testing.T) {
	ints := NewCodec(IDTypeInteger)
	for _, v := range []int64{0, 1, -1, 42, -9000, 1 << 62, -(1 << 62)} {
		iid, err := ints.Encode(IntID(v))
		if err != nil {
			t.Fatalf("encode %d: %v", v, err)
		}
		got, err := ints.Decode(iid)
		if err != nil {
			t.Fatalf("decode %q: %v", iid, err)
		}
		if n, ok := got.Int(); !ok || n != v {
			t.Fatalf("round trip %d: got %v", v, got)
		}
	}

	strs := NewCodec(IDTypeString)
	iid, err := strs.Encode(StringID("alice"))
	if err != nil {
		t.Fatalf("encode string: %v", err)
	}
	got, err := strs.Decode(iid)
	if err != nil || got != StringID("alice") {
		t.Fatalf("expected alice, got %v (%v)", got, err)
	}
}

func TestCodec_TypeMismatch(t *testing.T) {
	if _, err := NewCodec(IDTypeInteger).Encode(StringID("x")); !errors.IsCode(err, errors.CodeTypeMismatch) {
		t.Fatalf("expected TYPE_MISMATCH, got %v", err)
	}
	if _, err := NewCodec(IDTypeString).Encode(IntID(3)); !errors.IsCode(err, errors.CodeTypeMismatch) {
		t.Fatalf("expected TYPE_MISMATCH, got %v", err)
	}
	if _, err := NewCodec(IDTypeInteger).Decode("zz"); !errors.IsCode(err, errors.CodeTypeMismatch) {
		t.Fatalf("expected TYPE_MISMATCH on bad internal id, got %v", err)
	}
}

func TestCodec_IntegerOrderPreserved(t *testing.T) {
	c := NewCodec(IDTypeInteger)
	values := []int64{-100, -1, 0, 1, 7, 100, 1 << 40}
	keys := make([]string, len(values))
	for i, v := range values {
		iid, _ := c.Encode(IntID(v))
		keys[i] = string(iid)
	}
	if !sort.StringsAreSorted(keys) {
		t.Fatalf("encoded keys not sorted: %v", keys)
	}
}

func TestIDOf(t *testing.T) {
	cases := []struct {
		in   any
		want ElementID
	}{
		{5, IntID(5)},
		{int32(-2), IntID(-2)},
		{uint16(9), IntID(9)},
		{"v1", StringID("v1")},
		{IntID(3), IntID(3)},
	}
	for _, tc := range cases {
		got, err := IDOf(tc.in)
		if err != nil {
			t.Fatalf("IDOf(%v): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("IDOf(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}

	for _, bad := range []any{1.5, nil, []int{1}, uint64(1 << 63)} {
		if _, err := IDOf(bad); !errors.IsCode(err, errors.CodeTypeMismatch) {
			t.Errorf("IDOf(%v): expected TYPE_MISMATCH, got %v", bad, err)
		}
	}
}

func TestParseIDType(t *testing.T) {
	if typ, err := ParseIDType("STRING"); err != nil || typ != IDTypeString {
		t.Fatalf("expected string id type, got %v (%v)", typ, err)
	}
	if typ, err := ParseIDType(""); err != nil || typ != IDTypeInteger {
		t.Fatalf("expected integer default, got %v (%v)", typ, err)
	}
	if _, err := ParseIDType("uuid"); !errors.IsCode(err, errors.CodeInvalidOption) {
		t.Fatalf("expected INVALID_OPTION, got %v", err)
	}
}
