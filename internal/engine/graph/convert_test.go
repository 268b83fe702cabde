package graph

import (
	"testing"
	"time"

	"snapgraph/internal/core/errors"
)

func TestDefaultConverter(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC)
	day := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		value   any
		target  PropertyType
		want    any
		changed bool
	}{
		{"int32 exact", int32(7), PropertyInteger, int32(7), false},
		{"go int to integer", 7, PropertyInteger, int32(7), false},
		{"int64 narrowed", int64(7), PropertyInteger, int32(7), true},
		{"integral float to long", 3.0, PropertyLong, int64(3), true},
		{"go int to long", 3, PropertyLong, int64(3), false},
		{"string to long", "12", PropertyLong, int64(12), true},
		{"float64 exact", 1.5, PropertyDouble, 1.5, false},
		{"float32 widened", float32(0.5), PropertyDouble, 0.5, true},
		{"float64 to float", 0.25, PropertyFloat, float32(0.25), true},
		{"bool exact", true, PropertyBoolean, true, false},
		{"bool from string", "False", PropertyBoolean, false, true},
		{"string exact", "x", PropertyString, "x", false},
		{"date from string", "2024-03-09", PropertyLocalDate, day, true},
		{"date truncated", ts, PropertyLocalDate, day, true},
		{"date exact", day, PropertyLocalDate, day, false},
		{"timestamp exact", ts, PropertyTimestamp, ts, false},
		{"timestamp from rfc3339", "2024-03-09T14:30:00Z", PropertyTimestamp, ts, true},
	}
	conv := DefaultConverter{}
	for _, tc := range cases {
		got, changed, err := conv.Convert(tc.value, tc.target)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
			continue
		}
		if changed != tc.changed {
			t.Errorf("%s: changed=%v, want %v", tc.name, changed, tc.changed)
		}
		if wt, ok := tc.want.(time.Time); ok {
			if gt, ok := got.(time.Time); !ok || !gt.Equal(wt) {
				t.Errorf("%s: got %v, want %v", tc.name, got, wt)
			}
			continue
		}
		if got != tc.want {
			t.Errorf("%s: got %v (%T), want %v (%T)", tc.name, got, got, tc.want, tc.want)
		}
	}
}

func TestDefaultConverter_Impossible(t *testing.T) {
	conv := DefaultConverter{}
	cases := []struct {
		value  any
		target PropertyType
	}{
		{"abc", PropertyLong},
		{1.5, PropertyInteger},
		{int64(1 << 40), PropertyInteger},
		{42, PropertyString},
		{"yes", PropertyBoolean},
		{"yesterday", PropertyTimestamp},
		{struct{}{}, PropertyString},
	}
	for _, tc := range cases {
		if _, _, err := conv.Convert(tc.value, tc.target); !errors.IsCode(err, errors.CodeTypeConversion) {
			t.Errorf("Convert(%v, %s): expected TYPE_CONVERSION, got %v", tc.value, tc.target, err)
		}
	}
}

func TestParsePropertyType(t *testing.T) {
	for in, want := range map[string]PropertyType{
		"integer": PropertyInteger, "int": PropertyInteger, "LONG": PropertyLong,
		"double": PropertyDouble, "bool": PropertyBoolean, "date": PropertyLocalDate,
		"timestamp": PropertyTimestamp,
	} {
		got, err := ParsePropertyType(in)
		if err != nil || got != want {
			t.Errorf("ParsePropertyType(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParsePropertyType("decimal"); !errors.IsCode(err, errors.CodeInvalidOption) {
		t.Errorf("expected INVALID_OPTION, got %v", err)
	}
}
