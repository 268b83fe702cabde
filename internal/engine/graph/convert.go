package graph

import (
	"math"
	"strconv"
	"strings"
	"time"

	"snapgraph/internal/core/errors"
)

// PropertyConverter converts a staged property value to a declared type.
// changed reports whether the stored value differs in type from the input,
// which is what the required_conversion policy governs.
type PropertyConverter interface {
	Convert(value any, target PropertyType) (converted any, changed bool, err error)
}

// DefaultConverter implements the built-in conversion table.
type DefaultConverter struct{}

const dateLayout = "2006-01-02"

// checkValueKind rejects values no converter rule accepts, so staging can fail
// before anything is logged.
func checkValueKind(value any) error {
	switch value.(type) {
	case bool, string, time.Time,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return nil
	}
	return errors.Newf(errors.CodeTypeConversion, "unsupported property value %v (%T)", value, value).
		WithContext(errors.CtxValue, value)
}

func (DefaultConverter) Convert(value any, target PropertyType) (any, bool, error) {
	if err := checkValueKind(value); err != nil {
		return nil, false, err
	}
	var (
		out     any
		changed bool
		ok      bool
	)
	switch target {
	case PropertyInteger:
		out, changed, ok = toInt32(value)
	case PropertyLong:
		out, changed, ok = toInt64(value)
	case PropertyFloat:
		out, changed, ok = toFloat32(value)
	case PropertyDouble:
		out, changed, ok = toFloat64(value)
	case PropertyBoolean:
		out, changed, ok = toBool(value)
	case PropertyString:
		out, ok = value.(string)
	case PropertyLocalDate:
		out, changed, ok = toLocalDate(value)
	case PropertyTimestamp:
		out, changed, ok = toTimestamp(value)
	}
	if !ok {
		return nil, false, errors.Newf(errors.CodeTypeConversion, "cannot convert %v (%T) to %s", value, value, target).
			WithContext(errors.CtxValue, value)
	}
	return out, changed, nil
}

// integral extracts an exact integer from any integer or integral float.
// exact is false for everything except int64 and Go int.
func integral(value any) (v int64, exact bool, ok bool) {
	switch x := value.(type) {
	case int:
		return int64(x), true, true
	case int64:
		return x, true, true
	case int8:
		return int64(x), false, true
	case int16:
		return int64(x), false, true
	case int32:
		return int64(x), false, true
	case uint8:
		return int64(x), false, true
	case uint16:
		return int64(x), false, true
	case uint32:
		return int64(x), false, true
	case uint:
		if uint64(x) <= math.MaxInt64 {
			return int64(x), false, true
		}
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x), false, true
		}
	case float32:
		return floatToInt(float64(x))
	case float64:
		return floatToInt(x)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err == nil {
			return n, false, true
		}
	}
	return 0, false, false
}

func floatToInt(f float64) (int64, bool, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false, false
	}
	return int64(f), false, true
}

func toInt32(value any) (any, bool, bool) {
	if x, ok := value.(int32); ok {
		return x, false, true
	}
	n, _, ok := integral(value)
	if !ok || n < math.MinInt32 || n > math.MaxInt32 {
		return nil, false, false
	}
	_, isInt := value.(int)
	return int32(n), !isInt, true
}

func toInt64(value any) (any, bool, bool) {
	n, exact, ok := integral(value)
	if !ok {
		return nil, false, false
	}
	return n, !exact, true
}

func numeric(value any) (float64, bool) {
	switch x := value.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	n, _, ok := integral(value)
	return float64(n), ok
}

func toFloat32(value any) (any, bool, bool) {
	switch x := value.(type) {
	case float32:
		return x, false, true
	case int:
		return float32(x), false, true
	}
	f, ok := numeric(value)
	if !ok || (!math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32) {
		return nil, false, false
	}
	return float32(f), true, true
}

func toFloat64(value any) (any, bool, bool) {
	switch x := value.(type) {
	case float64:
		return x, false, true
	case int:
		return float64(x), false, true
	}
	f, ok := numeric(value)
	if !ok {
		return nil, false, false
	}
	return f, true, true
}

func toBool(value any) (any, bool, bool) {
	switch x := value.(type) {
	case bool:
		return x, false, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true":
			return true, true, true
		case "false":
			return false, true, true
		}
	}
	return nil, false, false
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, dateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func toLocalDate(value any) (any, bool, bool) {
	switch x := value.(type) {
	case time.Time:
		d := truncateDate(x)
		return d, !d.Equal(x) || x.Location() != time.UTC, true
	case string:
		t, ok := parseTime(x)
		if !ok {
			return nil, false, false
		}
		return truncateDate(t), true, true
	}
	return nil, false, false
}

func toTimestamp(value any) (any, bool, bool) {
	switch x := value.(type) {
	case time.Time:
		return x, false, true
	case string:
		t, ok := parseTime(x)
		if !ok {
			return nil, false, false
		}
		return t, true, true
	}
	return nil, false, false
}
