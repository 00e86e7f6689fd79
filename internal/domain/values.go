package domain

import (
	"encoding/json"
	"math"
	"reflect"
)

// NormalizeValue maps numeric kinds onto int64 (when integral) or float64 so that
// values read back from JSON compare equal to the values that were written.
// Lists and nested records are normalized element by element into copies.
func NormalizeValue(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return floatValue(float64(x))
	case float64:
		return floatValue(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return floatValue(f)
		}
		return x.String()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = NormalizeValue(e)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = NormalizeValue(e)
		}
		return out
	case Metadata:
		return NormalizeValue(map[string]any(x))
	default:
		return v
	}
}

func floatValue(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}

// ValuesEqual compares two metadata values after normalization. Values of
// non-comparable types, such as lists, compare structurally.
func ValuesEqual(a, b any) bool {
	a, b = NormalizeValue(a), NormalizeValue(b)
	if reflect.ValueOf(a).Comparable() && reflect.ValueOf(b).Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// NormalizeMetadata normalizes every value in place and returns the record.
func NormalizeMetadata(m Metadata) Metadata {
	for k, v := range m {
		m[k] = NormalizeValue(v)
	}
	return m
}

// Matches reports whether the record satisfies every clause of the filter.
func (w Where) Matches(m Metadata) bool {
	for k, want := range w {
		got, ok := m[k]
		if !ok || !ValuesEqual(got, want) {
			return false
		}
	}
	return true
}
