package docstore

import (
	"strconv"
	"time"
)

// Value is one Firestore typed value. Exactly one field is set; nullValue and
// kinds not listed here decode to nil.
type Value struct {
	StringValue    *string          `json:"stringValue,omitempty"`
	IntegerValue   *string          `json:"integerValue,omitempty"`
	DoubleValue    *float64         `json:"doubleValue,omitempty"`
	BooleanValue   *bool            `json:"booleanValue,omitempty"`
	TimestampValue *string          `json:"timestampValue,omitempty"`
	MapValue       *MapValue        `json:"mapValue,omitempty"`
	ArrayValue     *ArrayValue      `json:"arrayValue,omitempty"`
}

// MapValue is a nested document.
type MapValue struct {
	Fields map[string]Value `json:"fields"`
}

// ArrayValue is a list of values.
type ArrayValue struct {
	Values []Value `json:"values"`
}

// Decode converts the typed value to plain Go: string, int64, float64, bool,
// nil, time.Time, map[string]any or []any. Integers that overflow int64 fall
// back to float64.
func (v Value) Decode() any {
	switch {
	case v.StringValue != nil:
		return *v.StringValue
	case v.IntegerValue != nil:
		if n, err := strconv.ParseInt(*v.IntegerValue, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(*v.IntegerValue, 64); err == nil {
			return f
		}
		return *v.IntegerValue
	case v.DoubleValue != nil:
		return *v.DoubleValue
	case v.BooleanValue != nil:
		return *v.BooleanValue
	case v.TimestampValue != nil:
		if ts, err := time.Parse(time.RFC3339Nano, *v.TimestampValue); err == nil {
			return ts
		}
		return *v.TimestampValue
	case v.MapValue != nil:
		out := make(map[string]any, len(v.MapValue.Fields))
		for k, f := range v.MapValue.Fields {
			out[k] = f.Decode()
		}
		return out
	case v.ArrayValue != nil:
		out := make([]any, 0, len(v.ArrayValue.Values))
		for _, e := range v.ArrayValue.Values {
			out = append(out, e.Decode())
		}
		return out
	default:
		return nil
	}
}
