package segmentation

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// operand is a rule value coerced to the kind of the field it is compared to.
// Both the in-memory evaluator and the SQL builder go through coerce, so an
// operand that fails here fails the same way in both modes.
type operand struct {
	str     string
	boolean bool
	num     float64
	at      time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func coerce(kind FieldKind, v any) (operand, bool) {
	switch kind {
	case KindString, KindTags:
		s, ok := toString(v)
		return operand{str: s}, ok
	case KindBool:
		b, ok := toBool(v)
		return operand{boolean: b}, ok
	case KindNumber:
		n, ok := toNumber(v)
		return operand{num: n}, ok
	case KindTime:
		t, ok := toTime(v)
		return operand{at: t}, ok
	default:
		return operand{}, false
	}
}

// coerceList converts a list value item by item. Items that cannot be
// coerced are dropped; a non-list value reports ok=false.
func coerceList(kind FieldKind, v any) ([]operand, bool) {
	items, ok := toList(v)
	if !ok {
		return nil, false
	}
	out := make([]operand, 0, len(items))
	for _, item := range items {
		if op, ok := coerce(kind, item); ok {
			out = append(out, op)
		}
	}
	return out, true
}

func toString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	default:
		return "", false
	}
}

func toBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		return b, err == nil
	default:
		return false, false
	}
}

func toNumber(v any) (float64, bool) {
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		n = float64(x)
	case int32:
		n = float64(x)
	case int64:
		n = float64(x)
	case uint:
		n = float64(x)
	case uint32:
		n = float64(x)
	case uint64:
		n = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// toTime parses a rule value as a timestamp at microsecond precision, the
// resolution Postgres stores and compares at.
func toTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x.Round(time.Microsecond), true
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return x.Round(time.Microsecond), true
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Round(time.Microsecond), true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func toList(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, true
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, true
	case []bool:
		out := make([]any, len(x))
		for i, b := range x {
			out[i] = b
		}
		return out, true
	default:
		return nil, false
	}
}
