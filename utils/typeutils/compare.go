package typeutils

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Compare orders two cursor values. Returns 0 for equal, -1 if a < b, 1 if a > b.
// nil sorts before everything. Numbers of any width compare numerically,
// RFC3339 strings compare as instants and mixed kinds fall back to their
// string form.
func Compare(a, b any) int {
	// Handle nil cases first
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	if aFloat, ok := toFloat(a); ok {
		if bFloat, ok := toFloat(b); ok {
			return compareFloat(aFloat, bFloat)
		}
	}

	if aTime, ok := toTime(a); ok {
		if bTime, ok := toTime(b); ok {
			return aTime.Compare(bTime)
		}
	}

	if aBool, ok := a.(bool); ok {
		if bBool, ok := b.(bool); ok {
			// false < true
			switch {
			case aBool == bBool:
				return 0
			case !aBool:
				return -1
			default:
				return 1
			}
		}
	}

	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

// Max returns the greater of a and b.
func Max(a, b any) any {
	if Compare(a, b) >= 0 {
		return a
	}
	return b
}

func compareFloat(a, b float64) int {
	if math.IsNaN(a) {
		if math.IsNaN(b) {
			return 0
		}
		return -1
	}
	if math.IsNaN(b) {
		return 1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// FormatCursorValue turns a cursor into a value that survives a JSON round
// trip unchanged.
func FormatCursorValue(cursor any) any {
	switch v := cursor.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	default:
		return cursor
	}
}
