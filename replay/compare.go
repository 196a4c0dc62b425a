package replay

import (
	"fmt"
	"strings"
	"time"
)

// DateTimeLayout is the second-precision textual form used on the wire
// for group extrema (first_seen / last_seen).
const DateTimeLayout = "2006-01-02T15:04:05"

// FormatDateTime renders t in UTC using DateTimeLayout
func FormatDateTime(t time.Time) string {
	return t.UTC().Format(DateTimeLayout)
}

// CompareValues compares two column values and returns:
//
//	-1 if left < right
//	 0 if left == right
//	 1 if left > right
//
// Supported values are the ones a relation can hold: nil, string, bool,
// int/int64, float32/float64, time.Time and Toon. Nil sorts before any
// non-nil value. Values of different types are ordered by a fixed type
// rank so the result is total and deterministic.
func CompareValues(left, right interface{}) int {
	if left == nil && right == nil {
		return 0
	}
	if left == nil {
		return -1
	}
	if right == nil {
		return 1
	}

	lr, rr := typeRank(left), typeRank(right)
	if lr != rr {
		return compareInts(lr, rr)
	}

	switch l := left.(type) {
	case string:
		return strings.Compare(l, right.(string))
	case bool:
		r := right.(bool)
		switch {
		case !l && r:
			return -1
		case l && !r:
			return 1
		}
		return 0
	case int, int64, uint8, uint32, uint64:
		return compareInt64s(toInt64(left), toInt64(right))
	case float32, float64:
		return compareFloats(toFloat64(left), toFloat64(right))
	case time.Time:
		r := right.(time.Time)
		if l.Before(r) {
			return -1
		} else if l.After(r) {
			return 1
		}
		return 0
	case Toon:
		return compareToons(l, right.(Toon))
	}

	// Fall back to string comparison for unknown types
	return strings.Compare(fmt.Sprint(left), fmt.Sprint(right))
}

// ValuesEqual checks if two values are equal using CompareValues
func ValuesEqual(a, b interface{}) bool {
	return CompareValues(a, b) == 0
}

func typeRank(v interface{}) int {
	switch v.(type) {
	case bool:
		return 1
	case int, int64, uint8, uint32, uint64:
		return 2
	case float32, float64:
		return 3
	case string:
		return 4
	case time.Time:
		return 5
	case Toon:
		return 6
	default:
		return 7
	}
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case uint8:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	}
	return 0
}

func toFloat64(v interface{}) float64 {
	switch n := v.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func compareToons(a, b Toon) int {
	if c := compareInt64s(int64(a.Region), int64(b.Region)); c != 0 {
		return c
	}
	if c := compareInt64s(int64(a.ProgramID), int64(b.ProgramID)); c != 0 {
		return c
	}
	if c := compareInt64s(int64(a.Realm), int64(b.Realm)); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

func compareInts(a, b int) int {
	return compareInt64s(int64(a), int64(b))
}

// compareInt64s compares two int64 values
func compareInt64s(a, b int64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

// compareFloats compares two float64 values
func compareFloats(a, b float64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}
