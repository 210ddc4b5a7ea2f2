package core

import (
	"fmt"
	"math"
	"strings"
)

// Compare orders two non-nil values of the same row type. Mixed int32/int64 compare
// numerically. It returns an error when the values are not comparable.
func Compare(a, b any) (int, error) {
	switch x := a.(type) {
	case int32:
		switch y := b.(type) {
		case int32:
			return cmpOrdered(x, y), nil
		case int64:
			return cmpOrdered(int64(x), y), nil
		}
	case int64:
		switch y := b.(type) {
		case int64:
			return cmpOrdered(x, y), nil
		case int32:
			return cmpOrdered(x, int64(y)), nil
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmpOrdered(x, y), nil
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, nil
			case !x:
				return -1, nil
			default:
				return 1, nil
			}
		}
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

// Equal reports whether two values are equal under Compare. Nil never equals anything.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	c, err := Compare(a, b)
	return err == nil && c == 0
}

// Coerce converts a literal to the Go representation of t, so that it encodes
// and hashes like a stored value of that type. Integers of any width are
// accepted for INT and BIGINT when they fit. ok is false for nil and for
// values that cannot represent t.
func Coerce(v any, t DataType) (any, bool) {
	switch t {
	case TypeInt, TypeBigInt:
		var n int64
		switch x := v.(type) {
		case int:
			n = int64(x)
		case int32:
			n = int64(x)
		case int64:
			n = x
		default:
			return nil, false
		}
		if t == TypeBigInt {
			return n, true
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, false
		}
		return int32(n), true
	case TypeDouble:
		if x, ok := v.(float64); ok {
			return x, true
		}
	case TypeString:
		if x, ok := v.(string); ok {
			return x, true
		}
	case TypeBoolean:
		if x, ok := v.(bool); ok {
			return x, true
		}
	}
	return nil, false
}

type ordered interface {
	~int32 | ~int64 | ~float64
}

func cmpOrdered[T ordered](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
