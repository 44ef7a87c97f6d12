package state

import (
	"bytes"
	"math"
)

// Equal reports whether two normalized trees are equal.
//
// Nodes must have the same kind: int64(1) and float64(1) differ. Floats
// compare with FloatEqual.
func Equal(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case int64:
		y, ok := b.(int64)
		return ok && x == y
	case float64:
		y, ok := b.(float64)
		return ok && FloatEqual(x, y)
	case string:
		y, ok := b.(string)
		return ok && x == y
	case []byte:
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	case Reference:
		y, ok := b.(Reference)
		return ok && x == y
	case BlobHandle:
		y, ok := b.(BlobHandle)
		return ok && x == y
	case Opaque:
		y, ok := b.(Opaque)
		return ok && x.Format == y.Format && x.Version == y.Version && bytes.Equal(x.Data, y.Data)
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for key, xv := range x {
			yv, ok := y[key]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	}
	return false
}

// FloatEqual is the equality used for every float in a saved state:
// NaN equals NaN and -0 equals +0.
func FloatEqual(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return a == b
}

// CanonicalFloat maps every NaN to one quiet NaN and -0 to +0, so that values
// equal under FloatEqual share a bit pattern.
func CanonicalFloat(f float64) float64 {
	if math.IsNaN(f) {
		return math.NaN()
	}
	if f == 0 {
		return 0
	}
	return f
}
