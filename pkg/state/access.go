package state

import (
	"fmt"
	"math"
)

func unexpected(want string, got any) error {
	return fmt.Errorf("%w: want %s, got %T", ErrUnexpectedType, want, got)
}

// AsMap returns v as a mapping.
func AsMap(v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, unexpected("mapping", v)
	}
	return m, nil
}

// AsList returns v as a list.
func AsList(v any) ([]any, error) {
	l, ok := v.([]any)
	if !ok {
		return nil, unexpected("list", v)
	}
	return l, nil
}

// AsString returns v as a string.
func AsString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", unexpected("string", v)
	}
	return s, nil
}

// AsBool returns v as a bool.
func AsBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, unexpected("bool", v)
	}
	return b, nil
}

// AsInt returns v as an int. Integral floats are accepted.
func AsInt(v any) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int(n), nil
		}
	}
	return 0, unexpected("integer", v)
}

// AsFloat returns v as a float64. Integers are widened.
func AsFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	}
	return 0, unexpected("number", v)
}

// AsBytes returns v as a byte slice.
func AsBytes(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, unexpected("bytes", v)
	}
	return b, nil
}

// AsReference returns v as a Reference.
func AsReference(v any) (Reference, error) {
	r, ok := v.(Reference)
	if !ok {
		return Reference{}, unexpected("reference", v)
	}
	return r, nil
}

// AsBlob returns v as a BlobHandle.
func AsBlob(v any) (BlobHandle, error) {
	h, ok := v.(BlobHandle)
	if !ok {
		return BlobHandle{}, unexpected("blob handle", v)
	}
	return h, nil
}

// AsOpaque returns v as an Opaque payload.
func AsOpaque(v any) (Opaque, error) {
	o, ok := v.(Opaque)
	if !ok {
		return Opaque{}, unexpected("opaque payload", v)
	}
	return o, nil
}

// AsFloats converts a list of numbers.
func AsFloats(v any) ([]float64, error) {
	return listOf(v, AsFloat)
}

// AsInts converts a list of integers.
func AsInts(v any) ([]int, error) {
	return listOf(v, AsInt)
}

// AsStrings converts a list of strings.
func AsStrings(v any) ([]string, error) {
	return listOf(v, AsString)
}

// AsBools converts a list of bools.
func AsBools(v any) ([]bool, error) {
	return listOf(v, AsBool)
}

// AsFloatMatrix converts a list of lists of numbers. Rows may be ragged.
func AsFloatMatrix(v any) ([][]float64, error) {
	return listOf(v, AsFloats)
}

// AsVec3s converts a list of 3-vectors.
func AsVec3s(v any) ([][3]float64, error) {
	return listOf(v, AsVec3)
}

// AsVec3 converts a list of exactly three numbers.
func AsVec3(v any) ([3]float64, error) {
	var out [3]float64
	fs, err := AsFloats(v)
	if err != nil {
		return out, err
	}
	if len(fs) != 3 {
		return out, fmt.Errorf("%w: want 3 components, got %d", ErrUnexpectedType, len(fs))
	}
	copy(out[:], fs)
	return out, nil
}

func listOf[T any](v any, conv func(any) (T, error)) ([]T, error) {
	items, err := AsList(v)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(items))
	for i, item := range items {
		if out[i], err = conv(item); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}
	return out, nil
}

// Get returns m[key] or ErrMissingKey.
func Get(m map[string]any, key string) (any, error) {
	v, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingKey, key)
	}
	return v, nil
}

// GetAs fetches m[key] and converts it with conv, naming the key in errors.
func GetAs[T any](m map[string]any, key string, conv func(any) (T, error)) (T, error) {
	var zero T
	v, err := Get(m, key)
	if err != nil {
		return zero, err
	}
	out, err := conv(v)
	if err != nil {
		return zero, fmt.Errorf("key %q: %w", key, err)
	}
	return out, nil
}

// Lookup converts m[key] with conv when present. A missing or nil entry
// yields the zero value and no error.
func Lookup[T any](m map[string]any, key string, conv func(any) (T, error)) (T, error) {
	var zero T
	v, ok := m[key]
	if !ok || v == nil {
		return zero, nil
	}
	out, err := conv(v)
	if err != nil {
		return zero, fmt.Errorf("key %q: %w", key, err)
	}
	return out, nil
}
