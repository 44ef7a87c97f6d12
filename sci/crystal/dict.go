package crystal

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
)

var ErrDict = errors.New("crystal: malformed dict")

// Class markers written into every dict.
const (
	keyModule = "@module"
	keyClass  = "@class"
)

func header(module, class string) map[string]any {
	return map[string]any{keyModule: module, keyClass: class}
}

// checkClass accepts a dict without markers or with the expected class.
func checkClass(d map[string]any, class string) error {
	got, ok := d[keyClass]
	if !ok {
		return nil
	}
	if got != class {
		return fmt.Errorf("%w: @class %v, want %s", ErrDict, got, class)
	}
	return nil
}

func asMap(v any, what string) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T, want dict", ErrDict, what, v)
	}
	return m, nil
}

func asList(v any, what string) ([]any, error) {
	l, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T, want list", ErrDict, what, v)
	}
	return l, nil
}

func asFloat(v any, what string) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int64:
		return float64(t), nil
	case int:
		return float64(t), nil
	case string:
		// non-finite floats travel as strings through JSON
		if f, err := strconv.ParseFloat(t, 64); err == nil && (math.IsNaN(f) || math.IsInf(f, 0)) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %s is %T, want number", ErrDict, what, v)
}

func asString(v any, what string) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T, want string", ErrDict, what, v)
	}
	return s, nil
}

func floatField(d map[string]any, key string) (float64, error) {
	v, ok := d[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrDict, key)
	}
	return asFloat(v, key)
}

func optFloat(d map[string]any, key string) (float64, error) {
	v, ok := d[key]
	if !ok || v == nil {
		return 0, nil
	}
	return asFloat(v, key)
}

func asFloats(v any, what string) ([]float64, error) {
	l, err := asList(v, what)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(l))
	for i, item := range l {
		if out[i], err = asFloat(item, fmt.Sprintf("%s[%d]", what, i)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func asVec3(v any, what string) ([3]float64, error) {
	f, err := asFloats(v, what)
	if err != nil {
		return [3]float64{}, err
	}
	if len(f) != 3 {
		return [3]float64{}, fmt.Errorf("%w: %s has %d components, want 3", ErrDict, what, len(f))
	}
	return [3]float64{f[0], f[1], f[2]}, nil
}

func asMatrix(v any, what string) ([][]float64, error) {
	l, err := asList(v, what)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(l))
	for i, row := range l {
		if out[i], err = asFloats(row, fmt.Sprintf("%s[%d]", what, i)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func floatList(f []float64) []any {
	out := make([]any, len(f))
	for i, x := range f {
		out[i] = x
	}
	return out
}

func vecList(v [3]float64) []any { return floatList(v[:]) }

func matrixList(m [][]float64) []any {
	out := make([]any, len(m))
	for i, row := range m {
		out[i] = floatList(row)
	}
	return out
}

func floatEqual(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return a == b
}

func floatsEqual(a, b []float64) bool { return slices.EqualFunc(a, b, floatEqual) }

func vecEqual(a, b [3]float64) bool { return floatsEqual(a[:], b[:]) }

func matrixEqual(a, b [][]float64) bool { return slices.EqualFunc(a, b, floatsEqual) }

// treeEqual compares plain dict trees with NaN-aware floats.
func treeEqual(a, b any) bool {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		return ok && floatEqual(x, y)
	case []any:
		y, ok := b.([]any)
		return ok && slices.EqualFunc(x, y, treeEqual)
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !treeEqual(xv, yv) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// plain converts v to the dict tree vocabulary: int64, float64, string,
// bool, []any and map[string]any.
func plain(v any) any {
	if v == nil {
		return nil
	}
	if b, ok := v.([]byte); ok {
		return slices.Clone(b)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = plain(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		for it := rv.MapRange(); it.Next(); {
			out[it.Key().String()] = plain(it.Value().Interface())
		}
		return out
	}
	return v
}

// cloneProps returns a plain copy of a property dict.
func cloneProps(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = plain(v)
	}
	return out
}
