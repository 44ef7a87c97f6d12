package state

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/google/uuid"
)

// Normalize converts v into a canonical saved-state tree.
//
// Integers of any width become int64, floats become float64, slices and
// arrays become []any and string-keyed maps become map[string]any. A
// uuid.UUID becomes its string form. Structs, pointers, channels, funcs and
// maps with non-string keys are rejected with ErrNotSerializable.
func Normalize(v any) (any, error) {
	return normalize(v, "$")
}

func normalize(v any, path string) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool, int64, float64, string:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case float32:
		return float64(t), nil
	case []byte:
		out := make([]byte, len(t))
		copy(out, t)
		return out, nil
	case Reference, BlobHandle:
		return t, nil
	case Opaque:
		data := make([]byte, len(t.Data))
		copy(data, t.Data)
		return Opaque{Format: t.Format, Version: t.Version, Data: data}, nil
	case uuid.UUID:
		return t.String(), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: bad number %q", ErrNotSerializable, path, t.String())
		}
		return f, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			n, err := normalize(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for key, item := range t {
			n, err := normalize(item, path+"."+key)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	}
	return normalizeReflect(reflect.ValueOf(v), path)
}

func normalizeReflect(rv reflect.Value, path string) (any, error) {
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %s: %d overflows int64", ErrNotSerializable, path, u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Slice:
		if rv.IsNil() {
			return []any{}, nil
		}
		fallthrough
	case reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			n, err := normalize(rv.Index(i).Interface(), fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: %s: map key %s", ErrNotSerializable, path, rv.Type().Key())
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			n, err := normalize(iter.Value().Interface(), path+"."+key)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("%w: %s: %s", ErrNotSerializable, path, rv.Type())
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
