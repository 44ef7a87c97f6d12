package e3

import (
	"fmt"
	"math"
)

func floatEqual(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return a == b
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		if t == math.Trunc(t) {
			return int(t), nil
		}
	}
	return 0, fmt.Errorf("e3: want integer, got %T(%v)", v, v)
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int64:
		return float64(t), nil
	case int:
		return float64(t), nil
	}
	return 0, fmt.Errorf("e3: want number, got %T", v)
}

func floats(v any) ([]float64, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []float64:
		return append([]float64(nil), t...), nil
	case []any:
		out := make([]float64, len(t))
		for i, item := range t {
			f, err := toFloat(item)
			if err != nil {
				return nil, err
			}
			out[i] = f
		}
		return out, nil
	}
	return nil, fmt.Errorf("e3: want number list, got %T", v)
}

func strs(v any) ([]string, error) {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...), nil
	case []any:
		out := make([]string, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("e3: want string, got %T", item)
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("e3: want string list, got %T", v)
}

func irrepsField(m map[string]any, key string) (Irreps, error) {
	s, ok := m[key].(string)
	if !ok {
		return Irreps{}, fmt.Errorf("e3: %s: want string, got %T", key, m[key])
	}
	x, err := ParseIrreps(s)
	if err != nil {
		return Irreps{}, fmt.Errorf("e3: %s: %w", key, err)
	}
	return x, nil
}
