// Package settings provides a nested settings tree addressed by key paths,
// with TOML import and export.
package settings

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

var ErrPath = errors.New("settings: invalid path")

// Settings is a tree of named values. Nested branches are *Settings.
type Settings struct {
	items map[string]any
}

// New returns an empty tree.
func New() *Settings {
	return &Settings{items: map[string]any{}}
}

// FromMap builds a tree from a nested map. Maps at any depth become
// branches.
func FromMap(m map[string]any) (*Settings, error) {
	s := New()
	if err := s.Init(m); err != nil {
		return nil, err
	}
	return s, nil
}

// Init replaces the content of s with m.
func (s *Settings) Init(m map[string]any) error {
	items := make(map[string]any, len(m))
	for k, v := range m {
		if k == "" {
			return fmt.Errorf("%w: empty key", ErrPath)
		}
		conv, err := convert(v)
		if err != nil {
			return fmt.Errorf("settings: %s: %w", k, err)
		}
		items[k] = conv
	}
	s.items = items
	return nil
}

func convert(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, string, int64, float64:
		return t, nil
	case *Settings:
		return t.clone(), nil
	case map[string]any:
		return FromMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			c, err := convert(item)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case time.Time:
		return t.Format(time.RFC3339Nano), nil
	case fmt.Stringer:
		// TOML local dates and times
		return t.String(), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return int64(rv.Uint()), nil
	case reflect.Float32:
		return rv.Float(), nil
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			c, err := convert(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			m := make(map[string]any, rv.Len())
			for it := rv.MapRange(); it.Next(); {
				m[it.Key().String()] = it.Value().Interface()
			}
			return FromMap(m)
		}
	}
	return nil, fmt.Errorf("unsupported value %T", v)
}

func (s *Settings) clone() *Settings {
	out := &Settings{items: make(map[string]any, len(s.items))}
	for k, v := range s.items {
		out.items[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case *Settings:
		return t.clone()
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}

// Len returns the number of top-level keys.
func (s *Settings) Len() int { return len(s.items) }

// Keys returns the top-level keys in sorted order.
func (s *Settings) Keys() []string {
	keys := slices.Collect(maps.Keys(s.items))
	slices.Sort(keys)
	return keys
}

func split(path string) ([]string, error) {
	parts := strings.Split(path, ".")
	if slices.Contains(parts, "") {
		return nil, fmt.Errorf("%w: %q", ErrPath, path)
	}
	return parts, nil
}

// Get returns the value at a dotted path such as "input.basis.type".
func (s *Settings) Get(path string) (any, bool) {
	parts, err := split(path)
	if err != nil {
		return nil, false
	}
	cur := s
	for i, p := range parts {
		v, ok := cur.items[p]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		if cur, ok = v.(*Settings); !ok {
			return nil, false
		}
	}
	return nil, false
}

// Branch returns the subtree at path.
func (s *Settings) Branch(path string) (*Settings, bool) {
	v, ok := s.Get(path)
	if !ok {
		return nil, false
	}
	b, ok := v.(*Settings)
	return b, ok
}

// Set stores v at a dotted path, creating branches as needed. A leaf on
// the way is an error.
func (s *Settings) Set(path string, v any) error {
	parts, err := split(path)
	if err != nil {
		return err
	}
	conv, err := convert(v)
	if err != nil {
		return fmt.Errorf("settings: %s: %w", path, err)
	}
	cur := s
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur.items[p]
		if !ok {
			b := New()
			cur.items[p] = b
			cur = b
			continue
		}
		if cur, ok = next.(*Settings); !ok {
			return fmt.Errorf("%w: %q passes through a value at %q", ErrPath, path, p)
		}
	}
	if cur.items == nil {
		cur.items = map[string]any{}
	}
	cur.items[parts[len(parts)-1]] = conv
	return nil
}

// Delete removes the value at path and reports whether it existed.
func (s *Settings) Delete(path string) bool {
	parts, err := split(path)
	if err != nil {
		return false
	}
	parent := s
	if len(parts) > 1 {
		if parent, _ = s.Branch(strings.Join(parts[:len(parts)-1], ".")); parent == nil {
			return false
		}
	}
	last := parts[len(parts)-1]
	_, ok := parent.items[last]
	delete(parent.items, last)
	return ok
}

// Update merges o into s. Branches merge recursively; other values from o
// win. With soft set, existing values in s are kept.
func (s *Settings) Update(o *Settings, soft bool) {
	for k, v := range o.items {
		mine, exists := s.items[k]
		if a, ok := mine.(*Settings); ok {
			if b, ok := v.(*Settings); ok {
				a.Update(b, soft)
				continue
			}
		}
		if exists && soft {
			continue
		}
		s.items[k] = cloneValue(v)
	}
}

// Flatten returns every leaf keyed by its dotted path.
func (s *Settings) Flatten() map[string]any {
	out := map[string]any{}
	var walk func(prefix string, t *Settings)
	walk = func(prefix string, t *Settings) {
		for k, v := range t.items {
			if b, ok := v.(*Settings); ok && b.Len() > 0 {
				walk(prefix+k+".", b)
				continue
			}
			out[prefix+k] = asPlain(v)
		}
	}
	walk("", s)
	return out
}

// AsDict returns the tree as nested maps.
func (s *Settings) AsDict() map[string]any {
	out := make(map[string]any, len(s.items))
	for k, v := range s.items {
		out[k] = asPlain(v)
	}
	return out
}

func asPlain(v any) any {
	switch t := v.(type) {
	case *Settings:
		return t.AsDict()
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = asPlain(item)
		}
		return out
	}
	return v
}

// Equal compares trees; NaN equals NaN.
func (s *Settings) Equal(o *Settings) bool {
	if s == nil || o == nil {
		return s == o
	}
	return treeEqual(s.AsDict(), o.AsDict())
}

func treeEqual(a, b any) bool {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		return ok && (x == y || (math.IsNaN(x) && math.IsNaN(y)))
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
	return a == b
}

func (s *Settings) String() string {
	var b strings.Builder
	var write func(t *Settings, indent string)
	write = func(t *Settings, indent string) {
		for _, k := range t.Keys() {
			if sub, ok := t.items[k].(*Settings); ok {
				fmt.Fprintf(&b, "%s%s:\n", indent, k)
				write(sub, indent+"  ")
				continue
			}
			fmt.Fprintf(&b, "%s%s: %v\n", indent, k, asPlain(t.items[k]))
		}
	}
	write(s, "")
	return b.String()
}

// FromTOML parses a TOML document into a tree.
func FromTOML(data []byte) (*Settings, error) {
	var m map[string]any
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	return FromMap(m)
}

// ToTOML renders the tree as TOML. Nil values have no TOML form and are
// dropped.
func (s *Settings) ToTOML() ([]byte, error) {
	b, err := toml.Marshal(dropNil(s.AsDict()))
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	return b, nil
}

func dropNil(m map[string]any) map[string]any {
	for k, v := range m {
		switch t := v.(type) {
		case nil:
			delete(m, k)
		case map[string]any:
			dropNil(t)
		}
	}
	return m
}
