package helper

import (
	"fmt"
	"iter"
	"reflect"
	"slices"

	"github.com/bft-labs/scistore/pkg/state"
)

// Field is one entry of an enumerated field list.
type Field[T any] struct {
	Name string

	// Ref marks a field holding another persisted object. It is saved as a
	// Reference and resolved by the store before Set is called.
	Ref bool

	// List marks a Ref field holding a slice of objects, saved as a list of
	// References.
	List bool

	// Type is the expected type of a referenced value. Loading fails when
	// the resolved object is not assignable to it.
	Type reflect.Type

	Get   func(*T) any
	Set   func(*T, any) error
	Equal func(a, b any) bool
}

// Plain declares a field stored inline in the state tree. get must return a
// value state.Normalize accepts; set receives the normalized node.
func Plain[T any](name string, get func(*T) any, set func(*T, any) error) Field[T] {
	return Field[T]{Name: name, Get: get, Set: set}
}

// Ref declares a field holding a pointer to another persisted object. Values
// are compared with their Equal(R) bool method when R has one.
func Ref[T, R any](name string, get func(*T) R, set func(*T, R)) Field[T] {
	return Field[T]{
		Name: name,
		Ref:  true,
		Type: reflect.TypeFor[R](),
		Get:  func(t *T) any { return get(t) },
		Set: func(t *T, v any) error {
			r, ok := v.(R)
			if !ok && v != nil {
				return Mismatch[R](v)
			}
			set(t, r)
			return nil
		},
		Equal: func(a, b any) bool {
			x, y, ok := Both[R](a, b)
			if !ok {
				return a == nil && b == nil
			}
			return refEqual(x, y)
		},
	}
}

// RefList declares a field holding a slice of persisted objects.
func RefList[T, R any](name string, get func(*T) []R, set func(*T, []R)) Field[T] {
	return Field[T]{
		Name: name,
		Ref:  true,
		List: true,
		Type: reflect.TypeFor[R](),
		Get:  func(t *T) any { return get(t) },
		Set: func(t *T, v any) error {
			items, ok := v.([]any)
			if !ok && v != nil {
				return Mismatch[[]any](v)
			}
			out := make([]R, len(items))
			for i, item := range items {
				r, ok := item.(R)
				if !ok && item != nil {
					return Mismatch[R](item)
				}
				out[i] = r
			}
			set(t, out)
			return nil
		},
		Equal: func(a, b any) bool {
			x, okA := a.([]R)
			y, okB := b.([]R)
			return okA && okB && slices.EqualFunc(x, y, refEqual[R])
		},
	}
}

// refEqual uses the Equal(R) bool method of R when it has one.
func refEqual[R any](x, y R) bool {
	if eq, ok := any(x).(interface{ Equal(R) bool }); ok {
		return eq.Equal(y)
	}
	return reflect.DeepEqual(x, y)
}

// Fields is a two-phase helper driven by an explicit field list instead of
// introspecting the value.
type Fields[T any] struct {
	Base
	fields []Field[T]
}

// NewFields returns a Fields helper for *T. When desc.Types is empty it
// defaults to *T.
func NewFields[T any](desc Descriptor, fields ...Field[T]) *Fields[T] {
	if len(desc.Types) == 0 {
		desc.Types = []reflect.Type{reflect.TypeFor[*T]()}
	}
	return &Fields[T]{Base: NewBase(desc), fields: fields}
}

// Names returns the field names in declaration order.
func (f *Fields[T]) Names() []string {
	names := make([]string, len(f.fields))
	for i, fd := range f.fields {
		names[i] = fd.Name
	}
	return names
}

// Fingerprint implements Helper.
func (f *Fields[T]) Fingerprint(v any, h Hasher) iter.Seq[[]byte] {
	t, err := As[*T](v)
	if err != nil {
		return h.Fail(err)
	}
	return func(yield func([]byte) bool) {
		for _, fd := range f.fields {
			for chunk := range Concat(h.Hashables(fd.Name), h.Hashables(fd.Get(t))) {
				if !yield(chunk) {
					return
				}
			}
		}
	}
}

// Equal implements Helper.
func (f *Fields[T]) Equal(a, b any) bool {
	x, y, ok := Both[*T](a, b)
	if !ok {
		return false
	}
	if x == y {
		return true
	}
	if x == nil || y == nil {
		return false
	}
	for _, fd := range f.fields {
		va, vb := fd.Get(x), fd.Get(y)
		if fd.Equal != nil {
			if !fd.Equal(va, vb) {
				return false
			}
			continue
		}
		na, errA := state.Normalize(va)
		nb, errB := state.Normalize(vb)
		if errA != nil || errB != nil || !state.Equal(na, nb) {
			return false
		}
	}
	return true
}

// SaveInstanceState implements Helper.
func (f *Fields[T]) SaveInstanceState(v any, s Saver) (any, error) {
	t, err := As[*T](v)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(f.fields))
	for _, fd := range f.fields {
		val := fd.Get(t)
		if fd.Ref && fd.List {
			refs, err := saveList(s, val)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", fd.Name, err)
			}
			out[fd.Name] = refs
			continue
		}
		if fd.Ref {
			if isNil(val) {
				out[fd.Name] = nil
				continue
			}
			ref, err := s.Save(val)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", fd.Name, err)
			}
			out[fd.Name] = ref
			continue
		}
		n, err := state.Normalize(val)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fd.Name, err)
		}
		out[fd.Name] = n
	}
	return out, nil
}

// DefaultInstance implements TwoPhase.
func (f *Fields[T]) DefaultInstance() any {
	return new(T)
}

// LoadInstanceState implements TwoPhase.
func (f *Fields[T]) LoadInstanceState(v any, saved any, l Loader) error {
	t, err := As[*T](v)
	if err != nil {
		return err
	}
	m, err := state.AsMap(saved)
	if err != nil {
		return err
	}
	for _, fd := range f.fields {
		node, err := state.Get(m, fd.Name)
		if err != nil {
			return err
		}
		switch {
		case fd.Ref && fd.List && node != nil:
			if node, err = loadList(l, node, fd.Type); err != nil {
				return fmt.Errorf("field %s: %w", fd.Name, err)
			}
		case fd.Ref && node != nil:
			if node, err = loadRef(l, node, fd.Type); err != nil {
				return fmt.Errorf("field %s: %w", fd.Name, err)
			}
		}
		if err := fd.Set(t, node); err != nil {
			return fmt.Errorf("field %s: %w", fd.Name, err)
		}
	}
	return nil
}

func saveList(s Saver, val any) ([]any, error) {
	if isNil(val) {
		return []any{}, nil
	}
	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%w: want a slice, got %T", ErrTypeMismatch, val)
	}
	refs := make([]any, rv.Len())
	for i := range refs {
		item := rv.Index(i).Interface()
		if isNil(item) {
			continue
		}
		ref, err := s.Save(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		refs[i] = ref
	}
	return refs, nil
}

func loadRef(l Loader, node any, want reflect.Type) (any, error) {
	ref, err := state.AsReference(node)
	if err != nil {
		return nil, err
	}
	v, err := l.Load(ref)
	if err != nil {
		return nil, err
	}
	if want != nil && !reflect.TypeOf(v).AssignableTo(want) {
		return nil, fmt.Errorf("%w: want %s, got %T", ErrTypeMismatch, want, v)
	}
	return v, nil
}

func loadList(l Loader, node any, want reflect.Type) ([]any, error) {
	items, err := state.AsList(node)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(items))
	for i, item := range items {
		if item == nil {
			continue
		}
		if out[i], err = loadRef(l, item, want); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}
	return out, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

var _ TwoPhase = (*Fields[struct{}])(nil)
