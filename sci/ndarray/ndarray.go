// Package ndarray is a small n-dimensional array of float64, int64 or bool
// elements stored in row-major order.
package ndarray

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
)

// Kind is the element type of an Array.
type Kind int

const (
	Float64 Kind = iota
	Int64
	Bool
)

func (k Kind) String() string {
	switch k {
	case Float64:
		return "float64"
	case Int64:
		return "int64"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "float64":
		return Float64, nil
	case "int64":
		return Int64, nil
	case "bool":
		return Bool, nil
	}
	return 0, fmt.Errorf("ndarray: unknown kind %q", s)
}

var (
	ErrShape  = errors.New("ndarray: data does not match shape")
	ErrRagged = errors.New("ndarray: nested sequence is ragged")
	ErrLeaf   = errors.New("ndarray: unsupported element")
)

// Array is immutable once built. Accessors return copies.
type Array struct {
	kind   Kind
	shape  []int
	floats []float64
	ints   []int64
	bools  []bool
}

func size(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: negative dimension %d", ErrShape, d)
		}
		n *= d
	}
	return n, nil
}

func check(shape []int, n int) error {
	want, err := size(shape)
	if err != nil {
		return err
	}
	if want != n {
		return fmt.Errorf("%w: shape %v needs %d elements, got %d", ErrShape, shape, want, n)
	}
	return nil
}

// NewFloat64 builds a float64 array. data is copied.
func NewFloat64(shape []int, data []float64) (*Array, error) {
	if err := check(shape, len(data)); err != nil {
		return nil, err
	}
	return &Array{kind: Float64, shape: slices.Clone(shape), floats: slices.Clone(data)}, nil
}

// NewInt64 builds an int64 array. data is copied.
func NewInt64(shape []int, data []int64) (*Array, error) {
	if err := check(shape, len(data)); err != nil {
		return nil, err
	}
	return &Array{kind: Int64, shape: slices.Clone(shape), ints: slices.Clone(data)}, nil
}

// NewBool builds a bool array. data is copied.
func NewBool(shape []int, data []bool) (*Array, error) {
	if err := check(shape, len(data)); err != nil {
		return nil, err
	}
	return &Array{kind: Bool, shape: slices.Clone(shape), bools: slices.Clone(data)}, nil
}

// Zeros returns a zero-filled array.
func Zeros(kind Kind, shape ...int) (*Array, error) {
	n, err := size(shape)
	if err != nil {
		return nil, err
	}
	switch kind {
	case Int64:
		return NewInt64(shape, make([]int64, n))
	case Bool:
		return NewBool(shape, make([]bool, n))
	default:
		return NewFloat64(shape, make([]float64, n))
	}
}

// Kind returns the element kind.
func (a *Array) Kind() Kind { return a.kind }

// Shape returns a copy of the dimensions.
func (a *Array) Shape() []int { return slices.Clone(a.shape) }

// Ndim returns the number of dimensions.
func (a *Array) Ndim() int { return len(a.shape) }

// Size returns the number of elements.
func (a *Array) Size() int {
	switch a.kind {
	case Int64:
		return len(a.ints)
	case Bool:
		return len(a.bools)
	default:
		return len(a.floats)
	}
}

// Float64s returns the elements converted to float64.
func (a *Array) Float64s() []float64 {
	out := make([]float64, a.Size())
	for i := range out {
		switch a.kind {
		case Int64:
			out[i] = float64(a.ints[i])
		case Bool:
			if a.bools[i] {
				out[i] = 1
			}
		default:
			out[i] = a.floats[i]
		}
	}
	return out
}

// Int64s returns a copy of the elements of an Int64 array, or nil.
func (a *Array) Int64s() []int64 { return slices.Clone(a.ints) }

// Bools returns a copy of the elements of a Bool array, or nil.
func (a *Array) Bools() []bool { return slices.Clone(a.bools) }

func (a *Array) elem(i int) any {
	switch a.kind {
	case Int64:
		return a.ints[i]
	case Bool:
		return a.bools[i]
	default:
		return a.floats[i]
	}
}

// At returns the element at the given index.
func (a *Array) At(idx ...int) (any, error) {
	if len(idx) != len(a.shape) {
		return nil, fmt.Errorf("ndarray: %d indices for %d dimensions", len(idx), len(a.shape))
	}
	flat := 0
	for d, i := range idx {
		if i < 0 || i >= a.shape[d] {
			return nil, fmt.Errorf("ndarray: index %d out of range for axis %d", i, d)
		}
		flat = flat*a.shape[d] + i
	}
	return a.elem(flat), nil
}

// ToNested returns the elements as nested []any lists. A zero-dimensional
// array yields its single element.
func (a *Array) ToNested() any {
	if len(a.shape) == 0 {
		return a.elem(0)
	}
	pos := 0
	var build func(dim int) []any
	build = func(dim int) []any {
		out := make([]any, a.shape[dim])
		for i := range out {
			if dim == len(a.shape)-1 {
				out[i] = a.elem(pos)
				pos++
			} else {
				out[i] = build(dim + 1)
			}
		}
		return out
	}
	return build(0)
}

// FromNested builds an array from nested slices of numbers or bools. The
// kind is bool when every leaf is a bool, int64 when every leaf is an
// integer or bool, and float64 otherwise. An empty list is a float64 array
// of shape [0].
func FromNested(v any) (*Array, error) {
	var (
		shape  []int
		leaves []reflect.Value
	)
	var walk func(rv reflect.Value, depth int) error
	walk = func(rv reflect.Value, depth int) error {
		for rv.Kind() == reflect.Interface && !rv.IsNil() {
			rv = rv.Elem()
		}
		if !rv.IsValid() || rv.Kind() == reflect.Interface {
			return fmt.Errorf("%w: nil", ErrLeaf)
		}
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			if depth == len(shape) {
				if len(leaves) > 0 {
					return ErrRagged
				}
				shape = append(shape, rv.Len())
			} else if depth > len(shape) || shape[depth] != rv.Len() {
				return ErrRagged
			}
			for i := 0; i < rv.Len(); i++ {
				if err := walk(rv.Index(i), depth+1); err != nil {
					return err
				}
			}
			return nil
		}
		if depth != len(shape) {
			return ErrRagged
		}
		leaves = append(leaves, rv)
		return nil
	}
	if err := walk(reflect.ValueOf(v), 0); err != nil {
		return nil, err
	}

	kind := Bool
	for _, lv := range leaves {
		switch lv.Kind() {
		case reflect.Bool:
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint8, reflect.Uint16, reflect.Uint32:
			if kind == Bool {
				kind = Int64
			}
		case reflect.Float32, reflect.Float64:
			kind = Float64
		default:
			return nil, fmt.Errorf("%w: %s", ErrLeaf, lv.Type())
		}
	}
	if len(leaves) == 0 {
		kind = Float64
	}

	switch kind {
	case Bool:
		data := make([]bool, len(leaves))
		for i, lv := range leaves {
			data[i] = lv.Bool()
		}
		return NewBool(shape, data)
	case Int64:
		data := make([]int64, len(leaves))
		for i, lv := range leaves {
			data[i] = toInt(lv)
		}
		return NewInt64(shape, data)
	default:
		data := make([]float64, len(leaves))
		for i, lv := range leaves {
			switch lv.Kind() {
			case reflect.Float32, reflect.Float64:
				data[i] = lv.Float()
			default:
				data[i] = float64(toInt(lv))
			}
		}
		return NewFloat64(shape, data)
	}
}

func toInt(lv reflect.Value) int64 {
	switch lv.Kind() {
	case reflect.Bool:
		if lv.Bool() {
			return 1
		}
		return 0
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return int64(lv.Uint())
	default:
		return lv.Int()
	}
}

// Equal reports whether a and b have the same kind, shape and elements.
// NaN equals NaN and -0 equals +0.
func (a *Array) Equal(b *Array) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.kind != b.kind || !slices.Equal(a.shape, b.shape) {
		return false
	}
	switch a.kind {
	case Int64:
		return slices.Equal(a.ints, b.ints)
	case Bool:
		return slices.Equal(a.bools, b.bools)
	default:
		return slices.EqualFunc(a.floats, b.floats, func(x, y float64) bool {
			return x == y || (math.IsNaN(x) && math.IsNaN(y))
		})
	}
}

func (a *Array) String() string {
	return fmt.Sprintf("array(%v, kind=%s, shape=%v)", a.ToNested(), a.kind, a.shape)
}
