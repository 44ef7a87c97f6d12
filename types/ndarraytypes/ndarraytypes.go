// Package ndarraytypes persists ndarray.Array values.
package ndarraytypes

import (
	"fmt"
	"iter"
	"reflect"
	"slices"

	"github.com/google/uuid"

	"github.com/bft-labs/scistore/pkg/helper"
	"github.com/bft-labs/scistore/pkg/state"
	"github.com/bft-labs/scistore/sci/ndarray"
)

// ArrayID is the type id of ndarray.Array states.
var ArrayID = uuid.MustParse("eff7de75-2d6c-48dd-9b46-0ce16fb8b688")

// State keys.
const (
	KeyDType = "dtype"
	KeyShape = "shape"
	KeyArray = "array"
)

// ArrayHelper stores an array as its nested list form. The element kind
// and shape are kept next to it so empty arrays keep both.
type ArrayHelper struct {
	helper.Base
}

// NewArrayHelper returns the helper for *ndarray.Array.
func NewArrayHelper() *ArrayHelper {
	return &ArrayHelper{Base: helper.NewBase(helper.Descriptor{
		Name:  "ndarray.Array",
		ID:    ArrayID,
		Types: []reflect.Type{reflect.TypeFor[*ndarray.Array]()},
	})}
}

// Fingerprint yields kind, shape and the nested elements.
func (h *ArrayHelper) Fingerprint(v any, hs helper.Hasher) iter.Seq[[]byte] {
	a, err := helper.As[*ndarray.Array](v)
	if err != nil {
		return hs.Fail(err)
	}
	return helper.Concat(
		hs.Hashables(a.Kind().String()),
		hs.Hashables(a.Shape()),
		hs.Hashables(a.ToNested()),
	)
}

// Equal delegates to Array.Equal.
func (h *ArrayHelper) Equal(a, b any) bool {
	x, y, ok := helper.Both[*ndarray.Array](a, b)
	return ok && x.Equal(y)
}

// SaveInstanceState implements helper.Helper.
func (h *ArrayHelper) SaveInstanceState(v any, _ helper.Saver) (any, error) {
	a, err := helper.As[*ndarray.Array](v)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		KeyDType: a.Kind().String(),
		KeyShape: a.Shape(),
		KeyArray: a.ToNested(),
	}, nil
}

// New implements helper.Constructor.
func (h *ArrayHelper) New(saved any, _ helper.Loader) (any, error) {
	m, err := state.AsMap(saved)
	if err != nil {
		return nil, err
	}
	name, err := state.GetAs(m, KeyDType, state.AsString)
	if err != nil {
		return nil, err
	}
	kind, err := ndarray.ParseKind(name)
	if err != nil {
		return nil, err
	}
	shape, err := state.GetAs(m, KeyShape, state.AsInts)
	if err != nil {
		return nil, err
	}
	nested, err := state.Get(m, KeyArray)
	if err != nil {
		return nil, err
	}
	return Decode(kind, shape, nested)
}

// Decode rebuilds an array of the given kind and shape from its nested list
// form.
func Decode(kind ndarray.Kind, shape []int, nested any) (*ndarray.Array, error) {
	a, err := ndarray.FromNested(nested)
	if err != nil {
		return nil, err
	}
	if a.Size() == 0 {
		return ndarray.Zeros(kind, shape...)
	}
	if !slices.Equal(a.Shape(), shape) {
		return nil, fmt.Errorf("%w: stored shape %v, nested list has %v", ndarray.ErrShape, shape, a.Shape())
	}
	if a.Kind() == kind {
		return a, nil
	}
	// JSON documents carry integral floats as integers.
	if kind == ndarray.Float64 && a.Kind() == ndarray.Int64 {
		return ndarray.NewFloat64(shape, a.Float64s())
	}
	return nil, fmt.Errorf("%w: stored kind %s, elements are %s", ndarray.ErrLeaf, kind, a.Kind())
}

// Types returns the helpers of this package.
func Types() []helper.Helper {
	return []helper.Helper{NewArrayHelper()}
}

var _ helper.Constructor = (*ArrayHelper)(nil)
