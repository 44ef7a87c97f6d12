// Package densetypes persists gonum dense matrices.
package densetypes

import (
	"fmt"
	"iter"
	"reflect"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/bft-labs/scistore/pkg/helper"
	"github.com/bft-labs/scistore/pkg/state"
)

// DenseID is the type id of *mat.Dense states.
var DenseID = uuid.MustParse("d7270e15-c6fb-4621-abd8-c47b3be8b839")

// DenseHelper stores a matrix as a list of rows.
type DenseHelper struct {
	helper.Base
}

// NewDenseHelper returns the helper for *mat.Dense.
func NewDenseHelper() *DenseHelper {
	return &DenseHelper{Base: helper.NewBase(helper.Descriptor{
		Name:  "mat.Dense",
		ID:    DenseID,
		Types: []reflect.Type{reflect.TypeFor[*mat.Dense]()},
	})}
}

func rows(m *mat.Dense) [][]float64 {
	if m.IsEmpty() {
		return [][]float64{}
	}
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(make([]float64, c), i, m)
	}
	return out
}

// Fingerprint implements helper.Helper.
func (h *DenseHelper) Fingerprint(v any, hs helper.Hasher) iter.Seq[[]byte] {
	m, err := helper.As[*mat.Dense](v)
	if err != nil {
		return hs.Fail(err)
	}
	return hs.Hashables(rows(m))
}

// Equal compares dimensions and elements. NaN equals NaN.
func (h *DenseHelper) Equal(a, b any) bool {
	x, y, ok := helper.Both[*mat.Dense](a, b)
	if !ok || x == nil || y == nil {
		return ok && x == y
	}
	if x.IsEmpty() || y.IsEmpty() {
		return x.IsEmpty() && y.IsEmpty()
	}
	xr, xc := x.Dims()
	yr, yc := y.Dims()
	if xr != yr || xc != yc {
		return false
	}
	for i := range xr {
		for j := range xc {
			if !state.FloatEqual(x.At(i, j), y.At(i, j)) {
				return false
			}
		}
	}
	return true
}

// SaveInstanceState implements helper.Helper.
func (h *DenseHelper) SaveInstanceState(v any, _ helper.Saver) (any, error) {
	m, err := helper.As[*mat.Dense](v)
	if err != nil {
		return nil, err
	}
	return map[string]any{"array": rows(m), "dtype": "float64"}, nil
}

// New implements helper.Constructor.
func (h *DenseHelper) New(saved any, _ helper.Loader) (any, error) {
	m, err := state.AsMap(saved)
	if err != nil {
		return nil, err
	}
	if dtype, err := state.GetAs(m, "dtype", state.AsString); err != nil {
		return nil, err
	} else if dtype != "float64" {
		return nil, fmt.Errorf("densetypes: unsupported dtype %q", dtype)
	}
	data, err := state.GetAs(m, "array", state.AsFloatMatrix)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return &mat.Dense{}, nil
	}
	c := len(data[0])
	flat := make([]float64, 0, len(data)*c)
	for i, row := range data {
		if len(row) != c {
			return nil, fmt.Errorf("densetypes: row %d has %d columns, want %d", i, len(row), c)
		}
		flat = append(flat, row...)
	}
	if c == 0 {
		return nil, fmt.Errorf("densetypes: %d rows without columns", len(data))
	}
	return mat.NewDense(len(data), c, flat), nil
}

// Types returns the helpers of this package.
func Types() []helper.Helper {
	return []helper.Helper{NewDenseHelper()}
}

var _ helper.Constructor = (*DenseHelper)(nil)
