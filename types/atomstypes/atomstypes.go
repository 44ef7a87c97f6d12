// Package atomstypes persists atomistic configurations and their cells.
package atomstypes

import (
	"fmt"
	"iter"
	"reflect"

	"github.com/google/uuid"

	"github.com/bft-labs/scistore/pkg/helper"
	"github.com/bft-labs/scistore/pkg/state"
	"github.com/bft-labs/scistore/sci/atoms"
)

var (
	AtomsID = uuid.MustParse("ad4ca7ae-6ebc-4594-947d-ac42f5d96c1f")
	CellID  = uuid.MustParse("4eea34e2-df87-420e-b51e-7d015bb1d3cb")
)

type options struct {
	originalCalculator bool
}

// Option configures the helpers returned by Types.
type Option func(*options)

// LoadOriginalCalculator rebuilds the calculator named in a saved row from
// its parameters instead of attaching the stored results as a single-point
// calculator.
func LoadOriginalCalculator(on bool) Option {
	return func(o *options) {
		o.originalCalculator = on
	}
}

// AtomsHelper stores the flat row form of *atoms.Atoms.
type AtomsHelper struct {
	helper.Base
	opts options
}

// NewAtomsHelper returns the helper for *atoms.Atoms.
func NewAtomsHelper(opts ...Option) *AtomsHelper {
	h := &AtomsHelper{Base: helper.NewBase(helper.Descriptor{
		Name:             "atoms.Atoms",
		ID:               AtomsID,
		Types:            []reflect.Type{reflect.TypeFor[*atoms.Atoms]()},
		CreationTracking: true,
	})}
	for _, opt := range opts {
		opt(&h.opts)
	}
	return h
}

// Fingerprint covers what Equal compares: numbers, positions, cell and
// periodicity.
func (h *AtomsHelper) Fingerprint(v any, hs helper.Hasher) iter.Seq[[]byte] {
	a, err := helper.As[*atoms.Atoms](v)
	if err != nil {
		return hs.Fail(err)
	}
	return hs.Hashables(map[string]any{
		"numbers":   a.Numbers(),
		"positions": a.Positions(),
		"cell":      a.Cell().Array(),
		"pbc":       a.PBC(),
	})
}

// Equal implements helper.Helper.
func (h *AtomsHelper) Equal(a, b any) bool {
	x, y, ok := helper.Both[*atoms.Atoms](a, b)
	return ok && x.Equal(y)
}

// SaveInstanceState implements helper.Helper.
func (h *AtomsHelper) SaveInstanceState(v any, _ helper.Saver) (any, error) {
	a, err := helper.As[*atoms.Atoms](v)
	if err != nil {
		return nil, err
	}
	return state.Normalize(a.Row())
}

// DefaultInstance implements helper.TwoPhase.
func (h *AtomsHelper) DefaultInstance() any { return new(atoms.Atoms) }

// LoadInstanceState implements helper.TwoPhase.
func (h *AtomsHelper) LoadInstanceState(v any, saved any, _ helper.Loader) error {
	a, err := helper.As[*atoms.Atoms](v)
	if err != nil {
		return err
	}
	row, err := state.AsMap(saved)
	if err != nil {
		return err
	}
	return a.LoadRow(row, h.opts.originalCalculator)
}

// CellHelper stores the three cell vectors under "array".
type CellHelper struct {
	helper.Base
}

func NewCellHelper() *CellHelper {
	return &CellHelper{Base: helper.NewBase(helper.Descriptor{
		Name:             "atoms.Cell",
		ID:               CellID,
		Types:            []reflect.Type{reflect.TypeFor[*atoms.Cell]()},
		CreationTracking: true,
	})}
}

// Fingerprint implements helper.Helper.
func (h *CellHelper) Fingerprint(v any, hs helper.Hasher) iter.Seq[[]byte] {
	c, err := helper.As[*atoms.Cell](v)
	if err != nil {
		return hs.Fail(err)
	}
	return hs.Hashables(c.Array())
}

// Equal implements helper.Helper.
func (h *CellHelper) Equal(a, b any) bool {
	x, y, ok := helper.Both[*atoms.Cell](a, b)
	return ok && x.Equal(y)
}

// SaveInstanceState implements helper.Helper.
func (h *CellHelper) SaveInstanceState(v any, _ helper.Saver) (any, error) {
	c, err := helper.As[*atoms.Cell](v)
	if err != nil {
		return nil, err
	}
	array := c.Array()
	return state.Normalize(map[string]any{"array": array[:]})
}

// DefaultInstance implements helper.TwoPhase.
func (h *CellHelper) DefaultInstance() any { return new(atoms.Cell) }

// LoadInstanceState implements helper.TwoPhase.
func (h *CellHelper) LoadInstanceState(v any, saved any, _ helper.Loader) error {
	c, err := helper.As[*atoms.Cell](v)
	if err != nil {
		return err
	}
	m, err := state.AsMap(saved)
	if err != nil {
		return err
	}
	rows, err := state.GetAs(m, "array", state.AsVec3s)
	if err != nil {
		return err
	}
	if len(rows) != 3 {
		return fmt.Errorf("%w: cell has %d vectors", atoms.ErrRow, len(rows))
	}
	c.Init([3][3]float64(rows))
	return nil
}

// Types returns the helpers of this package.
func Types(opts ...Option) []helper.Helper {
	return []helper.Helper{NewAtomsHelper(opts...), NewCellHelper()}
}

var (
	_ helper.TwoPhase = (*AtomsHelper)(nil)
	_ helper.TwoPhase = (*CellHelper)(nil)
)
