// Package e3types persists the equivariant network building blocks of
// package e3. Irrep lists are stored by their canonical string; modules go
// through their state dictionaries, with the compiled contraction plan kept
// as an opaque versioned payload.
package e3types

import (
	"fmt"
	"iter"
	"maps"
	"reflect"

	"github.com/google/uuid"

	"github.com/bft-labs/scistore/pkg/helper"
	"github.com/bft-labs/scistore/pkg/state"
	"github.com/bft-labs/scistore/sci/e3"
)

// Type ids.
var (
	IrrepID         = uuid.MustParse("7a525788-8f67-4575-a1e4-9a68195516e2")
	IrrepsID        = uuid.MustParse("bfc8a923-a316-4b5d-9b05-98efe6e7d7fb")
	InstructionID   = uuid.MustParse("a76e6544-39aa-4291-89ab-aa7c48c97484")
	TensorProductID = uuid.MustParse("1a9a6154-ba68-476b-bb09-2ace5fda5f45")
	TensorSquareID  = uuid.MustParse("aa68e071-92ee-48ad-8909-80f9069f629c")
	ReducedID       = uuid.MustParse("b87bf7b1-eb3d-4d5d-b65a-3a6780d725a3")
	ElementwiseID   = uuid.MustParse("5c808ac0-0e37-4079-976d-862d111f897b")
	GateID          = uuid.MustParse("ad05bad7-aa30-4e81-8f61-308640db1878")
	ActivationID    = uuid.MustParse("ee7b6794-d76f-4ac3-bd44-406bc8a9aa1b")
	Normalize2MomID = uuid.MustParse("fd535825-95ee-42e2-9ce6-0e7a6f43a0ba")
)

// PlanFormat names the opaque payload holding a compiled plan.
const PlanFormat = "e3.codegen"

// TextHelper stores an immutable value as its canonical string.
type TextHelper[T fmt.Stringer] struct {
	helper.Base
	parse func(string) (T, error)
	equal func(a, b T) bool
}

func newText[T fmt.Stringer](name string, id uuid.UUID, parse func(string) (T, error), equal func(a, b T) bool) *TextHelper[T] {
	return &TextHelper[T]{
		Base: helper.NewBase(helper.Descriptor{
			Name:      name,
			ID:        id,
			Types:     []reflect.Type{reflect.TypeFor[T]()},
			Immutable: true,
		}),
		parse: parse,
		equal: equal,
	}
}

// NewIrrepHelper returns the helper for e3.Irrep.
func NewIrrepHelper() *TextHelper[e3.Irrep] {
	return newText("e3.Irrep", IrrepID, e3.ParseIrrep, func(a, b e3.Irrep) bool { return a == b })
}

// NewIrrepsHelper returns the helper for e3.Irreps.
func NewIrrepsHelper() *TextHelper[e3.Irreps] {
	return newText("e3.Irreps", IrrepsID, e3.ParseIrreps, e3.Irreps.Equal)
}

// Fingerprint implements helper.Helper.
func (h *TextHelper[T]) Fingerprint(v any, hs helper.Hasher) iter.Seq[[]byte] {
	t, err := helper.As[T](v)
	if err != nil {
		return hs.Fail(err)
	}
	return hs.Hashables(t.String())
}

// Equal implements helper.Helper.
func (h *TextHelper[T]) Equal(a, b any) bool {
	x, y, ok := helper.Both[T](a, b)
	return ok && h.equal(x, y)
}

// SaveInstanceState implements helper.Helper.
func (h *TextHelper[T]) SaveInstanceState(v any, _ helper.Saver) (any, error) {
	t, err := helper.As[T](v)
	if err != nil {
		return nil, err
	}
	return t.String(), nil
}

// New implements helper.Constructor.
func (h *TextHelper[T]) New(saved any, _ helper.Loader) (any, error) {
	s, err := state.AsString(saved)
	if err != nil {
		return nil, err
	}
	return h.parse(s)
}

// InstructionHelper stores an instruction as its tuple.
type InstructionHelper struct {
	helper.Base
}

func NewInstructionHelper() *InstructionHelper {
	return &InstructionHelper{Base: helper.NewBase(helper.Descriptor{
		Name:  "e3.Instruction",
		ID:    InstructionID,
		Types: []reflect.Type{reflect.TypeFor[e3.Instruction]()},
	})}
}

// Fingerprint implements helper.Helper.
func (h *InstructionHelper) Fingerprint(v any, hs helper.Hasher) iter.Seq[[]byte] {
	in, err := helper.As[e3.Instruction](v)
	if err != nil {
		return hs.Fail(err)
	}
	return hs.Hashables(in.Tuple())
}

// Equal implements helper.Helper.
func (h *InstructionHelper) Equal(a, b any) bool {
	x, y, ok := helper.Both[e3.Instruction](a, b)
	return ok && x.Equal(y)
}

// SaveInstanceState implements helper.Helper.
func (h *InstructionHelper) SaveInstanceState(v any, _ helper.Saver) (any, error) {
	in, err := helper.As[e3.Instruction](v)
	if err != nil {
		return nil, err
	}
	return in.Tuple(), nil
}

// New implements helper.Constructor.
func (h *InstructionHelper) New(saved any, _ helper.Loader) (any, error) {
	return e3.InstructionFromTuple(saved)
}

// PlannedHelper is the state dictionary strategy for modules whose
// dictionary may carry a compiled plan under e3.PlanKey. The plan is saved
// as a state.Opaque tagged with e3.PlanVersion; loading a plan of another
// version fails with state.ErrOpaqueVersion.
type PlannedHelper[T helper.Stateful] struct {
	*helper.StateDict[T]
}

func newPlanned[T helper.Stateful](name string, id uuid.UUID, blank func() T) *PlannedHelper[T] {
	return &PlannedHelper[T]{StateDict: helper.NewStateDict(helper.Descriptor{Name: name, ID: id}, blank)}
}

// SaveInstanceState implements helper.Helper.
func (h *PlannedHelper[T]) SaveInstanceState(v any, s helper.Saver) (any, error) {
	saved, err := h.StateDict.SaveInstanceState(v, s)
	if err != nil {
		return nil, err
	}
	m := saved.(map[string]any)
	if plan, ok := m[e3.PlanKey].([]byte); ok {
		m[e3.PlanKey] = state.Opaque{Format: PlanFormat, Version: e3.PlanVersion, Data: plan}
	}
	return m, nil
}

// LoadInstanceState implements helper.TwoPhase.
func (h *PlannedHelper[T]) LoadInstanceState(v any, saved any, l helper.Loader) error {
	m, err := state.AsMap(saved)
	if err != nil {
		return err
	}
	if node, ok := m[e3.PlanKey]; ok && node != nil {
		o, err := state.AsOpaque(node)
		if err != nil {
			return fmt.Errorf("%s: %w", e3.PlanKey, err)
		}
		if err := o.Check(PlanFormat, e3.PlanVersion); err != nil {
			return err
		}
		m = maps.Clone(m)
		m[e3.PlanKey] = o.Data
	}
	return h.StateDict.LoadInstanceState(v, m, l)
}

// NewTensorProductHelper returns the helper for *e3.TensorProduct.
func NewTensorProductHelper() *PlannedHelper[*e3.TensorProduct] {
	return newPlanned("e3.TensorProduct", TensorProductID, func() *e3.TensorProduct { return new(e3.TensorProduct) })
}

func NewTensorSquareHelper() *PlannedHelper[*e3.TensorSquare] {
	return newPlanned("e3.TensorSquare", TensorSquareID, func() *e3.TensorSquare { return new(e3.TensorSquare) })
}

func NewElementwiseHelper() *PlannedHelper[*e3.ElementwiseTensorProduct] {
	return newPlanned("e3.ElementwiseTensorProduct", ElementwiseID,
		func() *e3.ElementwiseTensorProduct { return new(e3.ElementwiseTensorProduct) })
}

func NewReducedHelper() *PlannedHelper[*e3.ReducedTensorProducts] {
	return newPlanned("e3.ReducedTensorProducts", ReducedID,
		func() *e3.ReducedTensorProducts { return new(e3.ReducedTensorProducts) })
}

// Types returns the helpers of this package.
func Types() []helper.Helper {
	return []helper.Helper{
		NewIrrepHelper(),
		NewIrrepsHelper(),
		NewInstructionHelper(),
		NewTensorProductHelper(),
		NewTensorSquareHelper(),
		NewElementwiseHelper(),
		NewReducedHelper(),
		helper.NewStateDict(helper.Descriptor{Name: "e3.Gate", ID: GateID}, func() *e3.Gate { return new(e3.Gate) }),
		helper.NewStateDict(helper.Descriptor{Name: "e3.Activation", ID: ActivationID}, func() *e3.Activation { return new(e3.Activation) }),
		helper.NewStateDict(helper.Descriptor{Name: "e3.Normalize2Mom", ID: Normalize2MomID}, func() *e3.Normalize2Mom { return new(e3.Normalize2Mom) }),
	}
}

var (
	_ helper.Constructor = (*TextHelper[e3.Irrep])(nil)
	_ helper.Constructor = (*InstructionHelper)(nil)
	_ helper.TwoPhase    = (*PlannedHelper[*e3.TensorProduct])(nil)
)
