// Package crystaltypes persists crystal structures, molecules, band
// structures and densities of states through their dictionary forms.
package crystaltypes

import (
	"iter"
	"reflect"

	"github.com/google/uuid"

	"github.com/bft-labs/scistore/pkg/helper"
	"github.com/bft-labs/scistore/pkg/state"
	"github.com/bft-labs/scistore/sci/crystal"
)

var (
	StructureID     = uuid.MustParse("b00aa5f5-f152-43c9-aeab-9710b0f045b1")
	MoleculeID      = uuid.MustParse("d96f94c2-bc63-4abc-9e75-9d297b0ca9ad")
	BandStructureID = uuid.MustParse("690b9a99-3f1f-45e5-88eb-0448ceaff7dd")
	CompleteDosID   = uuid.MustParse("cf98144c-59e0-4235-8faa-3dd883651c6a")
	PeriodicSiteID  = uuid.MustParse("24ddfbb3-c3e6-432f-abd8-4542810ac002")
)

type dictValue[T any] interface {
	AsDict() map[string]any
	Equal(T) bool
}

// DictHelper saves the AsDict form of a value and rebuilds it with the
// matching FromDict function.
type DictHelper[T dictValue[T]] struct {
	helper.Base
	fromDict func(map[string]any) (T, error)
}

func newDict[T dictValue[T]](desc helper.Descriptor, fromDict func(map[string]any) (T, error)) *DictHelper[T] {
	desc.Types = []reflect.Type{reflect.TypeFor[T]()}
	return &DictHelper[T]{Base: helper.NewBase(desc), fromDict: fromDict}
}

// Fingerprint implements helper.Helper.
func (h *DictHelper[T]) Fingerprint(v any, hs helper.Hasher) iter.Seq[[]byte] {
	t, err := helper.As[T](v)
	if err != nil {
		return hs.Fail(err)
	}
	return hs.Hashables(t.AsDict())
}

// Equal implements helper.Helper.
func (h *DictHelper[T]) Equal(a, b any) bool {
	x, y, ok := helper.Both[T](a, b)
	return ok && x.Equal(y)
}

// SaveInstanceState implements helper.Helper.
func (h *DictHelper[T]) SaveInstanceState(v any, _ helper.Saver) (any, error) {
	t, err := helper.As[T](v)
	if err != nil {
		return nil, err
	}
	return state.Normalize(t.AsDict())
}

// New implements helper.Constructor.
func (h *DictHelper[T]) New(saved any, _ helper.Loader) (any, error) {
	m, err := state.AsMap(saved)
	if err != nil {
		return nil, err
	}
	return h.fromDict(m)
}

func NewStructureHelper() *DictHelper[*crystal.Structure] {
	return newDict(helper.Descriptor{Name: "crystal.Structure", ID: StructureID, CreationTracking: true},
		crystal.StructureFromDict)
}

func NewMoleculeHelper() *DictHelper[*crystal.Molecule] {
	return newDict(helper.Descriptor{Name: "crystal.Molecule", ID: MoleculeID}, crystal.MoleculeFromDict)
}

func NewBandStructureHelper() *DictHelper[*crystal.BandStructure] {
	return newDict(helper.Descriptor{Name: "crystal.BandStructure", ID: BandStructureID, CreationTracking: true},
		crystal.BandStructureFromDict)
}

func NewCompleteDosHelper() *DictHelper[*crystal.CompleteDos] {
	return newDict(helper.Descriptor{Name: "crystal.CompleteDos", ID: CompleteDosID, CreationTracking: true},
		crystal.CompleteDosFromDict)
}

// NewPeriodicSiteHelper returns the helper for *crystal.PeriodicSite. The
// site's lattice is embedded in its state.
func NewPeriodicSiteHelper() *DictHelper[*crystal.PeriodicSite] {
	return newDict(helper.Descriptor{Name: "crystal.PeriodicSite", ID: PeriodicSiteID, CreationTracking: true},
		func(m map[string]any) (*crystal.PeriodicSite, error) { return crystal.PeriodicSiteFromDict(m, nil) })
}

// Types returns the helpers of this package.
func Types() []helper.Helper {
	return []helper.Helper{
		NewStructureHelper(),
		NewMoleculeHelper(),
		NewBandStructureHelper(),
		NewCompleteDosHelper(),
		NewPeriodicSiteHelper(),
	}
}

var _ helper.Constructor = (*DictHelper[*crystal.Structure])(nil)
