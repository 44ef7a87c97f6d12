// Package chemgraphtypes persists chemical graphs. Atoms, bonds and their
// molecule point at each other, so all three are stored as separate
// objects joined by references.
package chemgraphtypes

import (
	"github.com/google/uuid"

	"github.com/bft-labs/scistore/pkg/helper"
	"github.com/bft-labs/scistore/pkg/state"
	"github.com/bft-labs/scistore/sci/chemgraph"
	"github.com/bft-labs/scistore/sci/settings"
)

var (
	MoleculeID = uuid.MustParse("70cafb92-1c0d-4d5f-bf48-5d1c5e70a0ec")
	AtomID     = uuid.MustParse("fbe78755-a8d7-415d-b8b5-44ac18ef5f3a")
	BondID     = uuid.MustParse("ad6262eb-8ca1-43a4-bf61-34474cf69137")
)

// MoleculeHelper stores atoms, bonds and properties as references. Equality
// is chemgraph.Molecule.Equal: bonds are matched by atom index.
type MoleculeHelper struct {
	*helper.Fields[chemgraph.Molecule]
}

func NewMoleculeHelper() *MoleculeHelper {
	return &MoleculeHelper{Fields: helper.NewFields(
		helper.Descriptor{Name: "chemgraph.Molecule", ID: MoleculeID},
		helper.RefList("atoms",
			func(m *chemgraph.Molecule) []*chemgraph.Atom { return m.Atoms },
			func(m *chemgraph.Molecule, v []*chemgraph.Atom) { m.Atoms = v }),
		helper.RefList("bonds",
			func(m *chemgraph.Molecule) []*chemgraph.Bond { return m.Bonds },
			func(m *chemgraph.Molecule, v []*chemgraph.Bond) { m.Bonds = v }),
		helper.Ref("properties",
			func(m *chemgraph.Molecule) *settings.Settings { return properties(m.Properties) },
			func(m *chemgraph.Molecule, v *settings.Settings) { m.Properties = v }),
		helper.Plain("lattice",
			func(m *chemgraph.Molecule) any { return m.Lattice },
			func(m *chemgraph.Molecule, v any) (err error) {
				m.Lattice, err = state.AsVec3s(v)
				return err
			}),
	)}
}

// Equal implements helper.Helper.
func (h *MoleculeHelper) Equal(a, b any) bool {
	x, y, ok := helper.Both[*chemgraph.Molecule](a, b)
	return ok && x.Equal(y)
}

// NewAtomHelper returns the field helper for *chemgraph.Atom.
func NewAtomHelper() *helper.Fields[chemgraph.Atom] {
	return helper.NewFields(
		helper.Descriptor{Name: "chemgraph.Atom", ID: AtomID},
		helper.Plain("symbol",
			func(a *chemgraph.Atom) any { return a.Symbol },
			func(a *chemgraph.Atom, v any) (err error) {
				a.Symbol, err = state.AsString(v)
				return err
			}),
		helper.Plain("coords",
			func(a *chemgraph.Atom) any { return a.Coords },
			func(a *chemgraph.Atom, v any) (err error) {
				a.Coords, err = state.AsVec3(v)
				return err
			}),
		helper.Ref("mol",
			func(a *chemgraph.Atom) *chemgraph.Molecule { return a.Mol },
			func(a *chemgraph.Atom, v *chemgraph.Molecule) { a.Mol = v }),
		helper.RefList("bonds",
			func(a *chemgraph.Atom) []*chemgraph.Bond { return a.Bonds },
			func(a *chemgraph.Atom, v []*chemgraph.Bond) { a.Bonds = v }),
		helper.Ref("properties",
			func(a *chemgraph.Atom) *settings.Settings { return properties(a.Properties) },
			func(a *chemgraph.Atom, v *settings.Settings) { a.Properties = v }),
	)
}

// NewBondHelper returns the field helper for *chemgraph.Bond.
func NewBondHelper() *helper.Fields[chemgraph.Bond] {
	return helper.NewFields(
		helper.Descriptor{Name: "chemgraph.Bond", ID: BondID},
		helper.Ref("atom1",
			func(b *chemgraph.Bond) *chemgraph.Atom { return b.Atom1 },
			func(b *chemgraph.Bond, v *chemgraph.Atom) { b.Atom1 = v }),
		helper.Ref("atom2",
			func(b *chemgraph.Bond) *chemgraph.Atom { return b.Atom2 },
			func(b *chemgraph.Bond, v *chemgraph.Atom) { b.Atom2 = v }),
		helper.Plain("order",
			func(b *chemgraph.Bond) any { return b.Order },
			func(b *chemgraph.Bond, v any) (err error) {
				b.Order, err = state.AsFloat(v)
				return err
			}),
		helper.Ref("mol",
			func(b *chemgraph.Bond) *chemgraph.Molecule { return b.Mol },
			func(b *chemgraph.Bond, v *chemgraph.Molecule) { b.Mol = v }),
		helper.Ref("properties",
			func(b *chemgraph.Bond) *settings.Settings { return properties(b.Properties) },
			func(b *chemgraph.Bond, v *settings.Settings) { b.Properties = v }),
	)
}

// properties drops empty property sets, so a graph with empty properties
// hashes and saves like one without any.
func properties(s *settings.Settings) *settings.Settings {
	if s == nil || s.Len() == 0 {
		return nil
	}
	return s
}

// Types returns the helpers of this package. Properties are
// *settings.Settings, so a registry also needs settingstypes.Types.
func Types() []helper.Helper {
	return []helper.Helper{NewMoleculeHelper(), NewAtomHelper(), NewBondHelper()}
}

var _ helper.TwoPhase = (*MoleculeHelper)(nil)
