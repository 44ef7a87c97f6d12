// Package chemgraph is a mutable molecule made of atoms and bonds that
// point back at each other and at their molecule.
package chemgraph

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/bft-labs/scistore/sci/element"
	"github.com/bft-labs/scistore/sci/settings"
)

var ErrGraph = errors.New("chemgraph: invalid graph")

// Atom is a vertex. Mol and Bonds are maintained by Molecule.
type Atom struct {
	Symbol     string
	Coords     [3]float64
	Mol        *Molecule
	Bonds      []*Bond
	Properties *settings.Settings
}

// NewAtom validates the symbol.
func NewAtom(symbol string, coords [3]float64) (*Atom, error) {
	z, err := element.Number(symbol)
	if err != nil {
		return nil, fmt.Errorf("chemgraph: %w", err)
	}
	canonical, _ := element.Symbol(z)
	return &Atom{Symbol: canonical, Coords: coords}, nil
}

// Z returns the atomic number, or 0 for an unknown symbol.
func (a *Atom) Z() int {
	z, _ := element.Number(a.Symbol)
	return z
}

// Neighbors returns the atoms bonded to a.
func (a *Atom) Neighbors() []*Atom {
	out := make([]*Atom, 0, len(a.Bonds))
	for _, b := range a.Bonds {
		out = append(out, b.Other(a))
	}
	return out
}

// Distance returns the Euclidean distance to o.
func (a *Atom) Distance(o *Atom) float64 {
	dx, dy, dz := a.Coords[0]-o.Coords[0], a.Coords[1]-o.Coords[1], a.Coords[2]-o.Coords[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Equal compares symbol, coordinates and properties. Bonds and the owning
// molecule are not followed.
func (a *Atom) Equal(o *Atom) bool {
	if a == nil || o == nil {
		return a == o
	}
	return a.Symbol == o.Symbol && vecEqual(a.Coords, o.Coords) && propsEqual(a.Properties, o.Properties)
}

func (a *Atom) String() string {
	return fmt.Sprintf("%s %v", a.Symbol, a.Coords)
}

// Bond joins two atoms.
type Bond struct {
	Atom1, Atom2 *Atom
	Order        float64
	Mol          *Molecule
	Properties   *settings.Settings
}

// AromaticOrder is the order of an aromatic bond.
const AromaticOrder = 1.5

// Other returns the end of b that is not a.
func (b *Bond) Other(a *Atom) *Atom {
	if b.Atom1 == a {
		return b.Atom2
	}
	return b.Atom1
}

// Length returns the distance between the bonded atoms.
func (b *Bond) Length() float64 { return b.Atom1.Distance(b.Atom2) }

// IsAromatic reports whether the order is AromaticOrder.
func (b *Bond) IsAromatic() bool { return b.Order == AromaticOrder }

// Equal compares order, properties and both end atoms.
func (b *Bond) Equal(o *Bond) bool {
	if b == nil || o == nil {
		return b == o
	}
	return floatEqual(b.Order, o.Order) && propsEqual(b.Properties, o.Properties) &&
		b.Atom1.Equal(o.Atom1) && b.Atom2.Equal(o.Atom2)
}

func (b *Bond) String() string {
	return fmt.Sprintf("(%s)--%g--(%s)", b.Atom1, b.Order, b.Atom2)
}

// Molecule owns atoms and bonds.
type Molecule struct {
	Atoms      []*Atom
	Bonds      []*Bond
	Properties *settings.Settings
	Lattice    [][3]float64
}

// NewMolecule returns an empty molecule.
func NewMolecule() *Molecule { return &Molecule{} }

// AddAtom takes ownership of a. An atom already in another molecule is an
// error.
func (m *Molecule) AddAtom(a *Atom) error {
	if a.Mol != nil && a.Mol != m {
		return fmt.Errorf("%w: atom %s belongs to another molecule", ErrGraph, a)
	}
	if slices.Contains(m.Atoms, a) {
		return fmt.Errorf("%w: atom %s added twice", ErrGraph, a)
	}
	a.Mol = m
	m.Atoms = append(m.Atoms, a)
	return nil
}

// AddBond joins two atoms of m.
func (m *Molecule) AddBond(a1, a2 *Atom, order float64) (*Bond, error) {
	if a1 == a2 {
		return nil, fmt.Errorf("%w: bond from an atom to itself", ErrGraph)
	}
	if a1.Mol != m || a2.Mol != m {
		return nil, fmt.Errorf("%w: bond between atoms outside the molecule", ErrGraph)
	}
	if m.FindBond(a1, a2) != nil {
		return nil, fmt.Errorf("%w: atoms %s and %s are already bonded", ErrGraph, a1, a2)
	}
	b := &Bond{Atom1: a1, Atom2: a2, Order: order, Mol: m}
	a1.Bonds = append(a1.Bonds, b)
	a2.Bonds = append(a2.Bonds, b)
	m.Bonds = append(m.Bonds, b)
	return b, nil
}

// DeleteBond removes b from the molecule and from both atoms.
func (m *Molecule) DeleteBond(b *Bond) bool {
	i := slices.Index(m.Bonds, b)
	if i < 0 {
		return false
	}
	m.Bonds = slices.Delete(m.Bonds, i, i+1)
	for _, a := range []*Atom{b.Atom1, b.Atom2} {
		if j := slices.Index(a.Bonds, b); j >= 0 {
			a.Bonds = slices.Delete(a.Bonds, j, j+1)
		}
	}
	b.Mol = nil
	return true
}

// FindBond returns the bond joining a1 and a2 or nil.
func (m *Molecule) FindBond(a1, a2 *Atom) *Bond {
	for _, b := range a1.Bonds {
		if b.Other(a1) == a2 {
			return b
		}
	}
	return nil
}

// Index returns the position of a in m, or -1.
func (m *Molecule) Index(a *Atom) int { return slices.Index(m.Atoms, a) }

// Len returns the number of atoms.
func (m *Molecule) Len() int { return len(m.Atoms) }

// Formula returns a Hill-ordered formula such as "C2H6O".
func (m *Molecule) Formula() string {
	counts := map[string]int{}
	for _, a := range m.Atoms {
		counts[a.Symbol]++
	}
	var symbols []string
	for s := range counts {
		symbols = append(symbols, s)
	}
	slices.SortFunc(symbols, func(a, b string) int {
		rank := func(s string) int {
			switch {
			case counts["C"] > 0 && s == "C":
				return 0
			case counts["C"] > 0 && s == "H":
				return 1
			}
			return 2
		}
		if ra, rb := rank(a), rank(b); ra != rb {
			return ra - rb
		}
		return strings.Compare(a, b)
	})
	var sb strings.Builder
	for _, s := range symbols {
		sb.WriteString(s)
		if counts[s] > 1 {
			fmt.Fprint(&sb, counts[s])
		}
	}
	return sb.String()
}

// Validate checks the back pointers between m, its atoms and its bonds.
func (m *Molecule) Validate() error {
	for i, a := range m.Atoms {
		if a == nil || a.Mol != m {
			return fmt.Errorf("%w: atom %d does not point back at the molecule", ErrGraph, i)
		}
	}
	for i, b := range m.Bonds {
		if b == nil || b.Mol != m {
			return fmt.Errorf("%w: bond %d does not point back at the molecule", ErrGraph, i)
		}
		if m.Index(b.Atom1) < 0 || m.Index(b.Atom2) < 0 {
			return fmt.Errorf("%w: bond %d joins atoms outside the molecule", ErrGraph, i)
		}
		if !slices.Contains(b.Atom1.Bonds, b) || !slices.Contains(b.Atom2.Bonds, b) {
			return fmt.Errorf("%w: bond %d is missing from its atoms", ErrGraph, i)
		}
	}
	return nil
}

// Equal compares atoms in order, bonds by atom index, properties and
// lattice.
func (m *Molecule) Equal(o *Molecule) bool {
	if m == nil || o == nil {
		return m == o
	}
	if len(m.Atoms) != len(o.Atoms) || len(m.Bonds) != len(o.Bonds) {
		return false
	}
	if !slices.EqualFunc(m.Atoms, o.Atoms, (*Atom).Equal) {
		return false
	}
	for i, b := range m.Bonds {
		ob := o.Bonds[i]
		if b == nil || ob == nil {
			if b != ob {
				return false
			}
			continue
		}
		if m.Index(b.Atom1) != o.Index(ob.Atom1) || m.Index(b.Atom2) != o.Index(ob.Atom2) ||
			!floatEqual(b.Order, ob.Order) || !propsEqual(b.Properties, ob.Properties) {
			return false
		}
	}
	return propsEqual(m.Properties, o.Properties) && slices.EqualFunc(m.Lattice, o.Lattice, vecEqual)
}

func (m *Molecule) String() string {
	return fmt.Sprintf("Molecule(%s, %d bonds)", m.Formula(), len(m.Bonds))
}

// AsDict returns the molecule with bonds given as 1-based atom indices.
func (m *Molecule) AsDict() map[string]any {
	atoms := make([]any, len(m.Atoms))
	for i, a := range m.Atoms {
		atoms[i] = map[string]any{
			"symbol":     a.Symbol,
			"coords":     []any{a.Coords[0], a.Coords[1], a.Coords[2]},
			"properties": propsDict(a.Properties),
		}
	}
	bonds := make([]any, len(m.Bonds))
	for i, b := range m.Bonds {
		bonds[i] = map[string]any{
			"atom1":      int64(m.Index(b.Atom1) + 1),
			"atom2":      int64(m.Index(b.Atom2) + 1),
			"order":      b.Order,
			"properties": propsDict(b.Properties),
		}
	}
	lattice := make([]any, len(m.Lattice))
	for i, v := range m.Lattice {
		lattice[i] = []any{v[0], v[1], v[2]}
	}
	return map[string]any{
		"Atoms":      atoms,
		"Bonds":      bonds,
		"Properties": propsDict(m.Properties),
		"Lattice":    lattice,
	}
}

// FromDict is the inverse of AsDict.
func FromDict(d map[string]any) (*Molecule, error) {
	m := NewMolecule()
	atoms, _ := d["Atoms"].([]any)
	for i, item := range atoms {
		ad, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: atom %d is %T", ErrGraph, i, item)
		}
		sym, _ := ad["symbol"].(string)
		coords, err := vec(ad["coords"])
		if err != nil {
			return nil, fmt.Errorf("atom %d: %w", i, err)
		}
		a, err := NewAtom(sym, coords)
		if err != nil {
			return nil, fmt.Errorf("atom %d: %w", i, err)
		}
		if a.Properties, err = propsFrom(ad["properties"]); err != nil {
			return nil, fmt.Errorf("atom %d: %w", i, err)
		}
		if err := m.AddAtom(a); err != nil {
			return nil, err
		}
	}
	bonds, _ := d["Bonds"].([]any)
	for i, item := range bonds {
		bd, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: bond %d is %T", ErrGraph, i, item)
		}
		i1, ok1 := index(bd["atom1"], len(m.Atoms))
		i2, ok2 := index(bd["atom2"], len(m.Atoms))
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: bond %d has atoms %v and %v", ErrGraph, i, bd["atom1"], bd["atom2"])
		}
		order, ok := toFloat(bd["order"])
		if !ok {
			order = 1
		}
		b, err := m.AddBond(m.Atoms[i1], m.Atoms[i2], order)
		if err != nil {
			return nil, fmt.Errorf("bond %d: %w", i, err)
		}
		if b.Properties, err = propsFrom(bd["properties"]); err != nil {
			return nil, fmt.Errorf("bond %d: %w", i, err)
		}
	}
	var err error
	if m.Properties, err = propsFrom(d["Properties"]); err != nil {
		return nil, err
	}
	lattice, _ := d["Lattice"].([]any)
	for i, item := range lattice {
		v, err := vec(item)
		if err != nil {
			return nil, fmt.Errorf("lattice %d: %w", i, err)
		}
		m.Lattice = append(m.Lattice, v)
	}
	return m, nil
}

func index(v any, n int) (int, bool) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) || f < 1 || int(f) > n {
		return 0, false
	}
	return int(f) - 1, true
}

func propsDict(s *settings.Settings) map[string]any {
	if s == nil {
		return map[string]any{}
	}
	return s.AsDict()
}

func propsFrom(v any) (*settings.Settings, error) {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, nil
	}
	return settings.FromMap(m)
}

// propsEqual treats nil and empty properties as equal.
func propsEqual(a, b *settings.Settings) bool {
	if a == nil || a.Len() == 0 {
		return b == nil || b.Len() == 0
	}
	return a.Equal(b)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	}
	return 0, false
}

func vec(v any) ([3]float64, error) {
	list, ok := v.([]any)
	if !ok || len(list) != 3 {
		return [3]float64{}, fmt.Errorf("%w: coordinates %v", ErrGraph, v)
	}
	var out [3]float64
	for i, item := range list {
		f, ok := toFloat(item)
		if !ok {
			return [3]float64{}, fmt.Errorf("%w: coordinate %v", ErrGraph, item)
		}
		out[i] = f
	}
	return out, nil
}

func floatEqual(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

func vecEqual(a, b [3]float64) bool {
	return floatEqual(a[0], b[0]) && floatEqual(a[1], b[1]) && floatEqual(a[2], b[2])
}
