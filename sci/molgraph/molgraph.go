// Package molgraph is a small molecular graph with conformers that reads
// and writes the CommonChem JSON interchange format.
package molgraph

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/tidwall/gjson"
)

// Version is the CommonChem version written by ToJSON.
const Version = 10

var (
	ErrGraph  = errors.New("molgraph: invalid graph")
	ErrFormat = errors.New("molgraph: invalid interchange document")
)

// Atom is one vertex of the graph.
type Atom struct {
	Z          int
	Charge     int
	ImplicitHs int
	Isotope    int
	Radicals   int
}

// Bond joins two atoms by index.
type Bond struct {
	Begin, End int
	Order      int
}

// Conformer holds one coordinate per atom.
type Conformer struct {
	Dim    int
	Coords [][3]float64
}

// Mol is a molecular graph.
type Mol struct {
	name       string
	atoms      []Atom
	bonds      []Bond
	conformers []Conformer
	props      map[string]string
}

// New returns an empty molecule.
func New(name string) *Mol {
	return &Mol{name: name}
}

// Name returns the molecule name.
func (m *Mol) Name() string { return m.name }

// AddAtom appends a and returns its index.
func (m *Mol) AddAtom(a Atom) (int, error) {
	if a.Z < 0 || a.ImplicitHs < 0 || a.Radicals < 0 {
		return 0, fmt.Errorf("%w: atom %+v", ErrGraph, a)
	}
	if len(m.conformers) > 0 {
		return 0, fmt.Errorf("%w: cannot add atoms once conformers exist", ErrGraph)
	}
	m.atoms = append(m.atoms, a)
	return len(m.atoms) - 1, nil
}

// AddBond joins atoms begin and end. Self bonds and duplicates are
// rejected.
func (m *Mol) AddBond(begin, end, order int) error {
	n := len(m.atoms)
	if begin < 0 || end < 0 || begin >= n || end >= n || begin == end {
		return fmt.Errorf("%w: bond %d-%d with %d atoms", ErrGraph, begin, end, n)
	}
	if order < 0 {
		return fmt.Errorf("%w: bond order %d", ErrGraph, order)
	}
	if m.BondBetween(begin, end) >= 0 {
		return fmt.Errorf("%w: duplicate bond %d-%d", ErrGraph, begin, end)
	}
	m.bonds = append(m.bonds, Bond{Begin: begin, End: end, Order: order})
	return nil
}

// AddConformer appends 3D coordinates, one per atom.
func (m *Mol) AddConformer(coords [][3]float64) error {
	if len(coords) != len(m.atoms) {
		return fmt.Errorf("%w: %d coordinates for %d atoms", ErrGraph, len(coords), len(m.atoms))
	}
	m.conformers = append(m.conformers, Conformer{Dim: 3, Coords: slices.Clone(coords)})
	return nil
}

// SetProp sets a string property.
func (m *Mol) SetProp(key, value string) {
	if m.props == nil {
		m.props = map[string]string{}
	}
	m.props[key] = value
}

// Prop returns a property and whether it is set.
func (m *Mol) Prop(key string) (string, bool) {
	v, ok := m.props[key]
	return v, ok
}

// NumAtoms returns the number of atoms.
func (m *Mol) NumAtoms() int { return len(m.atoms) }

// Atoms returns a copy of the atoms.
func (m *Mol) Atoms() []Atom { return slices.Clone(m.atoms) }

// Bonds returns a copy of the bonds.
func (m *Mol) Bonds() []Bond { return slices.Clone(m.bonds) }

// Conformers returns the number of conformers.
func (m *Mol) Conformers() int { return len(m.conformers) }

// Positions returns the coordinates of conformer i.
func (m *Mol) Positions(i int) [][3]float64 {
	if i < 0 || i >= len(m.conformers) {
		return nil
	}
	return slices.Clone(m.conformers[i].Coords)
}

// BondBetween returns the index of the bond joining a and b, or -1.
func (m *Mol) BondBetween(a, b int) int {
	return slices.IndexFunc(m.bonds, func(bd Bond) bool {
		return (bd.Begin == a && bd.End == b) || (bd.Begin == b && bd.End == a)
	})
}

// Degree returns the number of bonds on atom i.
func (m *Mol) Degree(i int) int {
	n := 0
	for _, b := range m.bonds {
		if b.Begin == i || b.End == i {
			n++
		}
	}
	return n
}

// Equal compares atoms, bonds, conformers and properties in order.
func (m *Mol) Equal(o *Mol) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.name != o.name || !slices.Equal(m.atoms, o.atoms) || !slices.Equal(m.bonds, o.bonds) {
		return false
	}
	if !maps.Equal(m.props, o.props) {
		return false
	}
	return slices.EqualFunc(m.conformers, o.conformers, func(a, b Conformer) bool {
		return a.Dim == b.Dim && slices.EqualFunc(a.Coords, b.Coords, func(x, y [3]float64) bool {
			for i := range 3 {
				if x[i] != y[i] && !(math.IsNaN(x[i]) && math.IsNaN(y[i])) {
					return false
				}
			}
			return true
		})
	})
}

func (m *Mol) String() string {
	return fmt.Sprintf("Mol(%q, %d atoms, %d bonds)", m.name, len(m.atoms), len(m.bonds))
}

// default atom and bond fields, omitted from the written document
var (
	defaultAtom = map[string]any{"z": 6, "impHs": 0, "chg": 0, "nRad": 0, "isotope": 0, "stereo": "unspecified"}
	defaultBond = map[string]any{"bo": 1, "stereo": "unspecified"}
)

// Document returns the interchange document of ms as a plain tree.
func Document(ms ...*Mol) map[string]any {
	mols := make([]any, len(ms))
	for i, m := range ms {
		mols[i] = m.document()
	}
	return map[string]any{
		"commonchem": map[string]any{"version": Version},
		"defaults":   map[string]any{"atom": maps.Clone(defaultAtom), "bond": maps.Clone(defaultBond)},
		"molecules":  mols,
	}
}

func (m *Mol) document() map[string]any {
	atoms := make([]any, len(m.atoms))
	for i, a := range m.atoms {
		d := map[string]any{}
		if a.Z != 6 {
			d["z"] = a.Z
		}
		if a.ImplicitHs != 0 {
			d["impHs"] = a.ImplicitHs
		}
		if a.Charge != 0 {
			d["chg"] = a.Charge
		}
		if a.Radicals != 0 {
			d["nRad"] = a.Radicals
		}
		if a.Isotope != 0 {
			d["isotope"] = a.Isotope
		}
		atoms[i] = d
	}
	bonds := make([]any, len(m.bonds))
	for i, b := range m.bonds {
		d := map[string]any{"atoms": []any{b.Begin, b.End}}
		if b.Order != 1 {
			d["bo"] = b.Order
		}
		bonds[i] = d
	}
	out := map[string]any{"name": m.name, "atoms": atoms, "bonds": bonds}
	if len(m.conformers) > 0 {
		confs := make([]any, len(m.conformers))
		for i, c := range m.conformers {
			coords := make([]any, len(c.Coords))
			for j, xyz := range c.Coords {
				coords[j] = []any{xyz[0], xyz[1], xyz[2]}
			}
			confs[i] = map[string]any{"dim": c.Dim, "coords": coords}
		}
		out["conformers"] = confs
	}
	if len(m.props) > 0 {
		props := make(map[string]any, len(m.props))
		for k, v := range m.props {
			props[k] = v
		}
		out["properties"] = props
	}
	return out
}

// ToJSON writes ms as one interchange document.
func ToJSON(ms ...*Mol) ([]byte, error) {
	for _, m := range ms {
		for _, c := range m.conformers {
			for _, xyz := range c.Coords {
				for _, x := range xyz {
					if math.IsNaN(x) || math.IsInf(x, 0) {
						return nil, fmt.Errorf("%w: non-finite coordinate in %s", ErrGraph, m.name)
					}
				}
			}
		}
	}
	return json.Marshal(Document(ms...))
}

// FromJSON reads every molecule of an interchange document.
func FromJSON(data []byte) ([]*Mol, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: not JSON", ErrFormat)
	}
	doc := gjson.ParseBytes(data)
	if v := doc.Get("commonchem.version"); !v.Exists() {
		return nil, fmt.Errorf("%w: missing commonchem.version", ErrFormat)
	} else if v.Int() > Version {
		return nil, fmt.Errorf("%w: version %d is newer than %d", ErrFormat, v.Int(), Version)
	}
	atomDefault := func(field string) gjson.Result {
		if v := doc.Get("defaults.atom." + field); v.Exists() {
			return v
		}
		return gjson.Parse(fmt.Sprint(defaultAtom[field]))
	}
	bondOrder := doc.Get("defaults.bond.bo")
	if !bondOrder.Exists() {
		bondOrder = gjson.Parse("1")
	}

	var (
		out []*Mol
		err error
	)
	doc.Get("molecules").ForEach(func(_, mv gjson.Result) bool {
		var m *Mol
		if m, err = readMol(mv, atomDefault, bondOrder); err != nil {
			return false
		}
		out = append(out, m)
		return true
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no molecules", ErrFormat)
	}
	return out, nil
}

func readMol(mv gjson.Result, atomDefault func(string) gjson.Result, bondOrder gjson.Result) (*Mol, error) {
	m := New(mv.Get("name").String())
	field := func(a gjson.Result, name string) int {
		if v := a.Get(name); v.Exists() {
			return int(v.Int())
		}
		return int(atomDefault(name).Int())
	}
	for _, a := range mv.Get("atoms").Array() {
		if !a.IsObject() {
			return nil, fmt.Errorf("%w: atom is %s", ErrFormat, a.Type)
		}
		atom := Atom{
			Z:          field(a, "z"),
			Charge:     field(a, "chg"),
			ImplicitHs: field(a, "impHs"),
			Isotope:    field(a, "isotope"),
			Radicals:   field(a, "nRad"),
		}
		if _, err := m.AddAtom(atom); err != nil {
			return nil, err
		}
	}
	for _, b := range mv.Get("bonds").Array() {
		ends := b.Get("atoms").Array()
		if len(ends) != 2 {
			return nil, fmt.Errorf("%w: bond with %d atoms", ErrFormat, len(ends))
		}
		order := bondOrder
		if v := b.Get("bo"); v.Exists() {
			order = v
		}
		if err := m.AddBond(int(ends[0].Int()), int(ends[1].Int()), int(order.Int())); err != nil {
			return nil, err
		}
	}
	for _, c := range mv.Get("conformers").Array() {
		if dim := c.Get("dim").Int(); dim != 0 && dim != 3 {
			return nil, fmt.Errorf("%w: %d-dimensional conformer", ErrFormat, dim)
		}
		rows := c.Get("coords").Array()
		coords := make([][3]float64, len(rows))
		for i, row := range rows {
			xyz := row.Array()
			if len(xyz) != 3 {
				return nil, fmt.Errorf("%w: coordinate with %d components", ErrFormat, len(xyz))
			}
			coords[i] = [3]float64{xyz[0].Float(), xyz[1].Float(), xyz[2].Float()}
		}
		if err := m.AddConformer(coords); err != nil {
			return nil, err
		}
	}
	mv.Get("properties").ForEach(func(k, v gjson.Result) bool {
		m.SetProp(k.String(), v.String())
		return true
	})
	return m, nil
}
