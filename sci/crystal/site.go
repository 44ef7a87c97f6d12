package crystal

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/bft-labs/scistore/sci/element"
)

// Specie is one element occupying a site with a fractional occupancy.
type Specie struct {
	Element string
	Occu    float64
}

// Species is the occupancy list of a site, kept sorted by element.
type Species []Specie

// NewSpecies validates symbols and occupancies. Repeated elements are
// merged.
func NewSpecies(occ map[string]float64) (Species, error) {
	if len(occ) == 0 {
		return nil, fmt.Errorf("crystal: site without species")
	}
	total := 0.0
	out := make(Species, 0, len(occ))
	for sym, occu := range occ {
		z, err := element.Number(sym)
		if err != nil {
			return nil, fmt.Errorf("crystal: %w", err)
		}
		if occu <= 0 {
			return nil, fmt.Errorf("crystal: occupancy of %s is %g", sym, occu)
		}
		canonical, _ := element.Symbol(z)
		out = append(out, Specie{Element: canonical, Occu: occu})
		total += occu
	}
	if total > 1+1e-8 {
		return nil, fmt.Errorf("crystal: total occupancy %g exceeds 1", total)
	}
	slices.SortFunc(out, func(a, b Specie) int { return cmp.Compare(a.Element, b.Element) })
	merged := out[:1]
	for _, sp := range out[1:] {
		if last := &merged[len(merged)-1]; last.Element == sp.Element {
			last.Occu += sp.Occu
			continue
		}
		merged = append(merged, sp)
	}
	return merged, nil
}

// Single returns a fully occupied site of one element.
func Single(symbol string) (Species, error) {
	return NewSpecies(map[string]float64{symbol: 1})
}

// IsOrdered reports whether the site holds one element at full occupancy.
func (s Species) IsOrdered() bool { return len(s) == 1 && s[0].Occu == 1 }

// Label is the element symbol for an ordered site and a formula otherwise.
func (s Species) Label() string {
	if s.IsOrdered() {
		return s[0].Element
	}
	parts := make([]string, len(s))
	for i, sp := range s {
		parts[i] = fmt.Sprintf("%s:%g", sp.Element, sp.Occu)
	}
	return strings.Join(parts, ", ")
}

// Equal compares element by element.
func (s Species) Equal(o Species) bool {
	return slices.EqualFunc(s, o, func(a, b Specie) bool {
		return a.Element == b.Element && floatEqual(a.Occu, b.Occu)
	})
}

func (s Species) list() []any {
	out := make([]any, len(s))
	for i, sp := range s {
		out[i] = map[string]any{"element": sp.Element, "occu": sp.Occu}
	}
	return out
}

func speciesFromList(v any) (Species, error) {
	list, err := asList(v, "species")
	if err != nil {
		return nil, err
	}
	occ := make(map[string]float64, len(list))
	for i, item := range list {
		m, err := asMap(item, fmt.Sprintf("species[%d]", i))
		if err != nil {
			return nil, err
		}
		sym, err := asString(m["element"], "element")
		if err != nil {
			return nil, err
		}
		occu, err := floatField(m, "occu")
		if err != nil {
			return nil, err
		}
		occ[sym] += occu
	}
	return NewSpecies(occ)
}

// Site is a non-periodic site with Cartesian coordinates.
type Site struct {
	Species    Species
	Coords     [3]float64
	Label      string
	Properties map[string]any
}

func (s Site) equal(o Site) bool {
	return s.Species.Equal(o.Species) && vecEqual(s.Coords, o.Coords) &&
		s.label() == o.label() && treeEqual(plainProps(s.Properties), plainProps(o.Properties))
}

func plainProps(p map[string]any) map[string]any {
	if len(p) == 0 {
		return map[string]any{}
	}
	return cloneProps(p)
}

func (s Site) asDict() map[string]any {
	d := header("pymatgen.core.sites", "Site")
	d["species"] = s.Species.list()
	d["xyz"] = vecList(s.Coords)
	d["label"] = s.label()
	d["properties"] = plainProps(s.Properties)
	return d
}

func (s Site) label() string {
	if s.Label != "" {
		return s.Label
	}
	return s.Species.Label()
}

func siteFromDict(d map[string]any) (Site, error) {
	species, err := speciesFromList(d["species"])
	if err != nil {
		return Site{}, err
	}
	xyz, err := asVec3(d["xyz"], "xyz")
	if err != nil {
		return Site{}, err
	}
	s := Site{Species: species, Coords: xyz}
	if err := readLabelProps(d, species, &s.Label, &s.Properties); err != nil {
		return Site{}, err
	}
	return s, nil
}

// readLabelProps keeps a label only when it differs from the default.
func readLabelProps(d map[string]any, species Species, label *string, props *map[string]any) error {
	if raw, ok := d["label"]; ok && raw != nil {
		l, err := asString(raw, "label")
		if err != nil {
			return err
		}
		if l != species.Label() {
			*label = l
		}
	}
	if raw, ok := d["properties"]; ok && raw != nil {
		m, err := asMap(raw, "properties")
		if err != nil {
			return err
		}
		if len(m) > 0 {
			*props = maps.Clone(m)
		}
	}
	return nil
}

// PeriodicSite is a site in a lattice, stored in fractional coordinates.
type PeriodicSite struct {
	species    Species
	frac       [3]float64
	lattice    *Lattice
	label      string
	properties map[string]any
}

// NewPeriodicSite places species at fractional coordinates frac.
func NewPeriodicSite(species Species, frac [3]float64, lattice *Lattice) (*PeriodicSite, error) {
	if lattice == nil {
		return nil, fmt.Errorf("crystal: periodic site without lattice")
	}
	if len(species) == 0 {
		return nil, fmt.Errorf("crystal: site without species")
	}
	return &PeriodicSite{species: slices.Clone(species), frac: frac, lattice: lattice}, nil
}

// NewPeriodicSiteCartesian places species at Cartesian coordinates.
func NewPeriodicSiteCartesian(species Species, cart [3]float64, lattice *Lattice) (*PeriodicSite, error) {
	if lattice == nil {
		return nil, fmt.Errorf("crystal: periodic site without lattice")
	}
	frac, err := lattice.Fractional(cart)
	if err != nil {
		return nil, err
	}
	return NewPeriodicSite(species, frac, lattice)
}

// Species returns the site occupancy.
func (s *PeriodicSite) Species() Species { return slices.Clone(s.species) }

// Lattice returns the lattice the site lives in.
func (s *PeriodicSite) Lattice() *Lattice { return s.lattice }

// FracCoords returns the fractional coordinates.
func (s *PeriodicSite) FracCoords() [3]float64 { return s.frac }

// A returns the first fractional coordinate.
func (s *PeriodicSite) A() float64 { return s.frac[0] }

// B returns the second fractional coordinate.
func (s *PeriodicSite) B() float64 { return s.frac[1] }

// C returns the third fractional coordinate.
func (s *PeriodicSite) C() float64 { return s.frac[2] }

// Coords returns the Cartesian coordinates.
func (s *PeriodicSite) Coords() [3]float64 { return s.lattice.Cartesian(s.frac) }

// Label returns the explicit label or the species label.
func (s *PeriodicSite) Label() string {
	if s.label != "" {
		return s.label
	}
	return s.species.Label()
}

// SetLabel overrides the species label.
func (s *PeriodicSite) SetLabel(label string) { s.label = label }

// Properties returns a copy of the site properties.
func (s *PeriodicSite) Properties() map[string]any { return plainProps(s.properties) }

// SetProperty sets one site property.
func (s *PeriodicSite) SetProperty(key string, v any) {
	if s.properties == nil {
		s.properties = map[string]any{}
	}
	s.properties[key] = plain(v)
}

// Equal compares species, coordinates, lattice and properties.
func (s *PeriodicSite) Equal(o *PeriodicSite) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.species.Equal(o.species) && vecEqual(s.frac, o.frac) && s.lattice.Equal(o.lattice) &&
		s.Label() == o.Label() && treeEqual(plainProps(s.properties), plainProps(o.properties))
}

func (s *PeriodicSite) String() string {
	return fmt.Sprintf("PeriodicSite(%s %v)", s.Label(), s.frac)
}

func (s *PeriodicSite) dict(withLattice bool) map[string]any {
	d := header("pymatgen.core.sites", "PeriodicSite")
	d["species"] = s.species.list()
	d["abc"] = vecList(s.frac)
	d["xyz"] = vecList(s.Coords())
	d["label"] = s.Label()
	d["properties"] = plainProps(s.properties)
	if withLattice {
		d["lattice"] = s.lattice.AsDict()
	}
	return d
}

// AsDict includes the lattice.
func (s *PeriodicSite) AsDict() map[string]any { return s.dict(true) }

// PeriodicSiteFromDict reads a site. When d has no lattice, lattice is
// used.
func PeriodicSiteFromDict(d map[string]any, lattice *Lattice) (*PeriodicSite, error) {
	return periodicSiteFromDict(d, lattice, true)
}

// periodicSiteFromDict ignores an embedded lattice unless own is set, so
// the sites of a structure share its lattice.
func periodicSiteFromDict(d map[string]any, lattice *Lattice, own bool) (*PeriodicSite, error) {
	if err := checkClass(d, "PeriodicSite"); err != nil {
		return nil, err
	}
	if raw, ok := d["lattice"]; ok && own {
		m, err := asMap(raw, "lattice")
		if err != nil {
			return nil, err
		}
		if lattice, err = LatticeFromDict(m); err != nil {
			return nil, err
		}
	}
	species, err := speciesFromList(d["species"])
	if err != nil {
		return nil, err
	}
	abc, err := asVec3(d["abc"], "abc")
	if err != nil {
		return nil, err
	}
	s, err := NewPeriodicSite(species, abc, lattice)
	if err != nil {
		return nil, err
	}
	if err := readLabelProps(d, species, &s.label, &s.properties); err != nil {
		return nil, err
	}
	return s, nil
}
