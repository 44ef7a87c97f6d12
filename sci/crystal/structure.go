package crystal

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/bft-labs/scistore/sci/element"
)

// Structure is a set of periodic sites sharing one lattice.
type Structure struct {
	lattice    *Lattice
	sites      []*PeriodicSite
	charge     float64
	properties map[string]any
}

// NewStructure places one ordered species per coordinate. Coordinates are
// fractional unless cartesian is set.
func NewStructure(lattice *Lattice, symbols []string, coords [][3]float64, cartesian bool) (*Structure, error) {
	if len(symbols) != len(coords) {
		return nil, fmt.Errorf("crystal: %d species for %d coordinates", len(symbols), len(coords))
	}
	species := make([]Species, len(symbols))
	for i, sym := range symbols {
		sp, err := Single(sym)
		if err != nil {
			return nil, err
		}
		species[i] = sp
	}
	return NewDisorderedStructure(lattice, species, coords, cartesian)
}

// NewDisorderedStructure is NewStructure with explicit occupancies.
func NewDisorderedStructure(lattice *Lattice, species []Species, coords [][3]float64, cartesian bool) (*Structure, error) {
	if lattice == nil {
		return nil, fmt.Errorf("crystal: structure without lattice")
	}
	if len(species) != len(coords) {
		return nil, fmt.Errorf("crystal: %d species for %d coordinates", len(species), len(coords))
	}
	s := &Structure{lattice: lattice, sites: make([]*PeriodicSite, len(coords))}
	for i, c := range coords {
		var (
			site *PeriodicSite
			err  error
		)
		if cartesian {
			site, err = NewPeriodicSiteCartesian(species[i], c, lattice)
		} else {
			site, err = NewPeriodicSite(species[i], c, lattice)
		}
		if err != nil {
			return nil, fmt.Errorf("site %d: %w", i, err)
		}
		s.sites[i] = site
	}
	return s, nil
}

// Lattice returns the shared lattice.
func (s *Structure) Lattice() *Lattice { return s.lattice }

// Len returns the number of sites.
func (s *Structure) Len() int { return len(s.sites) }

// Site returns site i.
func (s *Structure) Site(i int) *PeriodicSite { return s.sites[i] }

// Sites returns the sites in order.
func (s *Structure) Sites() []*PeriodicSite { return slices.Clone(s.sites) }

// FracCoords returns the fractional coordinates of every site.
func (s *Structure) FracCoords() [][3]float64 {
	out := make([][3]float64, len(s.sites))
	for i, site := range s.sites {
		out[i] = site.frac
	}
	return out
}

// Charge returns the total charge.
func (s *Structure) Charge() float64 { return s.charge }

// SetCharge sets the total charge.
func (s *Structure) SetCharge(q float64) { s.charge = q }

// Properties returns a copy of the structure properties.
func (s *Structure) Properties() map[string]any { return plainProps(s.properties) }

// SetProperty sets one structure property.
func (s *Structure) SetProperty(key string, v any) {
	if s.properties == nil {
		s.properties = map[string]any{}
	}
	s.properties[key] = plain(v)
}

// Formula returns the composition in order of first appearance, e.g. "Al4"
// or "Fe0.5 Ni0.5".
func (s *Structure) Formula() string {
	return formula(func(yield func(Species)) {
		for _, site := range s.sites {
			yield(site.species)
		}
	})
}

func formula(each func(func(Species))) string {
	var order []string
	amounts := map[string]float64{}
	each(func(sp Species) {
		for _, x := range sp {
			if _, ok := amounts[x.Element]; !ok {
				order = append(order, x.Element)
			}
			amounts[x.Element] += x.Occu
		}
	})
	parts := make([]string, len(order))
	for i, el := range order {
		parts[i] = el + strconv.FormatFloat(amounts[el], 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

// Density returns the mass density proxy: total atomic number per volume.
func (s *Structure) Density() float64 {
	total := 0.0
	for _, site := range s.sites {
		for _, sp := range site.species {
			z, _ := element.Number(sp.Element)
			total += float64(z) * sp.Occu
		}
	}
	return total / s.lattice.Volume()
}

// Equal compares lattice, charge, properties and sites in order.
func (s *Structure) Equal(o *Structure) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.sites) != len(o.sites) || !s.lattice.Equal(o.lattice) || !floatEqual(s.charge, o.charge) {
		return false
	}
	if !treeEqual(plainProps(s.properties), plainProps(o.properties)) {
		return false
	}
	return slices.EqualFunc(s.sites, o.sites, (*PeriodicSite).Equal)
}

func (s *Structure) String() string {
	return fmt.Sprintf("Structure(%s, %s)", s.Formula(), s.lattice)
}

// AsDict returns the lattice and the sites without repeating the lattice.
func (s *Structure) AsDict() map[string]any {
	d := header("pymatgen.core.structure", "Structure")
	d["lattice"] = s.lattice.AsDict()
	d["charge"] = s.charge
	d["properties"] = plainProps(s.properties)
	sites := make([]any, len(s.sites))
	for i, site := range s.sites {
		sites[i] = site.dict(false)
	}
	d["sites"] = sites
	return d
}

// StructureFromDict is the inverse of AsDict.
func StructureFromDict(d map[string]any) (*Structure, error) {
	if err := checkClass(d, "Structure"); err != nil {
		return nil, err
	}
	lm, err := asMap(d["lattice"], "lattice")
	if err != nil {
		return nil, err
	}
	lattice, err := LatticeFromDict(lm)
	if err != nil {
		return nil, err
	}
	list, err := asList(d["sites"], "sites")
	if err != nil {
		return nil, err
	}
	s := &Structure{lattice: lattice, sites: make([]*PeriodicSite, len(list))}
	for i, item := range list {
		sd, err := asMap(item, fmt.Sprintf("sites[%d]", i))
		if err != nil {
			return nil, err
		}
		if s.sites[i], err = periodicSiteFromDict(sd, lattice, false); err != nil {
			return nil, fmt.Errorf("site %d: %w", i, err)
		}
	}
	if s.charge, err = optFloat(d, "charge"); err != nil {
		return nil, err
	}
	if raw, ok := d["properties"].(map[string]any); ok && len(raw) > 0 {
		s.properties = cloneProps(raw)
	}
	return s, nil
}

// Molecule is a set of non-periodic sites.
type Molecule struct {
	sites            []Site
	charge           float64
	spinMultiplicity int
}

// NewMolecule builds a neutral molecule with the lowest spin multiplicity
// compatible with its electron count.
func NewMolecule(symbols []string, coords [][3]float64) (*Molecule, error) {
	return NewChargedMolecule(symbols, coords, 0, 0)
}

// NewChargedMolecule builds a molecule with a charge. A zero spin
// multiplicity selects the default.
func NewChargedMolecule(symbols []string, coords [][3]float64, charge float64, spin int) (*Molecule, error) {
	if len(symbols) != len(coords) {
		return nil, fmt.Errorf("crystal: %d species for %d coordinates", len(symbols), len(coords))
	}
	m := &Molecule{sites: make([]Site, len(symbols)), charge: charge}
	for i, sym := range symbols {
		sp, err := Single(sym)
		if err != nil {
			return nil, err
		}
		m.sites[i] = Site{Species: sp, Coords: coords[i]}
	}
	if err := m.setSpin(spin); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Molecule) electrons() float64 {
	n := -m.charge
	for _, s := range m.sites {
		for _, sp := range s.Species {
			z, _ := element.Number(sp.Element)
			n += float64(z) * sp.Occu
		}
	}
	return n
}

func (m *Molecule) setSpin(spin int) error {
	odd := int(math.Round(m.electrons()))%2 == 1
	if spin == 0 {
		spin = 1
		if odd {
			spin = 2
		}
	}
	if odd == (spin%2 == 1) {
		return fmt.Errorf("crystal: charge %g and spin multiplicity %d are incompatible", m.charge, spin)
	}
	m.spinMultiplicity = spin
	return nil
}

// Len returns the number of sites.
func (m *Molecule) Len() int { return len(m.sites) }

// Sites returns a copy of the sites.
func (m *Molecule) Sites() []Site { return slices.Clone(m.sites) }

// CartCoords returns the coordinates of every site.
func (m *Molecule) CartCoords() [][3]float64 {
	out := make([][3]float64, len(m.sites))
	for i, s := range m.sites {
		out[i] = s.Coords
	}
	return out
}

// Charge returns the total charge.
func (m *Molecule) Charge() float64 { return m.charge }

// SpinMultiplicity returns 2S+1.
func (m *Molecule) SpinMultiplicity() int { return m.spinMultiplicity }

// Formula returns the composition in order of first appearance.
func (m *Molecule) Formula() string {
	return formula(func(yield func(Species)) {
		for _, s := range m.sites {
			yield(s.Species)
		}
	})
}

// Equal compares charge, spin and sites in order.
func (m *Molecule) Equal(o *Molecule) bool {
	if m == nil || o == nil {
		return m == o
	}
	return floatEqual(m.charge, o.charge) && m.spinMultiplicity == o.spinMultiplicity &&
		slices.EqualFunc(m.sites, o.sites, Site.equal)
}

func (m *Molecule) String() string { return fmt.Sprintf("Molecule(%s)", m.Formula()) }

// AsDict returns charge, spin multiplicity and sites.
func (m *Molecule) AsDict() map[string]any {
	d := header("pymatgen.core.structure", "Molecule")
	d["charge"] = m.charge
	d["spin_multiplicity"] = int64(m.spinMultiplicity)
	d["properties"] = map[string]any{}
	sites := make([]any, len(m.sites))
	for i, s := range m.sites {
		sites[i] = s.asDict()
	}
	d["sites"] = sites
	return d
}

// MoleculeFromDict is the inverse of AsDict.
func MoleculeFromDict(d map[string]any) (*Molecule, error) {
	if err := checkClass(d, "Molecule"); err != nil {
		return nil, err
	}
	list, err := asList(d["sites"], "sites")
	if err != nil {
		return nil, err
	}
	m := &Molecule{sites: make([]Site, len(list))}
	for i, item := range list {
		sd, err := asMap(item, fmt.Sprintf("sites[%d]", i))
		if err != nil {
			return nil, err
		}
		if m.sites[i], err = siteFromDict(sd); err != nil {
			return nil, fmt.Errorf("site %d: %w", i, err)
		}
	}
	if m.charge, err = optFloat(d, "charge"); err != nil {
		return nil, err
	}
	spin, err := optFloat(d, "spin_multiplicity")
	if err != nil {
		return nil, err
	}
	if err := m.setSpin(int(spin)); err != nil {
		return nil, err
	}
	return m, nil
}
