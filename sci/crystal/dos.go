package crystal

import (
	"fmt"
	"maps"
	"slices"
)

// Dos is a density of states on an energy grid.
type Dos struct {
	efermi    float64
	energies  []float64
	densities map[Spin][]float64
}

// NewDos validates that every channel matches the energy grid.
func NewDos(efermi float64, energies []float64, densities map[Spin][]float64) (*Dos, error) {
	if len(densities) == 0 {
		return nil, fmt.Errorf("crystal: dos without densities")
	}
	d := &Dos{efermi: efermi, energies: slices.Clone(energies), densities: make(map[Spin][]float64, len(densities))}
	for spin, rho := range densities {
		if spin != SpinUp && spin != SpinDown {
			return nil, fmt.Errorf("crystal: invalid %s", spin)
		}
		if len(rho) != len(energies) {
			return nil, fmt.Errorf("crystal: %s has %d densities for %d energies", spin, len(rho), len(energies))
		}
		d.densities[spin] = slices.Clone(rho)
	}
	return d, nil
}

// Efermi returns the Fermi level.
func (d *Dos) Efermi() float64 { return d.efermi }

// Energies returns the energy grid.
func (d *Dos) Energies() []float64 { return slices.Clone(d.energies) }

// Densities returns one channel, or the sum over channels for spin 0.
func (d *Dos) Densities(spin Spin) []float64 {
	if spin != 0 {
		return slices.Clone(d.densities[spin])
	}
	out := make([]float64, len(d.energies))
	for _, rho := range d.densities {
		for i, x := range rho {
			out[i] += x
		}
	}
	return out
}

// CbmVbm locates the gap around the Fermi level: densities at or below tol
// count as empty. Unless absTol is set, tol is relative to the mean
// density. spin 0 uses the summed channels.
func (d *Dos) CbmVbm(tol float64, absTol bool, spin Spin) (cbm, vbm float64, err error) {
	if len(d.energies) == 0 {
		return 0, 0, fmt.Errorf("crystal: empty dos")
	}
	tdos := d.Densities(spin)
	if !absTol {
		sum := 0.0
		for _, x := range tdos {
			sum += x
		}
		tol = tol * sum / float64(len(tdos))
	}
	iFermi := 0
	for iFermi < len(d.energies) && d.energies[iFermi] <= d.efermi {
		iFermi++
	}
	start := iFermi
	for start-1 >= 0 && tdos[start-1] <= tol {
		start--
	}
	end := start
	for end < len(d.energies) && tdos[end] <= tol {
		end++
	}
	end--
	if end >= len(d.energies) || start >= len(d.energies) || end < 0 {
		return 0, 0, fmt.Errorf("crystal: no band edges around the Fermi level")
	}
	return d.energies[end], d.energies[start], nil
}

// Gap returns max(cbm - vbm, 0).
func (d *Dos) Gap(tol float64, absTol bool, spin Spin) (float64, error) {
	cbm, vbm, err := d.CbmVbm(tol, absTol, spin)
	if err != nil {
		return 0, err
	}
	return max(cbm-vbm, 0), nil
}

// Equal compares grid, Fermi level and channels.
func (d *Dos) Equal(o *Dos) bool {
	if d == nil || o == nil {
		return d == o
	}
	return floatEqual(d.efermi, o.efermi) && floatsEqual(d.energies, o.energies) &&
		maps.EqualFunc(d.densities, o.densities, floatsEqual)
}

func (d *Dos) dict(class string) map[string]any {
	out := header("pymatgen.electronic_structure.dos", class)
	out["efermi"] = d.efermi
	out["energies"] = floatList(d.energies)
	out["densities"] = densityDict(d.densities)
	return out
}

func densityDict(m map[Spin][]float64) map[string]any {
	out := make(map[string]any, len(m))
	for spin, rho := range m {
		out[spin.key()] = floatList(rho)
	}
	return out
}

func densitiesFromDict(v any, what string) (map[Spin][]float64, error) {
	raw, err := asMap(v, what)
	if err != nil {
		return nil, err
	}
	out := make(map[Spin][]float64, len(raw))
	for key, item := range raw {
		spin, err := parseSpin(key)
		if err != nil {
			return nil, err
		}
		if out[spin], err = asFloats(item, what+"."+key); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AsDict returns the grid and channels.
func (d *Dos) AsDict() map[string]any { return d.dict("Dos") }

// DosFromDict is the inverse of AsDict.
func DosFromDict(m map[string]any) (*Dos, error) {
	if err := checkClass(m, "Dos"); err != nil {
		return nil, err
	}
	return dosFromDict(m)
}

func dosFromDict(m map[string]any) (*Dos, error) {
	efermi, err := floatField(m, "efermi")
	if err != nil {
		return nil, err
	}
	energies, err := asFloats(m["energies"], "energies")
	if err != nil {
		return nil, err
	}
	densities, err := densitiesFromDict(m["densities"], "densities")
	if err != nil {
		return nil, err
	}
	return NewDos(efermi, energies, densities)
}

// CompleteDos is a total density of states with site and orbital
// projections for a structure.
type CompleteDos struct {
	Dos
	structure *Structure
	pdos      []map[string]map[Spin][]float64
}

// NewCompleteDos attaches per-site orbital projections to total. pdos may
// be nil; otherwise it has one entry per site.
func NewCompleteDos(structure *Structure, total *Dos, pdos []map[string]map[Spin][]float64) (*CompleteDos, error) {
	if structure == nil || total == nil {
		return nil, fmt.Errorf("crystal: complete dos needs a structure and a total dos")
	}
	if pdos != nil && len(pdos) != structure.Len() {
		return nil, fmt.Errorf("crystal: %d projected sites for %d sites", len(pdos), structure.Len())
	}
	cd := &CompleteDos{Dos: *total, structure: structure}
	if pdos != nil {
		cd.pdos = make([]map[string]map[Spin][]float64, len(pdos))
	}
	for i, orbitals := range pdos {
		cd.pdos[i] = make(map[string]map[Spin][]float64, len(orbitals))
		for orb, channels := range orbitals {
			for spin, rho := range channels {
				if len(rho) != len(total.energies) {
					return nil, fmt.Errorf("crystal: site %d orbital %s %s has %d densities for %d energies",
						i, orb, spin, len(rho), len(total.energies))
				}
			}
			cd.pdos[i][orb] = maps.Clone(channels)
		}
	}
	return cd, nil
}

// Structure returns the structure.
func (cd *CompleteDos) Structure() *Structure { return cd.structure }

// SiteDos returns the orbital projections of site i.
func (cd *CompleteDos) SiteDos(i int) map[string]map[Spin][]float64 {
	if i < 0 || i >= len(cd.pdos) {
		return nil
	}
	return maps.Clone(cd.pdos[i])
}

// Equal checks structure and Fermi level, then band edges, then arrays.
func (cd *CompleteDos) Equal(o *CompleteDos) bool {
	if cd == nil || o == nil {
		return cd == o
	}
	if !cd.structure.Equal(o.structure) || !floatEqual(cd.efermi, o.efermi) {
		return false
	}
	c1, v1, err1 := cd.CbmVbm(0.001, false, 0)
	c2, v2, err2 := o.CbmVbm(0.001, false, 0)
	if (err1 == nil) != (err2 == nil) || !floatEqual(c1, c2) || !floatEqual(v1, v2) {
		return false
	}
	if !cd.Dos.Equal(&o.Dos) || len(cd.pdos) != len(o.pdos) {
		return false
	}
	for i := range cd.pdos {
		if !maps.EqualFunc(cd.pdos[i], o.pdos[i], func(a, b map[Spin][]float64) bool {
			return maps.EqualFunc(a, b, floatsEqual)
		}) {
			return false
		}
	}
	return true
}

func (cd *CompleteDos) String() string {
	return fmt.Sprintf("CompleteDos(%s, %d energies)", cd.structure.Formula(), len(cd.energies))
}

// AsDict returns the total dos, the structure and the projections.
func (cd *CompleteDos) AsDict() map[string]any {
	d := cd.dict("CompleteDos")
	d["structure"] = cd.structure.AsDict()
	pdos := make([]any, len(cd.pdos))
	for i, orbitals := range cd.pdos {
		site := make(map[string]any, len(orbitals))
		for orb, channels := range orbitals {
			site[orb] = map[string]any{"densities": densityDict(channels)}
		}
		pdos[i] = site
	}
	d["pdos"] = pdos
	return d
}

// CompleteDosFromDict is the inverse of AsDict.
func CompleteDosFromDict(d map[string]any) (*CompleteDos, error) {
	if err := checkClass(d, "CompleteDos"); err != nil {
		return nil, err
	}
	total, err := dosFromDict(d)
	if err != nil {
		return nil, err
	}
	sm, err := asMap(d["structure"], "structure")
	if err != nil {
		return nil, err
	}
	structure, err := StructureFromDict(sm)
	if err != nil {
		return nil, err
	}
	var pdos []map[string]map[Spin][]float64
	if raw, ok := d["pdos"]; ok && raw != nil {
		list, err := asList(raw, "pdos")
		if err != nil {
			return nil, err
		}
		if len(list) > 0 {
			pdos = make([]map[string]map[Spin][]float64, len(list))
		}
		for i, item := range list {
			site, err := asMap(item, fmt.Sprintf("pdos[%d]", i))
			if err != nil {
				return nil, err
			}
			pdos[i] = make(map[string]map[Spin][]float64, len(site))
			for orb, v := range site {
				om, err := asMap(v, "pdos."+orb)
				if err != nil {
					return nil, err
				}
				if pdos[i][orb], err = densitiesFromDict(om["densities"], "pdos."+orb+".densities"); err != nil {
					return nil, err
				}
			}
		}
	}
	return NewCompleteDos(structure, total, pdos)
}
