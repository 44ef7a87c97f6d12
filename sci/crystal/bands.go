package crystal

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
	"strconv"

	"github.com/bft-labs/scistore/sci/ndarray"
)

// Spin labels a spin channel.
type Spin int

const (
	SpinUp   Spin = 1
	SpinDown Spin = -1
)

func (s Spin) String() string {
	switch s {
	case SpinUp:
		return "up"
	case SpinDown:
		return "down"
	default:
		return "Spin(" + strconv.Itoa(int(s)) + ")"
	}
}

// key is the dict key of a spin channel, "1" or "-1".
func (s Spin) key() string { return strconv.Itoa(int(s)) }

func parseSpin(key string) (Spin, error) {
	switch key {
	case "1", "up", "Spin.up":
		return SpinUp, nil
	case "-1", "down", "Spin.down":
		return SpinDown, nil
	}
	return 0, fmt.Errorf("%w: spin %q", ErrDict, key)
}

func spins[V any](m map[Spin]V) []Spin {
	out := slices.Collect(maps.Keys(m))
	slices.Sort(out)
	slices.Reverse(out)
	return out
}

// BandStructure holds band energies along a list of k-points.
type BandStructure struct {
	kpoints     [][3]float64
	lattice     *Lattice
	efermi      float64
	bands       map[Spin][][]float64
	projections map[Spin]*ndarray.Array
	labels      map[string][3]float64
	structure   *Structure
}

// NewBandStructure validates that every spin channel has one row per band
// and one column per k-point. kpoints are fractional in the reciprocal
// lattice rec.
func NewBandStructure(kpoints [][3]float64, bands map[Spin][][]float64, rec *Lattice, efermi float64,
	labels map[string][3]float64, structure *Structure,
) (*BandStructure, error) {
	if rec == nil {
		return nil, fmt.Errorf("crystal: band structure without lattice")
	}
	if len(bands) == 0 || len(bands) > 2 {
		return nil, fmt.Errorf("crystal: %d spin channels", len(bands))
	}
	nb := -1
	for spin, rows := range bands {
		if spin != SpinUp && spin != SpinDown {
			return nil, fmt.Errorf("crystal: invalid %s", spin)
		}
		if nb >= 0 && len(rows) != nb {
			return nil, fmt.Errorf("crystal: spin channels with %d and %d bands", nb, len(rows))
		}
		nb = len(rows)
		for i, row := range rows {
			if len(row) != len(kpoints) {
				return nil, fmt.Errorf("crystal: band %d of %s has %d values for %d k-points", i, spin, len(row), len(kpoints))
			}
		}
	}
	bs := &BandStructure{
		kpoints:   slices.Clone(kpoints),
		lattice:   rec,
		efermi:    efermi,
		bands:     make(map[Spin][][]float64, len(bands)),
		labels:    maps.Clone(labels),
		structure: structure,
	}
	for spin, rows := range bands {
		bs.bands[spin] = cloneRows(rows)
	}
	return bs, nil
}

func cloneRows(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = slices.Clone(r)
	}
	return out
}

// SetProjections attaches projections of shape (bands, k-points, orbitals,
// ions) for one spin channel.
func (bs *BandStructure) SetProjections(spin Spin, p *ndarray.Array) error {
	if _, ok := bs.bands[spin]; !ok {
		return fmt.Errorf("crystal: no %s channel", spin)
	}
	shape := p.Shape()
	if len(shape) != 4 || shape[0] != bs.NbBands() || shape[1] != len(bs.kpoints) {
		return fmt.Errorf("crystal: projection shape %v does not match %d bands x %d k-points", shape, bs.NbBands(), len(bs.kpoints))
	}
	if p.Kind() != ndarray.Float64 {
		return fmt.Errorf("crystal: projections must be float64, got %s", p.Kind())
	}
	if bs.projections == nil {
		bs.projections = map[Spin]*ndarray.Array{}
	}
	bs.projections[spin] = p
	return nil
}

// Kpoints returns the fractional k-point coordinates.
func (bs *BandStructure) Kpoints() [][3]float64 { return slices.Clone(bs.kpoints) }

// CartKpoints returns the Cartesian k-point coordinates.
func (bs *BandStructure) CartKpoints() [][3]float64 {
	out := make([][3]float64, len(bs.kpoints))
	for i, k := range bs.kpoints {
		out[i] = bs.lattice.Cartesian(k)
	}
	return out
}

// Lattice returns the reciprocal lattice.
func (bs *BandStructure) Lattice() *Lattice { return bs.lattice }

// Efermi returns the Fermi level.
func (bs *BandStructure) Efermi() float64 { return bs.efermi }

// Structure returns the structure, which may be nil.
func (bs *BandStructure) Structure() *Structure { return bs.structure }

// Labels returns the labelled k-points.
func (bs *BandStructure) Labels() map[string][3]float64 { return maps.Clone(bs.labels) }

// IsSpinPolarized reports whether both spin channels are present.
func (bs *BandStructure) IsSpinPolarized() bool { return len(bs.bands) == 2 }

// NbBands returns the number of bands per spin channel.
func (bs *BandStructure) NbBands() int {
	for _, rows := range bs.bands {
		return len(rows)
	}
	return 0
}

// Bands returns the bands of one spin channel.
func (bs *BandStructure) Bands(spin Spin) [][]float64 { return cloneRows(bs.bands[spin]) }

// Projections returns the projections of one spin channel or nil.
func (bs *BandStructure) Projections(spin Spin) *ndarray.Array { return bs.projections[spin] }

// IsMetal reports whether any band crosses the Fermi level.
func (bs *BandStructure) IsMetal() bool {
	for _, rows := range bs.bands {
		for _, row := range rows {
			below, above := false, false
			for _, e := range row {
				below = below || e < bs.efermi
				above = above || e > bs.efermi
			}
			if below && above {
				return true
			}
		}
	}
	return false
}

// BandGap returns the lowest energy above the Fermi level minus the highest
// energy below it, or zero for a metal.
func (bs *BandStructure) BandGap() float64 {
	if bs.IsMetal() {
		return 0
	}
	vbm, cbm := math.Inf(-1), math.Inf(1)
	for _, rows := range bs.bands {
		for _, row := range rows {
			for _, e := range row {
				if e <= bs.efermi {
					vbm = math.Max(vbm, e)
				} else {
					cbm = math.Min(cbm, e)
				}
			}
		}
	}
	if math.IsInf(vbm, 0) || math.IsInf(cbm, 0) {
		return 0
	}
	return cbm - vbm
}

// Equal compares the cheap scalars first and the arrays last.
func (bs *BandStructure) Equal(o *BandStructure) bool {
	if bs == nil || o == nil {
		return bs == o
	}
	if len(bs.kpoints) != len(o.kpoints) || !bs.lattice.Equal(o.lattice) || !floatEqual(bs.efermi, o.efermi) ||
		bs.IsSpinPolarized() != o.IsSpinPolarized() || bs.NbBands() != o.NbBands() ||
		!bs.structure.Equal(o.structure) || len(bs.projections) != len(o.projections) {
		return false
	}
	if !slices.EqualFunc(bs.kpoints, o.kpoints, vecEqual) {
		return false
	}
	if !maps.EqualFunc(bs.labels, o.labels, vecEqual) {
		return false
	}
	for _, spin := range []Spin{SpinUp, SpinDown} {
		if !matrixEqual(bs.bands[spin], o.bands[spin]) {
			return false
		}
	}
	for _, spin := range []Spin{SpinUp, SpinDown} {
		if !bs.projections[spin].Equal(o.projections[spin]) {
			return false
		}
	}
	return true
}

func (bs *BandStructure) String() string {
	return fmt.Sprintf("BandStructure(%d bands, %d k-points, efermi=%g)", bs.NbBands(), len(bs.kpoints), bs.efermi)
}

// AsDict returns the band structure with spin channels keyed "1" and "-1".
func (bs *BandStructure) AsDict() map[string]any {
	d := header("pymatgen.electronic_structure.bandstructure", "BandStructure")
	d["lattice_rec"] = bs.lattice.AsDict()
	d["efermi"] = bs.efermi
	kpts := make([]any, len(bs.kpoints))
	for i, k := range bs.kpoints {
		kpts[i] = vecList(k)
	}
	d["kpoints"] = kpts
	bands := map[string]any{}
	for _, spin := range spins(bs.bands) {
		bands[spin.key()] = matrixList(bs.bands[spin])
	}
	d["bands"] = bands
	d["is_metal"] = bs.IsMetal()
	labels := make(map[string]any, len(bs.labels))
	for name, k := range bs.labels {
		labels[name] = vecList(k)
	}
	d["labels_dict"] = labels
	if bs.structure != nil {
		d["structure"] = bs.structure.AsDict()
	}
	proj := map[string]any{}
	for spin, p := range bs.projections {
		proj[spin.key()] = p.ToNested()
	}
	d["projections"] = proj
	return d
}

// BandStructureFromDict is the inverse of AsDict.
func BandStructureFromDict(d map[string]any) (*BandStructure, error) {
	if err := checkClass(d, "BandStructure"); err != nil {
		return nil, err
	}
	lm, err := asMap(d["lattice_rec"], "lattice_rec")
	if err != nil {
		return nil, err
	}
	rec, err := LatticeFromDict(lm)
	if err != nil {
		return nil, err
	}
	efermi, err := floatField(d, "efermi")
	if err != nil {
		return nil, err
	}
	rawK, err := asList(d["kpoints"], "kpoints")
	if err != nil {
		return nil, err
	}
	kpoints := make([][3]float64, len(rawK))
	for i, k := range rawK {
		if kpoints[i], err = asVec3(k, fmt.Sprintf("kpoints[%d]", i)); err != nil {
			return nil, err
		}
	}
	rawB, err := asMap(d["bands"], "bands")
	if err != nil {
		return nil, err
	}
	bands := make(map[Spin][][]float64, len(rawB))
	for key, v := range rawB {
		spin, err := parseSpin(key)
		if err != nil {
			return nil, err
		}
		if bands[spin], err = asMatrix(v, "bands."+key); err != nil {
			return nil, err
		}
	}
	labels := map[string][3]float64{}
	if raw, ok := d["labels_dict"].(map[string]any); ok {
		for name, v := range raw {
			if labels[name], err = asVec3(v, "labels_dict."+name); err != nil {
				return nil, err
			}
		}
	}
	var structure *Structure
	if raw, ok := d["structure"]; ok && raw != nil {
		sm, err := asMap(raw, "structure")
		if err != nil {
			return nil, err
		}
		if structure, err = StructureFromDict(sm); err != nil {
			return nil, err
		}
	}
	bs, err := NewBandStructure(kpoints, bands, rec, efermi, labels, structure)
	if err != nil {
		return nil, err
	}
	if raw, ok := d["projections"].(map[string]any); ok {
		keys := slices.Collect(maps.Keys(raw))
		sort.Strings(keys)
		for _, key := range keys {
			spin, err := parseSpin(key)
			if err != nil {
				return nil, err
			}
			p, err := ndarray.FromNested(raw[key])
			if err != nil {
				return nil, fmt.Errorf("projections.%s: %w", key, err)
			}
			if err := bs.SetProjections(spin, p); err != nil {
				return nil, err
			}
		}
	}
	return bs, nil
}
