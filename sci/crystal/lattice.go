// Package crystal models periodic crystal structures, molecules and their
// electronic band structures and densities of states.
//
// Every type converts to and from a plain dict carrying "@module" and
// "@class" markers. Equality is exact with NaN equal to NaN.
package crystal

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var ErrSingular = errors.New("crystal: singular lattice")

// Lattice is three lattice vectors stored as matrix rows.
type Lattice struct {
	matrix [3][3]float64
	pbc    [3]bool
}

// NewLattice builds a lattice periodic in all three directions.
func NewLattice(matrix [3][3]float64) (*Lattice, error) {
	l := &Lattice{matrix: matrix, pbc: [3]bool{true, true, true}}
	if v := l.Volume(); v == 0 || math.IsNaN(v) {
		return nil, ErrSingular
	}
	return l, nil
}

// Cubic returns a cubic lattice with edge a.
func Cubic(a float64) (*Lattice, error) {
	return NewLattice([3][3]float64{{a, 0, 0}, {0, a, 0}, {0, 0, a}})
}

// FromParameters builds a lattice from edge lengths and angles in degrees,
// with c along z.
func FromParameters(a, b, c, alpha, beta, gamma float64) (*Lattice, error) {
	ar, br, gr := alpha*math.Pi/180, beta*math.Pi/180, gamma*math.Pi/180
	val := (math.Cos(ar)*math.Cos(br) - math.Cos(gr)) / (math.Sin(ar) * math.Sin(br))
	val = math.Max(-1, math.Min(1, val))
	gammaStar := math.Acos(val)
	return NewLattice([3][3]float64{
		{a * math.Sin(br), 0, a * math.Cos(br)},
		{-b * math.Sin(ar) * math.Cos(gammaStar), b * math.Sin(ar) * math.Sin(gammaStar), b * math.Cos(ar)},
		{0, 0, c},
	})
}

// Matrix returns the lattice vectors as rows.
func (l *Lattice) Matrix() [3][3]float64 { return l.matrix }

// PBC reports periodicity along each vector.
func (l *Lattice) PBC() [3]bool { return l.pbc }

func (l *Lattice) dense() *mat.Dense {
	m := l.matrix
	return mat.NewDense(3, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
}

// Abc returns the vector lengths.
func (l *Lattice) Abc() [3]float64 {
	var out [3]float64
	for i, row := range l.matrix {
		out[i] = math.Sqrt(row[0]*row[0] + row[1]*row[1] + row[2]*row[2])
	}
	return out
}

// Angles returns alpha, beta and gamma in degrees.
func (l *Lattice) Angles() [3]float64 {
	abc := l.Abc()
	dot := func(i, j int) float64 {
		a, b := l.matrix[i], l.matrix[j]
		return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
	}
	angle := func(i, j int) float64 {
		c := math.Max(-1, math.Min(1, dot(i, j)/(abc[i]*abc[j])))
		return math.Acos(c) * 180 / math.Pi
	}
	return [3]float64{angle(1, 2), angle(0, 2), angle(0, 1)}
}

// Volume returns the absolute cell volume.
func (l *Lattice) Volume() float64 {
	return math.Abs(mat.Det(l.dense()))
}

// Cartesian converts fractional coordinates to Cartesian.
func (l *Lattice) Cartesian(frac [3]float64) [3]float64 {
	var out [3]float64
	for j := range 3 {
		for i := range 3 {
			out[j] += frac[i] * l.matrix[i][j]
		}
	}
	return out
}

// Fractional converts Cartesian coordinates to fractional.
func (l *Lattice) Fractional(cart [3]float64) ([3]float64, error) {
	var inv mat.Dense
	if err := inv.Inverse(l.dense()); err != nil {
		return [3]float64{}, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	var out [3]float64
	for j := range 3 {
		for i := range 3 {
			out[j] += cart[i] * inv.At(i, j)
		}
	}
	return out, nil
}

// Reciprocal returns the reciprocal lattice including the 2π factor.
func (l *Lattice) Reciprocal() (*Lattice, error) {
	var inv mat.Dense
	if err := inv.Inverse(l.dense()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	var m [3][3]float64
	for i := range 3 {
		for j := range 3 {
			m[i][j] = 2 * math.Pi * inv.At(j, i)
		}
	}
	return &Lattice{matrix: m, pbc: l.pbc}, nil
}

// Equal compares matrices and periodicity.
func (l *Lattice) Equal(o *Lattice) bool {
	if l == nil || o == nil {
		return l == o
	}
	if l.pbc != o.pbc {
		return false
	}
	for i := range 3 {
		if !vecEqual(l.matrix[i], o.matrix[i]) {
			return false
		}
	}
	return true
}

func (l *Lattice) String() string {
	abc, ang := l.Abc(), l.Angles()
	return fmt.Sprintf("Lattice(a=%g b=%g c=%g alpha=%g beta=%g gamma=%g)", abc[0], abc[1], abc[2], ang[0], ang[1], ang[2])
}

// AsDict returns the matrix, periodicity and derived parameters.
func (l *Lattice) AsDict() map[string]any {
	d := header("pymatgen.core.lattice", "Lattice")
	rows := make([]any, 3)
	for i, row := range l.matrix {
		rows[i] = vecList(row)
	}
	d["matrix"] = rows
	d["pbc"] = []any{l.pbc[0], l.pbc[1], l.pbc[2]}
	return d
}

// LatticeFromDict reads the matrix and, when present, the periodicity.
func LatticeFromDict(d map[string]any) (*Lattice, error) {
	if err := checkClass(d, "Lattice"); err != nil {
		return nil, err
	}
	rows, err := asMatrix(d["matrix"], "matrix")
	if err != nil {
		return nil, err
	}
	if len(rows) != 3 {
		return nil, fmt.Errorf("%w: matrix has %d rows", ErrDict, len(rows))
	}
	l := &Lattice{pbc: [3]bool{true, true, true}}
	for i, row := range rows {
		if len(row) != 3 {
			return nil, fmt.Errorf("%w: matrix row %d has %d columns", ErrDict, i, len(row))
		}
		copy(l.matrix[i][:], row)
	}
	if raw, ok := d["pbc"]; ok {
		list, err := asList(raw, "pbc")
		if err != nil || len(list) != 3 {
			return nil, fmt.Errorf("%w: pbc", ErrDict)
		}
		for i, item := range list {
			b, ok := item.(bool)
			if !ok {
				return nil, fmt.Errorf("%w: pbc[%d] is %T", ErrDict, i, item)
			}
			l.pbc[i] = b
		}
	}
	return l, nil
}
