// Package atoms models a configuration of atoms in an optional periodic
// cell together with the calculator that produced its properties.
//
// Atoms convert to and from a flat database row, mirroring the layout used
// by atomistic databases: numbers, positions, cell, pbc, optional per-atom
// arrays, the calculator name and parameters, and calculated properties at
// the top level.
package atoms

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Cell is three cell vectors stored as rows. The zero Cell is a non-periodic
// placeholder with zero vectors.
type Cell struct {
	array [3][3]float64
}

// NewCell returns a cell with the given vectors.
func NewCell(array [3][3]float64) *Cell {
	return &Cell{array: array}
}

// CellFromParameters builds a cell from lengths and angles in degrees with
// a along x and b in the xy plane.
func CellFromParameters(a, b, c, alpha, beta, gamma float64) (*Cell, error) {
	rad := math.Pi / 180
	cosA, cosB, cosG := math.Cos(alpha*rad), math.Cos(beta*rad), math.Cos(gamma*rad)
	sinG := math.Sin(gamma * rad)
	if sinG == 0 {
		return nil, fmt.Errorf("atoms: gamma of %g degrees", gamma)
	}
	cx := cosB
	cy := (cosA - cosB*cosG) / sinG
	cz2 := 1 - cx*cx - cy*cy
	if cz2 <= 0 {
		return nil, fmt.Errorf("atoms: angles %g %g %g do not form a cell", alpha, beta, gamma)
	}
	return NewCell([3][3]float64{
		{a, 0, 0},
		{b * cosG, b * sinG, 0},
		{c * cx, c * cy, c * math.Sqrt(cz2)},
	}), nil
}

// Init resets c to the given vectors.
func (c *Cell) Init(array [3][3]float64) { c.array = array }

// Array returns the cell vectors.
func (c *Cell) Array() [3][3]float64 { return c.array }

// Volume returns the absolute volume.
func (c *Cell) Volume() float64 {
	a := c.array
	return math.Abs(mat.Det(mat.NewDense(3, 3, []float64{
		a[0][0], a[0][1], a[0][2],
		a[1][0], a[1][1], a[1][2],
		a[2][0], a[2][1], a[2][2],
	})))
}

// Lengths returns the vector lengths.
func (c *Cell) Lengths() [3]float64 {
	var out [3]float64
	for i, v := range c.array {
		out[i] = math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	}
	return out
}

// Rank is the number of non-zero cell vectors.
func (c *Cell) Rank() int {
	n := 0
	for _, l := range c.Lengths() {
		if l != 0 {
			n++
		}
	}
	return n
}

// Equal compares vectors exactly; NaN equals NaN.
func (c *Cell) Equal(o *Cell) bool {
	if c == nil || o == nil {
		return c == o
	}
	return matEqual(c.array, o.array)
}

func (c *Cell) String() string {
	return fmt.Sprintf("Cell(%v)", c.array)
}

func matEqual(a, b [3][3]float64) bool {
	for i := range 3 {
		if !vecEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func vecEqual(a, b [3]float64) bool {
	for i := range 3 {
		if !floatEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func floatEqual(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}
