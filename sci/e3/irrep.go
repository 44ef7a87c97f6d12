// Package e3 models irreducible representations of O(3) and the equivariant
// operations built from them.
package e3

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrSyntax = errors.New("e3: invalid irrep syntax")

// Irrep is an irreducible representation with degree L and parity P (+1 or -1).
type Irrep struct {
	L int
	P int
}

// ParseIrrep parses "1o", "0e" or "2y", where y means parity (-1)^L.
func ParseIrrep(s string) (Irrep, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return Irrep{}, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	l, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || l < 0 {
		return Irrep{}, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	switch s[len(s)-1] {
	case 'e':
		return Irrep{L: l, P: 1}, nil
	case 'o':
		return Irrep{L: l, P: -1}, nil
	case 'y':
		if l%2 == 0 {
			return Irrep{L: l, P: 1}, nil
		}
		return Irrep{L: l, P: -1}, nil
	}
	return Irrep{}, fmt.Errorf("%w: %q", ErrSyntax, s)
}

// MustParseIrrep is like ParseIrrep but panics on error.
func MustParseIrrep(s string) Irrep {
	ir, err := ParseIrrep(s)
	if err != nil {
		panic(err)
	}
	return ir
}

func (ir Irrep) String() string {
	if ir.P == 1 {
		return fmt.Sprintf("%de", ir.L)
	}
	return fmt.Sprintf("%do", ir.L)
}

// Dim returns 2L+1.
func (ir Irrep) Dim() int { return 2*ir.L + 1 }

// Valid reports whether L is non-negative and P is ±1.
func (ir Irrep) Valid() bool { return ir.L >= 0 && (ir.P == 1 || ir.P == -1) }

// Mul returns the irreps contained in the tensor product ir ⊗ other, in
// increasing degree.
func (ir Irrep) Mul(other Irrep) []Irrep {
	lo, hi := ir.L-other.L, ir.L+other.L
	if lo < 0 {
		lo = -lo
	}
	out := make([]Irrep, 0, hi-lo+1)
	for l := lo; l <= hi; l++ {
		out = append(out, Irrep{L: l, P: ir.P * other.P})
	}
	return out
}

// MulIrrep is an irrep with a multiplicity.
type MulIrrep struct {
	Mul int
	Ir  Irrep
}

func (m MulIrrep) String() string { return fmt.Sprintf("%dx%s", m.Mul, m.Ir) }

// Dim returns Mul times the irrep dimension.
func (m MulIrrep) Dim() int { return m.Mul * m.Ir.Dim() }

// Irreps is an ordered direct sum of irreps with multiplicities. The string
// form is canonical: Parse(x.String()).String() == x.String().
type Irreps struct {
	items []MulIrrep
}

// NewIrreps builds Irreps from its terms.
func NewIrreps(items ...MulIrrep) (Irreps, error) {
	for _, m := range items {
		if m.Mul < 0 || !m.Ir.Valid() {
			return Irreps{}, fmt.Errorf("%w: %v", ErrSyntax, m)
		}
	}
	return Irreps{items: append([]MulIrrep(nil), items...)}, nil
}

// ParseIrreps parses "2x0e+3x1o". A term without multiplicity counts once
// and the empty string is the empty sum.
func ParseIrreps(s string) (Irreps, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Irreps{}, nil
	}
	var items []MulIrrep
	for _, term := range strings.Split(s, "+") {
		term = strings.TrimSpace(term)
		mul := 1
		if i := strings.IndexByte(term, 'x'); i >= 0 {
			n, err := strconv.Atoi(term[:i])
			if err != nil || n < 0 {
				return Irreps{}, fmt.Errorf("%w: %q", ErrSyntax, term)
			}
			mul, term = n, term[i+1:]
		}
		ir, err := ParseIrrep(term)
		if err != nil {
			return Irreps{}, err
		}
		items = append(items, MulIrrep{Mul: mul, Ir: ir})
	}
	return Irreps{items: items}, nil
}

// MustParseIrreps is like ParseIrreps but panics on error.
func MustParseIrreps(s string) Irreps {
	irreps, err := ParseIrreps(s)
	if err != nil {
		panic(err)
	}
	return irreps
}

func (x Irreps) String() string {
	parts := make([]string, len(x.items))
	for i, m := range x.items {
		parts[i] = m.String()
	}
	return strings.Join(parts, "+")
}

// Len returns the number of terms.
func (x Irreps) Len() int { return len(x.items) }

// At returns term i.
func (x Irreps) At(i int) MulIrrep { return x.items[i] }

// Items returns a copy of the terms.
func (x Irreps) Items() []MulIrrep { return append([]MulIrrep(nil), x.items...) }

// Dim returns the total dimension.
func (x Irreps) Dim() int {
	n := 0
	for _, m := range x.items {
		n += m.Dim()
	}
	return n
}

// Equal compares term by term.
func (x Irreps) Equal(y Irreps) bool {
	if len(x.items) != len(y.items) {
		return false
	}
	for i := range x.items {
		if x.items[i] != y.items[i] {
			return false
		}
	}
	return true
}
