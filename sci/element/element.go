// Package element maps chemical symbols to atomic numbers.
package element

import (
	"fmt"
	"strings"
)

var symbols = [...]string{
	"X",
	"H", "He",
	"Li", "Be", "B", "C", "N", "O", "F", "Ne",
	"Na", "Mg", "Al", "Si", "P", "S", "Cl", "Ar",
	"K", "Ca", "Sc", "Ti", "V", "Cr", "Mn", "Fe", "Co", "Ni", "Cu", "Zn",
	"Ga", "Ge", "As", "Se", "Br", "Kr",
	"Rb", "Sr", "Y", "Zr", "Nb", "Mo", "Tc", "Ru", "Rh", "Pd", "Ag", "Cd",
	"In", "Sn", "Sb", "Te", "I", "Xe",
	"Cs", "Ba", "La", "Ce", "Pr", "Nd", "Pm", "Sm", "Eu", "Gd", "Tb", "Dy",
	"Ho", "Er", "Tm", "Yb", "Lu", "Hf", "Ta", "W", "Re", "Os", "Ir", "Pt",
	"Au", "Hg", "Tl", "Pb", "Bi", "Po", "At", "Rn",
	"Fr", "Ra", "Ac", "Th", "Pa", "U", "Np", "Pu", "Am", "Cm", "Bk", "Cf",
	"Es", "Fm", "Md", "No", "Lr", "Rf", "Db", "Sg", "Bh", "Hs", "Mt", "Ds",
	"Rg", "Cn", "Nh", "Fl", "Mc", "Lv", "Ts", "Og",
}

var numbers = func() map[string]int {
	m := make(map[string]int, len(symbols))
	for z, s := range symbols {
		m[strings.ToLower(s)] = z
	}
	return m
}()

// Max is the largest known atomic number.
const Max = len(symbols) - 1

// Symbol returns the symbol of atomic number z. Zero is the dummy atom "X".
func Symbol(z int) (string, error) {
	if z < 0 || z > Max {
		return "", fmt.Errorf("element: atomic number %d out of range", z)
	}
	return symbols[z], nil
}

// Number returns the atomic number of a symbol, case-insensitively.
func Number(symbol string) (int, error) {
	z, ok := numbers[strings.ToLower(strings.TrimSpace(symbol))]
	if !ok {
		return 0, fmt.Errorf("element: unknown symbol %q", symbol)
	}
	return z, nil
}
