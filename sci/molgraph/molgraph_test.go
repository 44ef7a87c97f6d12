package molgraph

import (
	"errors"
	"math"
	"testing"
)

func water(t *testing.T) *Mol {
	t.Helper()
	m := New("water")
	o, err := m.AddAtom(Atom{Z: 8})
	if err != nil {
		t.Fatal(err)
	}
	for range 2 {
		h, err := m.AddAtom(Atom{Z: 1})
		if err != nil {
			t.Fatal(err)
		}
		if err := m.AddBond(o, h, 1); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.AddConformer([][3]float64{{0, 0, 0.1173}, {0, 0.7572, -0.4692}, {0, -0.7572, -0.4692}}); err != nil {
		t.Fatal(err)
	}
	m.SetProp("source", "test")
	return m
}

func TestJSONRoundTrip(t *testing.T) {
	m := water(t)
	data, err := ToJSON(m)
	if err != nil {
		t.Fatal(err)
	}
	got, err := FromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("FromJSON() returned %d molecules", len(got))
	}
	if !got[0].Equal(m) {
		t.Errorf("round trip = %v, want %v", got[0], m)
	}
	if d := got[0].Degree(0); d != 2 {
		t.Errorf("Degree(0) = %d, want 2", d)
	}
}

func TestFromJSONDefaults(t *testing.T) {
	doc := `{
		"commonchem": {"version": 10},
		"defaults": {"atom": {"z": 6, "impHs": 0, "chg": 0, "nRad": 0, "isotope": 0}, "bond": {"bo": 1}},
		"molecules": [{"name": "ethene", "atoms": [{"impHs": 2}, {"impHs": 2}], "bonds": [{"atoms": [0, 1], "bo": 2}]}]
	}`
	ms, err := FromJSON([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	m := ms[0]
	atoms := m.Atoms()
	if len(atoms) != 2 || atoms[0].Z != 6 || atoms[0].ImplicitHs != 2 {
		t.Errorf("Atoms() = %+v", atoms)
	}
	if b := m.Bonds(); len(b) != 1 || b[0].Order != 2 {
		t.Errorf("Bonds() = %+v", b)
	}
}

func TestFromJSONErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"not json", `{"commonchem"`, ErrFormat},
		{"no version", `{"molecules": []}`, ErrFormat},
		{"future version", `{"commonchem": {"version": 99}, "molecules": [{}]}`, ErrFormat},
		{"no molecules", `{"commonchem": {"version": 10}, "molecules": []}`, ErrFormat},
		{"bad bond", `{"commonchem": {"version": 10}, "molecules": [{"atoms": [{}], "bonds": [{"atoms": [0, 3]}]}]}`, ErrGraph},
		{"short conformer", `{"commonchem": {"version": 10}, "molecules": [{"atoms": [{}, {}], "conformers": [{"dim": 3, "coords": [[0, 0, 0]]}]}]}`, ErrGraph},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromJSON([]byte(tt.doc)); !errors.Is(err, tt.want) {
				t.Errorf("FromJSON() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGraphValidation(t *testing.T) {
	m := New("x")
	a, _ := m.AddAtom(Atom{Z: 6})
	b, _ := m.AddAtom(Atom{Z: 6})
	if err := m.AddBond(a, a, 1); !errors.Is(err, ErrGraph) {
		t.Errorf("self bond error = %v", err)
	}
	if err := m.AddBond(a, b, 1); err != nil {
		t.Fatal(err)
	}
	if err := m.AddBond(b, a, 2); !errors.Is(err, ErrGraph) {
		t.Errorf("duplicate bond error = %v", err)
	}
	if err := m.AddConformer([][3]float64{{math.NaN(), 0, 0}, {0, 0, 0}}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddAtom(Atom{Z: 1}); !errors.Is(err, ErrGraph) {
		t.Errorf("AddAtom after conformer error = %v", err)
	}
	if _, err := ToJSON(m); !errors.Is(err, ErrGraph) {
		t.Errorf("ToJSON with NaN error = %v", err)
	}
}

func TestEqual(t *testing.T) {
	a, b := water(t), water(t)
	if !a.Equal(b) {
		t.Fatal("identical molecules are not equal")
	}
	b.SetProp("source", "other")
	if a.Equal(b) {
		t.Error("molecules with different properties are equal")
	}
	if a.Equal(nil) {
		t.Error("molecule equals nil")
	}
}
