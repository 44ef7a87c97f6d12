package ilthermotypes

import (
	"context"
	"math"
	"testing"

	"github.com/bft-labs/scistore/internal/adapters/memory"
	"github.com/bft-labs/scistore/pkg/helpertest"
	"github.com/bft-labs/scistore/pkg/registry"
	"github.com/bft-labs/scistore/pkg/store"
	"github.com/bft-labs/scistore/sci/ilthermo"
)

const response = `{
  "ref": {"title": "Viscosity of 1-ethyl-3-methylimidazolium acetate", "full": "J. Chem. Thermodyn. 2012"},
  "components": [{"idout": "BCfaB", "name": "1-ethyl-3-methylimidazolium acetate"}],
  "dhead": [["Temperature, K", null], ["Viscosity, Pa*s", "Liquid"]],
  "data": [
    [["293.15"], ["0.162", "0.003"]],
    [["303.15"], ["0.0937"]]
  ]
}`

func TestDatasetHelper(t *testing.T) {
	parsed, err := ilthermo.Parse("BCfaB", []byte(response))
	if err != nil {
		t.Fatal(err)
	}
	manual := &ilthermo.Dataset{
		SetID:      "manual",
		Data:       [][]float64{{1, math.NaN()}},
		HeaderList: []string{"T, K", "Delta(T), K"},
		PhysProps:  []string{"T", "Delta(T)"},
		PhysUnits:  []string{"K", "K"},
		Phases:     []string{"", ""},
	}
	helpertest.Run(t, registry.New().MustRegister(Types()...),
		helpertest.Case{Name: "parsed", Value: parsed},
		helpertest.Case{Name: "manual", Value: manual},
	)
}

func TestDatasetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := store.New(registry.New().MustRegister(Types()...), memory.New())
	if err != nil {
		t.Fatal(err)
	}
	in, err := ilthermo.Parse("BCfaB", []byte(response))
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.Save(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	got, err := store.LoadAs[*ilthermo.Dataset](ctx, s, id)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(in) {
		t.Errorf("loaded %v, want %v", got, in)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	if got.Citation() != in.Citation() {
		t.Errorf("Citation() = %q", got.Citation())
	}
	if !math.IsNaN(got.Data[1][2]) {
		t.Errorf("missing uncertainty = %v, want NaN", got.Data[1][2])
	}
}
