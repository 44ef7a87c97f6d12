package nntypes

import (
	"context"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/bft-labs/scistore/internal/adapters/memory"
	"github.com/bft-labs/scistore/pkg/helpertest"
	"github.com/bft-labs/scistore/pkg/registry"
	"github.com/bft-labs/scistore/pkg/store"
	"github.com/bft-labs/scistore/sci/nn"
	"github.com/bft-labs/scistore/types/tensortypes"
)

func newRegistry() *registry.Registry {
	return registry.New().MustRegister(append(Types(), tensortypes.Types()...)...)
}

func TestModuleHelpers(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	lin, err := nn.NewLinear(4, 2, true, r)
	if err != nil {
		t.Fatal(err)
	}
	noBias, err := nn.NewLinear(3, 3, false, r)
	if err != nil {
		t.Fatal(err)
	}
	noBias.Train(false)
	conv, err := nn.NewConv2d(1, 4, [2]int{3, 3}, true, r)
	if err != nil {
		t.Fatal(err)
	}
	conv.Padding = [2]int{1, 1}
	pool, err := nn.NewMaxPool2d([2]int{2, 2})
	if err != nil {
		t.Fatal(err)
	}
	list := nn.NewModuleList(conv, pool)
	dict := nn.NewModuleDict()
	if err := dict.Set("features", list); err != nil {
		t.Fatal(err)
	}
	if err := dict.Set("head", lin); err != nil {
		t.Fatal(err)
	}

	helpertest.Run(t, newRegistry(),
		helpertest.Case{Name: "linear", Value: lin},
		helpertest.Case{Name: "linear without bias in eval", Value: noBias},
		helpertest.Case{Name: "conv", Value: conv},
		helpertest.Case{Name: "pool", Value: pool},
		helpertest.Case{Name: "list", Value: list},
		helpertest.Case{Name: "empty list", Value: nn.NewModuleList()},
		helpertest.Case{Name: "dict", Value: dict},
		helpertest.Case{Name: "parameter", Value: lin.Weight},
		helpertest.Case{Name: "size", Value: nn.Size{2, 3, 4}},
		helpertest.Case{Name: "scalar size", Value: nn.Size{}},
	)
}

func TestFlaxHelpers(t *testing.T) {
	dense, err := nn.NewDense(16)
	if err != nil {
		t.Fatal(err)
	}
	general, err := nn.NewDenseGeneral(4, 2)
	if err != nil {
		t.Fatal(err)
	}
	general.BatchDims = []int{0}
	general.Axis = []int{-1}
	seq, err := nn.NewSequential(dense, general)
	if err != nil {
		t.Fatal(err)
	}
	inner, err := nn.NewSequential(dense)
	if err != nil {
		t.Fatal(err)
	}
	nested, err := nn.NewSequential(inner, dense)
	if err != nil {
		t.Fatal(err)
	}
	helpertest.Run(t, newRegistry(),
		helpertest.Case{Name: "dense", Value: dense},
		helpertest.Case{Name: "dense general", Value: general},
		helpertest.Case{Name: "sequential", Value: seq},
		helpertest.Case{Name: "nested sequential", Value: nested},
	)
}

func TestLoadedValuesAreIndependent(t *testing.T) {
	ctx := context.Background()
	general, err := nn.NewDenseGeneral(4, 2)
	if err != nil {
		t.Fatal(err)
	}
	seq, err := nn.NewSequential(general)
	if err != nil {
		t.Fatal(err)
	}

	s, err := store.New(newRegistry(), memory.New())
	if err != nil {
		t.Fatal(err)
	}
	ids, err := s.SaveAll(ctx, nn.Size{2, 3}, general, seq)
	if err != nil {
		t.Fatal(err)
	}

	first, err := s.LoadAll(ctx, ids...)
	if err != nil {
		t.Fatal(err)
	}
	first[0].(nn.Size)[0] = 99
	first[1].(nn.DenseGeneral).Features[0] = 99
	seq.Layers()[0].(nn.DenseGeneral).Features[0] = 99

	again, err := s.LoadAll(ctx, ids...)
	if err != nil {
		t.Fatal(err)
	}
	if size := again[0].(nn.Size); !slices.Equal(size, nn.Size{2, 3}) {
		t.Errorf("size = %v, want [2 3]", size)
	}
	if features := again[1].(nn.DenseGeneral).Features; !slices.Equal(features, []int{4, 2}) {
		t.Errorf("features = %v, want [4 2]", features)
	}
	layer := again[2].(*nn.Sequential).Layers()[0].(nn.DenseGeneral)
	if !slices.Equal(layer.Features, []int{4, 2}) {
		t.Errorf("sequential features = %v, want [4 2]", layer.Features)
	}
}

func TestTiedWeights(t *testing.T) {
	ctx := context.Background()
	enc, err := nn.NewLinear(3, 3, false, rand.New(rand.NewPCG(1, 1)))
	if err != nil {
		t.Fatal(err)
	}
	dec, err := nn.NewLinear(3, 3, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	dec.Weight = enc.Weight
	model := nn.NewModuleList(enc, dec)

	s, err := store.New(newRegistry(), memory.New())
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.Save(ctx, model)
	if err != nil {
		t.Fatal(err)
	}
	got, err := store.LoadAs[*nn.ModuleList](ctx, s, id)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(model) {
		t.Fatal("loaded model differs")
	}
	a := got.Modules[0].(*nn.Linear)
	b := got.Modules[1].(*nn.Linear)
	if a.Weight != b.Weight {
		t.Error("tied weight loaded as two parameters")
	}
}

func TestMixedTrainingModes(t *testing.T) {
	ctx := context.Background()
	frozen, _ := nn.NewLinear(2, 2, true, nil)
	head, _ := nn.NewLinear(2, 1, true, nil)
	model := nn.NewModuleList(frozen, head)
	model.Train(true)
	frozen.Train(false)

	s, err := store.New(newRegistry(), memory.New())
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.Save(ctx, model)
	if err != nil {
		t.Fatal(err)
	}
	got, err := store.LoadAs[*nn.ModuleList](ctx, s, id)
	if err != nil {
		t.Fatal(err)
	}
	modes := []bool{got.Training(), got.Modules[0].Training(), got.Modules[1].Training()}
	if !slices.Equal(modes, []bool{true, false, true}) {
		t.Errorf("training modes = %v", modes)
	}
}

func TestDictOrder(t *testing.T) {
	ctx := context.Background()
	d := nn.NewModuleDict()
	for _, k := range []string{"zeta", "alpha", "mid"} {
		p, _ := nn.NewMaxPool2d([2]int{2, 2})
		if err := d.Set(k, p); err != nil {
			t.Fatal(err)
		}
	}
	s, err := store.New(newRegistry(), memory.New())
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.Save(ctx, d)
	if err != nil {
		t.Fatal(err)
	}
	got, err := store.LoadAs[*nn.ModuleDict](ctx, s, id)
	if err != nil {
		t.Fatal(err)
	}
	if keys := got.Keys(); !slices.Equal(keys, []string{"zeta", "alpha", "mid"}) {
		t.Errorf("Keys() = %v", keys)
	}
}
