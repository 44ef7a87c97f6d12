package nn

import (
	"errors"
	"math"
	"math/rand/v2"
	"reflect"
	"slices"
	"testing"

	"github.com/bft-labs/scistore/sci/tensor"
)

func TestLinear(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	l, err := NewLinear(3, 2, true, r)
	if err != nil {
		t.Fatal(err)
	}
	if got := l.Weight.Size(); !got.Equal(Size{2, 3}) {
		t.Errorf("weight size = %v", got)
	}
	if n := NumParams(l); n != 8 {
		t.Errorf("NumParams() = %d, want 8", n)
	}
	w, _ := l.Weight.Data.Float64s()
	bound := 1 / math.Sqrt(3)
	for _, v := range w {
		if math.Abs(v) > bound {
			t.Errorf("weight %g outside ±%g", v, bound)
		}
	}

	zero, _ := NewLinear(2, 1, false, nil)
	wt, _ := tensor.FromFloat32s([]int{1, 2}, []float32{2, -1})
	zero.Weight.Data = wt
	y, err := zero.Forward([]float64{3, 4})
	if err != nil || !slices.Equal(y, []float64{2}) {
		t.Errorf("Forward() = %v, %v", y, err)
	}
	if _, err := zero.Forward([]float64{1}); !errors.Is(err, ErrConfig) {
		t.Errorf("short input error = %v", err)
	}
	if _, err := NewLinear(0, 1, true, nil); !errors.Is(err, ErrConfig) {
		t.Errorf("NewLinear(0, 1) error = %v", err)
	}
}

func TestHyperRoundTrip(t *testing.T) {
	conv, err := NewConv2d(4, 8, [2]int{3, 3}, true, nil)
	if err != nil {
		t.Fatal(err)
	}
	conv.Padding = [2]int{1, 1}
	pool, err := NewMaxPool2d([2]int{2, 2})
	if err != nil {
		t.Fatal(err)
	}
	pool.CeilMode = true
	lin, _ := NewLinear(5, 2, false, nil)

	tests := []struct {
		name  string
		mod   Module
		blank Module
	}{
		{"linear", lin, &Linear{}},
		{"conv", conv, &Conv2d{}},
		{"pool", pool, &MaxPool2d{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.blank.SetHyper(tt.mod.Hyper()); err != nil {
				t.Fatal(err)
			}
			for _, m := range tt.mod.Members() {
				if err := tt.blank.SetMember(m.Name, m.Value); err != nil {
					t.Fatal(err)
				}
			}
			tt.blank.Train(tt.mod.Training())
			if !Equal(tt.blank, tt.mod) {
				t.Errorf("rebuilt %s differs: %v vs %v", tt.name, tt.blank.Hyper(), tt.mod.Hyper())
			}
		})
	}
}

func TestHyperErrors(t *testing.T) {
	tests := []struct {
		name  string
		mod   Module
		hyper map[string]any
	}{
		{"linear missing", &Linear{}, map[string]any{"in_features": int64(2)}},
		{"linear fractional", &Linear{}, map[string]any{"in_features": 2.5, "out_features": int64(1)}},
		{"conv groups", &Conv2d{}, map[string]any{
			"in_channels": int64(3), "out_channels": int64(4), "kernel_size": int64(3),
			"stride": int64(1), "padding": int64(0), "dilation": int64(1),
			"groups": int64(2), "padding_mode": "zeros",
		}},
		{"conv padding mode", &Conv2d{}, map[string]any{
			"in_channels": int64(2), "out_channels": int64(2), "kernel_size": []any{int64(3), int64(3)},
			"stride": int64(1), "padding": int64(0), "dilation": int64(1),
			"groups": int64(1), "padding_mode": "mirror",
		}},
		{"pool padding", &MaxPool2d{}, map[string]any{
			"kernel_size": int64(2), "stride": int64(2), "padding": int64(2), "dilation": int64(1),
			"return_indices": false, "ceil_mode": false,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.mod.SetHyper(tt.hyper); !errors.Is(err, ErrConfig) {
				t.Errorf("SetHyper() error = %v", err)
			}
		})
	}
}

func TestOutputSize(t *testing.T) {
	conv, _ := NewConv2d(1, 1, [2]int{3, 3}, false, nil)
	conv.Padding = [2]int{1, 1}
	if h, w := conv.OutputSize(28, 28); h != 28 || w != 28 {
		t.Errorf("conv OutputSize = %d×%d", h, w)
	}
	pool, _ := NewMaxPool2d([2]int{2, 2})
	if h, w := pool.OutputSize(7, 7); h != 3 || w != 3 {
		t.Errorf("pool OutputSize = %d×%d", h, w)
	}
	pool.CeilMode = true
	if h, _ := pool.OutputSize(7, 7); h != 4 {
		t.Errorf("ceil pool OutputSize = %d", h)
	}
}

func TestContainers(t *testing.T) {
	a, _ := NewLinear(2, 2, true, nil)
	b, _ := NewLinear(2, 1, true, nil)
	list := NewModuleList(a)
	list.Append(b)

	d := NewModuleDict()
	if err := d.Set("head", list); err != nil {
		t.Fatal(err)
	}
	pool, _ := NewMaxPool2d([2]int{2, 2})
	if err := d.Set("pool", pool); err != nil {
		t.Fatal(err)
	}
	if got := d.Keys(); !reflect.DeepEqual(got, []string{"head", "pool"}) {
		t.Errorf("Keys() = %v", got)
	}

	params := Parameters(d)
	want := []string{"head.0.bias", "head.0.weight", "head.1.bias", "head.1.weight"}
	var got []string
	for k := range params {
		got = append(got, k)
	}
	slices.Sort(got)
	if !slices.Equal(got, want) {
		t.Errorf("Parameters() keys = %v", got)
	}

	d.Train(false)
	if a.Training() || b.Training() || pool.Training() {
		t.Error("Train(false) did not reach submodules")
	}

	if err := list.SetMember("5", a); !errors.Is(err, ErrMember) {
		t.Errorf("SetMember(5) error = %v", err)
	}
	if err := list.SetMember("2", a); err != nil || list.Len() != 3 {
		t.Errorf("SetMember(len) error = %v, len %d", err, list.Len())
	}
	if err := d.SetMember("x", "not a module"); !errors.Is(err, ErrConfig) {
		t.Errorf("SetMember(string) error = %v", err)
	}
}

func TestModuleEqual(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 7))
	a, _ := NewLinear(2, 2, true, r)
	b := &Linear{}
	_ = b.SetHyper(a.Hyper())
	b.Weight = &Parameter{Data: a.Weight.Data, RequiresGrad: true}
	b.Bias = &Parameter{Data: a.Bias.Data, RequiresGrad: true}
	b.Train(true)
	if !a.Equal(b) {
		t.Fatal("equal modules differ")
	}
	b.Bias.RequiresGrad = false
	if a.Equal(b) {
		t.Error("requires_grad ignored")
	}
	b.Bias = nil
	if a.Equal(b) {
		t.Error("missing bias ignored")
	}
	var nilLinear *Linear
	if nilLinear.Equal(a) || !nilLinear.Equal(nil) {
		t.Error("nil handling")
	}
	if Equal(a, NewModuleList()) {
		t.Error("different kinds are equal")
	}
}

func TestFlaxLayers(t *testing.T) {
	dense, err := NewDense(16)
	if err != nil {
		t.Fatal(err)
	}
	general, err := NewDenseGeneral(4, 2)
	if err != nil {
		t.Fatal(err)
	}
	seq, err := NewSequential(dense, general)
	if err != nil {
		t.Fatal(err)
	}
	out, err := seq.OutputShape([]int{8, 3})
	if err != nil || !slices.Equal(out, []int{8, 4, 2}) {
		t.Errorf("OutputShape() = %v, %v", out, err)
	}
	if got := dense.ParamShapes(3); !reflect.DeepEqual(got, map[string][]int{"kernel": {3, 16}, "bias": {16}}) {
		t.Errorf("ParamShapes() = %v", got)
	}
	if seq.String() != "Sequential(Dense, DenseGeneral)" {
		t.Errorf("String() = %q", seq.String())
	}

	other, _ := NewSequential(dense, general)
	if !seq.Equal(other) {
		t.Error("equal chains differ")
	}
	dense.UseBias = false
	other, _ = NewSequential(dense, general)
	if seq.Equal(other) {
		t.Error("use_bias ignored")
	}

	layers := seq.Layers()
	layers[1].(DenseGeneral).Features[0] = 99
	if got := seq.Layers()[1].(DenseGeneral).Features; !slices.Equal(got, []int{4, 2}) {
		t.Errorf("Layers() shares features with the chain: %v", got)
	}
	general.Features[0] = 7
	if got := seq.Layers()[1].(DenseGeneral).Features[0]; got != 4 {
		t.Errorf("NewSequential kept the caller's features: %d", got)
	}

	if _, err := NewDense(0); !errors.Is(err, ErrConfig) {
		t.Errorf("NewDense(0) error = %v", err)
	}
	if _, err := NewSequential(); !errors.Is(err, ErrConfig) {
		t.Errorf("empty Sequential error = %v", err)
	}
	bad := general
	bad.Axis = []int{0, 0}
	if err := bad.Validate(); !errors.Is(err, ErrConfig) {
		t.Errorf("repeated axis error = %v", err)
	}
	if _, err := general.OutputShape([]int{}); !errors.Is(err, ErrConfig) {
		t.Errorf("axis out of range error = %v", err)
	}
}
