package e3

import (
	"errors"
	"math"
	"testing"
)

func TestParseIrreps(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		dim     int
		wantErr bool
	}{
		{in: "2x0e+3x1o", want: "2x0e+3x1o", dim: 11},
		{in: "1o", want: "1x1o", dim: 3},
		{in: " 5x0e + 1e ", want: "5x0e+1x1e", dim: 8},
		{in: "2y", want: "1x2e", dim: 5},
		{in: "", want: "", dim: 0},
		{in: "0x1o", want: "0x1o", dim: 0},
		{in: "3x", wantErr: true},
		{in: "1q", wantErr: true},
		{in: "-1x0e", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIrreps(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrSyntax) {
					t.Fatalf("ParseIrreps(%q) error = %v, want ErrSyntax", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseIrreps(%q) error = %v", tt.in, err)
			}
			if got.String() != tt.want {
				t.Errorf("String() = %q, want %q", got.String(), tt.want)
			}
			if got.Dim() != tt.dim {
				t.Errorf("Dim() = %d, want %d", got.Dim(), tt.dim)
			}
			again := MustParseIrreps(got.String())
			if again.String() != got.String() || !again.Equal(got) {
				t.Errorf("canonical form drifted: %q -> %q", got, again)
			}
		})
	}
}

func TestIrrepMul(t *testing.T) {
	got := MustParseIrrep("1o").Mul(MustParseIrrep("2e"))
	want := []string{"1o", "2o", "3o"}
	if len(got) != len(want) {
		t.Fatalf("Mul() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Errorf("Mul()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestInstructionValidation(t *testing.T) {
	in1 := MustParseIrreps("4x0e+4x1o")
	in2 := MustParseIrreps("4x1o")
	out := MustParseIrreps("4x1o+16x0e+2x2e")

	tests := []struct {
		name    string
		in      Instruction
		shape   []int
		wantErr bool
	}{
		{name: "uvw", in: Instruction{In1: 0, In2: 0, Out: 0, Mode: "uvw", HasWeight: true}, shape: []int{4, 4, 4}},
		{name: "uvu", in: Instruction{In1: 0, In2: 0, Out: 0, Mode: "uvu"}, shape: []int{4, 4}},
		{name: "uuw selection rule", in: Instruction{In1: 1, In2: 0, Out: 0, Mode: "uuw"}, wantErr: true},
		{name: "uvuv", in: Instruction{In1: 1, In2: 0, Out: 1, Mode: "uvuv"}, shape: []int{4, 4}},
		{name: "selection rule", in: Instruction{In1: 0, In2: 0, Out: 1, Mode: "uvw"}, wantErr: true},
		{name: "mul mismatch", in: Instruction{In1: 1, In2: 0, Out: 2, Mode: "uuu"}, wantErr: true},
		{name: "index range", in: Instruction{In1: 0, In2: 3, Out: 0, Mode: "uvw"}, wantErr: true},
		{name: "unknown mode", in: Instruction{In1: 0, In2: 0, Out: 0, Mode: "vvv"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.resolve(in1, in2, out)
			if tt.wantErr {
				if !errors.Is(err, ErrInstruction) {
					t.Fatalf("resolve() error = %v, want ErrInstruction", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve() error = %v", err)
			}
			if len(got.PathShape) != len(tt.shape) {
				t.Fatalf("PathShape = %v, want %v", got.PathShape, tt.shape)
			}
			for i := range tt.shape {
				if got.PathShape[i] != tt.shape[i] {
					t.Errorf("PathShape = %v, want %v", got.PathShape, tt.shape)
				}
			}
			if got.PathWeight != 1 {
				t.Errorf("PathWeight = %v, want default 1", got.PathWeight)
			}
		})
	}
}

func TestInstructionTuple(t *testing.T) {
	in := Instruction{In1: 1, In2: 0, Out: 2, Mode: "uvw", HasWeight: true, PathWeight: 0.5, PathShape: []int{2, 3, 4}}
	got, err := InstructionFromTuple(in.Tuple())
	if err != nil {
		t.Fatalf("InstructionFromTuple() error = %v", err)
	}
	if !got.Equal(in) {
		t.Errorf("InstructionFromTuple() = %+v, want %+v", got, in)
	}
	if _, err := InstructionFromTuple([]any{int64(0)}); !errors.Is(err, ErrInstruction) {
		t.Errorf("short tuple error = %v, want ErrInstruction", err)
	}
}

func newProduct(t *testing.T) *TensorProduct {
	t.Helper()
	tp, err := NewTensorProduct(
		MustParseIrreps("2x0e+1x1o"),
		MustParseIrreps("3x0e"),
		MustParseIrreps("2x0e+1x1o"),
		[]Instruction{
			{In1: 0, In2: 0, Out: 0, Mode: "uvw", HasWeight: true},
			{In1: 1, In2: 0, Out: 1, Mode: "uvu", HasWeight: true, PathWeight: 0.5},
			{In1: 0, In2: 0, Out: 0, Mode: "uvw"},
		},
	)
	if err != nil {
		t.Fatalf("NewTensorProduct() error = %v", err)
	}
	return tp
}

func TestTensorProductState(t *testing.T) {
	tp := newProduct(t)
	if got := tp.WeightNumel(); got != 2*3*2+1*3 {
		t.Fatalf("WeightNumel() = %d, want 15", got)
	}
	w := make([]float64, tp.WeightNumel())
	for i := range w {
		w[i] = float64(i) / 7
	}
	w[3] = math.NaN()
	if err := tp.SetWeights(w); err != nil {
		t.Fatal(err)
	}
	if err := tp.SetWeights(w[:3]); !errors.Is(err, ErrWeights) {
		t.Errorf("SetWeights(short) error = %v, want ErrWeights", err)
	}

	paths, weights, err := planPaths(tp.Plan())
	if err != nil || paths != 3 || weights != 15 {
		t.Errorf("planPaths() = %d, %d, %v, want 3, 15, nil", paths, weights, err)
	}

	saved, err := tp.StateDict()
	if err != nil {
		t.Fatal(err)
	}
	var loaded TensorProduct
	if err := loaded.LoadStateDict(saved); err != nil {
		t.Fatalf("LoadStateDict() error = %v", err)
	}
	if !loaded.Equal(tp) {
		t.Errorf("loaded = %v, want %v", &loaded, tp)
	}

	saved[keyPlan] = append([]byte{}, tp.Plan()[:len(tp.Plan())-1]...)
	if err := new(TensorProduct).LoadStateDict(saved); !errors.Is(err, ErrPlan) {
		t.Errorf("truncated plan error = %v, want ErrPlan", err)
	}
	saved[keyPlan] = append([]byte{'1'}, tp.Plan()[1:]...)
	if err := new(TensorProduct).LoadStateDict(saved); !errors.Is(err, ErrPlan) {
		t.Errorf("old plan version error = %v, want ErrPlan", err)
	}
}

func TestTensorSquare(t *testing.T) {
	ts, err := NewTensorSquare(MustParseIrreps("2x1o"))
	if err != nil {
		t.Fatal(err)
	}
	if got := ts.IrrepsOut().String(); got != "3x0e+1x1e+3x2e" {
		t.Errorf("IrrepsOut() = %s", got)
	}

	saved, err := ts.StateDict()
	if err != nil {
		t.Fatal(err)
	}
	var loaded TensorSquare
	if err := loaded.LoadStateDict(saved); err != nil {
		t.Fatal(err)
	}
	if !loaded.Equal(ts) || !loaded.IrrepsIn().Equal(ts.IrrepsIn()) {
		t.Error("square did not round trip")
	}
}

func TestElementwiseTensorProduct(t *testing.T) {
	e, err := NewElementwiseTensorProduct(MustParseIrreps("2x0e+3x1o"), MustParseIrreps("2x1o+3x1o"),
		func(ir Irrep) bool { return ir.L <= 1 })
	if err != nil {
		t.Fatal(err)
	}
	if got := e.IrrepsOut().String(); got != "2x1o+3x0e+3x1e" {
		t.Errorf("IrrepsOut() = %s", got)
	}

	if _, err := NewElementwiseTensorProduct(MustParseIrreps("2x0e"), MustParseIrreps("3x0e"), nil); !errors.Is(err, ErrInstruction) {
		t.Errorf("mismatched multiplicity error = %v, want ErrInstruction", err)
	}
}

func TestReducedTensorProducts(t *testing.T) {
	tests := []struct {
		formula string
		in      string
		want    string
	}{
		{formula: "ij=-ji", in: "5x0e + 1e", want: "10x0e+6x1e"},
		{formula: "ij=ji", in: "1o", want: "1x0e+1x2e"},
		{formula: "ij", in: "1o", want: "1x0e+1x1e+1x2e"},
		{formula: "ij=ji=-ji", in: "1o", want: ""},
		{formula: "ijk", in: "1o", want: "1x0o+3x1o+2x2o+1x3o"},
	}

	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			x := MustParseIrreps(tt.in)
			indices, _, err := parseFormula(tt.formula)
			if err != nil {
				t.Fatal(err)
			}
			in := map[string]Irreps{}
			for _, c := range indices {
				in[string(c)] = x
			}
			r, err := NewReducedTensorProducts(tt.formula, in)
			if err != nil {
				t.Fatalf("NewReducedTensorProducts() error = %v", err)
			}
			if got := r.IrrepsOut().String(); got != tt.want {
				t.Errorf("IrrepsOut() = %q, want %q", got, tt.want)
			}

			saved, err := r.StateDict()
			if err != nil {
				t.Fatal(err)
			}
			var loaded ReducedTensorProducts
			if err := loaded.LoadStateDict(saved); err != nil {
				t.Fatalf("LoadStateDict() error = %v", err)
			}
			if !loaded.Equal(r) {
				t.Error("reduction did not round trip")
			}
		})
	}
}

func TestReducedTensorProductsErrors(t *testing.T) {
	x := MustParseIrreps("1o")
	tests := []struct {
		name    string
		formula string
		in      map[string]Irreps
	}{
		{"repeated index", "ii", map[string]Irreps{"i": x}},
		{"not a permutation", "ij=ik", map[string]Irreps{"i": x, "j": x}},
		{"missing irreps", "ij", map[string]Irreps{"i": x}},
		{"unknown index", "i", map[string]Irreps{"i": x, "z": x}},
		{"different irreps", "ij=ji", map[string]Irreps{"i": x, "j": MustParseIrreps("0e")}},
		{"three index relation", "ijk=jik", map[string]Irreps{"i": x, "j": x, "k": x}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewReducedTensorProducts(tt.formula, tt.in); !errors.Is(err, ErrFormula) {
				t.Errorf("error = %v, want ErrFormula", err)
			}
		})
	}

	r, err := NewReducedTensorProducts("ij=-ji", map[string]Irreps{"i": x, "j": x})
	if err != nil {
		t.Fatal(err)
	}
	saved, _ := r.StateDict()
	saved[keyOut] = "1x0e"
	if err := new(ReducedTensorProducts).LoadStateDict(saved); !errors.Is(err, ErrFormula) {
		t.Errorf("drifted output error = %v, want ErrFormula", err)
	}
}

func TestNormalize2Mom(t *testing.T) {
	tests := []struct {
		name string
		want float64
	}{
		{"identity", 1},
		{"square", 1 / math.Sqrt(3)},
		{"cos", 1 / math.Sqrt((1+math.Exp(-2))/2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewNormalize2Mom(tt.name)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(n.Constant()-tt.want) > 1e-9 {
				t.Errorf("Constant() = %v, want %v", n.Constant(), tt.want)
			}

			saved, _ := n.StateDict()
			var loaded Normalize2Mom
			if err := loaded.LoadStateDict(saved); err != nil {
				t.Fatal(err)
			}
			if !loaded.Equal(n) {
				t.Error("normalize2mom did not round trip")
			}
		})
	}

	if _, err := NewNormalize2Mom("gelu"); !errors.Is(err, ErrUnknownFunc) {
		t.Errorf("unknown function error = %v, want ErrUnknownFunc", err)
	}
}

func TestActivationParity(t *testing.T) {
	tests := []struct {
		in      string
		acts    []string
		want    string
		wantErr bool
	}{
		{in: "4x0o", acts: []string{"tanh"}, want: "4x0o"},
		{in: "4x0o", acts: []string{"abs"}, want: "4x0e"},
		{in: "4x0e+2x1o", acts: []string{"silu", ""}, want: "4x0e+2x1o"},
		{in: "4x0o", acts: []string{"relu"}, wantErr: true},
		{in: "2x1o", acts: []string{"tanh"}, wantErr: true},
		{in: "2x0e", acts: nil, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			a, err := NewActivation(MustParseIrreps(tt.in), tt.acts)
			if tt.wantErr {
				if err == nil {
					t.Fatal("NewActivation() error = nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewActivation() error = %v", err)
			}
			if got := a.IrrepsOut().String(); got != tt.want {
				t.Errorf("IrrepsOut() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestActivationApply(t *testing.T) {
	a, err := NewActivation(MustParseIrreps("1x0e+1x1o"), []string{"abs", ""})
	if err != nil {
		t.Fatal(err)
	}
	y, err := a.Apply([]float64{-2, 1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if want := 2 * a.acts[0].Constant(); y[0] != want {
		t.Errorf("y[0] = %v, want %v", y[0], want)
	}
	if y[1] != 1 || y[3] != 3 {
		t.Errorf("pass-through changed: %v", y)
	}
	if _, err := a.Apply([]float64{1}); err == nil {
		t.Error("Apply(short) error = nil")
	}
}

func TestGate(t *testing.T) {
	g, err := NewGate(MustParseIrreps("16x0o"), []string{"tanh"}, MustParseIrreps("32x0o"), []string{"tanh"}, MustParseIrreps("16x1e+16x1o"))
	if err != nil {
		t.Fatal(err)
	}
	if got := g.IrrepsIn().String(); got != "16x0o+32x0o+16x1e+16x1o" {
		t.Errorf("IrrepsIn() = %s", got)
	}
	if got := g.IrrepsOut().String(); got != "16x0o+16x1o+16x1e" {
		t.Errorf("IrrepsOut() = %s", got)
	}

	saved, _ := g.StateDict()
	var loaded Gate
	if err := loaded.LoadStateDict(saved); err != nil {
		t.Fatal(err)
	}
	if !loaded.Equal(g) || !loaded.IrrepsOut().Equal(g.IrrepsOut()) {
		t.Error("gate did not round trip")
	}

	if _, err := NewGate(Irreps{}, nil, MustParseIrreps("2x0e"), []string{"sigmoid"}, MustParseIrreps("3x1o")); err == nil {
		t.Error("gate count mismatch accepted")
	}
}
