package e3

import (
	"errors"
	"fmt"
	"slices"
)

// Keys of the TensorProduct state dictionary.
const (
	keyIn1          = "irreps_in1"
	keyIn2          = "irreps_in2"
	keyOut          = "irreps_out"
	keyInstructions = "instructions"
	keyWeights      = "weights"
	keyPlan         = "_codegen_plan"
)

// PlanKey is the state dictionary entry holding the compiled plan of a
// TensorProduct or ReducedTensorProducts.
const PlanKey = keyPlan

var ErrWeights = errors.New("e3: weight count mismatch")

// TensorProduct is a weighted bilinear map In1 x In2 -> Out described by a
// list of instructions. The contraction schedule is compiled once and kept
// in the state so a reload does not recompile.
type TensorProduct struct {
	in1, in2, out Irreps
	instructions  []Instruction
	weights       []float64
	plan          []byte
}

// NewTensorProduct validates the instructions and compiles the plan. Weights
// start at zero.
func NewTensorProduct(in1, in2, out Irreps, instructions []Instruction) (*TensorProduct, error) {
	tp := &TensorProduct{}
	if err := tp.init(in1, in2, out, instructions); err != nil {
		return nil, err
	}
	tp.weights = make([]float64, tp.WeightNumel())
	return tp, nil
}

func (tp *TensorProduct) init(in1, in2, out Irreps, instructions []Instruction) error {
	resolved := make([]Instruction, len(instructions))
	for i, in := range instructions {
		r, err := in.resolve(in1, in2, out)
		if err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
		resolved[i] = r
	}
	tp.in1, tp.in2, tp.out = in1, in2, out
	tp.instructions = resolved
	tp.plan = compile(in1, in2, out, resolved)
	return nil
}

// IrrepsIn1 returns the first input irreps.
func (tp *TensorProduct) IrrepsIn1() Irreps { return tp.in1 }

// IrrepsIn2 returns the second input irreps.
func (tp *TensorProduct) IrrepsIn2() Irreps { return tp.in2 }

// IrrepsOut returns the output irreps.
func (tp *TensorProduct) IrrepsOut() Irreps { return tp.out }

// Instructions returns a copy of the resolved instructions.
func (tp *TensorProduct) Instructions() []Instruction {
	out := make([]Instruction, len(tp.instructions))
	for i, in := range tp.instructions {
		in.PathShape = slices.Clone(in.PathShape)
		out[i] = in
	}
	return out
}

// WeightNumel returns the number of weights over all weighted paths.
func (tp *TensorProduct) WeightNumel() int {
	n := 0
	for _, in := range tp.instructions {
		n += in.weightCount()
	}
	return n
}

// Weights returns a copy of the flat weight vector.
func (tp *TensorProduct) Weights() []float64 { return slices.Clone(tp.weights) }

// SetWeights replaces the weights.
func (tp *TensorProduct) SetWeights(w []float64) error {
	if len(w) != tp.WeightNumel() {
		return fmt.Errorf("%w: got %d, want %d", ErrWeights, len(w), tp.WeightNumel())
	}
	tp.weights = slices.Clone(w)
	return nil
}

// Plan returns the compiled plan bytes.
func (tp *TensorProduct) Plan() []byte { return slices.Clone(tp.plan) }

// Equal compares configuration and weights. NaN weights compare equal.
func (tp *TensorProduct) Equal(other *TensorProduct) bool {
	if tp == nil || other == nil {
		return tp == other
	}
	if !tp.in1.Equal(other.in1) || !tp.in2.Equal(other.in2) || !tp.out.Equal(other.out) {
		return false
	}
	if !slices.EqualFunc(tp.instructions, other.instructions, Instruction.Equal) {
		return false
	}
	return slices.EqualFunc(tp.weights, other.weights, floatEqual)
}

func (tp *TensorProduct) String() string {
	return fmt.Sprintf("TensorProduct(%s x %s -> %s | %d paths | %d weights)",
		tp.in1, tp.in2, tp.out, len(tp.instructions), tp.WeightNumel())
}

// StateDict exports the configuration, the weights and the compiled plan.
func (tp *TensorProduct) StateDict() (map[string]any, error) {
	return map[string]any{
		keyIn1:          tp.in1.String(),
		keyIn2:          tp.in2.String(),
		keyOut:          tp.out.String(),
		keyInstructions: encodeInstructions(tp.instructions),
		keyWeights:      slices.Clone(tp.weights),
		keyPlan:         slices.Clone(tp.plan),
	}, nil
}

// LoadStateDict restores a product exported by StateDict. A stored plan must
// match the plan compiled from the configuration.
func (tp *TensorProduct) LoadStateDict(m map[string]any) error {
	var irreps [3]Irreps
	for i, key := range []string{keyIn1, keyIn2, keyOut} {
		x, err := irrepsField(m, key)
		if err != nil {
			return err
		}
		irreps[i] = x
	}
	instructions, err := decodeInstructions(m[keyInstructions])
	if err != nil {
		return err
	}
	if err := tp.init(irreps[0], irreps[1], irreps[2], instructions); err != nil {
		return err
	}
	if err := tp.checkPlan(m[keyPlan]); err != nil {
		return err
	}
	w, err := floats(m[keyWeights])
	if err != nil {
		return fmt.Errorf("e3: %s: %w", keyWeights, err)
	}
	return tp.SetWeights(w)
}

func (tp *TensorProduct) checkPlan(v any) error {
	if v == nil {
		return nil
	}
	plan, ok := v.([]byte)
	if !ok {
		return fmt.Errorf("%w: %s is %T", ErrPlan, keyPlan, v)
	}
	if _, _, err := planPaths(plan); err != nil {
		return err
	}
	if !slices.Equal(plan, tp.plan) {
		return fmt.Errorf("%w: stored plan does not match configuration", ErrPlan)
	}
	return nil
}

// TensorSquare is the tensor product of Irreps with itself restricted to
// the symmetric part, one weightless path per unordered pair of terms and
// output irrep.
type TensorSquare struct {
	TensorProduct
}

// NewTensorSquare builds the square of in.
func NewTensorSquare(in Irreps) (*TensorSquare, error) {
	var (
		outItems     []MulIrrep
		instructions []Instruction
	)
	for i := 0; i < in.Len(); i++ {
		for j := i; j < in.Len(); j++ {
			a, b := in.At(i), in.At(j)
			for _, ir := range a.Ir.Mul(b.Ir) {
				mul := a.Mul * b.Mul
				if i == j {
					// even degrees are symmetric in the two factors, odd
					// degrees antisymmetric
					mul = a.Mul * (a.Mul + 1) / 2
					if ir.L%2 == 1 {
						mul = a.Mul * (a.Mul - 1) / 2
					}
				}
				if mul == 0 {
					continue
				}
				outItems = append(outItems, MulIrrep{Mul: mul, Ir: ir})
				instructions = append(instructions, Instruction{In1: i, In2: j, Out: len(outItems) - 1, Mode: "uvw"})
			}
		}
	}
	out, err := NewIrreps(outItems...)
	if err != nil {
		return nil, err
	}
	tp, err := NewTensorProduct(in, in, out, instructions)
	if err != nil {
		return nil, err
	}
	return &TensorSquare{TensorProduct: *tp}, nil
}

// IrrepsIn returns the squared irreps.
func (ts *TensorSquare) IrrepsIn() Irreps { return ts.in1 }

// Equal compares the underlying products.
func (ts *TensorSquare) Equal(other *TensorSquare) bool {
	if ts == nil || other == nil {
		return ts == other
	}
	return ts.TensorProduct.Equal(&other.TensorProduct)
}

// LoadStateDict restores a square and checks both inputs agree.
func (ts *TensorSquare) LoadStateDict(m map[string]any) error {
	if err := ts.TensorProduct.LoadStateDict(m); err != nil {
		return err
	}
	if !ts.in1.Equal(ts.in2) {
		return fmt.Errorf("%w: square inputs differ (%s, %s)", ErrInstruction, ts.in1, ts.in2)
	}
	return nil
}

// ElementwiseTensorProduct multiplies term i of the first input with term
// i of the second, channel by channel.
type ElementwiseTensorProduct struct {
	TensorProduct
}

// NewElementwiseTensorProduct pairs the terms of in1 and in2, which must
// have the same multiplicities, and keeps the output irreps accepted by
// filter. A nil filter keeps all of them.
func NewElementwiseTensorProduct(in1, in2 Irreps, filter func(Irrep) bool) (*ElementwiseTensorProduct, error) {
	if in1.Len() != in2.Len() {
		return nil, fmt.Errorf("%w: %d terms vs %d", ErrInstruction, in1.Len(), in2.Len())
	}
	var (
		outItems     []MulIrrep
		instructions []Instruction
	)
	for i := 0; i < in1.Len(); i++ {
		a, b := in1.At(i), in2.At(i)
		if a.Mul != b.Mul {
			return nil, fmt.Errorf("%w: term %d multiplicities %d and %d", ErrInstruction, i, a.Mul, b.Mul)
		}
		for _, ir := range a.Ir.Mul(b.Ir) {
			if filter != nil && !filter(ir) {
				continue
			}
			outItems = append(outItems, MulIrrep{Mul: a.Mul, Ir: ir})
			instructions = append(instructions, Instruction{In1: i, In2: i, Out: len(outItems) - 1, Mode: "uuu"})
		}
	}
	out, err := NewIrreps(outItems...)
	if err != nil {
		return nil, err
	}
	tp, err := NewTensorProduct(in1, in2, out, instructions)
	if err != nil {
		return nil, err
	}
	return &ElementwiseTensorProduct{TensorProduct: *tp}, nil
}

// Equal compares the underlying products.
func (e *ElementwiseTensorProduct) Equal(other *ElementwiseTensorProduct) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.TensorProduct.Equal(&other.TensorProduct)
}

func encodeInstructions(ins []Instruction) []any {
	out := make([]any, len(ins))
	for i, in := range ins {
		out[i] = []any{int64(in.In1), int64(in.In2), int64(in.Out), in.Mode, in.HasWeight, in.PathWeight}
	}
	return out
}

func decodeInstructions(v any) ([]Instruction, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: instructions are %T", ErrInstruction, v)
	}
	out := make([]Instruction, len(list))
	for i, item := range list {
		in, err := InstructionFromTuple(item)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		out[i] = in
	}
	return out, nil
}

// Tuple returns the instruction as [in1, in2, out, mode, has_weight,
// path_weight, path_shape].
func (in Instruction) Tuple() []any {
	shape := make([]any, len(in.PathShape))
	for i, d := range in.PathShape {
		shape[i] = int64(d)
	}
	return []any{int64(in.In1), int64(in.In2), int64(in.Out), in.Mode, in.HasWeight, in.PathWeight, shape}
}

// InstructionFromTuple is the inverse of Tuple. The path shape is optional.
func InstructionFromTuple(v any) (Instruction, error) {
	t, ok := v.([]any)
	if !ok || len(t) < 6 || len(t) > 7 {
		return Instruction{}, fmt.Errorf("%w: malformed tuple %v", ErrInstruction, v)
	}
	var (
		in  Instruction
		err error
	)
	if in.In1, err = toInt(t[0]); err != nil {
		return Instruction{}, err
	}
	if in.In2, err = toInt(t[1]); err != nil {
		return Instruction{}, err
	}
	if in.Out, err = toInt(t[2]); err != nil {
		return Instruction{}, err
	}
	if in.Mode, ok = t[3].(string); !ok {
		return Instruction{}, fmt.Errorf("%w: mode is %T", ErrInstruction, t[3])
	}
	if in.HasWeight, ok = t[4].(bool); !ok {
		return Instruction{}, fmt.Errorf("%w: has_weight is %T", ErrInstruction, t[4])
	}
	if in.PathWeight, err = toFloat(t[5]); err != nil {
		return Instruction{}, err
	}
	if len(t) == 7 && t[6] != nil {
		dims, ok := t[6].([]any)
		if !ok {
			return Instruction{}, fmt.Errorf("%w: path_shape is %T", ErrInstruction, t[6])
		}
		in.PathShape = make([]int, len(dims))
		for i, d := range dims {
			if in.PathShape[i], err = toInt(d); err != nil {
				return Instruction{}, err
			}
		}
	}
	return in, nil
}
