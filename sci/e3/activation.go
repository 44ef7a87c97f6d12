package e3

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/integrate/quad"
)

var (
	ErrUnknownFunc = errors.New("e3: unknown scalar function")
	ErrParity      = errors.New("e3: parity violated")
)

// Func is a named scalar function with a known parity: 1 for even, -1 for
// odd and 0 for neither.
type Func struct {
	Name   string
	Parity int
	F      func(float64) float64
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

var funcs = map[string]Func{
	"abs":      {"abs", 1, math.Abs},
	"cos":      {"cos", 1, math.Cos},
	"identity": {"identity", -1, func(x float64) float64 { return x }},
	"relu":     {"relu", 0, func(x float64) float64 { return math.Max(x, 0) }},
	"sigmoid":  {"sigmoid", 0, sigmoid},
	"silu":     {"silu", 0, func(x float64) float64 { return x * sigmoid(x) }},
	"sin":      {"sin", -1, math.Sin},
	"softplus": {"softplus", 0, func(x float64) float64 { return math.Log1p(math.Exp(x)) }},
	"square":   {"square", 1, func(x float64) float64 { return x * x }},
	"tanh":     {"tanh", -1, math.Tanh},
}

// LookupFunc returns the scalar function registered under name.
func LookupFunc(name string) (Func, error) {
	f, ok := funcs[name]
	if !ok {
		return Func{}, fmt.Errorf("%w: %q", ErrUnknownFunc, name)
	}
	return f, nil
}

// FuncNames lists the known scalar functions.
func FuncNames() []string {
	names := make([]string, 0, len(funcs))
	for name := range funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// hermitePoints is exact for polynomials up to degree 2*hermitePoints-1.
const hermitePoints = 64

// secondMoment returns E[f(z)^2] for z ~ N(0, 1).
func secondMoment(f func(float64) float64) float64 {
	g := func(x float64) float64 {
		y := f(math.Sqrt2 * x)
		return y * y
	}
	return quad.Fixed(g, math.Inf(-1), math.Inf(1), hermitePoints, quad.Hermite{}, 0) / math.Sqrt(math.Pi)
}

// Normalize2Mom scales a scalar function so that its output has unit second
// moment under a standard normal input.
type Normalize2Mom struct {
	f   Func
	cst float64
}

// NewNormalize2Mom computes the normalisation constant of the named function.
func NewNormalize2Mom(name string) (*Normalize2Mom, error) {
	f, err := LookupFunc(name)
	if err != nil {
		return nil, err
	}
	return &Normalize2Mom{f: f, cst: 1 / math.Sqrt(secondMoment(f.F))}, nil
}

// Name returns the wrapped function name.
func (n *Normalize2Mom) Name() string { return n.f.Name }

// Constant returns the scale factor.
func (n *Normalize2Mom) Constant() float64 { return n.cst }

// Apply evaluates the normalised function.
func (n *Normalize2Mom) Apply(x float64) float64 { return n.cst * n.f.F(x) }

// Equal compares function name and constant.
func (n *Normalize2Mom) Equal(other *Normalize2Mom) bool {
	if n == nil || other == nil {
		return n == other
	}
	return n.f.Name == other.f.Name && floatEqual(n.cst, other.cst)
}

// StateDict stores the function by name.
func (n *Normalize2Mom) StateDict() (map[string]any, error) {
	return map[string]any{"f": n.f.Name, "cst": n.cst}, nil
}

// LoadStateDict resolves the function name. A missing constant is
// recomputed.
func (n *Normalize2Mom) LoadStateDict(m map[string]any) error {
	name, ok := m["f"].(string)
	if !ok {
		return fmt.Errorf("%w: f is %T", ErrUnknownFunc, m["f"])
	}
	f, err := LookupFunc(name)
	if err != nil {
		return err
	}
	n.f = f
	if v, ok := m["cst"]; ok {
		if n.cst, err = toFloat(v); err != nil {
			return fmt.Errorf("e3: cst: %w", err)
		}
		return nil
	}
	n.cst = 1 / math.Sqrt(secondMoment(f.F))
	return nil
}

// Activation applies a normalised scalar function to each scalar term of
// its input. Terms with an empty function name pass through unchanged.
type Activation struct {
	in, out Irreps
	acts    []*Normalize2Mom
}

// NewActivation pairs every term of in with a function name.
func NewActivation(in Irreps, acts []string) (*Activation, error) {
	a := &Activation{}
	if err := a.init(in, acts); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Activation) init(in Irreps, acts []string) error {
	if len(acts) != in.Len() {
		return fmt.Errorf("e3: activation: %d functions for %d terms", len(acts), in.Len())
	}
	norms := make([]*Normalize2Mom, len(acts))
	outItems := make([]MulIrrep, in.Len())
	for i, name := range acts {
		m := in.At(i)
		outItems[i] = m
		if name == "" {
			continue
		}
		if m.Ir.L != 0 {
			return fmt.Errorf("e3: activation: term %d (%s) is not scalar", i, m)
		}
		n, err := NewNormalize2Mom(name)
		if err != nil {
			return err
		}
		norms[i] = n
		if m.Ir.P == -1 {
			if n.f.Parity == 0 {
				return fmt.Errorf("%w: %s on odd scalar %s", ErrParity, name, m)
			}
			outItems[i].Ir.P = n.f.Parity
		}
	}
	a.in = in
	a.out = Irreps{items: outItems}
	a.acts = norms
	return nil
}

// IrrepsIn returns the input irreps.
func (a *Activation) IrrepsIn() Irreps { return a.in }

// IrrepsOut returns the output irreps.
func (a *Activation) IrrepsOut() Irreps { return a.out }

// Acts returns the function name of every term.
func (a *Activation) Acts() []string {
	names := make([]string, len(a.acts))
	for i, n := range a.acts {
		if n != nil {
			names[i] = n.Name()
		}
	}
	return names
}

// Apply transforms a feature vector of dimension IrrepsIn().Dim().
func (a *Activation) Apply(x []float64) ([]float64, error) {
	if len(x) != a.in.Dim() {
		return nil, fmt.Errorf("e3: activation: input dim %d, want %d", len(x), a.in.Dim())
	}
	y := slices.Clone(x)
	off := 0
	for i, m := range a.in.items {
		if n := a.acts[i]; n != nil {
			for j := off; j < off+m.Dim(); j++ {
				y[j] = n.Apply(y[j])
			}
		}
		off += m.Dim()
	}
	return y, nil
}

// Equal compares input irreps and functions.
func (a *Activation) Equal(other *Activation) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.in.Equal(other.in) && slices.Equal(a.Acts(), other.Acts())
}

// StateDict stores the irreps and function names.
func (a *Activation) StateDict() (map[string]any, error) {
	return map[string]any{"irreps_in": a.in.String(), "acts": a.Acts()}, nil
}

// LoadStateDict rebuilds the activation.
func (a *Activation) LoadStateDict(m map[string]any) error {
	in, err := irrepsField(m, "irreps_in")
	if err != nil {
		return err
	}
	acts, err := strs(m["acts"])
	if err != nil {
		return fmt.Errorf("e3: acts: %w", err)
	}
	return a.init(in, acts)
}

// Gate applies activations to scalars and uses activated gate scalars to
// scale the channels of the gated irreps.
type Gate struct {
	scalars, gates, gated Irreps
	actScalars, actGates  []string
	out                   Irreps
}

// NewGate builds a gate. Every channel of gated consumes one gate channel.
func NewGate(scalars Irreps, actScalars []string, gates Irreps, actGates []string, gated Irreps) (*Gate, error) {
	g := &Gate{}
	if err := g.init(scalars, actScalars, gates, actGates, gated); err != nil {
		return nil, err
	}
	return g, nil
}

func numIrreps(x Irreps) int {
	n := 0
	for _, m := range x.items {
		n += m.Mul
	}
	return n
}

func (g *Gate) init(scalars Irreps, actScalars []string, gates Irreps, actGates []string, gated Irreps) error {
	for _, x := range []Irreps{scalars, gates} {
		for _, m := range x.items {
			if m.Ir.L != 0 {
				return fmt.Errorf("e3: gate: %s is not scalar", m)
			}
		}
	}
	if numIrreps(gates) != numIrreps(gated) {
		return fmt.Errorf("e3: gate: %d gates for %d gated channels", numIrreps(gates), numIrreps(gated))
	}
	sAct, err := NewActivation(scalars, actScalars)
	if err != nil {
		return fmt.Errorf("e3: gate scalars: %w", err)
	}
	gAct, err := NewActivation(gates, actGates)
	if err != nil {
		return fmt.Errorf("e3: gate gates: %w", err)
	}

	// gate parity of every channel, in order
	var parities []int
	for _, m := range gAct.out.items {
		for range m.Mul {
			parities = append(parities, m.Ir.P)
		}
	}
	items := slices.Clone(sAct.out.items)
	ch := 0
	for _, m := range gated.items {
		if m.Mul == 0 {
			items = append(items, m)
			continue
		}
		p := parities[ch]
		for _, q := range parities[ch : ch+m.Mul] {
			if q != p {
				return fmt.Errorf("%w: gates of %s have mixed parity", ErrParity, m)
			}
		}
		ch += m.Mul
		items = append(items, MulIrrep{Mul: m.Mul, Ir: Irrep{L: m.Ir.L, P: m.Ir.P * p}})
	}

	g.scalars, g.gates, g.gated = scalars, gates, gated
	g.actScalars, g.actGates = slices.Clone(actScalars), slices.Clone(actGates)
	g.out = Irreps{items: items}
	return nil
}

// IrrepsIn returns scalars + gates + gated.
func (g *Gate) IrrepsIn() Irreps {
	items := slices.Concat(g.scalars.items, g.gates.items, g.gated.items)
	return Irreps{items: items}
}

// IrrepsOut returns the activated scalars followed by the gated irreps.
func (g *Gate) IrrepsOut() Irreps { return g.out }

// Equal compares every configuration field.
func (g *Gate) Equal(other *Gate) bool {
	if g == nil || other == nil {
		return g == other
	}
	return g.scalars.Equal(other.scalars) && g.gates.Equal(other.gates) && g.gated.Equal(other.gated) &&
		slices.Equal(g.actScalars, other.actScalars) && slices.Equal(g.actGates, other.actGates)
}

// StateDict stores the configuration.
func (g *Gate) StateDict() (map[string]any, error) {
	return map[string]any{
		"irreps_scalars": g.scalars.String(),
		"act_scalars":    slices.Clone(g.actScalars),
		"irreps_gates":   g.gates.String(),
		"act_gates":      slices.Clone(g.actGates),
		"irreps_gated":   g.gated.String(),
	}, nil
}

// LoadStateDict rebuilds the gate.
func (g *Gate) LoadStateDict(m map[string]any) error {
	var irreps [3]Irreps
	for i, key := range []string{"irreps_scalars", "irreps_gates", "irreps_gated"} {
		x, err := irrepsField(m, key)
		if err != nil {
			return err
		}
		irreps[i] = x
	}
	actScalars, err := strs(m["act_scalars"])
	if err != nil {
		return fmt.Errorf("e3: act_scalars: %w", err)
	}
	actGates, err := strs(m["act_gates"])
	if err != nil {
		return fmt.Errorf("e3: act_gates: %w", err)
	}
	return g.init(irreps[0], actScalars, irreps[1], actGates, irreps[2])
}
