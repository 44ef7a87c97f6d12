package nn

import (
	"fmt"
	"slices"
	"strings"
)

// Layer is an immutable layer description. Parameters live outside the
// layer and are created for a given input shape.
type Layer interface {
	Kind() string
	OutputShape(in []int) ([]int, error)
}

// Initializer names understood by Dense and DenseGeneral.
const (
	LecunNormal = "lecun_normal"
	Zeros       = "zeros"
)

// Dense is a fully connected layer over the last axis.
type Dense struct {
	Features   int
	UseBias    bool
	DType      string
	ParamDType string
	Precision  string
	KernelInit string
	BiasInit   string
}

// NewDense returns a Dense layer with the usual defaults.
func NewDense(features int) (Dense, error) {
	d := Dense{Features: features, UseBias: true, ParamDType: "float32", KernelInit: LecunNormal, BiasInit: Zeros}
	return d, d.Validate()
}

// Validate checks the feature count.
func (d Dense) Validate() error {
	if d.Features <= 0 {
		return fmt.Errorf("%w: Dense features %d", ErrConfig, d.Features)
	}
	return nil
}

func (d Dense) Kind() string { return "Dense" }

// OutputShape replaces the last axis with Features.
func (d Dense) OutputShape(in []int) ([]int, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: Dense needs at least one input axis", ErrConfig)
	}
	out := slices.Clone(in)
	out[len(out)-1] = d.Features
	return out, nil
}

// ParamShapes returns the kernel and bias shapes for an input of n features.
func (d Dense) ParamShapes(n int) map[string][]int {
	shapes := map[string][]int{"kernel": {n, d.Features}}
	if d.UseBias {
		shapes["bias"] = []int{d.Features}
	}
	return shapes
}

func (d Dense) Equal(o Dense) bool { return d == o }

// DenseGeneral contracts the given input axes into a multi-axis feature
// block.
type DenseGeneral struct {
	Features   []int
	Axis       []int
	BatchDims  []int
	UseBias    bool
	DType      string
	ParamDType string
	Precision  string
	KernelInit string
	BiasInit   string
}

// NewDenseGeneral contracts the last axis into features.
func NewDenseGeneral(features ...int) (DenseGeneral, error) {
	d := DenseGeneral{
		Features:   features,
		Axis:       []int{-1},
		UseBias:    true,
		ParamDType: "float32",
		KernelInit: LecunNormal,
		BiasInit:   Zeros,
	}
	return d, d.Validate()
}

// Validate checks features and that axes are distinct.
func (d DenseGeneral) Validate() error {
	if len(d.Features) == 0 || slices.ContainsFunc(d.Features, func(f int) bool { return f <= 0 }) {
		return fmt.Errorf("%w: DenseGeneral features %v", ErrConfig, d.Features)
	}
	if len(d.Axis) == 0 {
		return fmt.Errorf("%w: DenseGeneral needs at least one axis", ErrConfig)
	}
	seen := map[int]bool{}
	for _, a := range slices.Concat(d.Axis, d.BatchDims) {
		if seen[a] {
			return fmt.Errorf("%w: DenseGeneral axis %d repeated", ErrConfig, a)
		}
		seen[a] = true
	}
	return nil
}

func (d DenseGeneral) Kind() string { return "DenseGeneral" }

// OutputShape drops the contracted axes and appends Features.
func (d DenseGeneral) OutputShape(in []int) ([]int, error) {
	contracted := map[int]bool{}
	for _, a := range d.Axis {
		if a < 0 {
			a += len(in)
		}
		if a < 0 || a >= len(in) {
			return nil, fmt.Errorf("%w: axis %d out of range for %d input axes", ErrConfig, a, len(in))
		}
		contracted[a] = true
	}
	var out []int
	for i, n := range in {
		if !contracted[i] {
			out = append(out, n)
		}
	}
	return append(out, d.Features...), nil
}

func (d DenseGeneral) Equal(o DenseGeneral) bool {
	return slices.Equal(d.Features, o.Features) && slices.Equal(d.Axis, o.Axis) &&
		slices.Equal(d.BatchDims, o.BatchDims) && d.UseBias == o.UseBias && d.DType == o.DType &&
		d.ParamDType == o.ParamDType && d.Precision == o.Precision &&
		d.KernelInit == o.KernelInit && d.BiasInit == o.BiasInit
}

// Sequential chains layers.
type Sequential struct {
	layers []Layer
}

// NewSequential returns a chain of at least one layer.
func NewSequential(layers ...Layer) (*Sequential, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("%w: empty Sequential", ErrConfig)
	}
	if slices.Contains(layers, nil) {
		return nil, fmt.Errorf("%w: nil layer in Sequential", ErrConfig)
	}
	return &Sequential{layers: cloneLayers(layers)}, nil
}

// Layers returns a copy of the chain.
func (s *Sequential) Layers() []Layer { return cloneLayers(s.layers) }

// cloneLayers copies the chain deeply enough that no slice is shared with
// the caller. A nested Sequential is itself immutable and kept as is.
func cloneLayers(layers []Layer) []Layer {
	out := make([]Layer, len(layers))
	for i, l := range layers {
		if d, ok := l.(DenseGeneral); ok {
			d.Features = slices.Clone(d.Features)
			d.Axis = slices.Clone(d.Axis)
			d.BatchDims = slices.Clone(d.BatchDims)
			l = d
		}
		out[i] = l
	}
	return out
}

func (s *Sequential) Kind() string { return "Sequential" }

// OutputShape threads in through every layer.
func (s *Sequential) OutputShape(in []int) ([]int, error) {
	shape := in
	for i, l := range s.layers {
		var err error
		if shape, err = l.OutputShape(shape); err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, l.Kind(), err)
		}
	}
	return shape, nil
}

// Equal compares the layers pairwise.
func (s *Sequential) Equal(o *Sequential) bool {
	if s == nil || o == nil {
		return s == o
	}
	return slices.EqualFunc(s.layers, o.layers, LayerEqual)
}

func (s *Sequential) String() string {
	kinds := make([]string, len(s.layers))
	for i, l := range s.layers {
		kinds[i] = l.Kind()
	}
	return "Sequential(" + strings.Join(kinds, ", ") + ")"
}

// LayerEqual compares two layers of any kind.
func LayerEqual(a, b Layer) bool {
	switch x := a.(type) {
	case Dense:
		y, ok := b.(Dense)
		return ok && x.Equal(y)
	case DenseGeneral:
		y, ok := b.(DenseGeneral)
		return ok && x.Equal(y)
	case *Sequential:
		y, ok := b.(*Sequential)
		return ok && x.Equal(y)
	}
	return false
}

var (
	_ Layer = Dense{}
	_ Layer = DenseGeneral{}
	_ Layer = (*Sequential)(nil)
)
