package nn

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"

	"github.com/bft-labs/scistore/sci/tensor"
)

func pair(p [2]int) []int { return []int{p[0], p[1]} }

func param(p *Parameter) any {
	if p == nil {
		return nil
	}
	return p
}

// Linear applies y = xWᵀ + b.
type Linear struct {
	training
	InFeatures, OutFeatures int
	Weight                  *Parameter
	Bias                    *Parameter
}

// NewLinear returns a Linear layer with weights drawn uniformly from
// ±1/sqrt(in). r may be nil for zero weights.
func NewLinear(in, out int, bias bool, r *rand.Rand) (*Linear, error) {
	if in <= 0 || out <= 0 {
		return nil, fmt.Errorf("%w: Linear(%d, %d)", ErrConfig, in, out)
	}
	l := &Linear{training: training{on: true}, InFeatures: in, OutFeatures: out}
	l.Weight = NewParameter(initTensor(r, in, out, in))
	if bias {
		l.Bias = NewParameter(initTensor(r, in, out))
	}
	return l, nil
}

func initTensor(r *rand.Rand, fanIn int, shape ...int) *tensor.Tensor {
	if r == nil {
		return zeros(shape...)
	}
	return uniform(r, 1/math.Sqrt(float64(fanIn)), shape...)
}

func (l *Linear) Kind() string { return "Linear" }

func (l *Linear) Hyper() map[string]any {
	return map[string]any{"in_features": l.InFeatures, "out_features": l.OutFeatures}
}

func (l *Linear) SetHyper(h map[string]any) (err error) {
	if l.InFeatures, err = hyperInt(h, "in_features"); err != nil {
		return err
	}
	if l.OutFeatures, err = hyperInt(h, "out_features"); err != nil {
		return err
	}
	if l.InFeatures <= 0 || l.OutFeatures <= 0 {
		return fmt.Errorf("%w: Linear(%d, %d)", ErrConfig, l.InFeatures, l.OutFeatures)
	}
	return nil
}

func (l *Linear) Members() []Member {
	return []Member{{"weight", param(l.Weight)}, {"bias", param(l.Bias)}}
}

func (l *Linear) SetMember(name string, v any) (err error) {
	switch name {
	case "weight":
		l.Weight, err = asParameter(name, v)
	case "bias":
		l.Bias, err = asParameter(name, v)
	default:
		err = fmt.Errorf("%w: Linear.%s", ErrMember, name)
	}
	return err
}

func (l *Linear) Train(mode bool) { l.on = mode }

// Forward applies the layer to one input vector.
func (l *Linear) Forward(x []float64) ([]float64, error) {
	if len(x) != l.InFeatures {
		return nil, fmt.Errorf("%w: input of length %d for Linear(%d, %d)", ErrConfig, len(x), l.InFeatures, l.OutFeatures)
	}
	w, err := l.Weight.Data.Float64s()
	if err != nil {
		return nil, err
	}
	var b []float64
	if l.Bias != nil {
		if b, err = l.Bias.Data.Float64s(); err != nil {
			return nil, err
		}
	}
	y := make([]float64, l.OutFeatures)
	for o := range y {
		if b != nil {
			y[o] = b[o]
		}
		for i, xi := range x {
			y[o] += w[o*l.InFeatures+i] * xi
		}
	}
	return y, nil
}

// Equal compares structure and parameters.
func (l *Linear) Equal(o *Linear) bool { return Equal(l, o) }

// Conv2d is a 2D convolution over (N, C, H, W) inputs.
type Conv2d struct {
	training
	InChannels, OutChannels int
	KernelSize              [2]int
	Stride                  [2]int
	Padding                 [2]int
	Dilation                [2]int
	Groups                  int
	PaddingMode             string
	Weight                  *Parameter
	Bias                    *Parameter
}

var paddingModes = []string{"zeros", "reflect", "replicate", "circular"}

// NewConv2d returns a Conv2d with unit stride and dilation, no padding and a
// single group.
func NewConv2d(in, out int, kernel [2]int, bias bool, r *rand.Rand) (*Conv2d, error) {
	c := &Conv2d{
		training:    training{on: true},
		InChannels:  in,
		OutChannels: out,
		KernelSize:  kernel,
		Stride:      [2]int{1, 1},
		Dilation:    [2]int{1, 1},
		Groups:      1,
		PaddingMode: "zeros",
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	fanIn := in / c.Groups * kernel[0] * kernel[1]
	c.Weight = NewParameter(initTensor(r, fanIn, out, in/c.Groups, kernel[0], kernel[1]))
	if bias {
		c.Bias = NewParameter(initTensor(r, fanIn, out))
	}
	return c, nil
}

func (c *Conv2d) validate() error {
	switch {
	case c.InChannels <= 0 || c.OutChannels <= 0:
		return fmt.Errorf("%w: Conv2d channels %d -> %d", ErrConfig, c.InChannels, c.OutChannels)
	case c.Groups <= 0 || c.InChannels%c.Groups != 0 || c.OutChannels%c.Groups != 0:
		return fmt.Errorf("%w: Conv2d channels must be divisible by groups=%d", ErrConfig, c.Groups)
	case c.KernelSize[0] <= 0 || c.KernelSize[1] <= 0:
		return fmt.Errorf("%w: Conv2d kernel %v", ErrConfig, c.KernelSize)
	case !slices.Contains(paddingModes, c.PaddingMode):
		return fmt.Errorf("%w: Conv2d padding mode %q", ErrConfig, c.PaddingMode)
	}
	return nil
}

// OutputSize returns the spatial size produced for an h×w input.
func (c *Conv2d) OutputSize(h, w int) (int, int) {
	dim := func(n, i int) int {
		return (n+2*c.Padding[i]-c.Dilation[i]*(c.KernelSize[i]-1)-1)/c.Stride[i] + 1
	}
	return dim(h, 0), dim(w, 1)
}

func (c *Conv2d) Kind() string { return "Conv2d" }

func (c *Conv2d) Hyper() map[string]any {
	return map[string]any{
		"in_channels":  c.InChannels,
		"out_channels": c.OutChannels,
		"kernel_size":  pair(c.KernelSize),
		"stride":       pair(c.Stride),
		"padding":      pair(c.Padding),
		"dilation":     pair(c.Dilation),
		"groups":       c.Groups,
		"padding_mode": c.PaddingMode,
	}
}

func (c *Conv2d) SetHyper(h map[string]any) (err error) {
	var n Conv2d
	if n.InChannels, err = hyperInt(h, "in_channels"); err != nil {
		return err
	}
	if n.OutChannels, err = hyperInt(h, "out_channels"); err != nil {
		return err
	}
	for key, dst := range map[string]*[2]int{
		"kernel_size": &n.KernelSize, "stride": &n.Stride, "padding": &n.Padding, "dilation": &n.Dilation,
	} {
		if *dst, err = hyperPair(h, key); err != nil {
			return err
		}
	}
	if n.Groups, err = hyperInt(h, "groups"); err != nil {
		return err
	}
	if n.PaddingMode, err = hyperString(h, "padding_mode"); err != nil {
		return err
	}
	if err := n.validate(); err != nil {
		return err
	}
	n.training, n.Weight, n.Bias = c.training, c.Weight, c.Bias
	*c = n
	return nil
}

func (c *Conv2d) Members() []Member {
	return []Member{{"weight", param(c.Weight)}, {"bias", param(c.Bias)}}
}

func (c *Conv2d) SetMember(name string, v any) (err error) {
	switch name {
	case "weight":
		c.Weight, err = asParameter(name, v)
	case "bias":
		c.Bias, err = asParameter(name, v)
	default:
		err = fmt.Errorf("%w: Conv2d.%s", ErrMember, name)
	}
	return err
}

func (c *Conv2d) Train(mode bool) { c.on = mode }

func (c *Conv2d) Equal(o *Conv2d) bool { return Equal(c, o) }

// MaxPool2d has no parameters.
type MaxPool2d struct {
	training
	KernelSize    [2]int
	Stride        [2]int
	Padding       [2]int
	Dilation      [2]int
	ReturnIndices bool
	CeilMode      bool
}

// NewMaxPool2d returns a pool whose stride defaults to the kernel size.
func NewMaxPool2d(kernel [2]int) (*MaxPool2d, error) {
	p := &MaxPool2d{training: training{on: true}, KernelSize: kernel, Stride: kernel, Dilation: [2]int{1, 1}}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *MaxPool2d) validate() error {
	for i := range 2 {
		if p.KernelSize[i] <= 0 || p.Stride[i] <= 0 || p.Dilation[i] <= 0 {
			return fmt.Errorf("%w: MaxPool2d kernel %v stride %v dilation %v", ErrConfig, p.KernelSize, p.Stride, p.Dilation)
		}
		if p.Padding[i] > p.KernelSize[i]/2 {
			return fmt.Errorf("%w: MaxPool2d padding %v exceeds half the kernel", ErrConfig, p.Padding)
		}
	}
	return nil
}

// OutputSize returns the spatial size produced for an h×w input.
func (p *MaxPool2d) OutputSize(h, w int) (int, int) {
	dim := func(n, i int) int {
		span := n + 2*p.Padding[i] - p.Dilation[i]*(p.KernelSize[i]-1) - 1
		if p.CeilMode {
			return (span+p.Stride[i]-1)/p.Stride[i] + 1
		}
		return span/p.Stride[i] + 1
	}
	return dim(h, 0), dim(w, 1)
}

func (p *MaxPool2d) Kind() string { return "MaxPool2d" }

func (p *MaxPool2d) Hyper() map[string]any {
	return map[string]any{
		"kernel_size":    pair(p.KernelSize),
		"stride":         pair(p.Stride),
		"padding":        pair(p.Padding),
		"dilation":       pair(p.Dilation),
		"return_indices": p.ReturnIndices,
		"ceil_mode":      p.CeilMode,
	}
}

func (p *MaxPool2d) SetHyper(h map[string]any) (err error) {
	n := MaxPool2d{training: p.training}
	for key, dst := range map[string]*[2]int{
		"kernel_size": &n.KernelSize, "stride": &n.Stride, "padding": &n.Padding, "dilation": &n.Dilation,
	} {
		if *dst, err = hyperPair(h, key); err != nil {
			return err
		}
	}
	if n.ReturnIndices, err = hyperBool(h, "return_indices"); err != nil {
		return err
	}
	if n.CeilMode, err = hyperBool(h, "ceil_mode"); err != nil {
		return err
	}
	if err := n.validate(); err != nil {
		return err
	}
	*p = n
	return nil
}

func (p *MaxPool2d) Members() []Member { return nil }

func (p *MaxPool2d) SetMember(name string, _ any) error {
	return fmt.Errorf("%w: MaxPool2d.%s", ErrMember, name)
}

func (p *MaxPool2d) Train(mode bool) { p.on = mode }

func (p *MaxPool2d) Equal(o *MaxPool2d) bool { return Equal(p, o) }

// ModuleList holds submodules in order.
type ModuleList struct {
	training
	Modules []Module
}

// NewModuleList returns a list in training mode.
func NewModuleList(mods ...Module) *ModuleList {
	return &ModuleList{training: training{on: true}, Modules: mods}
}

// Append adds m at the end.
func (l *ModuleList) Append(m Module) { l.Modules = append(l.Modules, m) }

func (l *ModuleList) Len() int { return len(l.Modules) }

func (l *ModuleList) Kind() string { return "ModuleList" }

func (l *ModuleList) Hyper() map[string]any { return map[string]any{} }

func (l *ModuleList) SetHyper(map[string]any) error { return nil }

func (l *ModuleList) Members() []Member {
	out := make([]Member, len(l.Modules))
	for i, m := range l.Modules {
		out[i] = Member{Name: strconv.Itoa(i), Value: m}
	}
	return out
}

// SetMember sets index name. Setting index Len() appends.
func (l *ModuleList) SetMember(name string, v any) error {
	i, err := strconv.Atoi(name)
	if err != nil || i < 0 || i > len(l.Modules) {
		return fmt.Errorf("%w: ModuleList[%s]", ErrMember, name)
	}
	m, ok := v.(Module)
	if !ok {
		return fmt.Errorf("%w: ModuleList[%d] must be a Module, got %T", ErrConfig, i, v)
	}
	if i == len(l.Modules) {
		l.Modules = append(l.Modules, m)
	} else {
		l.Modules[i] = m
	}
	return nil
}

func (l *ModuleList) Train(mode bool) {
	l.on = mode
	for _, m := range l.Modules {
		m.Train(mode)
	}
}

func (l *ModuleList) Equal(o *ModuleList) bool { return Equal(l, o) }

// ModuleDict holds named submodules in insertion order.
type ModuleDict struct {
	training
	keys []string
	mods map[string]Module
}

// NewModuleDict returns an empty dict in training mode.
func NewModuleDict() *ModuleDict {
	return &ModuleDict{training: training{on: true}, mods: map[string]Module{}}
}

// Set adds or replaces a submodule. New keys go last.
func (d *ModuleDict) Set(key string, m Module) error {
	if key == "" || m == nil {
		return fmt.Errorf("%w: ModuleDict entry %q", ErrConfig, key)
	}
	if d.mods == nil {
		d.mods = map[string]Module{}
	}
	if _, ok := d.mods[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.mods[key] = m
	return nil
}

// Get returns the submodule at key.
func (d *ModuleDict) Get(key string) (Module, bool) {
	m, ok := d.mods[key]
	return m, ok
}

// Keys returns keys in insertion order.
func (d *ModuleDict) Keys() []string { return slices.Clone(d.keys) }

func (d *ModuleDict) Kind() string { return "ModuleDict" }

func (d *ModuleDict) Hyper() map[string]any { return map[string]any{} }

func (d *ModuleDict) SetHyper(map[string]any) error { return nil }

func (d *ModuleDict) Members() []Member {
	out := make([]Member, len(d.keys))
	for i, k := range d.keys {
		out[i] = Member{Name: k, Value: d.mods[k]}
	}
	return out
}

func (d *ModuleDict) SetMember(name string, v any) error {
	m, ok := v.(Module)
	if !ok {
		return fmt.Errorf("%w: ModuleDict[%s] must be a Module, got %T", ErrConfig, name, v)
	}
	return d.Set(name, m)
}

func (d *ModuleDict) Train(mode bool) {
	d.on = mode
	for _, m := range d.mods {
		m.Train(mode)
	}
}

func (d *ModuleDict) Equal(o *ModuleDict) bool { return Equal(d, o) }

var (
	_ Module = (*Linear)(nil)
	_ Module = (*Conv2d)(nil)
	_ Module = (*MaxPool2d)(nil)
	_ Module = (*ModuleList)(nil)
	_ Module = (*ModuleDict)(nil)
)
