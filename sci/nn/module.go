// Package nn holds neural network building blocks: trainable parameters,
// modules composed of parameters and submodules, and immutable layer
// descriptions.
package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"reflect"
	"slices"

	"github.com/bft-labs/scistore/sci/tensor"
)

var (
	ErrConfig = errors.New("nn: invalid configuration")
	ErrMember = errors.New("nn: unknown member")
)

// Size is a tensor shape.
type Size []int

// Numel returns the product of the dimensions.
func (s Size) Numel() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Equal compares dimensions.
func (s Size) Equal(o Size) bool { return slices.Equal(s, o) }

func (s Size) String() string { return fmt.Sprintf("Size(%v)", []int(s)) }

// Parameter is a tensor that takes part in training.
type Parameter struct {
	Data         *tensor.Tensor
	RequiresGrad bool
}

// NewParameter wraps t with gradients enabled.
func NewParameter(t *tensor.Tensor) *Parameter {
	return &Parameter{Data: t, RequiresGrad: true}
}

// Size returns the shape of the data.
func (p *Parameter) Size() Size {
	if p.Data == nil {
		return nil
	}
	return p.Data.Shape()
}

// Equal compares data and the gradient flag.
func (p *Parameter) Equal(o *Parameter) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.RequiresGrad == o.RequiresGrad && p.Data.Equal(o.Data)
}

// Member is a named parameter or submodule. Value is nil for an absent
// optional member such as a disabled bias.
type Member struct {
	Name  string
	Value any
}

// Module is implemented by every composable network block.
type Module interface {
	// Kind names the block, e.g. "Linear".
	Kind() string

	// Hyper returns the constructor arguments as plain values.
	Hyper() map[string]any
	SetHyper(h map[string]any) error

	// Members returns parameters and submodules in registration order.
	Members() []Member
	SetMember(name string, v any) error

	Training() bool
	Train(mode bool)
}

// Parameters walks m and its submodules depth first and returns every
// parameter keyed by its dotted path.
func Parameters(m Module) map[string]*Parameter {
	out := map[string]*Parameter{}
	var walk func(prefix string, m Module)
	walk = func(prefix string, m Module) {
		for _, mem := range m.Members() {
			switch v := mem.Value.(type) {
			case *Parameter:
				if v != nil {
					out[prefix+mem.Name] = v
				}
			case Module:
				walk(prefix+mem.Name+".", v)
			}
		}
	}
	walk("", m)
	return out
}

// NumParams counts the trainable elements of m.
func NumParams(m Module) int {
	n := 0
	for _, p := range Parameters(m) {
		if p.RequiresGrad && p.Data != nil {
			n += p.Data.Numel()
		}
	}
	return n
}

// Equal compares two modules structurally: kind, hyperparameters, training
// mode and every member.
func Equal(a, b Module) bool {
	if isNil(a) || isNil(b) {
		return isNil(a) && isNil(b)
	}
	if a.Kind() != b.Kind() || a.Training() != b.Training() || !hyperEqual(a.Hyper(), b.Hyper()) {
		return false
	}
	ma, mb := a.Members(), b.Members()
	if len(ma) != len(mb) {
		return false
	}
	for i := range ma {
		if ma[i].Name != mb[i].Name || !memberEqual(ma[i].Value, mb[i].Value) {
			return false
		}
	}
	return true
}

func isNil(m Module) bool {
	if m == nil {
		return true
	}
	rv := reflect.ValueOf(m)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

func memberEqual(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case *Parameter:
		y, ok := b.(*Parameter)
		return ok && x.Equal(y)
	case Module:
		y, ok := b.(Module)
		return ok && Equal(x, y)
	}
	return false
}

func hyperEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, x := range a {
		y, ok := b[k]
		if !ok || !plainEqual(x, y) {
			return false
		}
	}
	return true
}

func plainEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && (fa == fb || (math.IsNaN(fa) && math.IsNaN(fb)))
	}
	if la, ok := toInts(a); ok {
		lb, ok := toInts(b)
		return ok && slices.Equal(la, lb)
	}
	return reflect.DeepEqual(a, b)
}

// training is embedded by every module.
type training struct {
	on bool
}

func (t *training) Training() bool { return t.on }

// uniform fills a float32 tensor of the given shape from U(-bound, bound).
func uniform(r *rand.Rand, bound float64, shape ...int) *tensor.Tensor {
	n := Size(shape).Numel()
	vals := make([]float32, n)
	for i := range vals {
		vals[i] = float32((2*r.Float64() - 1) * bound)
	}
	t, err := tensor.FromFloat32s(shape, vals)
	if err != nil {
		panic(err)
	}
	return t
}

func zeros(shape ...int) *tensor.Tensor {
	t, err := tensor.Empty(tensor.Float32, shape...)
	if err != nil {
		panic(err)
	}
	return t
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	}
	return 0, false
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		if t == math.Trunc(t) {
			return int(t), nil
		}
	}
	return 0, fmt.Errorf("%w: %v is not an integer", ErrConfig, v)
}

func toInts(v any) ([]int, bool) {
	switch t := v.(type) {
	case []int:
		return t, true
	case Size:
		return t, true
	case []any:
		out := make([]int, len(t))
		for i, item := range t {
			n, err := toInt(item)
			if err != nil {
				return nil, false
			}
			out[i] = n
		}
		return out, true
	}
	return nil, false
}

func hyperInt(h map[string]any, key string) (int, error) {
	v, ok := h[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrConfig, key)
	}
	n, err := toInt(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func hyperPair(h map[string]any, key string) ([2]int, error) {
	v, ok := h[key]
	if !ok {
		return [2]int{}, fmt.Errorf("%w: missing %q", ErrConfig, key)
	}
	if n, err := toInt(v); err == nil {
		return [2]int{n, n}, nil
	}
	list, ok := toInts(v)
	if !ok || len(list) != 2 {
		return [2]int{}, fmt.Errorf("%w: %s must be an int or a pair, got %v", ErrConfig, key, v)
	}
	return [2]int{list[0], list[1]}, nil
}

func hyperBool(h map[string]any, key string) (bool, error) {
	b, ok := h[key].(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s must be a bool, got %v", ErrConfig, key, h[key])
	}
	return b, nil
}

func hyperString(h map[string]any, key string) (string, error) {
	s, ok := h[key].(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %v", ErrConfig, key, h[key])
	}
	return s, nil
}

func asParameter(name string, v any) (*Parameter, error) {
	if v == nil {
		return nil, nil
	}
	p, ok := v.(*Parameter)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a *Parameter, got %T", ErrConfig, name, v)
	}
	return p, nil
}
