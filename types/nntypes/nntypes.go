// Package nntypes persists the neural network blocks of package nn.
//
// Torch style modules share one strategy: hyperparameters inline, every
// parameter and submodule as a reference, and the member order so
// containers come back in the order they were built. Flax style layers are
// immutable descriptions and are rebuilt in one step.
package nntypes

import (
	"fmt"
	"iter"
	"reflect"

	"github.com/google/uuid"

	"github.com/bft-labs/scistore/pkg/helper"
	"github.com/bft-labs/scistore/pkg/state"
	"github.com/bft-labs/scistore/sci/nn"
	"github.com/bft-labs/scistore/sci/tensor"
)

// Type ids.
var (
	ParameterID    = uuid.MustParse("834d370b-6a1e-4f0c-9a35-2f7be4d1c0a6")
	SizeID         = uuid.MustParse("f0d9cdfc-5b8e-4d8f-8a43-96d1e0b7c215")
	LinearID       = uuid.MustParse("2c8c1e39-7d4a-4c2b-b1f6-0e59a8d3c471")
	Conv2dID       = uuid.MustParse("bbdb255b-1f3e-46a7-9c0d-7a82e6f5b934")
	MaxPool2dID    = uuid.MustParse("eaf92947-3c6b-4e1d-8f20-b5d471a9c683")
	ModuleListID   = uuid.MustParse("76fd8263-9e4a-4b57-a318-c02f6d8e1b59")
	ModuleDictID   = uuid.MustParse("82037c10-4b9d-4f6e-b2a5-e18c73d9f046")
	DenseID        = uuid.MustParse("fb7ba12b-0c5d-4a8e-9f31-6d2e84b7a519")
	DenseGeneralID = uuid.MustParse("2f48a5ee-8d1c-47b3-a60e-93f5c2b1d784")
	SequentialID   = uuid.MustParse("a2ebfb10-5e7f-4c29-8b46-1d0a93e6f2c8")
)

const (
	keyTraining = "training"
	keyHyper    = "hyper"
	keyMembers  = "members"
	keyOrder    = "order"
)

// ModuleHelper stores a module of type T.
type ModuleHelper[T nn.Module] struct {
	helper.Base
	blank func() T
}

func newModule[T nn.Module](name string, id uuid.UUID, blank func() T) *ModuleHelper[T] {
	return &ModuleHelper[T]{
		Base: helper.NewBase(helper.Descriptor{
			Name:  name,
			ID:    id,
			Types: []reflect.Type{reflect.TypeFor[T]()},
		}),
		blank: blank,
	}
}

// NewLinearHelper returns the helper for *nn.Linear.
func NewLinearHelper() *ModuleHelper[*nn.Linear] {
	return newModule("nn.Linear", LinearID, func() *nn.Linear { return new(nn.Linear) })
}

// NewConv2dHelper returns the helper for *nn.Conv2d.
func NewConv2dHelper() *ModuleHelper[*nn.Conv2d] {
	return newModule("nn.Conv2d", Conv2dID, func() *nn.Conv2d { return new(nn.Conv2d) })
}

// NewMaxPool2dHelper returns the helper for *nn.MaxPool2d.
func NewMaxPool2dHelper() *ModuleHelper[*nn.MaxPool2d] {
	return newModule("nn.MaxPool2d", MaxPool2dID, func() *nn.MaxPool2d { return new(nn.MaxPool2d) })
}

// NewModuleListHelper returns the helper for *nn.ModuleList.
func NewModuleListHelper() *ModuleHelper[*nn.ModuleList] {
	return newModule("nn.ModuleList", ModuleListID, func() *nn.ModuleList { return nn.NewModuleList() })
}

// NewModuleDictHelper returns the helper for *nn.ModuleDict.
func NewModuleDictHelper() *ModuleHelper[*nn.ModuleDict] {
	return newModule("nn.ModuleDict", ModuleDictID, nn.NewModuleDict)
}

// Fingerprint hashes the training flag, the hyperparameters and the members
// in order.
func (h *ModuleHelper[T]) Fingerprint(v any, hs helper.Hasher) iter.Seq[[]byte] {
	m, err := helper.As[T](v)
	if err != nil {
		return hs.Fail(err)
	}
	hyper, err := state.Normalize(m.Hyper())
	if err != nil {
		return hs.Fail(err)
	}
	members := m.Members()
	pairs := make([]any, len(members))
	for i, mem := range members {
		pairs[i] = []any{mem.Name, mem.Value}
	}
	return hs.Hashables(map[string]any{
		keyTraining: m.Training(),
		keyHyper:    hyper,
		keyMembers:  pairs,
	})
}

// Equal implements helper.Helper.
func (h *ModuleHelper[T]) Equal(a, b any) bool {
	x, y, ok := helper.Both[T](a, b)
	return ok && nn.Equal(x, y)
}

// SaveInstanceState implements helper.Helper.
func (h *ModuleHelper[T]) SaveInstanceState(v any, s helper.Saver) (any, error) {
	m, err := helper.As[T](v)
	if err != nil {
		return nil, err
	}
	hyper, err := state.Normalize(m.Hyper())
	if err != nil {
		return nil, fmt.Errorf("%s hyperparameters: %w", m.Kind(), err)
	}
	members := m.Members()
	refs := make(map[string]any, len(members))
	order := make([]any, len(members))
	for i, mem := range members {
		order[i] = mem.Name
		if mem.Value == nil {
			refs[mem.Name] = nil
			continue
		}
		ref, err := s.Save(mem.Value)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", mem.Name, err)
		}
		refs[mem.Name] = ref
	}
	return map[string]any{
		keyTraining: m.Training(),
		keyHyper:    hyper,
		keyMembers:  refs,
		keyOrder:    order,
	}, nil
}

// DefaultInstance implements helper.TwoPhase.
func (h *ModuleHelper[T]) DefaultInstance() any { return h.blank() }

// LoadInstanceState implements helper.TwoPhase.
func (h *ModuleHelper[T]) LoadInstanceState(v any, saved any, l helper.Loader) error {
	m, err := helper.As[T](v)
	if err != nil {
		return err
	}
	st, err := state.AsMap(saved)
	if err != nil {
		return err
	}
	training, err := state.GetAs(st, keyTraining, state.AsBool)
	if err != nil {
		return err
	}
	hyper, err := state.GetAs(st, keyHyper, state.AsMap)
	if err != nil {
		return err
	}
	members, err := state.GetAs(st, keyMembers, state.AsMap)
	if err != nil {
		return err
	}
	order, err := state.GetAs(st, keyOrder, state.AsStrings)
	if err != nil {
		return err
	}
	if err := m.SetHyper(hyper); err != nil {
		return err
	}
	for _, name := range order {
		node, err := state.Get(members, name)
		if err != nil {
			return err
		}
		var val any
		if node != nil {
			ref, err := state.AsReference(node)
			if err != nil {
				return fmt.Errorf("member %s: %w", name, err)
			}
			if val, err = l.Load(ref); err != nil {
				return fmt.Errorf("member %s: %w", name, err)
			}
		}
		if err := m.SetMember(name, val); err != nil {
			return err
		}
	}
	setTraining(m, training)
	return nil
}

// setTraining switches m to mode without changing the mode its submodules
// were loaded with. Train recurses, so each submodule's own flag is put
// back top down afterwards.
func setTraining(m nn.Module, mode bool) {
	type saved struct {
		mod  nn.Module
		mode bool
	}
	var order []saved
	seen := map[nn.Module]bool{}
	var walk func(nn.Module)
	walk = func(m nn.Module) {
		for _, mem := range m.Members() {
			sub, ok := mem.Value.(nn.Module)
			if !ok || seen[sub] {
				continue
			}
			seen[sub] = true
			order = append(order, saved{sub, sub.Training()})
			walk(sub)
		}
	}
	walk(m)
	m.Train(mode)
	for _, s := range order {
		s.mod.Train(s.mode)
	}
}

// NewParameterHelper returns the field helper for *nn.Parameter. The data
// tensor is its own object so tied weights stay shared.
func NewParameterHelper() *helper.Fields[nn.Parameter] {
	return helper.NewFields(
		helper.Descriptor{Name: "nn.Parameter", ID: ParameterID},
		helper.Ref("data",
			func(p *nn.Parameter) *tensor.Tensor { return p.Data },
			func(p *nn.Parameter, t *tensor.Tensor) { p.Data = t }),
		helper.Plain("requires_grad",
			func(p *nn.Parameter) any { return p.RequiresGrad },
			func(p *nn.Parameter, v any) (err error) {
				p.RequiresGrad, err = state.AsBool(v)
				return err
			}),
	)
}

// SizeHelper stores a shape as a list of ints.
type SizeHelper struct {
	helper.Base
}

func NewSizeHelper() *SizeHelper {
	return &SizeHelper{Base: helper.NewBase(helper.Descriptor{
		Name:  "nn.Size",
		ID:    SizeID,
		Types: []reflect.Type{reflect.TypeFor[nn.Size]()},
	})}
}

// Fingerprint implements helper.Helper.
func (h *SizeHelper) Fingerprint(v any, hs helper.Hasher) iter.Seq[[]byte] {
	s, err := h.SaveInstanceState(v, nil)
	if err != nil {
		return hs.Fail(err)
	}
	return hs.Hashables(s)
}

// Equal implements helper.Helper.
func (h *SizeHelper) Equal(a, b any) bool {
	x, y, ok := helper.Both[nn.Size](a, b)
	return ok && x.Equal(y)
}

// SaveInstanceState implements helper.Helper.
func (h *SizeHelper) SaveInstanceState(v any, _ helper.Saver) (any, error) {
	s, err := helper.As[nn.Size](v)
	if err != nil {
		return nil, err
	}
	return state.Normalize([]int(s))
}

// New implements helper.Constructor.
func (h *SizeHelper) New(saved any, _ helper.Loader) (any, error) {
	dims, err := state.AsInts(saved)
	if err != nil {
		return nil, err
	}
	return nn.Size(dims), nil
}

// LayerHelper stores an immutable flax layer description of type T as a
// flat dictionary.
type LayerHelper[T nn.Layer] struct {
	helper.Base
	toDict   func(T) map[string]any
	fromDict func(map[string]any) (T, error)
}

// Fingerprint implements helper.Helper.
func (h *LayerHelper[T]) Fingerprint(v any, hs helper.Hasher) iter.Seq[[]byte] {
	s, err := h.SaveInstanceState(v, nil)
	if err != nil {
		return hs.Fail(err)
	}
	return hs.Hashables(s)
}

// Equal implements helper.Helper.
func (h *LayerHelper[T]) Equal(a, b any) bool {
	x, y, ok := helper.Both[T](a, b)
	return ok && nn.LayerEqual(x, y)
}

// SaveInstanceState implements helper.Helper.
func (h *LayerHelper[T]) SaveInstanceState(v any, _ helper.Saver) (any, error) {
	l, err := helper.As[T](v)
	if err != nil {
		return nil, err
	}
	return state.Normalize(h.toDict(l))
}

// New implements helper.Constructor.
func (h *LayerHelper[T]) New(saved any, _ helper.Loader) (any, error) {
	m, err := state.AsMap(saved)
	if err != nil {
		return nil, err
	}
	return h.fromDict(m)
}

// NewDenseHelper returns the helper for nn.Dense.
func NewDenseHelper() *LayerHelper[nn.Dense] {
	return &LayerHelper[nn.Dense]{
		Base: helper.NewBase(helper.Descriptor{
			Name:      "nn.Dense",
			ID:        DenseID,
			Types:     []reflect.Type{reflect.TypeFor[nn.Dense]()},
			Immutable: true,
		}),
		toDict: func(d nn.Dense) map[string]any {
			return map[string]any{
				"features":    d.Features,
				"use_bias":    d.UseBias,
				"dtype":       d.DType,
				"param_dtype": d.ParamDType,
				"precision":   d.Precision,
				"kernel_init": d.KernelInit,
				"bias_init":   d.BiasInit,
			}
		},
		fromDict: func(m map[string]any) (d nn.Dense, err error) {
			if d.Features, err = state.GetAs(m, "features", state.AsInt); err != nil {
				return d, err
			}
			if d.UseBias, err = state.GetAs(m, "use_bias", state.AsBool); err != nil {
				return d, err
			}
			if err = layerStrings(m, &d.DType, &d.ParamDType, &d.Precision, &d.KernelInit, &d.BiasInit); err != nil {
				return d, err
			}
			return d, d.Validate()
		},
	}
}

// NewDenseGeneralHelper returns the helper for nn.DenseGeneral.
func NewDenseGeneralHelper() *LayerHelper[nn.DenseGeneral] {
	return &LayerHelper[nn.DenseGeneral]{
		Base: helper.NewBase(helper.Descriptor{
			Name:  "nn.DenseGeneral",
			ID:    DenseGeneralID,
			Types: []reflect.Type{reflect.TypeFor[nn.DenseGeneral]()},
		}),
		toDict: func(d nn.DenseGeneral) map[string]any {
			return map[string]any{
				"features":    d.Features,
				"axis":        d.Axis,
				"batch_dims":  d.BatchDims,
				"use_bias":    d.UseBias,
				"dtype":       d.DType,
				"param_dtype": d.ParamDType,
				"precision":   d.Precision,
				"kernel_init": d.KernelInit,
				"bias_init":   d.BiasInit,
			}
		},
		fromDict: func(m map[string]any) (d nn.DenseGeneral, err error) {
			if d.Features, err = state.GetAs(m, "features", state.AsInts); err != nil {
				return d, err
			}
			if d.Axis, err = state.GetAs(m, "axis", state.AsInts); err != nil {
				return d, err
			}
			if d.BatchDims, err = state.GetAs(m, "batch_dims", state.AsInts); err != nil {
				return d, err
			}
			if d.UseBias, err = state.GetAs(m, "use_bias", state.AsBool); err != nil {
				return d, err
			}
			if err = layerStrings(m, &d.DType, &d.ParamDType, &d.Precision, &d.KernelInit, &d.BiasInit); err != nil {
				return d, err
			}
			return d, d.Validate()
		},
	}
}

// layerStrings reads the string options shared by Dense and DenseGeneral.
func layerStrings(m map[string]any, dtype, paramDType, precision, kernelInit, biasInit *string) error {
	for key, dst := range map[string]*string{
		"dtype":       dtype,
		"param_dtype": paramDType,
		"precision":   precision,
		"kernel_init": kernelInit,
		"bias_init":   biasInit,
	} {
		s, err := state.GetAs(m, key, state.AsString)
		if err != nil {
			return err
		}
		*dst = s
	}
	return nil
}

// SequentialHelper stores the chain as a list of layer references.
type SequentialHelper struct {
	helper.Base
}

func NewSequentialHelper() *SequentialHelper {
	return &SequentialHelper{Base: helper.NewBase(helper.Descriptor{
		Name:      "nn.Sequential",
		ID:        SequentialID,
		Types:     []reflect.Type{reflect.TypeFor[*nn.Sequential]()},
		Immutable: true,
	})}
}

// Fingerprint implements helper.Helper.
func (h *SequentialHelper) Fingerprint(v any, hs helper.Hasher) iter.Seq[[]byte] {
	s, err := helper.As[*nn.Sequential](v)
	if err != nil {
		return hs.Fail(err)
	}
	return hs.Hashables(s.Layers())
}

// Equal implements helper.Helper.
func (h *SequentialHelper) Equal(a, b any) bool {
	x, y, ok := helper.Both[*nn.Sequential](a, b)
	return ok && x.Equal(y)
}

// SaveInstanceState implements helper.Helper.
func (h *SequentialHelper) SaveInstanceState(v any, sv helper.Saver) (any, error) {
	s, err := helper.As[*nn.Sequential](v)
	if err != nil {
		return nil, err
	}
	layers := s.Layers()
	refs := make([]any, len(layers))
	for i, l := range layers {
		ref, err := sv.Save(l)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		refs[i] = ref
	}
	return map[string]any{"layers": refs}, nil
}

// New implements helper.Constructor.
func (h *SequentialHelper) New(saved any, l helper.Loader) (any, error) {
	m, err := state.AsMap(saved)
	if err != nil {
		return nil, err
	}
	items, err := state.GetAs(m, "layers", state.AsList)
	if err != nil {
		return nil, err
	}
	layers := make([]nn.Layer, len(items))
	for i, item := range items {
		ref, err := state.AsReference(item)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		v, err := l.Load(ref)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		layer, ok := v.(nn.Layer)
		if !ok {
			return nil, fmt.Errorf("layer %d: %w", i, helper.Mismatch[nn.Layer](v))
		}
		layers[i] = layer
	}
	return nn.NewSequential(layers...)
}

// Types returns the helpers of this package.
func Types() []helper.Helper {
	return []helper.Helper{
		NewParameterHelper(),
		NewSizeHelper(),
		NewLinearHelper(),
		NewConv2dHelper(),
		NewMaxPool2dHelper(),
		NewModuleListHelper(),
		NewModuleDictHelper(),
		NewDenseHelper(),
		NewDenseGeneralHelper(),
		NewSequentialHelper(),
	}
}

var (
	_ helper.TwoPhase    = (*ModuleHelper[*nn.Linear])(nil)
	_ helper.TwoPhase    = (*helper.Fields[nn.Parameter])(nil)
	_ helper.Constructor = (*SizeHelper)(nil)
	_ helper.Constructor = (*LayerHelper[nn.Dense])(nil)
	_ helper.Constructor = (*SequentialHelper)(nil)
)
