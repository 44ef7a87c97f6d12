// Package tensortypes persists dense tensors. Element data goes to a blob;
// the state tree only carries dtype and shape.
package tensortypes

import (
	"fmt"
	"io"
	"iter"
	"reflect"
	"slices"

	"github.com/google/uuid"

	"github.com/bft-labs/scistore/pkg/helper"
	"github.com/bft-labs/scistore/pkg/state"
	"github.com/bft-labs/scistore/sci/tensor"
)

// TensorID is the type id of *tensor.Tensor states.
var TensorID = uuid.MustParse("4b69b98b-3a0e-4d14-8f64-b9bd7caf4cc5")

// BlobName is the name of the blob holding the element data.
const BlobName = "tensor.bin"

const (
	keyDType = "dtype"
	keyShape = "shape"
	keyFile  = "file"
)

type TensorHelper struct {
	helper.Base
}

// NewTensorHelper returns the helper for *tensor.Tensor.
func NewTensorHelper() *TensorHelper {
	return &TensorHelper{Base: helper.NewBase(helper.Descriptor{
		Name:  "tensor.Tensor",
		ID:    TensorID,
		Types: []reflect.Type{reflect.TypeFor[*tensor.Tensor]()},
	})}
}

// Fingerprint hashes dtype, shape and the canonical element bytes.
func (h *TensorHelper) Fingerprint(v any, hs helper.Hasher) iter.Seq[[]byte] {
	t, err := helper.As[*tensor.Tensor](v)
	if err != nil {
		return hs.Fail(err)
	}
	return helper.Concat(
		hs.Hashables(t.DType().String()),
		hs.Hashables(t.Shape()),
		hs.Hashables(t.Canonical()),
	)
}

// Equal implements helper.Helper.
func (h *TensorHelper) Equal(a, b any) bool {
	x, y, ok := helper.Both[*tensor.Tensor](a, b)
	return ok && x.Equal(y)
}

// SaveInstanceState writes the tensor to a blob.
func (h *TensorHelper) SaveInstanceState(v any, s helper.Saver) (any, error) {
	t, err := helper.As[*tensor.Tensor](v)
	if err != nil {
		return nil, err
	}
	file, err := s.CreateFile(BlobName)
	if err != nil {
		return nil, err
	}
	if err := s.WriteFile(file, func(w io.Writer) error {
		_, err := t.WriteTo(w)
		return err
	}); err != nil {
		return nil, err
	}
	shape := make([]any, 0, len(t.Shape()))
	for _, d := range t.Shape() {
		shape = append(shape, int64(d))
	}
	return map[string]any{
		keyDType: t.DType().String(),
		keyShape: shape,
		keyFile:  file,
	}, nil
}

// DefaultInstance implements helper.TwoPhase.
func (h *TensorHelper) DefaultInstance() any {
	t, _ := tensor.Empty(tensor.Float32, 0)
	return t
}

// LoadInstanceState reads the blob and checks it against the recorded
// dtype and shape.
func (h *TensorHelper) LoadInstanceState(v any, saved any, l helper.Loader) error {
	t, err := helper.As[*tensor.Tensor](v)
	if err != nil {
		return err
	}
	m, err := state.AsMap(saved)
	if err != nil {
		return err
	}
	name, err := state.GetAs(m, keyDType, state.AsString)
	if err != nil {
		return err
	}
	dtype, err := tensor.ParseDType(name)
	if err != nil {
		return err
	}
	shape, err := state.GetAs(m, keyShape, state.AsInts)
	if err != nil {
		return err
	}
	file, err := state.GetAs(m, keyFile, state.AsBlob)
	if err != nil {
		return err
	}
	var loaded *tensor.Tensor
	if err := l.ReadFile(file, func(r io.Reader) error {
		loaded, err = tensor.Read(r)
		return err
	}); err != nil {
		return err
	}
	if loaded.DType() != dtype || !slices.Equal(loaded.Shape(), shape) {
		return fmt.Errorf("%w: blob holds %s%v, state says %s%v",
			tensor.ErrShape, loaded.DType(), loaded.Shape(), dtype, shape)
	}
	t.Set(loaded)
	return nil
}

// Types returns the helpers of this package.
func Types() []helper.Helper {
	return []helper.Helper{NewTensorHelper()}
}

var _ helper.TwoPhase = (*TensorHelper)(nil)
