// Package frametypes persists frame.Frame tables in the split orientation.
package frametypes

import (
	"fmt"
	"iter"
	"reflect"

	"github.com/google/uuid"

	"github.com/bft-labs/scistore/pkg/helper"
	"github.com/bft-labs/scistore/pkg/state"
	"github.com/bft-labs/scistore/sci/frame"
)

// FrameID is the type id of frame.Frame states.
var FrameID = uuid.MustParse("0fc8dc7b-7378-4e5a-ba1f-ad8dcb0dd3c8")

// FrameHelper saves {"index", "columns", "data"} and re-initialises a blank
// frame from it.
type FrameHelper struct {
	helper.Base
}

// NewFrameHelper returns the helper for *frame.Frame.
func NewFrameHelper() *FrameHelper {
	return &FrameHelper{Base: helper.NewBase(helper.Descriptor{
		Name:  "frame.Frame",
		ID:    FrameID,
		Types: []reflect.Type{reflect.TypeFor[*frame.Frame]()},
	})}
}

func split(f *frame.Frame) map[string]any {
	index, columns, rows := f.Split()
	return map[string]any{"index": index, "columns": columns, "data": rows}
}

// Fingerprint implements helper.Helper.
func (h *FrameHelper) Fingerprint(v any, hs helper.Hasher) iter.Seq[[]byte] {
	f, err := helper.As[*frame.Frame](v)
	if err != nil {
		return hs.Fail(err)
	}
	return hs.Hashables(split(f))
}

// Equal implements helper.Helper.
func (h *FrameHelper) Equal(a, b any) bool {
	x, y, ok := helper.Both[*frame.Frame](a, b)
	return ok && x.Equal(y)
}

// SaveInstanceState implements helper.Helper.
func (h *FrameHelper) SaveInstanceState(v any, _ helper.Saver) (any, error) {
	f, err := helper.As[*frame.Frame](v)
	if err != nil {
		return nil, err
	}
	return split(f), nil
}

// DefaultInstance implements helper.TwoPhase.
func (h *FrameHelper) DefaultInstance() any { return &frame.Frame{} }

// LoadInstanceState implements helper.TwoPhase.
func (h *FrameHelper) LoadInstanceState(v any, saved any, _ helper.Loader) error {
	f, err := helper.As[*frame.Frame](v)
	if err != nil {
		return err
	}
	m, err := state.AsMap(saved)
	if err != nil {
		return err
	}
	index, err := state.GetAs(m, "index", state.AsList)
	if err != nil {
		return err
	}
	columns, err := state.GetAs(m, "columns", state.AsStrings)
	if err != nil {
		return err
	}
	data, err := state.GetAs(m, "data", state.AsList)
	if err != nil {
		return err
	}
	rows := make([][]any, len(data))
	for i, r := range data {
		if rows[i], err = state.AsList(r); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return f.Init(index, columns, rows)
}

// Types returns the helpers of this package.
func Types() []helper.Helper {
	return []helper.Helper{NewFrameHelper()}
}

var _ helper.TwoPhase = (*FrameHelper)(nil)
