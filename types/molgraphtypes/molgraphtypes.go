// Package molgraphtypes persists molecular graphs as CommonChem documents.
package molgraphtypes

import (
	"encoding/json"
	"fmt"
	"iter"
	"reflect"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/bft-labs/scistore/pkg/helper"
	"github.com/bft-labs/scistore/pkg/state"
	"github.com/bft-labs/scistore/sci/molgraph"
)

var MolID = uuid.MustParse("4810acf6-624c-419f-998c-f1a6dcf9def0")

// MolHelper stores the single-molecule interchange document as a state
// tree.
type MolHelper struct {
	helper.Base
}

func NewMolHelper() *MolHelper {
	return &MolHelper{Base: helper.NewBase(helper.Descriptor{
		Name:  "molgraph.Mol",
		ID:    MolID,
		Types: []reflect.Type{reflect.TypeFor[*molgraph.Mol]()},
	})}
}

// Fingerprint implements helper.Helper.
func (h *MolHelper) Fingerprint(v any, hs helper.Hasher) iter.Seq[[]byte] {
	m, err := helper.As[*molgraph.Mol](v)
	if err != nil {
		return hs.Fail(err)
	}
	return hs.Hashables(molgraph.Document(m))
}

// Equal implements helper.Helper.
func (h *MolHelper) Equal(a, b any) bool {
	x, y, ok := helper.Both[*molgraph.Mol](a, b)
	return ok && x.Equal(y)
}

// SaveInstanceState implements helper.Helper.
func (h *MolHelper) SaveInstanceState(v any, _ helper.Saver) (any, error) {
	m, err := helper.As[*molgraph.Mol](v)
	if err != nil {
		return nil, err
	}
	data, err := molgraph.ToJSON(m)
	if err != nil {
		return nil, err
	}
	return state.Normalize(gjson.ParseBytes(data).Value())
}

// New implements helper.Constructor.
func (h *MolHelper) New(saved any, _ helper.Loader) (any, error) {
	if _, err := state.AsMap(saved); err != nil {
		return nil, err
	}
	data, err := json.Marshal(saved)
	if err != nil {
		return nil, err
	}
	ms, err := molgraph.FromJSON(data)
	if err != nil {
		return nil, err
	}
	if len(ms) != 1 {
		return nil, fmt.Errorf("%w: %d molecules in one state", molgraph.ErrFormat, len(ms))
	}
	return ms[0], nil
}

// Types returns the helpers of this package.
func Types() []helper.Helper {
	return []helper.Helper{NewMolHelper()}
}

var _ helper.Constructor = (*MolHelper)(nil)
