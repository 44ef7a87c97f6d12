// Package settingstypes persists settings trees.
package settingstypes

import (
	"iter"
	"reflect"

	"github.com/google/uuid"

	"github.com/bft-labs/scistore/pkg/helper"
	"github.com/bft-labs/scistore/pkg/state"
	"github.com/bft-labs/scistore/sci/settings"
)

var SettingsID = uuid.MustParse("12d88b29-858c-4a12-a5d2-42cb4d4f8ae8")

// SettingsHelper saves the nested dictionary of a tree and re-initialises a
// blank tree from it.
type SettingsHelper struct {
	helper.Base
}

func NewSettingsHelper() *SettingsHelper {
	return &SettingsHelper{Base: helper.NewBase(helper.Descriptor{
		Name:  "settings.Settings",
		ID:    SettingsID,
		Types: []reflect.Type{reflect.TypeFor[*settings.Settings]()},
	})}
}

// Fingerprint implements helper.Helper.
func (h *SettingsHelper) Fingerprint(v any, hs helper.Hasher) iter.Seq[[]byte] {
	s, err := helper.As[*settings.Settings](v)
	if err != nil {
		return hs.Fail(err)
	}
	return hs.Hashables(s.AsDict())
}

// Equal implements helper.Helper.
func (h *SettingsHelper) Equal(a, b any) bool {
	x, y, ok := helper.Both[*settings.Settings](a, b)
	return ok && x.Equal(y)
}

// SaveInstanceState implements helper.Helper.
func (h *SettingsHelper) SaveInstanceState(v any, _ helper.Saver) (any, error) {
	s, err := helper.As[*settings.Settings](v)
	if err != nil {
		return nil, err
	}
	return state.Normalize(s.AsDict())
}

// DefaultInstance implements helper.TwoPhase.
func (h *SettingsHelper) DefaultInstance() any { return settings.New() }

// LoadInstanceState implements helper.TwoPhase.
func (h *SettingsHelper) LoadInstanceState(v any, saved any, _ helper.Loader) error {
	s, err := helper.As[*settings.Settings](v)
	if err != nil {
		return err
	}
	m, err := state.AsMap(saved)
	if err != nil {
		return err
	}
	return s.Init(m)
}

// Types returns the helpers of this package.
func Types() []helper.Helper {
	return []helper.Helper{NewSettingsHelper()}
}

var _ helper.TwoPhase = (*SettingsHelper)(nil)
