package helper

import (
	"fmt"
	"iter"
	"reflect"

	"github.com/bft-labs/scistore/pkg/state"
)

// Stateful is implemented by values that can export their whole state as a
// flat dictionary and restore it in place.
type Stateful interface {
	StateDict() (map[string]any, error)
	LoadStateDict(map[string]any) error
}

// StateDict is a two-phase helper for any Stateful type. Several
// registrations with distinct descriptors can share it.
type StateDict[T Stateful] struct {
	Base
	blank func() T
}

// NewStateDict returns a StateDict helper. blank allocates the value that
// LoadStateDict populates. When desc.Types is empty it defaults to T.
func NewStateDict[T Stateful](desc Descriptor, blank func() T) *StateDict[T] {
	if len(desc.Types) == 0 {
		desc.Types = []reflect.Type{reflect.TypeFor[T]()}
	}
	return &StateDict[T]{Base: NewBase(desc), blank: blank}
}

func (s *StateDict[T]) dict(v any) (map[string]any, error) {
	t, err := As[T](v)
	if err != nil {
		return nil, err
	}
	raw, err := t.StateDict()
	if err != nil {
		return nil, err
	}
	n, err := state.Normalize(raw)
	if err != nil {
		return nil, err
	}
	return n.(map[string]any), nil
}

// Fingerprint implements Helper.
func (s *StateDict[T]) Fingerprint(v any, h Hasher) iter.Seq[[]byte] {
	d, err := s.dict(v)
	if err != nil {
		return h.Fail(err)
	}
	return h.Hashables(d)
}

// Equal implements Helper.
func (s *StateDict[T]) Equal(a, b any) bool {
	if _, _, ok := Both[T](a, b); !ok {
		return false
	}
	da, err := s.dict(a)
	if err != nil {
		return false
	}
	db, err := s.dict(b)
	if err != nil {
		return false
	}
	return state.Equal(da, db)
}

// SaveInstanceState implements Helper.
func (s *StateDict[T]) SaveInstanceState(v any, _ Saver) (any, error) {
	return s.dict(v)
}

// DefaultInstance implements TwoPhase.
func (s *StateDict[T]) DefaultInstance() any {
	return s.blank()
}

// LoadInstanceState implements TwoPhase.
func (s *StateDict[T]) LoadInstanceState(v any, saved any, _ Loader) error {
	t, err := As[T](v)
	if err != nil {
		return err
	}
	m, err := state.AsMap(saved)
	if err != nil {
		return fmt.Errorf("state dict: %w", err)
	}
	return t.LoadStateDict(m)
}

var _ TwoPhase = (*StateDict[Stateful])(nil)
