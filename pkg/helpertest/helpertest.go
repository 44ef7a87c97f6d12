package helpertest

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/bft-labs/scistore/internal/adapters/memory"
	"github.com/bft-labs/scistore/pkg/fingerprint"
	"github.com/bft-labs/scistore/pkg/helper"
	"github.com/bft-labs/scistore/pkg/registry"
	"github.com/bft-labs/scistore/pkg/store"
)

// Case is one representative value.
type Case struct {
	Name  string
	Value any
}

// foreign values no helper may call equal to its own values.
var foreign = []any{
	nil,
	0,
	"",
	3.5,
	[]any{},
	map[string]any{},
	struct{}{},
	&struct{ X int }{},
}

func violation(h helper.Helper, invariant, detail string) error {
	d := h.Descriptor()
	return &helper.InvariantError{Helper: d.Name, TypeID: d.ID, Invariant: invariant, Detail: detail}
}

// RoundTrip saves v, loads it back and checks equality and hash stability.
func RoundTrip(ctx context.Context, reg *registry.Registry, v any) error {
	s, err := store.New(reg, memory.New())
	if err != nil {
		return err
	}
	return s.Check(ctx, v)
}

// Consistent checks that two values the helper of a calls equal produce the
// same fingerprint input.
func Consistent(reg *registry.Registry, a, b any) error {
	h, err := reg.ResolveByValue(a)
	if err != nil {
		return err
	}
	if !h.Equal(a, b) {
		return nil
	}
	ca, err := fingerprint.Chunks(a, reg)
	if err != nil {
		return err
	}
	cb, err := fingerprint.Chunks(b, reg)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(ca, cb) {
		return violation(h, "hash-equality consistency", "equal values yield different fingerprints")
	}
	return nil
}

// MismatchSafe checks that Equal returns false without panicking when one
// side is not a value of the helper's type.
func MismatchSafe(h helper.Helper, v any, others ...any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = violation(h, "type-mismatch safety", fmt.Sprintf("Equal panicked: %v", r))
		}
	}()
	handled := h.Descriptor().Types
	for _, x := range append(append([]any(nil), foreign...), others...) {
		if x != nil && matches(reflect.TypeOf(x), handled) {
			continue
		}
		if h.Equal(v, x) || h.Equal(x, v) {
			return violation(h, "type-mismatch safety", fmt.Sprintf("%T reported equal to %T", v, x))
		}
	}
	return nil
}

func matches(t reflect.Type, handled []reflect.Type) bool {
	for _, ht := range handled {
		if t == ht || (ht.Kind() == reflect.Interface && t.Implements(ht)) {
			return true
		}
	}
	return false
}

// Run checks every case against the helper resolved for it: round trip,
// hash-equality consistency between all cases and type-mismatch safety
// against foreign values and the other cases.
func Run(t *testing.T, reg *registry.Registry, cases ...Case) {
	t.Helper()
	ctx := context.Background()

	values := make([]any, len(cases))
	for i, c := range cases {
		values[i] = c.Value
	}

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			h, err := reg.ResolveByValue(c.Value)
			if err != nil {
				t.Fatalf("ResolveByValue() error = %v", err)
			}
			if err := RoundTrip(ctx, reg, c.Value); err != nil {
				t.Errorf("round trip: %v", err)
			}
			if err := MismatchSafe(h, c.Value, values...); err != nil {
				t.Errorf("mismatch: %v", err)
			}
			for _, other := range values {
				if err := Consistent(reg, c.Value, other); err != nil {
					t.Errorf("consistency: %v", err)
				}
			}
		})
	}
}
