package helper

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrTypeMismatch is returned when a helper is handed a value of a type
	// it does not own.
	ErrTypeMismatch = errors.New("helper: value type mismatch")

	// ErrRegistrySealed is returned by Register after the registry has been
	// sealed at the end of startup.
	ErrRegistrySealed = errors.New("registry: sealed")

	// ErrStrategy is returned for helpers that implement both or neither
	// reconstruction strategy.
	ErrStrategy = errors.New("helper: exactly one reconstruction strategy required")
)

// DuplicateTypeError is returned when a type id is already bound to a
// different helper.
type DuplicateTypeError struct {
	TypeID   uuid.UUID
	Existing string
	Incoming string
}

func (e *DuplicateTypeError) Error() string {
	return fmt.Sprintf("registry: type id %s already bound to %s, cannot bind %s", e.TypeID, e.Existing, e.Incoming)
}

// AmbiguousTypeError is returned when more than one helper claims a runtime
// type and none of them refines the others.
type AmbiguousTypeError struct {
	Type    reflect.Type
	Helpers []string
}

func (e *AmbiguousTypeError) Error() string {
	return fmt.Sprintf("registry: %s is claimed by %s", e.Type, strings.Join(e.Helpers, ", "))
}

// UnregisteredTypeError is returned when saving a value no helper handles.
type UnregisteredTypeError struct {
	Type reflect.Type
}

func (e *UnregisteredTypeError) Error() string {
	return fmt.Sprintf("registry: no helper registered for %s", typeName(e.Type))
}

// UnknownTypeIDError is returned when loading a record whose type id has no
// registered helper.
type UnknownTypeIDError struct {
	TypeID uuid.UUID
}

func (e *UnknownTypeIDError) Error() string {
	return fmt.Sprintf("registry: unknown type id %s", e.TypeID)
}

// InvariantError reports a helper that violates the round trip contract.
type InvariantError struct {
	Helper    string
	TypeID    uuid.UUID
	Invariant string
	Detail    string
}

func (e *InvariantError) Error() string {
	msg := fmt.Sprintf("helper %s (%s) violates %s", e.Helper, e.TypeID, e.Invariant)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// OperationError wraps an error raised inside one of a helper's operations
// with the owning type id and the runtime type of the value involved. The
// wrapped error is returned unmodified by Unwrap.
type OperationError struct {
	Op     string
	Helper string
	TypeID uuid.UUID
	Type   reflect.Type
	Err    error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s %s (type id %s, %s): %v", e.Op, e.Helper, e.TypeID, typeName(e.Type), e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Wrap returns err wrapped in an OperationError for h. A nil err stays nil
// and an error that already is an OperationError is returned as is, so the
// innermost failing helper is reported. When v is nil, as it is for a
// constructor that failed before producing a value, the helper's first
// declared type is reported instead.
func Wrap(op string, h Helper, v any, err error) error {
	if err == nil {
		return nil
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return err
	}
	d := h.Descriptor()
	t := reflect.TypeOf(v)
	if t == nil && len(d.Types) > 0 {
		t = d.Types[0]
	}
	return &OperationError{
		Op:     op,
		Helper: d.Name,
		TypeID: d.ID,
		Type:   t,
		Err:    err,
	}
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
