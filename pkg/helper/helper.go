package helper

import (
	"fmt"
	"io"
	"iter"
	"reflect"

	"github.com/google/uuid"

	"github.com/bft-labs/scistore/pkg/state"
)

// Descriptor identifies the value type a helper is responsible for.
type Descriptor struct {
	// Name is a human readable label, e.g. "crystal.Structure".
	Name string

	// ID is persisted next to every saved state. It must never be reused for
	// a different state shape.
	ID uuid.UUID

	// Types are the runtime types handled. More than one type may share a
	// helper. An interface type matches every value implementing it.
	Types []reflect.Type

	// Immutable values may be shared between independent loads.
	Immutable bool

	// CreationTracking asks the store to record who created the object and
	// when, outside the state tree.
	CreationTracking bool
}

// Helper is implemented by every type helper. Implementations must also
// implement exactly one of Constructor or TwoPhase.
type Helper interface {
	Descriptor() Descriptor

	// Fingerprint returns the chunks fed to the content hash. Values that
	// are Equal must produce identical chunks.
	Fingerprint(v any, h Hasher) iter.Seq[[]byte]

	// Equal must return false, and never panic, when either argument is not
	// of the helper's type.
	Equal(a, b any) bool

	// SaveInstanceState returns the plain state of v. It must not mutate v.
	SaveInstanceState(v any, s Saver) (any, error)
}

// Constructor reconstructs a finished value directly from saved state.
type Constructor interface {
	Helper
	New(saved any, l Loader) (any, error)
}

// TwoPhase reconstructs by allocating a blank value and populating it.
type TwoPhase interface {
	Helper
	DefaultInstance() any
	LoadInstanceState(v any, saved any, l Loader) error
}

// Saver is the capability handed to SaveInstanceState.
type Saver interface {
	// Save persists v as its own object and returns a reference to it.
	// Saving the same pointer twice in one session yields the same reference.
	Save(v any) (state.Reference, error)

	// CreateFile allocates a blob. The handle is embedded in the state.
	CreateFile(name string) (state.BlobHandle, error)

	// WriteFile opens the blob for writing for the duration of fn.
	WriteFile(h state.BlobHandle, fn func(w io.Writer) error) error
}

// Loader is the capability handed to New and LoadInstanceState.
type Loader interface {
	// Load returns the live value a reference points to. Every reference in
	// a saved state has already been resolved when the helper runs.
	Load(ref state.Reference) (any, error)

	// ReadFile opens the blob for reading for the duration of fn.
	ReadFile(h state.BlobHandle, fn func(r io.Reader) error) error
}

// Hasher expands values into hashable chunks.
type Hasher interface {
	// Hashables yields the canonical chunks for a plain tree or a value with
	// a registered helper.
	Hashables(v any) iter.Seq[[]byte]

	// Fail records err; the enclosing hash operation reports it. The
	// returned sequence is empty.
	Fail(err error) iter.Seq[[]byte]
}

// Strategy is the reconstruction flavour of a helper.
type Strategy int

const (
	StrategyNew Strategy = iota + 1
	StrategyTwoPhase
)

// String returns a human-readable representation of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyNew:
		return "new"
	case StrategyTwoPhase:
		return "two-phase"
	default:
		return "unknown"
	}
}

// StrategyOf detects which reconstruction strategy h provides.
func StrategyOf(h Helper) (Strategy, error) {
	_, direct := h.(Constructor)
	_, twoPhase := h.(TwoPhase)
	switch {
	case direct && twoPhase:
		return 0, fmt.Errorf("%w: %s implements both New and LoadInstanceState", ErrStrategy, h.Descriptor().Name)
	case direct:
		return StrategyNew, nil
	case twoPhase:
		return StrategyTwoPhase, nil
	default:
		return 0, fmt.Errorf("%w: %s implements neither New nor LoadInstanceState", ErrStrategy, h.Descriptor().Name)
	}
}

// Base carries a Descriptor and is meant to be embedded.
type Base struct {
	desc Descriptor
}

// NewBase returns a Base for desc.
func NewBase(desc Descriptor) Base {
	return Base{desc: desc}
}

// Descriptor implements Helper.
func (b Base) Descriptor() Descriptor {
	d := b.desc
	d.Types = append([]reflect.Type(nil), b.desc.Types...)
	return d
}

// Both returns a and b as T when both are T.
func Both[T any](a, b any) (T, T, bool) {
	x, ok := a.(T)
	if !ok {
		var zero T
		return zero, zero, false
	}
	y, ok := b.(T)
	if !ok {
		var zero T
		return zero, zero, false
	}
	return x, y, true
}

// As returns v as T or an ErrTypeMismatch error.
func As[T any](v any) (T, error) {
	t, ok := v.(T)
	if !ok {
		return t, Mismatch[T](v)
	}
	return t, nil
}

// Mismatch builds the error returned when a helper receives a value of the
// wrong type.
func Mismatch[T any](got any) error {
	return fmt.Errorf("%w: want %s, got %T", ErrTypeMismatch, reflect.TypeFor[T](), got)
}

// Concat chains fingerprint sequences.
func Concat(seqs ...iter.Seq[[]byte]) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for _, seq := range seqs {
			for chunk := range seq {
				if !yield(chunk) {
					return
				}
			}
		}
	}
}
