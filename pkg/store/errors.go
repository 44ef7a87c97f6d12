package store

import (
	"errors"

	"github.com/bft-labs/scistore/internal/domain"
)

var (
	// ErrNotFound is returned when a requested or referenced record does not
	// exist in the backend.
	ErrNotFound = domain.ErrNotFound

	// ErrReferenceCycle is returned when a cycle of references has no
	// two-phase participant to break it.
	ErrReferenceCycle = errors.New("store: unresolvable reference cycle")

	// ErrUnresolvedReference is returned by Loader.Load for a reference that
	// does not appear in the state being loaded.
	ErrUnresolvedReference = errors.New("store: reference not part of this load")

	// ErrForeignBlob is returned when a helper writes or reads a blob handle
	// that does not belong to the object being processed.
	ErrForeignBlob = errors.New("store: blob handle not owned by this object")

	// ErrNilValue is returned when asked to save nil.
	ErrNilValue = errors.New("store: cannot save a nil value")

	// ErrNoBlobScope is returned when CreateFile is called outside of
	// SaveInstanceState.
	ErrNoBlobScope = errors.New("store: no object is being saved")
)
