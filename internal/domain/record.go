package domain

import (
	"time"

	"github.com/google/uuid"
)

// Record is one persisted object.
type Record struct {
	// ID is the object identity assigned at save time.
	ID uuid.UUID

	// TypeID selects the helper that decodes State.
	TypeID uuid.UUID

	// State is the encoded saved state.
	State []byte

	// Blobs lists the blobs created while saving this object.
	Blobs []uuid.UUID

	// Creator and CreatedAt are only set for types with creation tracking.
	Creator   string
	CreatedAt time.Time
}

// Tracked reports whether the record carries provenance.
func (r Record) Tracked() bool {
	return !r.CreatedAt.IsZero()
}

// Clone returns a deep copy so callers cannot alias backend memory.
func (r Record) Clone() Record {
	out := r
	out.State = append([]byte(nil), r.State...)
	out.Blobs = append([]uuid.UUID(nil), r.Blobs...)
	return out
}
