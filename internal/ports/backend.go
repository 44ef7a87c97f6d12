package ports

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/bft-labs/scistore/internal/domain"
)

// Backend persists records and blobs.
//
// Implementations must be safe for concurrent use. Returned records must not
// alias backend memory.
type Backend interface {
	// PutRecords stores every record or none of them.
	PutRecords(ctx context.Context, records []domain.Record) error

	// GetRecord returns domain.ErrNotFound when id is unknown.
	GetRecord(ctx context.Context, id uuid.UUID) (domain.Record, error)

	// ListRecords returns every record ordered by id.
	ListRecords(ctx context.Context) ([]domain.Record, error)

	// CreateBlob opens a new blob for writing. The blob becomes readable
	// once the writer is closed without error.
	CreateBlob(ctx context.Context, id uuid.UUID) (io.WriteCloser, error)

	// OpenBlob returns domain.ErrBlobNotFound when id is unknown.
	OpenBlob(ctx context.Context, id uuid.UUID) (io.ReadCloser, error)

	// DeleteBlob removes a blob. Deleting a missing blob is not an error.
	DeleteBlob(ctx context.Context, id uuid.UUID) error

	// Close releases resources held by the backend.
	Close() error
}
