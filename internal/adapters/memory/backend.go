// Package memory provides an in-process Backend, used by tests and by
// short-lived tools that do not need persistence.
package memory

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/bft-labs/scistore/internal/domain"
)

// Backend keeps records and blobs in maps.
type Backend struct {
	mu      sync.RWMutex
	records map[uuid.UUID]domain.Record
	blobs   map[uuid.UUID][]byte
	closed  bool
}

// New creates an empty Backend.
func New() *Backend {
	return &Backend{
		records: make(map[uuid.UUID]domain.Record),
		blobs:   make(map[uuid.UUID][]byte),
	}
}

// PutRecords stores every record under one lock.
func (b *Backend) PutRecords(ctx context.Context, records []domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return domain.ErrClosed
	}
	for _, r := range records {
		b.records[r.ID] = r.Clone()
	}
	return nil
}

// GetRecord returns a copy of the record.
func (b *Backend) GetRecord(ctx context.Context, id uuid.UUID) (domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return domain.Record{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return domain.Record{}, domain.ErrClosed
	}
	r, ok := b.records[id]
	if !ok {
		return domain.Record{}, domain.ErrNotFound
	}
	return r.Clone(), nil
}

// ListRecords returns copies of every record ordered by id.
func (b *Backend) ListRecords(ctx context.Context) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, domain.ErrClosed
	}
	out := make([]domain.Record, 0, len(b.records))
	for _, r := range b.records {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out, nil
}

// CreateBlob returns a writer that publishes the blob on Close.
func (b *Backend) CreateBlob(ctx context.Context, id uuid.UUID) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, domain.ErrClosed
	}
	return &blobWriter{backend: b, id: id}, nil
}

// OpenBlob returns a reader over a copy of the blob.
func (b *Backend) OpenBlob(ctx context.Context, id uuid.UUID) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, domain.ErrClosed
	}
	data, ok := b.blobs[id]
	if !ok {
		return nil, domain.ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

// DeleteBlob removes a blob.
func (b *Backend) DeleteBlob(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, id)
	return nil
}

// BlobCount returns the number of published blobs.
func (b *Backend) BlobCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.blobs)
}

// Close marks the backend closed. Data is discarded.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.records = nil
	b.blobs = nil
	return nil
}

type blobWriter struct {
	backend *Backend
	id      uuid.UUID
	buf     bytes.Buffer
	done    bool
}

func (w *blobWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, io.ErrClosedPipe
	}
	return w.buf.Write(p)
}

func (w *blobWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	w.backend.mu.Lock()
	defer w.backend.mu.Unlock()
	if w.backend.closed {
		return domain.ErrClosed
	}
	w.backend.blobs[w.id] = bytes.Clone(w.buf.Bytes())
	return nil
}
