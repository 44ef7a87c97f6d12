// Package fs implements the Backend port on a plain directory tree.
//
// Layout:
//
//	<dir>/records/<id>.cbor
//	<dir>/blobs/<id>.bin
//
// Every file is written to a .tmp sibling first and renamed into place, so
// a crash never leaves a half-written record or blob visible.
package fs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/bft-labs/scistore/internal/codec"
	"github.com/bft-labs/scistore/internal/domain"
)

const (
	recordsDir = "records"
	blobsDir   = "blobs"
	recordExt  = ".cbor"
	blobExt    = ".bin"
	tmpExt     = ".tmp"
)

// Backend stores records and blobs as files below a root directory.
type Backend struct {
	dir string
}

// Open prepares dir for use, creating it when needed.
func Open(dir string) (*Backend, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("%w: fs backend directory is required", domain.ErrInvalidConfig)
	}
	for _, sub := range []string{recordsDir, blobsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o700); err != nil {
			return nil, fmt.Errorf("fs: create %s: %w", sub, err)
		}
	}
	return &Backend{dir: dir}, nil
}

// Dir returns the root directory.
func (b *Backend) Dir() string {
	return b.dir
}

func (b *Backend) recordPath(id uuid.UUID) string {
	return filepath.Join(b.dir, recordsDir, id.String()+recordExt)
}

func (b *Backend) blobPath(id uuid.UUID) string {
	return filepath.Join(b.dir, blobsDir, id.String()+blobExt)
}

// PutRecords writes every record to a temp file and then renames them into
// place. No record is renamed unless every temp file was written, and a
// failed rename removes the records this call already published.
func (b *Backend) PutRecords(ctx context.Context, records []domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmps := make([]string, 0, len(records))
	cleanup := func() {
		for _, tmp := range tmps {
			_ = os.Remove(tmp)
		}
	}
	for _, r := range records {
		data, err := codec.MarshalRecord(r)
		if err != nil {
			cleanup()
			return err
		}
		tmp := b.recordPath(r.ID) + tmpExt
		if err := os.WriteFile(tmp, data, 0o600); err != nil {
			cleanup()
			return fmt.Errorf("fs: write record %s: %w", r.ID, err)
		}
		tmps = append(tmps, tmp)
	}
	for i, r := range records {
		if err := os.Rename(tmps[i], b.recordPath(r.ID)); err != nil {
			for _, done := range records[:i] {
				_ = os.Remove(b.recordPath(done.ID))
			}
			cleanup()
			return fmt.Errorf("fs: publish record %s: %w", r.ID, err)
		}
	}
	return nil
}

// GetRecord reads one record file.
func (b *Backend) GetRecord(ctx context.Context, id uuid.UUID) (domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return domain.Record{}, err
	}
	data, err := os.ReadFile(b.recordPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Record{}, domain.ErrNotFound
		}
		return domain.Record{}, fmt.Errorf("fs: read record %s: %w", id, err)
	}
	return codec.UnmarshalRecord(data)
}

// ListRecords reads every record file, ordered by id.
func (b *Backend) ListRecords(ctx context.Context) ([]domain.Record, error) {
	entries, err := os.ReadDir(filepath.Join(b.dir, recordsDir))
	if err != nil {
		return nil, fmt.Errorf("fs: list records: %w", err)
	}
	var ids []uuid.UUID
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, recordExt) {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(name, recordExt))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	out := make([]domain.Record, 0, len(ids))
	for _, id := range ids {
		r, err := b.GetRecord(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// CreateBlob opens a temp file that is renamed into place on Close.
func (b *Backend) CreateBlob(ctx context.Context, id uuid.UUID) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := b.blobPath(id)
	f, err := os.OpenFile(path+tmpExt, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("fs: create blob %s: %w", id, err)
	}
	return &blobWriter{f: f, path: path}, nil
}

// OpenBlob opens a published blob.
func (b *Backend) OpenBlob(ctx context.Context, id uuid.UUID) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(b.blobPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrBlobNotFound
		}
		return nil, fmt.Errorf("fs: open blob %s: %w", id, err)
	}
	return f, nil
}

// DeleteBlob removes a blob and any leftover temp file.
func (b *Backend) DeleteBlob(ctx context.Context, id uuid.UUID) error {
	path := b.blobPath(id)
	var errs []error
	for _, p := range []string{path, path + tmpExt} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close is a no-op; files are closed as soon as they are written.
func (b *Backend) Close() error {
	return nil
}

type blobWriter struct {
	f      *os.File
	path   string
	closed bool
}

func (w *blobWriter) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

func (w *blobWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return fmt.Errorf("fs: sync blob: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("fs: close blob: %w", err)
	}
	return os.Rename(w.path+tmpExt, w.path)
}
