// Package sqlite provides a SQLite-backed record and blob store.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/bft-labs/scistore/internal/adapters/sqlite/migrations"
	"github.com/bft-labs/scistore/internal/domain"
)

// Backend persists records and blobs in one SQLite database.
type Backend struct {
	db *sql.DB
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// Open opens the database at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Backend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", domain.ErrInvalidConfig)
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Backend{db: db}, nil
}

// Close closes the SQLite handle.
func (b *Backend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// PutRecords upserts every record in one transaction.
func (b *Backend) PutRecords(ctx context.Context, records []domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	for _, r := range records {
		if err := putRecord(ctx, tx, r); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("put record %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func putRecord(ctx context.Context, tx *sql.Tx, r domain.Record) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO records (id, type_id, state, creator, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   type_id = excluded.type_id,
		   state = excluded.state,
		   creator = excluded.creator,
		   created_at = excluded.created_at`,
		r.ID.String(), r.TypeID.String(), r.State, r.Creator, toNanos(r.CreatedAt),
	)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM record_blobs WHERE record_id = ?`, r.ID.String()); err != nil {
		return err
	}
	for i, blob := range r.Blobs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO record_blobs (record_id, position, blob_id) VALUES (?, ?, ?)`,
			r.ID.String(), i, blob.String(),
		); err != nil {
			return err
		}
	}
	return nil
}

// GetRecord returns domain.ErrNotFound for an unknown id.
func (b *Backend) GetRecord(ctx context.Context, id uuid.UUID) (domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return domain.Record{}, err
	}
	row := b.db.QueryRowContext(ctx,
		`SELECT id, type_id, state, creator, created_at FROM records WHERE id = ?`, id.String())
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Record{}, fmt.Errorf("get record %s: %w", id, err)
	}
	if r.Blobs, err = b.recordBlobs(ctx, id); err != nil {
		return domain.Record{}, err
	}
	return r, nil
}

// ListRecords returns every record ordered by id.
func (b *Backend) ListRecords(ctx context.Context) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, type_id, state, creator, created_at FROM records`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	var out []domain.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("list records: %w", err)
	}
	_ = rows.Close()

	for i := range out {
		if out[i].Blobs, err = b.recordBlobs(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	sortRecords(out)
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (domain.Record, error) {
	var (
		id, typeID string
		stateBytes []byte
		creator    string
		createdAt  int64
	)
	if err := s.Scan(&id, &typeID, &stateBytes, &creator, &createdAt); err != nil {
		return domain.Record{}, err
	}
	rid, err := uuid.Parse(id)
	if err != nil {
		return domain.Record{}, fmt.Errorf("record id %q: %w", id, err)
	}
	tid, err := uuid.Parse(typeID)
	if err != nil {
		return domain.Record{}, fmt.Errorf("type id %q: %w", typeID, err)
	}
	return domain.Record{
		ID:        rid,
		TypeID:    tid,
		State:     stateBytes,
		Creator:   creator,
		CreatedAt: fromNanos(createdAt),
	}, nil
}

func (b *Backend) recordBlobs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT blob_id FROM record_blobs WHERE record_id = ? ORDER BY position`, id.String())
	if err != nil {
		return nil, fmt.Errorf("record blobs %s: %w", id, err)
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		blob, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("blob id %q: %w", s, err)
		}
		out = append(out, blob)
	}
	return out, rows.Err()
}

// CreateBlob buffers writes and inserts the blob on Close.
func (b *Backend) CreateBlob(ctx context.Context, id uuid.UUID) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &blobWriter{ctx: ctx, db: b.db, id: id}, nil
}

// OpenBlob reads the whole blob into memory.
func (b *Backend) OpenBlob(ctx context.Context, id uuid.UUID) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := b.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE id = ?`, id.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", id, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// DeleteBlob removes a blob.
func (b *Backend) DeleteBlob(ctx context.Context, id uuid.UUID) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM blobs WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("delete blob %s: %w", id, err)
	}
	return nil
}

type blobWriter struct {
	ctx    context.Context
	db     *sql.DB
	id     uuid.UUID
	buf    bytes.Buffer
	closed bool
}

func (w *blobWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, io.ErrClosedPipe
	}
	return w.buf.Write(p)
}

func (w *blobWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_, err := w.db.ExecContext(w.ctx,
		`INSERT INTO blobs (id, data) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		w.id.String(), append([]byte{}, w.buf.Bytes()...),
	)
	if err != nil {
		return fmt.Errorf("write blob %s: %w", w.id, err)
	}
	return nil
}

func sortRecords(records []domain.Record) {
	sort.Slice(records, func(i, j int) bool {
		return bytes.Compare(records[i].ID[:], records[j].ID[:]) < 0
	})
}
