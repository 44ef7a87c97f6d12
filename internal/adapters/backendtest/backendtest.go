// Package backendtest holds the behaviour every ports.Backend must share.
package backendtest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/scistore/internal/domain"
	"github.com/bft-labs/scistore/internal/ports"
)

// Run exercises open() against the Backend contract. open is called once per
// subtest and must return an empty backend.
func Run(t *testing.T, open func(t *testing.T) ports.Backend) {
	t.Run("missing record", func(t *testing.T) {
		b := open(t)
		if _, err := b.GetRecord(context.Background(), uuid.New()); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("GetRecord() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("put and get", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()
		created := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
		recs := []domain.Record{
			{ID: uuid.New(), TypeID: uuid.New(), State: []byte{0xa0}},
			{ID: uuid.New(), TypeID: uuid.New(), State: []byte{0x01}, Blobs: []uuid.UUID{uuid.New(), uuid.New()}, Creator: "bob", CreatedAt: created},
		}
		if err := b.PutRecords(ctx, recs); err != nil {
			t.Fatalf("PutRecords() error = %v", err)
		}
		for _, want := range recs {
			got, err := b.GetRecord(ctx, want.ID)
			if err != nil {
				t.Fatalf("GetRecord(%s) error = %v", want.ID, err)
			}
			assertRecord(t, got, want)
		}

		list, err := b.ListRecords(ctx)
		if err != nil {
			t.Fatalf("ListRecords() error = %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("ListRecords() len = %d, want 2", len(list))
		}
		if bytes.Compare(list[0].ID[:], list[1].ID[:]) >= 0 {
			t.Error("ListRecords() not ordered by id")
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()
		id := uuid.New()
		first := domain.Record{ID: id, TypeID: uuid.New(), State: []byte{1}, Blobs: []uuid.UUID{uuid.New()}}
		second := domain.Record{ID: id, TypeID: first.TypeID, State: []byte{2}}
		if err := b.PutRecords(ctx, []domain.Record{first}); err != nil {
			t.Fatal(err)
		}
		if err := b.PutRecords(ctx, []domain.Record{second}); err != nil {
			t.Fatal(err)
		}
		got, err := b.GetRecord(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		assertRecord(t, got, second)
	})

	t.Run("returned records do not alias", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()
		rec := domain.Record{ID: uuid.New(), TypeID: uuid.New(), State: []byte{7}}
		if err := b.PutRecords(ctx, []domain.Record{rec}); err != nil {
			t.Fatal(err)
		}
		got, _ := b.GetRecord(ctx, rec.ID)
		got.State[0] = 8
		again, _ := b.GetRecord(ctx, rec.ID)
		if again.State[0] != 7 {
			t.Error("mutating a returned record changed the backend")
		}
	})

	t.Run("blob round trip", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()
		id := uuid.New()
		payload := bytes.Repeat([]byte{0, 1, 2, 254, 255}, 4096)

		w, err := b.CreateBlob(ctx, id)
		if err != nil {
			t.Fatalf("CreateBlob() error = %v", err)
		}
		if _, err := w.Write(payload[:100]); err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(payload[100:]); err != nil {
			t.Fatal(err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}

		r, err := b.OpenBlob(ctx, id)
		if err != nil {
			t.Fatalf("OpenBlob() error = %v", err)
		}
		got, err := io.ReadAll(r)
		_ = r.Close()
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("blob differs: got %d bytes, want %d", len(got), len(payload))
		}

		if err := b.DeleteBlob(ctx, id); err != nil {
			t.Fatalf("DeleteBlob() error = %v", err)
		}
		if _, err := b.OpenBlob(ctx, id); !errors.Is(err, domain.ErrBlobNotFound) {
			t.Errorf("OpenBlob() after delete error = %v, want ErrBlobNotFound", err)
		}
		if err := b.DeleteBlob(ctx, id); err != nil {
			t.Errorf("DeleteBlob() twice error = %v", err)
		}
	})

	t.Run("empty blob", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()
		id := uuid.New()
		w, err := b.CreateBlob(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
		r, err := b.OpenBlob(ctx, id)
		if err != nil {
			t.Fatalf("OpenBlob() error = %v", err)
		}
		defer r.Close()
		if got, _ := io.ReadAll(r); len(got) != 0 {
			t.Errorf("empty blob read %d bytes", len(got))
		}
	})

	t.Run("unpublished blob", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()
		id := uuid.New()
		w, err := b.CreateBlob(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = w.Write([]byte("partial"))
		if _, err := b.OpenBlob(ctx, id); !errors.Is(err, domain.ErrBlobNotFound) {
			t.Errorf("OpenBlob() before Close error = %v, want ErrBlobNotFound", err)
		}
		_ = w.Close()
	})

	t.Run("canceled context", func(t *testing.T) {
		b := open(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := b.PutRecords(ctx, []domain.Record{{ID: uuid.New(), State: []byte{1}}}); !errors.Is(err, context.Canceled) {
			t.Errorf("PutRecords() error = %v, want context.Canceled", err)
		}
	})
}

func assertRecord(t *testing.T, got, want domain.Record) {
	t.Helper()
	if got.ID != want.ID || got.TypeID != want.TypeID {
		t.Errorf("ids = %s/%s, want %s/%s", got.ID, got.TypeID, want.ID, want.TypeID)
	}
	if !bytes.Equal(got.State, want.State) {
		t.Errorf("State = %x, want %x", got.State, want.State)
	}
	if got.Creator != want.Creator || !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("provenance = %q@%v, want %q@%v", got.Creator, got.CreatedAt, want.Creator, want.CreatedAt)
	}
	if len(got.Blobs) != len(want.Blobs) {
		t.Fatalf("Blobs = %v, want %v", got.Blobs, want.Blobs)
	}
	for i := range want.Blobs {
		if got.Blobs[i] != want.Blobs[i] {
			t.Errorf("Blobs[%d] = %s, want %s", i, got.Blobs[i], want.Blobs[i])
		}
	}
}
