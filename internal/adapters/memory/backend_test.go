package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/bft-labs/scistore/internal/adapters/backendtest"
	"github.com/bft-labs/scistore/internal/domain"
	"github.com/bft-labs/scistore/internal/ports"
)

func TestBackendContract(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) ports.Backend {
		return New()
	})
}

func TestClosed(t *testing.T) {
	b := New()
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.GetRecord(context.Background(), uuid.New()); !errors.Is(err, domain.ErrClosed) {
		t.Errorf("GetRecord() after Close error = %v, want ErrClosed", err)
	}
	if _, err := b.CreateBlob(context.Background(), uuid.New()); !errors.Is(err, domain.ErrClosed) {
		t.Errorf("CreateBlob() after Close error = %v, want ErrClosed", err)
	}
}

func TestBlobCount(t *testing.T) {
	b := New()
	w, _ := b.CreateBlob(context.Background(), uuid.New())
	if b.BlobCount() != 0 {
		t.Error("blob counted before Close")
	}
	_ = w.Close()
	if b.BlobCount() != 1 {
		t.Errorf("BlobCount() = %d, want 1", b.BlobCount())
	}
}
