package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/scistore/internal/adapters/memory"
	"github.com/bft-labs/scistore/internal/codec"
	"github.com/bft-labs/scistore/internal/domain"
	"github.com/bft-labs/scistore/pkg/helper"
)

// Info describes a stored object without reconstructing it.
type Info struct {
	ID        uuid.UUID   `json:"id"`
	TypeID    uuid.UUID   `json:"type_id"`
	TypeName  string      `json:"type,omitempty"`
	Creator   string      `json:"creator,omitempty"`
	CreatedAt time.Time   `json:"created_at,omitzero"`
	Blobs     []uuid.UUID `json:"blobs,omitempty"`
	State     any         `json:"state,omitempty"`
}

func (s *Store) info(rec domain.Record, withState bool) (Info, error) {
	in := Info{
		ID:        rec.ID,
		TypeID:    rec.TypeID,
		Creator:   rec.Creator,
		CreatedAt: rec.CreatedAt,
		Blobs:     rec.Blobs,
	}
	if h, err := s.reg.ResolveByTypeID(rec.TypeID); err == nil {
		in.TypeName = h.Descriptor().Name
	}
	if withState {
		tree, err := codec.Unmarshal(rec.State)
		if err != nil {
			return Info{}, fmt.Errorf("store: object %s: %w", rec.ID, err)
		}
		in.State = tree
	}
	return in, nil
}

// Inspect returns the record of id with its decoded state tree. It works for
// type ids the registry does not know.
func (s *Store) Inspect(ctx context.Context, id uuid.UUID) (Info, error) {
	rec, err := s.backend.GetRecord(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return Info{}, fmt.Errorf("%w: object %s", ErrNotFound, id)
	}
	if err != nil {
		return Info{}, fmt.Errorf("store: read object %s: %w", id, err)
	}
	return s.info(rec, true)
}

// List returns every stored object ordered by id, without state.
func (s *Store) List(ctx context.Context) ([]Info, error) {
	records, err := s.backend.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	out := make([]Info, 0, len(records))
	for _, rec := range records {
		in, err := s.info(rec, false)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

// Verify loads id and checks it with Check. The loaded value must also be
// handled by the helper its record names.
func (s *Store) Verify(ctx context.Context, id uuid.UUID) error {
	rec, err := s.backend.GetRecord(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: object %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("store: read object %s: %w", id, err)
	}
	v, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	h, err := s.reg.ResolveByValue(v)
	if err != nil {
		return err
	}
	if d := h.Descriptor(); d.ID != rec.TypeID {
		return &helper.InvariantError{
			Helper:    d.Name,
			TypeID:    rec.TypeID,
			Invariant: "type identity",
			Detail:    fmt.Sprintf("loaded value resolves to type id %s", d.ID),
		}
	}
	return s.Check(ctx, v)
}

// Check verifies the helper contract for v: equality is reflexive, a save
// and load round trip yields an equal value in both directions, and the
// content hash survives the round trip. The value is saved to a scratch
// in-memory backend and loaded back by a second Store, so every helper
// reconstructs from its saved state.
func (s *Store) Check(ctx context.Context, v any) error {
	h, err := s.reg.ResolveByValue(v)
	if err != nil {
		return err
	}
	d := h.Descriptor()
	violation := func(invariant, detail string) error {
		return &helper.InvariantError{Helper: d.Name, TypeID: d.ID, Invariant: invariant, Detail: detail}
	}

	if !h.Equal(v, v) {
		return violation("reflexive equality", "value is not equal to itself")
	}

	backend := memory.New()
	scratch, err := New(s.reg, backend, WithLogger(s.opts.logger))
	if err != nil {
		return err
	}
	id, err := scratch.Save(ctx, v)
	if err != nil {
		return err
	}
	reader, err := New(s.reg, backend, WithLogger(s.opts.logger))
	if err != nil {
		return err
	}
	back, err := reader.Load(ctx, id)
	if err != nil {
		return err
	}
	if !h.Equal(v, back) || !h.Equal(back, v) {
		return violation("round trip equality", "reloaded value differs from the original")
	}

	before, err := s.Hash(v)
	if err != nil {
		return err
	}
	after, err := s.Hash(back)
	if err != nil {
		return err
	}
	if before != after {
		return violation("hash stability", fmt.Sprintf("hash %s became %s", before, after))
	}
	return nil
}
