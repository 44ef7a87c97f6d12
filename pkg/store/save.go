package store

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"slices"

	"github.com/google/uuid"

	"github.com/bft-labs/scistore/internal/codec"
	"github.com/bft-labs/scistore/internal/domain"
	"github.com/bft-labs/scistore/pkg/fingerprint"
	"github.com/bft-labs/scistore/pkg/helper"
	"github.com/bft-labs/scistore/pkg/log"
	"github.com/bft-labs/scistore/pkg/state"
)

// pending is the object whose SaveInstanceState is running.
type pending struct {
	id    uuid.UUID
	blobs []uuid.UUID
}

type saveSession struct {
	ctx     context.Context
	s       *Store
	ids     map[any]uuid.UUID
	records []domain.Record
	blobs   []uuid.UUID
	stack   []*pending
}

func (s *Store) newSaveSession(ctx context.Context) *saveSession {
	return &saveSession{
		ctx: ctx,
		s:   s,
		ids: make(map[any]uuid.UUID),
	}
}

// identityKey distinguishes live objects by type and address.
type identityKey struct {
	typ reflect.Type
	ptr uintptr
	len int
}

// contentKey identifies an immutable value without an address by its hash.
type contentKey struct {
	typeID uuid.UUID
	hash   string
}

func (ss *saveSession) key(v any, desc helper.Descriptor) (any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.UnsafePointer:
		return identityKey{typ: rv.Type(), ptr: rv.Pointer()}, nil
	case reflect.Slice:
		return identityKey{typ: rv.Type(), ptr: rv.Pointer(), len: rv.Len()}, nil
	}
	if !desc.Immutable {
		return nil, nil
	}
	hash, err := fingerprint.Hex(v, ss.s.reg)
	if err != nil {
		return nil, err
	}
	return contentKey{typeID: desc.ID, hash: hash}, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// Save implements helper.Saver.
func (ss *saveSession) Save(v any) (state.Reference, error) {
	id, err := ss.save(v)
	if err != nil {
		return state.Reference{}, err
	}
	return state.Ref(id), nil
}

func (ss *saveSession) save(v any) (uuid.UUID, error) {
	if isNil(v) {
		return uuid.Nil, ErrNilValue
	}
	if err := ss.ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	h, err := ss.s.reg.ResolveByValue(v)
	if err != nil {
		return uuid.Nil, err
	}
	desc := h.Descriptor()

	key, err := ss.key(v, desc)
	if err != nil {
		return uuid.Nil, helper.Wrap("save", h, v, err)
	}
	if key != nil {
		if id, ok := ss.ids[key]; ok {
			return id, nil
		}
	}

	// The id is claimed before the helper runs so that a reference back to
	// v from inside its own state resolves to the same object.
	id := uuid.New()
	if key != nil {
		ss.ids[key] = id
	}

	p := &pending{id: id}
	ss.stack = append(ss.stack, p)
	saved, err := h.SaveInstanceState(v, ss)
	ss.stack = ss.stack[:len(ss.stack)-1]
	if err != nil {
		return uuid.Nil, helper.Wrap("save", h, v, err)
	}

	tree, err := state.Normalize(saved)
	if err != nil {
		return uuid.Nil, helper.Wrap("save", h, v, err)
	}
	data, err := codec.Marshal(tree)
	if err != nil {
		return uuid.Nil, helper.Wrap("save", h, v, err)
	}

	rec := domain.Record{ID: id, TypeID: desc.ID, State: data, Blobs: p.blobs}
	if desc.CreationTracking {
		rec.Creator = ss.s.opts.creator
		rec.CreatedAt = ss.s.opts.clock().UTC()
	}
	ss.records = append(ss.records, rec)
	ss.s.opts.logger.Debug("saved object",
		log.TypeName(desc.Name),
		log.TypeID(desc.ID),
		log.ObjectID(id),
		log.Int("bytes", len(data)),
		log.Int("blobs", len(p.blobs)),
	)
	return id, nil
}

// CreateFile implements helper.Saver. The blob belongs to the object being
// saved and is deleted again if the session fails.
func (ss *saveSession) CreateFile(name string) (state.BlobHandle, error) {
	if len(ss.stack) == 0 {
		return state.BlobHandle{}, ErrNoBlobScope
	}
	p := ss.stack[len(ss.stack)-1]
	h := state.BlobHandle{ID: uuid.New(), Name: name}
	p.blobs = append(p.blobs, h.ID)
	ss.blobs = append(ss.blobs, h.ID)
	return h, nil
}

// WriteFile implements helper.Saver. The writer is closed when fn returns,
// including when fn panics.
func (ss *saveSession) WriteFile(h state.BlobHandle, fn func(w io.Writer) error) (err error) {
	if len(ss.stack) == 0 || !slices.Contains(ss.stack[len(ss.stack)-1].blobs, h.ID) {
		return fmt.Errorf("%w: %s", ErrForeignBlob, h)
	}
	w, err := ss.s.backend.CreateBlob(ss.ctx, h.ID)
	if err != nil {
		return fmt.Errorf("store: create blob %s: %w", h, err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("store: close blob %s: %w", h, cerr)
		}
	}()
	return fn(w)
}

// commit writes the session's records. The caller's values never enter the
// immutable cache; only loads fill it.
func (ss *saveSession) commit() error {
	if err := ss.s.backend.PutRecords(ss.ctx, ss.records); err != nil {
		return fmt.Errorf("store: write records: %w", err)
	}
	return nil
}

// rollback deletes every blob the session created. Records were never
// written.
func (ss *saveSession) rollback() {
	ctx := context.WithoutCancel(ss.ctx)
	for _, id := range ss.blobs {
		if err := ss.s.backend.DeleteBlob(ctx, id); err != nil {
			ss.s.opts.logger.Warn("failed to delete blob of aborted save",
				log.UUID("blob", id),
				log.Err(err),
			)
		}
	}
}
