package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/scistore/internal/domain"
	"github.com/bft-labs/scistore/pkg/fingerprint"
	"github.com/bft-labs/scistore/pkg/helper"
	"github.com/bft-labs/scistore/pkg/log"
	"github.com/bft-labs/scistore/pkg/registry"
)

// Store saves and loads values through a registry of helpers.
// It is safe for concurrent use; every call runs its own session.
type Store struct {
	reg     *registry.Registry
	backend Backend
	opts    options

	// shared holds live instances of immutable types keyed by object id.
	shared sync.Map
}

// New returns a Store writing through backend. The Store does not own the
// backend; closing it is the caller's job.
func New(reg *registry.Registry, backend Backend, opts ...Option) (*Store, error) {
	if reg == nil {
		return nil, fmt.Errorf("%w: registry is required", domain.ErrInvalidConfig)
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: backend is required", domain.ErrInvalidConfig)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Store{reg: reg, backend: backend, opts: o}, nil
}

// Registry returns the registry the store resolves helpers from.
func (s *Store) Registry() *registry.Registry {
	return s.reg
}

// Save persists v and everything it references. It returns the object id
// of v.
func (s *Store) Save(ctx context.Context, v any) (uuid.UUID, error) {
	ids, err := s.SaveAll(ctx, v)
	if err != nil {
		return uuid.Nil, err
	}
	return ids[0], nil
}

// SaveAll persists values in one session and returns their object ids in
// order. Either every record of the session is written or none is.
func (s *Store) SaveAll(ctx context.Context, values ...any) (ids []uuid.UUID, err error) {
	start := time.Now()
	ss := s.newSaveSession(ctx)
	defer func() {
		if err != nil {
			ss.rollback()
			s.opts.logger.Error("save failed",
				log.Int("requested", len(values)),
				log.Int("blobs", len(ss.blobs)),
				log.Err(err),
			)
		}
	}()

	ids = make([]uuid.UUID, len(values))
	for i, v := range values {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, err := ss.save(v)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	if err := ss.commit(); err != nil {
		return nil, err
	}
	s.opts.logger.Info("saved objects",
		log.Int("requested", len(values)),
		log.Int("records", len(ss.records)),
		log.Int("blobs", len(ss.blobs)),
		log.Duration("took", time.Since(start)),
	)
	return ids, nil
}

// Load reconstructs the object stored under id.
func (s *Store) Load(ctx context.Context, id uuid.UUID) (any, error) {
	values, err := s.LoadAll(ctx, id)
	if err != nil {
		return nil, err
	}
	return values[0], nil
}

// LoadAll reconstructs several objects in one session. Objects reachable
// from more than one id are materialized once. On error no value is
// returned.
func (s *Store) LoadAll(ctx context.Context, ids ...uuid.UUID) (values []any, err error) {
	start := time.Now()
	defer func() {
		if err != nil {
			s.opts.logger.Error("load failed", log.Int("requested", len(ids)), log.Err(err))
		}
	}()

	ls := s.newLoadSession(ctx)
	for _, id := range ids {
		if err := ls.fetch(id); err != nil {
			return nil, err
		}
	}
	values = make([]any, len(ids))
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := ls.complete(id); err != nil {
			return nil, err
		}
		values[i] = ls.slots[id].value
	}
	ls.publish()
	s.opts.logger.Info("loaded objects",
		log.Int("requested", len(ids)),
		log.Int("records", len(ls.slots)),
		log.Int("materialized", ls.built),
		log.Duration("took", time.Since(start)),
	)
	return values, nil
}

// LoadAs loads id and asserts the result is a T.
func LoadAs[T any](ctx context.Context, s *Store, id uuid.UUID) (T, error) {
	v, err := s.Load(ctx, id)
	if err != nil {
		var zero T
		return zero, err
	}
	return helper.As[T](v)
}

// Hash returns the hex content hash of v.
func (s *Store) Hash(v any) (string, error) {
	return fingerprint.Hex(v, s.reg)
}

// Equal reports whether a and b are equal according to a's helper. Values
// without a helper are never equal.
func (s *Store) Equal(a, b any) bool {
	h, err := s.reg.ResolveByValue(a)
	if err != nil {
		return false
	}
	return h.Equal(a, b)
}
