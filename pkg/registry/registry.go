package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/bft-labs/scistore/pkg/helper"
)

type ifaceEntry struct {
	typ reflect.Type
	h   helper.Helper
}

// Registry stores helpers keyed by runtime type and by type id.
type Registry struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]helper.Helper
	byType map[reflect.Type]helper.Helper
	ifaces []ifaceEntry
	sealed bool
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{
		byID:   make(map[uuid.UUID]helper.Helper),
		byType: make(map[reflect.Type]helper.Helper),
	}
}

// Register binds h to its type id and runtime types.
//
// Registering the same helper again is a no-op. A type id already bound to a
// different helper fails with *helper.DuplicateTypeError; a runtime type
// already claimed by another helper fails with *helper.AmbiguousTypeError.
// Nothing is registered when an error is returned.
func (r *Registry) Register(h helper.Helper) error {
	if h == nil {
		return errors.New("registry: helper is nil")
	}
	d := h.Descriptor()
	if d.ID == uuid.Nil {
		return fmt.Errorf("registry: helper %q has no type id", d.Name)
	}
	if len(d.Types) == 0 {
		return fmt.Errorf("registry: helper %q declares no runtime types", d.Name)
	}
	if _, err := helper.StrategyOf(h); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("%w: cannot register %s", helper.ErrRegistrySealed, d.Name)
	}

	if existing, ok := r.byID[d.ID]; ok {
		if sameHelper(existing, h) {
			return nil
		}
		return &helper.DuplicateTypeError{
			TypeID:   d.ID,
			Existing: describe(existing),
			Incoming: describe(h),
		}
	}

	seen := make(map[reflect.Type]bool, len(d.Types))
	for _, t := range d.Types {
		if t == nil {
			return fmt.Errorf("registry: helper %q declares a nil runtime type", d.Name)
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		if other := r.claimant(t); other != nil {
			return &helper.AmbiguousTypeError{
				Type:    t,
				Helpers: []string{other.Descriptor().Name, d.Name},
			}
		}
	}

	r.byID[d.ID] = h
	for t := range seen {
		if t.Kind() == reflect.Interface {
			r.ifaces = append(r.ifaces, ifaceEntry{typ: t, h: h})
			continue
		}
		r.byType[t] = h
	}
	return nil
}

// RegisterAll registers every helper, stopping at the first error.
func (r *Registry) RegisterAll(helpers ...helper.Helper) error {
	for _, h := range helpers {
		if err := r.Register(h); err != nil {
			return err
		}
	}
	return nil
}

// MustRegister is like RegisterAll but panics on error. It is meant for
// package-level setup in tests and examples.
func (r *Registry) MustRegister(helpers ...helper.Helper) *Registry {
	if err := r.RegisterAll(helpers...); err != nil {
		panic(err)
	}
	return r
}

// Seal makes the registry read-only.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// ResolveByValue returns the helper for v's runtime type.
func (r *Registry) ResolveByValue(v any) (helper.Helper, error) {
	return r.ResolveByType(reflect.TypeOf(v))
}

// ResolveByType returns the helper for values of type t.
func (r *Registry) ResolveByType(t reflect.Type) (helper.Helper, error) {
	if t == nil {
		return nil, &helper.UnregisteredTypeError{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.byType[t]; ok {
		return h, nil
	}

	var matches []ifaceEntry
	for _, e := range r.ifaces {
		if t.Implements(e.typ) {
			matches = append(matches, e)
		}
	}
	switch len(matches) {
	case 0:
		return nil, &helper.UnregisteredTypeError{Type: t}
	case 1:
		return matches[0].h, nil
	}

	var best []ifaceEntry
	for _, c := range matches {
		refinesAll := true
		for _, o := range matches {
			if !c.typ.Implements(o.typ) {
				refinesAll = false
				break
			}
		}
		if refinesAll {
			best = append(best, c)
		}
	}
	if len(best) == 1 {
		return best[0].h, nil
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.h.Descriptor().Name
	}
	sort.Strings(names)
	return nil, &helper.AmbiguousTypeError{Type: t, Helpers: names}
}

// ResolveByTypeID returns the helper bound to id.
func (r *Registry) ResolveByTypeID(id uuid.UUID) (helper.Helper, error) {
	r.mu.RLock()
	h, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return nil, &helper.UnknownTypeIDError{TypeID: id}
	}
	return h, nil
}

// Lookup finds a helper by type id string or by descriptor name. Names
// compare case-insensitively.
func (r *Registry) Lookup(key string) (helper.Helper, bool) {
	if id, err := uuid.Parse(key); err == nil {
		h, err := r.ResolveByTypeID(id)
		return h, err == nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.byID {
		if strings.EqualFold(h.Descriptor().Name, key) {
			return h, true
		}
	}
	return nil, false
}

// Helpers returns every registered helper sorted by name.
func (r *Registry) Helpers() []helper.Helper {
	r.mu.RLock()
	out := make([]helper.Helper, 0, len(r.byID))
	for _, h := range r.byID {
		out = append(out, h)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Descriptor().Name < out[j].Descriptor().Name
	})
	return out
}

// Len returns the number of registered helpers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *Registry) claimant(t reflect.Type) helper.Helper {
	if t.Kind() != reflect.Interface {
		return r.byType[t]
	}
	for _, e := range r.ifaces {
		if e.typ == t {
			return e.h
		}
	}
	return nil
}

func sameHelper(a, b helper.Helper) bool {
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	return a.Descriptor().Name == b.Descriptor().Name
}

func describe(h helper.Helper) string {
	return fmt.Sprintf("%s (%T)", h.Descriptor().Name, h)
}
