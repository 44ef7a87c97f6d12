// Package fingerprint expands values into canonical byte chunks and hashes
// them into a content address.
//
// Plain nodes are encoded with deterministic CBOR. Values with a registered
// helper contribute their type id followed by whatever the helper's
// Fingerprint yields, so nested objects hash by content, not by identity.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"iter"
	"math"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/bft-labs/scistore/pkg/helper"
	"github.com/bft-labs/scistore/pkg/state"
)

// Resolver finds the helper for a live value.
type Resolver interface {
	ResolveByValue(v any) (helper.Helper, error)
}

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// chunk markers for composite and special nodes
const (
	markList   = "L"
	markMap    = "M"
	markRef    = "R"
	markBlob   = "B"
	markOpaque = "O"
	markObject = "T"
	markCycle  = "C"
)

// Hasher implements helper.Hasher. A Hasher is not safe for concurrent use;
// create one per hash operation.
type Hasher struct {
	resolver Resolver
	err      error
	active   map[any]int
}

// New returns a Hasher that resolves non-plain values through r. r may be
// nil when only plain trees are hashed.
func New(r Resolver) *Hasher {
	return &Hasher{resolver: r, active: make(map[any]int)}
}

// Err returns the first error recorded while iterating.
func (h *Hasher) Err() error {
	return h.err
}

// Fail implements helper.Hasher.
func (h *Hasher) Fail(err error) iter.Seq[[]byte] {
	if h.err == nil && err != nil {
		h.err = err
	}
	return func(func([]byte) bool) {}
}

// Hashables implements helper.Hasher.
func (h *Hasher) Hashables(v any) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		h.emit(v, yield)
	}
}

func (h *Hasher) primitive(v any, yield func([]byte) bool) bool {
	b, err := encMode.Marshal(v)
	if err != nil {
		h.Fail(fmt.Errorf("fingerprint: %w", err))
		return false
	}
	return yield(b)
}

func (h *Hasher) header(mark string, n int, yield func([]byte) bool) bool {
	return h.primitive([]any{mark, n}, yield)
}

// emit writes the chunks for v and reports whether iteration should go on.
func (h *Hasher) emit(v any, yield func([]byte) bool) bool {
	if h.err != nil {
		return false
	}
	switch t := v.(type) {
	case nil:
		return h.primitive(nil, yield)
	case bool, string, int64:
		return h.primitive(t, yield)
	case float64:
		return h.primitive(state.CanonicalFloat(t), yield)
	case []byte:
		return h.primitive(t, yield)
	case state.Reference:
		return h.primitive([]any{markRef, t.ID[:]}, yield)
	case state.BlobHandle:
		return h.primitive([]any{markBlob, t.ID[:], t.Name}, yield)
	case state.Opaque:
		return h.primitive([]any{markOpaque, t.Format, t.Version, t.Data}, yield)
	case []any:
		if !h.header(markList, len(t), yield) {
			return false
		}
		for _, item := range t {
			if !h.emit(item, yield) {
				return false
			}
		}
		return true
	case map[string]any:
		if !h.header(markMap, len(t), yield) {
			return false
		}
		for _, key := range state.SortedKeys(t) {
			if !h.primitive(key, yield) || !h.emit(t[key], yield) {
				return false
			}
		}
		return true
	}

	rv := reflect.ValueOf(v)
	if (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) && rv.IsNil() {
		return h.primitive(nil, yield)
	}
	if h.resolver != nil {
		hp, err := h.resolver.ResolveByValue(v)
		if err == nil {
			return h.object(hp, v, yield)
		}
		var unreg *helper.UnregisteredTypeError
		if !errors.As(err, &unreg) {
			h.Fail(err)
			return false
		}
	}
	return h.reflectTree(rv, yield)
}

func (h *Hasher) object(hp helper.Helper, v any, yield func([]byte) bool) bool {
	key := identity(v)
	if key != nil {
		if depth, ok := h.active[key]; ok {
			return h.primitive([]any{markCycle, depth}, yield)
		}
		h.active[key] = len(h.active)
		defer delete(h.active, key)
	}
	id := hp.Descriptor().ID
	if !h.primitive([]any{markObject, id[:]}, yield) {
		return false
	}
	for chunk := range hp.Fingerprint(v, h) {
		if !yield(chunk) {
			return false
		}
	}
	return h.err == nil
}

// reflectTree handles typed Go containers and scalars that Normalize would
// accept, element by element, so containers of registered values work.
func (h *Hasher) reflectTree(rv reflect.Value, yield func([]byte) bool) bool {
	switch rv.Kind() {
	case reflect.Bool:
		return h.primitive(rv.Bool(), yield)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return h.primitive(rv.Int(), yield)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			h.Fail(fmt.Errorf("%w: %d overflows int64", state.ErrNotSerializable, u))
			return false
		}
		return h.primitive(int64(u), yield)
	case reflect.Float32, reflect.Float64:
		return h.primitive(state.CanonicalFloat(rv.Float()), yield)
	case reflect.String:
		return h.primitive(rv.String(), yield)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return h.primitive(rv.Bytes(), yield)
		}
		if !h.header(markList, rv.Len(), yield) {
			return false
		}
		for i := 0; i < rv.Len(); i++ {
			if !h.emit(rv.Index(i).Interface(), yield) {
				return false
			}
		}
		return true
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		keys := make(map[string]any, rv.Len())
		it := rv.MapRange()
		for it.Next() {
			keys[it.Key().String()] = it.Value().Interface()
		}
		return h.emit(keys, yield)
	}
	if !rv.IsValid() {
		return h.primitive(nil, yield)
	}
	h.Fail(&helper.UnregisteredTypeError{Type: rv.Type()})
	return false
}

type objectKey struct {
	typ reflect.Type
	ptr uintptr
}

func identity(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan:
		return objectKey{typ: rv.Type(), ptr: rv.Pointer()}
	}
	return nil
}

// Sum hashes v with SHA-256.
func Sum(v any, r Resolver) ([]byte, error) {
	return SumWith(sha256.New(), v, r)
}

// SumWith hashes v into hsh and returns the digest.
func SumWith(hsh hash.Hash, v any, r Resolver) ([]byte, error) {
	h := New(r)
	for chunk := range h.Hashables(v) {
		hsh.Write(chunk)
	}
	if err := h.Err(); err != nil {
		return nil, err
	}
	return hsh.Sum(nil), nil
}

// Hex hashes v and returns the lowercase hex digest.
func Hex(v any, r Resolver) (string, error) {
	sum, err := Sum(v, r)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}

// Chunks collects the chunk sequence for v. It is intended for tests that
// compare fingerprints without hashing.
func Chunks(v any, r Resolver) ([][]byte, error) {
	h := New(r)
	var out [][]byte
	for chunk := range h.Hashables(v) {
		out = append(out, chunk)
	}
	return out, h.Err()
}
