package state

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotSerializable is returned when a saved state contains a node that is
	// neither a plain value nor a Reference, BlobHandle or Opaque.
	ErrNotSerializable = errors.New("state: value is not serializable")

	// ErrUnexpectedType is returned by the typed accessors when a node has the
	// wrong shape.
	ErrUnexpectedType = errors.New("state: unexpected node type")

	// ErrMissingKey is returned when a required key is absent from a mapping.
	ErrMissingKey = errors.New("state: missing key")

	// ErrOpaqueVersion is returned when an Opaque payload was written in a
	// format or version the reader does not understand.
	ErrOpaqueVersion = errors.New("state: opaque payload version mismatch")
)

// Reference points from one saved state to another persisted object.
// The driver resolves it to a live value at load time; helpers never
// dereference it while saving.
type Reference struct {
	ID uuid.UUID
}

// Ref returns a Reference to the object with the given id.
func Ref(id uuid.UUID) Reference {
	return Reference{ID: id}
}

// IsZero reports whether r points nowhere.
func (r Reference) IsZero() bool {
	return r.ID == uuid.Nil
}

func (r Reference) String() string {
	return "ref:" + r.ID.String()
}

// MarshalJSON renders the reference as {"$ref": "<id>"}.
func (r Reference) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"$ref": r.ID.String()})
}

// BlobHandle identifies an out-of-band byte stream created through a Saver.
// The handle itself is plain data; reading and writing go through the
// Saver/Loader so the stream is always closed by the driver.
type BlobHandle struct {
	ID   uuid.UUID
	Name string
}

func (h BlobHandle) String() string {
	return fmt.Sprintf("blob:%s(%s)", h.ID, h.Name)
}

// MarshalJSON renders the handle as {"$blob": "<id>", "name": "<name>"}.
func (h BlobHandle) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"$blob": h.ID.String(), "name": h.Name})
}

// Opaque carries bytes the tree encoding cannot express. Format and Version
// are mandatory so a reader can detect skew instead of silently misreading.
type Opaque struct {
	Format  string
	Version string
	Data    []byte
}

// Check returns ErrOpaqueVersion unless o was written as format/version.
func (o Opaque) Check(format, version string) error {
	if o.Format != format || o.Version != version {
		return fmt.Errorf("%w: have %s/%s, want %s/%s", ErrOpaqueVersion, o.Format, o.Version, format, version)
	}
	return nil
}

// MarshalJSON summarises the payload instead of dumping it.
func (o Opaque) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"$opaque": o.Format, "version": o.Version, "size": len(o.Data)})
}

// References returns every Reference in v in depth-first order. Mapping keys
// are visited in sorted order so the result is deterministic.
func References(v any) []Reference {
	var refs []Reference
	Walk(v, func(node any) {
		if ref, ok := node.(Reference); ok {
			refs = append(refs, ref)
		}
	})
	return refs
}

// Walk calls fn for v and every node below it, depth first.
func Walk(v any, fn func(node any)) {
	fn(v)
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			Walk(item, fn)
		}
	case map[string]any:
		for _, key := range SortedKeys(t) {
			Walk(t[key], fn)
		}
	}
}
