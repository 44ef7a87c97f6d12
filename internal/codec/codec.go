// Package codec encodes saved-state trees and records with deterministic
// CBOR.
//
// References, blob handles and opaque payloads are carried as tagged items
// so they survive a round trip as their own node kinds instead of decaying
// into plain maps.
package codec

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/bft-labs/scistore/internal/domain"
	"github.com/bft-labs/scistore/pkg/state"
)

// CBOR tag numbers from the first-come-first-served range.
const (
	TagReference uint64 = 65100
	TagBlob      uint64 = 65101
	TagOpaque    uint64 = 65102
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: enc mode: %v", err))
	}
	dm, err := cbor.DecOptions{
		DefaultMapType:   reflect.TypeOf(map[string]any(nil)),
		IntDec:           cbor.IntDecConvertSigned,
		MaxNestedLevels:  1024,
		MaxArrayElements: math.MaxInt32,
		MaxMapPairs:      math.MaxInt32,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: dec mode: %v", err))
	}
	encMode, decMode = em, dm
}

// Marshal encodes a normalized saved-state tree.
func Marshal(tree any) ([]byte, error) {
	wire, err := toWire(tree)
	if err != nil {
		return nil, err
	}
	data, err := encMode.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	return data, nil
}

// Unmarshal decodes bytes produced by Marshal back into a saved-state tree.
func Unmarshal(data []byte) (any, error) {
	var wire any
	if err := decMode.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("codec: decode: %w", err)
	}
	return fromWire(wire)
}

func toWire(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, int64, float64, string, []byte:
		return t, nil
	case state.Reference:
		return cbor.Tag{Number: TagReference, Content: t.ID[:]}, nil
	case state.BlobHandle:
		return cbor.Tag{Number: TagBlob, Content: []any{t.ID[:], t.Name}}, nil
	case state.Opaque:
		return cbor.Tag{Number: TagOpaque, Content: []any{t.Format, t.Version, t.Data}}, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			w, err := toWire(item)
			if err != nil {
				return nil, err
			}
			out[i] = w
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for key, item := range t {
			w, err := toWire(item)
			if err != nil {
				return nil, err
			}
			out[key] = w
		}
		return out, nil
	}
	return nil, fmt.Errorf("codec: %w: %T", state.ErrNotSerializable, v)
}

func fromWire(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, int64, float64, string, []byte:
		return t, nil
	case uint64:
		if t > math.MaxInt64 {
			return nil, fmt.Errorf("codec: integer %d overflows int64", t)
		}
		return int64(t), nil
	case []any:
		for i, item := range t {
			n, err := fromWire(item)
			if err != nil {
				return nil, err
			}
			t[i] = n
		}
		return t, nil
	case map[string]any:
		for key, item := range t {
			n, err := fromWire(item)
			if err != nil {
				return nil, err
			}
			t[key] = n
		}
		return t, nil
	case cbor.Tag:
		return fromTag(t)
	}
	return nil, fmt.Errorf("codec: unexpected wire node %T", v)
}

func fromTag(t cbor.Tag) (any, error) {
	switch t.Number {
	case TagReference:
		id, err := idFrom(t.Content)
		if err != nil {
			return nil, fmt.Errorf("codec: reference: %w", err)
		}
		return state.Ref(id), nil
	case TagBlob:
		parts, ok := t.Content.([]any)
		if !ok || len(parts) != 2 {
			return nil, fmt.Errorf("codec: malformed blob handle")
		}
		id, err := idFrom(parts[0])
		if err != nil {
			return nil, fmt.Errorf("codec: blob handle: %w", err)
		}
		name, ok := parts[1].(string)
		if !ok {
			return nil, fmt.Errorf("codec: blob handle name is %T", parts[1])
		}
		return state.BlobHandle{ID: id, Name: name}, nil
	case TagOpaque:
		parts, ok := t.Content.([]any)
		if !ok || len(parts) != 3 {
			return nil, fmt.Errorf("codec: malformed opaque payload")
		}
		format, ok1 := parts[0].(string)
		version, ok2 := parts[1].(string)
		data, ok3 := parts[2].([]byte)
		if !ok1 || !ok2 || !ok3 {
			return nil, fmt.Errorf("codec: malformed opaque payload")
		}
		return state.Opaque{Format: format, Version: version, Data: data}, nil
	}
	return nil, fmt.Errorf("codec: unknown tag %d", t.Number)
}

func idFrom(v any) (uuid.UUID, error) {
	b, ok := v.([]byte)
	if !ok {
		return uuid.Nil, fmt.Errorf("id is %T", v)
	}
	return uuid.FromBytes(b)
}

type wireRecord struct {
	ID        uuid.UUID   `cbor:"id"`
	TypeID    uuid.UUID   `cbor:"type_id"`
	State     []byte      `cbor:"state"`
	Blobs     []uuid.UUID `cbor:"blobs,omitempty"`
	Creator   string      `cbor:"creator,omitempty"`
	CreatedAt *time.Time  `cbor:"created_at,omitempty"`
}

// MarshalRecord encodes a whole record, state bytes included.
func MarshalRecord(r domain.Record) ([]byte, error) {
	w := wireRecord{
		ID:      r.ID,
		TypeID:  r.TypeID,
		State:   r.State,
		Blobs:   r.Blobs,
		Creator: r.Creator,
	}
	if r.Tracked() {
		at := r.CreatedAt.UTC()
		w.CreatedAt = &at
	}
	data, err := encMode.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("codec: encode record: %w", err)
	}
	return data, nil
}

// UnmarshalRecord decodes bytes produced by MarshalRecord.
func UnmarshalRecord(data []byte) (domain.Record, error) {
	var w wireRecord
	if err := decMode.Unmarshal(data, &w); err != nil {
		return domain.Record{}, fmt.Errorf("codec: decode record: %w", err)
	}
	r := domain.Record{
		ID:      w.ID,
		TypeID:  w.TypeID,
		State:   w.State,
		Blobs:   w.Blobs,
		Creator: w.Creator,
	}
	if w.CreatedAt != nil {
		r.CreatedAt = *w.CreatedAt
	}
	return r, nil
}
