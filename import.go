package scistore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/bft-labs/scistore/pkg/helper"
	"github.com/bft-labs/scistore/pkg/log"
	"github.com/bft-labs/scistore/pkg/registry"
	"github.com/bft-labs/scistore/pkg/state"
	"github.com/bft-labs/scistore/sci/ilthermo"
	"github.com/bft-labs/scistore/sci/molgraph"
	"github.com/bft-labs/scistore/sci/settings"
)

// ErrDocument is returned for files Import cannot read.
var ErrDocument = errors.New("scistore: unsupported document")

// Document kinds recognised by Import.
const (
	KindSettings    = "settings"
	KindMolecules   = "molecules"
	KindILThermo    = "ilthermo"
	KindValue       = "value"
	KindUnsupported = ""
)

// Sniff names the kind of document in data. name is only used for its
// extension.
//
//   - .toml files are settings trees.
//   - JSON with a "commonchem" header is a molecule interchange document.
//   - JSON with a "dhead" header is an ILThermo data set response.
//   - JSON with "type" and "state" is a saved state for any registered type.
func Sniff(name string, data []byte) string {
	if strings.EqualFold(filepath.Ext(name), ".toml") {
		return KindSettings
	}
	if !gjson.ValidBytes(data) {
		return KindUnsupported
	}
	doc := gjson.ParseBytes(data)
	switch {
	case doc.Get("commonchem").Exists():
		return KindMolecules
	case doc.Get("dhead").Exists():
		return KindILThermo
	case doc.Get("type").Type == gjson.String && doc.Get("state").Exists():
		return KindValue
	}
	return KindUnsupported
}

// ImportFile reads path and saves the values it holds.
func (db *DB) ImportFile(ctx context.Context, path string) ([]uuid.UUID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return db.Import(ctx, filepath.Base(path), data)
}

// Import decodes a document and saves every value in it in one session.
func (db *DB) Import(ctx context.Context, name string, data []byte) ([]uuid.UUID, error) {
	values, err := Decode(db.Registry(), name, data)
	if err != nil {
		return nil, err
	}
	ids, err := db.SaveAll(ctx, values...)
	if err != nil {
		return nil, err
	}
	db.logger.Info("document imported",
		log.String("name", name),
		log.Int("objects", len(ids)),
	)
	return ids, nil
}

// Decode turns a document into live values without saving them.
func Decode(reg *registry.Registry, name string, data []byte) ([]any, error) {
	switch kind := Sniff(name, data); kind {
	case KindSettings:
		s, err := settings.FromTOML(data)
		if err != nil {
			return nil, err
		}
		return []any{s}, nil
	case KindMolecules:
		ms, err := molgraph.FromJSON(data)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(ms))
		for i, m := range ms {
			out[i] = m
		}
		return out, nil
	case KindILThermo:
		setID := gjson.GetBytes(data, "setid").String()
		if setID == "" {
			setID = strings.TrimSuffix(name, filepath.Ext(name))
		}
		d, err := ilthermo.Parse(setID, data)
		if err != nil {
			return nil, err
		}
		return []any{d}, nil
	case KindValue:
		doc := gjson.ParseBytes(data)
		v, err := Build(reg, doc.Get("type").String(), jsonValue(doc.Get("state")))
		if err != nil {
			return nil, err
		}
		return []any{v}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrDocument, name)
}

// Build reconstructs a value of the type registered under key (a type id or
// a helper name) from a plain state tree. The tree may not hold references
// or blobs.
func Build(reg *registry.Registry, key string, tree any) (any, error) {
	h, ok := reg.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: no type %q", ErrDocument, key)
	}
	saved, err := state.Normalize(tree)
	if err != nil {
		return nil, err
	}
	strategy, err := helper.StrategyOf(h)
	if err != nil {
		return nil, err
	}
	var l plainLoader
	switch strategy {
	case helper.StrategyNew:
		v, err := h.(helper.Constructor).New(saved, l)
		if err != nil {
			return nil, helper.Wrap("new", h, nil, err)
		}
		return v, nil
	default:
		tp := h.(helper.TwoPhase)
		v := tp.DefaultInstance()
		if err := tp.LoadInstanceState(v, saved, l); err != nil {
			return nil, helper.Wrap("load", h, v, err)
		}
		return v, nil
	}
}

// plainLoader backs Build. Documents are self-contained.
type plainLoader struct{}

func (plainLoader) Load(ref state.Reference) (any, error) {
	return nil, fmt.Errorf("%w: reference %s in a document", ErrDocument, ref)
}

func (plainLoader) ReadFile(h state.BlobHandle, _ func(io.Reader) error) error {
	return fmt.Errorf("%w: blob %s in a document", ErrDocument, h)
}

// jsonValue converts r to a plain tree. Integral numbers without a fraction
// or exponent stay integers.
func jsonValue(r gjson.Result) any {
	switch r.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.String:
		return r.Str
	case gjson.Number:
		if !strings.ContainsAny(r.Raw, ".eE") {
			if i, err := strconv.ParseInt(r.Raw, 10, 64); err == nil {
				return i
			}
		}
		return r.Num
	}
	if r.IsArray() {
		items := r.Array()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = jsonValue(item)
		}
		return out
	}
	out := map[string]any{}
	r.ForEach(func(k, v gjson.Result) bool {
		out[k.String()] = jsonValue(v)
		return true
	})
	return out
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("object id %q: %w", s, err)
	}
	return id, nil
}
