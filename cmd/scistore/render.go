package main

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"github.com/bft-labs/scistore/pkg/store"
)

// renderInfo formats info as indented JSON. A non-empty hash is added under
// "hash"; a non-empty path selects part of the document. Non-finite floats
// in the state are written as the strings "NaN", "+Inf" and "-Inf".
func renderInfo(info store.Info, hash, path string, color bool) ([]byte, error) {
	info.State = jsonSafe(info.State)
	doc, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", info.ID, err)
	}
	if hash != "" {
		if doc, err = sjson.SetBytes(doc, "hash", hash); err != nil {
			return nil, err
		}
	}
	if path != "" {
		r := gjson.GetBytes(doc, path)
		if !r.Exists() {
			return nil, fmt.Errorf("no %q in %s", path, info.ID)
		}
		doc = []byte(r.Raw)
	}
	doc = pretty.Pretty(doc)
	if color {
		doc = pretty.Color(doc, nil)
	}
	return doc, nil
}

func jsonSafe(v any) any {
	switch t := v.(type) {
	case float64:
		switch {
		case math.IsNaN(t):
			return "NaN"
		case math.IsInf(t, 1):
			return "+Inf"
		case math.IsInf(t, -1):
			return "-Inf"
		}
		return t
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = jsonSafe(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = jsonSafe(item)
		}
		return out
	}
	return v
}
