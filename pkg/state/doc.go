// Package state defines SavedState, the plain tree a helper produces when it
// saves a value and consumes when it reconstructs one.
//
// A saved state is built only from the following nodes:
//
//   - nil, bool, int64, float64, string, []byte
//   - []any and map[string]any of nodes
//   - [Reference]: the identity of another persisted object
//   - [BlobHandle]: a handle to an out-of-band byte stream
//   - [Opaque]: a tagged, versioned byte payload for state the tree cannot express
//
// [Normalize] converts the friendlier Go values helpers usually return
// ([]float64, map[string]string, named string keys, ...) into that canonical
// form and rejects anything else, so no live native object ever reaches the
// encoder.
//
// # Equality
//
// [Equal] compares trees structurally. Floating point comparison is NaN-aware:
// NaN equals NaN and -0 equals +0. Lists of different lengths are unequal.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package state
