// Package domain contains the persisted entities of scistore.
//
// This package is the innermost layer. It has no dependencies on storage,
// encoding or logging and is shared by the store driver and every backend.
//
// # Entities
//
//   - [Record]: one persisted object (type id, encoded state, provenance)
//
// Record state is kept as encoded bytes; decoding it requires the codec and,
// for reconstruction, the helper registry. Neither is visible from here.
package domain
