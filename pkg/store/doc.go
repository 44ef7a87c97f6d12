// Package store is the driver that saves and loads values through their
// registered helpers.
//
// A Store owns no knowledge of any value type. On save it resolves the helper
// for each value, asks it for a saved state, encodes that state and hands
// the record to a backend. On load it reads records, resolves helpers by type
// id and reconstructs values, resolving every Reference before the helper
// that needs it runs.
//
// # Sessions
//
// SaveAll and LoadAll run one session over all of their arguments. Within a
// session, saving the same pointer twice yields one record, and loading the
// same id twice yields one in-memory instance. Save sessions are buffered:
// nothing is written unless every object in the session was saved, and blobs
// created by a failed session are deleted.
//
// # Reference cycles
//
// A cycle in the reference graph loads when at least one object on it has a
// two-phase helper: that object is allocated blank first and the others are
// built against the blank instance. A cycle made only of constructor helpers
// fails the whole load with ErrReferenceCycle.
//
// # Immutable types
//
// Values whose helper is marked immutable are shared between loads of the
// same Store. Mutable values are never shared between sessions.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
package store
