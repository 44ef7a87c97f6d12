// Package ports defines the interfaces that connect the store driver to
// infrastructure adapters.
//
// # Port Interfaces
//
//   - [Backend]: persists records and blobs
//   - [Logger]: structured logging abstraction
//
// The driver (pkg/store) depends only on these interfaces. Implementations
// live in internal/adapters (memory, fs, sqlite, zerolog).
package ports
