// Package helper defines the protocol a type helper implements so the store
// can persist values of a type it knows nothing about.
//
// A helper answers four questions for one value type:
//
//   - Fingerprint: which hashable chunks identify a value's content
//   - Equal: whether two values are semantically equal
//   - SaveInstanceState: how to turn a value into a plain saved state
//   - reconstruction: how to get a value back from that state
//
// Reconstruction comes in exactly one of two flavours. A [Constructor] builds
// a finished value directly from state. A [TwoPhase] helper first allocates a
// blank value and then populates it in place, which is what allows reference
// cycles to be resolved against a still-blank instance. [StrategyOf] rejects
// helpers that implement both or neither.
//
// Helpers that only differ in their [Descriptor] should share logic through
// composition rather than embedding chains: [NewStateDict] and [NewFields]
// build complete helpers from a descriptor plus a small amount of per-type
// configuration.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package helper
