// Package registry maps runtime types and persisted type ids to the helper
// responsible for them.
//
// A Registry is populated once at startup and then sealed; after Seal it is
// read-only and safe for concurrent use by any number of save and load
// operations.
//
// Resolution by value first looks for a helper registered for the exact
// runtime type. Helpers registered for an interface type are considered
// next, and the most specific interface wins: a helper for interface A
// shadows one for interface B when A implements B. Two matching interfaces
// where neither refines the other are reported as an AmbiguousTypeError
// rather than resolved arbitrarily.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
package registry
