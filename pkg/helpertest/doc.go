// Package helpertest checks that helpers honor the round trip contract.
//
// Every helper package runs its representative values through Run:
//
//	func TestHelpers(t *testing.T) {
//		reg := registry.New().MustRegister(mytypes.Types()...)
//		helpertest.Run(t, reg,
//			helpertest.Case{Name: "small", Value: mytypes.Sample()},
//		)
//	}
//
// Run saves and reloads each value through an in-memory store, compares
// fingerprints of values the helper calls equal, and feeds foreign values to
// Equal. Violations are reported as *helper.InvariantError so the same checks
// can run outside of tests.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
package helpertest
