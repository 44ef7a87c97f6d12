package atoms

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

var ErrUnknownCalculator = errors.New("atoms: unknown calculator")

// AllProperties are the calculated properties a row may carry.
var AllProperties = []string{
	"energy", "forces", "stress", "stresses", "dipole", "charges",
	"magmom", "magmoms", "free_energy", "energies",
}

// Calculator computes properties for Atoms.
type Calculator interface {
	// Name is the lower-case calculator name stored in rows.
	Name() string

	// Parameters are the settings needed to recreate the calculator.
	Parameters() map[string]any

	// Results are the properties computed so far, keyed by property name.
	Results() map[string]any
}

// Factory creates a calculator from its parameters.
type Factory func(params map[string]any) (Calculator, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// RegisterCalculator makes a calculator constructible by name.
func RegisterCalculator(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[strings.ToLower(name)] = f
}

// CalculatorFactory returns the factory registered under name.
func CalculatorFactory(name string) (Factory, error) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCalculator, name)
	}
	return f, nil
}

// Calculators lists the registered names.
func Calculators() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := slices.Collect(maps.Keys(factories))
	slices.Sort(names)
	return names
}

// SinglePoint holds fixed results from an earlier calculation.
type SinglePoint struct {
	name    string
	results map[string]any
}

// NewSinglePoint stores results under a calculator name.
func NewSinglePoint(name string, results map[string]any) *SinglePoint {
	return &SinglePoint{name: name, results: plainMap(results)}
}

// Name implements Calculator.
func (s *SinglePoint) Name() string { return s.name }

// Parameters implements Calculator. A single point has none.
func (s *SinglePoint) Parameters() map[string]any { return map[string]any{} }

// Results implements Calculator.
func (s *SinglePoint) Results() map[string]any { return plainMap(s.results) }

// Energy returns the stored energy, if any.
func (s *SinglePoint) Energy() (float64, bool) {
	e, ok := s.results["energy"].(float64)
	return e, ok
}

// LennardJones is a pair potential calculator. It does not evaluate
// anything; it only carries its parameters and whatever results were
// attached to it.
type LennardJones struct {
	Epsilon, Sigma, Rc float64
	results            map[string]any
}

func init() {
	RegisterCalculator("lj", func(params map[string]any) (Calculator, error) {
		lj := &LennardJones{Epsilon: 1, Sigma: 1, Rc: -1}
		for key, v := range params {
			f, ok := v.(float64)
			if !ok {
				if i, isInt := v.(int64); isInt {
					f, ok = float64(i), true
				}
			}
			if !ok {
				return nil, fmt.Errorf("atoms: lj parameter %s is %T", key, v)
			}
			switch key {
			case "epsilon":
				lj.Epsilon = f
			case "sigma":
				lj.Sigma = f
			case "rc":
				lj.Rc = f
			default:
				return nil, fmt.Errorf("atoms: unknown lj parameter %q", key)
			}
		}
		return lj, nil
	})
}

// Name implements Calculator.
func (lj *LennardJones) Name() string { return "lj" }

// Parameters implements Calculator.
func (lj *LennardJones) Parameters() map[string]any {
	return map[string]any{"epsilon": lj.Epsilon, "sigma": lj.Sigma, "rc": lj.Rc}
}

// Results implements Calculator.
func (lj *LennardJones) Results() map[string]any { return plainMap(lj.results) }

// SetResult records one computed property.
func (lj *LennardJones) SetResult(name string, v any) {
	if lj.results == nil {
		lj.results = map[string]any{}
	}
	lj.results[name] = plain(v)
}
