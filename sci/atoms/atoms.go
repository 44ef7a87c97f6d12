package atoms

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/bft-labs/scistore/sci/element"
)

var ErrRow = errors.New("atoms: malformed row")

// Atoms is a set of atoms with positions, a cell and per-atom arrays.
type Atoms struct {
	numbers   []int
	positions [][3]float64
	cell      Cell
	pbc       [3]bool

	magmoms []float64
	charges []float64
	tags    []int
	masses  []float64
	momenta [][3]float64

	calc Calculator

	// Info holds free-form metadata. Rows fill unique_id and, when present,
	// key_value_pairs and data.
	Info map[string]any
}

// New builds atoms from chemical symbols and Cartesian positions.
func New(symbols []string, positions [][3]float64) (*Atoms, error) {
	numbers := make([]int, len(symbols))
	for i, s := range symbols {
		z, err := element.Number(s)
		if err != nil {
			return nil, fmt.Errorf("atoms: %w", err)
		}
		numbers[i] = z
	}
	return FromNumbers(numbers, positions)
}

// FromNumbers builds atoms from atomic numbers and Cartesian positions.
func FromNumbers(numbers []int, positions [][3]float64) (*Atoms, error) {
	a := &Atoms{}
	if err := a.Init(numbers, positions); err != nil {
		return nil, err
	}
	return a, nil
}

// Init resets a to the given atoms. Everything else is cleared.
func (a *Atoms) Init(numbers []int, positions [][3]float64) error {
	if len(numbers) != len(positions) {
		return fmt.Errorf("atoms: %d numbers for %d positions", len(numbers), len(positions))
	}
	for _, z := range numbers {
		if _, err := element.Symbol(z); err != nil {
			return fmt.Errorf("atoms: %w", err)
		}
	}
	*a = Atoms{numbers: slices.Clone(numbers), positions: slices.Clone(positions)}
	return nil
}

// Len returns the number of atoms.
func (a *Atoms) Len() int { return len(a.numbers) }

// Numbers returns the atomic numbers.
func (a *Atoms) Numbers() []int { return slices.Clone(a.numbers) }

// Symbols returns the chemical symbols.
func (a *Atoms) Symbols() []string {
	out := make([]string, len(a.numbers))
	for i, z := range a.numbers {
		out[i], _ = element.Symbol(z)
	}
	return out
}

// Positions returns the Cartesian positions.
func (a *Atoms) Positions() [][3]float64 { return slices.Clone(a.positions) }

// Cell returns a copy of the cell.
func (a *Atoms) Cell() *Cell { c := a.cell; return &c }

// SetCell replaces the cell.
func (a *Atoms) SetCell(c *Cell) { a.cell = *c }

// PBC returns the periodicity along each cell vector.
func (a *Atoms) PBC() [3]bool { return a.pbc }

// SetPBC sets the periodicity.
func (a *Atoms) SetPBC(pbc [3]bool) { a.pbc = pbc }

// Calc returns the attached calculator or nil.
func (a *Atoms) Calc() Calculator { return a.calc }

// SetCalc attaches a calculator.
func (a *Atoms) SetCalc(c Calculator) { a.calc = c }

func (a *Atoms) perAtom(name string, n int) error {
	if n != 0 && n != len(a.numbers) {
		return fmt.Errorf("atoms: %d %s for %d atoms", n, name, len(a.numbers))
	}
	return nil
}

// SetInitialMagneticMoments sets one moment per atom; nil clears them.
func (a *Atoms) SetInitialMagneticMoments(m []float64) error {
	if err := a.perAtom("magnetic moments", len(m)); err != nil {
		return err
	}
	a.magmoms = slices.Clone(m)
	return nil
}

// InitialMagneticMoments returns the moments or nil.
func (a *Atoms) InitialMagneticMoments() []float64 { return slices.Clone(a.magmoms) }

// SetInitialCharges sets one charge per atom; nil clears them.
func (a *Atoms) SetInitialCharges(q []float64) error {
	if err := a.perAtom("charges", len(q)); err != nil {
		return err
	}
	a.charges = slices.Clone(q)
	return nil
}

// InitialCharges returns the charges or nil.
func (a *Atoms) InitialCharges() []float64 { return slices.Clone(a.charges) }

// SetTags sets one integer tag per atom; nil clears them.
func (a *Atoms) SetTags(tags []int) error {
	if err := a.perAtom("tags", len(tags)); err != nil {
		return err
	}
	a.tags = slices.Clone(tags)
	return nil
}

// Tags returns the tags or nil.
func (a *Atoms) Tags() []int { return slices.Clone(a.tags) }

// SetMasses sets one mass per atom; nil restores the defaults.
func (a *Atoms) SetMasses(m []float64) error {
	if err := a.perAtom("masses", len(m)); err != nil {
		return err
	}
	a.masses = slices.Clone(m)
	return nil
}

// Masses returns explicit masses or nil.
func (a *Atoms) Masses() []float64 { return slices.Clone(a.masses) }

// SetMomenta sets one momentum per atom; nil clears them.
func (a *Atoms) SetMomenta(p [][3]float64) error {
	if err := a.perAtom("momenta", len(p)); err != nil {
		return err
	}
	a.momenta = slices.Clone(p)
	return nil
}

// Momenta returns the momenta or nil.
func (a *Atoms) Momenta() [][3]float64 { return slices.Clone(a.momenta) }

// Formula returns the symbols with counts in order of first appearance.
func (a *Atoms) Formula() string {
	var (
		order  []string
		counts = map[string]int{}
	)
	for _, s := range a.Symbols() {
		if counts[s] == 0 {
			order = append(order, s)
		}
		counts[s]++
	}
	var b strings.Builder
	for _, s := range order {
		b.WriteString(s)
		if counts[s] > 1 {
			fmt.Fprint(&b, counts[s])
		}
	}
	return b.String()
}

// Equal compares positions, numbers, cell and periodicity. Per-atom
// arrays, the calculator and Info do not take part.
func (a *Atoms) Equal(o *Atoms) bool {
	if a == nil || o == nil {
		return a == o
	}
	return slices.Equal(a.numbers, o.numbers) &&
		slices.EqualFunc(a.positions, o.positions, vecEqual) &&
		a.cell.Equal(&o.cell) && a.pbc == o.pbc
}

func (a *Atoms) String() string {
	return fmt.Sprintf("Atoms(symbols=%q, pbc=%v)", a.Formula(), a.pbc)
}

// UniqueID returns Info["unique_id"], assigning a fresh one first when
// missing.
func (a *Atoms) UniqueID() string {
	if id, ok := a.Info["unique_id"].(string); ok && id != "" {
		return id
	}
	if a.Info == nil {
		a.Info = map[string]any{}
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	a.Info["unique_id"] = id
	return id
}

// Row returns a as a flat row. The unique id is taken from Info or freshly
// generated; a is not modified.
func (a *Atoms) Row() map[string]any {
	id, _ := a.Info["unique_id"].(string)
	if id == "" {
		id = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	row := map[string]any{
		"numbers":   intList(a.numbers),
		"positions": vecRows(a.positions),
		"unique_id": id,
		"cell":      vecRows(a.cell.array[:]),
		"pbc":       []any{a.pbc[0], a.pbc[1], a.pbc[2]},
	}
	if a.magmoms != nil {
		row["initial_magmoms"] = floatList(a.magmoms)
	}
	if a.charges != nil {
		row["initial_charges"] = floatList(a.charges)
	}
	if a.tags != nil {
		row["tags"] = intList(a.tags)
	}
	if a.masses != nil {
		row["masses"] = floatList(a.masses)
	}
	if a.momenta != nil {
		row["momenta"] = vecRows(a.momenta)
	}
	if a.calc != nil {
		row["calculator"] = strings.ToLower(a.calc.Name())
		row["calculator_parameters"] = plainMap(a.calc.Parameters())
		for key, v := range a.calc.Results() {
			if slices.Contains(AllProperties, key) {
				row[key] = plain(v)
			}
		}
	}
	if kv, ok := a.Info["key_value_pairs"].(map[string]any); ok && len(kv) > 0 {
		row["key_value_pairs"] = plainMap(kv)
	}
	if data, ok := a.Info["data"].(map[string]any); ok && len(data) > 0 {
		row["data"] = plainMap(data)
	}
	return row
}

// LoadRow resets a from a row. With originalCalculator set the calculator
// named in the row is rebuilt from its parameters through the registered
// factory; otherwise the stored results are attached as a SinglePoint.
func (a *Atoms) LoadRow(row map[string]any, originalCalculator bool) error {
	numbers, err := ints(row["numbers"], "numbers")
	if err != nil {
		return err
	}
	positions, err := vecs(row["positions"], "positions")
	if err != nil {
		return err
	}
	var fresh Atoms
	if err := fresh.Init(numbers, positions); err != nil {
		return err
	}
	if raw, ok := row["cell"]; ok {
		rows, err := vecs(raw, "cell")
		if err != nil {
			return err
		}
		if len(rows) != 3 {
			return fmt.Errorf("%w: cell has %d vectors", ErrRow, len(rows))
		}
		copy(fresh.cell.array[:], rows)
	}
	if raw, ok := row["pbc"]; ok {
		list, ok := raw.([]any)
		if !ok || len(list) != 3 {
			return fmt.Errorf("%w: pbc is %v", ErrRow, raw)
		}
		for i, item := range list {
			b, ok := item.(bool)
			if !ok {
				return fmt.Errorf("%w: pbc[%d] is %T", ErrRow, i, item)
			}
			fresh.pbc[i] = b
		}
	}
	if err := fresh.loadArrays(row); err != nil {
		return err
	}

	name, _ := row["calculator"].(string)
	if originalCalculator {
		if name != "" {
			factory, err := CalculatorFactory(name)
			if err != nil {
				return err
			}
			params, _ := row["calculator_parameters"].(map[string]any)
			if fresh.calc, err = factory(plainMap(params)); err != nil {
				return fmt.Errorf("atoms: calculator %s: %w", name, err)
			}
		}
	} else {
		results := map[string]any{}
		for _, prop := range AllProperties {
			if v, ok := row[prop]; ok {
				results[prop] = v
			}
		}
		if len(results) > 0 {
			if name == "" {
				name = "unknown"
			}
			fresh.calc = NewSinglePoint(name, results)
		}
	}

	fresh.Info = map[string]any{}
	if id, ok := row["unique_id"].(string); ok {
		fresh.Info["unique_id"] = id
	}
	if kv, ok := row["key_value_pairs"].(map[string]any); ok && len(kv) > 0 {
		fresh.Info["key_value_pairs"] = plainMap(kv)
	}
	if data, ok := row["data"].(map[string]any); ok && len(data) > 0 {
		fresh.Info["data"] = plainMap(data)
	}
	*a = fresh
	return nil
}

func (a *Atoms) loadArrays(row map[string]any) error {
	if raw, ok := row["initial_magmoms"]; ok {
		f, err := floats(raw, "initial_magmoms")
		if err != nil {
			return err
		}
		if err := a.SetInitialMagneticMoments(f); err != nil {
			return err
		}
	}
	if raw, ok := row["initial_charges"]; ok {
		f, err := floats(raw, "initial_charges")
		if err != nil {
			return err
		}
		if err := a.SetInitialCharges(f); err != nil {
			return err
		}
	}
	if raw, ok := row["tags"]; ok {
		t, err := ints(raw, "tags")
		if err != nil {
			return err
		}
		if err := a.SetTags(t); err != nil {
			return err
		}
	}
	if raw, ok := row["masses"]; ok {
		f, err := floats(raw, "masses")
		if err != nil {
			return err
		}
		if err := a.SetMasses(f); err != nil {
			return err
		}
	}
	if raw, ok := row["momenta"]; ok {
		p, err := vecs(raw, "momenta")
		if err != nil {
			return err
		}
		if err := a.SetMomenta(p); err != nil {
			return err
		}
	}
	return nil
}

func intList(v []int) []any {
	out := make([]any, len(v))
	for i, x := range v {
		out[i] = int64(x)
	}
	return out
}

func floatList(v []float64) []any {
	out := make([]any, len(v))
	for i, x := range v {
		out[i] = x
	}
	return out
}

func vecRows(v [][3]float64) []any {
	out := make([]any, len(v))
	for i, x := range v {
		out[i] = []any{x[0], x[1], x[2]}
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	}
	return 0, false
}

func floats(v any, what string) ([]float64, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T", ErrRow, what, v)
	}
	out := make([]float64, len(list))
	for i, item := range list {
		f, ok := toFloat(item)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%d] is %T", ErrRow, what, i, item)
		}
		out[i] = f
	}
	return out, nil
}

func ints(v any, what string) ([]int, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T", ErrRow, what, v)
	}
	out := make([]int, len(list))
	for i, item := range list {
		switch t := item.(type) {
		case int64:
			out[i] = int(t)
		case int:
			out[i] = t
		case float64:
			if t != float64(int(t)) {
				return nil, fmt.Errorf("%w: %s[%d] = %g is not an integer", ErrRow, what, i, t)
			}
			out[i] = int(t)
		default:
			return nil, fmt.Errorf("%w: %s[%d] is %T", ErrRow, what, i, item)
		}
	}
	return out, nil
}

func vecs(v any, what string) ([][3]float64, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T", ErrRow, what, v)
	}
	out := make([][3]float64, len(list))
	for i, item := range list {
		f, err := floats(item, fmt.Sprintf("%s[%d]", what, i))
		if err != nil {
			return nil, err
		}
		if len(f) != 3 {
			return nil, fmt.Errorf("%w: %s[%d] has %d components", ErrRow, what, i, len(f))
		}
		out[i] = [3]float64{f[0], f[1], f[2]}
	}
	return out, nil
}

// plain converts v to int64, float64, string, bool, []any and
// map[string]any.
func plain(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = plain(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		for it := rv.MapRange(); it.Next(); {
			out[it.Key().String()] = plain(it.Value().Interface())
		}
		return out
	}
	return v
}

func plainMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = plain(v)
	}
	return out
}
