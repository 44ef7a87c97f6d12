package e3

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

var ErrFormula = errors.New("e3: invalid formula")

const keyFormula = "formula"

// relation states that permuting the indices by perm multiplies the tensor
// by sign.
type relation struct {
	perm []int
	sign int
}

// parseFormula splits "ij=-ji" into the index letters and the relations
// they satisfy.
func parseFormula(formula string) (string, []relation, error) {
	terms := strings.Split(strings.ReplaceAll(formula, " ", ""), "=")
	indices := terms[0]
	if indices == "" || strings.HasPrefix(indices, "-") {
		return "", nil, fmt.Errorf("%w: %q", ErrFormula, formula)
	}
	for i, r := range indices {
		if !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z') {
			return "", nil, fmt.Errorf("%w: index %q is not a letter", ErrFormula, r)
		}
		if strings.IndexRune(indices[i+1:], r) >= 0 {
			return "", nil, fmt.Errorf("%w: index %q repeated", ErrFormula, r)
		}
	}
	var rels []relation
	for _, term := range terms[1:] {
		sign := 1
		if rest, ok := strings.CutPrefix(term, "-"); ok {
			sign, term = -1, rest
		}
		if len(term) != len(indices) {
			return "", nil, fmt.Errorf("%w: %q is not a permutation of %q", ErrFormula, term, indices)
		}
		perm := make([]int, len(term))
		seen := make([]bool, len(indices))
		for i, r := range term {
			j := strings.IndexRune(indices, r)
			if j < 0 || seen[j] {
				return "", nil, fmt.Errorf("%w: %q is not a permutation of %q", ErrFormula, term, indices)
			}
			seen[j] = true
			perm[i] = j
		}
		rels = append(rels, relation{perm: perm, sign: sign})
	}
	return indices, rels, nil
}

// ReducedTensorProducts decomposes the subspace of a tensor product selected
// by a permutation formula into irreps.
type ReducedTensorProducts struct {
	formula string
	in      map[string]Irreps
	out     Irreps
	plan    []byte
}

// NewReducedTensorProducts builds the reduction of formula, e.g. "ij=-ji",
// with in giving the irreps carried by every index letter.
func NewReducedTensorProducts(formula string, in map[string]Irreps) (*ReducedTensorProducts, error) {
	r := &ReducedTensorProducts{}
	if err := r.init(formula, in); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *ReducedTensorProducts) init(formula string, in map[string]Irreps) error {
	indices, rels, err := parseFormula(formula)
	if err != nil {
		return err
	}
	for _, c := range indices {
		if _, ok := in[string(c)]; !ok {
			return fmt.Errorf("%w: no irreps for index %q", ErrFormula, c)
		}
	}
	for key := range in {
		if !strings.Contains(indices, key) || len(key) != 1 {
			return fmt.Errorf("%w: irreps for unknown index %q", ErrFormula, key)
		}
	}
	for _, rel := range rels {
		for i, j := range rel.perm {
			if !in[indices[i:i+1]].Equal(in[indices[j:j+1]]) {
				return fmt.Errorf("%w: permuted indices %c and %c carry different irreps", ErrFormula, indices[i], indices[j])
			}
		}
	}
	out, err := reduce(indices, rels, in)
	if err != nil {
		return err
	}
	r.formula = formula
	r.in = maps.Clone(in)
	r.out = out
	r.plan = compileReduced(indices, in, out)
	return nil
}

func reduce(indices string, rels []relation, in map[string]Irreps) (Irreps, error) {
	swap, antisym, trivial := false, false, true
	for _, rel := range rels {
		identity := slices.IsSorted(rel.perm)
		switch {
		case identity && rel.sign == 1:
		case identity:
			return Irreps{}, nil
		case len(indices) == 2:
			trivial = false
			if swap && antisym != (rel.sign == -1) {
				return Irreps{}, nil
			}
			swap, antisym = true, rel.sign == -1
		default:
			return Irreps{}, fmt.Errorf("%w: permutation relations are supported for two indices only", ErrFormula)
		}
	}
	if trivial {
		acc := MustParseIrreps("1x0e")
		for _, c := range indices {
			acc = product(acc, in[string(c)])
		}
		return simplify(acc.items), nil
	}
	return symmetricPower(in[indices[:1]], antisym), nil
}

func product(a, b Irreps) Irreps {
	var items []MulIrrep
	for _, x := range a.items {
		for _, y := range b.items {
			for _, ir := range x.Ir.Mul(y.Ir) {
				items = append(items, MulIrrep{Mul: x.Mul * y.Mul, Ir: ir})
			}
		}
	}
	return Irreps{items: items}
}

// symmetricPower decomposes the symmetric (or antisymmetric) square of x.
func symmetricPower(x Irreps, antisym bool) Irreps {
	var items []MulIrrep
	for i, a := range x.items {
		for _, b := range x.items[i+1:] {
			for _, ir := range a.Ir.Mul(b.Ir) {
				items = append(items, MulIrrep{Mul: a.Mul * b.Mul, Ir: ir})
			}
		}
		sym, alt := a.Mul*(a.Mul+1)/2, a.Mul*(a.Mul-1)/2
		if antisym {
			sym, alt = alt, sym
		}
		// The square of one irrep splits into even degrees (symmetric) and
		// odd degrees (antisymmetric), all with even parity.
		for l := 0; l <= 2*a.Ir.L; l++ {
			mul := sym
			if l%2 == 1 {
				mul = alt
			}
			items = append(items, MulIrrep{Mul: mul, Ir: Irrep{L: l, P: 1}})
		}
	}
	return simplify(items)
}

// simplify sorts terms by degree then parity and merges equal irreps,
// dropping empty terms.
func simplify(items []MulIrrep) Irreps {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b MulIrrep) int {
		return cmp.Or(cmp.Compare(a.Ir.L, b.Ir.L), cmp.Compare(a.Ir.P, b.Ir.P))
	})
	var out []MulIrrep
	for _, m := range sorted {
		if m.Mul == 0 {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Ir == m.Ir {
			out[n-1].Mul += m.Mul
			continue
		}
		out = append(out, m)
	}
	return Irreps{items: out}
}

// Formula returns the permutation formula.
func (r *ReducedTensorProducts) Formula() string { return r.formula }

// IrrepsIn returns the irreps of every index letter.
func (r *ReducedTensorProducts) IrrepsIn() map[string]Irreps { return maps.Clone(r.in) }

// IrrepsOut returns the decomposition of the selected subspace.
func (r *ReducedTensorProducts) IrrepsOut() Irreps { return r.out }

// Plan returns the compiled plan bytes.
func (r *ReducedTensorProducts) Plan() []byte { return slices.Clone(r.plan) }

// Equal compares formula and irreps.
func (r *ReducedTensorProducts) Equal(other *ReducedTensorProducts) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.formula == other.formula && r.out.Equal(other.out) &&
		maps.EqualFunc(r.in, other.in, Irreps.Equal)
}

// StateDict exports the formula, the irreps and the compiled plan.
func (r *ReducedTensorProducts) StateDict() (map[string]any, error) {
	in := make(map[string]any, len(r.in))
	for k, x := range r.in {
		in[k] = x.String()
	}
	return map[string]any{
		keyFormula:  r.formula,
		"irreps_in": in,
		keyOut:      r.out.String(),
		keyPlan:     slices.Clone(r.plan),
	}, nil
}

// LoadStateDict recomputes the reduction and rejects a stored output or plan
// that disagrees with it.
func (r *ReducedTensorProducts) LoadStateDict(m map[string]any) error {
	formula, ok := m[keyFormula].(string)
	if !ok {
		return fmt.Errorf("%w: %s is %T", ErrFormula, keyFormula, m[keyFormula])
	}
	raw, ok := m["irreps_in"].(map[string]any)
	if !ok {
		return fmt.Errorf("%w: irreps_in is %T", ErrFormula, m["irreps_in"])
	}
	in := make(map[string]Irreps, len(raw))
	for k := range raw {
		x, err := irrepsField(raw, k)
		if err != nil {
			return err
		}
		in[k] = x
	}
	if err := r.init(formula, in); err != nil {
		return err
	}
	if s, ok := m[keyOut].(string); ok && s != r.out.String() {
		return fmt.Errorf("%w: stored output %s, computed %s", ErrFormula, s, r.out)
	}
	if plan, ok := m[keyPlan].([]byte); ok && !slices.Equal(plan, r.plan) {
		return fmt.Errorf("%w: stored plan does not match configuration", ErrPlan)
	}
	return nil
}
