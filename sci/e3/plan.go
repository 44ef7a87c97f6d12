package e3

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// PlanVersion identifies the layout of compiled plans. Plans of another
// version must be recompiled, not reused.
const PlanVersion = "2"

var ErrPlan = errors.New("e3: malformed plan")

var modeCodes = map[string]byte{"uvw": 1, "uvu": 2, "uvv": 3, "uuw": 4, "uuu": 5, "uvuv": 6}

// compile lays out the contraction schedule of a set of instructions: for
// every path its operand offsets, output offset and weight slice.
func compile(in1, in2, out Irreps, instructions []Instruction) []byte {
	offsets := func(x Irreps) []int {
		off := make([]int, x.Len())
		n := 0
		for i := range off {
			off[i] = n
			n += x.At(i).Dim()
		}
		return off
	}
	o1, o2, oo := offsets(in1), offsets(in2), offsets(out)

	buf := []byte{PlanVersion[0]}
	buf = binary.AppendUvarint(buf, uint64(len(instructions)))
	weight := 0
	for _, in := range instructions {
		buf = append(buf, modeCodes[in.Mode])
		buf = binary.AppendUvarint(buf, uint64(o1[in.In1]))
		buf = binary.AppendUvarint(buf, uint64(o2[in.In2]))
		buf = binary.AppendUvarint(buf, uint64(oo[in.Out]))
		buf = binary.AppendUvarint(buf, uint64(weight))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(in.PathWeight))
		weight += in.weightCount()
	}
	return binary.AppendUvarint(buf, uint64(weight))
}

// planPaths decodes the number of paths and weights of a compiled plan.
func planPaths(plan []byte) (paths, weights int, err error) {
	if len(plan) == 0 || plan[0] != PlanVersion[0] {
		return 0, 0, fmt.Errorf("%w: version", ErrPlan)
	}
	rest := plan[1:]
	read := func() (uint64, bool) {
		v, n := binary.Uvarint(rest)
		if n <= 0 {
			return 0, false
		}
		rest = rest[n:]
		return v, true
	}
	n, ok := read()
	if !ok {
		return 0, 0, ErrPlan
	}
	for i := uint64(0); i < n; i++ {
		if len(rest) == 0 {
			return 0, 0, ErrPlan
		}
		rest = rest[1:]
		for j := 0; j < 4; j++ {
			if _, ok := read(); !ok {
				return 0, 0, ErrPlan
			}
		}
		if len(rest) < 8 {
			return 0, 0, ErrPlan
		}
		rest = rest[8:]
	}
	w, ok := read()
	if !ok || len(rest) != 0 {
		return 0, 0, ErrPlan
	}
	return int(n), int(w), nil
}

// compileReduced records the index dimensions and the output dimension of
// a reduction.
func compileReduced(indices string, in map[string]Irreps, out Irreps) []byte {
	buf := []byte{PlanVersion[0]}
	buf = binary.AppendUvarint(buf, uint64(len(indices)))
	for _, c := range indices {
		buf = append(buf, byte(c))
		buf = binary.AppendUvarint(buf, uint64(in[string(c)].Dim()))
	}
	return binary.AppendUvarint(buf, uint64(out.Dim()))
}
