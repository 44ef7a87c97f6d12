package e3

import (
	"errors"
	"fmt"
	"slices"
)

var ErrInstruction = errors.New("e3: invalid instruction")

// Instruction connects term In1 of the first input and term In2 of the
// second input to term Out of the output.
type Instruction struct {
	In1        int
	In2        int
	Out        int
	Mode       string
	HasWeight  bool
	PathWeight float64
	PathShape  []int
}

// Equal compares every field.
func (in Instruction) Equal(other Instruction) bool {
	return in.In1 == other.In1 && in.In2 == other.In2 && in.Out == other.Out &&
		in.Mode == other.Mode && in.HasWeight == other.HasWeight &&
		in.PathWeight == other.PathWeight && slices.Equal(in.PathShape, other.PathShape)
}

// pathShape returns the weight shape of a connection mode.
func pathShape(mode string, mul1, mul2, mulOut int) ([]int, error) {
	switch mode {
	case "uvw":
		return []int{mul1, mul2, mulOut}, nil
	case "uvu":
		if mul1 != mulOut {
			return nil, fmt.Errorf("%w: uvu needs mul1 == mul_out", ErrInstruction)
		}
		return []int{mul1, mul2}, nil
	case "uvv":
		if mul2 != mulOut {
			return nil, fmt.Errorf("%w: uvv needs mul2 == mul_out", ErrInstruction)
		}
		return []int{mul1, mul2}, nil
	case "uuw":
		if mul1 != mul2 {
			return nil, fmt.Errorf("%w: uuw needs mul1 == mul2", ErrInstruction)
		}
		return []int{mul1, mulOut}, nil
	case "uuu":
		if mul1 != mul2 || mul1 != mulOut {
			return nil, fmt.Errorf("%w: uuu needs equal multiplicities", ErrInstruction)
		}
		return []int{mul1}, nil
	case "uvuv":
		if mul1*mul2 != mulOut {
			return nil, fmt.Errorf("%w: uvuv needs mul_out == mul1*mul2", ErrInstruction)
		}
		return []int{mul1, mul2}, nil
	}
	return nil, fmt.Errorf("%w: unknown mode %q", ErrInstruction, mode)
}

// resolve validates in against the irreps and fills in PathShape.
func (in Instruction) resolve(in1, in2, out Irreps) (Instruction, error) {
	if in.In1 < 0 || in.In1 >= in1.Len() || in.In2 < 0 || in.In2 >= in2.Len() || in.Out < 0 || in.Out >= out.Len() {
		return Instruction{}, fmt.Errorf("%w: index out of range (%d, %d, %d)", ErrInstruction, in.In1, in.In2, in.Out)
	}
	a, b, c := in1.At(in.In1), in2.At(in.In2), out.At(in.Out)
	if !slices.Contains(a.Ir.Mul(b.Ir), c.Ir) {
		return Instruction{}, fmt.Errorf("%w: %s is not in %s x %s", ErrInstruction, c.Ir, a.Ir, b.Ir)
	}
	shape, err := pathShape(in.Mode, a.Mul, b.Mul, c.Mul)
	if err != nil {
		return Instruction{}, err
	}
	in.PathShape = shape
	if in.PathWeight == 0 {
		in.PathWeight = 1
	}
	return in, nil
}

func (in Instruction) weightCount() int {
	if !in.HasWeight {
		return 0
	}
	n := 1
	for _, d := range in.PathShape {
		n *= d
	}
	return n
}
