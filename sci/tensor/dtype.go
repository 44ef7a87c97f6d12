package tensor

import "fmt"

// DType is the element type of a Tensor.
type DType int

const (
	Bool DType = iota
	Uint8
	Int8
	Int16
	Int32
	Int64
	Float16
	Float32
	Float64
	Complex64
	Complex128
)

var dtypes = [...]struct {
	name string
	size int
}{
	Bool:       {"bool", 1},
	Uint8:      {"uint8", 1},
	Int8:       {"int8", 1},
	Int16:      {"int16", 2},
	Int32:      {"int32", 4},
	Int64:      {"int64", 8},
	Float16:    {"float16", 2},
	Float32:    {"float32", 4},
	Float64:    {"float64", 8},
	Complex64:  {"complex64", 8},
	Complex128: {"complex128", 16},
}

func (d DType) valid() bool { return d >= 0 && int(d) < len(dtypes) }

// String returns the dtype name, e.g. "float32".
func (d DType) String() string {
	if !d.valid() {
		return fmt.Sprintf("dtype(%d)", int(d))
	}
	return dtypes[d].name
}

// ItemSize returns the size of one element in bytes.
func (d DType) ItemSize() int {
	if !d.valid() {
		return 0
	}
	return dtypes[d].size
}

// ParseDType is the inverse of DType.String.
func ParseDType(name string) (DType, error) {
	for d, info := range dtypes {
		if info.name == name {
			return DType(d), nil
		}
	}
	return 0, fmt.Errorf("tensor: unknown dtype %q", name)
}

// floatWidth returns the width of the float components of d, or 0.
func (d DType) floatWidth() int {
	switch d {
	case Float16:
		return 2
	case Float32, Complex64:
		return 4
	case Float64, Complex128:
		return 8
	}
	return 0
}
