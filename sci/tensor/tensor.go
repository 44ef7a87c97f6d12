// Package tensor is a dense n-dimensional buffer with a fixed element type.
//
// Elements are kept as raw little-endian bytes. The package reads and writes
// a self-describing binary form used for side files.
package tensor

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
)

var (
	ErrShape  = errors.New("tensor: shape mismatch")
	ErrFormat = errors.New("tensor: malformed stream")
)

// Tensor is a dense buffer. Use Empty or one of the From constructors.
type Tensor struct {
	dtype DType
	shape []int
	data  []byte
}

// maxStreamBytes is the largest payload Read accepts.
const maxStreamBytes = 1 << 34

func numel(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: negative dimension %d", ErrShape, d)
		}
		if d != 0 && n > math.MaxInt/d {
			return 0, fmt.Errorf("%w: %v overflows", ErrShape, shape)
		}
		n *= d
	}
	return n, nil
}

// Empty returns a zero-filled tensor.
func Empty(dtype DType, shape ...int) (*Tensor, error) {
	if !dtype.valid() {
		return nil, fmt.Errorf("tensor: invalid dtype %d", int(dtype))
	}
	n, err := numel(shape)
	if err != nil {
		return nil, err
	}
	if n > math.MaxInt/dtype.ItemSize() {
		return nil, fmt.Errorf("%w: %v overflows", ErrShape, shape)
	}
	return &Tensor{dtype: dtype, shape: slices.Clone(shape), data: make([]byte, n*dtype.ItemSize())}, nil
}

// FromBytes wraps a copy of raw little-endian element bytes.
func FromBytes(dtype DType, shape []int, data []byte) (*Tensor, error) {
	t, err := Empty(dtype, shape...)
	if err != nil {
		return nil, err
	}
	if len(data) != len(t.data) {
		return nil, fmt.Errorf("%w: %d bytes for %d", ErrShape, len(data), len(t.data))
	}
	copy(t.data, data)
	return t, nil
}

// FromFloat64s builds a float64 tensor.
func FromFloat64s(shape []int, values []float64) (*Tensor, error) {
	t, err := Empty(Float64, shape...)
	if err != nil {
		return nil, err
	}
	if len(values) != t.Numel() {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShape, len(values), shape)
	}
	for i, v := range values {
		binary.LittleEndian.PutUint64(t.data[8*i:], math.Float64bits(v))
	}
	return t, nil
}

// FromFloat32s builds a float32 tensor.
func FromFloat32s(shape []int, values []float32) (*Tensor, error) {
	t, err := Empty(Float32, shape...)
	if err != nil {
		return nil, err
	}
	if len(values) != t.Numel() {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShape, len(values), shape)
	}
	for i, v := range values {
		binary.LittleEndian.PutUint32(t.data[4*i:], math.Float32bits(v))
	}
	return t, nil
}

// FromInt64s builds an int64 tensor.
func FromInt64s(shape []int, values []int64) (*Tensor, error) {
	t, err := Empty(Int64, shape...)
	if err != nil {
		return nil, err
	}
	if len(values) != t.Numel() {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShape, len(values), shape)
	}
	for i, v := range values {
		binary.LittleEndian.PutUint64(t.data[8*i:], uint64(v))
	}
	return t, nil
}

// DType returns the element type.
func (t *Tensor) DType() DType { return t.dtype }

// Shape returns a copy of the dimensions.
func (t *Tensor) Shape() []int { return slices.Clone(t.shape) }

// Numel returns the number of elements.
func (t *Tensor) Numel() int {
	if t.dtype.ItemSize() == 0 {
		return 0
	}
	return len(t.data) / t.dtype.ItemSize()
}

// Bytes returns a copy of the raw element bytes.
func (t *Tensor) Bytes() []byte { return slices.Clone(t.data) }

// Float64s converts real floating point and integer elements to float64.
func (t *Tensor) Float64s() ([]float64, error) {
	out := make([]float64, t.Numel())
	for i := range out {
		switch t.dtype {
		case Float64:
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(t.data[8*i:]))
		case Float32:
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(t.data[4*i:])))
		case Int64:
			out[i] = float64(int64(binary.LittleEndian.Uint64(t.data[8*i:])))
		case Int32:
			out[i] = float64(int32(binary.LittleEndian.Uint32(t.data[4*i:])))
		case Int16:
			out[i] = float64(int16(binary.LittleEndian.Uint16(t.data[2*i:])))
		case Int8:
			out[i] = float64(int8(t.data[i]))
		case Uint8, Bool:
			out[i] = float64(t.data[i])
		default:
			return nil, fmt.Errorf("tensor: cannot convert %s to float64", t.dtype)
		}
	}
	return out, nil
}

// CopyFrom overwrites the elements of t with those of src, which must have
// the same dtype and shape.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if t.dtype != src.dtype || !slices.Equal(t.shape, src.shape) {
		return fmt.Errorf("%w: %s%v into %s%v", ErrShape, src.dtype, src.shape, t.dtype, t.shape)
	}
	copy(t.data, src.data)
	return nil
}

// Set replaces dtype, shape and elements of t with a copy of src.
func (t *Tensor) Set(src *Tensor) {
	t.dtype, t.shape, t.data = src.dtype, slices.Clone(src.shape), slices.Clone(src.data)
}

// Canonical returns the element bytes with every NaN replaced by one quiet
// NaN and negative zero replaced by positive zero.
func (t *Tensor) Canonical() []byte {
	out := slices.Clone(t.data)
	switch t.dtype.floatWidth() {
	case 2:
		for i := 0; i+2 <= len(out); i += 2 {
			b := binary.LittleEndian.Uint16(out[i:])
			switch {
			case b&0x7c00 == 0x7c00 && b&0x03ff != 0:
				b = 0x7e00
			case b&0x7fff == 0:
				b = 0
			}
			binary.LittleEndian.PutUint16(out[i:], b)
		}
	case 4:
		for i := 0; i+4 <= len(out); i += 4 {
			f := math.Float32frombits(binary.LittleEndian.Uint32(out[i:]))
			switch {
			case math.IsNaN(float64(f)):
				f = float32(math.NaN())
			case f == 0:
				f = 0
			}
			binary.LittleEndian.PutUint32(out[i:], math.Float32bits(f))
		}
	case 8:
		for i := 0; i+8 <= len(out); i += 8 {
			f := math.Float64frombits(binary.LittleEndian.Uint64(out[i:]))
			switch {
			case math.IsNaN(f):
				f = math.NaN()
			case f == 0:
				f = 0
			}
			binary.LittleEndian.PutUint64(out[i:], math.Float64bits(f))
		}
	}
	return out
}

// Equal compares dtype, shape and canonical element bytes.
func (t *Tensor) Equal(u *Tensor) bool {
	if t == nil || u == nil {
		return t == u
	}
	return t.dtype == u.dtype && slices.Equal(t.shape, u.shape) && bytes.Equal(t.Canonical(), u.Canonical())
}

var magic = [4]byte{'S', 'C', 'T', '1'}

// WriteTo writes the self-describing binary form of t.
func (t *Tensor) WriteTo(w io.Writer) (int64, error) {
	var header bytes.Buffer
	header.Write(magic[:])
	name := t.dtype.String()
	header.WriteByte(byte(len(name)))
	header.WriteString(name)
	header.Write(binary.AppendUvarint(nil, uint64(len(t.shape))))
	for _, d := range t.shape {
		header.Write(binary.AppendUvarint(nil, uint64(d)))
	}
	n, err := w.Write(header.Bytes())
	if err != nil {
		return int64(n), err
	}
	m, err := w.Write(t.data)
	return int64(n + m), err
}

// Read decodes a tensor written by WriteTo.
func Read(r io.Reader) (*Tensor, error) {
	br := bufio.NewReader(r)
	var got [4]byte
	if _, err := io.ReadFull(br, got[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if got != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrFormat, got[:])
	}
	nameLen, err := br.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(br, name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	dtype, err := ParseDType(string(name))
	if err != nil {
		return nil, err
	}
	ndim, err := binary.ReadUvarint(br)
	if err != nil || ndim > 64 {
		return nil, fmt.Errorf("%w: bad rank", ErrFormat)
	}
	shape := make([]int, ndim)
	for i := range shape {
		d, err := binary.ReadUvarint(br)
		if err != nil || d > math.MaxInt32 {
			return nil, fmt.Errorf("%w: bad dimension", ErrFormat)
		}
		shape[i] = int(d)
	}
	n, err := numel(shape)
	if err != nil || n > maxStreamBytes/dtype.ItemSize() {
		return nil, fmt.Errorf("%w: shape %v too large", ErrFormat, shape)
	}
	// The buffer grows with the bytes actually present, so a header
	// claiming more than the stream holds never allocates its full size.
	size := n * dtype.ItemSize()
	data, err := io.ReadAll(io.LimitReader(br, int64(size)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if len(data) != size {
		return nil, fmt.Errorf("%w: short data: %d of %d bytes", ErrFormat, len(data), size)
	}
	return &Tensor{dtype: dtype, shape: shape, data: data}, nil
}
