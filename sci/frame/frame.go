// Package frame is a labelled two-dimensional table stored column by column.
//
// Cells hold int64, float64, string, bool or nil. Construction accepts any
// Go integer or float and widens it.
package frame

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
)

var ErrShape = errors.New("frame: inconsistent shape")

// Frame is a table with named columns and an index label per row. The zero
// value is an empty frame.
type Frame struct {
	columns []string
	index   []any
	data    [][]any
}

func cell(v any) (any, error) {
	switch t := v.(type) {
	case nil, int64, float64, string, bool:
		return t, nil
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case float32:
		return float64(t), nil
	}
	return nil, fmt.Errorf("frame: unsupported cell %T", v)
}

func cells(in []any) ([]any, error) {
	out := make([]any, len(in))
	for i, v := range in {
		c, err := cell(v)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func rangeIndex(n int) []any {
	idx := make([]any, n)
	for i := range idx {
		idx[i] = int64(i)
	}
	return idx
}

// New builds a frame from column names and column-major data with a
// 0..n-1 index.
func New(columns []string, data [][]any) (*Frame, error) {
	if len(columns) != len(data) {
		return nil, fmt.Errorf("%w: %d columns, %d data columns", ErrShape, len(columns), len(data))
	}
	n := 0
	if len(data) > 0 {
		n = len(data[0])
	}
	f := &Frame{columns: slices.Clone(columns), index: rangeIndex(n), data: make([][]any, len(data))}
	for c, col := range data {
		if len(col) != n {
			return nil, fmt.Errorf("%w: column %q has %d rows, want %d", ErrShape, columns[c], len(col), n)
		}
		var err error
		if f.data[c], err = cells(col); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// FromDict builds a frame from a column mapping. Columns are ordered by name.
func FromDict[T any](m map[string][]T) (*Frame, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	data := make([][]any, len(names))
	for i, name := range names {
		col := make([]any, len(m[name]))
		for r, v := range m[name] {
			col[r] = v
		}
		data[i] = col
	}
	return New(names, data)
}

// FromSplit builds a frame from the split orientation: an index, column
// names and row-major data.
func FromSplit(index []any, columns []string, rows [][]any) (*Frame, error) {
	f := &Frame{}
	if err := f.Init(index, columns, rows); err != nil {
		return nil, err
	}
	return f, nil
}

// Init replaces the whole content of f with the split orientation.
func (f *Frame) Init(index []any, columns []string, rows [][]any) error {
	idx, err := cells(index)
	if err != nil {
		return err
	}
	if len(rows) != len(idx) {
		return fmt.Errorf("%w: %d index labels, %d rows", ErrShape, len(idx), len(rows))
	}
	data := make([][]any, len(columns))
	for c := range data {
		data[c] = make([]any, len(rows))
	}
	for r, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("%w: row %d has %d cells, want %d", ErrShape, r, len(row), len(columns))
		}
		for c, v := range row {
			if data[c][r], err = cell(v); err != nil {
				return err
			}
		}
	}
	f.columns, f.index, f.data = slices.Clone(columns), idx, data
	return nil
}

// Split returns the index, columns and row-major data.
func (f *Frame) Split() (index []any, columns []string, rows [][]any) {
	rows = make([][]any, len(f.index))
	for r := range rows {
		row := make([]any, len(f.columns))
		for c := range f.columns {
			row[c] = f.data[c][r]
		}
		rows[r] = row
	}
	return slices.Clone(f.index), slices.Clone(f.columns), rows
}

// ToDict returns each column as a list keyed by column name.
func (f *Frame) ToDict() map[string][]any {
	out := make(map[string][]any, len(f.columns))
	for c, name := range f.columns {
		out[name] = slices.Clone(f.data[c])
	}
	return out
}

// Columns returns the column names in order.
func (f *Frame) Columns() []string { return slices.Clone(f.columns) }

// Index returns the row labels.
func (f *Frame) Index() []any { return slices.Clone(f.index) }

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.index) }

// Column returns a copy of the named column.
func (f *Frame) Column(name string) ([]any, bool) {
	c := slices.Index(f.columns, name)
	if c < 0 {
		return nil, false
	}
	return slices.Clone(f.data[c]), true
}

func cellEqual(a, b any) bool {
	x, okx := a.(float64)
	y, oky := b.(float64)
	if okx && oky {
		return x == y || (math.IsNaN(x) && math.IsNaN(y))
	}
	return a == b
}

// Equal reports whether both frames have the same columns, index and cells.
// Cells must also agree in type: int64(1) differs from 1.0.
func (f *Frame) Equal(g *Frame) bool {
	if f == nil || g == nil {
		return f == g
	}
	if !slices.Equal(f.columns, g.columns) || !slices.EqualFunc(f.index, g.index, cellEqual) {
		return false
	}
	for c := range f.data {
		if !slices.EqualFunc(f.data[c], g.data[c], cellEqual) {
			return false
		}
	}
	return true
}
