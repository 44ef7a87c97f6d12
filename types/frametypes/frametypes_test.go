package frametypes

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/bft-labs/scistore/internal/adapters/memory"
	"github.com/bft-labs/scistore/pkg/helpertest"
	"github.com/bft-labs/scistore/pkg/registry"
	"github.com/bft-labs/scistore/pkg/store"
	"github.com/bft-labs/scistore/sci/frame"
)

func TestFrameHelper(t *testing.T) {
	reg := registry.New().MustRegister(Types()...)
	mixed, err := frame.FromSplit(
		[]any{"a", "b"},
		[]string{"x", "label", "ok"},
		[][]any{{1.5, "first", true}, {math.NaN(), nil, false}},
	)
	if err != nil {
		t.Fatal(err)
	}
	ints, err := frame.FromDict(map[string][]int{"col1": {1, 2}, "col2": {3, 4}})
	if err != nil {
		t.Fatal(err)
	}
	helpertest.Run(t, reg,
		helpertest.Case{Name: "mixed cells", Value: mixed},
		helpertest.Case{Name: "int columns", Value: ints},
		helpertest.Case{Name: "empty", Value: &frame.Frame{}},
	)
}

// A two-row numeric table comes back with the same column dictionary.
func TestTableRoundTrip(t *testing.T) {
	ctx := t.Context()
	reg := registry.New().MustRegister(Types()...)
	s, err := store.New(reg, memory.New())
	if err != nil {
		t.Fatal(err)
	}
	original := map[string][]int64{"col1": {1, 2}, "col2": {3, 4}}
	f, err := frame.FromDict(original)
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.Save(ctx, f)
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := store.LoadAs[*frame.Frame](ctx, s, id)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string][]any{"col1": {int64(1), int64(2)}, "col2": {int64(3), int64(4)}}
	if got := loaded.ToDict(); !reflect.DeepEqual(got, want) {
		t.Errorf("ToDict() = %v, want %v", got, want)
	}
}

func TestLoadErrors(t *testing.T) {
	h := NewFrameHelper()
	tests := []struct {
		name  string
		saved map[string]any
		want  error
	}{
		{"short row", map[string]any{"index": []any{int64(0)}, "columns": []any{"a", "b"}, "data": []any{[]any{int64(1)}}}, frame.ErrShape},
		{"missing index", map[string]any{"columns": []any{}, "data": []any{}}, nil},
		{"row not a list", map[string]any{"index": []any{int64(0)}, "columns": []any{"a"}, "data": []any{"x"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.LoadInstanceState(h.DefaultInstance(), tt.saved, nil)
			if err == nil || (tt.want != nil && !errors.Is(err, tt.want)) {
				t.Errorf("LoadInstanceState() error = %v, want %v", err, tt.want)
			}
		})
	}
}
