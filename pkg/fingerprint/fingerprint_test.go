package fingerprint

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/bft-labs/scistore/pkg/helper"
	"github.com/bft-labs/scistore/pkg/registry"
	"github.com/bft-labs/scistore/pkg/state"
)

type link struct {
	Name string
	Next *link
}

func linkRegistry() *registry.Registry {
	h := helper.NewFields(helper.Descriptor{Name: "link", ID: uuid.MustParse("4810acf6-624c-419f-998c-f1a6dcf9def0")},
		helper.Plain("name", func(l *link) any { return l.Name }, func(l *link, v any) (err error) {
			l.Name, err = state.AsString(v)
			return err
		}),
		helper.Ref("next", func(l *link) *link { return l.Next }, func(l *link, n *link) { l.Next = n }),
	)
	return registry.New().MustRegister(h)
}

func mustHex(t *testing.T, v any, r Resolver) string {
	t.Helper()
	got, err := Hex(v, r)
	if err != nil {
		t.Fatalf("Hex(%v) error = %v", v, err)
	}
	return got
}

func TestPlainTrees(t *testing.T) {
	nan := math.NaN()

	tests := []struct {
		name string
		a, b any
		same bool
	}{
		{"map order", map[string]any{"a": int64(1), "b": "x"}, map[string]any{"b": "x", "a": int64(1)}, true},
		{"typed vs normalized", []float64{1, 2}, []any{1.0, 2.0}, true},
		{"int width", int32(5), int64(5), true},
		{"int vs float", int64(1), 1.0, false},
		{"nan", []any{nan}, []any{math.Float64frombits(0x7ff8000000000001)}, true},
		{"negative zero", math.Copysign(0, -1), 0.0, true},
		{"list boundary", []any{[]any{"a"}, "b"}, []any{[]any{"a", "b"}}, false},
		{"string vs bytes", "ab", []byte("ab"), false},
		{"reference", state.Ref(uuid.Nil), state.Ref(uuid.MustParse("5d032ec2-31e3-41ae-bd59-baede55af1cd")), false},
		{"opaque version", state.Opaque{Format: "p", Version: "1"}, state.Opaque{Format: "p", Version: "2"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := mustHex(t, tt.a, nil)
			b := mustHex(t, tt.b, nil)
			if (a == b) != tt.same {
				t.Errorf("Hex equal = %v, want %v", a == b, tt.same)
			}
		})
	}
}

func TestRegisteredValues(t *testing.T) {
	r := linkRegistry()

	a := &link{Name: "a", Next: &link{Name: "b"}}
	b := &link{Name: "a", Next: &link{Name: "b"}}
	c := &link{Name: "a", Next: &link{Name: "c"}}

	if mustHex(t, a, r) != mustHex(t, b, r) {
		t.Error("equal graphs hash differently")
	}
	if mustHex(t, a, r) == mustHex(t, c, r) {
		t.Error("different graphs hash the same")
	}

	// Registered values inside plain containers are expanded by content.
	if mustHex(t, []*link{a}, r) != mustHex(t, []any{b}, r) {
		t.Error("container of equal values hashes differently")
	}
}

func TestCycleTerminates(t *testing.T) {
	r := linkRegistry()
	a := &link{Name: "a"}
	a.Next = &link{Name: "b", Next: a}

	chunks, err := Chunks(a, r)
	if err != nil {
		t.Fatalf("Chunks() error = %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("no chunks")
	}
}

func TestUnregisteredValue(t *testing.T) {
	type opaque struct{ X int }

	_, err := Hex(map[string]any{"k": opaque{}}, linkRegistry())
	var unreg *helper.UnregisteredTypeError
	if !errors.As(err, &unreg) {
		t.Fatalf("Hex() error = %v, want UnregisteredTypeError", err)
	}
	if unreg.Type != reflect.TypeFor[opaque]() {
		t.Errorf("Type = %v", unreg.Type)
	}
}

func TestFailSurfacesAtSum(t *testing.T) {
	h := New(nil)
	boom := errors.New("boom")
	for range h.Fail(boom) {
		t.Fatal("Fail yielded a chunk")
	}
	if !errors.Is(h.Err(), boom) {
		t.Errorf("Err() = %v, want boom", h.Err())
	}
	h.Fail(errors.New("second"))
	if !errors.Is(h.Err(), boom) {
		t.Error("first error overwritten")
	}
}

func TestHexLength(t *testing.T) {
	if got := mustHex(t, "x", nil); len(got) != 64 {
		t.Errorf("len(Hex()) = %d, want 64", len(got))
	}
}
