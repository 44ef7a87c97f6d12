package helper

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/bft-labs/scistore/pkg/state"
)

// fakeHasher renders every node with %v; good enough to compare sequences.
type fakeHasher struct {
	err error
}

func (h *fakeHasher) Hashables(v any) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		yield([]byte(fmt.Sprintf("%T:%v", v, v)))
	}
}

func (h *fakeHasher) Fail(err error) iter.Seq[[]byte] {
	h.err = err
	return func(func([]byte) bool) {}
}

func collect(seq iter.Seq[[]byte]) []string {
	var out []string
	for chunk := range seq {
		out = append(out, string(chunk))
	}
	return out
}

// memSession is a minimal in-memory Saver and Loader.
type memSession struct {
	saved   map[uuid.UUID]any
	ids     map[any]uuid.UUID
	loadErr error
}

func newMemSession() *memSession {
	return &memSession{saved: map[uuid.UUID]any{}, ids: map[any]uuid.UUID{}}
}

func (m *memSession) Save(v any) (state.Reference, error) {
	if id, ok := m.ids[v]; ok {
		return state.Ref(id), nil
	}
	id := uuid.New()
	m.ids[v] = id
	m.saved[id] = v
	return state.Ref(id), nil
}

func (m *memSession) CreateFile(name string) (state.BlobHandle, error) {
	return state.BlobHandle{ID: uuid.New(), Name: name}, nil
}

func (m *memSession) WriteFile(state.BlobHandle, func(io.Writer) error) error { return nil }

func (m *memSession) Load(ref state.Reference) (any, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	v, ok := m.saved[ref.ID]
	if !ok {
		return nil, errors.New("not found")
	}
	return v, nil
}

func (m *memSession) ReadFile(state.BlobHandle, func(io.Reader) error) error { return nil }

type node struct {
	Label string
	Score float64
}

func (n *node) Equal(o *node) bool {
	if n == nil || o == nil {
		return n == o
	}
	return n.Label == o.Label && state.FloatEqual(n.Score, o.Score)
}

type edge struct {
	From, To *node
	Order    int
}

func edgeHelper() *Fields[edge] {
	return NewFields(Descriptor{Name: "edge", ID: uuid.MustParse("9d4e2c7a-1b3f-4f60-8e25-6a7c9b0d4e22")},
		Ref("from", func(e *edge) *node { return e.From }, func(e *edge, n *node) { e.From = n }),
		Ref("to", func(e *edge) *node { return e.To }, func(e *edge, n *node) { e.To = n }),
		Plain("order", func(e *edge) any { return e.Order }, func(e *edge, v any) (err error) {
			e.Order, err = state.AsInt(v)
			return err
		}),
	)
}

func TestStrategyOf(t *testing.T) {
	desc := Descriptor{Name: "x", ID: uuid.New()}

	tests := []struct {
		name    string
		h       Helper
		want    Strategy
		wantErr bool
	}{
		{"two phase", NewFields[node](desc), StrategyTwoPhase, false},
		{"constructor", &ctorOnly{neither{NewBase(desc)}}, StrategyNew, false},
		{"both", &bothStrategies{ctorOnly{neither{NewBase(desc)}}}, 0, true},
		{"neither", &neither{Base: NewBase(desc)}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StrategyOf(tt.h)
			if tt.wantErr {
				if !errors.Is(err, ErrStrategy) {
					t.Fatalf("StrategyOf() error = %v, want ErrStrategy", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("StrategyOf() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("StrategyOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

type neither struct{ Base }

func (neither) Fingerprint(any, Hasher) iter.Seq[[]byte]  { return nil }
func (neither) Equal(a, b any) bool                       { return false }
func (neither) SaveInstanceState(any, Saver) (any, error) { return nil, nil }

type ctorOnly struct{ neither }

func (ctorOnly) New(any, Loader) (any, error) { return nil, nil }

type bothStrategies struct{ ctorOnly }

func (bothStrategies) DefaultInstance() any                     { return nil }
func (bothStrategies) LoadInstanceState(any, any, Loader) error { return nil }

func TestBaseDescriptorIsCopied(t *testing.T) {
	b := NewBase(Descriptor{Name: "n", Types: []reflect.Type{reflect.TypeFor[int]()}})
	d := b.Descriptor()
	d.Types[0] = reflect.TypeFor[string]()
	if b.Descriptor().Types[0] != reflect.TypeFor[int]() {
		t.Error("Descriptor() exposes internal slice")
	}
}

func TestWrap(t *testing.T) {
	h := edgeHelper()
	native := errors.New("boom")

	err := Wrap("save", h, &edge{}, native)
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("Wrap() = %T, want *OperationError", err)
	}
	if opErr.TypeID != h.Descriptor().ID {
		t.Errorf("TypeID = %v, want %v", opErr.TypeID, h.Descriptor().ID)
	}
	if opErr.Type != reflect.TypeFor[*edge]() {
		t.Errorf("Type = %v, want *edge", opErr.Type)
	}
	if !errors.Is(err, native) {
		t.Error("native error not reachable through Unwrap")
	}
	var fromCtor *OperationError
	if !errors.As(Wrap("load", h, nil, native), &fromCtor) || fromCtor.Type != reflect.TypeFor[*edge]() {
		t.Errorf("Wrap() without a value reports type %v, want *edge", fromCtor)
	}
	if again := Wrap("load", h, nil, err); again != err {
		t.Error("Wrap() rewrapped an OperationError")
	}
	if Wrap("save", h, nil, nil) != nil {
		t.Error("Wrap(nil) != nil")
	}
}

func TestFieldsRoundTrip(t *testing.T) {
	h := edgeHelper()
	shared := &node{Label: "C", Score: 1.5}
	orig := &edge{From: shared, To: shared, Order: 2}

	sess := newMemSession()
	saved, err := h.SaveInstanceState(orig, sess)
	if err != nil {
		t.Fatalf("SaveInstanceState() error = %v", err)
	}
	m := saved.(map[string]any)
	if m["from"] != m["to"] {
		t.Errorf("shared pointer saved twice: %v vs %v", m["from"], m["to"])
	}
	if m["order"] != int64(2) {
		t.Errorf("order = %#v, want int64(2)", m["order"])
	}

	blank := h.DefaultInstance()
	if err := h.LoadInstanceState(blank, saved, sess); err != nil {
		t.Fatalf("LoadInstanceState() error = %v", err)
	}
	if !h.Equal(blank, orig) {
		t.Error("loaded edge not equal to original")
	}
	loaded := blank.(*edge)
	if loaded.From != loaded.To {
		t.Error("loaded endpoints are not the same instance")
	}
}

func TestFieldsNilReference(t *testing.T) {
	h := edgeHelper()
	sess := newMemSession()
	saved, err := h.SaveInstanceState(&edge{From: &node{Label: "O"}}, sess)
	if err != nil {
		t.Fatalf("SaveInstanceState() error = %v", err)
	}
	if saved.(map[string]any)["to"] != nil {
		t.Fatalf("nil pointer saved as %v", saved.(map[string]any)["to"])
	}
	blank := h.DefaultInstance().(*edge)
	if err := h.LoadInstanceState(blank, saved, sess); err != nil {
		t.Fatalf("LoadInstanceState() error = %v", err)
	}
	if blank.To != nil || blank.From == nil {
		t.Errorf("loaded = %+v", blank)
	}
}

func TestFieldsLoadErrors(t *testing.T) {
	h := edgeHelper()
	sess := newMemSession()
	wrongRef, _ := sess.Save("not a node")

	tests := []struct {
		name  string
		saved any
		want  error
	}{
		{"missing field", map[string]any{"from": nil, "to": nil}, state.ErrMissingKey},
		{"not a mapping", []any{}, state.ErrUnexpectedType},
		{"reference to wrong type", map[string]any{"from": wrongRef, "to": nil, "order": int64(0)}, ErrTypeMismatch},
		{"plain where reference expected", map[string]any{"from": "x", "to": nil, "order": int64(0)}, state.ErrUnexpectedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.LoadInstanceState(h.DefaultInstance(), tt.saved, sess)
			if !errors.Is(err, tt.want) {
				t.Errorf("LoadInstanceState() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFieldsTypeMismatchSafety(t *testing.T) {
	h := edgeHelper()
	e := &edge{Order: 1}
	for _, other := range []any{nil, 1, "edge", edge{}, &node{}} {
		if h.Equal(e, other) || h.Equal(other, e) {
			t.Errorf("Equal(edge, %T) = true", other)
		}
	}
	if _, err := h.SaveInstanceState(edge{}, newMemSession()); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("SaveInstanceState(value) error = %v, want ErrTypeMismatch", err)
	}
	hasher := &fakeHasher{}
	if got := collect(h.Fingerprint(3, hasher)); len(got) != 0 || !errors.Is(hasher.err, ErrTypeMismatch) {
		t.Errorf("Fingerprint(int) = %v, err %v", got, hasher.err)
	}
}

func TestFieldsFingerprintFollowsEquality(t *testing.T) {
	h := edgeHelper()
	a := &edge{Order: 3}
	b := &edge{Order: 3}
	c := &edge{Order: 4}

	fa := collect(h.Fingerprint(a, &fakeHasher{}))
	fb := collect(h.Fingerprint(b, &fakeHasher{}))
	fc := collect(h.Fingerprint(c, &fakeHasher{}))
	if !reflect.DeepEqual(fa, fb) {
		t.Errorf("equal values fingerprint differently: %v vs %v", fa, fb)
	}
	if reflect.DeepEqual(fa, fc) {
		t.Error("different values share a fingerprint")
	}
	if got, want := h.Names(), []string{"from", "to", "order"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

type path struct {
	Name  string
	Nodes []*node
}

func pathHelper() *Fields[path] {
	return NewFields(Descriptor{Name: "path", ID: uuid.MustParse("0b7f4c55-94a8-4d0e-8f1e-3c2d7a9b6e10")},
		Plain("name", func(p *path) any { return p.Name }, func(p *path, v any) (err error) {
			p.Name, err = state.AsString(v)
			return err
		}),
		RefList("nodes", func(p *path) []*node { return p.Nodes }, func(p *path, n []*node) { p.Nodes = n }),
	)
}

func TestFieldsRefList(t *testing.T) {
	h := pathHelper()
	sess := newMemSession()
	a, b := &node{Label: "a"}, &node{Label: "b", Score: 1}
	orig := &path{Name: "loop", Nodes: []*node{a, b, a, nil}}

	saved, err := h.SaveInstanceState(orig, sess)
	if err != nil {
		t.Fatalf("SaveInstanceState() error = %v", err)
	}
	refs := saved.(map[string]any)["nodes"].([]any)
	if len(refs) != 4 || refs[0] != refs[2] || refs[3] != nil {
		t.Fatalf("nodes saved as %v", refs)
	}

	blank := h.DefaultInstance()
	if err := h.LoadInstanceState(blank, saved, sess); err != nil {
		t.Fatalf("LoadInstanceState() error = %v", err)
	}
	if !h.Equal(blank, orig) {
		t.Errorf("loaded path = %+v", blank)
	}
	loaded := blank.(*path)
	if loaded.Nodes[0] != loaded.Nodes[2] {
		t.Error("repeated node loaded as two instances")
	}

	other := &path{Name: "loop", Nodes: []*node{a, b, b, nil}}
	if h.Equal(orig, other) {
		t.Error("paths through different nodes are equal")
	}

	wrongRef, _ := sess.Save("not a node")
	bad := map[string]any{"name": "x", "nodes": []any{wrongRef}}
	if err := h.LoadInstanceState(h.DefaultInstance(), bad, sess); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("wrong element type error = %v, want ErrTypeMismatch", err)
	}
}

type counter struct {
	Counts map[string]int
}

func (c *counter) StateDict() (map[string]any, error) {
	return map[string]any{"counts": c.Counts}, nil
}

func (c *counter) LoadStateDict(m map[string]any) error {
	counts, err := state.AsMap(m["counts"])
	if err != nil {
		return err
	}
	c.Counts = make(map[string]int, len(counts))
	for k, v := range counts {
		n, err := state.AsInt(v)
		if err != nil {
			return err
		}
		c.Counts[k] = n
	}
	return nil
}

func TestStateDict(t *testing.T) {
	h := NewStateDict(Descriptor{Name: "counter", ID: uuid.New()}, func() *counter { return &counter{} })

	if got := h.Descriptor().Types; len(got) != 1 || got[0] != reflect.TypeFor[*counter]() {
		t.Fatalf("Types = %v, want [*counter]", got)
	}

	orig := &counter{Counts: map[string]int{"a": 1, "b": 2}}
	saved, err := h.SaveInstanceState(orig, nil)
	if err != nil {
		t.Fatalf("SaveInstanceState() error = %v", err)
	}
	blank := h.DefaultInstance()
	if err := h.LoadInstanceState(blank, saved, nil); err != nil {
		t.Fatalf("LoadInstanceState() error = %v", err)
	}
	if !h.Equal(orig, blank) {
		t.Errorf("round trip lost data: %+v", blank)
	}
	if h.Equal(orig, &counter{Counts: map[string]int{"a": 1}}) {
		t.Error("different counters compare equal")
	}
	if h.Equal(orig, map[string]any{}) {
		t.Error("Equal accepted a foreign type")
	}
}

func TestConcatStopsEarly(t *testing.T) {
	h := &fakeHasher{}
	seq := Concat(h.Hashables(1), h.Hashables(2), h.Hashables(3))
	var n int
	for range seq {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("consumed %d chunks, want 2", n)
	}
}
