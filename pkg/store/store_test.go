package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/scistore/internal/adapters/memory"
	"github.com/bft-labs/scistore/internal/codec"
	"github.com/bft-labs/scistore/internal/domain"
	"github.com/bft-labs/scistore/pkg/helper"
	"github.com/bft-labs/scistore/pkg/log"
	"github.com/bft-labs/scistore/pkg/registry"
	"github.com/bft-labs/scistore/pkg/state"
)

var (
	nodeID  = uuid.MustParse("0f1d5e64-3f7e-4a8c-9b55-6d1c2f3e8a01")
	pairID  = uuid.MustParse("6a2b9c4d-8e1f-4d3a-a7b6-5c4d3e2f1a02")
	labelID = uuid.MustParse("c3d4e5f6-a7b8-4c9d-8e0f-1a2b3c4d5e03")
	blobID  = uuid.MustParse("9e8d7c6b-5a49-4382-b716-05f4e3d2c104")

	errBoom = errors.New("boom")
)

// node is loaded in two phases and may close cycles.
type node struct {
	Name  string
	Next  *node
	Other any
}

func nodeHelper() helper.Helper {
	return helper.NewFields(helper.Descriptor{Name: "test.node", ID: nodeID},
		helper.Plain("name", func(n *node) any { return n.Name }, func(n *node, v any) (err error) {
			n.Name, err = state.AsString(v)
			return err
		}),
		helper.Ref("next", func(n *node) *node { return n.Next }, func(n *node, v *node) { n.Next = v }),
		helper.Ref("other", func(n *node) any { return n.Other }, func(n *node, v any) { n.Other = v }),
	)
}

// pair is built by a constructor.
type pair struct {
	Name string
	Peer any
}

type pairHelper struct {
	helper.Base
}

func newPairHelper() *pairHelper {
	return &pairHelper{helper.NewBase(helper.Descriptor{
		Name:  "test.pair",
		ID:    pairID,
		Types: []reflect.Type{reflect.TypeFor[*pair]()},
	})}
}

func (pairHelper) Fingerprint(v any, h helper.Hasher) iter.Seq[[]byte] {
	p, err := helper.As[*pair](v)
	if err != nil {
		return h.Fail(err)
	}
	return h.Hashables(p.Name)
}

func (pairHelper) Equal(a, b any) bool {
	x, y, ok := helper.Both[*pair](a, b)
	return ok && x.Name == y.Name
}

func (pairHelper) SaveInstanceState(v any, s helper.Saver) (any, error) {
	p, err := helper.As[*pair](v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{"name": p.Name}
	if p.Peer != nil {
		ref, err := s.Save(p.Peer)
		if err != nil {
			return nil, err
		}
		out["peer"] = ref
	}
	return out, nil
}

func (pairHelper) New(saved any, l helper.Loader) (any, error) {
	m, err := state.AsMap(saved)
	if err != nil {
		return nil, err
	}
	name, err := state.GetAs(m, "name", state.AsString)
	if err != nil {
		return nil, err
	}
	p := &pair{Name: name}
	if raw, ok := m["peer"]; ok {
		ref, err := state.AsReference(raw)
		if err != nil {
			return nil, err
		}
		if p.Peer, err = l.Load(ref); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// label is immutable and creation tracked.
type label struct {
	Text string
}

func (l *label) StateDict() (map[string]any, error) {
	return map[string]any{"text": l.Text}, nil
}

func (l *label) LoadStateDict(m map[string]any) (err error) {
	l.Text, err = state.GetAs(m, "text", state.AsString)
	return err
}

func labelHelper() helper.Helper {
	return helper.NewStateDict(helper.Descriptor{
		Name:             "test.label",
		ID:               labelID,
		Immutable:        true,
		CreationTracking: true,
	}, func() *label { return new(label) })
}

// blob keeps its payload in a side file.
type blob struct {
	Data []byte
	fail bool
}

type blobHelper struct {
	helper.Base
}

func newBlobHelper() *blobHelper {
	return &blobHelper{helper.NewBase(helper.Descriptor{
		Name:  "test.blob",
		ID:    blobID,
		Types: []reflect.Type{reflect.TypeFor[*blob]()},
	})}
}

func (blobHelper) Fingerprint(v any, h helper.Hasher) iter.Seq[[]byte] {
	b, err := helper.As[*blob](v)
	if err != nil {
		return h.Fail(err)
	}
	return h.Hashables(b.Data)
}

func (blobHelper) Equal(a, b any) bool {
	x, y, ok := helper.Both[*blob](a, b)
	return ok && bytes.Equal(x.Data, y.Data)
}

func (blobHelper) SaveInstanceState(v any, s helper.Saver) (any, error) {
	b, err := helper.As[*blob](v)
	if err != nil {
		return nil, err
	}
	fh, err := s.CreateFile("data.bin")
	if err != nil {
		return nil, err
	}
	err = s.WriteFile(fh, func(w io.Writer) error {
		_, err := w.Write(b.Data)
		return err
	})
	if err != nil {
		return nil, err
	}
	if b.fail {
		return nil, errBoom
	}
	return map[string]any{"data": fh}, nil
}

func (blobHelper) New(saved any, l helper.Loader) (any, error) {
	m, err := state.AsMap(saved)
	if err != nil {
		return nil, err
	}
	fh, err := state.GetAs(m, "data", state.AsBlob)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err = l.ReadFile(fh, func(r io.Reader) error {
		_, err := buf.ReadFrom(r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &blob{Data: buf.Bytes()}, nil
}

// countingBackend counts record reads and open blob streams.
type countingBackend struct {
	*memory.Backend
	gets    atomic.Int64
	open    atomic.Int64
	failPut error
}

type countedStream struct {
	io.Writer
	io.Reader
	close func() error
	open  *atomic.Int64
}

func (c *countedStream) Close() error {
	c.open.Add(-1)
	return c.close()
}

func (c *countingBackend) GetRecord(ctx context.Context, id uuid.UUID) (domain.Record, error) {
	c.gets.Add(1)
	return c.Backend.GetRecord(ctx, id)
}

func (c *countingBackend) PutRecords(ctx context.Context, records []domain.Record) error {
	if c.failPut != nil {
		return c.failPut
	}
	return c.Backend.PutRecords(ctx, records)
}

func (c *countingBackend) CreateBlob(ctx context.Context, id uuid.UUID) (io.WriteCloser, error) {
	w, err := c.Backend.CreateBlob(ctx, id)
	if err != nil {
		return nil, err
	}
	c.open.Add(1)
	return &countedStream{Writer: w, close: w.Close, open: &c.open}, nil
}

func (c *countingBackend) OpenBlob(ctx context.Context, id uuid.UUID) (io.ReadCloser, error) {
	r, err := c.Backend.OpenBlob(ctx, id)
	if err != nil {
		return nil, err
	}
	c.open.Add(1)
	return &countedStream{Reader: r, close: r.Close, open: &c.open}, nil
}

func testRegistry() *registry.Registry {
	return registry.New().MustRegister(nodeHelper(), newPairHelper(), labelHelper(), newBlobHelper())
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *countingBackend) {
	t.Helper()
	b := &countingBackend{Backend: memory.New()}
	s, err := New(testRegistry(), b, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, b
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, memory.New()); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("New(nil registry) error = %v", err)
	}
	if _, err := New(registry.New(), nil); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("New(nil backend) error = %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	in := &node{Name: "a", Next: &node{Name: "b"}}
	id, err := s.Save(ctx, in)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	out, err := LoadAs[*node](ctx, s, id)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if out == in {
		t.Fatal("Load() returned the saved instance")
	}
	if out.Name != "a" || out.Next == nil || out.Next.Name != "b" || out.Next.Next != nil {
		t.Errorf("loaded = %+v", out)
	}
	if !s.Equal(in, out) {
		t.Error("Equal(saved, loaded) = false")
	}

	h1, err := s.Hash(in)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := s.Hash(out)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("hash changed across round trip: %s != %s", h1, h2)
	}
}

func TestSharedReferences(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)

	shared := &node{Name: "shared"}
	a := &node{Name: "a", Next: shared}
	c := &node{Name: "c", Next: shared}

	ids, err := s.SaveAll(ctx, a, c)
	if err != nil {
		t.Fatalf("SaveAll() error = %v", err)
	}
	records, err := b.ListRecords(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Errorf("records = %d, want 3", len(records))
	}

	values, err := s.LoadAll(ctx, ids...)
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	la, lc := values[0].(*node), values[1].(*node)
	if la.Next != lc.Next {
		t.Error("shared child loaded twice within one session")
	}

	again, err := s.LoadAll(ctx, ids[0], ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if again[0] != again[1] {
		t.Error("same id loaded twice within one session")
	}

	separate, err := s.Load(ctx, ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if separate == values[0] {
		t.Error("mutable value shared across sessions")
	}
}

func TestCycles(t *testing.T) {
	ctx := context.Background()

	t.Run("two-phase cycle", func(t *testing.T) {
		s, _ := newTestStore(t)
		a := &node{Name: "a"}
		a.Next = &node{Name: "b", Next: a}

		id, err := s.Save(ctx, a)
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		got, err := LoadAs[*node](ctx, s, id)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got.Next.Next != got {
			t.Error("cycle not restored")
		}
		if got.Next.Name != "b" {
			t.Errorf("Next.Name = %q", got.Next.Name)
		}
	})

	t.Run("mixed cycle from constructor side", func(t *testing.T) {
		s, _ := newTestStore(t)
		p := &pair{Name: "p"}
		n := &node{Name: "n", Other: p}
		p.Peer = n

		id, err := s.Save(ctx, p)
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		got, err := LoadAs[*pair](ctx, s, id)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		ln, ok := got.Peer.(*node)
		if !ok {
			t.Fatalf("Peer = %T", got.Peer)
		}
		if ln.Name != "n" || ln.Other != any(got) {
			t.Errorf("cycle not restored: %+v", ln)
		}
	})

	t.Run("constructor cycle", func(t *testing.T) {
		s, _ := newTestStore(t)
		p1 := &pair{Name: "p1"}
		p2 := &pair{Name: "p2", Peer: p1}
		p1.Peer = p2

		id, err := s.Save(ctx, p1)
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if _, err := s.Load(ctx, id); !errors.Is(err, ErrReferenceCycle) {
			t.Errorf("Load() error = %v, want ErrReferenceCycle", err)
		}
	})

	t.Run("constructor self reference", func(t *testing.T) {
		s, _ := newTestStore(t)
		p := &pair{Name: "self"}
		p.Peer = p

		id, err := s.Save(ctx, p)
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if _, err := s.Load(ctx, id); !errors.Is(err, ErrReferenceCycle) {
			t.Errorf("Load() error = %v, want ErrReferenceCycle", err)
		}
	})
}

func TestBlobs(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)

	id, err := s.Save(ctx, &blob{Data: []byte("payload")})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := LoadAs[*blob](ctx, s, id)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(got.Data) != "payload" {
		t.Errorf("Data = %q", got.Data)
	}
	if n := b.open.Load(); n != 0 {
		t.Errorf("%d blob streams left open", n)
	}
	if b.BlobCount() != 1 {
		t.Errorf("BlobCount() = %d, want 1", b.BlobCount())
	}

	info, err := s.Inspect(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(info.Blobs) != 1 {
		t.Errorf("Blobs = %v", info.Blobs)
	}
}

func TestFailedSaveLeavesNothing(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		values  []any
		failPut error
		want    error
	}{
		{
			name:   "helper error",
			values: []any{&node{Name: "ok"}, &blob{Data: []byte("x"), fail: true}},
			want:   errBoom,
		},
		{
			name:    "backend error",
			values:  []any{&blob{Data: []byte("x")}},
			failPut: errBoom,
			want:    errBoom,
		},
		{
			name:   "nil value",
			values: []any{&blob{Data: []byte("x")}, (*node)(nil)},
			want:   ErrNilValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, b := newTestStore(t)
			b.failPut = tt.failPut

			_, err := s.SaveAll(ctx, tt.values...)
			if !errors.Is(err, tt.want) {
				t.Fatalf("SaveAll() error = %v, want %v", err, tt.want)
			}
			records, err := b.Backend.ListRecords(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(records) != 0 {
				t.Errorf("%d records written by failed save", len(records))
			}
			if b.BlobCount() != 0 {
				t.Errorf("%d blobs left by failed save", b.BlobCount())
			}
			if n := b.open.Load(); n != 0 {
				t.Errorf("%d blob streams left open", n)
			}
		})
	}
}

func TestHelperErrorsCarryTypeID(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Save(context.Background(), &blob{fail: true})

	var opErr *helper.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("Save() error = %v, want OperationError", err)
	}
	if opErr.TypeID != blobID || opErr.Op != "save" {
		t.Errorf("OperationError = %+v", opErr)
	}
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()

	encode := func(t *testing.T, tree any) []byte {
		t.Helper()
		data, err := codec.Marshal(tree)
		if err != nil {
			t.Fatal(err)
		}
		return data
	}

	t.Run("missing object", func(t *testing.T) {
		s, _ := newTestStore(t)
		if _, err := s.Load(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
			t.Errorf("Load() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("missing reference", func(t *testing.T) {
		s, b := newTestStore(t)
		id := uuid.New()
		rec := domain.Record{ID: id, TypeID: nodeID, State: encode(t, map[string]any{
			"name":  "dangling",
			"next":  state.Ref(uuid.New()),
			"other": nil,
		})}
		if err := b.PutRecords(ctx, []domain.Record{rec}); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Load(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Load() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("unknown type id", func(t *testing.T) {
		s, b := newTestStore(t)
		id, typeID := uuid.New(), uuid.New()
		rec := domain.Record{ID: id, TypeID: typeID, State: encode(t, map[string]any{})}
		if err := b.PutRecords(ctx, []domain.Record{rec}); err != nil {
			t.Fatal(err)
		}
		_, err := s.Load(ctx, id)
		var unknown *helper.UnknownTypeIDError
		if !errors.As(err, &unknown) || unknown.TypeID != typeID {
			t.Errorf("Load() error = %v, want UnknownTypeIDError", err)
		}

		info, err := s.Inspect(ctx, id)
		if err != nil {
			t.Fatalf("Inspect() error = %v", err)
		}
		if info.TypeName != "" || info.TypeID != typeID {
			t.Errorf("Inspect() = %+v", info)
		}
	})

	t.Run("reference of wrong type", func(t *testing.T) {
		s, _ := newTestStore(t)
		ids, err := s.SaveAll(ctx, &pair{Name: "p"})
		if err != nil {
			t.Fatal(err)
		}
		id := uuid.New()
		rec := domain.Record{ID: id, TypeID: nodeID, State: encode(t, map[string]any{
			"name":  "n",
			"next":  state.Ref(ids[0]),
			"other": nil,
		})}
		if err := s.backend.PutRecords(ctx, []domain.Record{rec}); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Load(ctx, id); !errors.Is(err, helper.ErrTypeMismatch) {
			t.Errorf("Load() error = %v, want ErrTypeMismatch", err)
		}
	})
}

func TestUnregisteredType(t *testing.T) {
	s, _ := newTestStore(t)
	type stranger struct{}

	_, err := s.Save(context.Background(), &stranger{})
	var unreg *helper.UnregisteredTypeError
	if !errors.As(err, &unreg) {
		t.Errorf("Save() error = %v, want UnregisteredTypeError", err)
	}
}

func TestImmutableSharing(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)

	id, err := s.Save(ctx, &label{Text: "fixed"})
	if err != nil {
		t.Fatal(err)
	}

	fresh, err := New(s.Registry(), b)
	if err != nil {
		t.Fatal(err)
	}
	first, err := fresh.Load(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	reads := b.gets.Load()
	second, err := fresh.Load(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("immutable value not shared between loads")
	}
	if b.gets.Load() != reads {
		t.Error("shared immutable value was read from the backend again")
	}
}

func TestSameValueSavedOnce(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)

	l := &label{Text: "x"}
	if _, err := s.SaveAll(ctx, &node{Name: "a", Other: l}, &node{Name: "b", Other: l}); err != nil {
		t.Fatal(err)
	}
	records, err := b.ListRecords(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Errorf("records = %d, want 3", len(records))
	}
}

func TestCreationTracking(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s, _ := newTestStore(t, WithCreator("alice@lab"), WithClock(func() time.Time { return at }))

	ids, err := s.SaveAll(ctx, &label{Text: "tracked"}, &node{Name: "untracked"})
	if err != nil {
		t.Fatal(err)
	}

	tracked, err := s.Inspect(ctx, ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if tracked.Creator != "alice@lab" || !tracked.CreatedAt.Equal(at) {
		t.Errorf("tracked = %+v", tracked)
	}
	if tracked.TypeName != "test.label" {
		t.Errorf("TypeName = %q", tracked.TypeName)
	}
	if m, ok := tracked.State.(map[string]any); !ok || m["text"] != "tracked" {
		t.Errorf("State = %#v", tracked.State)
	}

	plain, err := s.Inspect(ctx, ids[1])
	if err != nil {
		t.Fatal(err)
	}
	if plain.Creator != "" || !plain.CreatedAt.IsZero() {
		t.Errorf("untracked = %+v", plain)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].State != nil {
		t.Errorf("List() = %+v", list)
	}
}

func TestCanceledContext(t *testing.T) {
	s, _ := newTestStore(t)
	id, err := s.Save(context.Background(), &node{Name: "a"})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Save(ctx, &node{Name: "b"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Save() error = %v, want context.Canceled", err)
	}
	if _, err := s.Load(ctx, id); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

type liarHelper struct{ *pairHelper }

func (liarHelper) Equal(a, b any) bool { return false }

type forgetfulHelper struct{ *pairHelper }

func (forgetfulHelper) SaveInstanceState(v any, s helper.Saver) (any, error) {
	return map[string]any{"name": "forgotten"}, nil
}

// brokenHelper saves fine but can never rebuild a pair.
type brokenHelper struct{ *pairHelper }

func newBrokenHelper() brokenHelper {
	return brokenHelper{&pairHelper{helper.NewBase(helper.Descriptor{
		Name:      "test.pair",
		ID:        pairID,
		Types:     []reflect.Type{reflect.TypeFor[*pair]()},
		Immutable: true,
	})}}
}

func (brokenHelper) New(any, helper.Loader) (any, error) { return nil, errBoom }

func TestCheck(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		helper    helper.Helper
		invariant string
	}{
		{"sound", newPairHelper(), ""},
		{"not reflexive", liarHelper{newPairHelper()}, "reflexive equality"},
		{"lossy", forgetfulHelper{newPairHelper()}, "round trip equality"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(registry.New().MustRegister(tt.helper), memory.New())
			if err != nil {
				t.Fatal(err)
			}
			err = s.Check(ctx, &pair{Name: "x"})
			if tt.invariant == "" {
				if err != nil {
					t.Errorf("Check() error = %v", err)
				}
				return
			}
			var inv *helper.InvariantError
			if !errors.As(err, &inv) {
				t.Fatalf("Check() error = %v, want InvariantError", err)
			}
			if inv.Invariant != tt.invariant || inv.TypeID != pairID {
				t.Errorf("InvariantError = %+v", inv)
			}
		})
	}
}

func TestCheckRebuildsImmutable(t *testing.T) {
	s, err := New(registry.New().MustRegister(newBrokenHelper()), memory.New())
	if err != nil {
		t.Fatal(err)
	}
	err = s.Check(context.Background(), &pair{Name: "x"})
	if !errors.Is(err, errBoom) {
		t.Fatalf("Check() error = %v, want the constructor failure", err)
	}
	var opErr *helper.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("Check() error = %T, want OperationError", err)
	}
	if opErr.Op != "load" || opErr.TypeID != pairID || opErr.Type != reflect.TypeFor[*pair]() {
		t.Errorf("OperationError = %+v", opErr)
	}
}

func TestSaveDoesNotShareCallerValue(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	orig := &label{Text: "fixed"}
	id, err := s.Save(ctx, orig)
	if err != nil {
		t.Fatal(err)
	}
	orig.Text = "changed"

	v, err := s.Load(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := v.(*label)
	if !ok {
		t.Fatalf("Load() = %T, want *label", v)
	}
	if got == orig {
		t.Fatal("Load() returned the saved value itself")
	}
	if got.Text != "fixed" {
		t.Errorf("Text = %q, want %q", got.Text, "fixed")
	}
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	a := &node{Name: "a"}
	a.Next = &node{Name: "b", Next: a, Other: &label{Text: "l"}}
	id, err := s.Save(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Verify(ctx, id); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
	if err := s.Verify(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Verify(missing) error = %v", err)
	}
}

func TestBlobScope(t *testing.T) {
	s, _ := newTestStore(t)
	ss := s.newSaveSession(context.Background())
	if _, err := ss.CreateFile("x"); !errors.Is(err, ErrNoBlobScope) {
		t.Errorf("CreateFile() outside save error = %v", err)
	}
	err := ss.WriteFile(state.BlobHandle{ID: uuid.New()}, func(io.Writer) error { return nil })
	if !errors.Is(err, ErrForeignBlob) {
		t.Errorf("WriteFile(foreign) error = %v", err)
	}

	ls := s.newLoadSession(context.Background())
	err = ls.ReadFile(state.BlobHandle{ID: uuid.New()}, func(io.Reader) error { return nil })
	if !errors.Is(err, ErrForeignBlob) {
		t.Errorf("ReadFile(foreign) error = %v", err)
	}
	if _, err := ls.Load(state.Ref(uuid.New())); !errors.Is(err, ErrUnresolvedReference) {
		t.Errorf("Load(unknown) error = %v", err)
	}
}

func TestSlotTransitions(t *testing.T) {
	tests := []struct {
		from, to SlotState
		ok       bool
	}{
		{SlotUnallocated, SlotBlank, true},
		{SlotUnallocated, SlotConstructing, true},
		{SlotBlank, SlotReady, true},
		{SlotConstructing, SlotReady, true},
		{SlotBlank, SlotConstructing, false},
		{SlotReady, SlotBlank, false},
		{SlotConstructing, SlotBlank, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			sl := &slot{state: tt.from}
			err := sl.transitionTo(tt.to)
			if (err == nil) != tt.ok {
				t.Errorf("transitionTo() error = %v, want ok=%v", err, tt.ok)
			}
		})
	}

	if SlotState(99).String() != "Unknown" {
		t.Error("unknown state string")
	}
}

type logEntry struct {
	level, msg string
	fields     map[string]any
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (r *recordingLogger) record(level, msg string, fields []log.Field) {
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, logEntry{level, msg, m})
}

func (r *recordingLogger) Debug(msg string, fields ...log.Field) { r.record("debug", msg, fields) }
func (r *recordingLogger) Info(msg string, fields ...log.Field)  { r.record("info", msg, fields) }
func (r *recordingLogger) Warn(msg string, fields ...log.Field)  { r.record("warn", msg, fields) }
func (r *recordingLogger) Error(msg string, fields ...log.Field) { r.record("error", msg, fields) }

func (r *recordingLogger) find(msg string) []logEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []logEntry
	for _, e := range r.entries {
		if e.msg == msg {
			out = append(out, e)
		}
	}
	return out
}

func TestSessionLogging(t *testing.T) {
	ctx := context.Background()
	rec := &recordingLogger{}
	s, _ := newTestStore(t, WithLogger(rec))

	id, err := s.Save(ctx, &node{Name: "a", Next: &node{Name: "b"}})
	if err != nil {
		t.Fatal(err)
	}
	saved := rec.find("saved object")
	if len(saved) != 2 {
		t.Fatalf("saved object entries = %d, want 2", len(saved))
	}
	for _, e := range saved {
		if e.level != "debug" || e.fields["type"] != "test.node" || e.fields["type_id"] != nodeID.String() {
			t.Errorf("saved object entry = %+v", e)
		}
	}
	summary := rec.find("saved objects")
	if len(summary) != 1 || summary[0].level != "info" || summary[0].fields["records"] != 2 {
		t.Fatalf("saved objects entries = %+v", summary)
	}
	if _, ok := summary[0].fields["took"].(time.Duration); !ok {
		t.Errorf("saved objects has no duration: %+v", summary[0])
	}

	if _, err := s.Load(ctx, id); err != nil {
		t.Fatal(err)
	}
	loaded := rec.find("loaded object")
	if len(loaded) != 2 {
		t.Fatalf("loaded object entries = %d, want 2", len(loaded))
	}
	if loaded[0].fields["object_id"] == nil || loaded[0].fields["phase"] != "populated" {
		t.Errorf("loaded object entry = %+v", loaded[0])
	}
	if got := rec.find("loaded objects"); len(got) != 1 || got[0].fields["materialized"] != 2 {
		t.Errorf("loaded objects entries = %+v", got)
	}

	if _, err := s.Save(ctx, &blob{fail: true}); err == nil {
		t.Fatal("Save() error = nil")
	}
	if _, err := s.Load(ctx, uuid.New()); err == nil {
		t.Fatal("Load() error = nil")
	}
	for _, msg := range []string{"save failed", "load failed"} {
		got := rec.find(msg)
		if len(got) != 1 || got[0].level != "error" || got[0].fields["error"] == nil {
			t.Errorf("%s entries = %+v", msg, got)
		}
	}
}
