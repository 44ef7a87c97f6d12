package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/bft-labs/scistore/internal/codec"
	"github.com/bft-labs/scistore/internal/domain"
	"github.com/bft-labs/scistore/pkg/helper"
	"github.com/bft-labs/scistore/pkg/log"
	"github.com/bft-labs/scistore/pkg/state"
)

// slot is one object of a load session.
type slot struct {
	id       uuid.UUID
	state    SlotState
	value    any
	rec      domain.Record
	h        helper.Helper
	strategy helper.Strategy
	tree     any
	deps     []uuid.UUID
	shared   bool

	// strongly connected component bookkeeping
	visited bool
	onStack bool
	index   int
	lowlink int
}

type loadSession struct {
	ctx     context.Context
	s       *Store
	slots   map[uuid.UUID]*slot
	current *slot
	built   int
}

func (s *Store) newLoadSession(ctx context.Context) *loadSession {
	return &loadSession{ctx: ctx, s: s, slots: make(map[uuid.UUID]*slot)}
}

// fetch reads every record reachable from root that the session does not
// know yet. Nothing is constructed.
func (ls *loadSession) fetch(root uuid.UUID) error {
	queue := []uuid.UUID{root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, ok := ls.slots[id]; ok {
			continue
		}
		if err := ls.ctx.Err(); err != nil {
			return err
		}
		if v, ok := ls.s.shared.Load(id); ok {
			ls.slots[id] = &slot{id: id, state: SlotReady, value: v, shared: true}
			continue
		}

		sl, err := ls.read(id)
		if err != nil {
			return err
		}
		ls.slots[id] = sl
		queue = append(queue, sl.deps...)
	}
	return nil
}

func (ls *loadSession) read(id uuid.UUID) (*slot, error) {
	rec, err := ls.s.backend.GetRecord(ls.ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: object %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: read object %s: %w", id, err)
	}
	h, err := ls.s.reg.ResolveByTypeID(rec.TypeID)
	if err != nil {
		return nil, fmt.Errorf("store: object %s: %w", id, err)
	}
	strategy, err := helper.StrategyOf(h)
	if err != nil {
		return nil, helper.Wrap("load", h, nil, err)
	}
	tree, err := codec.Unmarshal(rec.State)
	if err != nil {
		return nil, fmt.Errorf("store: object %s: %w", id, err)
	}

	sl := &slot{id: id, rec: rec, h: h, strategy: strategy, tree: tree}
	for _, ref := range state.References(tree) {
		if !slices.Contains(sl.deps, ref.ID) {
			sl.deps = append(sl.deps, ref.ID)
		}
	}
	return sl, nil
}

// complete builds root and everything it depends on. Components of the
// reference graph are built dependencies first, so every reference a helper
// sees is already usable.
func (ls *loadSession) complete(root uuid.UUID) error {
	sl := ls.slots[root]
	if sl.state == SlotReady {
		return nil
	}
	c := &components{ls: ls}
	return c.connect(sl)
}

// components walks the reference graph emitting strongly connected
// components in reverse topological order.
type components struct {
	ls    *loadSession
	index int
	stack []*slot
}

func (c *components) connect(v *slot) error {
	v.visited = true
	v.index, v.lowlink = c.index, c.index
	c.index++
	c.stack = append(c.stack, v)
	v.onStack = true

	for _, id := range v.deps {
		w := c.ls.slots[id]
		switch {
		case w.state == SlotReady:
		case !w.visited:
			if err := c.connect(w); err != nil {
				return err
			}
			v.lowlink = min(v.lowlink, w.lowlink)
		case w.onStack:
			v.lowlink = min(v.lowlink, w.index)
		}
	}

	if v.lowlink != v.index {
		return nil
	}
	var scc []*slot
	for {
		w := c.stack[len(c.stack)-1]
		c.stack = c.stack[:len(c.stack)-1]
		w.onStack = false
		scc = append(scc, w)
		if w == v {
			break
		}
	}
	return c.ls.build(scc)
}

// build reconstructs one component. A cycle is only buildable when it holds
// at least one two-phase object and its constructor objects do not depend
// on each other in a loop.
func (ls *loadSession) build(scc []*slot) error {
	if len(scc) == 1 && !slices.Contains(scc[0].deps, scc[0].id) {
		sl := scc[0]
		if sl.strategy == helper.StrategyTwoPhase {
			if err := ls.allocate(sl); err != nil {
				return err
			}
			return ls.populate(sl)
		}
		return ls.construct(sl)
	}

	var twoPhase, ctors []*slot
	for _, sl := range scc {
		if sl.strategy == helper.StrategyTwoPhase {
			twoPhase = append(twoPhase, sl)
		} else {
			ctors = append(ctors, sl)
		}
	}
	if len(twoPhase) == 0 {
		return fmt.Errorf("%w: %s", ErrReferenceCycle, describe(scc))
	}
	order, err := constructorOrder(ctors)
	if err != nil {
		return err
	}

	for _, sl := range twoPhase {
		if err := ls.allocate(sl); err != nil {
			return err
		}
	}
	for _, sl := range order {
		if err := ls.construct(sl); err != nil {
			return err
		}
	}
	for _, sl := range twoPhase {
		if err := ls.populate(sl); err != nil {
			return err
		}
	}
	return nil
}

// constructorOrder sorts the constructor objects of one component so that
// each comes after the constructor objects it references.
func constructorOrder(ctors []*slot) ([]*slot, error) {
	byID := make(map[uuid.UUID]*slot, len(ctors))
	for _, sl := range ctors {
		byID[sl.id] = sl
	}
	const (
		white = iota
		grey
		black
	)
	color := make(map[uuid.UUID]int, len(ctors))
	order := make([]*slot, 0, len(ctors))

	var visit func(sl *slot) error
	visit = func(sl *slot) error {
		switch color[sl.id] {
		case grey:
			return fmt.Errorf("%w: %s", ErrReferenceCycle, describe(ctors))
		case black:
			return nil
		}
		color[sl.id] = grey
		for _, id := range sl.deps {
			if dep, ok := byID[id]; ok {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[sl.id] = black
		order = append(order, sl)
		return nil
	}
	for _, sl := range ctors {
		if err := visit(sl); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func describe(slots []*slot) string {
	names := make([]string, len(slots))
	for i, sl := range slots {
		names[i] = fmt.Sprintf("%s(%s)", sl.h.Descriptor().Name, sl.id)
	}
	return strings.Join(names, ", ")
}

func (ls *loadSession) allocate(sl *slot) error {
	tp := sl.h.(helper.TwoPhase)
	sl.value = tp.DefaultInstance()
	return sl.transitionTo(SlotBlank)
}

func (ls *loadSession) populate(sl *slot) error {
	tp := sl.h.(helper.TwoPhase)
	ls.current = sl
	err := tp.LoadInstanceState(sl.value, sl.tree, ls)
	ls.current = nil
	if err != nil {
		return helper.Wrap("load", sl.h, sl.value, err)
	}
	ls.built++
	ls.logBuilt(sl, "populated")
	return sl.transitionTo(SlotReady)
}

func (ls *loadSession) construct(sl *slot) error {
	ctor := sl.h.(helper.Constructor)
	if err := sl.transitionTo(SlotConstructing); err != nil {
		return err
	}
	ls.current = sl
	v, err := ctor.New(sl.tree, ls)
	ls.current = nil
	if err != nil {
		return helper.Wrap("load", sl.h, nil, err)
	}
	sl.value = v
	ls.built++
	ls.logBuilt(sl, "constructed")
	return sl.transitionTo(SlotReady)
}

func (ls *loadSession) logBuilt(sl *slot, how string) {
	d := sl.h.Descriptor()
	ls.s.opts.logger.Debug("loaded object",
		log.TypeName(d.Name),
		log.TypeID(d.ID),
		log.ObjectID(sl.id),
		log.String("phase", how),
	)
}

// publish shares the immutable values built by this session with later
// loads of the same store.
func (ls *loadSession) publish() {
	for id, sl := range ls.slots {
		if sl.shared || sl.state != SlotReady || !sl.h.Descriptor().Immutable {
			continue
		}
		ls.s.shared.LoadOrStore(id, sl.value)
	}
}

// Load implements helper.Loader.
func (ls *loadSession) Load(ref state.Reference) (any, error) {
	sl, ok := ls.slots[ref.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvedReference, ref)
	}
	if sl.state == SlotConstructing {
		return nil, fmt.Errorf("%w: %s is still being constructed", ErrReferenceCycle, ref)
	}
	if !sl.usable() {
		return nil, fmt.Errorf("%w: %s is %s", ErrUnresolvedReference, ref, sl.state)
	}
	return sl.value, nil
}

// ReadFile implements helper.Loader. Only blobs of the object being loaded
// can be opened.
func (ls *loadSession) ReadFile(h state.BlobHandle, fn func(r io.Reader) error) (err error) {
	if ls.current == nil || !slices.Contains(ls.current.rec.Blobs, h.ID) {
		return fmt.Errorf("%w: %s", ErrForeignBlob, h)
	}
	r, err := ls.s.backend.OpenBlob(ls.ctx, h.ID)
	if err != nil {
		return fmt.Errorf("store: open blob %s: %w", h, err)
	}
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("store: close blob %s: %w", h, cerr)
		}
	}()
	return fn(r)
}
