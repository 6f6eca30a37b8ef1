package mcts

import "fmt"

// Annotator populates derived position metadata on first visit. It is the
// external collaborator named in spec.md §6; idempotent by contract.
type Annotator interface {
	Annotate(h Handle)
}

// AnnotatorFunc adapts a plain function to Annotator.
type AnnotatorFunc func(h Handle)

func (f AnnotatorFunc) Annotate(h Handle) { f(h) }

// Handle is a copy-cheap navigator over a node store: component C2. It
// carries no ownership; the store exclusively owns the backing records.
type Handle struct {
	store *nodeStore
	idx   NodeIndex
	ann   Annotator
}

func newHandle(store *nodeStore, idx NodeIndex, ann Annotator) Handle {
	return Handle{store: store, idx: idx, ann: ann}
}

// Index returns the underlying arena index.
func (h Handle) Index() NodeIndex { return h.idx }

// IsValid reports whether this handle addresses a real node.
func (h Handle) IsValid() bool { return h.idx.IsValid() }

func (h Handle) record() *NodeRecord { return h.store.get(h.idx) }

// Parent returns a handle to this node's parent, or an invalid handle at
// the root.
func (h Handle) Parent() Handle {
	p := h.record().ParentIndex
	if !p.IsValid() {
		return Handle{store: h.store, idx: NilIndex, ann: h.ann}
	}
	return newHandle(h.store, p, h.ann)
}

// ChildAt returns a handle to the i-th child slot's materialized node. The
// slot must already be expanded.
func (h Handle) ChildAt(i int) Handle {
	slots := h.store.childSlots(h.record())
	return newHandle(h.store, slots[i].Child, h.ann)
}

// ChildSlots returns the raw child-slot view (unexpanded + expanded).
func (h Handle) ChildSlots() []ChildSlot {
	return h.store.childSlots(h.record())
}

func (h Handle) N() int32                  { return h.record().N }
func (h Handle) W() float32                { return h.record().W }
func (h Handle) TerminalStatus() Terminal  { return h.record().Terminal }
func (h Handle) ZobristHash() uint64       { return h.record().ZobristHash }
func (h Handle) NumPolicyMoves() int32     { return h.record().NumPolicyMoves }
func (h Handle) NumChildrenVisited() int32 { return h.record().NumChildrenVisited }
func (h Handle) NumChildrenExpanded() int32 {
	return h.record().NumChildrenExpanded
}

// Depth walks ParentIndex links to the root. Only used off the hot path
// (e.g. logging), so the O(depth) walk is acceptable.
func (h Handle) Depth() int {
	d := 0
	cur := h.idx
	for {
		n := h.store.get(cur)
		if !n.ParentIndex.IsValid() {
			return d
		}
		cur = n.ParentIndex
		d++
	}
}

// IsAnnotated reports whether derived position metadata has been attached.
func (h Handle) IsAnnotated() bool { return h.record().annotated }

// EnsureAnnotated calls the Annotator exactly once per node (idempotent by
// contract, but we still avoid redundant calls on the hot path).
func (h Handle) EnsureAnnotated() {
	n := h.record()
	if n.annotated {
		return
	}
	if h.ann != nil {
		h.ann.Annotate(h)
	}
	n.annotated = true
}

// CreateChild materializes child slot i of h into a real node record,
// allocating exactly one record. Must be called only while holding h's
// expansion lock (see Handle.WithExpansionLock); spec.md §5 requires this be
// serialized per parent.
func (h Handle) CreateChild(slotIndex int, zobrist uint64) Handle {
	n := h.record()
	slots := h.store.childSlots(n)
	slot := &slots[slotIndex]
	if slot.isExpanded() {
		return newHandle(h.store, slot.Child, h.ann)
	}

	childIdx := h.store.allocNode(h.idx, zobrist)
	slot.Child = childIdx
	n.NumChildrenExpanded++
	return newHandle(h.store, childIdx, h.ann)
}

// WithExpansionLock runs fn while holding the per-parent expansion mutex
// described in spec.md §5 ("a per-parent lock, acquired only for the short
// expansion critical section").
func (h Handle) WithExpansionLock(fn func()) {
	n := h.record()
	n.expandMu.Lock()
	defer n.expandMu.Unlock()
	fn()
}

func (h Handle) String() string {
	n := h.record()
	return fmt.Sprintf("{idx:%d N:%d W:%.3f NInFlight:%v Terminal:%v}",
		h.idx, n.N, n.W, n.NInFlight, n.Terminal)
}
