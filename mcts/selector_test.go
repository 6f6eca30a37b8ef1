package mcts

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// applyAndBackup pretends to be the surrounding search's apply phase: it gives
// every never-visited leaf two children with fixed priors, mimicking what a
// real Inferencer + expandPolicy pair would install.
func applyAndBackup(store *nodeStore, leaves []Handle, s SelectorID, value float32) {
	for _, h := range leaves {
		n := h.record()
		if n.NumPolicyMoves == 0 {
			h.WithExpansionLock(func() {
				if n.NumPolicyMoves == 0 {
					store.setChildSlots(n, []ChildSlot{
						{Move: 0, Prior: 0.6, Child: NilIndex},
						{Move: 1, Prior: 0.4, Child: NilIndex},
					})
				}
			})
		}
		cur := h.Index()
		v := value
		for {
			cn := store.get(cur)
			k := atomic.SwapInt32(&cn.NInFlight[s], 0)
			atomic.AddInt32(&cn.N, k)
			cn.W += v * float32(k)
			v = -v
			if !cn.ParentIndex.IsValid() {
				break
			}
			cur = cn.ParentIndex
		}
	}
}

func newTestSelector() (*nodeStore, *Selector, NodeIndex) {
	store := newNodeStore(32)
	rootIdx := store.allocNode(NilIndex, 1)
	cfg := DefaultConfig()
	hasher := func(parent Handle, slot ChildSlot) uint64 { return uint64(slot.Move) + 1000 }
	sel := NewSelector(store, AnnotatorFunc(func(Handle) {}), NewDefaultScorer(), NewTranspositionTable(), hasher, nil, cfg)
	return store, sel, rootIdx
}

func TestSelectNewLeafBatchletFirstCallReturnsRootAsSoleLeaf(t *testing.T) {
	store, sel, rootIdx := newTestSelector()
	root := newHandle(store, rootIdx, AnnotatorFunc(func(Handle) {}))

	leaves := sel.SelectNewLeafBatchlet(root, 4, 1.0, SelectorA)

	require.Len(t, leaves, 1)
	assert.Equal(t, rootIdx, leaves[0].Index())
	assert.EqualValues(t, 4, inFlight(store.get(rootIdx), SelectorA))
}

func TestSelectNewLeafBatchletSumsReservationsToTarget(t *testing.T) {
	store, sel, rootIdx := newTestSelector()
	root := newHandle(store, rootIdx, AnnotatorFunc(func(Handle) {}))

	first := sel.SelectNewLeafBatchlet(root, 1, 1.0, SelectorA)
	applyAndBackup(store, first, SelectorA, 0.5)

	leaves := sel.SelectNewLeafBatchlet(root, 8, 1.0, SelectorA)

	var total int32
	for _, h := range leaves {
		total += inFlight(h.record(), SelectorA)
	}
	assert.EqualValues(t, 8, total)
}

func TestSelectNewLeafBatchletEmitsEachLeafAtMostOnce(t *testing.T) {
	store, sel, rootIdx := newTestSelector()
	root := newHandle(store, rootIdx, AnnotatorFunc(func(Handle) {}))

	first := sel.SelectNewLeafBatchlet(root, 1, 1.0, SelectorA)
	applyAndBackup(store, first, SelectorA, 0.5)

	leaves := sel.SelectNewLeafBatchlet(root, 6, 1.0, SelectorA)

	seen := map[NodeIndex]bool{}
	for _, h := range leaves {
		assert.False(t, seen[h.Index()], "a node must not be emitted twice within one batchlet")
		seen[h.Index()] = true
	}
}

func TestSelectorResetClearsAccumulatedLeaves(t *testing.T) {
	store, sel, rootIdx := newTestSelector()
	root := newHandle(store, rootIdx, AnnotatorFunc(func(Handle) {}))

	sel.SelectNewLeafBatchlet(root, 1, 1.0, SelectorA)
	sel.Reset()

	sel.mu.Lock()
	n := len(sel.leaves)
	sel.mu.Unlock()
	assert.Zero(t, n)
}
