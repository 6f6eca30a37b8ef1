package mcts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaterializeDeferredCopiesUnexpandedSlotsOnly(t *testing.T) {
	store := newNodeStore(8)
	rootIdx := store.allocNode(NilIndex, 1)
	root := store.get(rootIdx)
	store.setChildSlots(root, []ChildSlot{{Move: 0, Prior: 0.6, Child: NilIndex}, {Move: 1, Prior: 0.4, Child: NilIndex}})
	rootHandle := newHandle(store, rootIdx, AnnotatorFunc(func(Handle) {}))
	expandedChild := rootHandle.CreateChild(0, 5)

	linkedIdx := store.allocNode(NilIndex, 1)
	linked := store.get(linkedIdx)
	linked.TranspositionRootIndex = rootIdx
	linked.NumNodesTranspositionExtracted = 1

	materializeDeferred(store, linked, linkedIdx)

	slots := store.childSlots(linked)
	require.Len(t, slots, 2)
	for _, s := range slots {
		assert.False(t, s.isExpanded(), "materialized copy must never carry over a Child pointer")
	}
	assert.Equal(t, expandedChild.Index(), store.childSlots(root)[0].Child, "source node's own children are untouched")
}

func TestArbitrateSharedSubtreeFavorsHigherVisitCluster(t *testing.T) {
	store := newNodeStore(8)
	roots := NewTranspositionTable()

	mIdx := store.allocNode(NilIndex, 7)
	m := store.get(mIdx)
	m.N, m.W = 10, 6

	nIdx := store.allocNode(NilIndex, 7)
	n := store.get(nIdx)
	n.N, n.W = 2, 1
	roots.Register(7, mIdx)

	outcome, idx := arbitrateSharedSubtree(store, roots, n, nIdx)

	assert.Equal(t, tOutcomeBorrowAsLeaf, outcome)
	assert.Equal(t, mIdx, idx)
	assert.True(t, n.hasVOverride)
}

func TestArbitrateSharedSubtreeMasterSwapWhenTied(t *testing.T) {
	store := newNodeStore(8)
	roots := NewTranspositionTable()

	mIdx := store.allocNode(NilIndex, 7)
	m := store.get(mIdx)
	m.N = 3

	nIdx := store.allocNode(NilIndex, 7)
	n := store.get(nIdx)
	n.N = 3
	roots.Register(7, mIdx)

	outcome, idx := arbitrateSharedSubtree(store, roots, n, nIdx)

	assert.Equal(t, tOutcomeMasterSwap, outcome)
	assert.Equal(t, mIdx, idx)
}

func TestArbitrateSharedSubtreeAbandonsWhenTiedAndMasterBusy(t *testing.T) {
	store := newNodeStore(8)
	roots := NewTranspositionTable()

	mIdx := store.allocNode(NilIndex, 7)
	m := store.get(mIdx)
	m.N = 3
	reserveInFlight(m, SelectorB, 1)

	nIdx := store.allocNode(NilIndex, 7)
	n := store.get(nIdx)
	n.N = 3
	roots.Register(7, mIdx)

	outcome, _ := arbitrateSharedSubtree(store, roots, n, nIdx)

	assert.Equal(t, tOutcomeAbandon, outcome)
}

func TestMasterSwapExchangesParentRefs(t *testing.T) {
	store := newNodeStore(8)
	pA := store.allocNode(NilIndex, 100)
	pB := store.allocNode(NilIndex, 200)

	nIdx := store.allocNode(pA, 1)
	mIdx := store.allocNode(pB, 1)
	pAHandle := newHandle(store, pA, AnnotatorFunc(func(Handle) {}))
	pBHandle := newHandle(store, pB, AnnotatorFunc(func(Handle) {}))
	store.setChildSlots(pAHandle.record(), []ChildSlot{{Move: 0, Prior: 1, Child: nIdx}})
	store.setChildSlots(pBHandle.record(), []ChildSlot{{Move: 0, Prior: 1, Child: mIdx}})

	n, m := store.get(nIdx), store.get(mIdx)
	masterSwap(store, n, nIdx, m, mIdx)

	assert.Equal(t, pB, n.ParentIndex)
	assert.Equal(t, pA, m.ParentIndex)
	assert.Equal(t, mIdx, store.childSlots(pAHandle.record())[0].Child)
	assert.Equal(t, nIdx, store.childSlots(pBHandle.record())[0].Child)
}
