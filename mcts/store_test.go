package mcts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeStoreAllocGrowsWithoutInvalidatingHandles(t *testing.T) {
	store := newNodeStore(1) // tiny capacity hint forces reallocation

	root := store.allocNode(NilIndex, 1)
	h := newHandle(store, root, AnnotatorFunc(func(Handle) {}))
	store.setChildSlots(h.record(), []ChildSlot{{Move: 0, Prior: 1, Child: NilIndex}})

	// Force many reallocations of the underlying node slice.
	for i := 0; i < 256; i++ {
		store.allocNode(root, uint64(i))
	}

	// h's record pointer must still refer to live, correct data.
	assert.Equal(t, int32(1), h.record().NumPolicyMoves)
	assert.EqualValues(t, 257, store.nodeCount())
}

func TestCreateChildSerializesUnderExpansionLock(t *testing.T) {
	store := newNodeStore(8)
	root := store.allocNode(NilIndex, 1)
	h := newHandle(store, root, AnnotatorFunc(func(Handle) {}))
	store.setChildSlots(h.record(), []ChildSlot{{Move: 0, Prior: 1, Child: NilIndex}})

	var first, second Handle
	h.WithExpansionLock(func() { first = h.CreateChild(0, 42) })
	h.WithExpansionLock(func() { second = h.CreateChild(0, 99) })

	require.Equal(t, first.Index(), second.Index(), "second CreateChild on an already-expanded slot must return the existing child")
	assert.EqualValues(t, 42, second.ZobristHash())
}

func TestModifyParentsChildRefRelinksExactlyOneSlot(t *testing.T) {
	store := newNodeStore(8)
	root := store.allocNode(NilIndex, 1)
	h := newHandle(store, root, AnnotatorFunc(func(Handle) {}))
	store.setChildSlots(h.record(), []ChildSlot{
		{Move: 0, Prior: 0.5, Child: NilIndex},
		{Move: 1, Prior: 0.5, Child: NilIndex},
	})
	a := h.CreateChild(0, 1)
	c := store.allocNode(NilIndex, 2)

	ok := store.modifyParentsChildRef(root, a.Index(), c)
	require.True(t, ok)

	slots := store.childSlots(h.record())
	assert.Equal(t, c, slots[0].Child)
	assert.Equal(t, NilIndex, slots[1].Child)
}
