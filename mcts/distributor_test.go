package mcts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupNodeWithChildren(t *testing.T, priors []float32, visits []int32) (*nodeStore, Handle) {
	t.Helper()
	store := newNodeStore(8)
	rootIdx := store.allocNode(NilIndex, 1)
	h := newHandle(store, rootIdx, AnnotatorFunc(func(Handle) {}))
	n := h.record()

	slots := make([]ChildSlot, len(priors))
	for i, p := range priors {
		slots[i] = ChildSlot{Move: int32(i), Prior: p, Child: NilIndex}
	}
	store.setChildSlots(n, slots)

	for i, v := range visits {
		if v < 0 {
			continue // leave unexpanded
		}
		child := h.CreateChild(i, uint64(i+1))
		cn := child.record()
		cn.N = v
		cn.W = float32(v) * 0.5
	}
	n.NumChildrenVisited = int32(len(visits))
	return store, h
}

func TestDistributeVisitsSumsToTarget(t *testing.T) {
	_, h := setupNodeWithChildren(t, []float32{0.5, 0.3, 0.2}, []int32{10, 5, 0})

	counts := DistributeVisits(h, 7, NewDefaultScorer(), SelectorA, 0, 1.0, 1.0)

	var sum int32
	for _, c := range counts {
		sum += c
	}
	assert.EqualValues(t, 7, sum)
}

func TestDistributeVisitsSingleChildShortcut(t *testing.T) {
	_, h := setupNodeWithChildren(t, []float32{1.0}, []int32{0})

	counts := DistributeVisits(h, 5, NewDefaultScorer(), SelectorA, 0, 1.0, 1.0)

	require.Len(t, counts, 1)
	assert.EqualValues(t, 5, counts[0])
}

func TestDistributeVisitsZeroTargetReturnsZeroed(t *testing.T) {
	_, h := setupNodeWithChildren(t, []float32{0.5, 0.5}, []int32{1, 1})

	counts := DistributeVisits(h, 0, NewDefaultScorer(), SelectorA, 0, 1.0, 1.0)

	for _, c := range counts {
		assert.Zero(t, c)
	}
}

func TestDistributeVisitsPrefersHigherPriorWhenUnvisited(t *testing.T) {
	_, h := setupNodeWithChildren(t, []float32{0.9, 0.1}, []int32{0, 0})

	counts := DistributeVisits(h, 1, NewDefaultScorer(), SelectorA, 0, 1.0, 1.0)

	assert.EqualValues(t, 1, counts[0])
	assert.EqualValues(t, 0, counts[1])
}
