package mcts

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReserveInFlightAccumulatesPerSelector(t *testing.T) {
	n := &NodeRecord{}

	prior := reserveInFlight(n, SelectorA, 3)
	assert.EqualValues(t, 0, prior)
	assert.EqualValues(t, 3, inFlight(n, SelectorA))
	assert.EqualValues(t, 0, inFlight(n, SelectorB), "selectors must not share a counter")

	prior = reserveInFlight(n, SelectorA, 2)
	assert.EqualValues(t, 3, prior)
	assert.EqualValues(t, 5, inFlight(n, SelectorA))
}

func TestBackupDecrementInFlightUnwindsFully(t *testing.T) {
	n := &NodeRecord{}
	reserveInFlight(n, SelectorA, 4)
	backupDecrementInFlight(n, SelectorA, 4)
	assert.EqualValues(t, 0, inFlight(n, SelectorA))
}

func TestBackupDecrementInFlightPanicsOnUnderflow(t *testing.T) {
	n := &NodeRecord{}
	assert.Panics(t, func() { backupDecrementInFlight(n, SelectorA, 1) })
}

func TestReserveInFlightConcurrentAccumulatesExactly(t *testing.T) {
	n := &NodeRecord{}
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reserveInFlight(n, SelectorA, 1)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 100, inFlight(n, SelectorA))
}

func TestReleaseChainUpwardStopsAtRoot(t *testing.T) {
	store := newNodeStore(4)
	root := store.allocNode(NilIndex, 1)
	child := store.allocNode(root, 2)
	grandchild := store.allocNode(child, 3)

	for _, idx := range []NodeIndex{root, child, grandchild} {
		reserveOnNode(store, idx, SelectorA, 2)
	}

	releaseChainUpward(store, grandchild, root, SelectorA, 2)

	assert.EqualValues(t, 0, inFlight(store.get(root), SelectorA))
	assert.EqualValues(t, 0, inFlight(store.get(child), SelectorA))
	assert.EqualValues(t, 0, inFlight(store.get(grandchild), SelectorA))
}
