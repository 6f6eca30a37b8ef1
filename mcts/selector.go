package mcts

import (
	"runtime"
	"sync"
)

// ActionType tags what an emitted leaf is waiting for. The only value the
// core ever sets is MctsApply: "this leaf's reservation is live, an
// external evaluation still needs to be applied" (spec.md §4.5.2, §6
// "Apply").
type ActionType uint8

const (
	ActionNone ActionType = iota
	ActionMctsApply
)

// Hasher computes the ZobristHash a newly materialized child would carry,
// given its parent and the child slot being expanded. Move generation and
// position hashing are spec.md Non-goals; this is the narrow external seam
// the core needs to populate NodeRecord.ZobristHash (required for
// transposition lookups) without knowing anything about the game itself.
type Hasher func(parent Handle, slot ChildSlot) uint64

// Selector is the parallel leaf selector: component C5, the orchestrator.
type Selector struct {
	store  *nodeStore
	ann    Annotator
	scorer Scorer
	roots  TranspositionRoots
	hasher Hasher
	pool   WorkerPool
	ownPool bool
	cfg    Config

	mu     sync.Mutex
	leaves []Handle
}

// NewSelector wires the core against its external collaborators (spec.md
// §6): an Annotator, a PUCT Scorer, an optional TranspositionRoots map, an
// optional Hasher, and an optional WorkerPool (the internal default pool is
// used when pool is nil, per the "thread-pool abstraction" Design Note).
func NewSelector(store *nodeStore, ann Annotator, scorer Scorer, roots TranspositionRoots, hasher Hasher, pool WorkerPool, cfg Config) *Selector {
	ownPool := false
	if pool == nil {
		n := cfg.NumWorkers
		if n <= 0 {
			n = runtime.NumCPU()
		}
		pool = newDefaultPool(n)
		ownPool = true
	}
	return &Selector{
		store:   store,
		ann:     ann,
		scorer:  scorer,
		roots:   roots,
		hasher:  hasher,
		pool:    pool,
		ownPool: ownPool,
		cfg:     cfg,
	}
}

// SelectNewLeafBatchlet is the public contract of spec.md §4.5: descend
// from root collecting leaves whose combined reservation equals target,
// under exclusive ownership of selector id `s` for the call's duration.
func (sel *Selector) SelectNewLeafBatchlet(root Handle, target int32, vLossBoost float32, s SelectorID) []Handle {
	if target <= 0 {
		return nil
	}

	sel.mu.Lock()
	sel.leaves = sel.leaves[:0]
	sel.mu.Unlock()

	latch := newCountdownLatch()
	sel.gather(root, root.idx, target, vLossBoost, s, 0, latch, false)
	latch.release()
	if sel.pool.SupportsWaitDone() {
		sel.pool.WaitDone()
	} else {
		latch.wait()
	}

	sel.mu.Lock()
	out := make([]Handle, len(sel.leaves))
	copy(out, sel.leaves)
	sel.mu.Unlock()
	return out
}

// Reset clears the internal leaf accumulator (spec.md §6).
func (sel *Selector) Reset() {
	sel.mu.Lock()
	sel.leaves = sel.leaves[:0]
	sel.mu.Unlock()
}

// Shutdown returns thread-pool resources (spec.md §6). A caller-supplied
// pool is also shut down; the selector does not own it but is asked to
// relay the call, matching the teacher's Agent.Close() relay style.
func (sel *Selector) Shutdown() {
	sel.pool.Shutdown()
}

// gather is the recursive descent of spec.md §4.5. `batchletRoot` is the
// node this batchlet started from (needed to bound release-chain unwinds
// on abandon); `tracked` is true once execution is running inside a
// dispatched worker's subtree, gating whether leaf/abandon resolutions
// touch the countdown latch (only dispatched work is tracked by it).
func (sel *Selector) gather(node Handle, batchletRoot NodeIndex, k int32, vLossBoost float32, s SelectorID, depth int, latch *countdownLatch, tracked bool) {
	if k <= 0 {
		return
	}
	n := node.record()

	// Step 1: lazy transposition materialization (spec.md §4.5.1).
	if n.NumNodesTranspositionExtracted > 0 {
		materializeDeferred(sel.store, n, node.idx)
	}

	// Step 2: base cases.
	if n.N == 0 || n.Terminal != Unknown || isTranspositionLinked(n) {
		sel.visitLeaf(node, k, s, tracked, latch)
		return
	}

	// Step 3: shared-subtree arbitration.
	if sel.cfg.TranspositionMode == TranspositionSharedSubtree && sel.roots != nil {
		outcome, mIdx := arbitrateSharedSubtree(sel.store, sel.roots, n, node.idx)
		switch outcome {
		case tOutcomeBorrowAsLeaf:
			sel.visitLeaf(node, k, s, tracked, latch)
			return
		case tOutcomeAbandon:
			if n.ParentIndex.IsValid() {
				releaseChainUpward(sel.store, n.ParentIndex, batchletRoot, s, k)
			}
			if tracked {
				latch.done(k)
			}
			return
		case tOutcomeMasterSwap:
			m := sel.store.get(mIdx)
			masterSwap(sel.store, n, node.idx, m, mIdx)
			node = newHandle(sel.store, mIdx, sel.ann)
			n = m
		}
	}

	// Every node the descent continues through reserves the full k routed
	// through it (spec.md §4.3: reservation happens incrementally on every
	// ancestor up to the root, not just on the eventual leaf). visitLeaf
	// above already reserves on leaves; this covers the internal nodes, so
	// backup's leaf-to-root walk finds a non-zero NInFlight[s] at every
	// level and releaseChainUpward has something to unwind on abandon.
	reserveInFlight(n, s, k)

	// Step 4: ensure annotated, compute K.
	node.EnsureAnnotated()

	// Step 5: distribute visits across children.
	counts := DistributeVisits(node, k, sel.scorer, s, depth, vLossBoost, sel.cfg.CPUCTMultiplier)

	newVisited := n.NumChildrenVisited
	if int32(len(counts)) > newVisited {
		newVisited = int32(len(counts))
	}
	n.NumChildrenVisited = newVisited

	var distributed int32
	for _, c := range counts {
		distributed += c
	}
	assertf(sel.cfg.Debug, distributed == k, "P4", "DistributeVisits returned %d, want %d", distributed, k)

	// Step 6: walk children in ascending index order (spec.md §5 ordering
	// guarantee: deterministic tie-breaking within a single descent).
	for i, c := range counts {
		if c == 0 {
			continue
		}
		child := sel.expandIfNeeded(node, i)

		dispatch := sel.cfg.SelectParallelEnabled && c >= int32(sel.cfg.SelectParallelThreshold)
		if dispatch {
			// Inside a tracked subtree these c leaves are already counted
			// by the dispatch that started it.
			if !tracked {
				latch.add(c)
			}
			childCopy, cCopy := child, c
			sel.pool.Queue(func() {
				sel.gather(childCopy, batchletRoot, cCopy, vLossBoost, s, depth+1, latch, true)
			})
		} else {
			sel.gather(child, batchletRoot, c, vLossBoost, s, depth+1, latch, tracked)
		}
	}
}

// visitLeaf implements spec.md §4.5.2.
func (sel *Selector) visitLeaf(node Handle, k int32, s SelectorID, tracked bool, latch *countdownLatch) {
	n := node.record()
	prior := reserveInFlight(n, s, k)
	if prior == 0 {
		node.EnsureAnnotated()
		n.ActionType = ActionMctsApply
		sel.appendLeaf(node)
	}
	if tracked {
		latch.done(k)
	}
}

func (sel *Selector) appendLeaf(h Handle) {
	sel.mu.Lock()
	sel.leaves = append(sel.leaves, h)
	sel.mu.Unlock()
}

// expandIfNeeded materializes child slot i of node if it is not already
// expanded, serialized per parent via Handle.WithExpansionLock (spec.md
// §5). Under TranspositionSingleNodeDeferredCopy mode, a freshly created
// child whose position hash already has a registered transposition root is
// linked lazily instead of being treated as an ordinary new node.
func (sel *Selector) expandIfNeeded(node Handle, slotIndex int) Handle {
	var child Handle
	node.WithExpansionLock(func() {
		slots := node.ChildSlots()
		slot := &slots[slotIndex]
		if slot.isExpanded() {
			child = newHandle(sel.store, slot.Child, sel.ann)
			return
		}

		var zobrist uint64
		if sel.hasher != nil {
			zobrist = sel.hasher(node, *slot)
		}
		child = node.CreateChild(slotIndex, zobrist)

		if sel.cfg.TranspositionMode == TranspositionSingleNodeDeferredCopy && sel.roots != nil {
			if rootIdx, ok := sel.roots.Lookup(zobrist); ok && rootIdx != child.idx {
				cn := child.record()
				cn.TranspositionRootIndex = rootIdx
				cn.NumNodesTranspositionExtracted = 1
			}
		}
	})
	return child
}

func isTranspositionLinked(n *NodeRecord) bool {
	return n.NumNodesTranspositionExtracted > 0 && n.NumPolicyMoves == 0
}
