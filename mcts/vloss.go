package mcts

import "sync/atomic"

// reserveInFlight adds k to NInFlight[s] on n, returning the prior value.
// A prior value of 0 means this batchlet is the first descent to claim n
// for selector s (spec.md §4.3 / §4.5.2).
func reserveInFlight(n *NodeRecord, s SelectorID, k int32) (prior int32) {
	return atomic.AddInt32(&n.NInFlight[s], k) - k
}

// backupDecrementInFlight releases k reservations made earlier by selector
// s on n. Used to unwind an aborted descent (spec.md §4.3, §4.5.3 "abandon").
func backupDecrementInFlight(n *NodeRecord, s SelectorID, k int32) {
	v := atomic.AddInt32(&n.NInFlight[s], -k)
	if v < 0 {
		panic(InvariantViolation{
			Rule: "I3",
			Msg:  "NInFlight underflow on BackupDecrementInFlight",
		})
	}
}

// inFlight reads NInFlight[s] for n, atomically.
func inFlight(n *NodeRecord, s SelectorID) int32 {
	return atomic.LoadInt32(&n.NInFlight[s])
}

// reserveOnNode reserves k visits for selector s on the single node at idx
// and returns the prior NInFlight[s] value. It touches no ancestor: the
// per-ancestor reservation of spec.md §4.3 is made by gather, which calls
// reserveInFlight on every node its descent passes through.
func reserveOnNode(store *nodeStore, idx NodeIndex, s SelectorID, k int32) int32 {
	n := store.get(idx)
	return reserveInFlight(n, s, k)
}

func releaseOnNode(store *nodeStore, idx NodeIndex, s SelectorID, k int32) {
	n := store.get(idx)
	backupDecrementInFlight(n, s, k)
}

// releaseChainUpward walks from `from` up to (and including) `root`,
// releasing k reservations at each node. Used by the shared-subtree abandon
// path (spec.md §4.5.3) and by any descent that must unwind.
func releaseChainUpward(store *nodeStore, from, root NodeIndex, s SelectorID, k int32) {
	cur := from
	for {
		releaseOnNode(store, cur, s, k)
		if cur == root {
			return
		}
		n := store.get(cur)
		if !n.ParentIndex.IsValid() {
			return
		}
		cur = n.ParentIndex
	}
}
