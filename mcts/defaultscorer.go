package mcts

import "github.com/chewxy/math32"

// defaultScorer implements Scorer using the same PUCT formula as the
// teacher's Node.Select (mcts/node.go in the original single-playout
// engine), generalized with a virtual-loss penalty so concurrent descents
// diverge (spec.md §4.4, Glossary "NInFlight / virtual loss").
//
//	U(s,a) = Q(s,a) + cpuct * P(s,a) * sqrt(parentVisits) / (1 + N(s,a) + NInFlight(s,a))
//	         - vLossBoost * NInFlight(s,a) / (1 + N(s,a) + NInFlight(s,a))
//
// cpuct is the cpuctMultiplier argument, parentVisits is the sum of N over
// the expanded children in the window, and NInFlight counts only the given
// selector's reservations.
//
// The core treats the formula itself as swappable (spec.md §1): callers may
// supply any Scorer. This is the one wired by mcts.New by default.
type defaultScorer struct{}

// NewDefaultScorer returns the teacher-grounded PUCT scorer.
func NewDefaultScorer() Scorer { return defaultScorer{} }

func (defaultScorer) Score(node Handle, selector SelectorID, depth int, vLossBoost float32, cr ChildRange, cpuctMultiplier float32) []float32 {
	slots := node.ChildSlots()
	hi := cr.Hi
	if hi > len(slots) {
		hi = len(slots)
	}

	var parentVisits float32
	store := node.store
	for i := cr.Lo; i < hi; i++ {
		if slots[i].isExpanded() {
			parentVisits += float32(store.get(slots[i].Child).N)
		}
	}
	numerator := math32.Sqrt(parentVisits)

	out := make([]float32, hi-cr.Lo)
	for i := cr.Lo; i < hi; i++ {
		s := &slots[i]
		var q, n, inFlight float32
		if s.isExpanded() {
			child := store.get(s.Child)
			n = float32(child.N)
			inFlight = float32(inFlight32(child, selector))
			if n > 0 {
				q = child.W / n
			}
		}
		puct := cpuctMultiplier * s.Prior * numerator / (1 + n + inFlight)
		loss := vLossBoost * inFlight / (1 + n + inFlight)
		out[i-cr.Lo] = q + puct - loss
	}
	return out
}

func inFlight32(n *NodeRecord, s SelectorID) int32 { return inFlight(n, s) }
