package mcts

import "github.com/chewxy/math32"

// Scorer is the pluggable external PUCT scoring function named in spec.md
// §6: "the core calls it and trusts its output ordering." It accounts for
// prior P, child Q, child N, and the virtual-loss penalty implied by the
// current NInFlight, for the window of children [childRange.Lo, childRange.Hi).
type Scorer interface {
	Score(node Handle, selector SelectorID, depth int, vLossBoost float32, childRange ChildRange, cpuctMultiplier float32) []float32
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(node Handle, selector SelectorID, depth int, vLossBoost float32, childRange ChildRange, cpuctMultiplier float32) []float32

func (f ScorerFunc) Score(node Handle, selector SelectorID, depth int, vLossBoost float32, childRange ChildRange, cpuctMultiplier float32) []float32 {
	return f(node, selector, depth, vLossBoost, childRange, cpuctMultiplier)
}

// ChildRange is the half-open window of child indices under consideration.
type ChildRange struct {
	Lo, Hi int
}

// DistributeVisits implements component C4: given a target leaf count T for
// node n, it simulates T sequential PUCT picks and returns a per-child
// tally summing to T. Deterministic given identical inputs (spec.md §8 P5).
func DistributeVisits(n Handle, target int32, scorer Scorer, selector SelectorID, depth int, vLossBoost, cpuctMultiplier float32) []int32 {
	numPolicy := n.NumPolicyMoves()
	visited := n.NumChildrenVisited()

	// K = min(NumPolicyMoves, NumChildrenVisited + T): the widest prefix we
	// might need given that at most T unvisited children can be opened.
	k := visited + target
	if k > numPolicy {
		k = numPolicy
	}
	if k < 0 {
		k = 0
	}

	counts := make([]int32, k)
	if k == 0 || target == 0 {
		return counts
	}
	if k == 1 {
		counts[0] = target
		return counts
	}

	scores := scorer.Score(n, selector, depth, vLossBoost, ChildRange{0, int(k)}, cpuctMultiplier)

	// The scorer returns the virtual-loss-aware score as of *before* this
	// call's picks; we must locally re-simulate each of the T picks,
	// applying the implied visit's effect on the chosen child's score for
	// subsequent picks (spec.md §4.4 step 3). The scorer already bakes
	// current NInFlight into `scores`; after each pick the chosen child's
	// score is replaced by puctAfterExtraVisit, computed from the child's
	// prior and the number of picks this call has given it. Q, the child's
	// N and its NInFlight are not part of the replacement, so the external
	// scorer is invoked only once per call.
	slots := n.ChildSlots()
	localVisits := make([]float32, k)
	localScores := make([]float32, k)
	copy(localScores, scores)

	for i := int32(0); i < target; i++ {
		best := 0
		bestVal := math32.Inf(-1)
		for c := 0; c < int(k); c++ {
			if localScores[c] > bestVal {
				bestVal = localScores[c]
				best = c
			}
		}
		counts[best]++

		// Recompute the chosen child's score as if one more visit had
		// landed on it, so the next pick in this simulated batch diverges
		// (spec.md §4.4: "this updates the score for subsequent picks
		// through the virtual-loss it would cause").
		localVisits[best]++
		if best < len(slots) {
			prior := slots[best].Prior
			localScores[best] = puctAfterExtraVisit(prior, localVisits[best], cpuctMultiplier)
		} else {
			// Unvisited slot beyond current children: decay monotonically
			// so repeated picks still spread rather than pile on one slot
			// when the scorer gave ties.
			localScores[best] -= vLossBoost + 1
		}
	}
	return counts
}

// puctAfterExtraVisit approximates the PUCT exploration term's decay from
// adding one more simulated visit to a child; DistributeVisits uses it as
// the chosen child's new score after every pick (see comment above). It is a pure
// function of (prior, visits, cpuct) so the distributor stays deterministic.
func puctAfterExtraVisit(prior float32, visits float32, cpuct float32) float32 {
	return cpuct * prior / (1 + visits)
}
