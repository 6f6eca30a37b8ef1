package mcts

// NodeIndex addresses a NodeRecord inside a nodeStore's arena. Handles and
// child slots carry indices rather than pointers, so no pointer cycle is
// ever formed; the arena's index slice may grow (and be reallocated) on any
// allocation.
type NodeIndex int32

// NilIndex is the sentinel used for "no node" (e.g. a root's ParentIndex).
const NilIndex NodeIndex = -1

// IsValid reports whether idx addresses a real node.
func (idx NodeIndex) IsValid() bool { return idx >= 0 }

// SelectorID identifies one of the (at most two) concurrent batchlet
// descents sharing a tree. See spec.md §4.3 and §5.
type SelectorID uint8

const (
	SelectorA SelectorID = 0
	SelectorB SelectorID = 1

	numSelectors = 2
)

func (s SelectorID) String() string {
	switch s {
	case SelectorA:
		return "A"
	case SelectorB:
		return "B"
	default:
		return "UNKNOWN SELECTOR"
	}
}
