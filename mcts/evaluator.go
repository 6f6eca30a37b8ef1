package mcts

import "sync/atomic"

// evaluatorKind tags which Evaluator variant is active. Design Notes §9:
// "model as a tagged sum of evaluator implementations selected per node,
// not a class tree."
type evaluatorKind uint8

const (
	kindFreshEvaluate evaluatorKind = iota
	kindReuseOtherTree
)

// CompatibilityCheck is the external predicate named in spec.md §6: "a
// boolean predicate over two iterator contexts (used by the optional
// 'reuse other tree' leaf evaluator)."
type CompatibilityCheck func(a, b IteratorContext) bool

// IteratorContext is an opaque external descriptor of a tree-walk context
// (network definition, action space, etc.) that CompatibilityCheck compares.
type IteratorContext interface{}

// Evaluator is the tagged sum of leaf-evaluation strategies. It replaces
// the source hierarchy's class tree (Design Notes §9) with one struct
// carrying a kind tag plus only the fields the active kind needs.
type Evaluator struct {
	kind evaluatorKind

	compatible CompatibilityCheck
	ours       IteratorContext
	other      IteratorContext

	hits   int64
	misses int64
	lastErr error
}

// NewFreshEvaluator returns the default variant: every leaf is evaluated by
// the primary network, no reuse attempted.
func NewFreshEvaluator() *Evaluator {
	return &Evaluator{kind: kindFreshEvaluate}
}

// NewReuseOtherTreeEvaluator returns the variant that first attempts to
// reuse statistics from another, compatible search tree before falling
// back to fresh evaluation.
func NewReuseOtherTreeEvaluator(compatible CompatibilityCheck, ours, other IteratorContext) *Evaluator {
	return &Evaluator{
		kind:       kindReuseOtherTree,
		compatible: compatible,
		ours:       ours,
		other:      other,
	}
}

// TryEvaluate attempts to supply (policy, value) for a leaf without
// invoking the primary network, returning ok=false when it cannot (in
// which case the caller must fall back to a fresh Inferencer call).
//
// Global mutable hit/miss counters (Design Notes §9) are replaced here by
// per-instance atomics; aggregation across instances is the caller's job.
func (e *Evaluator) TryEvaluate(h Handle) (ok bool) {
	if e.kind != kindReuseOtherTree {
		return false
	}
	if e.compatible == nil || !e.compatible(e.ours, e.other) {
		atomic.AddInt64(&e.misses, 1)
		e.lastErr = ErrIncompatibleReuse
		return false
	}
	atomic.AddInt64(&e.hits, 1)
	e.lastErr = nil
	return true
}

// Reset clears per-instance counters and any cached compatibility verdict,
// for reuse across searches.
func (e *Evaluator) Reset() {
	atomic.StoreInt64(&e.hits, 0)
	atomic.StoreInt64(&e.misses, 0)
	e.lastErr = nil
}

// Hits returns the number of successful reuse evaluations this instance has
// performed.
func (e *Evaluator) Hits() int64 { return atomic.LoadInt64(&e.hits) }

// Misses returns the number of times reuse was attempted but declined
// (incompatible network definition).
func (e *Evaluator) Misses() int64 { return atomic.LoadInt64(&e.misses) }

// Err returns the reason the most recent TryEvaluate call declined, or nil.
func (e *Evaluator) Err() error { return e.lastErr }
