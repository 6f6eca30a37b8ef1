package mcts

import (
	"bytes"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alphabeth/game"
	"github.com/chewxy/math32"
	"github.com/notnil/chess"
	distrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distmv"
)

const dirichletParam = 0.3

// Inferencer is the neural network: the external collaborator whose
// (policy, value) output the core's PUCT Scorer consumes but never
// computes (spec.md §1 Non-goals).
type Inferencer interface {
	Infer(state game.State) (policy []float32, value float32)
}

// MCTS is the "surrounding search" named throughout spec.md §1/§6: it owns
// the node store, the transposition table, the parallel leaf selector, and
// drives the batchlet loop to a move decision. It is intentionally a thin
// layer over the C1-C5 core; evaluation, backprop bookkeeping and move
// replay are the pieces spec.md explicitly scopes out of the core itself.
type MCTS struct {
	sync.RWMutex
	Config

	store  *nodeStore
	roots  *TranspositionTable
	sel    *Selector
	nn     Inferencer
	scorer Scorer

	// evaluator and otherTree back the optional "reuse other tree" leaf
	// evaluator (spec.md §6): when set, applyBatch tries to answer a leaf
	// from otherTree's already-visited statistics before paying for a
	// fresh Inferencer call.
	evaluator *Evaluator
	otherTree *MCTS

	rnd             *rand.Rand
	dirichletSample []float64

	root    NodeIndex
	current game.State
	prev    game.State

	actionSpace int

	// Timeout bounds a single Search() call's batchlet loop. Not part of
	// Config because it is a per-call/per-game-phase knob in the teacher's
	// own usage (mcts/search.go reads t.Timeout directly), not a tuning
	// constant that travels with MetaData.
	Timeout time.Duration

	logBuf bytes.Buffer
	logger *log.Logger
}

// New creates a new MCTS tied to game g, configured per conf, evaluating
// leaves through nn. Mirrors the teacher's mcts.New constructor shape.
func New(g game.State, conf Config, nn Inferencer) *MCTS {
	t := &MCTS{
		Config:      conf,
		store:       newNodeStore(12288),
		roots:       NewTranspositionTable(),
		nn:          nn,
		scorer:      NewDefaultScorer(),
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
		current:     g,
		actionSpace: g.ActionSpace(),
		root:        NilIndex,
		Timeout:     time.Second,
	}
	t.logger = log.New(&t.logBuf, "", log.Ltime)

	alpha := make([]float64, g.ActionSpace())
	for i := range alpha {
		alpha[i] = dirichletParam
	}
	dirichletDist := distmv.NewDirichlet(alpha, distrand.NewSource(uint64(time.Now().UnixNano())))
	t.dirichletSample = dirichletDist.Rand(nil)

	t.sel = NewSelector(t.store, AnnotatorFunc(func(Handle) {}), t.scorer, t.roots, t.hasher(), nil, conf)
	return t
}

func (t *MCTS) hasher() Hasher {
	return func(parent Handle, slot ChildSlot) uint64 {
		state := t.stateAt(parent.Index())
		mv, err := state.NNToMove(slot.Move)
		if err != nil {
			return 0
		}
		return state.Apply(mv).Hash()
	}
}

// SetReuseSource wires other as the "reuse other tree" evaluator's source
// (spec.md §6): leaves whose position was already visited in other's tree
// are answered from other's statistics instead of t.nn, provided the two
// trees share an action space (the CompatibilityCheck). Passing nil clears
// the reuse source, reverting to always-fresh evaluation.
func (t *MCTS) SetReuseSource(other *MCTS) {
	t.Lock()
	defer t.Unlock()
	if other == nil {
		t.evaluator = nil
		t.otherTree = nil
		return
	}
	t.otherTree = other
	t.evaluator = NewReuseOtherTreeEvaluator(
		func(a, b IteratorContext) bool { return a.(int) == b.(int) },
		t.actionSpace, other.actionSpace,
	)
}

// Hits returns the number of leaves answered from the reuse source so far.
func (t *MCTS) Hits() int64 {
	if t.evaluator == nil {
		return 0
	}
	return t.evaluator.Hits()
}

// Misses returns the number of leaves whose position the reuse source had
// already visited but whose reuse the compatibility check declined, so they
// fell back to t.nn. It is 0 when no reuse source is set.
func (t *MCTS) Misses() int64 {
	if t.evaluator == nil {
		return 0
	}
	return t.evaluator.Misses()
}

// tryReuse attempts to answer a leaf from the reuse-other-tree evaluator
// (spec.md §6). It succeeds only when the compatibility check passes and
// otherTree has already visited the exact same position.
func (t *MCTS) tryReuse(h Handle, state game.State) (value float32, ok bool) {
	if t.evaluator == nil || t.otherTree == nil {
		return 0, false
	}
	otherIdx, found := t.otherTree.roots.Lookup(state.Hash())
	if !found {
		return 0, false
	}
	other := t.otherTree.store.get(otherIdx)
	if other.N == 0 {
		return 0, false
	}
	if !t.evaluator.TryEvaluate(h) {
		return 0, false
	}
	t.expandPolicy(h, state, t.reusedPolicy(other))
	return other.W / float32(other.N), true
}

// reusedPolicy rebuilds an NN-index-space policy vector from another tree's
// already-expanded child priors, for expandPolicy to renormalize over t's
// own legal moves.
func (t *MCTS) reusedPolicy(other *NodeRecord) []float32 {
	policy := make([]float32, t.actionSpace)
	for _, slot := range t.otherTree.store.childSlots(other) {
		if slot.Move >= 0 && int(slot.Move) < len(policy) {
			policy[slot.Move] = slot.Prior
		}
	}
	return policy
}

// SetGame sets the game state the next Search() call plays from. The tree
// built for the previous state is discarded.
func (t *MCTS) SetGame(g game.State) {
	t.Reset()
	t.Lock()
	t.current = g
	t.Unlock()
}

func (t *MCTS) log(format string, args ...interface{}) {
	if t.Debug {
		t.logger.Printf(format, args...)
	}
}

// Log returns everything logged so far (teacher's Arena.Log relies on this).
func (t *MCTS) Log() string { return t.logBuf.String() }

func (t *MCTS) rootHandle() Handle {
	return newHandle(t.store, t.root, AnnotatorFunc(func(Handle) {}))
}

// pathMoves walks ParentIndex links from idx back to the root, returning
// the sequence of NN move indices that lead from the root to idx, in
// root-to-idx order. The core's node store never carries game state
// (spec.md Non-goals: move generation), so replaying a leaf's position for
// evaluation means walking this chain once per leaf.
func (t *MCTS) pathMoves(idx NodeIndex) []int32 {
	var moves []int32
	cur := idx
	for {
		n := t.store.get(cur)
		if !n.ParentIndex.IsValid() {
			break
		}
		parent := t.store.get(n.ParentIndex)
		for _, s := range t.store.childSlots(parent) {
			if s.Child == cur {
				moves = append(moves, s.Move)
				break
			}
		}
		cur = n.ParentIndex
	}
	for i, j := 0, len(moves)-1; i < j; i, j = i+1, j-1 {
		moves[i], moves[j] = moves[j], moves[i]
	}
	return moves
}

func (t *MCTS) stateAt(idx NodeIndex) game.State {
	s := t.current.Clone()
	for _, mIdx := range t.pathMoves(idx) {
		mv, err := s.NNToMove(mIdx)
		if err != nil {
			continue
		}
		s = s.Apply(mv)
	}
	return s
}

// updateRoot ensures the root node exists and carries an initial expansion,
// mirroring the teacher's prepareRoot/updateRoot pair.
func (t *MCTS) updateRoot() {
	if t.root.IsValid() {
		return
	}
	t.root = t.store.allocNode(NilIndex, t.current.Hash())
	t.roots.Register(t.current.Hash(), t.root)
	h := t.rootHandle()
	policy, value := t.nn.Infer(t.current)
	t.expandPolicy(h, t.current, policy)
	n := h.record()
	n.N = 1
	n.W = value
}

// expandPolicy materializes a node's child slots from a policy vector,
// renormalized over the legal moves only. Grounded on the teacher's
// expandAndSimulate (mcts/search.go).
func (t *MCTS) expandPolicy(h Handle, state game.State, policy []float32) {
	n := h.record()
	if n.NumPolicyMoves > 0 {
		return
	}

	type cand struct {
		move  int32
		score float32
	}
	var cands []cand
	var sum float32
	for i := 0; i < t.actionSpace; i++ {
		mv, err := state.NNToMove(int32(i))
		if err != nil {
			continue
		}
		if state.Check(mv) {
			cands = append(cands, cand{int32(i), policy[i]})
			sum += policy[i]
		}
	}
	if len(cands) == 0 {
		n.Terminal = Draw
		return
	}
	if sum > math32.SmallestNonzeroFloat32 {
		for i := range cands {
			cands[i].score /= sum
		}
	} else {
		p := 1 / float32(len(cands))
		for i := range cands {
			cands[i].score = p
		}
	}

	slots := make([]ChildSlot, len(cands))
	for i, c := range cands {
		slots[i] = ChildSlot{Move: c.move, Prior: c.score, Child: NilIndex}
	}
	h.WithExpansionLock(func() {
		if n.NumPolicyMoves == 0 {
			t.store.setChildSlots(n, slots)
		}
	})
}

// applyBatch is the "Apply" phase named in spec.md's Glossary: external to
// the C1-C5 core by spec, but needed to drive the complete engine. It
// evaluates every emitted leaf and backs the result up to the root,
// releasing the leaf's NInFlight reservation as it goes.
func (t *MCTS) applyBatch(leaves []Handle, s SelectorID) {
	for _, h := range leaves {
		n := h.record()
		state := t.stateAt(h.Index())

		var value float32
		switch {
		case n.hasVOverride:
			value = n.OverrideVToApplyFromTransposition
			n.hasVOverride = false
		default:
			if ended, winner := state.Ended(); ended {
				n.Terminal = terminalFromWinner(state.Turn(), winner)
				value = state.Score(oppositeColor(state.Turn()))
			} else if reused, ok := t.tryReuse(h, state); ok {
				value = reused
			} else {
				policy, v := t.nn.Infer(state)
				value = v
				t.expandPolicy(h, state, policy)
			}
		}
		t.backup(h.Index(), s, value)
	}
}

func terminalFromWinner(toMove, winner chess.Color) Terminal {
	switch {
	case winner == chess.NoColor:
		return Draw
	case winner == toMove:
		return Win
	default:
		return Loss
	}
}

func oppositeColor(c chess.Color) chess.Color {
	if c == chess.White {
		return chess.Black
	}
	return chess.White
}

// backup converts a leaf's reservation into N/W updates along its path to
// the root, flipping perspective each ply (standard negamax backup,
// grounded on the teacher's pipeline: "n.Update(retVal); return -retVal").
func (t *MCTS) backup(idx NodeIndex, s SelectorID, value float32) {
	cur := idx
	for {
		n := t.store.get(cur)
		k := atomic.SwapInt32(&n.NInFlight[s], 0)
		if k > 0 {
			atomic.AddInt32(&n.N, k)
			n.W += value * float32(k)
		}
		value = -value
		if !n.ParentIndex.IsValid() {
			return
		}
		cur = n.ParentIndex
	}
}

// Search runs batchlets until Timeout elapses, then returns the selected
// move. Mirrors the teacher's MCTS.Search entry point.
func (t *MCTS) Search() (game.Move, error) {
	t.updateRoot()

	batch := t.NumSimulation
	if batch <= 0 {
		batch = 1
	}
	deadline := time.Now().Add(t.Timeout)
	for time.Now().Before(deadline) {
		leaves := t.sel.SelectNewLeafBatchlet(t.rootHandle(), int32(batch), 1.0, SelectorA)
		if len(leaves) == 0 {
			break
		}
		t.applyBatch(leaves, SelectorA)
	}

	move, err := t.bestMove()
	if err == nil {
		t.prev = t.current.Clone()
	}
	return move, err
}

// bestMove picks the root child with the most visits (or, before
// RandomCount moves have been played, samples proportional to
// visits^(1/RandomTemperature)), mirroring the teacher's bestMove/
// sampleChild pair.
func (t *MCTS) bestMove() (game.Move, error) {
	root := t.rootHandle()
	slots := root.ChildSlots()

	type cand struct {
		move   int32
		visits int32
	}
	var cands []cand
	for _, s := range slots {
		if !s.isExpanded() {
			continue
		}
		cands = append(cands, cand{s.Move, t.store.get(s.Child).N})
	}
	if len(cands) == 0 {
		return game.ResignMove, nil
	}

	var chosen int32
	if t.current.MoveNumber() < t.RandomCount {
		chosen = t.sampleByVisits(cands)
	} else {
		sort.Slice(cands, func(i, j int) bool { return cands[i].visits > cands[j].visits })
		chosen = cands[0].move
	}
	return t.current.NNToMove(chosen)
}

func (t *MCTS) sampleByVisits(cands []struct {
	move   int32
	visits int32
}) int32 {
	var denom float32
	for _, c := range cands {
		denom += math32.Pow(float32(c.visits), 1/t.RandomTemperature)
	}
	if denom == 0 {
		return cands[0].move
	}
	r := t.rnd.Float32()
	var accum float32
	for _, c := range cands {
		accum += math32.Pow(float32(c.visits), 1/t.RandomTemperature) / denom
		if r < accum {
			return c.move
		}
	}
	return cands[len(cands)-1].move
}

// Policies returns the improved policy vector (visit-count distribution)
// over the full action space for the given state's root, used to build
// training examples (Arena.Play).
func (t *MCTS) Policies(g game.State) []float32 {
	out := make([]float32, t.actionSpace)
	root := t.rootHandle()
	var total int32
	for _, s := range root.ChildSlots() {
		if s.isExpanded() {
			total += t.store.get(s.Child).N
		}
	}
	if total == 0 {
		return out
	}
	for _, s := range root.ChildSlots() {
		if s.isExpanded() {
			out[s.Move] = float32(t.store.get(s.Child).N) / float32(total)
		}
	}
	return out
}

// Nodes returns the number of live node records.
func (t *MCTS) Nodes() int { return int(t.store.nodeCount()) }

// Reset clears the arena, transposition table, and leaf accumulator
// between searches/games (spec.md §6 reset()).
func (t *MCTS) Reset() {
	t.Lock()
	defer t.Unlock()

	t.store.reset()
	t.roots.Clear()
	t.sel.Reset()
	t.root = NilIndex
}

// Shutdown returns thread-pool resources (spec.md §6 shutdown()).
func (t *MCTS) Shutdown() { t.sel.Shutdown() }

func (t *MCTS) String() string {
	return fmt.Sprintf("MCTS{nodes:%d root:%v}", t.Nodes(), t.root)
}
