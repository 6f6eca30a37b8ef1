package mcts

import (
	"fmt"
	"log"

	"github.com/pkg/errors"
)

// InvariantViolation reports a broken accounting invariant (spec.md §3
// I1-I6, §8 P1-P7). Checks made through assertf panic with it when
// Config.Debug is set and only log it otherwise, after which the batchlet
// continues. The I3 underflow check in backupDecrementInFlight panics with
// it in every build.
type InvariantViolation struct {
	Rule string // e.g. "I3", "P2"
	Msg  string
}

func (e InvariantViolation) Error() string {
	return fmt.Sprintf("mcts: invariant %s violated: %s", e.Rule, e.Msg)
}

// ErrIncompatibleReuse is raised by the reuse-other-tree evaluator (see
// mcts/evaluator.go) the first time it probes a tree built against an
// incompatible network definition.
var ErrIncompatibleReuse = errors.New("mcts: incompatible reuse-other-tree evaluator")

// assertf panics with an InvariantViolation when debug is true and cond is
// false. Mirrors the teacher's own "Cannot return nil" panic-as-assertion
// style in mcts/node.go, generalized to a named rule. Release builds
// (debug false) never swallow the violation silently (spec.md §7): they log
// it and keep running rather than abort the batchlet.
func assertf(debug bool, cond bool, rule, format string, args ...interface{}) {
	if cond {
		return
	}
	v := InvariantViolation{Rule: rule, Msg: fmt.Sprintf(format, args...)}
	if !debug {
		log.Printf("mcts: %v", v)
		return
	}
	panic(v)
}
