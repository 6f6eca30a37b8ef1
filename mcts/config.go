package mcts

// TranspositionMode selects which of spec.md §4.5.1/§4.5.3's behaviors the
// selector applies to a transposition-linked node.
type TranspositionMode uint8

const (
	TranspositionNone TranspositionMode = iota
	TranspositionSingleNodeDeferredCopy
	TranspositionSharedSubtree
)

func (m TranspositionMode) String() string {
	switch m {
	case TranspositionNone:
		return "None"
	case TranspositionSingleNodeDeferredCopy:
		return "SingleNodeDeferredCopy"
	case TranspositionSharedSubtree:
		return "SharedSubtree"
	}
	return "UNKNOWN TRANSPOSITION MODE"
}

// Config holds every selector-visible knob, spanning both the teacher's
// original MCTS tuning (PUCT, RandomCount, ...) and the parallel leaf
// selector options enumerated in spec.md §6.
type Config struct {
	// PUCT is the teacher's exploration constant, checked by IsValid and
	// saved with the config. The selector does not read it: the scorer
	// receives CPUCTMultiplier.
	PUCT float32

	RandomCount       int // if MoveNumber < this, randomize the root pick
	RandomTemperature float32
	MaxDepth          int
	NumSimulation     int

	// Transposition handling, spec.md §4.5 / §6.
	TranspositionMode TranspositionMode

	// Worker dispatch, spec.md §5 / §6.
	SelectParallelEnabled   bool
	SelectParallelThreshold int
	NumWorkers              int // 0 means runtime.NumCPU()

	// Leaf-list reservation sizing, spec.md §6.
	RootPreloadDepth        int
	MaxPreloadNodesPerBatch int
	PaddedBatchSizing       bool
	PaddedExtraNodesBase    int
	PaddedExtraNodesMultiplier float32

	// CPUCTMultiplier is passed through to the PUCT scorer unmodified
	// (spec.md §6, "from uncertainty feature flag"); the core neither
	// interprets nor derives it.
	CPUCTMultiplier float32

	// Debug gates invariant assertions (spec.md §7): panic instead of log.
	Debug bool
}

// DefaultConfig mirrors the teacher's own DefaultConfig shape while filling
// in spec.md's new knobs with conservative defaults.
func DefaultConfig() Config {
	return Config{
		PUCT:                    1.0,
		RandomTemperature:       1.0,
		NumSimulation:           1,
		TranspositionMode:       TranspositionNone,
		SelectParallelEnabled:   false,
		SelectParallelThreshold: 4,
		RootPreloadDepth:        1,
		MaxPreloadNodesPerBatch: 0,
		CPUCTMultiplier:         1.0,
	}
}

// IsValid mirrors the teacher's validation style (mcts.Config.IsValid).
func (c Config) IsValid() bool {
	return c.RandomTemperature > 0 && c.NumSimulation > 0 && c.PUCT >= 0
}
