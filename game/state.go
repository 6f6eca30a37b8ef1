package game

import "github.com/notnil/chess"

// Move encodes chess move with UCI notation.
type Move string

// ResignMove is the sentinel move MCTS.Search returns in place of a real move
// when the search root has no expanded children. Resign is an alias kept for
// the teacher's older naming; no code in this repository refers to it.
const ResignMove Move = "resign"

const Resign = ResignMove

// Board dimensions, used to size the neural-network input planes
// (dualnet.DefaultConf) and the encoder in encoding.go.
const (
	RowNum = 8
	ColNum = 8
)

// State is any game that implements these and is able to report back.
type State interface {
	// These methods represent the game state
	ActionSpace() int                   // returns the number of permissible actions
	Hash() uint64                       // returns the ZobristHash-style fingerprint of the board
	Board() *chess.Board                // returns the current board layout
	Turn() chess.Color                  // Turn returns the color to move next.
	MoveNumber() int                    // returns count of moves so far that led to this point.
	LastMove() int32                    // returns the last move that was made, in NN index space
	NNToMove(idx int32) (Move, error)   // returns move from neural network encoding output space.

	// Meta-game stuff
	Ended() (ended bool, winner chess.Color) // has the game ended? if yes, then who's the winner?
	Score(p chess.Color) float32             // score of the given player

	// interactions
	Check(m Move) bool  // check if the placement is legal
	Apply(m Move) State // should return a GameState. The required side effect is the NextToMove has to change.
	Reset()             // reset state

	// For MCTS
	UndoLastMove()
	Fwd()

	// generics
	Eq(other State) bool
	Clone() State
}
