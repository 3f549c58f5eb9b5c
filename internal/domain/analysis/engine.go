package analysis

import (
	"context"
	"time"
)

// RawScore is an engine score relative to the side to move in the
// searched position.
type RawScore struct {
	Centipawns int  `json:"cp"`
	Mate       int  `json:"mate"`
	IsMate     bool `json:"is_mate"`
}

type RawLine struct {
	Rank  int      `json:"rank"`
	Depth int      `json:"depth"`
	Score RawScore `json:"score"`
	// PV is in UCI notation; PV[0] is the candidate move.
	PV []string `json:"pv"`
}

type RawResult struct {
	BestMove string    `json:"best_move"`
	Lines    []RawLine `json:"lines"`
}

// SearchBudget bounds one engine search. Zero MoveTime means depth only.
type SearchBudget struct {
	Depth    int           `json:"depth"`
	MoveTime time.Duration `json:"move_time"`
	MultiPV  int           `json:"multi_pv"`
}

// Engine searches positions. Implementations must not be shared by
// concurrent callers unless they serialise searches themselves.
type Engine interface {
	Evaluate(ctx context.Context, fen string, budget SearchBudget) (RawResult, error)
}
