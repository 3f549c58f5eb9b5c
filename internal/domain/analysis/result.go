package analysis

import (
	"encoding/json"
	"time"
)

type CandidateMove struct {
	Move       string     `json:"move"`
	UCI        string     `json:"uci"`
	Rank       int        `json:"rank"`
	Evaluation Evaluation `json:"evaluation"`
	PV         []string   `json:"pv,omitempty"`
}

type AnalysisResult struct {
	Position   Position        `json:"position"`
	Evaluation Evaluation      `json:"evaluation"`
	Candidates []CandidateMove `json:"candidates"`
	BestMove   *string         `json:"best_move"`
	Depth      int             `json:"depth"`
	Terminal   Terminal        `json:"terminal,omitempty"`
}

// Candidate looks a move up by SAN.
func (r AnalysisResult) Candidate(san string) (CandidateMove, bool) {
	for _, c := range r.Candidates {
		if c.Move == san {
			return c, true
		}
	}
	return CandidateMove{}, false
}

// PVStep is one ply. Evaluation is the assessment of the position before
// the move was played, i.e. the one that selected it.
type PVStep struct {
	Ply        int        `json:"ply"`
	Move       string     `json:"move"`
	UCI        string     `json:"uci"`
	Mover      Color      `json:"mover"`
	Position   Position   `json:"position"`
	Evaluation Evaluation `json:"evaluation"`
	Terminal   Terminal   `json:"terminal,omitempty"`
}

type StopReason string

const (
	StopMaxPlies      StopReason = "max_plies"
	StopTerminal      StopReason = "terminal"
	StopNoLegalMoves  StopReason = "no_legal_moves"
	StopForcedMate    StopReason = "forced_mate"
	StopDecisive      StopReason = "decisive"
	StopEngineFailure StopReason = "engine_failure"
	StopCancelled     StopReason = "cancelled"
)

type PrincipalVariation struct {
	Start      Position      `json:"start"`
	Depth      int           `json:"depth"`
	TimeBudget time.Duration `json:"-"`
	MaxPlies   int           `json:"max_plies"`
	Steps      []PVStep      `json:"steps"`
	StopReason StopReason    `json:"stop_reason"`
	// Failure holds the error text when the walk was cut short.
	Failure string `json:"failure,omitempty"`
}

type pvAlias PrincipalVariation

type principalVariationJSON struct {
	pvAlias
	TimeBudgetMs int64 `json:"time_budget_ms"`
}

// MarshalJSON writes the time budget in milliseconds, the unit requests use.
func (pv PrincipalVariation) MarshalJSON() ([]byte, error) {
	return json.Marshal(principalVariationJSON{pvAlias: pvAlias(pv), TimeBudgetMs: pv.TimeBudget.Milliseconds()})
}

func (pv *PrincipalVariation) UnmarshalJSON(data []byte) error {
	var raw principalVariationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*pv = PrincipalVariation(raw.pvAlias)
	pv.TimeBudget = time.Duration(raw.TimeBudgetMs) * time.Millisecond
	return nil
}

// Partial reports whether the walk ended on a failure.
func (pv PrincipalVariation) Partial() bool {
	return pv.StopReason == StopEngineFailure || pv.StopReason == StopCancelled
}

// Moves lists the SAN moves of the line.
func (pv PrincipalVariation) Moves() []string {
	moves := make([]string, 0, len(pv.Steps))
	for _, s := range pv.Steps {
		moves = append(moves, s.Move)
	}
	return moves
}

// GameReview grades every move of a game from its start position.
type GameReview struct {
	Start Position      `json:"start"`
	Final Position      `json:"final"`
	Moves []MoveQuality `json:"moves"`
}

// Summary counts moves per grade for each side.
func (g GameReview) Summary() map[Color]map[Grade]int {
	summary := map[Color]map[Grade]int{White: {}, Black: {}}
	for _, m := range g.Moves {
		summary[m.Position.SideToMove][m.Grade]++
	}
	return summary
}

// Exploration is the analysis of the position after each explored move.
type Exploration struct {
	Move     string         `json:"move"`
	UCI      string         `json:"uci"`
	Analysis AnalysisResult `json:"analysis"`
}

// VariationStep is one move of an analysed variation with the evaluation
// of the position it leads to.
type VariationStep struct {
	Ply        int        `json:"ply"`
	Move       string     `json:"move"`
	UCI        string     `json:"uci"`
	Mover      Color      `json:"mover"`
	Position   Position   `json:"position"`
	Evaluation Evaluation `json:"evaluation"`
	// Change is the White-positive score swing caused by the move.
	Change   int      `json:"change"`
	BestMove *string  `json:"best_move"`
	Terminal Terminal `json:"terminal,omitempty"`
}

type Variation struct {
	Moves []string `json:"moves"`
	// Truncated is set when moves past the analysed length were dropped.
	Truncated bool            `json:"truncated,omitempty"`
	Steps     []VariationStep `json:"steps"`
	Final     Evaluation      `json:"final_evaluation"`
}

// VariationReport compares move sequences played from one start position.
type VariationReport struct {
	Start      AnalysisResult `json:"start"`
	Variations []Variation    `json:"variations"`
}
