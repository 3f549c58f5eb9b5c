package analysis

import "fmt"

type Grade int

const (
	GradeUnknown Grade = iota
	GradeExcellent
	GradeGood
	GradeInaccuracy
	GradeMistake
	GradeBlunder
)

var gradeNames = map[Grade]string{
	GradeUnknown:    "unknown",
	GradeExcellent:  "excellent",
	GradeGood:       "good",
	GradeInaccuracy: "inaccuracy",
	GradeMistake:    "mistake",
	GradeBlunder:    "blunder",
}

func (g Grade) String() string {
	if name, ok := gradeNames[g]; ok {
		return name
	}
	return fmt.Sprintf("grade(%d)", int(g))
}

func (g Grade) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

func (g *Grade) UnmarshalText(data []byte) error {
	s := string(data)
	for grade, name := range gradeNames {
		if name == s {
			*g = grade
			return nil
		}
	}
	return fmt.Errorf("unknown grade %q", s)
}

// Basis says how a classification was reached.
type Basis string

const (
	BasisRanked     Basis = "ranked"
	BasisReanalyzed Basis = "reanalyzed"
	// BasisBelowTopK marks a move outside the candidate list that was not
	// searched; its grade is GradeUnknown.
	BasisBelowTopK Basis = "below_top_k"
)

type MoveQuality struct {
	Position Position `json:"position"`
	Move     string   `json:"move"`
	BestMove string   `json:"best_move"`
	Grade    Grade    `json:"grade"`
	// Loss is in centipawns from the mover's side, never negative.
	Loss      int         `json:"loss"`
	Basis     Basis       `json:"basis"`
	Rank      int         `json:"rank,omitempty"`
	Played    *Evaluation `json:"played_evaluation,omitempty"`
	Best      Evaluation  `json:"best_evaluation"`
	MateShift bool        `json:"mate_rule,omitempty"`
}

// Known is false for the below-top-K soft outcome.
func (q MoveQuality) Known() bool {
	return q.Grade != GradeUnknown
}
