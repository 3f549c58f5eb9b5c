package analysis

import (
	"encoding/json"
	"fmt"
)

type EvalKind int

const (
	KindCentipawn EvalKind = iota + 1
	KindMate
)

// MateScore is the centipawn-equivalent magnitude of a delivered mate. Each
// move to mate takes MatePlyPenalty off it so shorter mates compare higher.
const (
	MateScore      = 100_000
	MatePlyPenalty = 100
)

// Evaluation is White-positive. It is either Centipawn(v) or MateIn(n); the
// zero value is an invalid evaluation. Use Fold to handle both cases.
type Evaluation struct {
	kind  EvalKind
	value int
	// winner is +1 or -1 for mates. It keeps the mating side for MateIn(0).
	winner int
}

func Centipawn(v int) Evaluation {
	return Evaluation{kind: KindCentipawn, value: v}
}

// MateIn builds a mate evaluation: positive n means White mates in n moves,
// negative n means Black does. MateIn(0) is ambiguous, see Mated.
func MateIn(n int) Evaluation {
	winner := 1
	if n < 0 {
		winner = -1
	}
	return Evaluation{kind: KindMate, value: n, winner: winner}
}

// Mated is the evaluation of a position where mate has been delivered by
// the given side.
func Mated(by Color) Evaluation {
	return Evaluation{kind: KindMate, value: 0, winner: by.Sign()}
}

func (e Evaluation) Kind() EvalKind { return e.kind }
func (e Evaluation) IsMate() bool   { return e.kind == KindMate }
func (e Evaluation) IsZero() bool   { return e.kind == 0 }

func (e Evaluation) Centipawns() (int, bool) {
	if e.kind != KindCentipawn {
		return 0, false
	}
	return e.value, true
}

func (e Evaluation) Mate() (int, bool) {
	if e.kind != KindMate {
		return 0, false
	}
	return e.value, true
}

// MateWinner returns the side delivering mate.
func (e Evaluation) MateWinner() (Color, bool) {
	if e.kind != KindMate {
		return White, false
	}
	if e.winner < 0 {
		return Black, true
	}
	return White, true
}

// Negate swaps the favoured side.
func (e Evaluation) Negate() Evaluation {
	switch e.kind {
	case KindCentipawn:
		return Centipawn(-e.value)
	case KindMate:
		return Evaluation{kind: KindMate, value: -e.value, winner: -e.winner}
	}
	return e
}

// Score collapses the evaluation into a single comparable number: plain
// centipawns, or a mate mapped beyond any centipawn value.
func (e Evaluation) Score() int {
	return Fold(e,
		func(cp int) int { return cp },
		func(n int) int {
			moves := n
			if moves < 0 {
				moves = -moves
			}
			return e.winner * (MateScore - moves*MatePlyPenalty)
		},
	)
}

func (e Evaluation) String() string {
	return Fold(e,
		func(cp int) string { return fmt.Sprintf("%+.2f", float64(cp)/100) },
		func(n int) string {
			if n == 0 {
				if e.winner < 0 {
					return "#-0"
				}
				return "#0"
			}
			return fmt.Sprintf("#%d", n)
		},
	)
}

// Fold dispatches on the evaluation kind. An invalid (zero) evaluation is
// handed to onCentipawn as 0.
func Fold[T any](e Evaluation, onCentipawn func(cp int) T, onMate func(moves int) T) T {
	if e.kind == KindMate {
		return onMate(e.value)
	}
	return onCentipawn(e.value)
}

type evaluationJSON struct {
	Type   string `json:"type"`
	Value  int    `json:"value"`
	Winner string `json:"winner,omitempty"`
}

func (e Evaluation) MarshalJSON() ([]byte, error) {
	switch e.kind {
	case KindCentipawn:
		return json.Marshal(evaluationJSON{Type: "cp", Value: e.value})
	case KindMate:
		winner, _ := e.MateWinner()
		return json.Marshal(evaluationJSON{Type: "mate", Value: e.value, Winner: winner.String()})
	}
	return []byte("null"), nil
}

func (e *Evaluation) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*e = Evaluation{}
		return nil
	}
	var raw evaluationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case "cp":
		*e = Centipawn(raw.Value)
	case "mate":
		if raw.Value == 0 {
			winner, err := ParseColor(raw.Winner)
			if err != nil {
				return err
			}
			*e = Mated(winner)
			return nil
		}
		*e = MateIn(raw.Value)
	default:
		return fmt.Errorf("unknown evaluation type %q", raw.Type)
	}
	return nil
}
