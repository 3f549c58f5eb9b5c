package analysis

import "babelfish/internal/domain/analysis"

// Normalize converts a score reported for the side to move into the
// White-positive convention. It is the only place engine output changes
// perspective and must be applied exactly once per engine score.
func Normalize(raw analysis.RawScore, toMove analysis.Color) analysis.Evaluation {
	if !raw.IsMate {
		return analysis.Centipawn(raw.Centipawns * toMove.Sign())
	}
	if raw.Mate == 0 {
		// the side to move is already mated
		return analysis.Mated(toMove.Opponent())
	}
	return analysis.MateIn(raw.Mate * toMove.Sign())
}

// ForSide views a White-positive evaluation from side's point of view, so
// that positive favours side. Used only to measure a mover's loss.
func ForSide(e analysis.Evaluation, side analysis.Color) analysis.Evaluation {
	if side == analysis.Black {
		return e.Negate()
	}
	return e
}
