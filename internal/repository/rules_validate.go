package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

// validatePlacement rejects placements that notnil/chess would decode but
// that cannot arise in a game. It runs before a game is built so move
// generation never sees a board without kings.
func validatePlacement(fen string) error {
	fields := strings.Fields(fen)
	if len(fields) == 0 {
		return errors.New("empty fen")
	}
	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return fmt.Errorf("expected 8 ranks, got %d", len(ranks))
	}
	if strings.Count(fields[0], "K") != 1 || strings.Count(fields[0], "k") != 1 {
		return errors.New("each side must have exactly one king")
	}
	if strings.ContainsAny(ranks[0], "Pp") || strings.ContainsAny(ranks[7], "Pp") {
		return errors.New("pawn on back rank")
	}
	return nil
}

func validate(pos *chess.Position) error {
	if attacksKing(pos.Board(), pos.Turn()) {
		return errors.New("side not to move is in check")
	}
	return nil
}

var (
	knightOffsets = [][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingOffsets   = [][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	rookRays      = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	bishopRays    = [][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

// attacksKing reports whether any piece of attacker attacks the opposing
// king. Pins are ignored: a pinned piece still gives check.
func attacksKing(board *chess.Board, attacker chess.Color) bool {
	squares := board.SquareMap()

	kingFile, kingRank, found := 0, 0, false
	for sq, piece := range squares {
		if piece.Type() == chess.King && piece.Color() == attacker.Other() {
			kingFile, kingRank, found = int(sq.File()), int(sq.Rank()), true
			break
		}
	}
	if !found {
		return false
	}

	at := func(file, rank int) (chess.Piece, bool) {
		if file < 0 || file > 7 || rank < 0 || rank > 7 {
			return chess.NoPiece, false
		}
		piece, ok := squares[chess.NewSquare(chess.File(file), chess.Rank(rank))]
		return piece, ok && piece != chess.NoPiece
	}
	attackerIs := func(piece chess.Piece, types ...chess.PieceType) bool {
		if piece.Color() != attacker {
			return false
		}
		for _, t := range types {
			if piece.Type() == t {
				return true
			}
		}
		return false
	}

	for _, d := range knightOffsets {
		if piece, ok := at(kingFile+d[0], kingRank+d[1]); ok && attackerIs(piece, chess.Knight) {
			return true
		}
	}
	for _, d := range kingOffsets {
		if piece, ok := at(kingFile+d[0], kingRank+d[1]); ok && attackerIs(piece, chess.King) {
			return true
		}
	}

	// a white pawn attacks upwards, so it stands one rank below the king
	pawnRank := kingRank - 1
	if attacker == chess.Black {
		pawnRank = kingRank + 1
	}
	for _, df := range []int{-1, 1} {
		if piece, ok := at(kingFile+df, pawnRank); ok && attackerIs(piece, chess.Pawn) {
			return true
		}
	}

	slides := func(rays [][2]int, types ...chess.PieceType) bool {
		for _, d := range rays {
			for f, r := kingFile+d[0], kingRank+d[1]; f >= 0 && f <= 7 && r >= 0 && r <= 7; f, r = f+d[0], r+d[1] {
				piece, ok := at(f, r)
				if !ok {
					continue
				}
				if attackerIs(piece, types...) {
					return true
				}
				break
			}
		}
		return false
	}
	return slides(rookRays, chess.Rook, chess.Queen) || slides(bishopRays, chess.Bishop, chess.Queen)
}

// sufficientMaterial is false for K v K, K+minor v K and bishops-only
// endings with all bishops on one square colour.
func sufficientMaterial(pos *chess.Position) bool {
	var minors, knights int
	bishopSquares := map[int]bool{}
	for sq, piece := range pos.Board().SquareMap() {
		switch piece.Type() {
		case chess.King:
		case chess.Knight:
			minors++
			knights++
		case chess.Bishop:
			minors++
			bishopSquares[(int(sq.File())+int(sq.Rank()))%2] = true
		default:
			return true
		}
	}
	if minors <= 1 {
		return false
	}
	return knights > 0 || len(bishopSquares) > 1
}
