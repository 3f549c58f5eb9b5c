package repository

import (
	"strconv"
	"strings"

	"github.com/notnil/chess"

	"babelfish/internal/domain/analysis"
	apperrors "babelfish/internal/errors"
)

// Rules answers every chess rules question on top of notnil/chess. It holds
// no state; positions are decoded from FEN on each call.
type Rules struct {
	notation chess.AlgebraicNotation
}

func NewRules() *Rules {
	return &Rules{}
}

func (r *Rules) Parse(fen string) (analysis.Position, error) {
	fen = strings.TrimSpace(fen)
	pos, err := r.decode(fen)
	if err != nil {
		return analysis.Position{}, err
	}
	return toPosition(pos), nil
}

func (r *Rules) LegalMoves(p analysis.Position) (analysis.LegalMoves, error) {
	pos, err := r.decode(p.FEN)
	if err != nil {
		return analysis.LegalMoves{}, err
	}

	moves := analysis.LegalMoves{
		Position:   p,
		All:        []string{},
		Captures:   []string{},
		Checks:     []string{},
		Castling:   []string{},
		Promotions: []string{},
	}
	for _, m := range pos.ValidMoves() {
		san := r.notation.Encode(pos, m)
		moves.All = append(moves.All, san)
		if m.HasTag(chess.Capture) || m.HasTag(chess.EnPassant) {
			moves.Captures = append(moves.Captures, san)
		}
		if m.HasTag(chess.Check) {
			moves.Checks = append(moves.Checks, san)
		}
		if m.HasTag(chess.KingSideCastle) || m.HasTag(chess.QueenSideCastle) {
			moves.Castling = append(moves.Castling, san)
		}
		if m.Promo() != chess.NoPieceType {
			moves.Promotions = append(moves.Promotions, san)
		}
	}
	return moves, nil
}

func (r *Rules) LegalCount(p analysis.Position) (int, error) {
	pos, err := r.decode(p.FEN)
	if err != nil {
		return 0, err
	}
	return len(pos.ValidMoves()), nil
}

// Resolve accepts SAN (check suffixes optional) or UCI and returns both
// notations of the matching legal move.
func (r *Rules) Resolve(p analysis.Position, notation string) (san, uci string, err error) {
	pos, err := r.decode(p.FEN)
	if err != nil {
		return "", "", err
	}
	m, ok := r.find(pos, notation)
	if !ok {
		return "", "", apperrors.IllegalMove(notation, p.FEN)
	}
	return r.notation.Encode(pos, m), m.String(), nil
}

func (r *Rules) Apply(p analysis.Position, notation string) (analysis.AppliedMove, error) {
	pos, err := r.decode(p.FEN)
	if err != nil {
		return analysis.AppliedMove{}, err
	}
	m, ok := r.find(pos, notation)
	if !ok {
		return analysis.AppliedMove{}, apperrors.IllegalMove(notation, p.FEN)
	}

	next := toPosition(pos.Update(m))
	terminal, err := r.Terminal(next)
	if err != nil {
		return analysis.AppliedMove{}, err
	}
	return analysis.AppliedMove{
		Move:     r.notation.Encode(pos, m),
		UCI:      m.String(),
		Mover:    p.SideToMove,
		Before:   p.FEN,
		After:    next,
		Terminal: terminal,
	}, nil
}

// ApplySequence plays moves one after another and stops at the first
// illegal one.
func (r *Rules) ApplySequence(start analysis.Position, moves []string) ([]analysis.AppliedMove, error) {
	applied := make([]analysis.AppliedMove, 0, len(moves))
	current := start
	for _, mv := range moves {
		step, err := r.Apply(current, mv)
		if err != nil {
			return applied, err
		}
		applied = append(applied, step)
		current = step.After
	}
	return applied, nil
}

// SANLine converts a UCI line to SAN, truncating at the first move that is
// not legal.
func (r *Rules) SANLine(p analysis.Position, uciMoves []string) []string {
	pos, err := r.decode(p.FEN)
	if err != nil {
		return nil
	}
	line := make([]string, 0, len(uciMoves))
	for _, u := range uciMoves {
		m, ok := r.find(pos, u)
		if !ok {
			break
		}
		line = append(line, r.notation.Encode(pos, m))
		pos = pos.Update(m)
	}
	return line
}

func (r *Rules) Terminal(p analysis.Position) (analysis.Terminal, error) {
	if _, err := r.decode(p.FEN); err != nil {
		return analysis.TerminalNone, err
	}
	fenOpt, err := chess.FEN(p.FEN)
	if err != nil {
		return analysis.TerminalNone, apperrors.InvalidPosition(p.FEN, err)
	}
	game := chess.NewGame(fenOpt)
	switch game.Position().Status() {
	case chess.Checkmate:
		return analysis.TerminalCheckmate, nil
	case chess.Stalemate:
		return analysis.TerminalStalemate, nil
	}
	if game.Method() == chess.InsufficientMaterial || !sufficientMaterial(game.Position()) {
		return analysis.TerminalInsufficientMaterial, nil
	}
	return analysis.TerminalNone, nil
}

func (r *Rules) Info(p analysis.Position) (analysis.PositionInfo, error) {
	pos, err := r.decode(p.FEN)
	if err != nil {
		return analysis.PositionInfo{}, err
	}
	terminal, err := r.Terminal(p)
	if err != nil {
		return analysis.PositionInfo{}, err
	}

	fields := strings.Fields(p.FEN)
	info := analysis.PositionInfo{
		Position:       p,
		Castling:       fields[2],
		Terminal:       terminal,
		LegalMoveCount: len(pos.ValidMoves()),
		InCheck:        attacksKing(pos.Board(), pos.Turn().Other()),
	}
	if fields[3] != "-" {
		info.EnPassant = fields[3]
	}
	if len(fields) >= 6 {
		info.HalfmoveClock, _ = strconv.Atoi(fields[4])
		info.FullmoveNumber, _ = strconv.Atoi(fields[5])
	}
	return info, nil
}

func (r *Rules) decode(fen string) (*chess.Position, error) {
	if err := validatePlacement(fen); err != nil {
		return nil, apperrors.InvalidPosition(fen, err)
	}
	fenOpt, err := chess.FEN(fen)
	if err != nil {
		return nil, apperrors.InvalidPosition(fen, err)
	}
	pos := chess.NewGame(fenOpt).Position()
	if err := validate(pos); err != nil {
		return nil, apperrors.InvalidPosition(fen, err)
	}
	return pos, nil
}

func (r *Rules) find(pos *chess.Position, notation string) (*chess.Move, bool) {
	want := normalizeNotation(notation)
	if want == "" {
		return nil, false
	}
	for _, m := range pos.ValidMoves() {
		if m.String() == strings.ToLower(want) {
			return m, true
		}
		if normalizeNotation(r.notation.Encode(pos, m)) == want {
			return m, true
		}
	}
	return nil, false
}

func normalizeNotation(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "+#!?")
	s = strings.ReplaceAll(s, "0-0-0", "O-O-O")
	s = strings.ReplaceAll(s, "0-0", "O-O")
	return s
}

func toPosition(pos *chess.Position) analysis.Position {
	side := analysis.White
	if pos.Turn() == chess.Black {
		side = analysis.Black
	}
	return analysis.Position{FEN: pos.String(), SideToMove: side}
}
