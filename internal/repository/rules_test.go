package repository

import (
	"errors"
	"testing"

	"github.com/notnil/chess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"babelfish/internal/domain/analysis"
	apperrors "babelfish/internal/errors"
)

const (
	startFEN     = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	matedFEN     = "6k1/8/8/8/8/8/5PPP/r5K1 w - - 1 2"
	stalemateFEN = "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1"
	bareKingsFEN = "8/8/8/4k3/8/8/8/4K3 w - - 0 1"
)

func TestRulesParse(t *testing.T) {
	rules := NewRules()

	pos, err := rules.Parse(startFEN)
	require.NoError(t, err)
	assert.Equal(t, analysis.White, pos.SideToMove)

	pos, err = rules.Parse("r5k1/8/8/8/8/8/5PPP/6K1 b - - 0 1")
	require.NoError(t, err)
	assert.Equal(t, analysis.Black, pos.SideToMove)
}

func TestRulesParseRejectsInvalidPositions(t *testing.T) {
	rules := NewRules()

	cases := map[string]string{
		"garbage":            "not a fen",
		"two white kings":    "4k3/8/8/8/8/8/8/3KK3 w - - 0 1",
		"missing black king": "8/8/8/8/8/8/8/4K3 w - - 0 1",
		"pawn on back rank":  "P3k3/8/8/8/8/8/8/4K3 w - - 0 1",
		"opponent in check":  "4k3/8/8/8/8/8/8/4R1K1 w - - 0 1",
		"pinned checker":     "4k3/8/8/4n3/8/3K4/8/4R3 b - - 0 1",
		"pawn check":         "4k3/8/8/8/8/8/3p4/4K3 b - - 0 1",
	}
	for name, fen := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := rules.Parse(fen)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidPosition))
		})
	}
}

func TestRulesLegalMoves(t *testing.T) {
	rules := NewRules()

	start, err := rules.Parse(startFEN)
	require.NoError(t, err)
	moves, err := rules.LegalMoves(start)
	require.NoError(t, err)
	assert.Len(t, moves.All, 20)
	assert.Contains(t, moves.All, "e4")
	assert.Contains(t, moves.All, "Nf3")
	assert.Empty(t, moves.Captures)

	promo, err := rules.Parse("4k3/P7/8/8/8/8/8/4K3 w - - 0 1")
	require.NoError(t, err)
	moves, err = rules.LegalMoves(promo)
	require.NoError(t, err)
	assert.Len(t, moves.Promotions, 4)

	castle, err := rules.Parse("r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1")
	require.NoError(t, err)
	moves, err = rules.LegalMoves(castle)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"O-O", "O-O-O"}, moves.Castling)
}

func TestRulesResolve(t *testing.T) {
	rules := NewRules()
	start, err := rules.Parse(startFEN)
	require.NoError(t, err)

	san, uci, err := rules.Resolve(start, "g1f3")
	require.NoError(t, err)
	assert.Equal(t, "Nf3", san)
	assert.Equal(t, "g1f3", uci)

	san, uci, err = rules.Resolve(start, " e4 ")
	require.NoError(t, err)
	assert.Equal(t, "e4", san)
	assert.Equal(t, "e2e4", uci)

	_, _, err = rules.Resolve(start, "e5")
	assert.True(t, errors.Is(err, apperrors.ErrIllegalMove))
}

func TestRulesApply(t *testing.T) {
	rules := NewRules()
	pos, err := rules.Parse("r5k1/8/8/8/8/8/5PPP/6K1 b - - 0 1")
	require.NoError(t, err)

	before := pos.FEN
	step, err := rules.Apply(pos, "Ra1")
	require.NoError(t, err)
	assert.Equal(t, "Ra1#", step.Move)
	assert.Equal(t, "a8a1", step.UCI)
	assert.Equal(t, analysis.Black, step.Mover)
	assert.Equal(t, analysis.White, step.After.SideToMove)
	assert.Equal(t, analysis.TerminalCheckmate, step.Terminal)
	assert.Equal(t, before, pos.FEN)
}

func TestRulesApplySequenceStopsAtIllegalMove(t *testing.T) {
	rules := NewRules()
	start, err := rules.Parse(startFEN)
	require.NoError(t, err)

	applied, err := rules.ApplySequence(start, []string{"e4", "e5", "Ke3"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrIllegalMove))
	assert.Len(t, applied, 2)
	assert.Equal(t, analysis.White, applied[1].After.SideToMove)
}

func TestRulesTerminal(t *testing.T) {
	rules := NewRules()

	cases := map[string]analysis.Terminal{
		startFEN:     analysis.TerminalNone,
		matedFEN:     analysis.TerminalCheckmate,
		stalemateFEN: analysis.TerminalStalemate,
		bareKingsFEN: analysis.TerminalInsufficientMaterial,
	}
	for fen, want := range cases {
		pos, err := rules.Parse(fen)
		require.NoError(t, err, fen)
		got, err := rules.Terminal(pos)
		require.NoError(t, err)
		assert.Equal(t, want, got, fen)
	}
}

func TestRulesSANLine(t *testing.T) {
	rules := NewRules()
	start, err := rules.Parse(startFEN)
	require.NoError(t, err)

	line := rules.SANLine(start, []string{"e2e4", "e7e5", "g1f3", "e1e8"})
	assert.Equal(t, []string{"e4", "e5", "Nf3"}, line)
}

func TestRulesInfo(t *testing.T) {
	rules := NewRules()

	start, err := rules.Parse(startFEN)
	require.NoError(t, err)
	info, err := rules.Info(start)
	require.NoError(t, err)
	assert.Equal(t, "KQkq", info.Castling)
	assert.Equal(t, 1, info.FullmoveNumber)
	assert.Equal(t, 20, info.LegalMoveCount)
	assert.False(t, info.InCheck)

	checked, err := rules.Parse("4k3/8/8/8/8/8/8/4R1K1 b - - 0 1")
	require.NoError(t, err)
	info, err = rules.Info(checked)
	require.NoError(t, err)
	assert.True(t, info.InCheck)

	// the knight is pinned to its king by Re1 and still gives check
	pinned, err := rules.Parse("4k3/8/8/4n3/8/3K4/8/4R3 w - - 0 1")
	require.NoError(t, err)
	info, err = rules.Info(pinned)
	require.NoError(t, err)
	assert.True(t, info.InCheck)

	blocked, err := rules.Parse("4k3/8/8/4n3/8/8/8/3KR3 b - - 0 1")
	require.NoError(t, err)
	info, err = rules.Info(blocked)
	require.NoError(t, err)
	assert.False(t, info.InCheck)
}

func TestAttacksKing(t *testing.T) {
	cases := []struct {
		name     string
		fen      string
		attacker chess.Color
		want     bool
	}{
		{"knight", "4k3/8/8/4n3/8/3K4/8/8 w - - 0 1", chess.Black, true},
		{"white pawn", "8/8/8/3k4/4P3/8/8/4K3 b - - 0 1", chess.White, true},
		{"white pawn behind", "8/8/8/4P3/3k4/8/8/4K3 b - - 0 1", chess.White, false},
		{"black pawn", "4k3/8/8/8/8/8/3p4/4K3 w - - 0 1", chess.Black, true},
		{"rook ray", "k7/8/8/8/8/8/8/r3K3 w - - 0 1", chess.Black, true},
		{"rook blocked", "k7/8/8/8/8/8/8/r1N1K3 w - - 0 1", chess.Black, false},
		{"bishop diagonal", "k7/8/8/8/8/8/3b4/4K3 w - - 0 1", chess.Black, true},
		{"queen far diagonal", "k7/8/8/q7/8/8/8/4K3 w - - 0 1", chess.Black, true},
		{"no attack", startFEN, chess.Black, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fenOpt, err := chess.FEN(tc.fen)
			require.NoError(t, err)
			board := chess.NewGame(fenOpt).Position().Board()
			assert.Equal(t, tc.want, attacksKing(board, tc.attacker))
		})
	}
}
