package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"babelfish/internal/domain/analysis"
	apperrors "babelfish/internal/errors"
)

func TestAnalyzeRanksCandidates(t *testing.T) {
	engine := newScriptedEngine(t).On(startFEN,
		cp(25, "e2e4", "e7e5", "g1f3"),
		cp(20, "d2d4", "d7d5"),
		cp(15, "g1f3"),
		cp(5, "c2c4"),
	)
	analyzer := newTestAnalyzer(t, engine)

	result, err := analyzer.Analyze(context.Background(), startFEN, 15, 0)
	require.NoError(t, err)

	require.NotNil(t, result.BestMove)
	assert.Equal(t, "e4", *result.BestMove)
	assert.Equal(t, analysis.Centipawn(25), result.Evaluation)
	require.Len(t, result.Candidates, testMultiPV)
	for i, c := range result.Candidates {
		assert.Equal(t, i+1, c.Rank)
	}
	assert.Equal(t, []string{"e4", "e5", "Nf3"}, result.Candidates[0].PV)
	assert.Equal(t, "d2d4", result.Candidates[1].UCI)
	assert.Equal(t, 12, result.Depth)

	budget := engine.LastBudget()
	assert.Equal(t, 15, budget.Depth)
	assert.Equal(t, testMultiPV, budget.MultiPV)
	assert.Equal(t, testCeiling, budget.MoveTime)
}

func TestAnalyzeBlackToMoveIsWhitePositive(t *testing.T) {
	engine := newScriptedEngine(t).On(blackMateFEN, mate(1, "a8a1"))
	analyzer := newTestAnalyzer(t, engine)

	result, err := analyzer.Analyze(context.Background(), blackMateFEN, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, analysis.MateIn(-1), result.Evaluation)
	require.NotNil(t, result.BestMove)
	assert.Equal(t, "Ra1#", *result.BestMove)
}

func TestAnalyzeWithoutLegalMoves(t *testing.T) {
	engine := newScriptedEngine(t)
	analyzer := newTestAnalyzer(t, engine)

	mated, err := analyzer.Analyze(context.Background(), matedFEN, 10, 0)
	require.NoError(t, err)
	assert.Nil(t, mated.BestMove)
	assert.Empty(t, mated.Candidates)
	assert.Equal(t, analysis.TerminalCheckmate, mated.Terminal)
	winner, ok := mated.Evaluation.MateWinner()
	assert.True(t, ok)
	assert.Equal(t, analysis.Black, winner)

	stalemate, err := analyzer.Analyze(context.Background(), stalemateFEN, 10, 0)
	require.NoError(t, err)
	assert.Nil(t, stalemate.BestMove)
	assert.Empty(t, stalemate.Candidates)
	assert.Equal(t, analysis.TerminalStalemate, stalemate.Terminal)
	assert.Equal(t, analysis.Centipawn(0), stalemate.Evaluation)

	assert.Zero(t, engine.Calls())
}

func TestAnalyzeRejectsBadInput(t *testing.T) {
	engine := newScriptedEngine(t)
	analyzer := newTestAnalyzer(t, engine)

	_, err := analyzer.Analyze(context.Background(), "8/8/8/8/8/8/8/8 w - - 0 1", 10, 0)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidPosition))

	_, err = analyzer.Analyze(context.Background(), startFEN, 0, 0)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))

	_, err = analyzer.Analyze(context.Background(), startFEN, 10, -time.Second)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))

	assert.Zero(t, engine.Calls())
}

func TestAnalyzeTimeBudgetIsCapped(t *testing.T) {
	engine := newScriptedEngine(t)
	analyzer := newTestAnalyzer(t, engine)

	cases := map[time.Duration]time.Duration{
		0:               testCeiling,
		2 * time.Second: 2 * time.Second,
		time.Hour:       testCeiling,
	}
	for budget, want := range cases {
		_, err := analyzer.Analyze(context.Background(), startFEN, 8, budget)
		require.NoError(t, err)
		assert.Equal(t, want, engine.LastBudget().MoveTime, budget)
	}
}

func TestAnalyzeClampsDepthAndMultiPV(t *testing.T) {
	engine := newScriptedEngine(t)
	analyzer := newTestAnalyzer(t, engine)

	// Kg8 is the only legal move
	result, err := analyzer.Analyze(context.Background(), "7k/R7/8/8/8/8/8/6K1 b - - 0 1", 99, 0)
	require.NoError(t, err)
	budget := engine.LastBudget()
	assert.Equal(t, 30, budget.Depth)
	assert.Equal(t, 1, budget.MultiPV)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "Kg8", result.Candidates[0].Move)
}

func TestAnalyzeEngineFailure(t *testing.T) {
	failing := newScriptedEngine(t)
	failing.FailAfter = 1
	analyzer := newTestAnalyzer(t, failing)
	_, err := analyzer.Analyze(context.Background(), startFEN, 10, 0)
	require.NoError(t, err)

	_, err = analyzer.Analyze(context.Background(), startFEN, 10, 0)
	assert.True(t, errors.Is(err, apperrors.ErrEngineUnavailable))

	failing.FailWith = errors.New("pipe closed")
	_, err = analyzer.Analyze(context.Background(), startFEN, 10, 0)
	assert.True(t, errors.Is(err, apperrors.ErrEngineUnavailable))
}

func TestAnalyzeRejectsIllegalEngineMove(t *testing.T) {
	engine := newScriptedEngine(t).On(startFEN, cp(30, "e2e5"))
	analyzer := newTestAnalyzer(t, engine)

	_, err := analyzer.Analyze(context.Background(), startFEN, 10, 0)
	assert.True(t, errors.Is(err, apperrors.ErrEngineUnavailable))
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	engine := newScriptedEngine(t).On(startFEN, cp(25, "e2e4"), cp(20, "d2d4"))
	analyzer := newTestAnalyzer(t, engine)

	first, err := analyzer.Analyze(context.Background(), startFEN, 12, 0)
	require.NoError(t, err)
	second, err := analyzer.Analyze(context.Background(), startFEN, 12, 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
