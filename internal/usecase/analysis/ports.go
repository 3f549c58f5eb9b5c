package analysis

import (
	"context"
	"time"

	"babelfish/internal/domain/analysis"
)

type RulesOracle interface {
	Parse(fen string) (analysis.Position, error)
	LegalCount(p analysis.Position) (int, error)
	LegalMoves(p analysis.Position) (analysis.LegalMoves, error)
	Resolve(p analysis.Position, notation string) (san, uci string, err error)
	Apply(p analysis.Position, notation string) (analysis.AppliedMove, error)
	ApplySequence(start analysis.Position, moves []string) ([]analysis.AppliedMove, error)
	SANLine(p analysis.Position, uciMoves []string) []string
	Terminal(p analysis.Position) (analysis.Terminal, error)
	Info(p analysis.Position) (analysis.PositionInfo, error)
}

// EnginePool lends an engine for the duration of fn.
type EnginePool interface {
	Do(ctx context.Context, fn func(engine analysis.Engine) error) error
}

// EvalCache stores analysis results by key. Get returns errors.ErrCacheMiss
// for unknown keys.
type EvalCache interface {
	Get(ctx context.Context, key string) (analysis.AnalysisResult, error)
	Set(ctx context.Context, key string, result analysis.AnalysisResult) error
}

type PositionAnalyzer interface {
	AnalyzePosition(ctx context.Context, pos analysis.Position, depth int, timeBudget time.Duration) (analysis.AnalysisResult, error)
}
