package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"babelfish/internal/domain/analysis"
	apperrors "babelfish/internal/errors"
)

type AnalyzerConfig struct {
	// MultiPV is the number of candidate moves requested (top-K).
	MultiPV     int
	MaxDepth    int
	HardCeiling time.Duration
}

// Analyzer issues one engine search per query and turns the raw output into
// a White-positive AnalysisResult.
type Analyzer struct {
	engine analysis.Engine
	rules  RulesOracle
	cfg    AnalyzerConfig
	log    *zap.SugaredLogger
}

func NewAnalyzer(engine analysis.Engine, rules RulesOracle, cfg AnalyzerConfig, log *zap.SugaredLogger) *Analyzer {
	return &Analyzer{engine: engine, rules: rules, cfg: cfg, log: log}
}

func (a *Analyzer) Analyze(ctx context.Context, fen string, depth int, timeBudget time.Duration) (analysis.AnalysisResult, error) {
	pos, err := a.rules.Parse(fen)
	if err != nil {
		return analysis.AnalysisResult{}, err
	}
	return a.AnalyzePosition(ctx, pos, depth, timeBudget)
}

func (a *Analyzer) AnalyzePosition(ctx context.Context, pos analysis.Position, depth int, timeBudget time.Duration) (analysis.AnalysisResult, error) {
	if depth < 1 {
		return analysis.AnalysisResult{}, apperrors.InvalidArgument("depth must be positive, got %d", depth)
	}
	if timeBudget < 0 {
		return analysis.AnalysisResult{}, apperrors.InvalidArgument("time budget must not be negative")
	}
	if a.cfg.MaxDepth > 0 && depth > a.cfg.MaxDepth {
		depth = a.cfg.MaxDepth
	}

	legal, err := a.rules.LegalCount(pos)
	if err != nil {
		return analysis.AnalysisResult{}, err
	}

	result := analysis.AnalysisResult{
		Position:   pos,
		Depth:      depth,
		Candidates: []analysis.CandidateMove{},
	}
	if legal == 0 {
		return a.terminalResult(result)
	}

	budget := analysis.SearchBudget{
		Depth:    depth,
		MoveTime: a.moveTime(timeBudget),
		MultiPV:  min(max(1, a.cfg.MultiPV), legal),
	}
	raw, err := a.engine.Evaluate(ctx, pos.FEN, budget)
	if err != nil {
		if !errors.Is(err, apperrors.ErrEngineUnavailable) {
			err = apperrors.NewEngineError("search", err)
		}
		return analysis.AnalysisResult{}, err
	}
	if len(raw.Lines) == 0 {
		return analysis.AnalysisResult{}, apperrors.NewEngineError("search", errors.New("no scored line reported"))
	}

	for _, line := range raw.Lines {
		san, uci, err := a.rules.Resolve(pos, line.PV[0])
		if err != nil {
			return analysis.AnalysisResult{}, apperrors.NewEngineError("search", fmt.Errorf("engine proposed %s: %w", line.PV[0], err))
		}
		result.Candidates = append(result.Candidates, analysis.CandidateMove{
			Move:       san,
			UCI:        uci,
			Rank:       len(result.Candidates) + 1,
			Evaluation: Normalize(line.Score, pos.SideToMove),
			PV:         a.rules.SANLine(pos, line.PV),
		})
	}

	best := result.Candidates[0]
	if raw.BestMove != "" && raw.BestMove != best.UCI {
		a.log.Debugw("bestmove differs from first line", "fen", pos.FEN, "bestmove", raw.BestMove, "line", best.UCI)
	}
	result.Evaluation = best.Evaluation
	result.BestMove = &best.Move
	if reached := raw.Lines[0].Depth; reached > 0 {
		result.Depth = reached
	}
	return result, nil
}

// terminalResult describes a position without legal moves; no search runs.
func (a *Analyzer) terminalResult(result analysis.AnalysisResult) (analysis.AnalysisResult, error) {
	terminal, err := a.rules.Terminal(result.Position)
	if err != nil {
		return analysis.AnalysisResult{}, err
	}
	result.Terminal = terminal
	result.Depth = 0
	if terminal == analysis.TerminalCheckmate {
		result.Evaluation = analysis.Mated(result.Position.SideToMove.Opponent())
	} else {
		result.Evaluation = analysis.Centipawn(0)
	}
	return result, nil
}

func (a *Analyzer) moveTime(timeBudget time.Duration) time.Duration {
	if timeBudget <= 0 || (a.cfg.HardCeiling > 0 && timeBudget > a.cfg.HardCeiling) {
		return a.cfg.HardCeiling
	}
	return timeBudget
}
