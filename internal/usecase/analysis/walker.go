package analysis

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"babelfish/internal/domain/analysis"
	apperrors "babelfish/internal/errors"
)

type WalkerConfig struct {
	MaxPliesCap int
	StopOnMate  bool
	// DecisiveCP stops the walk once |cp| exceeds it; 0 never stops.
	DecisiveCP int
}

type walkOptions struct {
	observer func(analysis.PVStep)
}

type WalkOption func(*walkOptions)

// WithStepObserver calls fn with every step as soon as it is recorded.
func WithStepObserver(fn func(analysis.PVStep)) WalkOption {
	return func(o *walkOptions) { o.observer = fn }
}

// Walker follows the engine's best move ply by ply. Each step records the
// evaluation of the position before its move, the one that chose it.
type Walker struct {
	analyzer PositionAnalyzer
	rules    RulesOracle
	cfg      WalkerConfig
	log      *zap.SugaredLogger
}

func NewWalker(analyzer PositionAnalyzer, rules RulesOracle, cfg WalkerConfig, log *zap.SugaredLogger) *Walker {
	return &Walker{analyzer: analyzer, rules: rules, cfg: cfg, log: log}
}

// Walk builds the principal variation from fen. An invalid start position
// or argument is an error; a failure after the walk has started ends it and
// the steps gathered so far are returned with StopEngineFailure.
func (w *Walker) Walk(ctx context.Context, fen string, depth, maxPlies int, timeBudget time.Duration, opts ...WalkOption) (analysis.PrincipalVariation, error) {
	start, err := w.rules.Parse(fen)
	if err != nil {
		return analysis.PrincipalVariation{}, err
	}
	return w.WalkFrom(ctx, start, depth, maxPlies, timeBudget, opts...)
}

func (w *Walker) WalkFrom(ctx context.Context, start analysis.Position, depth, maxPlies int, timeBudget time.Duration, opts ...WalkOption) (analysis.PrincipalVariation, error) {
	pv, err := w.newVariation(start, depth, maxPlies, timeBudget)
	if err != nil {
		return pv, err
	}

	var o walkOptions
	for _, opt := range opts {
		opt(&o)
	}

	seen := map[string]int{start.RepetitionKey(): 1}
	current := start
	for len(pv.Steps) < pv.MaxPlies {
		if err := ctx.Err(); err != nil {
			return w.interrupted(ctx, pv, err), nil
		}

		result, err := w.analyzer.AnalyzePosition(ctx, current, depth, timeBudget)
		if err != nil {
			return w.interrupted(ctx, pv, err), nil
		}
		if result.BestMove == nil {
			pv.StopReason = analysis.StopNoLegalMoves
			return pv, nil
		}

		applied, err := w.rules.Apply(current, *result.BestMove)
		if err != nil {
			return w.interrupted(ctx, pv, err), nil
		}

		step := analysis.PVStep{
			Ply:        len(pv.Steps) + 1,
			Move:       applied.Move,
			UCI:        applied.UCI,
			Mover:      current.SideToMove,
			Position:   applied.After,
			Evaluation: result.Evaluation,
			Terminal:   applied.Terminal,
		}
		key := applied.After.RepetitionKey()
		seen[key]++
		if !step.Terminal.IsTerminal() && seen[key] >= 3 {
			step.Terminal = analysis.TerminalRepetition
		}
		pv.Steps = append(pv.Steps, step)
		if o.observer != nil {
			o.observer(step)
		}

		if step.Terminal.IsTerminal() {
			pv.StopReason = analysis.StopTerminal
			return pv, nil
		}
		if reason, stop := w.earlyStop(result.Evaluation); stop {
			pv.StopReason = reason
			return pv, nil
		}
		current = applied.After
	}

	pv.StopReason = analysis.StopMaxPlies
	return pv, nil
}

func (w *Walker) newVariation(start analysis.Position, depth, maxPlies int, timeBudget time.Duration) (analysis.PrincipalVariation, error) {
	if depth < 1 {
		return analysis.PrincipalVariation{}, apperrors.InvalidArgument("depth must be positive, got %d", depth)
	}
	if maxPlies < 1 {
		return analysis.PrincipalVariation{}, apperrors.InvalidArgument("max plies must be positive, got %d", maxPlies)
	}
	if w.cfg.MaxPliesCap > 0 && maxPlies > w.cfg.MaxPliesCap {
		maxPlies = w.cfg.MaxPliesCap
	}
	return analysis.PrincipalVariation{
		Start:      start,
		Depth:      depth,
		TimeBudget: timeBudget,
		MaxPlies:   maxPlies,
		Steps:      []analysis.PVStep{},
	}, nil
}

func (w *Walker) earlyStop(e analysis.Evaluation) (analysis.StopReason, bool) {
	if e.IsMate() {
		return analysis.StopForcedMate, w.cfg.StopOnMate
	}
	cp, _ := e.Centipawns()
	if w.cfg.DecisiveCP > 0 && (cp > w.cfg.DecisiveCP || cp < -w.cfg.DecisiveCP) {
		return analysis.StopDecisive, true
	}
	return "", false
}

func (w *Walker) interrupted(ctx context.Context, pv analysis.PrincipalVariation, err error) analysis.PrincipalVariation {
	pv.StopReason = analysis.StopEngineFailure
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		pv.StopReason = analysis.StopCancelled
	}
	pv.Failure = err.Error()
	w.log.Warnw("principal variation cut short", "start", pv.Start.FEN, "plies", len(pv.Steps), "error", err)
	return pv
}
