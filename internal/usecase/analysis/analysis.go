package analysis

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"babelfish/internal/bootstrap"
	"babelfish/internal/domain/analysis"
	apperrors "babelfish/internal/errors"
)

const (
	maxApplyMoves   = 20
	maxExploreMoves = 8
	maxVariations   = 5
	// variations are played for minVariationMoves..maxVariationMoves moves;
	// longer ones are cut
	minVariationMoves = 2
	maxVariationMoves = 4
	maxGamePlies    = 300
)

type Config struct {
	DefaultDepth int
	Analyzer     AnalyzerConfig
	Walker       WalkerConfig
	Classifier   ClassifierConfig
}

func NewConfig(cfg *bootstrap.Config) (Config, error) {
	policy, err := ParseBelowTopKPolicy(cfg.BelowTopKPolicy)
	if err != nil {
		return Config{}, err
	}
	thresholds := Thresholds{
		Excellent:  cfg.ThresholdExcel,
		Good:       cfg.ThresholdGood,
		Inaccuracy: cfg.ThresholdInacc,
		Mistake:    cfg.ThresholdMistake,
	}
	if err := thresholds.Validate(); err != nil {
		return Config{}, err
	}
	return Config{
		DefaultDepth: cfg.DefaultDepth,
		Analyzer: AnalyzerConfig{
			MultiPV:     min(max(1, cfg.MultiPV), 5),
			MaxDepth:    cfg.MaxDepth,
			HardCeiling: cfg.HardTimeCeiling,
		},
		Walker: WalkerConfig{
			MaxPliesCap: cfg.PvMaxPliesCap,
			StopOnMate:  cfg.PvStopOnMate,
			DecisiveCP:  cfg.PvDecisiveCp,
		},
		Classifier: ClassifierConfig{Thresholds: thresholds, Policy: policy},
	}, nil
}

// AnalysisUseCase exposes the analysis operations. Every operation holds
// one pooled engine for its whole duration.
type AnalysisUseCase struct {
	pool  EnginePool
	rules RulesOracle
	cache EvalCache
	cfg   Config
	log   *zap.SugaredLogger
}

// NewAnalysisUseCase builds the use case; cache may be nil.
func NewAnalysisUseCase(pool EnginePool, rules RulesOracle, cache EvalCache, cfg Config, log *zap.SugaredLogger) *AnalysisUseCase {
	return &AnalysisUseCase{pool: pool, rules: rules, cache: cache, cfg: cfg, log: log}
}

func (u *AnalysisUseCase) Config() Config { return u.cfg }

func (u *AnalysisUseCase) analyzerFor(engine analysis.Engine) PositionAnalyzer {
	var analyzer PositionAnalyzer = NewAnalyzer(engine, u.rules, u.cfg.Analyzer, u.log)
	if u.cache != nil {
		analyzer = &cachedAnalyzer{next: analyzer, cache: u.cache, multiPV: u.cfg.Analyzer.MultiPV, log: u.log}
	}
	return analyzer
}

func (u *AnalysisUseCase) depth(depth int) (int, error) {
	if depth < 0 {
		return 0, apperrors.InvalidArgument("depth must be positive, got %d", depth)
	}
	if depth == 0 {
		return u.cfg.DefaultDepth, nil
	}
	return depth, nil
}

// Analyze evaluates fen. A depth of 0 selects the configured default.
func (u *AnalysisUseCase) Analyze(ctx context.Context, fen string, depth int, timeBudget time.Duration) (analysis.AnalysisResult, error) {
	pos, err := u.rules.Parse(fen)
	if err != nil {
		return analysis.AnalysisResult{}, err
	}
	if depth, err = u.depth(depth); err != nil {
		return analysis.AnalysisResult{}, err
	}

	var result analysis.AnalysisResult
	err = u.pool.Do(ctx, func(engine analysis.Engine) error {
		var err error
		result, err = u.analyzerFor(engine).AnalyzePosition(ctx, pos, depth, timeBudget)
		return err
	})
	return result, err
}

// WalkPV walks the principal variation from fen. When no engine can be
// obtained the empty variation is returned with StopEngineFailure.
func (u *AnalysisUseCase) WalkPV(ctx context.Context, fen string, depth, maxPlies int, timeBudget time.Duration, opts ...WalkOption) (analysis.PrincipalVariation, error) {
	start, err := u.rules.Parse(fen)
	if err != nil {
		return analysis.PrincipalVariation{}, err
	}
	if depth, err = u.depth(depth); err != nil {
		return analysis.PrincipalVariation{}, err
	}

	var pv analysis.PrincipalVariation
	var walkErr error
	err = u.pool.Do(ctx, func(engine analysis.Engine) error {
		walker := NewWalker(u.analyzerFor(engine), u.rules, u.cfg.Walker, u.log)
		pv, walkErr = walker.WalkFrom(ctx, start, depth, maxPlies, timeBudget, opts...)
		return nil
	})
	if walkErr != nil {
		return analysis.PrincipalVariation{}, walkErr
	}
	if err != nil {
		if !errors.Is(err, apperrors.ErrEngineUnavailable) {
			return analysis.PrincipalVariation{}, err
		}
		walker := NewWalker(nil, u.rules, u.cfg.Walker, u.log)
		if pv, walkErr = walker.newVariation(start, depth, maxPlies, timeBudget); walkErr != nil {
			return analysis.PrincipalVariation{}, walkErr
		}
		return walker.interrupted(ctx, pv, err), nil
	}
	return pv, nil
}

// ClassifyMove analyses fen and grades move against it.
func (u *AnalysisUseCase) ClassifyMove(ctx context.Context, fen, move string, depth int, timeBudget time.Duration) (analysis.MoveQuality, error) {
	pos, err := u.rules.Parse(fen)
	if err != nil {
		return analysis.MoveQuality{}, err
	}
	if _, _, err := u.rules.Resolve(pos, move); err != nil {
		return analysis.MoveQuality{}, err
	}
	if depth, err = u.depth(depth); err != nil {
		return analysis.MoveQuality{}, err
	}

	var quality analysis.MoveQuality
	err = u.pool.Do(ctx, func(engine analysis.Engine) error {
		analyzer := u.analyzerFor(engine)
		ranked, err := analyzer.AnalyzePosition(ctx, pos, depth, timeBudget)
		if err != nil {
			return err
		}
		quality, err = NewClassifier(analyzer, u.rules, u.cfg.Classifier, u.log).Classify(ctx, pos, move, ranked, depth, timeBudget)
		return err
	})
	return quality, err
}

func (u *AnalysisUseCase) LegalMoves(fen string) (analysis.LegalMoves, error) {
	pos, err := u.rules.Parse(fen)
	if err != nil {
		return analysis.LegalMoves{}, err
	}
	return u.rules.LegalMoves(pos)
}

func (u *AnalysisUseCase) PositionInfo(fen string) (analysis.PositionInfo, error) {
	pos, err := u.rules.Parse(fen)
	if err != nil {
		return analysis.PositionInfo{}, err
	}
	return u.rules.Info(pos)
}

// ApplyMoves plays up to 20 moves from fen, validating each one.
func (u *AnalysisUseCase) ApplyMoves(fen string, moves []string) ([]analysis.AppliedMove, error) {
	if len(moves) == 0 || len(moves) > maxApplyMoves {
		return nil, apperrors.InvalidArgument("between 1 and %d moves are required, got %d", maxApplyMoves, len(moves))
	}
	pos, err := u.rules.Parse(fen)
	if err != nil {
		return nil, err
	}
	return u.rules.ApplySequence(pos, moves)
}

// ExploreMoves analyses the position after each move concurrently, one
// pooled engine per move.
func (u *AnalysisUseCase) ExploreMoves(ctx context.Context, fen string, moves []string, depth int, timeBudget time.Duration) ([]analysis.Exploration, error) {
	if len(moves) == 0 || len(moves) > maxExploreMoves {
		return nil, apperrors.InvalidArgument("between 1 and %d moves are required, got %d", maxExploreMoves, len(moves))
	}
	pos, err := u.rules.Parse(fen)
	if err != nil {
		return nil, err
	}
	if depth, err = u.depth(depth); err != nil {
		return nil, err
	}

	explorations := make([]analysis.Exploration, len(moves))
	for i, mv := range moves {
		applied, err := u.rules.Apply(pos, mv)
		if err != nil {
			return nil, err
		}
		explorations[i] = analysis.Exploration{Move: applied.Move, UCI: applied.UCI, Analysis: analysis.AnalysisResult{Position: applied.After}}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range explorations {
		g.Go(func() error {
			return u.pool.Do(gctx, func(engine analysis.Engine) error {
				result, err := u.analyzerFor(engine).AnalyzePosition(gctx, explorations[i].Analysis.Position, depth, timeBudget)
				if err != nil {
					return err
				}
				explorations[i].Analysis = result
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return explorations, nil
}

// AnalyzeVariations plays each move sequence from fen and evaluates the
// position after every move. Variations run concurrently, one pooled
// engine each; the moves of one variation are searched in order.
func (u *AnalysisUseCase) AnalyzeVariations(ctx context.Context, fen string, variations [][]string, depth int, timeBudget time.Duration) (analysis.VariationReport, error) {
	if len(variations) == 0 || len(variations) > maxVariations {
		return analysis.VariationReport{}, apperrors.InvalidArgument("between 1 and %d variations are required, got %d", maxVariations, len(variations))
	}
	start, err := u.rules.Parse(fen)
	if err != nil {
		return analysis.VariationReport{}, err
	}
	if depth, err = u.depth(depth); err != nil {
		return analysis.VariationReport{}, err
	}

	report := analysis.VariationReport{Variations: make([]analysis.Variation, len(variations))}
	lines := make([][]analysis.AppliedMove, len(variations))
	for i, moves := range variations {
		if len(moves) < minVariationMoves {
			return analysis.VariationReport{}, apperrors.InvalidArgument("variation %d needs at least %d moves, got %d", i+1, minVariationMoves, len(moves))
		}
		report.Variations[i].Moves = moves
		if len(moves) > maxVariationMoves {
			moves = moves[:maxVariationMoves]
			report.Variations[i].Truncated = true
		}
		if lines[i], err = u.rules.ApplySequence(start, moves); err != nil {
			return analysis.VariationReport{}, err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return u.pool.Do(gctx, func(engine analysis.Engine) error {
			var err error
			report.Start, err = u.analyzerFor(engine).AnalyzePosition(gctx, start, depth, timeBudget)
			return err
		})
	})
	for i := range lines {
		g.Go(func() error {
			return u.pool.Do(gctx, func(engine analysis.Engine) error {
				analyzer := u.analyzerFor(engine)
				steps := make([]analysis.VariationStep, 0, len(lines[i]))
				for j, applied := range lines[i] {
					result, err := analyzer.AnalyzePosition(gctx, applied.After, depth, timeBudget)
					if err != nil {
						return err
					}
					steps = append(steps, analysis.VariationStep{
						Ply:        j + 1,
						Move:       applied.Move,
						UCI:        applied.UCI,
						Mover:      applied.Mover,
						Position:   applied.After,
						Evaluation: result.Evaluation,
						BestMove:   result.BestMove,
						Terminal:   applied.Terminal,
					})
				}
				report.Variations[i].Steps = steps
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return analysis.VariationReport{}, err
	}

	for i := range report.Variations {
		prev := report.Start.Evaluation
		steps := report.Variations[i].Steps
		for j := range steps {
			steps[j].Change = steps[j].Evaluation.Score() - prev.Score()
			prev = steps[j].Evaluation
		}
		report.Variations[i].Final = prev
	}
	return report, nil
}

// AnalyzeGame grades every move of a game played from fen.
func (u *AnalysisUseCase) AnalyzeGame(ctx context.Context, fen string, moves []string, depth int, timeBudget time.Duration) (analysis.GameReview, error) {
	if len(moves) == 0 || len(moves) > maxGamePlies {
		return analysis.GameReview{}, apperrors.InvalidArgument("between 1 and %d moves are required, got %d", maxGamePlies, len(moves))
	}
	start, err := u.rules.Parse(fen)
	if err != nil {
		return analysis.GameReview{}, err
	}
	if depth, err = u.depth(depth); err != nil {
		return analysis.GameReview{}, err
	}
	applied, err := u.rules.ApplySequence(start, moves)
	if err != nil {
		return analysis.GameReview{}, err
	}

	review := analysis.GameReview{Start: start, Final: applied[len(applied)-1].After, Moves: make([]analysis.MoveQuality, 0, len(applied))}
	err = u.pool.Do(ctx, func(engine analysis.Engine) error {
		analyzer := u.analyzerFor(engine)
		classifier := NewClassifier(analyzer, u.rules, u.cfg.Classifier, u.log)
		before := start
		for _, step := range applied {
			ranked, err := analyzer.AnalyzePosition(ctx, before, depth, timeBudget)
			if err != nil {
				return err
			}
			quality, err := classifier.Classify(ctx, before, step.UCI, ranked, depth, timeBudget)
			if err != nil {
				return err
			}
			review.Moves = append(review.Moves, quality)
			before = step.After
		}
		return nil
	})
	if err != nil {
		return analysis.GameReview{}, err
	}
	return review, nil
}
