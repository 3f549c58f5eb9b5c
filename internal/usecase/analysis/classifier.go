package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"babelfish/internal/domain/analysis"
	apperrors "babelfish/internal/errors"
)

// Thresholds are inclusive upper bounds of centipawn loss per grade; a
// loss above Mistake is a blunder.
type Thresholds struct {
	Excellent  int `json:"excellent"`
	Good       int `json:"good"`
	Inaccuracy int `json:"inaccuracy"`
	Mistake    int `json:"mistake"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Excellent: 10, Good: 50, Inaccuracy: 100, Mistake: 200}
}

func (t Thresholds) Validate() error {
	if t.Excellent < 0 || t.Excellent > t.Good || t.Good > t.Inaccuracy || t.Inaccuracy > t.Mistake {
		return apperrors.InvalidArgument("thresholds must be non-negative and non-decreasing: %+v", t)
	}
	return nil
}

func (t Thresholds) Grade(loss int) analysis.Grade {
	switch {
	case loss <= t.Excellent:
		return analysis.GradeExcellent
	case loss <= t.Good:
		return analysis.GradeGood
	case loss <= t.Inaccuracy:
		return analysis.GradeInaccuracy
	case loss <= t.Mistake:
		return analysis.GradeMistake
	}
	return analysis.GradeBlunder
}

// BelowTopKPolicy decides what happens to a move missing from the ranked
// candidates.
type BelowTopKPolicy string

const (
	PolicyReanalyze BelowTopKPolicy = "reanalyze"
	PolicyUnknown   BelowTopKPolicy = "unknown"
)

func ParseBelowTopKPolicy(s string) (BelowTopKPolicy, error) {
	switch BelowTopKPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyReanalyze, "":
		return PolicyReanalyze, nil
	case PolicyUnknown:
		return PolicyUnknown, nil
	}
	return "", apperrors.InvalidArgument("unknown below top-k policy %q", s)
}

type ClassifierConfig struct {
	Thresholds Thresholds
	Policy     BelowTopKPolicy
}

type Classifier struct {
	analyzer PositionAnalyzer
	rules    RulesOracle
	cfg      ClassifierConfig
	log      *zap.SugaredLogger
}

func NewClassifier(analyzer PositionAnalyzer, rules RulesOracle, cfg ClassifierConfig, log *zap.SugaredLogger) *Classifier {
	return &Classifier{analyzer: analyzer, rules: rules, cfg: cfg, log: log}
}

// Classify grades move against ranked, the analysis of pos. A move outside
// the ranked candidates is either searched (PolicyReanalyze) or reported
// with GradeUnknown (PolicyUnknown); it is never assumed good or bad.
func (c *Classifier) Classify(ctx context.Context, pos analysis.Position, move string, ranked analysis.AnalysisResult, depth int, timeBudget time.Duration) (analysis.MoveQuality, error) {
	san, _, err := c.rules.Resolve(pos, move)
	if err != nil {
		return analysis.MoveQuality{}, err
	}
	if ranked.Position.FEN != pos.FEN {
		return analysis.MoveQuality{}, apperrors.InvalidArgument("analysis is of %q, not %q", ranked.Position.FEN, pos.FEN)
	}
	if ranked.BestMove == nil || len(ranked.Candidates) == 0 {
		return analysis.MoveQuality{}, apperrors.InvalidArgument("analysis of %q has no candidate moves", pos.FEN)
	}

	best := ranked.Candidates[0]
	quality := analysis.MoveQuality{
		Position: pos,
		Move:     san,
		BestMove: best.Move,
		Best:     best.Evaluation,
	}

	var played analysis.Evaluation
	if candidate, ok := ranked.Candidate(san); ok {
		quality.Basis = analysis.BasisRanked
		quality.Rank = candidate.Rank
		played = candidate.Evaluation
		if candidate.Rank == 1 {
			quality.Played = &played
			quality.Grade = analysis.GradeExcellent
			return quality, nil
		}
	} else {
		if c.cfg.Policy == PolicyUnknown {
			quality.Basis = analysis.BasisBelowTopK
			quality.Grade = analysis.GradeUnknown
			return quality, nil
		}
		played, err = c.reanalyze(ctx, pos, san, depth, timeBudget)
		if err != nil {
			return analysis.MoveQuality{}, err
		}
		quality.Basis = analysis.BasisReanalyzed
	}

	quality.Played = &played
	quality.Grade, quality.Loss, quality.MateShift = c.judge(best.Evaluation, played, pos.SideToMove)
	return quality, nil
}

// reanalyze searches the position after move one ply shallower, so its
// horizon matches the ranked lines of the parent search.
func (c *Classifier) reanalyze(ctx context.Context, pos analysis.Position, san string, depth int, timeBudget time.Duration) (analysis.Evaluation, error) {
	applied, err := c.rules.Apply(pos, san)
	if err != nil {
		return analysis.Evaluation{}, err
	}
	result, err := c.analyzer.AnalyzePosition(ctx, applied.After, max(1, depth-1), timeBudget)
	if err != nil {
		return analysis.Evaluation{}, fmt.Errorf("reanalyze %s: %w", san, err)
	}
	return result.Evaluation, nil
}

// judge measures the loss of played against best from mover's side. Mates
// are graded by rule: losing a forced mate or walking into one is a
// blunder, keeping a won mate is excellent even when the mate gets longer.
// Loss still reports the mate-aware score gap.
func (c *Classifier) judge(best, played analysis.Evaluation, mover analysis.Color) (analysis.Grade, int, bool) {
	b := ForSide(best, mover)
	p := ForSide(played, mover)
	loss := max(0, b.Score()-p.Score())

	if !b.IsMate() && !p.IsMate() {
		return c.cfg.Thresholds.Grade(loss), loss, false
	}

	bestWins, bestLoses := mateSides(b)
	playedWins, playedLoses := mateSides(p)
	switch {
	case bestWins && playedWins:
		return analysis.GradeExcellent, loss, true
	case bestWins:
		return analysis.GradeBlunder, loss, true
	case playedLoses && !bestLoses:
		return analysis.GradeBlunder, loss, true
	case playedWins:
		return analysis.GradeExcellent, 0, true
	}
	// both lines are lost to mate, or the played move escaped one
	return c.cfg.Thresholds.Grade(loss), loss, true
}

func mateSides(e analysis.Evaluation) (wins, loses bool) {
	if !e.IsMate() {
		return false, false
	}
	return e.Score() > 0, e.Score() < 0
}
