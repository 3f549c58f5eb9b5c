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

// CacheKey identifies one search: the same position searched with the same
// budget and candidate count.
func CacheKey(fen string, depth int, timeBudget time.Duration, multiPV int) string {
	return fmt.Sprintf("babelfish:eval:d%d:t%d:k%d:%s", depth, timeBudget.Milliseconds(), multiPV, fen)
}

// cachedAnalyzer answers from the cache when it can. Cache failures are
// logged and never fail the analysis.
type cachedAnalyzer struct {
	next    PositionAnalyzer
	cache   EvalCache
	multiPV int
	log     *zap.SugaredLogger
}

func (c *cachedAnalyzer) AnalyzePosition(ctx context.Context, pos analysis.Position, depth int, timeBudget time.Duration) (analysis.AnalysisResult, error) {
	key := CacheKey(pos.FEN, depth, timeBudget, c.multiPV)
	result, err := c.cache.Get(ctx, key)
	if err == nil {
		c.log.Debugw("evaluation cache hit", "fen", pos.FEN, "depth", depth)
		return result, nil
	}
	if !errors.Is(err, apperrors.ErrCacheMiss) {
		c.log.Warnw("evaluation cache read failed", "error", err)
	}

	result, err = c.next.AnalyzePosition(ctx, pos, depth, timeBudget)
	if err != nil {
		return result, err
	}
	if err := c.cache.Set(ctx, key, result); err != nil {
		c.log.Warnw("evaluation cache write failed", "error", err)
	}
	return result, nil
}
