package repository

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"babelfish/internal/domain/analysis"
	apperrors "babelfish/internal/errors"
)

// EvalTier is one level of a TieredEvalCache.
type EvalTier interface {
	Get(ctx context.Context, key string) (analysis.AnalysisResult, error)
	Set(ctx context.Context, key string, result analysis.AnalysisResult) error
}

// TieredEvalCache reads its caches in order and copies a hit into the
// faster caches that missed it. Writes go to every cache.
type TieredEvalCache struct {
	tiers []EvalTier
	log   *zap.SugaredLogger
}

func NewTieredEvalCache(log *zap.SugaredLogger, tiers ...EvalTier) *TieredEvalCache {
	return &TieredEvalCache{tiers: tiers, log: log}
}

func (c *TieredEvalCache) Get(ctx context.Context, key string) (analysis.AnalysisResult, error) {
	var errs []error
	for i, tier := range c.tiers {
		result, err := tier.Get(ctx, key)
		if err == nil {
			for _, faster := range c.tiers[:i] {
				if err := faster.Set(ctx, key, result); err != nil {
					c.log.Warnw("failed to backfill evaluation cache", "key", key, "error", err)
				}
			}
			return result, nil
		}
		if !errors.Is(err, apperrors.ErrCacheMiss) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return analysis.AnalysisResult{}, errors.Join(errs...)
	}
	return analysis.AnalysisResult{}, apperrors.ErrCacheMiss
}

func (c *TieredEvalCache) Set(ctx context.Context, key string, result analysis.AnalysisResult) error {
	var errs []error
	for _, tier := range c.tiers {
		if err := tier.Set(ctx, key, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
