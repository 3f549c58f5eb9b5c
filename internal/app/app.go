// Package app assembles the analysis use case from configuration: the
// engine pool, the rules oracle and, when enabled, the evaluation cache.
package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"babelfish/internal/adapters"
	"babelfish/internal/bootstrap"
	"babelfish/internal/repository"
	analysisUC "babelfish/internal/usecase/analysis"
)

type App struct {
	UseCase *analysisUC.AnalysisUseCase
	Pool    *repository.Pool

	redis *adapters.AdapterRedis
	mongo *adapters.AdapterMongo
	log   *zap.SugaredLogger
}

func New(ctx context.Context, cfg *bootstrap.Config, log *zap.SugaredLogger) (*App, error) {
	ucCfg, err := analysisUC.NewConfig(cfg)
	if err != nil {
		return nil, err
	}
	factory := repository.UCIFactory(repository.NewEngineConfig(cfg), log)
	return NewWithFactory(ctx, cfg, ucCfg, factory, log)
}

// NewWithFactory is New with the engine factory supplied by the caller.
func NewWithFactory(ctx context.Context, cfg *bootstrap.Config, ucCfg analysisUC.Config, factory repository.EngineFactory, log *zap.SugaredLogger) (*App, error) {
	a := &App{
		Pool: repository.NewPool(cfg.EnginePoolSize, factory, log),
		log:  log,
	}

	var cache analysisUC.EvalCache
	if cfg.CacheEnabled {
		tiered, err := a.initCache(ctx, cfg)
		if err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
		cache = tiered
	}

	a.UseCase = analysisUC.NewAnalysisUseCase(a.Pool, repository.NewRules(), cache, ucCfg, log)
	return a, nil
}

func (a *App) initCache(ctx context.Context, cfg *bootstrap.Config) (*repository.TieredEvalCache, error) {
	var tiers []repository.EvalTier

	if cfg.RedisUrl != "" {
		a.redis = adapters.NewAdapterRedis(cfg, a.log)
		if err := a.redis.Init(ctx); err != nil {
			return nil, err
		}
		tiers = append(tiers, repository.NewRedisEvalCache(a.redis.GetClient(), cfg.CacheTTL))
	}

	if cfg.MongoUri != "" {
		a.mongo = adapters.NewAdapterMongo(cfg, a.log)
		if err := a.mongo.Init(ctx); err != nil {
			return nil, err
		}
		mongoCache := repository.NewMongoEvalCacheFromDatabase(a.mongo.Database, cfg.CacheTTL)
		if err := mongoCache.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		tiers = append(tiers, mongoCache)
	}

	a.log.Infow("evaluation cache enabled", "tiers", len(tiers), "ttl", cfg.CacheTTL)
	return repository.NewTieredEvalCache(a.log, tiers...), nil
}

// Close stops the engines and disconnects the cache stores.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Pool != nil {
		errs = append(errs, a.Pool.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close(ctx))
	}
	if a.mongo != nil {
		errs = append(errs, a.mongo.Close(ctx))
	}
	return errors.Join(errs...)
}
