package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"babelfish/internal/domain/analysis"
	apperrors "babelfish/internal/errors"
)

// RedisEvalCache keeps analysis results as JSON strings that expire after
// ttl.
type RedisEvalCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisEvalCache(client redis.Cmdable, ttl time.Duration) *RedisEvalCache {
	return &RedisEvalCache{client: client, ttl: ttl}
}

func (r *RedisEvalCache) Get(ctx context.Context, key string) (analysis.AnalysisResult, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return analysis.AnalysisResult{}, apperrors.ErrCacheMiss
		}
		return analysis.AnalysisResult{}, err
	}

	var result analysis.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return analysis.AnalysisResult{}, err
	}
	return result, nil
}

func (r *RedisEvalCache) Set(ctx context.Context, key string, result analysis.AnalysisResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, r.ttl).Err()
}
