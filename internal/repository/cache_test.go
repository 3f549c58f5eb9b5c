package repository

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
	"go.uber.org/zap/zaptest"

	"babelfish/internal/domain/analysis"
	apperrors "babelfish/internal/errors"
)

type mapCache struct {
	entries map[string]analysis.AnalysisResult
	err     error
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]analysis.AnalysisResult{}}
}

func (m *mapCache) Get(_ context.Context, key string) (analysis.AnalysisResult, error) {
	if m.err != nil {
		return analysis.AnalysisResult{}, m.err
	}
	r, ok := m.entries[key]
	if !ok {
		return analysis.AnalysisResult{}, apperrors.ErrCacheMiss
	}
	return r, nil
}

func (m *mapCache) Set(_ context.Context, key string, r analysis.AnalysisResult) error {
	if m.err != nil {
		return m.err
	}
	m.entries[key] = r
	return nil
}

func sampleResult(t *testing.T) analysis.AnalysisResult {
	t.Helper()
	pos, err := NewRules().Parse(startFEN)
	require.NoError(t, err)
	best := "e4"
	return analysis.AnalysisResult{
		Position:   pos,
		Evaluation: analysis.Centipawn(31),
		Candidates: []analysis.CandidateMove{{Move: "e4", UCI: "e2e4", Rank: 1, Evaluation: analysis.Centipawn(31), PV: []string{"e4", "e5"}}},
		BestMove:   &best,
		Depth:      18,
	}
}

func TestTieredEvalCacheBackfills(t *testing.T) {
	fast, slow := newMapCache(), newMapCache()
	cache := NewTieredEvalCache(zaptest.NewLogger(t).Sugar(), fast, slow)
	result := sampleResult(t)

	_, err := cache.Get(context.Background(), "k")
	assert.True(t, errors.Is(err, apperrors.ErrCacheMiss))

	slow.entries["k"] = result
	got, err := cache.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, result, got)
	assert.Equal(t, result, fast.entries["k"])

	require.NoError(t, cache.Set(context.Background(), "other", result))
	assert.Contains(t, fast.entries, "other")
	assert.Contains(t, slow.entries, "other")
}

func TestTieredEvalCacheSurvivesBrokenTier(t *testing.T) {
	broken, slow := newMapCache(), newMapCache()
	broken.err = errors.New("connection refused")
	cache := NewTieredEvalCache(zaptest.NewLogger(t).Sugar(), broken, slow)
	result := sampleResult(t)
	slow.entries["k"] = result

	got, err := cache.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, result, got)

	_, err = cache.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperrors.ErrCacheMiss))

	assert.Error(t, cache.Set(context.Background(), "k2", result))
	assert.Contains(t, slow.entries, "k2")
}

func TestMongoEvalCache(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	result := sampleResult(t)
	payload, err := json.Marshal(result)
	require.NoError(t, err)

	mt.Run("hit", func(mt *mtest.T) {
		cache := NewMongoEvalCache(mt.Coll, time.Hour)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "k"},
			{Key: "fen", Value: startFEN},
			{Key: "payload", Value: string(payload)},
			{Key: "expires_at", Value: time.Now().Add(time.Hour)},
		}))

		got, err := cache.Get(context.Background(), "k")
		require.NoError(mt, err)
		assert.Equal(mt, result.Evaluation, got.Evaluation)
		assert.Equal(mt, "e4", *got.BestMove)
	})

	mt.Run("miss", func(mt *mtest.T) {
		cache := NewMongoEvalCache(mt.Coll, time.Hour)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := cache.Get(context.Background(), "k")
		assert.True(mt, errors.Is(err, apperrors.ErrCacheMiss))
	})

	mt.Run("expired", func(mt *mtest.T) {
		cache := NewMongoEvalCache(mt.Coll, time.Hour)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "k"},
			{Key: "payload", Value: string(payload)},
			{Key: "expires_at", Value: time.Now().Add(-time.Minute)},
		}))

		_, err := cache.Get(context.Background(), "k")
		assert.True(mt, errors.Is(err, apperrors.ErrCacheMiss))
	})

	mt.Run("set", func(mt *mtest.T) {
		cache := NewMongoEvalCache(mt.Coll, time.Hour)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		assert.NoError(mt, cache.Set(context.Background(), "k", result))
	})
}

// The redis round trip needs a server; set BABELFISH_TEST_REDIS_URL to run it.
func TestRedisEvalCache(t *testing.T) {
	url := os.Getenv("BABELFISH_TEST_REDIS_URL")
	if url == "" {
		t.Skip("BABELFISH_TEST_REDIS_URL is not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	cache := NewRedisEvalCache(client, time.Minute)
	key := "babelfish:test:" + t.Name()
	t.Cleanup(func() { client.Del(context.Background(), key) })

	_, err = cache.Get(context.Background(), key)
	assert.True(t, errors.Is(err, apperrors.ErrCacheMiss))

	result := sampleResult(t)
	require.NoError(t, cache.Set(context.Background(), key, result))
	got, err := cache.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, result, got)

	ttl, err := client.TTL(context.Background(), key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
