package analysis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"babelfish/internal/domain/analysis"
	"babelfish/internal/enginetest"
	apperrors "babelfish/internal/errors"
	"babelfish/internal/repository"
)

const (
	startFEN      = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	afterE4FEN    = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	blackMateFEN  = "r5k1/8/8/8/8/8/5PPP/6K1 b - - 0 1"
	matedFEN      = "6k1/8/8/8/8/8/5PPP/r5K1 w - - 1 2"
	stalemateFEN  = "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1"
	testMultiPV   = 3
	testCeiling   = 10 * time.Second
	testMaxPlyCap = 25
)

func newScriptedEngine(t *testing.T) *enginetest.Engine {
	t.Helper()
	return enginetest.NewEngine()
}

func cp(v int, pv ...string) analysis.RawLine { return enginetest.CP(v, pv...) }

func mate(n int, pv ...string) analysis.RawLine { return enginetest.Mate(n, pv...) }

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]analysis.AnalysisResult
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string]analysis.AnalysisResult{}}
}

func (c *memoryCache) Get(_ context.Context, key string) (analysis.AnalysisResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result, ok := c.entries[key]
	if !ok {
		return analysis.AnalysisResult{}, apperrors.ErrCacheMiss
	}
	return result, nil
}

func (c *memoryCache) Set(_ context.Context, key string, result analysis.AnalysisResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = result
	return nil
}

func testLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t).Sugar()
}

func testAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{MultiPV: testMultiPV, MaxDepth: 30, HardCeiling: testCeiling}
}

func testWalkerConfig() WalkerConfig {
	return WalkerConfig{MaxPliesCap: testMaxPlyCap, StopOnMate: true, DecisiveCP: 2000}
}

func newTestAnalyzer(t *testing.T, engine analysis.Engine) *Analyzer {
	return NewAnalyzer(engine, repository.NewRules(), testAnalyzerConfig(), testLogger(t))
}

func mustParse(t *testing.T, fen string) analysis.Position {
	t.Helper()
	pos, err := repository.NewRules().Parse(fen)
	require.NoError(t, err)
	return pos
}
