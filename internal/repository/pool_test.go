package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"babelfish/internal/domain/analysis"
	apperrors "babelfish/internal/errors"
)

type stubHandle struct {
	healthy atomic.Bool
	closed  atomic.Bool
}

func newStubHandle() *stubHandle {
	h := &stubHandle{}
	h.healthy.Store(true)
	return h
}

func (h *stubHandle) Evaluate(context.Context, string, analysis.SearchBudget) (analysis.RawResult, error) {
	return analysis.RawResult{}, nil
}
func (h *stubHandle) Healthy() bool { return h.healthy.Load() }
func (h *stubHandle) Close() error  { h.closed.Store(true); return nil }

type stubFactory struct {
	mu      sync.Mutex
	handles []*stubHandle
	err     error
}

func (f *stubFactory) start(context.Context) (EngineHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	h := newStubHandle()
	f.handles = append(f.handles, h)
	return h, nil
}

func (f *stubFactory) started() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

func TestPoolReusesHealthyHandles(t *testing.T) {
	factory := &stubFactory{}
	pool := NewPool(1, factory.start, zaptest.NewLogger(t).Sugar())

	var first, second analysis.Engine
	require.NoError(t, pool.Do(context.Background(), func(h analysis.Engine) error { first = h; return nil }))
	require.NoError(t, pool.Do(context.Background(), func(h analysis.Engine) error { second = h; return nil }))

	assert.Same(t, first, second)
	assert.Equal(t, 1, factory.started())
}

func TestPoolReplacesBrokenHandles(t *testing.T) {
	factory := &stubFactory{}
	pool := NewPool(1, factory.start, zaptest.NewLogger(t).Sugar())

	err := pool.Do(context.Background(), func(h analysis.Engine) error {
		h.(*stubHandle).healthy.Store(false)
		return apperrors.NewEngineError("search", errors.New("boom"))
	})
	require.True(t, errors.Is(err, apperrors.ErrEngineUnavailable))
	assert.True(t, factory.handles[0].closed.Load())

	require.NoError(t, pool.Do(context.Background(), func(analysis.Engine) error { return nil }))
	assert.Equal(t, 2, factory.started())
}

func TestPoolReleasesOnPanic(t *testing.T) {
	factory := &stubFactory{}
	pool := NewPool(1, factory.start, zaptest.NewLogger(t).Sugar())

	assert.Panics(t, func() {
		_ = pool.Do(context.Background(), func(analysis.Engine) error { panic("boom") })
	})
	assert.True(t, factory.handles[0].closed.Load())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.Do(ctx, func(analysis.Engine) error { return nil }))
}

func TestPoolIsExclusive(t *testing.T) {
	factory := &stubFactory{}
	pool := NewPool(2, factory.start, zaptest.NewLogger(t).Sugar())

	var inUse, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.Do(context.Background(), func(analysis.Engine) error {
				n := inUse.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inUse.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.LessOrEqual(t, factory.started(), 2)
}

func TestPoolAcquireHonoursContext(t *testing.T) {
	factory := &stubFactory{}
	pool := NewPool(1, factory.start, zaptest.NewLogger(t).Sugar())

	hold := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = pool.Do(context.Background(), func(analysis.Engine) error { <-hold; return nil })
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Do(ctx, func(analysis.Engine) error { return nil })
	assert.True(t, errors.Is(err, apperrors.ErrEngineUnavailable))

	close(hold)
	<-done
}

func TestPoolStartFailureKeepsSlot(t *testing.T) {
	factory := &stubFactory{err: apperrors.NewEngineError("start", errors.New("missing binary"))}
	pool := NewPool(1, factory.start, zaptest.NewLogger(t).Sugar())

	err := pool.Do(context.Background(), func(analysis.Engine) error { return nil })
	assert.True(t, errors.Is(err, apperrors.ErrEngineUnavailable))

	factory.err = nil
	require.NoError(t, pool.Do(context.Background(), func(analysis.Engine) error { return nil }))
}

func TestPoolClose(t *testing.T) {
	factory := &stubFactory{}
	pool := NewPool(1, factory.start, zaptest.NewLogger(t).Sugar())
	require.NoError(t, pool.Warm(context.Background()))

	require.NoError(t, pool.Close())
	assert.True(t, factory.handles[0].closed.Load())
	assert.ErrorIs(t, pool.Do(context.Background(), func(analysis.Engine) error { return nil }), apperrors.ErrPoolClosed)
}
