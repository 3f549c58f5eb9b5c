package repository

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"babelfish/internal/domain/analysis"
	apperrors "babelfish/internal/errors"
)

// EngineHandle is one engine process as the pool sees it.
type EngineHandle interface {
	analysis.Engine
	Healthy() bool
	Close() error
}

type EngineFactory func(ctx context.Context) (EngineHandle, error)

// UCIFactory starts UCI engines with cfg.
func UCIFactory(cfg EngineConfig, log *zap.SugaredLogger) EngineFactory {
	return func(ctx context.Context) (EngineHandle, error) {
		engine, err := StartUCIEngine(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return engine, nil
	}
}

// Pool hands out exclusive use of engine handles. Slots start empty and are
// filled on first use; a handle that is no longer healthy when it comes
// back is closed and its slot emptied so the next caller starts a new one.
type Pool struct {
	factory EngineFactory
	log     *zap.SugaredLogger
	slots   chan EngineHandle
	size    int

	mu     sync.Mutex
	closed bool
}

func NewPool(size int, factory EngineFactory, log *zap.SugaredLogger) *Pool {
	size = max(1, size)
	p := &Pool{
		factory: factory,
		log:     log,
		slots:   make(chan EngineHandle, size),
		size:    size,
	}
	for i := 0; i < size; i++ {
		p.slots <- nil
	}
	return p
}

func (p *Pool) Size() int { return p.size }

// Warm starts every slot so the first requests do not pay start-up cost.
func (p *Pool) Warm(ctx context.Context) error {
	for i := 0; i < p.size; i++ {
		if err := p.Do(ctx, func(analysis.Engine) error { return nil }); err != nil {
			return err
		}
	}
	return nil
}

// Do runs fn with a handle held exclusively for its whole duration. The
// handle goes back to the pool on every exit path, panics included.
func (p *Pool) Do(ctx context.Context, fn func(engine analysis.Engine) error) error {
	var h EngineHandle
	select {
	case h = <-p.slots:
	case <-ctx.Done():
		return apperrors.NewEngineError("acquire", ctx.Err())
	}

	if p.isClosed() {
		p.slots <- h
		return apperrors.ErrPoolClosed
	}

	if h == nil {
		var err error
		h, err = p.factory(ctx)
		if err != nil {
			p.slots <- nil
			p.log.Errorw("failed to start engine", "error", err)
			return err
		}
	}

	healthy := false
	defer func() {
		p.release(h, healthy)
	}()

	err := fn(h)
	healthy = true
	return err
}

func (p *Pool) release(h EngineHandle, returned bool) {
	if !returned || !h.Healthy() || p.isClosed() {
		if err := h.Close(); err != nil {
			p.log.Warnw("failed to close engine", "error", err)
		}
		p.slots <- nil
		return
	}
	p.slots <- h
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close stops idle handles; handles in use are stopped when released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	idle := 0
	for i := 0; i < p.size; i++ {
		select {
		case h := <-p.slots:
			if h != nil {
				_ = h.Close()
			}
			idle++
		default:
		}
	}
	for i := 0; i < idle; i++ {
		p.slots <- nil
	}
	return nil
}
