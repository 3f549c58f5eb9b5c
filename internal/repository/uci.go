package repository

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"babelfish/internal/bootstrap"
	"babelfish/internal/domain/analysis"
	apperrors "babelfish/internal/errors"
)

type EngineConfig struct {
	Path           string
	Args           []string
	Threads        int
	HashMB         int
	MoveOverheadMs int
	StartTimeout   time.Duration
	// HardCeiling caps movetime of every search whatever the caller asks.
	HardCeiling time.Duration
	// Grace is how long past movetime the watchdog waits before stopping
	// the search, StopGrace how long it waits for bestmove after "stop".
	Grace     time.Duration
	StopGrace time.Duration
}

func NewEngineConfig(cfg *bootstrap.Config) EngineConfig {
	return EngineConfig{
		Path:           cfg.EnginePath,
		Threads:        cfg.EngineThreads,
		HashMB:         cfg.EngineHashMB,
		MoveOverheadMs: cfg.EngineMoveOverheadMs,
		StartTimeout:   cfg.EngineStartTimeout,
		HardCeiling:    cfg.HardTimeCeiling,
		Grace:          2 * time.Second,
		StopGrace:      time.Second,
	}
}

// UCIEngine drives one UCI engine process. A search is the sequence
// position, go, read until bestmove; it runs under mu so concurrent callers
// never interleave on the process.
type UCIEngine struct {
	id  string
	cfg EngineConfig
	log *zap.SugaredLogger

	cmd    *exec.Cmd
	stdin  *bufio.Writer
	lines  chan string
	exited chan struct{}

	mu      sync.Mutex
	wmu     sync.Mutex
	multiPV int
	broken  bool

	closeOnce sync.Once
}

// StartUCIEngine launches the engine and completes the uci/isready
// handshake.
func StartUCIEngine(ctx context.Context, cfg EngineConfig, log *zap.SugaredLogger) (*UCIEngine, error) {
	cmd := exec.Command(cfg.Path, cfg.Args...)
	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, apperrors.NewEngineError("start", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, apperrors.NewEngineError("start", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, apperrors.NewEngineError("start", err)
	}

	e := &UCIEngine{
		id:      uuid.NewString(),
		cfg:     cfg,
		cmd:     cmd,
		stdin:   bufio.NewWriter(stdinPipe),
		lines:   make(chan string, 1024),
		exited:  make(chan struct{}),
		multiPV: 1,
	}
	e.log = log.With("engine", e.id)

	go e.listen(bufio.NewScanner(stdoutPipe))

	if err := e.handshake(ctx); err != nil {
		e.kill()
		return nil, apperrors.NewEngineError("start", err)
	}
	e.log.Infow("engine started", "path", cfg.Path, "threads", cfg.Threads, "hash_mb", cfg.HashMB)
	return e, nil
}

func (e *UCIEngine) ID() string { return e.id }

func (e *UCIEngine) listen(scanner *bufio.Scanner) {
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		e.lines <- scanner.Text()
	}
	close(e.lines)
	_ = e.cmd.Wait()
	close(e.exited)
}

func (e *UCIEngine) handshake(ctx context.Context) error {
	timeout := e.cfg.StartTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := e.send("uci"); err != nil {
		return err
	}
	if err := e.waitFor(ctx, "uciok"); err != nil {
		return err
	}

	options := []string{}
	if e.cfg.Threads > 0 {
		options = append(options, fmt.Sprintf("setoption name Threads value %d", e.cfg.Threads))
	}
	if e.cfg.HashMB > 0 {
		options = append(options, fmt.Sprintf("setoption name Hash value %d", e.cfg.HashMB))
	}
	if e.cfg.MoveOverheadMs > 0 {
		options = append(options, fmt.Sprintf("setoption name Move Overhead value %d", e.cfg.MoveOverheadMs))
	}
	if err := e.send(append(options, "ucinewgame", "isready")...); err != nil {
		return err
	}
	return e.waitFor(ctx, "readyok")
}

func (e *UCIEngine) waitFor(ctx context.Context, token string) error {
	for {
		select {
		case line, ok := <-e.lines:
			if !ok {
				return errors.New("engine exited")
			}
			if strings.TrimSpace(line) == token {
				return nil
			}
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", token, ctx.Err())
		}
	}
}

func (e *UCIEngine) send(cmds ...string) error {
	e.wmu.Lock()
	defer e.wmu.Unlock()
	for _, c := range cmds {
		e.log.Debugw("engine <", "cmd", c)
		if _, err := e.stdin.WriteString(c + "\n"); err != nil {
			return err
		}
	}
	return e.stdin.Flush()
}

// drain drops output left over from an earlier, interrupted search.
func (e *UCIEngine) drain() {
	for {
		select {
		case _, ok := <-e.lines:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Evaluate runs one bounded search of fen. Movetime is always sent, capped
// by the hard ceiling, so the engine stops at depth or time, whichever
// comes first. The watchdog stops, and failing that kills, a search that
// overruns.
func (e *UCIEngine) Evaluate(ctx context.Context, fen string, budget analysis.SearchBudget) (analysis.RawResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.broken {
		return analysis.RawResult{}, apperrors.NewEngineError("search", errors.New("engine is not running"))
	}
	e.drain()

	moveTime := budget.MoveTime
	if moveTime <= 0 || moveTime > e.cfg.HardCeiling {
		moveTime = e.cfg.HardCeiling
	}
	multiPV := max(1, budget.MultiPV)

	cmds := make([]string, 0, 3)
	if multiPV != e.multiPV {
		cmds = append(cmds, fmt.Sprintf("setoption name MultiPV value %d", multiPV))
	}
	cmds = append(cmds, "position fen "+fen)
	goCmd := fmt.Sprintf("go movetime %d", moveTime.Milliseconds())
	if budget.Depth > 0 {
		goCmd = fmt.Sprintf("go depth %d movetime %d", budget.Depth, moveTime.Milliseconds())
	}
	cmds = append(cmds, goCmd)
	if err := e.send(cmds...); err != nil {
		e.broken = true
		return analysis.RawResult{}, apperrors.NewEngineError("search", err)
	}
	e.multiPV = multiPV

	collector := newSearchCollector(multiPV)
	watchdog := time.NewTimer(moveTime + e.cfg.Grace)
	defer watchdog.Stop()

	for {
		select {
		case line, ok := <-e.lines:
			if !ok {
				e.broken = true
				return analysis.RawResult{}, apperrors.NewEngineError("search", errors.New("engine exited"))
			}
			if collector.feed(line) {
				return collector.result(), nil
			}
		case <-ctx.Done():
			e.interrupt(collector)
			return analysis.RawResult{}, apperrors.NewEngineError("search", ctx.Err())
		case <-watchdog.C:
			e.log.Warnw("search overran its budget", "fen", fen, "movetime", moveTime)
			if e.interrupt(collector) {
				return collector.result(), nil
			}
			return analysis.RawResult{}, apperrors.NewEngineError("search", fmt.Errorf("no bestmove within %s", moveTime+e.cfg.Grace))
		}
	}
}

// interrupt sends "stop" and waits for the bestmove that ends the search.
// If the engine does not answer it is killed.
func (e *UCIEngine) interrupt(collector *searchCollector) bool {
	if err := e.send("stop"); err == nil {
		timer := time.NewTimer(e.cfg.StopGrace)
		defer timer.Stop()
	wait:
		for {
			select {
			case line, ok := <-e.lines:
				if !ok {
					e.broken = true
					return false
				}
				if collector.feed(line) {
					return true
				}
			case <-timer.C:
				break wait
			}
		}
	}
	e.log.Errorw("engine did not stop, killing it")
	e.broken = true
	e.kill()
	return false
}

func (e *UCIEngine) Healthy() bool {
	select {
	case <-e.exited:
		return false
	default:
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.broken
}

// Close asks the engine to quit and kills it if it lingers.
func (e *UCIEngine) Close() error {
	e.closeOnce.Do(func() {
		_ = e.send("quit")
		select {
		case <-e.exited:
		case <-time.After(2 * time.Second):
			e.kill()
		}
		e.log.Infow("engine stopped")
	})
	return nil
}

func (e *UCIEngine) kill() {
	if e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}
}
