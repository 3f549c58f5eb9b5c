// Package enginetest provides an in-process engine and pool for tests of
// code that searches positions.
package enginetest

import (
	"context"
	"errors"
	"sync"

	"babelfish/internal/domain/analysis"
	apperrors "babelfish/internal/errors"
	"babelfish/internal/repository"
)

// Engine answers searches from a script keyed by position. Positions
// without a script get the first legal move scored +10 for the side to
// move.
type Engine struct {
	// FailAfter makes every search after the first FailAfter ones fail.
	FailAfter int
	// FailWith replaces the default engine error of a failing search.
	FailWith error

	rules   *repository.Rules
	mu      sync.Mutex
	script  map[string]analysis.RawResult
	budgets []analysis.SearchBudget
}

func NewEngine() *Engine {
	return &Engine{rules: repository.NewRules(), script: map[string]analysis.RawResult{}}
}

// CP is a centipawn line from the side to move's point of view.
func CP(v int, pv ...string) analysis.RawLine {
	return analysis.RawLine{Score: analysis.RawScore{Centipawns: v}, PV: pv}
}

// Mate is a mate line from the side to move's point of view.
func Mate(n int, pv ...string) analysis.RawLine {
	return analysis.RawLine{Score: analysis.RawScore{Mate: n, IsMate: true}, PV: pv}
}

// On scripts the lines reported for fen, best first.
func (e *Engine) On(fen string, lines ...analysis.RawLine) *Engine {
	for i := range lines {
		lines[i].Rank = i + 1
		if lines[i].Depth == 0 {
			lines[i].Depth = 12
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.script[key(fen)] = analysis.RawResult{BestMove: lines[0].PV[0], Lines: lines}
	return e
}

func key(fen string) string {
	return analysis.Position{FEN: fen}.RepetitionKey()
}

func (e *Engine) Evaluate(_ context.Context, fen string, budget analysis.SearchBudget) (analysis.RawResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.budgets = append(e.budgets, budget)
	if e.FailAfter > 0 && len(e.budgets) > e.FailAfter {
		if e.FailWith != nil {
			return analysis.RawResult{}, e.FailWith
		}
		return analysis.RawResult{}, apperrors.NewEngineError("search", errors.New("engine crashed"))
	}

	if result, ok := e.script[key(fen)]; ok {
		if len(result.Lines) > budget.MultiPV {
			result.Lines = result.Lines[:budget.MultiPV]
		}
		return result, nil
	}

	pos, err := e.rules.Parse(fen)
	if err != nil {
		return analysis.RawResult{}, err
	}
	legal, err := e.rules.LegalMoves(pos)
	if err != nil || len(legal.All) == 0 {
		return analysis.RawResult{}, errors.New("no legal moves to play")
	}
	_, uci, err := e.rules.Resolve(pos, legal.All[0])
	if err != nil {
		return analysis.RawResult{}, err
	}
	return analysis.RawResult{
		BestMove: uci,
		Lines:    []analysis.RawLine{{Rank: 1, Depth: 12, Score: analysis.RawScore{Centipawns: 10}, PV: []string{uci}}},
	}, nil
}

func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.budgets)
}

func (e *Engine) LastBudget() analysis.SearchBudget {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.budgets) == 0 {
		return analysis.SearchBudget{}
	}
	return e.budgets[len(e.budgets)-1]
}

// Pool lends Engine to every caller, or fails every lease with Err.
type Pool struct {
	Engine analysis.Engine
	Err    error

	mu     sync.Mutex
	leases int
}

func (p *Pool) Do(_ context.Context, fn func(analysis.Engine) error) error {
	if p.Err != nil {
		return p.Err
	}
	p.mu.Lock()
	p.leases++
	p.mu.Unlock()
	return fn(p.Engine)
}

func (p *Pool) Leases() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.leases
}
