package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPosition   = errors.New("invalid position")
	ErrIllegalMove       = errors.New("illegal move")
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrCacheMiss         = errors.New("cache miss")
	ErrPoolClosed        = errors.New("engine pool closed")
)

// EngineError records which engine operation failed. It always matches
// ErrEngineUnavailable.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("engine %s failed", e.Op)
	}
	return fmt.Sprintf("engine %s failed: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() []error {
	return []error{ErrEngineUnavailable, e.Err}
}

func NewEngineError(op string, err error) error {
	return &EngineError{Op: op, Err: err}
}

func InvalidPosition(fen string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %q", ErrInvalidPosition, fen)
	}
	return fmt.Errorf("%w: %q: %v", ErrInvalidPosition, fen, cause)
}

func IllegalMove(move, fen string) error {
	return fmt.Errorf("%w: %q in %q", ErrIllegalMove, move, fen)
}

func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Code names the kind of err for clients: invalid_position, illegal_move,
// invalid_argument, engine_unavailable or internal.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPosition):
		return "invalid_position"
	case errors.Is(err, ErrIllegalMove):
		return "illegal_move"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrEngineUnavailable), errors.Is(err, ErrPoolClosed):
		return "engine_unavailable"
	}
	return "internal"
}
