package orchestrator

import (
	"github.com/go-go-golems/mangiafuoco/pkg/session"
	"github.com/pkg/errors"
)

var (
	// ErrMaxIterations marks a turn finalized by the iteration guard: the
	// model kept requesting tools past the configured ceiling. RunTurn
	// still returns the Result snapshot alongside this error.
	ErrMaxIterations = errors.New("maximum loop iterations reached")

	// ErrEmptyToolBatch marks a tool_use stop with no accumulated tool
	// call requests. That is a backend protocol violation.
	ErrEmptyToolBatch = errors.New("tool_use stop reason without tool calls")

	// ErrIncompleteBatch marks a dispatcher result set that does not match
	// the request batch 1:1. The backend requires a complete result set
	// for a batch; a partial one is fatal to the turn.
	ErrIncompleteBatch = errors.New("incomplete tool result batch")

	ErrNoBackend = errors.New("orchestrator requires a backend client")
)

// IsInvariantViolation reports whether an error from RunTurn is a
// programming-invariant violation rather than an operational condition.
// These should be treated as bug reports, not user-facing messages.
func IsInvariantViolation(err error) bool {
	switch {
	case errors.Is(err, ErrMaxIterations),
		errors.Is(err, ErrEmptyToolBatch),
		errors.Is(err, ErrIncompleteBatch),
		errors.Is(err, session.ErrDuplicateToolCall),
		errors.Is(err, session.ErrUnknownToolCall),
		errors.Is(err, session.ErrAlreadyTerminal),
		errors.Is(err, session.ErrNotTerminalStatus):
		return true
	}
	return false
}
