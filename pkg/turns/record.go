package turns

import (
	"encoding/json"
	"time"
)

// ToolCallStatus tracks the lifecycle of one tool invocation within a turn.
type ToolCallStatus string

const (
	ToolCallPending   ToolCallStatus = "pending"
	ToolCallRunning   ToolCallStatus = "running"
	ToolCallSucceeded ToolCallStatus = "succeeded"
	ToolCallFailed    ToolCallStatus = "failed"
	ToolCallTimedOut  ToolCallStatus = "timed_out"
)

// Terminal reports whether the status is one of the three end states. A
// record transitions to a terminal status exactly once and is immutable
// afterwards.
func (s ToolCallStatus) Terminal() bool {
	switch s {
	case ToolCallSucceeded, ToolCallFailed, ToolCallTimedOut:
		return true
	}
	return false
}

// ToolCallRecord is the session-side record of one tool invocation. The ID
// is supplied by the model backend and is unique within the turn.
type ToolCallRecord struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Input       json.RawMessage `json:"input" yaml:"input"`
	Status      ToolCallStatus  `json:"status" yaml:"status"`
	Result      string          `json:"result,omitempty" yaml:"result,omitempty"`
	ErrorDetail string          `json:"error_detail,omitempty" yaml:"error_detail,omitempty"`
	Duration    time.Duration   `json:"duration,omitempty" yaml:"duration,omitempty"`
	Cost        float64         `json:"cost,omitempty" yaml:"cost,omitempty"`
}
