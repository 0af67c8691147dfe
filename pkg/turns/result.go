package turns

import "github.com/go-go-golems/mangiafuoco/pkg/costs"

// StopReason classifies why the backend halted generation for one request.
type StopReason string

const (
	StopEndTurn         StopReason = "end_turn"
	StopToolUse         StopReason = "tool_use"
	StopMaxTokens       StopReason = "max_tokens"
	StopRefusal         StopReason = "refusal"
	StopContextOverflow StopReason = "context_overflow"
	StopStopSequence    StopReason = "stop_sequence"

	// StopMaxIterations is not a backend signal; it marks a turn that was
	// finalized by the iteration guard.
	StopMaxIterations StopReason = "max_iterations"
)

// Result is the final output of a turn, produced exactly once at loop
// termination. Ownership passes to the transport and billing collaborators.
type Result struct {
	TurnID   string `json:"turn_id" yaml:"turn_id"`
	Text     string `json:"text" yaml:"text"`
	Thinking string `json:"thinking,omitempty" yaml:"thinking,omitempty"`

	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`

	StopReason        StopReason `json:"stop_reason,omitempty" yaml:"stop_reason,omitempty"`
	NeedsContinuation bool       `json:"needs_continuation,omitempty" yaml:"needs_continuation,omitempty"`
	CancelReason      string     `json:"cancel_reason,omitempty" yaml:"cancel_reason,omitempty"`

	// FaultKind and FaultDetail annotate turns that ended on a transient
	// backend fault. Billing still reflects the usage actually incurred.
	FaultKind   string `json:"fault_kind,omitempty" yaml:"fault_kind,omitempty"`
	FaultDetail string `json:"fault_detail,omitempty" yaml:"fault_detail,omitempty"`

	Usage      costs.Usage `json:"usage" yaml:"usage"`
	ToolCost   float64     `json:"tool_cost,omitempty" yaml:"tool_cost,omitempty"`
	Iterations int         `json:"iterations" yaml:"iterations"`
}

// Cancelled reports whether the turn was finalized on the cancellation path.
func (r *Result) Cancelled() bool {
	return r.CancelReason != ""
}
