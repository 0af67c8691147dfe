package turns

import (
	"encoding/json"

	"github.com/huandu/go-clone"
)

// ToolDescriptor is the wire-facing shape of a registered tool: everything
// the backend needs to offer the tool to the model, and nothing executable.
type ToolDescriptor struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description" yaml:"description"`
	Schema      json.RawMessage `json:"schema" yaml:"schema"`
}

// Request is the immutable input to one orchestration run. The orchestrator
// never mutates the request it was handed; continuations are built on clones.
type Request struct {
	Messages       []Message        `json:"messages" yaml:"messages"`
	System         string           `json:"system,omitempty" yaml:"system,omitempty"`
	Model          string           `json:"model" yaml:"model"`
	MaxTokens      int              `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	ThinkingBudget int              `json:"thinking_budget,omitempty" yaml:"thinking_budget,omitempty"`
	Tools          []ToolDescriptor `json:"tools,omitempty" yaml:"tools,omitempty"`
}

// Clone returns a deep copy suitable for appending continuation messages
// without touching the caller's request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	return clone.Clone(r).(*Request)
}
