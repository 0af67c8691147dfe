package turns

import "encoding/json"

// Role identifies the author of a message in the conversation history.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolUse is a tool invocation requested by the model, as it appears in an
// assistant message. Input is the complete JSON argument payload.
type ToolUse struct {
	ID    string          `json:"id" yaml:"id"`
	Name  string          `json:"name" yaml:"name"`
	Input json.RawMessage `json:"input" yaml:"input"`
}

// ToolReturn carries one tool execution result back to the model. IsError
// marks results the model should treat as a failed invocation.
type ToolReturn struct {
	ID      string `json:"id" yaml:"id"`
	Content string `json:"content" yaml:"content"`
	IsError bool   `json:"is_error,omitempty" yaml:"is_error,omitempty"`
}

// Message is one entry of the conversation history sent to the backend.
// Assistant messages may carry tool calls; tool messages carry the matching
// results. A message never mixes calls and results.
type Message struct {
	Role        Role         `json:"role" yaml:"role"`
	Text        string       `json:"text,omitempty" yaml:"text,omitempty"`
	ToolCalls   []ToolUse    `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`
	ToolResults []ToolReturn `json:"tool_results,omitempty" yaml:"tool_results,omitempty"`
}

// NewUserMessage creates a plain user text message.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// NewAssistantMessage creates an assistant message with optional tool calls.
func NewAssistantMessage(text string, calls ...ToolUse) Message {
	return Message{Role: RoleAssistant, Text: text, ToolCalls: calls}
}

// NewToolResultsMessage bundles the results for one tool-call batch. The
// backend protocol requires the full result set for a batch in a single
// message.
func NewToolResultsMessage(results ...ToolReturn) Message {
	return Message{Role: RoleTool, ToolResults: results}
}
