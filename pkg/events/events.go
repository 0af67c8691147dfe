package events

import (
	"encoding/json"

	"github.com/go-go-golems/mangiafuoco/pkg/costs"
	"github.com/go-go-golems/mangiafuoco/pkg/turns"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type EventType string

const (
	EventTypeStart             EventType = "start"
	EventTypePartialCompletion EventType = "partial"
	// Separate partial stream for reasoning/thinking text
	EventTypePartialThinking EventType = "partial-thinking"

	// Model requested a tool call (received from the backend stream)
	EventTypeToolCall EventType = "tool-call"
	// A locally executed tool call reached a terminal status
	EventTypeToolResult EventType = "tool-result"

	EventTypeFinal     EventType = "final"
	EventTypeInterrupt EventType = "interrupt"
	EventTypeError     EventType = "error"
)

// EventMetadata correlates an event with the turn that produced it.
type EventMetadata struct {
	ID     uuid.UUID `json:"id"`
	TurnID string    `json:"turn_id,omitempty"`
	Model  string    `json:"model,omitempty"`
}

func (m EventMetadata) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("id", m.ID.String())
	if m.TurnID != "" {
		ev.Str("turn_id", m.TurnID)
	}
	if m.Model != "" {
		ev.Str("model", m.Model)
	}
}

type Event interface {
	Type() EventType
	Metadata() EventMetadata
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta"`
}

func (e *EventImpl) Type() EventType         { return e.Type_ }
func (e *EventImpl) Metadata() EventMetadata { return e.Metadata_ }

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

var _ Event = &EventImpl{}

type EventStart struct {
	EventImpl
}

func NewStartEvent(metadata EventMetadata) *EventStart {
	return &EventStart{EventImpl: EventImpl{Type_: EventTypeStart, Metadata_: metadata}}
}

type EventPartialCompletion struct {
	EventImpl
	Delta string `json:"delta"`
	// Completion is the full answer text accumulated so far.
	Completion string `json:"completion"`
}

func NewPartialCompletionEvent(metadata EventMetadata, delta, completion string) *EventPartialCompletion {
	return &EventPartialCompletion{
		EventImpl:  EventImpl{Type_: EventTypePartialCompletion, Metadata_: metadata},
		Delta:      delta,
		Completion: completion,
	}
}

type EventPartialThinking struct {
	EventImpl
	Delta string `json:"delta"`
}

func NewPartialThinkingEvent(metadata EventMetadata, delta string) *EventPartialThinking {
	return &EventPartialThinking{
		EventImpl: EventImpl{Type_: EventTypePartialThinking, Metadata_: metadata},
		Delta:     delta,
	}
}

// ToolCall is the event-payload shape of a tool invocation request.
type ToolCall struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input string `json:"input"`
}

type EventToolCall struct {
	EventImpl
	ToolCall ToolCall `json:"tool_call"`
}

func NewToolCallEvent(metadata EventMetadata, toolCall ToolCall) *EventToolCall {
	return &EventToolCall{
		EventImpl: EventImpl{Type_: EventTypeToolCall, Metadata_: metadata},
		ToolCall:  toolCall,
	}
}

// ToolResult is the event-payload shape of a finished tool invocation.
type ToolResult struct {
	ID     string               `json:"id"`
	Status turns.ToolCallStatus `json:"status"`
	Result string               `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`
}

type EventToolResult struct {
	EventImpl
	ToolResult ToolResult `json:"tool_result"`
}

func NewToolResultEvent(metadata EventMetadata, toolResult ToolResult) *EventToolResult {
	return &EventToolResult{
		EventImpl:  EventImpl{Type_: EventTypeToolResult, Metadata_: metadata},
		ToolResult: toolResult,
	}
}

type EventFinal struct {
	EventImpl
	Text  string      `json:"text"`
	Usage costs.Usage `json:"usage"`
}

func NewFinalEvent(metadata EventMetadata, text string, usage costs.Usage) *EventFinal {
	return &EventFinal{
		EventImpl: EventImpl{Type_: EventTypeFinal, Metadata_: metadata},
		Text:      text,
		Usage:     usage,
	}
}

type EventInterrupt struct {
	EventImpl
	Text   string `json:"text"`
	Reason string `json:"reason,omitempty"`
}

func NewInterruptEvent(metadata EventMetadata, text, reason string) *EventInterrupt {
	return &EventInterrupt{
		EventImpl: EventImpl{Type_: EventTypeInterrupt, Metadata_: metadata},
		Text:      text,
		Reason:    reason,
	}
}

type EventError struct {
	EventImpl
	ErrorString string `json:"error_string"`
}

func NewErrorEvent(metadata EventMetadata, err error) *EventError {
	return &EventError{
		EventImpl:   EventImpl{Type_: EventTypeError, Metadata_: metadata},
		ErrorString: err.Error(),
	}
}

// NewEventFromJson decodes a serialized event back into its concrete type,
// for consumers on the far side of a message bus.
func NewEventFromJson(b []byte) (Event, error) {
	var head EventImpl
	if err := json.Unmarshal(b, &head); err != nil {
		return nil, errors.Wrap(err, "decode event envelope")
	}

	var ev Event
	switch head.Type_ {
	case EventTypeStart:
		ev = &EventStart{}
	case EventTypePartialCompletion:
		ev = &EventPartialCompletion{}
	case EventTypePartialThinking:
		ev = &EventPartialThinking{}
	case EventTypeToolCall:
		ev = &EventToolCall{}
	case EventTypeToolResult:
		ev = &EventToolResult{}
	case EventTypeFinal:
		ev = &EventFinal{}
	case EventTypeInterrupt:
		ev = &EventInterrupt{}
	case EventTypeError:
		ev = &EventError{}
	default:
		return nil, errors.Errorf("unknown event type: %s", head.Type_)
	}
	if err := json.Unmarshal(b, ev); err != nil {
		return nil, errors.Wrapf(err, "decode %s event", head.Type_)
	}
	return ev, nil
}
