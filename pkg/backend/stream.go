package backend

import (
	"encoding/json"

	"github.com/go-go-golems/mangiafuoco/pkg/costs"
	"github.com/go-go-golems/mangiafuoco/pkg/turns"
)

// StreamEvent is the semantic delta produced by the Decoder. It is a sealed
// union: the concrete types below are the only variants.
type StreamEvent interface {
	streamEvent()
}

// TextDelta is a fragment of user-visible answer text.
type TextDelta struct {
	Text string
}

// ThinkingDelta is a fragment of model-internal reasoning text. Tracked for
// cost; transports decide whether to show it.
type ThinkingDelta struct {
	Text string
}

// ToolCallRequested is a complete tool invocation request. It is only
// emitted once the full name and input payload have arrived; partial JSON
// fragments are buffered inside the decoder and never exposed.
type ToolCallRequested struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Stop is the terminal signal for one request, carrying the stop reason and
// the usage the backend reported for it.
type Stop struct {
	Reason turns.StopReason
	Usage  costs.Usage
}

// FaultEvent surfaces a transport-level fault from the stream. The decoder
// does no retry itself; faults propagate upward.
type FaultEvent struct {
	Fault Fault
}

func (TextDelta) streamEvent()         {}
func (ThinkingDelta) streamEvent()     {}
func (ToolCallRequested) streamEvent() {}
func (Stop) streamEvent()              {}
func (FaultEvent) streamEvent()        {}
