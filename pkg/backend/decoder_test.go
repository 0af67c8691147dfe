package backend

import (
	"testing"

	"github.com/go-go-golems/mangiafuoco/pkg/costs"
	"github.com/go-go-golems/mangiafuoco/pkg/turns"
)

func decodeAll(t *testing.T, d *Decoder, raws []RawEvent) []StreamEvent {
	t.Helper()
	var out []StreamEvent
	for _, raw := range raws {
		evs, err := d.Decode(raw)
		if err != nil {
			t.Fatalf("Decode(%s): %v", raw.Type, err)
		}
		out = append(out, evs...)
	}
	return out
}

func TestDecoder_TextStream(t *testing.T) {
	t.Parallel()

	d := NewDecoder()
	events := decodeAll(t, d, []RawEvent{
		{Type: RawMessageStart},
		{Type: RawContentBlockStart, Index: 0, Block: &RawBlock{Type: BlockText}},
		{Type: RawContentBlockDelta, Index: 0, Text: "Hello"},
		{Type: RawPing},
		{Type: RawContentBlockDelta, Index: 0, Text: ", world"},
		{Type: RawContentBlockStop, Index: 0},
		{Type: RawMessageDelta, StopReason: turns.StopEndTurn, Usage: &costs.Usage{InputTokens: 10, OutputTokens: 5}},
		{Type: RawMessageStop},
	})

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %#v", len(events), events)
	}
	if d1, ok := events[0].(TextDelta); !ok || d1.Text != "Hello" {
		t.Fatalf("expected TextDelta 'Hello', got %#v", events[0])
	}
	stop, ok := events[2].(Stop)
	if !ok {
		t.Fatalf("expected Stop, got %#v", events[2])
	}
	if stop.Reason != turns.StopEndTurn {
		t.Fatalf("expected end_turn, got %s", stop.Reason)
	}
	if stop.Usage.InputTokens != 10 || stop.Usage.OutputTokens != 5 {
		t.Fatalf("usage not accumulated: %+v", stop.Usage)
	}
}

func TestDecoder_BuffersToolInputUntilBlockStop(t *testing.T) {
	t.Parallel()

	d := NewDecoder()
	events := decodeAll(t, d, []RawEvent{
		{Type: RawContentBlockStart, Index: 1, Block: &RawBlock{Type: BlockToolUse, ID: "call-1", Name: "search"}},
		{Type: RawContentBlockDelta, Index: 1, PartialJSON: `{"query":`},
		{Type: RawContentBlockDelta, Index: 1, PartialJSON: `"weather"}`},
	})
	if len(events) != 0 {
		t.Fatalf("partial JSON must not produce events, got %#v", events)
	}

	events = decodeAll(t, d, []RawEvent{{Type: RawContentBlockStop, Index: 1}})
	if len(events) != 1 {
		t.Fatalf("expected 1 event at block stop, got %d", len(events))
	}
	call, ok := events[0].(ToolCallRequested)
	if !ok {
		t.Fatalf("expected ToolCallRequested, got %#v", events[0])
	}
	if call.ID != "call-1" || call.Name != "search" {
		t.Fatalf("wrong call identity: %+v", call)
	}
	if string(call.Input) != `{"query":"weather"}` {
		t.Fatalf("wrong input: %s", call.Input)
	}
}

func TestDecoder_EmptyToolInputBecomesEmptyObject(t *testing.T) {
	t.Parallel()

	d := NewDecoder()
	events := decodeAll(t, d, []RawEvent{
		{Type: RawContentBlockStart, Index: 0, Block: &RawBlock{Type: BlockToolUse, ID: "call-1", Name: "ping"}},
		{Type: RawContentBlockStop, Index: 0},
	})
	call := events[0].(ToolCallRequested)
	if string(call.Input) != "{}" {
		t.Fatalf("expected {}, got %s", call.Input)
	}
}

func TestDecoder_MalformedToolInputIsError(t *testing.T) {
	t.Parallel()

	d := NewDecoder()
	decodeAll(t, d, []RawEvent{
		{Type: RawContentBlockStart, Index: 0, Block: &RawBlock{Type: BlockToolUse, ID: "call-1", Name: "search"}},
		{Type: RawContentBlockDelta, Index: 0, PartialJSON: `{"query":`},
	})
	if _, err := d.Decode(RawEvent{Type: RawContentBlockStop, Index: 0}); err == nil {
		t.Fatalf("expected error for truncated tool input")
	}
}

func TestDecoder_StructuralErrors(t *testing.T) {
	t.Parallel()

	t.Run("duplicate block index", func(t *testing.T) {
		d := NewDecoder()
		decodeAll(t, d, []RawEvent{{Type: RawContentBlockStart, Index: 0, Block: &RawBlock{Type: BlockText}}})
		if _, err := d.Decode(RawEvent{Type: RawContentBlockStart, Index: 0, Block: &RawBlock{Type: BlockText}}); err == nil {
			t.Fatalf("expected duplicate index error")
		}
	})

	t.Run("delta for unopened block", func(t *testing.T) {
		d := NewDecoder()
		if _, err := d.Decode(RawEvent{Type: RawContentBlockDelta, Index: 3, Text: "x"}); err == nil {
			t.Fatalf("expected unopened block error")
		}
	})

	t.Run("message_stop with open blocks", func(t *testing.T) {
		d := NewDecoder()
		decodeAll(t, d, []RawEvent{{Type: RawContentBlockStart, Index: 0, Block: &RawBlock{Type: BlockText}}})
		if _, err := d.Decode(RawEvent{Type: RawMessageStop, StopReason: turns.StopEndTurn}); err == nil {
			t.Fatalf("expected open blocks error")
		}
	})

	t.Run("message_stop without stop reason", func(t *testing.T) {
		d := NewDecoder()
		if _, err := d.Decode(RawEvent{Type: RawMessageStop}); err == nil {
			t.Fatalf("expected missing stop reason error")
		}
	})

	t.Run("events after message_stop", func(t *testing.T) {
		d := NewDecoder()
		decodeAll(t, d, []RawEvent{{Type: RawMessageStop, StopReason: turns.StopEndTurn}})
		if _, err := d.Decode(RawEvent{Type: RawPing}); err == nil {
			t.Fatalf("expected error after message_stop")
		}
	})
}

func TestDecoder_ThinkingDeltas(t *testing.T) {
	t.Parallel()

	d := NewDecoder()
	events := decodeAll(t, d, []RawEvent{
		{Type: RawContentBlockStart, Index: 0, Block: &RawBlock{Type: BlockThinking}},
		{Type: RawContentBlockDelta, Index: 0, Text: "considering..."},
		{Type: RawContentBlockStop, Index: 0},
	})
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if td, ok := events[0].(ThinkingDelta); !ok || td.Text != "considering..." {
		t.Fatalf("expected ThinkingDelta, got %#v", events[0])
	}
}

func TestDecoder_FaultEvent(t *testing.T) {
	t.Parallel()

	d := NewDecoder()
	events := decodeAll(t, d, []RawEvent{
		{Type: RawError, Err: &Fault{Kind: FaultOverloaded, Detail: "server overloaded"}},
	})
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	fe, ok := events[0].(FaultEvent)
	if !ok {
		t.Fatalf("expected FaultEvent, got %#v", events[0])
	}
	if !fe.Fault.Transient() {
		t.Fatalf("overloaded should be transient")
	}

	// Stream is dead after a fault.
	if _, err := d.Decode(RawEvent{Type: RawPing}); err == nil {
		t.Fatalf("expected error after fault")
	}
}

func TestFault_Transient(t *testing.T) {
	t.Parallel()

	for _, kind := range []FaultKind{FaultRateLimited, FaultTimeout, FaultConnection, FaultOverloaded} {
		f := &Fault{Kind: kind}
		if !f.Transient() {
			t.Fatalf("%s should be transient", kind)
		}
		if !f.Reportable() {
			t.Fatalf("%s should be reportable", kind)
		}
	}
	for _, kind := range []FaultKind{FaultInvalidRequest, FaultProtocol} {
		if (&Fault{Kind: kind}).Transient() {
			t.Fatalf("%s faults must not be transient", kind)
		}
	}
	if !(&Fault{Kind: FaultInvalidRequest}).Reportable() {
		t.Fatalf("rejected requests must still produce a readable outcome")
	}
	if (&Fault{Kind: FaultProtocol}).Reportable() {
		t.Fatalf("protocol faults must propagate, not annotate")
	}
}
