package session

import (
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/mangiafuoco/pkg/costs"
	"github.com/go-go-golems/mangiafuoco/pkg/events"
	"github.com/go-go-golems/mangiafuoco/pkg/turns"
	"github.com/pkg/errors"
)

type capturingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *capturingSink) PublishEvent(e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *capturingSink) byType(t events.EventType) []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	for _, e := range s.events {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

func TestSession_DeltasAccumulateAndNotify(t *testing.T) {
	t.Parallel()

	sink := &capturingSink{}
	s := New("turn-1", costs.NewLedger(), WithSinks(sink))

	s.ApplyTextDelta("Hello")
	s.ApplyTextDelta(", world")
	s.ApplyThinkingDelta("hmm")

	result := s.Snapshot()
	if result.Text != "Hello, world" {
		t.Fatalf("wrong text: %q", result.Text)
	}
	if result.Thinking != "hmm" {
		t.Fatalf("wrong thinking: %q", result.Thinking)
	}

	partials := sink.byType(events.EventTypePartialCompletion)
	if len(partials) != 2 {
		t.Fatalf("expected one event per text delta, got %d", len(partials))
	}
	second := partials[1].(*events.EventPartialCompletion)
	if second.Delta != ", world" || second.Completion != "Hello, world" {
		t.Fatalf("wrong partial payload: %+v", second)
	}
	if got := len(sink.byType(events.EventTypePartialThinking)); got != 1 {
		t.Fatalf("expected 1 thinking event, got %d", got)
	}
}

func TestSession_ToolCallLifecycle(t *testing.T) {
	t.Parallel()

	ledger := costs.NewLedger()
	sink := &capturingSink{}
	s := New("turn-1", ledger, WithSinks(sink))

	if err := s.BeginToolCall("call-1", "search", []byte(`{"q":"x"}`)); err != nil {
		t.Fatalf("BeginToolCall: %v", err)
	}
	if err := s.MarkToolCallRunning("call-1"); err != nil {
		t.Fatalf("MarkToolCallRunning: %v", err)
	}
	err := s.CompleteToolCall("call-1", Completion{
		Status:   turns.ToolCallSucceeded,
		Result:   `{"hits":3}`,
		Duration: 20 * time.Millisecond,
		Cost:     2,
	})
	if err != nil {
		t.Fatalf("CompleteToolCall: %v", err)
	}

	result := s.Snapshot()
	if len(result.ToolCalls) != 1 {
		t.Fatalf("expected 1 record, got %d", len(result.ToolCalls))
	}
	record := result.ToolCalls[0]
	if record.Status != turns.ToolCallSucceeded || record.Result != `{"hits":3}` || record.Cost != 2 {
		t.Fatalf("wrong record: %+v", record)
	}
	if result.ToolCost != 2 {
		t.Fatalf("tool cost not booked: %f", result.ToolCost)
	}
	// The dispatcher is the single publisher of tool activity; the session
	// recording a call must not emit duplicate events.
	if got := len(sink.byType(events.EventTypeToolCall)); got != 0 {
		t.Fatalf("session must not publish tool-call events, got %d", got)
	}
	if got := len(sink.byType(events.EventTypeToolResult)); got != 0 {
		t.Fatalf("session must not publish tool-result events, got %d", got)
	}
}

func TestSession_LifecycleInvariants(t *testing.T) {
	t.Parallel()

	s := New("turn-1", costs.NewLedger())
	if err := s.BeginToolCall("call-1", "search", nil); err != nil {
		t.Fatalf("BeginToolCall: %v", err)
	}

	if err := s.BeginToolCall("call-1", "search", nil); !errors.Is(err, ErrDuplicateToolCall) {
		t.Fatalf("expected ErrDuplicateToolCall, got %v", err)
	}
	if err := s.MarkToolCallRunning("nope"); !errors.Is(err, ErrUnknownToolCall) {
		t.Fatalf("expected ErrUnknownToolCall, got %v", err)
	}
	if err := s.CompleteToolCall("call-1", Completion{Status: turns.ToolCallRunning}); !errors.Is(err, ErrNotTerminalStatus) {
		t.Fatalf("expected ErrNotTerminalStatus, got %v", err)
	}

	if err := s.CompleteToolCall("call-1", Completion{Status: turns.ToolCallSucceeded}); err != nil {
		t.Fatalf("CompleteToolCall: %v", err)
	}
	if err := s.CompleteToolCall("call-1", Completion{Status: turns.ToolCallFailed}); !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
	if err := s.MarkToolCallRunning("call-1"); !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal after completion, got %v", err)
	}
}

func TestSession_CancellationIsIdempotentFirstReasonWins(t *testing.T) {
	t.Parallel()

	s := New("turn-1", costs.NewLedger())
	if s.Cancelled() {
		t.Fatalf("fresh session must not be cancelled")
	}

	s.RequestCancellation("user hit stop")
	s.RequestCancellation("budget exceeded")

	if !s.Cancelled() {
		t.Fatalf("expected cancelled")
	}
	if s.CancelReason() != "user hit stop" {
		t.Fatalf("first reason must win, got %q", s.CancelReason())
	}
	if !s.Snapshot().Cancelled() {
		t.Fatalf("snapshot must carry cancellation")
	}
}

func TestSession_FailPendingTerminatesEverything(t *testing.T) {
	t.Parallel()

	ledger := costs.NewLedger()
	s := New("turn-1", ledger)
	_ = s.BeginToolCall("call-1", "a", nil)
	_ = s.BeginToolCall("call-2", "b", nil)
	_ = s.MarkToolCallRunning("call-2")
	_ = s.CompleteToolCall("call-2", Completion{Status: turns.ToolCallSucceeded, Cost: 1})

	s.FailPending("cancelled before dispatch")

	result := s.Snapshot()
	for _, record := range result.ToolCalls {
		if !record.Status.Terminal() {
			t.Fatalf("record %s not terminal: %s", record.ID, record.Status)
		}
	}
	if result.ToolCalls[0].Status != turns.ToolCallFailed {
		t.Fatalf("pending record should fail, got %s", result.ToolCalls[0].Status)
	}
	if result.ToolCalls[1].Status != turns.ToolCallSucceeded {
		t.Fatalf("terminal record must not be touched, got %s", result.ToolCalls[1].Status)
	}
	if result.ToolCost != 1 {
		t.Fatalf("failed-pending records must not book cost, got %f", result.ToolCost)
	}
}

func TestSession_SnapshotIsACopy(t *testing.T) {
	t.Parallel()

	s := New("turn-1", costs.NewLedger())
	_ = s.BeginToolCall("call-1", "a", []byte(`{}`))

	first := s.Snapshot()
	_ = s.CompleteToolCall("call-1", Completion{Status: turns.ToolCallSucceeded, Result: "later"})

	if first.ToolCalls[0].Status != turns.ToolCallPending {
		t.Fatalf("snapshot must not see later mutations, got %s", first.ToolCalls[0].Status)
	}
}

func TestSession_PendingToolCalls(t *testing.T) {
	t.Parallel()

	s := New("turn-1", costs.NewLedger())
	_ = s.BeginToolCall("call-1", "a", nil)
	_ = s.BeginToolCall("call-2", "b", nil)
	_ = s.CompleteToolCall("call-1", Completion{Status: turns.ToolCallSucceeded})

	pending := s.PendingToolCalls()
	if len(pending) != 1 || pending[0].ID != "call-2" {
		t.Fatalf("expected only call-2 pending, got %+v", pending)
	}
}
