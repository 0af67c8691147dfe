package session

import (
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/mangiafuoco/pkg/costs"
	"github.com/go-go-golems/mangiafuoco/pkg/events"
	"github.com/go-go-golems/mangiafuoco/pkg/turns"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Invariant violations. These are programming errors (duplicate ids from
// the backend, double completion in the loop), surfaced distinctly from
// operational faults so callers can treat them as defects.
var (
	ErrDuplicateToolCall = errors.New("duplicate tool call id")
	ErrUnknownToolCall   = errors.New("unknown tool call id")
	ErrAlreadyTerminal   = errors.New("tool call already in a terminal status")
	ErrNotTerminalStatus = errors.New("completion status is not terminal")
)

// Session is the mutable state of one turn: accumulated answer and thinking
// text, tool-call records, the cancellation flag and the cost ledger. It is
// owned exclusively by the orchestrator for the lifetime of one turn and
// discarded after finalization; it is never shared across turns.
//
// All methods are safe for concurrent use: the transport may request
// cancellation while the orchestrator applies deltas.
type Session struct {
	mu sync.Mutex

	id     string
	ledger *costs.Ledger
	sinks  []events.EventSink
	meta   events.EventMetadata

	text     strings.Builder
	thinking strings.Builder

	records []*turns.ToolCallRecord
	index   map[string]*turns.ToolCallRecord

	cancelled    bool
	cancelReason string

	iterations        int
	stopReason        turns.StopReason
	needsContinuation bool
	faultKind         string
	faultDetail       string
}

type Option func(*Session)

// WithSinks attaches transport sinks notified on every delta.
func WithSinks(sinks ...events.EventSink) Option {
	return func(s *Session) { s.sinks = append(s.sinks, sinks...) }
}

// WithMetadata sets the event metadata stamped on every published event.
func WithMetadata(meta events.EventMetadata) Option {
	return func(s *Session) { s.meta = meta }
}

func New(id string, ledger *costs.Ledger, opts ...Option) *Session {
	s := &Session{
		id:     id,
		ledger: ledger,
		index:  map[string]*turns.ToolCallRecord{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.meta.TurnID == "" {
		s.meta.TurnID = id
	}
	return s
}

func (s *Session) ID() string { return s.id }

// Ledger exposes the turn's cost accumulator.
func (s *Session) Ledger() *costs.Ledger { return s.ledger }

func (s *Session) publish(event events.Event) {
	for _, sink := range s.sinks {
		if err := sink.PublishEvent(event); err != nil {
			log.Warn().Err(err).Str("event_type", string(event.Type())).Msg("session: failed to publish event to sink")
		}
	}
}

// ApplyTextDelta appends answer text and notifies the sinks. Every delta is
// forwarded; throttling and rendering are the transport's job.
func (s *Session) ApplyTextDelta(delta string) {
	s.mu.Lock()
	s.text.WriteString(delta)
	completion := s.text.String()
	s.mu.Unlock()

	s.publish(events.NewPartialCompletionEvent(s.meta, delta, completion))
}

// ApplyThinkingDelta appends reasoning text and notifies the sinks.
func (s *Session) ApplyThinkingDelta(delta string) {
	s.mu.Lock()
	s.thinking.WriteString(delta)
	s.mu.Unlock()

	s.publish(events.NewPartialThinkingEvent(s.meta, delta))
}

// BeginToolCall creates a pending ToolCallRecord for a model-requested
// invocation. The id is supplied by the backend and must be unique within
// the turn. Tool activity events are not emitted here: the dispatcher
// publishes them when execution actually starts.
func (s *Session) BeginToolCall(id, name string, input []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.index[id]; exists {
		return errors.Wrapf(ErrDuplicateToolCall, "id %s", id)
	}
	record := &turns.ToolCallRecord{
		ID:     id,
		Name:   name,
		Input:  append([]byte(nil), input...),
		Status: turns.ToolCallPending,
	}
	s.records = append(s.records, record)
	s.index[id] = record
	return nil
}

// MarkToolCallRunning transitions a pending record to running when its
// dispatch starts.
func (s *Session) MarkToolCallRunning(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, exists := s.index[id]
	if !exists {
		return errors.Wrapf(ErrUnknownToolCall, "id %s", id)
	}
	if record.Status.Terminal() {
		return errors.Wrapf(ErrAlreadyTerminal, "id %s", id)
	}
	record.Status = turns.ToolCallRunning
	return nil
}

// Completion carries the terminal state for one tool call.
type Completion struct {
	Status      turns.ToolCallStatus
	Result      string
	ErrorDetail string
	Duration    time.Duration
	Cost        float64
}

// CompleteToolCall transitions a record to a terminal status exactly once
// and books the attributed cost into the ledger.
func (s *Session) CompleteToolCall(id string, completion Completion) error {
	if !completion.Status.Terminal() {
		return errors.Wrapf(ErrNotTerminalStatus, "id %s status %s", id, completion.Status)
	}

	s.mu.Lock()
	record, exists := s.index[id]
	if !exists {
		s.mu.Unlock()
		return errors.Wrapf(ErrUnknownToolCall, "id %s", id)
	}
	if record.Status.Terminal() {
		s.mu.Unlock()
		return errors.Wrapf(ErrAlreadyTerminal, "id %s", id)
	}
	record.Status = completion.Status
	record.Result = completion.Result
	record.ErrorDetail = completion.ErrorDetail
	record.Duration = completion.Duration
	record.Cost = completion.Cost
	name := record.Name
	s.mu.Unlock()

	s.ledger.AddToolCost(name, completion.Cost)
	return nil
}

// FailPending terminates every non-terminal record as failed with the given
// detail and zero cost. Used on the cancellation path so finalization never
// leaves orphaned records.
func (s *Session) FailPending(detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.records {
		if !record.Status.Terminal() {
			record.Status = turns.ToolCallFailed
			record.ErrorDetail = detail
		}
	}
}

// RequestCancellation flips the cancellation flag. Idempotent; the first
// reason wins. The flag is monotonic and never reverts.
func (s *Session) RequestCancellation(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	s.cancelled = true
	s.cancelReason = reason
	if s.cancelReason == "" {
		s.cancelReason = "cancelled"
	}
	log.Debug().Str("turn_id", s.id).Str("reason", s.cancelReason).Msg("session: cancellation requested")
}

// Cancelled is polled by the orchestrator between steps.
func (s *Session) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *Session) CancelReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelReason
}

// IncrementIteration bumps and returns the loop iteration counter.
func (s *Session) IncrementIteration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iterations++
	return s.iterations
}

func (s *Session) SetStopReason(reason turns.StopReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopReason = reason
}

func (s *Session) SetNeedsContinuation(needs bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.needsContinuation = needs
}

// SetFault annotates the turn with a transient backend fault.
func (s *Session) SetFault(kind, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faultKind = kind
	s.faultDetail = detail
}

// PendingToolCalls returns copies of the records still awaiting dispatch.
func (s *Session) PendingToolCalls() []turns.ToolCallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []turns.ToolCallRecord
	for _, record := range s.records {
		if record.Status == turns.ToolCallPending {
			out = append(out, *record)
		}
	}
	return out
}

// Snapshot produces an immutable Result view of the session. It is used
// both for normal finalization and for cancellation finalization, and may
// be called at any point.
func (s *Session) Snapshot() *turns.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &turns.Result{
		TurnID:            s.id,
		Text:              s.text.String(),
		Thinking:          s.thinking.String(),
		StopReason:        s.stopReason,
		NeedsContinuation: s.needsContinuation,
		CancelReason:      s.cancelReason,
		FaultKind:         s.faultKind,
		FaultDetail:       s.faultDetail,
		Iterations:        s.iterations,
	}
	if len(s.records) > 0 {
		copied := make([]turns.ToolCallRecord, len(s.records))
		for i, record := range s.records {
			copied[i] = *clone.Clone(record).(*turns.ToolCallRecord)
		}
		result.ToolCalls = copied
	}

	total := s.ledger.Total()
	result.Usage = total.Usage
	result.ToolCost = total.ToolUnits
	return result
}
