package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-go-golems/mangiafuoco/pkg/backend"
	"github.com/go-go-golems/mangiafuoco/pkg/costs"
	"github.com/go-go-golems/mangiafuoco/pkg/events"
	"github.com/go-go-golems/mangiafuoco/pkg/session"
	"github.com/go-go-golems/mangiafuoco/pkg/tools"
	"github.com/go-go-golems/mangiafuoco/pkg/turns"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// drainStream discards the rest of an abandoned event stream so the backend
// pump can finish and release its connection.
func drainStream(ch <-chan backend.RawEvent) {
	go func() {
		for range ch {
		}
	}()
}

// RunOption configures a single RunTurn invocation.
type RunOption func(*runConfig)

type runConfig struct {
	cancelCh <-chan string
}

// WithCancelSignal wires an external cancellation channel into the turn. The
// first value received becomes the cancel reason; the turn stops dispatching
// new work at the next step boundary while in-flight tool calls run to
// completion.
func WithCancelSignal(ch <-chan string) RunOption {
	return func(c *runConfig) { c.cancelCh = ch }
}

// RunTurn drives one turn to completion: submit the request, consume the
// response stream, dispatch any requested tool batch, append the results and
// continue, until a terminal stop reason, the iteration guard, a fault or a
// cancellation ends the loop. The returned Result is always non-nil except on
// structural errors (backend protocol violations, invariant violations),
// which abort the turn with a nil Result.
func (o *Orchestrator) RunTurn(ctx context.Context, req *turns.Request, opts ...RunOption) (*turns.Result, error) {
	cfg := &runConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	turnID := uuid.New().String()
	ledger := costs.NewLedger()
	meta := events.EventMetadata{ID: uuid.New(), TurnID: turnID, Model: req.Model}
	sess := session.New(turnID, ledger, session.WithSinks(o.sinks...), session.WithMetadata(meta))

	// Tool activity is published through context sinks: the dispatcher (and
	// any tool that cares to) emits tool-call and tool-result events stamped
	// with this turn's metadata.
	ctx = events.WithEventSinks(ctx, o.sinks...)
	ctx = events.WithEventMetadata(ctx, meta)

	// cancelled polls the cancel signal and folds ctx cancellation into the
	// session flag so both paths finalize identically. It is called at every
	// step boundary; once the flag is set it never reverts.
	cancelled := func() bool {
		if ctx.Err() != nil {
			sess.RequestCancellation("context cancelled")
		}
		if cfg.cancelCh != nil {
			select {
			case reason, ok := <-cfg.cancelCh:
				if ok {
					sess.RequestCancellation(reason)
				}
			default:
			}
		}
		return sess.Cancelled()
	}

	working := req.Clone()
	if len(working.Tools) == 0 && o.registry != nil {
		descriptors, err := o.registry.Descriptors()
		if err != nil {
			return nil, errors.Wrap(err, "collect tool descriptors")
		}
		working.Tools = descriptors
	}

	if o.estimator != nil {
		log.Debug().
			Str("turn_id", turnID).
			Int("estimated_input_tokens", o.estimateRequest(working)).
			Msg("orchestrator: starting turn")
	}

	o.publish(events.NewStartEvent(meta))

	var finalErr error
	continuations := 0

loop:
	for iteration := 1; ; iteration++ {
		if iteration > o.maxIterations {
			sess.SetStopReason(turns.StopMaxIterations)
			finalErr = errors.Wrapf(ErrMaxIterations, "after %d iterations", o.maxIterations)
			break
		}
		if cancelled() {
			break
		}
		sess.IncrementIteration()

		log.Debug().
			Str("turn_id", turnID).
			Str("phase", string(PhaseRequesting)).
			Int("iteration", iteration).
			Msg("orchestrator: phase transition")

		eventCh, err := o.backend.Submit(ctx, working)
		if err != nil {
			var fault *backend.Fault
			if errors.As(err, &fault) && fault.Reportable() {
				sess.SetFault(string(fault.Kind), fault.Detail)
				break
			}
			return nil, errors.Wrap(err, "submit request")
		}

		log.Debug().
			Str("turn_id", turnID).
			Str("phase", string(PhaseStreaming)).
			Int("iteration", iteration).
			Msg("orchestrator: phase transition")

		decoder := backend.NewDecoder()
		var iterText strings.Builder
		var batch []backend.ToolCallRequested
		var stop *backend.Stop
		var streamFault *backend.Fault

	consume:
		for raw := range eventCh {
			decoded, err := decoder.Decode(raw)
			if err != nil {
				drainStream(eventCh)
				return nil, errors.Wrap(err, "decode stream")
			}
			for _, ev := range decoded {
				switch e := ev.(type) {
				case backend.TextDelta:
					iterText.WriteString(e.Text)
					sess.ApplyTextDelta(e.Text)
				case backend.ThinkingDelta:
					sess.ApplyThinkingDelta(e.Text)
				case backend.ToolCallRequested:
					if err := sess.BeginToolCall(e.ID, e.Name, e.Input); err != nil {
						drainStream(eventCh)
						return nil, err
					}
					batch = append(batch, e)
				case backend.Stop:
					s := e
					stop = &s
					ledger.AddAPIUsage(s.Usage.InputTokens, s.Usage.OutputTokens, s.Usage.ReasoningTokens)
				case backend.FaultEvent:
					f := e.Fault
					streamFault = &f
				}
			}
			if cancelled() {
				drainStream(eventCh)
				break consume
			}
		}

		if streamFault != nil {
			if !streamFault.Reportable() {
				return nil, streamFault
			}
			sess.SetFault(string(streamFault.Kind), streamFault.Detail)
			break
		}
		if cancelled() {
			break
		}
		if stop == nil {
			sess.SetFault(string(backend.FaultConnection), "stream ended without a stop reason")
			break
		}

		switch stop.Reason {
		case turns.StopToolUse:
			if len(batch) == 0 {
				return nil, ErrEmptyToolBatch
			}

			log.Debug().
				Str("turn_id", turnID).
				Str("phase", string(PhaseDispatching)).
				Int("batch_size", len(batch)).
				Msg("orchestrator: phase transition")

			calls := make([]tools.Call, len(batch))
			for i, tc := range batch {
				if err := sess.MarkToolCallRunning(tc.ID); err != nil {
					return nil, err
				}
				calls[i] = tools.Call{ID: tc.ID, Name: tc.Name, Input: tc.Input}
			}

			if o.dispatcher == nil {
				return nil, errors.New("tool_use stop reason but no dispatcher configured")
			}
			outcomes := o.dispatcher.ExecuteBatch(ctx, calls)
			if len(outcomes) != len(calls) {
				return nil, errors.Wrapf(ErrIncompleteBatch, "%d calls, %d outcomes", len(calls), len(outcomes))
			}

			log.Debug().
				Str("turn_id", turnID).
				Str("phase", string(PhaseContinuing)).
				Msg("orchestrator: phase transition")

			toolUses := make([]turns.ToolUse, len(batch))
			results := make([]turns.ToolReturn, len(outcomes))
			for i, outcome := range outcomes {
				if err := sess.CompleteToolCall(outcome.ID, session.Completion{
					Status:      outcome.Status,
					Result:      outcome.Result,
					ErrorDetail: outcome.Err,
					Duration:    outcome.Duration,
					Cost:        outcome.Cost,
				}); err != nil {
					return nil, err
				}

				toolUses[i] = turns.ToolUse{ID: batch[i].ID, Name: batch[i].Name, Input: batch[i].Input}
				if outcome.Status == turns.ToolCallSucceeded {
					results[i] = turns.ToolReturn{ID: outcome.ID, Content: outcome.Result}
				} else {
					results[i] = turns.ToolReturn{ID: outcome.ID, Content: outcome.Err, IsError: true}
				}
			}

			working.Messages = append(working.Messages,
				turns.NewAssistantMessage(iterText.String(), toolUses...),
				turns.NewToolResultsMessage(results...),
			)

			if cancelled() {
				break loop
			}
			continue

		case turns.StopMaxTokens:
			if o.autoContinue && continuations < o.maxContinuations {
				continuations++
				log.Debug().
					Str("turn_id", turnID).
					Int("continuation", continuations).
					Msg("orchestrator: continuing truncated response")
				working.Messages = append(working.Messages, turns.NewAssistantMessage(iterText.String()))
				continue
			}
			sess.SetStopReason(stop.Reason)
			sess.SetNeedsContinuation(true)
			break loop

		default:
			sess.SetStopReason(stop.Reason)
			break loop
		}
	}

	log.Debug().
		Str("turn_id", turnID).
		Str("phase", string(PhaseFinalizing)).
		Msg("orchestrator: phase transition")

	sess.FailPending("cancelled before dispatch")
	result := sess.Snapshot()

	switch {
	case result.Cancelled():
		o.publish(events.NewInterruptEvent(meta, result.Text, result.CancelReason))
	case result.FaultKind != "":
		o.publish(events.NewErrorEvent(meta, fmt.Errorf("backend fault (%s): %s", result.FaultKind, result.FaultDetail)))
	default:
		o.publish(events.NewFinalEvent(meta, result.Text, result.Usage))
	}

	if o.finalizer != nil {
		if err := o.finalizer(result); err != nil {
			log.Warn().Err(err).Str("turn_id", turnID).Msg("orchestrator: finalizer failed")
		}
	}

	return result, finalErr
}
