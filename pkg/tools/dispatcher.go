package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-go-golems/mangiafuoco/pkg/events"
	"github.com/go-go-golems/mangiafuoco/pkg/turns"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Call is one tool invocation request from a model response batch.
type Call struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Outcome is the terminal result of one Call. The dispatcher produces
// exactly one Outcome per Call, in input order.
type Outcome struct {
	ID       string
	Status   turns.ToolCallStatus
	Result   string
	Err      string
	Duration time.Duration
	Cost     float64
}

// Dispatcher executes tool-call batches with fan-out/fan-in concurrency.
// Each call runs under its registration's timeout; a single call's failure
// or timeout never aborts its siblings. Starts are gated by an optional
// shared semaphore that bounds in-flight tool executions across all turns;
// a saturated limiter blocks new starts (backpressure), it does not fail
// them.
type Dispatcher struct {
	registry Registry
	limiter  *semaphore.Weighted

	defaultTimeout time.Duration
}

type DispatcherOption func(*Dispatcher)

// WithLimiter installs a shared in-flight limiter. The semaphore queues
// waiters in FIFO order, so no turn can starve another.
func WithLimiter(limiter *semaphore.Weighted) DispatcherOption {
	return func(d *Dispatcher) { d.limiter = limiter }
}

// WithDefaultTimeout overrides the fallback timeout for tools whose
// registration does not declare one.
func WithDefaultTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.defaultTimeout = timeout }
}

func NewDispatcher(registry Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry:       registry,
		defaultTimeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ExecuteBatch runs all calls concurrently and returns one Outcome per
// call, preserving input order. It always returns a complete result set:
// the backend protocol treats a partial set for a batch as a violation.
func (d *Dispatcher) ExecuteBatch(ctx context.Context, calls []Call) []Outcome {
	if len(calls) == 0 {
		return nil
	}

	log.Debug().Int("batch_size", len(calls)).Msg("dispatcher: executing tool batch")

	outcomes := make([]Outcome, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c Call) {
			defer wg.Done()
			outcomes[idx] = d.execute(ctx, c)
		}(i, call)
	}
	wg.Wait()

	return outcomes
}

func (d *Dispatcher) execute(ctx context.Context, call Call) Outcome {
	start := time.Now()

	fail := func(detail string) Outcome {
		return Outcome{
			ID:       call.ID,
			Status:   turns.ToolCallFailed,
			Err:      detail,
			Duration: time.Since(start),
		}
	}

	def, err := d.registry.Get(call.Name)
	if err != nil {
		return fail(fmt.Sprintf("tool not found: %s", call.Name))
	}

	if err := def.ValidateInput(call.Input); err != nil {
		return fail(err.Error())
	}

	if d.limiter != nil {
		// Backpressure point: blocks until global capacity frees. Acquire
		// honors ctx so a cancelled turn stops queueing new work.
		if err := d.limiter.Acquire(ctx, 1); err != nil {
			return fail("cancelled while waiting for tool capacity")
		}
		defer d.limiter.Release(1)
	}

	// Tool activity is published through context sinks: the dispatcher is
	// the single source of tool-call and tool-result events, stamped with
	// the turn metadata the orchestrator attached.
	meta := events.MetadataFromContext(ctx)
	events.PublishEventToContext(ctx, events.NewToolCallEvent(meta,
		events.ToolCall{ID: call.ID, Name: call.Name, Input: string(call.Input)}))

	timeout := def.EffectiveTimeout()
	if def.Timeout <= 0 && d.defaultTimeout > 0 {
		timeout = d.defaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcome := d.run(execCtx, def, call, timeout)
	outcome.Duration = time.Since(start)

	events.PublishEventToContext(ctx, events.NewToolResultEvent(meta,
		events.ToolResult{ID: call.ID, Status: outcome.Status, Result: outcome.Result, Error: outcome.Err}))

	log.Debug().
		Str("tool", call.Name).
		Str("call_id", call.ID).
		Str("status", string(outcome.Status)).
		Dur("duration", outcome.Duration).
		Msg("dispatcher: tool call finished")

	return outcome
}

type execResult struct {
	value interface{}
	err   error
}

func (d *Dispatcher) run(ctx context.Context, def *Definition, call Call, timeout time.Duration) Outcome {
	resultCh := make(chan execResult, 1)
	go func() {
		value, err := def.Function.Execute(ctx, call.Input)
		resultCh <- execResult{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return Outcome{
				ID:     call.ID,
				Status: turns.ToolCallTimedOut,
				Err:    fmt.Sprintf("tool %s timed out after %s", call.Name, timeout),
			}
		}
		return Outcome{
			ID:     call.ID,
			Status: turns.ToolCallFailed,
			Err:    "tool execution cancelled",
		}

	case r := <-resultCh:
		if r.err != nil {
			return Outcome{ID: call.ID, Status: turns.ToolCallFailed, Err: r.err.Error()}
		}

		cost := def.CostUnits
		if reporter, ok := r.value.(CostReporter); ok {
			cost = reporter.ToolCost()
		}

		serialized, err := json.Marshal(r.value)
		if err != nil {
			serialized = []byte(fmt.Sprintf("%v", r.value))
		}

		return Outcome{
			ID:     call.ID,
			Status: turns.ToolCallSucceeded,
			Result: string(serialized),
			Cost:   cost,
		}
	}
}
