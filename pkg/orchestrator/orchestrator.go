package orchestrator

import (
	"github.com/go-go-golems/mangiafuoco/pkg/backend"
	"github.com/go-go-golems/mangiafuoco/pkg/costs"
	"github.com/go-go-golems/mangiafuoco/pkg/events"
	"github.com/go-go-golems/mangiafuoco/pkg/tools"
	"github.com/go-go-golems/mangiafuoco/pkg/turns"
	"github.com/rs/zerolog/log"
)

// Phase names one state of the turn loop. Transitions are logged so a
// misbehaving turn can be reconstructed from the debug log.
type Phase string

const (
	PhaseRequesting  Phase = "requesting"
	PhaseStreaming   Phase = "streaming"
	PhaseDispatching Phase = "dispatching"
	PhaseContinuing  Phase = "continuing"
	PhaseFinalizing  Phase = "finalizing"
)

// DefaultMaxIterations bounds the request/tool/continuation loop. The guard
// is the backstop against a model that perpetually requests tools.
const DefaultMaxIterations = 8

// Finalizer consumes the final Result exactly once per turn, after the loop
// has exited. This is where billing and transcript persistence hook in.
type Finalizer func(*turns.Result) error

// Orchestrator drives one model turn from initial request to final answer:
// request, stream, tool dispatch, continuation, repeat until a terminal
// condition. One Orchestrator serves many concurrent turns; per-turn state
// lives in the session created by RunTurn.
type Orchestrator struct {
	backend    backend.Client
	registry   tools.Registry
	dispatcher *tools.Dispatcher
	sinks      []events.EventSink
	estimator  *costs.Estimator
	finalizer  Finalizer

	maxIterations    int
	autoContinue     bool
	maxContinuations int
}

type Option func(*Orchestrator)

func WithBackend(client backend.Client) Option {
	return func(o *Orchestrator) { o.backend = client }
}

func WithRegistry(registry tools.Registry) Option {
	return func(o *Orchestrator) { o.registry = registry }
}

// WithDispatcher overrides the default dispatcher, e.g. to share a global
// tool-concurrency limiter across orchestrators.
func WithDispatcher(dispatcher *tools.Dispatcher) Option {
	return func(o *Orchestrator) { o.dispatcher = dispatcher }
}

// WithSinks attaches transport sinks notified of every delta and of turn
// finalization.
func WithSinks(sinks ...events.EventSink) Option {
	return func(o *Orchestrator) { o.sinks = append(o.sinks, sinks...) }
}

func WithMaxIterations(n int) Option {
	return func(o *Orchestrator) { o.maxIterations = n }
}

// WithAutoContinue enables continuation on max_tokens truncation, up to
// maxContinuations follow-up requests per turn.
func WithAutoContinue(maxContinuations int) Option {
	return func(o *Orchestrator) {
		o.autoContinue = maxContinuations > 0
		o.maxContinuations = maxContinuations
	}
}

// WithEstimator enables pre-flight input token estimates (logging only;
// the backend's reported usage is authoritative).
func WithEstimator(estimator *costs.Estimator) Option {
	return func(o *Orchestrator) { o.estimator = estimator }
}

// WithFinalizer installs the billing/persistence hook invoked exactly once
// per turn with the final Result.
func WithFinalizer(finalizer Finalizer) Option {
	return func(o *Orchestrator) { o.finalizer = finalizer }
}

func New(opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		maxIterations: DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.backend == nil {
		return nil, ErrNoBackend
	}
	if o.maxIterations <= 0 {
		o.maxIterations = DefaultMaxIterations
	}
	if o.dispatcher == nil && o.registry != nil {
		o.dispatcher = tools.NewDispatcher(o.registry)
	}
	return o, nil
}

func (o *Orchestrator) publish(event events.Event) {
	for _, sink := range o.sinks {
		if err := sink.PublishEvent(event); err != nil {
			log.Warn().Err(err).Str("event_type", string(event.Type())).Msg("orchestrator: failed to publish event to sink")
		}
	}
}

// estimateRequest sums token estimates over the request's system prompt and
// message texts.
func (o *Orchestrator) estimateRequest(req *turns.Request) int {
	total := o.estimator.EstimateText(req.System)
	for _, msg := range req.Messages {
		total += o.estimator.EstimateText(msg.Text)
		for _, result := range msg.ToolResults {
			total += o.estimator.EstimateText(result.Content)
		}
	}
	return total
}
