package events

import (
	"context"

	"github.com/rs/zerolog/log"
)

// ctxKey is an unexported type for keys defined in this package.
type ctxKey int

const (
	ctxKeyEventSinks ctxKey = iota
	ctxKeyEventMetadata
)

// WithEventSinks returns a context carrying the given sinks in addition to
// any already attached. Code that only receives a context (tool executions,
// dispatcher internals) publishes through these instead of holding a
// reference to the orchestrator's configuration.
func WithEventSinks(ctx context.Context, sinks ...EventSink) context.Context {
	if len(sinks) == 0 {
		return ctx
	}
	combined := append([]EventSink{}, GetEventSinks(ctx)...)
	combined = append(combined, sinks...)
	return context.WithValue(ctx, ctxKeyEventSinks, combined)
}

// GetEventSinks returns the sinks attached to the context, or nil.
func GetEventSinks(ctx context.Context) []EventSink {
	if sinks, ok := ctx.Value(ctxKeyEventSinks).([]EventSink); ok {
		return sinks
	}
	return nil
}

// WithEventMetadata attaches the turn's event metadata so context publishers
// can stamp their events with the right turn id and model.
func WithEventMetadata(ctx context.Context, meta EventMetadata) context.Context {
	return context.WithValue(ctx, ctxKeyEventMetadata, meta)
}

// MetadataFromContext returns the attached metadata, or a zero value when
// none was set.
func MetadataFromContext(ctx context.Context) EventMetadata {
	if meta, ok := ctx.Value(ctxKeyEventMetadata).(EventMetadata); ok {
		return meta
	}
	return EventMetadata{}
}

// PublishEventToContext sends the event to every sink attached to the
// context. Best-effort: sink errors are swallowed so a broken transport
// cannot disturb the turn. A context without sinks is a no-op.
func PublishEventToContext(ctx context.Context, event Event) {
	sinks := GetEventSinks(ctx)
	if len(sinks) == 0 {
		return
	}
	log.Trace().Str("event_type", string(event.Type())).Int("sink_count", len(sinks)).Msg("publishing event to context sinks")
	for _, sink := range sinks {
		_ = sink.PublishEvent(event)
	}
}
