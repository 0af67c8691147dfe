package events

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EventSink represents a destination for turn events. The transport layer
// implements this to render deltas to the user; it is also where
// cancellation requests originate (out of band, via the session).
type EventSink interface {
	PublishEvent(event Event) error
}

// NullSink discards all events.
type NullSink struct{}

func (NullSink) PublishEvent(Event) error { return nil }

var _ EventSink = NullSink{}

// CallbackSink invokes a function for every event. Handy for tests and for
// transports that do their own fan-out.
type CallbackSink struct {
	fn func(Event) error
}

func NewCallbackSink(fn func(Event) error) *CallbackSink {
	return &CallbackSink{fn: fn}
}

func (s *CallbackSink) PublishEvent(event Event) error {
	if s.fn == nil {
		return nil
	}
	return s.fn(event)
}

var _ EventSink = (*CallbackSink)(nil)

// LogSink writes every event to the zerolog logger at debug level.
type LogSink struct{}

func (LogSink) PublishEvent(event Event) error {
	log.Debug().Str("event_type", string(event.Type())).Object("meta", event.Metadata()).Msg("turn event")
	return nil
}

var _ EventSink = LogSink{}

// WatermillSink bridges events onto a watermill topic. Anything subscribed
// to the topic (console renderers, recorders) gets the full event stream
// without knowing about the orchestrator.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	return &WatermillSink{publisher: publisher, topic: topic}
}

// PublishEvent sends the JSON-encoded event as one message on the topic.
func (w *WatermillSink) PublishEvent(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrapf(err, "marshal %s event", event.Type())
	}

	if err := w.publisher.Publish(w.topic, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		return errors.Wrapf(err, "publish %s event to %s", event.Type(), w.topic)
	}

	log.Trace().Str("topic", w.topic).Str("event_type", string(event.Type())).Msg("event forwarded to bus")
	return nil
}

var _ EventSink = (*WatermillSink)(nil)
