package vectis

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielorbach/go-component"
	"gocloud.dev/pubsub"
)

// EventSource wraps a pubsub subscription delivering gob-encoded events (see
// EncodeEvent).
type EventSource struct {
	subscription *pubsub.Subscription
	decoder      func(p []byte) (Event, error)
}

// NewEventSource returns an EventSource reading from sub.
func NewEventSource(sub *pubsub.Subscription) EventSource {
	return EventSource{subscription: sub, decoder: DecodeEvent}
}

// EventHandler processes a single decoded event.
type EventHandler func(ctx context.Context, ev Event) error

// Stream returns a component.Proc that continuously receives messages from the
// subscription, decodes them and passes them to h. A handler error stops the
// procedure.
func (s EventSource) Stream(h EventHandler) component.Proc {
	return stream(s.subscription, s.decoder, h)
}

// ChangeHandler processes a single change notification of a Projection.
type ChangeHandler func(ctx context.Context, c EntityChanged) error

// StreamChanges returns a component.Proc passing the notifications published by
// a Projection, as received from sub, to h. A handler error stops the
// procedure.
func StreamChanges(sub *pubsub.Subscription, h ChangeHandler) component.Proc {
	return stream(sub, DecodeEntityChanged, h)
}

func stream[T any](sub *pubsub.Subscription, decode func([]byte) (T, error), h func(context.Context, T) error) component.Proc {
	return func(l *component.L) {
		for l.Continue() {
			msg, err := sub.Receive(l.Context())
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					// we're shutting down
					return
				}
				l.Fatal(fmt.Errorf("receive: %w", err))
			}
			// always ack, even if we fail to decode.
			// otherwise, we might get stuck processing
			// the same failed message
			msg.Ack()

			v, err := decode(msg.Body)
			if err != nil {
				l.Fatal(fmt.Errorf("decode: %w", err))
			}

			if err := h(l.Context(), v); err != nil {
				l.Fatal(fmt.Errorf("process: %w", err))
			}
		}
	}
}

// Publish sends ev, gob-encoded, to topic.
func Publish(ctx context.Context, topic *pubsub.Topic, ev Event) error {
	p, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	h := ev.Header()
	return topic.Send(ctx, &pubsub.Message{
		Body: p,
		Metadata: map[string]string{
			"event.kind":    string(ev.Kind()),
			"partition.key": h.PartitionKey,
		},
	})
}
