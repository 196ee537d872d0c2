package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nfrund/livedash/internal/topicmgr"
)

// Event[T] wraps a bus topic name and provides type-safe publishing.
type Event[T any] struct {
	topic topicmgr.Topic
}

// NewEvent defines a typed bus event and registers it with the default
// catalogue. The component is the first segment of name.
func NewEvent[T any](name string, description string) Event[T] {
	component, _, _ := strings.Cut(name, ".")

	topic := topicmgr.DefineBus(topicmgr.TopicConfig{
		Name:        name,
		Component:   component,
		Description: description,
	})

	// Events are defined at package level, so a failure here is a programming
	// error that should stop startup.
	if err := topicmgr.Default().RegisterAll(topic); err != nil {
		panic(fmt.Sprintf("failed to register event %s: %v", name, err))
	}

	return Event[T]{topic: topic}
}

// Name returns the topic name.
func (e Event[T]) Name() string {
	return e.topic.Name()
}

// Topic returns the catalogue entry for the event.
func (e Event[T]) Topic() topicmgr.Topic {
	return e.topic
}

// Publish sends a typed event. The compiler ensures 'payload' matches 'T'.
func Publish[T any](ctx context.Context, p Publisher, event Event[T], payload T) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.Name(), err)
	}

	return p.Publish(ctx, Message{
		Topic:   event.Name(),
		Payload: data,
	})
}

// Subscribe delivers decoded payloads of a typed event to fn.
func Subscribe[T any](ctx context.Context, s Subscriber, event Event[T], fn func(ctx context.Context, payload T) error) error {
	return s.Subscribe(ctx, event.Name(), func(ctx context.Context, msg Message) error {
		var payload T
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", event.Name(), err)
		}
		return fn(ctx, payload)
	})
}

// Notifier publishes events without making callers handle a nil bus.
// The zero value discards everything.
type Notifier struct {
	pub Publisher
	log func(msg string, args ...any)
}

// NewNotifier wraps pub. Publish failures are reported through logf.
func NewNotifier(pub Publisher, logf func(msg string, args ...any)) Notifier {
	return Notifier{pub: pub, log: logf}
}

// Enabled reports whether a publisher is attached.
func (n Notifier) Enabled() bool {
	return n.pub != nil
}

// Emit publishes payload on event, logging rather than returning errors.
func Emit[T any](ctx context.Context, n Notifier, event Event[T], payload T) {
	if n.pub == nil {
		return
	}
	if err := Publish(ctx, n.pub, event, payload); err != nil && n.log != nil {
		n.log("Failed to publish change event", "topic", event.Name(), "error", err)
	}
}
