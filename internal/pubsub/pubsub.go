// Package pubsub is the in-process change bus. Stores publish a typed event
// after every mutation and views subscribe to redraw; the reference backend
// uses an ordered instance of the same bus to fan socket events out.
package pubsub

import "context"

// Message is one delivery on the bus.
type Message struct {
	Topic string
	// Key names the identity the change concerns; empty for global changes.
	Key     string
	Payload []byte // JSON
	// Metadata travels with the message untouched, e.g. request ids.
	Metadata map[string]string
}

// Handler processes one message. A returned error is logged and the message
// is still acknowledged.
type Handler func(ctx context.Context, msg Message) error

// Publisher is the sending side of the bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber is the receiving side of the bus. Subscribe returns once the
// subscription is live and stops delivering when ctx is done or the bus is
// closed.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

// Bus is a Publisher and a Subscriber sharing one Close.
type Bus interface {
	Publisher
	Subscriber
}
