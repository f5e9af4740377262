// Package transport defines the narrow pub/sub contract the zone runtime
// is built against, and a concrete NATS JetStream implementation of it,
// built on Watermill so the Router never touches nats.go directly.
package transport

import "context"

// Message is a single decoded delivery on a subscribed topic.
type Message struct {
	Topic   string
	Payload []byte
	// Ack must be called once processing succeeds; Nack otherwise. Both
	// are no-ops for transports without delivery acknowledgement.
	Ack  func()
	Nack func()
}

// Transport is the narrow pub/sub capability the Router and Telemetry
// publisher are built against.
type Transport interface {
	// Publish sends payload to topic.
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe returns a channel of deliveries for topic. The channel is
	// closed when ctx is canceled or the transport is closed.
	Subscribe(ctx context.Context, topic string) (<-chan Message, error)
	Close() error
}
