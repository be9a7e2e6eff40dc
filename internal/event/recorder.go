// Package event defines the events emitted when filters are compiled and
// the interfaces used to publish and persist them.
package event

import "context"

// Recorder persists events.
type Recorder interface {
	Record(ctx context.Context, evt DomainEvent) error
}

// Publisher sends events to downstream consumers. Publish must not block
// the compile path.
type Publisher interface {
	Publish(ctx context.Context, evt DomainEvent)
}

// PublisherFunc adapts a plain function to the Publisher interface.
type PublisherFunc func(ctx context.Context, evt DomainEvent)

// Publish calls f(ctx, evt).
func (f PublisherFunc) Publish(ctx context.Context, evt DomainEvent) { f(ctx, evt) }
