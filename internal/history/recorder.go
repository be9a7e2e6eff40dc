package history

import (
	"context"

	"github.com/matthewbaird/reportfilter/internal/event"
)

// Recorder writes compile events to a Store. It satisfies event.Recorder and
// can be subscribed to the event bus directly.
type Recorder struct {
	store Store
}

var _ event.Recorder = (*Recorder)(nil)

// NewRecorder creates a recorder writing to store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Record converts evt to an Entry and writes it.
func (r *Recorder) Record(ctx context.Context, evt event.DomainEvent) error {
	e, err := EntryFromEvent(evt)
	if err != nil {
		return err
	}
	return r.store.Write(ctx, e)
}

// HandleEvent implements the event bus handler interface.
func (r *Recorder) HandleEvent(ctx context.Context, evt event.DomainEvent) error {
	return r.Record(ctx, evt)
}
