// Package history persists compile events so recent filter activity can be
// listed. Entries are stored in a plain table outside any ORM schema.
package history

import (
	"encoding/json"
	"time"

	"github.com/matthewbaird/reportfilter/internal/event"
)

// Entry is one recorded compile event.
type Entry struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Summary    string          `json:"summary"`
	Category   string          `json:"category"`
	Weight     string          `json:"weight"`
	Primary    string          `json:"primary"`
	Dialect    string          `json:"dialect,omitempty"`
	Source     string          `json:"source,omitempty"`
	Filter     string          `json:"filter"`
	Statements int             `json:"statements"`
	Stage      string          `json:"stage,omitempty"`
	Error      string          `json:"error,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// EntryFromEvent flattens a compile event into an Entry.
func EntryFromEvent(evt event.DomainEvent) (Entry, error) {
	p, err := event.DecodeCompilePayload(evt)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		EventID:    evt.ID,
		EventType:  evt.EventType,
		OccurredAt: evt.OccurredAt,
		Summary:    evt.Summary,
		Category:   evt.Category,
		Weight:     evt.Weight,
		Primary:    p.Primary,
		Dialect:    p.Dialect,
		Source:     p.Source,
		Filter:     p.Filter,
		Statements: len(p.Statements),
		Stage:      p.Stage,
		Error:      p.Error,
		Payload:    evt.Payload,
	}, nil
}
