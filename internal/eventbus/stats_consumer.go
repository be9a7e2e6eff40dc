package eventbus

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/matthewbaird/reportfilter/internal/event"
)

// Stats is a point-in-time view of compile activity.
type Stats struct {
	Compiled      int            `json:"compiled"`
	BatchCompiled int            `json:"batch_compiled"`
	Rejected      int            `json:"rejected"`
	Statements    int            `json:"statements"`
	Optimizations map[string]int `json:"optimizations"` // by kind
	RejectedBy    map[string]int `json:"rejected_by"`   // by stage
	LastEventAt   *time.Time     `json:"last_event_at,omitempty"`
}

// StatsConsumer aggregates compile events into counters.
type StatsConsumer struct {
	mu    sync.Mutex
	stats Stats
}

// NewStatsConsumer creates an empty stats aggregator.
func NewStatsConsumer() *StatsConsumer {
	return &StatsConsumer{stats: Stats{
		Optimizations: make(map[string]int),
		RejectedBy:    make(map[string]int),
	}}
}

// HandleEvent counts the event and the rewrites it reports.
func (c *StatsConsumer) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	p, err := event.DecodeCompilePayload(evt)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch evt.EventType {
	case event.TypeFilterCompiled:
		c.stats.Compiled++
	case event.TypeFilterBatchCompiled:
		c.stats.BatchCompiled++
	case event.TypeFilterRejected:
		c.stats.Rejected++
		c.stats.RejectedBy[p.Stage]++
	default:
		return nil
	}
	c.stats.Statements += len(p.Statements)
	for _, o := range p.Optimizations {
		c.stats.Optimizations[string(o.Kind)]++
	}
	at := evt.OccurredAt
	c.stats.LastEventAt = &at
	return nil
}

// Snapshot returns a copy of the current counters.
func (c *StatsConsumer) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Optimizations = maps.Clone(c.stats.Optimizations)
	s.RejectedBy = maps.Clone(c.stats.RejectedBy)
	return s
}
