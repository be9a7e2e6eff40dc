package eventbus

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/matthewbaird/reportfilter/internal/event"
)

// LogConsumer logs all compile events for observability.
type LogConsumer struct {
	logger hclog.Logger
}

func NewLogConsumer(logger hclog.Logger) *LogConsumer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &LogConsumer{logger: logger.Named("events")}
}

func (c *LogConsumer) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	p, err := event.DecodeCompilePayload(evt)
	if err != nil {
		return err
	}
	args := []any{
		"type", evt.EventType,
		"primary", p.Primary,
		"dialect", p.Dialect,
		"statements", len(p.Statements),
		"optimizations", len(p.Optimizations),
		"duration", p.Duration,
	}
	if evt.EventType == event.TypeFilterRejected {
		c.logger.Warn(evt.Summary, append(args, "stage", p.Stage)...)
		return nil
	}
	c.logger.Info(evt.Summary, args...)
	return nil
}
