package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/reportfilter/internal/compiler"
)

// DomainEvent carries the canonical shape of every event.
type DomainEvent struct {
	ID         string
	EventType  string
	OccurredAt time.Time
	Summary    string
	Category   string // "compile"
	Weight     string // "info", "minor"
	Payload    json.RawMessage
}

// Event types.
const (
	TypeFilterCompiled      = "filter_compiled"
	TypeFilterBatchCompiled = "filter_batch_compiled"
	TypeFilterRejected      = "filter_rejected"
)

// Stages at which a filter can be rejected.
const (
	StageParse   = "parse"
	StageCompile = "compile"
)

func newID() string { return uuid.New().String() }

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// CompilePayload carries the data of every compile event.
type CompilePayload struct {
	Filter        string                  `json:"filter"`
	Primary       string                  `json:"primary"`
	Dialect       string                  `json:"dialect"`
	Source        string                  `json:"source,omitempty"` // "http", "repl", "cli"
	Statements    []string                `json:"statements,omitempty"`
	Optimizations []compiler.Optimization `json:"optimizations,omitempty"`
	Stage         string                  `json:"stage,omitempty"`
	Error         string                  `json:"error,omitempty"`
	Duration      time.Duration           `json:"duration_ns"`
}

// NewFilterCompiled records a single-statement compile.
func NewFilterCompiled(p CompilePayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  TypeFilterCompiled,
		OccurredAt: time.Now(),
		Summary:    fmt.Sprintf("Compiled filter on %s (%d optimizations)", p.Primary, len(p.Optimizations)),
		Category:   "compile",
		Weight:     "info",
		Payload:    mustJSON(p),
	}
}

// NewFilterBatchCompiled records a batched compile.
func NewFilterBatchCompiled(p CompilePayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  TypeFilterBatchCompiled,
		OccurredAt: time.Now(),
		Summary:    fmt.Sprintf("Compiled filter on %s into %d statements", p.Primary, len(p.Statements)),
		Category:   "compile",
		Weight:     "info",
		Payload:    mustJSON(p),
	}
}

// NewFilterRejected records a filter that failed to parse or compile.
func NewFilterRejected(p CompilePayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  TypeFilterRejected,
		OccurredAt: time.Now(),
		Summary:    fmt.Sprintf("Rejected filter on %s at %s: %s", p.Primary, p.Stage, p.Error),
		Category:   "compile",
		Weight:     "minor",
		Payload:    mustJSON(p),
	}
}

// DecodeCompilePayload unmarshals the payload of a compile event.
func DecodeCompilePayload(evt DomainEvent) (CompilePayload, error) {
	var p CompilePayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		return CompilePayload{}, fmt.Errorf("decoding %s payload: %w", evt.EventType, err)
	}
	return p, nil
}
