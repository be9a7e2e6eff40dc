// Package wire defines the WebSocket protocol for the REPL.
package wire

import (
	"encoding/json"

	"github.com/matthewbaird/reportfilter/internal/compiler"
	"github.com/matthewbaird/reportfilter/internal/fql"
	"github.com/matthewbaird/reportfilter/internal/repl/autocomplete"
)

// Client message types.
const (
	TypeCompile      = "compile"
	TypeAutocomplete = "autocomplete"
	TypePing         = "ping"
	TypeCancel       = "cancel"
)

// Server message types.
const (
	TypeSession     = "session"
	TypeResult      = "result"
	TypeBatch       = "batch"
	TypeMeta        = "meta"
	TypeError       = "error"
	TypeCompletions = "completions"
	TypePong        = "pong"
)

// ── Client → Server messages ────────────────────────────────────────────────

// ClientMessage is the envelope for all client-to-server WebSocket messages.
type ClientMessage struct {
	Type string          `json:"type"`
	ID   string          `json:"id"` // Client-assigned request ID
	Data json.RawMessage `json:"data,omitempty"`
}

// CompileData is the payload for "compile" messages. Text starting with ':'
// is a meta-command.
type CompileData struct {
	Filter string `json:"filter"`
	Batch  bool   `json:"batch,omitempty"`
}

// AutocompleteData is the payload for "autocomplete" messages.
type AutocompleteData struct {
	Filter string `json:"filter"`
	Cursor int    `json:"cursor"`
}

// ── Server → Client messages ────────────────────────────────────────────────

// ServerMessage is the envelope for all server-to-client WebSocket messages.
type ServerMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"` // Echoes client ID
	Data      any    `json:"data,omitempty"`
}

// StatementData is one rendered statement.
type StatementData struct {
	SQL    string `json:"sql"`
	Args   []any  `json:"args"`
	Inline string `json:"inline"`
}

// ResultData carries a single compiled statement.
type ResultData struct {
	StatementData
	Dialect       string                  `json:"dialect"`
	Optimizations []compiler.Optimization `json:"optimizations"`
	Elapsed       string                  `json:"elapsed"`
}

// BatchData carries the statements of a batched compile.
type BatchData struct {
	Statements    []StatementData         `json:"statements"`
	Dialect       string                  `json:"dialect"`
	Optimizations []compiler.Optimization `json:"optimizations"`
	EstimatedRows *int                    `json:"estimated_rows"`
	Elapsed       string                  `json:"elapsed"`
}

// ErrorData carries an error message. Span is set for parse errors that
// point into the filter text.
type ErrorData struct {
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	Span       *fql.Span `json:"span,omitempty"`
	Suggestion string    `json:"suggestion,omitempty"`
}

// CompletionsData carries autocomplete suggestions.
type CompletionsData struct {
	Items []autocomplete.CompletionItem `json:"items"`
}

// SessionData carries session information.
type SessionData struct {
	SessionID string `json:"session_id"`
	Primary   string `json:"primary"`
	Dialect   string `json:"dialect"`
}
