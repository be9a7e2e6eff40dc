package wire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/hashicorp/go-hclog"

	"github.com/matthewbaird/reportfilter/internal/compiler"
	"github.com/matthewbaird/reportfilter/internal/engine"
	"github.com/matthewbaird/reportfilter/internal/fql"
	"github.com/matthewbaird/reportfilter/internal/repl/autocomplete"
	"github.com/matthewbaird/reportfilter/internal/repl/meta"
	"github.com/matthewbaird/reportfilter/internal/repl/session"
)

// Handler manages WebSocket connections for the REPL.
type Handler struct {
	sessions     *session.Manager
	engine       *engine.Engine
	autocomplete *autocomplete.Engine
	meta         *meta.Handler
	logger       hclog.Logger
}

// NewHandler creates a WebSocket handler with all dependencies.
func NewHandler(
	sessions *session.Manager,
	eng *engine.Engine,
	ac *autocomplete.Engine,
	metaHandler *meta.Handler,
	logger hclog.Logger,
) *Handler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Handler{
		sessions:     sessions,
		engine:       eng,
		autocomplete: ac,
		meta:         metaHandler,
		logger:       logger.Named("repl"),
	}
}

// ServeHTTP upgrades to WebSocket and runs the message loop. A session id
// in the "session" query parameter resumes that session.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	var sess *session.Session
	if id := r.URL.Query().Get("session"); id != "" {
		sess = h.sessions.Get(id)
	}
	if sess == nil {
		sess = h.sessions.Create()
	}
	ctx := r.Context()
	h.logger.Debug("session attached", "session", sess.ID)

	h.send(ctx, conn, ServerMessage{
		Type: TypeSession,
		Data: SessionData{
			SessionID: sess.ID,
			Primary:   sess.Current().Primary,
			Dialect:   h.engine.Dialect(),
		},
	})

	// Message loop
	for {
		var msg ClientMessage
		err := wsjson.Read(ctx, conn, &msg)
		if err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				h.logger.Debug("connection closed", "session", sess.ID, "status", status)
			}
			return
		}
		sess.Touch()

		switch msg.Type {
		case TypeCompile:
			h.handleCompile(ctx, conn, sess, msg)
		case TypeAutocomplete:
			h.handleAutocomplete(ctx, conn, msg)
		case TypePing:
			h.send(ctx, conn, ServerMessage{Type: TypePong, RequestID: msg.ID})
		case TypeCancel:
			// Compiles run synchronously on this goroutine; nothing is in flight.
		default:
			h.sendError(ctx, conn, msg.ID, ErrorData{Code: "unknown_type", Message: fmt.Sprintf("unknown message type: %s", msg.Type)})
		}
	}
}

func (h *Handler) handleCompile(ctx context.Context, conn *websocket.Conn, sess *session.Session, msg ClientMessage) {
	start := time.Now()

	var data CompileData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		h.sendError(ctx, conn, msg.ID, ErrorData{Code: "invalid_data", Message: "invalid compile data"})
		return
	}
	if strings.TrimSpace(data.Filter) == "" {
		h.sendError(ctx, conn, msg.ID, ErrorData{Code: "empty_filter", Message: "empty filter"})
		return
	}

	sess.AddHistory(data.Filter)

	if meta.IsMeta(data.Filter) {
		result, err := h.meta.Execute(sess, data.Filter)
		if err != nil {
			h.sendError(ctx, conn, msg.ID, toErrorData("meta_error", err))
			return
		}
		h.send(ctx, conn, ServerMessage{Type: TypeMeta, RequestID: msg.ID, Data: result})
		return
	}

	settings := sess.Current()
	if settings.Primary == "" {
		h.sendError(ctx, conn, msg.ID, ErrorData{
			Code:    "no_primary",
			Message: "no primary entity set; use :primary <Entity>",
		})
		return
	}
	req := engine.Request{
		Filter:       data.Filter,
		Primary:      settings.Primary,
		Source:       "repl",
		Optimization: &settings.Optimization,
		Batch:        &settings.Batch,
	}

	if data.Batch {
		res, err := h.engine.CompileBatch(ctx, req)
		if err != nil {
			h.sendError(ctx, conn, msg.ID, toErrorData("compile_error", err))
			return
		}
		inline := res.Inline()
		out := BatchData{
			Statements:    make([]StatementData, len(res.Statements)),
			Dialect:       res.Dialect,
			Optimizations: res.Optimizations,
			EstimatedRows: res.EstimatedRows,
			Elapsed:       time.Since(start).String(),
		}
		for i, s := range res.Statements {
			out.Statements[i] = StatementData{SQL: s.SQL, Args: s.Args, Inline: inline[i]}
		}
		h.send(ctx, conn, ServerMessage{Type: TypeBatch, RequestID: msg.ID, Data: out})
		return
	}

	res, err := h.engine.Compile(ctx, req)
	if err != nil {
		h.sendError(ctx, conn, msg.ID, toErrorData("compile_error", err))
		return
	}
	h.send(ctx, conn, ServerMessage{
		Type:      TypeResult,
		RequestID: msg.ID,
		Data: ResultData{
			StatementData: StatementData{SQL: res.SQL, Args: res.Args, Inline: res.Inline()},
			Dialect:       res.Dialect,
			Optimizations: res.Optimizations,
			Elapsed:       time.Since(start).String(),
		},
	})
}

func (h *Handler) handleAutocomplete(ctx context.Context, conn *websocket.Conn, msg ClientMessage) {
	var data AutocompleteData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		h.sendError(ctx, conn, msg.ID, ErrorData{Code: "invalid_data", Message: "invalid autocomplete data"})
		return
	}

	items := h.autocomplete.Complete(data.Filter, data.Cursor)
	h.send(ctx, conn, ServerMessage{
		Type:      TypeCompletions,
		RequestID: msg.ID,
		Data:      CompletionsData{Items: items},
	})
}

// toErrorData classifies err. Parse errors keep their span and suggestion.
func toErrorData(fallback string, err error) ErrorData {
	var pe *fql.ParseError
	if errors.As(err, &pe) {
		return ErrorData{Code: "parse_error", Message: pe.Error(), Span: pe.Span, Suggestion: pe.Suggestion}
	}
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		return ErrorData{Code: "compile_error", Message: ce.Error()}
	}
	return ErrorData{Code: fallback, Message: err.Error()}
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, msg ServerMessage) {
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		h.logger.Debug("write error", "error", err)
	}
}

func (h *Handler) sendError(ctx context.Context, conn *websocket.Conn, requestID string, data ErrorData) {
	h.send(ctx, conn, ServerMessage{
		Type:      TypeError,
		RequestID: requestID,
		Data:      data,
	})
}
