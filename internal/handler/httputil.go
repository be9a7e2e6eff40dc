package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/hashicorp/go-hclog"

	"github.com/matthewbaird/reportfilter/internal/compiler"
	"github.com/matthewbaird/reportfilter/internal/fql"
	"github.com/matthewbaird/reportfilter/internal/history"
	"github.com/matthewbaird/reportfilter/internal/planner"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error      string    `json:"error"`
	Code       string    `json:"code"`
	Span       *fql.Span `json:"span,omitempty"`
	Line       int       `json:"line,omitempty"`
	Col        int       `json:"col,omitempty"`
	Suggestion string    `json:"suggestion,omitempty"`
}

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hclog.Default().Named("http").Error("writeJSON encode error", "error", err)
	}
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// decodeJSON decodes the request body into v.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// parseLimit extracts the limit query parameter, clamped to [1, history.MaxLimit].
func parseLimit(r *http.Request, def int) int {
	limit := def
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > history.MaxLimit {
		limit = history.MaxLimit
	}
	return limit
}

// compileErrorToHTTP maps parse, compile and configuration errors to
// appropriate HTTP responses.
func compileErrorToHTTP(w http.ResponseWriter, logger hclog.Logger, err error) {
	var pe *fql.ParseError
	if errors.As(err, &pe) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:      pe.Error(),
			Code:       "PARSE_ERROR",
			Span:       pe.Span,
			Line:       pe.Line,
			Col:        pe.Col,
			Suggestion: pe.Suggestion,
		})
		return
	}
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		writeError(w, http.StatusUnprocessableEntity, "COMPILE_ERROR", ce.Error())
		return
	}
	if errors.Is(err, compiler.ErrInvalidConfig) || errors.Is(err, planner.ErrInvalidBatchConfig) {
		writeError(w, http.StatusBadRequest, "INVALID_CONFIG", err.Error())
		return
	}
	logger.Error("internal error", "error", err)
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}
