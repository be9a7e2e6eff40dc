package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/matthewbaird/reportfilter/internal/fql"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The filter did not parse or compile
	ExitCommandError = 2 // Bad flags, unreadable input or mapping file
)

// Error codes reported in JSON output.
const (
	ErrCodeParse   = "PARSE_ERROR"
	ErrCodeCompile = "COMPILE_ERROR"
	ErrCodeConfig  = "INVALID_CONFIG"
	ErrCodeInput   = "INVALID_INPUT"
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Errors and verbose output in text mode (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// parseErrorDetails locates a parse error in the filter text.
type parseErrorDetails struct {
	Span       *fql.Span `json:"span,omitempty"`
	Line       int       `json:"line,omitempty"`
	Col        int       `json:"col,omitempty"`
	Suggestion string    `json:"suggestion,omitempty"`
}

// JSON reports whether output is machine-readable.
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

// Success writes data as a JSON response. Text callers print directly.
func (f *OutputFormatter) Success(data any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(CLIResponse{Status: "ok", Data: data})
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.JSON() {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.GetErrWriter(), "Error [%s]: %s\n", code, message)
	return nil
}

// ParseError reports a parse error, pointing at its span in text mode.
func (f *OutputFormatter) ParseError(filter string, pe *fql.ParseError) error {
	if f.JSON() {
		return f.Error(ErrCodeParse, pe.Error(), parseErrorDetails{
			Span:       pe.Span,
			Line:       pe.Line,
			Col:        pe.Col,
			Suggestion: pe.Suggestion,
		})
	}
	if err := f.Error(ErrCodeParse, pe.Error(), nil); err != nil {
		return err
	}
	if pe.Span == nil {
		return nil
	}
	lines := strings.Split(filter, "\n")
	if pe.Line < 1 || pe.Line > len(lines) {
		return nil
	}
	width := max(pe.Span.End-pe.Span.Start, 1)
	w := f.GetErrWriter()
	fmt.Fprintf(w, "  %s\n", lines[pe.Line-1])
	fmt.Fprintf(w, "  %s%s\n", strings.Repeat(" ", pe.Col-1), strings.Repeat("^", width))
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
