package compiler

import "errors"

var (
	// ErrUnknownCompiler is returned by Registry.Lookup for unregistered names.
	ErrUnknownCompiler = errors.New("unknown compiler")

	// ErrInvalidConfig is wrapped by every configuration validation error.
	ErrInvalidConfig = errors.New("invalid compiler configuration")
)

// CompileError aborts a compile call. Compilation does not track source
// positions, so it carries a message only.
type CompileError struct {
	Message string
}

func (e *CompileError) Error() string {
	return "compile error: " + e.Message
}
