package fql

import (
	"errors"
	"fmt"
)

// ErrParserConsumed is returned when Parse is called on a parser that has
// already produced a result or an error.
var ErrParserConsumed = errors.New("fql: parser already consumed")

// ParseError is a structured syntax error. Span is nil when the error was
// raised at the end of the input.
type ParseError struct {
	Message    string
	Span       *Span
	Line       int
	Col        int
	Suggestion string // "did you mean 'Filter:'?" or ""
}

func (e *ParseError) Error() string {
	msg := e.Message
	if e.Span != nil {
		msg = fmt.Sprintf("line %d col %d: %s", e.Line, e.Col, e.Message)
	}
	if e.Suggestion != "" {
		msg += " (" + e.Suggestion + ")"
	}
	return msg
}

// newParseError creates a ParseError positioned at tok. Errors at the end
// of input carry no span.
func newParseError(tok Token, msg string) *ParseError {
	if tok.Type == TokenEOF {
		return &ParseError{Message: msg}
	}
	span := tok.Span
	return &ParseError{
		Message: msg,
		Span:    &span,
		Line:    tok.Line,
		Col:     tok.Col,
	}
}

// newParseErrorf creates a formatted ParseError positioned at tok.
func newParseErrorf(tok Token, format string, args ...any) *ParseError {
	return newParseError(tok, fmt.Sprintf(format, args...))
}

// Levenshtein computes the edit distance between two strings.
func Levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr := make([]int, lb+1)
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev = curr
	}
	return prev[lb]
}

// SuggestFrom finds the closest match from candidates within a maximum
// edit distance. Returns "" if no good match is found.
func SuggestFrom(input string, candidates []string, maxDist int) string {
	best := ""
	bestDist := maxDist + 1
	for _, c := range candidates {
		d := Levenshtein(input, c)
		if d < bestDist {
			bestDist = d
			best = c
		}
	}
	if bestDist <= maxDist {
		return fmt.Sprintf("did you mean '%s'?", best)
	}
	return ""
}
