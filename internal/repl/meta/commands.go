// Package meta handles REPL meta-commands (:help, :env, :primary, :set, ...).
package meta

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/matthewbaird/reportfilter/internal/fql"
	"github.com/matthewbaird/reportfilter/internal/repl/session"
	"github.com/matthewbaird/reportfilter/internal/tablemap"
)

// Commands lists the available meta-commands.
var Commands = []string{":help", ":clear", ":env", ":history", ":primary", ":set", ":tables", ":tokens", ":ast"}

// Settings that :set accepts.
var settingKeys = []string{"batch", "max_batch_size", "max_in_values", "max_or_conditions_for_in"}

// Handler dispatches meta-commands.
type Handler struct {
	mapping *tablemap.Mapping
	dialect string
}

// New creates a meta-command handler.
func New(mapping *tablemap.Mapping, dialect string) *Handler {
	return &Handler{mapping: mapping, dialect: dialect}
}

// Result is the output of a meta-command execution.
type Result struct {
	Output string `json:"output"`
	Clear  bool   `json:"clear,omitempty"` // Signal frontend to clear screen
}

// IsMeta reports whether line is a meta-command.
func IsMeta(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), ":")
}

// Execute runs a meta-command line such as ":set max_in_values 200".
func (h *Handler) Execute(sess *session.Session, line string) (*Result, error) {
	line = strings.TrimPrefix(strings.TrimSpace(line), ":")
	command, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch command {
	case "help":
		return h.help()
	case "clear":
		return &Result{Clear: true}, nil
	case "env":
		return h.env(sess)
	case "history":
		return h.history(sess)
	case "primary":
		return h.primary(sess, rest)
	case "set":
		return h.set(sess, strings.Fields(rest))
	case "tables":
		return h.tables()
	case "tokens":
		return h.tokens(rest)
	case "ast":
		return h.ast(rest)
	default:
		msg := fmt.Sprintf("unknown meta-command ':%s'. Type :help for available commands", command)
		if s := fql.SuggestFrom(":"+command, Commands, 2); s != "" {
			msg += " (" + s + ")"
		}
		return nil, fmt.Errorf("%s", msg)
	}
}

func (h *Handler) help() (*Result, error) {
	help := `FQL: Filter Query Language

Clauses:
  Filter: field[condition]; field[condition]
  CrossFilter: <Source-Target> field[condition]

Conditions:
  "value" or 42               equality
  != > < >= <= value          comparison
  IN ("a", "b")               membership
  IS NULL, IS NOT NULL        null checks
  AND, OR, NOT, ( )           logic (NOT binds tightest, then AND, then OR)
  today, yesterday, tomorrow, current_user

Meta-commands:
  :help                 Show help
  :clear                Clear the screen
  :env                  Show session settings
  :history              Show command history
  :primary <Entity>     Set the primary entity
  :set <key> <value>    Change a setting (batch, max_batch_size,
                        max_in_values, max_or_conditions_for_in)
  :tables               Show the entity to table mapping
  :tokens <filter>      Show the tokens of a filter
  :ast <filter>         Show the parsed filter

Examples:
  Filter: status["Open" OR "Blocked"]; dueDate[<today]
  Filter: priority[>2]; CrossFilter: <Test-Run> status["FAIL"]`

	return &Result{Output: help}, nil
}

func (h *Handler) env(sess *session.Session) (*Result, error) {
	s := sess.Current()
	primary := s.Primary
	if primary == "" {
		primary = "(not set)"
	}
	out := fmt.Sprintf("Session: %s\nDialect: %s\nPrimary: %s\n"+
		"max_or_conditions_for_in: %d\nmax_in_values: %d\nbatch: %t\nmax_batch_size: %d\n"+
		"Created: %s\nHistory entries: %d",
		sess.ID, h.dialect, primary,
		s.Optimization.MaxOrConditionsForIn, s.Optimization.MaxInValues,
		s.Batch.EnableBatchProcessing, s.Batch.MaxBatchSize,
		sess.CreatedAt.Format("2006-01-02 15:04:05"),
		len(sess.HistoryLines()))
	return &Result{Output: out}, nil
}

func (h *Handler) history(sess *session.Session) (*Result, error) {
	lines := sess.HistoryLines()
	if len(lines) == 0 {
		return &Result{Output: "(no history)"}, nil
	}

	var b strings.Builder
	for i, entry := range lines {
		fmt.Fprintf(&b, "%3d  %s\n", i+1, entry)
	}
	return &Result{Output: b.String()}, nil
}

func (h *Handler) primary(sess *session.Session, entity string) (*Result, error) {
	if entity == "" {
		return nil, fmt.Errorf("usage: :primary <Entity>")
	}
	if strings.ContainsAny(entity, " \t") {
		return nil, fmt.Errorf("entity name %q must be a single identifier", entity)
	}
	_ = sess.Update(func(s *session.Settings) error {
		s.Primary = entity
		return nil
	})

	out := fmt.Sprintf("Primary entity: %s (table %s)", entity, h.mapping.TableName(entity))
	if _, ok := h.mapping.Lookup(entity); !ok && h.mapping.Len() > 0 {
		out += "\nnote: entity is not in the table mapping"
		if s := fql.SuggestFrom(entity, h.mapping.Entities(), 3); s != "" {
			out += ", " + s
		}
	}
	return &Result{Output: out}, nil
}

func (h *Handler) set(sess *session.Session, args []string) (*Result, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("usage: :set <key> <value> (keys: %s)", strings.Join(settingKeys, ", "))
	}
	key, raw := args[0], args[1]

	err := sess.Update(func(s *session.Settings) error {
		if key == "batch" {
			on, err := parseSwitch(raw)
			if err != nil {
				return err
			}
			s.Batch.EnableBatchProcessing = on
			return s.Batch.Validate()
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s: %q is not a number", key, raw)
		}
		switch key {
		case "max_or_conditions_for_in":
			s.Optimization.MaxOrConditionsForIn = n
			return s.Optimization.Validate()
		case "max_in_values":
			s.Optimization.MaxInValues = n
			return s.Optimization.Validate()
		case "max_batch_size":
			s.Batch.MaxBatchSize = n
			return s.Batch.Validate()
		default:
			return fmt.Errorf("unknown setting %q (keys: %s)", key, strings.Join(settingKeys, ", "))
		}
	})
	if err != nil {
		return nil, err
	}
	return &Result{Output: fmt.Sprintf("%s = %s", key, raw)}, nil
}

func parseSwitch(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("batch: %q is not on or off", raw)
}

func (h *Handler) tables() (*Result, error) {
	entities := h.mapping.Entities()
	if len(entities) == 0 {
		return &Result{Output: "(no table mapping; entity names are lower-cased)"}, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Entities (%d):\n", len(entities))
	for _, e := range entities {
		fmt.Fprintf(&b, "  %-20s %s\n", e, h.mapping.TableName(e))
	}
	return &Result{Output: b.String()}, nil
}

func (h *Handler) tokens(filter string) (*Result, error) {
	if filter == "" {
		return nil, fmt.Errorf("usage: :tokens <filter>")
	}
	var b strings.Builder
	for tok := range fql.NewLexer(filter).All() {
		if tok.Type == fql.TokenEOF {
			break
		}
		fmt.Fprintf(&b, "%d:%-4d %-16s %q\n", tok.Line, tok.Col, tok.Type, tok.Literal)
	}
	return &Result{Output: b.String()}, nil
}

func (h *Handler) ast(filter string) (*Result, error) {
	if filter == "" {
		return nil, fmt.Errorf("usage: :ast <filter>")
	}
	q, err := fql.Parse(filter)
	if err != nil {
		return nil, err
	}
	return &Result{Output: q.String() + "\n\n" + q.Tree()}, nil
}
