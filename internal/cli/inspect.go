package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matthewbaird/reportfilter/internal/fql"
)

type tokenOutput struct {
	Type    string   `json:"type"`
	Literal string   `json:"literal"`
	Span    fql.Span `json:"span"`
	Line    int      `json:"line"`
	Col     int      `json:"col"`
}

type filterOutput struct {
	Field     string `json:"field"`
	Condition string `json:"condition"`
}

type crossFilterOutput struct {
	Source  string         `json:"source"`
	Target  string         `json:"target"`
	Filters []filterOutput `json:"filters"`
}

type parseOutput struct {
	Canonical    string              `json:"canonical"`
	BaseFilters  []filterOutput      `json:"base_filters"`
	CrossFilters []crossFilterOutput `json:"cross_filters"`
}

// NewTokensCommand creates the tokens command.
func NewTokensCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tokens <filter|->",
		Short: "Print the tokens of a filter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			filter, err := readFilter(cmd, args)
			if err != nil {
				return reportSetupError(f, err)
			}

			var tokens []tokenOutput
			for tok := range fql.NewLexer(filter).All() {
				if tok.Type == fql.TokenEOF {
					break
				}
				tokens = append(tokens, tokenOutput{
					Type:    tok.Type.String(),
					Literal: tok.Literal,
					Span:    tok.Span,
					Line:    tok.Line,
					Col:     tok.Col,
				})
			}

			if f.JSON() {
				if tokens == nil {
					tokens = []tokenOutput{}
				}
				return f.Success(tokens)
			}
			for _, t := range tokens {
				fmt.Fprintf(f.Writer, "%d:%-4d %-16s %q\n", t.Line, t.Col, t.Type, t.Literal)
			}
			return nil
		},
	}
}

// NewParseCommand creates the parse command.
func NewParseCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <filter|->",
		Short: "Parse a filter and print its canonical form and syntax tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			filter, err := readFilter(cmd, args)
			if err != nil {
				return reportSetupError(f, err)
			}

			q, err := fql.Parse(filter)
			if err != nil {
				return reportCompileError(f, filter, err)
			}

			if f.JSON() {
				return f.Success(toParseOutput(q))
			}
			fmt.Fprintln(f.Writer, q.String())
			fmt.Fprintln(f.Writer)
			fmt.Fprint(f.Writer, q.Tree())
			return nil
		},
	}
}

func toParseOutput(q *fql.Query) parseOutput {
	out := parseOutput{
		Canonical:    q.String(),
		BaseFilters:  toFilterOutputs(q.BaseFilters),
		CrossFilters: make([]crossFilterOutput, len(q.CrossFilters)),
	}
	for i, cf := range q.CrossFilters {
		out.CrossFilters[i] = crossFilterOutput{
			Source:  cf.Source.String(),
			Target:  cf.Target.String(),
			Filters: toFilterOutputs(cf.Filters),
		}
	}
	return out
}

func toFilterOutputs(filters []fql.FieldFilter) []filterOutput {
	out := make([]filterOutput, len(filters))
	for i, ff := range filters {
		out[i] = filterOutput{Field: ff.Field.String(), Condition: ff.Condition.String()}
	}
	return out
}
