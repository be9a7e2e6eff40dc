// Package cli implements the filterc command line.
package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"entgo.io/ent/dialect"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/matthewbaird/reportfilter/internal/compiler"
	"github.com/matthewbaird/reportfilter/internal/engine"
	"github.com/matthewbaird/reportfilter/internal/planner"
	"github.com/matthewbaird/reportfilter/internal/tablemap"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Dialect string
	Mapping string // table mapping file; the built-in mapping when empty
	Primary string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for filterc.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "filterc",
		Short: "Compile FQL report filters to SQL",
		Long: `filterc parses FQL report filters and compiles them to parameterized SQL.

A filter is passed as the single argument, or read from stdin when the
argument is "-":

  filterc compile --primary Task 'Filter: status["Open" OR "Blocked"]'`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Dialect, "dialect", dialect.Postgres, "SQL dialect ("+strings.Join(compiler.Dialects, "|")+")")
	cmd.PersistentFlags().StringVar(&opts.Mapping, "mapping", "", "table mapping file (.cue, .json, .yaml)")
	cmd.PersistentFlags().StringVarP(&opts.Primary, "primary", "p", "", "primary entity of the filtered report")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewBatchCommand(opts))
	cmd.AddCommand(NewTokensCommand(opts))
	cmd.AddCommand(NewParseCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func (o *RootOptions) logger(w io.Writer) hclog.Logger {
	level := hclog.Warn
	if o.Verbose {
		level = hclog.Debug
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "filterc",
		Level:  level,
		Output: w,
	})
}

// newEngine builds an engine for the selected dialect and mapping.
func (o *RootOptions) newEngine(cmd *cobra.Command, cfg compiler.OptimizationConfig, batch planner.BatchConfig) (*engine.Engine, error) {
	mapping := tablemap.Default()
	if o.Mapping != "" {
		m, err := tablemap.Load(o.Mapping)
		if err != nil {
			return nil, err
		}
		mapping = m
	}

	logger := o.logger(cmd.ErrOrStderr())
	reg, err := compiler.NewRegistry(mapping, cfg, logger)
	if err != nil {
		return nil, err
	}
	c, err := reg.Lookup(o.Dialect)
	if err != nil {
		return nil, err
	}
	return engine.New(
		engine.WithCompiler(c),
		engine.WithBatchConfig(batch),
		engine.WithLogger(logger),
	)
}

// readFilter returns the filter argument, or stdin when it is "-".
func readFilter(cmd *cobra.Command, args []string) (string, error) {
	if args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", WrapExitError(ExitCommandError, "reading stdin", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
