package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matthewbaird/reportfilter/internal/compiler"
	"github.com/matthewbaird/reportfilter/internal/engine"
	"github.com/matthewbaird/reportfilter/internal/fql"
	"github.com/matthewbaird/reportfilter/internal/planner"
)

// CompileOptions holds flags for the compile and batch commands.
type CompileOptions struct {
	*RootOptions
	Inline       bool
	Optimization compiler.OptimizationConfig
	Batch        planner.BatchConfig
}

// compileOutput is the JSON payload of the compile command.
type compileOutput struct {
	SQL           string                  `json:"sql"`
	Args          []any                   `json:"args"`
	Inline        string                  `json:"inline"`
	Dialect       string                  `json:"dialect"`
	Optimizations []compiler.Optimization `json:"optimizations"`
}

// batchOutput is the JSON payload of the batch command.
type batchOutput struct {
	Statements    []compileOutput         `json:"statements"`
	Dialect       string                  `json:"dialect"`
	Optimizations []compiler.Optimization `json:"optimizations"`
	EstimatedRows *int                    `json:"estimated_rows,omitempty"`
}

func addOptimizationFlags(cmd *cobra.Command, opts *CompileOptions) {
	opts.Optimization = compiler.DefaultOptimizationConfig()
	cmd.Flags().BoolVar(&opts.Inline, "inline", false, "print SQL with the arguments substituted")
	cmd.Flags().IntVar(&opts.Optimization.MaxOrConditionsForIn, "max-or-conditions-for-in", opts.Optimization.MaxOrConditionsForIn,
		"fold OR chains of at least this many equalities into IN")
	cmd.Flags().IntVar(&opts.Optimization.MaxInValues, "max-in-values", opts.Optimization.MaxInValues,
		"split IN lists longer than this into a disjunction of IN lists")
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts, Batch: planner.DefaultBatchConfig()}

	cmd := &cobra.Command{
		Use:   "compile <filter|->",
		Short: "Compile a filter to a single SQL statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, opts, args)
		},
	}
	addOptimizationFlags(cmd, opts)
	return cmd
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts, Batch: planner.DefaultBatchConfig()}

	cmd := &cobra.Command{
		Use:   "batch <filter|->",
		Short: "Compile a filter, splitting oversized IN lists into several statements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, opts, args)
		},
	}
	addOptimizationFlags(cmd, opts)
	cmd.Flags().IntVar(&opts.Batch.MaxBatchSize, "max-batch-size", opts.Batch.MaxBatchSize, "values per statement")
	cmd.Flags().BoolVar(&opts.Batch.EnableBatchProcessing, "enable-batch", opts.Batch.EnableBatchProcessing, "split oversized IN lists")
	return cmd
}

func (o *CompileOptions) request(cmd *cobra.Command, args []string) (*engine.Engine, engine.Request, error) {
	if o.Primary == "" {
		return nil, engine.Request{}, NewExitError(ExitCommandError, "--primary is required")
	}
	filter, err := readFilter(cmd, args)
	if err != nil {
		return nil, engine.Request{}, err
	}
	eng, err := o.newEngine(cmd, o.Optimization, o.Batch)
	if err != nil {
		return nil, engine.Request{}, err
	}
	return eng, engine.Request{Filter: filter, Primary: o.Primary, Source: "cli"}, nil
}

func runCompile(cmd *cobra.Command, opts *CompileOptions, args []string) error {
	f := opts.formatter(cmd)
	eng, req, err := opts.request(cmd, args)
	if err != nil {
		return reportSetupError(f, err)
	}
	f.VerboseLog("compiling for %s (%s)", req.Primary, eng.Dialect())

	res, err := eng.Compile(cmd.Context(), req)
	if err != nil {
		return reportCompileError(f, req.Filter, err)
	}

	if f.JSON() {
		return f.Success(compileOutput{
			SQL:           res.SQL,
			Args:          nonNil(res.Args),
			Inline:        res.Inline(),
			Dialect:       res.Dialect,
			Optimizations: res.Optimizations,
		})
	}
	if opts.Inline {
		fmt.Fprintln(f.Writer, res.Inline())
	} else {
		fmt.Fprintln(f.Writer, res.SQL)
		writeArgs(f, res.Args)
	}
	writeOptimizations(f, res.Optimizations)
	return nil
}

func runBatch(cmd *cobra.Command, opts *CompileOptions, args []string) error {
	f := opts.formatter(cmd)
	eng, req, err := opts.request(cmd, args)
	if err != nil {
		return reportSetupError(f, err)
	}
	f.VerboseLog("compiling batch for %s (%s, max_batch_size %d)", req.Primary, eng.Dialect(), opts.Batch.MaxBatchSize)

	res, err := eng.CompileBatch(cmd.Context(), req)
	if err != nil {
		return reportCompileError(f, req.Filter, err)
	}
	inline := res.Inline()

	if f.JSON() {
		out := batchOutput{
			Statements:    make([]compileOutput, len(res.Statements)),
			Dialect:       res.Dialect,
			Optimizations: res.Optimizations,
			EstimatedRows: res.EstimatedRows,
		}
		for i, s := range res.Statements {
			out.Statements[i] = compileOutput{SQL: s.SQL, Args: nonNil(s.Args), Inline: inline[i], Dialect: res.Dialect}
		}
		return f.Success(out)
	}

	n := len(res.Statements)
	for i, s := range res.Statements {
		if n > 1 {
			fmt.Fprintf(f.Writer, "-- statement %d of %d\n", i+1, n)
		}
		if opts.Inline {
			fmt.Fprintln(f.Writer, inline[i])
			continue
		}
		fmt.Fprintln(f.Writer, s.SQL)
		writeArgs(f, s.Args)
	}
	writeOptimizations(f, res.Optimizations)
	if res.EstimatedRows != nil {
		fmt.Fprintf(f.Writer, "-- estimated rows: %d\n", *res.EstimatedRows)
	}
	return nil
}

func writeArgs(f *OutputFormatter, args []any) {
	if len(args) == 0 {
		return
	}
	raw, err := json.Marshal(args)
	if err != nil {
		raw = []byte(fmt.Sprint(args))
	}
	fmt.Fprintf(f.Writer, "-- args: %s\n", raw)
}

func writeOptimizations(f *OutputFormatter, opts []compiler.Optimization) {
	for _, o := range opts {
		fmt.Fprintf(f.Writer, "-- %s\n", o)
	}
}

func nonNil(args []any) []any {
	if args == nil {
		return []any{}
	}
	return args
}

// reportSetupError prints flag, input and configuration errors.
func reportSetupError(f *OutputFormatter, err error) error {
	code := ErrCodeInput
	if errors.Is(err, compiler.ErrInvalidConfig) || errors.Is(err, planner.ErrInvalidBatchConfig) {
		code = ErrCodeConfig
	}
	_ = f.Error(code, err.Error(), nil)
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	return WrapExitError(ExitCommandError, code, err)
}

// reportCompileError prints parse and compile errors and maps them to
// exit codes.
func reportCompileError(f *OutputFormatter, filter string, err error) error {
	var pe *fql.ParseError
	if errors.As(err, &pe) {
		_ = f.ParseError(filter, pe)
		return WrapExitError(ExitFailure, ErrCodeParse, err)
	}
	if errors.Is(err, compiler.ErrInvalidConfig) || errors.Is(err, planner.ErrInvalidBatchConfig) {
		_ = f.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeConfig, err)
	}
	_ = f.Error(ErrCodeCompile, err.Error(), nil)
	return WrapExitError(ExitFailure, ErrCodeCompile, err)
}
