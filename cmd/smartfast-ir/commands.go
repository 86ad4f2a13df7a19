// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"smartfast/internal/engine"
	"smartfast/internal/errors"
	"smartfast/internal/ir"
)

// options are the flags shared by every subcommand.
type options struct {
	source      string
	configPath  string
	metricsPath string
	verbose     int
	noColor     bool

	config engine.Config
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "smartfast-ir",
		Short:         "Lower Solidity ASTs to SSA IR and query data dependencies",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}
	root.SetErr(os.Stderr)
	flags := root.PersistentFlags()
	flags.StringVar(&opts.source, "source", "", "Original source file, used for positions in diagnostics")
	flags.StringVar(&opts.configPath, "config", "", "Config file (default: "+engine.ConfigFileName+" searched upwards)")
	flags.StringVar(&opts.metricsPath, "metrics", "", "Write Prometheus metrics to this file, - for stdout")
	flags.CountVarP(&opts.verbose, "verbose", "v", "Increase log verbosity")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		newIRCmd(opts, false),
		newIRCmd(opts, true),
		newDominatorsCmd(opts),
		newCFGCmd(opts),
		newCallGraphCmd(opts),
		newTaintCmd(opts),
	)
	return root
}

func (o *options) setup(cmd *cobra.Command) error {
	if o.noColor {
		color.NoColor = true
	}
	var err error
	if o.configPath != "" {
		o.config, err = engine.ReadConfig(o.configPath)
	} else {
		o.config, _, err = engine.LoadConfig(".")
	}
	if err != nil {
		return err
	}
	verbosity := o.config.Verbosity
	if cmd.Flags().Changed("verbose") {
		verbosity = o.verbose
	}
	commonlog.Configure(verbosity, nil)
	return nil
}

// analyze runs the pipeline on the AST file at path and reports its
// diagnostics on stderr.
func (o *options) analyze(cmd *cobra.Command, path string) (*engine.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	var source []byte
	if o.source != "" {
		if source, err = os.ReadFile(o.source); err != nil {
			return nil, fmt.Errorf("failed to read source: %w", err)
		}
	}
	table, err := o.config.Table()
	if err != nil {
		return nil, err
	}
	a := engine.New(o.config, table)
	res, err := a.Decode(data, source)
	if err != nil {
		return nil, err
	}

	name := o.source
	if name == "" {
		name = filepath.Base(path)
	}
	reporter := errors.NewReporter(name, string(source))
	for _, d := range res.Diagnostics {
		fmt.Fprint(cmd.ErrOrStderr(), reporter.Format(d))
	}
	return res, o.writeMetrics(cmd, a.Metrics())
}

func (o *options) writeMetrics(cmd *cobra.Command, m *engine.Metrics) error {
	switch o.metricsPath {
	case "":
		return nil
	case "-":
		m.WritePrometheus(cmd.OutOrStdout())
		return nil
	}
	f, err := os.Create(o.metricsPath)
	if err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	defer f.Close()
	m.WritePrometheus(f)
	return nil
}

// selectFunctions returns the named function, or every function.
func selectFunctions(prog *ir.Program, canonical string) ([]*ir.Function, error) {
	if canonical == "" {
		return prog.Functions(), nil
	}
	fn := prog.Function(canonical)
	if fn == nil {
		return nil, fmt.Errorf("no function %s", canonical)
	}
	return []*ir.Function{fn}, nil
}

func newIRCmd(opts *options, ssa bool) *cobra.Command {
	var function string
	use, short := "ir <ast.json>", "Print the IR of every function"
	if ssa {
		use, short = "ssa <ast.json>", "Print the SSA form of every function"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.analyze(cmd, args[0])
			if err != nil {
				return err
			}
			if function == "" {
				ir.NewPrinter(cmd.OutOrStdout(), ssa).Print(res.Program)
				return nil
			}
			fns, err := selectFunctions(res.Program, function)
			if err != nil {
				return err
			}
			ir.NewPrinter(cmd.OutOrStdout(), ssa).PrintFunction(fns[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&function, "function", "f", "", "Only print this function, e.g. Bank.deposit(uint256)")
	return cmd
}

func newDominatorsCmd(opts *options) *cobra.Command {
	var function string
	var dot bool
	cmd := &cobra.Command{
		Use:   "dominators <ast.json>",
		Short: "Print immediate dominators and dominance frontiers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.analyze(cmd, args[0])
			if err != nil {
				return err
			}
			fns, err := selectFunctions(res.Program, function)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, fn := range fns {
				if fn.Dominance == nil {
					continue
				}
				if dot {
					if err := ir.WriteDominatorDot(out, fn); err != nil {
						return err
					}
					continue
				}
				printDominance(out, fn)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&function, "function", "f", "", "Only this function")
	cmd.Flags().BoolVar(&dot, "dot", false, "Write the dominator tree in Graphviz format")
	return cmd
}

func printDominance(w io.Writer, fn *ir.Function) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintln(w, bold(fn.CanonicalName()))
	d := fn.Dominance
	for _, id := range d.Order {
		idom := "-"
		if d.Idom[id] >= 0 {
			idom = fmt.Sprint(d.Idom[id])
		}
		fmt.Fprintf(w, "\tNode %d %s: idom %s, frontier %s\n", id, fn.Nodes[id].Type, idom, intList(d.Frontier[id]))
	}
}

func intList(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func newCFGCmd(opts *options) *cobra.Command {
	var function string
	var ssa bool
	cmd := &cobra.Command{
		Use:   "cfg <ast.json>",
		Short: "Write control flow graphs in Graphviz format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.analyze(cmd, args[0])
			if err != nil {
				return err
			}
			fns, err := selectFunctions(res.Program, function)
			if err != nil {
				return err
			}
			for _, fn := range fns {
				if err := ir.WriteCFGDot(cmd.OutOrStdout(), fn, ssa); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&function, "function", "f", "", "Only this function")
	cmd.Flags().BoolVar(&ssa, "ssa", false, "Label nodes with SSA operations")
	return cmd
}

func newCallGraphCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "callgraph <ast.json>",
		Short: "Write the call graph in Graphviz format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.analyze(cmd, args[0])
			if err != nil {
				return err
			}
			return res.CallGraph.WriteDot(cmd.OutOrStdout())
		},
	}
}

func newTaintCmd(opts *options) *cobra.Command {
	var (
		contract      string
		ignoreGeneric bool
		unprotected   bool
	)
	cmd := &cobra.Command{
		Use:   "taint <ast.json>",
		Short: "List the state variables a caller can influence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.analyze(cmd, args[0])
			if err != nil {
				return err
			}
			contracts := res.Program.Contracts
			if contract != "" {
				c := res.Program.Contract(contract)
				if c == nil {
					return fmt.Errorf("no contract %s", contract)
				}
				contracts = []*ir.Contract{c}
			}

			out := cmd.OutOrStdout()
			red := color.New(color.FgRed).SprintFunc()
			green := color.New(color.FgGreen).SprintFunc()
			deps := res.Dependencies
			for _, c := range contracts {
				fmt.Fprintf(out, "Contract %s\n", c.Name)
				tainted := deps.TaintedStateVariables(c, ignoreGeneric)
				if unprotected {
					tainted = deps.TaintedStateVariablesOnlyUnprotected(c, ignoreGeneric)
				}
				isTainted := map[*ir.StateVariable]bool{}
				for _, sv := range tainted {
					isTainted[sv] = true
				}
				for _, sv := range c.AllStateVariables() {
					if isTainted[sv] {
						fmt.Fprintf(out, "\t%s %s\n", sv.CanonicalName(), red("tainted"))
					} else {
						fmt.Fprintf(out, "\t%s %s\n", sv.CanonicalName(), green("clean"))
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&contract, "contract", "c", "", "Only this contract")
	cmd.Flags().BoolVar(&ignoreGeneric, "ignore-generic", false, "Do not count msg.sender, msg.value, msg.data and tx.origin as sources")
	cmd.Flags().BoolVar(&unprotected, "unprotected", false, "Only consider functions that do not check msg.sender")
	return cmd
}
