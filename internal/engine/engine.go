// Package engine runs the analysis pipeline: lowering, call graph, SSA
// conversion and dependency summaries, in that order.
package engine

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/tliron/commonlog"

	"smartfast/internal/ast"
	"smartfast/internal/builtins"
	"smartfast/internal/callgraph"
	"smartfast/internal/dependency"
	"smartfast/internal/errors"
	"smartfast/internal/ir"
)

var log = commonlog.GetLogger("smartfast.engine")

// Result is everything one run produced.
type Result struct {
	Program      *ir.Program
	CallGraph    *callgraph.Graph
	Dependencies *dependency.Engine
	// Diagnostics holds lowering and SSA errors, each followed by a
	// warning naming the degraded function, then unstable summaries.
	Diagnostics []errors.Diagnostic
}

// Degraded lists the functions whose lowering or SSA conversion failed.
func (r *Result) Degraded() []*ir.Function {
	var out []*ir.Function
	for _, fn := range r.Program.Functions() {
		if !fn.Complete() {
			out = append(out, fn)
		}
	}
	return out
}

type Analyzer struct {
	config  Config
	table   *builtins.Table
	metrics *Metrics
}

// New returns an analyzer. A nil table selects the default builtins.
func New(cfg Config, table *builtins.Table) *Analyzer {
	if table == nil {
		table = builtins.Default()
	}
	return &Analyzer{config: cfg, table: table, metrics: newMetrics()}
}

func (a *Analyzer) Metrics() *Metrics { return a.metrics }

// Decode parses a compact-JSON AST and runs the analysis on it.
func (a *Analyzer) Decode(data, source []byte) (*Result, error) {
	unit, err := ast.Decode(data, source)
	if err != nil {
		return nil, err
	}
	return a.Run(unit), nil
}

// Run analyzes unit. Failures are confined to the function they occur in
// and reported in Result.Diagnostics.
func (a *Analyzer) Run(unit *ast.SourceUnit) *Result {
	prog, _ := ir.NewBuilder(a.table).Build(unit)
	calls := callgraph.New(prog)

	conv := ir.NewSSAConverter(calls, a.config.ReentrancyPhis)
	for _, fn := range prog.Functions() {
		if fn.Status == ir.StatusLoweringFailed {
			continue
		}
		start := time.Now()
		if err := conv.Convert(fn); err != nil {
			log.Debugf("ssa conversion of %s failed: %s", fn.CanonicalName(), err)
		}
		a.metrics.ssaDuration.UpdateDuration(start)
	}

	deps := dependency.New(calls, dependency.WithRecursionPasses(a.config.RecursionPasses))
	res := &Result{Program: prog, CallGraph: calls, Dependencies: deps}

	for _, fn := range prog.Functions() {
		a.metrics.functions.Inc()
		a.count(fn)
		if fn.Complete() {
			continue
		}
		switch fn.Status {
		case ir.StatusLoweringFailed:
			a.metrics.loweringFailed.Inc()
		case ir.StatusSSAFailed:
			a.metrics.ssaFailed.Inc()
		}
		res.Diagnostics = append(res.Diagnostics, degraded(fn)...)
	}
	for _, fn := range deps.Unstable() {
		a.metrics.unstable.Inc()
		msg := fmt.Sprintf("summary of %s did not converge; its call sites are treated as tainted", fn.CanonicalName())
		log.Warningf("%s: %s", errors.WarningUnstableSummary, msg)
		res.Diagnostics = append(res.Diagnostics,
			errors.NewWarning(errors.WarningUnstableSummary, msg, position(fn)).
				WithHelp(fmt.Sprintf("raise recursionPasses in %s", ConfigFileName)).
				Build())
	}
	return res
}

func (a *Analyzer) count(fn *ir.Function) {
	for _, n := range fn.Nodes {
		a.metrics.operations.Add(len(n.IRs))
		for _, op := range n.IRsSSA {
			switch op.(type) {
			case *ir.Phi, *ir.PhiCallback, *ir.PhiAlias:
				a.metrics.phis.Inc()
			}
		}
	}
}

type diagnoser interface {
	Diagnostic() errors.Diagnostic
}

// degraded returns the diagnostics for a function that failed a stage and
// logs the failure.
func degraded(fn *ir.Function) []errors.Diagnostic {
	var out []errors.Diagnostic
	code := ""
	var d diagnoser
	if stderrors.As(fn.Err, &d) {
		diag := d.Diagnostic()
		code = diag.Code
		out = append(out, diag)
	}
	msg := fmt.Sprintf("%s is degraded (%s)", fn.CanonicalName(), fn.Status)
	log.Warningf("%s: %s: %s", errors.WarningDegradedFunction, msg, fn.Err)
	w := errors.NewWarning(errors.WarningDegradedFunction, msg, position(fn)).
		WithHelp("every variable of this function is treated as tainted")
	if code != "" {
		w = w.WithNote("caused by " + code)
	}
	return append(out, w.Build())
}

func position(fn *ir.Function) ast.Position {
	if fn.Decl != nil {
		return fn.Decl.Pos
	}
	return ast.Position{}
}
