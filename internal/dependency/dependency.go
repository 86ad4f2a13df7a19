// Package dependency answers data-dependency and taint queries over the SSA
// form of a lowered program.
//
// Every function gets an SSA view, where keys are SSA versions, and a
// non-SSA view where versions are folded onto their base variable. A
// contract view merges the non-SSA views of every function callable on the
// contract. Calls are resolved through per-function summaries computed
// bottom-up over the call graph.
//
// The unknown source stands for data the analysis lost track of. A value
// depending on it is reported as depending on every source and as tainted.
//
// An Engine is built once and is not safe for concurrent queries.
package dependency

import (
	"smartfast/internal/callgraph"
	"smartfast/internal/ir"
)

// DefaultRecursionPasses is the number of extra passes a recursive call
// cycle gets before its summaries are declared unstable.
const DefaultRecursionPasses = 1

type Option func(*Engine)

func WithRecursionPasses(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.passes = n
		}
	}
}

type functionView struct {
	ssa   *graph
	plain *graph
}

type contractKey struct {
	contract    *ir.Contract
	unprotected bool
}

type contractView struct {
	graph   *graph
	sources map[key]bool
}

type Engine struct {
	program *ir.Program
	calls   *callgraph.Graph
	passes  int

	summaries map[*ir.Function]*Summary
	functions map[*ir.Function]*functionView
	contracts map[contractKey]*contractView
	unstable  []*ir.Function
}

// New computes summaries and per-function dependency graphs for every
// function of the call graph's program. SSA must already have run.
func New(calls *callgraph.Graph, opts ...Option) *Engine {
	e := &Engine{
		program:   calls.Program(),
		calls:     calls,
		passes:    DefaultRecursionPasses,
		summaries: map[*ir.Function]*Summary{},
		functions: map[*ir.Function]*functionView{},
		contracts: map[contractKey]*contractView{},
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, scc := range calls.SCCs() {
		e.summarizeSCC(scc)
	}
	for _, fn := range calls.Functions() {
		g := e.analyze(fn)
		e.functions[fn] = &functionView{ssa: g, plain: g.plain()}
	}
	return e
}

func analyzable(fn *ir.Function) bool {
	return fn.Complete() && len(fn.Nodes) > 0
}

func initialSummary(fn *ir.Function) *Summary {
	switch {
	case !fn.Complete():
		s := opaqueSummary(fn)
		s.Degraded = true
		return s
	case len(fn.Nodes) == 0:
		return opaqueSummary(fn)
	}
	return emptySummary(fn)
}

func (e *Engine) summarizeSCC(scc []*ir.Function) {
	for _, fn := range scc {
		e.summaries[fn] = initialSummary(fn)
	}
	recursive := e.calls.IsRecursive(scc)
	passes := 1
	if recursive {
		passes += e.passes
	}
	changed := false
	for range passes {
		changed = false
		for _, fn := range scc {
			if !analyzable(fn) {
				continue
			}
			s := summarize(fn, e.analyze(fn))
			if !s.equal(e.summaries[fn]) {
				changed = true
			}
			e.summaries[fn] = s
		}
	}
	if recursive && changed {
		for _, fn := range scc {
			if analyzable(fn) {
				e.summaries[fn].Unstable = true
				e.unstable = append(e.unstable, fn)
			}
		}
	}
}

// analyze builds fn's SSA dependency graph using the current summaries.
func (e *Engine) analyze(fn *ir.Function) *graph {
	g := newGraph()
	for _, n := range fn.Nodes {
		for _, op := range n.IRsSSA {
			e.addOperation(g, op)
		}
	}
	return g
}

func (e *Engine) addOperation(g *graph, op ir.Operation) {
	switch o := op.(type) {
	case *ir.Index:
		g.add(o.Result, o.Base)
		return
	case *ir.Member:
		g.add(o.Result, o.Base)
		return
	case *ir.Length:
		g.add(o.Result, o.Base)
		return
	case *ir.Condition, *ir.Return, *ir.EventCall, *ir.Transfer:
		return
	}

	lv := op.Lvalue()
	if lv == nil {
		return
	}
	reads := e.reads(op)
	if ref, ok := lv.(*ir.ReferenceVariableSSA); ok {
		g.add(ref, reads...)
		if origin := ref.Origin(); origin != nil {
			g.add(origin, append(reads, ref.Previous())...)
		}
		return
	}
	g.add(lv, reads...)
}

func (e *Engine) reads(op ir.Operation) []ir.Variable {
	switch o := op.(type) {
	case *ir.InternalCall:
		return e.callReads(o.Callee, o.Args, returnDeps)
	case *ir.LibraryCall:
		if o.Callee != nil {
			return e.callReads(o.Callee, o.Args, returnDeps)
		}
	case *ir.InternalDynamicCall:
		return append(o.Read(), ir.Unknown)
	case *ir.SolidityCall:
		if o.Builtin.IntroducesTaint() {
			return append(o.Read(), e.program.BuiltinSource(o.Builtin))
		}
	case *ir.PhiCallback:
		return append(o.Read(), e.callbackReads(o)...)
	}
	return op.Read()
}

func returnDeps(s *Summary) []Deps { return s.Returns }

func stateDeps(sv *ir.StateVariable) func(*Summary) []Deps {
	return func(s *Summary) []Deps {
		if d, ok := s.State[sv]; ok {
			return []Deps{d}
		}
		return nil
	}
}

func (e *Engine) callReads(callee *ir.Function, args []ir.Variable, pick func(*Summary) []Deps) []ir.Variable {
	s := e.summaries[callee]
	if s.conservative() {
		return append(append([]ir.Variable{}, args...), ir.Unknown)
	}
	var out []ir.Variable
	for _, d := range pick(s) {
		out = append(out, mapDeps(d, args)...)
	}
	return out
}

// callbackReads returns what a state variable redefined after a call
// depends on besides its previous version.
func (e *Engine) callbackReads(p *ir.PhiCallback) []ir.Variable {
	sv, ok := ir.NonSSA(p.Variable).(*ir.StateVariable)
	if !ok {
		return nil
	}
	switch c := p.Call.(type) {
	case *ir.InternalCall:
		return e.callReads(c.Callee, c.Args, stateDeps(sv))
	case *ir.LibraryCall:
		if c.Callee != nil {
			return e.callReads(c.Callee, c.Args, stateDeps(sv))
		}
	case *ir.HighLevelCall:
		if c.Callee != nil {
			return append(e.callReads(c.Callee, c.Args, stateDeps(sv)), sv)
		}
	}
	// a re-entering call may store whatever the contract's functions store
	return []ir.Variable{sv}
}

// Summary returns the summary computed for fn.
func (e *Engine) Summary(fn *ir.Function) *Summary { return e.summaries[fn] }

// Unstable lists the functions whose recursive summaries did not converge.
func (e *Engine) Unstable() []*ir.Function { return e.unstable }

func dependsOn(closure map[key]bool, source key) bool {
	return closure[source] || closure[unknownKey]
}

// IsDependent reports whether v depends on source anywhere in contract c.
func (e *Engine) IsDependent(v, source ir.Variable, c *ir.Contract) bool {
	return dependsOn(e.contract(c, false).graph.closure(plainKey(v)), plainKey(source))
}

// IsDependentOnlyUnprotected is IsDependent restricted to functions that
// do not check msg.sender.
func (e *Engine) IsDependentOnlyUnprotected(v, source ir.Variable, c *ir.Contract) bool {
	return dependsOn(e.contract(c, true).graph.closure(plainKey(v)), plainKey(source))
}

// IsDependentSSA reports whether SSA variable v depends on SSA variable
// source within fn.
func (e *Engine) IsDependentSSA(v, source ir.Variable, fn *ir.Function) bool {
	if !fn.Complete() {
		return true
	}
	view := e.functions[fn]
	if view == nil {
		return keyOf(v) == keyOf(source)
	}
	return dependsOn(view.ssa.closure(keyOf(v)), keyOf(source))
}

// IsDependentInFunction is IsDependentSSA with versions ignored.
func (e *Engine) IsDependentInFunction(v, source ir.Variable, fn *ir.Function) bool {
	if !fn.Complete() {
		return true
	}
	view := e.functions[fn]
	if view == nil {
		return plainKey(v) == plainKey(source)
	}
	return dependsOn(view.plain.closure(plainKey(v)), plainKey(source))
}

func tainted(closure, sources map[key]bool, ignoreGenericTaint bool) bool {
	for k := range closure {
		if sources[k] {
			return true
		}
		if b, ok := k.v.(*ir.SolidityVariable); ok && b.GenericTaint() && !ignoreGenericTaint {
			return true
		}
	}
	return false
}

// IsTaintedInContract reports whether v may be controlled by a caller of
// c: it depends on a parameter of an entry point, on a generic builtin
// unless ignoreGenericTaint is set, or on the unknown source.
func (e *Engine) IsTaintedInContract(v ir.Variable, c *ir.Contract, ignoreGenericTaint bool) bool {
	view := e.contract(c, false)
	return tainted(view.graph.closure(plainKey(v)), view.sources, ignoreGenericTaint)
}

func (e *Engine) IsTaintedInContractOnlyUnprotected(v ir.Variable, c *ir.Contract, ignoreGenericTaint bool) bool {
	view := e.contract(c, true)
	return tainted(view.graph.closure(plainKey(v)), view.sources, ignoreGenericTaint)
}

// TaintedStateVariables lists the state variables of c, inherited ones
// included, that are tainted in the contract view.
func (e *Engine) TaintedStateVariables(c *ir.Contract, ignoreGenericTaint bool) []*ir.StateVariable {
	return e.taintedState(c, false, ignoreGenericTaint)
}

func (e *Engine) TaintedStateVariablesOnlyUnprotected(c *ir.Contract, ignoreGenericTaint bool) []*ir.StateVariable {
	return e.taintedState(c, true, ignoreGenericTaint)
}

func (e *Engine) taintedState(c *ir.Contract, unprotected, ignoreGenericTaint bool) []*ir.StateVariable {
	view := e.contract(c, unprotected)
	var out []*ir.StateVariable
	for _, sv := range c.AllStateVariables() {
		if tainted(view.graph.closure(plainKey(sv)), view.sources, ignoreGenericTaint) {
			out = append(out, sv)
		}
	}
	return out
}

// IsTainted reports whether v, an SSA or non-SSA variable of fn, may be
// controlled by a caller. Sources are fn's parameters when fn is an entry
// point, generic builtins unless ignoreGenericTaint is set, the state
// variables tainted in fn's contract and the unknown source. Every
// variable of a degraded function is tainted.
func (e *Engine) IsTainted(v ir.Variable, fn *ir.Function, ignoreGenericTaint bool) bool {
	return e.isTainted(v, fn, false, ignoreGenericTaint)
}

func (e *Engine) IsTaintedOnlyUnprotected(v ir.Variable, fn *ir.Function, ignoreGenericTaint bool) bool {
	return e.isTainted(v, fn, true, ignoreGenericTaint)
}

func (e *Engine) isTainted(v ir.Variable, fn *ir.Function, unprotected, ignoreGenericTaint bool) bool {
	if !fn.Complete() {
		return true
	}
	view := e.functions[fn]
	if view == nil {
		return false
	}

	sources := map[key]bool{unknownKey: true}
	if fn.IsExternallyCallable() && !(unprotected && fn.IsProtected()) {
		for _, p := range fn.Params {
			sources[key{p, 0}] = true
			sources[plainKey(p)] = true
		}
	}
	if c := e.program.Contract(fn.Contract); c != nil {
		for _, sv := range e.taintedState(c, unprotected, ignoreGenericTaint) {
			sources[key{sv, 0}] = true
			sources[plainKey(sv)] = true
		}
	}

	if ir.IsSSA(v) {
		return tainted(view.ssa.closure(keyOf(v)), sources, ignoreGenericTaint)
	}
	return tainted(view.plain.closure(plainKey(v)), sources, ignoreGenericTaint)
}

// members returns the functions whose data flow belongs to c's view:
// the functions callable on c and everything they reach. The unprotected
// view starts from the entry points that do not check msg.sender.
func (e *Engine) members(c *ir.Contract, unprotected bool) []*ir.Function {
	var roots []*ir.Function
	if unprotected {
		for _, f := range e.calls.EntryPoints(c) {
			if !f.IsProtected() {
				roots = append(roots, f)
			}
		}
	} else {
		roots = c.AllFunctions()
	}
	seen := map[*ir.Function]bool{}
	var out []*ir.Function
	for _, r := range roots {
		for _, f := range append([]*ir.Function{r}, e.calls.Reachable(r)...) {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}

func (e *Engine) contract(c *ir.Contract, unprotected bool) *contractView {
	k := contractKey{c, unprotected}
	if view, ok := e.contracts[k]; ok {
		return view
	}
	view := &contractView{graph: newGraph(), sources: map[key]bool{unknownKey: true}}
	for _, fn := range e.members(c, unprotected) {
		if fv := e.functions[fn]; fv != nil {
			view.graph.merge(fv.plain)
		}
		if !fn.Complete() {
			degrade(view.graph, c, fn)
		}
	}
	for _, fn := range e.calls.EntryPoints(c) {
		if unprotected && fn.IsProtected() {
			continue
		}
		for _, p := range fn.Params {
			view.sources[plainKey(p)] = true
		}
	}
	e.contracts[k] = view
	return view
}

// degrade makes everything a failed function may have touched depend on
// the unknown source.
func degrade(g *graph, c *ir.Contract, fn *ir.Function) {
	for _, l := range fn.Locals {
		g.add(l, ir.Unknown)
	}
	for _, p := range append(append([]*ir.LocalVariable{}, fn.Params...), fn.Returns...) {
		g.add(p, ir.Unknown)
	}
	if fn.Mutability == "view" || fn.Mutability == "pure" {
		return
	}
	for _, sv := range c.AllStateVariables() {
		g.add(sv, ir.Unknown)
	}
}
