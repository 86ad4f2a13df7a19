package callgraph

import (
	"fmt"
	"io"
	"strings"

	"smartfast/internal/ir"
)

type EdgeKind int

const (
	Internal EdgeKind = iota
	Modifier
	Library
	// External is a high-level call whose target function is in the program.
	External
)

func (k EdgeKind) String() string {
	switch k {
	case Internal:
		return "internal"
	case Modifier:
		return "modifier"
	case Library:
		return "library"
	case External:
		return "external"
	}
	return "unknown"
}

// Edge is one call site.
type Edge struct {
	Caller *ir.Function
	Callee *ir.Function
	Kind   EdgeKind
	Op     ir.Operation
}

// Graph is the call graph of a lowered program.
type Graph struct {
	program   *ir.Program
	functions []*ir.Function
	out       map[*ir.Function][]Edge
	in        map[*ir.Function][]Edge

	written   map[*ir.Function][]*ir.StateVariable
	reentrant map[string][]*ir.StateVariable
}

// New builds the call graph from the non-SSA IR of prog.
func New(prog *ir.Program) *Graph {
	g := &Graph{
		program:   prog,
		functions: prog.Functions(),
		out:       map[*ir.Function][]Edge{},
		in:        map[*ir.Function][]Edge{},
		written:   map[*ir.Function][]*ir.StateVariable{},
		reentrant: map[string][]*ir.StateVariable{},
	}
	for _, fn := range g.functions {
		for _, n := range fn.Nodes {
			for _, op := range n.IRs {
				if e, ok := edgeOf(fn, op); ok {
					g.out[fn] = append(g.out[fn], e)
					g.in[e.Callee] = append(g.in[e.Callee], e)
				}
			}
		}
	}
	return g
}

func edgeOf(caller *ir.Function, op ir.Operation) (Edge, bool) {
	switch o := op.(type) {
	case *ir.InternalCall:
		kind := Internal
		if o.IsModifier {
			kind = Modifier
		}
		return Edge{Caller: caller, Callee: o.Callee, Kind: kind, Op: op}, true
	case *ir.LibraryCall:
		if o.Callee != nil {
			return Edge{Caller: caller, Callee: o.Callee, Kind: Library, Op: op}, true
		}
	case *ir.HighLevelCall:
		if o.Callee != nil {
			return Edge{Caller: caller, Callee: o.Callee, Kind: External, Op: op}, true
		}
	}
	return Edge{}, false
}

func (g *Graph) Program() *ir.Program { return g.program }

// Functions returns every function and modifier of the program.
func (g *Graph) Functions() []*ir.Function { return g.functions }

// Edges returns the call sites in fn, in program order.
func (g *Graph) Edges(fn *ir.Function) []Edge { return g.out[fn] }

func matches(k EdgeKind, kinds []EdgeKind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

func appendFunc(out []*ir.Function, seen map[*ir.Function]bool, fn *ir.Function) []*ir.Function {
	if seen[fn] {
		return out
	}
	seen[fn] = true
	return append(out, fn)
}

// Callees returns the distinct functions fn calls through edges of the
// given kinds, or of any kind when none is given.
func (g *Graph) Callees(fn *ir.Function, kinds ...EdgeKind) []*ir.Function {
	var out []*ir.Function
	seen := map[*ir.Function]bool{}
	for _, e := range g.out[fn] {
		if matches(e.Kind, kinds) {
			out = appendFunc(out, seen, e.Callee)
		}
	}
	return out
}

func (g *Graph) Callers(fn *ir.Function, kinds ...EdgeKind) []*ir.Function {
	var out []*ir.Function
	seen := map[*ir.Function]bool{}
	for _, e := range g.in[fn] {
		if matches(e.Kind, kinds) {
			out = appendFunc(out, seen, e.Caller)
		}
	}
	return out
}

var localKinds = []EdgeKind{Internal, Modifier, Library}

// Reachable returns every function reached from fn through internal,
// modifier and library calls. fn itself is included only when it is
// reached again through recursion.
func (g *Graph) Reachable(fn *ir.Function) []*ir.Function {
	var out []*ir.Function
	seen := map[*ir.Function]bool{}
	work := g.Callees(fn, localKinds...)
	for len(work) > 0 {
		f := work[0]
		work = work[1:]
		if seen[f] {
			continue
		}
		out = appendFunc(out, seen, f)
		work = append(work, g.Callees(f, localKinds...)...)
	}
	return out
}

// EntryPoints returns the functions of c a transaction can call
// directly, inherited ones included.
func (g *Graph) EntryPoints(c *ir.Contract) []*ir.Function {
	var out []*ir.Function
	for _, f := range c.AllFunctions() {
		if f.IsExternallyCallable() {
			out = append(out, f)
		}
	}
	return out
}

// ReachableFromEntryPoints returns the entry points of c and everything
// they reach.
func (g *Graph) ReachableFromEntryPoints(c *ir.Contract) []*ir.Function {
	var out []*ir.Function
	seen := map[*ir.Function]bool{}
	for _, e := range g.EntryPoints(c) {
		out = appendFunc(out, seen, e)
		for _, f := range g.Reachable(e) {
			out = appendFunc(out, seen, f)
		}
	}
	return out
}

// SCCs returns the strongly connected components of the internal,
// modifier and library call graph, callees before callers.
func (g *Graph) SCCs() [][]*ir.Function {
	index := map[*ir.Function]int{}
	low := map[*ir.Function]int{}
	onStack := map[*ir.Function]bool{}
	var stack []*ir.Function
	var out [][]*ir.Function
	next := 0

	var connect func(*ir.Function)
	connect = func(v *ir.Function) {
		index[v] = next
		low[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.Callees(v, localKinds...) {
			if _, visited := index[w]; !visited {
				connect(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] == index[v] {
			var scc []*ir.Function
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			// keep program order inside a component
			out = append(out, g.ordered(scc))
		}
	}

	for _, fn := range g.functions {
		if _, visited := index[fn]; !visited {
			connect(fn)
		}
	}
	return out
}

func (g *Graph) ordered(scc []*ir.Function) []*ir.Function {
	if len(scc) == 1 {
		return scc
	}
	in := map[*ir.Function]bool{}
	for _, f := range scc {
		in[f] = true
	}
	out := make([]*ir.Function, 0, len(scc))
	for _, f := range g.functions {
		if in[f] {
			out = append(out, f)
		}
	}
	return out
}

// IsRecursive reports whether scc contains a call cycle.
func (g *Graph) IsRecursive(scc []*ir.Function) bool {
	if len(scc) > 1 {
		return true
	}
	for _, c := range g.Callees(scc[0], localKinds...) {
		if c == scc[0] {
			return true
		}
	}
	return false
}

// StateVariablesWritten returns the state variables fn writes itself or
// through the functions it reaches.
func (g *Graph) StateVariablesWritten(fn *ir.Function) []*ir.StateVariable {
	if w, ok := g.written[fn]; ok {
		return w
	}
	var out []*ir.StateVariable
	seen := map[*ir.StateVariable]bool{}
	add := func(f *ir.Function) {
		for _, sv := range f.StateVariablesWritten() {
			if !seen[sv] {
				seen[sv] = true
				out = append(out, sv)
			}
		}
	}
	add(fn)
	for _, f := range g.Reachable(fn) {
		add(f)
	}
	g.written[fn] = out
	return out
}

// ReentrantStateVariables returns the state variables of fn's contract
// that any of its entry points may write, the set a re-entering call can
// change.
func (g *Graph) ReentrantStateVariables(fn *ir.Function) []*ir.StateVariable {
	if w, ok := g.reentrant[fn.Contract]; ok {
		return w
	}
	c := g.program.Contract(fn.Contract)
	if c == nil {
		return nil
	}
	var out []*ir.StateVariable
	seen := map[*ir.StateVariable]bool{}
	for _, e := range g.EntryPoints(c) {
		for _, sv := range g.StateVariablesWritten(e) {
			if !seen[sv] {
				seen[sv] = true
				out = append(out, sv)
			}
		}
	}
	g.reentrant[fn.Contract] = out
	return out
}

// WriteDot writes the graph in Graphviz format, one cluster per contract.
func (g *Graph) WriteDot(w io.Writer) error {
	var b strings.Builder
	b.WriteString("strict digraph {\n")
	for _, c := range g.program.Contracts {
		fmt.Fprintf(&b, "subgraph \"cluster_%s\" {\nlabel = \"%s\"\n", c.Name, c.Name)
		for _, f := range append(append([]*ir.Function{}, c.Modifiers...), c.Functions...) {
			fmt.Fprintf(&b, "\"%s\" [label=\"%s\"]\n", f.CanonicalName(), f.Signature())
		}
		b.WriteString("}\n")
	}
	for _, f := range g.functions {
		for _, e := range g.out[f] {
			fmt.Fprintf(&b, "\"%s\" -> \"%s\" [label=\"%s\"]\n", f.CanonicalName(), e.Callee.CanonicalName(), e.Kind)
		}
	}
	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}
