package dependency

import "smartfast/internal/ir"

// unversioned marks keys of non-SSA variables, temporaries, references,
// builtins and the unknown source.
const unversioned = -1

// key identifies a dependency graph vertex. SSA locals and state variables
// are keyed by base variable and version so that equal versions built by
// different code paths compare equal.
type key struct {
	v       ir.Variable
	version int
}

var unknownKey = key{ir.Unknown, unversioned}

func keyOf(v ir.Variable) key {
	switch s := v.(type) {
	case *ir.LocalVariableSSA:
		return key{s.NonSSA(), s.Version()}
	case *ir.StateVariableSSA:
		return key{s.NonSSA(), s.Version()}
	}
	return key{v, unversioned}
}

func plainKey(v ir.Variable) key {
	return key{ir.NonSSA(v), unversioned}
}

func (k key) plain() key {
	return plainKey(k.v)
}

// graph maps a variable to the variables it directly depends on.
type graph struct {
	edges map[key]map[key]bool
	memo  map[key]map[key]bool
}

func newGraph() *graph {
	return &graph{edges: map[key]map[key]bool{}, memo: map[key]map[key]bool{}}
}

func (g *graph) vertex(k key) map[key]bool {
	set, ok := g.edges[k]
	if !ok {
		set = map[key]bool{}
		g.edges[k] = set
	}
	return set
}

// add records that lv depends on each of reads. Constants carry nothing.
func (g *graph) add(lv ir.Variable, reads ...ir.Variable) {
	if lv == nil {
		return
	}
	from := keyOf(lv)
	set := g.vertex(from)
	for _, r := range reads {
		if r == nil {
			continue
		}
		if _, ok := r.(*ir.Constant); ok {
			continue
		}
		if to := keyOf(r); to != from {
			set[to] = true
		}
	}
}

func (g *graph) merge(o *graph) {
	for from, tos := range o.edges {
		set := g.vertex(from)
		for to := range tos {
			set[to] = true
		}
	}
}

// plain folds every SSA version onto its base variable.
func (g *graph) plain() *graph {
	out := newGraph()
	for from, tos := range g.edges {
		f := from.plain()
		set := out.vertex(f)
		for to := range tos {
			if t := to.plain(); t != f {
				set[t] = true
			}
		}
	}
	return out
}

// closure returns every vertex reachable from k, k included. Results are
// memoized; the graph must not change after the first query.
func (g *graph) closure(k key) map[key]bool {
	if c, ok := g.memo[k]; ok {
		return c
	}
	seen := map[key]bool{k: true}
	work := []key{k}
	for len(work) > 0 {
		n := work[len(work)-1]
		work = work[:len(work)-1]
		for to := range g.edges[n] {
			if !seen[to] {
				seen[to] = true
				work = append(work, to)
			}
		}
	}
	g.memo[k] = seen
	return seen
}
