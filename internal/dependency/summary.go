package dependency

import (
	"slices"
	"sort"

	"smartfast/internal/ir"
)

// Deps is what one value computed by a function depends on, in terms the
// caller can map onto its own variables.
type Deps struct {
	Params   []int
	State    []*ir.StateVariable
	Builtins []*ir.SolidityVariable
	Unknown  bool
}

func (d Deps) union(o Deps) Deps {
	out := Deps{
		Params:   append(slices.Clone(d.Params), o.Params...),
		State:    append(slices.Clone(d.State), o.State...),
		Builtins: append(slices.Clone(d.Builtins), o.Builtins...),
		Unknown:  d.Unknown || o.Unknown,
	}
	return out.normalize()
}

func (d Deps) normalize() Deps {
	sort.Ints(d.Params)
	d.Params = slices.Compact(d.Params)
	sort.Slice(d.State, func(i, j int) bool { return d.State[i].CanonicalName() < d.State[j].CanonicalName() })
	d.State = slices.Compact(d.State)
	sort.Slice(d.Builtins, func(i, j int) bool { return d.Builtins[i].Name() < d.Builtins[j].Name() })
	d.Builtins = slices.Compact(d.Builtins)
	return d
}

func (d Deps) equal(o Deps) bool {
	return d.Unknown == o.Unknown &&
		slices.Equal(d.Params, o.Params) &&
		slices.Equal(d.State, o.State) &&
		slices.Equal(d.Builtins, o.Builtins)
}

// Summary describes a function's data flow from its parameters, and the
// state and builtins it reads, to its return values and the state it
// writes.
type Summary struct {
	Function *ir.Function
	Returns  []Deps
	State    map[*ir.StateVariable]Deps

	// Degraded is set when the function failed to lower or convert.
	Degraded bool
	// Unstable is set when a recursive summary did not converge.
	Unstable bool
}

func (s *Summary) equal(o *Summary) bool {
	if o == nil || len(s.Returns) != len(o.Returns) || len(s.State) != len(o.State) {
		return false
	}
	for i := range s.Returns {
		if !s.Returns[i].equal(o.Returns[i]) {
			return false
		}
	}
	for sv, d := range s.State {
		od, ok := o.State[sv]
		if !ok || !d.equal(od) {
			return false
		}
	}
	return true
}

// conservative reports whether call sites must assume the worst.
func (s *Summary) conservative() bool {
	return s == nil || s.Degraded || s.Unstable
}

func emptySummary(fn *ir.Function) *Summary {
	return &Summary{Function: fn, Returns: make([]Deps, len(fn.Returns)), State: map[*ir.StateVariable]Deps{}}
}

// opaqueSummary is used for functions without a body: every return value
// depends on every parameter and on the unknown source.
func opaqueSummary(fn *ir.Function) *Summary {
	s := emptySummary(fn)
	all := Deps{Unknown: true}
	for i := range fn.Params {
		all.Params = append(all.Params, i)
	}
	for i := range s.Returns {
		s.Returns[i] = all
	}
	return s
}

func depsOf(closure map[key]bool) Deps {
	var d Deps
	for k := range closure {
		switch v := k.v.(type) {
		case *ir.LocalVariable:
			if v.IsParameter() && k.version <= 0 {
				d.Params = append(d.Params, v.ParamIndex())
			}
		case *ir.StateVariable:
			if k.version <= 0 {
				d.State = append(d.State, v)
			}
		case *ir.SolidityVariable:
			d.Builtins = append(d.Builtins, v)
		default:
			if k == unknownKey {
				d.Unknown = true
			}
		}
	}
	return d.normalize()
}

// summarize reads fn's summary off its SSA dependency graph.
func summarize(fn *ir.Function, g *graph) *Summary {
	s := emptySummary(fn)
	for _, n := range fn.Nodes {
		for _, op := range n.IRsSSA {
			if r, ok := op.(*ir.Return); ok {
				for i, v := range r.Values {
					if i < len(s.Returns) && v != nil {
						s.Returns[i] = s.Returns[i].union(depsOf(g.closure(keyOf(v))))
					}
				}
				continue
			}
			lv := op.Lvalue()
			if ref, ok := lv.(*ir.ReferenceVariableSSA); ok {
				lv = ref.Origin()
			}
			sv, ok := lv.(*ir.StateVariableSSA)
			if !ok || sv.Version() == 0 {
				continue
			}
			s.State[sv.NonSSA()] = s.State[sv.NonSSA()].union(depsOf(g.closure(keyOf(sv))))
		}
	}
	return s
}

// mapDeps translates a callee's Deps into the caller's variables.
func mapDeps(d Deps, args []ir.Variable) []ir.Variable {
	var out []ir.Variable
	for _, i := range d.Params {
		if i < len(args) && args[i] != nil {
			out = append(out, args[i])
		}
	}
	for _, sv := range d.State {
		out = append(out, sv)
	}
	for _, b := range d.Builtins {
		out = append(out, b)
	}
	if d.Unknown {
		out = append(out, ir.Unknown)
	}
	return out
}
