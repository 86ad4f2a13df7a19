package ir

import (
	"smartfast/internal/ast"
	"smartfast/internal/errors"
)

// CallEffects tells the SSA converter which state variables a call may
// write. The call graph implements it.
type CallEffects interface {
	// StateVariablesWritten returns the state variables fn writes,
	// directly or through its callees.
	StateVariablesWritten(fn *Function) []*StateVariable
	// ReentrantStateVariables returns the state variables an external
	// call made from fn may write by re-entering fn's contract.
	ReentrantStateVariables(fn *Function) []*StateVariable
}

// SSAConverter builds the SSA form of lowered functions.
type SSAConverter struct {
	effects    CallEffects
	reentrancy bool
}

// NewSSAConverter returns a converter. With nil effects no callback phis
// are emitted; reentrancy enables them after external calls.
func NewSSAConverter(effects CallEffects, reentrancy bool) *SSAConverter {
	return &SSAConverter{effects: effects, reentrancy: reentrancy}
}

// Convert fills IRsSSA for every node of fn. Converting twice is a no-op.
// Functions that failed to lower or have no implementation are skipped.
func (c *SSAConverter) Convert(fn *Function) error {
	if fn.Status == StatusLoweringFailed || fn.ssaDone || alreadySSA(fn) {
		return nil
	}
	if len(fn.Nodes) == 0 && (fn.Decl == nil || !fn.Decl.Implemented()) {
		return nil
	}
	if err := validateCFG(fn); err != nil {
		return c.fail(fn, err)
	}

	fn.Dominance = ComputeDominance(fn)
	r := newRenamer(c, fn)
	r.placePhis()
	if err := r.walk(fn.Nodes[0].ID); err != nil {
		return c.fail(fn, err)
	}
	for _, n := range fn.Nodes {
		if !fn.Dominance.Reachable[n.ID] {
			// unreachable code sees entry values only
			if err := r.walk(n.ID); err != nil {
				return c.fail(fn, err)
			}
		}
	}
	fn.ssaDone = true
	return nil
}

func (c *SSAConverter) fail(fn *Function, err error) error {
	fn.Status = StatusSSAFailed
	fn.Err = err
	for _, n := range fn.Nodes {
		n.IRsSSA = nil
	}
	return err
}

func alreadySSA(fn *Function) bool {
	for _, n := range fn.Nodes {
		for _, op := range n.IRsSSA {
			if IsSSA(op.Lvalue()) {
				return true
			}
			for _, v := range op.Read() {
				if IsSSA(v) {
					return true
				}
			}
		}
	}
	return false
}

func validateCFG(fn *Function) error {
	name := fn.CanonicalName()
	if len(fn.Nodes) == 0 || fn.Nodes[0].Type != NodeEntryPoint {
		var pos ast.Position
		if fn.Decl != nil {
			pos = fn.Decl.Pos
		}
		return errors.SSA(errors.ErrorMissingEntry, name, pos, "no ENTRY_POINT node")
	}
	owned := func(x *Node) bool {
		return x != nil && x.ID >= 0 && x.ID < len(fn.Nodes) && fn.Nodes[x.ID] == x
	}
	hasNode := func(ns []*Node, x *Node) bool {
		for _, y := range ns {
			if y == x {
				return true
			}
		}
		return false
	}
	for i, n := range fn.Nodes {
		if n.ID != i {
			return errors.SSA(errors.ErrorInconsistentEdges, name, n.Pos, "node at index %d has ID %d", i, n.ID)
		}
		for _, s := range n.Sons {
			if !owned(s) || !hasNode(s.Fathers, n) {
				return errors.SSA(errors.ErrorInconsistentEdges, name, n.Pos, "node %d has a son that does not list it as a father", n.ID)
			}
		}
		for _, f := range n.Fathers {
			if !owned(f) || !hasNode(f.Sons, n) {
				return errors.SSA(errors.ErrorInconsistentEdges, name, n.Pos, "node %d has a father that does not list it as a son", n.ID)
			}
		}
	}
	return nil
}

// renamer carries the per-function state of SSA construction.
type renamer struct {
	conv *SSAConverter
	fn   *Function
	dom  *Dominance

	// tracked variables in a stable order
	tracked []Variable
	counter map[Variable]int
	stacks  map[Variable][]Variable
	entry   map[Variable]Variable
	refs    map[*ReferenceVariable]*ReferenceVariableSSA
	phis    map[int][]*Phi
}

func newRenamer(c *SSAConverter, fn *Function) *renamer {
	r := &renamer{
		conv:    c,
		fn:      fn,
		dom:     fn.Dominance,
		counter: map[Variable]int{},
		stacks:  map[Variable][]Variable{},
		entry:   map[Variable]Variable{},
		refs:    map[*ReferenceVariable]*ReferenceVariableSSA{},
		phis:    map[int][]*Phi{},
	}
	return r
}

func (r *renamer) track(seen map[Variable]bool, v Variable) {
	switch v.(type) {
	case *LocalVariable, *StateVariable:
	default:
		return
	}
	if !seen[v] {
		seen[v] = true
		r.tracked = append(r.tracked, v)
	}
}

// callWrites returns the state variables op may write through a callee.
func (r *renamer) callWrites(op Operation) []*StateVariable {
	effects := r.conv.effects
	if effects == nil {
		return nil
	}
	switch o := op.(type) {
	case *InternalCall:
		return effects.StateVariablesWritten(o.Callee)
	case *LibraryCall:
		if o.Callee != nil {
			return effects.StateVariablesWritten(o.Callee)
		}
	case *HighLevelCall:
		var out []*StateVariable
		if o.Callee != nil && o.Callee.Contract == r.fn.Contract {
			out = append(out, effects.StateVariablesWritten(o.Callee)...)
		}
		if r.conv.reentrancy {
			out = append(out, effects.ReentrantStateVariables(r.fn)...)
		}
		return dedupState(out)
	case *LowLevelCall:
		if r.conv.reentrancy {
			return effects.ReentrantStateVariables(r.fn)
		}
	}
	return nil
}

func dedupState(vs []*StateVariable) []*StateVariable {
	seen := map[*StateVariable]bool{}
	out := vs[:0]
	for _, v := range vs {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// defsOf returns the tracked variables op defines in non-SSA form.
func (r *renamer) defsOf(op Operation) []Variable {
	var out []Variable
	if lv := op.Lvalue(); lv != nil && !definesReference(op) {
		w := lv
		if ref, ok := lv.(*ReferenceVariable); ok {
			w = ref.Origin()
		}
		switch w := w.(type) {
		case *LocalVariable:
			out = append(out, w)
			if _, viaRef := lv.(*ReferenceVariable); viaRef && w.IsStorage() {
				for _, sv := range r.fn.StoragePointerTargets(w) {
					out = append(out, sv)
				}
			}
		case *StateVariable:
			out = append(out, w)
		}
	}
	for _, sv := range r.callWrites(op) {
		out = append(out, sv)
	}
	return out
}

// definesReference reports whether op creates its result reference rather
// than writing through it.
func definesReference(op Operation) bool {
	switch op.(type) {
	case *Index, *Member, *Length:
		_, ok := op.Lvalue().(*ReferenceVariable)
		return ok
	}
	return false
}

// placePhis inserts phi functions on the iterated dominance frontier of
// each tracked variable's definitions.
func (r *renamer) placePhis() {
	seen := map[Variable]bool{}
	for _, l := range r.fn.Locals {
		r.track(seen, l)
	}
	defs := map[Variable][]int{}
	for _, n := range r.fn.Nodes {
		for _, op := range n.IRs {
			for _, v := range op.Read() {
				r.track(seen, v)
			}
			if ref, ok := op.Lvalue().(*ReferenceVariable); ok {
				r.track(seen, ref.Origin())
			}
			for _, v := range r.defsOf(op) {
				r.track(seen, v)
				if ids := defs[v]; len(ids) == 0 || ids[len(ids)-1] != n.ID {
					defs[v] = append(ids, n.ID)
				}
			}
		}
	}

	for _, v := range r.tracked {
		hasPhi := map[int]bool{}
		inWork := map[int]bool{}
		work := append([]int{}, defs[v]...)
		for _, id := range work {
			inWork[id] = true
		}
		for len(work) > 0 {
			x := work[len(work)-1]
			work = work[:len(work)-1]
			if !r.dom.Reachable[x] {
				continue
			}
			for _, y := range r.dom.Frontier[x] {
				if hasPhi[y] {
					continue
				}
				hasPhi[y] = true
				preds := r.dom.reachableFathers(r.fn.Nodes[y])
				phi := &Phi{Variable: v, Rvalues: make([]Variable, len(preds)), Preds: make([]int, len(preds))}
				phi.setNode(y)
				for i, p := range preds {
					phi.Preds[i] = p.ID
				}
				r.phis[y] = append(r.phis[y], phi)
				if !inWork[y] {
					inWork[y] = true
					work = append(work, y)
				}
			}
		}
	}
}

func (r *renamer) top(v Variable) Variable {
	if s := r.stacks[v]; len(s) > 0 {
		return s[len(s)-1]
	}
	if e, ok := r.entry[v]; ok {
		return e
	}
	e := r.version(v, 0)
	r.entry[v] = e
	return e
}

func (r *renamer) version(v Variable, n int) Variable {
	switch b := v.(type) {
	case *LocalVariable:
		return &LocalVariableSSA{base: b, version: n}
	case *StateVariable:
		return &StateVariableSSA{base: b, version: n}
	}
	return v
}

// define pushes a fresh version of v and records the push in pushed.
func (r *renamer) define(v Variable, pushed *[]Variable) Variable {
	r.counter[v]++
	nv := r.version(v, r.counter[v])
	r.stacks[v] = append(r.stacks[v], nv)
	*pushed = append(*pushed, v)
	return nv
}

func (r *renamer) read(v Variable) Variable {
	switch b := v.(type) {
	case *LocalVariable, *StateVariable:
		return r.top(b)
	case *ReferenceVariable:
		if s, ok := r.refs[b]; ok {
			return s
		}
		s := &ReferenceVariableSSA{base: b, pointsTo: r.read(b.pointsTo), origin: r.top(b.Origin())}
		r.refs[b] = s
		return s
	}
	return v
}

func (r *renamer) reads(vs []Variable) []Variable {
	if vs == nil {
		return nil
	}
	out := make([]Variable, len(vs))
	for i, v := range vs {
		if v != nil {
			out[i] = r.read(v)
		}
	}
	return out
}

// walk renames node id and its dominator subtree.
func (r *renamer) walk(id int) error {
	n := r.fn.Nodes[id]
	var pushed []Variable
	n.IRsSSA = nil

	for _, phi := range r.phis[id] {
		phi.Result = r.define(phi.Variable, &pushed)
		n.IRsSSA = append(n.IRsSSA, phi)
	}

	for _, op := range n.IRs {
		if err := r.rename(n, op, &pushed); err != nil {
			return err
		}
	}

	for _, s := range n.Sons {
		for _, phi := range r.phis[s.ID] {
			for i, p := range phi.Preds {
				if p == id {
					phi.Rvalues[i] = r.top(phi.Variable)
				}
			}
		}
	}

	if r.dom.Reachable[id] {
		for _, child := range r.dom.Children[id] {
			if err := r.walk(child); err != nil {
				return err
			}
		}
	}

	for i := len(pushed) - 1; i >= 0; i-- {
		v := pushed[i]
		r.stacks[v] = r.stacks[v][:len(r.stacks[v])-1]
	}
	return nil
}

func (r *renamer) rename(n *Node, op Operation, pushed *[]Variable) error {
	cp, err := r.cloneReads(n, op)
	if err != nil {
		return err
	}

	var aliases []Operation
	switch lv := op.Lvalue().(type) {
	case nil:
	case *LocalVariable, *StateVariable:
		cp.(resultSetter).setResult(r.define(lv, pushed))
	case *ReferenceVariable:
		if definesReference(op) {
			var pointsTo Variable
			switch o := cp.(type) {
			case *Index:
				pointsTo = o.Base
			case *Member:
				pointsTo = o.Base
			case *Length:
				pointsTo = o.Base
			}
			s := &ReferenceVariableSSA{base: lv, pointsTo: pointsTo, origin: r.top(lv.Origin())}
			r.refs[lv] = s
			cp.(resultSetter).setResult(s)
			break
		}
		// write through the reference: the origin gets a new version
		prev := r.read(lv)
		s := &ReferenceVariableSSA{base: lv, pointsTo: prev.(*ReferenceVariableSSA).pointsTo}
		origin := lv.Origin()
		switch o := origin.(type) {
		case *LocalVariable, *StateVariable:
			s.previous = r.top(o)
			s.origin = r.define(o, pushed)
			if local, ok := o.(*LocalVariable); ok && local.IsStorage() {
				for _, sv := range r.fn.StoragePointerTargets(local) {
					alias := &PhiAlias{Variable: sv, Previous: r.top(sv), Pointer: s.origin}
					alias.setNode(n.ID)
					alias.Result = r.define(sv, pushed)
					aliases = append(aliases, alias)
				}
			}
		default:
			s.origin = origin
		}
		r.refs[lv] = s
		cp.(resultSetter).setResult(s)
	default:
		// temporaries and tuples are already single-assignment
	}

	n.IRsSSA = append(n.IRsSSA, cp)
	n.IRsSSA = append(n.IRsSSA, aliases...)

	for _, sv := range r.callWrites(op) {
		phi := &PhiCallback{Variable: sv, Previous: r.top(sv), Call: cp}
		phi.setNode(n.ID)
		phi.Result = r.define(sv, pushed)
		n.IRsSSA = append(n.IRsSSA, phi)
	}
	return nil
}

// cloneReads copies op with its operands renamed. The lvalue is left as
// in op; rename replaces it.
func (r *renamer) cloneReads(n *Node, op Operation) (Operation, error) {
	var cp Operation
	switch o := op.(type) {
	case *Assignment:
		c := *o
		c.Rvalue = r.read(o.Rvalue)
		cp = &c
	case *Binary:
		c := *o
		c.Left, c.Right = r.read(o.Left), r.read(o.Right)
		cp = &c
	case *Unary:
		c := *o
		c.Operand = r.read(o.Operand)
		cp = &c
	case *Condition:
		c := *o
		c.Value = r.read(o.Value)
		cp = &c
	case *Index:
		c := *o
		c.Base, c.Index = r.read(o.Base), r.read(o.Index)
		cp = &c
	case *Member:
		c := *o
		c.Base = r.read(o.Base)
		cp = &c
	case *Length:
		c := *o
		c.Base = r.read(o.Base)
		cp = &c
	case *TypeConversion:
		c := *o
		c.Value = r.read(o.Value)
		cp = &c
	case *Unpack:
		c := *o
		c.Tuple = r.read(o.Tuple)
		cp = &c
	case *InitArray:
		c := *o
		c.Elems = r.reads(o.Elems)
		cp = &c
	case *NewArray:
		c := *o
		c.Args = r.reads(o.Args)
		cp = &c
	case *NewContract:
		c := *o
		c.Args = r.reads(o.Args)
		if o.Value != nil {
			c.Value = r.read(o.Value)
		}
		cp = &c
	case *NewStructure:
		c := *o
		c.Args = r.reads(o.Args)
		cp = &c
	case *NewElementaryType:
		c := *o
		c.Args = r.reads(o.Args)
		cp = &c
	case *InternalCall:
		c := *o
		c.Args = r.reads(o.Args)
		cp = &c
	case *InternalDynamicCall:
		c := *o
		c.Function = r.read(o.Function)
		c.Args = r.reads(o.Args)
		cp = &c
	case *HighLevelCall:
		c := *o
		c.Destination = r.read(o.Destination)
		c.Args = r.reads(o.Args)
		if o.Value != nil {
			c.Value = r.read(o.Value)
		}
		if o.Gas != nil {
			c.Gas = r.read(o.Gas)
		}
		cp = &c
	case *LowLevelCall:
		c := *o
		c.Destination = r.read(o.Destination)
		c.Args = r.reads(o.Args)
		if o.Value != nil {
			c.Value = r.read(o.Value)
		}
		if o.Gas != nil {
			c.Gas = r.read(o.Gas)
		}
		cp = &c
	case *LibraryCall:
		c := *o
		c.Args = r.reads(o.Args)
		cp = &c
	case *SolidityCall:
		c := *o
		c.Args = r.reads(o.Args)
		cp = &c
	case *EventCall:
		c := *o
		c.Args = r.reads(o.Args)
		cp = &c
	case *Send:
		c := *o
		c.Destination, c.Value = r.read(o.Destination), r.read(o.Value)
		cp = &c
	case *Transfer:
		c := *o
		c.Destination, c.Value = r.read(o.Destination), r.read(o.Value)
		cp = &c
	case *Delete:
		c := *o
		cp = &c
	case *Return:
		c := *o
		c.Values = r.reads(o.Values)
		cp = &c
	default:
		return nil, errors.SSA(errors.ErrorUnknownOperation, r.fn.CanonicalName(), n.Pos, "cannot convert operation %T", op)
	}
	return cp, nil
}
