package ir

import "smartfast/internal/ast"

// Per-function listings derived from the non-SSA IR.

func (f *Function) operations() []Operation {
	var out []Operation
	for _, n := range f.Nodes {
		out = append(out, n.IRs...)
	}
	return out
}

// written returns the variable an operation writes, seen through
// references. Creating a reference writes nothing.
func written(op Operation) Variable {
	if definesReference(op) {
		return nil
	}
	lv := op.Lvalue()
	if r, ok := lv.(*ReferenceVariable); ok {
		return r.Origin()
	}
	return lv
}

func appendState(out []*StateVariable, seen map[*StateVariable]bool, v *StateVariable) []*StateVariable {
	if v == nil || seen[v] {
		return out
	}
	seen[v] = true
	return append(out, v)
}

// StateVariablesRead lists state variables read directly or through a
// reference, in first-use order.
func (f *Function) StateVariablesRead() []*StateVariable {
	var out []*StateVariable
	seen := map[*StateVariable]bool{}
	for _, op := range f.operations() {
		for _, r := range op.Read() {
			if ref, ok := r.(*ReferenceVariable); ok {
				r = ref.Origin()
			}
			if sv, ok := r.(*StateVariable); ok {
				out = appendState(out, seen, sv)
			}
		}
	}
	return out
}

// StateVariablesWritten lists state variables written by f itself,
// including writes through storage pointers.
func (f *Function) StateVariablesWritten() []*StateVariable {
	var out []*StateVariable
	seen := map[*StateVariable]bool{}
	for _, op := range f.operations() {
		switch w := written(op).(type) {
		case *StateVariable:
			out = appendState(out, seen, w)
		case *LocalVariable:
			if _, direct := op.Lvalue().(*LocalVariable); direct {
				continue
			}
			for _, sv := range f.StoragePointerTargets(w) {
				out = appendState(out, seen, sv)
			}
		}
	}
	return out
}

func (f *Function) InternalCalls() []*InternalCall {
	var out []*InternalCall
	for _, op := range f.operations() {
		if c, ok := op.(*InternalCall); ok {
			out = append(out, c)
		}
	}
	return out
}

func (f *Function) HighLevelCalls() []*HighLevelCall {
	var out []*HighLevelCall
	for _, op := range f.operations() {
		if c, ok := op.(*HighLevelCall); ok {
			out = append(out, c)
		}
	}
	return out
}

func (f *Function) LowLevelCalls() []*LowLevelCall {
	var out []*LowLevelCall
	for _, op := range f.operations() {
		if c, ok := op.(*LowLevelCall); ok {
			out = append(out, c)
		}
	}
	return out
}

func (f *Function) LibraryCalls() []*LibraryCall {
	var out []*LibraryCall
	for _, op := range f.operations() {
		if c, ok := op.(*LibraryCall); ok {
			out = append(out, c)
		}
	}
	return out
}

func (f *Function) SolidityCalls() []*SolidityCall {
	var out []*SolidityCall
	for _, op := range f.operations() {
		if c, ok := op.(*SolidityCall); ok {
			out = append(out, c)
		}
	}
	return out
}

// MakesExternalCall reports whether f may transfer control to another
// contract.
func (f *Function) MakesExternalCall() bool {
	for _, op := range f.operations() {
		switch op.(type) {
		case *HighLevelCall, *LowLevelCall, *Send, *Transfer:
			return true
		}
	}
	return false
}

// CanSendEth reports whether f may move ether out of the contract.
func (f *Function) CanSendEth() bool {
	for _, op := range f.operations() {
		switch o := op.(type) {
		case *Send, *Transfer:
			return true
		case *HighLevelCall:
			if o.Value != nil {
				return true
			}
		case *LowLevelCall:
			if o.Value != nil {
				return true
			}
		case *NewContract:
			if o.Value != nil {
				return true
			}
		case *SolidityCall:
			if o.Builtin.SendsValue {
				return true
			}
		}
	}
	return false
}

// IsProtected reports whether f checks msg.sender in a branch condition or
// a require/assert, directly, through a modifier or through an internal
// call. Constructors are protected.
func (f *Function) IsProtected() bool {
	if f.Kind == ast.KindConstructor {
		return true
	}
	return f.checksSender(map[*Function]bool{})
}

func (f *Function) checksSender(visited map[*Function]bool) bool {
	if visited[f] {
		return false
	}
	visited[f] = true
	for _, n := range f.Nodes {
		guarded := n.Type.IsConditional()
		reads := false
		for _, op := range n.IRs {
			if c, ok := op.(*SolidityCall); ok && c.Builtin.Condition {
				guarded = true
			}
			for _, r := range op.Read() {
				if sv, ok := r.(*SolidityVariable); ok && sv.Name() == "msg.sender" {
					reads = true
				}
			}
		}
		if guarded && reads {
			return true
		}
	}
	for _, c := range f.InternalCalls() {
		if c.Callee.checksSender(visited) {
			return true
		}
	}
	return false
}
