package ir

import (
	"sort"
	"strconv"
	"strings"

	"smartfast/internal/ast"
	"smartfast/internal/builtins"
	"smartfast/internal/errors"
	"smartfast/internal/types"
)

var lowLevelCalls = map[string]bool{
	"call":         true,
	"delegatecall": true,
	"staticcall":   true,
	"callcode":     true,
}

var builtinObjects = map[string]bool{
	"msg":    true,
	"tx":     true,
	"block":  true,
	"abi":    true,
	"bytes":  true,
	"string": true,
}

func (fb *funcBuilder) exprs(es []ast.Expr) ([]Variable, error) {
	out := make([]Variable, len(es))
	for i, e := range es {
		if e == nil {
			continue
		}
		v, err := fb.expr(e)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// optional lowers e when present.
func (fb *funcBuilder) optional(e ast.Expr) (Variable, error) {
	if e == nil {
		return nil, nil
	}
	return fb.expr(e)
}

// expr lowers e into operations on the current node and returns the
// variable holding its value.
func (fb *funcBuilder) expr(e ast.Expr) (Variable, error) {
	switch e := e.(type) {
	case *ast.Identifier:
		return fb.identifier(e)
	case *ast.Literal:
		return fb.literal(e)
	case *ast.BinaryOp:
		return fb.binary(e)
	case *ast.UnaryOp:
		return fb.unary(e)
	case *ast.Assignment:
		return fb.assignment(e)
	case *ast.IndexAccess:
		if e.Index == nil {
			return nil, fb.errorf(errors.ErrorUnsupportedExpression, e.Pos, "type expression %s used as a value", e)
		}
		b, err := fb.expr(e.Base)
		if err != nil {
			return nil, err
		}
		i, err := fb.expr(e.Index)
		if err != nil {
			return nil, err
		}
		t := e.Type
		if t == nil {
			t = types.ElemType(b.Type())
		}
		ref := fb.fn.newReference(t, b)
		fb.emit(&Index{Result: ref, Base: b, Index: i})
		return ref, nil
	case *ast.MemberAccess:
		return fb.member(e)
	case *ast.FunctionCall:
		return fb.call(e)
	case *ast.TupleExpr:
		if e.IsArray {
			elems, err := fb.exprs(e.Elems)
			if err != nil {
				return nil, err
			}
			tmp := fb.fn.newTemporary(e.Type)
			fb.emit(&InitArray{Result: tmp, Elems: elems})
			return tmp, nil
		}
		if len(e.Elems) == 1 && e.Elems[0] != nil {
			return fb.expr(e.Elems[0])
		}
		return nil, fb.errorf(errors.ErrorUnsupportedExpression, e.Pos, "tuple %s used as a value", e)
	case *ast.Conditional:
		return nil, fb.errorf(errors.ErrorNestedConditional, e.Pos, "conditional expression nested in %s", fb.fn.Name)
	case nil:
		return nil, fb.errorf(errors.ErrorUnsupportedExpression, ast.Position{}, "missing expression")
	default:
		return nil, fb.errorf(errors.ErrorUnsupportedExpression, e.NodePos(), "unsupported expression %T", e)
	}
}

// shadowed reports whether name refers to a local or state variable.
func (fb *funcBuilder) shadowed(name string) bool {
	return fb.lookupLocal(name) != nil || fb.contract.StateVariable(name) != nil
}

func (fb *funcBuilder) identifier(e *ast.Identifier) (Variable, error) {
	if v := fb.lookupLocal(e.Name); v != nil {
		return v, nil
	}
	if sv := fb.contract.StateVariable(e.Name); sv != nil {
		return sv, nil
	}
	if sv, ok := fb.program.SolidityVariable(e.Name); ok {
		return sv, nil
	}
	if fns := fb.contract.FunctionsNamed(e.Name); len(fns) > 0 {
		return &FunctionValue{fn: fns[0]}, nil
	}
	return nil, errors.UndefinedIdentifier(fb.fn.CanonicalName(), e.Name, e.Pos, fb.visibleNames())
}

func (fb *funcBuilder) visibleNames() []string {
	seen := map[string]bool{}
	for _, scope := range fb.scopes {
		for name := range scope {
			seen[name] = true
		}
	}
	for _, sv := range fb.contract.AllStateVariables() {
		seen[sv.Name()] = true
	}
	for _, f := range fb.contract.AllFunctions() {
		seen[f.Name] = true
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (fb *funcBuilder) literal(e *ast.Literal) (Variable, error) {
	switch e.Kind {
	case ast.LiteralNumber:
		t := e.Type
		if !types.IsInteger(t) {
			t = types.Uint256
		}
		c, err := NewNumberConstant(e.Value, e.Subdenomination, t)
		if err != nil {
			return nil, fb.errorf(errors.ErrorInvalidLiteral, e.Pos, "%v", err)
		}
		return c, nil
	case ast.LiteralBool:
		return NewConstant(e.Value, types.Bool), nil
	case ast.LiteralAddress:
		return NewConstant(e.Value, types.Address), nil
	default:
		t := e.Type
		if t == nil {
			t = types.String
		}
		return NewConstant(e.Value, t), nil
	}
}

func (fb *funcBuilder) binary(e *ast.BinaryOp) (Variable, error) {
	op, ok := ParseBinaryOp(e.Op)
	if !ok {
		return nil, fb.errorf(errors.ErrorUnknownOperator, e.Pos, "unknown binary operator '%s'", e.Op)
	}
	l, err := fb.expr(e.Left)
	if err != nil {
		return nil, err
	}
	r, err := fb.expr(e.Right)
	if err != nil {
		return nil, err
	}
	if err := fb.checkOperands(e, op, l, r); err != nil {
		return nil, err
	}

	t := e.Type
	switch {
	case op.IsComparison(), op.IsLogical():
		t = types.Bool
	case t == nil:
		t = l.Type()
	}
	tmp := fb.fn.newTemporary(t)
	fb.emit(&Binary{Result: tmp, Left: l, Right: r, Op: op})
	return tmp, nil
}

func (fb *funcBuilder) checkOperands(e *ast.BinaryOp, op BinaryOp, operands ...Variable) error {
	for _, v := range operands {
		t := v.Type()
		if t == nil {
			continue
		}
		switch {
		case op.IsLogical() && !types.IsBool(t):
			return fb.errorf(errors.ErrorInvalidOperandType, e.Pos, "operator '%s' applied to %s", op, t)
		case op.IsArithmetic() && types.IsBool(t):
			return fb.errorf(errors.ErrorInvalidOperandType, e.Pos, "operator '%s' applied to bool", op)
		}
	}
	return nil
}

func (fb *funcBuilder) unary(e *ast.UnaryOp) (Variable, error) {
	switch e.Op {
	case "delete":
		x, err := fb.lvalue(e.X)
		if err != nil {
			return nil, err
		}
		fb.emit(&Delete{Target: x})
		return x, nil

	case "++", "--":
		x, err := fb.lvalue(e.X)
		if err != nil {
			return nil, err
		}
		one, _ := NewNumberConstant("1", "", x.Type())
		op := OpAdd
		if e.Op == "--" {
			op = OpSub
		}
		var result Variable = x
		if !e.Prefix {
			old := fb.fn.newTemporary(x.Type())
			fb.emit(&Assignment{Result: old, Rvalue: x})
			result = old
		}
		fb.assign(x, fb.compute(x, one, op))
		return result, nil

	case "!", "-", "~":
		x, err := fb.expr(e.X)
		if err != nil {
			return nil, err
		}
		if e.Op == "!" && x.Type() != nil && !types.IsBool(x.Type()) {
			return nil, fb.errorf(errors.ErrorInvalidOperandType, e.Pos, "operator '!' applied to %s", x.Type())
		}
		t := e.Type
		if t == nil {
			t = x.Type()
		}
		tmp := fb.fn.newTemporary(t)
		fb.emit(&Unary{Result: tmp, Operand: x, Op: e.Op})
		return tmp, nil
	}
	return nil, fb.errorf(errors.ErrorUnknownOperator, e.Pos, "unknown unary operator '%s'", e.Op)
}

// lvalue lowers e as an assignment target.
func (fb *funcBuilder) lvalue(e ast.Expr) (Variable, error) {
	v, err := fb.expr(e)
	if err != nil {
		return nil, err
	}
	switch v.(type) {
	case *LocalVariable, *StateVariable, *ReferenceVariable:
		return v, nil
	}
	return nil, fb.errorf(errors.ErrorInvalidLvalue, e.NodePos(), "cannot assign to %s", e)
}

// assign emits lhs := rhs and records what a storage pointer now aliases.
// A self-assignment emits nothing.
func (fb *funcBuilder) assign(lhs, rhs Variable) {
	if lhs == rhs {
		return
	}
	fb.emit(&Assignment{Result: lhs, Rvalue: rhs})
	if local, ok := lhs.(*LocalVariable); ok && local.IsStorage() {
		fb.fn.addStoragePointer(local, fb.stateTargets(rhs))
	}
}

// stateTargets returns the state variables v designates in storage.
func (fb *funcBuilder) stateTargets(v Variable) []*StateVariable {
	if ref, ok := v.(*ReferenceVariable); ok {
		v = ref.Origin()
	}
	switch o := v.(type) {
	case *StateVariable:
		return []*StateVariable{o}
	case *LocalVariable:
		if o.IsStorage() {
			return fb.fn.StoragePointerTargets(o)
		}
	}
	return nil
}

func (fb *funcBuilder) assignment(e *ast.Assignment) (Variable, error) {
	if t, ok := e.LHS.(*ast.TupleExpr); ok && !t.IsArray && e.Op == "=" {
		return fb.tupleAssignment(e, t)
	}

	if e.Op == "=" {
		r, err := fb.expr(e.RHS)
		if err != nil {
			return nil, err
		}
		l, err := fb.lvalue(e.LHS)
		if err != nil {
			return nil, err
		}
		if _, ok := r.(*TupleVariable); ok {
			return nil, fb.errorf(errors.ErrorTupleArity, e.Pos, "several values assigned to %s", e.LHS)
		}
		fb.assign(l, r)
		return l, nil
	}

	op, ok := ParseBinaryOp(strings.TrimSuffix(e.Op, "="))
	if !ok || op.IsComparison() || op.IsLogical() {
		return nil, fb.errorf(errors.ErrorUnknownOperator, e.Pos, "unknown assignment operator '%s'", e.Op)
	}
	r, err := fb.expr(e.RHS)
	if err != nil {
		return nil, err
	}
	l, err := fb.lvalue(e.LHS)
	if err != nil {
		return nil, err
	}
	fb.assign(l, fb.compute(l, r, op))
	return l, nil
}

// compute emits left op right into a fresh temporary, so a read-modify-write
// becomes a Binary followed by an Assignment.
func (fb *funcBuilder) compute(left, right Variable, op BinaryOp) Variable {
	tmp := fb.fn.newTemporary(left.Type())
	fb.emit(&Binary{Result: tmp, Left: left, Right: right, Op: op})
	return tmp
}

func (fb *funcBuilder) tupleAssignment(e *ast.Assignment, lhs *ast.TupleExpr) (Variable, error) {
	n := len(lhs.Elems)
	if rhs, ok := e.RHS.(*ast.TupleExpr); ok && !rhs.IsArray {
		if len(rhs.Elems) != n {
			return nil, fb.errorf(errors.ErrorTupleArity, e.Pos, "%d values assigned to %d targets", len(rhs.Elems), n)
		}
		// copy first so that "(a, b) = (b, a)" swaps
		values := make([]Variable, n)
		for i, el := range rhs.Elems {
			if el == nil {
				continue
			}
			v, err := fb.expr(el)
			if err != nil {
				return nil, err
			}
			tmp := fb.fn.newTemporary(v.Type())
			fb.emit(&Assignment{Result: tmp, Rvalue: v})
			values[i] = tmp
		}
		targets, first, err := fb.tupleTargets(lhs)
		if err != nil {
			return nil, err
		}
		for i, t := range targets {
			if t != nil && values[i] != nil {
				fb.assign(t, values[i])
			}
		}
		return first, nil
	}

	v, err := fb.expr(e.RHS)
	if err != nil {
		return nil, err
	}
	tuple, ok := v.(*TupleVariable)
	if !ok {
		return nil, fb.errorf(errors.ErrorTupleArity, e.Pos, "single value assigned to %d targets", n)
	}
	if m := len(tuple.typ.Elems); m > 0 && m != n {
		return nil, fb.errorf(errors.ErrorTupleArity, e.Pos, "%d values assigned to %d targets", m, n)
	}
	targets, first, err := fb.tupleTargets(lhs)
	if err != nil {
		return nil, err
	}
	for i, t := range targets {
		if t != nil {
			fb.emit(&Unpack{Result: t, Tuple: tuple, Index: i})
		}
	}
	return first, nil
}

// tupleTargets lowers the components of a tuple assignment target. Empty
// components stay nil.
func (fb *funcBuilder) tupleTargets(lhs *ast.TupleExpr) ([]Variable, Variable, error) {
	targets := make([]Variable, len(lhs.Elems))
	var first Variable
	for i, el := range lhs.Elems {
		if el == nil {
			continue
		}
		v, err := fb.lvalue(el)
		if err != nil {
			return nil, nil, err
		}
		targets[i] = v
		if first == nil {
			first = v
		}
	}
	return targets, first, nil
}

func (fb *funcBuilder) member(e *ast.MemberAccess) (Variable, error) {
	if id, ok := e.Base.(*ast.Identifier); ok && !fb.shadowed(id.Name) {
		if builtinObjects[id.Name] {
			if sv, ok := fb.program.SolidityVariable(id.Name + "." + e.Member); ok {
				return sv, nil
			}
			return nil, errors.UndefinedIdentifier(fb.fn.CanonicalName(), id.Name+"."+e.Member, e.Pos, fb.program.Builtins.VariableNames())
		}
		if c, ok, err := fb.enumMember(fb.contract, id.Name, e); ok {
			return c, err
		}
		if c := fb.program.Contract(id.Name); c != nil {
			if sv := c.StateVariable(e.Member); sv != nil {
				return sv, nil
			}
			return nil, fb.errorf(errors.ErrorUnsupportedExpression, e.Pos, "%s is not a value", e)
		}
	}
	// Contract.Enum.Member
	if inner, ok := e.Base.(*ast.MemberAccess); ok {
		if id, ok := inner.Base.(*ast.Identifier); ok && !fb.shadowed(id.Name) {
			if c := fb.program.Contract(id.Name); c != nil {
				if v, ok, err := fb.enumMember(c, inner.Member, e); ok {
					return v, err
				}
			}
		}
	}

	b, err := fb.expr(e.Base)
	if err != nil {
		return nil, err
	}
	bt := b.Type()

	switch {
	case e.Member == "length" && types.IsIndexable(bt):
		ref := fb.fn.newReference(types.Uint256, b)
		fb.emit(&Length{Result: ref, Base: b})
		return ref, nil
	case types.IsAddress(bt) || types.IsContract(bt):
		switch e.Member {
		case "balance", "code", "codehash":
			builtin, ok := fb.program.Builtins.Function(e.Member + "(address)")
			if !ok {
				break
			}
			tmp := fb.fn.newTemporary(builtin.Returns[0])
			fb.emit(&SolidityCall{Result: tmp, Builtin: builtin, Args: []Variable{b}})
			return tmp, nil
		}
	}

	ref := fb.fn.newReference(e.Type, b)
	fb.emit(&Member{Result: ref, Base: b, Field: e.Member})
	return ref, nil
}

// enumMember resolves "Enum.Member" to its ordinal constant. ok is false
// when enumName is not an enum visible in c.
func (fb *funcBuilder) enumMember(c *Contract, enumName string, e *ast.MemberAccess) (Variable, bool, error) {
	decl := c.Enum(enumName)
	if decl == nil {
		return nil, false, nil
	}
	for i, v := range decl.Values {
		if v == e.Member {
			t := &types.UserDefined{Kind: types.KindEnum, Name: decl.Name}
			k, err := NewNumberConstant(strconv.Itoa(i), "", t)
			return k, true, err
		}
	}
	return nil, true, fb.errorf(errors.ErrorUndefinedIdentifier, e.Pos, "enum %s has no member '%s'", decl.Name, e.Member)
}

// result allocates the variable receiving a call's results.
func (fb *funcBuilder) result(rets []types.Type) Variable {
	switch len(rets) {
	case 0:
		return nil
	case 1:
		return fb.fn.newTemporary(rets[0])
	}
	return fb.fn.newTuple(&types.Tuple{Elems: rets})
}

// resultOfType is result for a call typed only by its expression.
func (fb *funcBuilder) resultOfType(t types.Type) Variable {
	if tt, ok := t.(*types.Tuple); ok {
		return fb.result(tt.Elems)
	}
	return fb.fn.newTemporary(t)
}

func returnTypes(f *Function) []types.Type {
	out := make([]types.Type, len(f.Returns))
	for i, r := range f.Returns {
		out[i] = r.Type()
	}
	return out
}

// pick selects the overload of fns matching args.
func pick(fns []*Function, args []Variable) *Function {
	var byArity []*Function
	for _, f := range fns {
		if len(f.Params) == len(args) {
			byArity = append(byArity, f)
		}
	}
	if len(byArity) <= 1 {
		if len(byArity) == 1 {
			return byArity[0]
		}
		return nil
	}
	for _, f := range byArity {
		match := true
		for i, p := range f.Params {
			if args[i] == nil || args[i].Type() == nil || types.ABIName(args[i].Type()) != types.ABIName(p.Type()) {
				match = false
				break
			}
		}
		if match {
			return f
		}
	}
	return byArity[0]
}

func (fb *funcBuilder) call(e *ast.FunctionCall) (Variable, error) {
	switch callee := e.Callee.(type) {
	case *ast.ElementaryTypeName:
		return fb.conversion(e, callee.TypeName)
	case *ast.NewExpr:
		return fb.newCall(e, callee.TypeName)
	case *ast.Identifier:
		return fb.identifierCall(e, callee)
	case *ast.MemberAccess:
		return fb.memberCall(e, callee)
	case *ast.TupleExpr:
		if len(callee.Elems) == 1 && !callee.IsArray {
			return fb.call(&ast.FunctionCall{ExprInfo: e.ExprInfo, Callee: callee.Elems[0], Args: e.Args, Names: e.Names, Value: e.Value, Gas: e.Gas})
		}
	}

	fnv, err := fb.expr(e.Callee)
	if err != nil {
		return nil, err
	}
	return fb.dynamicCall(e, fnv)
}

func (fb *funcBuilder) conversion(e *ast.FunctionCall, to types.Type) (Variable, error) {
	if len(e.Args) != 1 {
		return nil, fb.errorf(errors.ErrorInvalidArguments, e.Pos, "conversion to %s takes one argument, got %d", to, len(e.Args))
	}
	v, err := fb.expr(e.Args[0])
	if err != nil {
		return nil, err
	}
	tmp := fb.fn.newTemporary(to)
	fb.emit(&TypeConversion{Result: tmp, Value: v, To: to})
	return tmp, nil
}

func (fb *funcBuilder) newCall(e *ast.FunctionCall, t types.Type) (Variable, error) {
	args, err := fb.exprs(e.Args)
	if err != nil {
		return nil, err
	}
	tmp := fb.fn.newTemporary(t)
	switch t := t.(type) {
	case *types.UserDefined:
		value, err := fb.optional(e.Value)
		if err != nil {
			return nil, err
		}
		fb.emit(&NewContract{Result: tmp, Contract: t.Name, Args: args, Value: value})
	case *types.Array:
		fb.emit(&NewArray{Result: tmp, ArrayType: t, Args: args})
	case *types.Elementary:
		fb.emit(&NewElementaryType{Result: tmp, ElemType: t, Args: args})
	default:
		return nil, fb.errorf(errors.ErrorUnsupportedExpression, e.Pos, "cannot create %v with new", t)
	}
	return tmp, nil
}

func (fb *funcBuilder) dynamicCall(e *ast.FunctionCall, fnv Variable) (Variable, error) {
	if fv, ok := fnv.(*FunctionValue); ok {
		return fb.internalCall(e, []*Function{fv.fn})
	}
	ft, ok := fnv.Type().(*types.Function)
	if !ok {
		return nil, fb.errorf(errors.ErrorUnresolvedCall, e.Pos, "%s is not callable", e.Callee)
	}
	args, err := fb.exprs(e.Args)
	if err != nil {
		return nil, err
	}
	res := fb.result(ft.Returns)
	fb.emit(&InternalDynamicCall{Result: res, Function: fnv, Args: args})
	return res, nil
}

func (fb *funcBuilder) internalCall(e *ast.FunctionCall, candidates []*Function) (Variable, error) {
	args, err := fb.exprs(e.Args)
	if err != nil {
		return nil, err
	}
	callee := pick(candidates, args)
	if callee == nil {
		return nil, fb.errorf(errors.ErrorInvalidArguments, e.Pos, "no overload of %s takes %d arguments", candidates[0].Name, len(args))
	}
	res := fb.result(returnTypes(callee))
	fb.emit(&InternalCall{Result: res, Callee: callee, Args: args})
	return res, nil
}

func (fb *funcBuilder) builtinCall(e *ast.FunctionCall, b *builtins.Function, receiver Variable) (Variable, error) {
	args, err := fb.exprs(e.Args)
	if err != nil {
		return nil, err
	}
	if receiver != nil {
		args = append([]Variable{receiver}, args...)
	}
	if !b.AcceptsArgs(len(args)) {
		return nil, fb.errorf(errors.ErrorInvalidArguments, e.Pos, "%s called with %d arguments", b.Name, len(args))
	}
	var res Variable
	switch {
	case len(b.Returns) > 0:
		res = fb.result(b.Returns)
	case !b.Condition && !b.Terminates && e.Type != nil:
		res = fb.resultOfType(e.Type)
	}
	fb.emit(&SolidityCall{Result: res, Builtin: b, Args: args})
	return res, nil
}

func (fb *funcBuilder) identifierCall(e *ast.FunctionCall, id *ast.Identifier) (Variable, error) {
	name := id.Name
	if fb.shadowed(name) {
		v, err := fb.identifier(id)
		if err != nil {
			return nil, err
		}
		return fb.dynamicCall(e, v)
	}
	if fns := fb.contract.FunctionsNamed(name); len(fns) > 0 {
		return fb.internalCall(e, fns)
	}
	if b, ok := fb.program.Builtins.Function(name); ok {
		return fb.builtinCall(e, b, nil)
	}
	if s := fb.contract.Struct(name); s != nil {
		return fb.newStructure(e, s)
	}
	if c := fb.program.Contract(name); c != nil {
		return fb.conversion(e, contractType(c))
	}
	if en := fb.contract.Enum(name); en != nil {
		return fb.conversion(e, &types.UserDefined{Kind: types.KindEnum, Name: en.Name})
	}
	if ev := fb.contract.Event(name); ev != nil {
		args, err := fb.exprs(e.Args)
		if err != nil {
			return nil, err
		}
		fb.emit(&EventCall{Event: name, Args: args})
		return nil, nil
	}
	return nil, fb.errorf(errors.ErrorUnresolvedCall, e.Pos, "cannot resolve call to '%s'", name)
}

func contractType(c *Contract) *types.UserDefined {
	kind := types.KindContract
	switch c.Kind {
	case ast.ContractKindInterface:
		kind = types.KindInterface
	case ast.ContractKindLibrary:
		kind = types.KindLibrary
	}
	return &types.UserDefined{Kind: kind, Name: c.Name}
}

func (fb *funcBuilder) newStructure(e *ast.FunctionCall, s *ast.StructDecl) (Variable, error) {
	args, err := fb.exprs(e.Args)
	if err != nil {
		return nil, err
	}
	if len(args) != len(s.Fields) {
		return nil, fb.errorf(errors.ErrorInvalidArguments, e.Pos, "struct %s has %d fields, got %d values", s.Name, len(s.Fields), len(args))
	}
	tmp := fb.fn.newTemporary(&types.UserDefined{Kind: types.KindStruct, Name: s.Name})
	fb.emit(&NewStructure{Result: tmp, Struct: s.Name, Args: args})
	return tmp, nil
}

func (fb *funcBuilder) memberCall(e *ast.FunctionCall, m *ast.MemberAccess) (Variable, error) {
	if id, ok := m.Base.(*ast.Identifier); ok && !fb.shadowed(id.Name) {
		if v, handled, err := fb.qualifiedCall(e, m, id.Name); handled {
			return v, err
		}
	}

	b, err := fb.expr(m.Base)
	if err != nil {
		return nil, err
	}
	bt := b.Type()

	switch {
	case m.Member == "push" && types.IsDynamicArray(bt):
		return fb.push(e, b)
	case m.Member == "pop" && types.IsDynamicArray(bt):
		return fb.pop(e, b)
	case types.IsAddress(bt) && (m.Member == "transfer" || m.Member == "send"):
		if len(e.Args) != 1 {
			return nil, fb.errorf(errors.ErrorInvalidArguments, e.Pos, "%s takes one argument, got %d", m.Member, len(e.Args))
		}
		v, err := fb.expr(e.Args[0])
		if err != nil {
			return nil, err
		}
		if m.Member == "transfer" {
			fb.emit(&Transfer{Destination: b, Value: v})
			return nil, nil
		}
		tmp := fb.fn.newTemporary(types.Bool)
		fb.emit(&Send{Result: tmp, Destination: b, Value: v})
		return tmp, nil
	case types.IsAddress(bt) && lowLevelCalls[m.Member]:
		return fb.lowLevelCall(e, b, m.Member)
	}

	if target := fb.targetContract(b); target != nil {
		return fb.highLevelCall(e, b, target, m.Member)
	}
	if v, ok, err := fb.usingForCall(e, b, m.Member); ok {
		return v, err
	}
	if types.IsContract(bt) {
		// contract outside the program
		return fb.highLevelCall(e, b, nil, m.Member)
	}
	if _, ok := m.Type.(*types.Function); ok {
		// function-typed struct field
		ref := fb.fn.newReference(m.Type, b)
		fb.emit(&Member{Result: ref, Base: b, Field: m.Member})
		return fb.dynamicCall(e, ref)
	}
	return nil, fb.errorf(errors.ErrorUnresolvedCall, e.Pos, "cannot resolve call to '%s'", m)
}

// qualifiedCall handles "super.f()", "Base.f()", "Lib.f()", "Lib.S(...)"
// and dotted builtins like "abi.encode(...)".
func (fb *funcBuilder) qualifiedCall(e *ast.FunctionCall, m *ast.MemberAccess, qualifier string) (Variable, bool, error) {
	if qualifier == "super" {
		chain := fb.contract.Inheritance()
		for _, base := range chain[1:] {
			var fns []*Function
			for _, f := range base.Functions {
				if f.Name == m.Member && f.Kind == ast.KindFunction {
					fns = append(fns, f)
				}
			}
			if len(fns) > 0 {
				v, err := fb.internalCall(e, fns)
				return v, true, err
			}
		}
		return nil, true, fb.errorf(errors.ErrorUnresolvedCall, e.Pos, "no base function '%s' for super call", m.Member)
	}

	if b, ok := fb.program.Builtins.Function(qualifier + "." + m.Member); ok {
		v, err := fb.builtinCall(e, b, nil)
		return v, true, err
	}

	c := fb.program.Contract(qualifier)
	if c == nil {
		return nil, false, nil
	}
	if s := c.Struct(m.Member); s != nil {
		v, err := fb.newStructure(e, s)
		return v, true, err
	}
	fns := c.FunctionsNamed(m.Member)
	if len(fns) == 0 {
		return nil, true, fb.errorf(errors.ErrorUnresolvedCall, e.Pos, "%s has no function '%s'", c.Name, m.Member)
	}
	if c.IsLibrary() {
		args, err := fb.exprs(e.Args)
		if err != nil {
			return nil, true, err
		}
		callee := pick(fns, args)
		if callee == nil {
			return nil, true, fb.errorf(errors.ErrorInvalidArguments, e.Pos, "no overload of %s.%s takes %d arguments", c.Name, m.Member, len(args))
		}
		res := fb.result(returnTypes(callee))
		fb.emit(&LibraryCall{Result: res, Library: c.Name, Callee: callee, Args: args})
		return res, true, nil
	}
	if fb.contract.DerivesFrom(c.Name) {
		v, err := fb.internalCall(e, fns)
		return v, true, err
	}
	return nil, true, fb.errorf(errors.ErrorUnresolvedCall, e.Pos, "%s.%s called without an instance", c.Name, m.Member)
}

// targetContract returns the program contract a call on b dispatches to.
func (fb *funcBuilder) targetContract(b Variable) *Contract {
	if sv, ok := b.(*SolidityVariable); ok && sv.Name() == "this" {
		return fb.contract
	}
	u, ok := b.Type().(*types.UserDefined)
	if !ok || !types.IsContract(u) {
		return nil
	}
	c := fb.program.Contract(u.Name)
	if c == nil || c.IsLibrary() {
		return nil
	}
	return c
}

func (fb *funcBuilder) callOptions(e *ast.FunctionCall) (value, gas Variable, err error) {
	if value, err = fb.optional(e.Value); err != nil {
		return nil, nil, err
	}
	if gas, err = fb.optional(e.Gas); err != nil {
		return nil, nil, err
	}
	return value, gas, nil
}

func (fb *funcBuilder) highLevelCall(e *ast.FunctionCall, dest Variable, target *Contract, name string) (Variable, error) {
	args, err := fb.exprs(e.Args)
	if err != nil {
		return nil, err
	}
	value, gas, err := fb.callOptions(e)
	if err != nil {
		return nil, err
	}

	var callee *Function
	var res Variable
	if target != nil {
		callee = pick(target.FunctionsNamed(name), args)
	}
	switch {
	case callee != nil:
		res = fb.result(returnTypes(callee))
	case target != nil && target.StateVariable(name) != nil:
		// public getter
		res = fb.fn.newTemporary(types.ElemType(target.StateVariable(name).Type()))
		if res.Type() == nil {
			res = fb.fn.newTemporary(target.StateVariable(name).Type())
		}
	default:
		res = fb.resultOfType(e.Type)
	}
	fb.emit(&HighLevelCall{
		Result:       res,
		Destination:  dest,
		FunctionName: name,
		Callee:       callee,
		Args:         args,
		Value:        value,
		Gas:          gas,
	})
	return res, nil
}

func (fb *funcBuilder) lowLevelCall(e *ast.FunctionCall, dest Variable, name string) (Variable, error) {
	args, err := fb.exprs(e.Args)
	if err != nil {
		return nil, err
	}
	value, gas, err := fb.callOptions(e)
	if err != nil {
		return nil, err
	}
	var res Variable
	if types.IsBool(e.Type) {
		res = fb.fn.newTemporary(types.Bool)
	} else {
		res = fb.fn.newTuple(&types.Tuple{Elems: []types.Type{types.Bool, types.Bytes}})
	}
	fb.emit(&LowLevelCall{
		Result:       res,
		Destination:  dest,
		FunctionName: name,
		Args:         args,
		Value:        value,
		Gas:          gas,
	})
	return res, nil
}

// usingForCall resolves "x.f(args)" through "using Lib for T" into
// Lib.f(x, args).
func (fb *funcBuilder) usingForCall(e *ast.FunctionCall, receiver Variable, name string) (Variable, bool, error) {
	for _, k := range fb.contract.Inheritance() {
		for _, u := range k.Using {
			if u.Type != nil && receiver.Type() != nil && types.ABIName(u.Type) != types.ABIName(receiver.Type()) {
				continue
			}
			lib := fb.program.Contract(u.Library)
			if lib == nil {
				continue
			}
			fns := lib.FunctionsNamed(name)
			if len(fns) == 0 {
				continue
			}
			args, err := fb.exprs(e.Args)
			if err != nil {
				return nil, true, err
			}
			args = append([]Variable{receiver}, args...)
			callee := pick(fns, args)
			if callee == nil {
				return nil, true, fb.errorf(errors.ErrorInvalidArguments, e.Pos, "no overload of %s.%s takes %d arguments", lib.Name, name, len(args))
			}
			res := fb.result(returnTypes(callee))
			fb.emit(&LibraryCall{Result: res, Library: lib.Name, Callee: callee, Args: args})
			return res, true, nil
		}
	}
	return nil, false, nil
}

// push appends to a dynamic array: the new slot is written at the old
// length, then the length grows.
func (fb *funcBuilder) push(e *ast.FunctionCall, arr Variable) (Variable, error) {
	if len(e.Args) > 1 {
		return nil, fb.errorf(errors.ErrorInvalidArguments, e.Pos, "push takes at most one argument, got %d", len(e.Args))
	}
	args, err := fb.exprs(e.Args)
	if err != nil {
		return nil, err
	}
	length := fb.fn.newReference(types.Uint256, arr)
	fb.emit(&Length{Result: length, Base: arr})
	slot := fb.fn.newReference(types.ElemType(arr.Type()), arr)
	fb.emit(&Index{Result: slot, Base: arr, Index: length})
	if len(args) == 1 {
		fb.emit(&Assignment{Result: slot, Rvalue: args[0]})
	}
	one, _ := NewNumberConstant("1", "", types.Uint256)
	fb.emit(&Assignment{Result: length, Rvalue: fb.compute(length, one, OpAdd)})
	if len(args) == 1 {
		return nil, nil
	}
	return slot, nil
}

func (fb *funcBuilder) pop(e *ast.FunctionCall, arr Variable) (Variable, error) {
	if len(e.Args) != 0 {
		return nil, fb.errorf(errors.ErrorInvalidArguments, e.Pos, "pop takes no arguments")
	}
	length := fb.fn.newReference(types.Uint256, arr)
	fb.emit(&Length{Result: length, Base: arr})
	one, _ := NewNumberConstant("1", "", types.Uint256)
	fb.emit(&Assignment{Result: length, Rvalue: fb.compute(length, one, OpSub)})
	slot := fb.fn.newReference(types.ElemType(arr.Type()), arr)
	fb.emit(&Index{Result: slot, Base: arr, Index: length})
	fb.emit(&Delete{Target: slot})
	return nil, nil
}
