package ir

import (
	"smartfast/internal/ast"
	"smartfast/internal/builtins"
	"smartfast/internal/errors"
)

// Builder lowers a declaration tree into IR: CFG nodes holding
// three-address operations.
type Builder struct {
	program *Program
}

func NewBuilder(table *builtins.Table) *Builder {
	return &Builder{program: NewProgram(table)}
}

// Build lowers every contract of unit. A function that fails to lower is
// kept with StatusLoweringFailed and no nodes; its error is also returned.
func (b *Builder) Build(unit *ast.SourceUnit) (*Program, []error) {
	// First pass: contracts, state variables and declarations, so that
	// lookups do not depend on declaration order
	for _, decl := range unit.Contracts {
		b.registerContract(decl)
	}

	// Second pass: function shells with their signatures
	for _, c := range b.program.Contracts {
		for _, fd := range c.Decl.Functions {
			b.registerFunction(c, fd)
		}
	}

	// Third pass: bodies
	var errs []error
	for _, c := range b.program.Contracts {
		for _, fn := range append(append([]*Function{}, c.Modifiers...), c.Functions...) {
			if !fn.Decl.Implemented() {
				continue
			}
			if err := b.lowerFunction(c, fn); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return b.program, errs
}

func (b *Builder) registerContract(decl *ast.Contract) {
	c := &Contract{
		Name:    decl.Name,
		Kind:    decl.Kind,
		Bases:   decl.Bases,
		Structs: map[string]*ast.StructDecl{},
		Events:  map[string]*ast.EventDecl{},
		Enums:   map[string]*ast.EnumDecl{},
		Using:   decl.Using,
		Decl:    decl,
	}
	for _, sv := range decl.StateVariables {
		c.StateVariables = append(c.StateVariables, NewStateVariable(decl.Name, sv))
	}
	for _, s := range decl.Structs {
		c.Structs[s.Name] = s
	}
	for _, e := range decl.Events {
		c.Events[e.Name] = e
	}
	for _, e := range decl.Enums {
		c.Enums[e.Name] = e
	}
	b.program.addContract(c)
}

func (b *Builder) registerFunction(c *Contract, decl *ast.Function) {
	fn := &Function{
		Name:       decl.Name,
		Contract:   c.Name,
		Kind:       decl.Kind,
		Visibility: decl.Visibility,
		Mutability: decl.Mutability,
		Decl:       decl,
	}
	if fn.Name == "" {
		fn.Name = string(decl.Kind)
	}
	b.declareSignature(fn)

	if decl.Kind == ast.KindModifier {
		c.Modifiers = append(c.Modifiers, fn)
		return
	}
	c.Functions = append(c.Functions, fn)
}

func (b *Builder) declareSignature(fn *Function) {
	fn.Params, fn.Returns, fn.Locals = nil, nil, nil
	owner := fn.Contract + "." + fn.Name
	for i, p := range fn.Decl.Params {
		v := newLocal(owner, p, i, false)
		fn.Params = append(fn.Params, v)
		fn.Locals = append(fn.Locals, v)
	}
	for _, r := range fn.Decl.Returns {
		v := newLocal(owner, r, -1, true)
		fn.Returns = append(fn.Returns, v)
		fn.Locals = append(fn.Locals, v)
	}
}

func (b *Builder) lowerFunction(c *Contract, fn *Function) error {
	fb := &funcBuilder{program: b.program, contract: c, fn: fn}
	var err error
	if len(fn.Decl.CFG) > 0 {
		err = fb.lowerPrebuilt()
	} else {
		err = fb.lowerBody()
	}
	if err != nil {
		// keep no partial IR
		fn.Nodes = nil
		fn.storagePointers = nil
		fn.tmpCount, fn.refCount, fn.tupleCount = 0, 0, 0
		b.declareSignature(fn)
		fn.Status = StatusLoweringFailed
		fn.Err = err
		return err
	}
	fn.Status = StatusComplete
	return nil
}

type loopTargets struct {
	cont *Node
	end  *Node
}

// funcBuilder holds the lowering state of one function.
type funcBuilder struct {
	program  *Program
	contract *Contract
	fn       *Function
	node     *Node
	scopes   []map[string]*LocalVariable
	loops    []loopTargets
}

func (fb *funcBuilder) errorf(code string, pos ast.Position, format string, args ...any) error {
	return errors.Lowering(code, fb.fn.CanonicalName(), pos, format, args...)
}

func (fb *funcBuilder) pushScope() {
	fb.scopes = append(fb.scopes, map[string]*LocalVariable{})
}

func (fb *funcBuilder) popScope() {
	fb.scopes = fb.scopes[:len(fb.scopes)-1]
}

func (fb *funcBuilder) declare(decl *ast.VariableDecl) *LocalVariable {
	v := newLocal(fb.fn.Contract+"."+fb.fn.Name, decl, -1, false)
	fb.fn.Locals = append(fb.fn.Locals, v)
	fb.bind(v)
	return v
}

func (fb *funcBuilder) bind(v *LocalVariable) {
	if v.Name() == "" {
		return
	}
	fb.scopes[len(fb.scopes)-1][v.Name()] = v
}

func (fb *funcBuilder) lookupLocal(name string) *LocalVariable {
	for i := len(fb.scopes) - 1; i >= 0; i-- {
		if v, ok := fb.scopes[i][name]; ok {
			return v
		}
	}
	return nil
}

// open creates a node, links it after cur and makes it current.
func (fb *funcBuilder) open(typ NodeType, pos ast.Position, cur *Node) *Node {
	n := fb.fn.newNode(typ, pos)
	link(cur, n)
	fb.node = n
	return n
}

func (fb *funcBuilder) emit(op Operation) {
	fb.node.addOp(op)
}

func (fb *funcBuilder) lowerBody() error {
	fb.pushScope()
	defer fb.popScope()
	for _, v := range fb.fn.Locals {
		fb.bind(v)
	}

	entry := fb.open(NodeEntryPoint, fb.fn.Decl.Pos, nil)
	if err := fb.lowerModifiers(); err != nil {
		return err
	}

	last, err := fb.lowerStmt(fb.fn.Decl.Body, entry)
	if err != nil {
		return err
	}

	// Named returns flow out of the function at its end
	if last != nil && hasNamedReturns(fb.fn) {
		ret := fb.open(NodeReturn, fb.fn.Decl.Pos, last)
		ret.addOp(&Return{Values: localVars(fb.fn.Returns)})
	}
	return nil
}

func hasNamedReturns(fn *Function) bool {
	for _, r := range fn.Returns {
		if r.Name() != "" {
			return true
		}
	}
	return false
}

func localVars(ls []*LocalVariable) []Variable {
	out := make([]Variable, len(ls))
	for i, l := range ls {
		out[i] = l
	}
	return out
}

// lowerModifiers turns the header's modifiers and base constructor calls
// into calls on the current node.
func (fb *funcBuilder) lowerModifiers() error {
	for _, inv := range fb.fn.Decl.Modifiers {
		if m := fb.contract.Modifier(inv.Name); m != nil {
			args, err := fb.exprs(inv.Args)
			if err != nil {
				return err
			}
			fb.emit(&InternalCall{Callee: m, Args: args, IsModifier: true})
			fb.fn.Modifiers = append(fb.fn.Modifiers, &ModifierCall{Name: inv.Name, Modifier: m, Args: inv.Args})
			continue
		}
		if base := fb.program.Contract(inv.Name); base != nil && fb.contract.DerivesFrom(inv.Name) {
			ctor := base.Constructor()
			if ctor == nil {
				continue
			}
			args, err := fb.exprs(inv.Args)
			if err != nil {
				return err
			}
			fb.emit(&InternalCall{Callee: ctor, Args: args})
			continue
		}
		return fb.errorf(errors.ErrorUnresolvedCall, inv.Pos, "unknown modifier '%s'", inv.Name)
	}
	return nil
}

// lowerStmt lowers s after cur and returns the node control continues
// from, or nil when s does not fall through.
func (fb *funcBuilder) lowerStmt(s ast.Stmt, cur *Node) (*Node, error) {
	switch s := s.(type) {
	case *ast.Block:
		fb.pushScope()
		defer fb.popScope()
		var err error
		for _, st := range s.Statements {
			if cur, err = fb.lowerStmt(st, cur); err != nil {
				return nil, err
			}
		}
		return cur, nil

	case *ast.ExprStmt:
		if expanded := expandConditional(s); expanded != nil {
			return fb.lowerStmt(expanded, cur)
		}
		n := fb.open(NodeExpression, s.Pos, cur)
		n.Expression = s.X
		if _, err := fb.expr(s.X); err != nil {
			return nil, err
		}
		return n, nil

	case *ast.VarDeclStmt:
		return fb.lowerVarDecl(s, cur)

	case *ast.IfStmt:
		return fb.lowerIf(s, cur)

	case *ast.WhileStmt:
		return fb.lowerWhile(s, cur)

	case *ast.ForStmt:
		return fb.lowerFor(s, cur)

	case *ast.DoWhileStmt:
		return fb.lowerDoWhile(s, cur)

	case *ast.ReturnStmt:
		if expanded := expandConditional(s); expanded != nil {
			return fb.lowerStmt(expanded, cur)
		}
		n := fb.open(NodeReturn, s.Pos, cur)
		n.Expression = s.Value
		values, err := fb.returnValues(s.Value)
		if err != nil {
			return nil, err
		}
		fb.emit(&Return{Values: values})
		return nil, nil

	case *ast.BreakStmt, *ast.ContinueStmt:
		if len(fb.loops) == 0 {
			return nil, fb.errorf(errors.ErrorLoopControl, s.NodePos(), "%s outside of a loop", s)
		}
		loop := fb.loops[len(fb.loops)-1]
		if _, ok := s.(*ast.BreakStmt); ok {
			n := fb.open(NodeBreak, s.NodePos(), cur)
			link(n, loop.end)
		} else {
			n := fb.open(NodeContinue, s.NodePos(), cur)
			link(n, loop.cont)
		}
		return nil, nil

	case *ast.ThrowStmt:
		fb.open(NodeThrow, s.Pos, cur)
		return nil, nil

	case *ast.RevertStmt:
		fb.open(NodeThrow, s.Pos, cur)
		args, err := fb.exprs(s.Args)
		if err != nil {
			return nil, err
		}
		revert, ok := fb.program.Builtins.Function("revert")
		if !ok {
			return nil, fb.errorf(errors.ErrorUnresolvedCall, s.Pos, "revert is not a known builtin")
		}
		fb.emit(&SolidityCall{Builtin: revert, Args: args})
		return nil, nil

	case *ast.EmitStmt:
		fb.open(NodeExpression, s.Pos, cur)
		args, err := fb.exprs(s.Args)
		if err != nil {
			return nil, err
		}
		fb.emit(&EventCall{Event: s.Event, Args: args})
		return fb.node, nil

	case *ast.PlaceholderStmt:
		return fb.open(NodePlaceholder, s.Pos, cur), nil

	case *ast.InlineAssembly:
		return fb.open(NodeAssembly, s.Pos, cur), nil

	case nil:
		return cur, nil

	default:
		return nil, fb.errorf(errors.ErrorUnsupportedStatement, s.NodePos(), "unsupported statement %T", s)
	}
}

// expandConditional rewrites a statement whose top-level expression is a
// conditional into an if statement. It returns nil when there is nothing
// to expand.
func expandConditional(s ast.Stmt) ast.Stmt {
	switch s := s.(type) {
	case *ast.ExprStmt:
		switch x := s.X.(type) {
		case *ast.Conditional:
			return &ast.IfStmt{Pos: s.Pos, Cond: x.Cond,
				Then: &ast.ExprStmt{Pos: s.Pos, X: x.Then},
				Else: &ast.ExprStmt{Pos: s.Pos, X: x.Else}}
		case *ast.Assignment:
			c, ok := x.RHS.(*ast.Conditional)
			if !ok {
				return nil
			}
			branch := func(rhs ast.Expr) ast.Stmt {
				return &ast.ExprStmt{Pos: s.Pos, X: &ast.Assignment{ExprInfo: x.ExprInfo, Op: x.Op, LHS: x.LHS, RHS: rhs}}
			}
			return &ast.IfStmt{Pos: s.Pos, Cond: c.Cond, Then: branch(c.Then), Else: branch(c.Else)}
		}
	case *ast.ReturnStmt:
		if c, ok := s.Value.(*ast.Conditional); ok {
			return &ast.IfStmt{Pos: s.Pos, Cond: c.Cond,
				Then: &ast.ReturnStmt{Pos: s.Pos, Value: c.Then},
				Else: &ast.ReturnStmt{Pos: s.Pos, Value: c.Else}}
		}
	}
	return nil
}

func (fb *funcBuilder) lowerVarDecl(s *ast.VarDeclStmt, cur *Node) (*Node, error) {
	n := fb.open(NodeVariable, s.Pos, cur)
	n.Expression = s.Value

	if c, ok := s.Value.(*ast.Conditional); ok && len(s.Decls) == 1 && s.Decls[0] != nil {
		local := fb.declare(s.Decls[0])
		n.Variable = local
		target := &ast.Identifier{ExprInfo: ast.ExprInfo{Pos: s.Pos, Type: local.Type()}, Name: local.Name()}
		return fb.lowerStmt(&ast.ExprStmt{Pos: s.Pos, X: &ast.Assignment{
			ExprInfo: target.ExprInfo, Op: "=", LHS: target, RHS: c,
		}}, n)
	}

	// Initializers see the enclosing scope, not the new locals
	var values []Variable
	var tuple Variable
	switch {
	case s.Value == nil:
	case len(s.Decls) > 1:
		if t, ok := s.Value.(*ast.TupleExpr); ok && !t.IsArray {
			if len(t.Elems) != len(s.Decls) {
				return nil, fb.errorf(errors.ErrorTupleArity, s.Pos, "%d variables declared for %d values", len(s.Decls), len(t.Elems))
			}
			vs, err := fb.exprs(t.Elems)
			if err != nil {
				return nil, err
			}
			values = vs
			break
		}
		v, err := fb.expr(s.Value)
		if err != nil {
			return nil, err
		}
		tv, ok := v.(*TupleVariable)
		if !ok {
			return nil, fb.errorf(errors.ErrorTupleArity, s.Pos, "%d variables declared for a single value", len(s.Decls))
		}
		if n := len(tv.typ.Elems); n > 0 && n != len(s.Decls) {
			return nil, fb.errorf(errors.ErrorTupleArity, s.Pos, "%d variables declared for %d values", len(s.Decls), n)
		}
		tuple = tv
	default:
		v, err := fb.expr(s.Value)
		if err != nil {
			return nil, err
		}
		if _, ok := v.(*TupleVariable); ok {
			return nil, fb.errorf(errors.ErrorTupleArity, s.Pos, "single variable declared for several values")
		}
		values = []Variable{v}
	}

	for i, d := range s.Decls {
		if d == nil {
			continue
		}
		local := fb.declare(d)
		if n.Variable == nil {
			n.Variable = local
		}
		switch {
		case tuple != nil:
			fb.emit(&Unpack{Result: local, Tuple: tuple, Index: i})
		case values != nil && values[i] != nil:
			fb.assign(local, values[i])
		}
	}
	return n, nil
}

func (fb *funcBuilder) lowerIf(s *ast.IfStmt, cur *Node) (*Node, error) {
	n := fb.open(NodeIf, s.Pos, cur)
	n.Expression = s.Cond
	c, err := fb.expr(s.Cond)
	if err != nil {
		return nil, err
	}
	fb.emit(&Condition{Value: c})

	thenEnd, err := fb.lowerStmt(s.Then, n)
	if err != nil {
		return nil, err
	}
	var end *Node
	if len(n.Sons) == 0 {
		// empty then branch: the true edge goes straight to END_IF
		end = fb.fn.newNode(NodeEndIf, s.Pos)
		link(n, end)
	}

	elseEnd := n
	if s.Else != nil {
		if elseEnd, err = fb.lowerStmt(s.Else, n); err != nil {
			return nil, err
		}
	}
	if end == nil {
		end = fb.fn.newNode(NodeEndIf, s.Pos)
	}
	link(thenEnd, end)
	link(elseEnd, end)
	fb.node = end
	return end, nil
}

func (fb *funcBuilder) loopCondition(cond *Node, e ast.Expr) error {
	fb.node = cond
	if e == nil {
		return nil
	}
	cond.Expression = e
	c, err := fb.expr(e)
	if err != nil {
		return err
	}
	fb.emit(&Condition{Value: c})
	return nil
}

func (fb *funcBuilder) lowerWhile(s *ast.WhileStmt, cur *Node) (*Node, error) {
	begin := fb.open(NodeBeginLoop, s.Pos, cur)
	cond := fb.open(NodeIfLoop, s.Pos, begin)
	if err := fb.loopCondition(cond, s.Cond); err != nil {
		return nil, err
	}
	end := fb.fn.newNode(NodeEndLoop, s.Pos)

	fb.loops = append(fb.loops, loopTargets{cont: cond, end: end})
	bodyEnd, err := fb.lowerStmt(s.Body, cond)
	fb.loops = fb.loops[:len(fb.loops)-1]
	if err != nil {
		return nil, err
	}

	link(bodyEnd, cond)
	link(cond, end)
	fb.node = end
	return end, nil
}

func (fb *funcBuilder) lowerFor(s *ast.ForStmt, cur *Node) (*Node, error) {
	fb.pushScope()
	defer fb.popScope()

	if s.Init != nil {
		var err error
		if cur, err = fb.lowerStmt(s.Init, cur); err != nil {
			return nil, err
		}
	}

	begin := fb.open(NodeBeginLoop, s.Pos, cur)
	cond := fb.open(NodeIfLoop, s.Pos, begin)
	if err := fb.loopCondition(cond, s.Cond); err != nil {
		return nil, err
	}
	end := fb.fn.newNode(NodeEndLoop, s.Pos)

	cont := cond
	var update *Node
	if s.Update != nil {
		update = fb.fn.newNode(NodeExpression, s.Pos)
		update.Expression = s.Update
		cont = update
	}

	fb.loops = append(fb.loops, loopTargets{cont: cont, end: end})
	bodyEnd, err := fb.lowerStmt(s.Body, cond)
	fb.loops = fb.loops[:len(fb.loops)-1]
	if err != nil {
		return nil, err
	}

	if update != nil {
		link(bodyEnd, update)
		fb.node = update
		if _, err := fb.expr(s.Update); err != nil {
			return nil, err
		}
		link(update, cond)
	} else {
		link(bodyEnd, cond)
	}
	link(cond, end)
	fb.node = end
	return end, nil
}

func (fb *funcBuilder) lowerDoWhile(s *ast.DoWhileStmt, cur *Node) (*Node, error) {
	begin := fb.open(NodeBeginLoop, s.Pos, cur)
	cond := fb.fn.newNode(NodeIfLoop, s.Pos)
	end := fb.fn.newNode(NodeEndLoop, s.Pos)

	fb.loops = append(fb.loops, loopTargets{cont: cond, end: end})
	bodyEnd, err := fb.lowerStmt(s.Body, begin)
	fb.loops = fb.loops[:len(fb.loops)-1]
	if err != nil {
		return nil, err
	}

	first := cond
	if len(begin.Sons) > 0 {
		first = begin.Sons[0]
	} else {
		link(begin, cond)
	}
	link(bodyEnd, cond)
	if err := fb.loopCondition(cond, s.Cond); err != nil {
		return nil, err
	}
	link(cond, first)
	link(cond, end)
	fb.node = end
	return end, nil
}

func (fb *funcBuilder) returnValues(e ast.Expr) ([]Variable, error) {
	if e == nil {
		if hasNamedReturns(fb.fn) {
			return localVars(fb.fn.Returns), nil
		}
		return nil, nil
	}
	if t, ok := e.(*ast.TupleExpr); ok && !t.IsArray && len(t.Elems) != 1 {
		for _, el := range t.Elems {
			if el == nil {
				return nil, fb.errorf(errors.ErrorTupleArity, t.Pos, "empty component in returned tuple")
			}
		}
		return fb.exprs(t.Elems)
	}
	v, err := fb.expr(e)
	if err != nil {
		return nil, err
	}
	return []Variable{v}, nil
}

// lowerPrebuilt creates nodes from a CFG given with the declaration and
// lowers each node's expression with a function-wide scope.
func (fb *funcBuilder) lowerPrebuilt() error {
	fb.pushScope()
	defer fb.popScope()
	for _, v := range fb.fn.Locals {
		fb.bind(v)
	}

	cfg := fb.fn.Decl.CFG
	for _, cn := range cfg {
		typ, ok := ParseNodeType(cn.Kind)
		if !ok {
			return fb.errorf(errors.ErrorMalformedCFG, cn.Pos, "unknown node type %q", cn.Kind)
		}
		n := fb.fn.newNode(typ, cn.Pos)
		n.Expression = cn.Expression
	}

	explicitFathers := false
	for _, cn := range cfg {
		if cn.Fathers != nil {
			explicitFathers = true
		}
	}
	nodes := fb.fn.Nodes
	resolve := func(pos ast.Position, idx int) (*Node, error) {
		if idx < 0 || idx >= len(nodes) {
			return nil, fb.errorf(errors.ErrorMalformedCFG, pos, "node index %d out of range", idx)
		}
		return nodes[idx], nil
	}
	for i, cn := range cfg {
		for _, s := range cn.Sons {
			son, err := resolve(cn.Pos, s)
			if err != nil {
				return err
			}
			nodes[i].Sons = append(nodes[i].Sons, son)
			if !explicitFathers {
				son.Fathers = append(son.Fathers, nodes[i])
			}
		}
		for _, f := range cn.Fathers {
			father, err := resolve(cn.Pos, f)
			if err != nil {
				return err
			}
			nodes[i].Fathers = append(nodes[i].Fathers, father)
		}
	}

	for i, cn := range cfg {
		n := nodes[i]
		fb.node = n
		if i == 0 && n.Type == NodeEntryPoint {
			if err := fb.lowerModifiers(); err != nil {
				return err
			}
		}
		switch {
		case n.Type == NodeVariable && cn.Variable != nil:
			var value Variable
			if cn.Expression != nil {
				v, err := fb.expr(cn.Expression)
				if err != nil {
					return err
				}
				value = v
			}
			n.Variable = fb.declare(cn.Variable)
			if value != nil {
				fb.assign(n.Variable, value)
			}
		case n.Type == NodeReturn:
			values, err := fb.returnValues(cn.Expression)
			if err != nil {
				return err
			}
			fb.emit(&Return{Values: values})
		case cn.Expression == nil:
		case n.Type.IsConditional():
			c, err := fb.expr(cn.Expression)
			if err != nil {
				return err
			}
			fb.emit(&Condition{Value: c})
		default:
			if _, err := fb.expr(cn.Expression); err != nil {
				return err
			}
		}
	}
	return nil
}

