package ast

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/valyala/fastjson"

	"smartfast/grammar"
	"smartfast/internal/types"
)

// Decode reads a solc compact-JSON source unit. source is the original file
// text and may be nil; when given, positions carry line and column.
func Decode(data []byte, source []byte) (*SourceUnit, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("cannot parse json: %w", err)
	}
	d := &decoder{lines: lineStarts(source)}
	return d.sourceUnit(v)
}

type decoder struct {
	filename string
	lines    []int
}

func lineStarts(src []byte) []int {
	if src == nil {
		return nil
	}
	starts := []int{0}
	for i, c := range src {
		if c == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func (d *decoder) pos(v *fastjson.Value) Position {
	p := Position{Filename: d.filename}
	src := string(v.GetStringBytes("src"))
	parts := strings.Split(src, ":")
	if len(parts) < 2 {
		return p
	}
	p.Offset, _ = strconv.Atoi(parts[0])
	p.Length, _ = strconv.Atoi(parts[1])
	if d.lines != nil {
		line := sort.Search(len(d.lines), func(i int) bool { return d.lines[i] > p.Offset })
		p.Line = line
		p.Column = p.Offset - d.lines[line-1] + 1
	}
	return p
}

func nodeType(v *fastjson.Value) string {
	return string(v.GetStringBytes("nodeType"))
}

func str(v *fastjson.Value, keys ...string) string {
	return string(v.GetStringBytes(keys...))
}

func isNull(v *fastjson.Value) bool {
	return v == nil || v.Type() == fastjson.TypeNull
}

// typeOf parses the typeString solc attaches to declarations and
// expressions. Literal and meta types solc reports with their own spelling
// are mapped to the type they take in an expression, anything else is left
// untyped.
func typeOf(v *fastjson.Value) types.Type {
	s := str(v, "typeDescriptions", "typeString")
	if s == "" {
		return nil
	}
	if t, err := grammar.ParseType(s); err == nil {
		return t
	}
	switch {
	case strings.HasPrefix(s, "int_const -"), strings.HasPrefix(s, "rational_const -"):
		return types.Int256
	case strings.HasPrefix(s, "int_const"), strings.HasPrefix(s, "rational_const"):
		return types.Uint256
	case strings.HasPrefix(s, "literal_string"), strings.HasPrefix(s, "literal_unicode"):
		return types.String
	}
	return nil
}

func (d *decoder) sourceUnit(v *fastjson.Value) (*SourceUnit, error) {
	if nt := nodeType(v); nt != "SourceUnit" {
		return nil, fmt.Errorf("expected SourceUnit, got %q", nt)
	}
	d.filename = str(v, "absolutePath")
	unit := &SourceUnit{Filename: d.filename}
	unit.Pos = d.pos(v)
	for _, n := range v.GetArray("nodes") {
		if nodeType(n) != "ContractDefinition" {
			continue
		}
		c, err := d.contract(n)
		if err != nil {
			return nil, err
		}
		unit.Contracts = append(unit.Contracts, c)
	}
	return unit, nil
}

func (d *decoder) contract(v *fastjson.Value) (*Contract, error) {
	c := &Contract{
		Pos:      d.pos(v),
		Name:     str(v, "name"),
		Kind:     ContractKind(str(v, "contractKind")),
		Abstract: v.GetBool("abstract"),
	}
	if c.Kind == "" {
		c.Kind = ContractKindContract
	}
	for _, b := range v.GetArray("baseContracts") {
		name := str(b, "baseName", "name")
		if name == "" {
			name = str(b, "baseName", "namePath")
		}
		c.Bases = append(c.Bases, name)
	}

	for _, n := range v.GetArray("nodes") {
		switch nodeType(n) {
		case "VariableDeclaration":
			sv, err := d.variable(n)
			if err != nil {
				return nil, fmt.Errorf("contract %s: %w", c.Name, err)
			}
			c.StateVariables = append(c.StateVariables, sv)
		case "FunctionDefinition", "ModifierDefinition":
			f, err := d.function(n)
			if err != nil {
				return nil, fmt.Errorf("contract %s: %w", c.Name, err)
			}
			c.Functions = append(c.Functions, f)
		case "StructDefinition":
			s := &StructDecl{Pos: d.pos(n), Name: str(n, "name")}
			for _, m := range n.GetArray("members") {
				field, err := d.variable(m)
				if err != nil {
					return nil, fmt.Errorf("struct %s: %w", s.Name, err)
				}
				s.Fields = append(s.Fields, field)
			}
			c.Structs = append(c.Structs, s)
		case "EnumDefinition":
			e := &EnumDecl{Pos: d.pos(n), Name: str(n, "name")}
			for _, m := range n.GetArray("members") {
				e.Values = append(e.Values, str(m, "name"))
			}
			c.Enums = append(c.Enums, e)
		case "EventDefinition":
			params, err := d.parameters(n.Get("parameters"))
			if err != nil {
				return nil, err
			}
			c.Events = append(c.Events, &EventDecl{Pos: d.pos(n), Name: str(n, "name"), Params: params})
		case "UsingForDirective":
			u := &UsingFor{Library: str(n, "libraryName", "name")}
			if tn := n.Get("typeName"); !isNull(tn) {
				u.Type = typeOf(tn)
			}
			c.Using = append(c.Using, u)
		}
	}
	return c, nil
}

func (d *decoder) variable(v *fastjson.Value) (*VariableDecl, error) {
	decl := &VariableDecl{
		Pos:        d.pos(v),
		Name:       str(v, "name"),
		Type:       typeOf(v),
		Location:   str(v, "storageLocation"),
		Visibility: str(v, "visibility"),
		Constant:   v.GetBool("constant"),
		Immutable:  str(v, "mutability") == "immutable",
		Indexed:    v.GetBool("indexed"),
	}
	if decl.Location == "default" {
		decl.Location = ""
	}
	if init := v.Get("value"); !isNull(init) {
		e, err := d.expr(init)
		if err != nil {
			return nil, err
		}
		decl.Value = e
	}
	return decl, nil
}

func (d *decoder) parameters(v *fastjson.Value) ([]*VariableDecl, error) {
	if isNull(v) {
		return nil, nil
	}
	var out []*VariableDecl
	for _, p := range v.GetArray("parameters") {
		decl, err := d.variable(p)
		if err != nil {
			return nil, err
		}
		out = append(out, decl)
	}
	return out, nil
}

func (d *decoder) function(v *fastjson.Value) (*Function, error) {
	f := &Function{
		Pos:        d.pos(v),
		Name:       str(v, "name"),
		Kind:       FunctionKind(str(v, "kind")),
		Visibility: str(v, "visibility"),
		Mutability: str(v, "stateMutability"),
		Virtual:    v.GetBool("virtual"),
	}
	if nodeType(v) == "ModifierDefinition" {
		f.Kind = KindModifier
	}
	if f.Kind == "" {
		f.Kind = KindFunction
		if v.GetBool("isConstructor") {
			f.Kind = KindConstructor
		}
	}
	if f.Kind == KindFunction && f.Name == "" {
		f.Kind = KindFallback
	}

	var err error
	if f.Params, err = d.parameters(v.Get("parameters")); err != nil {
		return nil, fmt.Errorf("function %s: %w", f.Name, err)
	}
	if f.Returns, err = d.parameters(v.Get("returnParameters")); err != nil {
		return nil, fmt.Errorf("function %s: %w", f.Name, err)
	}

	for _, m := range v.GetArray("modifiers") {
		inv := &ModifierInvocation{Pos: d.pos(m), Name: str(m, "modifierName", "name")}
		if args := m.GetArray("arguments"); args != nil {
			if inv.Args, err = d.exprs(args); err != nil {
				return nil, fmt.Errorf("function %s: %w", f.Name, err)
			}
		}
		f.Modifiers = append(f.Modifiers, inv)
	}

	if body := v.Get("body"); !isNull(body) {
		stmt, err := d.stmt(body)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", f.Name, err)
		}
		block, ok := stmt.(*Block)
		if !ok {
			return nil, fmt.Errorf("function %s: body is %T, not a block", f.Name, stmt)
		}
		f.Body = block
	}

	for _, n := range v.GetArray("cfg") {
		node, err := d.cfgNode(n)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", f.Name, err)
		}
		f.CFG = append(f.CFG, node)
	}
	return f, nil
}

func (d *decoder) cfgNode(v *fastjson.Value) (*CFGNode, error) {
	n := &CFGNode{Pos: d.pos(v), Kind: str(v, "kind")}
	if e := v.Get("expression"); !isNull(e) {
		x, err := d.expr(e)
		if err != nil {
			return nil, err
		}
		n.Expression = x
	}
	if vd := v.Get("variable"); !isNull(vd) {
		decl, err := d.variable(vd)
		if err != nil {
			return nil, err
		}
		n.Variable = decl
	}
	for _, s := range v.GetArray("sons") {
		n.Sons = append(n.Sons, s.GetInt())
	}
	for _, f := range v.GetArray("fathers") {
		n.Fathers = append(n.Fathers, f.GetInt())
	}
	return n, nil
}

func (d *decoder) stmt(v *fastjson.Value) (Stmt, error) {
	pos := d.pos(v)
	switch nt := nodeType(v); nt {
	case "Block", "UncheckedBlock":
		b := &Block{Pos: pos, Unchecked: nt == "UncheckedBlock"}
		for _, s := range v.GetArray("statements") {
			stmt, err := d.stmt(s)
			if err != nil {
				return nil, err
			}
			b.Statements = append(b.Statements, stmt)
		}
		return b, nil

	case "VariableDeclarationStatement":
		s := &VarDeclStmt{Pos: pos}
		for _, decl := range v.GetArray("declarations") {
			if isNull(decl) {
				s.Decls = append(s.Decls, nil)
				continue
			}
			vd, err := d.variable(decl)
			if err != nil {
				return nil, err
			}
			s.Decls = append(s.Decls, vd)
		}
		if init := v.Get("initialValue"); !isNull(init) {
			e, err := d.expr(init)
			if err != nil {
				return nil, err
			}
			s.Value = e
		}
		return s, nil

	case "ExpressionStatement":
		e, err := d.expr(v.Get("expression"))
		if err != nil {
			return nil, err
		}
		return &ExprStmt{Pos: pos, X: e}, nil

	case "IfStatement":
		cond, err := d.expr(v.Get("condition"))
		if err != nil {
			return nil, err
		}
		then, err := d.stmt(v.Get("trueBody"))
		if err != nil {
			return nil, err
		}
		s := &IfStmt{Pos: pos, Cond: cond, Then: then}
		if fb := v.Get("falseBody"); !isNull(fb) {
			if s.Else, err = d.stmt(fb); err != nil {
				return nil, err
			}
		}
		return s, nil

	case "WhileStatement", "DoWhileStatement":
		cond, err := d.expr(v.Get("condition"))
		if err != nil {
			return nil, err
		}
		body, err := d.stmt(v.Get("body"))
		if err != nil {
			return nil, err
		}
		if nt == "DoWhileStatement" {
			return &DoWhileStmt{Pos: pos, Body: body, Cond: cond}, nil
		}
		return &WhileStmt{Pos: pos, Cond: cond, Body: body}, nil

	case "ForStatement":
		s := &ForStmt{Pos: pos}
		var err error
		if init := v.Get("initializationExpression"); !isNull(init) {
			if s.Init, err = d.stmt(init); err != nil {
				return nil, err
			}
		}
		if cond := v.Get("condition"); !isNull(cond) {
			if s.Cond, err = d.expr(cond); err != nil {
				return nil, err
			}
		}
		if loop := v.Get("loopExpression"); !isNull(loop) {
			if s.Update, err = d.expr(loop.Get("expression")); err != nil {
				return nil, err
			}
		}
		if s.Body, err = d.stmt(v.Get("body")); err != nil {
			return nil, err
		}
		return s, nil

	case "Return":
		s := &ReturnStmt{Pos: pos}
		if e := v.Get("expression"); !isNull(e) {
			x, err := d.expr(e)
			if err != nil {
				return nil, err
			}
			s.Value = x
		}
		return s, nil

	case "Break":
		return &BreakStmt{Pos: pos}, nil
	case "Continue":
		return &ContinueStmt{Pos: pos}, nil
	case "Throw":
		return &ThrowStmt{Pos: pos}, nil
	case "PlaceholderStatement":
		return &PlaceholderStmt{Pos: pos}, nil
	case "InlineAssembly":
		return &InlineAssembly{Pos: pos, Code: str(v, "operations")}, nil

	case "EmitStatement", "RevertStatement":
		call := v.Get("eventCall")
		if nt == "RevertStatement" {
			call = v.Get("errorCall")
		}
		if isNull(call) {
			return nil, fmt.Errorf("%s without call at offset %d", nt, pos.Offset)
		}
		args, err := d.exprs(call.GetArray("arguments"))
		if err != nil {
			return nil, err
		}
		name := calleeName(call.Get("expression"))
		if nt == "RevertStatement" {
			return &RevertStmt{Pos: pos, Error: name, Args: args}, nil
		}
		return &EmitStmt{Pos: pos, Event: name, Args: args}, nil

	default:
		return nil, fmt.Errorf("unsupported statement %q at offset %d", nt, pos.Offset)
	}
}

func calleeName(v *fastjson.Value) string {
	if isNull(v) {
		return ""
	}
	if nodeType(v) == "MemberAccess" {
		return calleeName(v.Get("expression")) + "." + str(v, "memberName")
	}
	return str(v, "name")
}

func (d *decoder) exprs(vs []*fastjson.Value) ([]Expr, error) {
	out := make([]Expr, 0, len(vs))
	for _, v := range vs {
		if isNull(v) {
			out = append(out, nil)
			continue
		}
		e, err := d.expr(v)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (d *decoder) expr(v *fastjson.Value) (Expr, error) {
	if isNull(v) {
		return nil, fmt.Errorf("missing expression")
	}
	info := ExprInfo{Pos: d.pos(v), Type: typeOf(v)}

	switch nt := nodeType(v); nt {
	case "Identifier":
		return &Identifier{ExprInfo: info, Name: str(v, "name")}, nil

	case "Literal":
		l := &Literal{
			ExprInfo:        info,
			Kind:            LiteralKind(str(v, "kind")),
			Value:           str(v, "value"),
			Subdenomination: str(v, "subdenomination"),
		}
		if l.Kind == "unicodeString" {
			l.Kind = LiteralString
		}
		if l.Kind == LiteralHex && l.Value == "" {
			l.Value = str(v, "hexValue")
		}
		return l, nil

	case "BinaryOperation":
		left, err := d.expr(v.Get("leftExpression"))
		if err != nil {
			return nil, err
		}
		right, err := d.expr(v.Get("rightExpression"))
		if err != nil {
			return nil, err
		}
		return &BinaryOp{ExprInfo: info, Op: str(v, "operator"), Left: left, Right: right}, nil

	case "UnaryOperation":
		x, err := d.expr(v.Get("subExpression"))
		if err != nil {
			return nil, err
		}
		return &UnaryOp{ExprInfo: info, Op: str(v, "operator"), X: x, Prefix: v.GetBool("prefix")}, nil

	case "Assignment":
		lhs, err := d.expr(v.Get("leftHandSide"))
		if err != nil {
			return nil, err
		}
		rhs, err := d.expr(v.Get("rightHandSide"))
		if err != nil {
			return nil, err
		}
		return &Assignment{ExprInfo: info, Op: str(v, "operator"), LHS: lhs, RHS: rhs}, nil

	case "IndexAccess":
		base, err := d.expr(v.Get("baseExpression"))
		if err != nil {
			return nil, err
		}
		ia := &IndexAccess{ExprInfo: info, Base: base}
		if idx := v.Get("indexExpression"); !isNull(idx) {
			if ia.Index, err = d.expr(idx); err != nil {
				return nil, err
			}
		}
		return ia, nil

	case "MemberAccess":
		base, err := d.expr(v.Get("expression"))
		if err != nil {
			return nil, err
		}
		return &MemberAccess{ExprInfo: info, Base: base, Member: str(v, "memberName")}, nil

	case "FunctionCall":
		call := &FunctionCall{ExprInfo: info}
		callee := v.Get("expression")
		if nodeType(callee) == "FunctionCallOptions" {
			names := callee.GetArray("names")
			opts := callee.GetArray("options")
			for i, n := range names {
				if i >= len(opts) {
					break
				}
				opt, err := d.expr(opts[i])
				if err != nil {
					return nil, err
				}
				switch string(n.GetStringBytes()) {
				case "value":
					call.Value = opt
				case "gas":
					call.Gas = opt
				}
			}
			callee = callee.Get("expression")
		}
		var err error
		if call.Callee, err = d.expr(callee); err != nil {
			return nil, err
		}
		if call.Args, err = d.exprs(v.GetArray("arguments")); err != nil {
			return nil, err
		}
		for _, n := range v.GetArray("names") {
			call.Names = append(call.Names, string(n.GetStringBytes()))
		}
		return call, nil

	case "TupleExpression":
		elems, err := d.exprs(v.GetArray("components"))
		if err != nil {
			return nil, err
		}
		return &TupleExpr{ExprInfo: info, Elems: elems, IsArray: v.GetBool("isInlineArray")}, nil

	case "Conditional":
		cond, err := d.expr(v.Get("condition"))
		if err != nil {
			return nil, err
		}
		then, err := d.expr(v.Get("trueExpression"))
		if err != nil {
			return nil, err
		}
		els, err := d.expr(v.Get("falseExpression"))
		if err != nil {
			return nil, err
		}
		return &Conditional{ExprInfo: info, Cond: cond, Then: then, Else: els}, nil

	case "NewExpression":
		return &NewExpr{ExprInfo: info, TypeName: typeOf(v.Get("typeName"))}, nil

	case "ElementaryTypeNameExpression":
		tn := v.Get("typeName")
		name := str(v, "typeName")
		if name == "" {
			name = str(tn, "name")
			if str(tn, "stateMutability") == "payable" {
				name += " payable"
			}
		}
		t, err := grammar.ParseType(name)
		if err != nil {
			return nil, fmt.Errorf("offset %d: %w", info.Pos.Offset, err)
		}
		return &ElementaryTypeName{ExprInfo: info, TypeName: t}, nil

	default:
		return nil, fmt.Errorf("unsupported expression %q at offset %d", nt, info.Pos.Offset)
	}
}
