package ast

import "smartfast/internal/types"

// Constructors for building trees in code, mostly from tests.

func Ident(name string, t types.Type) *Identifier {
	return &Identifier{ExprInfo: ExprInfo{Type: t}, Name: name}
}

func Number(value string) *Literal {
	return &Literal{ExprInfo: ExprInfo{Type: types.Uint256}, Kind: LiteralNumber, Value: value}
}

func BoolLit(value bool) *Literal {
	v := "false"
	if value {
		v = "true"
	}
	return &Literal{ExprInfo: ExprInfo{Type: types.Bool}, Kind: LiteralBool, Value: v}
}

func StringLit(value string) *Literal {
	return &Literal{ExprInfo: ExprInfo{Type: types.String}, Kind: LiteralString, Value: value}
}

var comparisonOps = map[string]bool{
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true, "&&": true, "||": true,
}

// Binary infers bool for comparisons and logical operators, otherwise the
// left operand's type.
func Binary(op string, left, right Expr) *BinaryOp {
	var t types.Type = types.Bool
	if !comparisonOps[op] {
		t = left.ExprType()
	}
	return &BinaryOp{ExprInfo: ExprInfo{Type: t}, Op: op, Left: left, Right: right}
}

func Unary(op string, x Expr, prefix bool) *UnaryOp {
	t := x.ExprType()
	if op == "!" {
		t = types.Bool
	}
	return &UnaryOp{ExprInfo: ExprInfo{Type: t}, Op: op, X: x, Prefix: prefix}
}

func Assign(lhs, rhs Expr) *Assignment {
	return AssignOp("=", lhs, rhs)
}

func AssignOp(op string, lhs, rhs Expr) *Assignment {
	return &Assignment{ExprInfo: ExprInfo{Type: lhs.ExprType()}, Op: op, LHS: lhs, RHS: rhs}
}

func Index(base, index Expr) *IndexAccess {
	return &IndexAccess{ExprInfo: ExprInfo{Type: types.ElemType(base.ExprType())}, Base: base, Index: index}
}

func Member(base Expr, member string, t types.Type) *MemberAccess {
	return &MemberAccess{ExprInfo: ExprInfo{Type: t}, Base: base, Member: member}
}

// Builtin builds a dotted builtin access such as "msg.sender".
func Builtin(object, member string, t types.Type) *MemberAccess {
	return Member(Ident(object, nil), member, t)
}

func Call(callee Expr, t types.Type, args ...Expr) *FunctionCall {
	return &FunctionCall{ExprInfo: ExprInfo{Type: t}, Callee: callee, Args: args}
}

func Tuple(elems ...Expr) *TupleExpr {
	ts := make([]types.Type, len(elems))
	for i, e := range elems {
		if e != nil {
			ts[i] = e.ExprType()
		}
	}
	return &TupleExpr{ExprInfo: ExprInfo{Type: &types.Tuple{Elems: ts}}, Elems: elems}
}

func Cond(cond, then, els Expr) *Conditional {
	return &Conditional{ExprInfo: ExprInfo{Type: then.ExprType()}, Cond: cond, Then: then, Else: els}
}

func Convert(to types.Type, x Expr) *FunctionCall {
	return Call(&ElementaryTypeName{TypeName: to}, to, x)
}

func Var(name string, t types.Type) *VariableDecl {
	return &VariableDecl{Name: name, Type: t}
}

func Blk(stmts ...Stmt) *Block {
	return &Block{Statements: stmts}
}

func Exprs(x Expr) *ExprStmt {
	return &ExprStmt{X: x}
}

func Declare(name string, t types.Type, value Expr) *VarDeclStmt {
	return &VarDeclStmt{Decls: []*VariableDecl{Var(name, t)}, Value: value}
}

func If(cond Expr, then, els Stmt) *IfStmt {
	return &IfStmt{Cond: cond, Then: then, Else: els}
}

func While(cond Expr, body Stmt) *WhileStmt {
	return &WhileStmt{Cond: cond, Body: body}
}

func For(init Stmt, cond, update Expr, body Stmt) *ForStmt {
	return &ForStmt{Init: init, Cond: cond, Update: update, Body: body}
}

func Return(value Expr) *ReturnStmt {
	return &ReturnStmt{Value: value}
}

func Emit(event string, args ...Expr) *EmitStmt {
	return &EmitStmt{Event: event, Args: args}
}

// Func builds a public function with the given parameters and body.
func Func(name string, params []*VariableDecl, body ...Stmt) *Function {
	return &Function{
		Name:       name,
		Kind:       KindFunction,
		Visibility: "public",
		Mutability: "nonpayable",
		Params:     params,
		Body:       Blk(body...),
	}
}
