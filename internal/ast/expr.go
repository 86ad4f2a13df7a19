package ast

import "smartfast/internal/types"

// Identifier names a local, a state variable, a function, a contract or a
// builtin. Example: "balances", "msg", "now"
type Identifier struct {
	ExprInfo
	Name string
}

type LiteralKind string

const (
	LiteralNumber  LiteralKind = "number"
	LiteralBool    LiteralKind = "bool"
	LiteralString  LiteralKind = "string"
	LiteralHex     LiteralKind = "hexString"
	LiteralAddress LiteralKind = "address"
)

// Literal is a constant value. Example: "1 ether", "0xff", "true", "\"abc\""
type Literal struct {
	ExprInfo
	Kind            LiteralKind
	Value           string
	Subdenomination string
}

// BinaryOp example: "a + b", "x && y"
type BinaryOp struct {
	ExprInfo
	Op    string
	Left  Expr
	Right Expr
}

// UnaryOp covers "!x", "-x", "~x", "++x", "x--" and "delete x".
type UnaryOp struct {
	ExprInfo
	Op     string
	X      Expr
	Prefix bool
}

// Assignment example: "a = b", "total += amount"
type Assignment struct {
	ExprInfo
	Op  string
	LHS Expr
	RHS Expr
}

// IndexAccess example: "balances[msg.sender]". Index is nil for a type
// expression such as "uint256[]".
type IndexAccess struct {
	ExprInfo
	Base  Expr
	Index Expr
}

// MemberAccess example: "msg.sender", "account.balance", "token.transfer"
type MemberAccess struct {
	ExprInfo
	Base   Expr
	Member string
}

// FunctionCall covers calls, type conversions, struct constructors and
// "new". Value and Gas hold call options ("f{value: v}()").
type FunctionCall struct {
	ExprInfo
	Callee Expr
	Args   []Expr
	Names  []string
	Value  Expr
	Gas    Expr
}

// TupleExpr example: "(a, b)", "(, x)" with nil gaps, or an inline array
// "[1, 2, 3]" when IsArray is set.
type TupleExpr struct {
	ExprInfo
	Elems   []Expr
	IsArray bool
}

// Conditional example: "c ? a : b"
type Conditional struct {
	ExprInfo
	Cond Expr
	Then Expr
	Else Expr
}

// NewExpr is the callee of "new T(...)"; TypeName is a contract, a dynamic
// array or bytes/string.
type NewExpr struct {
	ExprInfo
	TypeName types.Type
}

// ElementaryTypeName is the callee of a conversion such as "uint256(x)".
type ElementaryTypeName struct {
	ExprInfo
	TypeName types.Type
}
