package ast

type Block struct {
	Pos        Position
	Statements []Stmt
	Unchecked  bool
}

// VarDeclStmt declares one or more locals. Decls holds nil for skipped
// tuple components: "(, uint b) = f()".
type VarDeclStmt struct {
	Pos   Position
	Decls []*VariableDecl
	Value Expr
}

type ExprStmt struct {
	Pos Position
	X   Expr
}

type IfStmt struct {
	Pos  Position
	Cond Expr
	Then Stmt
	Else Stmt
}

type WhileStmt struct {
	Pos  Position
	Cond Expr
	Body Stmt
}

type DoWhileStmt struct {
	Pos  Position
	Body Stmt
	Cond Expr
}

// ForStmt: any of Init, Cond and Update may be nil.
type ForStmt struct {
	Pos    Position
	Init   Stmt
	Cond   Expr
	Update Expr
	Body   Stmt
}

type ReturnStmt struct {
	Pos   Position
	Value Expr
}

type BreakStmt struct {
	Pos Position
}

type ContinueStmt struct {
	Pos Position
}

type ThrowStmt struct {
	Pos Position
}

// RevertStmt is "revert CustomError(args)".
type RevertStmt struct {
	Pos   Position
	Error string
	Args  []Expr
}

type EmitStmt struct {
	Pos   Position
	Event string
	Args  []Expr
}

// PlaceholderStmt is "_;" inside a modifier.
type PlaceholderStmt struct {
	Pos Position
}

type InlineAssembly struct {
	Pos  Position
	Code string
}
