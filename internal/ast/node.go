package ast

import "smartfast/internal/types"

// Position tracks source location for diagnostics.
type Position struct {
	Filename string
	Offset   int
	Length   int
	Line     int
	Column   int
}

// IsValid reports whether the position carries any location.
func (p Position) IsValid() bool {
	return p.Line > 0 || p.Offset > 0 || p.Length > 0
}

type Node interface {
	NodePos() Position
	String() string
}

type Expr interface {
	Node
	ExprType() types.Type
	isExpr()
}

type Stmt interface {
	Node
	isStmt()
}

// ExprInfo is embedded by every expression: its source position and
// resolved type.
type ExprInfo struct {
	Pos  Position
	Type types.Type
}

func (e *ExprInfo) NodePos() Position    { return e.Pos }
func (e *ExprInfo) ExprType() types.Type { return e.Type }

func (*Identifier) isExpr()         {}
func (*Literal) isExpr()            {}
func (*BinaryOp) isExpr()           {}
func (*UnaryOp) isExpr()            {}
func (*Assignment) isExpr()         {}
func (*IndexAccess) isExpr()        {}
func (*MemberAccess) isExpr()       {}
func (*FunctionCall) isExpr()       {}
func (*TupleExpr) isExpr()          {}
func (*Conditional) isExpr()        {}
func (*NewExpr) isExpr()            {}
func (*ElementaryTypeName) isExpr() {}

func (*Block) isStmt()            {}
func (*VarDeclStmt) isStmt()      {}
func (*ExprStmt) isStmt()         {}
func (*IfStmt) isStmt()           {}
func (*WhileStmt) isStmt()        {}
func (*DoWhileStmt) isStmt()      {}
func (*ForStmt) isStmt()          {}
func (*ReturnStmt) isStmt()       {}
func (*BreakStmt) isStmt()        {}
func (*ContinueStmt) isStmt()     {}
func (*ThrowStmt) isStmt()        {}
func (*RevertStmt) isStmt()       {}
func (*EmitStmt) isStmt()         {}
func (*PlaceholderStmt) isStmt()  {}
func (*InlineAssembly) isStmt()   {}

func (s *Block) NodePos() Position           { return s.Pos }
func (s *VarDeclStmt) NodePos() Position     { return s.Pos }
func (s *ExprStmt) NodePos() Position        { return s.Pos }
func (s *IfStmt) NodePos() Position          { return s.Pos }
func (s *WhileStmt) NodePos() Position       { return s.Pos }
func (s *DoWhileStmt) NodePos() Position     { return s.Pos }
func (s *ForStmt) NodePos() Position         { return s.Pos }
func (s *ReturnStmt) NodePos() Position      { return s.Pos }
func (s *BreakStmt) NodePos() Position       { return s.Pos }
func (s *ContinueStmt) NodePos() Position    { return s.Pos }
func (s *ThrowStmt) NodePos() Position       { return s.Pos }
func (s *RevertStmt) NodePos() Position      { return s.Pos }
func (s *EmitStmt) NodePos() Position        { return s.Pos }
func (s *PlaceholderStmt) NodePos() Position { return s.Pos }
func (s *InlineAssembly) NodePos() Position  { return s.Pos }

func (u *SourceUnit) NodePos() Position   { return u.Pos }
func (c *Contract) NodePos() Position     { return c.Pos }
func (v *VariableDecl) NodePos() Position { return v.Pos }
func (s *StructDecl) NodePos() Position   { return s.Pos }
func (e *EnumDecl) NodePos() Position     { return e.Pos }
func (e *EventDecl) NodePos() Position    { return e.Pos }
func (f *Function) NodePos() Position     { return f.Pos }
