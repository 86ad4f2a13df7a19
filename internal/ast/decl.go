package ast

import "smartfast/internal/types"

// SourceUnit is one compiled file.
type SourceUnit struct {
	Pos       Position
	Filename  string
	Contracts []*Contract
}

type ContractKind string

const (
	ContractKindContract  ContractKind = "contract"
	ContractKindInterface ContractKind = "interface"
	ContractKindLibrary   ContractKind = "library"
)

// Contract is a contract, interface or library declaration. Bases are
// listed as written: "contract C is A, B" gives ["A", "B"].
type Contract struct {
	Pos            Position
	Name           string
	Kind           ContractKind
	Abstract       bool
	Bases          []string
	StateVariables []*VariableDecl
	Structs        []*StructDecl
	Enums          []*EnumDecl
	Events         []*EventDecl
	Functions      []*Function
	Using          []*UsingFor
}

// VariableDecl is a state variable, parameter, return variable, local,
// struct field or event parameter.
type VariableDecl struct {
	Pos        Position
	Name       string
	Type       types.Type
	Location   string // "storage", "memory", "calldata" or ""
	Visibility string
	Constant   bool
	Immutable  bool
	Indexed    bool
	Value      Expr
}

type StructDecl struct {
	Pos    Position
	Name   string
	Fields []*VariableDecl
}

type EnumDecl struct {
	Pos    Position
	Name   string
	Values []string
}

type EventDecl struct {
	Pos    Position
	Name   string
	Params []*VariableDecl
}

// UsingFor is "using Lib for T"; Type is nil for "using Lib for *".
type UsingFor struct {
	Library string
	Type    types.Type
}

type FunctionKind string

const (
	KindFunction    FunctionKind = "function"
	KindConstructor FunctionKind = "constructor"
	KindFallback    FunctionKind = "fallback"
	KindReceive     FunctionKind = "receive"
	KindModifier    FunctionKind = "modifier"
)

// Function is a function or modifier declaration. Body is nil for
// declarations without implementation, unless CFG is given.
type Function struct {
	Pos        Position
	Name       string
	Kind       FunctionKind
	Visibility string
	Mutability string
	Virtual    bool
	Params     []*VariableDecl
	Returns    []*VariableDecl
	Modifiers  []*ModifierInvocation
	Body       *Block
	CFG        []*CFGNode
}

// ModifierInvocation is a modifier or base constructor applied to a
// function header: "onlyOwner", "Base(1)".
type ModifierInvocation struct {
	Pos  Position
	Name string
	Args []Expr
}

// CFGNode is one node of a pre-built control flow graph. Index 0 is the
// entry point. Fathers may be omitted; they are then derived from Sons.
type CFGNode struct {
	Pos        Position
	Kind       string
	Expression Expr
	Variable   *VariableDecl
	Fathers    []int
	Sons       []int
}

// Implemented reports whether the function has code to lower.
func (f *Function) Implemented() bool {
	return f.Body != nil || len(f.CFG) > 0
}
