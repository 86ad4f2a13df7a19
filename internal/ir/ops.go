package ir

import (
	"fmt"
	"strings"

	"smartfast/internal/builtins"
	"smartfast/internal/types"
)

// Operation is one three-address IR instruction. The set is closed: every
// implementation lives in this file.
type Operation interface {
	// Lvalue is the written variable, or nil.
	Lvalue() Variable
	// Read lists the operands in evaluation order. It never contains the
	// lvalue.
	Read() []Variable
	// NodeID is the ID of the node holding the operation.
	NodeID() int
	String() string
	operation()
}

type base struct {
	node int
}

func (b *base) NodeID() int { return b.node }
func (*base) operation()    {}

func (b *base) setNode(id int) { b.node = id }

type BinaryOp string

const (
	OpAdd    BinaryOp = "+"
	OpSub    BinaryOp = "-"
	OpMul    BinaryOp = "*"
	OpDiv    BinaryOp = "/"
	OpMod    BinaryOp = "%"
	OpPow    BinaryOp = "**"
	OpShl    BinaryOp = "<<"
	OpShr    BinaryOp = ">>"
	OpAnd    BinaryOp = "&"
	OpOr     BinaryOp = "|"
	OpXor    BinaryOp = "^"
	OpEq     BinaryOp = "=="
	OpNeq    BinaryOp = "!="
	OpLt     BinaryOp = "<"
	OpLte    BinaryOp = "<="
	OpGt     BinaryOp = ">"
	OpGte    BinaryOp = ">="
	OpAndAnd BinaryOp = "&&"
	OpOrOr   BinaryOp = "||"
)

var binaryOps = map[string]BinaryOp{}

func init() {
	for _, op := range []BinaryOp{OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow, OpShl, OpShr, OpAnd, OpOr, OpXor,
		OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte, OpAndAnd, OpOrOr} {
		binaryOps[string(op)] = op
	}
}

// ParseBinaryOp maps a source operator to a BinaryOp.
func ParseBinaryOp(s string) (BinaryOp, bool) {
	op, ok := binaryOps[s]
	return op, ok
}

func (op BinaryOp) IsComparison() bool {
	switch op {
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte:
		return true
	}
	return false
}

func (op BinaryOp) IsLogical() bool { return op == OpAndAnd || op == OpOrOr }

func (op BinaryOp) IsArithmetic() bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow:
		return true
	}
	return false
}

type Assignment struct {
	base
	Result Variable
	Rvalue Variable
}

type Binary struct {
	base
	Result Variable
	Left   Variable
	Right  Variable
	Op     BinaryOp
}

type Unary struct {
	base
	Result  Variable
	Operand Variable
	Op      string
}

// Condition marks the value an IF or IF_LOOP node branches on.
type Condition struct {
	base
	Value Variable
}

type Index struct {
	base
	Result Variable
	Base   Variable
	Index  Variable
}

type Member struct {
	base
	Result Variable
	Base   Variable
	Field  string
}

type Length struct {
	base
	Result Variable
	Base   Variable
}

type TypeConversion struct {
	base
	Result Variable
	Value  Variable
	To     types.Type
}

type Unpack struct {
	base
	Result Variable
	Tuple  Variable
	Index  int
}

type InitArray struct {
	base
	Result Variable
	Elems  []Variable
}

type NewArray struct {
	base
	Result    Variable
	ArrayType types.Type
	Args      []Variable
}

type NewContract struct {
	base
	Result   Variable
	Contract string
	Args     []Variable
	Value    Variable
}

type NewStructure struct {
	base
	Result Variable
	Struct string
	Args   []Variable
}

type NewElementaryType struct {
	base
	Result   Variable
	ElemType types.Type
	Args     []Variable
}

// InternalCall calls a function or modifier of the same contract or of a
// base contract.
type InternalCall struct {
	base
	Result     Variable
	Callee     *Function
	Args       []Variable
	IsModifier bool
}

// InternalDynamicCall calls through a function-typed variable.
type InternalDynamicCall struct {
	base
	Result   Variable
	Function Variable
	Args     []Variable
}

// HighLevelCall is a member call on a contract-typed value. Callee is nil
// when the target contract is not part of the program.
type HighLevelCall struct {
	base
	Result       Variable
	Destination  Variable
	FunctionName string
	Callee       *Function
	Args         []Variable
	Value        Variable
	Gas          Variable
}

// LowLevelCall is call, delegatecall, staticcall or callcode.
type LowLevelCall struct {
	base
	Result       Variable
	Destination  Variable
	FunctionName string
	Args         []Variable
	Value        Variable
	Gas          Variable
}

type LibraryCall struct {
	base
	Result  Variable
	Library string
	Callee  *Function
	Args    []Variable
}

type SolidityCall struct {
	base
	Result  Variable
	Builtin *builtins.Function
	Args    []Variable
}

type EventCall struct {
	base
	Event string
	Args  []Variable
}

type Send struct {
	base
	Result      Variable
	Destination Variable
	Value       Variable
}

type Transfer struct {
	base
	Destination Variable
	Value       Variable
}

// Delete resets Target; the target is the lvalue.
type Delete struct {
	base
	Target Variable
}

type Return struct {
	base
	Values []Variable
}

// Phi merges the versions of Variable reaching a join node. Rvalues[i]
// comes from the father with ID Preds[i].
type Phi struct {
	base
	Result   Variable
	Variable Variable
	Rvalues  []Variable
	Preds    []int
}

// PhiCallback redefines a state variable right after Call, which may have
// written it. Previous is the version live before the call.
type PhiCallback struct {
	base
	Result   Variable
	Variable Variable
	Previous Variable
	Call     Operation
}

// PhiAlias redefines a state variable written through a storage pointer.
// Pointer is the new version of the pointer local.
type PhiAlias struct {
	base
	Result   Variable
	Variable Variable
	Previous Variable
	Pointer  Variable
}

func (o *Assignment) Lvalue() Variable          { return o.Result }
func (o *Binary) Lvalue() Variable              { return o.Result }
func (o *Unary) Lvalue() Variable               { return o.Result }
func (*Condition) Lvalue() Variable             { return nil }
func (o *Index) Lvalue() Variable               { return o.Result }
func (o *Member) Lvalue() Variable              { return o.Result }
func (o *Length) Lvalue() Variable              { return o.Result }
func (o *TypeConversion) Lvalue() Variable      { return o.Result }
func (o *Unpack) Lvalue() Variable              { return o.Result }
func (o *InitArray) Lvalue() Variable           { return o.Result }
func (o *NewArray) Lvalue() Variable            { return o.Result }
func (o *NewContract) Lvalue() Variable         { return o.Result }
func (o *NewStructure) Lvalue() Variable        { return o.Result }
func (o *NewElementaryType) Lvalue() Variable   { return o.Result }
func (o *InternalCall) Lvalue() Variable        { return o.Result }
func (o *InternalDynamicCall) Lvalue() Variable { return o.Result }
func (o *HighLevelCall) Lvalue() Variable       { return o.Result }
func (o *LowLevelCall) Lvalue() Variable        { return o.Result }
func (o *LibraryCall) Lvalue() Variable         { return o.Result }
func (o *SolidityCall) Lvalue() Variable        { return o.Result }
func (*EventCall) Lvalue() Variable             { return nil }
func (o *Send) Lvalue() Variable                { return o.Result }
func (*Transfer) Lvalue() Variable              { return nil }
func (o *Delete) Lvalue() Variable              { return o.Target }
func (*Return) Lvalue() Variable                { return nil }
func (o *Phi) Lvalue() Variable                 { return o.Result }
func (o *PhiCallback) Lvalue() Variable         { return o.Result }
func (o *PhiAlias) Lvalue() Variable            { return o.Result }

func vars(vs ...Variable) []Variable {
	out := make([]Variable, 0, len(vs))
	for _, v := range vs {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

func (o *Assignment) Read() []Variable     { return vars(o.Rvalue) }
func (o *Binary) Read() []Variable         { return vars(o.Left, o.Right) }
func (o *Unary) Read() []Variable          { return vars(o.Operand) }
func (o *Condition) Read() []Variable      { return vars(o.Value) }
func (o *Index) Read() []Variable          { return vars(o.Base, o.Index) }
func (o *Member) Read() []Variable         { return vars(o.Base) }
func (o *Length) Read() []Variable         { return vars(o.Base) }
func (o *TypeConversion) Read() []Variable { return vars(o.Value) }
func (o *Unpack) Read() []Variable         { return vars(o.Tuple) }
func (o *InitArray) Read() []Variable      { return vars(o.Elems...) }
func (o *NewArray) Read() []Variable       { return vars(o.Args...) }
func (o *NewContract) Read() []Variable    { return vars(append(vars(o.Args...), o.Value)...) }
func (o *NewStructure) Read() []Variable   { return vars(o.Args...) }
func (o *NewElementaryType) Read() []Variable {
	return vars(o.Args...)
}
func (o *InternalCall) Read() []Variable { return vars(o.Args...) }
func (o *InternalDynamicCall) Read() []Variable {
	return vars(append([]Variable{o.Function}, o.Args...)...)
}
func (o *HighLevelCall) Read() []Variable {
	return vars(append(append([]Variable{o.Destination}, o.Args...), o.Value, o.Gas)...)
}
func (o *LowLevelCall) Read() []Variable {
	return vars(append(append([]Variable{o.Destination}, o.Args...), o.Value, o.Gas)...)
}
func (o *LibraryCall) Read() []Variable  { return vars(o.Args...) }
func (o *SolidityCall) Read() []Variable { return vars(o.Args...) }
func (o *EventCall) Read() []Variable    { return vars(o.Args...) }
func (o *Send) Read() []Variable         { return vars(o.Destination, o.Value) }
func (o *Transfer) Read() []Variable     { return vars(o.Destination, o.Value) }
func (*Delete) Read() []Variable         { return nil }
func (o *Return) Read() []Variable       { return vars(o.Values...) }
func (o *Phi) Read() []Variable          { return vars(o.Rvalues...) }
func (o *PhiCallback) Read() []Variable  { return vars(o.Previous) }
func (o *PhiAlias) Read() []Variable     { return vars(o.Previous, o.Pointer) }

// setResult replaces the lvalue during SSA renaming.
type resultSetter interface {
	setResult(Variable)
}

func (o *Assignment) setResult(v Variable)          { o.Result = v }
func (o *Binary) setResult(v Variable)              { o.Result = v }
func (o *Unary) setResult(v Variable)               { o.Result = v }
func (o *Index) setResult(v Variable)               { o.Result = v }
func (o *Member) setResult(v Variable)              { o.Result = v }
func (o *Length) setResult(v Variable)              { o.Result = v }
func (o *TypeConversion) setResult(v Variable)      { o.Result = v }
func (o *Unpack) setResult(v Variable)              { o.Result = v }
func (o *InitArray) setResult(v Variable)           { o.Result = v }
func (o *NewArray) setResult(v Variable)            { o.Result = v }
func (o *NewContract) setResult(v Variable)         { o.Result = v }
func (o *NewStructure) setResult(v Variable)        { o.Result = v }
func (o *NewElementaryType) setResult(v Variable)   { o.Result = v }
func (o *InternalCall) setResult(v Variable)        { o.Result = v }
func (o *InternalDynamicCall) setResult(v Variable) { o.Result = v }
func (o *HighLevelCall) setResult(v Variable)       { o.Result = v }
func (o *LowLevelCall) setResult(v Variable)        { o.Result = v }
func (o *LibraryCall) setResult(v Variable)         { o.Result = v }
func (o *SolidityCall) setResult(v Variable)        { o.Result = v }
func (o *Send) setResult(v Variable)                { o.Result = v }
func (o *Delete) setResult(v Variable)              { o.Target = v }
func (o *Phi) setResult(v Variable)                 { o.Result = v }
func (o *PhiCallback) setResult(v Variable)         { o.Result = v }
func (o *PhiAlias) setResult(v Variable)            { o.Result = v }

func typedList(vs []Variable) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = Typed(v)
	}
	return strings.Join(parts, ", ")
}

func plainList(vs []Variable) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		if v == nil {
			parts[i] = "None"
			continue
		}
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

// callPrefix renders "lvalue(type) = " or nothing for calls without result.
func callPrefix(result Variable) string {
	if result == nil {
		return ""
	}
	return Typed(result) + " = "
}

func (o *Assignment) String() string {
	return fmt.Sprintf("%s := %s", Typed(o.Result), Typed(o.Rvalue))
}

func (o *Binary) String() string {
	return fmt.Sprintf("%s = %s %s %s", Typed(o.Result), o.Left, o.Op, o.Right)
}

func (o *Unary) String() string {
	return fmt.Sprintf("%s = %s %s", Typed(o.Result), o.Op, o.Operand)
}

func (o *Condition) String() string { return "CONDITION " + o.Value.String() }

func (o *Index) String() string {
	return fmt.Sprintf("%s -> %s[%s]", Typed(o.Result), o.Base, o.Index)
}

func (o *Member) String() string {
	return fmt.Sprintf("%s -> %s.%s", Typed(o.Result), o.Base, o.Field)
}

func (o *Length) String() string {
	return fmt.Sprintf("%s -> LENGTH %s", Typed(o.Result), o.Base)
}

func (o *TypeConversion) String() string {
	return fmt.Sprintf("%s = CONVERT %s to %s", o.Result, o.Value, o.To)
}

func (o *Unpack) String() string {
	return fmt.Sprintf("%s= UNPACK %s index: %d ", Typed(o.Result), o.Tuple, o.Index)
}

func (o *InitArray) String() string {
	return fmt.Sprintf("%s = [%s]", Typed(o.Result), typedList(o.Elems))
}

func (o *NewArray) String() string {
	return fmt.Sprintf("%s = new %s(%s)", o.Result, o.ArrayType, typedList(o.Args))
}

func (o *NewContract) String() string {
	s := fmt.Sprintf("%s = new %s(%s)", Typed(o.Result), o.Contract, typedList(o.Args))
	if o.Value != nil {
		s += " value:" + o.Value.String()
	}
	return s
}

func (o *NewStructure) String() string {
	return fmt.Sprintf("%s = new %s(%s)", Typed(o.Result), o.Struct, typedList(o.Args))
}

func (o *NewElementaryType) String() string {
	return fmt.Sprintf("%s = new %s(%s)", Typed(o.Result), o.ElemType, typedList(o.Args))
}

func (o *InternalCall) String() string {
	kind := "INTERNAL_CALL"
	if o.IsModifier {
		kind = "MODIFIER_CALL"
	}
	return fmt.Sprintf("%s%s, %s(%s)", callPrefix(o.Result), kind, o.Callee.CanonicalName(), plainList(o.Args))
}

func (o *InternalDynamicCall) String() string {
	return fmt.Sprintf("%sINTERNAL_DYNAMIC_CALL %s(%s)", callPrefix(o.Result), o.Function, plainList(o.Args))
}

func callOptions(value, gas Variable) string {
	var s string
	if value != nil {
		s += " value:" + value.String()
	}
	if gas != nil {
		s += " gas:" + gas.String()
	}
	return s
}

func (o *HighLevelCall) String() string {
	return fmt.Sprintf("%sHIGH_LEVEL_CALL, dest:%s, function:%s, arguments:[%s]%s",
		callPrefix(o.Result), Typed(o.Destination), o.FunctionName, plainList(o.Args), callOptions(o.Value, o.Gas))
}

func (o *LowLevelCall) String() string {
	return fmt.Sprintf("%sLOW_LEVEL_CALL, dest:%s, function:%s, arguments:[%s]%s",
		callPrefix(o.Result), o.Destination, o.FunctionName, plainList(o.Args), callOptions(o.Value, o.Gas))
}

func (o *LibraryCall) String() string {
	return fmt.Sprintf("%sLIBRARY_CALL, dest:%s, function:%s, arguments:[%s]",
		callPrefix(o.Result), o.Library, o.Callee.CanonicalName(), plainList(o.Args))
}

func (o *SolidityCall) String() string {
	return fmt.Sprintf("%sSOLIDITY_CALL %s(%s)", callPrefix(o.Result), o.Builtin.Name, plainList(o.Args))
}

func (o *EventCall) String() string {
	return fmt.Sprintf("Emit %s(%s)", o.Event, plainList(o.Args))
}

func (o *Send) String() string {
	return fmt.Sprintf("%s = SEND dest:%s value:%s", o.Result, o.Destination, o.Value)
}

func (o *Transfer) String() string {
	return fmt.Sprintf("Transfer dest:%s value:%s", o.Destination, o.Value)
}

func (o *Delete) String() string {
	return fmt.Sprintf("%s = delete %s ", o.Target, o.Target)
}

func (o *Return) String() string {
	return "RETURN " + plainList(o.Values)
}

func (o *Phi) String() string { return phiString(o.Result, o.Rvalues) }

func (o *PhiCallback) String() string {
	return phiString(o.Result, []Variable{o.Previous})
}

func (o *PhiAlias) String() string {
	return phiString(o.Result, []Variable{o.Previous, o.Pointer})
}

func phiString(result Variable, rvalues []Variable) string {
	quoted := make([]string, len(rvalues))
	for i, v := range rvalues {
		if v == nil {
			quoted[i] = "None"
			continue
		}
		quoted[i] = "'" + v.String() + "'"
	}
	return fmt.Sprintf("%s := ϕ([%s])", Typed(result), strings.Join(quoted, ", "))
}
