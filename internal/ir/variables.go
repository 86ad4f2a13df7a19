package ir

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	"smartfast/internal/ast"
	"smartfast/internal/types"
)

// Variable is an IR operand. Variables are immutable after creation and
// compared by identity.
type Variable interface {
	Name() string
	Type() types.Type
	String() string
	isVariable()
}

// StateVariable is a contract storage variable.
type StateVariable struct {
	name     string
	typ      types.Type
	contract string
	constant bool
	pos      ast.Position
}

func NewStateVariable(contract string, decl *ast.VariableDecl) *StateVariable {
	return &StateVariable{
		name:     decl.Name,
		typ:      decl.Type,
		contract: contract,
		constant: decl.Constant || decl.Immutable,
		pos:      decl.Pos,
	}
}

func (v *StateVariable) Name() string           { return v.name }
func (v *StateVariable) Type() types.Type       { return v.typ }
func (v *StateVariable) String() string         { return v.name }
func (v *StateVariable) Contract() string       { return v.contract }
func (v *StateVariable) IsConstant() bool       { return v.constant }
func (v *StateVariable) Pos() ast.Position      { return v.pos }
func (v *StateVariable) CanonicalName() string  { return v.contract + "." + v.name }
func (*StateVariable) isVariable()              {}

// LocalVariable is a parameter, a named return or a local declared in a
// function body.
type LocalVariable struct {
	name       string
	typ        types.Type
	location   string
	function   string
	paramIndex int
	isReturn   bool
	pos        ast.Position
}

func newLocal(function string, decl *ast.VariableDecl, paramIndex int, isReturn bool) *LocalVariable {
	return &LocalVariable{
		name:       decl.Name,
		typ:        decl.Type,
		location:   decl.Location,
		function:   function,
		paramIndex: paramIndex,
		isReturn:   isReturn,
		pos:        decl.Pos,
	}
}

func (v *LocalVariable) Name() string      { return v.name }
func (v *LocalVariable) Type() types.Type  { return v.typ }
func (v *LocalVariable) String() string    { return v.name }
func (v *LocalVariable) Location() string  { return v.location }
func (v *LocalVariable) Function() string  { return v.function }
func (v *LocalVariable) IsParameter() bool { return v.paramIndex >= 0 }
func (v *LocalVariable) IsReturn() bool    { return v.isReturn }
func (v *LocalVariable) Pos() ast.Position { return v.pos }
func (*LocalVariable) isVariable()         {}

// ParamIndex is the position among the function parameters, or -1.
func (v *LocalVariable) ParamIndex() int { return v.paramIndex }

// IsStorage reports whether v is a storage pointer.
func (v *LocalVariable) IsStorage() bool { return v.location == "storage" }

// TemporaryVariable holds an intermediate value: TMP_n.
type TemporaryVariable struct {
	index int
	typ   types.Type
}

func (v *TemporaryVariable) Name() string     { return fmt.Sprintf("TMP_%d", v.index) }
func (v *TemporaryVariable) Type() types.Type { return v.typ }
func (v *TemporaryVariable) String() string   { return v.Name() }
func (v *TemporaryVariable) Index() int       { return v.index }
func (*TemporaryVariable) isVariable()        {}

// ReferenceVariable is the result of an index, member or length access:
// REF_n. Writing to it writes to the variable it points to.
type ReferenceVariable struct {
	index    int
	typ      types.Type
	pointsTo Variable
}

func (v *ReferenceVariable) Name() string       { return fmt.Sprintf("REF_%d", v.index) }
func (v *ReferenceVariable) Type() types.Type   { return v.typ }
func (v *ReferenceVariable) String() string     { return v.Name() }
func (v *ReferenceVariable) Index() int         { return v.index }
func (v *ReferenceVariable) PointsTo() Variable { return v.pointsTo }
func (*ReferenceVariable) isVariable()          {}

// Origin follows the points-to chain down to the first variable that is
// not a reference.
func (v *ReferenceVariable) Origin() Variable {
	var cur Variable = v
	for {
		switch r := cur.(type) {
		case *ReferenceVariable:
			cur = r.pointsTo
		case *ReferenceVariableSSA:
			cur = r.base.pointsTo
		default:
			return cur
		}
	}
}

// TupleVariable holds the results of a call returning several values:
// TUPLE_n.
type TupleVariable struct {
	index int
	typ   *types.Tuple
}

func (v *TupleVariable) Name() string     { return fmt.Sprintf("TUPLE_%d", v.index) }
func (v *TupleVariable) Type() types.Type { return v.typ }
func (v *TupleVariable) String() string   { return v.Name() }
func (*TupleVariable) isVariable()        {}

// SolidityVariable is a builtin such as msg.sender. Instances are interned
// by Program.
type SolidityVariable struct {
	name    string
	typ     types.Type
	generic bool
}

func (v *SolidityVariable) Name() string     { return v.name }
func (v *SolidityVariable) Type() types.Type { return v.typ }
func (v *SolidityVariable) String() string   { return v.name }
func (*SolidityVariable) isVariable()        {}

// GenericTaint reports whether any caller controls the value.
func (v *SolidityVariable) GenericTaint() bool { return v.generic }

// Unknown stands for a value the analysis cannot follow, such as the
// result of a call into a function that failed to lower. Dependency
// queries treat it as tainted.
var Unknown Variable = unknownValue{}

type unknownValue struct{}

func (unknownValue) Name() string     { return "UNKNOWN" }
func (unknownValue) Type() types.Type { return nil }
func (unknownValue) String() string   { return "UNKNOWN" }
func (unknownValue) isVariable()      {}

// FunctionValue is an internal function used as a value, for example the
// right-hand side of "op = add".
type FunctionValue struct {
	fn *Function
}

func (v *FunctionValue) Name() string         { return v.fn.Name }
func (v *FunctionValue) Type() types.Type     { return v.fn.FunctionType() }
func (v *FunctionValue) String() string       { return v.fn.CanonicalName() }
func (v *FunctionValue) Function() *Function { return v.fn }
func (*FunctionValue) isVariable()            {}

// Constant is a literal. Numbers carry their value with sub-denominations
// applied.
type Constant struct {
	raw   string
	typ   types.Type
	value *uint256.Int
}

func (c *Constant) Name() string     { return c.String() }
func (c *Constant) Type() types.Type { return c.typ }
func (*Constant) isVariable()        {}

// Value returns the numeric value, or nil for non-numeric constants.
func (c *Constant) Value() *uint256.Int { return c.value }

// Raw returns the literal as written.
func (c *Constant) Raw() string { return c.raw }

func (c *Constant) String() string {
	if c.value != nil {
		return c.value.Dec()
	}
	return c.raw
}

var subdenominations = map[string]*uint256.Int{
	"wei":     uint256.NewInt(1),
	"gwei":    uint256.NewInt(1_000_000_000),
	"szabo":   uint256.NewInt(1_000_000_000_000),
	"finney":  uint256.NewInt(1_000_000_000_000_000),
	"ether":   uint256.NewInt(1_000_000_000_000_000_000),
	"seconds": uint256.NewInt(1),
	"minutes": uint256.NewInt(60),
	"hours":   uint256.NewInt(3600),
	"days":    uint256.NewInt(86400),
	"weeks":   uint256.NewInt(604800),
	"years":   uint256.NewInt(31536000),
}

// NewNumberConstant parses a decimal, hex or scientific literal and applies
// the optional sub-denomination.
func NewNumberConstant(raw, subdenomination string, typ types.Type) (*Constant, error) {
	if typ == nil {
		typ = types.Uint256
	}
	v, err := parseNumber(raw)
	if err != nil {
		return nil, err
	}
	if subdenomination != "" {
		mul, ok := subdenominations[subdenomination]
		if !ok {
			return nil, fmt.Errorf("unknown sub-denomination %q", subdenomination)
		}
		if _, overflow := v.MulOverflow(v, mul); overflow {
			return nil, fmt.Errorf("literal %s %s overflows uint256", raw, subdenomination)
		}
	}
	return &Constant{raw: raw, typ: typ, value: v}, nil
}

func parseNumber(raw string) (*uint256.Int, error) {
	s := strings.ReplaceAll(raw, "_", "")
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := uint256.FromHex(normalizeHex(s))
		if err != nil {
			return nil, fmt.Errorf("invalid hex literal %q: %w", raw, err)
		}
		return v, nil
	}

	if i := strings.IndexAny(s, "eE"); i >= 0 || strings.Contains(s, ".") {
		r, ok := new(big.Rat).SetString(s)
		if !ok || !r.IsInt() || r.Sign() < 0 {
			return nil, fmt.Errorf("invalid number literal %q", raw)
		}
		v, overflow := uint256.FromBig(r.Num())
		if overflow {
			return nil, fmt.Errorf("literal %q overflows uint256", raw)
		}
		return v, nil
	}

	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid number literal %q: %w", raw, err)
	}
	return v, nil
}

// normalizeHex strips leading zeros, which uint256.FromHex rejects.
func normalizeHex(s string) string {
	digits := strings.TrimLeft(s[2:], "0")
	if digits == "" {
		digits = "0"
	}
	return "0x" + digits
}

// NewConstant builds a non-numeric constant (bool, string, hex string).
func NewConstant(raw string, typ types.Type) *Constant {
	return &Constant{raw: raw, typ: typ}
}

// LocalVariableSSA is one version of a local. Version 0 is the value at
// entry: the argument for parameters, uninitialized otherwise.
type LocalVariableSSA struct {
	base    *LocalVariable
	version int
}

func (v *LocalVariableSSA) Name() string             { return v.base.name }
func (v *LocalVariableSSA) Type() types.Type         { return v.base.typ }
func (v *LocalVariableSSA) String() string           { return fmt.Sprintf("%s_%d", v.base.name, v.version) }
func (v *LocalVariableSSA) Version() int             { return v.version }
func (v *LocalVariableSSA) NonSSA() *LocalVariable   { return v.base }
func (*LocalVariableSSA) isVariable()                {}

// StateVariableSSA is one version of a state variable within a function.
// Version 0 is the storage value at entry.
type StateVariableSSA struct {
	base    *StateVariable
	version int
}

func (v *StateVariableSSA) Name() string           { return v.base.name }
func (v *StateVariableSSA) Type() types.Type       { return v.base.typ }
func (v *StateVariableSSA) String() string         { return fmt.Sprintf("%s_%d", v.base.name, v.version) }
func (v *StateVariableSSA) Version() int           { return v.version }
func (v *StateVariableSSA) NonSSA() *StateVariable { return v.base }
func (*StateVariableSSA) isVariable()              {}

// ReferenceVariableSSA wraps a reference in SSA form. PointsTo is the SSA
// version of the accessed base. When the wrapper is the target of a write,
// Origin is the new version of the written variable and Previous the
// version it replaces.
type ReferenceVariableSSA struct {
	base     *ReferenceVariable
	pointsTo Variable
	origin   Variable
	previous Variable
}

func (v *ReferenceVariableSSA) Name() string                { return v.base.Name() }
func (v *ReferenceVariableSSA) Type() types.Type            { return v.base.typ }
func (v *ReferenceVariableSSA) String() string              { return v.base.Name() }
func (v *ReferenceVariableSSA) NonSSA() *ReferenceVariable  { return v.base }
func (v *ReferenceVariableSSA) PointsTo() Variable          { return v.pointsTo }
func (v *ReferenceVariableSSA) Origin() Variable            { return v.origin }
func (v *ReferenceVariableSSA) Previous() Variable          { return v.previous }
func (*ReferenceVariableSSA) isVariable()                   {}

// NonSSA maps an SSA variable to the variable it versions. Other variables
// are returned unchanged.
func NonSSA(v Variable) Variable {
	switch s := v.(type) {
	case *LocalVariableSSA:
		return s.base
	case *StateVariableSSA:
		return s.base
	case *ReferenceVariableSSA:
		return s.base
	}
	return v
}

// IsSSA reports whether v is one of the SSA variants.
func IsSSA(v Variable) bool {
	switch v.(type) {
	case *LocalVariableSSA, *StateVariableSSA, *ReferenceVariableSSA:
		return true
	}
	return false
}

// IsValidLvalue reports whether v may be written.
func IsValidLvalue(v Variable) bool {
	switch v.(type) {
	case *StateVariable, *LocalVariable, *TemporaryVariable, *ReferenceVariable, *TupleVariable,
		*LocalVariableSSA, *StateVariableSSA, *ReferenceVariableSSA:
		return true
	}
	return false
}

// Typed renders v as "name(type)", the form used in printed operations.
func Typed(v Variable) string {
	if v == nil {
		return "None"
	}
	if v.Type() == nil {
		return v.String()
	}
	return fmt.Sprintf("%s(%s)", v, v.Type())
}
