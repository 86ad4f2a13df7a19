package ir

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"

	"smartfast/internal/ast"
	"smartfast/internal/builtins"
	"smartfast/internal/types"
)

type NodeType int

const (
	NodeEntryPoint NodeType = iota
	NodeExpression
	NodeReturn
	NodeIf
	NodeVariable
	NodeAssembly
	NodeIfLoop
	NodeBeginLoop
	NodeEndLoop
	NodeEndIf
	NodeContinue
	NodeBreak
	NodeThrow
	NodePlaceholder
	NodeOtherEntryPoint
)

var nodeTypeNames = [...]string{
	NodeEntryPoint:      "ENTRY_POINT",
	NodeExpression:      "EXPRESSION",
	NodeReturn:          "RETURN",
	NodeIf:              "IF",
	NodeVariable:        "NEW VARIABLE",
	NodeAssembly:        "INLINE ASM",
	NodeIfLoop:          "IF_LOOP",
	NodeBeginLoop:       "BEGIN_LOOP",
	NodeEndLoop:         "END_LOOP",
	NodeEndIf:           "END_IF",
	NodeContinue:        "CONTINUE",
	NodeBreak:           "BREAK",
	NodeThrow:           "THROW",
	NodePlaceholder:     "PLACEHOLDER",
	NodeOtherEntryPoint: "OTHER_ENTRYPOINT",
}

func (t NodeType) String() string {
	if int(t) < len(nodeTypeNames) {
		return nodeTypeNames[t]
	}
	return "UNKNOWN"
}

// ParseNodeType maps a printed node type name back to its NodeType.
func ParseNodeType(s string) (NodeType, bool) {
	for i, name := range nodeTypeNames {
		if name == s {
			return NodeType(i), true
		}
	}
	return 0, false
}

// IsConditional reports whether the node ends in a two-way branch.
func (t NodeType) IsConditional() bool { return t == NodeIf || t == NodeIfLoop }

// Node is one CFG node. For IF and IF_LOOP nodes, Sons[0] is taken when
// the condition holds.
type Node struct {
	ID         int
	Type       NodeType
	Expression ast.Expr
	Variable   *LocalVariable
	Pos        ast.Position
	Fathers    []*Node
	Sons       []*Node
	IRs        []Operation
	IRsSSA     []Operation

	// canonical name of the owning function
	function string
}

func (n *Node) Function() string { return n.function }

func (n *Node) addOp(op Operation) {
	if s, ok := op.(interface{ setNode(int) }); ok {
		s.setNode(n.ID)
	}
	n.IRs = append(n.IRs, op)
}

func (n *Node) String() string {
	if n.Expression != nil {
		return n.Type.String() + " " + n.Expression.String()
	}
	return n.Type.String()
}

type Status int

const (
	StatusComplete Status = iota
	StatusLoweringFailed
	StatusSSAFailed
)

func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusLoweringFailed:
		return "lowering failed"
	case StatusSSAFailed:
		return "ssa failed"
	}
	return "unknown"
}

// ModifierCall is a modifier applied in a function header.
type ModifierCall struct {
	Name     string
	Modifier *Function
	Args     []ast.Expr
}

type Function struct {
	Name       string
	Contract   string
	Kind       ast.FunctionKind
	Visibility string
	Mutability string
	Params     []*LocalVariable
	Returns    []*LocalVariable
	Modifiers  []*ModifierCall
	Nodes      []*Node
	Locals     []*LocalVariable
	Decl       *ast.Function

	Status    Status
	Err       error
	Dominance *Dominance

	// storage pointer locals and the state variables they may alias
	storagePointers map[*LocalVariable][]*StateVariable

	tmpCount   int
	refCount   int
	tupleCount int
	ssaDone    bool
}

// Complete reports whether lowering and SSA both succeeded.
func (f *Function) Complete() bool { return f.Status == StatusComplete }

// Entry returns the ENTRY_POINT node, or nil.
func (f *Function) Entry() *Node {
	if len(f.Nodes) == 0 {
		return nil
	}
	return f.Nodes[0]
}

// Signature is the ABI signature, e.g. "transfer(address,uint256)".
func (f *Function) Signature() string {
	parts := make([]string, len(f.Params))
	for i, p := range f.Params {
		parts[i] = types.ABIName(p.Type())
	}
	return f.Name + "(" + strings.Join(parts, ",") + ")"
}

// CanonicalName is "Contract.signature".
func (f *Function) CanonicalName() string {
	return f.Contract + "." + f.Signature()
}

// Selector is the first four bytes of keccak256(signature), hex encoded.
func (f *Function) Selector() string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(f.Signature()))
	return "0x" + hex.EncodeToString(h.Sum(nil)[:4])
}

// IsExternallyCallable reports whether a transaction can enter f directly.
func (f *Function) IsExternallyCallable() bool {
	switch f.Kind {
	case ast.KindFallback, ast.KindReceive:
		return true
	case ast.KindFunction:
		return f.Visibility == "public" || f.Visibility == "external"
	}
	return false
}

func (f *Function) IsModifier() bool { return f.Kind == ast.KindModifier }

func (f *Function) FunctionType() types.Type {
	t := &types.Function{Visibility: "internal"}
	for _, p := range f.Params {
		t.Params = append(t.Params, p.Type())
	}
	for _, r := range f.Returns {
		t.Returns = append(t.Returns, r.Type())
	}
	return t
}

// StoragePointerTargets returns the state variables a storage pointer
// local may alias.
func (f *Function) StoragePointerTargets(v *LocalVariable) []*StateVariable {
	return f.storagePointers[v]
}

func (f *Function) addStoragePointer(v *LocalVariable, targets []*StateVariable) {
	if f.storagePointers == nil {
		f.storagePointers = map[*LocalVariable][]*StateVariable{}
	}
	for _, t := range targets {
		dup := false
		for _, e := range f.storagePointers[v] {
			if e == t {
				dup = true
				break
			}
		}
		if !dup {
			f.storagePointers[v] = append(f.storagePointers[v], t)
		}
	}
}

func (f *Function) newNode(typ NodeType, pos ast.Position) *Node {
	n := &Node{ID: len(f.Nodes), Type: typ, Pos: pos, function: f.CanonicalName()}
	f.Nodes = append(f.Nodes, n)
	return n
}

func (f *Function) newTemporary(t types.Type) *TemporaryVariable {
	v := &TemporaryVariable{index: f.tmpCount, typ: t}
	f.tmpCount++
	return v
}

func (f *Function) newReference(t types.Type, pointsTo Variable) *ReferenceVariable {
	v := &ReferenceVariable{index: f.refCount, typ: t, pointsTo: pointsTo}
	f.refCount++
	return v
}

func (f *Function) newTuple(t *types.Tuple) *TupleVariable {
	v := &TupleVariable{index: f.tupleCount, typ: t}
	f.tupleCount++
	return v
}

// link adds the edge from -> to. A nil from leaves to without fathers.
func link(from, to *Node) {
	if from == nil || to == nil {
		return
	}
	for _, s := range from.Sons {
		if s == to {
			return
		}
	}
	from.Sons = append(from.Sons, to)
	to.Fathers = append(to.Fathers, from)
}

type Contract struct {
	Name           string
	Kind           ast.ContractKind
	Bases          []string
	StateVariables []*StateVariable
	Functions      []*Function
	Modifiers      []*Function
	Structs        map[string]*ast.StructDecl
	Events         map[string]*ast.EventDecl
	Enums          map[string]*ast.EnumDecl
	Using          []*ast.UsingFor
	Decl           *ast.Contract

	program *Program
}

func (c *Contract) IsLibrary() bool   { return c.Kind == ast.ContractKindLibrary }
func (c *Contract) IsInterface() bool { return c.Kind == ast.ContractKindInterface }

// Inheritance returns the contract followed by its bases, most derived
// first. Bases listed later in "is A, B" are more derived.
func (c *Contract) Inheritance() []*Contract {
	var out []*Contract
	seen := map[*Contract]bool{}
	var visit func(*Contract)
	visit = func(k *Contract) {
		if k == nil || seen[k] {
			return
		}
		seen[k] = true
		out = append(out, k)
		for i := len(k.Bases) - 1; i >= 0; i-- {
			visit(k.program.Contract(k.Bases[i]))
		}
	}
	visit(c)
	return out
}

// AllStateVariables returns inherited state variables before own ones.
func (c *Contract) AllStateVariables() []*StateVariable {
	chain := c.Inheritance()
	var out []*StateVariable
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, chain[i].StateVariables...)
	}
	return out
}

// StateVariable looks a name up through the inheritance chain.
func (c *Contract) StateVariable(name string) *StateVariable {
	for _, k := range c.Inheritance() {
		for _, v := range k.StateVariables {
			if v.Name() == name {
				return v
			}
		}
	}
	return nil
}

// AllFunctions returns the functions callable on c, with derived
// definitions overriding inherited ones of the same signature.
func (c *Contract) AllFunctions() []*Function {
	seen := map[string]bool{}
	var out []*Function
	for _, k := range c.Inheritance() {
		for _, f := range k.Functions {
			key := f.Signature()
			if f.Kind == ast.KindConstructor {
				if k != c {
					continue
				}
				key = "constructor"
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, f)
		}
	}
	return out
}

// Constructor returns c's own constructor, or nil.
func (c *Contract) Constructor() *Function {
	for _, f := range c.Functions {
		if f.Kind == ast.KindConstructor {
			return f
		}
	}
	return nil
}

// FunctionsNamed returns the functions called name visible in c, most
// derived first.
func (c *Contract) FunctionsNamed(name string) []*Function {
	var out []*Function
	for _, f := range c.AllFunctions() {
		if f.Name == name && f.Kind == ast.KindFunction {
			out = append(out, f)
		}
	}
	return out
}

func (c *Contract) FunctionBySignature(sig string) *Function {
	for _, f := range c.AllFunctions() {
		if f.Signature() == sig {
			return f
		}
	}
	return nil
}

// Modifier looks a modifier up through the inheritance chain.
func (c *Contract) Modifier(name string) *Function {
	for _, k := range c.Inheritance() {
		for _, m := range k.Modifiers {
			if m.Name == name {
				return m
			}
		}
	}
	return nil
}

func (c *Contract) Struct(name string) *ast.StructDecl {
	name = name[strings.LastIndex(name, ".")+1:]
	for _, k := range c.Inheritance() {
		if s, ok := k.Structs[name]; ok {
			return s
		}
	}
	return nil
}

func (c *Contract) Event(name string) *ast.EventDecl {
	for _, k := range c.Inheritance() {
		if e, ok := k.Events[name]; ok {
			return e
		}
	}
	return nil
}

func (c *Contract) Enum(name string) *ast.EnumDecl {
	name = name[strings.LastIndex(name, ".")+1:]
	for _, k := range c.Inheritance() {
		if e, ok := k.Enums[name]; ok {
			return e
		}
	}
	return nil
}

// DerivesFrom reports whether base is c or one of its ancestors.
func (c *Contract) DerivesFrom(base string) bool {
	for _, k := range c.Inheritance() {
		if k.Name == base {
			return true
		}
	}
	return false
}

// Program is the lowered form of a source unit.
type Program struct {
	Contracts []*Contract
	Builtins  *builtins.Table

	byName   map[string]*Contract
	solidity map[string]*SolidityVariable
}

func NewProgram(table *builtins.Table) *Program {
	if table == nil {
		table = builtins.Default()
	}
	return &Program{
		Builtins: table,
		byName:   map[string]*Contract{},
		solidity: map[string]*SolidityVariable{},
	}
}

func (p *Program) Contract(name string) *Contract {
	return p.byName[name]
}

func (p *Program) addContract(c *Contract) {
	c.program = p
	p.Contracts = append(p.Contracts, c)
	p.byName[c.Name] = c
}

// SolidityVariable returns the interned builtin variable called name.
func (p *Program) SolidityVariable(name string) (*SolidityVariable, bool) {
	if v, ok := p.solidity[name]; ok {
		return v, true
	}
	b, ok := p.Builtins.Variable(name)
	if !ok {
		return nil, false
	}
	v := &SolidityVariable{name: b.Name, typ: b.Type, generic: b.GenericTaint}
	p.solidity[name] = v
	return v, true
}

// BuiltinSource returns the interned variable standing for the outside
// influence on the results of builtin function f, named "f()". It counts
// as generic taint.
func (p *Program) BuiltinSource(f *builtins.Function) *SolidityVariable {
	name := f.Name
	if !strings.HasSuffix(name, ")") {
		name += "()"
	}
	if v, ok := p.solidity[name]; ok {
		return v
	}
	var typ types.Type
	if len(f.Returns) == 1 {
		typ = f.Returns[0]
	}
	v := &SolidityVariable{name: name, typ: typ, generic: true}
	p.solidity[name] = v
	return v
}

// Functions returns every function and modifier declared in the program,
// each once, in declaration order.
func (p *Program) Functions() []*Function {
	var out []*Function
	for _, c := range p.Contracts {
		out = append(out, c.Modifiers...)
		out = append(out, c.Functions...)
	}
	return out
}

// Function finds a function by canonical name.
func (p *Program) Function(canonical string) *Function {
	for _, f := range p.Functions() {
		if f.CanonicalName() == canonical {
			return f
		}
	}
	return nil
}
