package builtins

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"smartfast/grammar"
	"smartfast/internal/types"
)

// Variable is a builtin global such as msg.sender.
type Variable struct {
	Name string
	Type types.Type
	// GenericTaint marks values any caller controls.
	GenericTaint bool
}

// Function is a builtin such as require or keccak256. MaxArgs < 0 means
// variadic.
type Function struct {
	Name    string
	MinArgs int
	MaxArgs int
	Returns []types.Type
	// Condition is set for require/assert: the call guards the rest of
	// the node but produces no value.
	Condition bool
	// Terminates is set for revert and selfdestruct.
	Terminates bool
	// Pure builtins compute their result from the arguments alone. They
	// form the allow-list of calls that add no taint.
	Pure bool
	// SendsValue is set for builtins that move ether.
	SendsValue bool
	// TaintSource marks results read from the chain environment, which
	// the transaction sender can influence.
	TaintSource bool
}

// IntroducesTaint reports whether f's result carries influence that its
// arguments do not. Only Pure builtins are exempt.
func (f *Function) IntroducesTaint() bool {
	return f.TaintSource || !f.Pure
}

// AcceptsArgs reports whether n arguments are valid for f.
func (f *Function) AcceptsArgs(n int) bool {
	if n < f.MinArgs {
		return false
	}
	return f.MaxArgs < 0 || n <= f.MaxArgs
}

// Table is the classification of builtin variables and functions used by
// lowering and taint analysis.
type Table struct {
	variables map[string]*Variable
	functions map[string]*Function
}

func (t *Table) Variable(name string) (*Variable, bool) {
	v, ok := t.variables[name]
	return v, ok
}

func (t *Table) Function(name string) (*Function, bool) {
	f, ok := t.functions[name]
	return f, ok
}

// GenericTaint returns the names of generically tainted variables, sorted.
func (t *Table) GenericTaint() []string {
	var names []string
	for name, v := range t.variables {
		if v.GenericTaint {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// VariableNames returns every builtin variable name, sorted.
func (t *Table) VariableNames() []string {
	names := make([]string, 0, len(t.variables))
	for name := range t.variables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *Table) addVariable(name string, typ types.Type, generic bool) {
	t.variables[name] = &Variable{Name: name, Type: typ, GenericTaint: generic}
}

func (t *Table) addFunction(f *Function) {
	t.functions[f.Name] = f
}

func (t *Table) clone() *Table {
	c := &Table{
		variables: make(map[string]*Variable, len(t.variables)),
		functions: make(map[string]*Function, len(t.functions)),
	}
	for k, v := range t.variables {
		cp := *v
		c.variables[k] = &cp
	}
	for k, f := range t.functions {
		cp := *f
		c.functions[k] = &cp
	}
	return c
}

var defaultTable = newDefault()

// Default returns a copy of the builtin table for the supported compiler
// versions.
func Default() *Table {
	return defaultTable.clone()
}

func newDefault() *Table {
	t := &Table{
		variables: map[string]*Variable{},
		functions: map[string]*Function{},
	}

	payable := &types.Elementary{Name: "address", Payable: true}
	bytes4 := types.NewElementary("bytes4")

	t.addVariable("msg.sender", types.Address, true)
	t.addVariable("msg.value", types.Uint256, true)
	t.addVariable("msg.data", types.Bytes, true)
	t.addVariable("tx.origin", types.Address, true)
	t.addVariable("msg.gas", types.Uint256, false)
	t.addVariable("msg.sig", bytes4, false)
	t.addVariable("tx.gasprice", types.Uint256, false)
	t.addVariable("block.coinbase", payable, false)
	t.addVariable("block.difficulty", types.Uint256, false)
	t.addVariable("block.prevrandao", types.Uint256, false)
	t.addVariable("block.gaslimit", types.Uint256, false)
	t.addVariable("block.number", types.Uint256, false)
	t.addVariable("block.timestamp", types.Uint256, false)
	t.addVariable("block.basefee", types.Uint256, false)
	t.addVariable("block.chainid", types.Uint256, false)
	t.addVariable("now", types.Uint256, false)
	t.addVariable("this", types.Address, false)

	none := []types.Type(nil)
	one := func(typ types.Type) []types.Type { return []types.Type{typ} }

	for _, f := range []*Function{
		{Name: "require", MinArgs: 1, MaxArgs: 2, Returns: none, Condition: true},
		{Name: "assert", MinArgs: 1, MaxArgs: 1, Returns: none, Condition: true},
		{Name: "revert", MinArgs: 0, MaxArgs: -1, Returns: none, Terminates: true},
		{Name: "selfdestruct", MinArgs: 1, MaxArgs: 1, Returns: none, Terminates: true, SendsValue: true},
		{Name: "suicide", MinArgs: 1, MaxArgs: 1, Returns: none, Terminates: true, SendsValue: true},
		{Name: "keccak256", MinArgs: 1, MaxArgs: -1, Returns: one(types.Bytes32), Pure: true},
		{Name: "sha3", MinArgs: 1, MaxArgs: -1, Returns: one(types.Bytes32), Pure: true},
		{Name: "sha256", MinArgs: 1, MaxArgs: -1, Returns: one(types.Bytes32), Pure: true},
		{Name: "ripemd160", MinArgs: 1, MaxArgs: -1, Returns: one(types.NewElementary("bytes20")), Pure: true},
		{Name: "ecrecover", MinArgs: 4, MaxArgs: 4, Returns: one(types.Address), Pure: true},
		{Name: "addmod", MinArgs: 3, MaxArgs: 3, Returns: one(types.Uint256), Pure: true},
		{Name: "mulmod", MinArgs: 3, MaxArgs: 3, Returns: one(types.Uint256), Pure: true},
		{Name: "gasleft", MinArgs: 0, MaxArgs: 0, Returns: one(types.Uint256), TaintSource: true},
		{Name: "blockhash", MinArgs: 1, MaxArgs: 1, Returns: one(types.Bytes32), TaintSource: true},
		{Name: "block.blockhash", MinArgs: 1, MaxArgs: 1, Returns: one(types.Bytes32), TaintSource: true},
		{Name: "log0", MinArgs: 1, MaxArgs: 1, Returns: none},
		{Name: "log1", MinArgs: 2, MaxArgs: 2, Returns: none},
		{Name: "log2", MinArgs: 3, MaxArgs: 3, Returns: none},
		{Name: "log3", MinArgs: 4, MaxArgs: 4, Returns: none},
		{Name: "log4", MinArgs: 5, MaxArgs: 5, Returns: none},
		{Name: "abi.encode", MinArgs: 0, MaxArgs: -1, Returns: one(types.Bytes), Pure: true},
		{Name: "abi.encodePacked", MinArgs: 0, MaxArgs: -1, Returns: one(types.Bytes), Pure: true},
		{Name: "abi.encodeWithSelector", MinArgs: 1, MaxArgs: -1, Returns: one(types.Bytes), Pure: true},
		{Name: "abi.encodeWithSignature", MinArgs: 1, MaxArgs: -1, Returns: one(types.Bytes), Pure: true},
		{Name: "abi.encodeCall", MinArgs: 1, MaxArgs: 2, Returns: one(types.Bytes), Pure: true},
		// Result types of abi.decode come from the call expression.
		{Name: "abi.decode", MinArgs: 2, MaxArgs: 2, Returns: none, Pure: true},
		{Name: "bytes.concat", MinArgs: 0, MaxArgs: -1, Returns: one(types.Bytes), Pure: true},
		{Name: "string.concat", MinArgs: 0, MaxArgs: -1, Returns: one(types.String), Pure: true},
		{Name: "balance(address)", MinArgs: 1, MaxArgs: 1, Returns: one(types.Uint256), TaintSource: true},
		{Name: "code(address)", MinArgs: 1, MaxArgs: 1, Returns: one(types.Bytes), TaintSource: true},
		{Name: "codehash(address)", MinArgs: 1, MaxArgs: 1, Returns: one(types.Bytes32), TaintSource: true},
		{Name: "type()", MinArgs: 1, MaxArgs: 1, Returns: none, Pure: true},
	} {
		t.addFunction(f)
	}
	return t
}

// Overrides is the YAML shape of a builtins override file.
//
//	variables:
//	  - name: block.timestamp
//	    type: uint256
//	    genericTaint: true
//	functions:
//	  - name: customHash
//	    minArgs: 1
//	    maxArgs: -1
//	    returns: [bytes32]
//	    pure: true
type Overrides struct {
	Variables []VariableOverride `yaml:"variables"`
	Functions []FunctionOverride `yaml:"functions"`
}

type VariableOverride struct {
	Name         string `yaml:"name"`
	Type         string `yaml:"type"`
	GenericTaint bool   `yaml:"genericTaint"`
}

type FunctionOverride struct {
	Name        string   `yaml:"name"`
	MinArgs     int      `yaml:"minArgs"`
	MaxArgs     int      `yaml:"maxArgs"`
	Returns     []string `yaml:"returns"`
	Condition   bool     `yaml:"condition"`
	Terminates  bool     `yaml:"terminates"`
	Pure        bool     `yaml:"pure"`
	SendsValue  bool     `yaml:"sendsValue"`
	TaintSource bool     `yaml:"taintSource"`
}

// Merge applies overrides on top of t. Entries replace existing ones by name.
func (t *Table) Merge(o *Overrides) error {
	for _, v := range o.Variables {
		if v.Name == "" {
			return fmt.Errorf("builtin variable without a name")
		}
		typ := types.Type(types.Uint256)
		if existing, ok := t.variables[v.Name]; ok {
			typ = existing.Type
		}
		if v.Type != "" {
			parsed, err := grammar.ParseType(v.Type)
			if err != nil {
				return fmt.Errorf("builtin variable %s: %w", v.Name, err)
			}
			typ = parsed
		}
		t.addVariable(v.Name, typ, v.GenericTaint)
	}
	for _, f := range o.Functions {
		if f.Name == "" {
			return fmt.Errorf("builtin function without a name")
		}
		returns := make([]types.Type, 0, len(f.Returns))
		for _, r := range f.Returns {
			parsed, err := grammar.ParseType(r)
			if err != nil {
				return fmt.Errorf("builtin function %s: %w", f.Name, err)
			}
			returns = append(returns, parsed)
		}
		if f.MaxArgs >= 0 && f.MaxArgs < f.MinArgs {
			return fmt.Errorf("builtin function %s: maxArgs %d below minArgs %d", f.Name, f.MaxArgs, f.MinArgs)
		}
		t.addFunction(&Function{
			Name:        f.Name,
			MinArgs:     f.MinArgs,
			MaxArgs:     f.MaxArgs,
			Returns:     returns,
			Condition:   f.Condition,
			Terminates:  f.Terminates,
			Pure:        f.Pure,
			SendsValue:  f.SendsValue,
			TaintSource: f.TaintSource,
		})
	}
	return nil
}

// ParseOverrides decodes a YAML override document.
func ParseOverrides(data []byte) (*Overrides, error) {
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to parse builtins overrides: %w", err)
	}
	return &o, nil
}

// Load returns the default table merged with the override file at path.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read builtins file: %w", err)
	}
	o, err := ParseOverrides(data)
	if err != nil {
		return nil, err
	}
	t := Default()
	if err := t.Merge(o); err != nil {
		return nil, err
	}
	return t, nil
}
