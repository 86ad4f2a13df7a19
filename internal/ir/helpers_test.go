package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartfast/internal/ast"
	"smartfast/internal/types"
)

var (
	uintT = types.Uint256
	addrT = types.Address
	boolT = types.Bool
)

func contract(name string, fns ...*ast.Function) *ast.Contract {
	return &ast.Contract{Name: name, Kind: ast.ContractKindContract, Functions: fns}
}

func params(names ...string) []*ast.VariableDecl {
	out := make([]*ast.VariableDecl, len(names))
	for i, n := range names {
		out[i] = ast.Var(n, uintT)
	}
	return out
}

func id(name string) *ast.Identifier { return ast.Ident(name, uintT) }

func build(t *testing.T, contracts ...*ast.Contract) *Program {
	t.Helper()
	prog, errs := NewBuilder(nil).Build(&ast.SourceUnit{Contracts: contracts})
	require.Empty(t, errs)
	return prog
}

func lookup(t *testing.T, prog *Program, contractName, fnName string) *Function {
	t.Helper()
	c := prog.Contract(contractName)
	require.NotNil(t, c, "contract %s", contractName)
	for _, f := range append(append([]*Function{}, c.Modifiers...), c.Functions...) {
		if f.Name == fnName {
			return f
		}
	}
	t.Fatalf("function %s.%s not found", contractName, fnName)
	return nil
}

func nodeTypes(fn *Function) []NodeType {
	out := make([]NodeType, len(fn.Nodes))
	for i, n := range fn.Nodes {
		out[i] = n.Type
	}
	return out
}

func ids(ns []*Node) []int {
	out := make([]int, len(ns))
	for i, n := range ns {
		out[i] = n.ID
	}
	return out
}

func opStrings(ops []Operation) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.String()
	}
	return out
}

// branchy is "uint y = 0; if (x > 0) { y = x; } return y;".
func branchy() *ast.Function {
	fn := ast.Func("f", params("x"),
		ast.Declare("y", uintT, ast.Number("0")),
		ast.If(ast.Binary(">", id("x"), ast.Number("0")),
			ast.Blk(ast.Exprs(ast.Assign(id("y"), id("x")))), nil),
		ast.Return(id("y")),
	)
	fn.Returns = []*ast.VariableDecl{ast.Var("", uintT)}
	return fn
}

// storagePointerContract writes a struct field through
// "Account storage a = accounts[msg.sender]".
func storagePointerContract() *ast.Contract {
	account := &types.UserDefined{Kind: types.KindStruct, Name: "Account"}
	ptr := &ast.VariableDecl{Name: "a", Type: account, Location: "storage"}
	fn := ast.Func("touch", nil,
		&ast.VarDeclStmt{Decls: []*ast.VariableDecl{ptr}, Value: ast.Index(ast.Ident("accounts", nil), ast.Builtin("msg", "sender", addrT))},
		ast.Exprs(ast.Assign(ast.Member(ast.Ident("a", account), "balance", uintT), ast.Number("1"))),
	)
	c := contract("Bank", fn)
	c.Structs = []*ast.StructDecl{{Name: "Account", Fields: []*ast.VariableDecl{ast.Var("balance", uintT)}}}
	c.StateVariables = []*ast.VariableDecl{ast.Var("accounts", &types.Mapping{Key: addrT, Value: account})}
	return c
}

// whileLoop is "uint i = 0; while (i < n) { i = i + 1; }".
func whileLoop() *ast.Function {
	return ast.Func("f", params("n"),
		ast.Declare("i", uintT, ast.Number("0")),
		ast.While(ast.Binary("<", id("i"), id("n")),
			ast.Blk(ast.Exprs(ast.Assign(id("i"), ast.Binary("+", id("i"), ast.Number("1")))))),
	)
}

// sumLoop is "for (uint i = 0; i < n; i++) { total += i; }" with a named
// return total.
func sumLoop() *ast.Function {
	fn := ast.Func("sum", params("n"),
		ast.For(ast.Declare("i", uintT, ast.Number("0")),
			ast.Binary("<", id("i"), id("n")),
			ast.Unary("++", id("i"), false),
			ast.Blk(ast.Exprs(ast.AssignOp("+=", id("total"), id("i"))))),
	)
	fn.Returns = []*ast.VariableDecl{ast.Var("total", uintT)}
	return fn
}

// stackContract pushes and pops a dynamic state array.
func stackContract() *ast.Contract {
	arr := &types.Array{Elem: uintT, Length: -1}
	xs := ast.Ident("xs", arr)
	fn := ast.Func("cycle", params("v"),
		ast.Exprs(ast.Call(ast.Member(xs, "push", nil), nil, id("v"))),
		ast.Exprs(ast.Call(ast.Member(xs, "pop", nil), nil)),
	)
	c := contract("Stack", fn)
	c.StateVariables = []*ast.VariableDecl{ast.Var("xs", arr)}
	return c
}

// assertNoSelfReads fails when an operation reads the variable it writes.
func assertNoSelfReads(t *testing.T, fn *Function) {
	t.Helper()
	for _, n := range fn.Nodes {
		for _, ops := range [][]Operation{n.IRs, n.IRsSSA} {
			for _, op := range ops {
				lv := op.Lvalue()
				if lv == nil {
					continue
				}
				for _, v := range op.Read() {
					assert.False(t, v == lv, "%s node %d: %q reads its lvalue", fn.Name, n.ID, op)
				}
			}
		}
	}
}

type versioned struct {
	base    Variable
	version int
}

func versionOf(v Variable) (versioned, bool) {
	switch s := v.(type) {
	case *LocalVariableSSA:
		return versioned{s.NonSSA(), s.Version()}, true
	case *StateVariableSSA:
		return versioned{s.NonSSA(), s.Version()}, true
	}
	return versioned{}, false
}

// ssaDefined returns the versioned variable op defines, if any. A write
// through a reference defines the new version of its origin.
func ssaDefined(op Operation) Variable {
	lv := op.Lvalue()
	if ref, ok := lv.(*ReferenceVariableSSA); ok {
		switch op.(type) {
		case *Index, *Member, *Length:
			return nil
		}
		return ref.Origin()
	}
	return lv
}

type defSite struct {
	node, index int
}

// checkSSA asserts that every version of fn is defined once, that each
// read is reached by a definition dominating it, and that phis only sit
// on joins.
func checkSSA(t *testing.T, fn *Function) {
	t.Helper()
	dom := fn.Dominance
	require.NotNil(t, dom)

	defs := map[versioned]defSite{}
	for _, n := range fn.Nodes {
		for i, op := range n.IRsSSA {
			k, ok := versionOf(ssaDefined(op))
			if !ok {
				continue
			}
			assert.Positive(t, k.version, "%s node %d: %q redefines an entry version", fn.Name, n.ID, op)
			_, dup := defs[k]
			assert.False(t, dup, "%s: %s_%d defined twice", fn.Name, k.base, k.version)
			defs[k] = defSite{n.ID, i}
		}
	}

	reaches := func(v Variable, at, before int) bool {
		k, ok := versionOf(v)
		if !ok || k.version == 0 {
			return true
		}
		d, ok := defs[k]
		if !ok {
			return false
		}
		if d.node == at {
			return d.index < before
		}
		return dom.Dominates(d.node, at)
	}

	for _, n := range fn.Nodes {
		joins := len(dom.reachableFathers(n))
		seenOther := false
		for i, op := range n.IRsSSA {
			if phi, ok := op.(*Phi); ok {
				assert.True(t, dom.Reachable[n.ID], "%s: phi in unreachable node %d", fn.Name, n.ID)
				assert.GreaterOrEqual(t, joins, 2, "%s: %q at node %d with %d fathers", fn.Name, phi, n.ID, joins)
				assert.False(t, seenOther, "%s node %d: %q after a non-phi operation", fn.Name, n.ID, phi)
				require.Len(t, phi.Rvalues, len(phi.Preds))
				for j, rv := range phi.Rvalues {
					assert.True(t, reaches(rv, phi.Preds[j], len(fn.Nodes[phi.Preds[j]].IRsSSA)),
						"%s node %d: %q operand %s does not reach from %d", fn.Name, n.ID, phi, rv, phi.Preds[j])
				}
				continue
			}
			seenOther = true
			reads := op.Read()
			if ref, ok := op.Lvalue().(*ReferenceVariableSSA); ok && ssaDefined(op) != nil {
				reads = append(reads, ref.Previous())
			}
			for _, v := range reads {
				assert.True(t, reaches(v, n.ID, i), "%s node %d: %q reads %s before its definition", fn.Name, n.ID, op, v)
			}
		}
	}
}
