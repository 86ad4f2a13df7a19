package ir

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartfast/internal/ast"
	"smartfast/internal/errors"
)

// directEffects reports only the callee's own writes.
type directEffects struct {
	reentrant []*StateVariable
}

func (directEffects) StateVariablesWritten(fn *Function) []*StateVariable {
	return fn.StateVariablesWritten()
}

func (e directEffects) ReentrantStateVariables(*Function) []*StateVariable {
	return e.reentrant
}

func phis(n *Node) []*Phi {
	var out []*Phi
	for _, op := range n.IRsSSA {
		if p, ok := op.(*Phi); ok {
			out = append(out, p)
		}
	}
	return out
}

func callbacks(n *Node) []*PhiCallback {
	var out []*PhiCallback
	for _, op := range n.IRsSSA {
		if p, ok := op.(*PhiCallback); ok {
			out = append(out, p)
		}
	}
	return out
}

func TestSSAPhiAtEndIf(t *testing.T) {
	fn := lookup(t, build(t, contract("C", branchy())), "C", "f")
	require.NoError(t, NewSSAConverter(nil, false).Convert(fn))

	assert.Equal(t, []string{"y_1(uint256) := 0(uint256)"}, opStrings(fn.Nodes[1].IRsSSA))
	assert.Equal(t, []string{"TMP_0(bool) = x_0 > 0", "CONDITION TMP_0"}, opStrings(fn.Nodes[2].IRsSSA))
	assert.Equal(t, []string{"y_2(uint256) := x_0(uint256)"}, opStrings(fn.Nodes[3].IRsSSA))
	assert.Equal(t, []string{"y_3(uint256) := ϕ(['y_2', 'y_1'])"}, opStrings(fn.Nodes[4].IRsSSA))
	assert.Equal(t, []string{"RETURN y_3"}, opStrings(fn.Nodes[5].IRsSSA))

	p := phis(fn.Nodes[4])
	require.Len(t, p, 1)
	assert.Equal(t, []int{3, 2}, p[0].Preds)
	assert.Equal(t, 4, p[0].NodeID())

	// non-SSA IR is untouched
	assert.Equal(t, []string{"RETURN y"}, opStrings(fn.Nodes[5].IRs))
}

func TestSSAConvertIsIdempotent(t *testing.T) {
	fn := lookup(t, build(t, contract("C", branchy())), "C", "f")
	conv := NewSSAConverter(nil, false)
	require.NoError(t, conv.Convert(fn))
	first := Format(fn, true)

	require.NoError(t, conv.Convert(fn))
	assert.Equal(t, first, Format(fn, true))
	assert.Len(t, phis(fn.Nodes[4]), 1)
}

func TestSSANoPhiWithoutRedefinition(t *testing.T) {
	fn := ast.Func("f", params("x"),
		ast.If(ast.Binary(">", id("x"), ast.Number("0")), ast.Blk(ast.Emit("Seen", id("x"))), nil),
		ast.Return(id("x")),
	)
	fn.Returns = []*ast.VariableDecl{ast.Var("", uintT)}
	f := lookup(t, build(t, contract("C", fn)), "C", "f")
	require.NoError(t, NewSSAConverter(nil, false).Convert(f))

	for _, n := range f.Nodes {
		assert.Empty(t, phis(n), "node %d", n.ID)
	}
	assert.Equal(t, []string{"RETURN x_0"}, opStrings(f.Nodes[len(f.Nodes)-1].IRsSSA))
}

func TestSSALoopHeaderPhi(t *testing.T) {
	fn := whileLoop()
	f := lookup(t, build(t, contract("C", fn)), "C", "f")
	require.NoError(t, NewSSAConverter(nil, false).Convert(f))

	assert.Equal(t, []string{
		"i_2(uint256) := ϕ(['i_1', 'i_3'])",
		"TMP_0(bool) = i_2 < n_0",
		"CONDITION TMP_0",
	}, opStrings(f.Nodes[3].IRsSSA))
	assert.Equal(t, []string{"TMP_1(uint256) = i_2 + 1", "i_3(uint256) := TMP_1(uint256)"}, opStrings(f.Nodes[5].IRsSSA))
}

func TestSSACallbackPhiAfterInternalCall(t *testing.T) {
	bump := ast.Func("bump", nil, ast.Exprs(ast.AssignOp("+=", id("total"), ast.Number("1"))))
	bump.Visibility = "internal"
	run := ast.Func("run", nil,
		ast.Exprs(ast.Call(ast.Ident("bump", nil), nil)),
		ast.Return(id("total")),
	)
	run.Returns = []*ast.VariableDecl{ast.Var("", uintT)}
	c := contract("Counter", bump, run)
	c.StateVariables = []*ast.VariableDecl{ast.Var("total", uintT)}

	f := lookup(t, build(t, c), "Counter", "run")
	require.NoError(t, NewSSAConverter(directEffects{}, false).Convert(f))

	assert.Equal(t, []string{
		"INTERNAL_CALL, Counter.bump()()",
		"total_1(uint256) := ϕ(['total_0'])",
	}, opStrings(f.Nodes[1].IRsSSA))
	assert.Empty(t, phis(f.Nodes[1]), "one father, no join")
	p := callbacks(f.Nodes[1])
	require.Len(t, p, 1)
	assert.Same(t, f.Nodes[1].IRsSSA[0], p[0].Call)
	assert.Equal(t, "total_0", p[0].Previous.String())
	assert.Equal(t, []string{"RETURN total_1"}, opStrings(f.Nodes[2].IRsSSA))
}

func TestSSAReentrancyPhi(t *testing.T) {
	pay := ast.Func("pay", nil,
		ast.Exprs(ast.Call(ast.Member(ast.Builtin("msg", "sender", addrT), "call", nil), nil, ast.StringLit(""))),
		ast.Return(id("total")),
	)
	pay.Returns = []*ast.VariableDecl{ast.Var("", uintT)}
	c := contract("Vault", pay)
	c.StateVariables = []*ast.VariableDecl{ast.Var("total", uintT)}

	prog := build(t, c)
	f := lookup(t, prog, "Vault", "pay")
	total := prog.Contract("Vault").StateVariable("total")

	require.NoError(t, NewSSAConverter(directEffects{reentrant: []*StateVariable{total}}, true).Convert(f))
	p := callbacks(f.Nodes[1])
	require.Len(t, p, 1)
	assert.Equal(t, "total_1", p[0].Result.String())

	// without reentrancy no phi follows the call
	g := lookup(t, build(t, c), "Vault", "pay")
	require.NoError(t, NewSSAConverter(directEffects{reentrant: []*StateVariable{total}}, false).Convert(g))
	assert.Empty(t, callbacks(g.Nodes[1]))
}

func TestSSAStoragePointerAlias(t *testing.T) {
	prog := build(t, storagePointerContract())
	f := lookup(t, prog, "Bank", "touch")
	require.NoError(t, NewSSAConverter(nil, false).Convert(f))

	ops := f.Nodes[2].IRsSSA
	require.Len(t, ops, 3)
	write, ok := ops[1].(*Assignment)
	require.True(t, ok)
	ref, ok := write.Result.(*ReferenceVariableSSA)
	require.True(t, ok)
	assert.Equal(t, "a_2", ref.Origin().String())
	assert.Equal(t, "a_1", ref.Previous().String())

	alias, ok := ops[2].(*PhiAlias)
	require.True(t, ok)
	assert.Same(t, prog.Contract("Bank").StateVariable("accounts"), alias.Variable)
	assert.Equal(t, "accounts_1", alias.Result.String())
	assert.Equal(t, "accounts_0", alias.Previous.String())
	assert.Equal(t, "a_2", alias.Pointer.String())
	assert.Equal(t, "accounts_1(mapping(address => Account)) := ϕ(['accounts_0', 'a_2'])", alias.String())
}

func TestSSAMissingEntry(t *testing.T) {
	fn := &Function{Name: "f", Contract: "C", Decl: ast.Func("f", nil)}
	fn.newNode(NodeExpression, ast.Position{})

	err := NewSSAConverter(nil, false).Convert(fn)
	var serr *errors.SSAConstructionError
	require.True(t, stderrors.As(err, &serr))
	assert.Equal(t, errors.ErrorMissingEntry, serr.Code)
	assert.Equal(t, StatusSSAFailed, fn.Status)
}

func TestSSAInconsistentEdges(t *testing.T) {
	fn := &Function{Name: "f", Contract: "C", Decl: ast.Func("f", nil)}
	entry := fn.newNode(NodeEntryPoint, ast.Position{})
	next := fn.newNode(NodeReturn, ast.Position{})
	entry.Sons = []*Node{next}

	err := NewSSAConverter(nil, false).Convert(fn)
	var serr *errors.SSAConstructionError
	require.True(t, stderrors.As(err, &serr))
	assert.Equal(t, errors.ErrorInconsistentEdges, serr.Code)
	assert.False(t, fn.Complete())
}

func TestSSASkipsUnimplemented(t *testing.T) {
	iface := &ast.Contract{Name: "I", Kind: ast.ContractKindInterface, Functions: []*ast.Function{
		{Name: "f", Kind: ast.KindFunction, Visibility: "external"},
	}}
	f := lookup(t, build(t, iface), "I", "f")
	assert.NoError(t, NewSSAConverter(nil, false).Convert(f))
	assert.True(t, f.Complete())
}

func TestSSAUnreachableCode(t *testing.T) {
	fn := ast.Func("f", params("x"),
		ast.Return(id("x")),
		ast.Exprs(ast.Assign(id("x"), ast.Number("1"))),
	)
	fn.Returns = []*ast.VariableDecl{ast.Var("", uintT)}
	f := lookup(t, build(t, contract("C", fn)), "C", "f")
	require.NoError(t, NewSSAConverter(nil, false).Convert(f))

	assert.False(t, f.Dominance.Reachable[2])
	assert.Equal(t, []string{"x_1(uint256) := 1(uint256)"}, opStrings(f.Nodes[2].IRsSSA))
}

// reentrantEffects lets every external call re-enter and write all of the
// caller contract's state.
type reentrantEffects struct {
	prog *Program
}

func (reentrantEffects) StateVariablesWritten(fn *Function) []*StateVariable {
	return fn.StateVariablesWritten()
}

func (e reentrantEffects) ReentrantStateVariables(fn *Function) []*StateVariable {
	return e.prog.Contract(fn.Contract).AllStateVariables()
}

func TestSSAWellFormed(t *testing.T) {
	counter := func() *ast.Contract {
		bump := ast.Func("bump", nil, ast.Exprs(ast.AssignOp("+=", id("total"), ast.Number("1"))))
		bump.Visibility = "internal"
		run := ast.Func("run", params("x"),
			ast.If(ast.Binary(">", id("x"), ast.Number("0")), ast.Blk(ast.Exprs(ast.Call(ast.Ident("bump", nil), nil))), nil),
			ast.Exprs(ast.Call(ast.Member(ast.Builtin("msg", "sender", addrT), "call", nil), nil, ast.StringLit(""))),
			ast.Return(id("total")),
		)
		run.Returns = []*ast.VariableDecl{ast.Var("", uintT)}
		c := contract("Counter", bump, run)
		c.StateVariables = []*ast.VariableDecl{ast.Var("total", uintT)}
		return c
	}
	unreachable := func() *ast.Contract {
		fn := ast.Func("f", params("x"),
			ast.Return(id("x")),
			ast.Exprs(ast.AssignOp("+=", id("x"), ast.Number("1"))),
			ast.Exprs(ast.Assign(id("x"), ast.Binary("*", id("x"), id("x")))),
		)
		fn.Returns = []*ast.VariableDecl{ast.Var("", uintT)}
		return contract("C", fn)
	}

	tests := []struct {
		name     string
		contract *ast.Contract
		function string
	}{
		{"branch", contract("C", branchy()), "f"},
		{"while", contract("C", whileLoop()), "f"},
		{"for", contract("C", sumLoop()), "sum"},
		{"callback", counter(), "run"},
		{"storage pointer", storagePointerContract(), "touch"},
		{"push pop", stackContract(), "cycle"},
		{"unreachable", unreachable(), "f"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog := build(t, tt.contract)
			f := lookup(t, prog, tt.contract.Name, tt.function)
			require.NoError(t, NewSSAConverter(reentrantEffects{prog}, true).Convert(f))
			checkSSA(t, f)
			assertNoSelfReads(t, f)
		})
	}
}

func TestSSACallbackAfterBranchJoins(t *testing.T) {
	bump := ast.Func("bump", nil, ast.Exprs(ast.AssignOp("+=", id("total"), ast.Number("1"))))
	bump.Visibility = "internal"
	run := ast.Func("run", params("x"),
		ast.If(ast.Binary(">", id("x"), ast.Number("0")), ast.Blk(ast.Exprs(ast.Call(ast.Ident("bump", nil), nil))), nil),
		ast.Return(id("total")),
	)
	run.Returns = []*ast.VariableDecl{ast.Var("", uintT)}
	c := contract("Counter", bump, run)
	c.StateVariables = []*ast.VariableDecl{ast.Var("total", uintT)}

	f := lookup(t, build(t, c), "Counter", "run")
	require.NoError(t, NewSSAConverter(directEffects{}, false).Convert(f))

	assert.Equal(t, []NodeType{NodeEntryPoint, NodeIf, NodeExpression, NodeEndIf, NodeReturn}, nodeTypes(f))
	require.Len(t, callbacks(f.Nodes[2]), 1)
	join := phis(f.Nodes[3])
	require.Len(t, join, 1)
	assert.Equal(t, "total_2(uint256) := ϕ(['total_1', 'total_0'])", join[0].String())
	assert.Equal(t, []string{"RETURN total_2"}, opStrings(f.Nodes[4].IRsSSA))
}
