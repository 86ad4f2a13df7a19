package callgraph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartfast/internal/ast"
	"smartfast/internal/ir"
	"smartfast/internal/types"
)

func internal(f *ast.Function) *ast.Function {
	f.Visibility = "internal"
	return f
}

func call(name string, t types.Type, args ...ast.Expr) *ast.FunctionCall {
	return ast.Call(ast.Ident(name, nil), t, args...)
}

// ledger is
//
//	modifier onlyOwner { require(msg.sender == owner); _; }
//	function run(uint x) public onlyOwner { set(x); }
//	function set(uint v) internal { total = v; }
//	function rec(uint n) internal returns (uint) { return rec(n); }
//	function a() public { b(); }
//	function b() internal { a(); }
func ledger(t *testing.T) *ir.Program {
	t.Helper()
	uintT := types.Uint256
	onlyOwner := &ast.Function{
		Name: "onlyOwner",
		Kind: ast.KindModifier,
		Body: ast.Blk(
			ast.Exprs(call("require", nil, ast.Binary("==", ast.Builtin("msg", "sender", types.Address), ast.Ident("owner", types.Address)))),
			&ast.PlaceholderStmt{},
		),
	}
	run := ast.Func("run", []*ast.VariableDecl{ast.Var("x", uintT)}, ast.Exprs(call("set", nil, ast.Ident("x", uintT))))
	run.Modifiers = []*ast.ModifierInvocation{{Name: "onlyOwner"}}
	set := internal(ast.Func("set", []*ast.VariableDecl{ast.Var("v", uintT)},
		ast.Exprs(ast.Assign(ast.Ident("total", uintT), ast.Ident("v", uintT)))))
	rec := internal(ast.Func("rec", []*ast.VariableDecl{ast.Var("n", uintT)},
		ast.Return(call("rec", uintT, ast.Ident("n", uintT)))))
	rec.Returns = []*ast.VariableDecl{ast.Var("", uintT)}
	a := ast.Func("a", nil, ast.Exprs(call("b", nil)))
	b := internal(ast.Func("b", nil, ast.Exprs(call("a", nil))))

	c := &ast.Contract{
		Name:           "Ledger",
		Kind:           ast.ContractKindContract,
		StateVariables: []*ast.VariableDecl{ast.Var("total", uintT), ast.Var("owner", types.Address)},
		Functions:      []*ast.Function{run, set, rec, a, b, onlyOwner},
	}
	prog, errs := ir.NewBuilder(nil).Build(&ast.SourceUnit{Contracts: []*ast.Contract{c}})
	require.Empty(t, errs)
	return prog
}

func fn(t *testing.T, prog *ir.Program, name string) *ir.Function {
	t.Helper()
	for _, f := range prog.Functions() {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("no function %s", name)
	return nil
}

func names(fs []*ir.Function) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Name
	}
	return out
}

func TestCalleesAndCallers(t *testing.T) {
	prog := ledger(t)
	g := New(prog)

	run := fn(t, prog, "run")
	assert.Equal(t, []string{"onlyOwner", "set"}, names(g.Callees(run)))
	assert.Equal(t, []string{"set"}, names(g.Callees(run, Internal)))
	assert.Equal(t, []string{"onlyOwner"}, names(g.Callees(run, Modifier)))
	assert.Equal(t, []string{"run"}, names(g.Callers(fn(t, prog, "set"))))
	assert.Empty(t, g.Callers(run))

	edges := g.Edges(run)
	require.Len(t, edges, 2)
	assert.Equal(t, Modifier, edges[0].Kind)
	assert.IsType(t, &ir.InternalCall{}, edges[1].Op)
}

func TestReachableAndEntryPoints(t *testing.T) {
	prog := ledger(t)
	g := New(prog)
	c := prog.Contract("Ledger")

	assert.ElementsMatch(t, []string{"onlyOwner", "set"}, names(g.Reachable(fn(t, prog, "run"))))
	assert.Equal(t, []string{"rec"}, names(g.Reachable(fn(t, prog, "rec"))))
	assert.Equal(t, []string{"run", "a"}, names(g.EntryPoints(c)))
	assert.ElementsMatch(t, []string{"run", "onlyOwner", "set", "a", "b"}, names(g.ReachableFromEntryPoints(c)))
}

func TestSCCsCalleesFirst(t *testing.T) {
	prog := ledger(t)
	g := New(prog)
	sccs := g.SCCs()

	pos := map[string]int{}
	for i, scc := range sccs {
		for _, f := range scc {
			pos[f.Name] = i
		}
	}
	assert.Len(t, pos, 6)
	assert.Less(t, pos["set"], pos["run"])
	assert.Less(t, pos["onlyOwner"], pos["run"])
	assert.Equal(t, pos["a"], pos["b"])

	for _, scc := range sccs {
		switch scc[0].Name {
		case "a":
			assert.Equal(t, []string{"a", "b"}, names(scc))
			assert.True(t, g.IsRecursive(scc))
		case "rec":
			assert.True(t, g.IsRecursive(scc))
		case "set":
			assert.False(t, g.IsRecursive(scc))
		}
	}
}

func TestStateEffects(t *testing.T) {
	prog := ledger(t)
	g := New(prog)

	written := g.StateVariablesWritten(fn(t, prog, "run"))
	require.Len(t, written, 1)
	assert.Equal(t, "total", written[0].Name())
	assert.Empty(t, g.StateVariablesWritten(fn(t, prog, "a")))

	reentrant := g.ReentrantStateVariables(fn(t, prog, "b"))
	require.Len(t, reentrant, 1)
	assert.Equal(t, "total", reentrant[0].Name())

	var _ ir.CallEffects = g
}

func TestWriteDot(t *testing.T) {
	g := New(ledger(t))
	var b strings.Builder
	require.NoError(t, g.WriteDot(&b))

	out := b.String()
	assert.True(t, strings.HasPrefix(out, "strict digraph {\n"))
	assert.Contains(t, out, "subgraph \"cluster_Ledger\" {")
	assert.Contains(t, out, "\"Ledger.run(uint256)\" -> \"Ledger.set(uint256)\" [label=\"internal\"]")
	assert.Contains(t, out, "\"Ledger.run(uint256)\" -> \"Ledger.onlyOwner()\" [label=\"modifier\"]")
	assert.Contains(t, out, "\"Ledger.a()\" [label=\"a()\"]")
}
