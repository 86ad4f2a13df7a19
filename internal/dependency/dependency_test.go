package dependency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartfast/internal/ast"
	"smartfast/internal/builtins"
	"smartfast/internal/callgraph"
	"smartfast/internal/ir"
	"smartfast/internal/types"
)

var (
	uintT = types.Uint256
	addrT = types.Address
	boolT = types.Bool
)

func id(name string) *ast.Identifier { return ast.Ident(name, uintT) }

func params(names ...string) []*ast.VariableDecl {
	out := make([]*ast.VariableDecl, len(names))
	for i, n := range names {
		out[i] = ast.Var(n, uintT)
	}
	return out
}

func returning(f *ast.Function) *ast.Function {
	f.Returns = []*ast.VariableDecl{ast.Var("", uintT)}
	return f
}

func internal(f *ast.Function) *ast.Function {
	f.Visibility = "internal"
	return f
}

func call(name string, t types.Type, args ...ast.Expr) *ast.FunctionCall {
	return ast.Call(ast.Ident(name, nil), t, args...)
}

func contract(name string, state []*ast.VariableDecl, fns ...*ast.Function) *ast.Contract {
	return &ast.Contract{Name: name, Kind: ast.ContractKindContract, StateVariables: state, Functions: fns}
}

// analyze lowers the contracts, converts every function to SSA and builds
// the engine. Lowering errors are returned, not fatal.
func analyze(t *testing.T, opts []Option, contracts ...*ast.Contract) (*ir.Program, *Engine, []error) {
	t.Helper()
	return analyzeWith(t, nil, opts, contracts...)
}

func analyzeWith(t *testing.T, table *builtins.Table, opts []Option, contracts ...*ast.Contract) (*ir.Program, *Engine, []error) {
	t.Helper()
	prog, errs := ir.NewBuilder(table).Build(&ast.SourceUnit{Contracts: contracts})
	calls := callgraph.New(prog)
	conv := ir.NewSSAConverter(calls, false)
	for _, fn := range prog.Functions() {
		if fn.Status == ir.StatusLoweringFailed {
			continue
		}
		require.NoError(t, conv.Convert(fn))
	}
	return prog, New(calls, opts...), errs
}

func function(t *testing.T, prog *ir.Program, c, name string) *ir.Function {
	t.Helper()
	k := prog.Contract(c)
	require.NotNil(t, k)
	for _, f := range append(append([]*ir.Function{}, k.Modifiers...), k.Functions...) {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("function %s.%s not found", c, name)
	return nil
}

func local(t *testing.T, fn *ir.Function, name string) *ir.LocalVariable {
	t.Helper()
	for _, l := range fn.Locals {
		if l.Name() == name {
			return l
		}
	}
	for _, l := range append(append([]*ir.LocalVariable{}, fn.Params...), fn.Returns...) {
		if l.Name() == name {
			return l
		}
	}
	t.Fatalf("local %s not found in %s", name, fn.Name)
	return nil
}

// ssaDef returns the first SSA definition of name in fn with the given
// version.
func ssaDef(t *testing.T, fn *ir.Function, name string, version int) ir.Variable {
	t.Helper()
	for _, n := range fn.Nodes {
		for _, op := range n.IRsSSA {
			vs := append([]ir.Variable{op.Lvalue()}, op.Read()...)
			for _, v := range vs {
				switch s := v.(type) {
				case *ir.LocalVariableSSA:
					if s.Name() == name && s.Version() == version {
						return s
					}
				case *ir.StateVariableSSA:
					if s.Name() == name && s.Version() == version {
						return s
					}
				}
			}
		}
	}
	t.Fatalf("%s_%d not found in %s", name, version, fn.Name)
	return nil
}

func returned(t *testing.T, fn *ir.Function) ir.Variable {
	t.Helper()
	for _, n := range fn.Nodes {
		for _, op := range n.IRsSSA {
			if r, ok := op.(*ir.Return); ok && len(r.Values) > 0 {
				return r.Values[0]
			}
		}
	}
	t.Fatalf("no return in %s", fn.Name)
	return nil
}

func stateNames(vs []*ir.StateVariable) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Name()
	}
	return out
}

// branchy is "uint y = 0; if (x > 0) { y = x; } return y;".
func branchy() *ast.Function {
	return returning(ast.Func("f", params("x"),
		ast.Declare("y", uintT, ast.Number("0")),
		ast.If(ast.Binary(">", id("x"), ast.Number("0")),
			ast.Blk(ast.Exprs(ast.Assign(id("y"), id("x")))), nil),
		ast.Return(id("y")),
	))
}

func TestDependencyIsReflexive(t *testing.T) {
	prog, e, _ := analyze(t, nil, contract("C", []*ast.VariableDecl{ast.Var("total", uintT)}, branchy()))
	f := function(t, prog, "C", "f")
	x0 := ssaDef(t, f, "x", 0)

	assert.True(t, e.IsDependentSSA(x0, x0, f))
	assert.True(t, e.IsDependentInFunction(local(t, f, "x"), local(t, f, "x"), f))
	total := prog.Contract("C").StateVariable("total")
	assert.True(t, e.IsDependent(total, total, prog.Contract("C")))
}

func TestDependencyThroughPhi(t *testing.T) {
	prog, e, _ := analyze(t, nil, contract("C", nil, branchy()))
	f := function(t, prog, "C", "f")
	x0 := ssaDef(t, f, "x", 0)

	phi, ok := f.Nodes[4].IRsSSA[0].(*ir.Phi)
	require.True(t, ok)
	assert.True(t, e.IsDependentSSA(phi.Result, x0, f))
	assert.True(t, e.IsDependentSSA(ssaDef(t, f, "y", 2), x0, f))
	assert.False(t, e.IsDependentSSA(ssaDef(t, f, "y", 1), x0, f))
	assert.False(t, e.IsDependentSSA(x0, phi.Result, f))

	assert.True(t, e.IsDependentInFunction(local(t, f, "y"), local(t, f, "x"), f))
	assert.True(t, e.IsDependent(local(t, f, "y"), local(t, f, "x"), prog.Contract("C")))
}

func TestDependencyDirectChain(t *testing.T) {
	fn := ast.Func("f", params("x"),
		ast.Declare("a", uintT, id("x")),
		ast.Declare("b", uintT, ast.Binary("+", id("a"), ast.Number("1"))),
		ast.Declare("c", uintT, ast.Convert(uintT, id("b"))),
	)
	prog, e, _ := analyze(t, nil, contract("C", nil, fn))
	f := function(t, prog, "C", "f")

	assert.True(t, e.IsDependentInFunction(local(t, f, "c"), local(t, f, "x"), f))
	assert.True(t, e.IsDependentInFunction(local(t, f, "b"), local(t, f, "a"), f))
	assert.False(t, e.IsDependentInFunction(local(t, f, "x"), local(t, f, "c"), f))
	assert.True(t, e.IsDependentSSA(ssaDef(t, f, "c", 1), ssaDef(t, f, "x", 0), f))
}

func TestRequireDoesNotPropagate(t *testing.T) {
	fn := returning(ast.Func("f", params("x"),
		ast.Declare("y", uintT, ast.Number("1")),
		ast.Exprs(call("require", nil, ast.Binary(">", id("x"), id("y")))),
		ast.Return(id("y")),
	))
	prog, e, _ := analyze(t, nil, contract("C", nil, fn))
	f := function(t, prog, "C", "f")

	assert.False(t, e.IsDependentInFunction(local(t, f, "y"), local(t, f, "x"), f))
	assert.False(t, e.IsTainted(local(t, f, "y"), f, false))
	assert.Equal(t, []Deps{{}}, normalized(e.Summary(f).Returns))
}

func normalized(ds []Deps) []Deps {
	out := make([]Deps, len(ds))
	for i, d := range ds {
		out[i] = Deps{Params: nonEmpty(d.Params), Unknown: d.Unknown}
		if len(d.State) > 0 {
			out[i].State = d.State
		}
		if len(d.Builtins) > 0 {
			out[i].Builtins = d.Builtins
		}
	}
	return out
}

func nonEmpty(xs []int) []int {
	if len(xs) == 0 {
		return nil
	}
	return xs
}

func TestStateWrittenInCallee(t *testing.T) {
	set := internal(ast.Func("set", params("v"), ast.Exprs(ast.Assign(id("total"), id("v")))))
	run := ast.Func("run", params("x"), ast.Exprs(call("set", nil, id("x"))))
	prog, e, _ := analyze(t, nil, contract("Ledger", []*ast.VariableDecl{ast.Var("total", uintT)}, set, run))
	c := prog.Contract("Ledger")
	total := c.StateVariable("total")
	r := function(t, prog, "Ledger", "run")

	s := e.Summary(function(t, prog, "Ledger", "set"))
	require.Contains(t, s.State, total)
	assert.Equal(t, []int{0}, s.State[total].Params)

	assert.True(t, e.IsDependent(total, local(t, r, "x"), c))
	assert.True(t, e.IsDependentSSA(ssaDef(t, r, "total", 1), ssaDef(t, r, "x", 0), r))
	assert.True(t, e.IsTaintedInContract(total, c, true))
	assert.Equal(t, []string{"total"}, stateNames(e.TaintedStateVariables(c, true)))
}

func TestInternalCallReturnFlowsToCaller(t *testing.T) {
	double := returning(internal(ast.Func("double", params("a", "b"), ast.Return(ast.Binary("*", id("a"), ast.Number("2"))))))
	run := returning(ast.Func("run", params("x", "y"), ast.Return(call("double", uintT, id("x"), id("y")))))
	prog, e, _ := analyze(t, nil, contract("C", nil, double, run))
	r := function(t, prog, "C", "run")
	out := returned(t, r)

	assert.Equal(t, []int{0}, e.Summary(function(t, prog, "C", "double")).Returns[0].Params)
	assert.True(t, e.IsDependentSSA(out, ssaDef(t, r, "x", 0), r))
	assert.False(t, e.IsDependentSSA(out, ssaDef(t, r, "y", 0), r))
}

func TestGenericTaint(t *testing.T) {
	touch := ast.Func("touch", nil, ast.Exprs(ast.Assign(ast.Ident("last", addrT), ast.Builtin("msg", "sender", addrT))))
	seed := internal(ast.Func("seed", nil, ast.Exprs(ast.Assign(id("fixed"), ast.Number("7")))))
	c := contract("C", []*ast.VariableDecl{ast.Var("last", addrT), ast.Var("fixed", uintT)}, touch, seed)
	prog, e, _ := analyze(t, nil, c)
	k := prog.Contract("C")

	assert.Equal(t, []string{"last"}, stateNames(e.TaintedStateVariables(k, false)))
	assert.Empty(t, e.TaintedStateVariables(k, true))

	f := function(t, prog, "C", "touch")
	assert.True(t, e.IsTainted(ssaDef(t, f, "last", 1), f, false))
	assert.False(t, e.IsTainted(ssaDef(t, f, "last", 1), f, true))
}

func TestOnlyUnprotected(t *testing.T) {
	onlyOwner := &ast.Function{
		Name: "onlyOwner",
		Kind: ast.KindModifier,
		Body: ast.Blk(
			ast.Exprs(call("require", nil, ast.Binary("==", ast.Builtin("msg", "sender", addrT), ast.Ident("owner", addrT)))),
			&ast.PlaceholderStmt{},
		),
	}
	setFee := ast.Func("setFee", params("f"), ast.Exprs(ast.Assign(id("fee"), id("f"))))
	setFee.Modifiers = []*ast.ModifierInvocation{{Name: "onlyOwner"}}
	setLimit := ast.Func("setLimit", params("l"), ast.Exprs(ast.Assign(id("limit"), id("l"))))

	c := contract("Pool", []*ast.VariableDecl{ast.Var("owner", addrT), ast.Var("fee", uintT), ast.Var("limit", uintT)},
		onlyOwner, setFee, setLimit)
	prog, e, _ := analyze(t, nil, c)
	k := prog.Contract("Pool")
	fee, limit := k.StateVariable("fee"), k.StateVariable("limit")

	assert.True(t, e.IsTaintedInContract(fee, k, true))
	assert.False(t, e.IsTaintedInContractOnlyUnprotected(fee, k, true))
	assert.True(t, e.IsTaintedInContractOnlyUnprotected(limit, k, true))
	assert.Equal(t, []string{"limit"}, stateNames(e.TaintedStateVariablesOnlyUnprotected(k, true)))

	sf := function(t, prog, "Pool", "setFee")
	assert.False(t, e.IsDependentOnlyUnprotected(fee, local(t, sf, "f"), k))
	assert.True(t, e.IsTainted(local(t, sf, "f"), sf, true))
	assert.False(t, e.IsTaintedOnlyUnprotected(local(t, sf, "f"), sf, true))
}

func TestDegradedFunctionIsTainted(t *testing.T) {
	broken := returning(internal(ast.Func("broken", []*ast.VariableDecl{ast.Var("c", boolT)},
		ast.Return(ast.Binary("+", ast.Cond(ast.Ident("c", boolT), ast.Number("1"), ast.Number("2")), ast.Number("1"))))))
	g := returning(ast.Func("g", nil, ast.Return(call("broken", uintT, ast.BoolLit(true)))))
	prog, e, errs := analyze(t, nil, contract("C", []*ast.VariableDecl{ast.Var("total", uintT)}, broken, g))
	require.Len(t, errs, 1)

	b := function(t, prog, "C", "broken")
	assert.True(t, e.Summary(b).Degraded)
	assert.True(t, e.IsTainted(local(t, b, "c"), b, true))
	assert.True(t, e.IsDependentInFunction(local(t, b, "c"), local(t, b, "c"), b))

	gf := function(t, prog, "C", "g")
	assert.True(t, e.IsTainted(returned(t, gf), gf, true))

	// a failed non-view function may have written any state
	assert.Equal(t, []string{"total"}, stateNames(e.TaintedStateVariables(prog.Contract("C"), true)))
}

// sum is "if (n > 0) { return n + sum(n - 1); } return 0;".
func sum() *ast.Function {
	return returning(internal(ast.Func("sum", params("n"),
		ast.If(ast.Binary(">", id("n"), ast.Number("0")),
			ast.Blk(ast.Return(ast.Binary("+", id("n"), call("sum", uintT, ast.Binary("-", id("n"), ast.Number("1")))))), nil),
		ast.Return(ast.Number("0")),
	)))
}

func TestRecursiveSummaryConverges(t *testing.T) {
	run := returning(ast.Func("run", params("x"), ast.Return(call("sum", uintT, id("x")))))
	prog, e, _ := analyze(t, nil, contract("C", nil, sum(), run))

	s := e.Summary(function(t, prog, "C", "sum"))
	assert.False(t, s.Unstable)
	assert.Equal(t, []int{0}, s.Returns[0].Params)
	assert.False(t, s.Returns[0].Unknown)
	assert.Empty(t, e.Unstable())

	r := function(t, prog, "C", "run")
	assert.True(t, e.IsDependentSSA(returned(t, r), ssaDef(t, r, "x", 0), r))
}

func TestRecursiveSummaryWithoutExtraPasses(t *testing.T) {
	run := returning(ast.Func("run", nil, ast.Return(call("sum", uintT, ast.Number("3")))))
	prog, e, _ := analyze(t, []Option{WithRecursionPasses(0)}, contract("C", nil, sum(), run))

	sf := function(t, prog, "C", "sum")
	assert.True(t, e.Summary(sf).Unstable)
	assert.Equal(t, []*ir.Function{sf}, e.Unstable())

	// the call site falls back to the unknown source
	r := function(t, prog, "C", "run")
	assert.True(t, e.IsTainted(returned(t, r), r, true))
}

func TestLoopCarriedDependency(t *testing.T) {
	fn := returning(ast.Func("f", params("n"),
		ast.Declare("i", uintT, ast.Number("0")),
		ast.Declare("acc", uintT, ast.Number("0")),
		ast.While(ast.Binary("<", id("i"), id("n")),
			ast.Blk(
				ast.Exprs(ast.Assign(id("acc"), ast.Binary("+", id("acc"), id("i")))),
				ast.Exprs(ast.Assign(id("i"), ast.Binary("+", id("i"), ast.Number("1")))),
			)),
		ast.Return(id("acc")),
	))
	prog, e, _ := analyze(t, nil, contract("C", nil, fn))
	f := function(t, prog, "C", "f")

	assert.True(t, e.IsDependentInFunction(local(t, f, "acc"), local(t, f, "i"), f))
	assert.False(t, e.IsDependentInFunction(local(t, f, "acc"), local(t, f, "n"), f))
	assert.False(t, e.IsTainted(returned(t, f), f, true))
}

func TestIndexDependsOnBase(t *testing.T) {
	bal := &types.Mapping{Key: addrT, Value: uintT}
	credit := ast.Func("credit", []*ast.VariableDecl{ast.Var("to", addrT), ast.Var("amount", uintT)},
		ast.Exprs(ast.Assign(ast.Index(ast.Ident("balances", bal), ast.Ident("to", addrT)), id("amount"))),
	)
	prog, e, _ := analyze(t, nil, contract("Bank", []*ast.VariableDecl{ast.Var("balances", bal)}, credit))
	c := prog.Contract("Bank")
	f := function(t, prog, "Bank", "credit")
	balances := c.StateVariable("balances")

	assert.True(t, e.IsDependent(balances, local(t, f, "amount"), c))
	assert.False(t, e.IsDependent(balances, local(t, f, "to"), c))
	assert.True(t, e.IsDependentSSA(ssaDef(t, f, "balances", 1), ssaDef(t, f, "balances", 0), f))
}

func TestBuiltinTaint(t *testing.T) {
	table := builtins.Default()
	o, err := builtins.ParseOverrides([]byte(`
functions:
  - name: oracle
    returns: [uint256]
`))
	require.NoError(t, err)
	require.NoError(t, table.Merge(o))

	gas := returning(ast.Func("gas", nil, ast.Return(call("gasleft", uintT))))
	hash := ast.Func("hash", nil, ast.Return(call("keccak256", types.Bytes32, ast.StringLit("fixed"))))
	hash.Returns = []*ast.VariableDecl{ast.Var("", types.Bytes32)}
	quote := returning(ast.Func("quote", nil, ast.Return(call("oracle", uintT))))
	prog, e, errs := analyzeWith(t, table, nil, contract("C", nil, gas, hash, quote))
	require.Empty(t, errs)

	g := function(t, prog, "C", "gas")
	assert.True(t, e.IsTainted(returned(t, g), g, false))
	assert.False(t, e.IsTainted(returned(t, g), g, true))
	ret := e.Summary(g).Returns
	require.Len(t, ret, 1)
	require.Len(t, ret[0].Builtins, 1)
	assert.Equal(t, "gasleft()", ret[0].Builtins[0].Name())

	h := function(t, prog, "C", "hash")
	assert.False(t, e.IsTainted(returned(t, h), h, false))
	assert.Empty(t, e.Summary(h).Returns[0].Builtins)

	q := function(t, prog, "C", "quote")
	assert.True(t, e.IsTainted(returned(t, q), q, false))
	assert.False(t, e.IsTainted(returned(t, q), q, true))
}

// callResult returns the lvalue of the first SSA operation of type T in fn.
func callResult[T ir.Operation](t *testing.T, fn *ir.Function) ir.Variable {
	t.Helper()
	for _, n := range fn.Nodes {
		for _, op := range n.IRsSSA {
			if o, ok := op.(T); ok {
				require.NotNil(t, o.Lvalue())
				return o.Lvalue()
			}
		}
	}
	t.Fatalf("no %T in %s", *new(T), fn.Name)
	return nil
}

func TestExternalCallResultDependencies(t *testing.T) {
	token := &types.UserDefined{Kind: types.KindInterface, Name: "IERC20"}
	transferDecl := &ast.Function{
		Name: "transfer", Kind: ast.KindFunction, Visibility: "external",
		Params:  []*ast.VariableDecl{ast.Var("to", addrT), ast.Var("amount", uintT)},
		Returns: []*ast.VariableDecl{ast.Var("", boolT)},
	}
	ierc20 := &ast.Contract{Name: "IERC20", Kind: ast.ContractKindInterface, Functions: []*ast.Function{transferDecl}}

	to := ast.Ident("to", addrT)
	pay := ast.Func("pay", []*ast.VariableDecl{ast.Var("to", addrT), ast.Var("amount", uintT)},
		ast.Exprs(ast.Call(ast.Member(ast.Ident("token", token), "transfer", nil), boolT, to, id("amount"))),
		ast.Exprs(ast.Call(ast.Member(to, "send", nil), boolT, id("amount"))),
		ast.Exprs(ast.Call(ast.Member(to, "call", nil), nil, ast.StringLit(""))),
	)
	c := contract("Payer", []*ast.VariableDecl{ast.Var("token", token)}, pay)
	prog, e, errs := analyze(t, nil, ierc20, c)
	require.Empty(t, errs)
	f := function(t, prog, "Payer", "pay")
	to0, amount0, token0 := ssaDef(t, f, "to", 0), ssaDef(t, f, "amount", 0), ssaDef(t, f, "token", 0)

	high := callResult[*ir.HighLevelCall](t, f)
	assert.True(t, e.IsDependentSSA(high, token0, f))
	assert.True(t, e.IsDependentSSA(high, to0, f))
	assert.True(t, e.IsDependentSSA(high, amount0, f))
	assert.True(t, e.IsTainted(high, f, true))

	sent := callResult[*ir.Send](t, f)
	assert.True(t, e.IsDependentSSA(sent, to0, f))
	assert.True(t, e.IsDependentSSA(sent, amount0, f))
	assert.False(t, e.IsDependentSSA(sent, token0, f))
	assert.True(t, e.IsTainted(sent, f, true))

	low := callResult[*ir.LowLevelCall](t, f)
	assert.True(t, e.IsDependentSSA(low, to0, f))
	assert.False(t, e.IsDependentSSA(low, amount0, f))
	assert.True(t, e.IsTainted(low, f, true))
}
