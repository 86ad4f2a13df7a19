package grammar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartfast/internal/types"
)

func TestParseElementary(t *testing.T) {
	cases := map[string]string{
		"uint256":         "uint256",
		"uint":            "uint256",
		"int":             "int256",
		"bool":            "bool",
		"address":         "address",
		"address payable": "address payable",
		"bytes32":         "bytes32",
		"byte":            "bytes1",
		"string memory":   "string",
		"bytes calldata":  "bytes",
	}
	for in, want := range cases {
		got, err := ParseType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got.String(), in)
	}
}

func TestParseArrays(t *testing.T) {
	got, err := ParseType("uint256[]")
	require.NoError(t, err)
	arr, ok := got.(*types.Array)
	require.True(t, ok)
	assert.Equal(t, -1, arr.Length)
	assert.True(t, types.IsDynamicArray(got))

	got, err = ParseType("address[3][] storage ref")
	require.NoError(t, err)
	outer := got.(*types.Array)
	assert.Equal(t, -1, outer.Length)
	inner := outer.Elem.(*types.Array)
	assert.Equal(t, 3, inner.Length)
	assert.Equal(t, "address[3][]", got.String())
}

func TestParseMapping(t *testing.T) {
	got, err := ParseType("mapping(address => mapping(address => uint256)) storage ref")
	require.NoError(t, err)
	m, ok := got.(*types.Mapping)
	require.True(t, ok)
	assert.True(t, types.IsAddress(m.Key))
	inner, ok := m.Value.(*types.Mapping)
	require.True(t, ok)
	assert.Equal(t, "uint256", inner.Value.String())
	assert.Equal(t, "mapping(address => mapping(address => uint256))", got.String())
}

func TestParseUserDefined(t *testing.T) {
	got, err := ParseType("struct Bank.Account storage pointer")
	require.NoError(t, err)
	assert.True(t, types.IsStruct(got))
	assert.Equal(t, "Bank.Account", got.String())

	got, err = ParseType("contract Token")
	require.NoError(t, err)
	assert.True(t, types.IsContract(got))

	got, err = ParseType("enum Status[]")
	require.NoError(t, err)
	assert.Equal(t, "uint8[]", types.ABIName(got))
}

func TestParseFunctionAndTuple(t *testing.T) {
	got, err := ParseType("function (uint256,address) external returns (bool)")
	require.NoError(t, err)
	fn, ok := got.(*types.Function)
	require.True(t, ok)
	assert.Len(t, fn.Params, 2)
	assert.Len(t, fn.Returns, 1)
	assert.Equal(t, "external", fn.Visibility)

	got, err = ParseType("tuple(bool,bytes memory)")
	require.NoError(t, err)
	tup, ok := got.(*types.Tuple)
	require.True(t, ok)
	assert.Len(t, tup.Elems, 2)
	assert.Equal(t, "(bool,bytes)", types.ABIName(got))
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"", "uint257", "mapping(address)", "bool payable", "uint256[", "int_const 5"} {
		_, err := ParseType(in)
		assert.Error(t, err, in)
	}
}
