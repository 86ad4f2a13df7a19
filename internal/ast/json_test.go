package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bankSource = `contract Bank {
    mapping(address => uint256) balances;
    function deposit(uint256 amount) public {
        balances[msg.sender] += amount;
    }
}
`

const bankJSON = `{
  "nodeType": "SourceUnit",
  "absolutePath": "Bank.sol",
  "src": "0:120:0",
  "nodes": [
    {"nodeType": "PragmaDirective", "src": "0:0:0"},
    {
      "nodeType": "ContractDefinition",
      "name": "Bank",
      "contractKind": "contract",
      "src": "0:120:0",
      "baseContracts": [{"baseName": {"name": "Ownable"}}],
      "nodes": [
        {
          "nodeType": "VariableDeclaration",
          "name": "balances",
          "src": "20:36:0",
          "storageLocation": "default",
          "stateVariable": true,
          "typeDescriptions": {"typeString": "mapping(address => uint256)"}
        },
        {
          "nodeType": "FunctionDefinition",
          "name": "deposit",
          "kind": "function",
          "visibility": "public",
          "stateMutability": "nonpayable",
          "src": "61:86:0",
          "parameters": {"parameters": [
            {"nodeType": "VariableDeclaration", "name": "amount", "src": "78:14:0",
             "storageLocation": "default", "typeDescriptions": {"typeString": "uint256"}}
          ]},
          "returnParameters": {"parameters": []},
          "modifiers": [{"modifierName": {"name": "onlyOwner"}, "arguments": null}],
          "body": {
            "nodeType": "Block",
            "src": "101:46:0",
            "statements": [
              {
                "nodeType": "ExpressionStatement",
                "src": "111:31:0",
                "expression": {
                  "nodeType": "Assignment",
                  "operator": "+=",
                  "src": "111:30:0",
                  "typeDescriptions": {"typeString": "uint256"},
                  "leftHandSide": {
                    "nodeType": "IndexAccess",
                    "src": "112:20:0",
                    "typeDescriptions": {"typeString": "uint256"},
                    "baseExpression": {"nodeType": "Identifier", "name": "balances", "src": "111:8:0",
                      "typeDescriptions": {"typeString": "mapping(address => uint256)"}},
                    "indexExpression": {
                      "nodeType": "MemberAccess", "memberName": "sender", "src": "120:10:0",
                      "typeDescriptions": {"typeString": "address"},
                      "expression": {"nodeType": "Identifier", "name": "msg", "src": "120:3:0",
                        "typeDescriptions": {"typeString": "msg"}}
                    }
                  },
                  "rightHandSide": {"nodeType": "Identifier", "name": "amount", "src": "135:6:0",
                    "typeDescriptions": {"typeString": "uint256"}}
                }
              }
            ]
          }
        }
      ]
    }
  ]
}`

func TestDecodeSourceUnit(t *testing.T) {
	unit, err := Decode([]byte(bankJSON), []byte(bankSource))
	require.NoError(t, err)
	require.Len(t, unit.Contracts, 1)

	c := unit.Contracts[0]
	assert.Equal(t, "Bank", c.Name)
	assert.Equal(t, ContractKindContract, c.Kind)
	assert.Equal(t, []string{"Ownable"}, c.Bases)

	require.Len(t, c.StateVariables, 1)
	sv := c.StateVariables[0]
	assert.Equal(t, "balances", sv.Name)
	assert.Equal(t, "mapping(address => uint256)", sv.Type.String())
	assert.Empty(t, sv.Location)
	assert.Equal(t, 2, sv.Pos.Line)

	require.Len(t, c.Functions, 1)
	f := c.Functions[0]
	assert.Equal(t, KindFunction, f.Kind)
	assert.Equal(t, "onlyOwner", f.Modifiers[0].Name)
	require.Len(t, f.Params, 1)
	assert.Equal(t, "uint256", f.Params[0].Type.String())

	require.Len(t, f.Body.Statements, 1)
	stmt, ok := f.Body.Statements[0].(*ExprStmt)
	require.True(t, ok)
	assert.Equal(t, "balances[msg.sender] += amount", stmt.X.String())

	assign := stmt.X.(*Assignment)
	idx := assign.LHS.(*IndexAccess)
	assert.Equal(t, 4, idx.Pos.Line)
	assert.Equal(t, 9, idx.Pos.Column)
	// "msg" has no parseable type string
	assert.Nil(t, idx.Index.(*MemberAccess).Base.ExprType())
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte(`{`), nil)
	assert.Error(t, err)

	_, err = Decode([]byte(`{"nodeType": "ContractDefinition"}`), nil)
	assert.Error(t, err)

	_, err = Decode([]byte(`{"nodeType": "SourceUnit", "nodes": [{"nodeType": "ContractDefinition", "name": "C",
	  "nodes": [{"nodeType": "FunctionDefinition", "name": "f", "kind": "function",
	    "body": {"nodeType": "Block", "statements": [{"nodeType": "TryStatement"}]}}]}]}`), nil)
	assert.ErrorContains(t, err, "TryStatement")
}

func TestDecodeLiteralTypes(t *testing.T) {
	unit, err := Decode([]byte(`{"nodeType": "SourceUnit", "nodes": [{"nodeType": "ContractDefinition", "name": "C",
	  "nodes": [{"nodeType": "VariableDeclaration", "name": "x",
	    "typeDescriptions": {"typeString": "uint256"},
	    "value": {"nodeType": "Literal", "kind": "number", "value": "5", "subdenomination": "ether",
	      "typeDescriptions": {"typeString": "int_const 5000000000000000000"}}}]}]}`), nil)
	require.NoError(t, err)
	lit := unit.Contracts[0].StateVariables[0].Value.(*Literal)
	assert.Equal(t, "ether", lit.Subdenomination)
	assert.Equal(t, "uint256", lit.ExprType().String())
}
