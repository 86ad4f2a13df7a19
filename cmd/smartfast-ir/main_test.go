// SPDX-License-Identifier: Apache-2.0
package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bankJSON = `{
  "nodeType": "SourceUnit",
  "absolutePath": "Bank.sol",
  "nodes": [{
    "nodeType": "ContractDefinition",
    "name": "Bank",
    "contractKind": "contract",
    "nodes": [
      {"nodeType": "VariableDeclaration", "name": "balances", "stateVariable": true,
       "typeDescriptions": {"typeString": "mapping(address => uint256)"}},
      {"nodeType": "VariableDeclaration", "name": "fee", "stateVariable": true,
       "typeDescriptions": {"typeString": "uint256"}},
      {
        "nodeType": "FunctionDefinition", "name": "deposit", "kind": "function",
        "visibility": "public", "stateMutability": "payable",
        "parameters": {"parameters": [
          {"nodeType": "VariableDeclaration", "name": "amount", "typeDescriptions": {"typeString": "uint256"}}
        ]},
        "returnParameters": {"parameters": []},
        "body": {"nodeType": "Block", "statements": [{
          "nodeType": "ExpressionStatement",
          "expression": {
            "nodeType": "Assignment", "operator": "+=",
            "typeDescriptions": {"typeString": "uint256"},
            "leftHandSide": {
              "nodeType": "IndexAccess", "typeDescriptions": {"typeString": "uint256"},
              "baseExpression": {"nodeType": "Identifier", "name": "balances",
                "typeDescriptions": {"typeString": "mapping(address => uint256)"}},
              "indexExpression": {"nodeType": "MemberAccess", "memberName": "sender",
                "typeDescriptions": {"typeString": "address"},
                "expression": {"nodeType": "Identifier", "name": "msg", "typeDescriptions": {"typeString": "msg"}}}
            },
            "rightHandSide": {"nodeType": "Identifier", "name": "amount", "typeDescriptions": {"typeString": "uint256"}}
          }
        }]}
      }
    ]
  }]
}`

// run executes the CLI against a fresh copy of the Bank AST.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "bank.json")
	require.NoError(t, os.WriteFile(input, []byte(bankJSON), 0o644))
	config := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(config, []byte("recursionPasses: 1\n"), 0o644))

	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append(append([]string{}, args...), "--no-color", "--config", config, input))
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestIRCommand(t *testing.T) {
	out, errOut, err := run(t, "ir")
	require.NoError(t, err)
	assert.Empty(t, errOut)
	assert.Contains(t, out, "Contract Bank")
	assert.Contains(t, out, "Function Bank.deposit(uint256)")
	assert.Contains(t, out, "REF_0(uint256) -> balances[msg.sender]")
	assert.NotContains(t, out, "amount_0")
}

func TestSSACommand(t *testing.T) {
	out, _, err := run(t, "ssa", "--function", "Bank.deposit(uint256)")
	require.NoError(t, err)
	assert.Contains(t, out, "IRs SSA:")
	assert.Contains(t, out, "amount_0")

	_, _, err = run(t, "ssa", "--function", "Bank.withdraw()")
	assert.ErrorContains(t, err, "no function Bank.withdraw()")
}

func TestTaintCommand(t *testing.T) {
	out, _, err := run(t, "taint", "--ignore-generic")
	require.NoError(t, err)
	assert.Contains(t, out, "Contract Bank\n")
	assert.Contains(t, out, "\tBank.balances tainted\n")
	assert.Contains(t, out, "\tBank.fee clean\n")
}

func TestGraphCommands(t *testing.T) {
	out, _, err := run(t, "callgraph")
	require.NoError(t, err)
	assert.Contains(t, out, "subgraph \"cluster_Bank\"")

	out, _, err = run(t, "cfg", "-f", "Bank.deposit(uint256)")
	require.NoError(t, err)
	assert.Contains(t, out, "digraph")

	out, _, err = run(t, "dominators")
	require.NoError(t, err)
	assert.Contains(t, out, "Bank.deposit(uint256)")
	assert.Contains(t, out, "Node 0 ENTRY_POINT: idom -, frontier []")
}

func TestMetricsFlag(t *testing.T) {
	out, _, err := run(t, "ir", "--metrics", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "smartfast_functions_analyzed_total 1")
}
