package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// TypeLexer tokenizes solc-style type strings such as
// "mapping(address => uint256[]) storage ref".
var TypeLexer = lexer.MustSimple([]lexer.SimpleRule{
	// Identifiers and keywords; '$' is legal in Solidity identifiers
	{Name: "Ident", Pattern: `[a-zA-Z_$][a-zA-Z0-9_$]*`},

	// Array lengths
	{Name: "Int", Pattern: `[0-9]+`},

	// Mapping arrow must come before single punctuation
	{Name: "Punct", Pattern: `=>|[()\[\],.]`},

	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
})
