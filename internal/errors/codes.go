package errors

// Error code ranges:
// E100-E199: lowering errors (function is marked LoweringFailed)
// E200-E299: SSA construction errors (function is marked SSAFailed)
// W300-W399: analysis warnings

const (
	ErrorUnknownOperator       = "E100"
	ErrorInvalidLvalue         = "E101"
	ErrorUndefinedIdentifier   = "E102"
	ErrorUnresolvedCall        = "E103"
	ErrorUnsupportedExpression = "E104"
	ErrorUnsupportedStatement  = "E105"
	ErrorInvalidOperandType    = "E106"
	ErrorNestedConditional     = "E107"
	ErrorInvalidArguments      = "E108"
	ErrorLoopControl           = "E109"
	ErrorMalformedCFG          = "E110"
	ErrorTupleArity            = "E111"
	ErrorInvalidLiteral        = "E112"

	ErrorMissingEntry      = "E200"
	ErrorInconsistentEdges = "E201"
	ErrorUnknownOperation  = "E202"

	WarningDegradedFunction = "W300"
	WarningUnstableSummary  = "W301"
)

var codeTitles = map[string]string{
	ErrorUnknownOperator:       "unknown operator",
	ErrorInvalidLvalue:         "invalid assignment target",
	ErrorUndefinedIdentifier:   "undefined identifier",
	ErrorUnresolvedCall:        "unresolved call",
	ErrorUnsupportedExpression: "unsupported expression",
	ErrorUnsupportedStatement:  "unsupported statement",
	ErrorInvalidOperandType:    "invalid operand type",
	ErrorNestedConditional:     "nested conditional expression",
	ErrorInvalidArguments:      "invalid arguments",
	ErrorLoopControl:           "loop control outside of a loop",
	ErrorMalformedCFG:          "malformed control flow graph",
	ErrorTupleArity:            "tuple arity mismatch",
	ErrorInvalidLiteral:        "invalid literal",
	ErrorMissingEntry:          "missing entry point",
	ErrorInconsistentEdges:     "inconsistent control flow edges",
	ErrorUnknownOperation:      "unknown operation",
	WarningDegradedFunction:    "function analysis degraded",
	WarningUnstableSummary:     "recursive summary did not converge",
}

// Title returns the short description of code, or "" if unknown.
func Title(code string) string {
	return codeTitles[code]
}
