package errors

import (
	"fmt"
	"sort"

	"smartfast/internal/ast"
)

// LoweringError reports a construct the IR builder could not translate.
// The function it belongs to keeps no IR.
type LoweringError struct {
	Code     string
	Function string
	Position ast.Position
	Message  string
	// Similar lists close matches for undefined names.
	Similar []string
}

func (e *LoweringError) Error() string {
	return format(e.Code, e.Function, e.Position, e.Message)
}

// Diagnostic converts e for the reporter.
func (e *LoweringError) Diagnostic() Diagnostic {
	b := NewError(e.Code, e.Message, e.Position).WithNote("in function " + e.Function)
	switch len(e.Similar) {
	case 0:
	case 1:
		b = b.WithSuggestion(fmt.Sprintf("did you mean '%s'?", e.Similar[0]))
	default:
		b = b.WithSuggestion(fmt.Sprintf("did you mean one of: '%s'?", joinQuoted(e.Similar)))
	}
	return b.Build()
}

// SSAConstructionError reports a CFG the SSA converter could not process.
type SSAConstructionError struct {
	Code     string
	Function string
	Position ast.Position
	Message  string
}

func (e *SSAConstructionError) Error() string {
	return format(e.Code, e.Function, e.Position, e.Message)
}

func (e *SSAConstructionError) Diagnostic() Diagnostic {
	return NewError(e.Code, e.Message, e.Position).
		WithNote("in function " + e.Function).
		WithHelp("taint queries for this function are answered conservatively").
		Build()
}

func format(code, function string, pos ast.Position, message string) string {
	loc := ""
	if pos.Line > 0 {
		loc = fmt.Sprintf(" at %d:%d", pos.Line, pos.Column)
	} else if pos.Offset > 0 {
		loc = fmt.Sprintf(" at offset %d", pos.Offset)
	}
	return fmt.Sprintf("%s: %s%s: %s", code, function, loc, message)
}

func Lowering(code, function string, pos ast.Position, format string, args ...any) *LoweringError {
	return &LoweringError{Code: code, Function: function, Position: pos, Message: fmt.Sprintf(format, args...)}
}

func SSA(code, function string, pos ast.Position, format string, args ...any) *SSAConstructionError {
	return &SSAConstructionError{Code: code, Function: function, Position: pos, Message: fmt.Sprintf(format, args...)}
}

// UndefinedIdentifier builds an E102 error with close candidate names.
func UndefinedIdentifier(function, name string, pos ast.Position, candidates []string) *LoweringError {
	e := Lowering(ErrorUndefinedIdentifier, function, pos, "undefined identifier '%s'", name)
	e.Similar = findSimilarNames(name, candidates)
	return e
}

func joinQuoted(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += "', '"
		}
		out += n
	}
	return out
}

func findSimilarNames(target string, candidates []string) []string {
	var similar []string
	for _, candidate := range candidates {
		if candidate != target && len(candidate) > 2 && levenshteinDistance(target, candidate) <= 2 {
			similar = append(similar, candidate)
		}
	}
	sort.Strings(similar)
	return similar
}

func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
