package errors

import (
	"fmt"

	"smartfast/internal/ast"
)

type Level string

const (
	Error   Level = "error"
	Warning Level = "warning"
	Note    Level = "note"
)

// Diagnostic is a rendered-ready message with source location.
type Diagnostic struct {
	Level       Level
	Code        string
	Message     string
	Position    ast.Position
	Length      int
	Suggestions []string
	Notes       []string
	HelpText    string
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s[%s]: %s", d.Level, d.Code, d.Message)
}

// DiagnosticBuilder assembles a Diagnostic fluently.
type DiagnosticBuilder struct {
	d Diagnostic
}

func NewError(code, message string, pos ast.Position) *DiagnosticBuilder {
	return &DiagnosticBuilder{d: Diagnostic{Level: Error, Code: code, Message: message, Position: pos, Length: pos.Length}}
}

func NewWarning(code, message string, pos ast.Position) *DiagnosticBuilder {
	return &DiagnosticBuilder{d: Diagnostic{Level: Warning, Code: code, Message: message, Position: pos, Length: pos.Length}}
}

func (b *DiagnosticBuilder) WithLength(length int) *DiagnosticBuilder {
	b.d.Length = length
	return b
}

func (b *DiagnosticBuilder) WithSuggestion(s string) *DiagnosticBuilder {
	b.d.Suggestions = append(b.d.Suggestions, s)
	return b
}

func (b *DiagnosticBuilder) WithNote(note string) *DiagnosticBuilder {
	b.d.Notes = append(b.d.Notes, note)
	return b
}

func (b *DiagnosticBuilder) WithHelp(help string) *DiagnosticBuilder {
	b.d.HelpText = help
	return b
}

func (b *DiagnosticBuilder) Build() Diagnostic {
	return b.d
}
